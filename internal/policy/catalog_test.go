package policy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/clock"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/ids"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var epoch = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

type fakeBlobs struct {
	mu   sync.Mutex
	objs map[string][]byte
	err  error
}

func (f *fakeBlobs) UploadFile(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objs == nil {
		f.objs = map[string][]byte{}
	}
	f.objs[key] = b
	return nil
}

func (f *fakeBlobs) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objs[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func newTestCatalog(s store.Store) (*Catalog, *clock.Fake) {
	fc := clock.NewFake(epoch)
	c := NewCatalog(s, Options{Clock: fc, IDs: &ids.Sequence{Prefix: "pol"}})
	return c, fc
}

func TestUploadAssignsVersionsPerFilename(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(store.NewMemoryStore())
	defer c.Close()

	for k := 1; k <= 4; k++ {
		p, err := c.Upload(ctx, File{Name: "home.pdf"})
		require.NoError(t, err)
		require.Equal(t, k, p.Version)
	}
	other, err := c.Upload(ctx, File{Name: "auto.docx"})
	require.NoError(t, err)
	require.Equal(t, 1, other.Version)

	// filenames are case sensitive
	upper, err := c.Upload(ctx, File{Name: "HOME.pdf"})
	require.NoError(t, err)
	require.Equal(t, 1, upper.Version)

	list := c.List(ctx)
	require.Len(t, list, 6)
	require.Equal(t, "pol-1", list[0].ID)
	require.Equal(t, "HOME.pdf", list[5].Filename)
}

func TestUploadVersionFollowsMaximumNotCount(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seed := store.NewCollection[Policy](s, store.KeyPolicies)
	require.NoError(t, seed.Write(ctx, []Policy{
		{ID: "old-1", Filename: "a.pdf", Version: 7, Status: StatusIndexed, UploadedAt: epoch},
		{ID: "old-2", Filename: "a.pdf", Version: 3, Status: StatusIndexed, UploadedAt: epoch},
	}))

	c, _ := newTestCatalog(s)
	defer c.Close()
	p, err := c.Upload(ctx, File{Name: "a.pdf"})
	require.NoError(t, err)
	require.Equal(t, 8, p.Version)
}

func TestUploadIndexesAfterDelay(t *testing.T) {
	ctx := context.Background()
	c, fc := newTestCatalog(store.NewMemoryStore())
	defer c.Close()

	p, err := c.Upload(ctx, File{Name: "policy.pdf"})
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, p.Status)
	require.Equal(t, epoch, p.UploadedAt)
	require.Equal(t, 1, c.Pending())

	fc.Advance(DefaultIndexingDelay - time.Millisecond)
	require.Equal(t, StatusProcessing, c.List(ctx)[0].Status)

	fc.Advance(time.Millisecond)
	got := c.List(ctx)
	require.Len(t, got, 1)
	want := p
	want.Status = StatusIndexed
	require.Equal(t, want.ID, got[0].ID)
	require.Equal(t, want.Filename, got[0].Filename)
	require.Equal(t, want.Version, got[0].Version)
	require.Equal(t, want.Status, got[0].Status)
	require.True(t, want.UploadedAt.Equal(got[0].UploadedAt))
	require.Equal(t, 0, c.Pending())
}

func TestIndexingLeavesOtherRecordsAlone(t *testing.T) {
	ctx := context.Background()
	c, fc := newTestCatalog(store.NewMemoryStore())
	defer c.Close()

	first, err := c.Upload(ctx, File{Name: "a.pdf"})
	require.NoError(t, err)
	fc.Advance(time.Second)
	second, err := c.Upload(ctx, File{Name: "b.pdf"})
	require.NoError(t, err)

	fc.Advance(time.Second)
	list := c.List(ctx)
	require.Equal(t, first.ID, list[0].ID)
	require.Equal(t, StatusIndexed, list[0].Status)
	require.Equal(t, second.ID, list[1].ID)
	require.Equal(t, StatusProcessing, list[1].Status)

	fc.Advance(time.Second)
	require.Equal(t, StatusIndexed, c.List(ctx)[1].Status)
}

func TestIndexingDroppedWhenRecordRemoved(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	c, fc := newTestCatalog(s)
	defer c.Close()

	_, err := c.Upload(ctx, File{Name: "gone.pdf"})
	require.NoError(t, err)

	// another writer wipes the collection before indexing finishes
	require.NoError(t, store.NewCollection[Policy](s, store.KeyPolicies).Write(ctx, nil))

	require.NotPanics(t, func() { fc.Advance(DefaultIndexingDelay) })
	require.Empty(t, c.List(ctx))
	require.Equal(t, 0, c.Pending())
}

func TestCustomIndexingDelay(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(epoch)
	c := NewCatalog(store.NewMemoryStore(), Options{Clock: fc, IDs: &ids.Sequence{Prefix: "p"}, IndexingDelay: 10 * time.Second})
	defer c.Close()

	_, err := c.Upload(ctx, File{Name: "slow.pdf"})
	require.NoError(t, err)
	fc.Advance(DefaultIndexingDelay)
	require.Equal(t, StatusProcessing, c.List(ctx)[0].Status)
	fc.Advance(8 * time.Second)
	require.Equal(t, StatusIndexed, c.List(ctx)[0].Status)
}

func TestCloseCancelsPendingIndexing(t *testing.T) {
	ctx := context.Background()
	c, fc := newTestCatalog(store.NewMemoryStore())

	_, err := c.Upload(ctx, File{Name: "a.pdf"})
	require.NoError(t, err)
	_, err = c.Upload(ctx, File{Name: "b.pdf"})
	require.NoError(t, err)
	require.Equal(t, 2, c.Pending())
	require.Equal(t, 2, fc.Pending())

	require.NoError(t, c.Close())
	require.Equal(t, 0, c.Pending())
	require.Equal(t, 0, fc.Pending())

	fc.Advance(time.Minute)
	for _, p := range c.List(ctx) {
		require.Equal(t, StatusProcessing, p.Status)
	}

	_, err = c.Upload(ctx, File{Name: "c.pdf"})
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, c.Close(), "Close is idempotent")
}

func TestUploadStoresBlob(t *testing.T) {
	ctx := context.Background()
	blobs := &fakeBlobs{}
	fc := clock.NewFake(epoch)
	c := NewCatalog(store.NewMemoryStore(), Options{Clock: fc, IDs: &ids.Sequence{Prefix: "b"}, Blobs: blobs})
	defer c.Close()

	p, err := c.Upload(ctx, File{Name: "dir/contract.pdf", ContentType: MIMEPDF, Size: 4, Content: bytes.NewReader([]byte("%PDF"))})
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(blobs.objs[BlobKey(p.ID, "dir/contract.pdf")]))
	require.Equal(t, "policies/b-1/contract.pdf", BlobKey(p.ID, "dir/contract.pdf"))
}

func TestOpenFileReturnsStoredBytes(t *testing.T) {
	ctx := context.Background()
	blobs := &fakeBlobs{}
	c := NewCatalog(store.NewMemoryStore(), Options{Clock: clock.NewFake(epoch), IDs: &ids.Sequence{Prefix: "b"}, Blobs: blobs})
	defer c.Close()

	p, err := c.Upload(ctx, File{Name: "home.docx", ContentType: MIMEDOCX, Content: bytes.NewReader([]byte("PK docx"))})
	require.NoError(t, err)

	got, rc, err := c.OpenFile(ctx, p.ID)
	require.NoError(t, err)
	defer rc.Close()
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, "home.docx", got.Filename)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "PK docx", string(b))
}

func TestOpenFileErrors(t *testing.T) {
	ctx := context.Background()

	noBlobs, _ := newTestCatalog(store.NewMemoryStore())
	defer noBlobs.Close()
	_, _, err := noBlobs.OpenFile(ctx, "pol-1")
	require.ErrorIs(t, err, ErrNoFiles)

	blobs := &fakeBlobs{}
	c := NewCatalog(store.NewMemoryStore(), Options{Clock: clock.NewFake(epoch), IDs: &ids.Sequence{Prefix: "b"}, Blobs: blobs})
	defer c.Close()
	_, _, err = c.OpenFile(ctx, "b-404")
	require.ErrorIs(t, err, ErrNotFound)

	// a record whose bytes never reached the bucket
	p, err := c.Upload(ctx, File{Name: "empty.pdf"})
	require.NoError(t, err)
	_, _, err = c.OpenFile(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUploadBlobFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFake(epoch)
	c := NewCatalog(store.NewMemoryStore(), Options{Clock: fc, Blobs: &fakeBlobs{err: errors.New("bucket down")}})
	defer c.Close()

	_, err := c.Upload(ctx, File{Name: "a.pdf", Content: bytes.NewReader([]byte("x"))})
	require.Error(t, err)
	require.Empty(t, c.List(ctx))
	require.Equal(t, 0, c.Pending())
}

type failingStore struct{ store.MemoryStore }

func (*failingStore) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestUploadWriteFailure(t *testing.T) {
	c, fc := newTestCatalog(&failingStore{})
	defer c.Close()
	_, err := c.Upload(context.Background(), File{Name: "a.pdf"})
	require.Error(t, err)
	require.Equal(t, 0, fc.Pending())
}

// flakyStore fails every read while down is set.
type flakyStore struct {
	*store.MemoryStore
	down bool
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.down {
		return nil, errors.New("i/o timeout")
	}
	return f.MemoryStore.Get(ctx, key)
}

func TestUploadReadFailureKeepsStoredRecords(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{MemoryStore: store.NewMemoryStore()}
	c, _ := newTestCatalog(s)
	defer c.Close()

	for k := 1; k <= 3; k++ {
		_, err := c.Upload(ctx, File{Name: "a.pdf"})
		require.NoError(t, err)
	}

	s.down = true
	_, err := c.Upload(ctx, File{Name: "a.pdf"})
	require.ErrorContains(t, err, "i/o timeout")
	require.Equal(t, 3, c.Pending())

	s.down = false
	list := c.List(ctx)
	require.Len(t, list, 3)
	p, err := c.Upload(ctx, File{Name: "a.pdf"})
	require.NoError(t, err)
	require.Equal(t, 4, p.Version)
}

func TestIndexingReadFailureLeavesRecords(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{MemoryStore: store.NewMemoryStore()}
	c, fc := newTestCatalog(s)
	defer c.Close()

	_, err := c.Upload(ctx, File{Name: "a.pdf"})
	require.NoError(t, err)
	_, err = c.Upload(ctx, File{Name: "b.pdf"})
	require.NoError(t, err)

	s.down = true
	fc.Advance(DefaultIndexingDelay)
	s.down = false

	list := c.List(ctx)
	require.Len(t, list, 2)
	for _, p := range list {
		require.Equal(t, StatusProcessing, p.Status)
	}
}

func TestNoopStoreUploadStillReturnsRecord(t *testing.T) {
	ctx := context.Background()
	c, fc := newTestCatalog(store.NoopStore{})
	defer c.Close()

	p, err := c.Upload(ctx, File{Name: "a.pdf"})
	require.NoError(t, err)
	require.Equal(t, 1, p.Version)
	require.Empty(t, c.List(ctx))
	require.NotPanics(t, func() { fc.Advance(DefaultIndexingDelay) })
}

func TestRealClockIndexingAndNoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	c := NewCatalog(store.NewMemoryStore(), Options{IndexingDelay: 20 * time.Millisecond})

	p, err := c.Upload(ctx, File{Name: "real.pdf"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		list := c.List(ctx)
		return len(list) == 1 && list[0].ID == p.ID && list[0].Status == StatusIndexed
	}, 2*time.Second, 5*time.Millisecond)

	// a long delay is cancelled by Close rather than left running
	slow := NewCatalog(store.NewMemoryStore(), Options{IndexingDelay: time.Hour})
	_, err = slow.Upload(ctx, File{Name: "slow.pdf"})
	require.NoError(t, err)
	require.Equal(t, 1, slow.Pending())
	require.NoError(t, slow.Close())
	require.NoError(t, c.Close())
}
