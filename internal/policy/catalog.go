package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"
	"time"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/clock"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/ids"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/store"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/logger"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/metrics"
)

// DefaultIndexingDelay is how long a simulated upload stays Processing.
const DefaultIndexingDelay = 2 * time.Second

var (
	ErrClosed   = errors.New("policy catalog closed")
	ErrNotFound = errors.New("policy file not found")
	ErrNoFiles  = errors.New("policy files are not kept")
)

// BlobStore keeps the raw bytes of uploaded files. DownloadFile reports a
// missing object with an error wrapping fs.ErrNotExist.
type BlobStore interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
}

// Options configures a Catalog. Zero values select the defaults.
type Options struct {
	Clock         clock.Clock
	IDs           ids.Generator
	Blobs         BlobStore
	IndexingDelay time.Duration
}

// Catalog simulates the policy backend: it keeps uploaded policy records in a
// store and flips each one from Processing to Indexed after a delay.
type Catalog struct {
	records *store.Collection[Policy]
	clock   clock.Clock
	ids     ids.Generator
	blobs   BlobStore
	delay   time.Duration

	mu      sync.Mutex
	pending map[string]clock.Timer
	closed  bool
}

func NewCatalog(s store.Store, opts Options) *Catalog {
	c := &Catalog{
		records: store.NewCollection[Policy](s, store.KeyPolicies),
		clock:   opts.Clock,
		ids:     opts.IDs,
		blobs:   opts.Blobs,
		delay:   opts.IndexingDelay,
		pending: make(map[string]clock.Timer),
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.ids == nil {
		c.ids = ids.Random{Prefix: "mock"}
	}
	if c.delay <= 0 {
		c.delay = DefaultIndexingDelay
	}
	return c
}

// List returns every stored policy in storage order.
func (c *Catalog) List(ctx context.Context) []Policy {
	return c.records.Read(ctx)
}

// Upload records a new policy version in Processing state and schedules its
// transition to Indexed. It returns without waiting for indexing.
func (c *Catalog) Upload(ctx context.Context, f File) (Policy, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Policy{}, ErrClosed
	}

	id := c.ids.NewID()
	if c.blobs != nil && f.Content != nil {
		if err := c.blobs.UploadFile(ctx, BlobKey(id, f.Name), f.Content, f.Size, f.ContentType); err != nil {
			return Policy{}, fmt.Errorf("store policy file %s: %w", f.Name, err)
		}
	}

	var p Policy
	err := c.records.Update(ctx, func(items []Policy) ([]Policy, bool) {
		p = Policy{
			ID:         id,
			Filename:   f.Name,
			Version:    nextVersion(items, f.Name),
			Status:     StatusProcessing,
			UploadedAt: c.clock.Now(),
		}
		return append(items, p), true
	})
	if err != nil {
		return Policy{}, fmt.Errorf("save policy %s: %w", f.Name, err)
	}

	c.schedule(p.ID)
	metrics.PoliciesUploaded.WithLabelValues("mock").Inc()
	logger.Infof("policy uploaded: id=%s filename=%s version=%d", p.ID, p.Filename, p.Version)
	return p, nil
}

// OpenFile returns the record with the given id and a reader over its stored
// bytes. The caller closes the reader.
func (c *Catalog) OpenFile(ctx context.Context, id string) (Policy, io.ReadCloser, error) {
	if c.blobs == nil {
		return Policy{}, nil, ErrNoFiles
	}
	var p Policy
	found := false
	for _, item := range c.records.Read(ctx) {
		if item.ID == id {
			p, found = item, true
			break
		}
	}
	if !found {
		return Policy{}, nil, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	rc, err := c.blobs.DownloadFile(ctx, BlobKey(p.ID, p.Filename))
	if errors.Is(err, fs.ErrNotExist) {
		return Policy{}, nil, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Policy{}, nil, fmt.Errorf("open policy file %s: %w", p.Filename, err)
	}
	return p, rc, nil
}

// Pending reports how many indexing transitions are still scheduled.
func (c *Catalog) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close cancels every scheduled indexing transition. Records that are still
// Processing stay that way.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for id, t := range c.pending {
		t.Stop()
		delete(c.pending, id)
	}
	return nil
}

func (c *Catalog) schedule(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending[id] = c.clock.AfterFunc(c.delay, func() { c.markIndexed(id) })
}

func (c *Catalog) markIndexed(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	found := false
	err := c.records.Update(context.Background(), func(items []Policy) ([]Policy, bool) {
		for i := range items {
			if items[i].ID == id {
				items[i].Status = StatusIndexed
				found = true
				return items, true
			}
		}
		return items, false
	})
	switch {
	case err != nil:
		logger.Errorf("policy %s: failed to persist Indexed status: %v", id, err)
	case !found:
		logger.Debugf("policy %s vanished before indexing finished", id)
	default:
		metrics.PoliciesIndexed.Inc()
		logger.Infof("policy indexed: id=%s", id)
	}
}

// BlobKey is the object key under which an uploaded file's bytes are kept.
func BlobKey(id, filename string) string {
	return path.Join("policies", id, path.Base(filename))
}

func nextVersion(items []Policy, filename string) int {
	highest := 0
	for _, p := range items {
		if p.Filename == filename && p.Version > highest {
			highest = p.Version
		}
	}
	return highest + 1
}
