// Package clearpolicy routes policy and question operations either to the
// local simulators (mock mode) or to the external backend (delegated mode),
// and records every asked question in the audit log.
package clearpolicy

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/audit"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/backend"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/clock"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/ids"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/policy"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/qa"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/store"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/logger"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/metrics"
)

// Mode selects where policy and question operations go.
type Mode int

const (
	ModeDelegated Mode = iota
	ModeMock
)

func (m Mode) String() string {
	if m == ModeMock {
		return "mock"
	}
	return "delegated"
}

// ModeFromFlag maps the mock-mode configuration flag to a Mode.
func ModeFromFlag(mock bool) Mode {
	if mock {
		return ModeMock
	}
	return ModeDelegated
}

// PolicySource lists and accepts policy documents.
type PolicySource interface {
	ListPolicies(ctx context.Context) ([]policy.Policy, error)
	UploadPolicy(ctx context.Context, f policy.File) (policy.Policy, error)
}

// Answerer answers questions against a set of policies.
type Answerer interface {
	Ask(ctx context.Context, question, jurisdiction string, policyIDs []string) (qa.Response, error)
}

// Options wires a Service. Store backs the audit log in both modes and the
// simulators in mock mode. Backend is required in delegated mode.
type Options struct {
	Mode    Mode
	Store   store.Store
	Backend *backend.Client

	Clock           clock.Clock
	IDs             ids.Generator
	Blobs           policy.BlobStore
	IndexingDelay   time.Duration
	AuditMaxEntries int
}

// Service is the single entry point used by the HTTP handlers and the CLI.
type Service struct {
	mode     Mode
	clock    clock.Clock
	policies PolicySource
	answers  Answerer
	audit    *audit.Log
	catalog  *policy.Catalog
}

// New builds a Service for opts.Mode. The mode never changes afterwards.
func New(opts Options) *Service {
	st := opts.Store
	if st == nil {
		st = store.NoopStore{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Service{
		mode:  opts.Mode,
		clock: clk,
		audit: audit.NewLog(st, opts.AuditMaxEntries),
	}
	if opts.Mode == ModeMock {
		s.catalog = policy.NewCatalog(st, policy.Options{
			Clock:         clk,
			IDs:           opts.IDs,
			Blobs:         opts.Blobs,
			IndexingDelay: opts.IndexingDelay,
		})
		sim := &simulated{catalog: s.catalog, qa: qa.NewSimulator()}
		s.policies = sim
		s.answers = sim
	} else {
		b := opts.Backend
		if b == nil {
			b = backend.NewClient("", nil)
		}
		s.policies = b
		s.answers = b
	}
	logger.Infof("clearpolicy service ready: mode=%s", s.mode)
	return s
}

// IsMockMode reports whether operations go to the local simulators.
func (s *Service) IsMockMode() bool { return s.mode == ModeMock }

func (s *Service) Mode() Mode { return s.mode }

func (s *Service) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	return s.policies.ListPolicies(ctx)
}

func (s *Service) UploadPolicy(ctx context.Context, f policy.File) (policy.Policy, error) {
	return s.policies.UploadPolicy(ctx, f)
}

// OpenPolicyFile streams the stored bytes of a simulated upload. Delegated
// mode keeps no files, so it reports policy.ErrNoFiles.
func (s *Service) OpenPolicyFile(ctx context.Context, id string) (policy.Policy, io.ReadCloser, error) {
	if s.catalog == nil {
		return policy.Policy{}, nil, fmt.Errorf("%s mode: %w", s.mode, policy.ErrNoFiles)
	}
	return s.catalog.OpenFile(ctx, id)
}

// Ask answers without recording anything.
func (s *Service) Ask(ctx context.Context, question, jurisdiction string, policyIDs []string) (qa.Response, error) {
	r, err := s.answers.Ask(ctx, question, jurisdiction, policyIDs)
	if err != nil {
		return qa.Response{}, err
	}
	outcome := "answered"
	if r.Unknown {
		outcome = "unknown"
	}
	metrics.QuestionsAsked.WithLabelValues(s.mode.String(), outcome).Inc()
	return r, nil
}

// AskAndRecord answers the question and appends exactly one audit entry,
// stamped with the time of the call, whatever the answer was. A failed ask
// records nothing.
func (s *Service) AskAndRecord(ctx context.Context, question, jurisdiction string, policyIDs []string) (audit.Entry, error) {
	r, err := s.Ask(ctx, question, jurisdiction, policyIDs)
	if err != nil {
		return audit.Entry{}, err
	}
	e := audit.Entry{
		Question:     question,
		Jurisdiction: jurisdiction,
		Response:     r,
		AskedAt:      s.clock.Now(),
	}
	if err := s.audit.Append(ctx, e); err != nil {
		return audit.Entry{}, err
	}
	return e, nil
}

// AuditHistory returns the retained audit entries, oldest first.
func (s *Service) AuditHistory(ctx context.Context) []audit.Entry {
	return s.audit.List(ctx)
}

// ExportAudit renders the audit history as indented JSON.
func (s *Service) ExportAudit(ctx context.Context) ([]byte, error) {
	return s.audit.ExportJSON(ctx)
}

// Now is the service clock, used for export file names.
func (s *Service) Now() time.Time { return s.clock.Now() }

// Close cancels pending simulated indexing.
func (s *Service) Close() error {
	if s.catalog != nil {
		return s.catalog.Close()
	}
	return nil
}

// simulated answers from the local catalog and canned Q&A.
type simulated struct {
	catalog *policy.Catalog
	qa      *qa.Simulator
}

func (m *simulated) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	return m.catalog.List(ctx), nil
}

func (m *simulated) UploadPolicy(ctx context.Context, f policy.File) (policy.Policy, error) {
	return m.catalog.Upload(ctx, f)
}

func (m *simulated) Ask(_ context.Context, question, jurisdiction string, policyIDs []string) (qa.Response, error) {
	return m.qa.Ask(question, jurisdiction, policyIDs), nil
}
