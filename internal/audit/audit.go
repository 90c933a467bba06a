package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/isotime"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/qa"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/store"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/metrics"
)

// DefaultMaxEntries is how many interactions the log retains.
const DefaultMaxEntries = 20

// Entry records one question and the answer it received.
type Entry struct {
	Question     string      `json:"question"`
	Jurisdiction string      `json:"jurisdiction"`
	Response     qa.Response `json:"response"`
	AskedAt      time.Time   `json:"askedAt"`
}

// UnmarshalJSON accepts any ISO-8601 askedAt, including zone-less values.
func (e *Entry) UnmarshalJSON(b []byte) error {
	type plain Entry
	aux := struct {
		*plain
		AskedAt string `json:"askedAt"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	t, err := isotime.Parse(aux.AskedAt)
	if err != nil {
		return fmt.Errorf("askedAt: %w", err)
	}
	e.AskedAt = t
	return nil
}

// Log is an append-only audit trail that keeps only the most recent entries.
type Log struct {
	entries *store.Collection[Entry]
	max     int
}

// NewLog returns a log over s retaining at most max entries (DefaultMaxEntries
// when max <= 0).
func NewLog(s store.Store, max int) *Log {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Log{entries: store.NewCollection[Entry](s, store.KeyAudit), max: max}
}

// MaxEntries returns the retention bound.
func (l *Log) MaxEntries() int { return l.max }

// Append adds e at the end and drops the oldest entries beyond the bound.
func (l *Log) Append(ctx context.Context, e Entry) error {
	evicted := 0
	err := l.entries.Update(ctx, func(items []Entry) ([]Entry, bool) {
		items = append(items, e)
		if over := len(items) - l.max; over > 0 {
			evicted = over
			items = items[over:]
		}
		return items, true
	})
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if evicted > 0 {
		metrics.AuditEvictions.Add(float64(evicted))
	}
	return nil
}

// List returns at most the last MaxEntries entries, oldest first.
func (l *Log) List(ctx context.Context) []Entry {
	items := l.entries.Read(ctx)
	if over := len(items) - l.max; over > 0 {
		items = items[over:]
	}
	return items
}

// ExportJSON renders List as indented JSON.
func (l *Log) ExportJSON(ctx context.Context) ([]byte, error) {
	return json.MarshalIndent(l.List(ctx), "", "  ")
}

// ExportFilename names the export file for the UTC date of t.
func ExportFilename(t time.Time) string {
	return "clearpolicy-audit-" + t.UTC().Format("2006-01-02") + ".json"
}
