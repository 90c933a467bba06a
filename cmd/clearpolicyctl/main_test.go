package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/audit"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/clearpolicy"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/clock"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/config"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/policy"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/qa"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/store"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// memOpener opens a mock-mode service over one shared memory store, the way
// separate CLI invocations share a persistent store.
func memOpener(st store.Store) opener {
	return func(context.Context) (*clearpolicy.Service, func(), error) {
		svc := clearpolicy.New(clearpolicy.Options{Mode: clearpolicy.ModeMock, Store: st, Clock: clock.NewFake(now)})
		return svc, func() { _ = svc.Close() }, nil
	}
}

func execute(t *testing.T, open opener, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestAskThenAuditList(t *testing.T) {
	open := memOpener(store.NewMemoryStore())

	out := execute(t, open, "ask", "Is", "hail", "covered?", "-j", "Canada", "-p", "p-1")
	var e audit.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &e))
	require.Equal(t, "Is hail covered?", e.Question)
	require.Equal(t, qa.SelectedPolicyName, e.Response.Citations[0].PolicyName)

	execute(t, open, "ask", "legal advice please")

	out = execute(t, open, "audit", "list")
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, qa.DefaultJurisdiction(), entries[1].Jurisdiction)
	require.True(t, entries[1].Response.Unknown)
}

func TestAuditExportWritesDatedFile(t *testing.T) {
	open := memOpener(store.NewMemoryStore())
	execute(t, open, "ask", "Is hail covered?")

	dir := t.TempDir()
	out := execute(t, open, "audit", "export", "--dir", dir)
	path := filepath.Join(dir, "clearpolicy-audit-2026-10-17.json")
	require.Equal(t, path, strings.TrimSpace(out))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal(b, &entries))
	require.Len(t, entries, 1)
}

func TestPoliciesList(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, store.NewCollection[policy.Policy](st, store.KeyPolicies).Write(context.Background(), []policy.Policy{
		{ID: "p-1", Filename: "home.pdf", Version: 1, Status: policy.StatusIndexed, UploadedAt: now},
	}))
	out := execute(t, memOpener(st), "policies", "list")
	var list []policy.Policy
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	require.Equal(t, "home.pdf", list[0].Filename)
}

func TestAskRequiresQuestion(t *testing.T) {
	cmd := newRootCmd(memOpener(store.NewMemoryStore()))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"ask", "   "})
	require.Error(t, cmd.Execute())
}

func TestPersistentStore(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: "memory"}}
	require.NoError(t, persistentStore(cfg, ""))
	require.Equal(t, "sqlite", cfg.Store.Backend)

	for _, b := range []string{"memory", "none"} {
		cfg := &config.Config{Store: config.StoreConfig{Backend: b}}
		err := persistentStore(cfg, b)
		require.ErrorContains(t, err, "needs a persistent store")
	}

	cfg = &config.Config{Store: config.StoreConfig{Backend: "redis"}}
	require.NoError(t, persistentStore(cfg, "redis"))
	require.Equal(t, "redis", cfg.Store.Backend)
}

func TestDefaultStoreKeepsAuditAcrossRuns(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("STORE_PATH", filepath.Join(t.TempDir(), "ctl.db"))
	t.Setenv("MOCK_MODE", "true")

	execute(t, openFromConfig, "ask", "Is", "hail", "covered?")

	out := execute(t, openFromConfig, "audit", "list")
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "Is hail covered?", entries[0].Question)
}

func TestMemoryStoreRefused(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	cmd := newRootCmd(openFromConfig)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"audit", "list"})
	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "needs a persistent store")
}
