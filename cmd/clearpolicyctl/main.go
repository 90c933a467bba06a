// Command clearpolicyctl inspects and exports ClearPolicy state from the
// configured store, and asks questions through the same service the HTTP
// server uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/audit"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/backend"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/clearpolicy"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/config"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/qa"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/store"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/logger"
	"github.com/spf13/cobra"
)

// opener builds the service a command works on and a func releasing it.
type opener func(ctx context.Context) (*clearpolicy.Service, func(), error)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	if err := newRootCmd(openFromConfig).Execute(); err != nil {
		os.Exit(1)
	}
}

func openFromConfig(ctx context.Context) (*clearpolicy.Service, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := persistentStore(cfg, os.Getenv("STORE_BACKEND")); err != nil {
		return nil, nil, err
	}
	st, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	svc := clearpolicy.New(clearpolicy.Options{
		Mode:            clearpolicy.ModeFromFlag(cfg.Mode.Mock),
		Store:           st,
		Backend:         backend.NewClient(cfg.Mode.APIBaseURL, nil),
		IndexingDelay:   cfg.Simulation.IndexingDelay,
		AuditMaxEntries: cfg.Simulation.AuditMaxEntries,
	})
	return svc, func() {
		_ = svc.Close()
		if err := closeStore(); err != nil {
			logger.Warnf("closing store: %v", err)
		}
	}, nil
}

// persistentStore points the CLI at sqlite when STORE_BACKEND is unset. Each
// invocation is its own process, so memory and none would always read empty.
func persistentStore(cfg *config.Config, explicit string) error {
	if strings.TrimSpace(explicit) == "" {
		cfg.Store.Backend = "sqlite"
		return nil
	}
	switch cfg.Store.Backend {
	case "memory", "none":
		return fmt.Errorf("clearpolicyctl needs a persistent store, STORE_BACKEND=%s keeps nothing between runs; use sqlite, redis or mongo", cfg.Store.Backend)
	}
	return nil
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "clearpolicyctl",
		Short:        "Inspect ClearPolicy policies and the question audit log",
		SilenceUsage: true,
	}
	root.AddCommand(newPoliciesCmd(open), newAskCmd(open), newAuditCmd(open))
	return root
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPoliciesCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{Use: "policies", Short: "Policy records"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every policy record as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, done, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			list, err := svc.ListPolicies(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), list)
		},
	})
	return cmd
}

func newAskCmd(open opener) *cobra.Command {
	var jurisdiction string
	var policyIDs []string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and record it in the audit log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is required")
			}
			if strings.TrimSpace(jurisdiction) == "" {
				jurisdiction = qa.DefaultJurisdiction()
			}
			svc, done, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			e, err := svc.AskAndRecord(cmd.Context(), question, jurisdiction, policyIDs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), e)
		},
	}
	cmd.Flags().StringVarP(&jurisdiction, "jurisdiction", "j", "", "jurisdiction label (default "+qa.DefaultJurisdiction()+")")
	cmd.Flags().StringSliceVarP(&policyIDs, "policy", "p", nil, "policy ids to ask against")
	return cmd
}

func newAuditCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Question audit log"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the retained audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, done, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return writeJSON(cmd.OutOrStdout(), svc.AuditHistory(cmd.Context()))
		},
	})

	var dir string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the audit log to clearpolicy-audit-<date>.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, done, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			out, err := svc.ExportAudit(cmd.Context())
			if err != nil {
				return err
			}
			path := filepath.Join(dir, audit.ExportFilename(svc.Now()))
			if err := os.WriteFile(path, out, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	export.Flags().StringVarP(&dir, "dir", "d", ".", "directory to write the export into")
	cmd.AddCommand(export)
	return cmd
}
