package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/specdeck/specdeck/internal/config"
	"github.com/specdeck/specdeck/internal/consult"
	"github.com/specdeck/specdeck/internal/debug"
	"github.com/specdeck/specdeck/internal/gitops"
	"github.com/specdeck/specdeck/internal/store"
	"github.com/specdeck/specdeck/internal/txn"
	"github.com/specdeck/specdeck/internal/ui"
)

// Global flags, bound in init and readable from every command.
var (
	jsonOutput bool
	quiet      bool
	verbose    bool
	noColor    bool
	debugFlag  bool
	specsDir   string
)

// rootCtx is cancelled on SIGINT/SIGTERM so consultations and
// transactions can unwind cleanly.
var rootCtx context.Context

var rootCmd = &cobra.Command{
	Use:   "sdd",
	Short: "Spec-driven development engine",
	Long: `sdd manages versioned spec documents: task hierarchies with
dependencies, progress tracking, an append-only journal, transactional
modifications and AI-assisted reviews.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debugFlag || os.Getenv("SDD_DEBUG") != "" {
			debug.Enable()
		}
		if err := config.Initialize(); err != nil {
			return err
		}
		if cmd.Flags().Changed("json") {
			config.Set("json", jsonOutput)
		}
		jsonOutput = config.GetBool("json")
		if noColor {
			os.Setenv("NO_COLOR", "1")
		}
		return nil
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	var cancel context.CancelFunc
	rootCtx, cancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.Execute(); err != nil {
		return renderError(err)
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&specsDir, "specs-dir", "", "Specs root directory (default ./specs)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "lifecycle", Title: "Spec lifecycle:"},
		&cobra.Group{ID: "tasks", Title: "Task discovery and progress:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
		&cobra.Group{ID: "validation", Title: "Validation:"},
		&cobra.Group{ID: "modify", Title: "Modification:"},
		&cobra.Group{ID: "review", Title: "Consultation:"},
		&cobra.Group{ID: "cache", Title: "Cache:"},
	)
}

// newStore builds the spec store from flags and config.
func newStore() *store.Store {
	dir := specsDir
	if dir == "" {
		dir = config.SpecsDir()
	}
	st := store.New(dir)
	if d := config.GetDuration("lock-timeout"); d > 0 {
		st.LockTimeout = d
	}
	if max := config.GetInt64("max-spec-file-size"); max > 0 {
		st.MaxFileSize = max
	}
	return st
}

// newTransactor wires the transactor with the shell verify runner and
// the git CLI port.
func newTransactor(st *store.Store) *txn.Transactor {
	t := txn.New(st)
	t.Runner = shellRunner{}
	if config.GetBool("git.enabled") {
		t.Git = gitops.CLI{}
	}
	return t
}

// txnOptions builds per-command transaction options.
func txnOptions(dryRun bool) txn.Options {
	return txn.Options{
		DryRun:   dryRun,
		Backup:   config.GetBool("backup-on-save"),
		RepoRoot: config.RepoRoot(),
	}
}

// uiPort picks the output port for the current invocation.
func uiPort() ui.Port {
	return ui.NewPort(os.Stdout, noColor || !ui.ShouldUseColor())
}

// openCache opens the consultation cache per config.
func openCache() (*consult.Cache, error) {
	cache, err := consult.OpenCache(config.CacheDir())
	if err != nil {
		return nil, err
	}
	if ttl := config.GetDuration("cache.ttl"); ttl > 0 {
		cache.TTL = ttl
	}
	if max := config.GetInt64("cache.max-bytes"); max > 0 {
		cache.MaxBytes = max
	}
	return cache, nil
}

// newOrchestrator wires consultation against the configured providers
// and cache.
func newOrchestrator(sub consult.Subscriber) (*consult.Orchestrator, *consult.Cache, error) {
	cfg, err := consult.LoadConfig(config.ProvidersFile())
	if err != nil {
		return nil, nil, err
	}
	cache, err := openCache()
	if err != nil {
		return nil, nil, err
	}
	return consult.NewOrchestrator(cfg, cache, sub), cache, nil
}

// nowUTC is the single clock read for command-level timestamps.
func nowUTC() time.Time {
	return time.Now().UTC()
}
