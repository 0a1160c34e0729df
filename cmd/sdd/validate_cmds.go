package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/specdeck/specdeck/internal/debug"
	"github.com/specdeck/specdeck/internal/review"
	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/store"
	"github.com/specdeck/specdeck/internal/ui"
	"github.com/specdeck/specdeck/internal/validate"
)

// resolveSpec accepts either a spec ID or a direct path to a spec
// file.
func resolveSpec(st *store.Store, arg string) (*spec.Document, string, error) {
	if strings.HasSuffix(arg, ".json") {
		doc, err := st.LoadFile(arg)
		return doc, arg, err
	}
	path, _, warning, err := st.Locate(arg)
	if err != nil {
		return nil, "", err
	}
	if warning != "" {
		debug.Logf("cli: %s", warning)
	}
	doc, err := st.LoadFile(path)
	return doc, path, err
}

var validateWatch bool

var validateCmd = &cobra.Command{
	Use:     "validate <spec_id|spec_file>",
	GroupID: "validation",
	Short:   "Validate a spec document",
	Long: `Run all validators: structural fields, hierarchy shape, dependency
cycles, counts and metadata. Exits 1 when any error-severity issue is
found. With --watch, re-validates whenever the file changes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		if validateWatch {
			return watchValidate(st, args[0])
		}
		return validateOnce(st, args[0])
	},
}

func validateOnce(st *store.Store, arg string) error {
	doc, _, err := resolveSpec(st, arg)
	if err != nil {
		return err
	}
	issues := validate.All(doc)
	outputResult(map[string]any{
		"spec_id": doc.SpecID,
		"issues":  issues,
		"valid":   !validate.HasErrors(issues),
	}, func() { printIssues(doc.SpecID, issues) })
	if validate.HasErrors(issues) {
		return spec.E(spec.KindValidationFailed, "%s has validation errors", doc.SpecID).
			WithDetails(map[string]any{"spec_id": doc.SpecID})
	}
	return nil
}

func printIssues(specID string, issues []validate.Issue) {
	port := uiPort()
	if len(issues) == 0 {
		port.Print(ui.ResultLine{Text: specID + " is valid."})
		return
	}
	for _, issue := range issues {
		switch issue.Severity {
		case validate.SeverityError:
			port.Print(ui.ErrorLine{Text: issue.String()})
		case validate.SeverityWarning:
			port.Print(ui.Warning{Text: issue.String()})
		default:
			port.Print(ui.ResultLine{Text: issue.String()})
		}
	}
	counts := validate.CountBySeverity(issues)
	port.Print(ui.ResultLine{Text: fmt.Sprintf("%d errors, %d warnings, %d info",
		counts[validate.SeverityError], counts[validate.SeverityWarning], counts[validate.SeverityInfo])})
}

// watchValidate re-runs validation on every write to the spec file.
// Events are debounced because editors produce bursts of writes.
func watchValidate(st *store.Store, arg string) error {
	doc, path, err := resolveSpec(st, arg)
	if err != nil {
		return err
	}
	printIssues(doc.SpecID, validate.All(doc))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return spec.Wrap(spec.KindIO, err, "starting file watcher")
	}
	defer watcher.Close()
	// Watch the directory: atomic saves replace the file, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return spec.Wrap(spec.KindIO, err, "watching %s", filepath.Dir(path))
	}

	port := uiPort()
	port.Print(ui.ResultLine{Text: "Watching " + path + " (Ctrl-C to stop)"})

	var debounce <-chan time.Time
	for {
		select {
		case <-rootCtx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			debug.Logf("cli: watcher error: %v", err)
		case <-debounce:
			debounce = nil
			doc, err := st.LoadFile(path)
			if err != nil {
				port.Print(ui.ErrorLine{Text: err.Error()})
				continue
			}
			port.Print(ui.ResultLine{Text: "--- " + time.Now().Format("15:04:05")})
			printIssues(doc.SpecID, validate.All(doc))
		}
	}
}

var (
	fixDryRun        bool
	fixApplyReparent bool
)

var fixCmd = &cobra.Command{
	Use:     "fix <spec_id|spec_file>",
	GroupID: "validation",
	Short:   "Auto-repair counts, metadata and placement",
	Long: `Apply the auto-fixers: recalculate counts, backfill missing
timestamps, and (with --apply-reparent) move tasks whose ID names a
different phase. Running fix twice is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, path, err := resolveSpec(st, args[0])
		if err != nil {
			return err
		}
		result := validate.Fix(doc, validate.FixOptions{
			ApplyReparent: fixApplyReparent,
			Now:           nowUTC(),
		})
		if !fixDryRun && len(result.Applied) > 0 {
			lock, err := st.AcquireLock(path)
			if err != nil {
				return err
			}
			defer lock.Release()
			if err := st.SaveAt(path, doc, store.SaveOptions{Backup: true, LockHeld: true}); err != nil {
				return err
			}
		}
		outputResult(result, func() {
			port := uiPort()
			if len(result.Applied) == 0 {
				port.Print(ui.ResultLine{Text: "Nothing to fix."})
			}
			for _, a := range result.Applied {
				port.Print(ui.ResultLine{Text: "  ✓ " + a})
			}
			for _, w := range result.Warnings {
				port.Print(ui.Warning{Text: w.String()})
			}
			if fixDryRun && len(result.Applied) > 0 {
				port.Print(ui.ResultLine{Text: "Dry run: nothing written."})
			}
		})
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:     "report <spec_id|spec_file>",
	GroupID: "validation",
	Short:   "Write and show a validation report",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := resolveSpec(st, args[0])
		if err != nil {
			return err
		}
		issues := validate.All(doc)
		path, err := review.WriteValidationReport(st, doc, issues, nowUTC())
		if err != nil {
			return err
		}
		outputResult(map[string]any{
			"spec_id": doc.SpecID,
			"report":  path,
			"issues":  issues,
		}, func() {
			markdown := review.RenderValidationReport(doc, issues, nowUTC())
			rendered, _ := review.RenderMarkdown(markdown, noColor || !ui.IsTerminal(), ui.GetWidth())
			fmt.Print(rendered)
			uiPort().Print(ui.ResultLine{Text: "Report written to " + path})
		})
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats <spec_id|spec_file>",
	GroupID: "validation",
	Short:   "Show document statistics",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := resolveSpec(st, args[0])
		if err != nil {
			return err
		}
		stats := collectStats(doc)
		outputResult(stats, func() {
			port := uiPort()
			port.Print(ui.ResultLine{Text: fmt.Sprintf("%s: %d phases, %d tasks, %d verify steps",
				doc.SpecID, stats.Phases, stats.Tasks, stats.VerifySteps)})
			port.Print(ui.ResultLine{Text: fmt.Sprintf("Journal entries: %d  Dependencies: %d hard, %d soft",
				stats.JournalEntries, stats.HardDeps, stats.SoftDeps)})
			if stats.EstimatedHours > 0 {
				port.Print(ui.ResultLine{Text: fmt.Sprintf("Estimated: %.1fh  Actual: %.1fh", stats.EstimatedHours, stats.ActualHours)})
			}
		})
		return nil
	},
}

type docStats struct {
	SpecID         string  `json:"spec_id"`
	Phases         int     `json:"phases"`
	Groups         int     `json:"groups"`
	Tasks          int     `json:"tasks"`
	VerifySteps    int     `json:"verify_steps"`
	JournalEntries int     `json:"journal_entries"`
	HardDeps       int     `json:"hard_deps"`
	SoftDeps       int     `json:"soft_deps"`
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
	ActualHours    float64 `json:"actual_hours,omitempty"`
	MaxDepth       int     `json:"max_depth"`
}

func collectStats(doc *spec.Document) docStats {
	s := docStats{SpecID: doc.SpecID, JournalEntries: len(doc.Journal)}
	doc.Walk(func(n *spec.Node) bool {
		switch n.Type {
		case spec.TypePhase:
			s.Phases++
		case spec.TypeGroup:
			s.Groups++
		case spec.TypeTask:
			s.Tasks++
		case spec.TypeVerify:
			s.VerifySteps++
		}
		s.HardDeps += len(n.Dependencies.BlockedBy)
		s.SoftDeps += len(n.Dependencies.SoftDepends)
		if h, ok := n.Metadata.GetFloat(spec.MetaEstimatedHours); ok {
			s.EstimatedHours += h
		}
		if h, ok := n.Metadata.GetFloat(spec.MetaActualHours); ok {
			s.ActualHours += h
		}
		if d := n.Depth() + 1; d > s.MaxDepth {
			s.MaxDepth = d
		}
		return true
	})
	return s
}

func init() {
	validateCmd.Flags().BoolVar(&validateWatch, "watch", false, "Re-validate on file changes")

	fixCmd.Flags().BoolVar(&fixDryRun, "dry-run", false, "Show fixes without writing")
	fixCmd.Flags().BoolVar(&fixApplyReparent, "apply-reparent", false, "Also move misplaced tasks to the phase their ID names")

	rootCmd.AddCommand(validateCmd, fixCmd, reportCmd, statsCmd)
}
