package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/specdeck/specdeck/internal/graph"
	"github.com/specdeck/specdeck/internal/queries"
	"github.com/specdeck/specdeck/internal/ui"
)

var progressCmd = &cobra.Command{
	Use:     "progress <spec_id>",
	GroupID: "inspect",
	Short:   "Show overall progress",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		summary := queries.Progress(doc)
		outputResult(summary, func() {
			port := uiPort()
			port.Print(ui.ResultLine{Text: fmt.Sprintf("%s  %d%% (%d/%d tasks)",
				summary.SpecID, summary.Percent, summary.ByStatus["completed"], summary.Total)})
			if summary.CurrentPhase != "" {
				port.Print(ui.ResultLine{Text: "Current phase: " + summary.CurrentPhase})
			}
			if summary.ByStatus["blocked"] > 0 {
				port.Print(ui.Warning{Text: fmt.Sprintf("%d tasks blocked", summary.ByStatus["blocked"])})
			}
		})
		return nil
	},
}

var statusReportCmd = &cobra.Command{
	Use:     "status-report <spec_id>",
	GroupID: "inspect",
	Short:   "Full status report: phases, blockers, ready work",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		report := queries.StatusReport(doc, graph.New(doc))
		outputResult(report, func() { printReport(report) })
		return nil
	},
}

func printReport(r queries.Report) {
	port := uiPort()
	port.Print(ui.ResultLine{Text: fmt.Sprintf("%s  %q  %d%%", r.Summary.SpecID, r.Summary.Title, r.Summary.Percent)})
	printPhaseTable(r.Phases)
	if len(r.Blocked) > 0 {
		rows := make([][]string, 0, len(r.Blocked))
		for _, b := range r.Blocked {
			rows = append(rows, []string{b.TaskID, b.Reason, b.Type, b.Since})
		}
		port.Print(ui.Table{Title: "Blocked", Headers: []string{"TASK", "REASON", "TYPE", "SINCE"}, Rows: rows})
	}
	if len(r.Ready) > 0 {
		var ids []string
		for _, t := range r.Ready {
			ids = append(ids, t.ID)
		}
		port.Print(ui.ResultLine{Text: "Ready: " + strings.Join(ids, ", ")})
	}
	for _, e := range r.RecentJournal {
		port.Print(ui.ResultLine{Text: fmt.Sprintf("  [%s] %s %s", e.EntryType, e.Timestamp, e.Title)})
	}
}

var listPhasesCmd = &cobra.Command{
	Use:     "list-phases <spec_id>",
	GroupID: "inspect",
	Short:   "List phases with counts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		phases := queries.ListPhases(doc)
		outputResult(phases, func() { printPhaseTable(phases) })
		return nil
	},
}

func printPhaseTable(phases []queries.PhaseInfo) {
	port := uiPort()
	rows := make([][]string, 0, len(phases))
	for _, p := range phases {
		rows = append(rows, []string{
			p.ID,
			p.Title,
			string(p.Status),
			fmt.Sprintf("%d/%d (%d%%)", p.Counts.Completed, p.Counts.Total, p.Counts.Percent),
		})
	}
	port.Print(ui.Table{Headers: []string{"PHASE", "TITLE", "STATUS", "PROGRESS"}, Rows: rows})
}

var (
	queryTasksStatus string
	queryTasksType   string
	queryTasksParent string
	queryTasksSkill  string
)

var queryTasksCmd = &cobra.Command{
	Use:     "query-tasks <spec_id>",
	GroupID: "inspect",
	Short:   "List tasks matching filters",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		tasks := queries.QueryTasks(doc, queries.TaskFilters{
			Status: queryTasksStatus,
			Type:   queryTasksType,
			Parent: queryTasksParent,
			Skill:  queryTasksSkill,
		})
		outputResult(tasks, func() {
			port := uiPort()
			if len(tasks) == 0 {
				port.Print(ui.ResultLine{Text: "No matching tasks."})
				return
			}
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{t.ID, string(t.Status), t.Category, t.Title})
			}
			port.Print(ui.Table{Headers: []string{"TASK", "STATUS", "CATEGORY", "TITLE"}, Rows: rows})
		})
		return nil
	},
}

var listBlockersSince string

var listBlockersCmd = &cobra.Command{
	Use:     "list-blockers <spec_id>",
	GroupID: "inspect",
	Short:   "List blocked tasks with reasons",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		blocked := queries.ListBlockers(doc)
		if listBlockersSince != "" {
			cutoff, err := queries.ParseSince(listBlockersSince, nowUTC())
			if err != nil {
				return err
			}
			filtered := blocked[:0]
			for _, b := range blocked {
				if b.Since != "" {
					if t, err := time.Parse(time.RFC3339, b.Since); err == nil && t.Before(cutoff) {
						continue
					}
				}
				filtered = append(filtered, b)
			}
			blocked = filtered
		}
		outputResult(blocked, func() {
			port := uiPort()
			if len(blocked) == 0 {
				port.Print(ui.ResultLine{Text: "No blocked tasks."})
				return
			}
			rows := make([][]string, 0, len(blocked))
			for _, b := range blocked {
				rows = append(rows, []string{b.TaskID, b.Reason, b.Type, b.Ticket, b.Since})
			}
			port.Print(ui.Table{Headers: []string{"TASK", "REASON", "TYPE", "TICKET", "SINCE"}, Rows: rows})
		})
		return nil
	},
}

var (
	journalSince string
	journalTask  string
)

var journalCmd = &cobra.Command{
	Use:     "journal <spec_id>",
	GroupID: "inspect",
	Short:   "List journal entries, oldest first",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		cutoff := time.Time{}
		if journalSince != "" {
			cutoff, err = queries.ParseSince(journalSince, nowUTC())
			if err != nil {
				return err
			}
		}
		entries := queries.JournalSince(doc, cutoff)
		if journalTask != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if e.TaskID == journalTask {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		outputResult(entries, func() {
			port := uiPort()
			if len(entries) == 0 {
				port.Print(ui.ResultLine{Text: "No journal entries."})
				return
			}
			for _, e := range entries {
				line := fmt.Sprintf("[%s] %s  %s", e.EntryType, e.Timestamp, e.Title)
				if e.TaskID != "" {
					line += "  (" + e.TaskID + ")"
				}
				port.Print(ui.ResultLine{Text: line})
			}
		})
		return nil
	},
}

var searchTasksLimit int

var searchTasksCmd = &cobra.Command{
	Use:     "search <spec_id> <query>",
	GroupID: "inspect",
	Short:   "Fuzzy-search tasks by ID or title",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		hits := queries.SearchTasks(doc, args[1], searchTasksLimit)
		outputResult(hits, func() {
			port := uiPort()
			if len(hits) == 0 {
				port.Print(ui.ResultLine{Text: "No matching tasks."})
				return
			}
			rows := make([][]string, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, []string{h.ID, string(h.Status), h.Title})
			}
			port.Print(ui.Table{Headers: []string{"TASK", "STATUS", "TITLE"}, Rows: rows})
		})
		return nil
	},
}

var analyzeDepsCmd = &cobra.Command{
	Use:     "analyze-deps <spec_id>",
	GroupID: "inspect",
	Short:   "Analyze the dependency graph",
	Long: `Report dependency cycles, orphaned references and bottleneck tasks
whose completion unblocks the most downstream work.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		g := graph.New(doc)
		cycles := g.Cycles()
		orphans := g.Orphans()
		bottlenecks := g.Bottlenecks(2)
		outputResult(map[string]any{
			"cycles":      cycles,
			"orphans":     orphans,
			"bottlenecks": bottlenecks,
		}, func() {
			port := uiPort()
			if len(cycles) == 0 && len(orphans) == 0 && len(bottlenecks) == 0 {
				port.Print(ui.ResultLine{Text: "Dependency graph is clean."})
				return
			}
			for _, cycle := range cycles {
				port.Print(ui.ErrorLine{Text: "Cycle: " + strings.Join(cycle, " → ")})
			}
			for _, o := range orphans {
				port.Print(ui.Warning{Text: fmt.Sprintf("%s references missing node %s", o.NodeID, o.MissingRef)})
			}
			for _, b := range bottlenecks {
				port.Print(ui.ResultLine{Text: fmt.Sprintf("Bottleneck: %s unblocks %d tasks", b.NodeID, b.Fanout)})
			}
		})
		return nil
	},
}

func init() {
	queryTasksCmd.Flags().StringVar(&queryTasksStatus, "status", "", "Filter by status")
	queryTasksCmd.Flags().StringVar(&queryTasksType, "type", "", "Filter by node type (task, verify)")
	queryTasksCmd.Flags().StringVar(&queryTasksParent, "parent", "", "Filter by parent node ID")
	queryTasksCmd.Flags().StringVar(&queryTasksSkill, "skill", "", "Filter by skill")

	listBlockersCmd.Flags().StringVar(&listBlockersSince, "since", "", "Only blockers since (RFC 3339, duration, or \"yesterday\")")

	searchTasksCmd.Flags().IntVar(&searchTasksLimit, "limit", 10, "Maximum results")

	journalCmd.Flags().StringVar(&journalSince, "since", "", "Only entries since (RFC 3339, duration, or \"yesterday\")")
	journalCmd.Flags().StringVar(&journalTask, "task", "", "Only entries for this node ID")

	rootCmd.AddCommand(progressCmd, statusReportCmd, listPhasesCmd, queryTasksCmd, listBlockersCmd, journalCmd, searchTasksCmd, analyzeDepsCmd)
}
