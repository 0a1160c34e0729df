package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specdeck/specdeck/internal/graph"
	"github.com/specdeck/specdeck/internal/queries"
	"github.com/specdeck/specdeck/internal/schedule"
	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/txn"
	"github.com/specdeck/specdeck/internal/ui"
)

var (
	nextTaskPhase    string
	nextTaskCategory string
	nextTaskSkill    string
)

var nextTaskCmd = &cobra.Command{
	Use:     "next-task <spec_id>",
	GroupID: "tasks",
	Short:   "Pick the next actionable task",
	Long: `Pick the single most appropriate pending task: dependency-ready,
lowest phase first, preferring groups already underway and soft-order
continuations.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		decision := schedule.NextTask(doc, schedule.Filters{
			PhaseID:  nextTaskPhase,
			Category: nextTaskCategory,
			Skill:    nextTaskSkill,
		})
		outputResult(decision, func() { printDecision(doc, decision) })
		return nil
	},
}

func printDecision(doc *spec.Document, d schedule.Decision) {
	port := uiPort()
	switch d.Outcome {
	case schedule.OutcomeNext:
		n := doc.Find(d.TaskID)
		port.Print(ui.ResultLine{Text: fmt.Sprintf("Next: %s  %s", d.TaskID, n.Title)})
		port.Print(ui.ResultLine{Text: fmt.Sprintf("Rationale: %s", d.Rationale)})
	case schedule.OutcomeSpecComplete:
		port.Print(ui.ResultLine{Text: "All tasks completed."})
	case schedule.OutcomeAllBlocked:
		port.Print(ui.Warning{Text: fmt.Sprintf("No actionable task: %d blocked, %d in progress", d.Blocked, d.InProgress)})
	case schedule.OutcomeNothingMatches:
		port.Print(ui.Warning{Text: "Ready tasks exist but none match the filters."})
	}
}

var prepareTaskCmd = &cobra.Command{
	Use:     "prepare-task <spec_id> <task_id>",
	GroupID: "tasks",
	Short:   "Mark a task in_progress and show its context",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID, taskID := args[0], args[1]
		st := newStore()
		t := newTransactor(st)
		result, err := t.Apply(rootCtx, specID, []txn.Op{
			txn.SetStatus{NodeID: taskID, Status: spec.StatusInProgress},
		}, txnOptions(false))
		if err != nil {
			return err
		}
		doc, _, err := st.Load(specID)
		if err != nil {
			return err
		}
		detail, err := queries.TaskInfo(doc, graph.New(doc), taskID)
		if err != nil {
			return err
		}
		outputResult(map[string]any{"transaction": result, "task": detail}, func() {
			printTaskDetail(detail)
		})
		return nil
	},
}

var taskInfoCmd = &cobra.Command{
	Use:     "task-info <spec_id> <task_id>",
	GroupID: "tasks",
	Short:   "Show a task with dependencies and journal",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		detail, err := queries.TaskInfo(doc, graph.New(doc), args[1])
		if err != nil {
			return err
		}
		outputResult(detail, func() { printTaskDetail(detail) })
		return nil
	},
}

func printTaskDetail(d queries.TaskDetail) {
	port := uiPort()
	glyph := ui.StatusGlyph(string(d.Task.Status), ui.ShouldUseColor())
	port.Print(ui.ResultLine{Text: fmt.Sprintf("%s %s  %s [%s]", glyph, d.Task.ID, d.Task.Title, d.Task.Status)})
	if d.Task.Description != "" {
		port.Print(ui.ResultLine{Text: d.Task.Description})
	}
	if d.Task.FilePath != "" {
		port.Print(ui.ResultLine{Text: "File: " + d.Task.FilePath})
	}
	if len(d.Blockers) > 0 {
		var parts []string
		for _, b := range d.Blockers {
			parts = append(parts, fmt.Sprintf("%s (%s)", b.NodeID, b.Reason))
		}
		port.Print(ui.ResultLine{Text: "Blocked by: " + strings.Join(parts, ", ")})
	}
	if len(d.SoftDepends) > 0 {
		port.Print(ui.ResultLine{Text: "Soft depends: " + strings.Join(d.SoftDepends, ", ")})
	}
	if len(d.Dependents) > 0 {
		port.Print(ui.ResultLine{Text: "Unblocks: " + strings.Join(d.Dependents, ", ")})
	}
	if d.Verification != nil {
		port.Print(ui.ResultLine{Text: fmt.Sprintf("Verification: %s (%s)", d.Verification.Status, d.Verification.Date)})
	}
	for _, e := range d.Journal {
		port.Print(ui.ResultLine{Text: fmt.Sprintf("  [%s] %s %s", e.EntryType, e.Timestamp, e.Title)})
	}
}

var checkDepsCmd = &cobra.Command{
	Use:     "check-deps <spec_id> <task_id>",
	GroupID: "tasks",
	Short:   "Check whether a task is ready to start",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		n := doc.Find(args[1])
		if n == nil {
			return spec.E(spec.KindNotFound, "task %q not found in %s", args[1], args[0])
		}
		g := graph.New(doc)
		blockers := g.BlockersOf(n.ID)
		ready := n.Status == spec.StatusPending && g.IsReady(n)
		outputResult(map[string]any{
			"task_id":  n.ID,
			"ready":    ready,
			"status":   n.Status,
			"blockers": blockers,
		}, func() {
			port := uiPort()
			if ready {
				port.Print(ui.ResultLine{Text: fmt.Sprintf("%s is ready to start.", n.ID)})
				return
			}
			port.Print(ui.Warning{Text: fmt.Sprintf("%s is not ready (status %s).", n.ID, n.Status)})
			for _, b := range blockers {
				port.Print(ui.ResultLine{Text: fmt.Sprintf("  waiting on %s (%s)", b.NodeID, b.Reason)})
			}
		})
		return nil
	},
}

func init() {
	nextTaskCmd.Flags().StringVar(&nextTaskPhase, "phase", "", "Limit to one phase, e.g. phase-2")
	nextTaskCmd.Flags().StringVar(&nextTaskCategory, "category", "", "Limit to a task category")
	nextTaskCmd.Flags().StringVar(&nextTaskSkill, "skill", "", "Limit to a skill")

	rootCmd.AddCommand(nextTaskCmd, prepareTaskCmd, taskInfoCmd, checkDepsCmd)
}
