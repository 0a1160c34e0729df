package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/txn"
	"github.com/specdeck/specdeck/internal/ui"
	"github.com/specdeck/specdeck/internal/validate"
)

var updateStatusNote string

var updateStatusCmd = &cobra.Command{
	Use:     "update-status <spec_id> <task_id> <status>",
	GroupID: "tasks",
	Short:   "Set a task's status",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := spec.Status(args[2])
		if !status.IsValid() {
			return spec.E(spec.KindUser, "unknown status %q (expected pending, in_progress, completed or blocked)", args[2])
		}
		return applyAndReport(args[0], []txn.Op{
			txn.SetStatus{NodeID: args[1], Status: status, Note: updateStatusNote},
		}, false)
	},
}

var (
	completeTaskTitle   string
	completeTaskContent string
)

var completeTaskCmd = &cobra.Command{
	Use:     "complete-task <spec_id> <task_id>",
	GroupID: "tasks",
	Short:   "Complete a task with a journal entry",
	Long: `Mark a task completed. A journal entry recording what was done is
required; ancestors whose children are now all complete are completed
and journaled automatically.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if completeTaskContent == "" {
			return spec.E(spec.KindUser, "--journal-content is required; describe what was done")
		}
		title := completeTaskTitle
		if title == "" {
			title = "Completed " + args[1]
		}
		return applyAndReport(args[0], []txn.Op{
			txn.CompleteTask{NodeID: args[1], JournalTitle: title, JournalContent: completeTaskContent},
		}, false)
	},
}

var (
	markBlockedReason string
	markBlockedType   string
	markBlockedTicket string
)

var markBlockedCmd = &cobra.Command{
	Use:     "mark-blocked <spec_id> <task_id>",
	GroupID: "tasks",
	Short:   "Mark a task blocked with a reason",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if markBlockedReason == "" {
			return spec.E(spec.KindUser, "--reason is required")
		}
		return applyAndReport(args[0], []txn.Op{
			txn.MarkBlocked{NodeID: args[1], Reason: markBlockedReason, Type: markBlockedType, Ticket: markBlockedTicket},
		}, false)
	},
}

var unblockResolution string

var unblockTaskCmd = &cobra.Command{
	Use:     "unblock-task <spec_id> <task_id>",
	GroupID: "tasks",
	Short:   "Unblock a task with a resolution note",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if unblockResolution == "" {
			return spec.E(spec.KindUser, "--resolution is required")
		}
		return applyAndReport(args[0], []txn.Op{
			txn.Unblock{NodeID: args[1], Resolution: unblockResolution},
		}, false)
	},
}

var (
	addJournalType    string
	addJournalTitle   string
	addJournalContent string
	addJournalTask    string
	addJournalAuthor  string
)

var addJournalCmd = &cobra.Command{
	Use:     "add-journal <spec_id>",
	GroupID: "tasks",
	Short:   "Append a journal entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entryType := spec.EntryType(addJournalType)
		if !entryType.IsValid() {
			return spec.E(spec.KindUser, "unknown entry type %q", addJournalType)
		}
		if addJournalTitle == "" {
			return spec.E(spec.KindUser, "--title is required")
		}
		return applyAndReport(args[0], []txn.Op{
			txn.AddJournal{Entry: spec.JournalEntry{
				EntryType: entryType,
				Title:     addJournalTitle,
				Content:   addJournalContent,
				TaskID:    addJournalTask,
				Author:    addJournalAuthor,
			}},
		}, false)
	},
}

var (
	addVerificationNotes  string
	addVerificationOutput string
	addVerificationRun    bool
)

var addVerificationCmd = &cobra.Command{
	Use:     "add-verification <spec_id> <verify_id> [PASSED|FAILED|PARTIAL]",
	GroupID: "tasks",
	Short:   "Record or execute a verification",
	Long: `Record a verification result for a verify node. With --run the
node's command is executed instead and its outcome recorded, honoring
the node's on_failure retry policy.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if addVerificationRun {
			return applyAndReport(args[0], []txn.Op{
				txn.ExecuteVerification{VerifyID: args[1]},
			}, false)
		}
		if len(args) < 3 {
			return spec.E(spec.KindUser, "a status (PASSED, FAILED or PARTIAL) is required unless --run is given")
		}
		if !spec.ValidVerificationStatus(args[2]) {
			return spec.E(spec.KindUser, "unknown verification status %q", args[2])
		}
		return applyAndReport(args[0], []txn.Op{
			txn.AddVerification{VerifyID: args[1], Result: spec.VerificationResult{
				Date:   nowUTC().Format(time.RFC3339),
				Status: args[2],
				Notes:  addVerificationNotes,
				Output: addVerificationOutput,
			}},
		}, false)
	},
}

// applyAndReport runs one transaction and prints its result.
func applyAndReport(specID string, ops []txn.Op, dryRun bool) error {
	st := newStore()
	t := newTransactor(st)
	result, err := t.Apply(rootCtx, specID, ops, txnOptions(dryRun))
	if err != nil {
		return err
	}
	outputResult(result, func() { printTxnResult(result) })
	return nil
}

func printTxnResult(r *txn.Result) {
	port := uiPort()
	for _, c := range r.Changes {
		if c.Noop {
			port.Print(ui.ResultLine{Text: fmt.Sprintf("  = %s (no change)", c.Summary)})
		} else {
			port.Print(ui.ResultLine{Text: fmt.Sprintf("  ✓ %s", c.Summary)})
		}
	}
	for _, ev := range r.Events {
		if ev.AutoCompletion() {
			port.Print(ui.ResultLine{Text: fmt.Sprintf("  ↳ %s auto-completed", ev.NodeID)})
		}
	}
	if r.DryRun {
		port.Print(ui.ResultLine{Text: fmt.Sprintf("Dry run: %d ops would apply, %d no-ops.", r.OpsApplied, r.OpsNoop)})
	} else {
		port.Print(ui.ResultLine{Text: fmt.Sprintf("Applied %d ops (%d no-ops).", r.OpsApplied, r.OpsNoop)})
	}
	for _, issue := range r.Issues {
		if issue.Severity != validate.SeverityError {
			port.Print(ui.Warning{Text: issue.String()})
		}
	}
}

func init() {
	updateStatusCmd.Flags().StringVar(&updateStatusNote, "note", "", "Journal note for the change")

	completeTaskCmd.Flags().StringVar(&completeTaskTitle, "journal-title", "", "Journal entry title")
	completeTaskCmd.Flags().StringVar(&completeTaskContent, "journal-content", "", "What was done (required)")

	markBlockedCmd.Flags().StringVar(&markBlockedReason, "reason", "", "Why the task is blocked (required)")
	markBlockedCmd.Flags().StringVar(&markBlockedType, "type", "", "Blocker type, e.g. external, technical")
	markBlockedCmd.Flags().StringVar(&markBlockedTicket, "ticket", "", "Tracking ticket reference")

	unblockTaskCmd.Flags().StringVar(&unblockResolution, "resolution", "", "How the blocker was resolved (required)")

	addJournalCmd.Flags().StringVar(&addJournalType, "type", "note", "Entry type (decision, deviation, blocker, note)")
	addJournalCmd.Flags().StringVar(&addJournalTitle, "title", "", "Entry title (required)")
	addJournalCmd.Flags().StringVar(&addJournalContent, "content", "", "Entry content")
	addJournalCmd.Flags().StringVar(&addJournalTask, "task", "", "Related task ID")
	addJournalCmd.Flags().StringVar(&addJournalAuthor, "author", "", "Entry author")

	addVerificationCmd.Flags().StringVar(&addVerificationNotes, "notes", "", "Verification notes")
	addVerificationCmd.Flags().StringVar(&addVerificationOutput, "output", "", "Captured command output")
	addVerificationCmd.Flags().BoolVar(&addVerificationRun, "run", false, "Execute the verify command instead of recording a result")

	rootCmd.AddCommand(updateStatusCmd, completeTaskCmd, markBlockedCmd, unblockTaskCmd, addJournalCmd, addVerificationCmd)
}
