package review

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/txn"
)

func TestParseFullReport(t *testing.T) {
	report := `# Plan Review: auth-api

Intro text the parser must skip.

## Status Changes

- task-1-1: in_progress — picking this up now
- task-1-2: pending

## Completed Tasks

- task-2-1: handlers landed with tests

## Blocked Tasks

- task-2-2: waiting on the auth service contract

## Unblocked Tasks

- task-3-1: contract published

## Decisions

- [decision] Use sqlite for the cache: simpler operationally
- Keep the flat layout

## Verification Results

- verify-2-1: PASSED — all green
- verify-2-2: FAILED - flaky socket test

## Random Commentary

- this section is not recognized and skipped
`
	ops, err := Parse(report)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []txn.Op{
		txn.SetStatus{NodeID: "task-1-1", Status: spec.StatusInProgress, Note: "picking this up now"},
		txn.SetStatus{NodeID: "task-1-2", Status: spec.StatusPending},
		txn.CompleteTask{NodeID: "task-2-1", JournalTitle: "Completed in review", JournalContent: "handlers landed with tests"},
		txn.MarkBlocked{NodeID: "task-2-2", Reason: "waiting on the auth service contract", Type: "review"},
		txn.Unblock{NodeID: "task-3-1", Resolution: "contract published"},
		txn.AddJournal{Entry: spec.JournalEntry{EntryType: spec.EntryDecision, Title: "Use sqlite for the cache", Content: "simpler operationally"}},
		txn.AddJournal{Entry: spec.JournalEntry{EntryType: spec.EntryDecision, Title: "Keep the flat layout"}},
		txn.AddVerification{VerifyID: "verify-2-1", Result: spec.VerificationResult{Status: spec.VerifyPassed, Notes: "all green"}},
		txn.AddVerification{VerifyID: "verify-2-2", Result: spec.VerificationResult{Status: spec.VerifyFailed, Notes: "flaky socket test"}},
	}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Errorf("ops (-want +got):\n%s", diff)
	}
}

func TestParseJournalSectionDefaultsToNote(t *testing.T) {
	ops, err := Parse("## Journal\n\n- Observed slow CI: runner queue backed up\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	aj, ok := ops[0].(txn.AddJournal)
	if !ok || aj.Entry.EntryType != spec.EntryNote {
		t.Errorf("op = %+v, want note entry", ops[0])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		report string
	}{
		{"empty report", "# Review\n\nNothing actionable here.\n"},
		{"unparsable status bullet", "## Status Changes\n\n- just words without a task id\n"},
		{"unknown status", "## Status Changes\n\n- task-1-1: finished\n"},
		{"unknown entry type", "## Decisions\n\n- [musing] This seems fine\n"},
		{"bad verify status", "## Verification Results\n\n- verify-1-1: MAYBE\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.report); !spec.IsKind(err, spec.KindUser) {
				t.Errorf("error = %v, want UserError", err)
			}
		})
	}
}

func TestParseIgnoresDeepHeadings(t *testing.T) {
	report := `## Status Changes

### sub-heading inside the section

- task-1-1: completed
`
	ops, err := Parse(report)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(ops) != 1 {
		t.Errorf("got %d ops, want 1", len(ops))
	}
}
