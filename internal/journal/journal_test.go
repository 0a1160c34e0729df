package journal

import (
	"testing"
	"time"

	"github.com/specdeck/specdeck/internal/spec"
)

func testDoc(t *testing.T) *spec.Document {
	t.Helper()
	doc := &spec.Document{
		SpecID:   "journal-2026-01-10-001",
		Metadata: spec.DocMetadata{Title: "Journal", Status: spec.DocActive},
		Hierarchy: []*spec.Node{
			{
				ID: "phase-1", Type: spec.TypePhase, Title: "One", Status: spec.StatusPending, Metadata: spec.Metadata{},
				Children: []*spec.Node{
					{ID: "task-1-1", Type: spec.TypeTask, Title: "Work", Status: spec.StatusCompleted, Metadata: spec.Metadata{}},
					{
						ID: "verify-1-1", Type: spec.TypeVerify, Title: "Check", Status: spec.StatusPending,
						Metadata: spec.Metadata{spec.MetaCommand: "true"},
					},
				},
			},
		},
	}
	doc.Relink()
	doc.RecomputeAll(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	return doc
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	doc := testDoc(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

	e, added := Append(doc, &spec.JournalEntry{EntryType: spec.EntryNote, Title: "First"}, now)
	if !added {
		t.Fatal("Append reported duplicate for a fresh entry")
	}
	if e.ID == "" {
		t.Error("entry has no ID")
	}
	if e.Time().IsZero() {
		t.Errorf("entry timestamp unparseable: %q", e.Timestamp)
	}
}

func TestAppendMonotonicAgainstClockSkew(t *testing.T) {
	doc := testDoc(t)
	late := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	early := time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC)

	first, _ := Append(doc, &spec.JournalEntry{EntryType: spec.EntryNote, Title: "Late"}, late)
	second, _ := Append(doc, &spec.JournalEntry{EntryType: spec.EntryNote, Title: "Early clock"}, early)

	if !second.Time().After(first.Time()) {
		t.Errorf("journal went backward: %s then %s", first.Timestamp, second.Timestamp)
	}
}

func TestAppendDeduplicatesSameSecond(t *testing.T) {
	doc := testDoc(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

	entry := spec.JournalEntry{EntryType: spec.EntryNote, Title: "Same", Content: "body", TaskID: "task-1-1"}
	e1 := entry
	e2 := entry
	if _, added := Append(doc, &e1, now); !added {
		t.Fatal("first append rejected")
	}
	if _, added := Append(doc, &e2, now); added {
		t.Error("identical entry in the same second was not deduplicated")
	}
	if len(doc.Journal) != 1 {
		t.Errorf("journal has %d entries, want 1", len(doc.Journal))
	}

	e3 := entry
	if _, added := Append(doc, &e3, now.Add(2*time.Second)); !added {
		t.Error("same content later should append")
	}
}

func TestApplyResultPassed(t *testing.T) {
	doc := testDoc(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	verify := doc.Find("verify-1-1")

	events, err := ApplyResult(doc, verify, spec.VerificationResult{Status: spec.VerifyPassed, Notes: "all green"}, now)
	if err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}
	if verify.Status != spec.StatusCompleted {
		t.Errorf("verify status = %s, want completed", verify.Status)
	}
	vr, ok := verify.Metadata.VerificationResult()
	if !ok {
		t.Fatal("verification_result not recorded")
	}
	if vr.Date == "" {
		t.Error("result date not defaulted")
	}
	// task-1-1 and verify-1-1 both done: the phase auto-completes.
	found := false
	for _, ev := range events {
		if ev.NodeID == "phase-1" && ev.AutoCompletion() {
			found = true
		}
	}
	if !found {
		t.Error("phase did not auto-complete after final verify passed")
	}
	if len(doc.Journal) == 0 || doc.Journal[len(doc.Journal)-1].EntryType != spec.EntryVerification {
		t.Error("verification entry not journaled")
	}
}

func TestApplyResultFailedBlocksByDefault(t *testing.T) {
	doc := testDoc(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	verify := doc.Find("verify-1-1")

	if _, err := ApplyResult(doc, verify, spec.VerificationResult{Status: spec.VerifyFailed, Notes: "red"}, now); err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}
	if verify.Status != spec.StatusBlocked {
		t.Errorf("failed verify status = %s, want blocked", verify.Status)
	}
}

func TestApplyResultFailedWithRevert(t *testing.T) {
	doc := testDoc(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	verify := doc.Find("verify-1-1")
	verify.Metadata[spec.MetaOnFailure] = map[string]any{"revert_status": "pending"}

	if _, err := ApplyResult(doc, verify, spec.VerificationResult{Status: spec.VerifyFailed}, now); err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}
	if verify.Status != spec.StatusPending {
		t.Errorf("reverted verify status = %s, want pending", verify.Status)
	}
	if _, ok := verify.Metadata.VerificationResult(); ok {
		t.Error("reverted verify should not carry a terminal result")
	}
}

func TestApplyResultPartial(t *testing.T) {
	doc := testDoc(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	verify := doc.Find("verify-1-1")

	if _, err := ApplyResult(doc, verify, spec.VerificationResult{Status: spec.VerifyPartial}, now); err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}
	if verify.Status != spec.StatusInProgress {
		t.Errorf("partial verify status = %s, want in_progress", verify.Status)
	}
}

func TestApplyResultRejectsNonVerify(t *testing.T) {
	doc := testDoc(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	task := doc.Find("task-1-1")

	if _, err := ApplyResult(doc, task, spec.VerificationResult{Status: spec.VerifyPassed}, now); err == nil {
		t.Error("ApplyResult accepted a task node")
	}
}
