package spec

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func buildTree(t *testing.T) *Document {
	t.Helper()
	doc := &Document{
		SpecID: "tree-2026-01-10-001",
		Metadata: DocMetadata{
			Title:  "Tree",
			Status: DocActive,
		},
		Hierarchy: []*Node{
			{
				ID: "phase-1", Type: TypePhase, Title: "One", Status: StatusPending, Metadata: Metadata{},
				Children: []*Node{
					{ID: "task-1-1", Type: TypeTask, Title: "A", Status: StatusPending, Metadata: Metadata{}},
					{ID: "task-1-2", Type: TypeTask, Title: "B", Status: StatusPending, Metadata: Metadata{}},
				},
			},
			{
				ID: "phase-2", Type: TypePhase, Title: "Two", Status: StatusPending, Metadata: Metadata{},
				Children: []*Node{
					{ID: "task-2-1", Type: TypeTask, Title: "C", Status: StatusPending, Metadata: Metadata{}},
				},
			},
		},
	}
	doc.Relink()
	doc.RecomputeAll(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	return doc
}

func TestPropagateCounts(t *testing.T) {
	doc := buildTree(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

	leaf := doc.Find("task-1-1")
	leaf.Status = StatusCompleted
	doc.PropagateFrom(leaf, now)

	phase := doc.Find("phase-1")
	want := Counts{Total: 2, Completed: 1, Pending: 1, Percent: 50}
	if diff := cmp.Diff(want, *phase.Counts); diff != "" {
		t.Errorf("phase counts (-want +got):\n%s", diff)
	}
	docWant := Counts{Total: 3, Completed: 1, Pending: 2, Percent: 33}
	if diff := cmp.Diff(docWant, doc.Counts); diff != "" {
		t.Errorf("doc counts (-want +got):\n%s", diff)
	}
}

func TestDerivedStatusTransitions(t *testing.T) {
	doc := buildTree(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	phase := doc.Find("phase-1")

	leaf := doc.Find("task-1-1")
	leaf.Status = StatusInProgress
	doc.PropagateFrom(leaf, now)
	if phase.Status != StatusInProgress {
		t.Errorf("phase after one in_progress child = %s, want in_progress", phase.Status)
	}

	leaf.Status = StatusCompleted
	doc.PropagateFrom(leaf, now)
	if phase.Status != StatusInProgress {
		t.Errorf("phase after one completed of two = %s, want in_progress", phase.Status)
	}

	other := doc.Find("task-1-2")
	other.Status = StatusCompleted
	events := doc.PropagateFrom(other, now)
	if phase.Status != StatusCompleted {
		t.Errorf("phase after all children completed = %s, want completed", phase.Status)
	}

	var auto []string
	for _, ev := range events {
		if ev.AutoCompletion() {
			auto = append(auto, ev.NodeID)
		}
	}
	if diff := cmp.Diff([]string{"phase-1"}, auto); diff != "" {
		t.Errorf("auto-completion events (-want +got):\n%s", diff)
	}

	if _, ok := phase.Metadata.GetTime(MetaCompletedAt); !ok {
		t.Error("completed phase missing completed_at timestamp")
	}
}

func TestExplicitBlockIsNotOverwritten(t *testing.T) {
	doc := buildTree(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

	phase := doc.Find("phase-1")
	phase.Status = StatusBlocked

	leaf := doc.Find("task-1-1")
	leaf.Status = StatusCompleted
	doc.PropagateFrom(leaf, now)

	if phase.Status != StatusBlocked {
		t.Errorf("explicitly blocked phase was rederived to %s", phase.Status)
	}
}

func TestRecomputeAllIdempotent(t *testing.T) {
	doc := buildTree(t)
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	doc.Find("task-1-1").Status = StatusCompleted
	doc.Find("task-2-1").Status = StatusBlocked

	doc.RecomputeAll(now)
	first, err := doc.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	events := doc.RecomputeAll(now)
	second, err := doc.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("second RecomputeAll produced %d events, want 0", len(events))
	}
	if string(first) != string(second) {
		t.Error("second RecomputeAll changed the document")
	}
}

func TestForLeaf(t *testing.T) {
	tests := []struct {
		status Status
		want   Counts
	}{
		{StatusCompleted, Counts{Total: 1, Completed: 1, Percent: 100}},
		{StatusPending, Counts{Total: 1, Pending: 1}},
		{StatusInProgress, Counts{Total: 1, InProgress: 1}},
		{StatusBlocked, Counts{Total: 1, Blocked: 1}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ForLeaf(tt.status)); diff != "" {
			t.Errorf("ForLeaf(%s) (-want +got):\n%s", tt.status, diff)
		}
	}
}
