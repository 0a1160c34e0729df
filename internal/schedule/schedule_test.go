package schedule

import (
	"testing"
	"time"

	"github.com/specdeck/specdeck/internal/spec"
)

func docOf(t *testing.T, phases ...*spec.Node) *spec.Document {
	t.Helper()
	doc := &spec.Document{
		SpecID:    "sched-2026-01-10-001",
		Metadata:  spec.DocMetadata{Title: "Sched", Status: spec.DocActive},
		Hierarchy: phases,
	}
	doc.Relink()
	doc.RecomputeAll(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	return doc
}

func task(id, title string, status spec.Status) *spec.Node {
	return &spec.Node{ID: id, Type: spec.TypeTask, Title: title, Status: status, Metadata: spec.Metadata{}}
}

func phase(id, title string, children ...*spec.Node) *spec.Node {
	return &spec.Node{ID: id, Type: spec.TypePhase, Title: title, Status: spec.StatusPending, Metadata: spec.Metadata{}, Children: children}
}

func TestNextTaskLowestPhaseWins(t *testing.T) {
	doc := docOf(t,
		phase("phase-1", "One", task("task-1-1", "A", spec.StatusPending)),
		phase("phase-2", "Two", task("task-2-1", "B", spec.StatusPending)),
	)
	d := NextTask(doc, Filters{})
	if d.Outcome != OutcomeNext || d.TaskID != "task-1-1" {
		t.Errorf("decision = %+v, want task-1-1", d)
	}
	if d.Rationale != RationaleLowestPhase {
		t.Errorf("rationale = %q, want %q", d.Rationale, RationaleLowestPhase)
	}
}

func TestNextTaskDeterministic(t *testing.T) {
	doc := docOf(t,
		phase("phase-1", "One",
			task("task-1-1", "A", spec.StatusPending),
			task("task-1-2", "B", spec.StatusPending),
			task("task-1-3", "C", spec.StatusPending),
		),
	)
	first := NextTask(doc, Filters{})
	for i := 0; i < 10; i++ {
		if again := NextTask(doc, Filters{}); again != first {
			t.Fatalf("run %d: decision %+v differs from %+v", i, again, first)
		}
	}
	if first.TaskID != "task-1-1" || first.Rationale != RationaleLexicographic {
		t.Errorf("decision = %+v, want lexicographic task-1-1", first)
	}
}

func TestNextTaskSkipsUnreadyDependents(t *testing.T) {
	p := phase("phase-1", "One",
		task("task-1-1", "A", spec.StatusPending),
		task("task-1-2", "B", spec.StatusPending),
	)
	p.Children[1].Dependencies.BlockedBy = []string{"task-1-1"}
	doc := docOf(t, p)

	d := NextTask(doc, Filters{})
	if d.TaskID != "task-1-1" {
		t.Errorf("picked %q, want task-1-1 (task-1-2 is dep-blocked)", d.TaskID)
	}
	if d.Rationale != RationaleOnlyCandidate {
		t.Errorf("rationale = %q, want %q", d.Rationale, RationaleOnlyCandidate)
	}
}

func TestNextTaskActiveSiblingPreference(t *testing.T) {
	doc := docOf(t,
		phase("phase-1", "One",
			&spec.Node{
				ID: "group-1-1", Type: spec.TypeGroup, Title: "G1", Status: spec.StatusPending, Metadata: spec.Metadata{},
				Children: []*spec.Node{
					task("task-1-1-1", "A", spec.StatusPending),
				},
			},
			&spec.Node{
				ID: "group-1-2", Type: spec.TypeGroup, Title: "G2", Status: spec.StatusPending, Metadata: spec.Metadata{},
				Children: []*spec.Node{
					task("task-1-2-1", "B", spec.StatusInProgress),
					task("task-1-2-2", "C", spec.StatusPending),
				},
			},
		),
	)
	d := NextTask(doc, Filters{})
	if d.TaskID != "task-1-2-2" {
		t.Errorf("picked %q, want task-1-2-2 next to in-progress sibling", d.TaskID)
	}
	if d.Rationale != RationaleActiveSibling {
		t.Errorf("rationale = %q, want %q", d.Rationale, RationaleActiveSibling)
	}
}

func TestNextTaskSoftContinuation(t *testing.T) {
	p := phase("phase-1", "One",
		task("task-1-1", "Done", spec.StatusCompleted),
		task("task-1-2", "A", spec.StatusPending),
		task("task-1-3", "B", spec.StatusPending),
	)
	p.Children[2].Dependencies.SoftDepends = []string{"task-1-1"}
	doc := docOf(t, p)

	d := NextTask(doc, Filters{})
	if d.TaskID != "task-1-3" {
		t.Errorf("picked %q, want soft continuation task-1-3", d.TaskID)
	}
	if d.Rationale != RationaleContinuation {
		t.Errorf("rationale = %q, want %q", d.Rationale, RationaleContinuation)
	}
}

func TestVerifyGatedOnSiblings(t *testing.T) {
	doc := docOf(t,
		phase("phase-1", "One",
			task("task-1-1", "Work", spec.StatusPending),
			&spec.Node{ID: "verify-1-1", Type: spec.TypeVerify, Title: "Check", Status: spec.StatusPending,
				Metadata: spec.Metadata{spec.MetaCommand: "true"}},
		),
	)
	d := NextTask(doc, Filters{})
	if d.TaskID != "task-1-1" {
		t.Errorf("picked %q, verify must wait for its siblings", d.TaskID)
	}

	doc.Find("task-1-1").Status = spec.StatusCompleted
	doc.RecomputeAll(time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC))
	d = NextTask(doc, Filters{})
	if d.TaskID != "verify-1-1" {
		t.Errorf("picked %q, want verify-1-1 once work is done", d.TaskID)
	}
}

func TestFilters(t *testing.T) {
	p1 := phase("phase-1", "One", task("task-1-1", "A", spec.StatusPending))
	p1.Children[0].Metadata[spec.MetaTaskCategory] = "doc"
	p2 := phase("phase-2", "Two", task("task-2-1", "B", spec.StatusPending))
	p2.Children[0].Metadata[spec.MetaTaskCategory] = "implementation"
	p2.Children[0].Metadata[spec.MetaSkill] = "backend"
	doc := docOf(t, p1, p2)

	d := NextTask(doc, Filters{Category: "implementation"})
	if d.TaskID != "task-2-1" {
		t.Errorf("category filter picked %q, want task-2-1", d.TaskID)
	}
	d = NextTask(doc, Filters{PhaseID: "phase-2"})
	if d.TaskID != "task-2-1" {
		t.Errorf("phase filter picked %q, want task-2-1", d.TaskID)
	}
	d = NextTask(doc, Filters{Skill: "frontend"})
	if d.Outcome != OutcomeNothingMatches {
		t.Errorf("outcome = %s, want nothing_matches", d.Outcome)
	}
}

func TestTerminalOutcomes(t *testing.T) {
	complete := docOf(t,
		phase("phase-1", "One", task("task-1-1", "A", spec.StatusCompleted)),
	)
	if d := NextTask(complete, Filters{}); d.Outcome != OutcomeSpecComplete {
		t.Errorf("all-completed outcome = %s, want spec_complete", d.Outcome)
	}

	blocked := docOf(t,
		phase("phase-1", "One",
			task("task-1-1", "A", spec.StatusBlocked),
			task("task-1-2", "B", spec.StatusInProgress),
		),
	)
	d := NextTask(blocked, Filters{})
	if d.Outcome != OutcomeAllBlocked {
		t.Fatalf("outcome = %s, want all_blocked", d.Outcome)
	}
	if d.Blocked != 1 || d.InProgress != 1 {
		t.Errorf("blocked=%d in_progress=%d, want 1 and 1", d.Blocked, d.InProgress)
	}
}
