package specdeck_test

import (
	"testing"

	specdeck "github.com/specdeck/specdeck"
)

const facadeDoc = `{
  "spec_id": "facade-demo-2026-01-10-001",
  "metadata": {
    "title": "Facade demo",
    "created_at": "2026-01-10T09:00:00Z",
    "last_updated": "2026-01-10T09:00:00Z",
    "status": "active"
  },
  "hierarchy": [
    {
      "id": "phase-1",
      "type": "phase",
      "title": "Build",
      "status": "pending",
      "metadata": {},
      "children": [
        {
          "id": "task-1-1",
          "type": "task",
          "title": "First",
          "status": "completed",
          "metadata": {},
          "children": [],
          "dependencies": {}
        },
        {
          "id": "task-1-2",
          "type": "task",
          "title": "Second",
          "status": "pending",
          "metadata": {},
          "children": [],
          "dependencies": {"blocked_by": ["task-1-1"]}
        }
      ],
      "dependencies": {}
    }
  ],
  "journal": [],
  "counts": {"total": 2, "completed": 1, "pending": 1, "in_progress": 0, "blocked": 0, "percent": 50}
}`

func TestNewStore(t *testing.T) {
	st := specdeck.NewStore(t.TempDir())
	if st == nil {
		t.Fatal("expected non-nil store")
	}
	specs, err := st.ListAll()
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(specs) != 0 {
		t.Errorf("expected empty store, got %d specs", len(specs))
	}
}

func TestParseDocumentAndNextTask(t *testing.T) {
	doc, err := specdeck.ParseDocument([]byte(facadeDoc))
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	if doc.SpecID != "facade-demo-2026-01-10-001" {
		t.Errorf("SpecID = %q", doc.SpecID)
	}

	d := specdeck.NextTask(doc, specdeck.Filters{})
	if d.TaskID != "task-1-2" {
		t.Errorf("NextTask picked %q, want task-1-2", d.TaskID)
	}
}

func TestGraphReadiness(t *testing.T) {
	doc, err := specdeck.ParseDocument([]byte(facadeDoc))
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	g := specdeck.NewGraph(doc)
	n := doc.Find("task-1-2")
	if n == nil {
		t.Fatal("task-1-2 not found")
	}
	if !g.IsReady(n) {
		t.Error("task-1-2 should be ready: its only dependency is completed")
	}
}

func TestConstants(t *testing.T) {
	if specdeck.StatusPending != "pending" {
		t.Errorf("StatusPending = %q, want %q", specdeck.StatusPending, "pending")
	}
	if specdeck.StatusInProgress != "in_progress" {
		t.Errorf("StatusInProgress = %q, want %q", specdeck.StatusInProgress, "in_progress")
	}
	if specdeck.StatusCompleted != "completed" {
		t.Errorf("StatusCompleted = %q, want %q", specdeck.StatusCompleted, "completed")
	}
	if specdeck.StatusBlocked != "blocked" {
		t.Errorf("StatusBlocked = %q, want %q", specdeck.StatusBlocked, "blocked")
	}

	if specdeck.TypePhase != "phase" {
		t.Errorf("TypePhase = %q, want %q", specdeck.TypePhase, "phase")
	}
	if specdeck.TypeTask != "task" {
		t.Errorf("TypeTask = %q, want %q", specdeck.TypeTask, "task")
	}
	if specdeck.TypeVerify != "verify" {
		t.Errorf("TypeVerify = %q, want %q", specdeck.TypeVerify, "verify")
	}

	if specdeck.BucketPending != "pending" {
		t.Errorf("BucketPending = %q, want %q", specdeck.BucketPending, "pending")
	}
	if specdeck.BucketArchived != "archived" {
		t.Errorf("BucketArchived = %q, want %q", specdeck.BucketArchived, "archived")
	}
}
