package spec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const sampleDoc = `{
  "spec_id": "user-auth-2026-01-10-001",
  "metadata": {
    "title": "User auth",
    "created_at": "2026-01-10T09:00:00Z",
    "last_updated": "2026-01-10T09:00:00Z",
    "status": "active",
    "version": "1.0",
    "custom_field": "preserved"
  },
  "hierarchy": [
    {
      "id": "phase-1",
      "type": "phase",
      "title": "Backend",
      "status": "in_progress",
      "metadata": {},
      "children": [
        {
          "id": "task-1-1",
          "type": "task",
          "title": "Schema",
          "status": "completed",
          "metadata": {"task_category": "implementation", "unknown_node_key": 42},
          "children": [],
          "dependencies": {}
        },
        {
          "id": "task-1-2",
          "type": "task",
          "title": "Handlers",
          "status": "pending",
          "metadata": {},
          "children": [],
          "dependencies": {"blocked_by": ["task-1-1"]},
          "vendor_extension": {"nested": true}
        }
      ],
      "dependencies": {},
      "counts": {"total": 2, "completed": 1, "pending": 1, "in_progress": 0, "blocked": 0, "percent": 50}
    }
  ],
  "journal": [
    {
      "id": "01JGX5Y0000000000000000000",
      "timestamp": "2026-01-10T10:00:00Z",
      "entry_type": "note",
      "title": "Kickoff",
      "content": "Started work"
    }
  ],
  "counts": {"total": 2, "completed": 1, "pending": 1, "in_progress": 0, "blocked": 0, "percent": 50},
  "x_plugin_data": {"anything": [1, 2, 3]}
}`

func TestParseLinksParents(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	task := doc.Find("task-1-1")
	if task == nil {
		t.Fatal("task-1-1 not found")
	}
	if task.Parent() == nil || task.Parent().ID != "phase-1" {
		t.Errorf("task-1-1 parent = %v, want phase-1", task.Parent())
	}
	if task.Phase().ID != "phase-1" {
		t.Errorf("Phase() = %s, want phase-1", task.Phase().ID)
	}
	if got := task.Depth(); got != 2 {
		t.Errorf("Depth() = %d, want 2", got)
	}
}

func TestRoundTripPreservesUnknownKeys(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	out, err := doc.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	var want, got map[string]any
	if err := json.Unmarshal([]byte(sampleDoc), &want); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("serialized output is not valid JSON: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip changed the document (-want +got):\n%s", diff)
	}
}

func TestSerializeIsStable(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	first, err := doc.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	second, err := doc.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("two serializations of the same document differ")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	clone, err := doc.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	clone.Find("task-1-2").Status = StatusCompleted
	if doc.Find("task-1-2").Status != StatusPending {
		t.Error("mutating the clone leaked into the original")
	}
}

func TestLeavesDocumentOrder(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	var ids []string
	for _, leaf := range doc.Leaves() {
		ids = append(ids, leaf.ID)
	}
	want := []string{"task-1-1", "task-1-2"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("Leaves order (-want +got):\n%s", diff)
	}
}

func TestValidSpecID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"user-auth-2026-08-25-001", true},
		{"a-2026-01-01-999", true},
		{"User-Auth-2026-08-25-001", false},
		{"user-auth-2026-08-25", false},
		{"user_auth-2026-08-25-001", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidSpecID(tt.id); got != tt.valid {
			t.Errorf("ValidSpecID(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}

func TestNewSpecID(t *testing.T) {
	now := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
	tests := []struct {
		title   string
		counter int
		want    string
	}{
		{"User Auth", 1, "user-auth-2026-08-25-001"},
		{"  API v2: tokens!  ", 12, "api-v2-tokens-2026-08-25-012"},
		{"???", 1, "spec-2026-08-25-001"},
	}
	for _, tt := range tests {
		got := NewSpecID(tt.title, now, tt.counter)
		if got != tt.want {
			t.Errorf("NewSpecID(%q, %d) = %q, want %q", tt.title, tt.counter, got, tt.want)
		}
		if !ValidSpecID(got) {
			t.Errorf("NewSpecID produced invalid ID %q", got)
		}
	}
}

func TestValidIDShape(t *testing.T) {
	tests := []struct {
		typ   NodeType
		id    string
		valid bool
	}{
		{TypePhase, "phase-1", true},
		{TypePhase, "phase-1-2", false},
		{TypeGroup, "group-1-2", true},
		{TypeTask, "task-1-2", true},
		{TypeTask, "task-1-2-3", true},
		{TypeTask, "task-1", false},
		{TypeVerify, "verify-2-1", true},
		{TypeVerify, "task-2-1", false},
	}
	for _, tt := range tests {
		if got := ValidIDShape(tt.typ, tt.id); got != tt.valid {
			t.Errorf("ValidIDShape(%s, %q) = %v, want %v", tt.typ, tt.id, got, tt.valid)
		}
	}
}

func TestPhaseNumber(t *testing.T) {
	tests := []struct {
		id   string
		want int
	}{
		{"phase-3", 3},
		{"task-2-5", 2},
		{"verify-10-1-2", 10},
		{"oddball", -1},
	}
	for _, tt := range tests {
		if got := PhaseNumber(tt.id); got != tt.want {
			t.Errorf("PhaseNumber(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}
