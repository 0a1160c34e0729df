package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/specdeck/specdeck/internal/spec"
)

func validDoc(t *testing.T) *spec.Document {
	t.Helper()
	doc := &spec.Document{
		SpecID: "valid-2026-01-10-001",
		Metadata: spec.DocMetadata{
			Title:       "Valid",
			Status:      spec.DocActive,
			CreatedAt:   "2026-01-10T09:00:00Z",
			LastUpdated: "2026-01-10T09:00:00Z",
			Version:     "1.0",
		},
		Hierarchy: []*spec.Node{
			{
				ID: "phase-1", Type: spec.TypePhase, Title: "One", Status: spec.StatusPending, Metadata: spec.Metadata{},
				Children: []*spec.Node{
					{ID: "task-1-1", Type: spec.TypeTask, Title: "A", Status: spec.StatusPending, Metadata: spec.Metadata{}},
					{ID: "task-1-2", Type: spec.TypeTask, Title: "B", Status: spec.StatusPending, Metadata: spec.Metadata{},
						Dependencies: spec.Dependencies{BlockedBy: []string{"task-1-1"}}},
				},
			},
		},
	}
	doc.Relink()
	doc.RecomputeAll(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	return doc
}

func codes(issues []Issue) []string {
	var out []string
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func hasCode(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func TestValidDocumentHasNoIssues(t *testing.T) {
	doc := validDoc(t)
	issues := All(doc)
	if len(issues) != 0 {
		t.Errorf("valid document produced issues: %v", codes(issues))
	}
}

func TestStructural(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*spec.Document)
		code   string
	}{
		{"missing spec_id", func(d *spec.Document) { d.SpecID = "" }, "structural.missing_spec_id"},
		{"missing title", func(d *spec.Document) { d.Metadata.Title = "" }, "structural.missing_title"},
		{"bad doc status", func(d *spec.Document) { d.Metadata.Status = "weird" }, "structural.bad_doc_status"},
		{"bad version", func(d *spec.Document) { d.Metadata.Version = "9.0" }, "structural.bad_version"},
		{"bad node status", func(d *spec.Document) { d.Find("task-1-1").Status = "done" }, "structural.bad_status"},
		{"bad node type", func(d *spec.Document) { d.Find("task-1-1").Type = "item" }, "structural.bad_type"},
		{"journal bad entry type", func(d *spec.Document) {
			d.Journal = append(d.Journal, &spec.JournalEntry{EntryType: "musing", Timestamp: "2026-01-10T10:00:00Z", Title: "x"})
		}, "structural.bad_entry_type"},
		{"journal unknown task", func(d *spec.Document) {
			d.Journal = append(d.Journal, &spec.JournalEntry{EntryType: spec.EntryNote, Timestamp: "2026-01-10T10:00:00Z", Title: "x", TaskID: "task-9-9"})
		}, "structural.journal_task_missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc(t)
			tt.mutate(doc)
			if !hasCode(Structural(doc), tt.code) {
				t.Errorf("missing %s in %v", tt.code, codes(Structural(doc)))
			}
		})
	}
}

func TestHierarchy(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		doc := validDoc(t)
		phase := doc.Find("phase-1")
		phase.Children = append(phase.Children, &spec.Node{
			ID: "task-1-1", Type: spec.TypeTask, Title: "Dup", Status: spec.StatusPending, Metadata: spec.Metadata{},
		})
		if !hasCode(Hierarchy(doc), "hierarchy.duplicate_id") {
			t.Error("duplicate id not reported")
		}
	})

	t.Run("id shape", func(t *testing.T) {
		doc := validDoc(t)
		doc.Find("task-1-1").ID = "task-one"
		doc.Relink()
		if !hasCode(Hierarchy(doc), "hierarchy.id_shape") {
			t.Error("bad id shape not reported")
		}
	})

	t.Run("cycle", func(t *testing.T) {
		doc := validDoc(t)
		doc.Find("task-1-1").Dependencies.BlockedBy = []string{"task-1-2"}
		doc.Bump()
		issues := Hierarchy(doc)
		if !hasCode(issues, "hierarchy.cycle") {
			t.Fatalf("cycle not reported: %v", codes(issues))
		}
		for _, i := range issues {
			if i.Code == "hierarchy.cycle" && !strings.Contains(i.Message, "task-1-1 -> ") {
				t.Errorf("cycle message missing path: %q", i.Message)
			}
		}
	})

	t.Run("orphan dependency", func(t *testing.T) {
		doc := validDoc(t)
		doc.Find("task-1-2").Dependencies.BlockedBy = []string{"task-8-8"}
		doc.Bump()
		if !hasCode(Hierarchy(doc), "hierarchy.orphan_dependency") {
			t.Error("orphan dependency not reported")
		}
	})

	t.Run("verify tail", func(t *testing.T) {
		doc := validDoc(t)
		task := doc.Find("task-1-1")
		task.Children = []*spec.Node{
			{ID: "verify-1-1-1", Type: spec.TypeVerify, Title: "V", Status: spec.StatusPending, Metadata: spec.Metadata{}},
			{ID: "task-1-1-1", Type: spec.TypeTask, Title: "After", Status: spec.StatusPending, Metadata: spec.Metadata{}},
		}
		doc.Relink()
		if !hasCode(Hierarchy(doc), "hierarchy.verify_tail") {
			t.Error("task after verify tail not reported")
		}
	})

	t.Run("top level type", func(t *testing.T) {
		doc := validDoc(t)
		doc.Hierarchy = append(doc.Hierarchy, &spec.Node{
			ID: "task-3-1", Type: spec.TypeTask, Title: "Loose", Status: spec.StatusPending, Metadata: spec.Metadata{},
		})
		doc.Relink()
		if !hasCode(Hierarchy(doc), "hierarchy.top_level_type") {
			t.Error("top-level task not reported")
		}
	})
}

func TestCountsCheck(t *testing.T) {
	doc := validDoc(t)
	doc.Find("task-1-1").Status = spec.StatusCompleted // counts now stale

	issues := CountsCheck(doc)
	if !hasCode(issues, "counts.mismatch") {
		t.Errorf("stale counts not reported: %v", codes(issues))
	}
	for _, i := range issues {
		if !i.AutoFixable {
			t.Errorf("counts issue not flagged auto-fixable: %+v", i)
		}
	}
}

func TestMetadataCheck(t *testing.T) {
	t.Run("in_progress without started_at", func(t *testing.T) {
		doc := validDoc(t)
		doc.Find("task-1-1").Status = spec.StatusInProgress
		if !hasCode(MetadataCheck(doc), "metadata.timestamps") {
			t.Error("missing started_at not reported")
		}
	})

	t.Run("completed_at before started_at", func(t *testing.T) {
		doc := validDoc(t)
		n := doc.Find("task-1-1")
		n.Status = spec.StatusCompleted
		n.Metadata.SetTime(spec.MetaStartedAt, time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
		n.Metadata.SetTime(spec.MetaCompletedAt, time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC))
		if !hasCode(MetadataCheck(doc), "metadata.timestamps") {
			t.Error("inverted timestamps not reported")
		}
	})

	t.Run("unknown key is info only", func(t *testing.T) {
		doc := validDoc(t)
		doc.Find("task-1-1").Metadata["x_custom"] = "kept"
		issues := MetadataCheck(doc)
		if !hasCode(issues, "metadata.unknown_key") {
			t.Fatal("unknown key not reported")
		}
		for _, i := range issues {
			if i.Code == "metadata.unknown_key" && i.Severity != SeverityInfo {
				t.Errorf("unknown key severity = %s, want info", i.Severity)
			}
		}
		if HasErrors(issues) {
			t.Error("unknown key must not be an error")
		}
	})

	t.Run("bad task category", func(t *testing.T) {
		doc := validDoc(t)
		doc.Find("task-1-1").Metadata[spec.MetaTaskCategory] = "misc"
		if !hasCode(MetadataCheck(doc), "metadata.task_category") {
			t.Error("bad task_category not reported")
		}
	})

	t.Run("pending verify with result", func(t *testing.T) {
		doc := validDoc(t)
		phase := doc.Find("phase-1")
		phase.Children = append(phase.Children, &spec.Node{
			ID: "verify-1-1", Type: spec.TypeVerify, Title: "V", Status: spec.StatusPending,
			Metadata: spec.Metadata{},
		})
		doc.Relink()
		doc.Find("verify-1-1").Metadata.SetVerificationResult(spec.VerificationResult{
			Date: "2026-01-10T10:00:00Z", Status: spec.VerifyPassed,
		})
		if !hasCode(MetadataCheck(doc), "metadata.verification_result") {
			t.Error("pending verify with result not reported")
		}
	})
}

func TestFixIdempotent(t *testing.T) {
	doc := validDoc(t)
	doc.Find("task-1-1").Status = spec.StatusCompleted
	doc.Find("task-1-1").Metadata.SetTime(spec.MetaStartedAt, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	doc.Find("task-1-1").Metadata.SetTime(spec.MetaCompletedAt, time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC))

	now := time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC)
	first := Fix(doc, FixOptions{Now: now})
	if len(first.Applied) == 0 {
		t.Fatal("first fix applied nothing despite stale counts")
	}
	second := Fix(doc, FixOptions{Now: now})
	if len(second.Applied) != 0 {
		t.Errorf("second fix applied %v, want nothing", second.Applied)
	}
}

func TestFixReparent(t *testing.T) {
	doc := validDoc(t)
	doc.Hierarchy = append(doc.Hierarchy, &spec.Node{
		ID: "phase-2", Type: spec.TypePhase, Title: "Two", Status: spec.StatusPending, Metadata: spec.Metadata{},
		Children: []*spec.Node{
			// ID names phase-1 but sits under phase-2.
			{ID: "task-1-3", Type: spec.TypeTask, Title: "Misplaced", Status: spec.StatusPending, Metadata: spec.Metadata{}},
		},
	})
	doc.Relink()
	doc.RecomputeAll(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	now := time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC)

	preview := Fix(doc, FixOptions{Now: now})
	if doc.Find("task-1-3").Phase().ID != "phase-2" {
		t.Fatal("preview moved the node without ApplyReparent")
	}
	warned := false
	for _, w := range preview.Warnings {
		if w.Code == "hierarchy.reparent" {
			warned = true
		}
	}
	if !warned {
		t.Error("misplacement not warned about")
	}

	applied := Fix(doc, FixOptions{Now: now, ApplyReparent: true})
	found := false
	for _, a := range applied.Applied {
		if a == "hierarchy.reparent" {
			found = true
		}
	}
	if !found {
		t.Errorf("reparent not applied: %v", applied.Applied)
	}
	if got := doc.Find("task-1-3").Phase().ID; got != "phase-1" {
		t.Errorf("task-1-3 now under %s, want phase-1", got)
	}
}
