// Package validate implements the document validators and auto-fixers.
// Each validator is a pure function from a document to a list of
// issues; fixers mutate the document and are idempotent.
package validate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/specdeck/specdeck/internal/graph"
	"github.com/specdeck/specdeck/internal/spec"
)

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one finding from a validator.
type Issue struct {
	Severity    Severity `json:"severity"`
	Code        string   `json:"code"`
	Location    string   `json:"location"`
	Message     string   `json:"message"`
	AutoFixable bool     `json:"auto_fixable"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s at %s: %s", i.Severity, i.Code, i.Location, i.Message)
}

// HasErrors reports whether any issue is error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CountBySeverity tallies issues per severity.
func CountBySeverity(issues []Issue) map[Severity]int {
	out := map[Severity]int{}
	for _, i := range issues {
		out[i.Severity]++
	}
	return out
}

// Validator is one named validation pass.
type Validator func(doc *spec.Document) []Issue

// All runs every validator in order: structural, hierarchy, counts,
// metadata.
func All(doc *spec.Document) []Issue {
	var issues []Issue
	for _, v := range []Validator{Structural, Hierarchy, CountsCheck, MetadataCheck} {
		issues = append(issues, v(doc)...)
	}
	return issues
}

// Structural checks schema shape: required fields, enum values, and
// journal integrity.
func Structural(doc *spec.Document) []Issue {
	var issues []Issue
	if doc.SpecID == "" {
		issues = append(issues, Issue{
			Severity: SeverityError, Code: "structural.missing_spec_id",
			Location: "spec_id", Message: "spec_id is required",
		})
	} else if !spec.ValidSpecID(doc.SpecID) {
		issues = append(issues, Issue{
			Severity: SeverityWarning, Code: "structural.spec_id_shape",
			Location: "spec_id",
			Message:  fmt.Sprintf("spec_id %q does not match <slug>-<date>-<counter>", doc.SpecID),
		})
	}
	if doc.Metadata.Title == "" {
		issues = append(issues, Issue{
			Severity: SeverityError, Code: "structural.missing_title",
			Location: "metadata.title", Message: "metadata.title is required",
		})
	}
	if !doc.Metadata.Status.IsValid() {
		issues = append(issues, Issue{
			Severity: SeverityError, Code: "structural.bad_doc_status",
			Location: "metadata.status",
			Message:  fmt.Sprintf("unknown document status %q", doc.Metadata.Status),
		})
	}
	if err := spec.CheckReadVersion(doc.Metadata.Version); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError, Code: "structural.bad_version",
			Location: "metadata.version", Message: err.Error(),
		})
	}
	doc.Walk(func(n *spec.Node) bool {
		loc := nodeLoc(n)
		if n.ID == "" {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "structural.missing_id",
				Location: loc, Message: "node id is required",
			})
		}
		if !n.Type.IsValid() {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "structural.bad_type",
				Location: loc, Message: fmt.Sprintf("unknown node type %q", n.Type),
			})
		}
		if n.Title == "" {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "structural.missing_node_title",
				Location: loc, Message: "node title is required",
			})
		}
		if !n.Status.IsValid() {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "structural.bad_status",
				Location: loc, Message: fmt.Sprintf("unknown status %q", n.Status),
			})
		}
		return true
	})
	for i, e := range doc.Journal {
		loc := fmt.Sprintf("journal[%d]", i)
		if !e.EntryType.IsValid() {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "structural.bad_entry_type",
				Location: loc, Message: fmt.Sprintf("unknown entry type %q", e.EntryType),
			})
		}
		if e.Timestamp == "" || e.Time().IsZero() {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "structural.bad_timestamp",
				Location: loc, Message: fmt.Sprintf("unparseable timestamp %q", e.Timestamp),
			})
		}
		if e.TaskID != "" && doc.Find(e.TaskID) == nil {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "structural.journal_task_missing",
				Location: loc, Message: fmt.Sprintf("journal entry references unknown task %q", e.TaskID),
			})
		}
	}
	return issues
}

// maxDepth is the deepest legal nesting of the hierarchy.
const maxDepth = 6

// Hierarchy checks ID uniqueness and shape, dependency integrity,
// cycles, attachment rules, and nesting depth.
func Hierarchy(doc *spec.Document) []Issue {
	var issues []Issue
	seen := map[string]string{}
	doc.Walk(func(n *spec.Node) bool {
		loc := nodeLoc(n)
		if prev, dup := seen[n.ID]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "hierarchy.duplicate_id",
				Location: loc, Message: fmt.Sprintf("id %q already used at %s", n.ID, prev),
			})
		} else {
			seen[n.ID] = loc
		}
		if n.Type.IsValid() && n.ID != "" && !spec.ValidIDShape(n.Type, n.ID) {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "hierarchy.id_shape",
				Location: loc,
				Message:  fmt.Sprintf("id %q does not match the %s shape", n.ID, n.Type),
			})
		}
		if n.Depth() > maxDepth {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "hierarchy.too_deep",
				Location: loc, Message: fmt.Sprintf("nesting depth %d exceeds %d", n.Depth(), maxDepth),
			})
		}
		if parent := n.Parent(); parent != nil {
			if n.Type == spec.TypeVerify && parent.Type == spec.TypeGroup {
				issues = append(issues, Issue{
					Severity: SeverityError, Code: "hierarchy.verify_attachment",
					Location: loc,
					Message:  "verify nodes attach to tasks or phases, not groups",
				})
			}
		} else if n.Type != spec.TypePhase {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "hierarchy.top_level_type",
				Location: loc, Message: fmt.Sprintf("top-level nodes must be phases, got %s", n.Type),
			})
		}
		if n.Type == spec.TypeTask {
			issues = append(issues, verifyTailIssues(n)...)
		}
		return true
	})

	g := graph.New(doc)
	for _, o := range g.Orphans() {
		issues = append(issues, Issue{
			Severity: SeverityError, Code: "hierarchy.orphan_dependency",
			Location: o.NodeID,
			Message:  fmt.Sprintf("dependency on nonexistent node %q", o.MissingRef),
		})
	}
	for _, cycle := range g.Cycles() {
		issues = append(issues, Issue{
			Severity: SeverityError, Code: "hierarchy.cycle",
			Location: cycle[0],
			Message:  fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
		})
	}
	return issues
}

// verifyTailIssues enforces that a task's verify children form a
// dedicated tail: once a verify child appears, no task child may
// follow.
func verifyTailIssues(task *spec.Node) []Issue {
	var issues []Issue
	sawVerify := false
	for _, c := range task.Children {
		switch c.Type {
		case spec.TypeVerify:
			sawVerify = true
		case spec.TypeTask:
			if sawVerify {
				issues = append(issues, Issue{
					Severity: SeverityError, Code: "hierarchy.verify_tail",
					Location: nodeLoc(c),
					Message:  "task children may not follow verify children; verifies form a tail segment",
				})
			}
		}
	}
	return issues
}

// CountsCheck recomputes cached counts and derived statuses on a clone
// and reports mismatches. Both are auto-fixable, so severity is
// warning.
func CountsCheck(doc *spec.Document) []Issue {
	var issues []Issue
	clone, err := doc.Clone()
	if err != nil {
		return []Issue{{
			Severity: SeverityError, Code: "counts.clone_failed",
			Location: "counts", Message: err.Error(),
		}}
	}
	clone.RecomputeAll(time.Now())
	doc.Walk(func(n *spec.Node) bool {
		if n.IsLeaf() {
			return true
		}
		want := clone.Find(n.ID)
		if want == nil {
			return true
		}
		if want.Counts != nil && (n.Counts == nil || *n.Counts != *want.Counts) {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Code: "counts.mismatch",
				Location:    n.ID,
				Message:     fmt.Sprintf("cached counts disagree with aggregation (want %+v)", *want.Counts),
				AutoFixable: true,
			})
		}
		if n.Status != spec.StatusBlocked && n.Status != want.Status {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Code: "counts.derived_status",
				Location:    n.ID,
				Message:     fmt.Sprintf("status %s disagrees with derivation from children (want %s)", n.Status, want.Status),
				AutoFixable: true,
			})
		}
		return true
	})
	if doc.Counts != clone.Counts {
		issues = append(issues, Issue{
			Severity: SeverityWarning, Code: "counts.mismatch",
			Location:    "counts",
			Message:     fmt.Sprintf("document counts disagree with aggregation (want %+v)", clone.Counts),
			AutoFixable: true,
		})
	}
	return issues
}

// MetadataCheck enforces the verification-result, lifecycle-timestamp
// and journaling-flag rules. Unknown metadata keys are informational.
func MetadataCheck(doc *spec.Document) []Issue {
	var issues []Issue
	doc.Walk(func(n *spec.Node) bool {
		loc := nodeLoc(n)
		vr, hasVR := n.Metadata.VerificationResult()
		if n.Type == spec.TypeVerify {
			if n.Status == spec.StatusPending && hasVR {
				issues = append(issues, Issue{
					Severity: SeverityError, Code: "metadata.verification_result",
					Location: loc,
					Message:  "pending verify node carries a verification_result",
				})
			}
			if n.Status != spec.StatusPending && !hasVR {
				issues = append(issues, Issue{
					Severity: SeverityError, Code: "metadata.verification_result",
					Location: loc,
					Message:  fmt.Sprintf("%s verify node has no verification_result", n.Status),
				})
			}
			if hasVR && !spec.ValidVerificationStatus(vr.Status) {
				issues = append(issues, Issue{
					Severity: SeverityError, Code: "metadata.verification_status",
					Location: loc,
					Message:  fmt.Sprintf("unknown verification status %q", vr.Status),
				})
			}
		}
		if cat := n.Metadata.GetString(spec.MetaTaskCategory); cat != "" && !spec.ValidTaskCategory(cat) {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "metadata.task_category",
				Location: loc, Message: fmt.Sprintf("unknown task_category %q", cat),
			})
		}
		started, hasStarted := n.Metadata.GetTime(spec.MetaStartedAt)
		completed, hasCompleted := n.Metadata.GetTime(spec.MetaCompletedAt)
		switch n.Status {
		case spec.StatusInProgress:
			if !hasStarted {
				issues = append(issues, Issue{
					Severity: SeverityError, Code: "metadata.timestamps",
					Location: loc, Message: "in_progress node has no started_at",
				})
			}
		case spec.StatusCompleted:
			if !hasCompleted {
				issues = append(issues, Issue{
					Severity: SeverityError, Code: "metadata.timestamps",
					Location: loc, Message: "completed node has no completed_at",
				})
			}
		}
		if hasStarted && hasCompleted && completed.Before(started) {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "metadata.timestamps",
				Location: loc,
				Message:  fmt.Sprintf("completed_at %s precedes started_at %s", completed.Format(time.RFC3339), started.Format(time.RFC3339)),
			})
		}
		issues = append(issues, unknownKeyIssues(n)...)
		return true
	})
	issues = append(issues, journalingFlagIssues(doc)...)
	return issues
}

var recognizedMetaKeys = map[string]bool{
	spec.MetaFilePath: true, spec.MetaTaskCategory: true,
	spec.MetaEstimatedHours: true, spec.MetaActualHours: true,
	spec.MetaSkill: true, spec.MetaCommand: true,
	spec.MetaOnFailure: true, spec.MetaVerificationResult: true,
	spec.MetaNeedsJournaling: true, spec.MetaCommits: true,
	spec.MetaStartedAt: true, spec.MetaCompletedAt: true,
}

func unknownKeyIssues(n *spec.Node) []Issue {
	var keys []string
	for k := range n.Metadata {
		if !recognizedMetaKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var issues []Issue
	for _, k := range keys {
		issues = append(issues, Issue{
			Severity: SeverityInfo, Code: "metadata.unknown_key",
			Location: nodeLoc(n),
			Message:  fmt.Sprintf("unrecognized metadata key %q is preserved but ignored", k),
		})
	}
	return issues
}

// journalingFlagIssues verifies needs_journaling matches whether a
// status change has been journaled for the node.
func journalingFlagIssues(doc *spec.Document) []Issue {
	var issues []Issue
	doc.Walk(func(n *spec.Node) bool {
		if !n.IsLeaf() {
			return true
		}
		flag := n.Metadata.GetBool(spec.MetaNeedsJournaling)
		if !flag {
			return true
		}
		// A set flag on a node with a journal entry newer than its
		// last status timestamp is stale.
		entries := doc.JournalFor(n.ID)
		if len(entries) == 0 {
			return true
		}
		last := entries[len(entries)-1].Time()
		statusTime, ok := n.Metadata.GetTime(spec.MetaCompletedAt)
		if !ok {
			statusTime, ok = n.Metadata.GetTime(spec.MetaStartedAt)
		}
		if ok && !last.Before(statusTime) {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Code: "metadata.needs_journaling",
				Location: nodeLoc(n),
				Message:  "needs_journaling is set but the status change is already journaled",
			})
		}
		return true
	})
	return issues
}

func nodeLoc(n *spec.Node) string {
	if n.ID != "" {
		return n.ID
	}
	return "(unidentified node)"
}
