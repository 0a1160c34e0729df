// Package queries computes read-only views over a loaded spec
// document. Every function is pure; nothing here mutates the document
// or touches disk.
package queries

import (
	"sort"
	"strings"
	"time"

	"github.com/specdeck/specdeck/internal/graph"
	"github.com/specdeck/specdeck/internal/spec"
)

// ProgressSummary is the top-line progress view.
type ProgressSummary struct {
	SpecID       string         `json:"spec_id"`
	Title        string         `json:"title"`
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	Percent      int            `json:"percent"`
	CurrentPhase string         `json:"current_phase,omitempty"`
	LastUpdated  string         `json:"last_updated,omitempty"`
}

// Progress summarizes document-level progress. The current phase is
// the first phase with work remaining.
func Progress(doc *spec.Document) ProgressSummary {
	s := ProgressSummary{
		SpecID:      doc.SpecID,
		Title:       doc.Metadata.Title,
		Total:       doc.Counts.Total,
		Percent:     doc.Counts.Percent,
		LastUpdated: doc.Metadata.LastUpdated,
		ByStatus: map[string]int{
			string(spec.StatusPending):    doc.Counts.Pending,
			string(spec.StatusInProgress): doc.Counts.InProgress,
			string(spec.StatusCompleted):  doc.Counts.Completed,
			string(spec.StatusBlocked):    doc.Counts.Blocked,
		},
	}
	for _, phase := range doc.Hierarchy {
		if phase.Status != spec.StatusCompleted {
			s.CurrentPhase = phase.ID
			break
		}
	}
	return s
}

// PhaseInfo is one row of the phase listing.
type PhaseInfo struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Status spec.Status `json:"status"`
	Counts spec.Counts `json:"counts"`
}

// ListPhases returns the phases in document order with their counts.
func ListPhases(doc *spec.Document) []PhaseInfo {
	out := make([]PhaseInfo, 0, len(doc.Hierarchy))
	for _, phase := range doc.Hierarchy {
		info := PhaseInfo{ID: phase.ID, Title: phase.Title, Status: phase.Status}
		if phase.Counts != nil {
			info.Counts = *phase.Counts
		}
		out = append(out, info)
	}
	return out
}

// TaskView is the flattened task shape returned by queries.
type TaskView struct {
	ID          string        `json:"id"`
	Type        spec.NodeType `json:"type"`
	Title       string        `json:"title"`
	Status      spec.Status   `json:"status"`
	Parent      string        `json:"parent,omitempty"`
	Phase       string        `json:"phase,omitempty"`
	Category    string        `json:"category,omitempty"`
	Skill       string        `json:"skill,omitempty"`
	FilePath    string        `json:"file_path,omitempty"`
	Description string        `json:"description,omitempty"`
}

func viewOf(n *spec.Node) TaskView {
	v := TaskView{
		ID:          n.ID,
		Type:        n.Type,
		Title:       n.Title,
		Status:      n.Status,
		Category:    n.Metadata.GetString(spec.MetaTaskCategory),
		Skill:       n.Metadata.GetString(spec.MetaSkill),
		FilePath:    n.Metadata.GetString(spec.MetaFilePath),
		Description: n.Description,
	}
	if p := n.Parent(); p != nil {
		v.Parent = p.ID
	}
	if phase := n.Phase(); phase != nil {
		v.Phase = phase.ID
	}
	return v
}

// TaskFilters narrow QueryTasks output. Empty fields match anything.
type TaskFilters struct {
	Status string
	Type   string
	Parent string
	Skill  string
}

func (f TaskFilters) match(n *spec.Node) bool {
	if f.Status != "" && string(n.Status) != f.Status {
		return false
	}
	if f.Type != "" && string(n.Type) != f.Type {
		return false
	}
	if f.Parent != "" {
		p := n.Parent()
		if p == nil || p.ID != f.Parent {
			return false
		}
	}
	if f.Skill != "" && !strings.EqualFold(n.Metadata.GetString(spec.MetaSkill), f.Skill) {
		return false
	}
	return true
}

// QueryTasks returns matching task and verify nodes in document
// order.
func QueryTasks(doc *spec.Document, f TaskFilters) []TaskView {
	var out []TaskView
	doc.Walk(func(n *spec.Node) bool {
		if n.Type != spec.TypeTask && n.Type != spec.TypeVerify {
			return true
		}
		if f.match(n) {
			out = append(out, viewOf(n))
		}
		return true
	})
	return out
}

// GetTask resolves a node by ID.
func GetTask(doc *spec.Document, id string) (TaskView, error) {
	n := doc.Find(id)
	if n == nil {
		return TaskView{}, notFound(doc, id)
	}
	return viewOf(n), nil
}

// notFound builds a lookup miss with did-you-mean suggestions when
// similar IDs exist.
func notFound(doc *spec.Document, id string) error {
	err := spec.E(spec.KindNotFound, "task %q not found in %s", id, doc.SpecID)
	if s := Suggest(doc, id, 3); len(s) > 0 {
		return err.WithDetails(map[string]any{"did_you_mean": s})
	}
	return err
}

// TaskDetail is the full task_info view.
type TaskDetail struct {
	Task         TaskView                 `json:"task"`
	Blockers     []graph.Blocker          `json:"blockers,omitempty"`
	Dependents   []string                 `json:"dependents,omitempty"`
	SoftDepends  []string                 `json:"soft_depends,omitempty"`
	Verification *spec.VerificationResult `json:"verification,omitempty"`
	Journal      []*spec.JournalEntry     `json:"journal,omitempty"`
}

// TaskInfo assembles the detailed view of one task: dependency state,
// verification outcome and its journal slice.
func TaskInfo(doc *spec.Document, g *graph.Graph, id string) (TaskDetail, error) {
	n := doc.Find(id)
	if n == nil {
		return TaskDetail{}, notFound(doc, id)
	}
	detail := TaskDetail{
		Task:        viewOf(n),
		Blockers:    g.BlockersOf(id),
		Dependents:  g.Dependents(id),
		SoftDepends: append([]string(nil), n.Dependencies.SoftDepends...),
		Journal:     doc.JournalFor(id),
	}
	if vr, ok := n.Metadata.VerificationResult(); ok {
		detail.Verification = &vr
	}
	return detail, nil
}

// BlockedTask is one row of list-blockers, combining the node state
// with the most recent blocker journal entry for it.
type BlockedTask struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Reason string `json:"reason,omitempty"`
	Type   string `json:"type,omitempty"`
	Ticket string `json:"ticket,omitempty"`
	Since  string `json:"since,omitempty"`
}

// ListBlockers returns every blocked leaf with the reason recorded
// when it was marked.
func ListBlockers(doc *spec.Document) []BlockedTask {
	var out []BlockedTask
	doc.Walk(func(n *spec.Node) bool {
		if !n.IsLeaf() || n.Status != spec.StatusBlocked {
			return true
		}
		row := BlockedTask{TaskID: n.ID, Title: n.Title}
		if e := latestBlockerEntry(doc, n.ID); e != nil {
			row.Reason = e.Metadata.GetString("reason")
			row.Type = e.Metadata.GetString("type")
			row.Ticket = e.Metadata.GetString("ticket")
			row.Since = e.Timestamp
		}
		out = append(out, row)
		return true
	})
	return out
}

func latestBlockerEntry(doc *spec.Document, taskID string) *spec.JournalEntry {
	for i := len(doc.Journal) - 1; i >= 0; i-- {
		e := doc.Journal[i]
		if e.TaskID == taskID && e.EntryType == spec.EntryBlocker {
			return e
		}
	}
	return nil
}

// Report is the status_report record: everything the text renderer
// needs, JSON-serializable as-is.
type Report struct {
	Summary       ProgressSummary      `json:"summary"`
	Phases        []PhaseInfo          `json:"phases"`
	Blocked       []BlockedTask        `json:"blocked,omitempty"`
	Ready         []TaskView           `json:"ready,omitempty"`
	RecentJournal []*spec.JournalEntry `json:"recent_journal,omitempty"`
}

// recentJournalLimit bounds the journal tail shown in reports.
const recentJournalLimit = 10

// StatusReport assembles the full report view.
func StatusReport(doc *spec.Document, g *graph.Graph) Report {
	r := Report{
		Summary: Progress(doc),
		Phases:  ListPhases(doc),
		Blocked: ListBlockers(doc),
	}
	for _, n := range doc.Leaves() {
		if n.Status == spec.StatusPending && g.IsReady(n) {
			r.Ready = append(r.Ready, viewOf(n))
		}
	}
	if tail := len(doc.Journal); tail > 0 {
		start := tail - recentJournalLimit
		if start < 0 {
			start = 0
		}
		r.RecentJournal = doc.Journal[start:]
	}
	return r
}

// JournalSince returns entries at or after the cutoff, newest last.
func JournalSince(doc *spec.Document, cutoff time.Time) []*spec.JournalEntry {
	var out []*spec.JournalEntry
	for _, e := range doc.Journal {
		if !e.Time().Before(cutoff) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time().Before(out[j].Time()) })
	return out
}
