// Package txn applies structured modification operations to a spec
// document under a single transaction: load under lock, mutate a
// clone, validate, recompute, persist atomically. Rollback is the
// absence of a write.
package txn

import (
	"fmt"
	"time"

	"github.com/specdeck/specdeck/internal/journal"
	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/store"
)

// Op is one structured modification. Ops apply in list order against
// the transaction's working clone and fail fast.
type Op interface {
	Kind() string
	// apply mutates the working document. It returns noop=true when
	// the op had no effect (already in the requested state).
	apply(tx *txState) (noop bool, summary string, err error)
}

// txState is the per-transaction working state shared by ops.
type txState struct {
	doc *spec.Document
	now time.Time

	events     []spec.Event
	changed    map[string]bool // leaf IDs whose status changed this txn
	journaled  map[string]bool // task IDs mentioned by entries appended this txn
	moveTarget store.Bucket    // set by MoveSpec, executed at commit
	moveSet    bool
}

func (tx *txState) leaf(nodeID string) (*spec.Node, error) {
	n := tx.doc.Find(nodeID)
	if n == nil {
		return nil, spec.E(spec.KindNotFound, "node %q not found", nodeID)
	}
	if !n.IsLeaf() {
		return nil, spec.E(spec.KindUser, "%s is not a leaf; non-leaf status is derived from children", nodeID)
	}
	return n, nil
}

// setLeafStatus performs a leaf status transition with lifecycle
// timestamps, then propagates upward.
func (tx *txState) setLeafStatus(n *spec.Node, to spec.Status) {
	from := n.Status
	n.Status = to
	switch to {
	case spec.StatusInProgress:
		if _, ok := n.Metadata.GetTime(spec.MetaStartedAt); !ok {
			n.Metadata.SetTime(spec.MetaStartedAt, tx.now)
		}
	case spec.StatusCompleted:
		if _, ok := n.Metadata.GetTime(spec.MetaStartedAt); !ok {
			n.Metadata.SetTime(spec.MetaStartedAt, tx.now)
		}
		n.Metadata.SetTime(spec.MetaCompletedAt, tx.now)
	}
	tx.changed[n.ID] = true
	tx.events = append(tx.events, spec.Event{NodeID: n.ID, From: from, To: to})
	tx.events = append(tx.events, tx.doc.PropagateFrom(n, tx.now)...)
}

func (tx *txState) appendEntry(e *spec.JournalEntry) bool {
	_, added := journal.Append(tx.doc, e, tx.now)
	if e.TaskID != "" {
		tx.journaled[e.TaskID] = true
	}
	return added
}

// SetStatus changes a leaf's status.
type SetStatus struct {
	NodeID string      `json:"task_id"`
	Status spec.Status `json:"status"`
	Note   string      `json:"note,omitempty"`
}

func (o SetStatus) Kind() string { return "set_status" }

func (o SetStatus) apply(tx *txState) (bool, string, error) {
	if !o.Status.IsValid() {
		return false, "", spec.E(spec.KindUser, "unknown status %q", o.Status)
	}
	n, err := tx.leaf(o.NodeID)
	if err != nil {
		return false, "", err
	}
	if n.Status == o.Status {
		return true, fmt.Sprintf("%s already %s", n.ID, o.Status), nil
	}
	from := n.Status
	tx.setLeafStatus(n, o.Status)
	if o.Note != "" {
		tx.appendEntry(&spec.JournalEntry{
			EntryType: spec.EntryNote,
			Title:     fmt.Sprintf("%s: %s -> %s", n.ID, from, o.Status),
			Content:   o.Note,
			TaskID:    n.ID,
		})
	}
	return false, fmt.Sprintf("%s: %s -> %s", n.ID, from, o.Status), nil
}

// CompleteTask completes a leaf and journals it in one step. Ancestors
// that auto-complete get their own status_change entries at commit.
type CompleteTask struct {
	NodeID         string         `json:"task_id"`
	JournalTitle   string         `json:"journal_title"`
	JournalContent string         `json:"journal_content"`
	EntryType      spec.EntryType `json:"entry_type,omitempty"`
}

func (o CompleteTask) Kind() string { return "complete_task" }

func (o CompleteTask) apply(tx *txState) (bool, string, error) {
	n, err := tx.leaf(o.NodeID)
	if err != nil {
		return false, "", err
	}
	if n.Status == spec.StatusCompleted {
		return true, fmt.Sprintf("%s already completed", n.ID), nil
	}
	entryType := o.EntryType
	if entryType == "" {
		entryType = spec.EntryNote
	}
	if !entryType.IsValid() {
		return false, "", spec.E(spec.KindUser, "unknown entry type %q", entryType)
	}
	title := o.JournalTitle
	if title == "" {
		title = fmt.Sprintf("Completed %s", n.ID)
	}
	tx.setLeafStatus(n, spec.StatusCompleted)
	tx.appendEntry(&spec.JournalEntry{
		EntryType: entryType,
		Title:     title,
		Content:   o.JournalContent,
		TaskID:    n.ID,
	})
	delete(n.Metadata, spec.MetaNeedsJournaling)
	return false, fmt.Sprintf("%s completed", n.ID), nil
}

// MarkBlocked explicitly blocks a node with a reason.
type MarkBlocked struct {
	NodeID string `json:"task_id"`
	Reason string `json:"reason"`
	Type   string `json:"type,omitempty"`
	Ticket string `json:"ticket,omitempty"`
}

func (o MarkBlocked) Kind() string { return "mark_blocked" }

func (o MarkBlocked) apply(tx *txState) (bool, string, error) {
	n := tx.doc.Find(o.NodeID)
	if n == nil {
		return false, "", spec.E(spec.KindNotFound, "node %q not found", o.NodeID)
	}
	if o.Reason == "" {
		return false, "", spec.E(spec.KindUser, "mark_blocked requires a reason")
	}
	if n.Status == spec.StatusBlocked {
		return true, fmt.Sprintf("%s already blocked", n.ID), nil
	}
	from := n.Status
	n.Status = spec.StatusBlocked
	tx.changed[n.ID] = true
	tx.events = append(tx.events, spec.Event{NodeID: n.ID, From: from, To: spec.StatusBlocked})
	if n.IsLeaf() {
		tx.events = append(tx.events, tx.doc.PropagateFrom(n, tx.now)...)
	} else {
		tx.doc.RecomputeAll(tx.now)
	}
	tx.appendEntry(&spec.JournalEntry{
		EntryType: spec.EntryBlocker,
		Title:     fmt.Sprintf("%s blocked", n.ID),
		Content:   o.Reason,
		TaskID:    n.ID,
		Metadata: spec.Metadata{
			"reason": o.Reason,
			"type":   o.Type,
			"ticket": o.Ticket,
		},
	})
	return false, fmt.Sprintf("%s blocked: %s", n.ID, o.Reason), nil
}

// Unblock returns a blocked node to pending.
type Unblock struct {
	NodeID     string `json:"task_id"`
	Resolution string `json:"resolution"`
}

func (o Unblock) Kind() string { return "unblock" }

func (o Unblock) apply(tx *txState) (bool, string, error) {
	n := tx.doc.Find(o.NodeID)
	if n == nil {
		return false, "", spec.E(spec.KindNotFound, "node %q not found", o.NodeID)
	}
	if n.Status != spec.StatusBlocked {
		return true, fmt.Sprintf("%s is not blocked", n.ID), nil
	}
	from := n.Status
	n.Status = spec.StatusPending
	tx.changed[n.ID] = true
	tx.events = append(tx.events, spec.Event{NodeID: n.ID, From: from, To: spec.StatusPending})
	if n.IsLeaf() {
		tx.events = append(tx.events, tx.doc.PropagateFrom(n, tx.now)...)
	} else {
		tx.doc.RecomputeAll(tx.now)
	}
	tx.appendEntry(&spec.JournalEntry{
		EntryType: spec.EntryNote,
		Title:     fmt.Sprintf("%s unblocked", n.ID),
		Content:   o.Resolution,
		TaskID:    n.ID,
	})
	return false, fmt.Sprintf("%s unblocked", n.ID), nil
}

// AddJournal appends one journal entry.
type AddJournal struct {
	Entry spec.JournalEntry `json:"entry"`
}

func (o AddJournal) Kind() string { return "add_journal" }

func (o AddJournal) apply(tx *txState) (bool, string, error) {
	if !o.Entry.EntryType.IsValid() {
		return false, "", spec.E(spec.KindUser, "unknown entry type %q", o.Entry.EntryType)
	}
	if o.Entry.TaskID != "" && tx.doc.Find(o.Entry.TaskID) == nil {
		return false, "", spec.E(spec.KindNotFound, "journal entry references unknown task %q", o.Entry.TaskID)
	}
	e := o.Entry
	if !tx.appendEntry(&e) {
		return true, "duplicate journal entry", nil
	}
	return false, fmt.Sprintf("journal: %s", e.Title), nil
}

// BulkJournal appends several entries in order.
type BulkJournal struct {
	Entries []spec.JournalEntry `json:"entries"`
}

func (o BulkJournal) Kind() string { return "bulk_journal" }

func (o BulkJournal) apply(tx *txState) (bool, string, error) {
	added := 0
	for i := range o.Entries {
		noop, _, err := (AddJournal{Entry: o.Entries[i]}).apply(tx)
		if err != nil {
			return false, "", err
		}
		if !noop {
			added++
		}
	}
	return added == 0, fmt.Sprintf("journal: %d entries", added), nil
}

// AddVerification records an externally produced verification result.
type AddVerification struct {
	VerifyID string                  `json:"verify_id"`
	Result   spec.VerificationResult `json:"result"`
}

func (o AddVerification) Kind() string { return "add_verification" }

func (o AddVerification) apply(tx *txState) (bool, string, error) {
	n := tx.doc.Find(o.VerifyID)
	if n == nil {
		return false, "", spec.E(spec.KindNotFound, "verify node %q not found", o.VerifyID)
	}
	events, err := journal.ApplyResult(tx.doc, n, o.Result, tx.now)
	if err != nil {
		return false, "", err
	}
	tx.changed[n.ID] = true
	tx.journaled[n.ID] = true
	tx.events = append(tx.events, events...)
	return false, fmt.Sprintf("%s: %s", n.ID, o.Result.Status), nil
}

// ExecuteVerification runs a verify node's command through the
// transactor's runner, honoring the on_failure retry budget. Only the
// terminal outcome is persisted.
type ExecuteVerification struct {
	VerifyID string `json:"verify_id"`
}

func (o ExecuteVerification) Kind() string { return "execute_verification" }

func (o ExecuteVerification) apply(tx *txState) (bool, string, error) {
	return false, "", spec.E(spec.KindInternal, "execute_verification requires a transactor runner")
}

// UpdateMetadata sets recognized metadata fields on a node.
type UpdateMetadata struct {
	NodeID string         `json:"task_id"`
	Fields map[string]any `json:"fields"`
}

func (o UpdateMetadata) Kind() string { return "update_metadata" }

// updatableMetaKeys is the allowlist for update_metadata.
var updatableMetaKeys = map[string]bool{
	spec.MetaFilePath: true, spec.MetaTaskCategory: true,
	spec.MetaEstimatedHours: true, spec.MetaActualHours: true,
	spec.MetaSkill: true, spec.MetaCommand: true,
	spec.MetaOnFailure: true,
}

func (o UpdateMetadata) apply(tx *txState) (bool, string, error) {
	n := tx.doc.Find(o.NodeID)
	if n == nil {
		return false, "", spec.E(spec.KindNotFound, "node %q not found", o.NodeID)
	}
	if len(o.Fields) == 0 {
		return true, "no fields", nil
	}
	changed := false
	for k, v := range o.Fields {
		if !updatableMetaKeys[k] {
			return false, "", spec.E(spec.KindUser, "metadata field %q is not updatable", k)
		}
		if k == spec.MetaTaskCategory {
			if s, _ := v.(string); !spec.ValidTaskCategory(s) {
				return false, "", spec.E(spec.KindUser, "unknown task_category %q", v)
			}
		}
		if cur, ok := n.Metadata[k]; !ok || fmt.Sprintf("%v", cur) != fmt.Sprintf("%v", v) {
			n.Metadata[k] = v
			changed = true
		}
	}
	if !changed {
		return true, "metadata unchanged", nil
	}
	return false, fmt.Sprintf("%s metadata updated", n.ID), nil
}

// MoveSpec schedules a bucket transition, executed at commit after the
// document is persisted with its new lifecycle status.
type MoveSpec struct {
	TargetBucket string `json:"target_bucket"`
}

func (o MoveSpec) Kind() string { return "move_spec" }

func (o MoveSpec) apply(tx *txState) (bool, string, error) {
	bucket, err := store.ParseBucket(o.TargetBucket)
	if err != nil {
		return false, "", err
	}
	if tx.doc.Metadata.Status == bucket.DocStatus() {
		return true, fmt.Sprintf("already %s", bucket), nil
	}
	tx.doc.Metadata.Status = bucket.DocStatus()
	tx.moveTarget = bucket
	tx.moveSet = true
	return false, fmt.Sprintf("spec -> %s", bucket), nil
}

// RecalculateCounts rebuilds all cached counts and derived statuses.
type RecalculateCounts struct{}

func (o RecalculateCounts) Kind() string { return "recalculate_counts" }

func (o RecalculateCounts) apply(tx *txState) (bool, string, error) {
	before, err := tx.doc.Serialize()
	if err != nil {
		return false, "", spec.Wrap(spec.KindInternal, err, "serializing for comparison")
	}
	tx.events = append(tx.events, tx.doc.RecomputeAll(tx.now)...)
	after, err := tx.doc.Serialize()
	if err != nil {
		return false, "", spec.Wrap(spec.KindInternal, err, "serializing for comparison")
	}
	if string(before) == string(after) {
		return true, "counts already consistent", nil
	}
	return false, "counts recalculated", nil
}

// SyncMetadata backfills metadata invariants: missing mappings and
// lifecycle timestamps.
type SyncMetadata struct{}

func (o SyncMetadata) Kind() string { return "sync_metadata" }

func (o SyncMetadata) apply(tx *txState) (bool, string, error) {
	changed := false
	tx.doc.Walk(func(n *spec.Node) bool {
		if n.Metadata == nil {
			n.Metadata = spec.Metadata{}
			changed = true
		}
		switch n.Status {
		case spec.StatusInProgress:
			if _, ok := n.Metadata.GetTime(spec.MetaStartedAt); !ok {
				n.Metadata.SetTime(spec.MetaStartedAt, tx.now)
				changed = true
			}
		case spec.StatusCompleted:
			if _, ok := n.Metadata.GetTime(spec.MetaStartedAt); !ok {
				n.Metadata.SetTime(spec.MetaStartedAt, tx.now)
				changed = true
			}
			if _, ok := n.Metadata.GetTime(spec.MetaCompletedAt); !ok {
				n.Metadata.SetTime(spec.MetaCompletedAt, tx.now)
				changed = true
			}
		}
		return true
	})
	if !changed {
		return true, "metadata already consistent", nil
	}
	return false, "metadata synced", nil
}

// SetGitMetadata updates the document's git mapping and appends a
// commit record when one is given.
type SetGitMetadata struct {
	BranchName string       `json:"branch_name,omitempty"`
	BaseBranch string       `json:"base_branch,omitempty"`
	Commit     *spec.Commit `json:"commit,omitempty"`
}

func (o SetGitMetadata) Kind() string { return "set_git_metadata" }

func (o SetGitMetadata) apply(tx *txState) (bool, string, error) {
	git := tx.doc.Metadata.Git
	if git == nil {
		git = &spec.GitMeta{}
		tx.doc.Metadata.Git = git
	}
	changed := false
	if o.BranchName != "" && git.BranchName != o.BranchName {
		git.BranchName = o.BranchName
		changed = true
	}
	if o.BaseBranch != "" && git.BaseBranch != o.BaseBranch {
		git.BaseBranch = o.BaseBranch
		changed = true
	}
	if o.Commit != nil {
		git.Commits = append(git.Commits, *o.Commit)
		changed = true
	}
	if !changed {
		return true, "git metadata unchanged", nil
	}
	return false, "git metadata updated", nil
}

// NodeSpec describes a node to create.
type NodeSpec struct {
	ID           string            `json:"id"`
	Type         spec.NodeType     `json:"type"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Metadata     spec.Metadata     `json:"metadata,omitempty"`
	Dependencies spec.Dependencies `json:"dependencies,omitempty"`
}

// CreateNode inserts a new pending node under a parent (or as a new
// phase when parent_id is empty). Tasks insert before any verify tail;
// verifies append at the end.
type CreateNode struct {
	ParentID string   `json:"parent_id,omitempty"`
	Node     NodeSpec `json:"node"`
}

func (o CreateNode) Kind() string { return "create_node" }

func (o CreateNode) apply(tx *txState) (bool, string, error) {
	if o.Node.ID == "" || o.Node.Title == "" {
		return false, "", spec.E(spec.KindUser, "create_node requires id and title")
	}
	if !o.Node.Type.IsValid() {
		return false, "", spec.E(spec.KindUser, "unknown node type %q", o.Node.Type)
	}
	if tx.doc.Find(o.Node.ID) != nil {
		return false, "", spec.E(spec.KindUser, "node %q already exists", o.Node.ID)
	}
	meta := o.Node.Metadata
	if meta == nil {
		meta = spec.Metadata{}
	}
	n := &spec.Node{
		ID:           o.Node.ID,
		Type:         o.Node.Type,
		Title:        o.Node.Title,
		Description:  o.Node.Description,
		Status:       spec.StatusPending,
		Metadata:     meta,
		Dependencies: o.Node.Dependencies,
	}
	if o.ParentID == "" {
		if n.Type != spec.TypePhase {
			return false, "", spec.E(spec.KindUser, "top-level nodes must be phases")
		}
		tx.doc.Hierarchy = append(tx.doc.Hierarchy, n)
	} else {
		parent := tx.doc.Find(o.ParentID)
		if parent == nil {
			return false, "", spec.E(spec.KindNotFound, "parent %q not found", o.ParentID)
		}
		parent.Children = insertChild(parent.Children, n)
	}
	tx.doc.Relink()
	tx.doc.RecomputeAll(tx.now)
	return false, fmt.Sprintf("created %s", n.ID), nil
}

// insertChild places tasks before the verify tail and verifies at the
// very end.
func insertChild(children []*spec.Node, n *spec.Node) []*spec.Node {
	if n.Type == spec.TypeVerify {
		return append(children, n)
	}
	for i, c := range children {
		if c.Type == spec.TypeVerify {
			out := make([]*spec.Node, 0, len(children)+1)
			out = append(out, children[:i]...)
			out = append(out, n)
			out = append(out, children[i:]...)
			return out
		}
	}
	return append(children, n)
}

// RemoveNode detaches a node and its subtree. Dangling dependency
// references surface as validation errors and roll the transaction
// back, so callers must remove those in the same batch.
type RemoveNode struct {
	NodeID string `json:"task_id"`
}

func (o RemoveNode) Kind() string { return "remove_node" }

func (o RemoveNode) apply(tx *txState) (bool, string, error) {
	n := tx.doc.Find(o.NodeID)
	if n == nil {
		return false, "", spec.E(spec.KindNotFound, "node %q not found", o.NodeID)
	}
	parent := n.Parent()
	if parent == nil {
		for i, p := range tx.doc.Hierarchy {
			if p == n {
				tx.doc.Hierarchy = append(tx.doc.Hierarchy[:i], tx.doc.Hierarchy[i+1:]...)
				break
			}
		}
	} else {
		for i, c := range parent.Children {
			if c == n {
				parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
				break
			}
		}
	}
	tx.doc.Relink()
	tx.doc.RecomputeAll(tx.now)
	return false, fmt.Sprintf("removed %s", o.NodeID), nil
}
