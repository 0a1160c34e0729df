package spec

import (
	"time"
)

// Event is emitted when derived state changes during propagation.
// AutoCompletion events are journaled by the transactor.
type Event struct {
	NodeID string
	From   Status
	To     Status
	// Auto is true when the change was derived from children rather
	// than requested directly.
	Auto bool
}

// AutoCompletion reports whether this event is an ancestor completing
// because all of its children completed.
func (e Event) AutoCompletion() bool {
	return e.Auto && e.To == StatusCompleted
}

// aggregateChildren sums direct children's counts, descending only one
// level because children carry their own cached aggregates.
func aggregateChildren(n *Node) Counts {
	var c Counts
	for _, child := range n.Children {
		if child.IsLeaf() {
			c.Add(ForLeaf(child.Status))
		} else if child.Counts != nil {
			c.Add(*child.Counts)
		}
	}
	return c
}

// deriveStatus computes a non-leaf's status from its children per the
// completion rules. Explicit blocks are never overwritten: blocked
// does not derive from children.
func deriveStatus(n *Node) Status {
	if n.Status == StatusBlocked {
		return StatusBlocked
	}
	if len(n.Children) == 0 {
		return n.Status
	}
	total := 0
	completed := 0
	active := false
	for _, child := range n.Children {
		total++
		switch child.Status {
		case StatusCompleted:
			completed++
			active = true
		case StatusInProgress:
			active = true
		}
	}
	switch {
	case total > 0 && completed == total:
		return StatusCompleted
	case active:
		return StatusInProgress
	default:
		return StatusPending
	}
}

// applyDerived updates a non-leaf's status, stamping lifecycle
// timestamps on transitions, and returns the event if it changed.
func applyDerived(n *Node, now time.Time) (Event, bool) {
	next := deriveStatus(n)
	if next == n.Status {
		return Event{}, false
	}
	ev := Event{NodeID: n.ID, From: n.Status, To: next, Auto: true}
	n.Status = next
	if n.Metadata == nil {
		n.Metadata = Metadata{}
	}
	switch next {
	case StatusInProgress:
		if _, ok := n.Metadata.GetTime(MetaStartedAt); !ok {
			n.Metadata.SetTime(MetaStartedAt, now)
		}
	case StatusCompleted:
		if _, ok := n.Metadata.GetTime(MetaStartedAt); !ok {
			n.Metadata.SetTime(MetaStartedAt, now)
		}
		n.Metadata.SetTime(MetaCompletedAt, now)
	}
	return ev, true
}

// PropagateFrom walks from a changed leaf up to the root, refreshing
// counts and derived status on each ancestor, then refreshes the
// document-level counts. Returns the ancestor status-change events in
// bottom-up order. O(depth) per call.
func (d *Document) PropagateFrom(leaf *Node, now time.Time) []Event {
	var events []Event
	for n := leaf.Parent(); n != nil; n = n.Parent() {
		agg := aggregateChildren(n)
		n.Counts = &agg
		if ev, changed := applyDerived(n, now); changed {
			events = append(events, ev)
		}
	}
	d.refreshDocCounts()
	d.Bump()
	return events
}

// RecomputeAll rebuilds every cached count and derived status bottom-up
// over the whole tree. O(n); used by the counts auto-fixer and after
// structural edits. Idempotent.
func (d *Document) RecomputeAll(now time.Time) []Event {
	var events []Event
	var recompute func(n *Node)
	recompute = func(n *Node) {
		for _, c := range n.Children {
			recompute(c)
		}
		if n.IsLeaf() {
			n.Counts = nil
			return
		}
		agg := aggregateChildren(n)
		n.Counts = &agg
		if ev, changed := applyDerived(n, now); changed {
			events = append(events, ev)
		}
	}
	for _, phase := range d.Hierarchy {
		recompute(phase)
	}
	d.refreshDocCounts()
	d.Bump()
	return events
}

func (d *Document) refreshDocCounts() {
	var c Counts
	for _, phase := range d.Hierarchy {
		if phase.IsLeaf() {
			c.Add(ForLeaf(phase.Status))
		} else if phase.Counts != nil {
			c.Add(*phase.Counts)
		}
	}
	d.Counts = c
}
