package validate

import (
	"fmt"
	"time"

	"github.com/specdeck/specdeck/internal/spec"
)

// FixOptions controls which fixers run.
type FixOptions struct {
	// ApplyReparent permits the hierarchy.reparent fixer to actually
	// move nodes. Without it, misplaced nodes only produce warnings;
	// silently restructuring a broken hierarchy is too risky to do by
	// default.
	ApplyReparent bool
	Now           time.Time
}

// FixResult reports what the fixers changed.
type FixResult struct {
	Applied  []string `json:"applied"`
	Warnings []Issue  `json:"warnings,omitempty"`
}

// Fix runs the auto-fixers in a fixed order: metadata.ensure,
// counts.recalculate (which also derives statuses), then
// hierarchy.reparent when permitted. Every fixer is idempotent; running
// Fix twice yields no further changes.
func Fix(doc *spec.Document, opts FixOptions) FixResult {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	var res FixResult
	if ensureMetadata(doc) {
		res.Applied = append(res.Applied, "metadata.ensure")
	}
	if recalculate(doc, opts.Now) {
		res.Applied = append(res.Applied, "counts.recalculate")
	}
	moved, warns := reparent(doc, opts.ApplyReparent)
	res.Warnings = append(res.Warnings, warns...)
	if moved {
		res.Applied = append(res.Applied, "hierarchy.reparent")
		// Positions changed; derived state must follow.
		doc.RecomputeAll(opts.Now)
	}
	return res
}

// ensureMetadata inserts missing metadata mappings. Returns true if
// anything changed.
func ensureMetadata(doc *spec.Document) bool {
	changed := false
	doc.Walk(func(n *spec.Node) bool {
		if n.Metadata == nil {
			n.Metadata = spec.Metadata{}
			changed = true
		}
		return true
	})
	return changed
}

// recalculate rebuilds all cached counts and derived statuses. Returns
// true if any cached value moved.
func recalculate(doc *spec.Document, now time.Time) bool {
	before := snapshotDerived(doc)
	doc.RecomputeAll(now)
	return before != snapshotDerived(doc)
}

func snapshotDerived(doc *spec.Document) string {
	out := fmt.Sprintf("%+v", doc.Counts)
	doc.Walk(func(n *spec.Node) bool {
		if n.Counts != nil {
			out += fmt.Sprintf("|%s=%+v,%s", n.ID, *n.Counts, n.Status)
		} else {
			out += fmt.Sprintf("|%s=%s", n.ID, n.Status)
		}
		return true
	})
	return out
}

// reparent moves nodes whose ID names a different phase than the one
// they sit under, placing each under the phase its ID prefix claims.
// Without apply it only reports what would move.
func reparent(doc *spec.Document, apply bool) (bool, []Issue) {
	phases := map[int]*spec.Node{}
	for _, p := range doc.Hierarchy {
		if n := spec.PhaseNumber(p.ID); n >= 0 {
			phases[n] = p
		}
	}
	type move struct {
		node   *spec.Node
		target *spec.Node
	}
	var moves []move
	var warnings []Issue
	doc.Walk(func(n *spec.Node) bool {
		if n.Type == spec.TypePhase {
			return true
		}
		want := spec.PhaseNumber(n.ID)
		if want < 0 {
			return true
		}
		actual := spec.PhaseNumber(n.Phase().ID)
		if want == actual {
			return true
		}
		target, exists := phases[want]
		if !exists {
			return true
		}
		warnings = append(warnings, Issue{
			Severity: SeverityWarning, Code: "hierarchy.reparent",
			Location:    n.ID,
			Message:     fmt.Sprintf("node sits under phase-%d but its ID names phase-%d; pass --apply-reparent to move it", actual, want),
			AutoFixable: true,
		})
		moves = append(moves, move{node: n, target: target})
		return true
	})
	if !apply || len(moves) == 0 {
		return false, warnings
	}
	for _, mv := range moves {
		detach(doc, mv.node)
		mv.target.Children = append(mv.target.Children, mv.node)
	}
	doc.Relink()
	return true, warnings
}

func detach(doc *spec.Document, node *spec.Node) {
	parent := node.Parent()
	if parent == nil {
		for i, p := range doc.Hierarchy {
			if p == node {
				doc.Hierarchy = append(doc.Hierarchy[:i], doc.Hierarchy[i+1:]...)
				return
			}
		}
		return
	}
	for i, c := range parent.Children {
		if c == node {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return
		}
	}
}
