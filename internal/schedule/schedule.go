// Package schedule selects the next actionable leaf of a spec. The
// selection is a pure function of the document: same document, same
// answer.
package schedule

import (
	"sort"

	"github.com/specdeck/specdeck/internal/graph"
	"github.com/specdeck/specdeck/internal/spec"
)

// Filters narrows candidate selection.
type Filters struct {
	PhaseID  string `json:"phase_id,omitempty"`
	Category string `json:"category,omitempty"`
	Skill    string `json:"skill,omitempty"`
}

func (f Filters) provided() bool {
	return f.PhaseID != "" || f.Category != "" || f.Skill != ""
}

func (f Filters) match(n *spec.Node) bool {
	if f.PhaseID != "" && n.Phase().ID != f.PhaseID {
		return false
	}
	if f.Category != "" && n.Metadata.GetString(spec.MetaTaskCategory) != f.Category {
		return false
	}
	if f.Skill != "" && n.Metadata.GetString(spec.MetaSkill) != f.Skill {
		return false
	}
	return true
}

// Outcome is the kind of scheduling decision.
type Outcome string

const (
	OutcomeNext           Outcome = "next"
	OutcomeSpecComplete   Outcome = "spec_complete"
	OutcomeAllBlocked     Outcome = "all_blocked"
	OutcomeNothingMatches Outcome = "nothing_matches"
)

// Decision is the scheduler's answer.
type Decision struct {
	Outcome    Outcome `json:"outcome"`
	TaskID     string  `json:"task_id,omitempty"`
	Rationale  string  `json:"rationale,omitempty"`
	Blocked    int     `json:"blocked,omitempty"`
	InProgress int     `json:"in_progress,omitempty"`
}

// Rationale labels, one per tie-break stage.
const (
	RationaleLowestPhase   = "lowest-phase"
	RationaleActiveSibling = "active-sibling"
	RationaleContinuation  = "soft-continuation"
	RationaleLexicographic = "lexicographic"
	RationaleOnlyCandidate = "only-candidate"
)

// NextTask picks the single most appropriate pending leaf, or a
// terminal outcome when nothing is actionable.
func NextTask(doc *spec.Document, f Filters) Decision {
	g := graph.New(doc)
	leaves := doc.Leaves()

	ready := make([]*spec.Node, 0, len(leaves))
	for _, leaf := range leaves {
		if leaf.Status != spec.StatusPending || !g.IsReady(leaf) {
			continue
		}
		if leaf.Type == spec.TypeVerify && !verifyRunnable(leaf) {
			continue
		}
		ready = append(ready, leaf)
	}

	candidates := make([]*spec.Node, 0, len(ready))
	for _, leaf := range ready {
		if f.match(leaf) {
			candidates = append(candidates, leaf)
		}
	}

	if len(candidates) == 0 {
		return terminal(doc, f, len(ready))
	}

	winner, rationale := pick(doc, candidates)
	return Decision{Outcome: OutcomeNext, TaskID: winner.ID, Rationale: rationale}
}

// verifyRunnable gates verify leaves on their associated work: every
// non-verify sibling under the same parent must be completed first.
func verifyRunnable(verify *spec.Node) bool {
	parent := verify.Parent()
	if parent == nil {
		return true
	}
	for _, sibling := range parent.Children {
		if sibling.Type == spec.TypeVerify {
			continue
		}
		if sibling.Status != spec.StatusCompleted {
			return false
		}
	}
	return true
}

// pick narrows the candidate set through the tie-break stages in order
// and names the first stage that actually reduced it.
func pick(doc *spec.Document, candidates []*spec.Node) (*spec.Node, string) {
	if len(candidates) == 1 {
		return candidates[0], RationaleOnlyCandidate
	}
	rationale := ""
	narrow := func(stage string, keep []*spec.Node) []*spec.Node {
		if len(keep) < len(candidates) && rationale == "" {
			rationale = stage
		}
		return keep
	}

	candidates = narrow(RationaleLowestPhase, lowestPhase(candidates))
	if len(candidates) > 1 {
		candidates = narrow(RationaleActiveSibling, activeSiblings(candidates))
	}
	if len(candidates) > 1 {
		candidates = narrow(RationaleContinuation, continuations(doc, candidates))
	}
	if len(candidates) > 1 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		if rationale == "" {
			rationale = RationaleLexicographic
		}
	}
	if rationale == "" {
		rationale = RationaleLexicographic
	}
	return candidates[0], rationale
}

func lowestPhase(candidates []*spec.Node) []*spec.Node {
	min := -1
	for _, c := range candidates {
		if n := spec.PhaseNumber(c.Phase().ID); min < 0 || (n >= 0 && n < min) {
			min = n
		}
	}
	var keep []*spec.Node
	for _, c := range candidates {
		if spec.PhaseNumber(c.Phase().ID) == min {
			keep = append(keep, c)
		}
	}
	return keep
}

// activeSiblings prefers candidates that share an immediate parent with
// in_progress work.
func activeSiblings(candidates []*spec.Node) []*spec.Node {
	var keep []*spec.Node
	for _, c := range candidates {
		parent := c.Parent()
		if parent == nil {
			continue
		}
		for _, sibling := range parent.Children {
			if sibling != c && sibling.Status == spec.StatusInProgress {
				keep = append(keep, c)
				break
			}
		}
	}
	if len(keep) == 0 {
		return candidates
	}
	return keep
}

// continuations prefers candidates whose entire soft_depends set is
// already completed, smallest such set first. A completed soft set
// means the candidate continues work that just finished.
func continuations(doc *spec.Document, candidates []*spec.Node) []*spec.Node {
	best := -1
	for _, c := range candidates {
		if n, ok := completedSoftSet(doc, c); ok && (best < 0 || n < best) {
			best = n
		}
	}
	if best < 0 {
		return candidates
	}
	var keep []*spec.Node
	for _, c := range candidates {
		if n, ok := completedSoftSet(doc, c); ok && n == best {
			keep = append(keep, c)
		}
	}
	return keep
}

// completedSoftSet returns the size of the candidate's soft_depends
// set when non-empty and fully completed.
func completedSoftSet(doc *spec.Document, n *spec.Node) (int, bool) {
	soft := n.Dependencies.SoftDepends
	if len(soft) == 0 {
		return 0, false
	}
	for _, dep := range soft {
		pred := doc.Find(dep)
		if pred == nil || pred.Status != spec.StatusCompleted {
			return 0, false
		}
	}
	return len(soft), true
}

func terminal(doc *spec.Document, f Filters, readyCount int) Decision {
	allCompleted := true
	blocked := 0
	inProgress := 0
	for _, leaf := range doc.Leaves() {
		switch leaf.Status {
		case spec.StatusCompleted:
		case spec.StatusBlocked:
			allCompleted = false
			blocked++
		case spec.StatusInProgress:
			allCompleted = false
			inProgress++
		default:
			allCompleted = false
		}
	}
	if allCompleted {
		return Decision{Outcome: OutcomeSpecComplete}
	}
	if f.provided() && readyCount > 0 {
		return Decision{Outcome: OutcomeNothingMatches}
	}
	return Decision{Outcome: OutcomeAllBlocked, Blocked: blocked, InProgress: inProgress}
}
