package review

import (
	"fmt"
	"strings"

	"github.com/specdeck/specdeck/internal/spec"
)

// planReviewSystem frames the reviewer role for plan reviews.
const planReviewSystem = `You are reviewing a software implementation plan.
Assess phase ordering, task granularity, missing work, and risky
dependencies. Answer in Markdown with sections: ## Status Changes,
## Blocked Tasks, ## Decisions. List items as bullets in the form
"- task-id: detail". Only use task IDs that appear in the plan.`

// fidelityReviewSystem frames the reviewer role for fidelity reviews.
const fidelityReviewSystem = `You are auditing whether completed work
matches its specification. For each task, compare the stated intent
with the journal and verification evidence. Answer in Markdown with
sections: ## Status Changes, ## Deviations, ## Verification Results.
List items as bullets in the form "- task-id: detail".`

// PlanReviewPrompt builds the (system, user) prompt pair for a
// plan-review consultation.
func PlanReviewPrompt(doc *spec.Document) (system, prompt string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the implementation plan for %q (%s).\n\n", doc.Metadata.Title, doc.SpecID)
	if doc.Metadata.Description != "" {
		fmt.Fprintf(&b, "Goal: %s\n\n", doc.Metadata.Description)
	}
	b.WriteString("Plan outline:\n")
	writeOutline(&b, doc, false)
	return planReviewSystem, b.String()
}

// FidelityReviewPrompt builds the prompt pair for a fidelity review.
// scope narrows to one task or phase subtree; empty reviews completed
// work across the whole document.
func FidelityReviewPrompt(doc *spec.Document, scope string) (system, prompt string, err error) {
	var root *spec.Node
	if scope != "" {
		root = doc.Find(scope)
		if root == nil {
			return "", "", spec.E(spec.KindNotFound, "node %q not found in %s", scope, doc.SpecID)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Audit implementation fidelity for %q (%s).\n\n", doc.Metadata.Title, doc.SpecID)
	if root != nil {
		fmt.Fprintf(&b, "Scope: %s %q\n\n", root.ID, root.Title)
	}
	b.WriteString("Work items with status:\n")
	writeScopedOutline(&b, doc, root)
	b.WriteString("\nJournal evidence:\n")
	writeJournalEvidence(&b, doc, root)
	return fidelityReviewSystem, b.String(), nil
}

func writeOutline(b *strings.Builder, doc *spec.Document, withStatus bool) {
	doc.Walk(func(n *spec.Node) bool {
		indent := strings.Repeat("  ", n.Depth())
		if withStatus {
			fmt.Fprintf(b, "%s- %s [%s] %s\n", indent, n.ID, n.Status, n.Title)
		} else {
			fmt.Fprintf(b, "%s- %s: %s\n", indent, n.ID, n.Title)
		}
		if len(n.Dependencies.BlockedBy) > 0 {
			fmt.Fprintf(b, "%s  blocked_by: %s\n", indent, strings.Join(n.Dependencies.BlockedBy, ", "))
		}
		return true
	})
}

func writeScopedOutline(b *strings.Builder, doc *spec.Document, root *spec.Node) {
	emit := func(n *spec.Node) bool {
		indent := strings.Repeat("  ", n.Depth())
		fmt.Fprintf(b, "%s- %s [%s] %s\n", indent, n.ID, n.Status, n.Title)
		if vr, ok := n.Metadata.VerificationResult(); ok {
			fmt.Fprintf(b, "%s  verification: %s %s\n", indent, vr.Status, vr.Notes)
		}
		return true
	}
	if root != nil {
		root.Walk(emit)
		return
	}
	doc.Walk(emit)
}

func writeJournalEvidence(b *strings.Builder, doc *spec.Document, root *spec.Node) {
	inScope := func(taskID string) bool {
		if root == nil || taskID == "" {
			return root == nil
		}
		n := doc.Find(taskID)
		for ; n != nil; n = n.Parent() {
			if n == root {
				return true
			}
		}
		return false
	}
	count := 0
	for i := len(doc.Journal) - 1; i >= 0 && count < 40; i-- {
		e := doc.Journal[i]
		if !inScope(e.TaskID) {
			continue
		}
		fmt.Fprintf(b, "- [%s] %s %s: %s\n", e.EntryType, e.Timestamp, e.Title, e.Content)
		count++
	}
	if count == 0 {
		b.WriteString("- (no journal entries)\n")
	}
}

// ReviewContext packages the structured context bytes for cache
// keying: the outline plus counts, stable across formatting changes
// to the prompt itself.
func ReviewContext(doc *spec.Document) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%d\n", doc.SpecID, doc.Counts.Total, doc.Counts.Completed)
	writeOutline(&b, doc, true)
	return []byte(b.String())
}
