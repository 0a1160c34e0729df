// Package journal appends immutable events to a document's journal and
// records verification outcomes. Entries are never edited; timestamps
// never move backward.
package journal

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"

	"github.com/specdeck/specdeck/internal/spec"
)

// NewEntryID mints a ULID for a journal entry at the given time.
func NewEntryID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now.UTC()), rand.Reader).String()
}

// contentKey hashes the duplicate-detection key of an entry: type,
// title, content and task reference.
func contentKey(e *spec.JournalEntry) string {
	h := blake3.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", e.EntryType, e.Title, e.Content, e.TaskID)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Append adds an entry to the journal, assigning its ID and timestamp.
// The timestamp is max(now, last+1ms) so the journal stays monotonic
// even when the wall clock steps backward. An entry whose content key
// matches an existing entry within the same wall-clock second is a
// no-op; Append returns the existing entry and false.
func Append(doc *spec.Document, e *spec.JournalEntry, now time.Time) (*spec.JournalEntry, bool) {
	now = now.UTC()
	ts := now
	if last := doc.LastJournalTime(); !last.Before(ts) {
		ts = last.Add(time.Millisecond)
	}

	key := contentKey(e)
	for i := len(doc.Journal) - 1; i >= 0; i-- {
		prev := doc.Journal[i]
		if prev.Time().Before(now.Truncate(time.Second)) {
			break
		}
		if contentKey(prev) == key {
			return prev, false
		}
	}

	e.ID = NewEntryID(ts)
	e.Timestamp = ts.Format(time.RFC3339Nano)
	doc.Journal = append(doc.Journal, e)
	return e, true
}

// AppendStatusChange journals a status transition for a node and
// clears its needs_journaling flag.
func AppendStatusChange(doc *spec.Document, n *spec.Node, from, to spec.Status, auto bool, now time.Time) *spec.JournalEntry {
	author := ""
	if auto {
		author = "sdd"
	}
	e := &spec.JournalEntry{
		EntryType: spec.EntryStatusChange,
		Title:     fmt.Sprintf("%s: %s -> %s", n.ID, from, to),
		Content:   fmt.Sprintf("Status of %s changed from %s to %s", n.Title, from, to),
		TaskID:    n.ID,
		Author:    author,
	}
	entry, _ := Append(doc, e, now)
	delete(n.Metadata, spec.MetaNeedsJournaling)
	return entry
}

// FlagUnjournaled marks a node whose status changed inside a
// transaction that appended no entry mentioning it.
func FlagUnjournaled(n *spec.Node) {
	n.Metadata[spec.MetaNeedsJournaling] = true
}

// VerificationPolicy is the outcome of applying a verification result
// to a verify node.
type VerificationPolicy struct {
	// NewStatus the verify node ends in.
	NewStatus spec.Status
	// Retry is true when the caller should re-run the verification
	// instead of persisting this outcome.
	Retry bool
}

// ApplyResult records a verification result on a verify node and moves
// its status per policy: PASSED completes it, FAILED blocks it unless
// on_failure.revert_status names another status, PARTIAL leaves it
// in_progress. Returns the propagation events from the status change.
func ApplyResult(doc *spec.Document, verify *spec.Node, result spec.VerificationResult, now time.Time) ([]spec.Event, error) {
	if verify.Type != spec.TypeVerify {
		return nil, spec.E(spec.KindUser, "%s is not a verify node", verify.ID)
	}
	if !spec.ValidVerificationStatus(result.Status) {
		return nil, spec.E(spec.KindUser, "unknown verification status %q", result.Status)
	}
	if result.Date == "" {
		result.Date = now.UTC().Format(time.RFC3339)
	}

	from := verify.Status
	var to spec.Status
	switch result.Status {
	case spec.VerifyPassed:
		to = spec.StatusCompleted
	case spec.VerifyFailed:
		to = spec.StatusBlocked
		if of, ok := verify.Metadata.OnFailure(); ok && of.RevertStatus != "" {
			s := spec.Status(of.RevertStatus)
			if !s.IsValid() {
				return nil, spec.E(spec.KindUser, "on_failure.revert_status %q is not a valid status", of.RevertStatus)
			}
			to = s
		}
	case spec.VerifyPartial:
		to = spec.StatusInProgress
	}

	if to == spec.StatusPending {
		// A pending verify node must not carry a result; the revert
		// means the attempt does not count as terminal.
		delete(verify.Metadata, spec.MetaVerificationResult)
	} else {
		verify.Metadata.SetVerificationResult(result)
	}
	verify.Status = to
	switch to {
	case spec.StatusInProgress:
		if _, ok := verify.Metadata.GetTime(spec.MetaStartedAt); !ok {
			verify.Metadata.SetTime(spec.MetaStartedAt, now)
		}
	case spec.StatusCompleted:
		if _, ok := verify.Metadata.GetTime(spec.MetaStartedAt); !ok {
			verify.Metadata.SetTime(spec.MetaStartedAt, now)
		}
		verify.Metadata.SetTime(spec.MetaCompletedAt, now)
	}

	entry := &spec.JournalEntry{
		EntryType: spec.EntryVerification,
		Title:     fmt.Sprintf("%s: %s", verify.ID, result.Status),
		Content:   result.Notes,
		TaskID:    verify.ID,
		Author:    "sdd",
	}
	Append(doc, entry, now)

	if to == from {
		return nil, nil
	}
	return doc.PropagateFrom(verify, now), nil
}
