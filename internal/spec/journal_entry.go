package spec

import (
	"time"
)

// EntryType classifies a journal entry.
type EntryType string

const (
	EntryDecision     EntryType = "decision"
	EntryDeviation    EntryType = "deviation"
	EntryBlocker      EntryType = "blocker"
	EntryNote         EntryType = "note"
	EntryStatusChange EntryType = "status_change"
	EntryVerification EntryType = "verification"
	EntrySystem       EntryType = "system"
)

// IsValid returns true for the known entry types.
func (t EntryType) IsValid() bool {
	switch t {
	case EntryDecision, EntryDeviation, EntryBlocker, EntryNote,
		EntryStatusChange, EntryVerification, EntrySystem:
		return true
	}
	return false
}

// JournalEntry is one immutable event in the document journal.
// Entries are appended, never edited. The ID is a ULID assigned at
// append time; documents written by older versions may omit it.
type JournalEntry struct {
	ID        string    `json:"id,omitempty"`
	Timestamp string    `json:"timestamp"`
	EntryType EntryType `json:"entry_type"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Author    string    `json:"author,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// Time parses the entry timestamp. Zero time on malformed input.
func (e *JournalEntry) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// LastJournalTime returns the timestamp of the newest journal entry,
// or zero when the journal is empty.
func (d *Document) LastJournalTime() time.Time {
	if len(d.Journal) == 0 {
		return time.Time{}
	}
	return d.Journal[len(d.Journal)-1].Time()
}

// JournalFor returns all entries referencing the given task ID, in
// append order.
func (d *Document) JournalFor(taskID string) []*JournalEntry {
	var out []*JournalEntry
	for _, e := range d.Journal {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}
