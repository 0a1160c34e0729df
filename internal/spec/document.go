// Package spec holds the in-memory model of a spec document: the node
// hierarchy, journal, cached counts, and the bottom-up status
// propagation that keeps derived state consistent after mutations.
//
// A Document is always the unit of load and save. Parse builds parent
// pointers so upward propagation and scheduling never re-scan the tree.
package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DocStatus is the lifecycle state of a whole spec document. It always
// mirrors the bucket directory the file lives in.
type DocStatus string

const (
	DocPending   DocStatus = "pending"
	DocActive    DocStatus = "active"
	DocCompleted DocStatus = "completed"
	DocArchived  DocStatus = "archived"
)

// IsValid returns true for the four lifecycle states.
func (s DocStatus) IsValid() bool {
	switch s {
	case DocPending, DocActive, DocCompleted, DocArchived:
		return true
	}
	return false
}

// CommitCadence controls when the git hook offers to commit.
type CommitCadence string

const (
	CadenceTask   CommitCadence = "task"
	CadencePhase  CommitCadence = "phase"
	CadenceManual CommitCadence = "manual"
)

// SessionPreferences is metadata.session_preferences.
type SessionPreferences struct {
	CommitCadence CommitCadence `json:"commit_cadence,omitempty"`
	AutoVerify    bool          `json:"auto_verify,omitempty"`
}

// GitMeta is the metadata.git mapping.
type GitMeta struct {
	BranchName string         `json:"branch_name,omitempty"`
	BaseBranch string         `json:"base_branch,omitempty"`
	Commits    []Commit       `json:"commits,omitempty"`
	PR         map[string]any `json:"pr,omitempty"`
}

// DocMetadata is the document-level metadata mapping. Unknown keys are
// preserved in Extra.
type DocMetadata struct {
	Title              string              `json:"title"`
	Description        string              `json:"description,omitempty"`
	Status             DocStatus           `json:"status"`
	CreatedAt          string              `json:"created_at"`
	LastUpdated        string              `json:"last_updated"`
	Owner              string              `json:"owner,omitempty"`
	Priority           string              `json:"priority,omitempty"`
	Version            string              `json:"version"`
	SessionPreferences *SessionPreferences `json:"session_preferences,omitempty"`
	Git                *GitMeta            `json:"git,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var docMetaKnownKeys = map[string]bool{
	"title": true, "description": true, "status": true,
	"created_at": true, "last_updated": true, "owner": true,
	"priority": true, "version": true, "session_preferences": true,
	"git": true,
}

type docMetadataAlias DocMetadata

// UnmarshalJSON keeps unrecognized metadata keys in Extra.
func (m *DocMetadata) UnmarshalJSON(data []byte) error {
	var alias docMetadataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = DocMetadata(alias)
	for k, v := range raw {
		if docMetaKnownKeys[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = map[string]json.RawMessage{}
		}
		m.Extra[k] = v
	}
	return nil
}

// MarshalJSON emits known keys then extra keys sorted by name.
func (m DocMetadata) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(docMetadataAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return b, nil
	}
	var buf strings.Builder
	buf.WriteString(strings.TrimSuffix(string(b), "}"))
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(m.Extra[k])
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

// Document is one complete spec: identity, metadata, the phase
// hierarchy, the append-only journal, and cached document-level counts.
type Document struct {
	SpecID    string
	Metadata  DocMetadata
	Hierarchy []*Node
	Journal   []*JournalEntry
	Counts    Counts
	Extra     map[string]json.RawMessage

	index   map[string]*Node
	version uint64
}

type documentJSON struct {
	SpecID    string          `json:"spec_id"`
	Metadata  DocMetadata     `json:"metadata"`
	Hierarchy []*Node         `json:"hierarchy"`
	Journal   []*JournalEntry `json:"journal"`
	Counts    Counts          `json:"counts"`
}

var docKnownKeys = map[string]bool{
	"spec_id": true, "metadata": true, "hierarchy": true,
	"journal": true, "counts": true,
}

// Parse decodes a spec document from JSON and links parent pointers.
func Parse(data []byte) (*Document, error) {
	var dj documentJSON
	if err := json.Unmarshal(data, &dj); err != nil {
		return nil, fmt.Errorf("parsing spec document: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing spec document: %w", err)
	}
	doc := &Document{
		SpecID:    dj.SpecID,
		Metadata:  dj.Metadata,
		Hierarchy: dj.Hierarchy,
		Journal:   dj.Journal,
		Counts:    dj.Counts,
	}
	for k, v := range raw {
		if docKnownKeys[k] {
			continue
		}
		if doc.Extra == nil {
			doc.Extra = map[string]json.RawMessage{}
		}
		doc.Extra[k] = v
	}
	doc.Relink()
	return doc, nil
}

// Serialize encodes the document as indented JSON with a trailing
// newline, the on-disk format.
func (d *Document) Serialize() ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('{')
	write := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(key)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(vb)
		return nil
	}
	if err := write("spec_id", d.SpecID); err != nil {
		return nil, err
	}
	if err := write("metadata", d.Metadata); err != nil {
		return nil, err
	}
	hierarchy := d.Hierarchy
	if hierarchy == nil {
		hierarchy = []*Node{}
	}
	if err := write("hierarchy", hierarchy); err != nil {
		return nil, err
	}
	journal := d.Journal
	if journal == nil {
		journal = []*JournalEntry{}
	}
	if err := write("journal", journal); err != nil {
		return nil, err
	}
	if err := write("counts", d.Counts); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(d.Extra[k])
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, []byte(buf.String()), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Relink rebuilds parent pointers and the ID index. Call after any
// structural edit to the hierarchy.
func (d *Document) Relink() {
	d.index = make(map[string]*Node)
	var link func(n *Node, parent *Node)
	link = func(n *Node, parent *Node) {
		n.parent = parent
		if n.Metadata == nil {
			n.Metadata = Metadata{}
		}
		if _, dup := d.index[n.ID]; !dup {
			d.index[n.ID] = n
		}
		for _, c := range n.Children {
			link(c, n)
		}
	}
	for _, phase := range d.Hierarchy {
		link(phase, nil)
	}
	d.version++
}

// Version is a monotonically increasing in-memory counter bumped on
// every Relink and Bump. The dependency graph memoizes per version.
func (d *Document) Version() uint64 {
	return d.version
}

// Bump invalidates memoized derived structures without relinking.
func (d *Document) Bump() {
	d.version++
}

// Find returns the node with the given ID, or nil.
func (d *Document) Find(id string) *Node {
	if d.index == nil {
		d.Relink()
	}
	return d.index[id]
}

// Walk visits every node in document order.
func (d *Document) Walk(fn func(*Node) bool) {
	for _, phase := range d.Hierarchy {
		if !phase.Walk(fn) {
			return
		}
	}
}

// Leaves returns all leaf nodes in document order.
func (d *Document) Leaves() []*Node {
	var leaves []*Node
	d.Walk(func(n *Node) bool {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
		return true
	})
	return leaves
}

// Nodes returns every node in document order.
func (d *Document) Nodes() []*Node {
	var all []*Node
	d.Walk(func(n *Node) bool {
		all = append(all, n)
		return true
	})
	return all
}

// Clone returns a deep copy of the document via serialization. The
// clone carries the same version counter as the original so memoized
// graph state is not accidentally shared.
func (d *Document) Clone() (*Document, error) {
	data, err := d.Serialize()
	if err != nil {
		return nil, err
	}
	clone, err := Parse(data)
	if err != nil {
		return nil, err
	}
	clone.version = d.version + 1
	return clone, nil
}

// TouchLastUpdated bumps metadata.last_updated to now (UTC).
func (d *Document) TouchLastUpdated(now time.Time) {
	d.Metadata.LastUpdated = now.UTC().Format(time.RFC3339)
}

var specIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*-\d{4}-\d{2}-\d{2}-\d{3}$`)

// ValidSpecID reports whether id has the canonical shape: lowercase
// kebab slug with a trailing date and counter, e.g.
// "user-auth-2026-08-25-001".
func ValidSpecID(id string) bool {
	return specIDPattern.MatchString(id)
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// NewSpecID derives a spec ID from a title, creation date and a
// per-day counter.
func NewSpecID(title string, now time.Time, counter int) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugStrip.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "spec"
	}
	return fmt.Sprintf("%s-%s-%03d", slug, now.UTC().Format("2006-01-02"), counter)
}
