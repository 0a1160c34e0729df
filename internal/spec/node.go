package spec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// NodeType identifies the level of a node in the hierarchy.
type NodeType string

const (
	TypePhase  NodeType = "phase"
	TypeGroup  NodeType = "group"
	TypeTask   NodeType = "task"
	TypeVerify NodeType = "verify"
)

// IsValid returns true if the node type is one of the known values.
func (t NodeType) IsValid() bool {
	switch t {
	case TypePhase, TypeGroup, TypeTask, TypeVerify:
		return true
	}
	return false
}

// Status is the execution state of a node.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// IsValid returns true if the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// ID shape per node type. The numeric segments encode position:
// phase-N, group-N-M, task-N-M or task-N-M-K, verify mirrors task.
var idShapes = map[NodeType]*regexp.Regexp{
	TypePhase:  regexp.MustCompile(`^phase-\d+$`),
	TypeGroup:  regexp.MustCompile(`^group-\d+-\d+$`),
	TypeTask:   regexp.MustCompile(`^task-\d+-\d+(-\d+)?$`),
	TypeVerify: regexp.MustCompile(`^verify-\d+-\d+(-\d+)?$`),
}

// ValidIDShape reports whether id matches the shape required for typ.
func ValidIDShape(typ NodeType, id string) bool {
	re, ok := idShapes[typ]
	if !ok {
		return false
	}
	return re.MatchString(id)
}

// PhaseNumber extracts the leading phase number from any node ID.
// Returns -1 if the ID has no numeric phase segment.
func PhaseNumber(id string) int {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) < 2 {
		return -1
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return -1
	}
	return n
}

// Dependencies holds the two disjoint predecessor sets of a node.
// blocked_by entries are hard dependencies; soft_depends are
// preference-only and affect scheduler tie-breaks.
type Dependencies struct {
	BlockedBy   []string `json:"blocked_by,omitempty"`
	SoftDepends []string `json:"soft_depends,omitempty"`
}

// IsEmpty returns true when both sets are empty.
func (d Dependencies) IsEmpty() bool {
	return len(d.BlockedBy) == 0 && len(d.SoftDepends) == 0
}

// Counts is the cached aggregate of descendant leaves by status.
type Counts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Blocked    int `json:"blocked"`
	Percent    int `json:"percent"`
}

// Add accumulates other into c and refreshes Percent.
func (c *Counts) Add(other Counts) {
	c.Total += other.Total
	c.Completed += other.Completed
	c.Pending += other.Pending
	c.InProgress += other.InProgress
	c.Blocked += other.Blocked
	c.refreshPercent()
}

func (c *Counts) refreshPercent() {
	if c.Total == 0 {
		c.Percent = 0
		return
	}
	c.Percent = c.Completed * 100 / c.Total
}

// ForLeaf returns the unit count for a single leaf with the given status.
func ForLeaf(status Status) Counts {
	c := Counts{Total: 1}
	switch status {
	case StatusCompleted:
		c.Completed = 1
		c.Percent = 100
	case StatusPending:
		c.Pending = 1
	case StatusInProgress:
		c.InProgress = 1
	case StatusBlocked:
		c.Blocked = 1
	}
	return c
}

// Node is one element of the spec hierarchy. Phases contain groups or
// tasks, groups contain tasks, tasks may contain subtasks and a tail of
// verify leaves. Unknown JSON keys survive a load/save round trip via
// Extra.
type Node struct {
	ID           string
	Type         NodeType
	Title        string
	Description  string
	Status       Status
	Metadata     Metadata
	Children     []*Node
	Dependencies Dependencies
	Counts       *Counts
	Extra        map[string]json.RawMessage

	parent *Node
}

// IsLeaf returns true for nodes with no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Parent returns the parent node, or nil for a top-level phase.
// Parent pointers are established by Document.link after load and by
// structural edits.
func (n *Node) Parent() *Node {
	return n.parent
}

// Phase walks up to the enclosing phase node (or self for a phase).
func (n *Node) Phase() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Depth returns 1 for a phase, increasing by one per level.
func (n *Node) Depth() int {
	d := 1
	for cur := n.parent; cur != nil; cur = cur.parent {
		d++
	}
	return d
}

// Walk visits n and all descendants in document order. Returning false
// from fn stops the walk.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

type nodeJSON struct {
	ID           string          `json:"id"`
	Type         NodeType        `json:"type"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Status       Status          `json:"status"`
	Metadata     Metadata        `json:"metadata"`
	Children     []*Node         `json:"children"`
	Dependencies Dependencies    `json:"dependencies"`
	Counts       *Counts         `json:"counts,omitempty"`
}

var nodeKnownKeys = map[string]bool{
	"id": true, "type": true, "title": true, "description": true,
	"status": true, "metadata": true, "children": true,
	"dependencies": true, "counts": true,
}

// UnmarshalJSON decodes known fields and stashes everything else in
// Extra so foreign keys round-trip untouched.
func (n *Node) UnmarshalJSON(data []byte) error {
	var nj nodeJSON
	if err := json.Unmarshal(data, &nj); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.ID = nj.ID
	n.Type = nj.Type
	n.Title = nj.Title
	n.Description = nj.Description
	n.Status = nj.Status
	n.Metadata = nj.Metadata
	if n.Metadata == nil {
		n.Metadata = Metadata{}
	}
	n.Children = nj.Children
	n.Dependencies = nj.Dependencies
	n.Counts = nj.Counts
	for k, v := range raw {
		if nodeKnownKeys[k] {
			continue
		}
		if n.Extra == nil {
			n.Extra = map[string]json.RawMessage{}
		}
		n.Extra[k] = v
	}
	return nil
}

// MarshalJSON emits known fields in a stable order followed by extra
// keys sorted by name.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('{')
	writeField := func(key string, v any) error {
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
	if err := writeField("id", n.ID); err != nil {
		return nil, err
	}
	if err := writeField("type", n.Type); err != nil {
		return nil, err
	}
	if err := writeField("title", n.Title); err != nil {
		return nil, err
	}
	if n.Description != "" {
		if err := writeField("description", n.Description); err != nil {
			return nil, err
		}
	}
	if err := writeField("status", n.Status); err != nil {
		return nil, err
	}
	meta := n.Metadata
	if meta == nil {
		meta = Metadata{}
	}
	if err := writeField("metadata", meta); err != nil {
		return nil, err
	}
	children := n.Children
	if children == nil {
		children = []*Node{}
	}
	if err := writeField("children", children); err != nil {
		return nil, err
	}
	if err := writeField("dependencies", n.Dependencies); err != nil {
		return nil, err
	}
	if n.Counts != nil {
		if err := writeField("counts", n.Counts); err != nil {
			return nil, err
		}
	}
	keys := make([]string, 0, len(n.Extra))
	for k := range n.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(n.Extra[k])
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.ID, n.Status)
}
