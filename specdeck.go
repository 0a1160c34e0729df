// Package specdeck provides a minimal public API for extending sdd with
// custom orchestration.
//
// Most extensions should drive the sdd CLI with --json output. This
// package exports only the essential types and functions needed for
// Go-based extensions that want to use the spec engine programmatically.
package specdeck

import (
	"github.com/specdeck/specdeck/internal/graph"
	"github.com/specdeck/specdeck/internal/schedule"
	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/store"
	"github.com/specdeck/specdeck/internal/txn"
)

// Store manages spec documents across lifecycle buckets under a specs
// root directory.
type Store = store.Store

// Bucket is a lifecycle directory: pending, active, completed or
// archived.
type Bucket = store.Bucket

// SpecInfo describes one stored spec without loading it.
type SpecInfo = store.SpecInfo

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return store.New(dir)
}

// Buckets returns all lifecycle buckets in order.
func Buckets() []Bucket {
	return store.Buckets()
}

// Transactor applies modification operations atomically.
// Use NewTransactor to obtain one bound to a store.
type Transactor = txn.Transactor

// NewTransactor creates a transactor over st.
func NewTransactor(st *Store) *Transactor {
	return txn.New(st)
}

// Graph is the dependency graph over a document's nodes.
type Graph = graph.Graph

// NewGraph builds the dependency graph for doc.
func NewGraph(doc *Document) *Graph {
	return graph.New(doc)
}

// Filters narrows scheduler candidate selection.
type Filters = schedule.Filters

// Decision is the scheduler's answer.
type Decision = schedule.Decision

// NextTask picks the next actionable task deterministically.
func NextTask(doc *Document, f schedule.Filters) schedule.Decision {
	return schedule.NextTask(doc, f)
}

// Core types.
type (
	Document           = spec.Document
	Node               = spec.Node
	NodeType           = spec.NodeType
	Status             = spec.Status
	DocStatus          = spec.DocStatus
	JournalEntry       = spec.JournalEntry
	EntryType          = spec.EntryType
	Metadata           = spec.Metadata
	VerificationResult = spec.VerificationResult
	Error              = spec.Error
	Kind               = spec.Kind
)

// Node type constants.
const (
	TypePhase  = spec.TypePhase
	TypeGroup  = spec.TypeGroup
	TypeTask   = spec.TypeTask
	TypeVerify = spec.TypeVerify
)

// Status constants.
const (
	StatusPending    = spec.StatusPending
	StatusInProgress = spec.StatusInProgress
	StatusCompleted  = spec.StatusCompleted
	StatusBlocked    = spec.StatusBlocked
)

// Bucket constants.
const (
	BucketPending   = store.BucketPending
	BucketActive    = store.BucketActive
	BucketCompleted = store.BucketCompleted
	BucketArchived  = store.BucketArchived
)

// Error kind constants.
const (
	KindUser              = spec.KindUser
	KindValidationFailed  = spec.KindValidationFailed
	KindLockContention    = spec.KindLockContention
	KindMalformedSpec     = spec.KindMalformedSpec
	KindNotFound          = spec.KindNotFound
	KindDependencyBlocked = spec.KindDependencyBlocked
	KindCycleDetected     = spec.KindCycleDetected
	KindConsultation      = spec.KindConsultation
	KindToolNotFound      = spec.KindToolNotFound
	KindIO                = spec.KindIO
	KindInternal          = spec.KindInternal
)

// ParseDocument parses spec JSON and rebuilds parent links.
func ParseDocument(data []byte) (*Document, error) {
	return spec.Parse(data)
}

// IsKind reports whether err carries the given error kind.
func IsKind(err error, kind Kind) bool {
	return spec.IsKind(err, kind)
}
