package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/specdeck/specdeck/internal/debug"
	"github.com/specdeck/specdeck/internal/gitops"
	"github.com/specdeck/specdeck/internal/journal"
	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/store"
	"github.com/specdeck/specdeck/internal/validate"
)

// VerifyRunner executes a verify node's command and reports the
// outcome. The transactor never shells out itself; the runner is a
// port so tests substitute fakes.
type VerifyRunner interface {
	Run(ctx context.Context, command string, node *spec.Node) (spec.VerificationResult, error)
}

// Transactor applies op batches to stored specs.
type Transactor struct {
	Store  *store.Store
	Runner VerifyRunner
	Git    gitops.Port
	Now    func() time.Time
}

// New builds a transactor over a store.
func New(st *store.Store) *Transactor {
	return &Transactor{Store: st, Now: time.Now}
}

// Options controls one Apply invocation.
type Options struct {
	DryRun bool
	// NoValidateAfter skips the validate-or-rollback step. The default
	// (zero value) validates.
	NoValidateAfter bool
	// Backup controls whether Save writes a backup first. The CLI
	// sets it from the backup-on-save config key.
	Backup bool
	// RepoRoot is passed to the git hook when one is configured.
	RepoRoot string
}

// Change describes one op's effect for previews and summaries.
type Change struct {
	OpIndex int    `json:"op_index"`
	Kind    string `json:"kind"`
	Summary string `json:"summary"`
	Noop    bool   `json:"noop,omitempty"`
}

// Result is the outcome of a transaction.
type Result struct {
	SpecID     string          `json:"spec_id"`
	Bucket     store.Bucket    `json:"bucket"`
	OpsApplied int             `json:"ops_applied"`
	OpsNoop    int             `json:"ops_noop"`
	Changes    []Change        `json:"changes"`
	Events     []spec.Event    `json:"events,omitempty"`
	Issues     []validate.Issue `json:"issues,omitempty"`
	DryRun     bool            `json:"dry_run,omitempty"`
}

func (t *Transactor) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Apply runs the transaction protocol: load under a lock held for the
// whole transaction, mutate, validate, recompute, persist atomically.
// On any op or validation error nothing is written; the previous file
// remains the source of truth.
func (t *Transactor) Apply(ctx context.Context, specID string, ops []Op, opts Options) (*Result, error) {
	if len(ops) == 0 {
		return nil, spec.E(spec.KindUser, "no operations to apply")
	}
	path, bucket, warning, err := t.Store.Locate(specID)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		debug.Logf("txn: %s", warning)
	}
	lock, err := t.Store.AcquireLock(path)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	doc, err := t.Store.LoadFile(path)
	if err != nil {
		return nil, err
	}

	tx := &txState{
		doc:       doc,
		now:       t.now().UTC(),
		changed:   map[string]bool{},
		journaled: map[string]bool{},
	}

	result := &Result{SpecID: specID, Bucket: bucket, DryRun: opts.DryRun}
	completedTask := false
	for i, op := range ops {
		if ctx.Err() != nil {
			return nil, spec.Wrap(spec.KindIO, ctx.Err(), "transaction cancelled before op %d", i)
		}
		noop, summary, opErr := t.applyOne(ctx, tx, op)
		if opErr != nil {
			return nil, opError(i, op, opErr)
		}
		result.Changes = append(result.Changes, Change{OpIndex: i, Kind: op.Kind(), Summary: summary, Noop: noop})
		if noop {
			result.OpsNoop++
		} else {
			result.OpsApplied++
			if op.Kind() == "complete_task" {
				completedTask = true
			}
		}
	}

	// Journal ancestor auto-completions, then flag any leaf whose
	// status changed without an entry mentioning it.
	for _, ev := range tx.events {
		if ev.AutoCompletion() {
			if n := tx.doc.Find(ev.NodeID); n != nil {
				journal.AppendStatusChange(tx.doc, n, ev.From, ev.To, true, tx.now)
				tx.journaled[n.ID] = true
			}
		}
	}
	for id := range tx.changed {
		if tx.journaled[id] {
			continue
		}
		if n := tx.doc.Find(id); n != nil && n.IsLeaf() {
			journal.FlagUnjournaled(n)
		}
	}
	result.Events = tx.events

	// Derived state is final before validation.
	tx.doc.RecomputeAll(tx.now)

	if !opts.NoValidateAfter {
		issues := validate.All(tx.doc)
		result.Issues = issues
		if validate.HasErrors(issues) {
			return result, spec.E(spec.KindValidationFailed, "validation failed after applying operations; rolled back").
				WithDetails(map[string]any{"issues": issues, "rollback": true})
		}
	}

	if opts.DryRun {
		return result, nil
	}

	if err := t.Store.SaveAt(path, tx.doc, store.SaveOptions{Backup: opts.Backup, LockHeld: true}); err != nil {
		return nil, err
	}
	if tx.moveSet {
		newPath, err := t.Store.MoveLocked(specID, tx.moveTarget)
		if err != nil {
			return nil, err
		}
		result.Bucket = tx.moveTarget
		path = newPath
	}

	// The hook runs after the save so the commit includes the updated
	// spec file. Anything it records on the document needs one more
	// write.
	if completedTask || tx.doc.Counts.Total > 0 && tx.doc.Counts.Completed == tx.doc.Counts.Total {
		if t.runGitHook(tx, completedTask, opts.RepoRoot) {
			if err := t.Store.SaveAt(path, tx.doc, store.SaveOptions{LockHeld: true}); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// applyOne dispatches a single op, special-casing execute_verification
// which needs the runner and retry loop.
func (t *Transactor) applyOne(ctx context.Context, tx *txState, op Op) (bool, string, error) {
	if exec, ok := op.(ExecuteVerification); ok {
		return t.executeVerification(ctx, tx, exec)
	}
	return op.apply(tx)
}

// executeVerification runs the verify command up to 1+max_retries
// times. Intermediate failures are not persisted; only the terminal
// outcome reaches the document.
func (t *Transactor) executeVerification(ctx context.Context, tx *txState, op ExecuteVerification) (bool, string, error) {
	if t.Runner == nil {
		return false, "", spec.E(spec.KindInternal, "no verification runner configured")
	}
	n := tx.doc.Find(op.VerifyID)
	if n == nil {
		return false, "", spec.E(spec.KindNotFound, "verify node %q not found", op.VerifyID)
	}
	command := n.Metadata.GetString(spec.MetaCommand)
	if command == "" {
		return false, "", spec.E(spec.KindUser, "verify node %s has no command", n.ID)
	}
	retries := 0
	if of, ok := n.Metadata.OnFailure(); ok {
		retries = of.MaxRetries
	}
	var result spec.VerificationResult
	var runErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return false, "", spec.Wrap(spec.KindIO, ctx.Err(), "verification cancelled")
		}
		result, runErr = t.Runner.Run(ctx, command, n)
		if runErr != nil {
			return false, "", spec.Wrap(spec.KindIO, runErr, "running verification %s", n.ID)
		}
		if result.Status != spec.VerifyFailed {
			break
		}
		if attempt < retries {
			debug.Logf("txn: verification %s failed, retrying (%d/%d)", n.ID, attempt+1, retries)
		}
	}
	events, err := journal.ApplyResult(tx.doc, n, result, tx.now)
	if err != nil {
		return false, "", err
	}
	tx.changed[n.ID] = true
	tx.journaled[n.ID] = true
	tx.events = append(tx.events, events...)
	return false, fmt.Sprintf("%s: %s", n.ID, result.Status), nil
}

// runGitHook offers a commit per the document's session preferences.
// Hook failures become journal notes; they never roll the transaction
// back. Returns true when it recorded anything on the document.
func (t *Transactor) runGitHook(tx *txState, taskCompleted bool, repoRoot string) bool {
	if t.Git == nil {
		return false
	}
	cadence := spec.CadenceManual
	if prefs := tx.doc.Metadata.SessionPreferences; prefs != nil && prefs.CommitCadence != "" {
		cadence = prefs.CommitCadence
	} else {
		debug.Logf("txn: session_preferences.commit_cadence absent, treating as manual")
	}
	event := gitops.EventTaskCompleted
	if tx.doc.Counts.Total > 0 && tx.doc.Counts.Completed == tx.doc.Counts.Total {
		event = gitops.EventSpecCompleted
	} else if phaseCompleted(tx.events) {
		event = gitops.EventPhaseCompleted
	} else if !taskCompleted {
		return false
	}
	if !gitops.ShouldOfferCommit(cadence, event) {
		return false
	}
	sha, err := t.commitChanges(tx, repoRoot)
	if err != nil {
		tx.appendEntry(&spec.JournalEntry{
			EntryType: spec.EntryNote,
			Title:     "git hook failed",
			Content:   err.Error(),
			Author:    "sdd",
		})
		return true
	}
	if sha == "" {
		return false
	}
	git := tx.doc.Metadata.Git
	if git == nil {
		git = &spec.GitMeta{}
		tx.doc.Metadata.Git = git
	}
	git.Commits = append(git.Commits, spec.Commit{
		SHA:       sha,
		Timestamp: tx.now.Format(time.RFC3339),
		Message:   fmt.Sprintf("spec %s progress", tx.doc.SpecID),
	})
	return true
}

func (t *Transactor) commitChanges(tx *txState, repoRoot string) (string, error) {
	changed, err := t.Git.HasChanges(repoRoot)
	if err != nil {
		return "", err
	}
	if !changed {
		return "", nil
	}
	return t.Git.Commit(repoRoot, fmt.Sprintf("sdd: progress on %s", tx.doc.SpecID))
}

func phaseCompleted(events []spec.Event) bool {
	for _, ev := range events {
		if ev.AutoCompletion() && spec.ValidIDShape(spec.TypePhase, ev.NodeID) {
			return true
		}
	}
	return false
}

// opError wraps an op failure with its index and kind, preserving the
// underlying error's classification.
func opError(index int, op Op, err error) error {
	var se *spec.Error
	kind := spec.KindOf(err)
	se = spec.Wrap(kind, err, "op %d (%s) failed", index, op.Kind())
	se.Details = map[string]any{"op_index": index, "kind": op.Kind()}
	return se
}
