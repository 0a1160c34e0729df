package store

import (
	"context"
	"time"

	"github.com/gofrs/flock"

	"github.com/specdeck/specdeck/internal/spec"
)

// Lock is a held advisory lock on a spec file. Release is safe to call
// more than once.
type Lock struct {
	fl       *flock.Flock
	released bool
}

// Release drops the lock.
func (l *Lock) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	_ = l.fl.Unlock()
}

// AcquireLock takes the exclusive advisory lock guarding the document
// at path, polling until the store's lock timeout elapses. On timeout
// the caller gets LockContention with a remediation hint; there is no
// silent retry that could interleave with another writer.
func (s *Store) AcquireLock(path string) (*Lock, error) {
	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ok, err := fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil && ctx.Err() == nil {
		return nil, spec.Wrap(spec.KindIO, err, "locking %s", path)
	}
	if !ok {
		return nil, spec.E(spec.KindLockContention,
			"could not lock %s within %s; another sdd process may be writing this spec", path, timeout).
			WithDetails(map[string]any{"path": path + ".lock", "timeout": timeout.String()})
	}
	return &Lock{fl: fl}, nil
}
