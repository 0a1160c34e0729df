// Package store persists spec documents as one JSON file per spec in
// exactly one lifecycle bucket directory. All writes are atomic
// (write-temp, fsync, rename) and serialized by an advisory file lock
// next to the document. Readers never take the lock; they tolerate an
// in-flight rename by always seeing either the old or the new file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/specdeck/specdeck/internal/debug"
	"github.com/specdeck/specdeck/internal/spec"
)

// Bucket is one of the four lifecycle directories under the specs root.
type Bucket string

const (
	BucketPending   Bucket = "pending"
	BucketActive    Bucket = "active"
	BucketCompleted Bucket = "completed"
	BucketArchived  Bucket = "archived"
)

// lookupOrder is the precedence used when a spec appears in more than
// one bucket.
var lookupOrder = []Bucket{BucketActive, BucketPending, BucketCompleted, BucketArchived}

// Buckets returns all bucket names in precedence order.
func Buckets() []Bucket {
	return append([]Bucket(nil), lookupOrder...)
}

// ParseBucket validates a user-supplied bucket name.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case BucketPending, BucketActive, BucketCompleted, BucketArchived:
		return b, nil
	}
	return "", spec.E(spec.KindUser, "unknown bucket %q (expected pending, active, completed or archived)", s)
}

// DocStatus returns the document lifecycle status matching the bucket.
func (b Bucket) DocStatus() spec.DocStatus {
	return spec.DocStatus(b)
}

// Store reads and writes spec documents under a configured root.
type Store struct {
	Root        string
	LockTimeout time.Duration
	MaxFileSize int64
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Defaults applied by New.
const (
	DefaultLockTimeout = 10 * time.Second
	DefaultMaxFileSize = 100 << 20
)

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{
		Root:        dir,
		LockTimeout: DefaultLockTimeout,
		MaxFileSize: DefaultMaxFileSize,
		Now:         time.Now,
	}
}

// Path returns the document path for a spec in a bucket.
func (s *Store) Path(specID string, bucket Bucket) string {
	return filepath.Join(s.Root, string(bucket), specID+".json")
}

// ReportsDir returns the directory validation reports are written to.
func (s *Store) ReportsDir() string {
	return filepath.Join(s.Root, ".reports")
}

// Locate finds the bucket holding specID. When the spec exists in more
// than one bucket the highest-precedence match wins and a warning names
// the duplicates.
func (s *Store) Locate(specID string) (path string, bucket Bucket, warning string, err error) {
	var found []Bucket
	for _, b := range lookupOrder {
		if _, statErr := os.Stat(s.Path(specID, b)); statErr == nil {
			found = append(found, b)
		}
	}
	if len(found) == 0 {
		return "", "", "", spec.E(spec.KindNotFound, "spec %q not found under %s", specID, s.Root)
	}
	bucket = found[0]
	if len(found) > 1 {
		names := make([]string, len(found))
		for i, b := range found {
			names[i] = string(b)
		}
		warning = fmt.Sprintf("spec %s exists in multiple buckets (%s); using %s",
			specID, strings.Join(names, ", "), bucket)
	}
	return s.Path(specID, bucket), bucket, warning, nil
}

// retryableRead reports whether a read failure is worth retrying:
// EINTR and transient lock contention on some filesystems.
func retryableRead(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

// Load reads and parses the document for specID from whichever bucket
// holds it. Reads are retried twice with 50ms backoff on transient
// errors.
func (s *Store) Load(specID string) (*spec.Document, Bucket, error) {
	path, bucket, warning, err := s.Locate(specID)
	if err != nil {
		return nil, "", err
	}
	if warning != "" {
		debug.Logf("store: %s", warning)
	}
	doc, err := s.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	return doc, bucket, nil
}

// LoadFile reads and parses a spec document from an explicit path.
func (s *Store) LoadFile(path string) (*spec.Document, error) {
	var data []byte
	err := retry.Do(
		func() error {
			var readErr error
			data, readErr = os.ReadFile(path)
			return readErr
		},
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(retryableRead),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, spec.Wrap(spec.KindNotFound, err, "spec file %s", path)
		}
		return nil, spec.Wrap(spec.KindIO, err, "reading %s", path)
	}
	if s.MaxFileSize > 0 && int64(len(data)) > s.MaxFileSize {
		return nil, spec.E(spec.KindMalformedSpec, "%s exceeds the %d byte spec size limit", path, s.MaxFileSize)
	}
	doc, err := spec.Parse(data)
	if err != nil {
		return nil, malformedError(path, err)
	}
	if verr := spec.CheckReadVersion(doc.Metadata.Version); verr != nil {
		return nil, verr
	}
	return doc, nil
}

// malformedError extracts the byte offset from a JSON syntax error when
// available.
func malformedError(path string, err error) error {
	details := map[string]any{"path": path}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		details["byte_offset"] = syn.Offset
	}
	return spec.Wrap(spec.KindMalformedSpec, err, "parsing %s", path).WithDetails(details)
}

// SaveOptions controls Save behavior.
type SaveOptions struct {
	// Backup copies the current file to <path>.backup.<ts> first.
	Backup bool
	// LockHeld skips lock acquisition when the caller (a transaction)
	// already holds the spec lock.
	LockHeld bool
}

// Save atomically persists the document into its current bucket,
// bumping metadata.last_updated. The write is never partially visible:
// temp file, fsync, rename.
func (s *Store) Save(specID string, doc *spec.Document, opts SaveOptions) error {
	path, _, _, err := s.Locate(specID)
	if err != nil {
		if !spec.IsKind(err, spec.KindNotFound) {
			return err
		}
		// First save of a new document goes to pending.
		path = s.Path(specID, BucketPending)
	}
	return s.SaveAt(path, doc, opts)
}

// SaveAt persists the document at an explicit path.
func (s *Store) SaveAt(path string, doc *spec.Document, opts SaveOptions) error {
	if err := spec.CheckWriteVersion(doc.Metadata.Version); err != nil {
		return err
	}
	// The bucket directory must exist before the lock file can be
	// created in it.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return spec.Wrap(spec.KindIO, err, "creating bucket directory")
	}
	if !opts.LockHeld {
		lock, err := s.AcquireLock(path)
		if err != nil {
			return err
		}
		defer lock.Release()
	}
	doc.TouchLastUpdated(s.Now())
	data, err := doc.Serialize()
	if err != nil {
		return spec.Wrap(spec.KindInternal, err, "serializing %s", doc.SpecID)
	}
	if opts.Backup {
		if err := s.backup(path); err != nil {
			return err
		}
	}
	return atomicWrite(path, data)
}

func (s *Store) backup(path string) error {
	src, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return spec.Wrap(spec.KindIO, err, "opening %s for backup", path)
	}
	defer src.Close()
	ts := s.Now().UTC().Format("20060102T150405")
	dst, err := os.Create(path + ".backup." + ts)
	if err != nil {
		return spec.Wrap(spec.KindIO, err, "creating backup for %s", path)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return spec.Wrap(spec.KindIO, err, "writing backup for %s", path)
	}
	return nil
}

// atomicWrite writes data to path via a temp file in the same
// directory, fsyncs, then renames over the target.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return spec.Wrap(spec.KindIO, err, "creating %s", tmp)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return spec.Wrap(spec.KindIO, err, "writing %s", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return spec.Wrap(spec.KindIO, err, "syncing %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return spec.Wrap(spec.KindIO, err, "closing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return spec.Wrap(spec.KindIO, err, "renaming %s into place", tmp)
	}
	return nil
}

// Move relocates a spec file into another bucket. Same-filesystem
// rename keeps the operation atomic; the fallback copies, fsyncs, then
// unlinks the source so the document is never missing from both
// buckets.
func (s *Store) Move(specID string, target Bucket) (string, error) {
	srcPath, srcBucket, _, err := s.Locate(specID)
	if err != nil {
		return "", err
	}
	if srcBucket == target {
		return srcPath, nil
	}
	lock, err := s.AcquireLock(srcPath)
	if err != nil {
		return "", err
	}
	defer lock.Release()
	return s.MoveLocked(specID, target)
}

// MoveLocked is Move for callers already holding the spec lock, such
// as a transaction committing a bucket transition.
func (s *Store) MoveLocked(specID string, target Bucket) (string, error) {
	srcPath, srcBucket, _, err := s.Locate(specID)
	if err != nil {
		return "", err
	}
	if srcBucket == target {
		return srcPath, nil
	}
	dstPath := s.Path(specID, target)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", spec.Wrap(spec.KindIO, err, "creating bucket %s", target)
	}
	if err := os.Rename(srcPath, dstPath); err == nil {
		return dstPath, nil
	}
	// Cross-device fallback.
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", spec.Wrap(spec.KindIO, err, "reading %s for move", srcPath)
	}
	if err := atomicWrite(dstPath, data); err != nil {
		return "", err
	}
	if err := os.Remove(srcPath); err != nil {
		return "", spec.Wrap(spec.KindIO, err, "removing %s after move", srcPath)
	}
	return dstPath, nil
}

// SpecInfo describes a stored spec file for listings.
type SpecInfo struct {
	SpecID  string `json:"spec_id"`
	Bucket  Bucket `json:"bucket"`
	Path    string `json:"path"`
	ModTime string `json:"mod_time"`
	Size    int64  `json:"size"`
}

// List enumerates spec files in one bucket sorted by spec ID.
func (s *Store) List(bucket Bucket) ([]SpecInfo, error) {
	dir := filepath.Join(s.Root, string(bucket))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, spec.Wrap(spec.KindIO, err, "reading bucket %s", bucket)
	}
	var infos []SpecInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") || strings.Contains(name, ".backup.") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, SpecInfo{
			SpecID:  strings.TrimSuffix(name, ".json"),
			Bucket:  bucket,
			Path:    filepath.Join(dir, name),
			ModTime: fi.ModTime().UTC().Format(time.RFC3339),
			Size:    fi.Size(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SpecID < infos[j].SpecID })
	return infos, nil
}

// ListAll enumerates every bucket in precedence order.
func (s *Store) ListAll() ([]SpecInfo, error) {
	var all []SpecInfo
	for _, b := range lookupOrder {
		infos, err := s.List(b)
		if err != nil {
			return nil, err
		}
		all = append(all, infos...)
	}
	return all, nil
}

// Find returns specs whose ID matches the doublestar glob pattern.
func (s *Store) Find(pattern string) ([]SpecInfo, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, spec.E(spec.KindUser, "invalid glob pattern %q", pattern)
	}
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	var out []SpecInfo
	for _, info := range all {
		ok, err := doublestar.Match(pattern, info.SpecID)
		if err != nil {
			return nil, spec.Wrap(spec.KindUser, err, "matching %q", pattern)
		}
		if ok {
			out = append(out, info)
		}
	}
	return out, nil
}
