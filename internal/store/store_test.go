package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specdeck/specdeck/internal/spec"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st := New(t.TempDir())
	st.Now = func() time.Time { return time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC) }
	return st
}

func testDoc(specID string) *spec.Document {
	doc := &spec.Document{
		SpecID: specID,
		Metadata: spec.DocMetadata{
			Title:       "Test",
			Status:      spec.DocPending,
			CreatedAt:   "2026-01-10T09:00:00Z",
			LastUpdated: "2026-01-10T09:00:00Z",
			Version:     spec.CurrentSchemaVersion,
		},
		Hierarchy: []*spec.Node{
			{
				ID: "phase-1", Type: spec.TypePhase, Title: "One", Status: spec.StatusPending, Metadata: spec.Metadata{},
				Children: []*spec.Node{
					{ID: "task-1-1", Type: spec.TypeTask, Title: "A", Status: spec.StatusPending, Metadata: spec.Metadata{}},
				},
			},
		},
	}
	doc.Relink()
	doc.RecomputeAll(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	return doc
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	st := testStore(t)
	doc := testDoc("round-2026-01-10-001")

	if err := st.Save(doc.SpecID, doc, SaveOptions{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, bucket, err := st.Load(doc.SpecID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if bucket != BucketPending {
		t.Errorf("new spec landed in %s, want pending", bucket)
	}
	if loaded.SpecID != doc.SpecID {
		t.Errorf("SpecID = %q", loaded.SpecID)
	}
	if loaded.Find("task-1-1") == nil {
		t.Error("hierarchy lost in round trip")
	}
}

func TestLoadMissing(t *testing.T) {
	st := testStore(t)
	_, _, err := st.Load("nope-2026-01-10-001")
	if !spec.IsKind(err, spec.KindNotFound) {
		t.Errorf("error = %v, want NotFound", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	st := testStore(t)
	path := st.Path("bad-2026-01-10-001", BucketPending)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := st.LoadFile(path)
	if !spec.IsKind(err, spec.KindMalformedSpec) {
		t.Errorf("error = %v, want MalformedSpec", err)
	}
}

func TestLoadRejectsFutureSchemaVersion(t *testing.T) {
	st := testStore(t)
	doc := testDoc("future-2026-01-10-001")
	doc.Metadata.Version = "1.9"
	if err := st.Save(doc.SpecID, doc, SaveOptions{}); err != nil {
		t.Fatal(err)
	}

	// Rewrite the version past the window on disk.
	path := st.Path(doc.SpecID, BucketPending)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data = []byte(strings.Replace(string(data), `"version": "1.9"`, `"version": "3.0"`, 1))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadFile(path); !spec.IsKind(err, spec.KindMalformedSpec) {
		t.Errorf("error = %v, want MalformedSpec for future schema", err)
	}
}

func TestSaveLeavesNoTempFileOnSuccess(t *testing.T) {
	st := testStore(t)
	doc := testDoc("atomic-2026-01-10-001")
	if err := st.Save(doc.SpecID, doc, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(st.Root, "pending"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSaveBackup(t *testing.T) {
	st := testStore(t)
	doc := testDoc("backup-2026-01-10-001")
	if err := st.Save(doc.SpecID, doc, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(doc.SpecID, doc, SaveOptions{Backup: true}); err != nil {
		t.Fatal(err)
	}
	matches, err := filepath.Glob(st.Path(doc.SpecID, BucketPending) + ".backup.*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("found %d backups, want 1", len(matches))
	}
}

func TestLocatePrecedence(t *testing.T) {
	st := testStore(t)
	doc := testDoc("dup-2026-01-10-001")
	for _, b := range []Bucket{BucketPending, BucketActive} {
		path := st.Path(doc.SpecID, b)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		data, err := doc.Serialize()
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_, bucket, warning, err := st.Locate(doc.SpecID)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if bucket != BucketActive {
		t.Errorf("bucket = %s, want active to win", bucket)
	}
	if warning == "" {
		t.Error("duplicate presence produced no warning")
	}
}

func TestMove(t *testing.T) {
	st := testStore(t)
	doc := testDoc("move-2026-01-10-001")
	if err := st.Save(doc.SpecID, doc, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	dst, err := st.Move(doc.SpecID, BucketActive)
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if dst != st.Path(doc.SpecID, BucketActive) {
		t.Errorf("destination = %s", dst)
	}
	if _, err := os.Stat(st.Path(doc.SpecID, BucketPending)); !os.IsNotExist(err) {
		t.Error("source file still present after move")
	}
	if _, bucket, err := st.Load(doc.SpecID); err != nil {
		t.Fatalf("Load after move failed: %v", err)
	} else if bucket != BucketActive {
		t.Errorf("spec now in %s, want active", bucket)
	}
}

func TestListSkipsBackupsAndForeignFiles(t *testing.T) {
	st := testStore(t)
	doc := testDoc("list-2026-01-10-001")
	if err := st.Save(doc.SpecID, doc, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(st.Root, "pending")
	for _, name := range []string{"list-2026-01-10-001.json.backup.20260110T090000", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	infos, err := st.List(BucketPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].SpecID != doc.SpecID {
		t.Errorf("List = %+v, want only %s", infos, doc.SpecID)
	}
}

func TestFindGlob(t *testing.T) {
	st := testStore(t)
	for _, id := range []string{"auth-api-2026-01-10-001", "auth-ui-2026-01-10-001", "billing-2026-01-10-001"} {
		if err := st.Save(id, testDoc(id), SaveOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := st.Find("auth-*")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("Find(auth-*) matched %d, want 2", len(got))
	}
	if _, err := st.Find("[bad"); !spec.IsKind(err, spec.KindUser) {
		t.Errorf("invalid pattern error = %v, want UserError", err)
	}
}

func TestLockContention(t *testing.T) {
	st := testStore(t)
	st.LockTimeout = 100 * time.Millisecond
	doc := testDoc("lock-2026-01-10-001")
	if err := st.Save(doc.SpecID, doc, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	path := st.Path(doc.SpecID, BucketPending)

	held, err := st.AcquireLock(path)
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}
	defer held.Release()

	if _, err := st.AcquireLock(path); !spec.IsKind(err, spec.KindLockContention) {
		t.Errorf("second lock error = %v, want LockContention", err)
	}
}

func TestLockReleaseIsIdempotent(t *testing.T) {
	st := testStore(t)
	doc := testDoc("rel-2026-01-10-001")
	if err := st.Save(doc.SpecID, doc, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	path := st.Path(doc.SpecID, BucketPending)
	lock, err := st.AcquireLock(path)
	if err != nil {
		t.Fatal(err)
	}
	lock.Release()
	lock.Release()

	again, err := st.AcquireLock(path)
	if err != nil {
		t.Fatalf("relock after release failed: %v", err)
	}
	again.Release()
}

func TestMaxFileSize(t *testing.T) {
	st := testStore(t)
	st.MaxFileSize = 16
	doc := testDoc("big-2026-01-10-001")
	if err := st.Save(doc.SpecID, doc, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	_, _, err := st.Load(doc.SpecID)
	if !spec.IsKind(err, spec.KindMalformedSpec) {
		t.Errorf("oversized file error = %v, want MalformedSpec", err)
	}
}

func TestParseBucket(t *testing.T) {
	tests := []struct {
		in      string
		want    Bucket
		wantErr bool
	}{
		{"pending", BucketPending, false},
		{" Active ", BucketActive, false},
		{"completed", BucketCompleted, false},
		{"archived", BucketArchived, false},
		{"done", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBucket(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBucket(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBucket(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSaveAtCreatesBucketDir(t *testing.T) {
	st := testStore(t)
	doc := testDoc("fresh-2026-01-10-001")
	path := st.Path(doc.SpecID, BucketActive)

	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Fatalf("bucket dir unexpectedly present: %v", err)
	}
	// Lock acquisition needs the directory; SaveAt must create it
	// before taking the lock.
	if err := st.SaveAt(path, doc, SaveOptions{}); err != nil {
		t.Fatalf("first save into empty bucket failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("spec file not written: %v", err)
	}
}
