package consult

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/zeebo/blake3"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/specdeck/specdeck/internal/debug"
	"github.com/specdeck/specdeck/internal/spec"
)

const (
	// DefaultCacheTTL is how long entries stay valid.
	DefaultCacheTTL = 24 * time.Hour
	// DefaultCacheMaxBytes caps total entry payload before LRU
	// eviction.
	DefaultCacheMaxBytes = 512 << 20
)

// Cache stores successful tool responses on disk with a sqlite index
// for TTL and LRU bookkeeping. Entry payloads live as JSON files next
// to the index so a corrupt index never loses response data.
type Cache struct {
	Dir      string
	TTL      time.Duration
	MaxBytes int64
	Now      func() time.Time

	db *sql.DB
}

// OpenCache opens or creates the cache at dir.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, spec.Wrap(spec.KindIO, err, "creating cache directory %s", dir)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, spec.Wrap(spec.KindIO, err, "opening cache index")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		key        TEXT PRIMARY KEY,
		tool       TEXT NOT NULL,
		model      TEXT NOT NULL,
		size       INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		last_used  INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, spec.Wrap(spec.KindIO, err, "initializing cache index")
	}
	return &Cache{
		Dir:      dir,
		TTL:      DefaultCacheTTL,
		MaxBytes: DefaultCacheMaxBytes,
		Now:      time.Now,
		db:       db,
	}, nil
}

// Close releases the index handle.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Key derives the cache key for a consultation. Prompt whitespace is
// normalized so formatting-only changes still hit.
func Key(tool, model, prompt, systemPrompt, skill, contextHash string) string {
	h := blake3.New()
	for _, part := range []string{tool, model, normalizePrompt(prompt), systemPrompt, skill, contextHash} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ContextHash hashes structured context bytes for key derivation.
func ContextHash(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalizePrompt(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.Dir, key+".json")
}

// Get returns the cached response for key, or ok=false on miss or
// expiry. Hits update last_used for LRU ordering.
func (c *Cache) Get(key string) (ToolResponse, bool) {
	var resp ToolResponse
	now := c.Now().UTC()
	var createdAt int64
	err := c.db.QueryRow(`SELECT created_at FROM entries WHERE key = ?`, key).Scan(&createdAt)
	if err != nil {
		return resp, false
	}
	if now.Sub(time.Unix(createdAt, 0)) > c.TTL {
		c.evict(key)
		return resp, false
	}

	lock := flock.New(c.entryPath(key) + ".lock")
	if err := lock.RLock(); err != nil {
		return resp, false
	}
	data, readErr := os.ReadFile(c.entryPath(key))
	_ = lock.Unlock()
	if readErr != nil {
		c.evict(key)
		return resp, false
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		debug.Logf("consult: dropping corrupt cache entry %s: %v", key, err)
		c.evict(key)
		return resp, false
	}
	if _, err := c.db.Exec(`UPDATE entries SET last_used = ? WHERE key = ?`, now.Unix(), key); err != nil {
		debug.Logf("consult: cache touch failed: %v", err)
	}
	resp.FromCache = true
	return resp, true
}

// Put stores a successful response. Failures are never cached.
func (c *Cache) Put(key string, resp ToolResponse) error {
	if !resp.Success {
		return nil
	}
	stored := resp
	stored.FromCache = false
	data, err := json.Marshal(stored)
	if err != nil {
		return spec.Wrap(spec.KindInternal, err, "encoding cache entry")
	}

	lock := flock.New(c.entryPath(key) + ".lock")
	if err := lock.Lock(); err != nil {
		return spec.Wrap(spec.KindIO, err, "locking cache entry")
	}
	defer func() { _ = lock.Unlock() }()

	tmp := c.entryPath(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return spec.Wrap(spec.KindIO, err, "writing cache entry")
	}
	if err := os.Rename(tmp, c.entryPath(key)); err != nil {
		_ = os.Remove(tmp)
		return spec.Wrap(spec.KindIO, err, "writing cache entry")
	}

	now := c.Now().UTC().Unix()
	if _, err := c.db.Exec(`INSERT INTO entries (key, tool, model, size, created_at, last_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET size = excluded.size, created_at = excluded.created_at, last_used = excluded.last_used`,
		key, resp.Tool, resp.Model, len(data), now, now); err != nil {
		return spec.Wrap(spec.KindIO, err, "indexing cache entry")
	}
	return c.enforceLimit()
}

// enforceLimit evicts least-recently-used entries until the payload
// total fits under MaxBytes.
func (c *Cache) enforceLimit() error {
	var total int64
	if err := c.db.QueryRow(`SELECT COALESCE(SUM(size), 0) FROM entries`).Scan(&total); err != nil {
		return spec.Wrap(spec.KindIO, err, "sizing cache")
	}
	for total > c.MaxBytes {
		var key string
		var size int64
		err := c.db.QueryRow(`SELECT key, size FROM entries ORDER BY last_used ASC LIMIT 1`).Scan(&key, &size)
		if err != nil {
			return nil
		}
		c.evict(key)
		total -= size
	}
	return nil
}

func (c *Cache) evict(key string) {
	_ = os.Remove(c.entryPath(key))
	_ = os.Remove(c.entryPath(key) + ".lock")
	if _, err := c.db.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
		debug.Logf("consult: cache evict failed: %v", err)
	}
}

// Stats summarizes cache usage for the cache-info command.
type Stats struct {
	Entries    int       `json:"entries"`
	TotalBytes int64     `json:"total_bytes"`
	Oldest     time.Time `json:"oldest,omitempty"`
	Newest     time.Time `json:"newest,omitempty"`
	PerTool    []ToolStat `json:"per_tool,omitempty"`
}

// ToolStat is per-tool cache usage.
type ToolStat struct {
	Tool    string `json:"tool"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// Info reports current cache contents.
func (c *Cache) Info() (Stats, error) {
	var st Stats
	var oldest, newest sql.NullInt64
	err := c.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0), MIN(created_at), MAX(created_at) FROM entries`).
		Scan(&st.Entries, &st.TotalBytes, &oldest, &newest)
	if err != nil {
		return st, spec.Wrap(spec.KindIO, err, "reading cache index")
	}
	if oldest.Valid {
		st.Oldest = time.Unix(oldest.Int64, 0).UTC()
	}
	if newest.Valid {
		st.Newest = time.Unix(newest.Int64, 0).UTC()
	}
	rows, err := c.db.Query(`SELECT tool, COUNT(*), SUM(size) FROM entries GROUP BY tool ORDER BY tool`)
	if err != nil {
		return st, spec.Wrap(spec.KindIO, err, "reading cache index")
	}
	defer rows.Close()
	for rows.Next() {
		var ts ToolStat
		if err := rows.Scan(&ts.Tool, &ts.Entries, &ts.Bytes); err != nil {
			return st, spec.Wrap(spec.KindIO, err, "reading cache index")
		}
		st.PerTool = append(st.PerTool, ts)
	}
	return st, rows.Err()
}

// Clear removes every entry, returning how many were dropped.
func (c *Cache) Clear() (int, error) {
	rows, err := c.db.Query(`SELECT key FROM entries`)
	if err != nil {
		return 0, spec.Wrap(spec.KindIO, err, "reading cache index")
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return 0, spec.Wrap(spec.KindIO, err, "reading cache index")
		}
		keys = append(keys, key)
	}
	if err := rows.Close(); err != nil {
		return 0, spec.Wrap(spec.KindIO, err, "reading cache index")
	}
	for _, key := range keys {
		c.evict(key)
	}
	return len(keys), nil
}

// ClearTool removes every entry recorded for one tool.
func (c *Cache) ClearTool(tool string) (int, error) {
	rows, err := c.db.Query(`SELECT key FROM entries WHERE tool = ?`, tool)
	if err != nil {
		return 0, spec.Wrap(spec.KindIO, err, "reading cache index")
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return 0, spec.Wrap(spec.KindIO, err, "reading cache index")
		}
		keys = append(keys, key)
	}
	if err := rows.Close(); err != nil {
		return 0, spec.Wrap(spec.KindIO, err, "reading cache index")
	}
	for _, key := range keys {
		c.evict(key)
	}
	return len(keys), nil
}

// String renders a short human summary, e.g. "12 entries, 3.4 MB".
func (s Stats) String() string {
	return fmt.Sprintf("%d entries, %d bytes", s.Entries, s.TotalBytes)
}
