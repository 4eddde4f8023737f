// Package buildcache persists scan results between builds. Entries are
// keyed by module content hash, so a cache hit is valid regardless of
// where the file lives or what mtime it carries; touching a file without
// changing it stays a hit, editing it is a guaranteed miss.
//
// Resolution results are not stored here: they depend on the surrounding
// filesystem, not on file content.
package buildcache

import (
	"database/sql"
	"encoding/json"
	"time"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
	"github.com/ThatTomPerson/webpack/internal/scan"
	"github.com/ThatTomPerson/webpack/internal/sqlitedriver"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_results (
	content_hash  TEXT PRIMARY KEY,
	esm           INTEGER NOT NULL,
	exports_known INTEGER NOT NULL,
	exports       TEXT NOT NULL,
	directives    TEXT NOT NULL,
	created_at    INTEGER NOT NULL
)`

var now = time.Now

// Cache is a persistent scan result store.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sqlitedriver.Open(path)
	if err != nil {
		return nil, werrors.NewIO("open build cache", path, err)
	}
	// SQLite takes one writer at a time; a single pooled connection also
	// keeps in-memory databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, werrors.NewIO("create build cache schema", path, err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get looks up the scan result for a content hash. The second return is
// false on a miss.
func (c *Cache) Get(contentHash string) (*scan.Result, bool, error) {
	var (
		esm          int
		exportsKnown int
		exportsJSON  string
		directives   string
	)
	err := c.db.QueryRow(
		"SELECT esm, exports_known, exports, directives FROM scan_results WHERE content_hash = ?",
		contentHash,
	).Scan(&esm, &exportsKnown, &exportsJSON, &directives)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, werrors.Wrapf(err, "reading build cache entry %s", contentHash)
	}

	res := &scan.Result{ESM: esm != 0, ExportsKnown: exportsKnown != 0}
	if err := json.Unmarshal([]byte(exportsJSON), &res.Exports); err != nil {
		return nil, false, werrors.Wrapf(err, "decoding cached exports for %s", contentHash)
	}
	if err := json.Unmarshal([]byte(directives), &res.Directives); err != nil {
		return nil, false, werrors.Wrapf(err, "decoding cached directives for %s", contentHash)
	}
	return res, true, nil
}

// Put stores the scan result for a content hash, replacing any previous
// entry.
func (c *Cache) Put(contentHash string, res *scan.Result) error {
	exports, err := json.Marshal(res.Exports)
	if err != nil {
		return werrors.Wrap(err, "encoding exports")
	}
	directives, err := json.Marshal(res.Directives)
	if err != nil {
		return werrors.Wrap(err, "encoding directives")
	}
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO scan_results (content_hash, esm, exports_known, exports, directives, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		contentHash, boolInt(res.ESM), boolInt(res.ExportsKnown),
		string(exports), string(directives), now().Unix(),
	)
	if err != nil {
		return werrors.Wrapf(err, "writing build cache entry %s", contentHash)
	}
	return nil
}

// Prune deletes entries older than the given age and reports how many
// were removed.
func (c *Cache) Prune(olderThan time.Duration) (int64, error) {
	cutoff := now().Add(-olderThan).Unix()
	res, err := c.db.Exec("DELETE FROM scan_results WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, werrors.Wrap(err, "pruning build cache")
	}
	return res.RowsAffected()
}

// Len counts the stored entries.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM scan_results").Scan(&n); err != nil {
		return 0, werrors.Wrap(err, "counting build cache entries")
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
