// Package store persists fetched content, the seen-URL set, lesson
// consumption and the optional presentation history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chessmaster/internal/logging"
	"chessmaster/internal/types"
)

// PutResult reports what a Put did.
type PutResult int

const (
	Stored PutResult = iota
	DuplicateIgnored
)

func (r PutResult) String() string {
	if r == DuplicateIgnored {
		return "duplicate_ignored"
	}
	return "stored"
}

// ContentCache is the durable, content-addressed store of fetched items.
// Every write is a single committed transaction: once Put returns, the item
// survives a crash, and readers never observe a partial row.
type ContentCache struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

// Stats summarizes cache contents.
type Stats struct {
	Items     int            `json:"items"`
	ByTopic   map[string]int `json:"by_topic"`
	ByKind    map[string]int `json:"by_kind"`
	SeenURLs  int            `json:"seen_urls"`
	Consumed  int            `json:"consumed"`
	Presented int            `json:"presented"`
}

// Open initializes the SQLite database at path. Use ":memory:" in tests.
func Open(path string) (*ContentCache, error) {
	timer := logging.StartTimer(logging.CategoryCache, "store.Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		// FULL: a committed Put must survive power loss, not just a process crash.
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	c := &ContentCache{db: db, dbPath: path, now: time.Now}
	if err := initSchema(db, c.now().UnixNano()); err != nil {
		db.Close()
		return nil, err
	}

	logging.Cache("Content cache opened at %s", path)
	return c, nil
}

// Close closes the database.
func (c *ContentCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

// Path returns the database location.
func (c *ContentCache) Path() string { return c.dbPath }

func ioErr(op string, err error) error {
	return &types.CacheIOError{Op: op, Err: err}
}

// Has reports whether an item with the given identity is stored.
func (c *ContentCache) Has(ctx context.Context, id string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM content_items WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, ioErr("has", err)
	}
	return true, nil
}

const itemColumns = `id, url, title, topic, kind, body, excerpts, image_urls, local_images, fetched_at`

// Get returns the stored item or types.ErrNotFound.
func (c *ContentCache) Get(ctx context.Context, id string) (*types.ContentItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, ioErr("get", err)
	}
	return item, nil
}

// Put stores an item. Storing an identity that already exists is a no-op
// reported as DuplicateIgnored with a nil error.
func (c *ContentCache) Put(ctx context.Context, item *types.ContentItem) (PutResult, error) {
	if item == nil {
		return Stored, ioErr("put", errors.New("nil item"))
	}
	id := item.ItemID()

	excerpts, err := json.Marshal(nonNil(item.Excerpts))
	if err != nil {
		return Stored, ioErr("put", err)
	}
	images, err := json.Marshal(nonNil(item.ImageURLs))
	if err != nil {
		return Stored, ioErr("put", err)
	}
	local, err := json.Marshal(nonNil(item.LocalImages))
	if err != nil {
		return Stored, ioErr("put", err)
	}
	fetched := item.FetchedAt
	if fetched.IsZero() {
		fetched = c.now()
	}
	kind := item.Kind
	if kind == "" {
		kind = types.SourcePage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return Stored, ioErr("put", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO content_items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, item.URL, item.Title, item.Topic, string(kind), item.Text,
		string(excerpts), string(images), string(local), fetched.UnixNano(),
	)
	if err != nil {
		return Stored, ioErr("put", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Stored, ioErr("put", err)
	}

	if item.URL != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO seen_urls (url, seen_at) VALUES (?, ?)`,
			item.URL, c.now().UnixNano(),
		); err != nil {
			return Stored, ioErr("put", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Stored, ioErr("put", err)
	}

	if n == 0 {
		logging.CacheDebug("Put %s: duplicate ignored", id)
		return DuplicateIgnored, nil
	}
	logging.CacheDebug("Put %s: stored (topic=%q kind=%s)", id, item.Topic, kind)
	return Stored, nil
}

// MarkURLSeen records a URL that was fetched, whether or not it produced
// an item, so later sessions do not fetch it again.
func (c *ContentCache) MarkURLSeen(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_urls (url, seen_at) VALUES (?, ?)`,
		url, c.now().UnixNano(),
	); err != nil {
		return ioErr("mark_seen", err)
	}
	return nil
}

// SeenURL reports whether a URL has been fetched before.
func (c *ContentCache) SeenURL(ctx context.Context, url string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM seen_urls WHERE url = ?`, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, ioErr("seen", err)
	}
	return true, nil
}

// Unconsumed returns items for a topic that no lesson has used yet,
// oldest first.
func (c *ContentCache) Unconsumed(ctx context.Context, topic string, limit int) ([]*types.ContentItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM content_items ci
		 WHERE topic = ?
		   AND NOT EXISTS (SELECT 1 FROM consumption co WHERE co.item_id = ci.id)
		 ORDER BY fetched_at, id
		 LIMIT ?`,
		topic, limit,
	)
	if err != nil {
		return nil, ioErr("unconsumed", err)
	}
	return collectItems(rows, "unconsumed")
}

// MarkConsumed records that a lesson used the given items.
func (c *ContentCache) MarkConsumed(ctx context.Context, lessonID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return ioErr("mark_consumed", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO consumption (lesson_id, item_id, consumed_at) VALUES (?, ?, ?)`)
	if err != nil {
		return ioErr("mark_consumed", err)
	}
	defer stmt.Close()

	now := c.now().UnixNano()
	for _, id := range itemIDs {
		if _, err := stmt.ExecContext(ctx, lessonID, id, now); err != nil {
			return ioErr("mark_consumed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ioErr("mark_consumed", err)
	}
	return nil
}

// Random returns up to limit random cached items of any topic.
func (c *ContentCache) Random(ctx context.Context, limit int) ([]*types.ContentItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM content_items ORDER BY RANDOM() LIMIT ?`, limit)
	if err != nil {
		return nil, ioErr("random", err)
	}
	return collectItems(rows, "random")
}

// Stats returns counts over the cache contents.
func (c *ContentCache) Stats(ctx context.Context) (*Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := &Stats{ByTopic: map[string]int{}, ByKind: map[string]int{}}

	rows, err := c.db.QueryContext(ctx, `SELECT topic, kind, COUNT(*) FROM content_items GROUP BY topic, kind`)
	if err != nil {
		return nil, ioErr("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var topic, kind string
		var n int
		if err := rows.Scan(&topic, &kind, &n); err != nil {
			return nil, ioErr("stats", err)
		}
		s.Items += n
		s.ByTopic[topic] += n
		s.ByKind[kind] += n
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("stats", err)
	}

	counts := []struct {
		dst   *int
		query string
	}{
		{&s.SeenURLs, `SELECT COUNT(*) FROM seen_urls`},
		{&s.Consumed, `SELECT COUNT(DISTINCT item_id) FROM consumption`},
		{&s.Presented, `SELECT COUNT(*) FROM lesson_history`},
	}
	for _, q := range counts {
		if err := c.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return nil, ioErr("stats", err)
		}
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row scanner) (*types.ContentItem, error) {
	var (
		item                     types.ContentItem
		kind                     string
		excerpts, images, locals string
		fetched                  int64
	)
	if err := row.Scan(&item.ID, &item.URL, &item.Title, &item.Topic, &kind, &item.Text,
		&excerpts, &images, &locals, &fetched); err != nil {
		return nil, err
	}
	item.Kind = types.SourceKind(kind)
	item.FetchedAt = time.Unix(0, fetched)
	if err := json.Unmarshal([]byte(excerpts), &item.Excerpts); err != nil {
		return nil, fmt.Errorf("decode excerpts: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &item.ImageURLs); err != nil {
		return nil, fmt.Errorf("decode image urls: %w", err)
	}
	if err := json.Unmarshal([]byte(locals), &item.LocalImages); err != nil {
		return nil, fmt.Errorf("decode local images: %w", err)
	}
	return &item, nil
}

func collectItems(rows *sql.Rows, op string) ([]*types.ContentItem, error) {
	defer rows.Close()
	var items []*types.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, ioErr(op, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr(op, err)
	}
	return items, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
