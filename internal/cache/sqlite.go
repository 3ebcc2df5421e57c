package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// defaultTTL is how long a cold-tier row stays valid. Rows older than this
// are deleted lazily on read and in bulk by CleanExpired.
const defaultTTL = 7 * 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS translations (
    cache_key       TEXT PRIMARY KEY,
    source_lang     TEXT NOT NULL,
    target_lang     TEXT NOT NULL,
    original_text   TEXT NOT NULL,
    translated_text TEXT NOT NULL,
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_translations_created_at ON translations (created_at);
`

// SQLiteStore is the cold cache tier: a single-file SQLite database holding
// every translation written since the last clear, bounded by TTL rather than
// by entry count.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// OpenSQLiteStore opens (creating if needed) the database at path and ensures
// the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &SQLiteStore{db: db, ttl: defaultTTL}, nil
}

// Get returns the entry for key. Expired rows are deleted on the spot and
// reported as a miss.
func (s *SQLiteStore) Get(key string) (Entry, bool, error) {
	var (
		entry     Entry
		createdAt int64
	)
	row := s.db.QueryRow(
		`SELECT source_lang, target_lang, original_text, translated_text, created_at
		   FROM translations WHERE cache_key = ?`, key)
	err := row.Scan(&entry.SourceLang, &entry.TargetLang, &entry.OriginalText, &entry.TranslatedText, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	if createdAt < time.Now().Add(-s.ttl).Unix() {
		if _, err := s.db.Exec(`DELETE FROM translations WHERE cache_key = ?`, key); err != nil {
			return Entry{}, false, fmt.Errorf("delete expired entry: %w", err)
		}
		return Entry{}, false, nil
	}

	entry.Key = key
	entry.CreatedAt = time.Unix(createdAt, 0)
	return entry, true, nil
}

// Set inserts the entry, overwriting any previous row for the same key and
// refreshing its creation time.
func (s *SQLiteStore) Set(entry Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO translations (cache_key, source_lang, target_lang, original_text, translated_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		     source_lang     = excluded.source_lang,
		     target_lang     = excluded.target_lang,
		     original_text   = excluded.original_text,
		     translated_text = excluded.translated_text,
		     created_at      = excluded.created_at`,
		entry.Key, entry.SourceLang, entry.TargetLang, entry.OriginalText, entry.TranslatedText, entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Entries returns one page of rows ordered newest-first, skipping page*limit
// rows. page is zero-based. hasMore reports whether rows remain past this
// page; total is the full row count.
func (s *SQLiteStore) Entries(page, limit int) (entries []Entry, hasMore bool, total int, err error) {
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM translations`).Scan(&total); err != nil {
		return nil, false, 0, fmt.Errorf("count cache entries: %w", err)
	}

	offset := page * limit
	rows, err := s.db.Query(
		`SELECT cache_key, source_lang, target_lang, original_text, translated_text, created_at
		   FROM translations
		  ORDER BY created_at DESC, rowid DESC
		  LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, false, 0, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry     Entry
			createdAt int64
		)
		if err := rows.Scan(&entry.Key, &entry.SourceLang, &entry.TargetLang, &entry.OriginalText, &entry.TranslatedText, &createdAt); err != nil {
			return nil, false, 0, fmt.Errorf("scan cache entry: %w", err)
		}
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, false, 0, fmt.Errorf("list cache entries: %w", err)
	}

	return entries, offset+len(entries) < total, total, nil
}

// Count returns the number of rows, expired or not.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM translations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// Clear deletes every row.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM translations`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// CleanExpired deletes every row older than the TTL and returns how many
// were removed.
func (s *SQLiteStore) CleanExpired() (int64, error) {
	cutoff := time.Now().Add(-s.ttl).Unix()
	res, err := s.db.Exec(`DELETE FROM translations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clean expired entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clean expired entries: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
