// Package cache implements the two-tier translation cache: a fixed-size
// in-memory LRU in front of a TTL-bounded SQLite store. The memory tier
// serves repeat lookups within a session; the SQLite tier survives restarts
// and hot-tier eviction.
package cache

import (
	"context"
	"time"

	"github.com/lingobridge/lingobridge/internal/api/middleware"
	log "github.com/sirupsen/logrus"
)

// DefaultEvictionInterval is the default interval for the periodic expired
// entry sweep.
const DefaultEvictionInterval = 1 * time.Hour

// Key derives the cache key for a translation. Matching is exact and
// case-sensitive; no normalization of any part.
func Key(sourceLang, targetLang, text string) string {
	return sourceLang + ":" + targetLang + ":" + text
}

// Entry is one cached translation.
type Entry struct {
	Key            string    `json:"key"`
	SourceLang     string    `json:"sourceLang"`
	TargetLang     string    `json:"targetLang"`
	OriginalText   string    `json:"originalText"`
	TranslatedText string    `json:"translatedText"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Stats is the per-tier entry count snapshot. The cold tier holds a superset
// of the memory tier, so TotalCount comes from it.
type Stats struct {
	MemoryCount int `json:"memoryCount"`
	DBCount     int `json:"dbCount"`
	TotalCount  int `json:"totalCount"`
}

// TranslationCache composes the two tiers. Reads check memory first and
// promote cold hits; writes go to both. Cold-tier failures degrade to
// memory-only behavior and never fail the caller.
type TranslationCache struct {
	hot  *MemoryStore
	cold *SQLiteStore
}

// Open builds a cache backed by the SQLite file at path.
func Open(path string) (*TranslationCache, error) {
	cold, err := OpenSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return &TranslationCache{hot: NewMemoryStore(), cold: cold}, nil
}

// Get returns the cached translation for the triple, if any.
func (c *TranslationCache) Get(sourceLang, targetLang, text string) (string, bool) {
	key := Key(sourceLang, targetLang, text)

	if entry, ok := c.hot.Get(key); ok {
		middleware.RecordCacheHit("memory")
		return entry.TranslatedText, true
	}

	entry, ok, err := c.cold.Get(key)
	if err != nil {
		log.Warnf("translation cache: cold tier read failed, serving memory only: %v", err)
		middleware.RecordCacheMiss()
		return "", false
	}
	if !ok {
		middleware.RecordCacheMiss()
		return "", false
	}

	c.hot.Set(entry)
	middleware.RecordCacheHit("db")
	return entry.TranslatedText, true
}

// Set stores a translation in both tiers. The memory tier is updated
// synchronously; a failed cold-tier write is logged and swallowed.
func (c *TranslationCache) Set(sourceLang, targetLang, text, translation string) {
	entry := Entry{
		Key:            Key(sourceLang, targetLang, text),
		SourceLang:     sourceLang,
		TargetLang:     targetLang,
		OriginalText:   text,
		TranslatedText: translation,
		CreatedAt:      time.Now(),
	}
	c.hot.Set(entry)
	if err := c.cold.Set(entry); err != nil {
		log.Warnf("translation cache: cold tier write failed for %s->%s: %v", sourceLang, targetLang, err)
	}
}

// Stats reports per-tier entry counts.
func (c *TranslationCache) Stats() Stats {
	stats := Stats{MemoryCount: c.hot.Len()}
	n, err := c.cold.Count()
	if err != nil {
		log.Warnf("translation cache: cold tier count failed: %v", err)
		stats.TotalCount = stats.MemoryCount
		return stats
	}
	stats.DBCount = n
	stats.TotalCount = n
	middleware.SetCacheSize("db", n)
	return stats
}

// Entries returns one page of cold-tier entries, newest first. page is
// zero-based; page*limit rows are skipped.
func (c *TranslationCache) Entries(page, limit int) ([]Entry, bool, int, error) {
	return c.cold.Entries(page, limit)
}

// Clear empties both tiers.
func (c *TranslationCache) Clear() error {
	c.hot.Clear()
	return c.cold.Clear()
}

// CleanExpired sweeps expired rows from the cold tier.
func (c *TranslationCache) CleanExpired() (int64, error) {
	return c.cold.CleanExpired()
}

// StartPeriodicEviction starts a background goroutine that sweeps expired
// cold-tier rows on an interval. The goroutine stops when the context is
// cancelled.
func (c *TranslationCache) StartPeriodicEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultEvictionInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.CleanExpired()
				if err != nil {
					log.Warnf("translation cache: periodic eviction failed: %v", err)
					continue
				}
				if n > 0 {
					log.Debugf("translation cache: evicted %d expired entries", n)
				}
			}
		}
	}()
}

// Close closes the cold tier.
func (c *TranslationCache) Close() error {
	return c.cold.Close()
}
