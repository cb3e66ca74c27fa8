// Package storetest opens throwaway translation stores for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/reqsercom/snippetsync/logger"
	"github.com/reqsercom/snippetsync/store"
)

// DB opens a migrated SQLite store in a temporary directory. The pool is
// closed when the test ends.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := filepath.Join(tb.TempDir(), "snippets.db")
	db, err := store.Open("sqlite", dsn, logger.NewNop())
	if err != nil {
		tb.Fatalf("open test store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close(db) })

	if err := store.Migrate(db); err != nil {
		tb.Fatalf("migrate test store: %v", err)
	}
	return db
}

// Entries returns every entry of targetID keyed by translation key.
func Entries(tb testing.TB, db *gorm.DB, targetID string) map[string]store.Entry {
	tb.Helper()

	var rows []store.Entry
	if err := db.Where("target_id = ?", targetID).Find(&rows).Error; err != nil {
		tb.Fatalf("list entries for %s: %v", targetID, err)
	}
	out := make(map[string]store.Entry, len(rows))
	for _, row := range rows {
		out[row.TranslationKey] = row
	}
	return out
}

// Count returns the total number of entries.
func Count(tb testing.TB, db *gorm.DB) int64 {
	tb.Helper()

	var n int64
	if err := db.Model(&store.Entry{}).Count(&n).Error; err != nil {
		tb.Fatalf("count entries: %v", err)
	}
	return n
}
