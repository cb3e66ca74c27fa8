package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reqsercom/snippetsync/locales"
	"github.com/reqsercom/snippetsync/logger"
)

// ErrNotFound is returned when no entry exists for a key/target pair.
var ErrNotFound = errors.New("not found")

// Repo reads and writes translation entries.
type Repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, baseLog *logger.Logger) *Repo {
	return &Repo{
		db:  db,
		log: baseLog.With("repo", "TranslationRepo"),
	}
}

// Find returns the entry for (key, targetID) or ErrNotFound.
func (r *Repo) Find(ctx context.Context, key, targetID string) (*Entry, error) {
	var e Entry
	err := r.db.WithContext(ctx).
		Where("translation_key = ? AND target_id = ?", key, targetID).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Insert creates e unless an entry for the same key and target already
// exists. It reports whether a row was written; an existing row is not an
// error.
func (r *Repo) Insert(ctx context.Context, e *Entry) (bool, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "translation_key"}, {Name: "target_id"}},
			DoNothing: true,
		}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Refresh overwrites the value of prev and moves both timestamps to at. The
// write only lands while the row is still exactly as prev was read: owned by
// author, holding prev's value and never edited since it was written
// (created_at = updated_at). It reports whether a row was changed.
func (r *Repo) Refresh(ctx context.Context, prev *Entry, author, value string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Entry{}).
		Where("id = ? AND author = ? AND value = ? AND created_at = updated_at", prev.ID, author, prev.Value).
		Updates(map[string]interface{}{
			"value":      value,
			"created_at": at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Keys returns the distinct translation keys stored for targetID, sorted.
func (r *Repo) Keys(ctx context.Context, targetID string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&Entry{}).
		Where("target_id = ?", targetID).
		Distinct("translation_key").
		Order("translation_key").
		Pluck("translation_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// TargetStats summarises the entries of one target.
type TargetStats struct {
	TargetID string
	// Total is the number of keys.
	Total int64
	// Filled is the number of keys with a non-empty value.
	Filled int64
	// Owned is the number of keys written by the given author.
	Owned int64
}

// Stats returns per-target counts, ordered by target id.
func (r *Repo) Stats(ctx context.Context, author string) ([]TargetStats, error) {
	var out []TargetStats
	err := r.db.WithContext(ctx).
		Model(&Entry{}).
		Select(`target_id,
			COUNT(*) AS total,
			SUM(CASE WHEN value <> '' THEN 1 ELSE 0 END) AS filled,
			SUM(CASE WHEN author = ? THEN 1 ELSE 0 END) AS owned`, author).
		Group("target_id").
		Order("target_id").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Locale targets
// ---------------------------------------------------------------------------

// LocaleTargetSource reads locale targets from the locale_targets table.
type LocaleTargetSource struct {
	db *gorm.DB
}

func NewLocaleTargetSource(db *gorm.DB) *LocaleTargetSource {
	return &LocaleTargetSource{db: db}
}

// Targets implements locales.Source.
func (s *LocaleTargetSource) Targets(ctx context.Context) ([]locales.Target, error) {
	var rows []LocaleTarget
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]locales.Target, 0, len(rows))
	for _, row := range rows {
		out = append(out, locales.Target{
			ID:      row.ID,
			Code:    row.ISOCode,
			Base:    row.IsBase,
			Enabled: row.Active,
		})
	}
	return out, nil
}
