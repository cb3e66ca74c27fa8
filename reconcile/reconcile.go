// Package reconcile decides, for one translation key and one locale target,
// whether the shared store is written.
//
// The engine only ever touches rows it authored. A row it authored is
// "fresh" while created_at equals updated_at; any other writer that edits
// the row bumps updated_at only, which settles it and freezes the engine
// out. Refreshing a fresh row moves both timestamps together so it stays
// fresh.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/reqsercom/snippetsync/logger"
	"github.com/reqsercom/snippetsync/store"
)

// Outcome is what a single reconcile did.
type Outcome int

const (
	Unchanged Outcome = iota
	Inserted
	Refreshed
	// Protected means the entry belongs to another author.
	Protected
	// Settled means the entry is ours but has been edited since we wrote it.
	Settled
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Refreshed:
		return "refreshed"
	case Protected:
		return "protected"
	case Settled:
		return "settled"
	default:
		return "unchanged"
	}
}

// Wrote reports whether the outcome changed the store.
func (o Outcome) Wrote() bool { return o == Inserted || o == Refreshed }

// Engine applies the ownership rules against a store.
type Engine struct {
	store  *store.Repo
	author string
	log    *logger.Logger
	now    func() time.Time
}

func New(repo *store.Repo, author string, log *logger.Logger) *Engine {
	return &Engine{
		store:  repo,
		author: author,
		log:    log.With("component", "reconcile"),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Author returns the author tag written on engine-owned entries.
func (e *Engine) Author() string { return e.author }

// Now returns the current time as stored: UTC, microsecond precision.
func (e *Engine) Now() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// Reconcile brings (key, targetID) in line with value. meta, when not nil,
// is stored as the entry's custom fields on insert.
func (e *Engine) Reconcile(ctx context.Context, key, value, targetID string, meta map[string]any) (Outcome, error) {
	existing, err := e.store.Find(ctx, key, targetID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return e.insert(ctx, key, value, targetID, meta)
	case err != nil:
		return Unchanged, fmt.Errorf("looking up %s for %s: %w", key, targetID, err)
	}

	if existing.Author != e.author {
		return Protected, nil
	}
	if existing.Value == value {
		return Unchanged, nil
	}
	if !existing.CreatedAt.Equal(existing.UpdatedAt) {
		e.log.Debug("entry edited since last sync, leaving it", "key", key, "target", targetID)
		return Settled, nil
	}

	ok, err := e.store.Refresh(ctx, existing, e.author, value, e.Now())
	if err != nil {
		return Unchanged, fmt.Errorf("refreshing %s for %s: %w", key, targetID, err)
	}
	if !ok {
		return e.lostRefresh(ctx, key, targetID)
	}
	return Refreshed, nil
}

// lostRefresh classifies an entry that changed between the read and the
// guarded write.
func (e *Engine) lostRefresh(ctx context.Context, key, targetID string) (Outcome, error) {
	e.log.Debug("entry changed while syncing, leaving it", "key", key, "target", targetID)
	current, err := e.store.Find(ctx, key, targetID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Unchanged, nil
	case err != nil:
		return Unchanged, fmt.Errorf("looking up %s for %s: %w", key, targetID, err)
	case current.Author != e.author:
		return Protected, nil
	default:
		return Settled, nil
	}
}

// Placeholder inserts a blank entry for (key, targetID) when none exists.
func (e *Engine) Placeholder(ctx context.Context, key, targetID string) (bool, error) {
	out, err := e.insert(ctx, key, "", targetID, map[string]any{"placeholder": true})
	return out == Inserted, err
}

func (e *Engine) insert(ctx context.Context, key, value, targetID string, meta map[string]any) (Outcome, error) {
	now := e.Now()
	entry := &store.Entry{
		TranslationKey: key,
		Value:          value,
		Author:         e.author,
		TargetID:       targetID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return Unchanged, fmt.Errorf("encoding metadata for %s: %w", key, err)
		}
		entry.CustomFields = datatypes.JSON(raw)
	}

	ok, err := e.store.Insert(ctx, entry)
	if err != nil {
		return Unchanged, fmt.Errorf("inserting %s for %s: %w", key, targetID, err)
	}
	if !ok {
		return Unchanged, nil
	}
	return Inserted, nil
}
