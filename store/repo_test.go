package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/reqsercom/snippetsync/locales"
	"github.com/reqsercom/snippetsync/logger"
	"github.com/reqsercom/snippetsync/store"
	"github.com/reqsercom/snippetsync/store/storetest"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepo(storetest.DB(t), logger.NewNop())

	if _, err := repo.Find(ctx, "hi", "S1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Find on empty store error = %v, want ErrNotFound", err)
	}

	inserted, err := repo.Insert(ctx, &store.Entry{
		TranslationKey: "hi", Value: "Hello", Author: "snippetsync", TargetID: "S1",
		CreatedAt: t0, UpdatedAt: t0,
	})
	if err != nil || !inserted {
		t.Fatalf("Insert = %v, %v; want true, nil", inserted, err)
	}

	got, err := repo.Find(ctx, "hi", "S1")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if got.ID == uuid.Nil {
		t.Fatal("Insert did not assign an id")
	}
	if got.Value != "Hello" || got.Author != "snippetsync" {
		t.Fatalf("Find = %#v", got)
	}
	if !got.CreatedAt.Equal(t0) || !got.UpdatedAt.Equal(t0) {
		t.Fatalf("timestamps = %v / %v, want %v", got.CreatedAt, got.UpdatedAt, t0)
	}
}

func TestInsertDuplicateIsBenign(t *testing.T) {
	ctx := context.Background()
	db := storetest.DB(t)
	repo := store.NewRepo(db, logger.NewNop())

	first := &store.Entry{TranslationKey: "hi", Value: "Hello", Author: "snippetsync", TargetID: "S1", CreatedAt: t0, UpdatedAt: t0}
	if _, err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("first Insert error: %v", err)
	}

	dup := &store.Entry{TranslationKey: "hi", Value: "Other", Author: "snippetsync", TargetID: "S1", CreatedAt: t0, UpdatedAt: t0}
	inserted, err := repo.Insert(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate Insert error: %v", err)
	}
	if inserted {
		t.Fatal("duplicate Insert reported a write")
	}
	if n := storetest.Count(t, db); n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}
	got, _ := repo.Find(ctx, "hi", "S1")
	if got.Value != "Hello" {
		t.Fatalf("duplicate Insert changed value to %q", got.Value)
	}
}

func TestRefreshRespectsAuthor(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepo(storetest.DB(t), logger.NewNop())

	e := &store.Entry{TranslationKey: "hi", Value: "Hello", Author: "admin", TargetID: "S1", CreatedAt: t0, UpdatedAt: t0}
	if _, err := repo.Insert(ctx, e); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	t1 := t0.Add(time.Hour)
	changed, err := repo.Refresh(ctx, e, "snippetsync", "Hi", t1)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if changed {
		t.Fatal("Refresh changed an entry owned by another author")
	}

	changed, err = repo.Refresh(ctx, e, "admin", "Hi", t1)
	if err != nil || !changed {
		t.Fatalf("Refresh = %v, %v; want true, nil", changed, err)
	}
	got, _ := repo.Find(ctx, "hi", "S1")
	if got.Value != "Hi" || !got.CreatedAt.Equal(t1) || !got.UpdatedAt.Equal(t1) {
		t.Fatalf("after Refresh = %#v", got)
	}
}

func TestRefreshRequiresRowAsRead(t *testing.T) {
	ctx := context.Background()
	db := storetest.DB(t)
	repo := store.NewRepo(db, logger.NewNop())

	e := &store.Entry{TranslationKey: "hi", Value: "Hello", Author: "snippetsync", TargetID: "S1", CreatedAt: t0, UpdatedAt: t0}
	if _, err := repo.Insert(ctx, e); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	prev, err := repo.Find(ctx, "hi", "S1")
	if err != nil {
		t.Fatal(err)
	}

	// Edited after prev was read: new value, updated_at bumped.
	if err := db.Model(&store.Entry{}).Where("id = ?", prev.ID).
		Updates(map[string]interface{}{"value": "Manual", "updated_at": t0.Add(time.Minute)}).Error; err != nil {
		t.Fatal(err)
	}

	changed, err := repo.Refresh(ctx, prev, "snippetsync", "Hi", t0.Add(time.Hour))
	if err != nil || changed {
		t.Fatalf("Refresh of an edited row = %v, %v; want false, nil", changed, err)
	}
	got, _ := repo.Find(ctx, "hi", "S1")
	if got.Value != "Manual" {
		t.Fatalf("edited value overwritten: %q", got.Value)
	}
}

func TestKeysAndStats(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepo(storetest.DB(t), logger.NewNop())

	rows := []store.Entry{
		{TranslationKey: "b.title", Value: "B", Author: "snippetsync", TargetID: "DE"},
		{TranslationKey: "a.title", Value: "A", Author: "admin", TargetID: "DE"},
		{TranslationKey: "a.title", Value: "", Author: "snippetsync", TargetID: "EN"},
	}
	for i := range rows {
		rows[i].CreatedAt, rows[i].UpdatedAt = t0, t0
		if _, err := repo.Insert(ctx, &rows[i]); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	keys, err := repo.Keys(ctx, "DE")
	if err != nil {
		t.Fatalf("Keys error: %v", err)
	}
	if diff := cmp.Diff([]string{"a.title", "b.title"}, keys); diff != "" {
		t.Fatalf("Keys mismatch (-want +got):\n%s", diff)
	}

	stats, err := repo.Stats(ctx, "snippetsync")
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	want := []store.TargetStats{
		{TargetID: "DE", Total: 2, Filled: 2, Owned: 1},
		{TargetID: "EN", Total: 1, Filled: 0, Owned: 1},
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestLocaleTargetSource(t *testing.T) {
	ctx := context.Background()
	db := storetest.DB(t)

	rows := []store.LocaleTarget{
		{ID: "b-en", ISOCode: "en-GB", Active: true},
		{ID: "a-de", ISOCode: "de-DE", IsBase: true, Active: true},
		{ID: "c-fr", ISOCode: "fr-FR", Active: false},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("Create locale targets: %v", err)
	}

	got, err := store.NewLocaleTargetSource(db).Targets(ctx)
	if err != nil {
		t.Fatalf("Targets error: %v", err)
	}
	want := []locales.Target{
		{ID: "a-de", Code: "de-DE", Base: true, Enabled: true},
		{ID: "b-en", Code: "en-GB", Enabled: true},
		{ID: "c-fr", Code: "fr-FR", Enabled: false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Targets mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := store.Open("oracle", "x", logger.NewNop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
