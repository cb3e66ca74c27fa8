package reconcile_test

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/reqsercom/snippetsync/logger"
	"github.com/reqsercom/snippetsync/reconcile"
	"github.com/reqsercom/snippetsync/store"
	"github.com/reqsercom/snippetsync/store/storetest"
)

const author = "snippetsync"

var (
	t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newEngine(t *testing.T) (*reconcile.Engine, *gorm.DB, *clock) {
	t.Helper()
	db := storetest.DB(t)
	c := &clock{now: t0}
	e := reconcile.New(store.NewRepo(db, logger.NewNop()), author, logger.NewNop()).WithClock(c.Now)
	return e, db, c
}

func mustReconcile(t *testing.T, e *reconcile.Engine, key, value, target string) reconcile.Outcome {
	t.Helper()
	out, err := e.Reconcile(context.Background(), key, value, target, nil)
	if err != nil {
		t.Fatalf("Reconcile(%s, %s, %s) error: %v", key, value, target, err)
	}
	return out
}

func TestReconcileInsertsNewEntry(t *testing.T) {
	e, db, _ := newEngine(t)

	if out := mustReconcile(t, e, "hi", "Hello", "S1"); out != reconcile.Inserted {
		t.Fatalf("outcome = %v, want inserted", out)
	}

	got := storetest.Entries(t, db, "S1")["hi"]
	if got.Value != "Hello" || got.Author != author {
		t.Fatalf("entry = %+v", got)
	}
	if !got.CreatedAt.Equal(t0) || !got.UpdatedAt.Equal(t0) {
		t.Fatalf("timestamps = %v / %v, want both %v", got.CreatedAt, got.UpdatedAt, t0)
	}
}

func TestReconcileRefreshesFreshEntry(t *testing.T) {
	e, db, c := newEngine(t)
	mustReconcile(t, e, "hi", "Hello", "S1")

	c.now = t1
	if out := mustReconcile(t, e, "hi", "Hi", "S1"); out != reconcile.Refreshed {
		t.Fatalf("outcome = %v, want refreshed", out)
	}
	got := storetest.Entries(t, db, "S1")["hi"]
	if got.Value != "Hi" {
		t.Fatalf("value = %q, want Hi", got.Value)
	}
	if !got.CreatedAt.Equal(t1) || !got.UpdatedAt.Equal(t1) {
		t.Fatalf("timestamps = %v / %v, want both %v", got.CreatedAt, got.UpdatedAt, t1)
	}

	// Same value again is a no-op.
	c.now = t1.Add(time.Hour)
	if out := mustReconcile(t, e, "hi", "Hi", "S1"); out != reconcile.Unchanged {
		t.Fatalf("outcome = %v, want unchanged", out)
	}
	got = storetest.Entries(t, db, "S1")["hi"]
	if !got.UpdatedAt.Equal(t1) {
		t.Fatalf("no-op moved updated_at to %v", got.UpdatedAt)
	}
}

func TestReconcileLeavesSettledEntry(t *testing.T) {
	e, db, c := newEngine(t)
	mustReconcile(t, e, "hi", "Hello", "S1")

	// An editor touched the row after we wrote it.
	if err := db.Model(&store.Entry{}).
		Where("translation_key = ?", "hi").
		Updates(map[string]interface{}{"value": "Hallo", "updated_at": t0.Add(time.Minute)}).Error; err != nil {
		t.Fatalf("edit row: %v", err)
	}

	c.now = t1
	if out := mustReconcile(t, e, "hi", "Hi", "S1"); out != reconcile.Settled {
		t.Fatalf("outcome = %v, want settled", out)
	}
	if got := storetest.Entries(t, db, "S1")["hi"]; got.Value != "Hallo" {
		t.Fatalf("settled entry overwritten: %q", got.Value)
	}
}

func TestReconcileKeepsEditMadeDuringRefresh(t *testing.T) {
	e, db, c := newEngine(t)
	mustReconcile(t, e, "hi", "Hello", "S1")

	// Someone edits the row after the engine read it but before its update.
	editedAt := t1.Add(time.Second)
	edited := false
	err := db.Callback().Update().Before("gorm:update").Register("test:edit_between_read_and_write", func(tx *gorm.DB) {
		if edited {
			return
		}
		edited = true
		tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE translation_snippets SET value = ?, updated_at = ? WHERE translation_key = ?", "Manual", editedAt, "hi")
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	c.now = t1
	if out := mustReconcile(t, e, "hi", "Hi", "S1"); out != reconcile.Settled {
		t.Fatalf("outcome = %v, want settled", out)
	}
	if !edited {
		t.Fatal("edit callback did not run")
	}
	got := storetest.Entries(t, db, "S1")["hi"]
	if got.Value != "Manual" || !got.UpdatedAt.Equal(editedAt) || !got.CreatedAt.Equal(t0) {
		t.Fatalf("concurrent edit lost: %+v", got)
	}
}

func TestReconcileYieldsToOwnerChangeDuringRefresh(t *testing.T) {
	e, db, c := newEngine(t)
	mustReconcile(t, e, "hi", "Hello", "S1")

	edited := false
	err := db.Callback().Update().Before("gorm:update").Register("test:take_over_between_read_and_write", func(tx *gorm.DB) {
		if edited {
			return
		}
		edited = true
		tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE translation_snippets SET author = ? WHERE translation_key = ?", "shop-admin", "hi")
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	c.now = t1
	if out := mustReconcile(t, e, "hi", "Hi", "S1"); out != reconcile.Protected {
		t.Fatalf("outcome = %v, want protected", out)
	}
	if got := storetest.Entries(t, db, "S1")["hi"]; got.Value != "Hello" || got.Author != "shop-admin" {
		t.Fatalf("entry = %+v", got)
	}
}

func TestReconcileNeverTouchesExternalEntry(t *testing.T) {
	e, db, c := newEngine(t)
	repo := store.NewRepo(db, logger.NewNop())
	if _, err := repo.Insert(context.Background(), &store.Entry{
		TranslationKey: "hi", Value: "Servus", Author: "shop-admin", TargetID: "S1",
		CreatedAt: t0, UpdatedAt: t0,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c.now = t1
	if out := mustReconcile(t, e, "hi", "Hello", "S1"); out != reconcile.Protected {
		t.Fatalf("outcome = %v, want protected", out)
	}
	got := storetest.Entries(t, db, "S1")["hi"]
	if got.Value != "Servus" || got.Author != "shop-admin" || !got.UpdatedAt.Equal(t0) {
		t.Fatalf("external entry modified: %+v", got)
	}
}

func TestReconcileIsScopedPerTarget(t *testing.T) {
	e, db, _ := newEngine(t)
	mustReconcile(t, e, "hi", "Hello", "S1")
	if out := mustReconcile(t, e, "hi", "Hello", "S2"); out != reconcile.Inserted {
		t.Fatalf("second target outcome = %v, want inserted", out)
	}
	if n := storetest.Count(t, db); n != 2 {
		t.Fatalf("entries = %d, want 2", n)
	}
}

func TestReconcileTruncatesToMicroseconds(t *testing.T) {
	e, db, c := newEngine(t)
	c.now = time.Date(2026, 5, 1, 10, 0, 0, 123456789, time.FixedZone("CEST", 2*3600))

	mustReconcile(t, e, "hi", "Hello", "S1")
	got := storetest.Entries(t, db, "S1")["hi"]
	want := time.Date(2026, 5, 1, 8, 0, 0, 123456000, time.UTC)
	if !got.CreatedAt.Equal(want) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, want)
	}

	// Still fresh after the round trip through the database.
	c.now = t1
	if out := mustReconcile(t, e, "hi", "Hi", "S1"); out != reconcile.Refreshed {
		t.Fatalf("outcome = %v, want refreshed", out)
	}
}

func TestPlaceholder(t *testing.T) {
	e, db, _ := newEngine(t)
	ctx := context.Background()

	ok, err := e.Placeholder(ctx, "home.title", "EN")
	if err != nil || !ok {
		t.Fatalf("Placeholder = %v, %v; want true, nil", ok, err)
	}
	got := storetest.Entries(t, db, "EN")["home.title"]
	if got.Value != "" || got.Author != author {
		t.Fatalf("placeholder = %+v", got)
	}

	ok, err = e.Placeholder(ctx, "home.title", "EN")
	if err != nil || ok {
		t.Fatalf("second Placeholder = %v, %v; want false, nil", ok, err)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[reconcile.Outcome]string{
		reconcile.Unchanged: "unchanged",
		reconcile.Inserted:  "inserted",
		reconcile.Refreshed: "refreshed",
		reconcile.Protected: "protected",
		reconcile.Settled:   "settled",
	}
	for o, want := range tests {
		if o.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(o), o.String(), want)
		}
		if o.Wrote() != (o == reconcile.Inserted || o == reconcile.Refreshed) {
			t.Errorf("%v.Wrote() = %v", o, o.Wrote())
		}
	}
}
