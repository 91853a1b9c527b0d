package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/validation"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), NewConfig(DriverSQLite, ":memory:"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return db
}

func TestRebind(t *testing.T) {
	q := `INSERT INTO t (a, b) VALUES (?, ?)`
	if got := rebind(DriverPostgres, q); got != `INSERT INTO t (a, b) VALUES ($1, $2)` {
		t.Errorf("postgres: %s", got)
	}
	if got := rebind(DriverSQLite, q); got != q {
		t.Errorf("sqlite: %s", got)
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(context.Background(), NewConfig("mysql", "x")); err == nil {
		t.Error("expected error")
	}
}

func TestNew_SQLiteFileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "site.db")
	db, err := New(context.Background(), NewConfig(DriverSQLite, path))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer db.Close()
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	db := openMemory(t)
	if err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	status, err := db.GetMigrationStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(status) != len(Migrations) {
		t.Fatalf("status = %+v", status)
	}
	for _, s := range status {
		if !s.Applied {
			t.Errorf("migration %d not applied", s.Version)
		}
	}
}

func TestRollbackMigration(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	if err := db.RollbackMigration(ctx); err != nil {
		t.Fatalf("RollbackMigration: %v", err)
	}
	status, _ := db.GetMigrationStatus(ctx)
	last := status[len(status)-1]
	if last.Applied {
		t.Errorf("migration %d still applied", last.Version)
	}
	if !status[0].Applied || status[0].AppliedAt.IsZero() {
		t.Errorf("migration 1 = %+v; want applied with a timestamp", status[0])
	}
	if n := Pending(status); n != 1 {
		t.Errorf("Pending = %d; want 1", n)
	}
	if err := db.RunMigrations(ctx); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
}

func TestContactRepository_SaveAndList(t *testing.T) {
	db := openMemory(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"Ada", "Grace", "Linus"} {
		msg := &models.ContactMessage{
			Name:      "  " + name + "  ",
			Email:     name + "@example.com",
			Subject:   "general",
			Message:   "Hello, I have a question about fees.",
			Locale:    "en",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Save(ctx, msg); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
		if msg.ID == "" {
			t.Error("ID not assigned")
		}
	}

	got, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Linus" || got[1].Name != "Grace" {
		t.Fatalf("got %+v", got)
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v", got[0].CreatedAt)
	}
}

func TestContactRepository_StoresEverySubject(t *testing.T) {
	db := openMemory(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	for _, subject := range []string{"general", "technical", "billing", "partnership", "other"} {
		msg := &models.ContactMessage{
			Name:    "Ada",
			Email:   "ada@example.com",
			Subject: subject,
			Message: "Let us talk about a partnership.",
		}
		if err := repo.Save(ctx, msg); err != nil {
			t.Fatalf("Save %s: %v", subject, err)
		}
	}
	if got, _ := repo.ListRecent(ctx, 10); len(got) != 5 {
		t.Fatalf("stored %d messages, want 5", len(got))
	}

	// Rolling the subject migration back keeps only the original subjects.
	if err := db.RollbackMigration(ctx); err != nil {
		t.Fatalf("RollbackMigration: %v", err)
	}
	if got, _ := repo.ListRecent(ctx, 10); len(got) != 3 {
		t.Fatalf("after rollback %d messages, want 3", len(got))
	}
}

func TestContactRepository_RejectsInvalid(t *testing.T) {
	db := openMemory(t)
	repo := NewContactRepository(db)

	err := repo.Save(context.Background(), &models.ContactMessage{Name: "A", Email: "nope", Subject: "x", Message: "short"})
	ve, ok := validation.AsValidationErrors(err)
	if !ok || len(ve) != 4 {
		t.Fatalf("err = %v; want 4 validation errors", err)
	}
	if got, _ := repo.ListRecent(context.Background(), 10); len(got) != 0 {
		t.Errorf("invalid message stored: %+v", got)
	}
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO contact_messages (id, name, email, subject, message, locale, created_at)
			VALUES ('x', 'Ada', 'a@b.co', 'general', 'hello world!', 'en', ?)`, time.Now().UTC()); err != nil {
			return err
		}
		return errBoom
	})
	if err != errBoom {
		t.Fatalf("err = %v", err)
	}
	if got, _ := NewContactRepository(db).ListRecent(ctx, 10); len(got) != 0 {
		t.Errorf("rolled back row visible: %+v", got)
	}
}

var errBoom = errors.New("boom")
