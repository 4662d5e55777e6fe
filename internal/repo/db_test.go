package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/config"
	"github.com/monitizeclub/monitize-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Be tolerant across platforms/drivers:
	// - Windows: *os.PathError ("CreateFile â€¦ cannot find the file specified")
	// - SQLite:  "unable to open database file" / "out of memory (14)"
	// - Unix:    "no such file or directory"
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	// --- Verify PRAGMAs set by OpenSQLite ---
	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)

	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}

	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}

	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	// --- Verify pool tuning applied ---
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	// --- AutoMigrate should create all tables ---
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{
		&domain.Profile{}, &domain.Content{}, &domain.Comment{}, &domain.ContentView{},
		&domain.Order{}, &domain.Transaction{}, &domain.WithdrawalRequest{}, &domain.Idempotency{},
	} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	content := &domain.Content{ID: "c1", CreatorID: "u1", Title: "t", ContentType: domain.ContentText, Status: domain.StatusDraft, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(content).Error; err != nil {
		t.Fatalf("insert content: %v", err)
	}
	cm := &domain.Comment{ID: "m1", ContentID: "c1", UserID: "u2", Body: "hi", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(cm).Error; err != nil {
		t.Fatalf("insert comment: %v", err)
	}
	orphan := &domain.Comment{ID: "m2", ContentID: "missing", UserID: "u2", Body: "hi", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(orphan).Error; err == nil {
		t.Fatalf("expected foreign key violation for orphan comment")
	}

	var got domain.Content
	if err := db.First(&got, "id = ?", "c1").Error; err != nil || got.CreatorID != "u1" {
		t.Fatalf("readback content failed: err=%v got=%+v", err, got)
	}
}

func TestOpen_SQLiteDriver_MigratesSchema(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "open.db")}
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if !db.Migrator().HasTable(&domain.Transaction{}) {
		t.Fatalf("expected transactions table after Open")
	}
	if !db.Migrator().HasIndex(&domain.Transaction{}, "ux_tx_payment_user") {
		t.Fatalf("expected unique index ux_tx_payment_user")
	}
}

func TestOpen_BadPath_WrapsDriver(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "nope", "x.db")}
	if _, err := Open(cfg); err == nil || !strings.Contains(err.Error(), "open sqlite") {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
}

func TestMigrations_EmbeddedInOrder(t *testing.T) {
	names, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(names) == 0 || names[0] != "00001_init.sql" {
		t.Fatalf("unexpected migrations: %v", names)
	}
	b, err := migrationsFS.ReadFile("migrations/" + names[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(b)
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "ux_tx_payment_user", "ux_orders_gateway_order", "ux_user_content_key"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}

// Compile-time guards to ensure signature stability.
var (
	_ func(string) (*gorm.DB, error)         = OpenSQLite
	_ func(string) (*gorm.DB, error)         = OpenPostgres
	_ func(*config.Config) (*gorm.DB, error) = Open
)
