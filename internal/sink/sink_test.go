package sink

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricehub/pkg/database"
	"pricehub/pkg/models"
)

var day = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func record(item, price, store string) models.PriceRecord {
	return models.PriceRecord{
		Item:       item,
		Price:      decimal.RequireFromString(price),
		Unit:       "ea",
		Store:      store,
		Zipcode:    "94102",
		ObservedAt: day,
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "sink.db")}
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, cfg.Driver); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM groceries`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestParseDedupe(t *testing.T) {
	for in, want := range map[string]Dedupe{"": DedupeNone, "none": DedupeNone, "Daily": DedupeDaily} {
		got, err := ParseDedupe(in)
		if err != nil || got != want {
			t.Errorf("ParseDedupe(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDedupe("hourly"); !errors.Is(err, ErrUnknownDedupe) {
		t.Errorf("err = %v, want ErrUnknownDedupe", err)
	}
}

func TestSQLSink_Commit(t *testing.T) {
	db := openTestDB(t)
	s := NewSQL(db, database.DriverSQLite, DedupeNone)

	n, err := s.CommitBatch(context.Background(), Batch{
		RunID:   "run-1",
		Records: []models.PriceRecord{record("Milk", "3.49", "A"), record("Eggs", "4.99", "A"), record("Milk", "3.19", "B")},
	})
	if err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	if n != 3 || countRows(t, db) != 3 {
		t.Fatalf("written = %d, rows = %d; want 3", n, countRows(t, db))
	}

	var (
		price  decimal.Decimal
		runID  string
		priceD string
	)
	err = db.QueryRow(`SELECT price, run_id, price_day FROM groceries WHERE item = 'Eggs'`).Scan(&price, &runID, &priceD)
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(decimal.RequireFromString("4.99")) || runID != "run-1" || priceD != "2026-03-01" {
		t.Errorf("row = %s %s %s", price, runID, priceD)
	}
}

func TestSQLSink_EmptyBatch(t *testing.T) {
	db := openTestDB(t)
	n, err := NewSQL(db, database.DriverSQLite, DedupeNone).CommitBatch(context.Background(), Batch{RunID: "r"})
	if err != nil || n != 0 {
		t.Errorf("got %d, %v; want 0, nil", n, err)
	}
}

func TestSQLSink_RollbackOnFailure(t *testing.T) {
	db := openTestDB(t)
	s := NewSQL(db, database.DriverSQLite, DedupeNone)

	if _, err := s.CommitBatch(context.Background(), Batch{RunID: "seed", Records: []models.PriceRecord{record("Seed", "1", "A")}}); err != nil {
		t.Fatal(err)
	}

	// the empty item violates the table CHECK halfway through the batch
	bad := []models.PriceRecord{
		record("Milk", "3.49", "A"),
		record("Eggs", "4.99", "A"),
		record("", "1.00", "A"),
		record("Bread", "2.00", "A"),
	}
	n, err := s.CommitBatch(context.Background(), Batch{RunID: "run-2", Records: bad})
	if err == nil {
		t.Fatal("want error")
	}
	if n != 0 {
		t.Errorf("written = %d on failure, want 0", n)
	}
	if got := countRows(t, db); got != 1 {
		t.Errorf("rows = %d after failed batch, want only the seed row", got)
	}
}

func TestSQLSink_DailyDedupe(t *testing.T) {
	db := openTestDB(t)
	if err := database.EnsureDailyUnique(db); err != nil {
		t.Fatal(err)
	}
	s := NewSQL(db, database.DriverSQLite, DedupeDaily)
	ctx := context.Background()

	first := []models.PriceRecord{record("Milk", "3.49", "A"), record("Eggs", "4.99", "A")}
	if n, err := s.CommitBatch(ctx, Batch{RunID: "r1", Records: first}); err != nil || n != 2 {
		t.Fatalf("first = %d, %v", n, err)
	}

	second := []models.PriceRecord{record("Milk", "3.29", "A"), record("Jam", "5.00", "A")}
	n, err := s.CommitBatch(ctx, Batch{RunID: "r2", Records: second})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("second written = %d, want 1", n)
	}
	if got := countRows(t, db); got != 3 {
		t.Errorf("rows = %d, want 3", got)
	}
}

// Going back to the default policy after a daily run must accept same-day
// duplicates again.
func TestSQLSink_DailyThenNone(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := database.SyncDailyUnique(db, true); err != nil {
		t.Fatal(err)
	}
	daily := NewSQL(db, database.DriverSQLite, DedupeDaily)
	if _, err := daily.CommitBatch(ctx, Batch{RunID: "r1", Records: []models.PriceRecord{record("Milk", "3.49", "A")}}); err != nil {
		t.Fatal(err)
	}

	if err := database.SyncDailyUnique(db, false); err != nil {
		t.Fatalf("SyncDailyUnique(false): %v", err)
	}
	none := NewSQL(db, database.DriverSQLite, DedupeNone)
	batch := []models.PriceRecord{record("Eggs", "4.99", "A"), record("Milk", "3.49", "A")}
	n, err := none.CommitBatch(ctx, Batch{RunID: "r2", Records: batch})
	if err != nil {
		t.Fatalf("append-only commit after daily: %v", err)
	}
	if n != 2 {
		t.Errorf("written = %d, want 2", n)
	}
	if got := countRows(t, db); got != 3 {
		t.Errorf("rows = %d, want 3", got)
	}

	// dropping twice is fine
	if err := database.SyncDailyUnique(db, false); err != nil {
		t.Errorf("second drop: %v", err)
	}
}

func TestSQLSink_CancelledContext(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSQL(db, database.DriverSQLite, DedupeNone).CommitBatch(ctx, Batch{RunID: "r", Records: []models.PriceRecord{record("Milk", "1", "A")}})
	if err == nil {
		t.Fatal("want error for cancelled context")
	}
	if got := countRows(t, db); got != 0 {
		t.Errorf("rows = %d, want 0", got)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	n, err := m.CommitBatch(ctx, Batch{RunID: "r1", Records: []models.PriceRecord{record("Milk", "1", "A"), record("Eggs", "2", "A")}})
	if err != nil || n != 2 {
		t.Fatalf("commit = %d, %v", n, err)
	}
	rows := m.Rows()
	if len(rows) != 2 || rows[0].ID != 1 || rows[1].RunID != "r1" {
		t.Errorf("rows = %+v", rows)
	}

	m.FailWith = errors.New("disk full")
	if _, err := m.CommitBatch(ctx, Batch{RunID: "r2", Records: []models.PriceRecord{record("Jam", "3", "A")}}); err == nil {
		t.Error("want injected failure")
	}
	if len(m.Rows()) != 2 {
		t.Errorf("failed batch leaked rows")
	}
}

func TestMemory_DailyDedupe(t *testing.T) {
	m := &Memory{Dedupe: DedupeDaily}
	recs := []models.PriceRecord{record("Milk", "1", "A"), record("Milk", "0.9", "A"), record("Milk", "1", "B")}

	n, err := m.CommitBatch(context.Background(), Batch{RunID: "r", Records: recs})
	if err != nil || n != 2 {
		t.Errorf("written = %d, %v; want 2", n, err)
	}
}

func TestPgxSink(t *testing.T) {
	dsn := os.Getenv("PRICEHUB_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PRICEHUB_TEST_PG_DSN not set")
	}
	ctx := context.Background()

	db, err := database.Open(database.Config{Driver: database.DriverPostgres, DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := database.Migrate(db, database.DriverPostgres); err != nil {
		t.Fatal(err)
	}

	pool, err := OpenPool(ctx, dsn, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	runID := "pgx-" + time.Now().Format("150405.000000")
	s := NewPgx(pool, DedupeNone)
	n, err := s.CommitBatch(ctx, Batch{RunID: runID, Records: []models.PriceRecord{record("Milk", "3.49", "A")}})
	if err != nil || n != 1 {
		t.Fatalf("commit = %d, %v", n, err)
	}

	_, err = s.CommitBatch(ctx, Batch{RunID: runID, Records: []models.PriceRecord{record("Eggs", "1", "A"), record("", "1", "A")}})
	if err == nil {
		t.Fatal("want CHECK violation")
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM groceries WHERE run_id = $1`, runID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rows for run = %d, want 1", count)
	}
}
