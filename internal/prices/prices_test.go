package prices

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"pricehub/internal/sink"
	"pricehub/pkg/database"
	"pricehub/pkg/models"
)

func seed(t *testing.T) *sql.DB {
	t.Helper()
	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "prices.db")}
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, cfg.Driver); err != nil {
		t.Fatal(err)
	}

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	rec := func(item, price, store, zip string, at time.Time) models.PriceRecord {
		return models.PriceRecord{Item: item, Price: decimal.RequireFromString(price), Unit: "ea", Store: store, Zipcode: zip, ObservedAt: at}
	}

	s := sink.NewSQL(db, cfg.Driver, sink.DedupeNone)
	batches := []sink.Batch{
		{RunID: "r1", Records: []models.PriceRecord{
			rec("Whole Milk", "3.49", "Corner Market", "94102", day1),
			rec("Eggs", "4.99", "Corner Market", "94102", day1),
			rec("Whole Milk", "3.59", "Bay Foods", "94110", day1),
		}},
		{RunID: "r2", Records: []models.PriceRecord{
			rec("Whole Milk", "3.29", "Corner Market", "94102", day2),
		}},
	}
	for _, b := range batches {
		if _, err := s.CommitBatch(context.Background(), b); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestRepo_ListAndCount(t *testing.T) {
	repo := NewRepo(seed(t), database.DriverSQLite)
	ctx := context.Background()

	tests := []struct {
		name  string
		q     ListQuery
		count int
		first string
	}{
		{"all newest first", ListQuery{}, 4, "3.29"},
		{"item substring", ListQuery{Item: "milk"}, 3, "3.29"},
		{"store exact", ListQuery{Store: "bay foods"}, 1, "3.59"},
		{"zipcode", ListQuery{Zipcode: "94102"}, 3, "3.29"},
		{"since", ListQuery{Since: "2026-03-02"}, 1, "3.29"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := repo.Count(ctx, tt.q)
			if err != nil {
				t.Fatal(err)
			}
			rows, err := repo.List(ctx, tt.q)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.count || len(rows) != tt.count {
				t.Fatalf("count = %d, rows = %d; want %d", n, len(rows), tt.count)
			}
			if rows[0].Price.String() != tt.first {
				t.Errorf("first price = %s, want %s", rows[0].Price, tt.first)
			}
		})
	}

	rows, err := repo.List(ctx, ListQuery{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("paged rows = %d, want 1", len(rows))
	}
}

func TestRepo_Latest(t *testing.T) {
	repo := NewRepo(seed(t), database.DriverSQLite)

	rows, err := repo.Latest(context.Background(), "94102")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Item == "Whole Milk" && r.Price.String() != "3.29" {
			t.Errorf("latest milk = %s, want 3.29", r.Price)
		}
		if r.RunID == "" || r.ObservedAt.IsZero() {
			t.Errorf("incomplete row %+v", r)
		}
	}

	all, err := repo.Latest(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all zipcodes = %d, want 3", len(all))
	}
}

func newRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewRepo(seed(t), database.DriverSQLite)).RegisterRoutes(r.Group("/prices"))
	return r
}

func TestHandler_List(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/prices?item=milk&limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}

	var body struct {
		Total int               `json:"total"`
		Limit int               `json:"limit"`
		Items []models.PriceRow `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 3 || len(body.Items) != 2 || body.Limit != 2 {
		t.Errorf("body = %+v", body)
	}
}

func TestHandler_BadSince(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/prices?since=yesterday", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandler_Latest(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/prices/latest?zipcode=94110", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Items []models.PriceRow `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Items) != 1 || body.Items[0].Store != "Bay Foods" {
		t.Errorf("items = %+v", body.Items)
	}
}
