package prices

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"pricehub/pkg/database"
)

func TestExportCSV_ReadCSV(t *testing.T) {
	repo := NewRepo(seed(t), database.DriverSQLite)

	var buf bytes.Buffer
	n, err := repo.ExportCSV(context.Background(), &buf, ListQuery{Zipcode: "94102"})
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if n != 3 {
		t.Fatalf("exported %d rows, want 3", n)
	}
	if !strings.HasPrefix(buf.String(), "id,run_id,item,price,") {
		t.Errorf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	recs, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("read %d records, want 3", len(recs))
	}
	if recs[0].Item != "Whole Milk" || recs[0].Price.String() != "3.29" || recs[0].Zipcode != "94102" {
		t.Errorf("first record = %+v", recs[0])
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing column", "item,store,observed_at\nMilk,A,2026-03-01T00:00:00Z\n", `missing column "price"`},
		{"bad price", "item,price,store,observed_at\nMilk,abc,A,2026-03-01T00:00:00Z\n", "line 2: price"},
		{"negative price", "item,price,store,observed_at\nMilk,-1,A,2026-03-01T00:00:00Z\n", "line 2: price"},
		{"bad time", "item,price,store,observed_at\nMilk,1.00,A,yesterday\n", "line 2: observed_at"},
		{"missing store", "item,price,store,observed_at\nMilk,1.00,,2026-03-01T00:00:00Z\n", "line 2: item and store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ReadCSV() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestReadCSV_HeaderOrderAndCurrency(t *testing.T) {
	content := "Store,Observed_At,Price,Item\nCorner Market,2026-03-01T09:00:00Z,$1.25,Bananas\n"
	recs, err := ReadCSV(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Price.String() != "1.25" || recs[0].Store != "Corner Market" {
		t.Errorf("records = %+v", recs)
	}
}
