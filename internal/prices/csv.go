package prices

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pricehub/internal/extract"
	"pricehub/pkg/models"
)

var csvHeader = []string{"id", "run_id", "item", "price", "unit", "store", "zipcode", "observed_at"}

// ExportCSV pages through every row matching q and writes it to w. It returns
// the number of rows written.
func (r *Repo) ExportCSV(ctx context.Context, w io.Writer, q ListQuery) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}

	q.Limit = maxLimit
	q.Offset = 0
	n := 0
	for {
		rows, err := r.List(ctx, q)
		if err != nil {
			return n, err
		}
		for _, row := range rows {
			if err := cw.Write([]string{
				strconv.FormatInt(row.ID, 10),
				row.RunID,
				row.Item,
				row.Price.String(),
				row.Unit,
				row.Store,
				row.Zipcode,
				row.ObservedAt.UTC().Format(time.RFC3339),
			}); err != nil {
				return n, err
			}
			n++
		}
		if len(rows) < q.Limit {
			break
		}
		q.Offset += len(rows)
	}

	cw.Flush()
	return n, cw.Error()
}

// ReadCSV parses rows in the ExportCSV layout. Columns are matched by header
// name; id and run_id are ignored. Any invalid row fails the whole read.
func ReadCSV(rd io.Reader) ([]models.PriceRecord, error) {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for _, col := range []string{"item", "price", "store", "observed_at"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []models.PriceRecord
	line := 1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		rec := models.PriceRecord{
			Item:    valueAt(header, row, "item"),
			Unit:    valueAt(header, row, "unit"),
			Store:   valueAt(header, row, "store"),
			Zipcode: valueAt(header, row, "zipcode"),
		}
		if rec.Item == "" || rec.Store == "" {
			return nil, fmt.Errorf("line %d: item and store are required", line)
		}
		if rec.Price, err = extract.ToDecimal(valueAt(header, row, "price")); err != nil {
			return nil, fmt.Errorf("line %d: price: %w", line, err)
		}
		if rec.ObservedAt, err = time.Parse(time.RFC3339, valueAt(header, row, "observed_at")); err != nil {
			return nil, fmt.Errorf("line %d: observed_at: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
