package prices

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pricehub/pkg/database"
	"pricehub/pkg/models"
)

type Repo struct {
	DB     *sql.DB
	Driver string
}

type ListQuery struct {
	Item    string // substring match
	Store   string
	Zipcode string
	Since   string // YYYY-MM-DD, inclusive
	Limit   int
	Offset  int
}

func NewRepo(db *sql.DB, driver string) *Repo {
	return &Repo{DB: db, Driver: driver}
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

const priceColumns = `id, run_id, item, price, unit, store, zipcode, observed_at`

func scanRow(s interface{ Scan(...any) error }) (models.PriceRow, error) {
	var r models.PriceRow
	err := s.Scan(&r.ID, &r.RunID, &r.Item, &r.Price, &r.Unit, &r.Store, &r.Zipcode, &r.ObservedAt)
	return r, err
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	row := r.DB.QueryRowContext(ctx, database.Rebind(r.Driver, sqlStr), args...)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

// List returns observations newest first.
func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.PriceRow, error) {
	sqlStr, args := buildListSQL(q, false)
	return r.query(ctx, sqlStr, args...)
}

// Latest returns the most recent observation of every (item, store,
// zipcode), optionally limited to one zipcode.
func (r *Repo) Latest(ctx context.Context, zipcode string) ([]models.PriceRow, error) {
	sqlStr := `
		SELECT ` + priceColumns + `
		FROM groceries g
		WHERE g.id = (
			SELECT g2.id FROM groceries g2
			WHERE g2.item = g.item AND g2.store = g.store AND g2.zipcode = g.zipcode
			ORDER BY g2.observed_at DESC, g2.id DESC
			LIMIT 1
		)`
	var args []any
	if z := strings.TrimSpace(zipcode); z != "" {
		sqlStr += ` AND g.zipcode = ?`
		args = append(args, z)
	}
	sqlStr += ` ORDER BY g.store ASC, g.item ASC`
	return r.query(ctx, sqlStr, args...)
}

func (r *Repo) query(ctx context.Context, sqlStr string, args ...any) ([]models.PriceRow, error) {
	rows, err := r.DB.QueryContext(ctx, database.Rebind(r.Driver, sqlStr), args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceRow, 0)
	for rows.Next() {
		p, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// buildListSQL builds either COUNT(*) or SELECT list.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	baseSelect := `SELECT ` + priceColumns + ` FROM groceries`
	if countOnly {
		baseSelect = `SELECT COUNT(*) FROM groceries`
	}

	var where []string
	var args []any

	if s := strings.TrimSpace(q.Item); s != "" {
		where = append(where, "LOWER(item) LIKE ?")
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	if s := strings.TrimSpace(q.Store); s != "" {
		where = append(where, "LOWER(store) = ?")
		args = append(args, strings.ToLower(s))
	}
	if s := strings.TrimSpace(q.Zipcode); s != "" {
		where = append(where, "zipcode = ?")
		args = append(args, s)
	}
	if s := strings.TrimSpace(q.Since); s != "" {
		where = append(where, "price_day >= ?")
		args = append(args, s)
	}

	sqlStr := baseSelect
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		sqlStr += " ORDER BY observed_at DESC, id DESC"
		sqlStr += " LIMIT ? OFFSET ?"
		limit := q.Limit
		if limit <= 0 || limit > maxLimit {
			limit = defaultLimit
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, limit, offset)
	}
	return sqlStr, args
}
