package sink

import (
	"context"
	"sync"

	"pricehub/pkg/models"
)

// Memory keeps committed rows in process. It backs dry runs and tests.
type Memory struct {
	mu     sync.Mutex
	rows   []models.PriceRow
	nextID int64
	seen   map[string]struct{}

	Dedupe Dedupe
	// FailWith, when set, makes every commit fail without storing anything.
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{Dedupe: DedupeNone}
}

func (m *Memory) CommitBatch(ctx context.Context, b Batch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return 0, m.FailWith
	}
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}

	written := 0
	for _, r := range b.Records {
		if m.Dedupe == DedupeDaily {
			key := r.Item + "\x00" + r.Store + "\x00" + r.Zipcode + "\x00" + r.PriceDay()
			if _, dup := m.seen[key]; dup {
				continue
			}
			m.seen[key] = struct{}{}
		}
		m.nextID++
		m.rows = append(m.rows, models.PriceRow{ID: m.nextID, PriceRecord: r, RunID: b.RunID})
		written++
	}
	return written, nil
}

// Rows returns a copy of everything committed so far.
func (m *Memory) Rows() []models.PriceRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PriceRow, len(m.rows))
	copy(out, m.rows)
	return out
}
