package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"pricehub/internal/source"
)

var ErrRunInProgress = errors.New("a run is already in progress")

// SpecLoader returns the sources for the next run.
type SpecLoader func() ([]source.Spec, error)

// Trigger starts asynchronous runs, at most one at a time.
type Trigger struct {
	engine *Engine
	load   SpecLoader
	base   context.Context

	mu      sync.Mutex
	running string
	last    *RunResult
	wg      sync.WaitGroup
}

// NewTrigger returns a Trigger whose runs are bounded by base, typically the
// server's lifetime context.
func NewTrigger(base context.Context, e *Engine, load SpecLoader) *Trigger {
	return &Trigger{engine: e, load: load, base: base}
}

// Start launches a run and returns its ID without waiting for it.
func (t *Trigger) Start() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running != "" {
		return t.running, ErrRunInProgress
	}

	specs, err := t.load()
	if err != nil {
		return "", fmt.Errorf("load sources: %w", err)
	}

	id := uuid.NewString()
	t.running = id
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		res, _ := t.engine.RunWithID(t.base, id, specs)

		t.mu.Lock()
		t.running = ""
		t.last = res
		t.mu.Unlock()
	}()
	return id, nil
}

// Running returns the ID of the run in flight, if any.
func (t *Trigger) Running() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running, t.running != ""
}

// Last returns the most recent finished run started by this Trigger.
func (t *Trigger) Last() *RunResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Wait blocks until the run in flight, if any, has finished.
func (t *Trigger) Wait() {
	t.wg.Wait()
}
