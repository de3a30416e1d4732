package ingest

import (
	"context"
	"errors"
	"testing"

	"pricehub/internal/sink"
	"pricehub/internal/source"
)

func TestTrigger_SingleFlight(t *testing.T) {
	f := &fakeFetcher{
		responses: map[string]fakeResponse{"http://a": {body: productsBody("Milk")}},
		block:     make(chan struct{}),
		started:   make(chan string, 1),
	}
	mem := sink.NewMemory()
	tr := NewTrigger(context.Background(), New(f, mem, Options{}), func() ([]source.Spec, error) {
		return []source.Spec{testSpec("A", "http://a")}, nil
	})

	id, err := tr.Start()
	if err != nil || id == "" {
		t.Fatalf("Start = %q, %v", id, err)
	}
	<-f.started

	running, ok := tr.Running()
	if !ok || running != id {
		t.Errorf("Running = %q, %v; want %q", running, ok, id)
	}
	if got, err := tr.Start(); !errors.Is(err, ErrRunInProgress) || got != id {
		t.Errorf("second Start = %q, %v; want %q, ErrRunInProgress", got, err, id)
	}

	close(f.block)
	tr.Wait()

	if _, ok := tr.Running(); ok {
		t.Error("still running after Wait")
	}
	last := tr.Last()
	if last == nil || last.ID != id || last.Status != StatusCommitted {
		t.Fatalf("Last = %+v", last)
	}
	if len(mem.Rows()) != 1 {
		t.Errorf("rows = %d, want 1", len(mem.Rows()))
	}
}

func TestTrigger_LoadError(t *testing.T) {
	boom := errors.New("catalog unreadable")
	tr := NewTrigger(context.Background(), New(&fakeFetcher{}, sink.NewMemory(), Options{}), func() ([]source.Spec, error) {
		return nil, boom
	})

	if _, err := tr.Start(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want load error", err)
	}
	if _, ok := tr.Running(); ok {
		t.Error("run marked in progress after load failure")
	}
}
