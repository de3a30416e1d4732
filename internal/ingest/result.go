package ingest

import (
	"time"
)

// SourceState is the position of one source in its pipeline.
type SourceState string

const (
	StateFetching        SourceState = "Fetching"
	StateParsing         SourceState = "Parsing"
	StateExtractingItems SourceState = "ExtractingItems"
	StateDone            SourceState = "Done"
	StateFailed          SourceState = "Failed"
)

// FailureKind classifies why a source contributed no records.
type FailureKind string

const (
	KindFetchError        FailureKind = "FetchError"
	KindMalformedResponse FailureKind = "MalformedResponse"
	KindArrayPathError    FailureKind = "ArrayPathError"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCommitted RunStatus = "committed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// SourceReport describes what happened to one source during a run.
type SourceReport struct {
	Source     string        `json:"source"`
	Zipcode    string        `json:"zipcode"`
	URL        string        `json:"url"`
	State      SourceState   `json:"state"`
	Kind       FailureKind   `json:"kind,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Items      int           `json:"items"`
	Records    int           `json:"records"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration_ns"`
}

func (r SourceReport) Failed() bool { return r.State == StateFailed }

// SourceFailure is one entry of a run's failure list.
type SourceFailure struct {
	Source  string      `json:"source"`
	Zipcode string      `json:"zipcode"`
	URL     string      `json:"url"`
	Kind    FailureKind `json:"kind"`
	Reason  string      `json:"reason"`
}

// RunResult is the aggregate outcome of one run. Sources follows the order
// of the specs passed to Run.
type RunResult struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     RunStatus `json:"status"`

	SourcesAttempted int `json:"sources_attempted"`
	SourcesSucceeded int `json:"sources_succeeded"`
	SourcesFailed    int `json:"sources_failed"`
	RecordsExtracted int `json:"records_extracted"`
	RecordsPersisted int `json:"records_persisted"`
	ItemsSkipped     int `json:"items_skipped"`

	Sources []SourceReport `json:"sources"`
	Error   string         `json:"error,omitempty"`
}

// Failures lists the sources that ended in StateFailed.
func (r *RunResult) Failures() []SourceFailure {
	var out []SourceFailure
	for _, s := range r.Sources {
		if !s.Failed() {
			continue
		}
		out = append(out, SourceFailure{
			Source:  s.Source,
			Zipcode: s.Zipcode,
			URL:     s.URL,
			Kind:    s.Kind,
			Reason:  s.Reason,
		})
	}
	return out
}

// Committed reports whether the run's batch reached the sink.
func (r *RunResult) Committed() bool { return r.Status == StatusCommitted }

func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// tally recomputes the source counters from Sources.
func (r *RunResult) tally() {
	r.SourcesAttempted = len(r.Sources)
	r.SourcesSucceeded, r.SourcesFailed, r.ItemsSkipped = 0, 0, 0
	for _, s := range r.Sources {
		switch s.State {
		case StateDone:
			r.SourcesSucceeded++
		case StateFailed:
			r.SourcesFailed++
		}
		r.ItemsSkipped += s.Skipped
	}
}
