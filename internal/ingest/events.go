package ingest

import "time"

// Event types published during a run.
const (
	EventRunStarted   = "run.started"
	EventSourceDone   = "source.done"
	EventSourceFailed = "source.failed"
	EventRunCommitted = "run.committed"
	EventRunFailed    = "run.failed"
)

// Event is a progress notification. Source is set for source events, Run for
// run.committed and run.failed.
type Event struct {
	Type   string        `json:"type"`
	RunID  string        `json:"run_id"`
	At     time.Time     `json:"at"`
	Source *SourceReport `json:"source,omitempty"`
	Run    *RunResult    `json:"run,omitempty"`
}

// Publisher receives run events. Publish must not block the engine.
type Publisher interface {
	Publish(ev Event)
}
