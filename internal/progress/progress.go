package progress

import "time"

// Stage identifies which step of a request is active.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageAsk      Stage = "ask"
	StageComplete Stage = "complete"
)

// Event carries progress information from the extractor or controller to a renderer.
type Event struct {
	Stage   Stage
	Message string
	Percent float64 // 0.0–1.0
	Page    int
	Pages   int
	Elapsed time.Duration
	Error   error
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}

// PageEvent builds the extraction event for page n of total.
func PageEvent(n, total int) Event {
	pct := 0.0
	if total > 0 {
		pct = float64(n) / float64(total)
	}
	return Event{
		Stage:   StageExtract,
		Message: "Extracting document metadata...",
		Percent: pct,
		Page:    n,
		Pages:   total,
	}
}
