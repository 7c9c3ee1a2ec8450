package ui

import "time"

// TUI message types for dashboard updates
type TickMsg time.Time

// RunDoneMsg tells the dashboard the pipeline has returned. Err carries
// whatever Execute returned, nil for a clean finish.
type RunDoneMsg struct {
	Err error
}
