package process

import "time"

// State represents the current state of a supervised process.
type State string

// Process states.
const (
	StateIdle    State = "idle"    // Not launched yet
	StateRunning State = "running" // Launched and not yet reaped
	StateStopped State = "stopped" // Exited or killed
)

// Info is a snapshot of a supervised process.
type Info struct {
	ID        string
	State     State
	PID       int
	StartedAt time.Time
	ExitCode  int
}
