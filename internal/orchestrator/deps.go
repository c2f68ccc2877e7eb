package orchestrator

import (
	"context"
	"time"

	"github.com/smazurov/devbooster/internal/history"
	"github.com/smazurov/devbooster/internal/localdb"
	"github.com/smazurov/devbooster/internal/process"
	"github.com/smazurov/devbooster/internal/registry"
)

// Registry finds instances on disk.
type Registry interface {
	List(ctx context.Context) ([]string, error)
	Lookup(name string) (registry.Instance, error)
	Delete(name string) error
}

// Engine is the shared database engine.
type Engine interface {
	Name() string
	EnsureEngineRunning(ctx context.Context) error
	OpenConnection(ctx context.Context, databaseName string) (localdb.Conn, error)
	DetachDatabase(ctx context.Context, databaseName string)
	Shutdown(ctx context.Context)
}

// Process is one launch of the web server.
type Process interface {
	Launch(path string, args ...string) error
	Output() <-chan process.Chunk
	Exited() <-chan struct{}
	Kill() error
	PID() int
	ExitCode() int
}

// ProcessFactory returns an unlaunched Process for a session id.
type ProcessFactory func(id string) Process

// ExecutableResolver locates the web server executable.
type ExecutableResolver interface {
	Resolve() (string, error)
}

// Recorder keeps session history.
type Recorder interface {
	RecordStart(ctx context.Context, rec history.Record) error
	RecordEnd(ctx context.Context, id, reason string, exitCode *int, endedAt time.Time) error
}

// OpenSessions is implemented by recorders that can report a session still
// running in another process.
type OpenSessions interface {
	OpenSession(ctx context.Context, instance string) (history.Record, error)
}
