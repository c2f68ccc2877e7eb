// Package orchestrator runs one instance at a time: it prepares the instance
// folder, makes sure the shared database engine is up, launches the web
// server and tears both down again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/smazurov/devbooster/internal/connconfig"
	"github.com/smazurov/devbooster/internal/console"
	"github.com/smazurov/devbooster/internal/events"
	"github.com/smazurov/devbooster/internal/history"
	"github.com/smazurov/devbooster/internal/iisexpress"
	"github.com/smazurov/devbooster/internal/localdb"
	"github.com/smazurov/devbooster/internal/metrics"
	"github.com/smazurov/devbooster/internal/registry"
)

// DefaultPort is used when the requested port is not a valid port number.
const DefaultPort = 6229

// MigrationMarker is created in App_Data when an instance has no database
// yet, telling the application to run its migrations on first start.
const MigrationMarker = "Run.Migration"

// State is the orchestrator state.
type State string

// Orchestrator states.
const (
	StateIdle    State = events.StateIdle
	StateRunning State = events.StateRunning
)

// Options configures an Orchestrator.
type Options struct {
	Registry   Registry
	Engine     Engine
	Executable ExecutableResolver
	NewProcess ProcessFactory
	Fs         afero.Fs
	EventBus   *events.Bus
	History    Recorder // optional
	Logger     *slog.Logger

	DefaultPort  int
	DetachOnExit bool
	ReadyMarker  string
	ConsoleSize  int
}

// SessionInfo is a snapshot of the running session.
type SessionInfo struct {
	ID        string
	Instance  string
	Port      int
	Endpoint  string
	PID       int
	StartedAt time.Time
	Ready     bool
	// Done is closed when the session ends for any reason.
	Done <-chan struct{}
}

// SessionEnd describes how a session ended.
type SessionEnd struct {
	ID       string
	Instance string
	Reason   string
	// ExitCode is set only when the web server exited on its own.
	ExitCode *int
}

type session struct {
	id           string
	instance     string
	databaseName string
	port         int
	endpoint     string
	proc         Process
	startedAt    time.Time
	ready        atomic.Bool

	announced chan struct{} // closed once Start has published the session
	drained   chan struct{} // closed once all output has been consumed
	done      chan struct{}
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:        s.id,
		Instance:  s.instance,
		Port:      s.port,
		Endpoint:  s.endpoint,
		PID:       s.proc.PID(),
		StartedAt: s.startedAt,
		Ready:     s.ready.Load(),
		Done:      s.done,
	}
}

// Orchestrator owns at most one running session.
type Orchestrator struct {
	registry   Registry
	engine     Engine
	executable ExecutableResolver
	newProcess ProcessFactory
	fs         afero.Fs
	eventBus   *events.Bus
	history    Recorder
	logger     *slog.Logger

	defaultPort  int
	detachOnExit bool
	readyMarker  string
	console      *console.Buffer

	// mu guards session, last and closed and serializes Start, Stop,
	// ShutdownHook and DeleteInstance.
	mu      sync.Mutex
	session *session
	last    *SessionEnd
	closed  bool
}

// New creates an Orchestrator. Registry is always required; Engine,
// Executable and NewProcess are required to run instances.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		registry:     opts.Registry,
		engine:       opts.Engine,
		executable:   opts.Executable,
		newProcess:   opts.NewProcess,
		fs:           opts.Fs,
		eventBus:     opts.EventBus,
		history:      opts.History,
		logger:       opts.Logger,
		defaultPort:  opts.DefaultPort,
		detachOnExit: opts.DetachOnExit,
		readyMarker:  opts.ReadyMarker,
		console:      console.New(opts.ConsoleSize),
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.defaultPort == 0 {
		o.defaultPort = DefaultPort
	}
	if o.readyMarker == "" {
		o.readyMarker = iisexpress.ReadyMarker
	}
	return o
}

// ParsePort converts a user supplied port, falling back to def when it is
// not a number between 1 and 65535.
func ParsePort(port string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil || n < 1 || n > 65535 {
		return def
	}
	return n
}

// Initialize loads the instance list and brings up the database engine.
// It does not take the session lock and may run while a session starts.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.isClosed() {
		return newError(ErrCodeShutDown, "orchestrator is shut down", nil)
	}

	names, err := o.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load instances: %w", err)
	}
	o.logger.Info("Instances loaded", "count", len(names))
	o.publish(events.InstancesLoadedEvent{Instances: names, Timestamp: timestamp(time.Now())})

	if err := o.engine.EnsureEngineRunning(ctx); err != nil {
		return err
	}
	// A ShutdownHook that ran meanwhile may have stopped the engine first.
	if o.isClosed() {
		o.engine.Shutdown(ctx)
		return newError(ErrCodeShutDown, "orchestrator is shut down", nil)
	}
	return nil
}

// Instances returns the instance names on disk.
func (o *Orchestrator) Instances(ctx context.Context) ([]string, error) {
	return o.registry.List(ctx)
}

// Start runs an instance on port. Only one instance runs at a time; a second
// Start fails with ALREADY_RUNNING.
func (o *Orchestrator) Start(ctx context.Context, instanceName, port string) (SessionInfo, error) {
	s, err := o.start(ctx, instanceName, ParsePort(port, o.defaultPort))
	if err != nil {
		o.logger.Warn("Failed to start instance", "instance", instanceName, "error", err)
		return SessionInfo{}, err
	}

	metrics.RecordSessionStarted()
	o.recordStart(ctx, s)
	o.publishState(events.StateRunning, s, events.ReasonStarted)
	close(s.announced)

	o.logger.Info("Instance started", "instance", s.instance, "endpoint", s.endpoint, "pid", s.proc.PID())
	return s.info(), nil
}

func (o *Orchestrator) start(ctx context.Context, name string, port int) (*session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, newError(ErrCodeShutDown, "orchestrator is shut down", nil)
	}
	if o.session != nil {
		return nil, newError(ErrCodeAlreadyRunning, fmt.Sprintf("instance %s is already running", o.session.instance), nil)
	}

	inst, err := o.registry.Lookup(name)
	if err != nil {
		return nil, newError(ErrCodeInstanceNotFound, fmt.Sprintf("instance %s not found", name), err)
	}

	if !inst.HasDatabase {
		if err := o.writeMigrationMarker(inst); err != nil {
			return nil, err
		}
	}

	configText := connconfig.Render(o.engine.Name(), inst.DatabaseName)
	if err := connconfig.Write(o.fs, connconfig.Path(inst.WebRoot), configText); err != nil {
		return nil, fmt.Errorf("failed to write connection config: %w", err)
	}

	executable, err := o.executable.Resolve()
	if err != nil {
		return nil, newError(ErrCodeExecutableNotFound, "web server executable not found", err)
	}

	if err := o.engine.EnsureEngineRunning(ctx); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	proc := o.newProcess(id)
	portText := strconv.Itoa(port)

	o.console.Reset()
	if err := proc.Launch(executable, iisexpress.Args(inst.WebRoot, portText)...); err != nil {
		return nil, fmt.Errorf("failed to launch web server: %w", err)
	}

	s := &session{
		id:           id,
		instance:     inst.Name,
		databaseName: inst.DatabaseName,
		port:         port,
		endpoint:     iisexpress.Endpoint(portText),
		proc:         proc,
		startedAt:    time.Now(),
		announced:    make(chan struct{}),
		drained:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	o.session = s
	go o.watch(s)

	return s, nil
}

func (o *Orchestrator) writeMigrationMarker(inst registry.Instance) error {
	dataDir := inst.DataDir()
	if err := o.fs.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dataDir, err)
	}
	f, err := o.fs.Create(filepath.Join(dataDir, MigrationMarker))
	if err != nil {
		return fmt.Errorf("failed to create migration marker: %w", err)
	}
	o.logger.Info("Database missing, migrations will run", "instance", inst.Name)
	return f.Close()
}

// watch consumes one session's output and exit signal.
func (o *Orchestrator) watch(s *session) {
	<-s.announced

	for chunk := range s.proc.Output() {
		o.console.Write(console.Line{Time: chunk.Time, Text: chunk.Text})
		o.publish(events.OutputReceivedEvent{
			Instance:  s.instance,
			Text:      chunk.Text,
			Timestamp: timestamp(chunk.Time),
		})

		if !s.ready.Load() && iisexpress.IsReady(chunk.Text, o.readyMarker) {
			s.ready.Store(true)
			metrics.ObserveSessionReady(time.Since(s.startedAt).Seconds())
			o.logger.Info("Web server ready", "instance", s.instance, "endpoint", s.endpoint)
			o.publish(events.SessionReadyEvent{
				Instance:  s.instance,
				Endpoint:  s.endpoint,
				Timestamp: timestamp(time.Now()),
			})
		}
	}
	close(s.drained)

	<-s.proc.Exited()
	o.onProcessExited(s)
}

// onProcessExited handles a web server that went away without Stop. Stop
// and ShutdownHook clear the session before the exit fires, so for them
// this is a no-op.
func (o *Orchestrator) onProcessExited(s *session) {
	o.mu.Lock()
	if o.session != s {
		o.mu.Unlock()
		return
	}
	o.session = nil
	if o.detachOnExit {
		o.engine.DetachDatabase(context.Background(), s.databaseName)
	}
	o.mu.Unlock()

	exitCode := s.proc.ExitCode()
	o.logger.Warn("Web server exited", "instance", s.instance, "exit_code", exitCode)
	o.endSession(s, history.ReasonExited, &exitCode)
}

// Stop kills the web server and detaches the instance database. It always
// leaves the orchestrator idle; cleanup failures are logged and ignored.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	s := o.session
	if s != nil {
		o.kill(s)
		o.engine.DetachDatabase(ctx, s.databaseName)
		o.session = nil
	}
	o.mu.Unlock()

	if s == nil {
		o.publish(events.StateChangedEvent{
			State:     events.StateIdle,
			Reason:    events.ReasonStopped,
			Timestamp: timestamp(time.Now()),
		})
		return
	}

	o.logger.Info("Instance stopped", "instance", s.instance)
	o.endSession(s, history.ReasonStopped, nil)
}

// ShutdownHook kills any running web server and stops the database engine.
// Later Start calls fail with SHUT_DOWN. Everything is best-effort and it is
// safe to call more than once.
func (o *Orchestrator) ShutdownHook(ctx context.Context) {
	o.mu.Lock()
	o.closed = true
	s := o.session
	if s != nil {
		o.kill(s)
		o.session = nil
	}
	o.engine.Shutdown(ctx)
	o.mu.Unlock()

	if s != nil {
		o.endSession(s, history.ReasonShutdown, nil)
	}
}

// kill terminates a session's process and waits for its output to be
// consumed. Caller holds mu.
func (o *Orchestrator) kill(s *session) {
	if err := s.proc.Kill(); err != nil {
		o.logger.Warn("Failed to kill web server", "instance", s.instance, "error", err)
		metrics.RecordCleanupFailure(metrics.StepKill)
		// Start must have announced running before the caller reports idle.
		<-s.announced
		return
	}
	<-s.drained
}

func (o *Orchestrator) endSession(s *session, reason string, exitCode *int) {
	o.mu.Lock()
	o.last = &SessionEnd{ID: s.id, Instance: s.instance, Reason: reason, ExitCode: exitCode}
	o.mu.Unlock()

	close(s.done)
	metrics.RecordSessionEnded(reason)
	o.recordEnd(s, reason, exitCode)
	o.publishState(events.StateIdle, s, reason)
}

// DeleteInstance removes an instance from disk. An instance running here, or
// with an open session in the history of another process, cannot be deleted.
func (o *Orchestrator) DeleteInstance(ctx context.Context, name string) error {
	o.mu.Lock()
	if o.session != nil && o.session.instance == name {
		o.mu.Unlock()
		return newError(ErrCodeInstanceRunning, fmt.Sprintf("instance %s is running", name), nil)
	}
	if open, ok := o.history.(OpenSessions); ok {
		rec, err := open.OpenSession(ctx, name)
		switch {
		case err == nil:
			o.mu.Unlock()
			return newError(ErrCodeInstanceRunning,
				fmt.Sprintf("instance %s has an open session %s started %s", name, rec.ID, rec.StartedAt.Format(time.RFC3339)), nil)
		case !errors.Is(err, history.ErrNotFound):
			o.logger.Warn("Failed to check session history", "instance", name, "error", err)
		}
	}
	err := o.registry.Delete(name)
	o.mu.Unlock()

	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return newError(ErrCodeInstanceNotFound, fmt.Sprintf("instance %s not found", name), err)
		}
		return err
	}

	names, err := o.registry.List(ctx)
	if err != nil {
		o.logger.Warn("Failed to reload instances", "error", err)
		return nil
	}
	o.publish(events.InstancesLoadedEvent{Instances: names, Timestamp: timestamp(time.Now())})
	return nil
}

// Connection opens a connection to the running instance's database.
func (o *Orchestrator) Connection(ctx context.Context) (localdb.Conn, error) {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()

	if s == nil {
		return nil, newError(ErrCodeNotRunning, "no instance is running", nil)
	}
	return o.engine.OpenConnection(ctx, s.databaseName)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		return StateRunning
	}
	return StateIdle
}

// Session returns the running session, if any.
func (o *Orchestrator) Session() (SessionInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return SessionInfo{}, false
	}
	return o.session.info(), true
}

// LastSession reports how the most recent session ended.
func (o *Orchestrator) LastSession() (SessionEnd, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return SessionEnd{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Console returns up to n of the most recent web server output lines; n <= 0
// returns all that are kept.
func (o *Orchestrator) Console(n int) []string {
	return o.console.Tail(n)
}

func (o *Orchestrator) recordStart(ctx context.Context, s *session) {
	if o.history == nil {
		return
	}
	rec := history.Record{
		ID:        s.id,
		Instance:  s.instance,
		Port:      strconv.Itoa(s.port),
		StartedAt: s.startedAt,
	}
	if err := o.history.RecordStart(ctx, rec); err != nil {
		o.logger.Warn("Failed to record session start", "session", s.id, "error", err)
	}
}

func (o *Orchestrator) recordEnd(s *session, reason string, exitCode *int) {
	if o.history == nil {
		return
	}
	if err := o.history.RecordEnd(context.Background(), s.id, reason, exitCode, time.Now()); err != nil {
		o.logger.Warn("Failed to record session end", "session", s.id, "error", err)
	}
}

func (o *Orchestrator) publishState(state string, s *session, reason string) {
	o.publish(events.StateChangedEvent{
		State:     state,
		Instance:  s.instance,
		Port:      s.port,
		Endpoint:  s.endpoint,
		Reason:    reason,
		Timestamp: timestamp(time.Now()),
	})
}

func (o *Orchestrator) publish(ev events.Event) {
	if o.eventBus != nil {
		o.eventBus.Publish(ev)
	}
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}
