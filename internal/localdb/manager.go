// Package localdb manages the shared SQL Server LocalDB engine that backs every
// instance database.
package localdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/devbooster/internal/events"
	"github.com/smazurov/devbooster/internal/metrics"
)

// DefaultEngineName is the engine instance created for instance databases.
const DefaultEngineName = "RockDevBooster"

// EngineState is the lifecycle state of the tracked engine.
type EngineState string

// Engine states.
const (
	EngineNotCreated EngineState = "not_created"
	EngineRunning    EngineState = "running"
	EngineStopped    EngineState = "stopped"
)

// Options configures a Manager.
type Options struct {
	Name     string
	Tool     Tool
	Dialer   Dialer
	EventBus *events.Bus
	Logger   *slog.Logger
}

// Manager owns the lifecycle of one engine instance.
type Manager struct {
	name     string
	tool     Tool
	dialer   Dialer
	eventBus *events.Bus
	logger   *slog.Logger

	mu    sync.Mutex
	state EngineState
	pipe  string
}

// NewManager creates a Manager. No engine is touched until EnsureEngineRunning.
func NewManager(opts Options) *Manager {
	name := opts.Name
	if name == "" {
		name = DefaultEngineName
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = SQLDialer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		name:     name,
		tool:     opts.Tool,
		dialer:   dialer,
		eventBus: opts.EventBus,
		logger:   logger,
		state:    EngineNotCreated,
	}
}

// Name returns the engine instance name.
func (m *Manager) Name() string {
	return m.name
}

// State returns the tracked engine state.
func (m *Manager) State() EngineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureEngineRunning makes sure the tracked engine is running.
//
// With no engine tracked, any leftover engine of the same name is stopped and
// deleted first; failures there are ignored. A fresh engine is then created
// and started. A tracked engine that is stopped is only started again.
func (m *Manager) EnsureEngineRunning(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case EngineRunning:
		return nil
	case EngineStopped:
		return m.start(ctx)
	}

	m.removeLeftover(ctx)

	if err := m.tool.Create(ctx, m.name); err != nil {
		m.logger.Error("Failed to create engine", "engine", m.name, "error", err)
		return newError(ErrCodeEngineSetup, fmt.Sprintf("failed to create engine %s", m.name), err)
	}
	metrics.RecordEngineRecreation()
	m.setState(EngineStopped)

	return m.start(ctx)
}

// removeLeftover stops and deletes an existing engine with our name.
func (m *Manager) removeLeftover(ctx context.Context) {
	info, err := m.tool.Info(ctx, m.name)
	if err != nil {
		if !HasCode(err, ErrCodeEngineNotFound) {
			m.logger.Debug("Engine lookup failed", "engine", m.name, "error", err)
			metrics.RecordCleanupFailure(metrics.StepEngineCleanup)
		}
		return
	}
	if !info.Exists {
		return
	}

	if info.Running {
		if err := m.tool.Stop(ctx, m.name); err != nil {
			m.logger.Debug("Failed to stop leftover engine", "engine", m.name, "error", err)
			metrics.RecordCleanupFailure(metrics.StepEngineCleanup)
		}
	}
	if err := m.tool.Delete(ctx, m.name); err != nil {
		m.logger.Debug("Failed to delete leftover engine", "engine", m.name, "error", err)
		metrics.RecordCleanupFailure(metrics.StepEngineCleanup)
		return
	}
	m.logger.Info("Removed leftover engine", "engine", m.name)
}

// start starts the tracked engine and records its pipe. Caller holds mu.
func (m *Manager) start(ctx context.Context) error {
	if err := m.tool.Start(ctx, m.name); err != nil {
		m.logger.Error("Failed to start engine", "engine", m.name, "error", err)
		return newError(ErrCodeEngineSetup, fmt.Sprintf("failed to start engine %s", m.name), err)
	}

	info, err := m.tool.Info(ctx, m.name)
	if err != nil {
		m.logger.Warn("Engine started but info failed", "engine", m.name, "error", err)
	}
	m.pipe = info.PipeName
	m.setState(EngineRunning)
	m.logger.Info("Engine running", "engine", m.name, "pipe", m.pipe)
	return nil
}

// OpenConnection opens a connection to the engine with databaseName selected.
// The caller closes it.
func (m *Manager) OpenConnection(ctx context.Context, databaseName string) (Conn, error) {
	m.mu.Lock()
	state, pipe := m.state, m.pipe
	m.mu.Unlock()

	if state != EngineRunning {
		return nil, newError(ErrCodeEngineNotRunning, fmt.Sprintf("engine %s is %s", m.name, state), nil)
	}

	conn, err := m.dialer.Dial(ctx, pipe)
	if err != nil {
		return nil, newError(ErrCodeConnectionFailed, "failed to connect to engine", err)
	}
	if err := conn.ChangeDatabase(ctx, databaseName); err != nil {
		_ = conn.Close()
		return nil, newError(ErrCodeConnectionFailed, fmt.Sprintf("failed to switch to database %s", databaseName), err)
	}
	return conn, nil
}

// DetachDatabase shrinks the database log and detaches the database from the
// engine. Every failure is logged and ignored.
func (m *Manager) DetachDatabase(ctx context.Context, databaseName string) {
	if err := m.detach(ctx, databaseName); err != nil {
		m.logger.Warn("Failed to detach database", "database", databaseName, "error", err)
		metrics.RecordCleanupFailure(metrics.StepDetach)
		return
	}
	m.logger.Info("Database detached", "database", databaseName)
}

func (m *Manager) detach(ctx context.Context, databaseName string) error {
	conn, err := m.OpenConnection(ctx, databaseName)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Exec(ctx, "DBCC SHRINKFILE ([Database_log.ldf], 1)"); err != nil {
		return fmt.Errorf("shrink log: %w", err)
	}
	if err := conn.ChangeDatabase(ctx, "master"); err != nil {
		return fmt.Errorf("switch to master: %w", err)
	}
	if err := conn.Exec(ctx, "exec sp_detach_db "+QuoteIdentifier(databaseName)); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	return nil
}

// Shutdown stops the engine if it is running and forgets it. Safe to call
// more than once.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == EngineNotCreated {
		return
	}
	if m.state == EngineRunning {
		if err := m.tool.Stop(ctx, m.name); err != nil {
			m.logger.Warn("Failed to stop engine", "engine", m.name, "error", err)
			metrics.RecordCleanupFailure(metrics.StepEngineStop)
		} else {
			m.logger.Info("Engine stopped", "engine", m.name)
		}
	}
	m.pipe = ""
	m.setState(EngineNotCreated)
}

// setState records a transition and publishes it. Caller holds mu.
func (m *Manager) setState(state EngineState) {
	m.state = state
	if m.eventBus != nil {
		m.eventBus.Publish(events.EngineStateChangedEvent{
			Engine:    m.name,
			State:     string(state),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}
