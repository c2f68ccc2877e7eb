package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/smazurov/devbooster/internal/config"
	"github.com/smazurov/devbooster/internal/events"
	"github.com/smazurov/devbooster/internal/history"
	"github.com/smazurov/devbooster/internal/iisexpress"
	"github.com/smazurov/devbooster/internal/localdb"
	"github.com/smazurov/devbooster/internal/logging"
	"github.com/smazurov/devbooster/internal/metrics"
	"github.com/smazurov/devbooster/internal/orchestrator"
	"github.com/smazurov/devbooster/internal/process"
	"github.com/smazurov/devbooster/internal/registry"
)

// Exit codes for the foreground run.
const (
	exitOK           = 0
	exitFatal        = 1
	exitPrecondition = 2
)

// application wires the orchestrator for a foreground run.
type application struct {
	opts   *config.Options
	logger *slog.Logger

	mu       sync.Mutex
	orch     *orchestrator.Orchestrator
	history  *history.Store
	stopped  bool
	stopOnce sync.Once
}

func newApplication(opts *config.Options, logger *slog.Logger) *application {
	return &application{opts: opts, logger: logger}
}

// Run starts the configured instance and blocks until its session ends.
func (a *application) Run() {
	code := a.run(context.Background())
	a.Shutdown()
	if code != exitOK {
		os.Exit(code)
	}
}

func (a *application) run(ctx context.Context) int {
	orch, bus := a.build()
	if orch == nil {
		return exitOK
	}
	unsubscribe := subscribe(bus, a.logger)
	defer unsubscribe()

	ready := make(chan events.SessionReadyEvent, 1)
	defer events.SubscribeToChannel[events.SessionReadyEvent](bus, ready)()

	switch err := orch.Initialize(ctx); {
	case orchestrator.HasCode(err, orchestrator.ErrCodeShutDown):
		return exitOK
	case err != nil:
		a.logger.Error("Failed to set up database engine", "error", err)
		return exitFatal
	}

	name, err := a.instanceName(ctx, orch)
	if err != nil {
		a.logger.Error("No instance to run", "error", err)
		return exitPrecondition
	}

	info, err := orch.Start(ctx, name, a.opts.Port)
	switch {
	case orchestrator.HasCode(err, orchestrator.ErrCodeShutDown):
		return exitOK
	case orchestrator.IsPrecondition(err):
		a.logger.Error("Cannot start instance", "instance", name, "error", err)
		return exitPrecondition
	case err != nil:
		a.logger.Error("Failed to start instance", "instance", name, "error", err)
		return exitFatal
	}

	for {
		select {
		case e := <-ready:
			a.logger.Info("Instance ready", "instance", e.Instance, "endpoint", e.Endpoint)
		case <-info.Done:
			end, _ := orch.LastSession()
			return a.sessionExitCode(end, orch.Console(consoleTail), os.Stderr)
		}
	}
}

// consoleTail is how many output lines are shown after a crash.
const consoleTail = 20

// sessionExitCode maps how the session ended to the process exit code and
// dumps lines, the tail of the web server output, when it went away on its own.
func (a *application) sessionExitCode(end orchestrator.SessionEnd, lines []string, w io.Writer) int {
	if end.Reason != history.ReasonExited {
		return exitOK
	}

	if len(lines) > 0 {
		fmt.Fprintf(w, "Last output of %s:\n", end.Instance)
		for _, line := range lines {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}

	if end.ExitCode != nil && *end.ExitCode != 0 {
		a.logger.Error("Web server exited", "instance", end.Instance, "exit_code", *end.ExitCode)
		return exitFatal
	}
	return exitOK
}

// build returns nil when Shutdown already ran.
func (a *application) build() (*orchestrator.Orchestrator, *events.Bus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil, nil
	}

	opts := a.opts
	fs := afero.NewOsFs()
	bus := events.New()

	engine := localdb.NewManager(localdb.Options{
		Name:     opts.EngineName,
		Tool:     localdb.NewCLITool(opts.EngineTool, logging.GetLogger("localdb")),
		Dialer:   localdb.SQLDialer{},
		EventBus: bus,
		Logger:   logging.GetLogger("localdb"),
	})

	orchOpts := orchestrator.Options{
		Registry:     registry.New(fs, opts.ResolvedInstancesRoot(), logging.GetLogger("registry")),
		Engine:       engine,
		Executable:   iisexpress.NewResolver(opts.WebserverExecutable, fs),
		NewProcess:   a.processFactory(),
		Fs:           fs,
		EventBus:     bus,
		Logger:       logging.GetLogger("orchestrator"),
		DefaultPort:  orchestrator.DefaultPort,
		DetachOnExit: opts.InstancesDetachOnExit,
		ReadyMarker:  opts.WebserverReadyMarker,
	}

	store, err := history.Open(opts.ResolvedHistoryPath())
	if err != nil {
		logging.GetLogger("history").Warn("Session history disabled", "path", opts.ResolvedHistoryPath(), "error", err)
	} else {
		a.history = store
		orchOpts.History = store
	}

	a.orch = orchestrator.New(orchOpts)
	return a.orch, bus
}

func (a *application) processFactory() orchestrator.ProcessFactory {
	killTimeout := a.opts.KillTimeout()
	return func(id string) orchestrator.Process {
		return process.NewSupervisor(id, logging.GetLogger("process"),
			process.WithLogParser(logging.GetLogger("iisexpress"), iisexpress.ObserveLine),
			process.WithKillTimeout(killTimeout),
		)
	}
}

// instanceName returns the configured instance, or the only one on disk.
func (a *application) instanceName(ctx context.Context, orch *orchestrator.Orchestrator) (string, error) {
	if a.opts.Instance != "" {
		return a.opts.Instance, nil
	}
	names, err := orch.Instances(ctx)
	if err != nil {
		return "", err
	}
	switch len(names) {
	case 0:
		return "", fmt.Errorf("no instances in %s", a.opts.ResolvedInstancesRoot())
	case 1:
		return names[0], nil
	default:
		return "", errors.New("several instances found, pick one with --instance: " + strings.Join(names, ", "))
	}
}

// Shutdown kills the web server and stops the engine. Safe to call more than once.
func (a *application) Shutdown() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		a.stopped = true
		if a.orch != nil {
			a.logger.Info("Shutting down")
			a.orch.ShutdownHook(context.Background())
		}
		if err := metrics.WriteTextfile(a.opts.MetricsTextfile); err != nil {
			a.logger.Warn("Failed to write metrics", "path", a.opts.MetricsTextfile, "error", err)
		}
		if a.history != nil {
			if err := a.history.Close(); err != nil {
				a.logger.Warn("Failed to close session history", "error", err)
			}
		}
	})
}

// subscribe logs lifecycle events for the foreground run.
func subscribe(bus *events.Bus, logger *slog.Logger) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.StateChangedEvent) {
			logger.Debug("State changed", "state", e.State, "instance", e.Instance, "reason", e.Reason)
		}),
		bus.Subscribe(func(e events.EngineStateChangedEvent) {
			logger.Debug("Engine state changed", "engine", e.Engine, "state", e.State)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
