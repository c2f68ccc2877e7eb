package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Chunk is one line of combined process output.
type Chunk struct {
	Text string
	Time time.Time
}

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output.
type LogParser func(line string) (level, msg string)

const (
	defaultOutputBuffer = 256
	defaultKillTimeout  = 10 * time.Second
	defaultWaitDelay    = 2 * time.Second
	maxLineSize         = 1024 * 1024
)

// Supervisor owns one launch of an external process.
type Supervisor struct {
	id            string
	logger        *slog.Logger
	processLogger *slog.Logger // logger for process output (nil = use logger)
	logParser     LogParser    // parses process output for log level (nil = no parsing)
	killTimeout   time.Duration
	waitDelay     time.Duration

	mu        sync.Mutex
	cmd       *exec.Cmd
	state     State
	startedAt time.Time
	exitCode  int

	output chan Chunk
	exited chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogParser sets the logger and parser used for process output lines.
func WithLogParser(logger *slog.Logger, parser LogParser) Option {
	return func(s *Supervisor) {
		s.processLogger = logger
		s.logParser = parser
	}
}

// WithOutputBuffer sets the capacity of the output channel.
func WithOutputBuffer(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.output = make(chan Chunk, n)
		}
	}
}

// WithKillTimeout bounds how long Kill waits for the process to be reaped.
func WithKillTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.killTimeout = d
		}
	}
}

// NewSupervisor creates a supervisor. Nothing runs until Launch.
func NewSupervisor(id string, logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		id:          id,
		logger:      logger,
		killTimeout: defaultKillTimeout,
		waitDelay:   defaultWaitDelay,
		state:       StateIdle,
		output:      make(chan Chunk, defaultOutputBuffer),
		exited:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Launch starts the process and returns immediately.
// A supervisor can be launched only once.
func (s *Supervisor) Launch(path string, args ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("supervisor %s already launched", s.id)
	}

	cmd := exec.Command(path, args...)
	configureCommand(cmd)

	// Both streams share one writer so exec serializes writes and the reader
	// sees a single combined stream.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = s.waitDelay

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		s.logger.Error("Failed to start process", "error", err, "path", path)
		return fmt.Errorf("failed to start %s: %w", path, err)
	}

	s.cmd = cmd
	s.state = StateRunning
	s.startedAt = time.Now()
	s.logger.Info("Process started", "id", s.id, "pid", cmd.Process.Pid, "path", path, "args", args)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		s.streamOutput(pr)
	}()

	go func() {
		waitErr := cmd.Wait()
		_ = pw.Close()
		<-readerDone
		s.finish(cmd, waitErr)
	}()

	return nil
}

// Output returns the channel of output lines. It is closed once the process
// has exited and all output has been read.
func (s *Supervisor) Output() <-chan Chunk {
	return s.output
}

// Exited returns a channel that is closed exactly once after a launched
// process is gone and Output has been closed.
func (s *Supervisor) Exited() <-chan struct{} {
	return s.exited
}

// Kill forcibly terminates the process if it is alive and waits for Exited.
// Calling Kill on a supervisor that never launched or already stopped is a
// no-op.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	cmd := s.cmd
	s.mu.Unlock()

	s.logger.Info("Killing process", "id", s.id, "pid", cmd.Process.Pid)
	if err := killProcess(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Failed to kill process", "pid", cmd.Process.Pid, "error", err)
	}

	select {
	case <-s.exited:
		return nil
	case <-time.After(s.killTimeout):
		s.logger.Error("Process did not exit after kill", "pid", cmd.Process.Pid, "timeout", s.killTimeout)
		return fmt.Errorf("process %d did not exit within %s", cmd.Process.Pid, s.killTimeout)
	}
}

// PID returns the process id, or 0 if not launched.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// ExitCode returns the exit code once stopped. Killed processes report -1.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Info returns a snapshot of the supervised process.
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:        s.id,
		State:     s.state,
		StartedAt: s.startedAt,
		ExitCode:  s.exitCode,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		info.PID = s.cmd.Process.Pid
	}
	return info
}

// finish records the exit and fires Exited.
func (s *Supervisor) finish(cmd *exec.Cmd, waitErr error) {
	exitCode := exitCodeFromError(waitErr)
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	s.exitCode = exitCode
	s.state = StateStopped
	s.mu.Unlock()

	if waitErr != nil && !isExitError(waitErr) {
		s.logger.Warn("Process wait returned error", "id", s.id, "error", waitErr)
	}
	s.logger.Info("Process exited", "id", s.id, "exit_code", exitCode)

	close(s.exited)
}

// streamOutput reads combined output line by line until EOF and closes the
// output channel.
func (s *Supervisor) streamOutput(reader io.Reader) {
	defer close(s.output)

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	logger := s.processLogger
	if logger == nil {
		logger = s.logger
	}

	for scanner.Scan() {
		line := scanner.Text()
		s.output <- Chunk{Text: line, Time: time.Now()}

		level, msg := "info", line
		if s.logParser != nil {
			level, msg = s.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning", "warn":
			logger.Warn(msg)
		case "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Warn("Error reading output", "id", s.id, "error", err)
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, reader)
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// State returns the current process state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
