package localdb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultToolPath is the engine command line utility looked up on PATH.
const DefaultToolPath = "SqlLocalDB"

// EngineInfo describes an engine instance as reported by the tool.
type EngineInfo struct {
	Name     string
	Exists   bool
	Running  bool
	PipeName string
}

// Tool controls engine instances.
type Tool interface {
	Info(ctx context.Context, name string) (EngineInfo, error)
	Create(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
}

// CLITool drives the SqlLocalDB command line utility.
type CLITool struct {
	Path   string
	Logger *slog.Logger
}

// NewCLITool creates a CLITool. An empty path uses DefaultToolPath.
func NewCLITool(path string, logger *slog.Logger) *CLITool {
	if path == "" {
		path = DefaultToolPath
	}
	return &CLITool{Path: path, Logger: logger}
}

// Info returns the state of the named engine. A missing engine is reported
// as an ENGINE_NOT_FOUND error.
func (t *CLITool) Info(ctx context.Context, name string) (EngineInfo, error) {
	out, err := t.run(ctx, "info", name)
	if notFound(out) {
		return EngineInfo{Name: name}, newError(ErrCodeEngineNotFound, fmt.Sprintf("engine %s does not exist", name), nil)
	}
	if err != nil {
		return EngineInfo{Name: name}, err
	}
	info := parseInfo(out)
	info.Name = name
	info.Exists = true
	return info, nil
}

func (t *CLITool) Create(ctx context.Context, name string) error {
	_, err := t.run(ctx, "create", name)
	return err
}

func (t *CLITool) Start(ctx context.Context, name string) error {
	_, err := t.run(ctx, "start", name)
	return err
}

func (t *CLITool) Stop(ctx context.Context, name string) error {
	_, err := t.run(ctx, "stop", name)
	return err
}

func (t *CLITool) Delete(ctx context.Context, name string) error {
	_, err := t.run(ctx, "delete", name)
	return err
}

func (t *CLITool) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.Path, args...)
	out, err := cmd.CombinedOutput()
	if t.Logger != nil {
		t.Logger.Debug("Engine tool finished", "args", args, "output", strings.TrimSpace(string(out)), "error", err)
	}
	if err != nil {
		return out, fmt.Errorf("%s %s failed: %w: %s", t.Path, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// parseInfo reads the "Key: value" lines printed by `SqlLocalDB info <name>`.
func parseInfo(out []byte) EngineInfo {
	var info EngineInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			info.Name = value
		case "state":
			info.Running = strings.EqualFold(value, "running")
		case "instance pipe name":
			info.PipeName = value
		}
	}
	return info
}

func notFound(out []byte) bool {
	text := strings.ToLower(string(out))
	return strings.Contains(text, "doesn't exist") || strings.Contains(text, "does not exist")
}
