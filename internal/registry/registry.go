// Package registry finds instances on disk. Each instance is a folder under
// the instances root holding a RockWeb web root.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

// WebRootDir is the folder inside an instance that IIS Express serves.
const WebRootDir = "RockWeb"

// ErrNotFound is returned for an unknown instance or one with no web root.
var ErrNotFound = errors.New("instance not found")

// Instance describes one instance folder.
type Instance struct {
	Name         string
	RootPath     string
	WebRoot      string
	DatabaseName string
	DatabaseFile string
	HasDatabase  bool
	DatabaseSize int64
	ModTime      time.Time
}

// DataDir returns the App_Data folder of the web root.
func (i Instance) DataDir() string {
	return filepath.Join(i.WebRoot, "App_Data")
}

// FS is a registry backed by a filesystem.
type FS struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger
	group  singleflight.Group
}

// New creates a registry over root.
func New(fs afero.Fs, root string, logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.Default()
	}
	return &FS{fs: fs, root: root, logger: logger}
}

// Root returns the instances root folder.
func (r *FS) Root() string {
	return r.root
}

// List returns instance names in sorted order, normalizing legacy layouts on
// the way. Concurrent calls share one scan.
func (r *FS) List(ctx context.Context) ([]string, error) {
	v, err, _ := r.group.Do("list", func() (any, error) {
		return r.scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	names := v.([]string)
	return append([]string(nil), names...), nil
}

func (r *FS) scan(ctx context.Context) ([]string, error) {
	if err := r.fs.MkdirAll(r.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create instances root %s: %w", r.root, err)
	}

	entries, err := afero.ReadDir(r.fs, r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read instances root %s: %w", r.root, err)
	}

	var names []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		if err := r.Normalize(entry.Name()); err != nil {
			r.logger.Warn("Failed to normalize instance layout", "instance", entry.Name(), "error", err)
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Instances lists and looks up every instance.
func (r *FS) Instances(ctx context.Context) ([]Instance, error) {
	names, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(names))
	for _, name := range names {
		inst, err := r.Lookup(name)
		if err != nil {
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Normalize moves the contents of a legacy instance folder, which had the
// web root at its top level, into a RockWeb subfolder. Instances that already
// have a RockWeb folder are left alone.
func (r *FS) Normalize(name string) error {
	instancePath := filepath.Join(r.root, name)
	webRoot := filepath.Join(instancePath, WebRootDir)

	if exists, err := afero.DirExists(r.fs, webRoot); err != nil {
		return err
	} else if exists {
		return nil
	}

	entries, err := afero.ReadDir(r.fs, instancePath)
	if err != nil {
		return err
	}
	if err := r.fs.MkdirAll(webRoot, 0o755); err != nil {
		return err
	}

	// Directories first, then files.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].IsDir() && !entries[j].IsDir()
	})

	for _, entry := range entries {
		if entry.IsDir() && strings.EqualFold(entry.Name(), WebRootDir) {
			continue
		}
		src := filepath.Join(instancePath, entry.Name())
		dst := filepath.Join(webRoot, entry.Name())
		if err := r.fs.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to move %s: %w", entry.Name(), err)
		}
	}

	r.logger.Info("Converted legacy instance layout", "instance", name, "entries", len(entries))
	return nil
}

// Lookup returns the instance with the given name.
func (r *FS) Lookup(name string) (Instance, error) {
	if !validName(name) {
		return Instance{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	inst := Instance{
		Name:         name,
		RootPath:     filepath.Join(r.root, name),
		DatabaseName: name,
	}
	inst.WebRoot = filepath.Join(inst.RootPath, WebRootDir)
	inst.DatabaseFile = filepath.Join(inst.DataDir(), "Database.mdf")

	info, err := r.fs.Stat(inst.WebRoot)
	if err != nil || !info.IsDir() {
		return Instance{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	inst.ModTime = info.ModTime()

	if dbInfo, err := r.fs.Stat(inst.DatabaseFile); err == nil && !dbInfo.IsDir() {
		inst.HasDatabase = true
		inst.DatabaseSize = dbInfo.Size()
	} else if err != nil && !os.IsNotExist(err) {
		r.logger.Debug("Failed to stat database file", "path", inst.DatabaseFile, "error", err)
	}

	return inst, nil
}

// Delete removes an instance folder and everything in it.
func (r *FS) Delete(name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	path := filepath.Join(r.root, name)
	if exists, _ := afero.DirExists(r.fs, path); !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := r.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", name, err)
	}
	r.logger.Info("Instance deleted", "instance", name)
	return nil
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
