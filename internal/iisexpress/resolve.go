package iisexpress

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
)

// ErrExecutableNotFound is returned when no web server executable exists at
// the resolved location.
var ErrExecutableNotFound = errors.New("IIS Express executable not found")

// Resolver locates iisexpress.exe.
type Resolver struct {
	// Override replaces the computed location when set.
	Override string
	// Getenv reads environment variables. Defaults to os.Getenv.
	Getenv func(string) string
	// Is64Bit selects the 32-bit program files folder, where IIS Express
	// installs on 64-bit Windows.
	Is64Bit bool
	Fs      afero.Fs
}

// NewResolver creates a Resolver for the current OS and architecture.
func NewResolver(override string, fs afero.Fs) *Resolver {
	return &Resolver{
		Override: override,
		Getenv:   os.Getenv,
		Is64Bit:  is64Bit(runtime.GOARCH),
		Fs:       fs,
	}
}

func is64Bit(arch string) bool {
	switch arch {
	case "amd64", "arm64", "loong64", "mips64", "mips64le", "ppc64", "ppc64le", "riscv64", "s390x":
		return true
	}
	return false
}

// Resolve returns the executable path, or ErrExecutableNotFound.
func (r *Resolver) Resolve() (string, error) {
	path := r.Override
	if path == "" {
		path = r.defaultPath()
	}
	if path == "" {
		return "", fmt.Errorf("%w: program files folder is not set", ErrExecutableNotFound)
	}

	info, err := r.Fs.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, path)
	}
	return path, nil
}

func (r *Resolver) defaultPath() string {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	variable := "ProgramFiles"
	if r.Is64Bit {
		variable = "ProgramFiles(x86)"
	}
	base := getenv(variable)
	if base == "" {
		return ""
	}
	return filepath.Join(base, "IIS Express", "iisexpress.exe")
}

// Args returns the launch arguments for serving webRoot on port.
func Args(webRoot, port string) []string {
	return []string{
		fmt.Sprintf("/path:%s", webRoot),
		fmt.Sprintf("/port:%s", port),
	}
}

// Endpoint returns the local URL an instance is served on.
func Endpoint(port string) string {
	return fmt.Sprintf("http://localhost:%s/", port)
}
