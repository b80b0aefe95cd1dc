package preflight

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"cutline/internal/config"
	"cutline/internal/storage"
)

// probePrefix is the key prefix used by storage probes.
const probePrefix = ".cutline-preflight"

// Requirement defines an external binary cutline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Dependency reports the availability of a binary.
type Dependency struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries the configured render pipeline invokes.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	reqs := []Requirement{{
		Name:        "Renderer",
		Command:     cfg.Render.Binary,
		Description: "Required for proxy and export renders",
	}}
	if cfg.Render.DraptoFinish {
		reqs = append(reqs,
			Requirement{Name: "FFmpeg", Command: "ffmpeg", Description: "Required for export finishing"},
			Requirement{Name: "FFprobe", Command: "ffprobe", Description: "Required for export finishing"},
		)
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Dependency {
	results := make([]Dependency, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		dep := Dependency{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			dep.Detail = "command not configured"
		default:
			resolved, err := exec.LookPath(cmd)
			if err != nil {
				dep.Detail = fmt.Sprintf("binary %q not found", cmd)
				break
			}
			dep.Available = true
			dep.Detail = resolved
		}
		results = append(results, dep)
	}
	return results
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, dir string) Result {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", dir)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", dir, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", dir)}
	}
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", dir, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", dir)}
}

// CheckBackend writes, stats and deletes a probe object.
func CheckBackend(ctx context.Context, name string, backend storage.Backend) Result {
	if backend == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	key := path.Join(probePrefix, uuid.NewString())
	payload := []byte("cutline preflight")
	if err := backend.Put(checkCtx, key, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (write failed: %v)", backend, err)}
	}
	defer func() { _ = backend.Delete(context.WithoutCancel(checkCtx), key) }()

	size, err := backend.Stat(checkCtx, key)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (stat failed: %v)", backend, err)}
	}
	if size != int64(len(payload)) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (stat reported %d bytes, wrote %d)", backend, size, len(payload))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", backend)}
}
