// Package opener opens files in the platform's default application.
package opener

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrUnsupported is returned when the platform has no usable opener
var ErrUnsupported = errors.New("opening files is not supported on this platform")

// lookPath is swapped in tests
var lookPath = exec.LookPath

// command returns the opener program and its leading arguments for goos
func command(goos string) (string, []string, bool) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly":
		return "xdg-open", nil, true
	case "darwin":
		return "open", nil, true
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}, true
	default:
		return "", nil, false
	}
}

// Open opens path with the default associated application and returns
// once the opener has been started. It never waits for the application.
func Open(ctx context.Context, path string) error {
	return open(ctx, runtime.GOOS, path)
}

func open(ctx context.Context, goos, path string) error {
	name, args, ok := command(goos)
	if !ok {
		return fmt.Errorf("%w (%s)", ErrUnsupported, goos)
	}

	bin, err := lookPath(name)
	if err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrUnsupported, name, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	// The viewer must outlive the run, so cancelling ctx does not kill it
	cmd := exec.CommandContext(context.WithoutCancel(ctx), bin, append(args, abs)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	// Reap the opener in the background so it does not linger as a zombie
	go func() { _ = cmd.Wait() }()
	return nil
}
