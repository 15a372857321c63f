package toolchain

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cochaviz/ebpfstage/internal/build"
	"github.com/cochaviz/ebpfstage/internal/cargo"
	"github.com/cochaviz/ebpfstage/internal/process"
)

// ToolchainOverrides are removed from the cross build's environment so the
// sibling package is built with its own pinned toolchain.
var ToolchainOverrides = []string{"RUSTUP_TOOLCHAIN", "RUSTC"}

// CrossBuilder builds every binary of a package for a BPF triple and
// collects the executables from the structured event stream.
type CrossBuilder struct {
	Cargo       string
	Unset       []string
	Diagnostics build.Diagnostics
	Logger      *slog.Logger
}

// Command returns the cargo invocation for the package in dir.
func (b *CrossBuilder) Command(dir, triple, targetDir string) process.Command {
	unset := b.Unset
	if unset == nil {
		unset = ToolchainOverrides
	}
	return process.Command{
		Path: orDefault(b.Cargo, DefaultCargo),
		Args: []string{
			"build",
			"-Z", "build-std=core",
			"--bins",
			"--message-format=json",
			"--release",
			"--target", triple,
			// A private target dir keeps this build from contending for the
			// lock held by a concurrent build of the same package.
			"--target-dir", targetDir,
		},
		Dir:   dir,
		Unset: unset,
	}
}

// Build runs the cross build. Stderr is forwarded line by line on its own
// goroutine while stdout is parsed here; draining them one after the other
// would let the child block on a full pipe while we wait on the other one.
func (b *CrossBuilder) Build(ctx context.Context, dir, triple, targetDir string) (*build.ArtifactSet, error) {
	diagnostics := b.diagnostics()
	logger := loggerOrDefault(b.Logger)

	cmd := b.Command(dir, triple, targetDir)
	logger.Info("starting cross build", "command", cmd.String())

	running, err := process.Start(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var group errgroup.Group
	group.Go(func() error {
		return forwardLines(running.Stderr, diagnostics)
	})

	executables := build.NewArtifactSet()
	parseErr := cargo.ParseStream(running.Stdout, func(event cargo.Event) error {
		switch event.Kind {
		case cargo.EventCompilerArtifact:
			if event.Executable != "" {
				logger.Debug("executable built", "target", event.Target, "path", event.Executable)
				executables.Add(event.Target, event.Executable)
			}
		case cargo.EventCompilerMessage, cargo.EventTextLine:
			return diagnostics.Warning(event.Text)
		}
		return nil
	})
	if parseErr != nil {
		// Keep reading so the child can run to completion.
		_, _ = io.Copy(io.Discard, running.Stdout)
	}

	drainErr := group.Wait()
	if err := running.Wait(); err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, fmt.Errorf("read build events from %s: %w", running, parseErr)
	}
	if drainErr != nil {
		return nil, fmt.Errorf("forward diagnostics from %s: %w", running, drainErr)
	}

	logger.Info("cross build completed", "executables", executables.Len())
	return executables, nil
}

func (b *CrossBuilder) diagnostics() build.Diagnostics {
	if b.Diagnostics != nil {
		return b.Diagnostics
	}
	return build.DiscardDiagnostics
}

// forwardLines sends every line of r to diagnostics. After the first
// forwarding error the rest of r is still consumed, and the error returned.
func forwardLines(r io.Reader, diagnostics build.Diagnostics) error {
	reader := bufio.NewReader(r)
	var forwardErr error
	for {
		line, err := reader.ReadString('\n')
		if line != "" && forwardErr == nil {
			forwardErr = diagnostics.Warning(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return forwardErr
			}
			return errors.Join(forwardErr, fmt.Errorf("read diagnostics: %w", err))
		}
	}
}
