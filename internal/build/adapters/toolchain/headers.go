package toolchain

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/cochaviz/ebpfstage/internal/process"
)

// HeaderInstaller materializes the libbpf headers every C compilation
// includes. A missing header produces a broken object rather than a compile
// error, so any failure here aborts the pipeline.
type HeaderInstaller struct {
	Make   string
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// Command returns the make invocation that installs headers into headersDir.
func (h *HeaderInstaller) Command(libbpfDir, headersDir string) process.Command {
	return process.Command{
		Path: orDefault(h.Make, DefaultMake),
		Args: []string{
			"-C", filepath.Join(libbpfDir, "src"),
			"INCLUDEDIR=" + headersDir,
			"install_headers",
		},
		Stdout: h.Stdout,
		Stderr: h.Stderr,
	}
}

// Install runs make against libbpfDir.
func (h *HeaderInstaller) Install(ctx context.Context, libbpfDir, headersDir string) error {
	cmd := h.Command(libbpfDir, headersDir)
	loggerOrDefault(h.Logger).Info("installing libbpf headers", "command", cmd.String())
	return process.Run(ctx, cmd)
}
