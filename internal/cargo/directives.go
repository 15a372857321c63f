package cargo

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Directives writes build-script instructions (cargo:KEY=VALUE lines) for the
// enclosing build system. It is safe for concurrent use.
type Directives struct {
	mu sync.Mutex
	w  io.Writer
}

// NewDirectives returns a Directives writing to w, usually os.Stdout.
func NewDirectives(w io.Writer) *Directives {
	return &Directives{w: w}
}

// Warning forwards text as one warning per line. A directive value cannot
// span lines, so multi-line diagnostics are split rather than truncated.
func (d *Directives) Warning(text string) error {
	text = strings.TrimRight(text, "\r\n")
	lines := strings.Split(text, "\n")

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, line := range lines {
		if err := d.emitLocked("warning", strings.TrimRight(line, "\r")); err != nil {
			return err
		}
	}
	return nil
}

// RerunIfChanged asks the build system to re-run when path changes.
func (d *Directives) RerunIfChanged(path string) error {
	return d.emit("rerun-if-changed", path)
}

// RerunIfEnvChanged asks the build system to re-run when the variable changes.
func (d *Directives) RerunIfEnvChanged(name string) error {
	return d.emit("rerun-if-env-changed", name)
}

func (d *Directives) emit(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emitLocked(key, value)
}

func (d *Directives) emitLocked(key, value string) error {
	if d.w == nil {
		return nil
	}
	if _, err := fmt.Fprintf(d.w, "cargo:%s=%s\n", key, value); err != nil {
		return fmt.Errorf("write cargo:%s directive: %w", key, err)
	}
	return nil
}
