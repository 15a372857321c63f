// Package config gathers the pipeline's inputs from the environment and an
// optional config file, and wires a build service for the selected mode.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cochaviz/ebpfstage/internal/build"
)

// Environment variables read by the pipeline.
const (
	// ModeVar switches between stub and full builds. The enclosing build is
	// told to re-run whenever it changes.
	ModeVar        = "AYA_BUILD_INTEGRATION_BPF"
	EndianVar      = "CARGO_CFG_TARGET_ENDIAN"
	ArchVar        = "CARGO_CFG_TARGET_ARCH"
	OutDirVar      = "OUT_DIR"
	ManifestDirVar = "CARGO_MANIFEST_DIR"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Overlay returns a lookup that consults values before falling back to base.
func Overlay(values map[string]string, base LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		if value, ok := values[key]; ok {
			return value, true
		}
		if base == nil {
			return "", false
		}
		return base(key)
	}
}

// Environment holds the values the build environment supplies.
type Environment struct {
	Mode        build.Mode
	OutDir      string
	ManifestDir string
	Endian      string
	Arch        string
}

// ParseMode maps the mode switch to a build mode. An absent switch selects
// stub builds; a present one must parse as a boolean.
func ParseMode(value string, present bool) (build.Mode, error) {
	if !present {
		return build.ModeStub, nil
	}
	enabled, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return "", &build.BuildError{
			Kind:    build.ConfigurationError,
			Message: fmt.Sprintf("%s=%q is not a boolean", ModeVar, value),
			Err:     err,
		}
	}
	if enabled {
		return build.ModeFull, nil
	}
	return build.ModeStub, nil
}

// LoadEnvironment reads and validates the environment through lookup. A nil
// lookup reads the process environment.
func LoadEnvironment(lookup LookupFunc) (Environment, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	modeValue, present := lookup(ModeVar)
	mode, err := ParseMode(modeValue, present)
	if err != nil {
		return Environment{}, err
	}

	env := Environment{Mode: mode}
	env.OutDir, _ = lookup(OutDirVar)
	env.ManifestDir, _ = lookup(ManifestDirVar)
	env.Endian, _ = lookup(EndianVar)
	env.Arch, _ = lookup(ArchVar)

	required := []string{OutDirVar, EndianVar}
	if mode == build.ModeFull {
		required = append(required, ManifestDirVar, ArchVar)
	}
	var missing []string
	for _, key := range required {
		if value, ok := lookup(key); !ok || value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Environment{}, &build.BuildError{
			Kind:    build.ConfigurationError,
			Message: fmt.Sprintf("%s build requires %s", mode, strings.Join(missing, ", ")),
		}
	}
	return env, nil
}
