// Package toolchain implements the full build path: libbpf headers, C objects,
// BTF extraction and the cross build of the sibling package, run in that
// order against real external tools.
package toolchain

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/cochaviz/ebpfstage/internal/artifacts"
	"github.com/cochaviz/ebpfstage/internal/build"
)

// Default executables, looked up on PATH.
const (
	DefaultMake    = "make"
	DefaultClang   = "clang"
	DefaultObjcopy = "llvm-objcopy"
	DefaultCargo   = "cargo"
)

// Tools names the executables the driver invokes.
type Tools struct {
	Make    string `yaml:"make" json:"make"`
	Clang   string `yaml:"clang" json:"clang"`
	Objcopy string `yaml:"objcopy" json:"objcopy"`
	Cargo   string `yaml:"cargo" json:"cargo"`
}

// DefaultTools returns the tools found on PATH.
func DefaultTools() Tools {
	return Tools{
		Make:    DefaultMake,
		Clang:   DefaultClang,
		Objcopy: DefaultObjcopy,
		Cargo:   DefaultCargo,
	}
}

var _ build.BuildDriver = (*Driver)(nil)

// Driver runs the full pipeline.
type Driver struct {
	Tools       Tools
	Diagnostics build.Diagnostics
	Logger      *slog.Logger
	// ToolOutput receives the stdout and stderr of make and clang.
	ToolOutput io.Writer
}

func (d *Driver) logger() *slog.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Driver) diagnostics() build.Diagnostics {
	if d.Diagnostics != nil {
		return d.Diagnostics
	}
	return build.DiscardDiagnostics
}

// Build installs headers, compiles every object, extracts BTF and cross
// builds the package, in that order. The first failure aborts the run.
func (d *Driver) Build(ctx context.Context, plan build.Plan) (build.BuildOutput, error) {
	logger := d.logger()
	diagnostics := d.diagnostics()

	if err := diagnostics.RerunIfChanged(plan.LibbpfDir); err != nil {
		return build.BuildOutput{}, err
	}
	headers := &HeaderInstaller{
		Make:   d.Tools.Make,
		Logger: logger.With("stage", "headers"),
		Stdout: d.ToolOutput,
		Stderr: d.ToolOutput,
	}
	if err := headers.Install(ctx, plan.LibbpfDir, plan.HeadersDir); err != nil {
		return build.BuildOutput{}, err
	}

	compiler := &ObjectCompiler{
		Clang:      d.Tools.Clang,
		Objcopy:    d.Tools.Objcopy,
		IncludeDir: plan.HeadersDir,
		Triple:     plan.Triple(),
		ArchMacro:  plan.ArchMacro(),
		Logger:     logger.With("stage", "objects"),
		Stderr:     d.ToolOutput,
	}

	output := build.BuildOutput{}
	for _, spec := range plan.Objects {
		if err := diagnostics.RerunIfChanged(spec.Source); err != nil {
			return build.BuildOutput{}, err
		}
		if err := compiler.Compile(ctx, spec); err != nil {
			return build.BuildOutput{}, err
		}
		output.Objects = append(output.Objects, objectArtifact(spec, artifacts.ObjectArtifact))
	}
	for _, spec := range plan.BTF {
		if err := diagnostics.RerunIfChanged(spec.Source); err != nil {
			return build.BuildOutput{}, err
		}
		if err := compiler.ExtractBTF(ctx, spec); err != nil {
			return build.BuildOutput{}, err
		}
		output.Objects = append(output.Objects, objectArtifact(spec, artifacts.BTFArtifact))
	}

	// Binaries are not covered by the library dependency the enclosing build
	// tracks, so the package directory is watched explicitly.
	packageDir := plan.Package.Dir()
	if err := diagnostics.RerunIfChanged(packageDir); err != nil {
		return build.BuildOutput{}, err
	}
	builder := &CrossBuilder{
		Cargo:       d.Tools.Cargo,
		Diagnostics: diagnostics,
		Logger:      logger.With("stage", "cross-build"),
	}
	executables, err := builder.Build(ctx, packageDir, plan.Triple(), plan.CrossTargetDir)
	if err != nil {
		return build.BuildOutput{}, err
	}

	if missing := executables.Missing(plan.Binaries); len(missing) > 0 {
		return build.BuildOutput{}, &build.BuildError{
			Kind:    build.IncompleteError,
			Message: "cross build produced no executable for declared binaries: " + strings.Join(missing, ", "),
		}
	}
	output.Binaries = executables

	return output, nil
}

func objectArtifact(spec build.CObjectSpec, kind artifacts.ArtifactKind) artifacts.Artifact {
	return artifacts.Artifact{
		ID:          spec.Destination,
		Kind:        kind,
		URI:         artifacts.FileURI(spec.Destination),
		ContentType: "application/x-elf",
		Metadata:    map[string]any{"source": spec.Source},
	}
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
