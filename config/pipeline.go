package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cochaviz/ebpfstage/internal/artifacts"
	"github.com/cochaviz/ebpfstage/internal/build"
	"github.com/cochaviz/ebpfstage/internal/build/adapters/stub"
	"github.com/cochaviz/ebpfstage/internal/build/adapters/toolchain"
	"github.com/cochaviz/ebpfstage/internal/cargo"
	"github.com/cochaviz/ebpfstage/internal/logging"
)

// Pipeline holds everything needed to wire a build service.
type Pipeline struct {
	Environment Environment
	File        File
	Logger      *slog.Logger
	// Directives receives cargo: directives; normally the process stdout.
	Directives io.Writer
	// ToolOutput receives the output of make and the C compiler.
	ToolOutput io.Writer
}

// Settings derives the build settings from the environment and the file.
func (p Pipeline) Settings() build.Settings {
	return build.Settings{
		Mode:        p.Environment.Mode,
		OutDir:      p.Environment.OutDir,
		ManifestDir: p.Environment.ManifestDir,
		Endian:      p.Environment.Endian,
		Arch:        p.Environment.Arch,
		LibbpfDir:   p.File.LibbpfDir,
		PackageName: p.File.Package,
		Objects:     p.File.Objects,
		BTF:         p.File.BTF,
		WatchEnv:    []string{ModeVar},
	}
}

// Resolver returns the package resolver chosen by the metadata source.
func (p Pipeline) Resolver() build.PackageResolver {
	source := p.File.Metadata.Source
	if source == MetadataAuto || source == "" {
		source = MetadataCargo
		if p.Environment.Mode == build.ModeStub {
			source = MetadataManifest
		}
	}

	if source == MetadataManifest {
		manifest := p.File.Metadata.Manifest
		if manifest == "" {
			manifest = DefaultManifestPath
		}
		if !filepath.IsAbs(manifest) {
			manifest = filepath.Join(p.Environment.ManifestDir, manifest)
		}
		return &cargo.ManifestResolver{ManifestPath: manifest}
	}
	return &cargo.CommandResolver{Cargo: p.File.Tools.Cargo, Dir: p.Environment.ManifestDir}
}

// NewBuildService wires a service for the selected mode. The stub driver
// never touches a compiler; the toolchain driver runs the full pipeline.
func (p Pipeline) NewBuildService() *build.BuildService {
	logger := logging.Ensure(p.Logger).With("component", "pipeline")

	directivesOut := p.Directives
	if directivesOut == nil {
		directivesOut = os.Stdout
	}
	diagnostics := cargo.NewDirectives(directivesOut)

	toolOutput := p.ToolOutput
	if toolOutput == nil {
		toolOutput = os.Stderr
	}

	var driver build.BuildDriver
	switch p.Environment.Mode {
	case build.ModeFull:
		driver = &toolchain.Driver{
			Tools:       p.File.Tools,
			Diagnostics: diagnostics,
			Logger:      logger.With("driver", "toolchain"),
			ToolOutput:  toolOutput,
		}
	default:
		driver = &stub.Driver{Logger: logger.With("driver", "stub")}
	}

	return &build.BuildService{
		Logger:        logger.With("service", "build"),
		Settings:      p.Settings(),
		Packages:      p.Resolver(),
		BuildDriver:   driver,
		ArtifactStore: &artifacts.OutputDirStore{BaseDir: p.Environment.OutDir},
		Diagnostics:   diagnostics,
	}
}

// Build runs the pipeline once.
func (p Pipeline) Build(ctx context.Context) (build.BuildResult, error) {
	return p.NewBuildService().Run(ctx, &build.BuildRequest{})
}

// Plan resolves the plan without building anything.
func (p Pipeline) Plan(ctx context.Context) (build.Plan, error) {
	return p.NewBuildService().Plan(ctx)
}
