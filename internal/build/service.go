package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cochaviz/ebpfstage/internal/artifacts"
)

// BuildService runs the artifact pipeline once. The driver is chosen by the
// caller when the service is wired, so the mode never has to be threaded
// through the individual stages.
type BuildService struct {
	Logger        *slog.Logger
	Settings      Settings
	Packages      PackageResolver
	BuildDriver   BuildDriver
	ArtifactStore artifacts.ArtifactStore
	Diagnostics   Diagnostics
}

// Plan resolves the sibling package and derives the plan for this run.
func (s *BuildService) Plan(ctx context.Context) (Plan, error) {
	if s.Packages == nil {
		return Plan{}, errors.New("package resolver is not configured")
	}

	name := s.Settings.PackageName
	if name == "" {
		name = DefaultPackageName
	}
	pkg, err := s.Packages.ResolvePackage(ctx, name)
	if err != nil {
		return Plan{}, fmt.Errorf("resolve package %s: %w", name, err)
	}
	return NewPlan(s.Settings, pkg)
}

// Run executes the pipeline and verifies that every destination exists with
// the size its mode promises.
func (s *BuildService) Run(ctx context.Context, request *BuildRequest) (BuildResult, error) {
	if s.BuildDriver == nil {
		return BuildResult{}, errors.New("build driver is not configured")
	}
	if request == nil {
		request = &BuildRequest{}
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now()
	}

	logger := s.logger().With("build_id", request.ID, "mode", s.Settings.Mode)

	for _, name := range s.Settings.WatchEnv {
		if err := s.diagnostics().RerunIfEnvChanged(name); err != nil {
			return BuildResult{}, err
		}
	}

	plan, err := s.Plan(ctx)
	if err != nil {
		return BuildResult{}, err
	}

	logger = logger.With("target", plan.Triple(), "package", plan.Package.Name)
	logger.Info("starting artifact build",
		"out_dir", plan.OutDir,
		"objects", len(plan.Objects),
		"btf_objects", len(plan.BTF),
		"binaries", strings.Join(plan.Binaries, ","),
	)

	output, err := s.BuildDriver.Build(ctx, plan)
	if err != nil {
		return BuildResult{}, err
	}
	logger.Info("build driver completed", "objects", len(output.Objects), "binaries", output.Binaries.Len())

	result := BuildResult{Plan: plan, Artifacts: output.Objects}

	installed, err := s.install(output.Binaries)
	if err != nil {
		return BuildResult{}, err
	}
	for _, artifact := range installed {
		attrs := []any{"name", artifact.ID, "uri", artifact.URI}
		if artifact.Checksum != nil {
			attrs = append(attrs, "blake3", *artifact.Checksum)
		}
		logger.Info("installed binary", attrs...)
	}
	result.Artifacts = append(result.Artifacts, installed...)

	if err := artifacts.Verify(plan.Destinations(), plan.Mode == ModeStub); err != nil {
		return BuildResult{}, &BuildError{Kind: IncompleteError, Message: "output directory is incomplete", Err: err}
	}

	logger.Info("artifact build completed", "artifacts", len(result.Artifacts))
	return result, nil
}

func (s *BuildService) install(binaries *ArtifactSet) ([]artifacts.Artifact, error) {
	if binaries.Len() == 0 {
		return nil, nil
	}
	if s.ArtifactStore == nil {
		return nil, errors.New("artifact store is not configured")
	}

	installed := make([]artifacts.Artifact, 0, binaries.Len())
	for _, binary := range binaries.Entries() {
		artifact, err := s.ArtifactStore.StoreArtifact(binary.Path, binary.Name, artifacts.BinaryArtifact)
		if err != nil {
			return nil, &BuildError{Kind: IOError, Message: "install " + binary.Name, Err: err}
		}
		installed = append(installed, artifact)
	}
	return installed, nil
}

func (s *BuildService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *BuildService) diagnostics() Diagnostics {
	if s.Diagnostics != nil {
		return s.Diagnostics
	}
	return DiscardDiagnostics
}

// DiscardDiagnostics drops every message.
var DiscardDiagnostics Diagnostics = discardDiagnostics{}

type discardDiagnostics struct{}

func (discardDiagnostics) Warning(string) error           { return nil }
func (discardDiagnostics) RerunIfChanged(string) error    { return nil }
func (discardDiagnostics) RerunIfEnvChanged(string) error { return nil }
