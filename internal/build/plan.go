package build

import (
	"path/filepath"
	"strings"

	"github.com/cochaviz/ebpfstage/arch"
	"github.com/cochaviz/ebpfstage/internal/cargo"
)

const (
	// DefaultPackageName is the sibling package whose binaries are staged.
	DefaultPackageName = "integration-ebpf"
	// HeadersDirName is the private header staging directory under OutDir.
	HeadersDirName = "libbpf_headers"
	// SourceDirName holds the C sources, relative to the manifest directory.
	SourceDirName = "bpf"

	crossTargetSuffix = "-target"
)

// Settings are the inputs a plan is derived from.
type Settings struct {
	Mode        Mode
	OutDir      string
	ManifestDir string
	Endian      string
	Arch        string
	// LibbpfDir is resolved against ManifestDir when relative.
	LibbpfDir   string
	PackageName string
	Objects     []CObjectSpec
	BTF         []CObjectSpec
	// WatchEnv lists variables the build system should re-run on.
	WatchEnv []string
}

// Plan is the fully resolved description of one pipeline run. Every path in
// a plan is absolute once OutDir and ManifestDir are.
type Plan struct {
	Mode   Mode
	Target arch.Target
	// Arch is the architecture as reported by the build environment.
	Arch string

	OutDir         string
	SourceDir      string
	LibbpfDir      string
	HeadersDir     string
	CrossTargetDir string

	Objects  []CObjectSpec
	BTF      []CObjectSpec
	Package  cargo.Package
	Binaries []string
}

// NewPlan validates settings against the resolved package and computes every
// source and destination path.
func NewPlan(settings Settings, pkg cargo.Package) (Plan, error) {
	if _, err := ParseMode(string(settings.Mode)); err != nil {
		return Plan{}, &BuildError{Kind: ConfigurationError, Message: "invalid mode", Err: err}
	}
	if settings.OutDir == "" {
		return Plan{}, configError("output directory is required")
	}
	target, err := arch.ResolveTarget(settings.Endian)
	if err != nil {
		return Plan{}, &BuildError{Kind: ConfigurationError, Message: "resolve target", Err: err}
	}
	if settings.Mode == ModeFull {
		if settings.ManifestDir == "" {
			return Plan{}, configError("manifest directory is required for full builds")
		}
		if settings.Arch == "" {
			return Plan{}, configError("target architecture is required for full builds")
		}
	}

	plan := Plan{
		Mode:           settings.Mode,
		Target:         target,
		Arch:           settings.Arch,
		OutDir:         settings.OutDir,
		HeadersDir:     filepath.Join(settings.OutDir, HeadersDirName),
		CrossTargetDir: filepath.Join(settings.OutDir, pkg.Name+crossTargetSuffix),
		Package:        pkg,
		Binaries:       pkg.BinaryTargets(),
	}
	if settings.ManifestDir != "" {
		plan.SourceDir = filepath.Join(settings.ManifestDir, SourceDirName)
		plan.LibbpfDir = settings.LibbpfDir
		if plan.LibbpfDir != "" && !filepath.IsAbs(plan.LibbpfDir) {
			plan.LibbpfDir = filepath.Join(settings.ManifestDir, plan.LibbpfDir)
		}
	}
	if settings.Mode == ModeFull && plan.LibbpfDir == "" {
		return Plan{}, configError("libbpf directory is required for full builds")
	}

	seen := make(map[string]string)
	claim := func(name, owner string) error {
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return configError("invalid destination name %q for %s", name, owner)
		}
		if previous, ok := seen[name]; ok {
			return configError("destination %q is claimed by both %s and %s", name, previous, owner)
		}
		seen[name] = owner
		return nil
	}

	resolve := func(specs []CObjectSpec) ([]CObjectSpec, error) {
		resolved := make([]CObjectSpec, 0, len(specs))
		for _, spec := range specs {
			if spec.Source == "" {
				return nil, configError("object %q has no source", spec.Destination)
			}
			if err := claim(spec.Destination, spec.Source); err != nil {
				return nil, err
			}
			source := spec.Source
			if plan.SourceDir != "" && !filepath.IsAbs(source) {
				source = filepath.Join(plan.SourceDir, source)
			}
			resolved = append(resolved, CObjectSpec{
				Source:      source,
				Destination: filepath.Join(settings.OutDir, spec.Destination),
			})
		}
		return resolved, nil
	}

	if plan.Objects, err = resolve(settings.Objects); err != nil {
		return Plan{}, err
	}
	if plan.BTF, err = resolve(settings.BTF); err != nil {
		return Plan{}, err
	}
	for _, name := range plan.Binaries {
		if err := claim(name, "binary target of "+pkg.Name); err != nil {
			return Plan{}, err
		}
	}
	if err := claim(HeadersDirName, "header staging"); err != nil {
		return Plan{}, err
	}
	if err := claim(filepath.Base(plan.CrossTargetDir), "cross build target directory"); err != nil {
		return Plan{}, err
	}

	return plan, nil
}

// Triple returns the cross-compilation triple.
func (p Plan) Triple() string {
	return p.Target.Triple()
}

// ArchMacro returns the architecture define for the C compiler.
func (p Plan) ArchMacro() string {
	return arch.ArchMacro(p.Arch)
}

// BinaryDestination returns where the binary target name is installed.
func (p Plan) BinaryDestination(name string) string {
	return filepath.Join(p.OutDir, name)
}

// Destinations returns every path the pipeline populates: objects, BTF
// objects, then one per declared binary target.
func (p Plan) Destinations() []string {
	paths := make([]string, 0, len(p.Objects)+len(p.BTF)+len(p.Binaries))
	for _, spec := range p.Objects {
		paths = append(paths, spec.Destination)
	}
	for _, spec := range p.BTF {
		paths = append(paths, spec.Destination)
	}
	for _, name := range p.Binaries {
		paths = append(paths, p.BinaryDestination(name))
	}
	return paths
}
