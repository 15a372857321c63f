package cargo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cochaviz/ebpfstage/internal/process"
)

// Target is a build target of a package.
type Target struct {
	Name    string   `json:"name"`
	Kind    []string `json:"kind"`
	SrcPath string   `json:"src_path"`
}

// IsBinary reports whether the target is a plain executable. Only a kind of
// exactly ["bin"] counts; examples, tests and libraries do not.
func (t Target) IsBinary() bool {
	return len(t.Kind) == 1 && t.Kind[0] == "bin"
}

// Package is the subset of package metadata the pipeline consumes.
type Package struct {
	Name         string   `json:"name"`
	ManifestPath string   `json:"manifest_path"`
	Targets      []Target `json:"targets"`
}

// Dir returns the directory containing the package manifest.
func (p Package) Dir() string {
	return filepath.Dir(p.ManifestPath)
}

// BinaryTargets returns the names of every binary target in declaration order.
func (p Package) BinaryTargets() []string {
	var names []string
	for _, target := range p.Targets {
		if target.IsBinary() {
			names = append(names, target.Name)
		}
	}
	return names
}

// Metadata is the document printed by `cargo metadata`.
type Metadata struct {
	Packages []Package `json:"packages"`
}

// Package returns the package with the given name.
func (m Metadata) Package(name string) (Package, error) {
	for _, pkg := range m.Packages {
		if pkg.Name == name {
			return pkg, nil
		}
	}
	return Package{}, fmt.Errorf("package %q not found in metadata", name)
}

// ParseMetadata decodes `cargo metadata --format-version 1` output.
func ParseMetadata(data []byte) (Metadata, error) {
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("parse cargo metadata: %w", err)
	}
	return metadata, nil
}

// CommandResolver queries package metadata by running `cargo metadata`.
type CommandResolver struct {
	Cargo string
	Dir   string
}

// ResolvePackage runs the metadata query and returns the named package.
func (r *CommandResolver) ResolvePackage(ctx context.Context, name string) (Package, error) {
	cargo := r.Cargo
	if cargo == "" {
		cargo = "cargo"
	}
	out, err := process.Output(ctx, process.Command{
		Path: cargo,
		Args: []string{"metadata", "--no-deps", "--format-version", "1"},
		Dir:  r.Dir,
	})
	if err != nil {
		return Package{}, err
	}
	metadata, err := ParseMetadata(out)
	if err != nil {
		return Package{}, err
	}
	return metadata.Package(name)
}

type manifestFile struct {
	Package struct {
		Name     string `toml:"name"`
		AutoBins *bool  `toml:"autobins"`
	} `toml:"package"`
	Lib *struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"lib"`
	Bins []struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"bin"`
}

// ManifestResolver reads a Cargo.toml directly and applies cargo's target
// auto-discovery rules. It needs no toolchain, which keeps stub builds
// working on hosts without cargo.
type ManifestResolver struct {
	ManifestPath string
}

// ResolvePackage reads the manifest and returns its package description.
func (r *ManifestResolver) ResolvePackage(_ context.Context, name string) (Package, error) {
	pkg, err := ReadManifest(r.ManifestPath)
	if err != nil {
		return Package{}, err
	}
	if pkg.Name != name {
		return Package{}, fmt.Errorf("manifest %s declares package %q, want %q", r.ManifestPath, pkg.Name, name)
	}
	return pkg, nil
}

// ReadManifest parses the manifest at path into a Package.
func ReadManifest(path string) (Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Package{}, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var manifest manifestFile
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return Package{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if manifest.Package.Name == "" {
		return Package{}, fmt.Errorf("%s has no [package] name", path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Package{}, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	dir := filepath.Dir(absPath)

	pkg := Package{Name: manifest.Package.Name, ManifestPath: absPath}

	libPath := filepath.Join(dir, "src", "lib.rs")
	if manifest.Lib != nil && manifest.Lib.Path != "" {
		libPath = filepath.Join(dir, manifest.Lib.Path)
	}
	if manifest.Lib != nil || fileExists(libPath) {
		libName := strings.ReplaceAll(pkg.Name, "-", "_")
		if manifest.Lib != nil && manifest.Lib.Name != "" {
			libName = manifest.Lib.Name
		}
		pkg.Targets = append(pkg.Targets, Target{Name: libName, Kind: []string{"lib"}, SrcPath: libPath})
	}

	declared := make(map[string]bool)
	for _, bin := range manifest.Bins {
		binPath := bin.Path
		if binPath == "" {
			binPath = filepath.Join("src", "bin", bin.Name+".rs")
		}
		declared[bin.Name] = true
		pkg.Targets = append(pkg.Targets, Target{
			Name:    bin.Name,
			Kind:    []string{"bin"},
			SrcPath: filepath.Join(dir, binPath),
		})
	}

	if manifest.Package.AutoBins == nil || *manifest.Package.AutoBins {
		for _, target := range discoverBinaries(dir, pkg.Name) {
			if !declared[target.Name] {
				pkg.Targets = append(pkg.Targets, target)
			}
		}
	}

	return pkg, nil
}

func discoverBinaries(dir, packageName string) []Target {
	var targets []Target

	if main := filepath.Join(dir, "src", "main.rs"); fileExists(main) {
		targets = append(targets, Target{Name: packageName, Kind: []string{"bin"}, SrcPath: main})
	}

	binDir := filepath.Join(dir, "src", "bin")
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return targets
	}

	var found []Target
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			main := filepath.Join(binDir, name, "main.rs")
			if fileExists(main) {
				found = append(found, Target{Name: name, Kind: []string{"bin"}, SrcPath: main})
			}
		case strings.HasSuffix(name, ".rs"):
			found = append(found, Target{
				Name:    strings.TrimSuffix(name, ".rs"),
				Kind:    []string{"bin"},
				SrcPath: filepath.Join(binDir, name),
			})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })

	return append(targets, found...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
