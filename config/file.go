package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/cochaviz/ebpfstage/internal/build"
	"github.com/cochaviz/ebpfstage/internal/build/adapters/toolchain"
)

// Metadata sources for the sibling package's binary targets.
const (
	// MetadataAuto reads the manifest in stub mode and asks cargo otherwise.
	MetadataAuto     = "auto"
	MetadataCargo    = "cargo"
	MetadataManifest = "manifest"
)

// DefaultLibbpfDir is the libbpf checkout, relative to the manifest directory.
const DefaultLibbpfDir = "../../libbpf"

// DefaultManifestPath is the sibling package manifest, relative to the
// manifest directory.
const DefaultManifestPath = "../integration-ebpf/Cargo.toml"

// MetadataConfig selects how binary targets are discovered.
type MetadataConfig struct {
	Source   string `yaml:"source" json:"source"`
	Manifest string `yaml:"manifest" json:"manifest"`
}

// File is the optional pipeline config file. Empty fields keep their
// defaults.
type File struct {
	Package   string              `yaml:"package" json:"package"`
	LibbpfDir string              `yaml:"libbpf_dir" json:"libbpf_dir"`
	Objects   []build.CObjectSpec `yaml:"objects" json:"objects"`
	BTF       []build.CObjectSpec `yaml:"btf" json:"btf"`
	Tools     toolchain.Tools     `yaml:"tools" json:"tools"`
	Metadata  MetadataConfig      `yaml:"metadata" json:"metadata"`
}

// DefaultFile returns the configuration used when no file is given.
func DefaultFile() File {
	return File{
		Package:   build.DefaultPackageName,
		LibbpfDir: DefaultLibbpfDir,
		Objects:   build.DefaultObjects(),
		BTF:       build.DefaultBTF(),
		Tools:     toolchain.DefaultTools(),
		Metadata: MetadataConfig{
			Source:   MetadataAuto,
			Manifest: DefaultManifestPath,
		},
	}
}

// LoadFile reads a YAML or JSON config file, chosen by extension. JSON files
// may carry comments and trailing commas. An empty path returns the defaults.
func LoadFile(path string) (File, error) {
	if path == "" {
		return DefaultFile(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return File{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&file); err != nil {
			return File{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return File{}, fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml, .json or .jsonc)", path, filepath.Ext(path))
	}

	return file.withDefaults()
}

func (f File) withDefaults() (File, error) {
	defaults := DefaultFile()
	if f.Package == "" {
		f.Package = defaults.Package
	}
	if f.LibbpfDir == "" {
		f.LibbpfDir = defaults.LibbpfDir
	}
	if f.Objects == nil {
		f.Objects = defaults.Objects
	}
	if f.BTF == nil {
		f.BTF = defaults.BTF
	}
	if f.Tools.Make == "" {
		f.Tools.Make = defaults.Tools.Make
	}
	if f.Tools.Clang == "" {
		f.Tools.Clang = defaults.Tools.Clang
	}
	if f.Tools.Objcopy == "" {
		f.Tools.Objcopy = defaults.Tools.Objcopy
	}
	if f.Tools.Cargo == "" {
		f.Tools.Cargo = defaults.Tools.Cargo
	}
	if f.Metadata.Source == "" {
		f.Metadata.Source = defaults.Metadata.Source
	}
	if f.Metadata.Manifest == "" {
		f.Metadata.Manifest = defaults.Metadata.Manifest
	}

	switch f.Metadata.Source {
	case MetadataAuto, MetadataCargo, MetadataManifest:
	default:
		return File{}, &build.BuildError{
			Kind:    build.ConfigurationError,
			Message: fmt.Sprintf("unknown metadata source %q", f.Metadata.Source),
		}
	}
	return f, nil
}
