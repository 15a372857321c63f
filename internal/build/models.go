package build

import (
	"fmt"
	"slices"
	"time"

	"github.com/cochaviz/ebpfstage/internal/artifacts"
)

// Mode selects between placeholder and real artifact builds.
type Mode string

// Supported build modes.
const (
	// ModeStub writes zero-length placeholders so metadata-only tooling
	// (type checking, linting) never waits on a compiler.
	ModeStub Mode = "stub"
	// ModeFull compiles every artifact for real.
	ModeFull Mode = "full"
)

// ParseMode accepts the mode names used on the command line.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeStub, ModeFull:
		return Mode(value), nil
	default:
		return "", fmt.Errorf("unknown build mode %q (want %s or %s)", value, ModeStub, ModeFull)
	}
}

// CObjectSpec pairs a C source file with the object it produces.
type CObjectSpec struct {
	Source      string `yaml:"source" json:"source"`
	Destination string `yaml:"destination" json:"destination"`
}

var defaultObjects = []CObjectSpec{
	{"ext.bpf.c", "ext.bpf.o"},
	{"main.bpf.c", "main.bpf.o"},
	{"multimap-btf.bpf.c", "multimap-btf.bpf.o"},
	{"reloc.bpf.c", "reloc.bpf.o"},
	{"text_64_64_reloc.c", "text_64_64_reloc.o"},
}

var defaultBTF = []CObjectSpec{
	{"reloc.btf.c", "reloc.btf.o"},
}

// DefaultObjects returns the C sources compiled into plain BPF objects.
func DefaultObjects() []CObjectSpec {
	return slices.Clone(defaultObjects)
}

// DefaultBTF returns the C sources whose .BTF section is extracted.
func DefaultBTF() []CObjectSpec {
	return slices.Clone(defaultBTF)
}

// BuildRequest represents one invocation of the pipeline.
type BuildRequest struct {
	ID          string
	RequestedAt time.Time
	Metadata    map[string]any
}

// BuildOutput captures what a driver produced before installation.
type BuildOutput struct {
	// Objects are files written directly into the output directory.
	Objects []artifacts.Artifact
	// Binaries are executables that still need to be installed.
	Binaries *ArtifactSet
}

// BuildResult is returned from a completed run.
type BuildResult struct {
	Plan      Plan
	Artifacts []artifacts.Artifact
}

// Binary is one entry of an ArtifactSet.
type Binary struct {
	Name string
	Path string
}

// ArtifactSet maps a component name to the executable built for it. Order of
// first insertion is preserved; a repeated name replaces the earlier path.
type ArtifactSet struct {
	entries []Binary
	index   map[string]int
}

// NewArtifactSet returns an empty set.
func NewArtifactSet() *ArtifactSet {
	return &ArtifactSet{index: make(map[string]int)}
}

// Add records path as the executable for name.
func (s *ArtifactSet) Add(name, path string) {
	if i, ok := s.index[name]; ok {
		s.entries[i].Path = path
		return
	}
	s.index[name] = len(s.entries)
	s.entries = append(s.entries, Binary{Name: name, Path: path})
}

// Get returns the path recorded for name.
func (s *ArtifactSet) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	i, ok := s.index[name]
	if !ok {
		return "", false
	}
	return s.entries[i].Path, true
}

// Len returns the number of entries.
func (s *ArtifactSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns a copy of the entries in insertion order.
func (s *ArtifactSet) Entries() []Binary {
	if s == nil {
		return nil
	}
	return slices.Clone(s.entries)
}

// Missing returns the declared names that have no entry.
func (s *ArtifactSet) Missing(declared []string) []string {
	var missing []string
	for _, name := range declared {
		if _, ok := s.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
