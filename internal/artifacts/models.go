package artifacts

type ArtifactKind string

const (
	ObjectArtifact ArtifactKind = "object" // Compiled BPF object file
	BTFArtifact    ArtifactKind = "btf"    // Extracted .BTF section
	BinaryArtifact ArtifactKind = "binary" // Cross-compiled executable
	StubArtifact   ArtifactKind = "stub"   // Zero-length placeholder
)

type Artifact struct {
	ID   string
	Kind ArtifactKind
	URI  string

	Checksum    *string
	ContentType string
	Metadata    map[string]any
}
