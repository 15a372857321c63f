package artifacts

// ArtifactStore places artifacts under stable names.
type ArtifactStore interface {
	StoreArtifact(artifactPath string, name string, kind ArtifactKind) (Artifact, error)
}
