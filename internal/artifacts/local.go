package artifacts

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// OutputDirStore copies artifacts into BaseDir under their logical name. The
// directory is supplied by the build environment and is never created or
// removed here; existing files are overwritten.
type OutputDirStore struct {
	BaseDir string
}

// StoreArtifact copies artifactPath to BaseDir/name, keeping the source mode
// bits, and records the BLAKE3 checksum of the copied bytes.
func (store *OutputDirStore) StoreArtifact(artifactPath string, name string, kind ArtifactKind) (Artifact, error) {
	if store.BaseDir == "" {
		return Artifact{}, errors.New("base directory is not configured")
	}
	if artifactPath == "" {
		return Artifact{}, errors.New("artifact path is required")
	}
	if name == "" || strings.ContainsRune(name, filepath.Separator) || name == "." || name == ".." {
		return Artifact{}, fmt.Errorf("invalid artifact name %q", name)
	}

	destPath := filepath.Join(store.BaseDir, name)
	checksum, err := copyFile(artifactPath, destPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to copy %s to %s: %w", artifactPath, destPath, err)
	}

	return Artifact{
		ID:          name,
		Kind:        kind,
		URI:         FileURI(destPath),
		Checksum:    &checksum,
		ContentType: "application/octet-stream",
		Metadata:    map[string]any{"source": artifactPath},
	}, nil
}

func copyFile(srcPath, destPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", srcPath)
	}

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return "", err
	}

	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(dst, hasher), src); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	// O_TRUNC keeps the mode of a pre-existing file.
	if err := os.Chmod(destPath, info.Mode().Perm()); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Checksum returns the hex BLAKE3 digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
