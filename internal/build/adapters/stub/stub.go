// Package stub implements the fast build path: every destination the full
// pipeline would populate is replaced by a zero-length file. No compiler is
// ever invoked, so metadata-only tooling sees a complete, stable file set.
package stub

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cochaviz/ebpfstage/internal/artifacts"
	"github.com/cochaviz/ebpfstage/internal/build"
)

var _ build.BuildDriver = (*Driver)(nil)

// Driver writes placeholder artifacts.
type Driver struct {
	Logger *slog.Logger
}

func (d *Driver) logger() *slog.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Build truncates or creates every destination of the plan.
func (d *Driver) Build(ctx context.Context, plan build.Plan) (build.BuildOutput, error) {
	paths := plan.Destinations()
	output := build.BuildOutput{
		Objects:  make([]artifacts.Artifact, 0, len(paths)),
		Binaries: build.NewArtifactSet(),
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return build.BuildOutput{}, err
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return build.BuildOutput{}, &build.BuildError{
				Kind:    build.IOError,
				Message: fmt.Sprintf("failed to create %s", path),
				Err:     err,
			}
		}
		output.Objects = append(output.Objects, artifacts.Artifact{
			ID:   path,
			Kind: artifacts.StubArtifact,
			URI:  artifacts.FileURI(path),
		})
	}

	d.logger().Info("wrote stub artifacts", "count", len(paths), "out_dir", plan.OutDir)
	return output, nil
}
