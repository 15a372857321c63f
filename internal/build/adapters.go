package build

import (
	"context"

	"github.com/cochaviz/ebpfstage/internal/cargo"
)

// BuildDriver produces every artifact described by a plan.
type BuildDriver interface {
	Build(ctx context.Context, plan Plan) (BuildOutput, error)
}

// PackageResolver looks up the metadata of the sibling package.
type PackageResolver interface {
	ResolvePackage(ctx context.Context, name string) (cargo.Package, error)
}

// Diagnostics forwards messages and re-run hints to the enclosing build system.
type Diagnostics interface {
	Warning(text string) error
	RerunIfChanged(path string) error
	RerunIfEnvChanged(name string) error
}
