package toolchain

import (
	"context"
	"io"
	"log/slog"

	"github.com/cochaviz/ebpfstage/internal/build"
	"github.com/cochaviz/ebpfstage/internal/process"
)

// btfSection is the ELF section holding BTF type information.
const btfSection = ".BTF"

// ObjectCompiler compiles C sources into BPF objects for one target.
type ObjectCompiler struct {
	Clang   string
	Objcopy string

	IncludeDir string
	Triple     string
	ArchMacro  string

	Logger *slog.Logger
	Stderr io.Writer
}

func (c *ObjectCompiler) baseArgs() []string {
	return []string{"-I", c.IncludeDir, "-g"}
}

// CompileCommand returns the clang invocation writing spec.Destination.
func (c *ObjectCompiler) CompileCommand(spec build.CObjectSpec) process.Command {
	args := c.baseArgs()
	args = append(args, "-O2", "-target", c.Triple, "-c", c.ArchMacro, spec.Source, "-o", spec.Destination)
	return process.Command{Path: orDefault(c.Clang, DefaultClang), Args: args, Stderr: c.Stderr}
}

// Compile produces a plain object file.
func (c *ObjectCompiler) Compile(ctx context.Context, spec build.CObjectSpec) error {
	cmd := c.CompileCommand(spec)
	loggerOrDefault(c.Logger).Info("compiling object", "source", spec.Source, "destination", spec.Destination)
	loggerOrDefault(c.Logger).Debug("running compiler", "command", cmd.String())
	return process.Run(ctx, cmd)
}

// BTFCommands returns the compiler writing the object to stdout, without
// optimization so the raw section survives, and the extractor dumping the
// .BTF section of its stdin into spec.Destination. llvm-objcopy is used
// because GNU objcopy cannot read its input from a pipe.
func (c *ObjectCompiler) BTFCommands(spec build.CObjectSpec) (compiler, extractor process.Command) {
	args := c.baseArgs()
	args = append(args, "-target", c.Triple, "-c", c.ArchMacro, spec.Source, "-o", "-")
	compiler = process.Command{Path: orDefault(c.Clang, DefaultClang), Args: args, Stderr: c.Stderr}
	extractor = process.Command{
		Path:   orDefault(c.Objcopy, DefaultObjcopy),
		Args:   []string{"--dump-section", btfSection + "=" + spec.Destination, "-"},
		Stderr: c.Stderr,
	}
	return compiler, extractor
}

// ExtractBTF compiles spec.Source and streams the object straight into the
// extractor. Both processes must succeed.
func (c *ObjectCompiler) ExtractBTF(ctx context.Context, spec build.CObjectSpec) error {
	compiler, extractor := c.BTFCommands(spec)
	loggerOrDefault(c.Logger).Info("extracting BTF", "source", spec.Source, "destination", spec.Destination)
	loggerOrDefault(c.Logger).Debug("running pipeline", "compiler", compiler.String(), "extractor", extractor.String())
	return process.Pipe(ctx, compiler, extractor)
}
