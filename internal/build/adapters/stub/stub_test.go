package stub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cochaviz/ebpfstage/internal/artifacts"
	"github.com/cochaviz/ebpfstage/internal/build"
	"github.com/cochaviz/ebpfstage/internal/cargo"
)

func stubPlan(t *testing.T, outDir string) build.Plan {
	t.Helper()

	pkg := cargo.Package{
		Name:         build.DefaultPackageName,
		ManifestPath: "/nonexistent/integration-ebpf/Cargo.toml",
		Targets: []cargo.Target{
			{Name: "integration_ebpf", Kind: []string{"lib"}},
			{Name: "log", Kind: []string{"bin"}},
			{Name: "map_test", Kind: []string{"bin"}},
		},
	}
	plan, err := build.NewPlan(build.Settings{
		Mode:    build.ModeStub,
		OutDir:  outDir,
		Endian:  "little",
		Objects: build.DefaultObjects(),
		BTF:     build.DefaultBTF(),
	}, pkg)
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}
	return plan
}

func TestBuildWritesEmptyPlaceholders(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	plan := stubPlan(t, outDir)

	driver := &Driver{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	output, err := driver.Build(context.Background(), plan)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{
		"ext.bpf.o", "main.bpf.o", "multimap-btf.bpf.o", "reloc.bpf.o",
		"text_64_64_reloc.o", "reloc.btf.o", "log", "map_test",
	}
	for _, name := range want {
		info, err := os.Stat(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("placeholder %s missing: %v", name, err)
		}
		if info.Size() != 0 {
			t.Fatalf("placeholder %s has size %d", name, info.Size())
		}
	}
	if len(output.Objects) != len(want) {
		t.Fatalf("expected %d stub artifacts, got %d", len(want), len(output.Objects))
	}
	for _, artifact := range output.Objects {
		if artifact.Kind != artifacts.StubArtifact {
			t.Fatalf("unexpected artifact kind %q", artifact.Kind)
		}
	}
	if output.Binaries.Len() != 0 {
		t.Fatalf("stub build must not report binaries to install")
	}
	if _, err := os.Stat(filepath.Join(outDir, build.HeadersDirName)); !os.IsNotExist(err) {
		t.Fatalf("stub build must not stage headers, stat error = %v", err)
	}
}

func TestBuildTruncatesExistingArtifacts(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	stale := filepath.Join(outDir, "main.bpf.o")
	if err := os.WriteFile(stale, []byte("compiled earlier"), 0o644); err != nil {
		t.Fatalf("write stale object: %v", err)
	}

	driver := &Driver{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	if _, err := driver.Build(context.Background(), stubPlan(t, outDir)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	info, err := os.Stat(stale)
	if err != nil {
		t.Fatalf("stat main.bpf.o: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("main.bpf.o was not truncated, size %d", info.Size())
	}
}

func TestBuildReportsUnwritableDestination(t *testing.T) {
	t.Parallel()

	outDir := filepath.Join(t.TempDir(), "missing")
	driver := &Driver{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	_, err := driver.Build(context.Background(), stubPlan(t, outDir))

	var buildErr *build.BuildError
	if !errors.As(err, &buildErr) || buildErr.Kind != build.IOError {
		t.Fatalf("Build() error = %v, want io build error", err)
	}
}

func TestBuildStopsWhenCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := &Driver{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	_, err := driver.Build(ctx, stubPlan(t, t.TempDir()))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build() error = %v, want context.Canceled", err)
	}
}
