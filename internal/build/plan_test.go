package build

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/cochaviz/ebpfstage/arch"
	"github.com/cochaviz/ebpfstage/internal/cargo"
)

func testPackage(bins ...string) cargo.Package {
	pkg := cargo.Package{
		Name:         DefaultPackageName,
		ManifestPath: "/repo/test/integration-ebpf/Cargo.toml",
		Targets:      []cargo.Target{{Name: "integration_ebpf", Kind: []string{"lib"}}},
	}
	for _, bin := range bins {
		pkg.Targets = append(pkg.Targets, cargo.Target{Name: bin, Kind: []string{"bin"}})
	}
	return pkg
}

func fullSettings() Settings {
	return Settings{
		Mode:        ModeFull,
		OutDir:      "/out",
		ManifestDir: "/repo/test/integration-test",
		Endian:      "little",
		Arch:        "x86_64",
		LibbpfDir:   "../../libbpf",
		Objects:     DefaultObjects(),
		BTF:         DefaultBTF(),
	}
}

func TestNewPlanResolvesPaths(t *testing.T) {
	t.Parallel()

	plan, err := NewPlan(fullSettings(), testPackage("log", "map_test"))
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}

	if plan.Target != arch.BPFEL || plan.Triple() != "bpfel-unknown-none" {
		t.Fatalf("unexpected target %q", plan.Triple())
	}
	if plan.ArchMacro() != "-D__TARGET_ARCH_x86" {
		t.Fatalf("unexpected arch macro %q", plan.ArchMacro())
	}
	if plan.LibbpfDir != "/repo/libbpf" {
		t.Fatalf("libbpf dir not resolved against manifest dir: %q", plan.LibbpfDir)
	}
	if plan.HeadersDir != "/out/libbpf_headers" {
		t.Fatalf("unexpected headers dir %q", plan.HeadersDir)
	}
	if plan.CrossTargetDir != "/out/integration-ebpf-target" {
		t.Fatalf("unexpected cross target dir %q", plan.CrossTargetDir)
	}
	if plan.Objects[1].Source != "/repo/test/integration-test/bpf/main.bpf.c" ||
		plan.Objects[1].Destination != "/out/main.bpf.o" {
		t.Fatalf("unexpected object spec %#v", plan.Objects[1])
	}

	want := []string{
		"/out/ext.bpf.o", "/out/main.bpf.o", "/out/multimap-btf.bpf.o",
		"/out/reloc.bpf.o", "/out/text_64_64_reloc.o", "/out/reloc.btf.o",
		"/out/log", "/out/map_test",
	}
	if got := plan.Destinations(); !slices.Equal(got, want) {
		t.Fatalf("Destinations() = %v, want %v", got, want)
	}
}

func TestNewPlanKeepsAbsoluteLibbpfDir(t *testing.T) {
	t.Parallel()

	settings := fullSettings()
	settings.LibbpfDir = "/vendor/libbpf"
	plan, err := NewPlan(settings, testPackage())
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}
	if plan.LibbpfDir != "/vendor/libbpf" {
		t.Fatalf("unexpected libbpf dir %q", plan.LibbpfDir)
	}
}

func TestNewPlanStubNeedsOnlyOutDirAndEndian(t *testing.T) {
	t.Parallel()

	plan, err := NewPlan(Settings{
		Mode:    ModeStub,
		OutDir:  "/out",
		Endian:  "big",
		Objects: DefaultObjects(),
	}, testPackage("log"))
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}
	if plan.Triple() != "bpfeb-unknown-none" {
		t.Fatalf("unexpected triple %q", plan.Triple())
	}
	if got := plan.Destinations(); got[len(got)-1] != filepath.Join("/out", "log") {
		t.Fatalf("binary placeholder missing from %v", got)
	}
}

func TestNewPlanRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		mutate func(*Settings)
		pkg    cargo.Package
		want   string
	}{
		"unknown mode":       {func(s *Settings) { s.Mode = "fast" }, testPackage(), "invalid mode"},
		"missing out dir":    {func(s *Settings) { s.OutDir = "" }, testPackage(), "output directory"},
		"unsupported endian": {func(s *Settings) { s.Endian = "middle" }, testPackage(), "resolve target"},
		"missing arch":       {func(s *Settings) { s.Arch = "" }, testPackage(), "architecture"},
		"missing manifest":   {func(s *Settings) { s.ManifestDir = "" }, testPackage(), "manifest directory"},
		"missing libbpf":     {func(s *Settings) { s.LibbpfDir = "" }, testPackage(), "libbpf directory"},
		"duplicate object": {func(s *Settings) {
			s.BTF = append(s.BTF, CObjectSpec{Source: "other.c", Destination: "main.bpf.o"})
		}, testPackage(), `"main.bpf.o"`},
		"nested destination": {func(s *Settings) {
			s.Objects = []CObjectSpec{{Source: "a.c", Destination: "sub/a.o"}}
		}, testPackage(), "invalid destination"},
		"missing source": {func(s *Settings) {
			s.Objects = []CObjectSpec{{Destination: "a.o"}}
		}, testPackage(), "no source"},
		"binary shadows object": {nil, testPackage("main.bpf.o"), "claimed by both"},
		"binary shadows headers": {nil, testPackage(HeadersDirName), "claimed by both"},
		"binary shadows target dir": {nil, testPackage("integration-ebpf-target"), "claimed by both"},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			settings := fullSettings()
			if tc.mutate != nil {
				tc.mutate(&settings)
			}
			_, err := NewPlan(settings, tc.pkg)

			var buildErr *BuildError
			if !errors.As(err, &buildErr) || buildErr.Kind != ConfigurationError {
				t.Fatalf("NewPlan() error = %v, want configuration error", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("NewPlan() error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"stub", "full"} {
		mode, err := ParseMode(value)
		if err != nil || string(mode) != value {
			t.Fatalf("ParseMode(%q) = %q, %v", value, mode, err)
		}
	}
	if _, err := ParseMode("release"); err == nil {
		t.Fatal("ParseMode() accepted an unknown mode")
	}
}

func TestDefaultTablesAreCopies(t *testing.T) {
	t.Parallel()

	objects := DefaultObjects()
	objects[0].Destination = "changed.o"
	if DefaultObjects()[0].Destination != "ext.bpf.o" {
		t.Fatal("DefaultObjects() exposed the shared table")
	}
}

func TestArtifactSet(t *testing.T) {
	t.Parallel()

	set := NewArtifactSet()
	set.Add("log", "/t/release/log")
	set.Add("map_test", "/t/release/map_test")
	set.Add("log", "/t/release/deps/log")

	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}
	if path, ok := set.Get("log"); !ok || path != "/t/release/deps/log" {
		t.Fatalf("Get(log) = %q, %v; later path must win", path, ok)
	}
	entries := set.Entries()
	if entries[0].Name != "log" || entries[1].Name != "map_test" {
		t.Fatalf("Entries() lost insertion order: %#v", entries)
	}
	if missing := set.Missing([]string{"log", "name_test", "map_test", "pass"}); !slices.Equal(missing, []string{"name_test", "pass"}) {
		t.Fatalf("Missing() = %v", missing)
	}

	var empty *ArtifactSet
	if empty.Len() != 0 || empty.Entries() != nil {
		t.Fatal("nil set must behave as empty")
	}
	if _, ok := empty.Get("log"); ok {
		t.Fatal("nil set reported an entry")
	}
}
