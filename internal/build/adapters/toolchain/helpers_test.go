package toolchain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeTools struct {
	dir string
	log string
}

func newFakeTools(t *testing.T) *fakeTools {
	t.Helper()
	dir := t.TempDir()
	return &fakeTools{dir: dir, log: filepath.Join(dir, "invocations.log")}
}

func (f *fakeTools) tools() Tools {
	return Tools{
		Make:    filepath.Join(f.dir, "make"),
		Clang:   filepath.Join(f.dir, "clang"),
		Objcopy: filepath.Join(f.dir, "llvm-objcopy"),
		Cargo:   filepath.Join(f.dir, "cargo"),
	}
}

func (f *fakeTools) write(t *testing.T, name, body string) {
	t.Helper()
	script := "#!/bin/sh\n" + strings.ReplaceAll(body, "@LOG@", f.log)
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(script), 0o755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
}

func (f *fakeTools) invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.log)
	if err != nil {
		t.Fatalf("read invocation log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

const fakeMake = `echo "make $*" >> "@LOG@"
for a in "$@"; do
  case "$a" in INCLUDEDIR=*) mkdir -p "${a#INCLUDEDIR=}" ;; esac
done
`

const fakeClang = `echo "clang $*" >> "@LOG@"
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
if [ "$out" = "-" ]; then
  printf 'ELF-with-BTF-section'
else
  printf 'ELF-object' > "$out"
fi
`

const fakeObjcopy = `echo "llvm-objcopy $*" >> "@LOG@"
[ "$1" = "--dump-section" ] || exit 64
[ "$3" = "-" ] || exit 65
dst="${2#.BTF=}"
cat > "$dst"
`

const failingObjcopy = `echo "llvm-objcopy $*" >> "@LOG@"
cat > /dev/null
echo "llvm-objcopy: error: section '.BTF' not found" >&2
exit 1
`

// fakeCargo emits one artifact per name in @BINS@ after @NOISE@ has run.
const fakeCargo = `echo "cargo $* RUSTC=${RUSTC-unset} RUSTUP_TOOLCHAIN=${RUSTUP_TOOLCHAIN-unset} PWD=$(pwd)" >> "@LOG@"
target_dir=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--target-dir" ]; then target_dir="$a"; fi
  prev="$a"
done
@NOISE@
mkdir -p "$target_dir/release"
echo "   Compiling integration-ebpf v0.1.0"
echo '{"reason":"compiler-artifact","target":{"name":"integration_ebpf","kind":["lib"]},"executable":null}'
echo '{"reason":"compiler-message","message":{"message":"unused variable","rendered":"warning: unused variable"}}'
for bin in @BINS@; do
  printf 'bpf-elf-%s' "$bin" > "$target_dir/release/$bin"
  echo "{\"reason\":\"compiler-artifact\",\"target\":{\"name\":\"$bin\",\"kind\":[\"bin\"]},\"executable\":\"$target_dir/release/$bin\"}"
done
echo '{"reason":"build-finished","success":true}'
echo "    Finished release" >&2
exit @EXIT@
`

// noisyStderr writes well over a pipe buffer of diagnostics before any event.
const noisyStderr = `i=0
while [ $i -lt 20000 ]; do
  echo "warning: diagnostic line $i padding padding padding padding" >&2
  i=$((i+1))
done`

func cargoScript(bins []string, noise string, exit string) string {
	script := strings.ReplaceAll(fakeCargo, "@BINS@", strings.Join(bins, " "))
	script = strings.ReplaceAll(script, "@NOISE@", noise)
	return strings.ReplaceAll(script, "@EXIT@", exit)
}
