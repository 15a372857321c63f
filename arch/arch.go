package arch

import (
	"fmt"
	"sort"
	"strings"
)

// Architecture is a CPU architecture as reported by the enclosing build
// (CARGO_CFG_TARGET_ARCH uses these spellings).
type Architecture string

const (
	X86_64    Architecture = "x86_64"
	X86       Architecture = "x86"
	AArch64   Architecture = "aarch64"
	ARM       Architecture = "arm"
	PowerPC64 Architecture = "powerpc64"
	S390X     Architecture = "s390x"
	MIPS      Architecture = "mips"
	MIPS64    Architecture = "mips64"
	RISCV64   Architecture = "riscv64"
	LoongArch Architecture = "loongarch64"
)

// Supported returns the full list of architectures Normalize understands.
func Supported() []Architecture {
	return []Architecture{
		X86_64,
		X86,
		AArch64,
		ARM,
		PowerPC64,
		S390X,
		MIPS,
		MIPS64,
		RISCV64,
		LoongArch,
	}
}

// String returns the architecture as string.
func (a Architecture) String() string {
	return string(a)
}

// KernelName returns the name the kernel headers use for the architecture.
// Unknown architectures are passed through verbatim.
func (a Architecture) KernelName() string {
	return KernelArch(string(a))
}

// KernelArch translates a reported architecture into the kernel's naming.
// Only x86_64 and aarch64 are renamed; every other value is returned as-is.
func KernelArch(reported string) string {
	switch reported {
	case string(X86_64):
		return "x86"
	case string(AArch64):
		return "arm64"
	default:
		return reported
	}
}

// ArchMacro returns the -D__TARGET_ARCH_ define passed to the C compiler.
func ArchMacro(reported string) string {
	return "-D__TARGET_ARCH_" + KernelArch(reported)
}

// Parse returns the canonical Architecture for the provided string or an error if unsupported.
func Parse(value string) (Architecture, error) {
	if arch := Normalize(value); arch != "" {
		return arch, nil
	}
	return "", fmt.Errorf("unsupported architecture %q (supported: %s)", value, strings.Join(supportedStrings(), ", "))
}

// Normalize maps Go (GOARCH) and build-system spellings onto an Architecture.
// Returns "" when the string cannot be normalized.
func Normalize(value string) Architecture {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case string(X86_64), "x86-64", "amd64":
		return X86_64
	case string(X86), "i386", "i686", "386":
		return X86
	case string(AArch64), "arm64":
		return AArch64
	case string(ARM), "armv7", "armv7l", "armhf":
		return ARM
	case string(PowerPC64), "ppc64", "ppc64le", "powerpc64le":
		return PowerPC64
	case string(S390X):
		return S390X
	case string(MIPS64), "mips64le", "mips64el":
		return MIPS64
	case string(MIPS), "mipsle", "mipsel":
		return MIPS
	case string(RISCV64):
		return RISCV64
	case string(LoongArch), "loong64":
		return LoongArch
	default:
		return ""
	}
}

func supportedStrings() []string {
	all := Supported()
	out := make([]string, 0, len(all))
	for _, a := range all {
		out = append(out, a.String())
	}
	sort.Strings(out)
	return out
}
