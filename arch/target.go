package arch

import (
	"encoding/binary"
	"fmt"
	"runtime"
)

// Endianness is the target byte order as reported by CARGO_CFG_TARGET_ENDIAN.
type Endianness string

const (
	BigEndian    Endianness = "big"
	LittleEndian Endianness = "little"
)

// Target is the BPF architecture half of the cross-compilation triple.
type Target string

const (
	BPFEB Target = "bpfeb"
	BPFEL Target = "bpfel"
)

// tripleSuffix is the vendor/OS part shared by every BPF triple.
const tripleSuffix = "-unknown-none"

// ParseEndianness accepts exactly "big" or "little".
func ParseEndianness(value string) (Endianness, error) {
	switch Endianness(value) {
	case BigEndian, LittleEndian:
		return Endianness(value), nil
	default:
		return "", fmt.Errorf("unsupported endian=%q", value)
	}
}

// ResolveTarget derives the BPF target from the reported byte order. There is
// no fallback: any value other than "big" or "little" is an error.
func ResolveTarget(endian string) (Target, error) {
	e, err := ParseEndianness(endian)
	if err != nil {
		return "", err
	}
	if e == BigEndian {
		return BPFEB, nil
	}
	return BPFEL, nil
}

// MustResolveTarget is like ResolveTarget but panics on error.
func MustResolveTarget(endian string) Target {
	target, err := ResolveTarget(endian)
	if err != nil {
		panic(err)
	}
	return target
}

// String returns the target as string.
func (t Target) String() string {
	return string(t)
}

// Triple returns the full triple, e.g. bpfel-unknown-none.
func (t Target) Triple() string {
	return string(t) + tripleSuffix
}

// HostEndianness reports the byte order of the running process.
func HostEndianness() Endianness {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 1)
	if probe[0] == 1 {
		return LittleEndian
	}
	return BigEndian
}

// HostArchitecture returns the running architecture in build-system spelling,
// or the raw GOARCH when it is not one Normalize knows.
func HostArchitecture() string {
	if a := Normalize(runtime.GOARCH); a != "" {
		return a.String()
	}
	return runtime.GOARCH
}
