package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Problem describes one destination that does not meet expectations.
type Problem struct {
	Path   string
	Reason string
}

// VerificationError lists every destination that failed verification.
type VerificationError struct {
	Problems []Problem
}

func (e *VerificationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s: %s", p.Path, p.Reason))
	}
	return fmt.Sprintf("%d artifact(s) failed verification: %s", len(e.Problems), strings.Join(parts, "; "))
}

// Verify checks that every path exists as a regular file. When expectEmpty is
// set each file must be zero-length (stubs); otherwise each must be non-empty.
func Verify(paths []string, expectEmpty bool) error {
	var problems []Problem
	for _, path := range paths {
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			problems = append(problems, Problem{Path: path, Reason: "missing"})
		case err != nil:
			problems = append(problems, Problem{Path: path, Reason: err.Error()})
		case !info.Mode().IsRegular():
			problems = append(problems, Problem{Path: path, Reason: "not a regular file"})
		case expectEmpty && info.Size() != 0:
			problems = append(problems, Problem{Path: path, Reason: fmt.Sprintf("expected empty stub, found %d bytes", info.Size())})
		case !expectEmpty && info.Size() == 0:
			problems = append(problems, Problem{Path: path, Reason: "empty"})
		}
	}
	if len(problems) > 0 {
		return &VerificationError{Problems: problems}
	}
	return nil
}
