package artifacts

import (
	"errors"
	"strings"
)

// FileURI returns the file:// URI for path.
func FileURI(path string) string {
	return "file://" + path
}

// PathFromURI returns the local path of a file:// URI.
func PathFromURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, "file://") {
		return "", errors.New("not a file:// URI")
	}
	return strings.TrimPrefix(uri, "file://"), nil
}
