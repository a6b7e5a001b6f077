package fileutil

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
)

// ErrRecycle is returned when the shell refuses to recycle a file
var ErrRecycle = errors.New("recycle bin rejected the delete")

// pathList encodes paths the way SHFileOperationW reads pFrom: every path
// NUL terminated, the list closed by one more NUL
func pathList(paths ...string) ([]uint16, error) {
	if len(paths) == 0 {
		return nil, errors.New("no paths to recycle")
	}
	var out []uint16
	for _, p := range paths {
		if p == "" || strings.IndexByte(p, 0) >= 0 {
			return nil, fmt.Errorf("invalid path %q", p)
		}
		out = append(out, utf16.Encode([]rune(p))...)
		out = append(out, 0)
	}
	return append(out, 0), nil
}

// recycleError reports a failed or user-aborted shell operation
func recycleError(code uintptr, aborted bool, paths []string) error {
	target := strings.Join(paths, ", ")
	if code == 0 && aborted {
		return fmt.Errorf("%w: %s: operation aborted", ErrRecycle, target)
	}
	return fmt.Errorf("%w: %s: SHFileOperationW returned %#x", ErrRecycle, target, code)
}
