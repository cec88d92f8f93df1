// Package diskspace reports free space on the filesystem holding a path.
package diskspace

import "errors"

// ErrUnsupported is returned on platforms where we can't query free space
var ErrUnsupported = errors.New("Free space query is not supported on this platform")

// Free returns the number of bytes available to an unprivileged user on the filesystem holding path
func Free(path string) (uint64, error) {
	return free(path)
}
