//go:build !(linux || darwin || freebsd)

package diskspace

func free(path string) (uint64, error) {
	return 0, ErrUnsupported
}
