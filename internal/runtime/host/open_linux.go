package host

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// open resolves name beneath Root with openat2, so neither ".." nor a
// symlink can leave the directory. Kernels without openat2 fail the open.
func (r *Runtime) open(name string, flags int, mode uint32) (int, error) {
	if r.Root == "" {
		return unix.Open(name, flags, mode)
	}

	dir, err := unix.Open(r.Root, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	defer unix.Close(dir)

	rel := strings.TrimPrefix(filepath.Clean("/"+name), "/")
	if rel == "" {
		rel = "."
	}
	return unix.Openat2(dir, rel, &unix.OpenHow{
		Flags:   uint64(flags),
		Mode:    uint64(mode),
		Resolve: unix.RESOLVE_BENEATH,
	})
}
