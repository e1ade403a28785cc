//go:build unix && !linux

package host

import "golang.org/x/sys/unix"

// open joins name under Root. Only ".." is confined; symlinks are followed.
func (r *Runtime) open(name string, flags int, mode uint32) (int, error) {
	return unix.Open(r.Resolve(name), flags, mode)
}
