//go:build unix

// Package host implements libc.Runtime on top of the host kernel.
//
// Guest flag values are fixed by libc.OpenFlag; they are translated to the
// host's own O_* constants, which differ between architectures. Every host
// error collapses into libc.Failure after being logged.
package host

import (
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/zboralski/rplibc/internal/libc"
	glog "github.com/zboralski/rplibc/internal/log"
)

// DefaultMode is the permission used when O_CREAT creates a file.
const DefaultMode = 0o644

// Runtime forwards libc primitives to host system calls.
type Runtime struct {
	// Root, when set, prefixes every guest path. Guest paths cannot climb
	// above it with "..". On Linux, symlinks under Root are resolved by the
	// kernel beneath Root and fail if they point outside it. Other systems
	// only get the lexical ".." check, so a symlink inside Root can escape.
	Root string

	// Stdin and Stdout are the host descriptors used by Getc and Putc.
	Stdin  int
	Stdout int

	// Mode is the permission for created files; zero means DefaultMode.
	Mode uint32

	log *glog.Logger
}

var _ libc.Runtime = (*Runtime)(nil)

// New creates a runtime bound to the process's standard streams.
func New(root string, logger *glog.Logger) *Runtime {
	return &Runtime{
		Root:   root,
		Stdin:  unix.Stdin,
		Stdout: unix.Stdout,
		log:    glog.Or(logger),
	}
}

var flagMap = []struct {
	guest libc.OpenFlag
	host  int
}{
	{libc.O_CREAT, unix.O_CREAT},
	{libc.O_EXCL, unix.O_EXCL},
	{libc.O_TRUNC, unix.O_TRUNC},
	{libc.O_APPEND, unix.O_APPEND},
	{libc.O_NONBLOCK, unix.O_NONBLOCK},
	{libc.O_DIRECTORY, unix.O_DIRECTORY},
	{libc.O_NOFOLLOW, unix.O_NOFOLLOW},
	{libc.O_CLOEXEC, unix.O_CLOEXEC},
}

// HostFlags translates guest open flags to the host encoding.
// ok is false when the access mode is invalid.
func HostFlags(f libc.OpenFlag) (flags int, ok bool) {
	switch f.AccessMode() {
	case libc.O_RDONLY:
		flags = unix.O_RDONLY
	case libc.O_WRONLY:
		flags = unix.O_WRONLY
	case libc.O_RDWR:
		flags = unix.O_RDWR
	default:
		return 0, false
	}
	for _, m := range flagMap {
		if f.Has(m.guest) {
			flags |= m.host
		}
	}
	return flags, true
}

// Resolve maps a guest path to a host path under Root.
func (r *Runtime) Resolve(guest string) string {
	if r.Root == "" {
		return guest
	}
	return filepath.Join(r.Root, filepath.Clean("/"+guest))
}

func (r *Runtime) logger() *glog.Logger {
	if r.log == nil {
		r.log = glog.NewNop()
	}
	return r.log
}

// Putc writes c to the host stdout descriptor.
func (r *Runtime) Putc(c byte) {
	if _, err := unix.Write(r.Stdout, []byte{c}); err != nil {
		r.logger().RuntimeFailure("putc", r.Stdout, err)
	}
}

// Getc reads one byte from the host stdin descriptor. It returns 0 at end of
// stream or on error.
func (r *Runtime) Getc() byte {
	var b [1]byte
	for {
		n, err := unix.Read(r.Stdin, b[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			r.logger().RuntimeFailure("getc", r.Stdin, err)
			return 0
		}
		if n == 0 {
			return 0
		}
		return b[0]
	}
}

// Open opens a host file.
func (r *Runtime) Open(path []byte, flags libc.OpenFlag) int {
	hostFlags, ok := HostFlags(flags)
	name := libc.GoString(path)
	if !ok || name == "" {
		r.logger().RuntimeFailure("open", libc.Failure, unix.EINVAL)
		return libc.Failure
	}

	mode := r.Mode
	if mode == 0 {
		mode = DefaultMode
	}
	fd, err := r.open(name, hostFlags, mode)
	if err != nil {
		r.logger().RuntimeFailure("open", libc.Failure, err)
		return libc.Failure
	}
	return fd
}

// Read reads up to len(buf) bytes from fd.
func (r *Runtime) Read(fd int, buf []byte) int {
	n, err := unix.Read(fd, buf)
	if err != nil {
		r.logger().RuntimeFailure("read", fd, err)
		return libc.Failure
	}
	return n
}

// Write writes buf to fd.
func (r *Runtime) Write(fd int, buf []byte) int {
	n, err := unix.Write(fd, buf)
	if err != nil {
		r.logger().RuntimeFailure("write", fd, err)
		return libc.Failure
	}
	return n
}

// Close closes fd.
func (r *Runtime) Close(fd int) int {
	if err := unix.Close(fd); err != nil {
		r.logger().RuntimeFailure("close", fd, err)
		return libc.Failure
	}
	return 0
}
