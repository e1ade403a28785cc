// Package memfs is a libc.Runtime backed entirely by memory.
//
// Files are kept in an ordered map keyed by cleaned absolute path. The
// descriptor table starts with the console on 0, 1 and 2; new descriptors take
// the lowest free number, so the first Open returns 3.
package memfs

import (
	"bytes"
	"path"
	"strconv"
	"sync"

	"github.com/tidwall/btree"

	"github.com/zboralski/rplibc/internal/libc"
	glog "github.com/zboralski/rplibc/internal/log"
)

const (
	FdStdin = iota
	FdStdout
	FdStderr
)

type kind int

const (
	kindFile kind = iota
	kindStdin
	kindStdout
	kindStderr
)

type file struct {
	data []byte
}

type descriptor struct {
	kind   kind
	path   string
	file   *file
	flags  libc.OpenFlag
	offset int
}

// Runtime implements libc.Runtime in memory. It is safe for concurrent use.
type Runtime struct {
	mu    sync.Mutex
	files *btree.Map[string, *file]
	fds   map[int]*descriptor

	stdin  []byte
	stdout bytes.Buffer
	stderr bytes.Buffer

	log *glog.Logger
}

var _ libc.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime)

// WithStdin sets the bytes returned by Getc and reads on descriptor 0.
func WithStdin(b []byte) Option {
	return func(r *Runtime) {
		r.stdin = append([]byte{}, b...)
	}
}

// WithFile preloads a file.
func WithFile(name string, data []byte) Option {
	return func(r *Runtime) {
		r.files.Set(clean(name), &file{data: append([]byte{}, data...)})
	}
}

// WithLogger sets the logger used for failure diagnostics.
func WithLogger(l *glog.Logger) Option {
	return func(r *Runtime) {
		r.log = l
	}
}

// New creates an empty in-memory runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		files: btree.NewMap[string, *file](0),
		fds: map[int]*descriptor{
			FdStdin:  {kind: kindStdin, flags: libc.O_RDONLY},
			FdStdout: {kind: kindStdout, flags: libc.O_WRONLY},
			FdStderr: {kind: kindStderr, flags: libc.O_WRONLY},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = glog.Or(r.log)
	return r
}

func clean(name string) string {
	if name == "" {
		return ""
	}
	return path.Clean("/" + name)
}

// Putc appends c to standard output.
func (r *Runtime) Putc(c byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stdout.WriteByte(c)
}

// Getc returns the next byte of standard input, or 0 once it is exhausted.
func (r *Runtime) Getc() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stdin) == 0 {
		return 0
	}
	c := r.stdin[0]
	r.stdin = r.stdin[1:]
	return c
}

// Open opens or creates a file.
func (r *Runtime) Open(p []byte, flags libc.OpenFlag) int {
	name := clean(libc.GoString(p))
	if name == "" || flags.AccessMode() == libc.O_ACCMODE {
		return r.fail("open", libc.Failure, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Only regular files exist here.
	if flags.Has(libc.O_DIRECTORY) {
		return r.fail("open", libc.Failure, name)
	}

	f, exists := r.files.Get(name)
	switch {
	case exists && flags.Has(libc.O_CREAT|libc.O_EXCL):
		return r.fail("open", libc.Failure, name)
	case !exists && !flags.Has(libc.O_CREAT):
		return r.fail("open", libc.Failure, name)
	case !exists:
		f = &file{}
		r.files.Set(name, f)
	}

	if flags.Has(libc.O_TRUNC) && flags.Writable() {
		f.data = f.data[:0]
	}

	fd := r.lowestFree()
	r.fds[fd] = &descriptor{kind: kindFile, path: name, file: f, flags: flags}
	return fd
}

func (r *Runtime) lowestFree() int {
	fd := 0
	for {
		if _, used := r.fds[fd]; !used {
			return fd
		}
		fd++
	}
}

// Read reads from fd into buf, advancing the descriptor offset.
func (r *Runtime) Read(fd int, buf []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.fds[fd]
	if !ok || !d.flags.Readable() {
		return r.fail("read", fd, "")
	}

	switch d.kind {
	case kindStdin:
		n := copy(buf, r.stdin)
		r.stdin = r.stdin[n:]
		return n
	case kindFile:
		if d.offset >= len(d.file.data) {
			return 0
		}
		n := copy(buf, d.file.data[d.offset:])
		d.offset += n
		return n
	}
	return r.fail("read", fd, "")
}

// Write writes buf to fd. Files opened with O_APPEND always write at the end.
func (r *Runtime) Write(fd int, buf []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.fds[fd]
	if !ok || !d.flags.Writable() {
		return r.fail("write", fd, "")
	}

	switch d.kind {
	case kindStdout:
		r.stdout.Write(buf)
		return len(buf)
	case kindStderr:
		r.stderr.Write(buf)
		return len(buf)
	case kindFile:
		if d.flags.Has(libc.O_APPEND) {
			d.offset = len(d.file.data)
		}
		end := d.offset + len(buf)
		if end > len(d.file.data) {
			grown := make([]byte, end)
			copy(grown, d.file.data)
			d.file.data = grown
		}
		copy(d.file.data[d.offset:], buf)
		d.offset = end
		return len(buf)
	}
	return r.fail("write", fd, "")
}

// Close releases fd so its number can be reused.
func (r *Runtime) Close(fd int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fds[fd]; !ok {
		return r.fail("close", fd, "")
	}
	delete(r.fds, fd)
	return 0
}

func (r *Runtime) fail(op string, fd int, name string) int {
	r.log.Trace(0, "memfs", op, "failed fd="+strconv.Itoa(fd)+" "+name)
	return libc.Failure
}

// WriteFile creates or replaces a file.
func (r *Runtime) WriteFile(name string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files.Set(clean(name), &file{data: append([]byte{}, data...)})
}

// ReadFile returns a copy of a file's contents.
func (r *Runtime) ReadFile(name string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files.Get(clean(name))
	if !ok {
		return nil, false
	}
	return append([]byte{}, f.data...), true
}

// Remove deletes a file. Descriptors already open on it keep their data.
func (r *Runtime) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.files.Delete(clean(name))
	return ok
}

// Paths returns every file path in lexical order.
func (r *Runtime) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, r.files.Len())
	r.files.Scan(func(name string, _ *file) bool {
		paths = append(paths, name)
		return true
	})
	return paths
}

// OpenFDs returns the number of open descriptors, console included.
func (r *Runtime) OpenFDs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fds)
}

// Stdout returns everything written to standard output so far.
func (r *Runtime) Stdout() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte{}, r.stdout.Bytes()...)
}

// Stderr returns everything written to descriptor 2 so far.
func (r *Runtime) Stderr() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte{}, r.stderr.Bytes()...)
}
