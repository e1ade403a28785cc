package trace

import (
	"strconv"

	"github.com/zboralski/rplibc/internal/libc"
	glog "github.com/zboralski/rplibc/internal/log"
)

// Runtime wraps a libc.Runtime and reports every call. Arguments are passed
// to the inner runtime untouched and its results are returned untouched.
type Runtime struct {
	inner libc.Runtime
	log   *glog.Logger

	// OnCall receives one event per primitive call.
	OnCall func(e *Event)
}

var _ libc.Runtime = (*Runtime)(nil)

// Wrap returns a tracing decorator around rt.
func Wrap(rt libc.Runtime, logger *glog.Logger) *Runtime {
	return &Runtime{inner: rt, log: glog.Or(logger)}
}

// Unwrap returns the decorated runtime.
func (r *Runtime) Unwrap() libc.Runtime {
	return r.inner
}

func (r *Runtime) emit(category, name, detail string, ret int, hasRet bool) {
	if hasRet {
		detail += " -> " + strconv.Itoa(ret)
	}
	r.log.Trace(0, category, name, detail)
	if r.OnCall == nil {
		return
	}
	e := NewEvent(0, category, name, detail)
	if hasRet {
		e.Annotate("ret", strconv.Itoa(ret))
	}
	DefaultEnricher(e)
	r.OnCall(e)
}

func (r *Runtime) Putc(c byte) {
	r.inner.Putc(c)
	r.emit(string(Console), "putc", strconv.QuoteRune(rune(c)), 0, false)
}

func (r *Runtime) Getc() byte {
	c := r.inner.Getc()
	r.emit(string(Console), "getc", "", int(c), true)
	return c
}

func (r *Runtime) Open(path []byte, flags libc.OpenFlag) int {
	fd := r.inner.Open(path, flags)
	r.emit(string(File), "open", strconv.Quote(libc.GoString(path))+" "+flags.String(), fd, true)
	return fd
}

func (r *Runtime) Read(fd int, buf []byte) int {
	n := r.inner.Read(fd, buf)
	r.emit(string(File), "read", "fd="+strconv.Itoa(fd)+" n="+strconv.Itoa(len(buf)), n, true)
	return n
}

func (r *Runtime) Write(fd int, buf []byte) int {
	n := r.inner.Write(fd, buf)
	r.emit(string(File), "write", "fd="+strconv.Itoa(fd)+" n="+strconv.Itoa(len(buf)), n, true)
	return n
}

func (r *Runtime) Close(fd int) int {
	ret := r.inner.Close(fd)
	r.emit(string(File), "close", "fd="+strconv.Itoa(fd), ret, true)
	return ret
}
