package libc

import (
	"strconv"

	"github.com/zboralski/rplibc/internal/libc"
	"github.com/zboralski/rplibc/internal/stubs"
)

// MaxIO bounds a single read or write transfer. Larger requests are served
// short, which callers of read and write must already handle.
const MaxIO = 1 << 20

func init() {
	stubs.RegisterFunc("libc", "open", stubOpen)
	stubs.RegisterFunc("libc", "read", stubRead)
	stubs.RegisterFunc("libc", "write", stubWrite)
	stubs.RegisterFunc("libc", "close", stubClose)
}

func clampIO(n uint64) int {
	if n > MaxIO {
		return MaxIO
	}
	return int(n)
}

// int open(const char *path, int flags)
//
// A path that is unreadable or longer than the path limit fails without
// reaching the runtime, so a truncated name is never opened or created.
func stubOpen(c *stubs.Call) bool {
	ptr := c.Arg(0)
	flags := libc.OpenFlag(uint32(c.Arg(1)))

	path, ok := c.Path(ptr)
	if !ok {
		c.LogResult(stubs.FormatPtr("path", ptr)+" "+flags.String(), libc.Failure)
		c.ReturnInt(libc.Failure)
		return false
	}
	fd := c.Runtime.Open(path, flags)

	c.LogResult(strconv.Quote(libc.GoString(path))+" "+flags.String(), fd)
	c.ReturnInt(fd)
	return false
}

// ssize_t read(int fd, void *buf, size_t n)
func stubRead(c *stubs.Call) bool {
	fd := c.IntArg(0)
	dst := c.Arg(1)
	buf := make([]byte, clampIO(c.Arg(2)))

	n := c.Runtime.Read(fd, buf)
	if n > 0 {
		if err := c.Emu.MemWrite(dst, buf[:n]); err != nil {
			n = libc.Failure
		}
	}

	c.LogResult("fd="+strconv.Itoa(fd)+" "+stubs.FormatPtr("buf", dst)+" n="+strconv.Itoa(len(buf)), n)
	c.ReturnInt(n)
	return false
}

// ssize_t write(int fd, const void *buf, size_t n)
func stubWrite(c *stubs.Call) bool {
	fd := c.IntArg(0)
	src := c.Arg(1)
	size := clampIO(c.Arg(2))

	var n int
	if size == 0 {
		n = c.Runtime.Write(fd, nil)
	} else if buf, err := c.Emu.MemRead(src, uint64(size)); err != nil {
		n = libc.Failure
	} else {
		n = c.Runtime.Write(fd, buf)
	}

	c.LogResult("fd="+strconv.Itoa(fd)+" "+stubs.FormatPtr("buf", src)+" n="+strconv.Itoa(size), n)
	c.ReturnInt(n)
	return false
}

// int close(int fd)
func stubClose(c *stubs.Call) bool {
	fd := c.IntArg(0)
	ret := c.Runtime.Close(fd)

	c.LogResult("fd="+strconv.Itoa(fd), ret)
	c.ReturnInt(ret)
	return false
}
