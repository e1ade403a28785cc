package memfs_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zboralski/rplibc/internal/libc"
	"github.com/zboralski/rplibc/internal/runtime/memfs"
)

func open(rt *memfs.Runtime, name string, flags libc.OpenFlag) int {
	return rt.Open(libc.CString(name), flags)
}

func TestConsole(t *testing.T) {
	t.Parallel()
	rt := memfs.New(memfs.WithStdin([]byte("hi")))

	libc.Puts(rt, libc.CString("hello\n"))
	rt.Putc('!')
	assert.Equal(t, "hello\n!", string(rt.Stdout()))

	assert.Equal(t, byte('h'), rt.Getc())
	assert.Equal(t, byte('i'), rt.Getc())
	assert.Equal(t, byte(0), rt.Getc(), "exhausted stdin yields 0")
}

func TestConsoleDescriptors(t *testing.T) {
	t.Parallel()
	rt := memfs.New(memfs.WithStdin([]byte("abcdef")))

	buf := make([]byte, 4)
	assert.Equal(t, 4, rt.Read(memfs.FdStdin, buf))
	assert.Equal(t, "abcd", string(buf))
	assert.Equal(t, byte('e'), rt.Getc())

	assert.Equal(t, 3, rt.Write(memfs.FdStdout, []byte("out")))
	assert.Equal(t, 3, rt.Write(memfs.FdStderr, []byte("err")))
	assert.Equal(t, "out", string(rt.Stdout()))
	assert.Equal(t, "err", string(rt.Stderr()))

	assert.Equal(t, libc.Failure, rt.Write(memfs.FdStdin, []byte("x")))
	assert.Equal(t, libc.Failure, rt.Read(memfs.FdStdout, buf))
}

func TestOpenMissingWithoutCreate(t *testing.T) {
	t.Parallel()
	rt := memfs.New()

	assert.Equal(t, libc.Failure, open(rt, "/nope", libc.O_RDONLY))
	assert.Equal(t, libc.Failure, rt.Open(nil, libc.O_RDONLY|libc.O_CREAT))
	assert.Equal(t, libc.Failure, open(rt, "/x", libc.O_ACCMODE|libc.O_CREAT))
	assert.Equal(t, libc.Failure, open(rt, "/d", libc.O_RDONLY|libc.O_DIRECTORY))
	assert.Empty(t, rt.Paths())
}

func TestCreateWriteReadBack(t *testing.T) {
	t.Parallel()
	rt := memfs.New()

	fd := open(rt, "/tmp/a.txt", libc.O_WRONLY|libc.O_CREAT)
	require.Equal(t, 3, fd, "first descriptor after the console")
	assert.Equal(t, 5, rt.Write(fd, []byte("hello")))
	assert.Equal(t, 6, rt.Write(fd, []byte(" world")))
	assert.Equal(t, libc.Failure, rt.Read(fd, make([]byte, 4)), "write-only descriptor")
	assert.Equal(t, 0, rt.Close(fd))

	fd = open(rt, "tmp/../tmp/a.txt", libc.O_RDONLY)
	require.Equal(t, 3, fd, "closed descriptor is reused")

	buf := make([]byte, 8)
	assert.Equal(t, 8, rt.Read(fd, buf))
	assert.Equal(t, "hello wo", string(buf))
	assert.Equal(t, 3, rt.Read(fd, buf), "short read")
	assert.Equal(t, "rld", string(buf[:3]))
	assert.Equal(t, 0, rt.Read(fd, buf), "end of file")
	assert.Equal(t, libc.Failure, rt.Write(fd, []byte("x")), "read-only descriptor")
	assert.Equal(t, 0, rt.Close(fd))
}

func TestExclusiveCreate(t *testing.T) {
	t.Parallel()
	rt := memfs.New(memfs.WithFile("/etc/motd", []byte("hi")))

	assert.Equal(t, libc.Failure, open(rt, "/etc/motd", libc.O_WRONLY|libc.O_CREAT|libc.O_EXCL))
	fd := open(rt, "/etc/new", libc.O_WRONLY|libc.O_CREAT|libc.O_EXCL)
	assert.GreaterOrEqual(t, fd, 3)
	assert.Equal(t, []string{"/etc/motd", "/etc/new"}, rt.Paths())
}

func TestTruncateAndAppend(t *testing.T) {
	t.Parallel()
	rt := memfs.New(memfs.WithFile("/log", []byte("old data")))

	fd := open(rt, "/log", libc.O_RDONLY|libc.O_TRUNC)
	rt.Close(fd)
	data, _ := rt.ReadFile("/log")
	assert.Equal(t, "old data", string(data), "O_TRUNC ignored without write access")

	fd = open(rt, "/log", libc.O_WRONLY|libc.O_TRUNC)
	rt.Write(fd, []byte("new"))
	rt.Close(fd)
	data, _ = rt.ReadFile("/log")
	assert.Equal(t, "new", string(data))

	a := open(rt, "/log", libc.O_WRONLY|libc.O_APPEND)
	b := open(rt, "/log", libc.O_WRONLY|libc.O_APPEND)
	rt.Write(a, []byte("+a"))
	rt.Write(b, []byte("+b"))
	rt.Write(a, []byte("+a"))
	data, _ = rt.ReadFile("/log")
	assert.Equal(t, "new+a+b+a", string(data))
}

func TestOverwriteInPlace(t *testing.T) {
	t.Parallel()
	rt := memfs.New(memfs.WithFile("/f", []byte("abcdef")))

	fd := open(rt, "/f", libc.O_RDWR)
	buf := make([]byte, 2)
	rt.Read(fd, buf)
	rt.Write(fd, []byte("XY"))
	data, _ := rt.ReadFile("/f")
	assert.Equal(t, "abXYef", string(data))
}

func TestCloseInvalidatesDescriptor(t *testing.T) {
	t.Parallel()
	rt := memfs.New(memfs.WithFile("/f", []byte("x")))

	fd := open(rt, "/f", libc.O_RDONLY)
	assert.Equal(t, 0, rt.Close(fd))
	assert.Equal(t, libc.Failure, rt.Close(fd))
	assert.Equal(t, libc.Failure, rt.Read(fd, make([]byte, 1)))
	assert.Equal(t, libc.Failure, rt.Close(42))
	assert.Equal(t, 3, rt.OpenFDs())
}

func TestClosingConsoleFreesLowNumbers(t *testing.T) {
	t.Parallel()
	rt := memfs.New(memfs.WithFile("/f", nil))

	assert.Equal(t, 0, rt.Close(memfs.FdStdin))
	assert.Equal(t, memfs.FdStdin, open(rt, "/f", libc.O_RDONLY))
}

func TestRemoveKeepsOpenDescriptors(t *testing.T) {
	t.Parallel()
	rt := memfs.New(memfs.WithFile("/f", []byte("keep")))

	fd := open(rt, "/f", libc.O_RDONLY)
	assert.True(t, rt.Remove("/f"))
	assert.False(t, rt.Remove("/f"))

	buf := make([]byte, 4)
	assert.Equal(t, 4, rt.Read(fd, buf))
	assert.Equal(t, "keep", string(buf))
	assert.Equal(t, libc.Failure, open(rt, "/f", libc.O_RDONLY))
}

func TestConcurrentOpenClose(t *testing.T) {
	t.Parallel()
	rt := memfs.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				fd := open(rt, "/shared", libc.O_WRONLY|libc.O_CREAT|libc.O_APPEND)
				if fd < 0 {
					t.Error("open failed")
					return
				}
				rt.Write(fd, []byte{'x'})
				rt.Close(fd)
			}
		}()
	}
	wg.Wait()

	data, ok := rt.ReadFile("/shared")
	require.True(t, ok)
	assert.Len(t, data, 16*50)
	assert.Equal(t, 3, rt.OpenFDs())
}
