package libc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zboralski/rplibc/internal/libc"
)

var modifiers = []libc.OpenFlag{
	libc.O_CREAT,
	libc.O_EXCL,
	libc.O_TRUNC,
	libc.O_APPEND,
	libc.O_NONBLOCK,
	libc.O_DIRECTORY,
	libc.O_NOFOLLOW,
	libc.O_CLOEXEC,
}

func TestAccessModeMask(t *testing.T) {
	t.Parallel()

	assert.Equal(t, libc.O_RDONLY, libc.O_ACCMODE&libc.O_RDONLY)
	assert.Equal(t, libc.O_WRONLY, libc.O_ACCMODE&libc.O_WRONLY)
	assert.Equal(t, libc.O_RDWR, libc.O_ACCMODE&libc.O_RDWR)

	for _, m := range modifiers {
		assert.Zero(t, libc.O_ACCMODE&m, "O_ACCMODE must mask out %s", m)
	}
}

func TestModifierBitsAreDistinct(t *testing.T) {
	t.Parallel()

	var seen libc.OpenFlag
	for _, m := range modifiers {
		assert.NotZero(t, m)
		assert.Zero(t, seen&m, "%s overlaps another flag", m)
		seen |= m
	}
}

func TestAccessMode(t *testing.T) {
	t.Parallel()

	f := libc.O_RDWR | libc.O_CREAT | libc.O_TRUNC
	assert.Equal(t, libc.O_RDWR, f.AccessMode())
	assert.True(t, f.Has(libc.O_CREAT))
	assert.True(t, f.Has(libc.O_CREAT|libc.O_TRUNC))
	assert.False(t, f.Has(libc.O_APPEND))

	assert.True(t, libc.O_RDONLY.Readable())
	assert.False(t, libc.O_RDONLY.Writable())
	assert.False(t, (libc.O_WRONLY | libc.O_APPEND).Readable())
	assert.True(t, (libc.O_WRONLY | libc.O_APPEND).Writable())
	assert.True(t, f.Readable())
	assert.True(t, f.Writable())
	assert.False(t, libc.O_ACCMODE.Readable())
	assert.False(t, libc.O_ACCMODE.Writable())
}

func TestOpenFlagString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "O_RDONLY", libc.O_RDONLY.String())
	assert.Equal(t, "O_WRONLY|O_CREAT|O_TRUNC", (libc.O_WRONLY | libc.O_CREAT | libc.O_TRUNC).String())
	assert.Equal(t, "O_RDWR|O_APPEND|O_CLOEXEC", (libc.O_RDWR | libc.O_APPEND | libc.O_CLOEXEC).String())
	assert.Equal(t, "O_RDONLY|0x100000", libc.OpenFlag(0x100000).String())
}

func TestFailed(t *testing.T) {
	t.Parallel()
	assert.True(t, libc.Failed(libc.Failure))
	assert.True(t, libc.Failed(-2))
	assert.False(t, libc.Failed(0))
	assert.False(t, libc.Failed(3))
}
