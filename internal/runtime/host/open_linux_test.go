package host_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zboralski/rplibc/internal/libc"
	"github.com/zboralski/rplibc/internal/runtime/host"
)

func TestRootConfinesSymlinks(t *testing.T) {
	t.Parallel()
	root, outside := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inner.txt"), []byte("in"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Symlink("inner.txt", filepath.Join(root, "alias")))

	rt := host.New(root, nil)

	assert.Equal(t, libc.Failure, rt.Open(libc.CString("/escape/secret"), libc.O_RDONLY))
	assert.Equal(t, libc.Failure, rt.Open(libc.CString("/escape/new"), libc.O_WRONLY|libc.O_CREAT))
	_, err := os.Stat(filepath.Join(outside, "new"))
	assert.ErrorIs(t, err, os.ErrNotExist, "nothing created outside root")

	// Links that stay inside the root still resolve.
	fd := rt.Open(libc.CString("/alias"), libc.O_RDONLY)
	require.GreaterOrEqual(t, fd, 0)
	buf := make([]byte, 4)
	assert.Equal(t, 2, rt.Read(fd, buf))
	assert.Equal(t, 0, rt.Close(fd))
}
