package libc

import (
	"strconv"

	"github.com/zboralski/rplibc/internal/libc"
	"github.com/zboralski/rplibc/internal/stubs"
)

func init() {
	stubs.RegisterFunc("libc", "atoi", stubAtoi)
	stubs.RegisterFunc("libc", "strlen", stubStrlen)
}

// int atoi(const char *s)
func stubAtoi(c *stubs.Call) bool {
	s := c.String(c.Arg(0))
	v := libc.Atoi(s)

	c.LogResult(strconv.Quote(libc.GoString(s)), int(v))
	c.ReturnInt(int(v))
	return false
}

// size_t strlen(const char *s)
func stubStrlen(c *stubs.Call) bool {
	n := libc.Strlen(c.String(c.Arg(0)))

	c.LogResult(stubs.FormatPtr("s", c.Arg(0)), n)
	c.Return(uint64(n))
	return false
}
