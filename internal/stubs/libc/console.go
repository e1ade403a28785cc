package libc

import (
	"strconv"

	"github.com/zboralski/rplibc/internal/libc"
	"github.com/zboralski/rplibc/internal/stubs"
)

func init() {
	stubs.RegisterFunc("libc", "putc", stubPutc, "putchar")
	stubs.RegisterFunc("libc", "getc", stubGetc, "getchar")
	stubs.RegisterFunc("libc", "puts", stubPuts)
}

// int putc(int c): writes the low byte, returns it as unsigned char.
func stubPutc(c *stubs.Call) bool {
	b := byte(c.Arg(0))
	c.Runtime.Putc(b)

	c.Log(strconv.QuoteRune(rune(b)))
	c.Return(uint64(b))
	return false
}

// int getc(void): returns 0 at end of input.
func stubGetc(c *stubs.Call) bool {
	b := c.Runtime.Getc()

	c.LogResult("", int(b))
	c.Return(uint64(b))
	return false
}

// int puts(const char *s): writes s up to its terminator, no newline added.
func stubPuts(c *stubs.Call) bool {
	s := c.String(c.Arg(0))
	libc.Puts(c.Runtime, s)

	c.Log(strconv.Quote(libc.GoString(s)))
	c.Return(0)
	return false
}
