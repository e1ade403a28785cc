package libc

import (
	"strconv"

	"github.com/zboralski/rplibc/internal/stubs"
)

// AbortStatus is the exit status reported for abort(), as a shell would
// report SIGABRT.
const AbortStatus = 128 + 6

func init() {
	stubs.RegisterFunc("libc", "exit", stubExit, "_exit", "_Exit")
	stubs.RegisterFunc("libc", "abort", stubAbort, "__stack_chk_fail")
}

func stubExit(c *stubs.Call) bool {
	code := c.IntArg(0)
	c.Log(strconv.Itoa(code))
	return c.Exit(code)
}

func stubAbort(c *stubs.Call) bool {
	c.Log("program aborted")
	return c.Exit(AbortStatus)
}
