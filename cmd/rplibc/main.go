package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitStatus carries the guest's exit status out of cobra.
type exitStatus int

func (s exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(s)) }

func main() {
	err := newRootCmd().Execute()
	var status exitStatus
	switch {
	case errors.As(err, &status):
		os.Exit(int(status) & 0xff)
	case err != nil:
		fmt.Fprintln(os.Stderr, "rplibc:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rplibc",
		Short: "Run freestanding ARM64 programs against a minimal libc",
		Long: `rplibc runs freestanding AArch64 ELF programs under emulation and binds
their libc calls (putc, getc, puts, atoi, strlen, open, read, write, close,
exit) to a host runtime.

The host runtime forwards console and file I/O to this machine. The memory
runtime keeps files and console streams in memory, with no side effects.

Examples:
  rplibc run hello.elf world          # main(2, {"hello.elf", "world"})
  rplibc run -t -n 200 cat.elf        # instruction trace on stderr
  rplibc run --config run.yaml app.elf
  rplibc info hello.elf               # imports and bound stubs
  rplibc atoi -- -42                  # libc utilities on the host runtime`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newInfoCmd(), newPutsCmd(), newAtoiCmd())
	return root
}
