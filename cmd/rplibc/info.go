package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zboralski/rplibc/internal/emulator"
	"github.com/zboralski/rplibc/internal/guest"
	"github.com/zboralski/rplibc/internal/libc"
	"github.com/zboralski/rplibc/internal/runtime/memfs"
	"github.com/zboralski/rplibc/internal/stubs"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <guest.elf>",
		Short: "Show the image layout and how its libc calls are bound",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Binding needs a runtime; nothing is executed.
			s, err := guest.New(guest.Options{Runtime: memfs.New(), Fallbacks: true})
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			defer s.Close()

			if err := s.LoadFile(args[0]); err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func printInfo(w io.Writer, s *guest.Session) {
	info := s.Info
	fmt.Fprintf(w, "Binary:  %s (%s)\n", info.Path, info.Type)
	fmt.Fprintf(w, "Base:    0x%x\n", info.BaseAddr)
	fmt.Fprintf(w, "End:     0x%x\n", info.EndAddr)
	fmt.Fprintf(w, "Entry:   0x%x\n", info.Entry)
	if addr := info.FindSymbol(guest.DefaultEntry); addr != 0 {
		fmt.Fprintf(w, "main:    0x%x\n", addr)
	} else {
		fmt.Fprintln(w, "main:    not found")
	}
	fmt.Fprintf(w, "Symbols: %d\n", len(info.Symbols))

	fmt.Fprintln(w, "\nSegments:")
	for _, seg := range info.Segments {
		fmt.Fprintf(w, "  0x%08x  %8d  %s\n", seg.VAddr, seg.MemSz, segFlags(seg))
	}

	imports := info.ImportNames()
	fmt.Fprintf(w, "\nImports: %d\n", len(imports))
	fallback := make(map[string]bool, len(s.Binding.Fallbacks))
	for _, name := range s.Binding.Fallbacks {
		fallback[name] = true
	}
	for _, name := range imports {
		fmt.Fprintf(w, "  %-16s %s\n", name, bindingState(s.Binding, fallback, name))
	}

	var internal []string
	for name := range s.Binding.Bound {
		if _, ok := info.Imports[name]; !ok {
			internal = append(internal, name)
		}
	}
	if len(internal) > 0 {
		sort.Strings(internal)
		fmt.Fprintln(w, "\nInternal definitions replaced:")
		for _, name := range internal {
			fmt.Fprintf(w, "  %-16s 0x%x\n", name, s.Binding.Bound[name])
		}
	}
}

func bindingState(b *stubs.Binding, fallback map[string]bool, name string) string {
	switch {
	case b.Bound[name] != 0:
		return "stub"
	case fallback[name]:
		return "fallback (returns 0)"
	}
	if _, ok := stubs.DefaultRegistry.Lookup(name); ok {
		return "stub (shared address)"
	}
	return "unbound"
}

func segFlags(seg emulator.Segment) string {
	flags := []byte("---")
	if seg.IsReadable() {
		flags[0] = 'r'
	}
	if seg.IsWritable() {
		flags[1] = 'w'
	}
	if seg.IsExecutable() {
		flags[2] = 'x'
	}
	return string(flags)
}

func newPutsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "puts <text>",
		Short: "Write text through libc puts on the host console",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := hostRuntime("", nil)
			if err != nil {
				return err
			}
			libc.Puts(rt, libc.CString(args[0]))
			rt.Putc('\n')
			return nil
		},
	}
}

func newAtoiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "atoi <text>",
		Short: "Convert text with libc atoi and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), libc.Atoi([]byte(args[0])))
			return nil
		},
	}
}
