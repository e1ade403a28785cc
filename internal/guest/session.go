// Package guest runs freestanding ARM64 programs against a libc.Runtime.
//
// A session loads one ELF image, binds the registered libc stubs to the
// image's imports and to any internal definitions of the same names, then
// calls main(argc, argv) the way the C runtime's _start does.
package guest

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zboralski/rplibc/internal/emulator"
	"github.com/zboralski/rplibc/internal/libc"
	glog "github.com/zboralski/rplibc/internal/log"
	"github.com/zboralski/rplibc/internal/stubs"
	_ "github.com/zboralski/rplibc/internal/stubs/all"
	"github.com/zboralski/rplibc/internal/trace"
)

// DefaultEntry is the symbol called by Run.
const DefaultEntry = "main"

// ErrNotLoaded is returned by Run before an image is loaded.
var ErrNotLoaded = errors.New("no guest image loaded")

// Options configures a Session.
type Options struct {
	Runtime libc.Runtime
	Logger  *glog.Logger

	Entry     string // symbol to call; DefaultEntry when empty
	Fallbacks bool   // return-0 stubs for unknown imports
	MaxString int    // guest path length limit
	MaxInsn   uint64 // instruction budget per Run; 0 = unlimited

	// OnCall receives one event per stub call.
	OnCall func(e *trace.Event)
}

// Session owns an emulator with one loaded guest image.
type Session struct {
	Emu     *emulator.Emulator
	Info    *emulator.ELFInfo
	Binding *stubs.Binding

	opts     Options
	log      *glog.Logger
	sentinel uint64
	returned bool
}

// New creates a session with a fresh emulator.
func New(opts Options) (*Session, error) {
	if opts.Runtime == nil {
		return nil, errors.New("guest: nil runtime")
	}
	if opts.Entry == "" {
		opts.Entry = DefaultEntry
	}

	emu, err := emulator.New()
	if err != nil {
		return nil, err
	}

	s := &Session{Emu: emu, opts: opts, log: glog.Or(opts.Logger)}
	s.sentinel, err = emu.Trap(func(*emulator.Emulator) bool {
		s.returned = true
		return true
	})
	if err != nil {
		emu.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the emulator.
func (s *Session) Close() error {
	return s.Emu.Close()
}

// LoadFile loads the ELF at path and binds stubs.
func (s *Session) LoadFile(path string) error {
	info, err := s.Emu.LoadELF(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	s.bind(info)
	return nil
}

// LoadBytes loads an in-memory ELF image and binds stubs.
func (s *Session) LoadBytes(data []byte) error {
	info, err := s.Emu.LoadELFBytes(data, 0)
	if err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	s.bind(info)
	return nil
}

func (s *Session) bind(info *emulator.ELFInfo) {
	s.Info = info
	s.Binding = stubs.Install(s.Emu, stubs.Options{
		Runtime:   s.opts.Runtime,
		Logger:    s.log,
		Fallbacks: s.opts.Fallbacks,
		MaxString: s.opts.MaxString,
		OnCall:    s.opts.OnCall,
	}, info.Imports, info.Symbols)

	s.log.Debug("guest loaded",
		glog.Ptr("base", info.BaseAddr),
		glog.Ptr("entry", info.Entry),
		zap.Int("bound", len(s.Binding.Bound)),
		zap.Int("fallbacks", len(s.Binding.Fallbacks)),
	)
}

// SplitArgs splits a command line on ASCII whitespace.
func SplitArgs(cmdline string) []string {
	return strings.FieldsFunc(cmdline, isASCIISpace)
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}

// RunCommandLine splits cmdline into arguments and calls Run.
func (s *Session) RunCommandLine(cmdline string) (int, error) {
	return s.Run(SplitArgs(cmdline)...)
}

// Run calls the entry symbol with argc and a NULL-terminated argv copied
// into guest memory. The status is the value main returned, truncated to a
// C int, or the code passed to exit.
func (s *Session) Run(args ...string) (int, error) {
	if s.Info == nil {
		return 0, ErrNotLoaded
	}
	entry := s.Info.FindSymbol(s.opts.Entry)
	if entry == 0 {
		return 0, fmt.Errorf("entry symbol %q not found", s.opts.Entry)
	}

	argv, err := s.argv(args)
	if err != nil {
		return 0, err
	}

	s.Binding.Reset()
	s.returned = false
	s.Emu.SetMaxInsn(s.opts.MaxInsn)
	if err := s.Emu.SetSP(emulator.InitialSP); err != nil {
		return 0, fmt.Errorf("set SP: %w", err)
	}
	if err := s.Emu.SetX(0, uint64(len(args))); err != nil {
		return 0, fmt.Errorf("set argc: %w", err)
	}
	if err := s.Emu.SetX(1, argv); err != nil {
		return 0, fmt.Errorf("set argv: %w", err)
	}
	if err := s.Emu.SetLR(s.sentinel); err != nil {
		return 0, fmt.Errorf("set LR: %w", err)
	}

	s.log.Debug("call entry", zap.String("fn", s.opts.Entry), glog.Addr(entry), zap.Strings("argv", args))
	if err := s.Emu.RunFrom(entry); err != nil {
		return 0, fmt.Errorf("run %s at %s: %w", s.opts.Entry, glog.Hex(s.Emu.PC()), err)
	}

	if code, ok := s.Binding.Exited(); ok {
		return code, nil
	}
	if !s.returned {
		return 0, fmt.Errorf("%s stopped at %s without returning", s.opts.Entry, glog.Hex(s.Emu.PC()))
	}
	return int(int32(s.Emu.X(0))), nil
}

func (s *Session) argv(args []string) (uint64, error) {
	ptrs := make([]uint64, 0, len(args)+1)
	for _, a := range args {
		p, err := s.Emu.AllocCString(a)
		if err != nil {
			return 0, fmt.Errorf("copy argument: %w", err)
		}
		ptrs = append(ptrs, p)
	}
	ptrs = append(ptrs, 0)

	argv := s.Emu.Malloc(uint64(8 * len(ptrs)))
	if argv == 0 {
		return 0, errors.New("heap exhausted building argv")
	}
	for i, p := range ptrs {
		if err := s.Emu.MemWriteU64(argv+uint64(8*i), p); err != nil {
			return 0, fmt.Errorf("write argv[%d]: %w", i, err)
		}
	}
	return argv, nil
}
