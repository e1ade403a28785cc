// Package stubs provides a registry for self-registering hook implementations.
// Each stub package uses init() to register its hooks; Install binds them to
// an emulator and a libc.Runtime for one guest session.
package stubs

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/zboralski/rplibc/internal/emulator"
	"github.com/zboralski/rplibc/internal/libc"
	glog "github.com/zboralski/rplibc/internal/log"
	"github.com/zboralski/rplibc/internal/trace"
)

// HookFunc is the signature for stub hook functions.
// Returns true to stop emulation, false to continue.
type HookFunc func(c *Call) bool

// StubDef defines a stub with its symbol name and hook function.
type StubDef struct {
	Name     string   // Symbol name (e.g., "putc", "open")
	Aliases  []string // Alternative symbol names
	Hook     HookFunc
	Category string // For logging: "libc", "console", "file"
}

// Registry holds all registered stub definitions.
type Registry struct {
	mu    sync.RWMutex
	stubs map[string]*StubDef // symbol name -> stub definition
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new stub registry.
func NewRegistry() *Registry {
	return &Registry{
		stubs: make(map[string]*StubDef),
	}
}

// Register adds a stub definition to the registry.
// Called from init() functions in stub packages.
func (r *Registry) Register(def StubDef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stubs[def.Name] = &def
	for _, alias := range def.Aliases {
		r.stubs[alias] = &def
	}
}

// RegisterFunc is a convenience method to register a simple stub.
func (r *Registry) RegisterFunc(category, name string, hook HookFunc, aliases ...string) {
	r.Register(StubDef{
		Name:     name,
		Aliases:  aliases,
		Hook:     hook,
		Category: category,
	})
}

// Lookup returns the stub registered under name.
func (r *Registry) Lookup(name string) (*StubDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.stubs[name]
	return def, ok
}

// Count returns the number of registered stubs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stubs)
}

// List returns all registered symbol names, aliases included, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stubs))
	for name := range r.stubs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options configures one Install.
type Options struct {
	Runtime libc.Runtime
	Logger  *glog.Logger

	// Fallbacks installs return-0 stubs for imports with no definition.
	Fallbacks bool

	// MaxString bounds guest path reads, terminator included; zero means
	// DefaultMaxString. Other strings are read to their terminator.
	MaxString int

	// OnCall receives one event per stub call.
	OnCall func(e *trace.Event)
}

// DefaultMaxString bounds guest path reads when Options.MaxString is zero.
const DefaultMaxString = 4096

// Binding is the result of installing a registry into one emulator.
type Binding struct {
	opts Options
	log  *glog.Logger

	Bound     map[string]uint64 // symbol -> hooked address
	Fallbacks []string          // imports hooked with the return-0 fallback

	exited   bool
	exitCode int
}

// Install hooks all registered stubs at their import addresses.
// When opts.Fallbacks is set, also installs no-op stubs for unstubbed imports.
//
// Parameters:
//   - imports: PLT stub addresses for external symbols (fallbacks applied here)
//   - symbols: Optional additional symbols to search (internal functions, no fallbacks)
func (r *Registry) Install(emu *emulator.Emulator, opts Options, imports map[string]uint64, symbols ...map[string]uint64) *Binding {
	if opts.MaxString <= 0 {
		opts.MaxString = DefaultMaxString
	}
	b := &Binding{
		opts:  opts,
		log:   glog.Or(opts.Logger),
		Bound: make(map[string]uint64),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uint64]bool) // Avoid double-hooking same address

	installStub := func(name string, def *StubDef, addr uint64, source string) {
		if seen[addr] {
			return
		}
		seen[addr] = true
		b.Bound[name] = addr

		stub := def
		symName := name
		emu.HookAddress(addr, func(e *emulator.Emulator) bool {
			return stub.Hook(&Call{Emu: e, Runtime: opts.Runtime, Name: symName, Category: stub.Category, b: b})
		})
		b.log.StubInstall(def.Category, name, addr, source)
	}

	// Sorted so aliases sharing an address bind deterministically.
	names := make([]string, 0, len(r.stubs))
	for name := range r.stubs {
		names = append(names, name)
	}
	sort.Strings(names)

	// First pass: imports (PLT entries)
	for _, name := range names {
		if addr, ok := imports[name]; ok && addr != 0 {
			installStub(name, r.stubs[name], addr, "import")
		}
	}

	// Second pass: internal definitions, which stubs override
	for _, syms := range symbols {
		for _, name := range names {
			if addr, ok := syms[name]; ok && addr != 0 {
				installStub(name, r.stubs[name], addr, "internal")
			}
		}
	}

	if opts.Fallbacks {
		fallbacks := make([]string, 0)
		for name, addr := range imports {
			if addr == 0 || seen[addr] {
				continue
			}
			seen[addr] = true
			fallbacks = append(fallbacks, name)

			symName := name
			emu.HookAddress(addr, func(e *emulator.Emulator) bool {
				b.log.StubFallback(symName)
				c := &Call{Emu: e, Runtime: opts.Runtime, Name: symName, Category: string(trace.Fallback), b: b}
				c.LogResult("", 0)
				c.Return(0)
				return false
			})
			b.log.Debug("installed fallback", zap.String("fn", name), glog.Addr(addr))
		}
		sort.Strings(fallbacks)
		b.Fallbacks = fallbacks
	}

	return b
}

// Installed returns the number of hooked addresses.
func (b *Binding) Installed() int {
	return len(b.Bound) + len(b.Fallbacks)
}

// Exited reports whether the guest called exit or abort, and the status.
func (b *Binding) Exited() (code int, ok bool) {
	return b.exitCode, b.exited
}

// Reset clears the recorded exit status.
func (b *Binding) Reset() {
	b.exited = false
	b.exitCode = 0
}

// Call is the context handed to a stub hook.
type Call struct {
	Emu      *emulator.Emulator
	Runtime  libc.Runtime
	Name     string // symbol the guest called
	Category string

	b *Binding
}

// Arg returns the n-th integer argument (X0..X7).
func (c *Call) Arg(n int) uint64 {
	return c.Emu.X(n)
}

// IntArg returns the n-th argument as a C int.
func (c *Call) IntArg(n int) int {
	return int(int32(c.Emu.X(n)))
}

// String reads the guest C string at addr up to its terminator, however far
// that is, terminator included. A null or unreadable pointer reads as nil.
func (c *Call) String(addr uint64) []byte {
	if addr == 0 {
		return nil
	}
	s, err := c.Emu.MemReadCString(addr, 0)
	if err != nil {
		c.b.log.Debug("bad string pointer", glog.Fn(c.Name), glog.Ptr("ptr", addr), zap.Error(err))
		return nil
	}
	return s
}

// Path reads the guest path at addr, terminator included. ok is false for a
// NULL or unreadable pointer and for a path with no terminator within
// Options.MaxString bytes.
func (c *Call) Path(addr uint64) (path []byte, ok bool) {
	if addr == 0 {
		return nil, false
	}
	s, err := c.Emu.MemReadCString(addr, c.b.opts.MaxString)
	if err != nil {
		c.b.log.Debug("bad path pointer", glog.Fn(c.Name), glog.Ptr("ptr", addr), zap.Error(err))
		return nil, false
	}
	if len(s) == 0 || s[len(s)-1] != 0 {
		c.b.log.Debug("path too long", glog.Fn(c.Name), glog.Ptr("ptr", addr), zap.Int("max", c.b.opts.MaxString))
		return nil, false
	}
	return s, true
}

// Return writes v to X0 and returns to the caller.
func (c *Call) Return(v uint64) {
	c.Emu.SetX(0, v)
	ReturnFromStub(c.Emu)
}

// ReturnInt sign-extends v into X0 and returns to the caller.
func (c *Call) ReturnInt(v int) {
	c.Return(uint64(int64(v)))
}

// Exit records the guest exit status. Hooks return its result to stop
// emulation.
func (c *Call) Exit(code int) bool {
	c.b.exited = true
	c.b.exitCode = code
	return true
}

// Log reports the call through OnCall and zap.
func (c *Call) Log(detail string) {
	c.emit(detail, "")
}

// LogResult reports detail with the integer result appended.
func (c *Call) LogResult(detail string, ret int) {
	r := strconv.Itoa(ret)
	if detail != "" {
		detail += " "
	}
	c.emit(detail+"-> "+r, r)
}

func (c *Call) emit(detail, ret string) {
	pc := c.Emu.LR() // Return address of stub call
	c.b.log.Trace(pc, c.Category, c.Name, detail)

	if c.b.opts.OnCall == nil {
		return
	}
	e := trace.NewEvent(pc, c.Category, c.Name, detail)
	if ret != "" {
		e.Annotate("ret", ret)
	}
	trace.DefaultEnricher(e)
	c.b.opts.OnCall(e)
}

// Convenience functions for the default registry

// Register adds a stub to the default registry.
func Register(def StubDef) {
	DefaultRegistry.Register(def)
}

// RegisterFunc adds a simple stub to the default registry.
func RegisterFunc(category, name string, hook HookFunc, aliases ...string) {
	DefaultRegistry.RegisterFunc(category, name, hook, aliases...)
}

// Install hooks all stubs in the default registry.
func Install(emu *emulator.Emulator, opts Options, imports map[string]uint64, symbols ...map[string]uint64) *Binding {
	return DefaultRegistry.Install(emu, opts, imports, symbols...)
}

// Helper functions for stubs

// ReturnFromStub sets PC to LR to return from the current function.
func ReturnFromStub(emu *emulator.Emulator) {
	emu.SetPC(emu.LR())
}

// FormatHex formats a value as hex string.
func FormatHex(v uint64) string {
	if v == 0 {
		return "0"
	}
	return fmt.Sprintf("0x%x", v)
}

// FormatPtr formats name=value pairs.
func FormatPtr(name string, val uint64) string {
	return name + "=" + FormatHex(val)
}
