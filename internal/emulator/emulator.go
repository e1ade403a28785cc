// Package emulator provides ARM64 emulation using Unicorn Engine.
package emulator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// Memory layout constants
const (
	CodeBase  = 0x00010000
	CodeSize  = 0x01000000 // 16MB for code
	StackBase = 0x80000000
	StackSize = 0x00100000 // 1MB stack
	HeapBase  = 0x90000000
	HeapSize  = 0x10000000 // 256MB heap
	TLSBase   = 0xDEAC0000 // Thread Local Storage
	TLSSize   = 0x00010000 // 64KB TLS
	StubBase  = 0xF0000000 // Trap slots for sentinels and synthetic stubs
	StubSize  = 0x00100000 // 1MB for stubs
)

// InitialSP is the stack pointer set at creation.
const InitialSP = StackBase + StackSize - 0x1000

// CanaryOffset is where the stack protector reads its guard, relative to TLSBase.
const CanaryOffset = 0x28

const pageSize = 0x1000

// retInsn is the ARM64 RET instruction (0xd65f03c0).
var retInsn = []byte{0xc0, 0x03, 0x5f, 0xd6}

// ErrInsnBudget is returned by Run when the instruction budget is exhausted.
var ErrInsnBudget = errors.New("instruction budget exhausted")

// CodeHookFunc is called for each instruction
type CodeHookFunc func(emu *Emulator, addr uint64, size uint32)

// AddressHookFunc is called when execution reaches a specific address
type AddressHookFunc func(emu *Emulator) bool // return true to stop emulation

// Emulator wraps Unicorn for ARM64 emulation
type Emulator struct {
	mu uc.Unicorn

	heapPtr uint64 // Current heap allocation pointer
	stubPtr uint64 // Next free trap slot

	codeHooks   []CodeHookFunc
	addrHooks   map[uint64]AddressHookFunc
	addrHooksMu sync.RWMutex

	maxInsn uint64
	insns   uint64
	runErr  error

	stopped bool
}

// New creates a new ARM64 emulator
func New() (*Emulator, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_ARM64, uc.MODE_ARM)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}

	emu := &Emulator{
		mu:        mu,
		heapPtr:   HeapBase,
		stubPtr:   StubBase,
		addrHooks: make(map[uint64]AddressHookFunc),
	}

	if err := emu.mapMemory(); err != nil {
		mu.Close()
		return nil, err
	}

	if err := emu.setupHooks(); err != nil {
		mu.Close()
		return nil, err
	}

	return emu, nil
}

// mapMemory sets up the memory layout
func (e *Emulator) mapMemory() error {
	regions := []struct {
		base uint64
		size uint64
		name string
	}{
		{CodeBase, CodeSize, "code"},
		{StackBase, StackSize, "stack"},
		{HeapBase, HeapSize, "heap"},
		{TLSBase, TLSSize, "tls"},
		{StubBase, StubSize, "stubs"},
	}

	for _, r := range regions {
		if err := e.mu.MemMap(r.base, r.size); err != nil {
			return fmt.Errorf("map %s (0x%x): %w", r.name, r.base, err)
		}
	}

	if err := e.mu.RegWrite(uc.ARM64_REG_SP, InitialSP); err != nil {
		return fmt.Errorf("set SP: %w", err)
	}

	// TPIDR_EL0 is the thread pointer register on ARM64
	if err := e.mu.RegWrite(uc.ARM64_REG_TPIDR_EL0, TLSBase); err != nil {
		return fmt.Errorf("set TPIDR_EL0: %w", err)
	}

	// Deterministic stack canary for reproducible runs.
	if err := e.MemWriteU64(TLSBase+CanaryOffset, 0xDEADBEEFDEADBEEF); err != nil {
		return fmt.Errorf("set stack canary: %w", err)
	}

	return nil
}

// setupHooks initializes Unicorn hooks
func (e *Emulator) setupHooks() error {
	_, err := e.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if e.stopped {
			e.mu.Stop()
			return
		}

		if e.maxInsn != 0 {
			e.insns++
			if e.insns > e.maxInsn {
				e.runErr = ErrInsnBudget
				e.Stop()
				return
			}
		}

		e.addrHooksMu.RLock()
		hook, ok := e.addrHooks[addr]
		e.addrHooksMu.RUnlock()

		if ok {
			if hook(e) {
				e.Stop()
				return
			}
		}

		for _, h := range e.codeHooks {
			h(e, addr, size)
		}
	}, 1, 0)

	return err
}

// Close releases resources
func (e *Emulator) Close() error {
	return e.mu.Close()
}

// LoadCode writes code at the code base
func (e *Emulator) LoadCode(code []byte) error {
	return e.mu.MemWrite(CodeBase, code)
}

// MapRegion maps additional memory
func (e *Emulator) MapRegion(addr, size uint64) error {
	return e.mu.MemMap(addr, size)
}

// MemRead reads bytes from memory
func (e *Emulator) MemRead(addr, size uint64) ([]byte, error) {
	return e.mu.MemRead(addr, size)
}

// MemWrite writes bytes to memory
func (e *Emulator) MemWrite(addr uint64, data []byte) error {
	return e.mu.MemWrite(addr, data)
}

// MemReadU64 reads a uint64 from memory (little endian)
func (e *Emulator) MemReadU64(addr uint64) (uint64, error) {
	data, err := e.mu.MemRead(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// MemWriteU64 writes a uint64 to memory (little endian)
func (e *Emulator) MemWriteU64(addr, val uint64) error {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, val)
	return e.mu.MemWrite(addr, data)
}

// MemReadCString reads the guest string at addr. The result includes the
// zero terminator when one is found within max bytes; otherwise it holds
// max bytes with no terminator. A max of zero or less reads until the
// terminator with no limit. Reads stop early at the first unmapped page
// once at least one byte has been read.
func (e *Emulator) MemReadCString(addr uint64, max int) ([]byte, error) {
	out := make([]byte, 0, 64)
	for max <= 0 || len(out) < max {
		// Never cross a page per read, so a string ending just before an
		// unmapped page is still readable.
		chunk := pageSize - (addr % pageSize)
		if rest := uint64(max - len(out)); max > 0 && chunk > rest {
			chunk = rest
		}
		data, err := e.mu.MemRead(addr, chunk)
		if err != nil {
			if len(out) == 0 {
				return nil, fmt.Errorf("read string at 0x%x: %w", addr, err)
			}
			return out, nil
		}
		for i, b := range data {
			if b == 0 {
				return append(out, data[:i+1]...), nil
			}
		}
		out = append(out, data...)
		addr += chunk
	}
	return out, nil
}

// MemWriteCString writes s followed by a zero byte.
func (e *Emulator) MemWriteCString(addr uint64, s string) error {
	data := append([]byte(s), 0)
	return e.mu.MemWrite(addr, data)
}

// AllocCString copies s into the heap and returns its address.
func (e *Emulator) AllocCString(s string) (uint64, error) {
	addr := e.Malloc(uint64(len(s)) + 1)
	if addr == 0 {
		return 0, fmt.Errorf("heap exhausted allocating %d bytes", len(s)+1)
	}
	if err := e.MemWriteCString(addr, s); err != nil {
		return 0, err
	}
	return addr, nil
}

// X reads general-purpose register X0-X30
func (e *Emulator) X(n int) uint64 {
	reg, ok := xreg(n)
	if !ok {
		return 0
	}
	val, _ := e.mu.RegRead(reg)
	return val
}

// SetX writes general-purpose register X0-X30
func (e *Emulator) SetX(n int, val uint64) error {
	reg, ok := xreg(n)
	if !ok {
		return fmt.Errorf("invalid register X%d", n)
	}
	return e.mu.RegWrite(reg, val)
}

// xreg maps Xn to the Unicorn register id. X29 and X30 are not contiguous
// with X0-X28 in Unicorn's numbering.
func xreg(n int) (int, bool) {
	switch {
	case n >= 0 && n <= 28:
		return uc.ARM64_REG_X0 + n, true
	case n == 29:
		return uc.ARM64_REG_X29, true
	case n == 30:
		return uc.ARM64_REG_X30, true
	}
	return 0, false
}

// PC returns the program counter
func (e *Emulator) PC() uint64 {
	pc, _ := e.mu.RegRead(uc.ARM64_REG_PC)
	return pc
}

// SetPC sets the program counter
func (e *Emulator) SetPC(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_PC, val)
}

// SP returns the stack pointer
func (e *Emulator) SP() uint64 {
	sp, _ := e.mu.RegRead(uc.ARM64_REG_SP)
	return sp
}

// SetSP sets the stack pointer
func (e *Emulator) SetSP(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_SP, val)
}

// LR returns the link register
func (e *Emulator) LR() uint64 {
	lr, _ := e.mu.RegRead(uc.ARM64_REG_LR)
	return lr
}

// SetLR sets the link register
func (e *Emulator) SetLR(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_LR, val)
}

// Malloc allocates memory from the heap (bump allocator).
// Returns 0 when the heap is exhausted.
func (e *Emulator) Malloc(size uint64) uint64 {
	// Align to 16 bytes
	size = (size + 15) & ^uint64(15)
	if e.heapPtr+size > HeapBase+HeapSize {
		return 0
	}
	addr := e.heapPtr
	e.heapPtr += size
	return addr
}

// Trap reserves a slot in the stub region holding a RET instruction and
// hooks fn at it. Used for return sentinels and for imports with no
// backing code.
func (e *Emulator) Trap(fn AddressHookFunc) (uint64, error) {
	addr := e.stubPtr
	if addr+4 > StubBase+StubSize {
		return 0, fmt.Errorf("stub region exhausted")
	}
	if err := e.mu.MemWrite(addr, retInsn); err != nil {
		return 0, fmt.Errorf("write trap at 0x%x: %w", addr, err)
	}
	e.stubPtr += 4
	e.HookAddress(addr, fn)
	return addr, nil
}

// HookCode adds a code hook called for every instruction
func (e *Emulator) HookCode(fn CodeHookFunc) {
	e.codeHooks = append(e.codeHooks, fn)
}

// HookAddress adds a hook for a specific address
func (e *Emulator) HookAddress(addr uint64, fn AddressHookFunc) {
	e.addrHooksMu.Lock()
	defer e.addrHooksMu.Unlock()
	e.addrHooks[addr] = fn
}

// RemoveAddressHook removes an address hook
func (e *Emulator) RemoveAddressHook(addr uint64) {
	e.addrHooksMu.Lock()
	defer e.addrHooksMu.Unlock()
	delete(e.addrHooks, addr)
}

// HasHook reports whether an address hook is installed at addr.
func (e *Emulator) HasHook(addr uint64) bool {
	e.addrHooksMu.RLock()
	defer e.addrHooksMu.RUnlock()
	_, ok := e.addrHooks[addr]
	return ok
}

// SetMaxInsn bounds the number of instructions a single Run may execute.
// Zero means unlimited.
func (e *Emulator) SetMaxInsn(n uint64) {
	e.maxInsn = n
}

// InsnCount returns the instructions executed by the last Run when a budget
// is set.
func (e *Emulator) InsnCount() uint64 {
	return e.insns
}

// Run starts emulation at start and runs until end, a hook stops it, or the
// instruction budget is exhausted.
func (e *Emulator) Run(start, end uint64) error {
	e.stopped = false
	e.insns = 0
	e.runErr = nil
	if err := e.mu.Start(start, end); err != nil {
		return err
	}
	return e.runErr
}

// RunFrom starts emulation at start and runs until stopped.
func (e *Emulator) RunFrom(start uint64) error {
	return e.Run(start, 0)
}

// Stop stops emulation
func (e *Emulator) Stop() {
	e.stopped = true
	e.mu.Stop()
}
