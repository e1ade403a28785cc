package emulator

import (
	"errors"
	"strings"
	"testing"

	"github.com/zboralski/rplibc/internal/emulator/emutest"
)

// MOV X0, #5; MOV X1, #3; ADD X2, X0, X1; RET
var addTestCode = []byte{
	0xa0, 0x00, 0x80, 0xd2, // MOV X0, #5
	0x61, 0x00, 0x80, 0xd2, // MOV X1, #3
	0x02, 0x00, 0x01, 0x8b, // ADD X2, X0, X1
	0xc0, 0x03, 0x5f, 0xd6, // RET
}

func newEmu(t *testing.T) *Emulator {
	t.Helper()
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	t.Cleanup(func() { emu.Close() })
	return emu
}

func TestEmulatorBasic(t *testing.T) {
	emu := newEmu(t)

	if err := emu.LoadCode(addTestCode); err != nil {
		t.Fatalf("Failed to load code: %v", err)
	}

	// RET lands on the sentinel and emulation stops there
	stopped := false
	sentinel, err := emu.Trap(func(*Emulator) bool {
		stopped = true
		return true
	})
	if err != nil {
		t.Fatalf("Failed to reserve trap: %v", err)
	}
	if err := emu.SetLR(sentinel); err != nil {
		t.Fatalf("Failed to set LR: %v", err)
	}

	if err := emu.RunFrom(CodeBase); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !stopped {
		t.Error("sentinel hook was not reached")
	}
	if x2 := emu.X(2); x2 != 8 {
		t.Errorf("Expected X2=8, got X2=%d", x2)
	}
	if emu.X(0) != 5 {
		t.Errorf("Expected X0=5, got X0=%d", emu.X(0))
	}
	if emu.X(1) != 3 {
		t.Errorf("Expected X1=3, got X1=%d", emu.X(1))
	}
}

func TestRegisters(t *testing.T) {
	emu := newEmu(t)

	for _, n := range []int{0, 7, 28, 29, 30} {
		want := uint64(0x1000 + n)
		if err := emu.SetX(n, want); err != nil {
			t.Fatalf("SetX(%d): %v", n, err)
		}
		if got := emu.X(n); got != want {
			t.Errorf("X%d = 0x%x, want 0x%x", n, got, want)
		}
	}
	if emu.LR() != emu.X(30) {
		t.Errorf("LR 0x%x != X30 0x%x", emu.LR(), emu.X(30))
	}
	if err := emu.SetX(31, 1); err == nil {
		t.Error("SetX(31) should fail")
	}
	if emu.X(-1) != 0 {
		t.Error("X(-1) should read as 0")
	}
	if sp := emu.SP(); sp < StackBase || sp >= StackBase+StackSize {
		t.Errorf("SP 0x%x outside stack", sp)
	}
}

func TestMemoryOperations(t *testing.T) {
	emu := newEmu(t)

	addr := uint64(HeapBase)
	val := uint64(0x123456789ABCDEF0)
	if err := emu.MemWriteU64(addr, val); err != nil {
		t.Fatalf("Failed to write U64: %v", err)
	}
	readVal, err := emu.MemReadU64(addr)
	if err != nil {
		t.Fatalf("Failed to read U64: %v", err)
	}
	if readVal != val {
		t.Errorf("U64 mismatch: wrote 0x%x, read 0x%x", val, readVal)
	}

	strAddr, err := emu.AllocCString("Hello, rplibc!")
	if err != nil {
		t.Fatalf("AllocCString: %v", err)
	}
	got, err := emu.MemReadCString(strAddr, 64)
	if err != nil {
		t.Fatalf("MemReadCString: %v", err)
	}
	if string(got) != "Hello, rplibc!\x00" {
		t.Errorf("read %q, want terminator included", got)
	}

	canary, err := emu.MemReadU64(TLSBase + CanaryOffset)
	if err != nil || canary == 0 {
		t.Errorf("stack canary = 0x%x, err %v", canary, err)
	}
}

func TestMemReadCStringBounds(t *testing.T) {
	emu := newEmu(t)

	// Truncated at max with no terminator.
	addr, _ := emu.AllocCString("abcdefgh")
	got, err := emu.MemReadCString(addr, 4)
	if err != nil || string(got) != "abcd" {
		t.Errorf("max=4: got %q, %v", got, err)
	}

	// A string crossing a page boundary is read whole.
	cross := uint64(HeapBase + 0x2000 - 3)
	if err := emu.MemWriteCString(cross, "split"); err != nil {
		t.Fatal(err)
	}
	got, _ = emu.MemReadCString(cross, 100)
	if string(got) != "split\x00" {
		t.Errorf("page crossing: got %q", got)
	}

	// Unterminated text at the end of a mapped region stops there.
	end := uint64(TLSBase + TLSSize - 3)
	if err := emu.MemWrite(end, []byte("xyz")); err != nil {
		t.Fatal(err)
	}
	got, err = emu.MemReadCString(end, 100)
	if err != nil || string(got) != "xyz" {
		t.Errorf("region end: got %q, %v", got, err)
	}

	if _, err := emu.MemReadCString(0x8, 16); err == nil {
		t.Error("unmapped address should fail")
	}
	if got, err := emu.MemReadCString(addr, 0); err != nil || string(got) != "abcdefgh\x00" {
		t.Errorf("max=0: got %q, %v", got, err)
	}

	// Unlimited reads cross as many pages as the string spans.
	long := strings.Repeat("L", 3*pageSize+17)
	addr, _ = emu.AllocCString(long)
	got, err = emu.MemReadCString(addr, 0)
	if err != nil || string(got) != long+"\x00" {
		t.Errorf("unlimited: got %d bytes, %v", len(got), err)
	}
}

func TestMalloc(t *testing.T) {
	emu := newEmu(t)

	addr1 := emu.Malloc(100)
	addr2 := emu.Malloc(200)
	addr3 := emu.Malloc(50)

	for i, a := range []uint64{addr1, addr2, addr3} {
		if a%16 != 0 {
			t.Errorf("addr%d not 16-byte aligned: 0x%x", i+1, a)
		}
	}
	if addr2 < addr1+112 {
		t.Errorf("addr2 overlaps addr1")
	}
	if addr3 < addr2+208 {
		t.Errorf("addr3 overlaps addr2")
	}
	if emu.Malloc(HeapSize) != 0 {
		t.Error("oversized allocation should return 0")
	}
}

func TestAddressHook(t *testing.T) {
	emu := newEmu(t)

	if err := emu.LoadCode(addTestCode); err != nil {
		t.Fatalf("Failed to load code: %v", err)
	}

	hookCalled := false
	emu.HookAddress(CodeBase+4, func(e *Emulator) bool {
		hookCalled = true
		return false
	})
	if !emu.HasHook(CodeBase + 4) {
		t.Fatal("HasHook should report the installed hook")
	}

	emu.SetLR(0xDEADBEEF)
	_ = emu.Run(CodeBase, CodeBase+uint64(len(addTestCode)))

	if !hookCalled {
		t.Error("Address hook was not called")
	}
	// Hooks run before the instruction; MOV X1, #3 still executes.
	if emu.X(1) != 3 {
		t.Errorf("X1 = %d, want 3", emu.X(1))
	}

	emu.RemoveAddressHook(CodeBase + 4)
	if emu.HasHook(CodeBase + 4) {
		t.Error("hook should be removed")
	}
}

func TestCodeHook(t *testing.T) {
	emu := newEmu(t)

	if err := emu.LoadCode(addTestCode); err != nil {
		t.Fatalf("Failed to load code: %v", err)
	}

	instrCount := 0
	emu.HookCode(func(e *Emulator, addr uint64, size uint32) {
		instrCount++
	})

	emu.SetLR(0xDEADBEEF)
	_ = emu.Run(CodeBase, CodeBase+uint64(len(addTestCode)))

	if instrCount != 4 {
		t.Errorf("Expected 4 instructions, got %d", instrCount)
	}
}

func TestInstructionBudget(t *testing.T) {
	emu := newEmu(t)

	// b . (spin forever)
	if err := emu.LoadCode(emutest.Words(emutest.B(CodeBase, CodeBase))); err != nil {
		t.Fatal(err)
	}
	emu.SetMaxInsn(50)

	err := emu.RunFrom(CodeBase)
	if !errors.Is(err, ErrInsnBudget) {
		t.Fatalf("Run = %v, want ErrInsnBudget", err)
	}
	if emu.InsnCount() <= 50 {
		t.Errorf("InsnCount = %d, want more than the budget", emu.InsnCount())
	}
}
