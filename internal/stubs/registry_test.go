package stubs

import (
	"testing"

	"github.com/zboralski/rplibc/internal/emulator"
	"github.com/zboralski/rplibc/internal/emulator/emutest"
	"github.com/zboralski/rplibc/internal/libc/libctest"
	"github.com/zboralski/rplibc/internal/trace"
)

func TestRegisterAliases(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("libc", "putc", func(*Call) bool { return false }, "putchar")
	r.Register(StubDef{Name: "getc", Category: "libc", Hook: func(*Call) bool { return false }})

	if r.Count() != 3 {
		t.Errorf("Count = %d, want 3", r.Count())
	}
	want := []string{"getc", "putc", "putchar"}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	def, ok := r.Lookup("putchar")
	if !ok || def.Name != "putc" {
		t.Errorf("Lookup(putchar) = %+v, %v", def, ok)
	}
	if _, ok := r.Lookup("printf"); ok {
		t.Error("printf should not be registered")
	}
}

func TestInstall(t *testing.T) {
	emu, err := emulator.New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	// Four RETs: putc import, shared alias address, internal strlen, unknown import.
	if err := emu.LoadCode(emutest.Words(emutest.RET, emutest.RET, emutest.RET, emutest.RET)); err != nil {
		t.Fatal(err)
	}
	const (
		putcAddr    = emulator.CodeBase
		sharedAddr  = emulator.CodeBase + 4
		strlenAddr  = emulator.CodeBase + 8
		unknownAddr = emulator.CodeBase + 12
	)

	var calls []string
	hook := func(c *Call) bool {
		calls = append(calls, c.Name)
		c.Return(0x55)
		return false
	}
	r := NewRegistry()
	r.RegisterFunc("libc", "putc", hook, "putchar")
	r.RegisterFunc("libc", "getc", hook)
	r.RegisterFunc("libc", "strlen", hook)

	var events []*trace.Event
	b := r.Install(emu, Options{
		Runtime:   &libctest.Console{},
		Fallbacks: true,
		OnCall:    func(e *trace.Event) { events = append(events, e) },
	}, map[string]uint64{
		"putc":    putcAddr,
		"getc":    sharedAddr,
		"getchar": sharedAddr,
		"mystery": unknownAddr,
		"absent":  0,
	}, map[string]uint64{
		"strlen": strlenAddr,
	})

	if b.Installed() != 4 {
		t.Errorf("Installed = %d, want 4 (bound %v, fallbacks %v)", b.Installed(), b.Bound, b.Fallbacks)
	}
	if b.Bound["getc"] != sharedAddr {
		t.Errorf("getc bound at 0x%x", b.Bound["getc"])
	}
	if _, dup := b.Bound["getchar"]; dup {
		t.Error("address shared by getc and getchar is hooked once")
	}
	if len(b.Fallbacks) != 1 || b.Fallbacks[0] != "mystery" {
		t.Errorf("Fallbacks = %v", b.Fallbacks)
	}

	sentinel, _ := emu.Trap(func(*emulator.Emulator) bool { return true })
	for _, addr := range []uint64{putcAddr, strlenAddr, unknownAddr} {
		emu.SetLR(sentinel)
		if err := emu.RunFrom(addr); err != nil {
			t.Fatalf("run 0x%x: %v", addr, err)
		}
	}

	if len(calls) != 2 || calls[0] != "putc" || calls[1] != "strlen" {
		t.Errorf("calls = %v", calls)
	}
	if emu.X(0) != 0 {
		t.Errorf("fallback returned %d, want 0", emu.X(0))
	}
	if len(events) != 1 || events[0].Name != "mystery" {
		t.Errorf("events = %v", events)
	}
}

func TestInstallWithoutFallbacks(t *testing.T) {
	emu, err := emulator.New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	defer emu.Close()

	b := NewRegistry().Install(emu, Options{}, map[string]uint64{"mystery": emulator.CodeBase})
	if b.Installed() != 0 || emu.HasHook(emulator.CodeBase) {
		t.Errorf("nothing should be hooked, got %d", b.Installed())
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatHex(0); got != "0" {
		t.Errorf("FormatHex(0) = %q", got)
	}
	if got := FormatPtr("buf", 0x1000); got != "buf=0x1000" {
		t.Errorf("FormatPtr = %q", got)
	}
}
