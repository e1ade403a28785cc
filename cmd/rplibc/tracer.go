package main

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/zboralski/rplibc/internal/emulator"
	"github.com/zboralski/rplibc/internal/guest"
	"github.com/zboralski/rplibc/internal/trace"
	"github.com/zboralski/rplibc/internal/ui/colorize"
)

// lineWriter streams trace lines through a buffered writer that a
// background goroutine flushes periodically, so output keeps pace with the
// guest's own console writes.
type lineWriter struct {
	ch   chan string
	done chan struct{}
	w    *bufio.Writer
}

func newLineWriter(w io.Writer) *lineWriter {
	lw := &lineWriter{
		ch:   make(chan string, 1024),
		done: make(chan struct{}),
		w:    bufio.NewWriterSize(w, 64*1024),
	}
	go lw.run()
	return lw
}

func (lw *lineWriter) run() {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case line, ok := <-lw.ch:
			if !ok {
				lw.w.Flush()
				close(lw.done)
				return
			}
			lw.w.WriteString(line)
			lw.w.WriteByte('\n')
		case <-tick.C:
			lw.w.Flush()
		}
	}
}

func (lw *lineWriter) Write(line string) { lw.ch <- line }

func (lw *lineWriter) Close() {
	close(lw.ch)
	<-lw.done
}

// tracer prints each executed instruction with the stub calls made at it.
// Stub events arrive from address hooks, which run before code hooks for
// the same address, so pending events belong to the next printed line.
type tracer struct {
	out     *lineWriter
	limit   int
	count   int
	calls   int
	pending []*trace.Event
	symbols map[uint64]string
}

func newTracer(w io.Writer, limit int) *tracer {
	return &tracer{out: newLineWriter(w), limit: limit}
}

func (t *tracer) onCall(e *trace.Event) {
	t.calls++
	if t.count < t.limit {
		t.pending = append(t.pending, e)
	}
}

// attach prints the header and hooks every instruction of s.
func (t *tracer) attach(s *guest.Session, entry string) {
	info := s.Info
	t.symbols = make(map[uint64]string, len(info.Symbols))
	for name, addr := range info.Symbols {
		if cur, ok := t.symbols[addr]; !ok || len(name) < len(cur) {
			t.symbols[addr] = name
		}
	}

	t.out.Write("")
	t.out.Write(fmt.Sprintf("%s rplibc %s", colorize.Header("▶"), info.Path))
	t.out.Write(fmt.Sprintf("  %s %s  %s %s",
		colorize.Detail("Base:"), colorize.Address(info.BaseAddr),
		colorize.Detail(entry+":"), colorize.Address(info.FindSymbol(entry))))
	t.out.Write(fmt.Sprintf("  %s %s  %s %s",
		colorize.Detail("Stubs:"), colorize.FuncName(fmt.Sprint(len(s.Binding.Bound))),
		colorize.Detail("Fallbacks:"), colorize.FuncName(fmt.Sprint(len(s.Binding.Fallbacks)))))
	t.out.Write("")

	s.Emu.HookCode(func(e *emulator.Emulator, addr uint64, size uint32) {
		t.count++
		if t.count > t.limit {
			return
		}
		code, _ := e.MemRead(addr, 4)
		t.out.Write(colorize.Line(addr, code, t.symbols[addr], t.pending))
		t.pending = nil
		if colorize.IsBlockEnd(colorize.Disasm(code)) {
			t.out.Write("")
		}
	})
}

// finish prints events that never reached an instruction, such as exit,
// then a summary, and flushes.
func (t *tracer) finish(status int, err error) {
	for _, e := range t.pending {
		t.out.Write(colorize.Event(e))
	}
	t.pending = nil

	summary := colorize.Border("──────────────────────────────── ") +
		fmt.Sprintf("%s insn  %s calls  %s %d",
			colorize.FuncName(fmt.Sprint(t.count)),
			colorize.FuncName(fmt.Sprint(t.calls)),
			colorize.Detail("status"), status)
	if err != nil {
		summary += "  " + colorize.Error(err.Error())
	}
	t.out.Write("")
	t.out.Write(summary)
	t.out.Close()
}
