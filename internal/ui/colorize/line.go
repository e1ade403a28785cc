package colorize

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/zboralski/rplibc/internal/trace"
)

// Disasm decodes one little-endian AArch64 instruction.
func Disasm(code []byte) string {
	if len(code) < 4 {
		return "???"
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return fmt.Sprintf(".word 0x%08x", binary.LittleEndian.Uint32(code))
	}
	return inst.String()
}

func mnemonic(dis string) string {
	f := strings.Fields(dis)
	if len(f) == 0 {
		return ""
	}
	return strings.ToUpper(f[0])
}

// InsnTags classifies control-flow instructions.
func InsnTags(dis string) []string {
	switch mnemonic(dis) {
	case "BL":
		return []string{"#call"}
	case "BLR":
		return []string{"#call", "#br"}
	case "BR":
		return []string{"#br"}
	case "RET":
		return []string{"#ret"}
	case "SVC":
		return []string{"#syscall"}
	}
	return nil
}

// IsBlockEnd reports whether dis ends a basic block.
func IsBlockEnd(dis string) bool {
	m := mnemonic(dis)
	switch {
	case m == "RET", m == "BR", m == "B", m == "ERET":
		return true
	case strings.HasPrefix(m, "B."):
		return true
	case strings.HasPrefix(m, "CBZ"), strings.HasPrefix(m, "CBNZ"),
		strings.HasPrefix(m, "TBZ"), strings.HasPrefix(m, "TBNZ"):
		return true
	}
	return false
}

// commentColumn is where the "; ..." comment starts on a trace line.
const commentColumn = 50

// Line renders one executed instruction: address, opcode, disassembly, then
// a comment with tags and stub events, then the symbol at addr if any.
func Line(addr uint64, code []byte, sym string, events []*trace.Event) string {
	var b strings.Builder
	width := 0
	put := func(colored string, visible int) {
		b.WriteString(colored)
		width += visible
	}

	put(Address(addr), len(fmt.Sprintf("%08X", addr)))
	put("  ", 2)
	if len(code) >= 4 {
		hex := fmt.Sprintf("%08X", binary.LittleEndian.Uint32(code))
		put(HexBytes(hex), len(hex))
		put("  ", 2)
	}
	dis := Disasm(code)
	put(Instruction(dis), len(dis))

	tags := InsnTags(dis)
	var details []string
	for _, e := range events {
		tags = append(tags, e.Tags.Strings()...)
		details = append(details, strings.TrimSpace(e.Name+" "+e.Detail))
	}

	if len(tags) > 0 || len(details) > 0 {
		for width < commentColumn {
			put(" ", 1)
		}
		parts := make([]string, 0, 2)
		if len(tags) > 0 {
			parts = append(parts, strings.Join(tags, " "))
		}
		if len(details) > 0 {
			parts = append(parts, strings.Join(details, ", "))
		}
		put(Comment("; "+strings.Join(parts, " ")), 0)
	}

	if sym != "" {
		b.WriteString("  ")
		b.WriteString(FuncName(sym))
	}
	return b.String()
}

// Event renders a stub event on its own line, for events that were not
// attached to an instruction.
func Event(e *trace.Event) string {
	var b strings.Builder
	b.WriteString(Tag(e.PrimaryTag()))
	b.WriteByte(' ')
	b.WriteString(FuncName(e.Name))
	if e.Detail != "" {
		b.WriteByte(' ')
		b.WriteString(Detail(e.Detail))
	}
	return b.String()
}
