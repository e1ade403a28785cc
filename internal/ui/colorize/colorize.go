package colorize

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
)

// IsDisabled reports whether colour output is turned off by NO_COLOR or
// RPLIBC_NO_COLOR.
func IsDisabled() bool {
	return os.Getenv("RPLIBC_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

type rgb struct{ r, g, b uint8 }

var (
	yellow    = rgb{255, 200, 0}
	pink      = rgb{255, 180, 200}
	lightGray = rgb{180, 180, 180}
	darkGray  = rgb{80, 80, 80}
	white     = rgb{255, 255, 255}
	blue      = rgb{86, 156, 214}
	magenta   = rgb{255, 128, 192}
)

func paint(c rgb, s string) string {
	if IsDisabled() || s == "" {
		return s
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s\033[0m", c.r, c.g, c.b, s)
}

// Address formats a guest address as eight or more hex digits.
func Address(addr uint64) string { return paint(yellow, fmt.Sprintf("%08X", addr)) }

// FuncName formats a symbol or stub name.
func FuncName(name string) string { return paint(yellow, name) }

// Tag formats a "#tag".
func Tag(tag string) string { return paint(pink, tag) }

// Detail formats secondary text.
func Detail(s string) string { return paint(lightGray, s) }

// HexBytes formats raw opcode bytes.
func HexBytes(s string) string { return paint(lightGray, s) }

// Border formats separators.
func Border(s string) string { return paint(darkGray, s) }

// Comment formats the trailing comment of a trace line.
func Comment(s string) string { return paint(white, s) }

// Header formats banner text.
func Header(s string) string { return paint(blue, s) }

// Error formats error text.
func Error(s string) string { return paint(magenta, s) }

// String formats quoted guest data.
func String(s string) string { return paint(magenta, s) }

var (
	chromaOnce sync.Once
	lexer      chroma.Lexer
	formatter  chroma.Formatter
)

func setupChroma() {
	for _, name := range []string{"armasm", "gas", "nasm"} {
		if l := lexers.Get(name); l != nil {
			lexer = chroma.Coalesce(l)
			break
		}
	}
	formatter = formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}
}

// Instruction highlights one line of assembly. The input is returned
// unchanged when colour is off or no lexer is available.
func Instruction(insn string) string {
	if IsDisabled() {
		return insn
	}
	chromaOnce.Do(setupChroma)
	if lexer == nil {
		return insn
	}

	it, err := lexer.Tokenise(nil, insn)
	if err != nil {
		return insn
	}
	var b strings.Builder
	if err := formatter.Format(&b, Style, it); err != nil {
		return insn
	}
	return strings.TrimSuffix(b.String(), "\n")
}
