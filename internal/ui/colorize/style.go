// Package colorize renders rplibc trace output for a terminal: ARM64
// disassembly highlighted with chroma, plus ANSI colouring for addresses,
// stub names, tags and details.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// StyleName is the chroma style registered by this package.
const StyleName = "rplibc-dark"

// Palette.
const (
	ColorText     = "#FFFFFF"
	ColorRegister = "#87CEEB"
	ColorNumber   = "#FF80C0"
	ColorLabel    = "#FFC800"
	ColorComment  = "#FF8000"
	ColorString   = "#00FF00"
)

// Style is the disassembly style, dark background with IDA-like colours.
var Style = styles.Register(chroma.MustNewStyle(StyleName, chroma.StyleEntries{
	chroma.Background:     "bg:#000000",
	chroma.Text:           ColorText,
	chroma.Comment:        ColorComment,
	chroma.CommentPreproc: ColorComment,

	chroma.Keyword:       ColorText,
	chroma.KeywordPseudo: ColorText,
	chroma.NameFunction:  ColorText,
	chroma.Name:          ColorRegister,
	chroma.NameBuiltin:   ColorRegister,
	chroma.NameVariable:  ColorRegister,
	chroma.NameLabel:     ColorLabel,

	chroma.LiteralNumber:        ColorNumber,
	chroma.LiteralNumberHex:     ColorNumber,
	chroma.LiteralNumberInteger: ColorNumber,

	chroma.Operator:    ColorText,
	chroma.Punctuation: ColorText,
	chroma.String:      ColorString,
}))
