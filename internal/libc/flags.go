package libc

import "strings"

// OpenFlag is the flags argument of Open.
//
// Bit positions follow the POSIX/Linux generic layout so guests built against
// a POSIX header pass the same numeric values. The access mode occupies the
// low two bits and must be extracted with O_ACCMODE before comparison.
type OpenFlag uint32

const (
	O_RDONLY    OpenFlag = 0x0
	O_WRONLY    OpenFlag = 0x1
	O_RDWR      OpenFlag = 0x2
	O_CREAT     OpenFlag = 0x40
	O_EXCL      OpenFlag = 0x80
	O_TRUNC     OpenFlag = 0x200
	O_APPEND    OpenFlag = 0x400
	O_NONBLOCK  OpenFlag = 0x800
	O_DIRECTORY OpenFlag = 0x10000
	O_NOFOLLOW  OpenFlag = 0x20000
	O_CLOEXEC   OpenFlag = 0x80000

	O_ACCMODE = O_RDONLY | O_WRONLY | O_RDWR
)

// AccessMode returns the access-mode sub-field (O_RDONLY, O_WRONLY or O_RDWR).
func (f OpenFlag) AccessMode() OpenFlag {
	return f & O_ACCMODE
}

// Has reports whether every modifier bit of m is set in f.
// Access-mode values are not bits; compare AccessMode instead.
func (f OpenFlag) Has(m OpenFlag) bool {
	return f&m == m
}

// Readable reports whether the access mode permits reading.
func (f OpenFlag) Readable() bool {
	mode := f.AccessMode()
	return mode == O_RDONLY || mode == O_RDWR
}

// Writable reports whether the access mode permits writing.
func (f OpenFlag) Writable() bool {
	mode := f.AccessMode()
	return mode == O_WRONLY || mode == O_RDWR
}

var modifierNames = []struct {
	flag OpenFlag
	name string
}{
	{O_CREAT, "O_CREAT"},
	{O_EXCL, "O_EXCL"},
	{O_TRUNC, "O_TRUNC"},
	{O_APPEND, "O_APPEND"},
	{O_NONBLOCK, "O_NONBLOCK"},
	{O_DIRECTORY, "O_DIRECTORY"},
	{O_NOFOLLOW, "O_NOFOLLOW"},
	{O_CLOEXEC, "O_CLOEXEC"},
}

// String renders the flags as a C expression, e.g. "O_RDWR|O_CREAT".
// Unknown bits are appended in hex.
func (f OpenFlag) String() string {
	var parts []string
	switch f.AccessMode() {
	case O_RDONLY:
		parts = append(parts, "O_RDONLY")
	case O_WRONLY:
		parts = append(parts, "O_WRONLY")
	case O_RDWR:
		parts = append(parts, "O_RDWR")
	default:
		parts = append(parts, "O_ACCMODE")
	}

	rest := f &^ O_ACCMODE
	for _, m := range modifierNames {
		if rest&m.flag != 0 {
			parts = append(parts, m.name)
			rest &^= m.flag
		}
	}
	if rest != 0 {
		parts = append(parts, "0x"+hex(uint64(rest)))
	}
	return strings.Join(parts, "|")
}

func hex(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}
