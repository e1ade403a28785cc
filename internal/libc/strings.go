package libc

// Puts writes s to standard output one byte at a time through rt.Putc.
// The terminating zero byte is not written.
func Puts(rt Runtime, s []byte) {
	for _, c := range s {
		if c == 0 {
			return
		}
		rt.Putc(c)
	}
}

// Atoi folds the digits of s into an int32 with r = r*10 + (c - '0').
//
// Every byte up to the terminator goes through the same arithmetic: there is
// no sign handling, no validation and no overflow check. "-5" yields -25 and
// "12x3" yields 1923; long inputs wrap like a C int.
func Atoi(s []byte) int32 {
	var r int32
	for _, c := range s {
		if c == 0 {
			break
		}
		r = r*10 + int32(c) - '0'
	}
	return r
}

// Strlen returns the number of bytes before the terminator.
func Strlen(s []byte) int {
	for i, c := range s {
		if c == 0 {
			return i
		}
	}
	return len(s)
}

// CString returns s as a zero-terminated byte slice suitable for passing to
// Open or Puts.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// GoString returns the bytes of s before the terminator as a Go string.
func GoString(s []byte) string {
	return string(s[:Strlen(s)])
}
