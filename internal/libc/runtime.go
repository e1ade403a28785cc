// Package libc is the minimal C library surface exposed to freestanding guest
// programs: six byte I/O primitives supplied by an external runtime, the
// open(2) flag bits, and a couple of helpers built on top of them.
//
// Strings are borrowed byte slices. A string ends at its first zero byte or at
// the end of the slice, whichever comes first. The caller owns the buffer and
// its termination; nothing here retains a slice past the call that received it.
package libc

// Failure is the value runtimes return from Open, Read, Write and Close when
// the operation could not be carried out.
const Failure = -1

// Runtime is the external collaborator that implements the primitive
// operations. Implementations decide descriptor validity, end-of-stream
// behaviour and failure encoding; this package never inspects their results.
type Runtime interface {
	// Putc writes one byte to standard output.
	Putc(c byte)

	// Getc returns the next byte of standard input.
	Getc() byte

	// Open opens path and returns a descriptor, or a negative value on failure.
	Open(path []byte, flags OpenFlag) int

	// Read reads at most len(buf) bytes from fd into buf and returns the count.
	Read(fd int, buf []byte) int

	// Write writes buf to fd and returns the number of bytes written.
	Write(fd int, buf []byte) int

	// Close releases fd. The descriptor must not be used afterwards.
	Close(fd int) int
}

// Failed reports whether a primitive's return value signals failure.
func Failed(ret int) bool {
	return ret < 0
}
