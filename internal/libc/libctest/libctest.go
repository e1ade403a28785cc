// Package libctest provides libc.Runtime fakes for tests.
package libctest

import (
	"github.com/stretchr/testify/mock"

	"github.com/zboralski/rplibc/internal/libc"
)

// MockRuntime is a testify mock of libc.Runtime.
//
// Byte slices are copied before being recorded so expectations can be matched
// after the caller reuses its buffer. For Read, a []byte passed via Run can
// fill the destination; see FillRead.
type MockRuntime struct {
	mock.Mock
}

var _ libc.Runtime = (*MockRuntime)(nil)

func (m *MockRuntime) Putc(c byte) {
	m.Called(c)
}

func (m *MockRuntime) Getc() byte {
	args := m.Called()
	return args.Get(0).(byte)
}

func (m *MockRuntime) Open(path []byte, flags libc.OpenFlag) int {
	args := m.Called(clone(path), flags)
	return args.Int(0)
}

func (m *MockRuntime) Read(fd int, buf []byte) int {
	args := m.Called(fd, buf)
	return args.Int(0)
}

func (m *MockRuntime) Write(fd int, buf []byte) int {
	args := m.Called(fd, clone(buf))
	return args.Int(0)
}

func (m *MockRuntime) Close(fd int) int {
	args := m.Called(fd)
	return args.Int(0)
}

// FillRead returns a Run function that copies data into the Read destination.
func FillRead(data []byte) func(mock.Arguments) {
	return func(args mock.Arguments) {
		copy(args.Get(1).([]byte), data)
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

// Console is a stateless fake runtime that only records console traffic.
// File operations fail.
type Console struct {
	Out   []byte
	In    []byte
	Calls int
}

var _ libc.Runtime = (*Console)(nil)

func (c *Console) Putc(b byte) {
	c.Calls++
	c.Out = append(c.Out, b)
}

func (c *Console) Getc() byte {
	c.Calls++
	if len(c.In) == 0 {
		return 0
	}
	b := c.In[0]
	c.In = c.In[1:]
	return b
}

func (c *Console) Open([]byte, libc.OpenFlag) int { return libc.Failure }
func (c *Console) Read(int, []byte) int           { return libc.Failure }
func (c *Console) Write(int, []byte) int          { return libc.Failure }
func (c *Console) Close(int) int                  { return libc.Failure }
