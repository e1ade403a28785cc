package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHex(t *testing.T) {
	assert.Equal(t, "0x0", Hex(0))
	assert.Equal(t, "0xdeadbeef", Hex(0xdeadbeef))
	assert.Equal(t, "0xffffffffffffffff", Hex(^uint64(0)))
}

func TestTraceCallsCallback(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	var got []string
	l.SetOnTrace(func(pc uint64, category, name, detail string) {
		got = append(got, category, name, detail)
		assert.Equal(t, uint64(0x1000), pc)
	})

	l.Trace(0x1000, "console", "putc", "'a'")

	assert.Equal(t, []string{"console", "putc", "'a'"}, got)
	entries := logs.FilterMessage("call").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "putc", entries[0].ContextMap()["fn"])
	}
}

func TestWithRunKeepsCallback(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	called := false
	l.SetOnTrace(func(uint64, string, string, string) { called = true })

	run := l.WithRun("abc")
	run.Trace(0, "file", "open", "/tmp/x")
	run.RuntimeFailure("open", -1, errors.New("boom"))

	assert.True(t, called)
	for _, e := range logs.All() {
		assert.Equal(t, "abc", e.ContextMap()["run"])
	}
	assert.Equal(t, 1, logs.FilterMessage("runtime failure").Len())
}

func TestOr(t *testing.T) {
	assert.NotNil(t, Or(nil))
	l := NewNop()
	assert.Same(t, l, Or(l))
}
