package console

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkLogLineFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Server.log")
	sink := NewSink(path, nil)

	sink.Info("server started")

	lines := sink.drain()
	require.Len(t, lines, 1)

	pattern := regexp.MustCompile(`^\[\d{2}/\d{2}/\d{4} \d{2}:\d{2}:\d{2}\] \[INFO\] server started\n$`)
	assert.Regexp(t, pattern, lines[0])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, lines[0], string(data))
}

func TestSinkDebugGuarded(t *testing.T) {
	enabled := false
	sink := NewSink("", func() bool { return enabled })

	sink.Debug("hidden")
	assert.Empty(t, sink.drain())

	enabled = true
	sink.Debug("shown")
	assert.Len(t, sink.drain(), 1)
}

func TestSinkPrintHasNoPrefix(t *testing.T) {
	sink := NewSink("", nil)
	sink.Print("hello from script")
	lines := sink.drain()
	require.Len(t, lines, 1)
	assert.Equal(t, "hello from script\n", lines[0])
}

func TestSinkDrainEmptiesQueue(t *testing.T) {
	sink := NewSink("", nil)
	sink.Warn("one")
	sink.Warn("two")
	assert.Len(t, sink.drain(), 2)
	assert.Empty(t, sink.drain())
}
