package console

import (
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/stretchr/testify/assert"

	"github.com/beamnet/drivesim-server/internal/script"
)

func TestHandleInputInterceptsExit(t *testing.T) {
	sink := NewSink("", nil)
	inst := script.New("", "", time.Time{}, true, sink)
	inst.Init()
	defer inst.Close()

	exited := false
	c := New(sink, inst, func() { exited = true })
	c.HandleInput("exit")
	assert.True(t, exited)
}

func TestNewAssignsNonEmptySessionID(t *testing.T) {
	sink := NewSink("", nil)
	inst := script.New("", "", time.Time{}, true, sink)
	inst.Init()
	defer inst.Close()

	c := New(sink, inst, func() {})
	assert.NotEmpty(t, c.SessionID())
}

func TestHandleInputRunsScriptForOtherLines(t *testing.T) {
	sink := NewSink("", nil)
	inst := script.New("", "", time.Time{}, true, sink)
	inst.Init()
	defer inst.Close()

	c := New(sink, inst, func() {})
	c.HandleInput("x = 5")
	assert.Equal(t, lua.LNumber(5), inst.L.GetGlobal("x"))
}
