package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamnet/drivesim-server/internal/bridge"
	"github.com/beamnet/drivesim-server/internal/script"
)

type silentSink struct{}

func (silentSink) Warn(string)  {}
func (silentSink) Print(string) {}

type fakeRegistry struct {
	instances []*script.Instance
}

func (f *fakeRegistry) All() []*script.Instance { return f.instances }

func newRegisteredInstance(t *testing.T, event, body string) *script.Instance {
	t.Helper()
	inst := script.New("p", "", time.Time{}, false, silentSink{})
	inst.Init()
	t.Cleanup(inst.Close)
	inst.Execute(body)
	inst.RegisterEvent(event, "handler")
	return inst
}

func TestDispatchSumCountsHandlersReturningNonzero(t *testing.T) {
	a := newRegisteredInstance(t, "onScore", `function handler() return 5 end`)
	b := newRegisteredInstance(t, "onScore", `function handler() return 3 end`)
	c := newRegisteredInstance(t, "onScore", `function handler() return 0 end`)

	d := New(&fakeRegistry{[]*script.Instance{a, b, c}}, 2*time.Second, 3*time.Second, nil)
	result := d.TriggerGlobal("onScore", bridge.Args{})
	assert.False(t, result.IsString)
	// Two handlers returned nonzero ints; the result counts handlers, not
	// the sum of their return values (5+3 would be 8).
	assert.Equal(t, int64(2), result.I)
}

func TestDispatchAuthShortCircuitsOnFirstString(t *testing.T) {
	a := newRegisteredInstance(t, onPlayerAuth, `function handler() return "" end`)
	b := newRegisteredInstance(t, onPlayerAuth, `function handler() return "ok-token" end`)
	c := newRegisteredInstance(t, onPlayerAuth, `function handler() return "never-seen" end`)

	d := New(&fakeRegistry{[]*script.Instance{a, b, c}}, 2*time.Second, 3*time.Second, nil)
	result := d.TriggerGlobal(onPlayerAuth, bridge.Args{})
	require.True(t, result.IsString)
	assert.Equal(t, "ok-token", result.S)
}

func TestDispatchNoHandlersReturnsZero(t *testing.T) {
	d := New(&fakeRegistry{}, time.Second, time.Second, nil)
	result := d.TriggerGlobal("onNothing", bridge.Args{})
	assert.Equal(t, int64(0), result.I)
}

func TestDispatchInnerTimeoutAbandonsSlowHandler(t *testing.T) {
	slow := newRegisteredInstance(t, "onSlow", `
function handler()
  local t0 = os.clock()
  while os.clock() - t0 < 0.3 do end
  return 1
end
`)
	fast := newRegisteredInstance(t, "onSlow", `function handler() return 2 end`)

	d := New(&fakeRegistry{[]*script.Instance{slow, fast}}, 50*time.Millisecond, time.Second, nil)
	start := time.Now()
	result := d.TriggerGlobal("onSlow", bridge.Args{})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 250*time.Millisecond)
	// Only the fast handler is counted; the slow one is abandoned by the
	// inner timeout before it returns.
	assert.Equal(t, int64(1), result.I)
}
