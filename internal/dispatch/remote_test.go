package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beamnet/drivesim-server/internal/bridge"
)

func TestDialRemoteBusEmptyURLReturnsNil(t *testing.T) {
	assert.Nil(t, DialRemoteBus(""))
}

func TestNilRemoteBusPublishAndCloseAreNoops(t *testing.T) {
	var bus *RemoteBus
	assert.NotPanics(t, func() {
		bus.Publish("onTest", bridge.Args{bridge.Int(1)})
		bus.Close()
	})
}

func TestDialRemoteBusUnreachableReturnsNil(t *testing.T) {
	// An address nothing listens on fails fast during option validation or
	// connection without blocking the test suite.
	bus := DialRemoteBus("nats://127.0.0.1:1")
	assert.Nil(t, bus)
}
