// Package dispatch implements the Event Dispatcher: fan-out of a named
// event to every loaded Script Instance that registered a handler for it,
// under a bounded wait, with aggregation rules that differ by event name.
// Grounded on the original server's Lua::CallFunction/Events::CallEvent
// pair in Lua/LuaSystem.cpp and, for the concurrency shape, on the
// teacher's plugins.EventBus (async Emit via goroutine+WaitGroup, sync
// EmitSync collecting results) — generalized here to support a bounded
// outer wait the teacher's bus does not have (spec.md §4.4, §4.5).
package dispatch

import (
	"context"
	"time"

	"github.com/beamnet/drivesim-server/internal/bridge"
	"github.com/beamnet/drivesim-server/internal/logger"
	"github.com/beamnet/drivesim-server/internal/script"
)

// onPlayerAuth is the one event name with string short-circuit aggregation
// instead of nonzero-handler-count aggregation (spec.md §4.5): the first non-empty
// string any handler returns wins, and slower handlers further down the
// list are not waited on.
const onPlayerAuth = "onPlayerAuth"

// Registry is the subset of the Plugin Engine the dispatcher iterates.
type Registry interface {
	All() []*script.Instance
}

// ClientSender is the outbound network surface TriggerClient needs to
// actually deliver a client event; satisfied by transport.Hub.
type ClientSender interface {
	SendTo(playerID int, message string)
}

// Dispatcher fans a named event out to every registered handler across all
// loaded plugin instances (global scope), observing a bounded wait per
// handler call and an outer bound on the whole fan-out.
type Dispatcher struct {
	registry     Registry
	innerTimeout time.Duration
	outerTimeout time.Duration
	remote       *RemoteBus   // optional, nil when no cross-process bus configured
	sender       ClientSender // optional, nil drops TriggerClientEvent on the floor
}

// New creates a Dispatcher. innerTimeout bounds a single handler
// invocation; outerTimeout bounds the whole fan-out across every handler
// (spec.md defaults: 5s inner, 6s outer).
func New(registry Registry, innerTimeout, outerTimeout time.Duration, remote *RemoteBus) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		innerTimeout: innerTimeout,
		outerTimeout: outerTimeout,
		remote:       remote,
	}
}

// SetSender wires the transport used to deliver TriggerClientEvent calls.
// Until it is called, client events are dropped.
func (d *Dispatcher) SetSender(sender ClientSender) { d.sender = sender }

// SetRegistry wires the Plugin Engine the dispatcher fans events out
// across. Separate from New because the Engine's install callback closes
// over the Dispatcher, creating a construction-order cycle that a setter
// breaks.
func (d *Dispatcher) SetRegistry(registry Registry) { d.registry = registry }

// TriggerGlobal fans event out to every loaded instance that registered a
// handler for it, in stable load order, aggregating results per the
// event-specific rule, and republishes the event on the remote bus (if
// configured) for other server processes to observe.
func (d *Dispatcher) TriggerGlobal(event string, args bridge.Args) bridge.Result {
	if d.remote != nil {
		d.remote.Publish(event, args)
	}

	instances := d.registry.All()
	var handlers []*script.Instance
	for _, inst := range instances {
		if inst.IsRegistered(event) {
			handlers = append(handlers, inst)
		}
	}
	if len(handlers) == 0 {
		return bridge.Result{I: 0}
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.outerTimeout)
	defer cancel()

	if event == onPlayerAuth {
		return d.dispatchAuth(ctx, event, handlers, args)
	}
	return d.dispatchSum(ctx, event, handlers, args)
}

// TriggerClient forwards an event to a single connected client as an
// "E:<event>:<payload>" wire message rather than invoking any local script
// handler (spec.md §4.6). A nil sender (no transport wired yet) drops the
// call with a debug log rather than panicking.
func (d *Dispatcher) TriggerClient(playerID int, event string, args bridge.Args) {
	if d.sender == nil {
		logger.Dispatch().Debug().
			Int("player_id", playerID).
			Str("event", event).
			Msg("client event dropped, no transport wired")
		return
	}
	payload := "E:" + event + ":" + args.Encode()
	d.sender.SendTo(playerID, payload)
}

type handlerResult struct {
	result bridge.Result
	ok     bool
}

// dispatchSum invokes every handler, bounding each call by innerTimeout and
// the whole pass by ctx, and counts the handlers that returned a nonzero
// integer (a string return from a non-onPlayerAuth event counts as zero),
// matching the original's `if (std::any_cast<int>(R)) Ret++;` — this is a
// count of handlers, not a sum of their return values.
func (d *Dispatcher) dispatchSum(ctx context.Context, event string, handlers []*script.Instance, args bridge.Args) bridge.Result {
	results := make(chan handlerResult, len(handlers))
	for _, h := range handlers {
		go func(inst *script.Instance) {
			results <- d.callBounded(inst, event, args)
		}(h)
	}

	var count int64
	for i := 0; i < len(handlers); i++ {
		select {
		case r := <-results:
			if r.ok && !r.result.IsString && r.result.I != 0 {
				count++
			}
		case <-ctx.Done():
			logger.Dispatch().Warn().Str("event", event).Msg("event dispatch outer timeout exceeded")
			return bridge.Result{I: count}
		}
	}
	return bridge.Result{I: count}
}

// dispatchAuth invokes handlers in stable order and stops at the first
// non-empty string return, without waiting for slower handlers further
// down the list (spec.md §4.5's onPlayerAuth short-circuit).
func (d *Dispatcher) dispatchAuth(ctx context.Context, event string, handlers []*script.Instance, args bridge.Args) bridge.Result {
	for _, inst := range handlers {
		select {
		case <-ctx.Done():
			logger.Dispatch().Warn().Msg("onPlayerAuth dispatch outer timeout exceeded")
			return bridge.Result{I: 0}
		default:
		}
		r := d.callBounded(inst, event, args)
		if r.ok && r.result.IsString && r.result.S != "" {
			return r.result
		}
	}
	return bridge.Result{I: 0}
}

// callBounded invokes one handler's registered function for event, bounding
// the call by innerTimeout. A handler that doesn't return in time is
// abandoned: the goroutine runs to completion against the instance's own
// mutex on its own time, but the dispatcher stops waiting on it.
func (d *Dispatcher) callBounded(inst *script.Instance, event string, args bridge.Args) handlerResult {
	done := make(chan bridge.Result, 1)
	go func() {
		done <- inst.Call(inst.GetRegistered(event), args)
	}()
	select {
	case r := <-done:
		return handlerResult{result: r, ok: true}
	case <-time.After(d.innerTimeout):
		logger.Dispatch().Warn().Str("origin", inst.Origin()).Str("event", event).Msg("event handler inner timeout exceeded")
		return handlerResult{ok: false}
	}
}
