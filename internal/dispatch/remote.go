package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/beamnet/drivesim-server/internal/bridge"
	"github.com/beamnet/drivesim-server/internal/logger"
)

// remoteEventSubjectPrefix is the NATS subject prefix global events publish
// under, grounded on the teacher's events.subjects.go naming convention
// (dot-separated, resource-first) repurposed from the teacher's install/
// webhook subjects to script events.
const remoteEventSubjectPrefix = "drivesim.events."

// remoteEnvelope is the wire payload published for a global event, carrying
// enough of the bridge.Args classification to reconstruct arguments on a
// receiving process (used for cross-process observability/fan-out, not for
// round-tripping into another interpreter — the receiving side only reads
// it, it never re-dispatches into its own Lua state from here).
type remoteEnvelope struct {
	Event string        `json:"event"`
	Args  []remoteValue `json:"args"`
}

type remoteValue struct {
	Kind  string  `json:"kind"`
	Int   int64   `json:"int,omitempty"`
	Float float32 `json:"float,omitempty"`
	Bool  bool    `json:"bool,omitempty"`
	Str   string  `json:"str,omitempty"`
}

// RemoteBus republishes global events onto a NATS subject so other server
// processes sharing the same script deployment can observe them, grounded
// on the teacher's internal/events/subscriber.go connection-options
// pattern. A RemoteBus with no configured URL is simply never constructed;
// Dispatcher treats a nil *RemoteBus as "no cross-process bus."
type RemoteBus struct {
	conn *nats.Conn
}

// DialRemoteBus connects to the given NATS URL. Connection failures are
// logged and yield a nil bus rather than aborting startup — event dispatch
// inside the process must keep working even when the cross-process bus is
// unreachable.
func DialRemoteBus(url string) *RemoteBus {
	if url == "" {
		return nil
	}
	conn, err := nats.Connect(url,
		nats.Name("drivesim-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Dispatch().Warn().Err(err).Str("url", url).Msg("remote event bus unavailable")
		return nil
	}
	return &RemoteBus{conn: conn}
}

// Publish fire-and-forgets event+args onto the remote bus. Failures are
// logged, never returned — publishing is best-effort observability, not
// part of the dispatch contract scripts depend on.
func (b *RemoteBus) Publish(event string, args bridge.Args) {
	if b == nil || b.conn == nil {
		return
	}
	env := remoteEnvelope{Event: event}
	for _, a := range args {
		switch a.Kind {
		case bridge.KindInt:
			env.Args = append(env.Args, remoteValue{Kind: "int", Int: a.I})
		case bridge.KindFloat:
			env.Args = append(env.Args, remoteValue{Kind: "float", Float: a.F})
		case bridge.KindBool:
			env.Args = append(env.Args, remoteValue{Kind: "bool", Bool: a.B})
		case bridge.KindString:
			env.Args = append(env.Args, remoteValue{Kind: "str", Str: a.S})
		}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("%s%s", remoteEventSubjectPrefix, event)
	if err := b.conn.Publish(subject, data); err != nil {
		logger.Dispatch().Warn().Err(err).Str("subject", subject).Msg("remote event publish failed")
	}
}

// Close closes the underlying NATS connection without draining it.
func (b *RemoteBus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	b.conn.Close()
}
