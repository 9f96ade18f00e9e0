// Package bridge converts between host primitive values and the embedded
// Lua runtime's values. Marshalling is one-way in each direction: inbound
// (script stack -> host) and outbound (script return -> host) follow
// distinct, intentionally lossy rules (spec.md §4.1).
package bridge

import (
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// Kind tags the variant held by an Argument. Integer and float are kept
// distinct variants rather than collapsed into one numeric union, so the
// inbound classification priority (string, integer, boolean, number) and
// the outbound "numeric -> i64 truncate" rule both stay well-defined.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
)

// Argument is a single tagged value carried host->script.
type Argument struct {
	Kind Kind
	I    int64
	F    float32
	B    bool
	S    string
}

func Int(v int64) Argument    { return Argument{Kind: KindInt, I: v} }
func Float(v float32) Argument { return Argument{Kind: KindFloat, F: v} }
func Bool(v bool) Argument    { return Argument{Kind: KindBool, B: v} }
func Str(v string) Argument   { return Argument{Kind: KindString, S: v} }

// Push pushes the argument onto the Lua stack in its native representation.
func (a Argument) Push(L *lua.LState) {
	switch a.Kind {
	case KindInt:
		L.Push(lua.LNumber(a.I))
	case KindFloat:
		L.Push(lua.LNumber(a.F))
	case KindBool:
		L.Push(lua.LBool(a.B))
	case KindString:
		L.Push(lua.LString(a.S))
	}
}

// Args is an ordered sequence of Arguments, pushed left to right.
type Args []Argument

// Push pushes every argument in order and returns the count pushed.
func (args Args) Push(L *lua.LState) int {
	for _, a := range args {
		a.Push(L)
	}
	return len(args)
}

// Encode renders Args as a colon-separated wire payload, used by
// TriggerClientEvent's "E:<event>:<payload>" message format (spec.md
// §4.6) — the one place argument values leave the interpreter as raw text
// rather than staying as Lua values.
func (args Args) Encode() string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += ":"
		}
		switch a.Kind {
		case KindInt:
			out += strconv.FormatInt(a.I, 10)
		case KindFloat:
			out += strconv.FormatFloat(float64(a.F), 'g', -1, 32)
		case KindBool:
			out += strconv.FormatBool(a.B)
		case KindString:
			out += a.S
		}
	}
	return out
}

// Classify inbound-marshals the Lua values at stack positions [start, top]
// into an Args sequence. Classification priority per position is string,
// integer, boolean, number (float) — a value that is both integer and
// number classifies as integer. A position matching none of those is
// dropped silently, not treated as an error. If start > top the result is
// an empty sequence.
func Classify(L *lua.LState, start, top int) Args {
	if start > top {
		return nil
	}
	out := make(Args, 0, top-start+1)
	for pos := start; pos <= top; pos++ {
		v := L.Get(pos)
		switch lv := v.(type) {
		case lua.LString:
			out = append(out, Str(string(lv)))
		case lua.LNumber:
			f := float64(lv)
			if f == float64(int64(f)) {
				out = append(out, Int(int64(f)))
			} else {
				out = append(out, Float(float32(f)))
			}
		case lua.LBool:
			out = append(out, Bool(bool(lv)))
		default:
			// not string/number/bool: dropped silently.
		}
	}
	return out
}

// Result is the outbound-marshalled return of a script function call.
type Result struct {
	IsString bool
	I        int64
	S        string
}

// ClassifyReturn outbound-marshals the top-of-stack value after a
// successful script call. Numeric values truncate to i64; strings copy out
// verbatim; anything else (nil, table, function, ...) yields integer 0.
// This lossy policy is intentional: event aggregation only understands
// integers, and strings only carry meaning for onPlayerAuth.
func ClassifyReturn(L *lua.LState, stackPos int) Result {
	v := L.Get(stackPos)
	switch lv := v.(type) {
	case lua.LNumber:
		return Result{I: int64(lv)}
	case lua.LString:
		return Result{IsString: true, S: string(lv)}
	default:
		return Result{I: 0}
	}
}
