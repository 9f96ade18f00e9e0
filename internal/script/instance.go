// Package script implements the Script Instance: one isolated Lua
// interpreter, its registered-event table, and the lifecycle/concurrency
// contract spec.md §3 and §4.2 describe. Grounded on the original server's
// Lua class in Lua/LuaSystem.cpp, translated to gopher-lua.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/beamnet/drivesim-server/internal/bridge"
)

// ErrorSink is the minimal logging surface a Script Instance needs; it is
// satisfied by console.Sink without script importing the console package.
type ErrorSink interface {
	Warn(msg string)
	Print(line string)
}

// Instance owns one isolated Lua interpreter state, a registered-event
// table, a per-instance mutex serializing entries into the interpreter,
// and lifecycle metadata.
//
// Invariant: no two goroutines may concurrently enter the same interpreter
// handle. Every exported method that runs script code (Execute, Reload,
// Call) holds mu for the full duration of that run; Init and Close do not
// take mu.
type Instance struct {
	L *lua.LState

	pluginName   string
	sourcePath   string
	isConsole    bool
	lastModified time.Time

	mu       sync.Mutex
	evMu     sync.Mutex        // guards events; separate from mu so host calls made by running script code can register events
	events   map[string]string // event name -> global function name
	stopFlag atomic.Bool

	sink ErrorSink
}

// New creates an uninitialized Script Instance. Call Init to open the
// standard library, install the Host API Surface on it (see Init), then
// (for non-console instances) Reload to execute the source file.
func New(pluginName, sourcePath string, lastModified time.Time, isConsole bool, sink ErrorSink) *Instance {
	return &Instance{
		L:            lua.NewState(),
		pluginName:   pluginName,
		sourcePath:   sourcePath,
		isConsole:    isConsole,
		lastModified: lastModified,
		events:       make(map[string]string),
		sink:         sink,
	}
}

func (s *Instance) PluginName() string     { return s.pluginName }
func (s *Instance) SourcePath() string     { return s.sourcePath }
func (s *Instance) IsConsole() bool        { return s.isConsole }
func (s *Instance) LastModified() time.Time { return s.lastModified }
func (s *Instance) SetLastModified(t time.Time) { s.lastModified = t }

// Origin returns the basename used as the log-line prefix for this
// instance: "_Console" for the console instance, the source file's
// basename otherwise.
func (s *Instance) Origin() string {
	if s.isConsole || s.sourcePath == "" {
		return "_Console"
	}
	return filepath.Base(s.sourcePath)
}

// Init opens the standard library. Installing the Host API Surface globals
// is the caller's responsibility (engine.Engine does it, so the Host API
// package can depend on script without script depending on hostapi).
func (s *Instance) Init() {
	s.L.OpenLibs()
}

// Close releases the interpreter.
func (s *Instance) Close() {
	s.L.Close()
}

// Execute evaluates a one-shot expression or statement (console use).
// Errors are logged with the "_Console |" prefix and never propagate. The
// evaluation stack is always cleared on return.
func (s *Instance) Execute(command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.clearStack()
	if err := s.L.DoString(command); err != nil {
		s.sink.Warn("_Console | " + err.Error())
	}
}

// Reload re-executes the source file and, on success, invokes onInit with
// no arguments.
func (s *Instance) Reload() error {
	s.mu.Lock()
	data, err := os.ReadFile(s.sourcePath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("read %s: %w", s.sourcePath, err)
	}
	fn, err := s.L.LoadString(string(data))
	if err != nil {
		s.mu.Unlock()
		s.sink.Warn(s.Origin() + " | " + err.Error())
		return nil
	}
	s.L.Push(fn)
	callErr := s.L.PCall(0, 0, nil)
	s.clearStack()
	if callErr != nil {
		s.sink.Warn(s.Origin() + " | " + callErr.Error())
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	s.Call("onInit", nil)
	return nil
}

// RegisterEvent registers or overwrites the handler for an event name.
// Latest registration wins per event per instance (no multimap semantics).
func (s *Instance) RegisterEvent(event, functionName string) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	s.events[event] = functionName
}

// UnregisterEvent removes a registration, if any.
func (s *Instance) UnregisterEvent(event string) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	delete(s.events, event)
}

// IsRegistered reports whether this instance handles the named event.
func (s *Instance) IsRegistered(event string) bool {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	_, ok := s.events[event]
	return ok
}

// GetRegistered returns the function name registered for event, or "".
func (s *Instance) GetRegistered(event string) string {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	return s.events[event]
}

// Call pushes args, calls the named global with one expected return value,
// and marshals the return out. If the named global is not a function,
// returns integer 0 without entering the interpreter's call machinery.
// Script errors are logged with the instance's origin as prefix. Panics
// raised inside the interpreter (the Go-idiomatic substitute for the
// original's structured-exception frame around SEH access violations) are
// recovered and logged as "Thread in <source-file>" so a misbehaving
// script can never bring down the host (§4.2, §7).
func (s *Instance) Call(functionName string, args bridge.Args) (result bridge.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.clearStack()
	defer func() {
		if r := recover(); r != nil {
			origin := "Thread in " + s.Origin()
			if s.isConsole {
				origin = "_Console"
			}
			s.sink.Warn(fmt.Sprintf("%s | panic: %v", origin, r))
			result = bridge.Result{I: 0}
		}
	}()

	fn := s.L.GetGlobal(functionName)
	if fn.Type() != lua.LTFunction {
		return bridge.Result{I: 0}
	}

	s.L.Push(fn)
	n := args.Push(s.L)
	if err := s.L.PCall(n, 1, nil); err != nil {
		s.sink.Warn(s.Origin() + " | " + err.Error())
		return bridge.Result{I: 0}
	}
	if s.L.GetTop() == 0 {
		return bridge.Result{I: 0}
	}
	return bridge.ClassifyReturn(s.L, s.L.GetTop())
}

// ReportError routes a Host API Surface argument-validation failure (or any
// other out-of-band error) to the sink, already formatted by the caller.
func (s *Instance) ReportError(msg string) { s.sink.Warn(msg) }

// Print routes a script-facing print(...) call to the sink's raw output
// queue, bypassing the timestamped log-line format.
func (s *Instance) Print(line string) { s.sink.Print(line) }

// SetStopThread flips the cooperative cancellation flag background workers
// poll at each period boundary.
func (s *Instance) SetStopThread(v bool) { s.stopFlag.Store(v) }

// GetStopThread reads the cancellation flag.
func (s *Instance) GetStopThread() bool { return s.stopFlag.Load() }

func (s *Instance) clearStack() {
	s.L.SetTop(0)
}
