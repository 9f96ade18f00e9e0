// Package engine implements the Plugin Engine: the process-wide registry of
// loaded Script Instances. It owns instance lifecycles, enumerates plugins
// for the Event Dispatcher, and provides O(1) "which instance owns this
// interpreter" lookups for the Host API Surface shims (spec.md §4.6,
// superseding the original's linear PluginEngine scan per the design note
// in spec.md §9 — a back-pointer map instead of a per-call linear search).
//
// Grounded on the teacher's plugins.Runtime (lifecycle/registry shape) and
// plugins.PluginDiscovery (directory-scan loading), repurposed from
// database-backed installed-plugin rows to a directory of *.lua files.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/beamnet/drivesim-server/internal/script"
)

// Engine owns the set of loaded Script Instances, keyed by plugin name, plus
// the console's instance (addressable but excluded from broadcast dispatch
// and from the name-keyed map).
type Engine struct {
	mu      sync.RWMutex
	byName  map[string]*script.Instance
	order   []string // plugin names in load order, for stable iteration
	console *script.Instance

	byState sync.Map // *lua.LState -> *script.Instance, O(1) caller lookup

	sink    script.ErrorSink
	install func(*script.Instance) // installs Host API Surface globals
}

// New creates an empty Plugin Engine. install is called once per instance
// (console and plugin alike) right after the standard library is opened,
// to register the Host API Surface globals — kept as a callback so engine
// need not import the hostapi package (cmd supplies the callback).
func New(sink script.ErrorSink, install func(*script.Instance)) *Engine {
	return &Engine{
		byName:  make(map[string]*script.Instance),
		sink:    sink,
		install: install,
	}
}

// InitConsole creates, initializes, and registers the dedicated console
// Script Instance. Modeling the console as just another instance
// (is_console=true, no source file) avoids special-casing the Host API
// Surface for console-originated calls.
func (e *Engine) InitConsole() *script.Instance {
	inst := script.New("", "", time.Time{}, true, e.sink)
	inst.Init()
	e.install(inst)
	e.byState.Store(inst.L, inst)
	e.mu.Lock()
	e.console = inst
	e.mu.Unlock()
	return inst
}

// Console returns the console's Script Instance.
func (e *Engine) Console() *script.Instance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.console
}

// LoadFile loads a single plugin script at path under pluginName,
// initializes it, installs the Host API Surface, and reloads it (executing
// the source and invoking onInit). Re-loading an already-registered plugin
// name replaces the prior instance.
func (e *Engine) LoadFile(pluginName, path string) (*script.Instance, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	inst := script.New(pluginName, path, fi.ModTime(), false, e.sink)
	inst.Init()
	e.install(inst)

	e.mu.Lock()
	if old, ok := e.byName[pluginName]; ok {
		e.byState.Delete(old.L)
		old.Close()
	} else {
		e.order = append(e.order, pluginName)
	}
	e.byName[pluginName] = inst
	e.mu.Unlock()
	e.byState.Store(inst.L, inst)

	if err := inst.Reload(); err != nil {
		return inst, err
	}
	return inst, nil
}

// LoadDir scans dir for *.lua files (non-recursive, matching the teacher's
// discovery.go directory-scan shape) and loads each as a plugin named after
// its filename without extension. Errors loading individual files are
// collected but do not abort the scan — one broken script must not prevent
// others from loading.
func (e *Engine) LoadDir(dir string) []error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []error{fmt.Errorf("read script dir %s: %w", dir, err)}
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".lua")
		path := filepath.Join(dir, entry.Name())
		if _, err := e.LoadFile(name, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Reload re-executes the named plugin's source file in place (same
// interpreter, same registrations retained).
func (e *Engine) Reload(pluginName string) error {
	inst, ok := e.Get(pluginName)
	if !ok {
		return fmt.Errorf("plugin %q not loaded", pluginName)
	}
	return inst.Reload()
}

// Unload closes and removes a plugin instance.
func (e *Engine) Unload(pluginName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.byName[pluginName]
	if !ok {
		return
	}
	e.byState.Delete(inst.L)
	inst.Close()
	delete(e.byName, pluginName)
	for i, n := range e.order {
		if n == pluginName {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Get looks up a loaded plugin instance by name.
func (e *Engine) Get(pluginName string) (*script.Instance, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	inst, ok := e.byName[pluginName]
	return inst, ok
}

// All returns all plugin instances (excluding the console) in stable load
// order. Callers must not register/unregister plugins while iterating the
// returned slice concurrently with a dispatch in progress (spec.md §4.4
// "not re-entrant-safe").
func (e *Engine) All() []*script.Instance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*script.Instance, 0, len(e.order))
	for _, n := range e.order {
		out = append(out, e.byName[n])
	}
	return out
}

// Names returns the loaded plugin names in stable order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := append([]string(nil), e.order...)
	sort.Strings(out) // introspection-only; dispatch uses All()'s load order
	return out
}

// FindByState resolves the Script Instance owning the given interpreter
// handle in O(1). An interpreter handle absent from the set is treated as
// belonging to the console and logged with the _Console prefix by callers
// (spec.md §4.6) — this returns (nil, false) in that case, and callers that
// can't attribute a call to any instance fall back to the console's origin.
func (e *Engine) FindByState(L *lua.LState) (*script.Instance, bool) {
	v, ok := e.byState.Load(L)
	if !ok {
		return nil, false
	}
	return v.(*script.Instance), true
}

// Close releases every loaded instance, including the console.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, inst := range e.byName {
		inst.Close()
	}
	if e.console != nil {
		e.console.Close()
	}
}
