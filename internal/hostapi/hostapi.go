// Package hostapi installs the Host API Surface: the fixed set of global
// functions every Script Instance sees (TriggerGlobalEvent, GetPlayerCount,
// Set, and so on), grounded function-by-function on the original server's
// Lua class call table in Lua/LuaSystem.cpp (spec.md §4.3).
//
// Every function here validates its own arity and argument types before
// touching a dependency; a violation is logged through the owning
// instance's ErrorSink as "<source> | Incorrect Call of <api> <detail>" and
// the call returns a zero value rather than propagating a Lua error, so one
// bad call site never stops the calling script (§4.3, §7).
package hostapi

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/beamnet/drivesim-server/internal/apierr"
	"github.com/beamnet/drivesim-server/internal/bridge"
	"github.com/beamnet/drivesim-server/internal/config"
	"github.com/beamnet/drivesim-server/internal/script"
)

// Dispatcher is the subset of the Event Dispatcher the Host API Surface
// calls into. Kept as a narrow interface here so hostapi need not import
// the dispatch package directly (dispatch imports script; hostapi
// sits beside it and is wired together in cmd).
type Dispatcher interface {
	TriggerGlobal(event string, args bridge.Args) bridge.Result
	TriggerClient(playerID int, event string, args bridge.Args)
}

// Scheduler is the subset of the Background Worker Pool the Host API
// Surface calls into for CreateThread/StopThread.
type Scheduler interface {
	CreateThread(owner *script.Instance, functionName string, hz int)
	StopThread(owner *script.Instance)
}

// ClientRegistry is the read-only player/vehicle surface the Host API
// Surface exposes to scripts.
type ClientRegistry interface {
	PlayerCount() int
	IsConnected(playerID int) bool
	PlayerName(playerID int) (string, bool)
	IsGuest(playerID int) (bool, bool)
	PlayerIDs() []int
	Vehicles(playerID int) (map[int]string, bool)
	DiscordID(playerID int) string
	HWID(playerID int) string
	RemoveVehicle(playerID, vehicleID int) bool
	DropPlayer(playerID int, reason string) bool
	// IsSynced reports whether playerID has completed the initial state
	// sync (map/vehicle data) with the server. SendChatMessage's unicast
	// variant skips a player who isn't synced yet, matching the original's
	// `if (!c->isSynced) return 0;` guard.
	IsSynced(playerID int) bool
}

// Transport is the outbound network surface SendChatMessage and DropPlayer
// use.
type Transport interface {
	Broadcast(message string)
	SendTo(playerID int, message string)
	Disconnect(playerID int, reason string)
}

// Deps bundles everything the Host API Surface needs to resolve a call. A
// Deps value is shared by every installed instance; per-call attribution
// (which instance is making the call) comes from the *script.Instance
// passed to Install, closed over by each registered function.
type Deps struct {
	Engine     Engine
	Dispatch   Dispatcher
	Scheduler  Scheduler
	Registry   ClientRegistry
	Transport  Transport
	Settings   *config.Settings
	// Shutdown terminates the process with the given exit code (0 by
	// default, per exit(code)'s documented contract).
	Shutdown func(code int)
}

// Engine is the Plugin Engine lookup carried in Deps. The installed functions
// attribute each call through the instance passed to Install and do not
// consult it.
type Engine interface {
	FindByState(L *lua.LState) (*script.Instance, bool)
}

// Install registers every Host API Surface global function on inst's
// interpreter. Called once per instance, right after Init opens the
// standard library (engine.Engine's LoadFile/InitConsole wires this in via
// the install callback so engine need not import hostapi).
func Install(inst *script.Instance, deps Deps) {
	reg := func(name string, fn func(inst *script.Instance, deps Deps, L *lua.LState) int) {
		inst.L.SetGlobal(name, inst.L.NewFunction(func(L *lua.LState) int {
			return fn(inst, deps, L)
		}))
	}

	reg("TriggerGlobalEvent", triggerGlobalEvent)
	reg("TriggerLocalEvent", triggerLocalEvent)
	reg("TriggerClientEvent", triggerClientEvent)
	reg("RegisterEvent", registerEvent)
	reg("CreateThread", createThread)
	reg("StopThread", stopThread)
	reg("GetPlayerCount", getPlayerCount)
	reg("isPlayerConnected", isPlayerConnected)
	reg("GetPlayerName", getPlayerName)
	reg("GetPlayerGuest", getPlayerGuest)
	reg("GetPlayers", getPlayers)
	reg("GetPlayerVehicles", getPlayerVehicles)
	reg("GetPlayerDiscordID", getPlayerDiscordID)
	reg("GetPlayerHWID", getPlayerHWID)
	reg("RemoveVehicle", removeVehicle)
	reg("SendChatMessage", sendChatMessage)
	reg("DropPlayer", dropPlayer)
	reg("Set", setSetting)
	reg("exit", exitServer)
	reg("print", printLine)
}

func badCall(inst *script.Instance, api, detail string) {
	inst.ReportError(apierr.New(inst.Origin(), api, detail).Error())
}

func argString(L *lua.LState, pos int) (string, bool) {
	v := L.Get(pos)
	s, ok := v.(lua.LString)
	return string(s), ok
}

func argInt(L *lua.LState, pos int) (int, bool) {
	v := L.Get(pos)
	n, ok := v.(lua.LNumber)
	if !ok {
		return 0, false
	}
	return int(n), true
}

func triggerGlobalEvent(inst *script.Instance, deps Deps, L *lua.LState) int {
	top := L.GetTop()
	event, ok := argString(L, 1)
	if !ok || top < 1 {
		badCall(inst, "TriggerGlobalEvent", "(expected event name as first argument)")
		L.Push(lua.LNumber(0))
		return 1
	}
	args := bridge.Classify(L, 2, top)
	result := deps.Dispatch.TriggerGlobal(event, args)
	if result.IsString {
		L.Push(lua.LString(result.S))
	} else {
		L.Push(lua.LNumber(result.I))
	}
	return 1
}

// triggerLocalEvent invokes event's handler on this same instance only, and
// is fire-and-forget: no bounded-wait wrapper (the call is already local,
// synchronous, and on this instance's own mutex) and no return value is
// pushed back to the script, matching the original lua_TriggerEventL.
func triggerLocalEvent(inst *script.Instance, deps Deps, L *lua.LState) int {
	top := L.GetTop()
	event, ok := argString(L, 1)
	if !ok || top < 1 {
		badCall(inst, "TriggerLocalEvent", "(expected event name as first argument)")
		return 0
	}
	args := bridge.Classify(L, 2, top)
	fn := L.GetGlobal(inst.GetRegistered(event))
	if fn.Type() != lua.LTFunction {
		return 0
	}
	L.Push(fn)
	n := args.Push(L)
	if err := L.PCall(n, 0, nil); err != nil {
		inst.ReportError(inst.Origin() + " | " + err.Error())
	}
	return 0
}

func triggerClientEvent(inst *script.Instance, deps Deps, L *lua.LState) int {
	top := L.GetTop()
	playerID, ok1 := argInt(L, 1)
	event, ok2 := argString(L, 2)
	if !ok1 || !ok2 || top < 2 {
		badCall(inst, "TriggerClientEvent", "(expected player ID, event name)")
		return 0
	}
	args := bridge.Classify(L, 3, top)
	deps.Dispatch.TriggerClient(playerID, event, args)
	return 0
}

func registerEvent(inst *script.Instance, deps Deps, L *lua.LState) int {
	event, ok1 := argString(L, 1)
	fn, ok2 := argString(L, 2)
	if !ok1 || !ok2 {
		badCall(inst, "RegisterEvent", "(expected event name, function name)")
		return 0
	}
	inst.RegisterEvent(event, fn)
	return 0
}

func createThread(inst *script.Instance, deps Deps, L *lua.LState) int {
	fn, ok1 := argString(L, 1)
	hz, ok2 := argInt(L, 2)
	if !ok1 || !ok2 {
		badCall(inst, "CreateThread", "(expected function name, frequency)")
		return 0
	}
	deps.Scheduler.CreateThread(inst, fn, hz)
	return 0
}

func stopThread(inst *script.Instance, deps Deps, L *lua.LState) int {
	deps.Scheduler.StopThread(inst)
	return 0
}

func getPlayerCount(inst *script.Instance, deps Deps, L *lua.LState) int {
	L.Push(lua.LNumber(deps.Registry.PlayerCount()))
	return 1
}

func isPlayerConnected(inst *script.Instance, deps Deps, L *lua.LState) int {
	id, ok := argInt(L, 1)
	if !ok {
		badCall(inst, "isPlayerConnected", "(expected player ID)")
		L.Push(lua.LBool(false))
		return 1
	}
	L.Push(lua.LBool(deps.Registry.IsConnected(id)))
	return 1
}

func getPlayerName(inst *script.Instance, deps Deps, L *lua.LState) int {
	id, ok := argInt(L, 1)
	if !ok {
		badCall(inst, "GetPlayerName", "(expected player ID)")
		L.Push(lua.LNumber(0))
		return 1
	}
	name, found := deps.Registry.PlayerName(id)
	if !found {
		L.Push(lua.LNumber(0))
		return 1
	}
	L.Push(lua.LString(name))
	return 1
}

func getPlayerGuest(inst *script.Instance, deps Deps, L *lua.LState) int {
	id, ok := argInt(L, 1)
	if !ok {
		badCall(inst, "GetPlayerGuest", "(expected player ID)")
		L.Push(lua.LNumber(0))
		return 1
	}
	guest, found := deps.Registry.IsGuest(id)
	if !found {
		L.Push(lua.LNumber(0))
		return 1
	}
	L.Push(lua.LBool(guest))
	return 1
}

// getPlayers builds the { [key] = name } table GetPlayers returns. The key
// shape is an Open Question resolved via Settings.LegacySequentialKeys: by
// default the key is the player ID (stable under disconnects mid-iteration);
// with the flag set, keys are a 1..n enumeration index matching the
// original's loop-counter behavior.
func getPlayers(inst *script.Instance, deps Deps, L *lua.LState) int {
	ids := deps.Registry.PlayerIDs()
	sort.Ints(ids)
	table := L.NewTable()
	legacy := deps.Settings.LegacySequentialKeys.Load()
	for i, id := range ids {
		name, ok := deps.Registry.PlayerName(id)
		if !ok {
			continue
		}
		key := id
		if legacy {
			key = i + 1
		}
		table.RawSetInt(key, lua.LString(name))
	}
	L.Push(table)
	return 1
}

func getPlayerVehicles(inst *script.Instance, deps Deps, L *lua.LState) int {
	id, ok := argInt(L, 1)
	if !ok {
		badCall(inst, "GetPlayerVehicles", "(expected player ID)")
		L.Push(lua.LNumber(0))
		return 1
	}
	vehicles, found := deps.Registry.Vehicles(id)
	if !found {
		L.Push(lua.LNumber(0))
		return 1
	}
	ids := make([]int, 0, len(vehicles))
	for vid := range vehicles {
		ids = append(ids, vid)
	}
	sort.Ints(ids)
	table := L.NewTable()
	legacy := deps.Settings.LegacySequentialKeys.Load()
	for i, vid := range ids {
		key := vid
		if legacy {
			key = i + 1
		}
		table.RawSetInt(key, lua.LString(vehicles[vid]))
	}
	L.Push(table)
	return 1
}

func getPlayerDiscordID(inst *script.Instance, deps Deps, L *lua.LState) int {
	id, ok := argInt(L, 1)
	if !ok {
		badCall(inst, "GetPlayerDiscordID", "(expected player ID)")
		L.Push(lua.LString(""))
		return 1
	}
	name, _ := deps.Registry.PlayerName(id)
	if guest, _ := deps.Registry.IsGuest(id); guest {
		name = "Guest-" + name
	}
	L.Push(lua.LString(name))
	return 1
}

// getPlayerHWID is a placeholder: it always returns the integer -1.
func getPlayerHWID(inst *script.Instance, deps Deps, L *lua.LState) int {
	L.Push(lua.LNumber(-1))
	return 1
}

// removeVehicle deletes vehicleID from playerID's registry entry and, only
// if that delete actually removed something (matching the original's
// `!GetCarData(VID).empty()` gate), broadcasts the "Od:<player_id>-
// <vehicle_id>" wire message so every connected client despawns it.
func removeVehicle(inst *script.Instance, deps Deps, L *lua.LState) int {
	playerID, ok1 := argInt(L, 1)
	vehicleID, ok2 := argInt(L, 2)
	if !ok1 || !ok2 {
		badCall(inst, "RemoveVehicle", "(expected player ID, vehicle ID)")
		return 0
	}
	if deps.Registry.RemoveVehicle(playerID, vehicleID) {
		deps.Transport.Broadcast(fmt.Sprintf("Od:%d-%d", playerID, vehicleID))
	}
	return 0
}

// sendChatMessage broadcasts when playerID is negative (matching the
// original's -1-means-everyone convention), otherwise targets one player —
// but only if that player has finished its initial state sync, matching
// the original's `if (!c->isSynced) return 0;` guard (an unsynced client
// silently receives nothing, no error).
func sendChatMessage(inst *script.Instance, deps Deps, L *lua.LState) int {
	playerID, ok1 := argInt(L, 1)
	message, ok2 := argString(L, 2)
	if !ok1 || !ok2 {
		badCall(inst, "SendChatMessage", "(expected player ID, message)")
		return 0
	}
	if playerID < 0 {
		deps.Transport.Broadcast("C:Server: " + message)
		return 0
	}
	if !deps.Registry.IsSynced(playerID) {
		return 0
	}
	deps.Transport.SendTo(playerID, "C:Server: "+message)
	return 0
}

func dropPlayer(inst *script.Instance, deps Deps, L *lua.LState) int {
	id, ok1 := argInt(L, 1)
	reason := ""
	if L.GetTop() >= 2 {
		reason, _ = argString(L, 2)
	}
	if !ok1 {
		badCall(inst, "DropPlayer", "(expected player ID)")
		return 0
	}
	deps.Registry.DropPlayer(id, reason)
	deps.Transport.Disconnect(id, reason)
	return 0
}

// setting keys, matching the original Lua class's Set key table (0-6).
const (
	settingDebug = iota
	settingPrivate
	settingMaxCars
	settingMaxPlayers
	settingMapName
	settingServerName
	settingServerDesc
)

func setSetting(inst *script.Instance, deps Deps, L *lua.LState) int {
	key, ok := argInt(L, 1)
	if !ok || L.GetTop() < 2 {
		badCall(inst, "Set", "(expected setting key, value)")
		return 0
	}
	switch key {
	case settingDebug:
		if v, ok := L.Get(2).(lua.LBool); ok {
			deps.Settings.Debug.Store(bool(v))
		}
	case settingPrivate:
		if v, ok := L.Get(2).(lua.LBool); ok {
			deps.Settings.Private.Store(bool(v))
		}
	case settingMaxCars:
		if v, ok := argInt(L, 2); ok {
			deps.Settings.MaxCars.Store(int64(v))
		}
	case settingMaxPlayers:
		if v, ok := argInt(L, 2); ok {
			deps.Settings.MaxPlayers.Store(int64(v))
		}
	case settingMapName:
		if v, ok := argString(L, 2); ok {
			deps.Settings.SetMapName(v)
		}
	case settingServerName:
		if v, ok := argString(L, 2); ok {
			deps.Settings.SetServerName(v)
		}
	case settingServerDesc:
		if v, ok := argString(L, 2); ok {
			deps.Settings.SetServerDesc(v)
		}
	default:
		badCall(inst, "Set", fmt.Sprintf("(unknown key %d)", key))
	}
	return 0
}

// exitServer terminates the process with the optional exit code argument
// (default 0), per exit(code)'s documented contract.
func exitServer(inst *script.Instance, deps Deps, L *lua.LState) int {
	code := 0
	if L.GetTop() >= 1 {
		if v, ok := argInt(L, 1); ok {
			code = v
		}
	}
	if deps.Shutdown != nil {
		deps.Shutdown(code)
	}
	return 0
}

// printLine implements the script-facing print(...): each argument is
// rendered with Lua's own tostring conversion and queued as its own entry,
// matching the original's per-argument `ConsoleOut(str + "\n")` rather than
// stock Lua print's single space/tab-joined line.
func printLine(inst *script.Instance, deps Deps, L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		inst.Print(L.ToStringMeta(L.Get(i)).String())
	}
	return 0
}
