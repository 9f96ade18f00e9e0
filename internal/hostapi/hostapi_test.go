package hostapi

import (
	"sync"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamnet/drivesim-server/internal/bridge"
	"github.com/beamnet/drivesim-server/internal/config"
	"github.com/beamnet/drivesim-server/internal/script"
)

type capturingSink struct {
	mu       sync.Mutex
	warnings []string
	printed  []string
}

func (s *capturingSink) Warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}
func (s *capturingSink) Print(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printed = append(s.printed, line)
}

func (s *capturingSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.warnings) == 0 {
		return ""
	}
	return s.warnings[len(s.warnings)-1]
}

type stubDispatcher struct{}

func (stubDispatcher) TriggerGlobal(event string, args bridge.Args) bridge.Result {
	return bridge.Result{I: 9}
}
func (stubDispatcher) TriggerClient(playerID int, event string, args bridge.Args) {}

type stubScheduler struct{ created, stopped int }

func (s *stubScheduler) CreateThread(owner *script.Instance, functionName string, hz int) {
	s.created++
}
func (s *stubScheduler) StopThread(owner *script.Instance) { s.stopped++ }

type stubRegistry struct{}

func (stubRegistry) PlayerCount() int                   { return 2 }
func (stubRegistry) IsConnected(id int) bool            { return id == 1 }
func (stubRegistry) PlayerName(id int) (string, bool) {
	if id == 1 {
		return "alice", true
	}
	return "", false
}
func (stubRegistry) IsGuest(id int) (bool, bool)                 { return false, id == 1 }
func (stubRegistry) PlayerIDs() []int                             { return []int{2, 1} }
func (stubRegistry) Vehicles(id int) (map[int]string, bool)      { return map[int]string{5: "sedan"}, id == 1 }
func (stubRegistry) DiscordID(id int) string                     { return "disc" }
func (stubRegistry) HWID(id int) string                          { return "hwid" }
func (stubRegistry) RemoveVehicle(playerID, vehicleID int) bool  { return true }
func (stubRegistry) DropPlayer(id int, reason string) bool       { return true }
func (stubRegistry) IsSynced(id int) bool                        { return true }

type stubTransport struct {
	broadcasts []string
	sent       map[int]string
}

func (t *stubTransport) Broadcast(msg string) { t.broadcasts = append(t.broadcasts, msg) }
func (t *stubTransport) SendTo(id int, msg string) {
	if t.sent == nil {
		t.sent = map[int]string{}
	}
	t.sent[id] = msg
}
func (t *stubTransport) Disconnect(id int, reason string) {}

func newTestInstance(t *testing.T) (*script.Instance, Deps, *capturingSink) {
	t.Helper()
	sink := &capturingSink{}
	inst := script.New("p", "plugin.lua", time.Time{}, false, sink)
	inst.Init()
	t.Cleanup(inst.Close)

	deps := Deps{
		Dispatch:  stubDispatcher{},
		Scheduler: &stubScheduler{},
		Registry:  stubRegistry{},
		Transport: &stubTransport{},
		Settings:  config.NewSettings("", "", "", 0, 0, false, false),
		Shutdown:  func(code int) {},
	}
	Install(inst, deps)
	return inst, deps, sink
}

type unsyncedRegistry struct{ stubRegistry }

func (unsyncedRegistry) IsSynced(id int) bool { return false }

func TestGetPlayerCount(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	inst.Execute(`result = GetPlayerCount()`)
	assert.Equal(t, lua.LNumber(2), inst.L.GetGlobal("result"))
}

func TestIsPlayerConnectedBadArgLogsIncorrectCall(t *testing.T) {
	inst, _, sink := newTestInstance(t)
	inst.Execute(`result = isPlayerConnected("not-a-number")`)
	assert.Contains(t, sink.last(), "Incorrect Call of isPlayerConnected")
	assert.Contains(t, sink.last(), "plugin.lua")
}

func TestGetPlayersDefaultKeysByID(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	inst.Execute(`
result = GetPlayers()
v = result[1]
`)
	assert.Equal(t, lua.LString("alice"), inst.L.GetGlobal("v"))
}

func TestGetPlayersLegacySequentialKeys(t *testing.T) {
	inst, deps, _ := newTestInstance(t)
	deps.Settings.LegacySequentialKeys.Store(true)
	inst.Execute(`
result = GetPlayers()
firstKey = result[1]
`)
	// With only player 1 resolving a name, sequential numbering still
	// starts at 1 for the first (and only) successfully resolved entry.
	assert.Equal(t, lua.LString("alice"), inst.L.GetGlobal("firstKey"))
}

func TestTriggerGlobalEventReturnsDispatcherResult(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	inst.Execute(`result = TriggerGlobalEvent("onTest", 1, 2)`)
	assert.Equal(t, lua.LNumber(9), inst.L.GetGlobal("result"))
}

func TestSendChatMessageBroadcastsOnNegativeID(t *testing.T) {
	inst, deps, _ := newTestInstance(t)
	inst.Execute(`SendChatMessage(-1, "hi everyone")`)
	tr := deps.Transport.(*stubTransport)
	require.Len(t, tr.broadcasts, 1)
	assert.Equal(t, "C:Server: hi everyone", tr.broadcasts[0])
}

func TestSendChatMessageTargetsPlayer(t *testing.T) {
	inst, deps, _ := newTestInstance(t)
	inst.Execute(`SendChatMessage(7, "psst")`)
	tr := deps.Transport.(*stubTransport)
	assert.Equal(t, "C:Server: psst", tr.sent[7])
}

func TestSendChatMessageSkipsUnsyncedPlayer(t *testing.T) {
	sink := &capturingSink{}
	inst := script.New("p", "plugin.lua", time.Time{}, false, sink)
	inst.Init()
	t.Cleanup(inst.Close)
	deps := Deps{
		Dispatch:  stubDispatcher{},
		Scheduler: &stubScheduler{},
		Registry:  unsyncedRegistry{},
		Transport: &stubTransport{},
		Settings:  config.NewSettings("", "", "", 0, 0, false, false),
		Shutdown:  func(code int) {},
	}
	Install(inst, deps)
	inst.Execute(`SendChatMessage(7, "psst")`)
	tr := deps.Transport.(*stubTransport)
	assert.Empty(t, tr.sent)
}

func TestRemoveVehicleBroadcastsDespawnMessage(t *testing.T) {
	inst, deps, _ := newTestInstance(t)
	inst.Execute(`RemoveVehicle(7, 3)`)
	tr := deps.Transport.(*stubTransport)
	require.Len(t, tr.broadcasts, 1)
	assert.Equal(t, "Od:7-3", tr.broadcasts[0])
}

func TestPrintQueuesOnePerArgument(t *testing.T) {
	inst, _, sink := newTestInstance(t)
	inst.Execute(`print("a", 1, true)`)
	assert.Equal(t, []string{"a", "1", "true"}, sink.printed)
}

func TestExitPassesCodeThrough(t *testing.T) {
	var got = -1
	sink := &capturingSink{}
	inst := script.New("p", "plugin.lua", time.Time{}, false, sink)
	inst.Init()
	t.Cleanup(inst.Close)
	deps := Deps{
		Dispatch:  stubDispatcher{},
		Scheduler: &stubScheduler{},
		Registry:  stubRegistry{},
		Transport: &stubTransport{},
		Settings:  config.NewSettings("", "", "", 0, 0, false, false),
		Shutdown:  func(code int) { got = code },
	}
	Install(inst, deps)
	inst.Execute(`exit(3)`)
	assert.Equal(t, 3, got)
}

func TestExitDefaultsToZero(t *testing.T) {
	var got = -1
	sink := &capturingSink{}
	inst := script.New("p", "plugin.lua", time.Time{}, false, sink)
	inst.Init()
	t.Cleanup(inst.Close)
	deps := Deps{
		Dispatch:  stubDispatcher{},
		Scheduler: &stubScheduler{},
		Registry:  stubRegistry{},
		Transport: &stubTransport{},
		Settings:  config.NewSettings("", "", "", 0, 0, false, false),
		Shutdown:  func(code int) { got = code },
	}
	Install(inst, deps)
	inst.Execute(`exit()`)
	assert.Equal(t, 0, got)
}

func TestTriggerLocalEventPushesNoReturnValue(t *testing.T) {
	inst, _, _ := newTestInstance(t)
	inst.Execute(`
function onLocal() return 5 end
RegisterEvent("onLocal", "onLocal")
result = TriggerLocalEvent("onLocal")
`)
	assert.Equal(t, lua.LNil, inst.L.GetGlobal("result"))
}

func TestSetUnknownKeyLogsIncorrectCall(t *testing.T) {
	inst, _, sink := newTestInstance(t)
	inst.Execute(`Set(99, "x")`)
	assert.Contains(t, sink.last(), "Incorrect Call of Set")
}

func TestCreateThreadAndStopThreadDelegateToScheduler(t *testing.T) {
	inst, deps, _ := newTestInstance(t)
	inst.Execute(`
CreateThread("tick", 10)
StopThread()
`)
	sched := deps.Scheduler.(*stubScheduler)
	assert.Equal(t, 1, sched.created)
	assert.Equal(t, 1, sched.stopped)
}
