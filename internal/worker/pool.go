// Package worker implements the Background Worker Pool: per-instance
// BackgroundTask goroutines that repeatedly invoke a named script function
// at a clamped frequency until cooperatively cancelled. Grounded on the
// teacher's plugins.PluginScheduler (cron.Cron wrapping, panic recovery per
// job) but driven by a plain ticker rather than cron expressions, since
// CreateThread's contract is "N times per second," not "at these times."
package worker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beamnet/drivesim-server/internal/bridge"
	"github.com/beamnet/drivesim-server/internal/logger"
	"github.com/beamnet/drivesim-server/internal/script"
)

const (
	minHz = 1
	maxHz = 500
)

// clampHz bounds a requested frequency to [minHz, maxHz] (spec.md §4.4).
func clampHz(hz int) int {
	if hz < minHz {
		return minHz
	}
	if hz > maxHz {
		return maxHz
	}
	return hz
}

// Pool tracks the running background tasks per Script Instance. Scripts
// never receive a thread handle or identity back from CreateThread; the
// only control surface is StopThread, which flips the owning instance's
// cooperative stop flag, observed at the next period boundary.
type Pool struct {
	mu    sync.Mutex
	tasks map[*script.Instance][]*task
}

// task is never exposed to scripts; id appears only in the panic-recovery
// log line, where it tells apart tasks that share a functionName on the
// same instance.
type task struct {
	id           string
	functionName string
	stop         chan struct{}
	done         chan struct{}
}

// New creates an empty Background Worker Pool.
func New() *Pool {
	return &Pool{tasks: make(map[*script.Instance][]*task)}
}

// CreateThread starts a new background task on owner invoking functionName
// hz times per second, clamped to [1, 500]. Period = floor(1000/hz) ms. The
// task runs until StopThread(owner) or StopAll(owner) is called; closing
// the instance does not stop it. Each period boundary checks owner.GetStopThread() before re-invoking, so
// a script that never calls StopThread leaves its handler running in a
// dedicated goroutine for the life of the instance — retained deliberately,
// matching the original's behavior, rather than papered over with an
// artificial cap (see design notes).
func (p *Pool) CreateThread(owner *script.Instance, functionName string, hz int) {
	hz = clampHz(hz)
	period := time.Duration(1000/hz) * time.Millisecond
	if period <= 0 {
		period = time.Millisecond
	}

	t := &task{
		id:           uuid.NewString(),
		functionName: functionName,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	p.mu.Lock()
	p.tasks[owner] = append(p.tasks[owner], t)
	p.mu.Unlock()

	go p.run(owner, t, period)
}

func (p *Pool) run(owner *script.Instance, t *task, period time.Duration) {
	defer close(t.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if owner.GetStopThread() {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Scheduler().Error().
							Str("task_id", t.id).
							Str("function", t.functionName).
							Str("origin", owner.Origin()).
							Interface("panic", r).
							Msg("background task panic recovered")
					}
				}()
				owner.Call(t.functionName, bridge.Args{})
			}()
		}
	}
}

// StopThread signals every running background task owned by owner to stop
// at its next period boundary, and resets the instance's cooperative flag
// so a subsequent CreateThread call starts clean.
func (p *Pool) StopThread(owner *script.Instance) {
	owner.SetStopThread(true)

	p.mu.Lock()
	tasks := p.tasks[owner]
	delete(p.tasks, owner)
	p.mu.Unlock()

	for _, t := range tasks {
		close(t.stop)
	}
	owner.SetStopThread(false)
}

// StopAll halts every task owned by owner without waiting for exit and
// without touching owner's stop flag. Nothing in this module calls it; the
// engine's Unload and LoadFile close instances without stopping their tasks.
func (p *Pool) StopAll(owner *script.Instance) {
	p.mu.Lock()
	tasks := p.tasks[owner]
	delete(p.tasks, owner)
	p.mu.Unlock()
	for _, t := range tasks {
		close(t.stop)
	}
}
