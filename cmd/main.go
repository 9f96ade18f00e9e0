package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/beamnet/drivesim-server/internal/adminhttp"
	"github.com/beamnet/drivesim-server/internal/config"
	"github.com/beamnet/drivesim-server/internal/console"
	"github.com/beamnet/drivesim-server/internal/dispatch"
	"github.com/beamnet/drivesim-server/internal/engine"
	"github.com/beamnet/drivesim-server/internal/hostapi"
	"github.com/beamnet/drivesim-server/internal/logger"
	"github.com/beamnet/drivesim-server/internal/registry"
	"github.com/beamnet/drivesim-server/internal/schedule"
	"github.com/beamnet/drivesim-server/internal/script"
	"github.com/beamnet/drivesim-server/internal/transport"
	"github.com/beamnet/drivesim-server/internal/worker"
)

func main() {
	cfg := config.Load()
	logger.Initialize(envOr("LOG_LEVEL", "info"), envOr("LOG_PRETTY", "true") == "true")

	sink := console.NewSink(cfg.ServerLogPath, nil)
	settings := config.NewSettings("", "drivesim-server", "", 0, 0, false, false)

	hub := transport.NewHub()
	baseRegistry := registry.New()
	clientRegistry := registry.NewCache(baseRegistry, cfg.RedisAddr)

	pool := worker.New()
	remoteBus := dispatch.DialRemoteBus(cfg.NATSURL)
	defer remoteBus.Close()

	disp := dispatch.New(nil, time.Duration(cfg.EventInnerTimeout)*time.Second, time.Duration(cfg.EventOuterTimeout)*time.Second, remoteBus)
	disp.SetSender(hub)

	// eng is referenced by the install callback below before it exists;
	// the callback only runs when a Script Instance is actually
	// initialized (InitConsole/LoadFile), which happens after eng is
	// assigned, so the closure observes a valid pointer by the time it's
	// called.
	var eng *engine.Engine
	eng = engine.New(sink, func(inst *script.Instance) {
		hostapi.Install(inst, hostapi.Deps{
			Engine:    engineLookup{eng},
			Dispatch:  disp,
			Scheduler: pool,
			Registry:  clientRegistry,
			Transport: hub,
			Settings:  settings,
			Shutdown:  os.Exit,
		})
	})
	disp.SetRegistry(eng)

	consoleInstance := eng.InitConsole()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if errs := eng.LoadDir(cfg.ScriptDir); len(errs) > 0 {
		for _, err := range errs {
			logger.Script().Warn().Err(err).Msg("plugin failed to load")
		}
	}

	reloadHook := func(name, path string) {
		if _, err := eng.LoadFile(name, path); err != nil {
			logger.Script().Warn().Err(err).Str("plugin", name).Msg("hot reload failed")
		}
	}

	watcher, err := schedule.NewFileWatcher(cfg.ScriptDir, reloadHook)
	if err != nil {
		logger.Script().Warn().Err(err).Msg("file watcher unavailable, falling back to polling")
		if ticker, terr := schedule.NewFileWatchTicker(cfg.ScriptDir, "@every 5s", reloadHook); terr == nil {
			ticker.Start()
			defer ticker.Stop()
		}
	} else {
		defer watcher.Close()
	}

	if cfg.AdminHTTPAddr != "" {
		admin := adminhttp.New(eng)
		go func() {
			if err := admin.Run(cfg.AdminHTTPAddr); err != nil && err != http.ErrServerClosed {
				logger.Scheduler().Warn().Err(err).Msg("admin http server stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.ConsoleEnabled {
		c := console.New(sink, consoleInstance, cancel)
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
		go func() {
			<-ctx.Done()
			os.Stdin.Close()
		}()
		c.Run()
	} else {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
	}

	eng.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// engineLookup adapts *engine.Engine to hostapi.Engine.
type engineLookup struct{ e *engine.Engine }

func (a engineLookup) FindByState(L *lua.LState) (*script.Instance, bool) {
	return a.e.FindByState(L)
}
