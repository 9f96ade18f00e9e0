package schedule

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/beamnet/drivesim-server/internal/logger"
)

// FileWatchTicker polls a script directory's file modification times on a
// cron schedule, as a fallback reload trigger for filesystems where
// fsnotify events are unreliable (network mounts, some container
// overlays). Grounded on the teacher's plugins.PluginScheduler, which
// wraps a single shared *cron.Cron the same way — repurposed here from
// scheduled plugin jobs to a periodic mtime scan.
type FileWatchTicker struct {
	cron     *cron.Cron
	dir      string
	onChange ReloadFunc

	mu      sync.Mutex
	mtime   map[string]int64 // path -> unix nano, last observed
	primed  bool             // false until the first poll has seeded a baseline
}

// NewFileWatchTicker builds a ticker polling dir on cronExpr (standard
// five-field cron syntax or a descriptor such as "@every 10s"). Start must be called to
// begin polling.
func NewFileWatchTicker(dir, cronExpr string, onChange ReloadFunc) (*FileWatchTicker, error) {
	ft := &FileWatchTicker{
		cron:     cron.New(),
		dir:      dir,
		onChange: onChange,
		mtime:    make(map[string]int64),
	}
	if _, err := ft.cron.AddFunc(cronExpr, ft.poll); err != nil {
		return nil, err
	}
	return ft, nil
}

// Start begins the polling schedule in the background.
func (ft *FileWatchTicker) Start() { ft.cron.Start() }

// Stop halts the polling schedule, waiting for any in-flight poll to
// finish.
func (ft *FileWatchTicker) Stop() { <-ft.cron.Stop().Done() }

func (ft *FileWatchTicker) poll() {
	entries, err := os.ReadDir(ft.dir)
	if err != nil {
		logger.Scheduler().Warn().Err(err).Str("dir", ft.dir).Msg("file watch ticker read failed")
		return
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()
	firstPoll := !ft.primed
	ft.primed = true
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		path := filepath.Join(ft.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		nano := info.ModTime().UnixNano()
		prev, seen := ft.mtime[path]
		ft.mtime[path] = nano
		if firstPoll || (seen && prev == nano) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".lua")
		logger.Scheduler().Info().Str("plugin", name).Str("path", path).Msg("script file changed (poll)")
		ft.onChange(name, path)
	}
}
