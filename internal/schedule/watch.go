// Package schedule triggers Plugin Engine reloads from filesystem changes,
// primarily via fsnotify's event-driven watch and, where fsnotify isn't
// available or reliable (network filesystems, some containers), a
// robfig/cron-driven mtime poll as a fallback. Grounded on fsnotify usage
// in the pack's goop2 reference file and on the teacher's
// plugins.PluginScheduler wrapping of a shared *cron.Cron.
package schedule

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/beamnet/drivesim-server/internal/logger"
)

// ReloadFunc adapts a plain function to act as the engine hook a watcher
// invokes per changed file; kept decoupled from engine.Engine's concrete
// type so schedule doesn't need to import gopher-lua transitively.
type ReloadFunc func(pluginName, path string)

// FileWatcher watches a script directory for write/create events and
// invokes onChange for every *.lua file that changes.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onChange ReloadFunc
	done     chan struct{}
}

// NewFileWatcher starts watching dir. onChange is invoked with the plugin
// name (basename without extension) and full path whenever a .lua file
// inside dir is written or created.
func NewFileWatcher(dir string, onChange ReloadFunc) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	fw := &FileWatcher{watcher: w, dir: dir, onChange: onChange, done: make(chan struct{})}
	go fw.run()
	return fw, nil
}

func (fw *FileWatcher) run() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".lua") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := strings.TrimSuffix(filepath.Base(event.Name), ".lua")
			logger.Scheduler().Info().Str("plugin", name).Str("path", event.Name).Msg("script file changed")
			fw.onChange(name, event.Name)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logger.Scheduler().Warn().Err(err).Msg("file watcher error")
		case <-fw.done:
			return
		}
	}
}

// Close stops the watcher.
func (fw *FileWatcher) Close() {
	close(fw.done)
	fw.watcher.Close()
}
