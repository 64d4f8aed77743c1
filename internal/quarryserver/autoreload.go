package quarryserver

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/r9s-ai/quarry/internal/config"
	"github.com/r9s-ai/quarry/pkg/quarry"
)

// installEndpointsAutoReload watches the endpoints file and reloads the
// registry after changes settle for debounce_ms. The parent directory is
// watched so editors that replace the file by rename are still seen.
func installEndpointsAutoReload(cfg *config.Config, st *state, transport quarry.Transport, mu *sync.Mutex) (io.Closer, error) {
	if cfg == nil || st == nil || mu == nil {
		return nil, nil
	}
	if !cfg.Quarry.AutoReload.Enabled {
		return nil, nil
	}
	file := strings.TrimSpace(cfg.Quarry.File)
	if file == "" {
		return nil, nil
	}
	file = filepath.Clean(file)
	debounce := time.Duration(cfg.Quarry.AutoReload.DebounceMs) * time.Millisecond

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		resetTimer := func() {
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
			timerC = timer.C
		}

		for {
			select {
			case <-stopCh:
				if timer != nil {
					timer.Stop()
				}
				return
			case <-timerC:
				timerC = nil
				runReload(cfg, st, transport, mu, "auto")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("endpoints auto-reload watcher error: %v", err)
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if shouldTriggerEndpointsReload(evt, file) {
					resetTimer()
				}
			}
		}
	}()

	log.Printf("endpoints auto-reload enabled: file=%q debounce_ms=%d", file, cfg.Quarry.AutoReload.DebounceMs)
	return closerFunc(func() error {
		close(stopCh)
		_ = watcher.Close()
		<-doneCh
		return nil
	}), nil
}

func shouldTriggerEndpointsReload(evt fsnotify.Event, file string) bool {
	if strings.TrimSpace(evt.Name) == "" {
		return false
	}
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Chmod) == 0 {
		return false
	}
	return filepath.Clean(evt.Name) == file
}
