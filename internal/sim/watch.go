package sim

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ModeWatcher reloads the fault mode from the config file whenever it
// changes, so a running simulator can be switched between normal, busy and
// offline without a restart.
type ModeWatcher struct {
	path        string
	device      *Device
	watcher     *fsnotify.Watcher
	log         logrus.FieldLogger
	reloadDelay time.Duration

	mu    sync.Mutex
	timer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// WatchMode starts watching path and applies mode changes to device.
func WatchMode(path string, device *Device, log logrus.FieldLogger) (*ModeWatcher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch config file %s: %w", abs, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	mw := &ModeWatcher{
		path:        abs,
		device:      device,
		watcher:     watcher,
		log:         log.WithField("component", "mode-watcher"),
		reloadDelay: 200 * time.Millisecond,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go mw.watchLoop()
	return mw, nil
}

// Stop stops watching. It is safe to call more than once.
func (mw *ModeWatcher) Stop() error {
	mw.cancel()
	err := mw.watcher.Close()
	<-mw.done
	mw.mu.Lock()
	if mw.timer != nil {
		mw.timer.Stop()
	}
	mw.mu.Unlock()
	return err
}

func (mw *ModeWatcher) watchLoop() {
	defer close(mw.done)
	for {
		select {
		case <-mw.ctx.Done():
			return
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			mw.handleFileEvent(event)
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.log.WithError(err).Warn("config watcher error")
		}
	}
}

func (mw *ModeWatcher) handleFileEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != mw.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	// Coalesce bursts of events into one reload after the file settles.
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.timer != nil {
		mw.timer.Stop()
	}
	mw.timer = time.AfterFunc(mw.reloadDelay, mw.reload)
}

func (mw *ModeWatcher) reload() {
	if mw.ctx.Err() != nil {
		return
	}
	cfg, err := LoadConfig(mw.path)
	if err != nil {
		mw.log.WithError(err).Warn("failed to reload config, keeping current mode")
		return
	}
	if err := mw.device.SetMode(cfg.Mode); err != nil {
		mw.log.WithError(err).Warn("failed to apply mode")
	}
}
