package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk and hands every
// valid result to a callback. Invalid edits are logged and skipped.
type Watcher struct {
	path     string
	onChange func(*Config)
	log      *log.Logger
	settle   time.Duration

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// Watch starts watching path. Editors often replace files instead of
// writing them in place, so the parent directory is watched.
func Watch(path string, onChange func(*Config), l *log.Logger) (*Watcher, error) {
	if l == nil {
		l = log.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     abs,
		onChange: onChange,
		log:      l.WithPrefix("config"),
		settle:   200 * time.Millisecond,
		fsw:      fsw,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.loop(ctx)
	w.log.Debug("watching", "path", abs)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if abs, _ := filepath.Abs(event.Name); abs != w.path {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

// schedule coalesces the burst of events a single save produces.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.settle, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error("reload rejected", "err", err)
		return
	}
	w.log.Info("reloaded", "path", w.path)
	w.onChange(cfg)
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsw.Close()
	<-w.done
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}
