package config

import (
	"bufio"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"

	"gecko/internal/logging"
	"gecko/internal/services"
)

// Watcher applies hot-reloadable knobs (profiler/log minimum level) from a
// simple "key=value" file whenever it changes on disk, the same
// fsnotify-driven live-apply pattern the teacher's reconfiguration code
// uses. Lines are "profiler_min_level=<0,1,2>" and "log_min_level=<0..3>".
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	profiler services.Profiler
	logger   services.Logger
	logOut   *slog.Logger
	done     chan struct{}
}

// NewWatcher opens path and starts watching it for changes, applying
// updates to profiler and logger as they land. Either service may be nil
// to skip that half of the reload.
func NewWatcher(path string, profiler services.Profiler, logger services.Logger, logOut *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		fsw:      fsw,
		profiler: profiler,
		logger:   logger,
		logOut:   logging.Default(logOut).With("component", "config"),
		done:     make(chan struct{}),
	}
	w.applyFromFile()
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.applyFromFile()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logOut.Warn("config watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) applyFromFile() {
	f, err := os.Open(w.path)
	if err != nil {
		w.logOut.Warn("could not reopen config file for hot reload", "path", w.path, "error", err)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "profiler_min_level":
			if n, err := strconv.Atoi(value); err == nil && w.profiler != nil {
				w.profiler.SetMinLevel(services.ProfLevel(n))
				w.logOut.Info("applied hot-reloaded profiler min level", "level", n)
			}
		case "log_min_level":
			if n, err := strconv.Atoi(value); err == nil && w.logger != nil {
				w.logger.SetLevel(services.LogLevel(n))
				w.logOut.Info("applied hot-reloaded log min level", "level", n)
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
