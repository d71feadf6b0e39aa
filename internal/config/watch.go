package config

import (
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on write events, notifying subscribers
// with the freshly-validated Config. cmd/bdi-agent uses it to re-apply
// the filters section, which operators commonly tune without a restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  func(*Config, error)
}

func NewWatcher(path string, onLoad func(*Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{path: path, watcher: fsw, onLoad: onLoad}, nil
}

// Run blocks, reloading and invoking onLoad whenever the config file
// changes, until stop is closed.
func (w *Watcher) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				cfg, err := Load(w.path)
				w.onLoad(cfg, err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onLoad(nil, err)
		}
	}
}
