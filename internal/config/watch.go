// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow absorbs the burst of filesystem events one editor save
// produces into a single reload.
const debounceWindow = 200 * time.Millisecond

// Watcher reloads the configuration when its file changes on disk.
type Watcher struct {
	path    string
	fw      *fsnotify.Watcher
	updates chan *Config
	stop    chan struct{}
}

// Watch starts watching the given config file. Each successful reload is
// delivered on Updates; invalid edits are logged and skipped, keeping the
// last good configuration in effect.
func Watch(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files by rename,
	// which drops a watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		fw:      fw,
		updates: make(chan *Config, 1),
		stop:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Updates delivers each successfully reloaded configuration.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.fw.Close()
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("config watch error: %v", err)

		case <-timerC:
			cfg, err := LoadFromPath(w.path)
			if err != nil {
				log.Printf("config reload skipped: %v", err)
				continue
			}
			// Coalesce: drop a pending update the consumer never read.
			select {
			case <-w.updates:
			default:
			}
			w.updates <- cfg
		}
	}
}
