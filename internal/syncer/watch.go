package syncer

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/maruyamamtk/keiba-prediction/internal/format"
)

// Watcher triggers a sync pass when feed files under a root change.
// Bursts of events are coalesced into one pass after Debounce.
type Watcher struct {
	Root     string
	Debounce time.Duration
	Log      logrus.FieldLogger
}

// Run blocks until ctx is done, calling pass after each settled burst of
// changes. Errors from pass are logged; watching continues.
func (w *Watcher) Run(ctx context.Context, pass func(ctx context.Context) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.Root); err != nil {
		return err
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	w.Log.WithField("root", w.Root).Info("watching for feed file changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(fw, ev.Name); err != nil {
					w.Log.WithError(err).Warn("failed to watch new directory")
				}
			}
			if !w.relevant(ev) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Log.WithError(err).Warn("watcher error")
		case <-timer.C:
			if err := pass(ctx); err != nil {
				w.Log.WithError(err).Error("sync pass failed")
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	_, _, ok := format.ParseFileName(filepath.Base(ev.Name))
	return ok
}

// addTree watches dir and its subdirectories; fsnotify is not recursive.
// Non-directories are ignored.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.Root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
