package api

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/legisim/legisim/sim/parameters"
)

// reloadDebounce batches the events of an editor save into one reload.
const reloadDebounce = 200 * time.Millisecond

// ReloadParameters loads the parameter directory and serves a copy of the
// current system using it. On error the current system stays in place.
func (s *Server) ReloadParameters(dir string) error {
	tree, err := parameters.LoadDir(dir)
	if err != nil {
		s.metrics.reloads.WithLabelValues("error").Inc()
		return fmt.Errorf("reloading parameters from %s: %w", dir, err)
	}
	next := s.System().Clone()
	next.Parameters = tree
	s.SetSystem(next)
	s.metrics.reloads.WithLabelValues("ok").Inc()
	logrus.Infof("reloaded %d parameters from %s", len(tree.Leaves()), dir)
	return nil
}

// WatchParameters reloads the parameters whenever a YAML file under dir
// changes, until ctx is cancelled. Failed reloads are logged and counted.
func (s *Server) WatchParameters(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.Add(ev.Name); err != nil {
						logrus.Warnf("watching %s: %v", ev.Name, err)
					}
				}
			}
			if !isParameterFile(ev.Name) {
				continue
			}
			pending = time.After(reloadDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logrus.Warnf("parameter watcher: %v", err)
		case <-pending:
			pending = nil
			if err := s.ReloadParameters(dir); err != nil {
				logrus.Warnf("%v", err)
			}
		}
	}
}

func isParameterFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
