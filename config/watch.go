package config

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration whenever one of the config files is
// written, created, renamed or removed, then calls onChange with the result
// of the reload. The directories are watched rather than the files, so
// editors replacing a file are noticed too.
//
// Watch blocks until ctx is done.
func (h *Loader) Watch(ctx context.Context, onChange func(error)) error {
	files := h.Files()
	if len(files) == 0 {
		return errors.New("config: no files to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, f := range files {
		name := filepath.Clean(f.Name())
		watched[name] = true
		dir := filepath.Dir(name)
		if !dirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return err
			}
			dirs[dir] = true
		}
	}

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] || event.Op&relevant == 0 {
				continue
			}
			onChange(h.Load())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onChange(err)
		}
	}
}
