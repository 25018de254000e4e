// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/chainstat/pkg/logging"
)

// watchFiles calls onChange after paths are written, at most as often as
// limiter allows. Events queued while waiting collapse into one call.
// It returns nil when ctx is done.
//
// Parent directories are watched so files replaced by rename are still
// seen.
func watchFiles(ctx context.Context, paths []string, limiter *rate.Limiter, logger *logging.Logger, onChange func()) error {
	logger = logging.OrNop(logger)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	targets := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	logger.Info("watching for changes", "files", len(targets))

	relevant := func(ev fsnotify.Event) bool {
		return targets[filepath.Clean(ev.Name)] &&
			(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		drain:
			for {
				select {
				case <-w.Events:
				default:
					break drain
				}
			}
			logger.Debug("input changed", "file", ev.Name)
			onChange()
		}
	}
}
