// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package prelogin

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"

	"github.com/glowline/glowline/pkg/errutil"
)

// Watch reloads the rule file whenever it changes until ctx is done.
// ready, if non-nil, is closed once the watch is registered.
func (g *RuleGate) Watch(ctx context.Context, ready chan<- struct{}) error {
	if g.path == "" {
		return oops.Code("POLICY_INVALID").Errorf("rule gate has no backing file")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return oops.Code("POLICY_WATCH_FAILED").Wrap(err)
	}
	defer func() {
		_ = w.Close()
	}()

	// Editors replace files by rename, which drops a watch on the file
	// itself, so watch the directory.
	dir := filepath.Dir(g.path)
	if err := w.Add(dir); err != nil {
		return oops.Code("POLICY_WATCH_FAILED").With("path", dir).Wrap(err)
	}
	if ready != nil {
		close(ready)
	}
	target := filepath.Clean(g.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := g.Reload(); err != nil {
				errutil.LogError(g.logger, "pre-login rules reload failed, keeping previous rules", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			g.logger.Warn("pre-login rules watcher error", "error", err)
		}
	}
}
