// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gogpu/compute"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// ErrNoReloadPath is returned by StartWatcher when the configuration has no
// hot-reload path.
var ErrNoReloadPath = errors.New("compute: no hot-reload path configured")

// Reload swaps the running pipelines for ones compiled from the given WGSL
// source. The source is validated first; on any failure the currently
// running pipelines stay fully intact and the error is returned. On success
// the new module and pipelines are built before the old ones are destroyed,
// and the generation counter is incremented.
func (e *Engine) Reload(src string) error {
	if e.closed {
		return ErrEngineClosed
	}
	if src == "" {
		return ErrNoShaderSource
	}

	// Validate before touching any live resource.
	if _, err := naga.Compile(src); err != nil {
		return fmt.Errorf("compute: reload compile: %w", err)
	}

	module, err := e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  e.cfg.Label() + "_reload",
		Source: hal.ShaderSource{WGSL: src},
	})
	if err != nil {
		return fmt.Errorf("compute: reload shader module: %w", err)
	}

	pipelines, err := e.createPipelines(module, e.pipelineLayout)
	if err != nil {
		e.device.DestroyShaderModule(module)
		return err
	}

	oldPipelines := e.pipelines
	oldModule := e.shaderModule
	e.pipelines = pipelines
	e.shaderModule = module

	for _, p := range oldPipelines {
		if p != nil {
			e.device.DestroyComputePipeline(p)
		}
	}
	if oldModule != nil {
		e.device.DestroyShaderModule(oldModule)
	}

	e.generation++
	compute.Logger().Info("compute: pipelines reloaded",
		"label", e.cfg.Label(), "generation", e.generation)
	return nil
}

// pollReload drains the hot-reload mailbox once. Called at the top of every
// Dispatch, so a newly compiled kernel is picked up at most one frame after
// the watcher delivers it. A failed reload is logged and skipped; the
// running pipeline keeps serving frames.
func (e *Engine) pollReload() {
	select {
	case src := <-e.reloadCh:
		if err := e.Reload(src); err != nil {
			compute.Logger().Warn("compute: hot reload failed, keeping current pipeline",
				"label", e.cfg.Label(), "error", err)
		}
	default:
	}
}

// Watcher watches a WGSL source file and delivers its contents into the
// engine's reload mailbox on every change. The mailbox holds one pending
// source; newer edits replace older undelivered ones.
type Watcher struct {
	fsw  *fsnotify.Watcher
	path string
	done chan struct{}
}

// StartWatcher begins watching the configured hot-reload path. The watcher
// runs until Close. Watching the containing directory rather than the file
// itself survives editors that replace the file on save.
func (e *Engine) StartWatcher() error {
	if e.closed {
		return ErrEngineClosed
	}
	path := e.cfg.ReloadPath()
	if path == "" {
		return ErrNoReloadPath
	}
	if e.watcher != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("compute: create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return fmt.Errorf("compute: watch %s: %w", path, err)
	}

	w := &Watcher{fsw: fsw, path: path, done: make(chan struct{})}
	e.watcher = w
	go w.run(e.reloadCh)

	compute.Logger().Info("compute: hot reload watching", "path", path)
	return nil
}

// run forwards file changes into the reload mailbox until Close.
func (w *Watcher) run(reloadCh chan string) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			src, err := os.ReadFile(w.path)
			if err != nil {
				compute.Logger().Warn("compute: read reload source", "path", w.path, "error", err)
				continue
			}
			// Replace any undelivered source with the newest one.
			select {
			case <-reloadCh:
			default:
			}
			select {
			case reloadCh <- string(src):
			default:
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			compute.Logger().Warn("compute: watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() {
	close(w.done)
	w.fsw.Close()
}
