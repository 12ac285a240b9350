package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/convert"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/history"
	"github.com/openmined/docsync/internal/localfs"
	"github.com/openmined/docsync/internal/manifest"
)

// workspace is everything a command needs to work on one sync root.
type workspace struct {
	cfg     *config.Config
	store   *manifest.Store
	files   *localfs.FS
	client  *docsdk.Client
	engine  *engine.Engine
	history *history.Log
	locked  bool
}

// openWorkspace loads the manifest under cfg's root. With lock set it also
// takes the cross-process manifest lock, held until close.
func openWorkspace(cfg *config.Config, lock bool) (*workspace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ws := &workspace{cfg: cfg, store: manifest.NewStore(cfg.MetaDir())}
	if lock {
		if err := ws.store.Lock(); err != nil {
			return nil, err
		}
		ws.locked = true
	}
	if err := ws.open(); err != nil {
		ws.close()
		return nil, err
	}
	return ws, nil
}

func (ws *workspace) open() error {
	if err := ws.store.Load(); err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			return fmt.Errorf("%w: run 'docsync init' in %s first", err, ws.cfg.RootDir)
		}
		return err
	}

	client, err := docsdk.New(ws.cfg.SDKConfig())
	if err != nil {
		return err
	}
	ws.client = client

	conv, err := convert.ByName(ws.cfg.Converter)
	if err != nil {
		return err
	}
	cached, err := convert.NewCached(conv, 0)
	if err != nil {
		return err
	}

	ws.files = localfs.NewOS(ws.cfg.RootDir)
	if ws.engine, err = engine.New(ws.cfg.EngineOptions(), ws.store, ws.client, ws.files, cached); err != nil {
		return err
	}

	ws.history, err = history.Open(filepath.Join(ws.cfg.MetaDir(), history.FileName))
	return err
}

// record keeps a finished report in the history log. History is best effort.
func (ws *workspace) record(ctx context.Context, r *engine.Report) {
	if ws.history == nil || r == nil {
		return
	}
	if err := ws.history.Record(ctx, r); err != nil {
		slog.Warn("history", "op", "record", "run", r.ID, "error", err)
		return
	}
	if _, err := ws.history.Prune(ctx, historyKeep); err != nil {
		slog.Warn("history", "op", "prune", "error", err)
	}
}

func (ws *workspace) close() {
	if ws.history != nil {
		ws.history.Close()
	}
	if ws.locked {
		ws.store.Unlock()
	}
}

const historyKeep = 200
