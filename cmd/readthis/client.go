package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avelis/readthis/internal/config"
	"github.com/avelis/readthis/internal/page"
	"github.com/avelis/readthis/internal/queue"
	"github.com/avelis/readthis/internal/reconcile"
	"github.com/avelis/readthis/internal/remote"
)

// engine bundles the pieces a command needs to capture and sync. Each CLI
// invocation is its own short-lived process over the shared queue file.
type engine struct {
	cfg    config.Config
	queue  *queue.Queue
	store  remote.Store
	rec    *reconcile.Reconciler
	pager  *page.Pager
	remote bool // whether remote config is present
}

func newEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	q, err := queue.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening queue: %w", err)
	}

	e := &engine{cfg: cfg, queue: q}
	if err := cfg.ValidateRemote(); err == nil {
		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.Token, cfg.Remote.UserID, cfg.CallTimeout())
		e.store = client
		e.rec = &reconcile.Reconciler{Store: client, CallTimeout: cfg.CallTimeout()}
		e.pager = &page.Pager{Store: remote.WithRetry(client), Limit: cfg.Sync.PageSize}
		e.remote = true
	}
	return e, nil
}

func (e *engine) close() {
	if err := e.queue.Close(); err != nil {
		printWarning("closing queue: %v", err)
	}
}

// requireRemote errors when a command needs the remote but config lacks it.
func (e *engine) requireRemote() error {
	if !e.remote {
		return e.cfg.ValidateRemote()
	}
	return nil
}

// notifyDaemon pings a running daemon so it re-syncs soon. Best effort: a
// stopped daemon or a refused connection is silently fine — its periodic
// drain is the correctness backstop.
func notifyDaemon(cfg config.Config, scope string) {
	token := cfg.Server.Token
	if token == "" {
		return
	}

	body, err := json.Marshal(map[string]string{"scope": scope})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/notify", cfg.Server.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
