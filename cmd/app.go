package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/tally/internal/cache"
	"github.com/marcus/tally/internal/config"
	"github.com/marcus/tally/internal/connectivity"
	"github.com/marcus/tally/internal/identity"
	"github.com/marcus/tally/internal/localstore"
	"github.com/marcus/tally/internal/output"
	"github.com/marcus/tally/internal/queue"
	"github.com/marcus/tally/internal/remote"
	"github.com/marcus/tally/internal/store"
)

// app is one CLI invocation's wiring: local storage, remote client,
// connectivity and the entity store over them.
type app struct {
	local  *localstore.Store
	client *remote.Client
	conn   *connectivity.Monitor
	cache  *cache.Cache
	queue  *queue.Queue
	store  *store.Store
	owner  string

	mu      sync.Mutex
	notices []string
	// live receives notices instead of notices while the dashboard runs.
	live chan string
}

// credentials resolves who is signed in: config overrides saved credentials.
func credentials() (*identity.Credentials, error) {
	creds, err := identity.LoadCredentials(config.Dir())
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if creds == nil {
		creds = &identity.Credentials{}
	}
	if cfg.User.ID != "" {
		creds.UserID = cfg.User.ID
	}
	if cfg.Remote.APIKey != "" {
		creds.APIKey = cfg.Remote.APIKey
	}
	if creds.ServerURL == "" {
		creds.ServerURL = cfg.Remote.URL
	}
	return creds, nil
}

// openApp wires everything and loads the collections. Connectivity starts
// from a health probe unless --offline was given.
func openApp(ctx context.Context) (*app, error) {
	creds, err := credentials()
	if err != nil {
		return nil, err
	}
	owner, ok := creds.OwnerID()
	if !ok {
		return nil, fmt.Errorf("%w (run: tally login)", store.ErrNoOwner)
	}

	local, err := localstore.Open(cfg.DataDir, localstore.WithQuota(cfg.Storage.QuotaBytes))
	if err != nil {
		return nil, err
	}

	a := &app{local: local, owner: owner}
	a.cache = cache.New(local, cache.WithTTL(cfg.Cache.TTL))
	a.queue = queue.Load(local, queue.WithStorageFullHook(func() {
		n := a.cache.PurgeExpired()
		slog.Info("local storage full, purged expired snapshots", "purged", n)
	}))
	a.client = remote.New(creds.ServerURL, creds.APIKey)
	a.conn = connectivity.New(connectivity.WithInitial(a.probe(ctx)))
	a.store = store.New(a.client, a.conn, identity.Static(owner), a.cache, a.queue,
		store.WithNotifier(store.NotifierFunc(a.notify)))

	if err := a.store.Load(ctx); err != nil {
		local.Close()
		return nil, err
	}
	return a, nil
}

// probe reports whether the remote service answers its health check.
func (a *app) probe(ctx context.Context) bool {
	if offlineRun {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Sync.ProbeTimeout)
	defer cancel()
	if _, err := a.client.HealthCheck(ctx); err != nil {
		slog.Debug("remote unreachable, working offline", "url", a.client.BaseURL, "err", err)
		return false
	}
	return true
}

func (a *app) notify(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.live != nil {
		select {
		case a.live <- msg:
		default:
		}
		return
	}
	a.notices = append(a.notices, msg)
}

// streamNotices routes later store messages to the returned channel.
func (a *app) streamNotices(buf int) <-chan string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = make(chan string, buf)
	for _, n := range a.notices {
		select {
		case a.live <- n:
		default:
		}
	}
	a.notices = nil
	return a.live
}

// flushNotices prints collected store messages once the command is done.
func (a *app) flushNotices() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if jsonOutput {
		a.notices = nil
		return
	}
	for _, n := range a.notices {
		output.Info("%s", n)
	}
	a.notices = nil
}

func (a *app) close() {
	a.flushNotices()
	if err := a.local.Close(); err != nil {
		slog.Debug("close local store", "err", err)
	}
}

// withApp runs fn against a loaded app, then drains the queue when
// automatic sync is on and the remote is reachable.
func withApp(mutates bool, fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		reportErr(err)
		return err
	}
	defer a.close()

	if err := fn(ctx, a); err != nil {
		reportErr(err)
		return err
	}
	if mutates {
		a.autoSync(ctx)
	}
	return nil
}

// autoSync drains whatever the command left queued. Failures stay queued
// for the next run.
func (a *app) autoSync(ctx context.Context) {
	if !cfg.Sync.Auto || !a.conn.Online() || a.store.PendingCount() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := a.store.SyncQueue(ctx); err != nil {
		slog.Debug("autosync: drain stopped", "err", err)
	}
}

func reportErr(err error) {
	if jsonOutput {
		output.JSONError(errorCode(err), err.Error())
		return
	}
	output.Error("%v", err)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrNoOwner):
		return output.ErrCodeNoOwner
	case errors.Is(err, store.ErrEntityNotFound):
		return output.ErrCodeNotFound
	case errors.Is(err, localstore.ErrQuotaExceeded):
		return output.ErrCodeStorage
	case errors.Is(err, remote.ErrUnavailable), errors.Is(err, remote.ErrRejected):
		return output.ErrCodeRemote
	}
	return output.ErrCodeInvalidInput
}
