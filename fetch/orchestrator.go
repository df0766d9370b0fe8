// Package fetch coordinates cache reads with single-flight background
// refreshes.
//
// A request never blocks on an upstream call: fresh entries are served from
// disk, stale entries are served as-is while a refresh runs in the
// background, and absent entries answer "processing" (or the last recorded
// failure) while the first fetch runs. At most one upstream call is in
// flight per repository key at any time.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skorotkiewicz/checkup/cache"
	"github.com/skorotkiewicz/checkup/client"
	"github.com/skorotkiewicz/checkup/internal/core"
	"github.com/skorotkiewicz/checkup/render"
)

// State classifies a Resolve result.
type State int

const (
	// StateFresh carries a committed entry (possibly stale-but-refreshing).
	StateFresh State = iota
	// StateProcessing means the first fetch for this key is in flight.
	StateProcessing
	// StateFailed carries the message of the last failed fetch.
	StateFailed
)

// Result is the outcome of resolving one repository key.
type Result struct {
	State    State
	Entry    *core.CachedReleases
	Message  string
	FailedAt time.Time
}

// keyState is the per-key fetch state. It lives in memory only: recorded
// errors do not survive a restart.
type keyState struct {
	mu       sync.Mutex
	fetching bool
	errMsg   string
	errAt    time.Time
}

// Orchestrator decides cached vs. stale vs. absent and runs background
// fetches. Providers never touch the store; all commits happen here.
type Orchestrator struct {
	store     *cache.Store
	providers map[core.Platform]core.Provider
	ttl       time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	group  singleflight.Group
	states sync.Map // key string -> *keyState
}

// New builds an orchestrator with one provider per registered platform.
func New(store *cache.Store, httpClient *client.Client, ttl, timeout time.Duration, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	providers := make(map[core.Platform]core.Provider)
	for _, platform := range core.SupportedPlatforms() {
		p, err := core.New(platform, "", httpClient)
		if err != nil {
			return nil, err
		}
		providers[platform] = p
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers registered")
	}

	return &Orchestrator{
		store:     store,
		providers: providers,
		ttl:       ttl,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Store returns the cache store the orchestrator commits to.
func (o *Orchestrator) Store() *cache.Store {
	return o.store
}

// Resolve returns the current answer for key without ever blocking on an
// upstream call.
//
// Policy for expired entries: the stale entry is served immediately and a
// refresh runs in the background. Scripted consumers always get an answer;
// the next request after the refresh sees the new data.
func (o *Orchestrator) Resolve(key core.RepoKey) Result {
	entry, err := o.store.Get(key)
	if err != nil {
		// Unreadable partitions are treated as absent and re-fetched.
		o.logger.Warn("cache read failed", "key", key.String(), "err", err)
		entry = nil
	}

	if entry != nil {
		if !cache.Fresh(entry, o.ttl) {
			o.kick(key)
		}
		return Result{State: StateFresh, Entry: entry}
	}

	st := o.state(key)
	st.mu.Lock()
	msg, at := st.errMsg, st.errAt
	st.mu.Unlock()

	o.kick(key)

	if msg != "" {
		return Result{State: StateFailed, Message: msg, FailedAt: at}
	}
	return Result{State: StateProcessing}
}

// HTML returns the committed pre-rendered page for key, nil when absent.
func (o *Orchestrator) HTML(key core.RepoKey) []byte {
	html, err := o.store.GetHTML(key)
	if err != nil {
		o.logger.Warn("cache html read failed", "key", key.String(), "err", err)
		return nil
	}
	return html
}

func (o *Orchestrator) state(key core.RepoKey) *keyState {
	st, _ := o.states.LoadOrStore(key.String(), &keyState{})
	return st.(*keyState)
}

// kick starts a background fetch for key unless one is already in flight;
// concurrent kicks for the same key collapse into a single upstream call.
func (o *Orchestrator) kick(key core.RepoKey) {
	k := key.String()
	go func() {
		o.group.Do(k, func() (any, error) {
			o.doFetch(key)
			return nil, nil
		})
	}()
}

func (o *Orchestrator) doFetch(key core.RepoKey) {
	st := o.state(key)
	st.mu.Lock()
	st.fetching = true
	st.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	start := time.Now()
	err := o.fetchAndCommit(ctx, key)

	st.mu.Lock()
	st.fetching = false
	if err != nil {
		st.errMsg = err.Error()
		st.errAt = time.Now()
	} else {
		st.errMsg = ""
		st.errAt = time.Time{}
	}
	st.mu.Unlock()

	if err != nil {
		o.logger.Warn("fetch failed", "key", key.String(), "platform", key.Platform, "err", err)
		return
	}
	o.logger.Info("fetched releases", "key", key.String(), "platform", key.Platform, "took", time.Since(start))
}

// fetchAndCommit runs the provider and commits the result. A cache write
// failure is a fetch failure: nothing partial is ever committed.
func (o *Orchestrator) fetchAndCommit(ctx context.Context, key core.RepoKey) error {
	provider, ok := o.providers[key.Platform]
	if !ok {
		return fmt.Errorf("unknown platform: %s", key.Platform)
	}

	releases, err := provider.FetchReleases(ctx, key)
	if err != nil {
		return err
	}

	entry := &core.CachedReleases{
		Releases: releases,
		CachedAt: time.Now().UTC(),
		RepoPath: key.String(),
	}

	html, err := render.Releases(entry, key.Platform)
	if err != nil {
		return err
	}

	return o.store.Put(key, entry, html)
}

// Warm refreshes every key already present in the store, fanning out across
// a bounded worker pool. Independent keys fetch in parallel; each key still
// goes through the single-flight group. Returns the number of keys visited.
func (o *Orchestrator) Warm(ctx context.Context, concurrency int) int {
	if concurrency < 1 {
		concurrency = 1
	}

	keys, err := o.store.Keys()
	if err != nil {
		o.logger.Warn("cache walk failed", "err", err)
		return 0
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(1)
		go func(k core.RepoKey) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			o.group.Do(k.String(), func() (any, error) {
				o.doFetch(k)
				return nil, nil
			})
		}(key)
	}

	wg.Wait()
	return len(keys)
}
