// Package listingcache keeps normalized search results in a key/value store
// and serves them stale-while-revalidate.
package listingcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/yourorg/rental-api/internal/redisx"
	"github.com/yourorg/rental-api/internal/refresh"
	"go.uber.org/zap"
)

// Status tells the caller where a result came from.
type Status string

const (
	StatusHit    Status = "hit"
	StatusStale  Status = "stale"
	StatusMiss   Status = "miss"
	StatusBypass Status = "bypass"
)

// KV is the subset of redisx.Client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, val string, ttl time.Duration) error
	SetNX(ctx context.Context, key string, val string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// Enqueuer schedules background refreshes. *refresh.Refresher satisfies it.
type Enqueuer interface {
	Enqueue(j refresh.Job) bool
}

type Options struct {
	TTL         time.Duration
	StaleAfter  time.Duration
	NegativeTTL time.Duration
	LockTTL     time.Duration
}

type Cache struct {
	kv          KV
	refresher   Enqueuer
	ttl         time.Duration
	staleAfter  time.Duration
	negativeTTL time.Duration
	lockTTL     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		LastFetch  time.Time `json:"last_fetch"`
		StaleAfter time.Time `json:"stale_after"`
		Count      int       `json:"count"`
	} `json:"meta"`
}

func New(kv KV, refresher Enqueuer, opts Options, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		kv:          kv,
		refresher:   refresher,
		ttl:         maxDur(opts.TTL, time.Hour),
		staleAfter:  maxDur(opts.StaleAfter, 5*time.Minute),
		negativeTTL: maxDur(opts.NegativeTTL, time.Minute),
		lockTTL:     maxDur(opts.LockTTL, 8*time.Second),
		logger:      logger.Named("listingcache"),
		now:         time.Now,
	}
}

// Fetch returns the cached value for key, calling fetch on a miss. A stale
// entry is served as-is and a refresh is queued in the background. A nil
// cache, or one whose store is unreachable, calls fetch directly.
func Fetch[S ~[]E, E any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (S, error)) (S, Status, error) {
	if c == nil || c.kv == nil {
		out, err := fetch(ctx)
		return nonNil(out), StatusBypass, err
	}

	val, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		var env envelope
		var out S
		if jerr := json.Unmarshal([]byte(val), &env); jerr == nil {
			if jerr = json.Unmarshal(env.Data, &out); jerr == nil {
				if c.now().After(env.Meta.StaleAfter) {
					scheduleRefresh(c, key, fetch)
					return nonNil(out), StatusStale, nil
				}
				return nonNil(out), StatusHit, nil
			}
		}
		c.logger.Warn("dropping unreadable cache entry", zap.String("key", key))
		_ = c.kv.Del(ctx, key)
	case errors.Is(err, redisx.ErrMiss):
	default:
		out, ferr := fetch(ctx)
		return nonNil(out), StatusBypass, ferr
	}

	// avoid a stampede on the partner: only the lock holder writes back
	locked, lerr := c.kv.SetNX(ctx, lockKey(key), "1", c.lockTTL)
	out, err := fetch(ctx)
	if err != nil {
		if locked {
			_ = c.kv.Del(ctx, lockKey(key))
		}
		return nonNil(out), StatusMiss, err
	}
	if lerr != nil || !locked {
		return nonNil(out), StatusBypass, nil
	}
	store(ctx, c, key, out)
	_ = c.kv.Del(ctx, lockKey(key))
	return nonNil(out), StatusMiss, nil
}

// scheduleRefresh re-fetches key in the background. An empty refresh result
// leaves the stale entry in place until its TTL runs out.
func scheduleRefresh[S ~[]E, E any](c *Cache, key string, fetch func(ctx context.Context) (S, error)) {
	if c.refresher == nil {
		return
	}
	c.refresher.Enqueue(refresh.Job{Key: key, Run: func(ctx context.Context) error {
		out, err := fetch(ctx)
		if err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		store(ctx, c, key, out)
		return nil
	}})
}

func store[S ~[]E, E any](ctx context.Context, c *Cache, key string, out S) {
	env := envelope{}
	data, err := json.Marshal(nonNil(out))
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	env.Data = data
	env.Meta.LastFetch = c.now()
	env.Meta.StaleAfter = env.Meta.LastFetch.Add(c.staleAfter)
	env.Meta.Count = len(out)
	ttl := c.ttl
	if len(out) == 0 {
		ttl = c.negativeTTL
		env.Meta.StaleAfter = env.Meta.LastFetch.Add(ttl)
	}
	b, _ := json.Marshal(env)
	if err := c.kv.Set(ctx, key, string(b), ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func lockKey(key string) string { return key + ":lock" }

func nonNil[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}

func maxDur(a, b time.Duration) time.Duration {
	if a > 0 {
		return a
	}
	return b
}
