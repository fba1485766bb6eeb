// Package app wires configuration into the services shared by the API
// server and the cache warmer.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/rental-api/internal/config"
	"github.com/yourorg/rental-api/internal/listingcache"
	"github.com/yourorg/rental-api/internal/redisx"
	"github.com/yourorg/rental-api/internal/refresh"
	"github.com/yourorg/rental-api/internal/search"
	"github.com/yourorg/rental-api/internal/store"
	"github.com/yourorg/rental-api/internal/vendor"
	"github.com/yourorg/rental-api/mychoize"
)

// Services holds the wired services and the resources they own.
type Services struct {
	Search    *search.Service
	Store     *store.Store
	Redis     *redisx.Client
	Refresher *refresh.Refresher
}

// Wire builds the search service from cfg. Postgres and Redis are optional:
// without them multipliers come from configuration and nothing is cached.
func Wire(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*Services, error) {
	policy, err := vendor.ParsePolicy(cfg.Vendor.FailurePolicy)
	if err != nil {
		return nil, err
	}

	s := &Services{}
	client := mychoize.NewClient(mychoize.Options{
		BaseURL:    cfg.MyChoize.FunctionsURL,
		Timeout:    cfg.MyChoize.Timeout,
		Retry:      mychoize.RetryPolicy{Attempts: cfg.MyChoize.RetryAttempts, Delay: cfg.MyChoize.RetryDelay},
		RatePerSec: cfg.MyChoize.RatePerSec,
	}, zl)

	var multipliers vendor.MultiplierSource = vendor.StaticMultipliers{vendor.Key: cfg.Vendor.DefaultMultiplier}
	deps := vendor.Deps{
		Partner: client,
		Mapper:  mychoize.Mapper{ImageBaseURL: cfg.MyChoize.ImageBaseURL},
		Policy:  policy,
		Logger:  zl,
	}
	if cfg.Database.DSN != "" {
		st, err := store.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		if seeded, err := st.EnsureVendor(ctx, vendor.Key, cfg.Vendor.DefaultMultiplier); err != nil {
			zl.Warn("seed vendor row failed", zap.String("vendor", vendor.Key), zap.Error(err))
		} else if seeded {
			zl.Info("seeded vendor row", zap.String("vendor", vendor.Key), zap.Float64("multiplier", cfg.Vendor.DefaultMultiplier))
		}
		s.Store = st
		multipliers = vendor.Fallback{Primary: st, Secondary: multipliers}
		deps.Snapshots = st
		zl.Info("postgres connected")
	}
	deps.Vendors = multipliers

	var cache *listingcache.Cache
	if cfg.Redis.Addr != "" {
		rc, err := redisx.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, zl)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = rc
		s.Refresher = refresh.New(256, 2, cfg.MyChoize.Timeout*time.Duration(cfg.MyChoize.RetryAttempts), zl)
		cache = listingcache.New(rc, s.Refresher, listingcache.Options{
			TTL:         cfg.Cache.TTL,
			StaleAfter:  cfg.Cache.StaleAfter,
			NegativeTTL: cfg.Cache.NegativeTTL,
		}, zl)
	}

	s.Search = search.New(vendor.New(deps), cache, zl)
	return s, nil
}

func (s *Services) Close() {
	if s.Refresher != nil {
		s.Refresher.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Store != nil {
		_ = s.Store.Close()
	}
}
