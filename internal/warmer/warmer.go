// Package warmer periodically runs searches for a fixed set of cities so the
// listing cache is populated before users ask.
package warmer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/rental-api/internal/search"
)

// Searcher is implemented by *search.Service.
type Searcher interface {
	Rentals(ctx context.Context, req search.Request) (search.RentalResult, error)
	Subscriptions(ctx context.Context, req search.Request) (search.SubscriptionResult, error)
}

type Config struct {
	Cities []string
	// Interval between passes. Zero runs a single pass.
	Interval time.Duration
	// Lead is how far ahead of now the warmed trip starts.
	Lead                 time.Duration
	TripHours            int
	PauseBetweenRequests time.Duration
	RequestTimeout       time.Duration
	SkipSubscriptions    bool
}

type Job struct {
	Search Searcher
	Logger *zap.Logger
	Config Config

	now func() time.Time
}

func (j *Job) validate() error {
	if j == nil {
		return errors.New("nil warmer job")
	}
	if j.Search == nil {
		return errors.New("warmer job missing search service")
	}
	if len(j.Config.Cities) == 0 {
		return errors.New("warmer job requires at least one city")
	}
	if j.Logger == nil {
		j.Logger = zap.NewNop()
	}
	if j.now == nil {
		j.now = time.Now
	}
	return nil
}

func (j *Job) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	interval := j.Config.Interval
	if interval <= 0 {
		return j.RunOnce(ctx)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	j.Logger.Info("warmer starting", zap.Duration("interval", interval), zap.Int("cities", len(j.Config.Cities)))
	if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.Logger.Warn("warmer initial run error", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			j.Logger.Info("warmer stopping", zap.Error(ctx.Err()))
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				j.Logger.Warn("warmer iteration error", zap.Error(err))
			}
		}
	}
}

// RunOnce warms every configured city once and joins the per-city errors.
func (j *Job) RunOnce(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	pick, drop := j.window()
	var joined error
	for i, raw := range j.Config.Cities {
		city := strings.TrimSpace(raw)
		if city == "" {
			continue
		}
		if err := j.warmCity(ctx, search.Request{City: city, Pick: pick, Drop: drop}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			joined = errors.Join(joined, err)
		}
		if pause := j.Config.PauseBetweenRequests; pause > 0 && i < len(j.Config.Cities)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return joined
}

// window starts Lead after the current hour and lasts TripHours.
func (j *Job) window() (time.Time, time.Time) {
	lead := j.Config.Lead
	if lead <= 0 {
		lead = 24 * time.Hour
	}
	hours := j.Config.TripHours
	if hours <= 0 {
		hours = 24
	}
	pick := j.now().Truncate(time.Hour).Add(lead)
	return pick, pick.Add(time.Duration(hours) * time.Hour)
}

func (j *Job) warmCity(ctx context.Context, req search.Request) error {
	timeout := j.Config.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	rentals, err := j.Search.Rentals(reqCtx, req)
	cancel()
	if err != nil {
		return fmt.Errorf("city %s rentals: %w", req.City, err)
	}
	fields := []zap.Field{
		zap.String("city", req.City),
		zap.Int("rentals", len(rentals.Cars)),
		zap.String("rentals_cache", string(rentals.Cache)),
	}

	if !j.Config.SkipSubscriptions {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		subs, err := j.Search.Subscriptions(reqCtx, req)
		cancel()
		if err != nil {
			return fmt.Errorf("city %s subscriptions: %w", req.City, err)
		}
		fields = append(fields, zap.Int("subscriptions", len(subs.Cars)), zap.String("subscriptions_cache", string(subs.Cache)))
	}

	if len(rentals.Cars) == 0 {
		j.Logger.Info("warmer city returned 0 rentals", fields...)
		return nil
	}
	j.Logger.Info("warmer city warmed", fields...)
	return nil
}
