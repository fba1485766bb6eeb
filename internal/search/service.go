// Package search answers rental, subscription and location queries for one
// city and trip window, going through the listing cache when one is set.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/rental-api/internal/canon"
	"github.com/yourorg/rental-api/internal/listingcache"
	"github.com/yourorg/rental-api/mychoize"
)

var (
	ErrCityRequired   = errors.New("search: city is required")
	ErrDropBeforePick = errors.New("search: drop must be after pick")
)

// Normalizer is implemented by *vendor.Normalizer.
type Normalizer interface {
	SubscriptionCars(ctx context.Context, q mychoize.SearchQuery) ([]mychoize.SubscriptionListing, error)
	RentalCars(ctx context.Context, q mychoize.SearchQuery, tripDurationHours float64) ([]mychoize.RentalListing, error)
	LocationList(ctx context.Context, q mychoize.SearchQuery) (json.RawMessage, error)
}

type Request struct {
	City string
	Pick time.Time
	Drop time.Time
	// Hours overrides the trip length used for km allowances. Zero means
	// derive it from Pick and Drop.
	Hours float64
}

type RentalResult struct {
	Cars     []mychoize.RentalListing
	Duration mychoize.Duration
	Hours    float64
	Cache    listingcache.Status
}

type SubscriptionResult struct {
	Cars  []mychoize.SubscriptionListing
	Cache listingcache.Status
}

type Service struct {
	norm   Normalizer
	cache  *listingcache.Cache
	logger *zap.Logger
}

// New returns a Service. cache may be nil.
func New(norm Normalizer, cache *listingcache.Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{norm: norm, cache: cache, logger: logger.Named("search")}
}

func (s *Service) Rentals(ctx context.Context, req Request) (RentalResult, error) {
	q, err := query(req)
	if err != nil {
		return RentalResult{}, err
	}
	dur := mychoize.TripDuration(req.Pick, req.Drop)
	hours := req.Hours
	if hours <= 0 {
		hours = float64(dur.Hours)
	}
	key := canon.SearchKey("rentals", q.CityName, q.PickDate, q.DropDate, hours)
	cars, st, err := listingcache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]mychoize.RentalListing, error) {
		return s.norm.RentalCars(ctx, q, hours)
	})
	if err != nil {
		return RentalResult{}, err
	}
	s.logger.Debug("rentals",
		zap.String("city", q.CityName),
		zap.Int("count", len(cars)),
		zap.String("cache", string(st)))
	return RentalResult{Cars: cars, Duration: dur, Hours: hours, Cache: st}, nil
}

func (s *Service) Subscriptions(ctx context.Context, req Request) (SubscriptionResult, error) {
	q, err := query(req)
	if err != nil {
		return SubscriptionResult{}, err
	}
	key := canon.SearchKey("subscriptions", q.CityName, q.PickDate, q.DropDate, 0)
	cars, st, err := listingcache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]mychoize.SubscriptionListing, error) {
		return s.norm.SubscriptionCars(ctx, q)
	})
	if err != nil {
		return SubscriptionResult{}, err
	}
	return SubscriptionResult{Cars: cars, Cache: st}, nil
}

// Locations returns the partner location list for the request's city. It is
// never cached.
func (s *Service) Locations(ctx context.Context, req Request) (json.RawMessage, error) {
	q, err := query(req)
	if err != nil {
		return nil, err
	}
	return s.norm.LocationList(ctx, q)
}

func query(req Request) (mychoize.SearchQuery, error) {
	city := canon.City(req.City)
	if city == "" {
		return mychoize.SearchQuery{}, ErrCityRequired
	}
	if !req.Drop.After(req.Pick) {
		return mychoize.SearchQuery{}, fmt.Errorf("%w: pick %s, drop %s", ErrDropBeforePick,
			req.Pick.Format(time.RFC3339), req.Drop.Format(time.RFC3339))
	}
	return mychoize.SearchQuery{
		CityName: city,
		PickDate: mychoize.FormatTime(req.Pick),
		DropDate: mychoize.FormatTime(req.Drop),
	}, nil
}

// IsInvalid reports whether err was caused by a bad request rather than the
// partner.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrCityRequired) || errors.Is(err, ErrDropBeforePick) || errors.Is(err, mychoize.ErrInvalidDate)
}

// ParseWindow parses pick and drop strings in any format FormatDate accepts.
func ParseWindow(pick, drop string) (time.Time, time.Time, error) {
	p, err := mychoize.ParseDate(strings.TrimSpace(pick))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("pick: %w", err)
	}
	d, err := mychoize.ParseDate(strings.TrimSpace(drop))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("drop: %w", err)
	}
	return p, d, nil
}
