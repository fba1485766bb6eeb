package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/rental-api/internal/listingcache"
	"github.com/yourorg/rental-api/mychoize"
)

type fakeNormalizer struct {
	rentalQ   mychoize.SearchQuery
	hours     float64
	rentals   []mychoize.RentalListing
	subs      []mychoize.SubscriptionListing
	locations json.RawMessage
	err       error
	calls     int
}

func (f *fakeNormalizer) SubscriptionCars(_ context.Context, q mychoize.SearchQuery) ([]mychoize.SubscriptionListing, error) {
	f.calls++
	return f.subs, f.err
}

func (f *fakeNormalizer) RentalCars(_ context.Context, q mychoize.SearchQuery, hours float64) ([]mychoize.RentalListing, error) {
	f.calls++
	f.rentalQ, f.hours = q, hours
	return f.rentals, f.err
}

func (f *fakeNormalizer) LocationList(_ context.Context, q mychoize.SearchQuery) (json.RawMessage, error) {
	f.calls++
	return f.locations, f.err
}

func window(t *testing.T) (time.Time, time.Time) {
	t.Helper()
	pick, drop, err := ParseWindow("2024-05-01T10:00:00", "2024-05-02T13:30:00")
	require.NoError(t, err)
	return pick, drop
}

func TestService_Rentals(t *testing.T) {
	pick, drop := window(t)
	f := &fakeNormalizer{rentals: []mychoize.RentalListing{{ID: "g1"}}}
	svc := New(f, nil, zap.NewNop())

	res, err := svc.Rentals(context.Background(), Request{City: " Bengaluru ", Pick: pick, Drop: drop})
	require.NoError(t, err)

	assert.Equal(t, "bangalore", f.rentalQ.CityName)
	assert.Equal(t, "/Date(1714537800000+0530)/", f.rentalQ.PickDate)
	assert.Equal(t, 27.0, f.hours)
	assert.Equal(t, 27, res.Duration.Hours)
	assert.Equal(t, "1 Day(s) 3 Hour(s)", res.Duration.Label)
	assert.Equal(t, listingcache.StatusBypass, res.Cache)
	assert.Len(t, res.Cars, 1)
}

func TestService_RentalsHoursOverride(t *testing.T) {
	pick, drop := window(t)
	f := &fakeNormalizer{}
	svc := New(f, nil, nil)

	res, err := svc.Rentals(context.Background(), Request{City: "pune", Pick: pick, Drop: drop, Hours: 48})
	require.NoError(t, err)
	assert.Equal(t, 48.0, f.hours)
	assert.Equal(t, 48.0, res.Hours)
}

func TestService_Validation(t *testing.T) {
	pick, drop := window(t)
	f := &fakeNormalizer{}
	svc := New(f, nil, nil)
	ctx := context.Background()

	_, err := svc.Rentals(ctx, Request{City: "  ", Pick: pick, Drop: drop})
	assert.ErrorIs(t, err, ErrCityRequired)
	assert.True(t, IsInvalid(err))

	_, err = svc.Subscriptions(ctx, Request{City: "delhi", Pick: drop, Drop: pick})
	assert.ErrorIs(t, err, ErrDropBeforePick)

	_, err = svc.Locations(ctx, Request{City: "delhi", Pick: pick, Drop: pick})
	assert.ErrorIs(t, err, ErrDropBeforePick)
	assert.Zero(t, f.calls)
}

func TestService_PartnerErrorPassesThrough(t *testing.T) {
	pick, drop := window(t)
	boom := &mychoize.RetryExhaustedError{Attempts: 5, Err: mychoize.ErrTransport}
	svc := New(&fakeNormalizer{err: boom}, nil, nil)

	_, err := svc.Rentals(context.Background(), Request{City: "goa", Pick: pick, Drop: drop})
	assert.ErrorIs(t, err, mychoize.ErrRetryExhausted)
	assert.False(t, IsInvalid(err))
}

func TestService_SubscriptionsAndLocations(t *testing.T) {
	pick, drop := window(t)
	f := &fakeNormalizer{
		subs:      []mychoize.SubscriptionListing{{ID: "s1"}},
		locations: json.RawMessage(`[{"LocationKey":1}]`),
	}
	svc := New(f, nil, nil)
	ctx := context.Background()

	subs, err := svc.Subscriptions(ctx, Request{City: "mumbai", Pick: pick, Drop: drop})
	require.NoError(t, err)
	assert.Len(t, subs.Cars, 1)

	locs, err := svc.Locations(ctx, Request{City: "mumbai", Pick: pick, Drop: drop})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"LocationKey":1}]`, string(locs))
}

func TestParseWindow(t *testing.T) {
	_, _, err := ParseWindow("yesterday", "2024-05-02")
	assert.ErrorIs(t, err, mychoize.ErrInvalidDate)
	assert.True(t, IsInvalid(err))

	_, _, err = ParseWindow("2024-05-02", "")
	assert.True(t, errors.Is(err, mychoize.ErrInvalidDate))
}
