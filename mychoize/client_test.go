package mychoize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyGateway fails the first `failures` requests with status, then serves body.
type flakyGateway struct {
	failures int32
	status   int
	body     string

	calls  atomic.Int32
	mu     sync.Mutex
	times  []time.Time
	bodies []envelope
}

func (g *flakyGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := g.calls.Add(1)
	g.mu.Lock()
	g.times = append(g.times, time.Now())
	var env envelope
	_ = json.NewDecoder(r.Body).Decode(&env)
	g.bodies = append(g.bodies, env)
	g.mu.Unlock()

	if n <= g.failures {
		w.WriteHeader(g.status)
		_, _ = w.Write([]byte(`{"error":"upstream"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(g.body))
}

func (g *flakyGateway) seen() ([]time.Time, []envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]time.Time(nil), g.times...), append([]envelope(nil), g.bodies...)
}

func newTestClient(url string, retry RetryPolicy) *Client {
	return NewClient(Options{BaseURL: url, Timeout: 2 * time.Second, Retry: retry}, zap.NewNop())
}

func TestClient_FetchWithRetry(t *testing.T) {
	t.Run("succeeds after two failures", func(t *testing.T) {
		gw := &flakyGateway{failures: 2, status: http.StatusBadGateway, body: `{"ok":true}`}
		server := httptest.NewServer(gw)
		defer server.Close()

		delay := 30 * time.Millisecond
		c := newTestClient(server.URL, RetryPolicy{Attempts: 5, Delay: delay})

		body, err := c.FetchWithRetry(context.Background(), "/anything", map[string]string{"a": "b"}, RetryPolicy{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(body))
		assert.Equal(t, int32(3), gw.calls.Load())

		times, _ := gw.seen()
		require.Len(t, times, 3)
		first := times[1].Sub(times[0])
		second := times[2].Sub(times[1])
		assert.GreaterOrEqual(t, first, delay)
		assert.GreaterOrEqual(t, second, 2*delay)
	})

	t.Run("exhausts after the configured attempts", func(t *testing.T) {
		gw := &flakyGateway{failures: 1000, status: http.StatusInternalServerError}
		server := httptest.NewServer(gw)
		defer server.Close()

		c := newTestClient(server.URL, DefaultRetry)
		_, err := c.FetchWithRetry(context.Background(), "/anything", nil, RetryPolicy{Attempts: 3, Delay: time.Millisecond})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRetryExhausted)
		assert.ErrorIs(t, err, ErrBadResponse)

		var exhausted *RetryExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)

		var status *StatusError
		require.ErrorAs(t, err, &status)
		assert.Equal(t, http.StatusInternalServerError, status.Code)

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(3), gw.calls.Load())
	})

	t.Run("client errors are retried too", func(t *testing.T) {
		gw := &flakyGateway{failures: 1, status: http.StatusNotFound, body: `{}`}
		server := httptest.NewServer(gw)
		defer server.Close()

		c := newTestClient(server.URL, RetryPolicy{Attempts: 2, Delay: time.Millisecond})
		_, err := c.FetchWithRetry(context.Background(), "/anything", nil, RetryPolicy{})
		require.NoError(t, err)
		assert.Equal(t, int32(2), gw.calls.Load())
	})

	t.Run("transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		c := newTestClient(url, RetryPolicy{Attempts: 2, Delay: time.Millisecond})
		_, err := c.FetchWithRetry(context.Background(), "/anything", nil, RetryPolicy{})
		assert.ErrorIs(t, err, ErrRetryExhausted)
		assert.ErrorIs(t, err, ErrTransport)
		assert.True(t, IsUnavailable(err))
	})

	t.Run("cancellation stops the sequence", func(t *testing.T) {
		gw := &flakyGateway{failures: 1000, status: http.StatusServiceUnavailable}
		server := httptest.NewServer(gw)
		defer server.Close()

		c := newTestClient(server.URL, RetryPolicy{Attempts: 5, Delay: time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := c.FetchWithRetry(ctx, "/anything", nil, RetryPolicy{})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrRetryExhausted)
		assert.Equal(t, int32(1), gw.calls.Load())
	})
}

func TestClient_SearchCars(t *testing.T) {
	t.Run("posts the search envelope once", func(t *testing.T) {
		type captured struct {
			path, contentType string
			env               envelope
		}
		seen := make(chan captured, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := captured{path: r.URL.Path, contentType: r.Header.Get("Content-Type")}
			_ = json.NewDecoder(r.Body).Decode(&c.env)
			seen <- c
			_, _ = w.Write([]byte(`{"SearchBookingModel":[]}`))
		}))
		defer server.Close()

		c := newTestClient(server.URL+"/", DefaultRetry)
		q := SearchQuery{CityName: "bangalore", PickDate: "/Date(1+0530)/", DropDate: "/Date(2+0530)/"}
		body, err := c.SearchCars(context.Background(), q)
		require.NoError(t, err)
		assert.JSONEq(t, `{"SearchBookingModel":[]}`, string(body))

		got := <-seen
		assert.Equal(t, "/mychoize/search-cars", got.path)
		assert.Equal(t, "application/json", got.contentType)
		assert.Equal(t, q, got.env.Data)
	})

	t.Run("single call does not retry", func(t *testing.T) {
		gw := &flakyGateway{failures: 1, status: http.StatusBadGateway, body: `{}`}
		server := httptest.NewServer(gw)
		defer server.Close()

		c := newTestClient(server.URL, RetryPolicy{Attempts: 5, Delay: time.Millisecond})
		_, err := c.SearchCars(context.Background(), SearchQuery{CityName: "pune"})
		assert.ErrorIs(t, err, ErrBadResponse)
		assert.NotErrorIs(t, err, ErrRetryExhausted)
		assert.Equal(t, int32(1), gw.calls.Load())
	})

	t.Run("retrying variant uses the client policy", func(t *testing.T) {
		gw := &flakyGateway{failures: 2, status: http.StatusBadGateway, body: `{"SearchBookingModel":[]}`}
		server := httptest.NewServer(gw)
		defer server.Close()

		c := newTestClient(server.URL, RetryPolicy{Attempts: 3, Delay: time.Millisecond})
		_, err := c.SearchCarsWithRetry(context.Background(), SearchQuery{CityName: "pune"})
		require.NoError(t, err)
		assert.Equal(t, int32(3), gw.calls.Load())
		_, bodies := gw.seen()
		for _, b := range bodies {
			assert.Equal(t, "pune", b.Data.CityName)
		}
	})
}

func TestClient_LocationList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mychoize/location-list", r.URL.Path)
		_, _ = w.Write([]byte(`{"BranchModel":[{"LocationKey":1}]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, DefaultRetry)
	list, err := c.LocationList(context.Background(), SearchQuery{CityName: "goa"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"BranchModel":[{"LocationKey":1}]}`, string(list))

	server.Close()
	_, err = c.LocationList(context.Background(), SearchQuery{CityName: "goa"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_RetriesArePaced(t *testing.T) {
	gw := &flakyGateway{failures: 2, status: http.StatusServiceUnavailable, body: `{"ok":true}`}
	server := httptest.NewServer(gw)
	defer server.Close()

	c := NewClient(Options{
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		Retry:      RetryPolicy{Attempts: 3, Delay: time.Millisecond},
		RatePerSec: 10,
		Burst:      1,
	}, zap.NewNop())

	start := time.Now()
	_, err := c.SearchCarsWithRetry(context.Background(), SearchQuery{CityName: "goa"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), gw.calls.Load())
	// one token up front, then 100ms for each of the two retries
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)

	times, _ := gw.seen()
	require.Len(t, times, 3)
	assert.GreaterOrEqual(t, times[2].Sub(times[1]), 80*time.Millisecond)
}

func TestLinearBackoff(t *testing.T) {
	d := 500 * time.Millisecond
	assert.Equal(t, 500*time.Millisecond, linearBackoff(d, 0, 0, nil))
	assert.Equal(t, time.Second, linearBackoff(d, 0, 1, nil))
	assert.Equal(t, 2*time.Second, linearBackoff(d, 0, 3, nil))
}
