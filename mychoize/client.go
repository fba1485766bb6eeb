package mychoize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	searchCarsPath   = "/mychoize/search-cars"
	locationListPath = "/mychoize/location-list"

	maxPayload = 8 << 20
)

// Options configures a Client. BaseURL is the function gateway root that
// proxies partner operations.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Retry      RetryPolicy
	RatePerSec float64
	Burst      int
}

// SearchQuery is the body shared by the search and location endpoints.
// PickDate and DropDate must already be in the partner date encoding.
type SearchQuery struct {
	CityName string `json:"CityName"`
	PickDate string `json:"PickDate"`
	DropDate string `json:"DropDate"`
}

type envelope struct {
	Data SearchQuery `json:"data"`
}

type Client struct {
	baseURL string
	http    *http.Client
	retry   *retryablehttp.Client
	single  *retryablehttp.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := retryablehttp.NewClient().HTTPClient
	hc.Timeout = timeout
	hc.Transport = otelhttp.NewTransport(hc.Transport)

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 5
	}

	log := logger.Named("mychoize")
	limiter := rate.NewLimiter(limit, burst)
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		retry:   newRetryClient(hc, opts.Retry, limiter, log, true),
		single:  newRetryClient(hc, RetryPolicy{Attempts: 1}, limiter, log, false),
		limiter: limiter,
		logger:  log,
	}
}

// FetchWithRetry POSTs payload as JSON to path, trying up to p.Attempts times
// with a linear delay between attempts. It returns the body of the first
// 2xx response, or a *RetryExhaustedError.
func (c *Client) FetchWithRetry(ctx context.Context, path string, payload any, p RetryPolicy) ([]byte, error) {
	rc := c.retry
	if p != (RetryPolicy{}) {
		rc = newRetryClient(c.http, p, c.limiter, c.logger, true)
	}
	return c.post(ctx, rc, path, payload)
}

// Fetch POSTs payload once.
func (c *Client) Fetch(ctx context.Context, path string, payload any) ([]byte, error) {
	return c.post(ctx, c.single, path, payload)
}

// SearchCars calls the partner search endpoint once.
func (c *Client) SearchCars(ctx context.Context, q SearchQuery) ([]byte, error) {
	return c.Fetch(ctx, searchCarsPath, envelope{Data: q})
}

// SearchCarsWithRetry calls the partner search endpoint with the client's
// default retry policy.
func (c *Client) SearchCarsWithRetry(ctx context.Context, q SearchQuery) ([]byte, error) {
	return c.FetchWithRetry(ctx, searchCarsPath, envelope{Data: q}, RetryPolicy{})
}

// LocationList returns the partner location list verbatim.
func (c *Client) LocationList(ctx context.Context, q SearchQuery) (json.RawMessage, error) {
	raw, err := c.Fetch(ctx, locationListPath, envelope{Data: q})
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: location list is not valid JSON", ErrBadResponse)
	}
	return json.RawMessage(raw), nil
}

func (c *Client) post(ctx context.Context, rc *retryablehttp.Client, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := rc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ioReadAllLimit(resp.Body, maxPayload)
}

func ioReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: payload too large", ErrBadResponse)
	}
	return b, nil
}

// IsUnavailable reports whether err means the partner could not serve the request.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrBadResponse) || errors.Is(err, ErrRetryExhausted)
}
