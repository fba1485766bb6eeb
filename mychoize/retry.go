package mychoize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds a retried gateway call. Attempts counts every try,
// including the first one.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry is five attempts with a 500ms base delay.
var DefaultRetry = RetryPolicy{Attempts: 5, Delay: 500 * time.Millisecond}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultRetry.Attempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// linearBackoff waits delay*n before the n-th retry (attemptNum is zero based).
func linearBackoff(delay, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
	return delay * time.Duration(attemptNum+1)
}

// retryNonSuccess treats transport errors and every non-2xx status as retryable.
func retryNonSuccess(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return true, nil
	}
	return false, nil
}

// giveUp builds the error returned once retryablehttp stops trying. When
// exhausted is set the cause is wrapped in a RetryExhaustedError.
func giveUp(exhausted bool) retryablehttp.ErrorHandler {
	return func(resp *http.Response, err error, numTries int) (*http.Response, error) {
		cause := err
		if resp != nil {
			if cause == nil {
				cause = statusError(resp)
			}
			resp.Body.Close()
		}
		if cause == nil {
			cause = ErrBadResponse
		}
		if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
			return nil, cause
		}
		if !errors.Is(cause, ErrBadResponse) {
			cause = fmt.Errorf("%w: %w", ErrTransport, cause)
		}
		if !exhausted {
			return nil, cause
		}
		return nil, &RetryExhaustedError{Attempts: numTries, Err: cause}
	}
}

func statusError(resp *http.Response) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
	return &StatusError{Code: resp.StatusCode, Body: string(b)}
}

// newRetryClient wraps hc in a retryablehttp client that follows p. Every
// attempt, retries included, first takes a token from limiter.
func newRetryClient(hc *http.Client, p RetryPolicy, limiter *rate.Limiter, logger *zap.Logger, exhausted bool) *retryablehttp.Client {
	p = p.normalized()
	rc := retryablehttp.NewClient()
	rc.HTTPClient = hc
	rc.RetryMax = p.Attempts - 1
	rc.RetryWaitMin = p.Delay
	rc.RetryWaitMax = p.Delay * time.Duration(p.Attempts)
	rc.Backoff = linearBackoff
	rc.CheckRetry = retryNonSuccess
	rc.ErrorHandler = giveUp(exhausted)
	rc.Logger = leveled{logger.Sugar()}
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, _ int) {
		// a cancelled wait surfaces as the request's own context error
		_ = limiter.Wait(req.Context())
	}
	return rc
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Warnw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
