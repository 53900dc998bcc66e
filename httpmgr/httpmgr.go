// Package httpmgr is the rate-limited, retrying, authenticated streaming
// HTTP client every HTTP-backed loader and locator goes through. It wraps
// a custom *http.Client with a CheckRedirect hook, streamed-body copies,
// and auth-header injection behind a reusable, rate-limited manager.
package httpmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ocfetch/fetcher/authn"
	"github.com/ocfetch/fetcher/model"
)

// Response is a one-shot streamed HTTP response. Body must be read or
// Close()d before the Manager is reused for another request on a
// connection-scarce transport.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Config configures a Manager.
type Config struct {
	Timeout        time.Duration
	DefaultHeaders http.Header
	RateLimitRPS   float64 // 0 disables rate limiting
	MaxRetries     int
	MaxRedirects   int // 0 means use net/http's default of 10
	Auth           authn.Mechanism
}

// Manager is the rate-limited, retrying, authenticated HTTP client.
type Manager struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New builds a Manager. The client's CheckRedirect caps the chain at
// cfg.MaxRedirects so a configured redirect limit is always enforced.
func New(cfg Config) *Manager {
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	m := &Manager{cfg: cfg}

	m.client = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: stopped after %d redirects", model.ErrTransport, maxRedirects)
			}
			return nil
		},
	}

	if cfg.RateLimitRPS > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}

	if cfg.Auth == nil {
		m.cfg.Auth = authn.None{}
	}

	return m
}

func (m *Manager) buildHeaders(ctx context.Context, caller http.Header) (http.Header, error) {
	headers := make(http.Header)
	for k, vs := range m.cfg.DefaultHeaders {
		headers[k] = append([]string(nil), vs...)
	}
	for k, vs := range caller {
		headers[k] = append([]string(nil), vs...)
	}
	return m.cfg.Auth.AuthenticateRequest(ctx, headers)
}

// Request issues method against url, applying rate limiting, header
// composition (default -> caller -> auth), and exponential-backoff retries
// on transport-level failure. HTTP status codes are never retried here;
// upstream policy decides.
func (m *Manager) Request(ctx context.Context, method, url string, headers http.Header, followRedirects bool) (*Response, error) {
	client := m.client
	if !followRedirects {
		noFollow := *m.client
		noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		client = &noFollow
	}

	var resp *Response

	operation := func() error {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		finalHeaders, err := m.buildHeaders(ctx, headers)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", model.ErrAuthFailed, err))
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header = finalHeaders

		httpResp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return fmt.Errorf("%w: %v", model.ErrTimeout, err)
			}
			return fmt.Errorf("%w: %v", model.ErrTransport, err)
		}

		resp = &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       httpResp.Body,
		}
		return nil
	}

	maxRetries := m.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	// base-2 exponential backoff (2^attempt seconds, attempt 0 = initial try)
	// no jitter, no ceiling beyond max_retries itself.
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     1 * time.Second,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	policy := backoff.WithMaxRetries(exp, uint64(maxRetries))

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}
