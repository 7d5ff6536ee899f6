// Package collyfetcher implements kb.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/kb"
	"github.com/JakeFAU/campus-kb/internal/metrics"
)

const (
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	defaultAcceptLanguage = "en-US,en;q=0.5"
	defaultTimeout        = 60 * time.Second
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	// Delay is slept before every attempt, including the first.
	Delay time.Duration
	Retry RetryPolicy
	// Transport replaces the pooled HTTP transport; tests pass a fake.
	Transport http.RoundTripper
}

// Fetcher implements kb.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
	sleep         func(context.Context, time.Duration) error
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attemptResult is what one collector visit observed.
type attemptResult struct {
	url    string
	status int
	body   []byte
	err    error
}

// New builds a Fetcher. Clones share the base collector's HTTP backend, so the
// transport and timeout are configured once here.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = defaultAcceptLanguage
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger.Named("fetcher"),
		sleep:         sleepWithContext,
	}
}

// Fetch GETs url, retrying per the configured policy. Failures are returned
// as *kb.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (kb.FetchResponse, error) {
	start := time.Now()
	for attempt := 1; ; attempt++ {
		if err := f.sleep(ctx, f.cfg.Delay); err != nil {
			return kb.FetchResponse{}, &kb.FetchError{URL: url, Attempts: attempt - 1, Err: err}
		}

		res := f.visit(ctx, url)
		if res.err == nil {
			metrics.ObserveFetchAttempt(url, metrics.FetchOK)
			return kb.FetchResponse{
				URL:        res.url,
				StatusCode: res.status,
				Body:       res.body,
				Attempts:   attempt,
				Duration:   time.Since(start),
			}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return kb.FetchResponse{}, &kb.FetchError{URL: url, StatusCode: res.status, Attempts: attempt, Err: ctxErr}
		}

		if !f.cfg.Retry.ShouldRetry(res.status, res.err, attempt) {
			metrics.ObserveFetchAttempt(url, metrics.FetchFailed)
			return kb.FetchResponse{}, &kb.FetchError{URL: url, StatusCode: res.status, Attempts: attempt, Err: res.err}
		}

		metrics.ObserveFetchAttempt(url, metrics.FetchRetry)
		backoff := f.cfg.Retry.Backoff(attempt)
		f.logger.Warn("fetch attempt failed; retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("status", res.status),
			zap.Duration("backoff", backoff),
			zap.Error(res.err),
		)
		if err := f.sleep(ctx, backoff); err != nil {
			return kb.FetchResponse{}, &kb.FetchError{URL: url, StatusCode: res.status, Attempts: attempt, Err: err}
		}
	}
}

func (f *Fetcher) visit(ctx context.Context, url string) attemptResult {
	var res attemptResult
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &res)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return attemptResult{err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if res.err != nil {
			return res
		}
		if err != nil {
			res.err = fmt.Errorf("colly visit failed: %w", err)
		}
		return res
	}
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, res *attemptResult) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", defaultAccept)
		r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	})

	hooks.OnResponse(func(r *colly.Response) {
		res.url = r.Request.URL.String()
		res.status = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		res.err = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
