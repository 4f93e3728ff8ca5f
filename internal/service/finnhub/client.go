package finnhub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"FinRange/internal/domain/errs"
	"FinRange/internal/domain/models"
	drepo "FinRange/internal/domain/repository"
	pkghttp "FinRange/pkg/http"
	applogger "FinRange/pkg/logger"
)

// Options configures the REST quote client.
type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Concurrency   int
	MaxFailures   uint32
	OpenTimeout   time.Duration
}

// Client implements QuoteProvider on Finnhub's /quote endpoint.
type Client struct {
	opts    Options
	http    *pkghttp.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *applogger.Logger
}

// New creates a new Finnhub quote client.
func New(opts Options, log *applogger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if log == nil {
		log = applogger.Nop()
	}
	c := &Client{
		opts:    opts,
		http:    pkghttp.NewClient(pkghttp.WithTimeout(opts.Timeout)),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		log:     log.Component("finnhub"),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "finnhub-quote",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		// client errors (bad symbol, bad key) say nothing about upstream health
		IsSuccessful: func(err error) bool {
			var se *pkghttp.StatusError
			if errors.As(err, &se) {
				return !se.Retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	})
	return c
}

type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// FetchQuote returns the latest quote for one ticker.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.Quote{}, fmt.Errorf("rate limit wait: %w", err)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var resp quoteResponse
		err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
			Method:      pkghttp.MethodGet,
			URL:         c.opts.BaseURL + "/quote",
			QueryParams: map[string][]string{"symbol": {symbol}},
			Headers:     map[string]string{"X-Finnhub-Token": c.opts.APIKey},
		}, &resp)
		return resp, err
	})
	if err != nil {
		return models.Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	resp := out.(quoteResponse)
	// unknown symbols come back as an all-zero payload
	if resp.Current <= 0 {
		return models.Quote{}, fmt.Errorf("quote %s: empty payload: %w", symbol, errs.ErrUpstreamQuoteFailure)
	}
	q := models.Quote{
		Symbol:        symbol,
		LastPrice:     resp.Current,
		PreviousClose: resp.PreviousClose,
		Change:        resp.Change,
		ChangePercent: resp.ChangePercent,
	}
	if resp.Timestamp > 0 {
		q.Timestamp = time.Unix(resp.Timestamp, 0).UTC()
	}
	return q, nil
}

// FetchQuotes requests every symbol concurrently. Per-symbol failures are
// logged and skipped; the call fails only when nothing came back.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	start := time.Now()
	var (
		mu      sync.Mutex
		quotes  = make([]models.Quote, 0, len(symbols))
		lastErr error
	)

	g := new(errgroup.Group)
	g.SetLimit(c.opts.Concurrency)
	for _, s := range symbols {
		g.Go(func() error {
			q, err := c.FetchQuote(ctx, s)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				c.log.Warn("quote fetch failed", applogger.String("symbol", s), applogger.Error(err))
				return nil
			}
			quotes = append(quotes, q)
			return nil
		})
	}
	_ = g.Wait()

	if len(quotes) == 0 {
		if lastErr == nil {
			lastErr = errors.New("no symbols requested")
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrUpstreamQuoteFailure, lastErr)
	}
	c.log.Info("quotes fetched",
		applogger.Int("requested", len(symbols)),
		applogger.Int("received", len(quotes)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return quotes, nil
}

var _ drepo.QuoteProvider = (*Client)(nil)
