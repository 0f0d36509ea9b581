package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/client"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/corpus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for batch fetching.
var (
	fetchBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_fetch_batches_total",
		Help: "Total fetch batches by outcome (success, failed)",
	}, []string{"outcome"})

	fetchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_fetch_pages_total",
		Help: "Total page requests by outcome (success, failed, skipped)",
	}, []string{"outcome"})

	fetchBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_fetch_batch_duration_seconds",
		Help:    "Duration of complete fetch batches in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	fetchPagesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_fetch_pages_in_flight",
		Help: "Page requests currently in flight",
	})
)

// MaxPageCap is the largest page wall.search serves.
const MaxPageCap = 100

// ErrShortPage is returned when a page holds fewer items than requested.
var ErrShortPage = errors.New("page returned fewer items than requested")

// Config holds batch fetcher configuration
type Config struct {
	// PageCap is the maximum number of items per request.
	PageCap int
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int
	// Timeout per page fetch, including the wait for a rate limit token
	Timeout time.Duration
	// AllowShortPages accepts pages with fewer items than requested.
	AllowShortPages bool
}

// DefaultConfig returns the configuration used against VK.
func DefaultConfig() Config {
	return Config{
		PageCap:        MaxPageCap,
		MaxConcurrency: 10,
		Timeout:        25 * time.Second,
	}
}

// PageSource is implemented by the upstream client.
type PageSource interface {
	// FetchPage requests count items starting at offset.
	FetchPage(ctx context.Context, query url.Values, offset, count int) (*corpus.Page, error)
}

// FetchError reports the page that failed a batch.
type FetchError struct {
	Page PageSpec
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch batch failed at page %d (offset %d, size %d): %v",
		e.Page.Sequence, e.Page.Offset, e.Page.Size, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// BatchFetcher fetches a requested number of items as concurrent pages.
type BatchFetcher struct {
	source PageSource
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(source PageSource, config Config) *BatchFetcher {
	if config.PageCap <= 0 || config.PageCap > MaxPageCap {
		config.PageCap = MaxPageCap
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 25 * time.Second
	}

	return &BatchFetcher{
		source: source,
		config: config,
	}
}

// Config returns the effective configuration.
func (bf *BatchFetcher) Config() Config {
	return bf.config
}

// pageResult is one completed page of a batch.
type pageResult struct {
	sequence int
	items    []corpus.RawPost
}

// Fetch returns the newest count items in source order. Either every page
// succeeds or the batch fails with a *FetchError wrapping the first failure.
func (bf *BatchFetcher) Fetch(ctx context.Context, query url.Values, count int) ([]corpus.RawPost, error) {
	batch, err := Plan(count, bf.config.PageCap)
	if err != nil {
		return nil, err
	}
	if len(batch.Pages) == 0 {
		return []corpus.RawPost{}, nil
	}

	start := time.Now()
	log.Info().
		Int("count", count).
		Int("pages", len(batch.Pages)).
		Int("concurrency", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	var (
		mu      sync.Mutex
		results = make([]pageResult, 0, len(batch.Pages))
	)

	for _, ps := range batch.Pages {
		ps := ps
		g.Go(func() error {
			// Pages queued behind a failure are not started.
			if gctx.Err() != nil {
				fetchPagesTotal.WithLabelValues("skipped").Inc()
				return gctx.Err()
			}

			items, err := bf.fetchPage(gctx, query, ps, bf.config.AllowShortPages)
			if err != nil {
				fetchPagesTotal.WithLabelValues("failed").Inc()
				log.Warn().
					Err(err).
					Int("page", ps.Sequence).
					Int("offset", ps.Offset).
					Int("size", ps.Size).
					Msg("Page fetch failed")
				return &FetchError{Page: ps, Err: err}
			}
			fetchPagesTotal.WithLabelValues("success").Inc()

			mu.Lock()
			results = append(results, pageResult{sequence: ps.Sequence, items: items})
			done := len(results)
			mu.Unlock()

			if done%10 == 0 {
				log.Info().
					Int("fetched", done).
					Int("total", len(batch.Pages)).
					Float64("progress_pct", float64(done)/float64(len(batch.Pages))*100).
					Msg("Fetch progress")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		fetchBatchesTotal.WithLabelValues("failed").Inc()
		fetchBatchDuration.Observe(time.Since(start).Seconds())

		var fe *FetchError
		if !errors.As(err, &fe) {
			// Parent context ended before any page reported.
			err = &FetchError{Page: batch.Pages[0], Err: err}
		}
		log.Error().
			Err(err).
			Int("count", count).
			Dur("duration", time.Since(start)).
			Msg("Fetch batch failed")
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].sequence < results[j].sequence
	})

	items := make([]corpus.RawPost, 0, count)
	for _, r := range results {
		items = append(items, r.items...)
	}

	fetchBatchesTotal.WithLabelValues("success").Inc()
	fetchBatchDuration.Observe(time.Since(start).Seconds())
	log.Info().
		Int("items", len(items)).
		Int("pages", len(batch.Pages)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return items, nil
}

// ProbeTotal issues a one-item request and returns the reported total.
// Failures are returned as *client.UpstreamError.
func (bf *BatchFetcher) ProbeTotal(ctx context.Context, query url.Values) (int, error) {
	ps := PageSpec{Sequence: 0, Offset: 0, Size: 1}

	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	page, err := bf.source.FetchPage(pageCtx, query, ps.Offset, ps.Size)
	if err == nil {
		err = checkShape(page, ps, true)
	}
	if err != nil {
		if !client.IsUpstream(err) {
			err = &client.UpstreamError{
				ErrorClass: client.ErrorClassProtocol,
				Message:    "probe total",
				Err:        err,
			}
		}
		return 0, err
	}

	log.Debug().Int("total", page.Total).Msg("Probed result count")
	return page.Total, nil
}

// fetchPage runs one page request under the per-page timeout.
func (bf *BatchFetcher) fetchPage(ctx context.Context, query url.Values, ps PageSpec, allowShort bool) ([]corpus.RawPost, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	fetchPagesInFlight.Inc()
	defer fetchPagesInFlight.Dec()

	page, err := bf.source.FetchPage(pageCtx, query, ps.Offset, ps.Size)
	if err != nil {
		return nil, err
	}
	if err := checkShape(page, ps, allowShort); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// checkShape validates a page against what was requested.
func checkShape(page *corpus.Page, ps PageSpec, allowShort bool) error {
	if page == nil {
		return &client.UpstreamError{
			ErrorClass: client.ErrorClassProtocol,
			Message:    "empty page",
			Err:        client.ErrMalformedResponse,
		}
	}
	if len(page.Items) > ps.Size {
		return &client.UpstreamError{
			ErrorClass: client.ErrorClassProtocol,
			Message:    fmt.Sprintf("page returned %d items, requested %d", len(page.Items), ps.Size),
			Err:        client.ErrMalformedResponse,
		}
	}
	if len(page.Items) < ps.Size && !allowShort {
		return fmt.Errorf("%w: got %d, requested %d", ErrShortPage, len(page.Items), ps.Size)
	}
	return nil
}
