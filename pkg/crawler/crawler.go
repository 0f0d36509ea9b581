// Package crawler drives a crawl: probe the source, fetch posts, segment each
// one, and keep parsed articles and quarantined posts for export and repair.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/corpus"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/export"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/logging"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/quarantine"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/segment"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_runs_total",
		Help: "Crawl runs by mode (full, incremental, request) and outcome",
	}, []string{"mode", "outcome"})

	postsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_posts_total",
		Help: "Fetched posts by outcome (parsed, quarantined)",
	}, []string{"outcome"})

	segmentationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_segmentation_failures_total",
		Help: "Posts that failed segmentation by reason",
	}, []string{"reason"})

	probedTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_probed_total",
		Help: "Result count reported by the last probe",
	})
)

// Fetcher is the fetch engine. *pagination.BatchFetcher implements it.
type Fetcher interface {
	ProbeTotal(ctx context.Context, query url.Values) (int, error)
	Fetch(ctx context.Context, query url.Values, count int) ([]corpus.RawPost, error)
}

// Segmenter parses raw posts. *segment.Segmenter implements it.
type Segmenter interface {
	Segment(raw corpus.RawPost) (corpus.ParsedPost, error)
}

// Config holds crawler configuration.
type Config struct {
	// Query is sent with every request (e.g. domain, query).
	Query url.Values

	// FirstArticle is the number given to the first parsed post (default 1).
	FirstArticle int

	// Location turns repair artifact dates into instants (default UTC).
	Location *time.Location
}

// Crawler owns the corpus of one process. It is not safe for concurrent use.
type Crawler struct {
	fetcher    Fetcher
	segmenter  Segmenter
	query      url.Values
	loc        *time.Location
	quarantine *quarantine.Store

	articles    []corpus.Article
	nextArticle int
	logger      zerolog.Logger
}

// Report summarizes one run.
type Report struct {
	Mode        string
	Total       int
	Requested   int
	Fetched     int
	Parsed      int
	Quarantined int
	Duration    time.Duration

	// Articles are the posts parsed by this run, in source order.
	Articles []corpus.Article
}

// New creates a crawler.
func New(fetcher Fetcher, segmenter Segmenter, cfg Config) *Crawler {
	if cfg.FirstArticle <= 0 {
		cfg.FirstArticle = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Crawler{
		fetcher:     fetcher,
		segmenter:   segmenter,
		query:       cfg.Query,
		loc:         cfg.Location,
		quarantine:  quarantine.NewStore(segmenter),
		nextArticle: cfg.FirstArticle,
		logger:      logging.NewLogger("crawler"),
	}
}

// Articles returns every article parsed so far.
func (c *Crawler) Articles() []corpus.Article {
	return c.articles
}

// Quarantine returns the store of posts waiting for repair.
func (c *Crawler) Quarantine() *quarantine.Store {
	return c.quarantine
}

// NextArticle returns the number the next parsed post will get.
func (c *Crawler) NextArticle() int {
	return c.nextArticle
}

// Probe returns the current result count.
func (c *Crawler) Probe(ctx context.Context) (int, error) {
	total, err := c.fetcher.ProbeTotal(ctx, c.query)
	if err != nil {
		return 0, fmt.Errorf("probe total: %w", err)
	}
	probedTotal.Set(float64(total))
	return total, nil
}

// RunFull fetches and segments every available post.
func (c *Crawler) RunFull(ctx context.Context) (Report, error) {
	total, err := c.Probe(ctx)
	if err != nil {
		runsTotal.WithLabelValues("full", "failed").Inc()
		return Report{Mode: "full"}, err
	}
	return c.run(ctx, "full", total, total)
}

// RunIncremental fetches the posts published since the source reported
// lastKnownTotal results. A smaller current total fails with ErrTotalShrank.
func (c *Crawler) RunIncremental(ctx context.Context, lastKnownTotal int) (Report, error) {
	if lastKnownTotal < 0 {
		return Report{Mode: "incremental"}, fmt.Errorf("invalid last known total %d", lastKnownTotal)
	}

	total, err := c.Probe(ctx)
	if err != nil {
		runsTotal.WithLabelValues("incremental", "failed").Inc()
		return Report{Mode: "incremental"}, err
	}

	if total < lastKnownTotal {
		runsTotal.WithLabelValues("incremental", "failed").Inc()
		err := &CountError{Err: ErrTotalShrank, Current: total, Expected: lastKnownTotal}
		c.logger.Error().
			Int("total", total).
			Int("last_known_total", lastKnownTotal).
			Msg("Result count shrank since last run")
		return Report{Mode: "incremental", Total: total}, err
	}

	return c.run(ctx, "incremental", total, total-lastKnownTotal)
}

// Request fetches the newest count posts after checking that they exist.
func (c *Crawler) Request(ctx context.Context, count int) (Report, error) {
	if count < 0 {
		return Report{Mode: "request"}, fmt.Errorf("invalid count %d", count)
	}

	total, err := c.Probe(ctx)
	if err != nil {
		runsTotal.WithLabelValues("request", "failed").Inc()
		return Report{Mode: "request"}, err
	}

	if count > total {
		runsTotal.WithLabelValues("request", "failed").Inc()
		return Report{Mode: "request", Total: total},
			&CountError{Err: ErrCountExceedsTotal, Current: total, Expected: count}
	}

	return c.run(ctx, "request", total, count)
}

func (c *Crawler) run(ctx context.Context, mode string, total, count int) (Report, error) {
	start := time.Now()
	report := Report{Mode: mode, Total: total, Requested: count}

	c.logger.Info().
		Str("mode", mode).
		Int("total", total).
		Int("requested", count).
		Msg("Starting crawl")

	posts, err := c.fetcher.Fetch(ctx, c.query, count)
	if err != nil {
		runsTotal.WithLabelValues(mode, "failed").Inc()
		c.logger.Error().
			Err(err).
			Str("mode", mode).
			Msg("Crawl failed")
		return report, err
	}
	report.Fetched = len(posts)

	for _, post := range posts {
		if article, ok := c.ingest(post); ok {
			report.Articles = append(report.Articles, article)
			report.Parsed++
		} else {
			report.Quarantined++
		}
	}

	report.Duration = time.Since(start)
	runsTotal.WithLabelValues(mode, "success").Inc()

	c.logger.Info().
		Str("mode", mode).
		Int("total", report.Total).
		Int("requested", report.Requested).
		Int("fetched", report.Fetched).
		Int("parsed", report.Parsed).
		Int("quarantined", report.Quarantined).
		Dur("duration", report.Duration).
		Msg("Crawl complete")

	return report, nil
}

// ingest segments one post and files it as an article or in quarantine.
func (c *Crawler) ingest(post corpus.RawPost) (corpus.Article, bool) {
	parsed, err := c.segmenter.Segment(post)
	if err != nil {
		reason := segment.ReasonOf(err)
		segmentationFailuresTotal.WithLabelValues(string(reason)).Inc()
		postsTotal.WithLabelValues("quarantined").Inc()
		c.quarantine.Add(post, err.Error())
		return corpus.Article{}, false
	}

	postsTotal.WithLabelValues("parsed").Inc()
	return c.accept(parsed), true
}

// accept appends parsed to the corpus under the next article number.
func (c *Crawler) accept(parsed corpus.ParsedPost) corpus.Article {
	article := corpus.Article{Number: c.nextArticle, Post: parsed}
	c.nextArticle++
	c.articles = append(c.articles, article)
	return article
}

// Repair re-parses corrected text for a quarantined post and, on success,
// adds it to the corpus.
func (c *Crawler) Repair(index int, correctedText string) (corpus.Article, error) {
	parsed, err := c.quarantine.ReplaceAndRetry(index, correctedText)
	if err != nil {
		return corpus.Article{}, err
	}
	return c.accept(parsed), nil
}

// RepairReport summarizes an ImportRepairs call.
type RepairReport struct {
	Repaired []corpus.Article
	// RepairedIndexes holds the quarantine index of each repaired article.
	RepairedIndexes []int
	// Failed maps quarantine indexes to the error of the last attempt.
	Failed map[int]error
}

// ImportRepairs re-parses hand-corrected repair artifacts. Artifacts for
// indexes unknown to the store (e.g. written by an earlier process) are
// restored first. Failures stay quarantined with their new reason.
func (c *Crawler) ImportRepairs(artifacts []export.Artifact) (RepairReport, error) {
	report := RepairReport{Failed: make(map[int]error)}

	for _, a := range artifacts {
		createdAt := a.CreatedAt(c.loc)

		if _, ok := c.quarantine.Get(a.Index); !ok {
			post := corpus.RawPost{
				ID:        fmt.Sprintf("artifact_%d", a.Index),
				CreatedAt: createdAt,
				Text:      a.Text,
			}
			if err := c.quarantine.Restore(a.Index, post, "restored from repair artifact"); err != nil {
				return report, err
			}
		}

		parsed, err := c.quarantine.ReplaceAndRetryAt(a.Index, a.Text, createdAt)
		if err != nil {
			if errors.Is(err, quarantine.ErrUnknownEntry) {
				return report, err
			}
			report.Failed[a.Index] = err
			continue
		}

		report.Repaired = append(report.Repaired, c.accept(parsed))
		report.RepairedIndexes = append(report.RepairedIndexes, a.Index)
	}

	c.logger.Info().
		Int("artifacts", len(artifacts)).
		Int("repaired", len(report.Repaired)).
		Int("failed", len(report.Failed)).
		Msg("Repair artifacts imported")

	return report, nil
}
