package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/internal/config"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/client"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/corpus"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/crawler"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/export"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/logging"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/metrics"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/pagination"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/quarantine"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/segment"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/state"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	modeFull        = "full"
	modeIncremental = "incremental"
	modeRequest     = "request"
)

var errNoBaselineStore = errors.New("incremental crawl needs a baseline: configure redis or pass --last-total")

// app wires the crawler components for one command invocation.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	logFile   *os.File
	redis     *redis.Client
	baselines *state.Store
	exporter  *export.Exporter
	segmenter *segment.Segmenter
	metrics   *http.Server
}

func newApp(ctx context.Context, configPath, logLevel string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	a := &app{cfg: cfg}

	logCfg := cfg.LoggingConfig()
	if cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, err
		}
		a.logFile = f
		logCfg.File = f
	}
	logging.Setup(logCfg)
	a.logger = logging.NewLogger("vk-corpus")

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.baselines = state.NewStore(a.redis)
		a.logger.Debug().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	a.exporter, err = export.New(cfg.ExportConfig())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.segmenter = segment.New(cfg.SegmentConfig())

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	a.metrics = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	a.logger.Info().Str("addr", addr).Msg("Serving metrics")
}

// Close releases the connections and files held by a.
func (a *app) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.metrics.Shutdown(ctx)
		cancel()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func (a *app) baselineKey() state.BaselineKey {
	return state.BaselineKey{Method: a.cfg.VK.Method, Query: a.cfg.Query()}
}

// newCrawler numbers new articles after the ones already in metadata.csv and
// reloads pending repair artifacts so quarantine indexes keep growing.
func (a *app) newCrawler(fetcher crawler.Fetcher) (*crawler.Crawler, map[int]bool, error) {
	rows, err := a.exporter.Metadata()
	if err != nil {
		return nil, nil, err
	}

	loc, err := a.cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	c := crawler.New(fetcher, a.segmenter, crawler.Config{
		Query:        a.cfg.Query(),
		FirstArticle: len(rows) + 1,
		Location:     loc,
	})

	artifacts, err := a.exporter.Artifacts()
	if err != nil {
		return nil, nil, err
	}
	pending := make(map[int]bool, len(artifacts))
	for _, art := range artifacts {
		post := corpus.RawPost{
			ID:        fmt.Sprintf("artifact_%d", art.Index),
			CreatedAt: art.CreatedAt(loc),
			Text:      art.Text,
		}
		if err := c.Quarantine().Restore(art.Index, post, "pending repair artifact"); err != nil {
			return nil, nil, err
		}
		pending[art.Index] = true
	}
	return c, pending, nil
}

func (a *app) crawl(ctx context.Context, out io.Writer, mode string, count int, lastTotal *int) error {
	vk, err := client.New(a.cfg.ClientConfig())
	if err != nil {
		return err
	}
	fetcher := pagination.NewBatchFetcher(vk, a.cfg.PaginationConfig())

	c, pending, err := a.newCrawler(fetcher)
	if err != nil {
		return err
	}

	var report crawler.Report
	switch mode {
	case modeRequest:
		report, err = c.Request(ctx, count)
	case modeIncremental:
		last, lerr := a.lastTotal(ctx, lastTotal)
		if lerr != nil {
			return lerr
		}
		report, err = c.RunIncremental(ctx, last)
	default:
		report, err = c.RunFull(ctx)
	}
	if err != nil {
		return err
	}

	if _, err := a.exporter.WriteArticles(report.Articles); err != nil {
		return err
	}

	var fresh []quarantine.Entry
	for _, e := range c.Quarantine().ListForRepair() {
		if !pending[e.Index] {
			fresh = append(fresh, e)
		}
	}
	if err := a.exporter.WriteQuarantine(fresh); err != nil {
		return err
	}

	// Request runs fetch only the newest posts; older ones are still unseen.
	if mode != modeRequest && a.baselines != nil {
		if err := a.baselines.Advance(ctx, a.baselineKey(), report.Total); err != nil {
			return fmt.Errorf("store baseline: %w", err)
		}
	}

	printReport(out, report, len(fresh))
	return nil
}

func (a *app) lastTotal(ctx context.Context, override *int) (int, error) {
	if override != nil {
		return *override, nil
	}
	if a.baselines == nil {
		return 0, errNoBaselineStore
	}

	b, err := a.baselines.Get(ctx, a.baselineKey())
	if err != nil {
		if errors.Is(err, state.ErrNoBaseline) {
			return 0, fmt.Errorf("%w (no baseline stored for %s)", errNoBaselineStore, a.baselineKey())
		}
		return 0, err
	}
	a.logger.Info().
		Int("last_known_total", b.Total).
		Dur("age", b.Age()).
		Msg("Loaded baseline")
	return b.Total, nil
}

// repair returns the number of artifacts that still fail to parse.
func (a *app) repair(out io.Writer) (int, error) {
	artifacts, err := a.exporter.Artifacts()
	if err != nil {
		return 0, err
	}
	if len(artifacts) == 0 {
		fmt.Fprintln(out, "no repair artifacts found")
		return 0, nil
	}

	rows, err := a.exporter.Metadata()
	if err != nil {
		return 0, err
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return 0, err
	}
	c := crawler.New(nil, a.segmenter, crawler.Config{
		Query:        a.cfg.Query(),
		FirstArticle: len(rows) + 1,
		Location:     loc,
	})

	report, err := c.ImportRepairs(artifacts)
	if err != nil {
		return 0, err
	}
	if _, err := a.exporter.WriteArticles(report.Repaired); err != nil {
		return 0, err
	}
	for _, index := range report.RepairedIndexes {
		if err := a.exporter.RemoveArtifact(index); err != nil {
			return 0, err
		}
	}

	fmt.Fprintf(out, "repaired: %d\nstill failing: %d\n", len(report.Repaired), len(report.Failed))
	for _, art := range artifacts {
		if ferr, ok := report.Failed[art.Index]; ok {
			fmt.Fprintf(out, "  %s: %v\n", export.ArtifactName(art.Index), ferr)
		}
	}
	return len(report.Failed), nil
}

func printReport(out io.Writer, r crawler.Report, artifacts int) {
	fmt.Fprintf(out, "mode: %s\ntotal: %d\nrequested: %d\nfetched: %d\nparsed: %d\nquarantined: %d\nartifacts written: %d\nduration: %s\n",
		r.Mode, r.Total, r.Requested, r.Fetched, r.Parsed, r.Quarantined, artifacts, r.Duration.Round(time.Millisecond))
}
