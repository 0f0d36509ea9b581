// Package export writes the corpus to disk: one tab-delimited pair file per
// post, a metadata table, and hand-editable repair artifacts for quarantined
// posts.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/corpus"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/logging"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/quarantine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var exportFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crawler_export_files_total",
	Help: "Files written by kind (post, metadata, artifact)",
}, []string{"kind"})

// MetadataFile is the name of the metadata table in the data directory.
const MetadataFile = "metadata.csv"

// Config holds exporter configuration.
type Config struct {
	// Dir receives post files and metadata.csv.
	Dir string
	// QuarantineDir receives post<N>.txt repair artifacts.
	QuarantineDir string
	// FilenameLength bounds the header-derived part of file names.
	FilenameLength int
	// DateLayout formats the created column and artifact date lines.
	DateLayout string
	// Location is used to turn creation instants into dates.
	Location *time.Location
}

// Exporter writes corpus files.
type Exporter struct {
	config Config
	logger zerolog.Logger
}

// New creates an exporter and its directories.
func New(cfg Config) (*Exporter, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("export dir is required")
	}
	if cfg.QuarantineDir == "" {
		cfg.QuarantineDir = filepath.Join(cfg.Dir, "skipped_posts")
	}
	if cfg.FilenameLength <= 0 {
		cfg.FilenameLength = DefaultFilenameLength
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = corpus.DefaultDateLayout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	for _, dir := range []string{cfg.Dir, cfg.QuarantineDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return &Exporter{
		config: cfg,
		logger: logging.NewLogger("export"),
	}, nil
}

// Config returns the effective configuration.
func (e *Exporter) Config() Config {
	return e.config
}

// WriteArticles writes one pair file per article and appends their rows to
// metadata.csv. Existing files are never overwritten: a name that is taken
// gets a numeric suffix.
func (e *Exporter) WriteArticles(articles []corpus.Article) ([]MetadataRow, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	used := make(map[string]bool, len(articles))
	rows := make([]MetadataRow, 0, len(articles))

	for _, a := range articles {
		name := e.uniqueName(a, used)
		used[name] = true

		path := filepath.Join(e.config.Dir, name)
		err := writeFileAtomic(path, func(w *bufio.Writer) error {
			return WritePairs(w, a.Post.Body)
		})
		if err != nil {
			return rows, fmt.Errorf("write article %d: %w", a.Number, err)
		}
		exportFilesTotal.WithLabelValues("post").Inc()

		rows = append(rows, MetadataRow{
			Path:        name,
			Header:      a.Post.Header.Secondary.Text,
			HeaderTrans: a.Post.Header.Primary.Text,
			Created:     a.Post.CreatedAt.Format(e.config.DateLayout),
			Lang:        string(a.Post.Header.Secondary.Language),
			LangTrans:   string(a.Post.Header.Primary.Language),
		})
	}

	if err := e.appendMetadata(rows); err != nil {
		return rows, err
	}

	e.logger.Info().
		Int("articles", len(rows)).
		Str("dir", e.config.Dir).
		Msg("Articles exported")
	return rows, nil
}

// uniqueName picks a free file name for a.
func (e *Exporter) uniqueName(a corpus.Article, used map[string]bool) string {
	base := FilenameBase(a.Post.Header.Primary.Text, e.config.FilenameLength)
	if base == "" {
		base = "post_" + strconv.Itoa(a.Number)
	}

	name := base + Extension
	for n := 2; used[name] || e.exists(name); n++ {
		name = base + "_" + strconv.Itoa(n) + Extension
	}
	return name
}

func (e *Exporter) exists(name string) bool {
	_, err := os.Stat(filepath.Join(e.config.Dir, name))
	return err == nil
}

// appendMetadata rewrites metadata.csv with the existing rows plus rows.
func (e *Exporter) appendMetadata(rows []MetadataRow) error {
	path := filepath.Join(e.config.Dir, MetadataFile)

	existing, err := e.Metadata()
	if err != nil {
		return err
	}
	all := append(existing, rows...)

	err = writeFileAtomic(path, func(w *bufio.Writer) error {
		return WriteMetadata(w, all)
	})
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	exportFilesTotal.WithLabelValues("metadata").Inc()
	return nil
}

// Metadata reads metadata.csv. A missing file yields no rows.
func (e *Exporter) Metadata() ([]MetadataRow, error) {
	f, err := os.Open(filepath.Join(e.config.Dir, MetadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()
	return ReadMetadata(f)
}

// WriteQuarantine writes one repair artifact per entry, named by its index.
func (e *Exporter) WriteQuarantine(entries []quarantine.Entry) error {
	for _, entry := range entries {
		a := Artifact{
			Index: entry.Index,
			Date:  corpus.DateOf(entry.Post.CreatedAt, e.config.Location),
			Text:  entry.Post.Text,
		}
		path := filepath.Join(e.config.QuarantineDir, ArtifactName(entry.Index))
		if err := writeArtifact(path, a, e.config.DateLayout); err != nil {
			return fmt.Errorf("write artifact %d: %w", entry.Index, err)
		}
		exportFilesTotal.WithLabelValues("artifact").Inc()
	}

	if len(entries) > 0 {
		e.logger.Info().
			Int("artifacts", len(entries)).
			Str("dir", e.config.QuarantineDir).
			Msg("Quarantined posts written for repair")
	}
	return nil
}

// Artifacts reads the repair artifacts from the quarantine directory.
func (e *Exporter) Artifacts() ([]Artifact, error) {
	return ReadArtifacts(e.config.QuarantineDir, e.config.DateLayout)
}

// RemoveArtifact deletes the artifact for index. A missing file is not an error.
func (e *Exporter) RemoveArtifact(index int) error {
	err := os.Remove(filepath.Join(e.config.QuarantineDir, ArtifactName(index)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact %d: %w", index, err)
	}
	return nil
}
