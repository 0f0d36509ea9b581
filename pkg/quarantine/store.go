// Package quarantine holds posts that could not be segmented until they are
// corrected by hand and parsed again.
package quarantine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/corpus"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	quarantineSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_quarantine_size",
		Help: "Posts currently waiting for manual repair",
	})

	quarantineRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_quarantine_repairs_total",
		Help: "Repair attempts by outcome (success, failed)",
	}, []string{"outcome"})
)

var (
	// ErrUnknownEntry is returned for an index that is not quarantined.
	ErrUnknownEntry = errors.New("quarantine entry not found")

	// ErrEntryExists is returned when restoring onto an occupied index.
	ErrEntryExists = errors.New("quarantine entry already exists")
)

// Segmenter parses raw posts. *segment.Segmenter implements it.
type Segmenter interface {
	Segment(raw corpus.RawPost) (corpus.ParsedPost, error)
}

// Entry is a quarantined post with its stable index.
type Entry struct {
	Index int
	corpus.QuarantinedPost
}

// Store keeps quarantined posts keyed by insertion index. Indexes start at 1
// and are never reused. Store is not safe for concurrent use.
type Store struct {
	segmenter Segmenter
	entries   map[int]corpus.QuarantinedPost
	next      int
	logger    zerolog.Logger
}

// NewStore creates an empty store that re-parses repairs with segmenter.
func NewStore(segmenter Segmenter) *Store {
	return &Store{
		segmenter: segmenter,
		entries:   make(map[int]corpus.QuarantinedPost),
		next:      1,
		logger:    logging.NewLogger("quarantine"),
	}
}

// Add quarantines post and returns its index.
func (s *Store) Add(post corpus.RawPost, reason string) int {
	index := s.next
	s.next++
	s.entries[index] = corpus.QuarantinedPost{Post: post, Reason: reason}
	quarantineSize.Inc()

	s.logger.Warn().
		Int("index", index).
		Str("post_id", post.ID).
		Str("reason", reason).
		Msg("Post quarantined")
	return index
}

// Restore puts back an entry under a known index, e.g. one read from a repair
// artifact written by an earlier run.
func (s *Store) Restore(index int, post corpus.RawPost, reason string) error {
	if index <= 0 {
		return fmt.Errorf("invalid quarantine index %d", index)
	}
	if _, ok := s.entries[index]; ok {
		return fmt.Errorf("%w: %d", ErrEntryExists, index)
	}
	s.entries[index] = corpus.QuarantinedPost{Post: post, Reason: reason}
	if index >= s.next {
		s.next = index + 1
	}
	quarantineSize.Inc()
	return nil
}

// ListForRepair returns all entries ordered by index.
func (s *Store) ListForRepair() []Entry {
	list := make([]Entry, 0, len(s.entries))
	for index, qp := range s.entries {
		list = append(list, Entry{Index: index, QuarantinedPost: qp})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Index < list[j].Index })
	return list
}

// Get returns the entry at index.
func (s *Store) Get(index int) (Entry, bool) {
	qp, ok := s.entries[index]
	if !ok {
		return Entry{}, false
	}
	return Entry{Index: index, QuarantinedPost: qp}, true
}

// Len returns the number of quarantined posts.
func (s *Store) Len() int {
	return len(s.entries)
}

// ReplaceAndRetry parses corrected text for the entry at index. On success the
// entry is removed and the parsed post returned; on failure the entry keeps
// the corrected text and the new reason.
func (s *Store) ReplaceAndRetry(index int, correctedText string) (corpus.ParsedPost, error) {
	entry, ok := s.entries[index]
	if !ok {
		return corpus.ParsedPost{}, fmt.Errorf("%w: %d", ErrUnknownEntry, index)
	}
	return s.ReplaceAndRetryAt(index, correctedText, entry.Post.CreatedAt)
}

// ReplaceAndRetryAt is ReplaceAndRetry with a corrected creation time.
func (s *Store) ReplaceAndRetryAt(index int, correctedText string, createdAt time.Time) (corpus.ParsedPost, error) {
	entry, ok := s.entries[index]
	if !ok {
		return corpus.ParsedPost{}, fmt.Errorf("%w: %d", ErrUnknownEntry, index)
	}

	post := corpus.RawPost{
		ID:        entry.Post.ID,
		CreatedAt: createdAt,
		Text:      correctedText,
	}

	parsed, err := s.segmenter.Segment(post)
	if err != nil {
		s.entries[index] = corpus.QuarantinedPost{Post: post, Reason: err.Error()}
		quarantineRepairsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn().
			Err(err).
			Int("index", index).
			Msg("Repaired post still fails to parse")
		return corpus.ParsedPost{}, err
	}

	delete(s.entries, index)
	quarantineSize.Dec()
	quarantineRepairsTotal.WithLabelValues("success").Inc()
	s.logger.Info().
		Int("index", index).
		Str("post_id", post.ID).
		Msg("Quarantined post repaired")
	return parsed, nil
}
