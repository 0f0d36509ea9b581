// Package segment turns the free text of a bilingual post into a header pair
// and an ordered body of sentence pairs.
//
// A post goes through these stages, and fails as a whole at the first one
// that cannot be satisfied:
//
//  1. marker check: the corpus marker (hashtag) must occur in the text
//  2. noise strip: each Rule removes its aside block, if present
//  3. normalize: split into lines, drop blank lines and tag lines, trim
//  4. pair up: an even, non-zero number of paragraphs is zipped into pairs
//  5. order: every pair goes through lang.Orderer
//  6. header: the first pair is the header, the rest is the body
//  7. date: the creation instant is reduced to a calendar day
package segment

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/corpus"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/lang"
)

// DefaultMarker is the hashtag carried by every bilingual news post.
const DefaultMarker = "#Новости_на_двух_языках"

// tagPrefix starts lines that only carry hashtags.
const tagPrefix = "#"

// Config holds segmenter configuration.
type Config struct {
	// Marker must occur in the text (case-insensitive). Empty disables the check.
	Marker string

	// Rules are applied in order during noise removal.
	Rules []Rule

	// Orderer canonicalizes each candidate pair.
	Orderer lang.Orderer

	// Location is used to derive the calendar date (default: UTC).
	Location *time.Location
}

// DefaultConfig returns the configuration for the bilingual news corpus.
func DefaultConfig() Config {
	return Config{
		Marker:   DefaultMarker,
		Rules:    DefaultRules(),
		Orderer:  lang.DefaultOrderer(),
		Location: time.UTC,
	}
}

// Segmenter parses raw posts. It holds no per-post state and is safe for
// concurrent use.
type Segmenter struct {
	marker  string
	rules   []Rule
	orderer lang.Orderer
	loc     *time.Location
}

// New creates a segmenter.
func New(cfg Config) *Segmenter {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Orderer.Primary == lang.Unknown {
		cfg.Orderer = lang.DefaultOrderer()
	}
	return &Segmenter{
		marker:  strings.ToLower(cfg.Marker),
		rules:   cfg.Rules,
		orderer: cfg.Orderer,
		loc:     cfg.Location,
	}
}

// Location returns the location used for date extraction.
func (s *Segmenter) Location() *time.Location {
	return s.loc
}

// Segment parses a raw post. On failure the error is a *Error.
func (s *Segmenter) Segment(raw corpus.RawPost) (corpus.ParsedPost, error) {
	paragraphs, err := s.Paragraphs(raw.Text)
	if err != nil {
		return corpus.ParsedPost{}, err
	}

	pairs, err := s.pairUp(paragraphs)
	if err != nil {
		return corpus.ParsedPost{}, newError(err, len(paragraphs))
	}

	return corpus.ParsedPost{
		SourceID:  raw.ID,
		Header:    pairs[0],
		Body:      pairs[1:],
		CreatedAt: corpus.DateOf(raw.CreatedAt, s.loc),
	}, nil
}

// Paragraphs runs the marker check, noise removal and normalization and
// returns the surviving paragraphs in source order.
func (s *Segmenter) Paragraphs(text string) ([]string, error) {
	if s.marker != "" && !strings.Contains(strings.ToLower(text), s.marker) {
		return nil, newError(ErrMissingMarker, 0)
	}

	text = canonicalize(text)
	for _, rule := range s.rules {
		var err error
		text, err = rule.Apply(text)
		if err != nil {
			return nil, newError(err, 0)
		}
	}

	return normalize(text), nil
}

// normalize splits text into trimmed, non-empty, non-tag lines.
func normalize(text string) []string {
	lines := strings.Split(text, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, tagPrefix) {
			continue
		}
		paragraphs = append(paragraphs, line)
	}
	return paragraphs
}

func (s *Segmenter) pairUp(paragraphs []string) ([]lang.Pair, error) {
	if len(paragraphs) == 0 {
		return nil, ErrEmptyPost
	}
	if len(paragraphs)%2 == 1 {
		return nil, ErrOddParagraphs
	}

	pairs := make([]lang.Pair, 0, len(paragraphs)/2)
	for i := 0; i < len(paragraphs); i += 2 {
		pair, err := s.orderer.Order(paragraphs[i], paragraphs[i+1])
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i/2, err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}
