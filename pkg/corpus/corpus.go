// Package corpus defines the records that flow through the crawler: raw
// posts as fetched, parsed bilingual posts, and quarantined posts.
package corpus

import (
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/lang"
)

// RawPost is one item as returned by the source. It is never modified after
// it has been fetched.
type RawPost struct {
	// ID is assigned by the source and is opaque to the crawler.
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text"`
}

// Page is one upstream reply: the source's total result count and the items
// of the requested window, in source order.
type Page struct {
	Total int       `json:"total"`
	Items []RawPost `json:"items"`
}

// ParsedPost is the bilingual structure extracted from a RawPost.
type ParsedPost struct {
	SourceID  string      `json:"source_id"`
	Header    lang.Pair   `json:"header"`
	Body      []lang.Pair `json:"body"`
	CreatedAt Date        `json:"created_at"`
}

// QuarantinedPost is a post whose text could not be segmented.
type QuarantinedPost struct {
	Post   RawPost `json:"post"`
	Reason string  `json:"reason"`
}

// Article is a parsed post together with the running number assigned to it
// when it entered the corpus.
type Article struct {
	Number int
	Post   ParsedPost
}
