package state

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Parameters that never become part of a key.
var excludedParams = map[string]bool{
	"access_token": true,
	"v":            true,
	"offset":       true,
	"count":        true,
}

// BaselineKey identifies the search a baseline belongs to.
type BaselineKey struct {
	// Method is the API method (e.g., "wall.search")
	Method string

	// Query are the search parameters (e.g., {"domain": "chinese_news"})
	Query url.Values
}

// String generates a deterministic key string.
// Format: vkcorpus:baseline:method:param1=val1:param2=val2
//
// Example:
//
//	vkcorpus:baseline:wall.search:domain=chinese_news:query=#news
func (k BaselineKey) String() string {
	parts := []string{"vkcorpus", "baseline"}

	method := strings.Trim(k.Method, "/")
	if method != "" {
		parts = append(parts, method)
	}

	// Query params sorted for determinism; credentials and paging excluded
	if len(k.Query) > 0 {
		keys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			if excludedParams[key] {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			values := append([]string(nil), k.Query[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
