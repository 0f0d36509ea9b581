// Package pagination provides parallel batch fetching for the paginated
// wall.search method.
//
// wall.search serves at most 100 items per request and reports the total
// result count with every page. A batch splits the requested count into
// pages, fetches them concurrently and stitches them back in offset order.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(vkClient, pagination.DefaultConfig())
//	total, err := fetcher.ProbeTotal(ctx, query)
//	posts, err := fetcher.Fetch(ctx, query, total)
//
// The batch fetcher:
//   - Plans pages of at most PageCap items with increasing offsets
//   - Runs at most MaxConcurrency page requests at a time, each with its own timeout
//   - Fails the whole batch on the first page error and cancels the rest
//   - Returns items ordered by page sequence, never partial data
package pagination
