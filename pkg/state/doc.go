// Package state persists the incremental crawl baseline in Redis.
//
// An incremental run fetches only the posts published since the previous
// run. The previous run's probed result count is stored under a key derived
// from the API method and its query parameters, so different searches keep
// separate baselines.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	store := state.NewStore(redisClient)
//
//	key := state.BaselineKey{
//		Method: "wall.search",
//		Query:  url.Values{"domain": []string{"chinese_news"}},
//	}
//
//	baseline, err := store.Get(ctx, key)
//	if errors.Is(err, state.ErrNoBaseline) {
//		// First run: fetch everything
//	}
//
//	// After a successful run
//	err = store.Advance(ctx, key, report.Total)
//
// # Metrics
//
//   - crawler_state_reads_total{result} - Baseline lookups (hit, miss)
//   - crawler_state_errors_total{operation} - Redis operation errors
//   - crawler_state_baseline_total - Last stored result count
package state
