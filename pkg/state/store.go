package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoBaseline indicates no run has been recorded for the key
	ErrNoBaseline = errors.New("no baseline")

	// ErrInvalidBaseline indicates the stored value is invalid or corrupted
	ErrInvalidBaseline = errors.New("invalid baseline")

	// ErrBaselineRegression indicates an attempt to store a smaller total
	ErrBaselineRegression = errors.New("baseline total cannot decrease")
)

// Store keeps baselines in Redis. Baselines do not expire.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new baseline store with Redis backend.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis: redisClient,
	}
}

// Get retrieves the baseline for key.
// Returns ErrNoBaseline if none was stored.
func (s *Store) Get(ctx context.Context, key BaselineKey) (*Baseline, error) {
	return s.get(ctx, s.redis, key.String())
}

// getter is satisfied by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) get(ctx context.Context, g getter, redisKey string) (*Baseline, error) {
	data, err := g.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			StateReads.WithLabelValues("miss").Inc()
			return nil, ErrNoBaseline
		}
		StateErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		StateErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseline, err)
	}
	if b.Total < 0 {
		StateErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: negative total %d", ErrInvalidBaseline, b.Total)
	}

	StateReads.WithLabelValues("hit").Inc()
	return &b, nil
}

// Set stores total as the baseline for key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key BaselineKey, total int) error {
	data, err := encode(key, total)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, key.String(), data, 0).Err(); err != nil {
		StateErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	BaselineTotal.Set(float64(total))
	return nil
}

// Advance stores total unless it is smaller than the stored baseline. The
// read and write run in one optimistic transaction.
func (s *Store) Advance(ctx context.Context, key BaselineKey, total int) error {
	data, err := encode(key, total)
	if err != nil {
		return err
	}
	redisKey := key.String()

	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, redisKey)
		switch {
		case errors.Is(err, ErrNoBaseline):
		case err != nil:
			return err
		case total < current.Total:
			return fmt.Errorf("%w: stored %d, new %d", ErrBaselineRegression, current.Total, total)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, 0)
			return nil
		})
		return err
	}

	if err := s.redis.Watch(ctx, txf, redisKey); err != nil {
		if !errors.Is(err, ErrBaselineRegression) && !errors.Is(err, ErrInvalidBaseline) {
			StateErrors.WithLabelValues("set").Inc()
		}
		return err
	}

	BaselineTotal.Set(float64(total))
	return nil
}

// Delete removes the baseline for key.
func (s *Store) Delete(ctx context.Context, key BaselineKey) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		StateErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func encode(key BaselineKey, total int) ([]byte, error) {
	if total < 0 {
		return nil, fmt.Errorf("%w: negative total %d", ErrInvalidBaseline, total)
	}
	data, err := json.Marshal(Baseline{
		Total:     total,
		Key:       key.String(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		StateErrors.WithLabelValues("set").Inc()
		return nil, fmt.Errorf("marshal baseline: %w", err)
	}
	return data, nil
}
