package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces job keys in Redis.
const DefaultKeyPrefix = "slidecast:job:"

// Compile-time check that RedisRepository implements Repository.
var _ Repository = (*RedisRepository)(nil)

// RedisRepository stores job records in Redis so job status is visible to
// every replica that shares the render directory.
type RedisRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisRepository.
type RedisOption func(*RedisRepository)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisRepository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedisRepository creates a repository on top of rdb.
func NewRedisRepository(rdb redis.UniversalClient, opts ...RedisOption) *RedisRepository {
	r := &RedisRepository{rdb: rdb, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + id
}

// indexKey holds job ids scored by creation time.
func (r *RedisRepository) indexKey() string {
	return r.prefix + "index"
}

// Save writes the job record and indexes it.
func (r *RedisRepository) Save(ctx context.Context, job *Job) error {
	rec := job.Record()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", rec.ID, err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(rec.ID), data, 0)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{
			Score:  float64(rec.CreatedAt.UnixMilli()),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", rec.ID, err)
	}
	return nil
}

// FindByID loads a job record.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return decodeRecord(data)
}

// List returns all indexed jobs, oldest first. Index entries whose record
// is gone are skipped.
func (r *RedisRepository) List(ctx context.Context) ([]*Job, error) {
	ids, err := r.rdb.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(ids) == 0 {
		return []*Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	result := make([]*Job, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		job, err := decodeRecord([]byte(s))
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	sortByCreation(result)
	return result, nil
}

func decodeRecord(data []byte) (*Job, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return FromRecord(rec), nil
}
