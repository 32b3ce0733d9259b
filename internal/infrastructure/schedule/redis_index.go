package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DelayedIndex is the time-ordered wake index for reminder jobs: a
// sorted set scored by fire time, keyed by job UUID. Postgres rows stay
// the source of truth; losing the index only delays fires until re-arm.
type DelayedIndex struct {
	client *redis.Client
	key    string
}

// NewDelayedIndex builds an index on the given Redis connection.
func NewDelayedIndex(client *redis.Client) *DelayedIndex {
	return &DelayedIndex{client: client, key: "scheduler:delayed"}
}

// NewClient creates a Redis client for the scheduler.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Add schedules a job ID to surface at the given time.
func (i *DelayedIndex) Add(ctx context.Context, jobID string, at time.Time) error {
	return i.client.ZAdd(ctx, i.key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: jobID,
	}).Err()
}

// Remove drops job IDs from the index.
func (i *DelayedIndex) Remove(ctx context.Context, jobIDs ...string) error {
	if len(jobIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(jobIDs))
	for n, id := range jobIDs {
		members[n] = id
	}
	return i.client.ZRem(ctx, i.key, members...).Err()
}

// PopDue removes and returns the IDs of jobs due at or before now. The
// removal is atomic with the read, so two pollers never fire one job
// twice.
func (i *DelayedIndex) PopDue(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	res, err := popDueScript.Run(ctx, i.client, []string{i.key},
		fmt.Sprintf("%d", now.UnixMilli()), limit).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected type from pop script: %T", res)
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

var popDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
end
return due
`)
