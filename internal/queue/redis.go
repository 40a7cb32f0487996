package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

// RedisQueue keeps registrations in a hash (job id to entry JSON) and fire
// times in a sorted set scored by unix seconds. Registrations survive
// restarts; the dispatcher reads due jobs from the sorted set.
type RedisQueue struct {
	client redis.UniversalClient
	logger *logger.Logger
	prefix string
}

// NewRedisQueue creates a queue under the key prefix ("automation:queue"
// when empty).
func NewRedisQueue(client redis.UniversalClient, log *logger.Logger, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "automation:queue"
	}
	return &RedisQueue{
		client: client,
		logger: log.WithComponent("redis_queue"),
		prefix: prefix,
	}
}

// Ping verifies the Redis connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) jobsKey() string {
	return q.prefix + ":jobs"
}

func (q *RedisQueue) scheduleKey() string {
	return q.prefix + ":schedule"
}

// Register upserts the entry and its fire time in one round trip.
func (q *RedisQueue) Register(ctx context.Context, entry ScheduledEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", entry.ID, err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.jobsKey(), entry.ID, data)
	pipe.ZAdd(ctx, q.scheduleKey(), redis.Z{
		Score:  float64(entry.NextFireAt.Unix()),
		Member: entry.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register job %s: %w", entry.ID, err)
	}
	return nil
}

// Remove deletes the registration. Removing an absent job is not an error.
func (q *RedisQueue) Remove(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.jobsKey(), jobID)
	pipe.ZRem(ctx, q.scheduleKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove job %s: %w", jobID, err)
	}
	return nil
}

// Get returns the entry, or nil when the job is not registered.
func (q *RedisQueue) Get(ctx context.Context, jobID string) (*ScheduledEntry, error) {
	data, err := q.client.HGet(ctx, q.jobsKey(), jobID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}

	var entry ScheduledEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &entry, nil
}

// List returns every registration. Entries that no longer parse are skipped
// rather than failing the whole listing.
func (q *RedisQueue) List(ctx context.Context) ([]ScheduledEntry, error) {
	raw, err := q.client.HGetAll(ctx, q.jobsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	entries := make([]ScheduledEntry, 0, len(raw))
	for id, data := range raw {
		var entry ScheduledEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			q.logger.Warn("skipping unreadable job entry", "job_id", id, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// IDs returns the registered job ids as one snapshot.
func (q *RedisQueue) IDs(ctx context.Context) (map[string]bool, error) {
	ids, err := q.client.HKeys(ctx, q.jobsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list job ids: %w", err)
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// Due returns jobs whose fire time has arrived, soonest first. A sorted-set
// member with no matching hash entry is leftover state from a partial
// remove; it is dropped here.
func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]ScheduledEntry, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.scheduleKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}

	entries := make([]ScheduledEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := q.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			q.logger.Warn("dropping orphaned schedule member", "job_id", id)
			if err := q.client.ZRem(ctx, q.scheduleKey(), id).Err(); err != nil {
				q.logger.Error("failed to drop orphaned schedule member", "job_id", id, "error", err)
			}
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Reschedule moves the job's fire time in both the entry and the sorted set.
func (q *RedisQueue) Reschedule(ctx context.Context, jobID string, nextFireAt time.Time) error {
	entry, err := q.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if entry == nil {
		return errJobNotRegistered(jobID)
	}

	entry.NextFireAt = nextFireAt
	return q.Register(ctx, *entry)
}
