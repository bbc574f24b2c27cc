package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// popScript returns expired in-flight items to the ready set, then moves the
// earliest due item to the in-flight set and returns its payload.
var popScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[1])
for _, id in ipairs(expired) do
	redis.call("ZREM", KEYS[2], id)
	redis.call("ZADD", KEYS[1], ARGV[1], id)
end
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call("ZREM", KEYS[1], id)
local payload = redis.call("HGET", KEYS[3], id)
if not payload then
	return false
end
redis.call("ZADD", KEYS[2], ARGV[2], id)
return payload`)

// RedisQueue keeps items in a sorted set scored by due time. Dequeued items
// move to an in-flight set and return to the ready set when their visibility
// timeout passes without an ack.
type RedisQueue struct {
	client       redis.UniversalClient
	readyKey     string
	inflightKey  string
	itemsKey     string
	pollInterval time.Duration
	visibility   time.Duration
	logger       *zap.Logger
}

// NewRedisQueue builds a queue named name.
func NewRedisQueue(client redis.UniversalClient, name string, pollInterval, visibility time.Duration, logger *zap.Logger) *RedisQueue {
	// Hash tag keeps the three keys on one cluster slot for the Lua script.
	prefix := "{" + name + "}"
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &RedisQueue{
		client:       client,
		readyKey:     prefix + ":ready",
		inflightKey:  prefix + ":inflight",
		itemsKey:     prefix + ":items",
		pollInterval: pollInterval,
		visibility:   visibility,
		logger:       logger,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, item WorkItem) error {
	data, err := encode(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	item, _ = decode(data)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.itemsKey, item.DeliveryID, data)
		pipe.ZAdd(ctx, q.readyKey, redis.Z{Score: float64(item.DueAt.UnixMilli()), Member: item.DeliveryID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", item.DeliveryID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		now := time.Now()
		res, err := popScript.Run(ctx, q.client,
			[]string{q.readyKey, q.inflightKey, q.itemsKey},
			now.UnixMilli(), now.Add(q.visibility).UnixMilli(),
		).Text()
		switch {
		case err == nil:
			item, derr := decode([]byte(res))
			if derr != nil {
				q.logger.Error("dropping undecodable work item", zap.Error(derr))
				continue
			}
			return &Delivery{Item: item, ack: q.ackFunc(item.DeliveryID)}, nil
		case errors.Is(err, redis.Nil):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			q.logger.Warn("queue pop failed", zap.Error(err))
		}
		if err := sleepCtx(ctx, q.pollInterval); err != nil {
			return nil, err
		}
	}
}

func (q *RedisQueue) ackFunc(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, q.inflightKey, id)
			pipe.HDel(ctx, q.itemsKey, id)
			return nil
		})
		return err
	}
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	ready, err := q.client.ZCard(ctx, q.readyKey).Result()
	if err != nil {
		return 0, err
	}
	inflight, err := q.client.ZCard(ctx, q.inflightKey).Result()
	if err != nil {
		return 0, err
	}
	return ready + inflight, nil
}
