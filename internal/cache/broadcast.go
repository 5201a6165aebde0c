package cache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// invalidationChannel is the pub/sub channel read-only control-plane
// replicas (spec §5: "additional replicas may serve the read-only control
// plane") subscribe to, so a write on the scheduling writer's cache is
// reflected on every replica's own in-process Cache without those replicas
// sharing memory.
const invalidationChannel = "cronkit:cache:invalidate"

// Broadcaster publishes and consumes job-id invalidation events over Redis
// pub/sub. It is optional: a deployment running a single control-plane
// instance has no need for it, and Cache works correctly without one
// attached (spec §5's "core must function correctly without" pattern,
// applied here to cross-replica coherence rather than rate limiting).
type Broadcaster struct {
	rdb *redis.Client
}

func NewBroadcaster(rdb *redis.Client) *Broadcaster {
	return &Broadcaster{rdb: rdb}
}

// Publish announces that jobID's cache entries were invalidated locally.
// Errors are logged and swallowed — cache invalidation broadcast is a
// convenience for replica coherence, not a correctness requirement for the
// writer itself (spec §7: "Cache errors are swallowed and treated as misses").
func (b *Broadcaster) Publish(ctx context.Context, jobID string) {
	if b == nil || b.rdb == nil {
		return
	}
	if err := b.rdb.Publish(ctx, invalidationChannel, jobID).Err(); err != nil {
		slog.Warn("cache: failed to publish invalidation", "job_id", jobID, "error", err)
	}
}

// Subscribe invalidates c for every jobID announced on the channel until ctx
// is cancelled. Intended for a read-only replica process to run in a
// goroutine alongside its own Cache instance.
func (b *Broadcaster) Subscribe(ctx context.Context, c *Cache) {
	if b == nil || b.rdb == nil {
		return
	}
	sub := b.rdb.Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.InvalidateJob(DetailKey(msg.Payload))
		}
	}
}
