package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSink keeps per-mapping sync counters in Redis, bucketed by hour.
// Writes are best-effort: failures are logged and never propagated, a
// sync outcome is recorded in the sync log regardless.
type RedisSink struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisSink(client *redis.Client, retention time.Duration) *RedisSink {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RedisSink{client: client, retention: retention}
}

func (s *RedisSink) RecordSync(ctx context.Context, workspaceID string, mappingID uuid.UUID, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	key := buildKey(workspaceID, mappingID.String(), outcome, time.Now())

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: redis pipeline: %v", err)
	}
}

func buildKey(workspaceID, mappingID, outcome string, t time.Time) string {
	bucket := t.UTC().Format("2006010215")
	return fmt.Sprintf("ws:%s:m:%s:sync:%s:%s", workspaceID, mappingID, outcome, bucket)
}
