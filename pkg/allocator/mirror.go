package allocator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/aicarpool/carpool/pkg/accounts"
)

// Mirror publishes each rebuilt snapshot into Redis so sibling processes
// (the proxy layer, dashboards) can read candidate lists without hitting the
// database. The mirror is write-only from this side and best-effort: a Redis
// outage never fails a refresh.
type Mirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewMirror creates a snapshot mirror. TTL should exceed the refresh
// interval so entries survive until the next publish; it defaults to fifteen
// minutes.
func NewMirror(client *redis.Client, prefix string, ttl time.Duration) *Mirror {
	if prefix == "" {
		prefix = "carpool:candidates"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Mirror{client: client, prefix: prefix, ttl: ttl}
}

// Publish writes every pool of the snapshot under its own key.
func (m *Mirror) Publish(ctx context.Context, snapshot map[poolKey][]accounts.Account) error {
	pipe := m.client.Pipeline()
	for key, pool := range snapshot {
		payload, err := json.Marshal(pool)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate pool: %w", err)
		}
		pipe.Set(ctx, m.key(key.groupID, key.platform), payload, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish candidate pools: %w", err)
	}
	return nil
}

// Pool reads one mirrored candidate pool. Missing keys return ok=false.
func (m *Mirror) Pool(ctx context.Context, groupID int64, platform accounts.Platform) ([]accounts.Account, bool, error) {
	payload, err := m.client.Get(ctx, m.key(groupID, platform)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read candidate pool: %w", err)
	}
	var pool []accounts.Account
	if err := json.Unmarshal(payload, &pool); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal candidate pool: %w", err)
	}
	return pool, true, nil
}

func (m *Mirror) key(groupID int64, platform accounts.Platform) string {
	return fmt.Sprintf("%s:%d:%s", m.prefix, groupID, platform)
}
