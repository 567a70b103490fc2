package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/arvopay/ledger/internal/domain"
	"github.com/arvopay/ledger/pkg/config"
)

// SnapshotCache is a read-through cache for balance snapshots. Snapshots
// are derived state, so a miss or a stale entry is never incorrect: the
// service falls back to the balance repository and rewrites the entry.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func New(cfg *config.RedisConfig, logger zerolog.Logger) (*SnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &SnapshotCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func snapshotKey(accountID string) string {
	return "ledger:snapshot:" + accountID
}

// Get returns the cached snapshot for the account, or nil on a miss.
// Cache errors are logged and reported as misses.
func (c *SnapshotCache) Get(ctx context.Context, accountID string) *domain.BalanceSnapshot {
	data, err := c.client.Get(ctx, snapshotKey(accountID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("account_id", accountID).Msg("Snapshot cache read failed")
		}
		return nil
	}

	var snapshot domain.BalanceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.Warn().Err(err).Str("account_id", accountID).Msg("Snapshot cache entry corrupt, dropping")
		c.Invalidate(ctx, accountID)
		return nil
	}

	return &snapshot
}

func (c *SnapshotCache) Set(ctx context.Context, snapshot *domain.BalanceSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Warn().Err(err).Str("account_id", snapshot.AccountID).Msg("Failed to marshal snapshot for cache")
		return
	}

	if err := c.client.Set(ctx, snapshotKey(snapshot.AccountID), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("account_id", snapshot.AccountID).Msg("Snapshot cache write failed")
	}
}

func (c *SnapshotCache) Invalidate(ctx context.Context, accountID string) {
	if err := c.client.Del(ctx, snapshotKey(accountID)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("account_id", accountID).Msg("Snapshot cache invalidation failed")
	}
}

func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
