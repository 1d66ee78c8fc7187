package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/luminachat/lumina-backend/internal/pkg/envutil"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

// Deduper remembers provider message IDs for a short window so webhook
// retries do not turn into duplicate assistant runs.
type Deduper interface {
	// Seen records the id and reports whether it was already recorded.
	// Fails open: on a backend error the message is treated as new.
	Seen(ctx context.Context, providerMessageID string) bool
	// Forget releases a previously recorded id so a provider retry is
	// processed again after a failed attempt. Best-effort.
	Forget(ctx context.Context, providerMessageID string)
	Close() error
}

type deduper struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewDeduper connects using REDIS_ADDR. A missing address is not an error:
// the caller gets a nil-safe no-op deduper so single-instance deployments
// run without Redis.
func NewDeduper(log *logger.Logger) (Deduper, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		log.Warn("REDIS_ADDR not set; webhook dedupe disabled")
		return &deduper{log: log.With("service", "RedisDeduper")}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &deduper{
		log: log.With("service", "RedisDeduper"),
		rdb: rdb,
		ttl: envutil.Seconds("WEBHOOK_DEDUPE_TTL_SECONDS", 6*time.Hour),
	}, nil
}

func (d *deduper) Seen(ctx context.Context, providerMessageID string) bool {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if d == nil || d.rdb == nil || providerMessageID == "" {
		return false
	}
	key := "dedupe:msg:" + providerMessageID
	set, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.log.Warn("dedupe check failed; treating message as new",
			"provider_message_id", providerMessageID,
			"error", err,
		)
		return false
	}
	return !set
}

func (d *deduper) Forget(ctx context.Context, providerMessageID string) {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if d == nil || d.rdb == nil || providerMessageID == "" {
		return
	}
	key := "dedupe:msg:" + providerMessageID
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		d.log.Warn("dedupe release failed; retry may be dropped until TTL",
			"provider_message_id", providerMessageID,
			"error", err,
		)
	}
}

func (d *deduper) Close() error {
	if d == nil || d.rdb == nil {
		return nil
	}
	return d.rdb.Close()
}
