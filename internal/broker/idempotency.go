package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/pkg/logger"
)

// WithIdempotency 按 eventId 去重的 handler 装饰器。投递是至少一次，
// 非天然幂等的 handler（比如计数累加）用它吸收重复投递。
// 标记在 handler 成功后写入；handler 失败时不写，重投仍会执行。
func WithIdempotency(client redis.UniversalClient, ttl time.Duration, h Handler) Handler {
	return func(ctx context.Context, env event.Envelope) error {
		key := fmt.Sprintf("consumed:%s:%d", env.Type, env.EventID)
		n, err := client.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Debug("duplicate delivery absorbed",
				zap.Int64("event_id", env.EventID), zap.String("type", string(env.Type)))
			return nil
		}
		if err := h(ctx, env); err != nil {
			return err
		}
		return client.Set(ctx, key, 1, ttl).Err()
	}
}
