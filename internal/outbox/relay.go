package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/internal/model"
	"github.com/d60-Lab/community-core/internal/repository"
	"github.com/d60-Lab/community-core/pkg/logger"
)

// Publisher 把信封字节投递到某个流
type Publisher interface {
	Publish(ctx context.Context, topic string, message []byte) error
}

// Relay 轮询外发盒并投递到 broker。多实例并发安全：
// 重复投递由下游按 eventId 幂等消费兜底。
type Relay struct {
	repo         repository.OutboxRepository
	pub          Publisher
	pollInterval time.Duration
	relayDelay   time.Duration
	batchSize    int
	maxRetry     int
}

func NewRelay(repo repository.OutboxRepository, pub Publisher, pollInterval, relayDelay time.Duration, batchSize, maxRetry int) *Relay {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	if relayDelay <= 0 {
		relayDelay = time.Second
	}
	if batchSize <= 0 {
		batchSize = 128
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &Relay{repo: repo, pub: pub, pollInterval: pollInterval, relayDelay: relayDelay, batchSize: batchSize, maxRetry: maxRetry}
}

// Start 启动轮询；返回停止函数
func (r *Relay) Start() func(context.Context) error {
	stop := make(chan struct{})
	go r.loop(stop)
	return func(ctx context.Context) error { close(stop); return nil }
}

func (r *Relay) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.processOnce(context.Background()); err != nil {
				logger.Error("outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// processOnce 取一批到期记录逐条投递。成功删除；失败加重试计数；
// 达到上限移入死信表。单条失败不影响同批其余记录。
func (r *Relay) processOnce(ctx context.Context) error {
	recs, err := r.repo.FetchPending(ctx, time.Now().Add(-r.relayDelay), r.maxRetry, r.batchSize)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		topic := event.Type(rec.EventType).Topic()
		if err := r.pub.Publish(ctx, topic, []byte(rec.Payload)); err != nil {
			r.handleFailure(ctx, rec, err)
			continue
		}
		if err := r.repo.Delete(ctx, rec.ID); err != nil {
			// 投递成功但删除失败：下轮会重复投递，由消费端幂等吸收
			logger.Warn("outbox delete after publish failed",
				zap.Int64("event_id", rec.ID), zap.Error(err))
		}
	}
	return nil
}

func (r *Relay) handleFailure(ctx context.Context, rec *model.Outbox, cause error) {
	rec.RetryCount++
	if rec.RetryCount >= r.maxRetry {
		if err := r.repo.MoveToDeadLetter(ctx, rec, model.FailureSourceRelay, cause.Error()); err != nil {
			logger.Error("outbox dead-letter move failed",
				zap.Int64("event_id", rec.ID), zap.Error(err))
			return
		}
		logger.Warn("outbox record dead-lettered",
			zap.Int64("event_id", rec.ID),
			zap.String("event_type", rec.EventType),
			zap.Int("retry_count", rec.RetryCount),
			zap.Error(cause))
		return
	}
	if err := r.repo.IncrementRetry(ctx, rec.ID); err != nil {
		logger.Error("outbox retry increment failed",
			zap.Int64("event_id", rec.ID), zap.Error(err))
		return
	}
	logger.Warn("outbox publish failed, will retry",
		zap.Int64("event_id", rec.ID),
		zap.Int("retry_count", rec.RetryCount),
		zap.Error(cause))
}
