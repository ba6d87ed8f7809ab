package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/model"
)

// OutboxRepository 外发盒仓储接口；行仅由 relay 变更
type OutboxRepository interface {
	// FetchPending 取一批待投递记录（早于 olderThan 且未超重试上限）
	FetchPending(ctx context.Context, olderThan time.Time, maxRetry, limit int) ([]*model.Outbox, error)

	// Delete 投递成功后删除
	Delete(ctx context.Context, id int64) error

	// IncrementRetry 投递失败，重试计数 +1
	IncrementRetry(ctx context.Context, id int64) error

	// MoveToDeadLetter 重试超限：同事务写死信并删除外发盒记录
	MoveToDeadLetter(ctx context.Context, rec *model.Outbox, failureSource, lastError string) error
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) FetchPending(ctx context.Context, olderThan time.Time, maxRetry, limit int) ([]*model.Outbox, error) {
	var recs []*model.Outbox
	err := r.db.WithContext(ctx).
		Where("created_at < ? AND retry_count < ?", olderThan, maxRetry).
		Order("created_at").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *outboxRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Outbox{}).Error
}

func (r *outboxRepository) IncrementRetry(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Outbox{}).
		Where("id = ?", id).
		Update("retry_count", gorm.Expr("retry_count + 1")).Error
}

func (r *outboxRepository) MoveToDeadLetter(ctx context.Context, rec *model.Outbox, failureSource, lastError string) error {
	if len(lastError) > 2000 {
		lastError = lastError[:2000]
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dl := &model.DeadLetter{
			EventID:       rec.ID,
			EventType:     rec.EventType,
			RetryCount:    rec.RetryCount,
			FailureSource: failureSource,
			LastError:     lastError,
			Payload:       rec.Payload,
		}
		if err := tx.Create(dl).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", rec.ID).Delete(&model.Outbox{}).Error
	})
}
