package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/model"
)

// DeadLetterRepository 死信仓储；记录写入后只读
type DeadLetterRepository interface {
	Create(ctx context.Context, rec *model.DeadLetter) error
	GetByEventID(ctx context.Context, eventID int64) (*model.DeadLetter, error)
	List(ctx context.Context, offset, limit int) ([]*model.DeadLetter, error)
}

type deadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) DeadLetterRepository { return &deadLetterRepository{db: db} }

func (r *deadLetterRepository) Create(ctx context.Context, rec *model.DeadLetter) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *deadLetterRepository) GetByEventID(ctx context.Context, eventID int64) (*model.DeadLetter, error) {
	var rec model.DeadLetter
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *deadLetterRepository) List(ctx context.Context, offset, limit int) ([]*model.DeadLetter, error) {
	var recs []*model.DeadLetter
	err := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&recs).Error
	return recs, err
}
