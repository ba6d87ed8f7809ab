package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/model"
)

// BoardRepository 帖子聚合仓储接口
type BoardRepository interface {
	// Create 创建帖子
	Create(ctx context.Context, board *model.Board) error

	// GetByID 根据帖子ID查询
	GetByID(ctx context.Context, id int64) (*model.Board, error)

	// TopN 按指标倒序取前 N（快照用）；metric 为 view_count / like_count
	TopN(ctx context.Context, metric string, since time.Time, n int) ([]*model.Board, error)

	// Count 统计帖子数量
	Count(ctx context.Context) (int64, error)
}

type boardRepository struct {
	db *gorm.DB
}

func NewBoardRepository(db *gorm.DB) BoardRepository { return &boardRepository{db: db} }

func (r *boardRepository) Create(ctx context.Context, board *model.Board) error {
	return r.db.WithContext(ctx).Create(board).Error
}

func (r *boardRepository) GetByID(ctx context.Context, id int64) (*model.Board, error) {
	var board model.Board
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&board).Error; err != nil {
		return nil, err
	}
	return &board, nil
}

// 指标列白名单；metric 直接拼入 ORDER BY
var topNMetrics = map[string]bool{
	"view_count": true,
	"like_count": true,
}

func (r *boardRepository) TopN(ctx context.Context, metric string, since time.Time, n int) ([]*model.Board, error) {
	if !topNMetrics[metric] {
		return nil, fmt.Errorf("repository: unsupported ranking metric %q", metric)
	}
	var boards []*model.Board
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order(metric + " DESC").
		Limit(n).
		Find(&boards).Error
	if err != nil {
		return nil, err
	}
	return boards, nil
}

func (r *boardRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Board{}).Count(&count).Error
	return count, err
}
