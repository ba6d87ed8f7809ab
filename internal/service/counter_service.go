package service

import (
	"context"
	"time"

	"github.com/d60-Lab/community-core/internal/counter"
	"github.com/d60-Lab/community-core/internal/repository"
)

// BoardCounters 读者可见的实时计数：持久化总量 + 未结增量
type BoardCounters struct {
	ViewCount   int64 `json:"view_count"`
	LikeCount   int64 `json:"like_count"`
	LikedByUser bool  `json:"liked_by_user"`
}

// CounterService 热路径计数服务。浏览/点赞不碰持久化存储，
// 只走原子脚本；持久化回写由对账任务批量完成。
type CounterService struct {
	store   *counter.Store
	boards  repository.BoardRepository
	likeTTL time.Duration
}

func NewCounterService(store *counter.Store, boards repository.BoardRepository, likeTTL time.Duration) *CounterService {
	if likeTTL <= 0 {
		likeTTL = 30 * 24 * time.Hour
	}
	return &CounterService{store: store, boards: boards, likeTTL: likeTTL}
}

// View 浏览 +1；返回当前未结增量
func (s *CounterService) View(ctx context.Context, boardID int64) (int64, error) {
	return s.store.IncrementView(ctx, boardID)
}

// Like 点赞；重复点赞返回 applied=false，无副作用
func (s *CounterService) Like(ctx context.Context, boardID, userID int64) (bool, error) {
	applied, _, err := s.store.Like(ctx, boardID, userID, s.likeTTL)
	return applied, err
}

// Unlike 取消点赞；未点赞时返回 applied=false
func (s *CounterService) Unlike(ctx context.Context, boardID, userID int64) (bool, error) {
	applied, _, err := s.store.Unlike(ctx, boardID, userID)
	return applied, err
}

// Counters 组合实时视图：持久化总量叠加未结增量。
// userID 为 0 时不查询点赞状态。
func (s *CounterService) Counters(ctx context.Context, boardID, userID int64) (BoardCounters, error) {
	board, err := s.boards.GetByID(ctx, boardID)
	if err != nil {
		return BoardCounters{}, err
	}
	viewDelta, likeDelta, liked, err := s.store.Snapshot(ctx, boardID, userID)
	if err != nil {
		return BoardCounters{}, err
	}
	return BoardCounters{
		ViewCount:   board.ViewCount + viewDelta,
		LikeCount:   board.LikeCount + likeDelta,
		LikedByUser: liked,
	}, nil
}
