package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/counter"
	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/internal/idgen"
	"github.com/d60-Lab/community-core/internal/model"
	"github.com/d60-Lab/community-core/internal/outbox"
	"github.com/d60-Lab/community-core/pkg/logger"
)

var errBoardGone = errors.New("board row no longer exists")

// Reconciler 定期把热路径的未结增量折算进持久化聚合。
// 每个帖子一个独立事务：单个帖子失败不回滚、不阻塞其他帖子。
// 多实例并发运行也安全——认领（读删）是原子的，增量不会被重复应用。
type Reconciler struct {
	db       *gorm.DB
	store    *counter.Store
	writer   *outbox.Writer
	interval time.Duration
}

func NewReconciler(db *gorm.DB, store *counter.Store, gen *idgen.Generator, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		db:       db,
		store:    store,
		writer:   outbox.NewWriter(gen, event.TypeBoardViewed),
		interval: interval,
	}
}

// Start 启动定时对账；返回停止函数
func (r *Reconciler) Start() func(context.Context) error {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.reconcileOnce(context.Background())
			}
		}
	}()
	return func(ctx context.Context) error { close(stop); return nil }
}

// reconcileOnce 处理一轮待结帖子；逐帖隔离，互不影响
func (r *Reconciler) reconcileOnce(ctx context.Context) {
	ids, err := r.store.PendingBoards(ctx)
	if err != nil {
		logger.Error("reconcile: list pending boards failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		if err := r.reconcileBoard(ctx, id); err != nil {
			logger.Error("reconcile board failed",
				zap.Int64("board_id", id), zap.Error(err))
		}
	}
}

// reconcileBoard 单帖对账：
//  1. 原子认领 view/like 增量（读删）；两者皆空则是幂等 no-op
//  2. 增量写入持久化聚合
//  3. 有浏览增量时携带新的持久化总量发 BOARD_VIEWED 事件（同事务）
//  4. 1–3 提交后才从待结集合移除
//
// 认领成功但 2/3 失败时该轮增量丢失——这是文档化的 best-effort 边界，
// 不是 exactly-once 保证。
func (r *Reconciler) reconcileBoard(ctx context.Context, boardID int64) error {
	viewDelta, hasView, err := r.store.ClaimViewDelta(ctx, boardID)
	if err != nil {
		return err
	}
	likeDelta, hasLike, err := r.store.ClaimLikeDelta(ctx, boardID)
	if err != nil {
		return err
	}
	if !hasView && !hasLike {
		return r.store.ClearPending(ctx, boardID)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Board{}).
			Where("id = ?", boardID).
			Updates(map[string]any{
				"view_count": gorm.Expr("view_count + ?", viewDelta),
				"like_count": gorm.Expr("like_count + ?", likeDelta),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errBoardGone
		}
		if viewDelta > 0 {
			var total int64
			if err := tx.Model(&model.Board{}).
				Where("id = ?", boardID).
				Select("view_count").
				Scan(&total).Error; err != nil {
				return err
			}
			// 下游读模型直接用总量覆盖，不需要自己累加偏移
			if _, err := r.writer.Publish(tx, event.BoardViewedPayload{
				BoardID:   boardID,
				ViewCount: total,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errBoardGone) {
		// 帖子已被并发删除：增量随之作废，记录后照常清理
		logger.Warn("reconcile: board deleted, claimed deltas dropped",
			zap.Int64("board_id", boardID),
			zap.Int64("view_delta", viewDelta),
			zap.Int64("like_delta", likeDelta))
		return r.store.ClearPending(ctx, boardID)
	}
	if err != nil {
		return err
	}
	return r.store.ClearPending(ctx, boardID)
}
