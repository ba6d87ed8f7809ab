package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/internal/idgen"
	"github.com/d60-Lab/community-core/internal/outbox"
	"github.com/d60-Lab/community-core/internal/repository"
	"github.com/d60-Lab/community-core/pkg/logger"
	"github.com/d60-Lab/community-core/pkg/redislock"
)

// 任务锁名：<JobName>_<methodName>
const rankingLockName = "RankingScheduler_recompute"

type rankingMetric struct {
	name   string // 事件里的指标名
	column string // boards 表的排序列
}

type rankingPeriod struct {
	name string
	span time.Duration
}

var (
	rankingMetrics = []rankingMetric{
		{name: "views", column: "view_count"},
		{name: "likes", column: "like_count"},
	}
	rankingPeriods = []rankingPeriod{
		{name: "day", span: 24 * time.Hour},
		{name: "week", span: 7 * 24 * time.Hour},
	}
)

// RankingScheduler 定期重算 top-N 榜单快照。集群内同一 tick 只有
// 一个实例执行（分布式锁）；拿不到锁跳过本轮，不算错误。
type RankingScheduler struct {
	db       *gorm.DB
	boards   repository.BoardRepository
	writer   *outbox.Writer
	locker   redis.UniversalClient
	interval time.Duration
	topN     int
	minHold  time.Duration
	maxHold  time.Duration
}

func NewRankingScheduler(db *gorm.DB, boards repository.BoardRepository, gen *idgen.Generator, locker redis.UniversalClient, interval time.Duration, topN int, minHold, maxHold time.Duration) *RankingScheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if topN <= 0 {
		topN = 10
	}
	return &RankingScheduler{
		db:       db,
		boards:   boards,
		writer:   outbox.NewWriter(gen, event.TypeRankingUpdated),
		locker:   locker,
		interval: interval,
		topN:     topN,
		minHold:  minHold,
		maxHold:  maxHold,
	}
}

// Start 启动定时重算；返回停止函数
func (s *RankingScheduler) Start() func(context.Context) error {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.recompute(context.Background())
			}
		}
	}()
	return func(ctx context.Context) error { close(stop); return nil }
}

// recompute 对每个 (指标, 周期) 组合重算榜单并发事件。
// 组合之间互相隔离：单个组合失败只记日志，不影响其余组合。
func (s *RankingScheduler) recompute(ctx context.Context) {
	lock, err := redislock.Acquire(ctx, s.locker, rankingLockName, s.minHold, s.maxHold)
	if errors.Is(err, redislock.ErrNotAcquired) {
		logger.Debug("ranking tick skipped, lock held elsewhere")
		return
	}
	if err != nil {
		logger.Error("ranking lock acquire failed", zap.Error(err))
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Warn("ranking lock release failed", zap.Error(err))
		}
	}()

	for _, metric := range rankingMetrics {
		for _, period := range rankingPeriods {
			if err := s.recomputeOne(ctx, metric, period); err != nil {
				logger.Error("ranking recompute failed",
					zap.String("metric", metric.name),
					zap.String("period", period.name),
					zap.Error(err))
			}
		}
	}
}

func (s *RankingScheduler) recomputeOne(ctx context.Context, metric rankingMetric, period rankingPeriod) error {
	boards, err := s.boards.TopN(ctx, metric.column, time.Now().Add(-period.span), s.topN)
	if err != nil {
		return err
	}
	if len(boards) == 0 {
		return nil
	}

	entries := make([]event.RankingEntry, len(boards))
	for i, b := range boards {
		value := b.ViewCount
		if metric.column == "like_count" {
			value = b.LikeCount
		}
		entries[i] = event.RankingEntry{BoardID: b.ID, Value: value}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.writer.Publish(tx, event.RankingUpdatedPayload{
			Metric:  metric.name,
			Period:  period.name,
			Entries: entries,
		})
		return err
	})
}
