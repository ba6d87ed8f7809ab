package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/community-core/internal/model"
	"github.com/d60-Lab/community-core/internal/repository"
)

func TestCountersComposeDurableAndPending(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	// 持久化总量 100/10，未结增量 3/1
	require.NoError(t, f.db.Create(&model.Board{ID: 42, AuthorID: 1, Title: "t", ViewCount: 100, LikeCount: 10}).Error)

	svc := NewCounterService(f.store, repository.NewBoardRepository(f.db), time.Hour)
	for i := 0; i < 3; i++ {
		_, err := svc.View(ctx, 42)
		require.NoError(t, err)
	}
	applied, err := svc.Like(ctx, 42, 1001)
	require.NoError(t, err)
	require.True(t, applied)

	c, err := svc.Counters(ctx, 42, 1001)
	require.NoError(t, err)
	require.Equal(t, int64(103), c.ViewCount)
	require.Equal(t, int64(11), c.LikeCount)
	require.True(t, c.LikedByUser)

	// 匿名读者不查点赞状态
	c, err = svc.Counters(ctx, 42, 0)
	require.NoError(t, err)
	require.False(t, c.LikedByUser)
}

func TestCountersStayConsistentAcrossReconcile(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&model.Board{ID: 42, AuthorID: 1, Title: "t"}).Error)

	svc := NewCounterService(f.store, repository.NewBoardRepository(f.db), time.Hour)
	for i := 0; i < 4; i++ {
		_, err := svc.View(ctx, 42)
		require.NoError(t, err)
	}

	before, err := svc.Counters(ctx, 42, 0)
	require.NoError(t, err)

	// 对账把增量折进持久化聚合；读者看到的总量不变
	r := NewReconciler(f.db, f.store, f.gen, time.Minute)
	r.reconcileOnce(ctx)

	after, err := svc.Counters(ctx, 42, 0)
	require.NoError(t, err)
	require.Equal(t, before.ViewCount, after.ViewCount, "durable + pending must equal the true count at all times")
}

func TestUnlikeWithoutLikeIsNoop(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&model.Board{ID: 7, AuthorID: 1, Title: "t"}).Error)

	svc := NewCounterService(f.store, repository.NewBoardRepository(f.db), time.Hour)
	applied, err := svc.Unlike(ctx, 7, 55)
	require.NoError(t, err)
	require.False(t, applied)

	c, err := svc.Counters(ctx, 7, 55)
	require.NoError(t, err)
	require.Zero(t, c.LikeCount)
}
