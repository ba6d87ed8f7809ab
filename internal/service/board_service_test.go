package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/internal/model"
)

func outboxEvents(t *testing.T, db *gorm.DB) []event.Envelope {
	t.Helper()
	var recs []model.Outbox
	require.NoError(t, db.Order("id").Find(&recs).Error)
	envs := make([]event.Envelope, len(recs))
	for i, rec := range recs {
		env, err := event.Decode([]byte(rec.Payload))
		require.NoError(t, err)
		envs[i] = env
	}
	return envs
}

func TestCreateBoardWritesAggregateAndEvent(t *testing.T) {
	f := setupFixture(t)
	svc := NewBoardService(f.db, f.gen)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, 9, "title", "content")
	require.NoError(t, err)
	require.NotZero(t, board.ID)

	envs := outboxEvents(t, f.db)
	require.Len(t, envs, 1)
	require.Equal(t, event.TypeBoardCreated, envs[0].Type)
	p := envs[0].Payload.(event.BoardCreatedPayload)
	require.Equal(t, board.ID, p.BoardID)
	require.Equal(t, "title", p.Title)
}

func TestUpdateMissingBoardLeavesNoEvent(t *testing.T) {
	f := setupFixture(t)
	svc := NewBoardService(f.db, f.gen)

	err := svc.UpdateBoard(context.Background(), 12345, "x", "y")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.Empty(t, outboxEvents(t, f.db), "failed transaction must roll back the outbox write")
}

func TestCommentMaintainsCountInSameTransaction(t *testing.T) {
	f := setupFixture(t)
	svc := NewBoardService(f.db, f.gen)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, 9, "t", "c")
	require.NoError(t, err)

	comment, err := svc.CreateComment(ctx, board.ID, 7, "hello")
	require.NoError(t, err)
	require.Equal(t, int64(1), f.board(t, board.ID).CommentCount)

	require.NoError(t, svc.DeleteComment(ctx, comment.ID))
	require.Equal(t, int64(0), f.board(t, board.ID).CommentCount)

	envs := outboxEvents(t, f.db)
	types := make([]event.Type, len(envs))
	for i, e := range envs {
		types[i] = e.Type
	}
	require.Contains(t, types, event.TypeCommentCreated)
	require.Contains(t, types, event.TypeCommentDeleted)
}

func TestCommentOnMissingBoardFails(t *testing.T) {
	f := setupFixture(t)
	svc := NewBoardService(f.db, f.gen)

	_, err := svc.CreateComment(context.Background(), 999, 7, "hello")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var count int64
	require.NoError(t, f.db.Model(&model.BoardComment{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDeleteBoardCascadesComments(t *testing.T) {
	f := setupFixture(t)
	svc := NewBoardService(f.db, f.gen)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, 9, "t", "c")
	require.NoError(t, err)
	_, err = svc.CreateComment(ctx, board.ID, 7, "hello")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBoard(ctx, board.ID))

	var comments int64
	require.NoError(t, f.db.Model(&model.BoardComment{}).Count(&comments).Error)
	require.Zero(t, comments)

	envs := outboxEvents(t, f.db)
	require.Equal(t, event.TypeBoardDeleted, envs[len(envs)-1].Type)
}
