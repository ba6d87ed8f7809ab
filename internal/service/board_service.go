package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/internal/idgen"
	"github.com/d60-Lab/community-core/internal/model"
	"github.com/d60-Lab/community-core/internal/outbox"
)

// BoardService 帖子/评论业务写路径：业务变更与事件在同一事务内落地。
// 外发盒写失败会使整个请求失败，这是正确的——失败意味着事实本身没有持久化。
type BoardService struct {
	db     *gorm.DB
	gen    *idgen.Generator
	writer *outbox.Writer
}

func NewBoardService(db *gorm.DB, gen *idgen.Generator) *BoardService {
	writer := outbox.NewWriter(gen,
		event.TypeBoardCreated,
		event.TypeBoardUpdated,
		event.TypeBoardDeleted,
		event.TypeCommentCreated,
		event.TypeCommentUpdated,
		event.TypeCommentDeleted,
	)
	return &BoardService{db: db, gen: gen, writer: writer}
}

func (s *BoardService) CreateBoard(ctx context.Context, authorID int64, title, content string) (*model.Board, error) {
	board := &model.Board{
		ID:       s.gen.NextID(),
		AuthorID: authorID,
		Title:    title,
		Content:  content,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(board).Error; err != nil {
			return err
		}
		_, err := s.writer.Publish(tx, event.BoardCreatedPayload{
			BoardID:  board.ID,
			AuthorID: authorID,
			Title:    title,
			Content:  content,
			At:       time.Now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

func (s *BoardService) UpdateBoard(ctx context.Context, boardID int64, title, content string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Board{}).
			Where("id = ?", boardID).
			Updates(map[string]any{"title": title, "content": content})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		_, err := s.writer.Publish(tx, event.BoardUpdatedPayload{
			BoardID: boardID,
			Title:   title,
			Content: content,
			At:      time.Now(),
		})
		return err
	})
}

func (s *BoardService) DeleteBoard(ctx context.Context, boardID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", boardID).Delete(&model.Board{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("board_id = ?", boardID).Delete(&model.BoardComment{}).Error; err != nil {
			return err
		}
		_, err := s.writer.Publish(tx, event.BoardDeletedPayload{BoardID: boardID, At: time.Now()})
		return err
	})
}

// CreateComment 写评论并在同事务内直接维护帖子的评论总数
// （非热路径的持久化计数由业务服务直接变更）
func (s *BoardService) CreateComment(ctx context.Context, boardID, authorID int64, content string) (*model.BoardComment, error) {
	comment := &model.BoardComment{
		ID:       s.gen.NextID(),
		BoardID:  boardID,
		AuthorID: authorID,
		Content:  content,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Board{}).
			Where("id = ?", boardID).
			Update("comment_count", gorm.Expr("comment_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		_, err := s.writer.Publish(tx, event.CommentCreatedPayload{
			CommentID: comment.ID,
			BoardID:   boardID,
			AuthorID:  authorID,
			Content:   content,
			At:        time.Now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *BoardService) DeleteComment(ctx context.Context, commentID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment model.BoardComment
		if err := tx.Where("id = ?", commentID).First(&comment).Error; err != nil {
			return err
		}
		if err := tx.Delete(&comment).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Board{}).
			Where("id = ?", comment.BoardID).
			Update("comment_count", gorm.Expr("comment_count - 1")).Error; err != nil {
			return err
		}
		_, err := s.writer.Publish(tx, event.CommentDeletedPayload{
			CommentID: commentID,
			BoardID:   comment.BoardID,
			At:        time.Now(),
		})
		return err
	})
}
