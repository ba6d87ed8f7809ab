package model

import "time"

// BoardComment 帖子评论
type BoardComment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"` // snowflake
	BoardID   int64     `gorm:"index:idx_comment_board;not null"`
	AuthorID  int64     `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_comment_board"`
	UpdatedAt time.Time
}

func (BoardComment) TableName() string { return "board_comments" }
