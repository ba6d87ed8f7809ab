package model

import "time"

// Board 板块帖子聚合根；计数字段为持久化总量（system of record）。
// ViewCount/LikeCount 仅由对账任务批量回写，CommentCount 随评论事务直接维护。
type Board struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false"` // snowflake
	AuthorID     int64     `gorm:"index:idx_board_author;not null"`
	Title        string    `gorm:"type:varchar(200);not null"`
	Content      string    `gorm:"type:text"`
	ViewCount    int64     `gorm:"not null;default:0"`
	LikeCount    int64     `gorm:"not null;default:0"`
	CommentCount int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"index"`
	UpdatedAt    time.Time
}

func (Board) TableName() string { return "boards" }
