package model

import "time"

// Outbox 事务外发盒：与业务变更同事务写入，由 relay 轮询投递。
// 投递成功即删除；重试超限移入 dead_letters。
type Outbox struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false"` // 事件 snowflake ID
	EventType  string    `gorm:"type:varchar(64);not null"`
	Payload    string    `gorm:"type:text;not null"` // JSON 信封
	RetryCount int       `gorm:"not null;default:0;index:idx_outbox_retry_created"`
	CreatedAt  time.Time `gorm:"index:idx_outbox_retry_created"`
	UpdatedAt  time.Time
}

func (Outbox) TableName() string { return "outbox" }
