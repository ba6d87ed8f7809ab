package model

import "time"

// 死信来源
const (
	FailureSourceRelay    = "relay"
	FailureSourceConsumer = "consumer"
)

// DeadLetter 死信记录，写入后只读，供人工排查；不会被自动重放。
type DeadLetter struct {
	EventID       int64     `gorm:"primaryKey;autoIncrement:false"`
	EventType     string    `gorm:"type:varchar(64);not null"`
	RetryCount    int       `gorm:"not null"`
	FailureSource string    `gorm:"type:varchar(32);not null"`
	LastError     string    `gorm:"type:varchar(2000)"`
	Payload       string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index"`
}

func (DeadLetter) TableName() string { return "dead_letters" }
