package model

import "time"

// 邮件状态机：queued -> sent | delayed(待重试) | failed(永久失败)
// 任一消息最终三态之一，不会被静默丢弃
const (
	EmailStatusQueued  = "queued"
	EmailStatusSent    = "sent"
	EmailStatusDelayed = "delayed"
	EmailStatusFailed  = "failed"
)

// EmailMessage 待发邮件
type EmailMessage struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	From      string `gorm:"column:from_addr;type:varchar(255);not null"`
	To        string `gorm:"column:to_addr;type:varchar(255);not null"`
	Subject   string `gorm:"type:varchar(255)"`
	Body      string `gorm:"type:text"`
	HTML      bool
	Status    string     `gorm:"type:varchar(16);not null;index:idx_email_status"`
	Attempt   int        `gorm:"not null;default:0"`
	RetryAt   *time.Time `gorm:"index"` // delayed 时的下次重试时间
	LastError string     `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (EmailMessage) TableName() string { return "email_messages" }

// EmailError 终局错误日志：永久失败的投递记录
type EmailError struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	MessageID string `gorm:"type:varchar(36);not null;index:idx_emailerr_msg"`
	Reason    string `gorm:"type:text"`
	Permanent bool   `gorm:"not null"`
	CreatedAt time.Time
}

func (EmailError) TableName() string { return "email_errors" }
