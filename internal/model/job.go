package model

import "time"

// ScheduledJob 延迟任务：到期调用注册过的零参命名过程
// 执行成功即删除；重试是新记录，不原地改 due_at
type ScheduledJob struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	Name      string    `gorm:"type:varchar(64);not null;index:idx_job_name"`
	DueAt     time.Time `gorm:"not null;index:idx_job_due"`
	Attempt   int       `gorm:"not null;default:0"`
	CreatedAt time.Time
}

func (ScheduledJob) TableName() string { return "scheduled_jobs" }
