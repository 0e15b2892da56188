package model

import "time"

// CursorID repl_cursor 是单行表，固定主键
const CursorID = 1

// ReplCursor follower 的复制游标：已落地的最后事务 id
// 只增不减，且只在对应事务本地提交的同一事务内推进
type ReplCursor struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false"`
	LastAppliedID int64     `gorm:"not null"`
	UpdatedAt     time.Time
}

func (ReplCursor) TableName() string { return "repl_cursor" }
