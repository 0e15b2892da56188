package model

import "time"

// User 管理端登录账号（argon2 哈希口令）
type User struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Username  string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Password  string `gorm:"type:varchar(255);not null"` // argon2id 编码串
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }
