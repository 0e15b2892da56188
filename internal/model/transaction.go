package model

import "time"

// TxRecord 事务日志记录：leader 每次落库的写批次（只追加，不可变）
type TxRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Payload   []byte    `gorm:"type:blob;not null"` // msgpack 序列化的语句批次
	Size      int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (TxRecord) TableName() string { return "tx_log" }
