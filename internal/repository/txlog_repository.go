package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/replweb/internal/model"
)

// TxLogRepository 事务日志读取（leader 侧复制端点的数据源）
type TxLogRepository interface {
	// ListAfter 返回 id > after 的记录，升序，受条数与字节预算约束；
	// 预算不为零时至少返回一条，避免超大 payload 卡死复制。
	ListAfter(ctx context.Context, after int64, maxCount, maxBytes int) ([]*model.TxRecord, error)
	LastID(ctx context.Context) (int64, error)
	// All 快照端点用：截至当前的完整日志，升序
	All(ctx context.Context) ([]*model.TxRecord, error)
	// PurgeThrough 管理操作：确认所有 follower 已应用后手工清理
	PurgeThrough(ctx context.Context, id int64) (int64, error)
}

type txLogRepository struct {
	db *gorm.DB
}

func NewTxLogRepository(db *gorm.DB) TxLogRepository { return &txLogRepository{db: db} }

func (r *txLogRepository) ListAfter(ctx context.Context, after int64, maxCount, maxBytes int) ([]*model.TxRecord, error) {
	if maxCount <= 0 {
		maxCount = 64
	}
	var recs []*model.TxRecord
	err := r.db.WithContext(ctx).
		Where("id > ?", after).
		Order("id ASC").
		Limit(maxCount).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		return recs, nil
	}
	// 字节预算截断；首条即超限时仍然放行
	total := 0
	for i, rec := range recs {
		total += int(rec.Size)
		if total > maxBytes && i > 0 {
			return recs[:i], nil
		}
	}
	return recs, nil
}

func (r *txLogRepository) LastID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.WithContext(ctx).
		Model(&model.TxRecord{}).
		Select("COALESCE(MAX(id), 0)").
		Scan(&id).Error
	return id, err
}

func (r *txLogRepository) All(ctx context.Context) ([]*model.TxRecord, error) {
	var recs []*model.TxRecord
	err := r.db.WithContext(ctx).Order("id ASC").Find(&recs).Error
	return recs, err
}

func (r *txLogRepository) PurgeThrough(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("id <= ?", id).Delete(&model.TxRecord{})
	return res.RowsAffected, res.Error
}
