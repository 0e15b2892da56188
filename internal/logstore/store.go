package logstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/d60-Lab/replweb/internal/model"
)

var (
	// ErrStaleApply payload 的 id 不高于当前游标：重复回放，拒绝执行
	ErrStaleApply = errors.New("logstore: transaction id not above cursor")
)

// Store 复制写入口。
// leader 模式：Exec 在一个事务内执行写批次并把序列化批次追加进 tx_log；
// follower 模式：Apply 在一个事务内回放 payload 并推进游标。
// 所有需要复制的变更都必须经由这两个入口。
type Store struct {
	db     *gorm.DB
	leader bool
}

func NewStore(db *gorm.DB, leader bool) *Store {
	return &Store{db: db, leader: leader}
}

// DB 底层连接（只读查询直接使用）
func (s *Store) DB() *gorm.DB { return s.db }

// Leader 本进程是否为 leader
func (s *Store) Leader() bool { return s.leader }

// Exec 执行一个写批次；leader 上同事务追加日志记录，返回其 id。
// 事务范围保持最小：一个批次一个事务，避免饿死并发读。
func (s *Store) Exec(ctx context.Context, batch Batch) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	var logID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, st := range batch {
			if err := tx.Exec(st.SQL, st.Args...).Error; err != nil {
				return fmt.Errorf("exec %q: %w", st.SQL, err)
			}
		}
		if !s.leader {
			return nil
		}
		payload, err := batch.Encode()
		if err != nil {
			return err
		}
		rec := &model.TxRecord{Payload: payload, Size: int64(len(payload))}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		logID = rec.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return logID, nil
}

// Apply follower 回放一条日志：payload 全部语句与游标推进在同一事务内。
// 任一语句失败整体回滚，游标保持不动，下一次 poll 从同一位置重试。
func (s *Store) Apply(ctx context.Context, id int64, payload []byte) error {
	batch, err := DecodeBatch(payload)
	if err != nil {
		return fmt.Errorf("decode payload id=%d: %w", id, err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, st := range batch {
			if err := tx.Exec(st.SQL, st.Args...).Error; err != nil {
				return fmt.Errorf("apply id=%d %q: %w", id, st.SQL, err)
			}
		}
		return advanceCursor(tx, id)
	})
}

// advanceCursor 游标单调推进；首次回放时建行
func advanceCursor(tx *gorm.DB, id int64) error {
	var cur model.ReplCursor
	err := tx.Where("id = ?", model.CursorID).First(&cur).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&model.ReplCursor{ID: model.CursorID, LastAppliedID: id}).Error
	case err != nil:
		return err
	case cur.LastAppliedID >= id:
		return fmt.Errorf("%w: cursor=%d id=%d", ErrStaleApply, cur.LastAppliedID, id)
	}
	return tx.Model(&model.ReplCursor{}).
		Where("id = ?", model.CursorID).
		Update("last_applied_id", id).Error
}
