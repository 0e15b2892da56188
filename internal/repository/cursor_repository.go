package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/replweb/internal/model"
)

// CursorRepository 复制游标：无行表示从未引导过（触发 bootstrap）。
// 推进发生在 logstore.Apply 的回放事务内，这里只有读取与初始化。
type CursorRepository interface {
	Get(ctx context.Context) (int64, bool, error)
	Init(ctx context.Context, id int64) error
}

type cursorRepository struct {
	db *gorm.DB
}

func NewCursorRepository(db *gorm.DB) CursorRepository { return &cursorRepository{db: db} }

func (r *cursorRepository) Get(ctx context.Context) (int64, bool, error) {
	var cur model.ReplCursor
	err := r.db.WithContext(ctx).Where("id = ?", model.CursorID).First(&cur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cur.LastAppliedID, true, nil
}

func (r *cursorRepository) Init(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Create(&model.ReplCursor{ID: model.CursorID, LastAppliedID: id}).Error
}
