package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/replweb/internal/logstore"
	"github.com/d60-Lab/replweb/internal/model"
)

// JobRepository 延迟任务表。写操作经 logstore 复制；
// 重试永远是新记录（新 id），不原地改 due_at。
type JobRepository interface {
	Insert(ctx context.Context, name string, dueAt time.Time, attempt int) (string, error)
	Due(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledJob, error)
	NextDue(ctx context.Context) (time.Time, bool, error)
	Delete(ctx context.Context, id string) error
	PendingCount(ctx context.Context) (int64, error)
	List(ctx context.Context, limit int) ([]*model.ScheduledJob, error)
}

type jobRepository struct {
	store *logstore.Store
}

func NewJobRepository(store *logstore.Store) JobRepository { return &jobRepository{store: store} }

func (r *jobRepository) Insert(ctx context.Context, name string, dueAt time.Time, attempt int) (string, error) {
	id := uuid.New().String()
	_, err := r.store.Exec(ctx, logstore.Batch{{
		SQL:  "INSERT INTO scheduled_jobs (id, name, due_at, attempt, created_at) VALUES (?, ?, ?, ?, ?)",
		Args: []interface{}{id, name, dueAt, attempt, time.Now()},
	}})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *jobRepository) Due(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledJob, error) {
	if limit <= 0 {
		limit = 256
	}
	var jobs []*model.ScheduledJob
	err := r.store.DB().WithContext(ctx).
		Where("due_at <= ?", now).
		Order("due_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *jobRepository) NextDue(ctx context.Context) (time.Time, bool, error) {
	var job model.ScheduledJob
	err := r.store.DB().WithContext(ctx).Order("due_at ASC").First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return job.DueAt, true, nil
}

func (r *jobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.store.Exec(ctx, logstore.Batch{{
		SQL:  "DELETE FROM scheduled_jobs WHERE id = ?",
		Args: []interface{}{id},
	}})
	return err
}

func (r *jobRepository) PendingCount(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.store.DB().WithContext(ctx).Model(&model.ScheduledJob{}).Count(&cnt).Error
	return cnt, err
}

func (r *jobRepository) List(ctx context.Context, limit int) ([]*model.ScheduledJob, error) {
	if limit <= 0 {
		limit = 100
	}
	var jobs []*model.ScheduledJob
	err := r.store.DB().WithContext(ctx).Order("due_at ASC").Limit(limit).Find(&jobs).Error
	return jobs, err
}
