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

// EmailRepository 邮件队列与终局错误日志。
// 状态迁移全部经 logstore 复制：queued -> sent / delayed / failed。
// delayed 与 failed 互斥，一条消息不会同时出现在两边。
type EmailRepository interface {
	Enqueue(ctx context.Context, msg *model.EmailMessage) error
	Get(ctx context.Context, id string) (*model.EmailMessage, error)
	Queued(ctx context.Context, limit int) ([]*model.EmailMessage, error)
	MarkSent(ctx context.Context, id string) error
	// MarkDelayed 状态更新与重试任务同一批次：delayed 的消息永远
	// 带着一条已落库的重试任务，两步之间没有崩溃窗口
	MarkDelayed(ctx context.Context, id string, attempt int, retryAt time.Time, reason, retryJob string) error
	MarkFailed(ctx context.Context, id, reason string) error
	// Requeue 把重试时间已到的 delayed 消息改回 queued（零参重试过程的入口）
	Requeue(ctx context.Context, now time.Time) (int64, error)
	Errors(ctx context.Context, limit int) ([]*model.EmailError, error)
	QueuedCount(ctx context.Context) (int64, error)
	List(ctx context.Context, limit int) ([]*model.EmailMessage, error)
}

type emailRepository struct {
	store *logstore.Store
}

func NewEmailRepository(store *logstore.Store) EmailRepository { return &emailRepository{store: store} }

func (r *emailRepository) Enqueue(ctx context.Context, msg *model.EmailMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.Status = model.EmailStatusQueued
	now := time.Now()
	_, err := r.store.Exec(ctx, logstore.Batch{{
		SQL: "INSERT INTO email_messages (id, from_addr, to_addr, subject, body, html, status, attempt, last_error, created_at, updated_at) " +
			"VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)",
		Args: []interface{}{msg.ID, msg.From, msg.To, msg.Subject, msg.Body, msg.HTML, msg.Status, now, now},
	}})
	return err
}

func (r *emailRepository) Get(ctx context.Context, id string) (*model.EmailMessage, error) {
	var msg model.EmailMessage
	err := r.store.DB().WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *emailRepository) Queued(ctx context.Context, limit int) ([]*model.EmailMessage, error) {
	if limit <= 0 {
		limit = 256
	}
	var msgs []*model.EmailMessage
	err := r.store.DB().WithContext(ctx).
		Where("status = ?", model.EmailStatusQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (r *emailRepository) MarkSent(ctx context.Context, id string) error {
	_, err := r.store.Exec(ctx, logstore.Batch{{
		SQL:  "UPDATE email_messages SET status = ?, retry_at = NULL, updated_at = ? WHERE id = ?",
		Args: []interface{}{model.EmailStatusSent, time.Now(), id},
	}})
	return err
}

func (r *emailRepository) MarkDelayed(ctx context.Context, id string, attempt int, retryAt time.Time, reason, retryJob string) error {
	now := time.Now()
	_, err := r.store.Exec(ctx, logstore.Batch{
		{
			SQL: "UPDATE email_messages SET status = ?, attempt = ?, retry_at = ?, last_error = ?, updated_at = ? " +
				"WHERE id = ? AND status = ?",
			Args: []interface{}{model.EmailStatusDelayed, attempt, retryAt, reason, now, id, model.EmailStatusQueued},
		},
		{
			SQL:  "INSERT INTO scheduled_jobs (id, name, due_at, attempt, created_at) VALUES (?, ?, ?, ?, ?)",
			Args: []interface{}{uuid.New().String(), retryJob, retryAt, attempt, now},
		},
	})
	return err
}

// MarkFailed 状态更新与错误日志同一批次（一个事务）
func (r *emailRepository) MarkFailed(ctx context.Context, id, reason string) error {
	now := time.Now()
	_, err := r.store.Exec(ctx, logstore.Batch{
		{
			SQL:  "UPDATE email_messages SET status = ?, retry_at = NULL, last_error = ?, updated_at = ? WHERE id = ?",
			Args: []interface{}{model.EmailStatusFailed, reason, now, id},
		},
		{
			SQL:  "INSERT INTO email_errors (id, message_id, reason, permanent, created_at) VALUES (?, ?, ?, ?, ?)",
			Args: []interface{}{uuid.New().String(), id, reason, true, now},
		},
	})
	return err
}

func (r *emailRepository) Requeue(ctx context.Context, now time.Time) (int64, error) {
	// 仅 delayed 状态可回队：at-least-once 的任务重复唤醒不会重发已送达消息
	var ids []string
	err := r.store.DB().WithContext(ctx).
		Model(&model.EmailMessage{}).
		Where("status = ? AND retry_at IS NOT NULL AND retry_at <= ?", model.EmailStatusDelayed, now).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	batch := make(logstore.Batch, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, logstore.Statement{
			SQL:  "UPDATE email_messages SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
			Args: []interface{}{model.EmailStatusQueued, now, id, model.EmailStatusDelayed},
		})
	}
	if _, err := r.store.Exec(ctx, batch); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (r *emailRepository) Errors(ctx context.Context, limit int) ([]*model.EmailError, error) {
	if limit <= 0 {
		limit = 100
	}
	var errs []*model.EmailError
	err := r.store.DB().WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&errs).Error
	return errs, err
}

func (r *emailRepository) QueuedCount(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.store.DB().WithContext(ctx).
		Model(&model.EmailMessage{}).
		Where("status = ?", model.EmailStatusQueued).
		Count(&cnt).Error
	return cnt, err
}

func (r *emailRepository) List(ctx context.Context, limit int) ([]*model.EmailMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var msgs []*model.EmailMessage
	err := r.store.DB().WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}
