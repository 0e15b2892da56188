package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/model"
	"github.com/d60-Lab/replweb/internal/repository"
	"github.com/d60-Lab/replweb/pkg/logger"
)

// 邮件管线注册的命名过程
const (
	JobEmailSend  = "email.send"
	JobEmailRetry = "email.retry"
)

// Mailer 出站邮件管线：投递、失败分类、瞬时失败经调度器重试。
// 任务契约是 at-least-once，重试过程只回队 delayed 状态的消息，
// 重复唤醒不会重发已送达的邮件。
type Mailer struct {
	emails   repository.EmailRepository
	sched    *Scheduler
	sender   Sender
	cfg      config.EmailConfig
	clock    Clock
	validate *validator.Validate
}

func NewMailer(emails repository.EmailRepository, sched *Scheduler, sender Sender, cfg config.EmailConfig) *Mailer {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Minute
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 4 * time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	return &Mailer{
		emails:   emails,
		sched:    sched,
		sender:   sender,
		cfg:      cfg,
		clock:    systemClock{},
		validate: validator.New(),
	}
}

// WithClock 测试注入时钟
func (m *Mailer) WithClock(c Clock) *Mailer {
	m.clock = c
	return m
}

// RegisterJobs 把邮件过程挂进调度器能力表
func (m *Mailer) RegisterJobs() {
	m.sched.Register(JobEmailSend, m.jobSend)
	m.sched.Register(JobEmailRetry, m.jobRetry)
}

// Enqueue 入队并插入立即执行的发送任务（入队即踢一脚）
func (m *Mailer) Enqueue(ctx context.Context, msg *model.EmailMessage) error {
	if err := m.emails.Enqueue(ctx, msg); err != nil {
		return err
	}
	if _, err := m.sched.InsertJob(ctx, JobEmailSend, m.clock.Now(), 0); err != nil {
		return err
	}
	return nil
}

// SendQueued 逐条投递当前队列。消息级失败在这里消化（分类、
// 延迟或记终局错误），只有仓储层错误向上返回。
func (m *Mailer) SendQueued(ctx context.Context) error {
	msgs, err := m.emails.Queued(ctx, 0)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.deliver(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mailer) deliver(ctx context.Context, msg *model.EmailMessage) error {
	// 地址语法错误不必拨号，直接永久失败
	if err := m.validate.Var(msg.To, "required,email"); err != nil {
		return m.failPermanent(ctx, msg, fmt.Sprintf("invalid recipient %q", msg.To))
	}

	err := m.sender.Send(ctx, msg)
	if err == nil {
		logger.Info("email delivered", zap.String("message_id", msg.ID), zap.String("to", msg.To))
		return m.emails.MarkSent(ctx, msg.ID)
	}

	if permanentFailure(err) {
		return m.failPermanent(ctx, msg, err.Error())
	}

	// 瞬时失败：延迟集与重试任务在 MarkDelayed 的同一事务里落库
	attempt := msg.Attempt + 1
	if attempt >= m.cfg.MaxAttempts {
		return m.failPermanent(ctx, msg,
			fmt.Sprintf("gave up after %d attempts: %v", attempt, err))
	}
	retryAt := m.clock.Now().Add(m.backoffDelay(msg.Attempt))
	if err2 := m.emails.MarkDelayed(ctx, msg.ID, attempt, retryAt, err.Error(), JobEmailRetry); err2 != nil {
		return err2
	}
	m.sched.Notify()
	logger.Warn("email delayed",
		zap.String("message_id", msg.ID),
		zap.Int("attempt", attempt),
		zap.Time("retry_at", retryAt),
		zap.Error(err))
	return nil
}

func (m *Mailer) failPermanent(ctx context.Context, msg *model.EmailMessage, reason string) error {
	logger.Warn("email failed permanently",
		zap.String("message_id", msg.ID), zap.String("reason", reason))
	return m.emails.MarkFailed(ctx, msg.ID, reason)
}

// backoffDelay min(base * 2^attempt, cap)
func (m *Mailer) backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := m.cfg.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.BackoffCap {
			return m.cfg.BackoffCap
		}
	}
	if d > m.cfg.BackoffCap {
		d = m.cfg.BackoffCap
	}
	return d
}

// jobSend 命名过程：投递当前队列
func (m *Mailer) jobSend(ctx context.Context) Outcome {
	if err := m.SendQueued(ctx); err != nil {
		// 仓储不可用属于瞬时，晚点再试
		return Temporary(err, m.clock.Now().Add(m.cfg.BackoffBase))
	}
	return Done()
}

// jobRetry 命名过程：先检查消息当前状态（只回队 delayed），再投递
func (m *Mailer) jobRetry(ctx context.Context) Outcome {
	n, err := m.emails.Requeue(ctx, m.clock.Now())
	if err != nil {
		return Temporary(err, m.clock.Now().Add(m.cfg.BackoffBase))
	}
	if n == 0 {
		// 虚假唤醒或消息已在别处送达，无事可做
		return Done()
	}
	if err := m.SendQueued(ctx); err != nil {
		return Temporary(err, m.clock.Now().Add(m.cfg.BackoffBase))
	}
	return Done()
}
