package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/model"
	"github.com/d60-Lab/replweb/internal/repository"
	"github.com/d60-Lab/replweb/pkg/logger"
)

// Outcome 命名过程的执行结果。重试策略属于过程本身：
// Temporary 携带下次执行时间，调度器据此插入一条新任务记录。
type Outcome struct {
	kind    int
	err     error
	nextDue time.Time
}

const (
	outcomeDone = iota
	outcomePermanent
	outcomeTemporary
)

func Done() Outcome                                    { return Outcome{kind: outcomeDone} }
func Permanent(err error) Outcome                      { return Outcome{kind: outcomePermanent, err: err} }
func Temporary(err error, nextDue time.Time) Outcome   { return Outcome{kind: outcomeTemporary, err: err, nextDue: nextDue} }

// JobFunc 注册在能力表里的零参命名过程
type JobFunc func(ctx context.Context) Outcome

// wakeRetryPause 唤醒后仍有到期任务时的最小停顿（删不掉的行降级成周期重试）
const wakeRetryPause = time.Second

// Scheduler 任务调度器：按 due_at 睡到最近一条任务到期，或被新插入
// 的更早任务唤醒。到期任务串行执行（单批在飞），at-least-once —
// 幂等性由命名过程自己负责。
type Scheduler struct {
	jobs     repository.JobRepository
	cfg      config.SchedulerConfig
	clock    Clock
	handlers map[string]JobFunc
	notify   chan struct{}
}

func NewScheduler(jobs repository.JobRepository, cfg config.SchedulerConfig) *Scheduler {
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = 60 * time.Second
	}
	return &Scheduler{
		jobs:     jobs,
		cfg:      cfg,
		clock:    systemClock{},
		handlers: make(map[string]JobFunc),
		notify:   make(chan struct{}, 1),
	}
}

// WithClock 测试注入时钟
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// Register 启动期构建能力表；未注册的名字执行时报错关闭，不静默跳过
func (s *Scheduler) Register(name string, fn JobFunc) {
	s.handlers[name] = fn
}

// Notify 唤醒等待中的调度循环（插入了可能更早到期的任务）。
// 带缓冲非阻塞：插入与睡眠之间没有丢唤醒窗口。
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// InsertJob 插入新任务并唤醒；due_at 在过去的任务下一次唤醒立即执行
func (s *Scheduler) InsertJob(ctx context.Context, name string, dueAt time.Time, attempt int) (string, error) {
	id, err := s.jobs.Insert(ctx, name, dueAt, attempt)
	if err != nil {
		return "", err
	}
	s.Notify()
	return id, nil
}

// Run 阻塞运行直到 ctx 取消。数据库级错误记日志后下次唤醒继续，
// 不终止进程。
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		wait := s.cfg.MaxPollInterval
		due, ok, err := s.jobs.NextDue(ctx)
		if err != nil {
			logger.Error("scheduler next-due query failed", zap.Error(err))
		} else if ok {
			wait = due.Sub(s.clock.Now())
			if wait > s.cfg.MaxPollInterval {
				wait = s.cfg.MaxPollInterval
			}
		}

		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-s.notify:
				// 新任务可能更早到期，重算等待
				t.Stop()
				continue
			case <-t.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		if err := s.runDue(ctx); err != nil {
			logger.Error("scheduler wake failed", zap.Error(err))
		}

		// 执行完仍有到期任务：有行删不掉（或执行期间又到期）。
		// 垫一个短暂停，把卡住的行降级成周期重试，不空转
		if due, ok, err := s.jobs.NextDue(ctx); err == nil && ok && !due.After(s.clock.Now()) {
			if !sleepCtx(ctx, wakeRetryPause) {
				return ctx.Err()
			}
		}
	}
}

// RunDueOnce 执行当前所有到期任务（测试与 bench 入口）
func (s *Scheduler) RunDueOnce(ctx context.Context) error { return s.runDue(ctx) }

func (s *Scheduler) runDue(ctx context.Context) error {
	jobs, err := s.jobs.Due(ctx, s.clock.Now(), 0)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.execute(ctx, job)
	}
	return nil
}

// execute 单条任务：调过程，处理结果，删除记录；重试是新记录
func (s *Scheduler) execute(ctx context.Context, job *model.ScheduledJob) {
	fn, ok := s.handlers[job.Name]
	if !ok {
		logger.Error("scheduler unknown job name",
			zap.String("job_id", job.ID), zap.String("name", job.Name))
		if err := s.jobs.Delete(ctx, job.ID); err != nil {
			logger.Error("scheduler delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	outcome := fn(ctx)

	// Temporary：先写替换行再删旧行。两步之间崩溃最多把这次执行
	// 重复一遍（at-least-once 允许），重试本身不会丢
	if outcome.kind == outcomeTemporary {
		if _, err := s.InsertJob(ctx, job.Name, outcome.nextDue, job.Attempt+1); err != nil {
			// 旧行保留，下次唤醒重试
			logger.Error("job reinsert failed",
				zap.String("name", job.Name), zap.Error(err))
			return
		}
		logger.Info("job rescheduled",
			zap.String("name", job.Name),
			zap.Time("next_due", outcome.nextDue),
			zap.Int("attempt", job.Attempt+1),
			zap.Error(outcome.err))
	}

	if err := s.jobs.Delete(ctx, job.ID); err != nil {
		// 删除失败：记录仍在表里，下次唤醒会再执行一遍（at-least-once）
		logger.Error("scheduler delete failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	switch outcome.kind {
	case outcomeDone, outcomeTemporary:
	case outcomePermanent:
		logger.Warn("job failed permanently",
			zap.String("name", job.Name), zap.Error(outcome.err))
	default:
		logger.Error("job returned unknown outcome", zap.String("name", job.Name),
			zap.Error(fmt.Errorf("kind=%d", outcome.kind)))
	}
}
