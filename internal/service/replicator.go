package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/logstore"
	"github.com/d60-Lab/replweb/internal/repository"
	"github.com/d60-Lab/replweb/pkg/logger"
)

// 复制子系统状态
const (
	ReplStateBootstrapping = "bootstrapping"
	ReplStateRunning       = "running"
	ReplStatePaused        = "paused" // 凭证被拒，等待运维干预
	ReplStateStopped       = "stopped"
)

// ReplStatus 复制状态快照（status 端点展示）
type ReplStatus struct {
	State         string    `json:"state"`
	LastAppliedID int64     `json:"last_applied_id"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Replicator follower 侧复制客户端：持续把本地库维持为 leader 日志的
// 因果一致前缀。游标缺失时先 bootstrap 再进入增量轮询；两者同一
// goroutine 串行执行，天然 single-flight。
type Replicator struct {
	store   *logstore.Store
	cursors repository.CursorRepository
	fetcher Fetcher
	cfg     config.ReplicationConfig

	mu     sync.Mutex
	status ReplStatus
}

func NewReplicator(store *logstore.Store, cursors repository.CursorRepository, fetcher Fetcher, cfg config.ReplicationConfig) *Replicator {
	return &Replicator{
		store:   store,
		cursors: cursors,
		fetcher: fetcher,
		cfg:     cfg,
		status:  ReplStatus{State: ReplStateStopped, UpdatedAt: time.Now()},
	}
}

// Status 当前状态快照
func (r *Replicator) Status() ReplStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Replicator) setStatus(state string, lastID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = state
	if lastID >= 0 {
		r.status.LastAppliedID = lastID
	}
	if err != nil {
		r.status.LastError = err.Error()
	} else {
		r.status.LastError = ""
	}
	r.status.UpdatedAt = time.Now()
}

// Run 阻塞运行直到 ctx 取消。凭证被拒时暂停而不是带着坏凭证空转；
// 进行中的回放事务在返回前完成提交或回滚。
func (r *Replicator) Run(ctx context.Context) error {
	bo := r.newBackoff()

	// bootstrap：游标缺失表示全新 follower
	for {
		cur, ok, err := r.cursors.Get(ctx)
		if err == nil && ok {
			r.setStatus(ReplStateRunning, cur, nil)
			break
		}
		if err == nil {
			err = r.bootstrap(ctx)
			if err == nil {
				bo.Reset()
				continue
			}
			if errors.Is(err, ErrUnauthorized) {
				return r.pause(ctx, err)
			}
		}
		logger.Warn("replication bootstrap retry", zap.Error(err))
		r.setStatus(ReplStateBootstrapping, -1, err)
		if !sleepCtx(ctx, bo.NextBackOff()) {
			r.setStatus(ReplStateStopped, -1, nil)
			return ctx.Err()
		}
	}

	// 增量轮询
	bo.Reset()
	for {
		if ctx.Err() != nil {
			r.setStatus(ReplStateStopped, -1, nil)
			return ctx.Err()
		}
		applied, err := r.pollOnce(ctx)
		switch {
		case errors.Is(err, ErrUnauthorized):
			return r.pause(ctx, err)
		case err != nil:
			// 瞬时网络错误与本地应用失败同一处理：不动游标，退避后从原位重试
			logger.Warn("replication poll failed", zap.Error(err))
			r.setStatus(ReplStateRunning, -1, err)
			if !sleepCtx(ctx, bo.NextBackOff()) {
				r.setStatus(ReplStateStopped, -1, nil)
				return ctx.Err()
			}
		case applied == 0:
			// 已追平，空闲间隔后再问
			bo.Reset()
			if !sleepCtx(ctx, r.cfg.PollInterval) {
				r.setStatus(ReplStateStopped, -1, nil)
				return ctx.Err()
			}
		default:
			// 有进展，立即继续拉下一批
			bo.Reset()
		}
	}
}

// pollOnce 拉一批并按 id 升序逐条回放；每条一个本地事务，
// 游标在同一事务内推进，绝不越过失败的事务。
func (r *Replicator) pollOnce(ctx context.Context) (int, error) {
	cur, _, err := r.cursors.Get(ctx)
	if err != nil {
		return 0, err
	}
	entries, err := r.fetcher.FetchBatch(ctx, cur, r.cfg.BatchMaxCount, r.cfg.BatchMaxBytes)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, e := range entries {
		if e.ID <= cur {
			continue
		}
		if err := r.store.Apply(ctx, e.ID, e.Payload); err != nil {
			logger.Error("replication apply failed",
				zap.Int64("transaction_id", e.ID), zap.Error(err))
			return applied, err
		}
		cur = e.ID
		applied++
		r.setStatus(ReplStateRunning, cur, nil)
	}
	return applied, nil
}

// bootstrap 获取自洽全量快照，逐条回放后把游标定在快照 id。
// 运维预置数据目录的场景由游标行的存在与否区分，这里不重复处理。
func (r *Replicator) bootstrap(ctx context.Context) error {
	r.setStatus(ReplStateBootstrapping, -1, nil)
	logger.Info("replication bootstrap started")

	snap, err := r.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return err
	}
	for _, e := range snap.Records {
		if err := r.store.Apply(ctx, e.ID, e.Payload); err != nil {
			return err
		}
	}
	if len(snap.Records) == 0 {
		// 空快照也要落游标，否则每次启动都会重新 bootstrap
		if err := r.cursors.Init(ctx, snap.SnapshotID); err != nil {
			return err
		}
	}
	logger.Info("replication bootstrap finished", zap.Int64("snapshot_id", snap.SnapshotID))
	return nil
}

func (r *Replicator) pause(ctx context.Context, cause error) error {
	logger.Error("replication paused: leader rejected credentials", zap.Error(cause))
	r.setStatus(ReplStatePaused, -1, cause)
	<-ctx.Done()
	r.setStatus(ReplStateStopped, -1, nil)
	return cause
}

func (r *Replicator) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.BackoffBase
	bo.MaxInterval = r.cfg.BackoffCap
	return bo
}

// sleepCtx 尊重取消的睡眠；返回 false 表示 ctx 已结束
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
