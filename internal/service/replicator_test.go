package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/logstore"
	"github.com/d60-Lab/replweb/internal/model"
	"github.com/d60-Lab/replweb/internal/repository"
)

func setupStore(t *testing.T, leader bool) *logstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.TxRecord{}, &model.ReplCursor{},
		&model.ScheduledJob{}, &model.EmailMessage{}, &model.EmailError{},
	))
	return logstore.NewStore(db, leader)
}

// fakeFetcher 内存日志直出，不走 HTTP
type fakeFetcher struct {
	entries []logstore.LogEntry
	snap    *logstore.Snapshot
	err     error
	calls   int
}

func (f *fakeFetcher) FetchBatch(_ context.Context, after int64, maxCount, _ int) ([]logstore.LogEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []logstore.LogEntry
	for _, e := range f.entries {
		if e.ID <= after {
			continue
		}
		out = append(out, e)
		if len(out) == maxCount {
			break
		}
	}
	return out, nil
}

func (f *fakeFetcher) FetchSnapshot(context.Context) (*logstore.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

// seedLeaderLog leader 上生成 n 条各含一次任务插入的日志
func seedLeaderLog(t *testing.T, leader *logstore.Store, n int) []logstore.LogEntry {
	t.Helper()
	jobs := repository.NewJobRepository(leader)
	for i := 0; i < n; i++ {
		_, err := jobs.Insert(context.Background(), "noop", time.Now(), 0)
		require.NoError(t, err)
	}
	var recs []model.TxRecord
	require.NoError(t, leader.DB().Order("id ASC").Find(&recs).Error)
	entries := make([]logstore.LogEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, logstore.LogEntry{ID: rec.ID, Payload: rec.Payload})
	}
	return entries
}

func newTestReplicator(store *logstore.Store, f Fetcher, batchMax int) *Replicator {
	cfg := config.ReplicationConfig{
		Source:        "http://leader",
		PollInterval:  time.Millisecond,
		BackoffBase:   time.Millisecond,
		BackoffCap:    5 * time.Millisecond,
		BatchMaxCount: batchMax,
	}
	return NewReplicator(store, repository.NewCursorRepository(store.DB()), f, cfg)
}

func followerCursor(t *testing.T, store *logstore.Store) int64 {
	t.Helper()
	cur, _, err := repository.NewCursorRepository(store.DB()).Get(context.Background())
	require.NoError(t, err)
	return cur
}

func TestPollOnceAdvancesInBatches(t *testing.T) {
	leader := setupStore(t, true)
	follower := setupStore(t, false)
	entries := seedLeaderLog(t, leader, 5)
	f := &fakeFetcher{entries: entries}
	r := newTestReplicator(follower, f, 2)
	ctx := context.Background()

	// 5 条日志、批大小 2：游标 0 -> 2 -> 4 -> 5
	for _, want := range []int64{2, 4, 5} {
		applied, err := r.pollOnce(ctx)
		require.NoError(t, err)
		require.Positive(t, applied)
		require.Equal(t, want, followerCursor(t, follower))
	}

	// 追平后的 poll 是空操作
	applied, err := r.pollOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, applied)
	require.Equal(t, int64(5), followerCursor(t, follower))

	var cnt int64
	require.NoError(t, follower.DB().Model(&model.ScheduledJob{}).Count(&cnt).Error)
	require.Equal(t, int64(5), cnt)
}

func TestPollOnceStopsAtFailedEntry(t *testing.T) {
	leader := setupStore(t, true)
	follower := setupStore(t, false)
	entries := seedLeaderLog(t, leader, 4)

	// 第 3 条 payload 损坏：前两条照常应用，游标停在 2
	broken := make([]logstore.LogEntry, len(entries))
	copy(broken, entries)
	broken[2] = logstore.LogEntry{ID: entries[2].ID, Payload: []byte("garbage")}

	f := &fakeFetcher{entries: broken}
	r := newTestReplicator(follower, f, 10)
	ctx := context.Background()

	applied, err := r.pollOnce(ctx)
	require.Error(t, err)
	require.Equal(t, 2, applied)
	require.Equal(t, int64(2), followerCursor(t, follower))

	// 修复后从原位重试，不重复应用前两条
	f.entries = entries
	applied, err = r.pollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, applied)
	require.Equal(t, int64(4), followerCursor(t, follower))

	var cnt int64
	require.NoError(t, follower.DB().Model(&model.ScheduledJob{}).Count(&cnt).Error)
	require.Equal(t, int64(4), cnt)
}

func TestPollOnceSkipsAlreadyApplied(t *testing.T) {
	leader := setupStore(t, true)
	follower := setupStore(t, false)
	entries := seedLeaderLog(t, leader, 3)
	f := &fakeFetcher{entries: entries}
	r := newTestReplicator(follower, f, 10)
	ctx := context.Background()

	_, err := r.pollOnce(ctx)
	require.NoError(t, err)

	// leader 多给了已应用过的条目（预算边界场景），follower 原样跳过
	applied, err := r.pollOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, applied)
	require.Equal(t, int64(3), followerCursor(t, follower))
}

func TestBootstrapReplaysSnapshot(t *testing.T) {
	leader := setupStore(t, true)
	follower := setupStore(t, false)
	entries := seedLeaderLog(t, leader, 3)
	f := &fakeFetcher{snap: &logstore.Snapshot{SnapshotID: 3, Records: entries}}
	r := newTestReplicator(follower, f, 10)

	require.NoError(t, r.bootstrap(context.Background()))
	require.Equal(t, int64(3), followerCursor(t, follower))

	var cnt int64
	require.NoError(t, follower.DB().Model(&model.ScheduledJob{}).Count(&cnt).Error)
	require.Equal(t, int64(3), cnt)
}

func TestBootstrapEmptySnapshotInitsCursor(t *testing.T) {
	follower := setupStore(t, false)
	f := &fakeFetcher{snap: &logstore.Snapshot{SnapshotID: 0}}
	r := newTestReplicator(follower, f, 10)

	require.NoError(t, r.bootstrap(context.Background()))
	cur, ok, err := repository.NewCursorRepository(follower.DB()).Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, cur)
}

func TestRunPausesOnRejectedCredentials(t *testing.T) {
	follower := setupStore(t, false)
	f := &fakeFetcher{err: ErrUnauthorized}
	r := newTestReplicator(follower, f, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return r.Status().State == ReplStatePaused
	}, 2*time.Second, 5*time.Millisecond)

	// 暂停后不再带着坏凭证轮询
	calls := f.calls
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, calls, f.calls)

	cancel()
	require.ErrorIs(t, <-done, ErrUnauthorized)
}

func TestRunCatchesUpThenIdles(t *testing.T) {
	leader := setupStore(t, true)
	follower := setupStore(t, false)
	entries := seedLeaderLog(t, leader, 4)
	f := &fakeFetcher{
		entries: entries,
		snap:    &logstore.Snapshot{SnapshotID: 0},
	}
	r := newTestReplicator(follower, f, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		st := r.Status()
		return st.State == ReplStateRunning && st.LastAppliedID == 4
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, ReplStateStopped, r.Status().State)
}
