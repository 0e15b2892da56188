package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/repository"
)

// fakeClock 手动推进的时钟
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestScheduler(t *testing.T) (*Scheduler, repository.JobRepository, *fakeClock) {
	t.Helper()
	store := setupStore(t, true)
	jobs := repository.NewJobRepository(store)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	sched := NewScheduler(jobs, config.SchedulerConfig{MaxPollInterval: time.Minute}).WithClock(clock)
	return sched, jobs, clock
}

func TestRunDueOnceExecutesDueJobs(t *testing.T) {
	sched, jobs, clock := newTestScheduler(t)
	ctx := context.Background()

	var ran int32
	sched.Register("counter", func(context.Context) Outcome {
		atomic.AddInt32(&ran, 1)
		return Done()
	})

	_, err := sched.InsertJob(ctx, "counter", clock.Now().Add(-time.Second), 0)
	require.NoError(t, err)
	_, err = sched.InsertJob(ctx, "counter", clock.Now().Add(time.Hour), 0)
	require.NoError(t, err)

	require.NoError(t, sched.RunDueOnce(ctx))
	require.Equal(t, int32(1), atomic.LoadInt32(&ran))

	// 成功的任务被删除，未到期的留在表里
	cnt, err := jobs.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), cnt)

	// 重复唤醒不重复执行
	require.NoError(t, sched.RunDueOnce(ctx))
	require.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestUnknownJobNameFailsClosed(t *testing.T) {
	sched, jobs, clock := newTestScheduler(t)
	ctx := context.Background()

	_, err := sched.InsertJob(ctx, "never.registered", clock.Now().Add(-time.Second), 0)
	require.NoError(t, err)

	require.NoError(t, sched.RunDueOnce(ctx))

	// 未知名字报错并删除，不会反复重试
	cnt, err := jobs.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, cnt)
}

func TestTemporaryOutcomeReschedulesAsNewRecord(t *testing.T) {
	sched, jobs, clock := newTestScheduler(t)
	ctx := context.Background()
	nextDue := clock.Now().Add(10 * time.Minute)

	sched.Register("flaky", func(context.Context) Outcome {
		return Temporary(errors.New("not yet"), nextDue)
	})

	origID, err := sched.InsertJob(ctx, "flaky", clock.Now().Add(-time.Second), 0)
	require.NoError(t, err)
	require.NoError(t, sched.RunDueOnce(ctx))

	// 重试是一条新纪录：新 id、attempt 递增、due_at 来自 Outcome
	list, err := jobs.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotEqual(t, origID, list[0].ID)
	require.Equal(t, 1, list[0].Attempt)
	require.WithinDuration(t, nextDue, list[0].DueAt, time.Second)
}

func TestPermanentOutcomeDropsJob(t *testing.T) {
	sched, jobs, clock := newTestScheduler(t)
	ctx := context.Background()

	sched.Register("doomed", func(context.Context) Outcome {
		return Permanent(errors.New("no such capability"))
	})
	_, err := sched.InsertJob(ctx, "doomed", clock.Now().Add(-time.Second), 0)
	require.NoError(t, err)
	require.NoError(t, sched.RunDueOnce(ctx))

	cnt, err := jobs.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, cnt)
}

func TestInsertWakesRunningScheduler(t *testing.T) {
	store := setupStore(t, true)
	jobs := repository.NewJobRepository(store)
	// 轮询间隔一小时：只有唤醒通道能让任务及时执行
	sched := NewScheduler(jobs, config.SchedulerConfig{MaxPollInterval: time.Hour})

	var ran int32
	sched.Register("instant", func(context.Context) Outcome {
		atomic.AddInt32(&ran, 1)
		return Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	time.Sleep(10 * time.Millisecond) // 让循环进入睡眠
	_, err := sched.InsertJob(ctx, "instant", time.Now().Add(-time.Second), 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ran) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

// failingDeleteJobs 包装仓储，按开关让 Delete 失败
type failingDeleteJobs struct {
	repository.JobRepository
	fail bool
}

func (f *failingDeleteJobs) Delete(ctx context.Context, id string) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.JobRepository.Delete(ctx, id)
}

func TestTemporaryReplacementSurvivesDeleteFailure(t *testing.T) {
	store := setupStore(t, true)
	jobs := &failingDeleteJobs{JobRepository: repository.NewJobRepository(store), fail: true}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	sched := NewScheduler(jobs, config.SchedulerConfig{MaxPollInterval: time.Minute}).WithClock(clock)
	ctx := context.Background()
	nextDue := clock.Now().Add(10 * time.Minute)

	sched.Register("flaky", func(context.Context) Outcome {
		return Temporary(errors.New("not yet"), nextDue)
	})
	origID, err := sched.InsertJob(ctx, "flaky", clock.Now().Add(-time.Second), 0)
	require.NoError(t, err)
	require.NoError(t, sched.RunDueOnce(ctx))

	// 替换行先于删除落库：旧行删不掉也不会把重试弄丢
	list, err := jobs.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	require.Contains(t, ids, origID)
	var replacement int
	for _, j := range list {
		if j.ID != origID {
			replacement++
			require.Equal(t, 1, j.Attempt)
			require.WithinDuration(t, nextDue, j.DueAt, time.Second)
		}
	}
	require.Equal(t, 1, replacement)
}

func TestStuckRowDegradesToPeriodicRetry(t *testing.T) {
	store := setupStore(t, true)
	jobs := &failingDeleteJobs{JobRepository: repository.NewJobRepository(store), fail: true}
	sched := NewScheduler(jobs, config.SchedulerConfig{MaxPollInterval: time.Hour})

	var ran int32
	sched.Register("sticky", func(context.Context) Outcome {
		atomic.AddInt32(&ran, 1)
		return Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	_, err := sched.InsertJob(ctx, "sticky", time.Now().Add(-time.Second), 0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ran) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// 删不掉的到期行不再热转：停顿窗口内不会重复执行
	time.Sleep(200 * time.Millisecond)
	require.LessOrEqual(t, atomic.LoadInt32(&ran), int32(2))

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestDueJobsRunInDueOrder(t *testing.T) {
	sched, _, clock := newTestScheduler(t)
	ctx := context.Background()

	var order []string
	sched.Register("first", func(context.Context) Outcome {
		order = append(order, "first")
		return Done()
	})
	sched.Register("second", func(context.Context) Outcome {
		order = append(order, "second")
		return Done()
	})

	_, err := sched.InsertJob(ctx, "second", clock.Now().Add(-time.Minute), 0)
	require.NoError(t, err)
	_, err = sched.InsertJob(ctx, "first", clock.Now().Add(-2*time.Minute), 0)
	require.NoError(t, err)

	require.NoError(t, sched.RunDueOnce(ctx))
	require.Equal(t, []string{"first", "second"}, order)
}
