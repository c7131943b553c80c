package rxtime

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmediateScheduler(t *testing.T) {
	s := NewImmediateScheduler()
	var log []string

	s.Schedule(NewAction(func() { log = append(log, "a") }))
	s.ScheduleAfter(time.Millisecond, NewAction(func() { log = append(log, "b") }))
	s.ScheduleAt(time.Now().Add(-time.Second), NewAction(func() { log = append(log, "c") }))

	assert.Equal(t, []string{"a", "b", "c"}, log, "任务在调用方goroutine中同步执行")
}

func TestCurrentThreadScheduler(t *testing.T) {
	t.Run("嵌套任务排队而非递归执行", func(t *testing.T) {
		s := NewCurrentThreadScheduler()
		var log []string

		s.Schedule(func(sch Scheduler) Disposable {
			log = append(log, "outer start")
			sch.Schedule(NewAction(func() { log = append(log, "inner") }))
			log = append(log, "outer end")
			return nil
		})

		assert.Equal(t, []string{"outer start", "outer end", "inner"}, log)
	})

	t.Run("按到期时间执行排队任务", func(t *testing.T) {
		s := NewCurrentThreadScheduler()
		var log []string

		s.Schedule(func(sch Scheduler) Disposable {
			sch.ScheduleAfter(2*time.Millisecond, NewAction(func() { log = append(log, "late") }))
			sch.Schedule(NewAction(func() { log = append(log, "early") }))
			return nil
		})

		assert.Equal(t, []string{"early", "late"}, log)
	})

	t.Run("不同goroutine各自独立", func(t *testing.T) {
		s := NewCurrentThreadScheduler()
		var wg sync.WaitGroup
		var count int32

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Schedule(func(sch Scheduler) Disposable {
					sch.Schedule(NewAction(func() { atomic.AddInt32(&count, 1) }))
					return nil
				})
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(8), atomic.LoadInt32(&count))
	})
}

func TestDefaultScheduler(t *testing.T) {
	t.Run("延迟执行", func(t *testing.T) {
		s := NewDefaultScheduler()
		done := make(chan time.Duration, 1)
		start := time.Now()

		s.ScheduleAfter(20*time.Millisecond, NewAction(func() {
			done <- time.Since(start)
		}))

		select {
		case elapsed := <-done:
			assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
		case <-time.After(time.Second):
			t.Fatal("任务未执行")
		}
	})

	t.Run("执行前释放则不执行", func(t *testing.T) {
		s := NewDefaultScheduler()
		var ran int32

		d := s.ScheduleAfter(20*time.Millisecond, NewAction(func() {
			atomic.StoreInt32(&ran, 1)
		}))
		d.Dispose()

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
	})

	t.Run("原生周期调度", func(t *testing.T) {
		s := NewDefaultScheduler()
		var ticks int32

		d := SchedulePeriodic(s, 5*time.Millisecond, 0, func(state interface{}) interface{} {
			atomic.AddInt32(&ticks, 1)
			return state.(int) + 1
		})

		assert.Eventually(t, func() bool {
			return atomic.LoadInt32(&ticks) >= 3
		}, time.Second, time.Millisecond)
		d.Dispose()
	})

	t.Run("长时间任务随释放取消", func(t *testing.T) {
		s := NewDefaultScheduler()
		stopped := make(chan struct{})

		d := s.ScheduleLongRunning(func(ctx context.Context) {
			<-ctx.Done()
			close(stopped)
		})
		d.Dispose()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("长时间任务未收到取消")
		}
	})

	t.Run("单调计时器", func(t *testing.T) {
		w := StartStopwatch(NewDefaultScheduler())
		time.Sleep(2 * time.Millisecond)
		assert.GreaterOrEqual(t, w.Elapsed(), 2*time.Millisecond)
	})

	t.Run("进程级默认实例", func(t *testing.T) {
		assert.Same(t, Default(), Default())
	})
}

func TestEventLoopScheduler(t *testing.T) {
	t.Run("在同一个goroutine上按顺序执行", func(t *testing.T) {
		buf := &syncBuffer{}
		logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		s := NewEventLoopScheduler(WithLogger(logger), WithName("loop-test"))

		var mu sync.Mutex
		var log []int
		done := make(chan struct{})

		for i := 0; i < 5; i++ {
			i := i
			s.Schedule(NewAction(func() {
				mu.Lock()
				log = append(log, i)
				mu.Unlock()
			}))
		}
		s.ScheduleAfter(5*time.Millisecond, NewAction(func() { close(done) }))

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("事件循环未执行任务")
		}

		mu.Lock()
		assert.Equal(t, []int{0, 1, 2, 3, 4}, log)
		mu.Unlock()

		s.Dispose()
		assert.True(t, s.IsDisposed())
		assert.Eventually(t, func() bool {
			return strings.Contains(buf.String(), "event loop stopped")
		}, time.Second, time.Millisecond)
		assert.Contains(t, buf.String(), "scheduler=loop-test")
	})

	t.Run("释放的任务立即移出队列", func(t *testing.T) {
		s := NewEventLoopScheduler()
		defer s.Dispose()

		for i := 0; i < 100; i++ {
			d := s.ScheduleAfter(time.Hour, NewAction(func() { t.Error("不应执行") }))
			d.Dispose()
			d.Dispose()
		}
		kept := s.ScheduleAfter(time.Hour, NewAction(func() {}))

		assert.Equal(t, 1, s.pending())
		kept.Dispose()
		assert.Equal(t, 0, s.pending())
	})

	t.Run("释放后任务被丢弃", func(t *testing.T) {
		s := NewEventLoopScheduler()
		s.Dispose()

		d := s.Schedule(NewAction(func() { t.Error("不应执行") }))
		assert.True(t, d.IsDisposed())
	})
}

func TestMonitoredScheduler(t *testing.T) {
	t.Run("统计任务与延迟", func(t *testing.T) {
		vs := NewTestScheduler()
		m := NewMonitoredScheduler(vs)

		m.ScheduleAfter(10, NewAction(func() {}))
		m.ScheduleAt(time.Unix(0, 5), NewAction(func() {}))
		m.Schedule(func(sch Scheduler) Disposable {
			assert.Same(t, m, sch, "动作收到的是包装器")
			return nil
		})

		require.NoError(t, vs.Start())

		metrics := m.Metrics()
		assert.Equal(t, int64(3), metrics.TasksScheduled)
		assert.Equal(t, int64(3), metrics.TasksCompleted)
		assert.Equal(t, int64(0), metrics.TasksFailed)
		// 只有立即调度的任务滞后一个tick，平均不足1ns
		assert.Equal(t, time.Duration(0), metrics.AverageLag)
	})

	t.Run("任务 panic 计为失败", func(t *testing.T) {
		buf := &syncBuffer{}
		vs := NewTestScheduler()
		m := NewMonitoredScheduler(vs, WithLogger(slog.New(slog.NewTextHandler(buf, nil))))

		m.ScheduleAfter(10, NewAction(func() { panic("boom") }))

		assert.PanicsWithValue(t, "boom", func() { _ = vs.Start() })
		assert.Equal(t, int64(1), m.Metrics().TasksFailed)
		assert.Contains(t, buf.String(), "scheduled action failed")
	})
}

func TestScheduleRecursive(t *testing.T) {
	t.Run("递归直到停止", func(t *testing.T) {
		s := NewTestScheduler()
		var ticks []int64
		n := 0

		ScheduleRecursiveAfter(s, 10, func(recurse func(time.Duration)) {
			ticks = append(ticks, s.Clock())
			n++
			if n < 4 {
				recurse(time.Duration(n * 10))
			}
		})

		require.NoError(t, s.Start())
		assert.Equal(t, []int64{10, 20, 40, 70}, ticks)
	})

	t.Run("释放后不再递归", func(t *testing.T) {
		s := NewTestScheduler()
		count := 0
		d := ScheduleRecursive(s, func(recurse func()) {
			count++
			recurse()
		})

		require.NoError(t, s.AdvanceTo(3))
		d.Dispose()
		require.NoError(t, s.Start())

		assert.Equal(t, 3, count)
	})
}

func TestSchedulePeriodic(t *testing.T) {
	t.Run("按周期执行并传递状态", func(t *testing.T) {
		s := NewTestScheduler()
		var states []int

		d := SchedulePeriodic(s, 10, 0, func(state interface{}) interface{} {
			states = append(states, state.(int))
			return state.(int) + 1
		})

		require.NoError(t, s.AdvanceTo(45))
		d.Dispose()
		require.NoError(t, s.Start())

		assert.Equal(t, []int{0, 1, 2, 3}, states)
	})

	t.Run("动作超时后连续补发积压的周期", func(t *testing.T) {
		s := NewTestScheduler()
		var ticks []int64
		first := true

		d := SchedulePeriodic(s, 10, nil, func(state interface{}) interface{} {
			ticks = append(ticks, s.Clock())
			if first {
				first = false
				require.NoError(t, s.Sleep(25))
			}
			return state
		})

		require.NoError(t, s.AdvanceTo(50))
		d.Dispose()

		assert.Equal(t, []int64{10, 36, 37, 40, 50}, ticks)
	})

	t.Run("没有计时器的调度器使用 Now 计时", func(t *testing.T) {
		vs := NewTestScheduler()
		m := NewMonitoredScheduler(vs)
		var ticks []int64

		d := SchedulePeriodic(m, 100, nil, func(state interface{}) interface{} {
			ticks = append(ticks, vs.Clock())
			return state
		})

		require.NoError(t, vs.AdvanceTo(300))
		d.Dispose()

		assert.Equal(t, []int64{100, 200, 300}, ticks)
	})
}
