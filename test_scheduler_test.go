package rxtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record 返回把标签和执行时间追加到 log 的动作
func record(s *TestScheduler, log *[]string, label string) Action {
	return NewAction(func() {
		*log = append(*log, label+"@"+time.Duration(s.Clock()).String())
	})
}

func TestTestScheduler(t *testing.T) {
	t.Run("相同到期时间按插入顺序执行", func(t *testing.T) {
		s := NewTestScheduler()
		var log []string
		s.ScheduleAbsolute(20, record(s, &log, "c"))
		s.ScheduleAbsolute(10, record(s, &log, "a"))
		s.ScheduleAbsolute(20, record(s, &log, "d"))
		s.ScheduleAbsolute(10, record(s, &log, "b"))

		require.NoError(t, s.Start())
		assert.Equal(t, []string{"a@10ns", "b@10ns", "c@20ns", "d@20ns"}, log)
	})

	t.Run("过去或当前时间顺延一个tick", func(t *testing.T) {
		s := NewTestScheduler()
		require.NoError(t, s.AdvanceTo(100))

		var log []string
		s.ScheduleAbsolute(50, record(s, &log, "past"))
		s.Schedule(record(s, &log, "now"))
		s.ScheduleAfter(-time.Second, record(s, &log, "negative"))

		require.NoError(t, s.Start())
		assert.Equal(t, []string{"past@101ns", "now@101ns", "negative@101ns"}, log)
	})

	t.Run("推进时执行期间新调度的到期任务", func(t *testing.T) {
		s := NewTestScheduler()
		var log []string
		s.ScheduleAbsolute(10, func(sch Scheduler) Disposable {
			log = append(log, "outer")
			s.ScheduleRelative(5, record(s, &log, "inner"))
			s.ScheduleRelative(50, record(s, &log, "late"))
			return nil
		})

		require.NoError(t, s.AdvanceTo(20))
		assert.Equal(t, []string{"outer", "inner@15ns"}, log)
		assert.Equal(t, int64(20), s.Clock())

		require.NoError(t, s.AdvanceBy(40))
		assert.Equal(t, []string{"outer", "inner@15ns", "late@60ns"}, log)
		assert.Equal(t, int64(60), s.Clock())
	})

	t.Run("时钟不能后退", func(t *testing.T) {
		s := NewTestScheduler()
		require.NoError(t, s.AdvanceTo(100))

		assert.ErrorIs(t, s.AdvanceTo(99), ErrTimeInPast)
		assert.ErrorIs(t, s.AdvanceBy(-1), ErrTimeInPast)
		assert.ErrorIs(t, s.Sleep(-1), ErrTimeInPast)
		assert.Equal(t, int64(100), s.Clock())
	})

	t.Run("不可重入推进", func(t *testing.T) {
		s := NewTestScheduler()
		var nested error
		s.ScheduleAbsolute(10, NewAction(func() {
			nested = s.AdvanceTo(20)
		}))

		require.NoError(t, s.Start())
		assert.ErrorIs(t, nested, ErrSchedulerRunning)
		assert.False(t, s.IsRunning())
	})

	t.Run("Sleep 只移动时钟", func(t *testing.T) {
		s := NewTestScheduler()
		var log []string
		s.ScheduleAbsolute(10, record(s, &log, "a"))

		require.NoError(t, s.Sleep(50))
		assert.Empty(t, log)
		assert.Equal(t, int64(50), s.Clock())

		require.NoError(t, s.Start())
		assert.Equal(t, []string{"a@50ns"}, log)
	})

	t.Run("Stop 在当前任务后生效", func(t *testing.T) {
		s := NewTestScheduler()
		var log []string
		s.ScheduleAbsolute(10, func(Scheduler) Disposable {
			log = append(log, "stop")
			s.Stop()
			return nil
		})
		s.ScheduleAbsolute(20, record(s, &log, "after"))

		require.NoError(t, s.Start())
		assert.Equal(t, []string{"stop"}, log)

		require.NoError(t, s.Start())
		assert.Equal(t, []string{"stop", "after@20ns"}, log)
	})

	t.Run("释放的任务不执行", func(t *testing.T) {
		s := NewTestScheduler()
		var log []string
		d := s.ScheduleAbsolute(10, record(s, &log, "a"))
		s.ScheduleAbsolute(20, record(s, &log, "b"))
		d.Dispose()

		require.NoError(t, s.Start())
		assert.Equal(t, []string{"b@20ns"}, log)
	})

	t.Run("释放已执行任务会释放其后续资源", func(t *testing.T) {
		s := NewTestScheduler()
		continuation := &countingDisposable{}
		d := s.ScheduleAbsolute(10, func(Scheduler) Disposable {
			return continuation
		})

		require.NoError(t, s.Start())
		assert.Equal(t, 0, continuation.times())
		d.Dispose()
		assert.Equal(t, 1, continuation.times())
	})

	t.Run("任务 panic 传播给调用方", func(t *testing.T) {
		s := NewTestScheduler()
		s.ScheduleAbsolute(10, NewAction(func() { panic("boom") }))

		assert.PanicsWithValue(t, "boom", func() { _ = s.Start() })
		assert.False(t, s.IsRunning())
	})

	t.Run("虚拟时间与计时器", func(t *testing.T) {
		s := NewTestScheduler()
		require.NoError(t, s.AdvanceTo(100))
		assert.Equal(t, time.Unix(0, 100).UTC(), s.Now())

		w := s.StartStopwatch()
		require.NoError(t, s.AdvanceBy(25))
		assert.Equal(t, 25*time.Nanosecond, w.Elapsed())
	})

	t.Run("ScheduleAt 使用绝对时间", func(t *testing.T) {
		s := NewTestScheduler()
		var log []string
		s.ScheduleAt(time.Unix(0, 300), record(s, &log, "at"))

		require.NoError(t, s.Start())
		assert.Equal(t, []string{"at@300ns"}, log)
	})
}

func TestTestObservables(t *testing.T) {
	t.Run("热序列按绝对时间发射", func(t *testing.T) {
		s := NewTestScheduler()
		xs := s.CreateHotObservable(
			OnNext(150, 1),
			OnNext(210, 2),
			OnNext(220, 3),
			OnCompleted(230),
		)

		res := s.StartWith(func() Observable { return xs })

		assert.Equal(t, []Recorded{
			OnNext(210, 2),
			OnNext(220, 3),
			OnCompleted(230),
		}, res.Messages())
		assert.Equal(t, []SubscriptionLog{Subscribed(200, 1000)}, xs.Subscriptions())
	})

	t.Run("冷序列相对订阅时刻发射", func(t *testing.T) {
		s := NewTestScheduler()
		xs := s.CreateColdObservable(
			OnNext(10, 1),
			OnNext(20, 2),
			OnCompleted(30),
		)

		res := s.StartWith(func() Observable { return xs })

		assert.Equal(t, []Recorded{
			OnNext(210, 1),
			OnNext(220, 2),
			OnCompleted(230),
		}, res.Messages())
		assert.Equal(t, []SubscriptionLog{Subscribed(200, 1000)}, xs.Subscriptions())
	})

	t.Run("提前释放", func(t *testing.T) {
		s := NewTestScheduler()
		xs := s.CreateColdObservable(
			OnNext(10, 1),
			OnNext(100, 2),
		)

		res := s.StartWithTimes(func() Observable { return xs }, 100, 200, 250)

		assert.Equal(t, []Recorded{OnNext(210, 1)}, res.Messages())
		assert.Equal(t, []SubscriptionLog{Subscribed(200, 250)}, xs.Subscriptions())
	})

	t.Run("记录格式", func(t *testing.T) {
		assert.Equal(t, "OnNext(1)@210", OnNext(210, 1).String())
		assert.Equal(t, "(200, Infinite)", Subscribed(200, Infinite).String())
		assert.Equal(t, "(200, 300)", Subscribed(200, 300).String())
	})
}
