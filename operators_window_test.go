package rxtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowWithTime(t *testing.T) {
	t.Run("首尾相接的窗口覆盖全部值", func(t *testing.T) {
		s := NewTestScheduler()
		xs := bufferSource(s)

		res := s.StartWith(func() Observable {
			return flattenWindows(WindowWithTime(xs, 100, s))
		})

		assert.Equal(t, []Recorded{
			OnNext(210, "0 2"),
			OnNext(240, "0 3"),
			OnNext(280, "0 4"),
			OnNext(320, "1 5"),
			OnNext(350, "1 6"),
			OnNext(380, "1 7"),
			OnNext(420, "2 8"),
			OnNext(470, "2 9"),
			OnCompleted(600),
		}, res.Messages())
		assert.Equal(t, []SubscriptionLog{Subscribed(200, 600)}, xs.Subscriptions())
	})

	t.Run("重叠窗口", func(t *testing.T) {
		s := NewTestScheduler()
		xs := bufferSource(s)

		res := s.StartWith(func() Observable {
			return flattenWindows(WindowWithTimeShift(xs, 100, 70, s))
		})

		assert.Equal(t, []Recorded{
			OnNext(210, "0 2"),
			OnNext(240, "0 3"),
			OnNext(280, "0 4"),
			OnNext(280, "1 4"),
			OnNext(320, "1 5"),
			OnNext(350, "1 6"),
			OnNext(350, "2 6"),
			OnNext(380, "2 7"),
			OnNext(420, "2 8"),
			OnNext(420, "3 8"),
			OnNext(470, "3 9"),
			OnCompleted(600),
		}, res.Messages())
	})

	t.Run("窗口打开的时刻", func(t *testing.T) {
		s := NewTestScheduler()
		xs := bufferSource(s)

		res := s.StartWith(func() Observable {
			return mapValues(WindowWithTimeShift(xs, 100, 70, s), func(interface{}) interface{} {
				return "window"
			})
		})

		assert.Equal(t, []Recorded{
			OnNext(200, "window"),
			OnNext(270, "window"),
			OnNext(340, "window"),
			OnNext(410, "window"),
			OnNext(480, "window"),
			OnNext(550, "window"),
			OnCompleted(600),
		}, res.Messages())
	})

	t.Run("span 为0时产生空窗口", func(t *testing.T) {
		s := NewTestScheduler()
		xs := s.CreateHotObservable(
			OnNext(210, 1),
			OnCompleted(260),
		)

		windows := s.StartWith(func() Observable {
			return mapValues(WindowWithTimeShift(xs, 0, 50, s), func(interface{}) interface{} {
				return "window"
			})
		})
		assert.Equal(t, []Recorded{
			OnNext(200, "window"),
			OnNext(250, "window"),
			OnCompleted(260),
		}, windows.Messages())

		s = NewTestScheduler()
		xs = s.CreateHotObservable(
			OnNext(210, 1),
			OnCompleted(260),
		)
		values := s.StartWith(func() Observable {
			return flattenWindows(WindowWithTimeShift(xs, 0, 50, s))
		})
		assert.Equal(t, []Recorded{OnCompleted(260)}, values.Messages())
	})

	t.Run("错误传递给外层和打开的窗口", func(t *testing.T) {
		s := NewTestScheduler()
		xs := s.CreateHotObservable(
			OnNext(210, 1),
			OnError(250, errTest),
		)

		var inner *MockObserver
		res := s.StartWith(func() Observable {
			return ObservableFunc(func(observer Observer) Disposable {
				return WindowWithTime(xs, 100, s).Subscribe(NewObserver(
					func(v interface{}) {
						inner = s.CreateObserver()
						v.(Observable).Subscribe(inner)
					},
					observer.OnError,
					observer.OnCompleted,
				))
			})
		})

		assert.Equal(t, []Recorded{OnError(250, errTest)}, res.Messages())
		require.NotNil(t, inner)
		assert.Equal(t, []Recorded{
			OnNext(210, 1),
			OnError(250, errTest),
		}, inner.Messages())
	})

	t.Run("外层取消后窗口仍保持源订阅", func(t *testing.T) {
		s := NewTestScheduler()
		xs := bufferSource(s)
		windows := WindowWithTime(xs, 100, s)
		inner := s.CreateObserver()

		var outer, innerSub Disposable
		s.ScheduleAbsolute(200, NewAction(func() {
			outer = windows.Subscribe(NewObserver(func(v interface{}) {
				if innerSub == nil {
					innerSub = v.(Observable).Subscribe(inner)
				}
			}, nil, nil))
		}))
		s.ScheduleAbsolute(250, NewAction(func() { outer.Dispose() }))
		s.ScheduleAbsolute(350, NewAction(func() { innerSub.Dispose() }))
		require.NoError(t, s.Start())

		assert.Equal(t, []Recorded{
			OnNext(210, 2),
			OnNext(240, 3),
			OnNext(280, 4),
			OnCompleted(300),
		}, inner.Messages())
		assert.Equal(t, []SubscriptionLog{Subscribed(200, 350)}, xs.Subscriptions())
	})

	t.Run("shift 必须为正", func(t *testing.T) {
		s := NewTestScheduler()
		res := s.StartWith(func() Observable {
			return WindowWithTimeShift(bufferSource(s), 100, -1, s)
		})

		messages := res.Messages()
		require.Len(t, messages, 1)
		assert.ErrorIs(t, messages[0].Notification.Err, ErrArgumentOutOfRange)
	})
}

func TestWindowWithTimeOrCount(t *testing.T) {
	t.Run("时长或数量先到者关闭", func(t *testing.T) {
		s := NewTestScheduler()
		xs := s.CreateHotObservable(
			OnNext(205, 1),
			OnNext(210, 2),
			OnNext(240, 3),
			OnNext(280, 4),
			OnNext(320, 5),
			OnNext(350, 6),
			OnNext(370, 7),
			OnNext(420, 8),
			OnNext(470, 9),
			OnCompleted(600),
		)

		res := s.StartWith(func() Observable {
			return flattenWindows(WindowWithTimeOrCount(xs, 70, 3, s))
		})

		assert.Equal(t, []Recorded{
			OnNext(205, "0 1"),
			OnNext(210, "0 2"),
			OnNext(240, "0 3"),
			OnNext(280, "1 4"),
			OnNext(320, "2 5"),
			OnNext(350, "2 6"),
			OnNext(370, "2 7"),
			OnNext(420, "3 8"),
			OnNext(470, "4 9"),
			OnCompleted(600),
		}, res.Messages())
	})

	t.Run("count 必须为正", func(t *testing.T) {
		s := NewTestScheduler()
		res := s.StartWith(func() Observable {
			return WindowWithTimeOrCount(bufferSource(s), 100, -3, s)
		})

		messages := res.Messages()
		require.Len(t, messages, 1)
		assert.ErrorIs(t, messages[0].Notification.Err, ErrArgumentOutOfRange)
	})
}
