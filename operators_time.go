// Time-annotation operators for rxtime
// 时间标注操作符：为每个值附加调度器时间或与上一个值的间隔
package rxtime

import (
	"fmt"
	"time"
)

// Timestamped 带时间戳的值
type Timestamped struct {
	Value     interface{}
	Timestamp time.Time
}

func (t Timestamped) String() string {
	return fmt.Sprintf("%v@%s", t.Value, t.Timestamp.Format(time.RFC3339Nano))
}

// TimeInterval 带间隔的值，Interval 为与上一个值（第一个值为订阅时刻）之间的时间
type TimeInterval struct {
	Value    interface{}
	Interval time.Duration
}

func (t TimeInterval) String() string {
	return fmt.Sprintf("%v@%s", t.Value, t.Interval)
}

// Timestamp 用调度器的 Now() 标注每个值
func Timestamp(source Observable, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		out.add(source.Subscribe(NewObserver(
			func(value interface{}) {
				out.next(Timestamped{Value: value, Timestamp: scheduler.Now()})
			},
			out.error,
			out.completed,
		)))
		return out
	})
}

// TimeIntervalOf 用与上一个值之间的间隔标注每个值，间隔由调度器的计时器测量
func TimeIntervalOf(source Observable, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		watch := StartStopwatch(scheduler)
		var last time.Duration

		out.add(source.Subscribe(NewObserver(
			func(value interface{}) {
				now := watch.Elapsed()
				span := now - last
				last = now
				out.next(TimeInterval{Value: value, Interval: span})
			},
			out.error,
			out.completed,
		)))
		return out
	})
}
