// Factory functions for rxtime
// 工厂函数：所有产生时间行为的序列都显式接收调度器
package rxtime

import (
	"fmt"
	"time"
)

// ============================================================================
// 基础工厂函数
// ============================================================================

// Return 在调度器上发射单个值后完成
func Return(value interface{}, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		out.add(scheduler.Schedule(NewAction(func() {
			out.next(value)
			out.completed()
		})))
		return out
	})
}

// Empty 在调度器上立即完成
func Empty(scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		out.add(scheduler.Schedule(NewAction(out.completed)))
		return out
	})
}

// Throw 在调度器上发射错误
func Throw(err error, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		out.add(scheduler.Schedule(NewAction(func() {
			out.error(err)
		})))
		return out
	})
}

// Never 永不发射任何通知
func Never() Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		return EmptyDisposable()
	})
}

// FromSlice 在调度器上依次发射切片中的值，每个值一次调度
func FromSlice(values []interface{}, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		index := 0
		out.add(ScheduleRecursive(scheduler, func(recurse func()) {
			if index < len(values) {
				out.next(values[index])
				index++
				recurse()
				return
			}
			out.completed()
		}))
		return out
	})
}

// Defer 每次订阅时调用 factory 创建新的序列；factory 返回错误或 panic 时发射错误
func Defer(factory func() (Observable, error)) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		var source Observable
		if err := protect(func() (err error) {
			source, err = factory()
			return err
		}); err != nil {
			observer.OnError(err)
			return EmptyDisposable()
		}
		if source == nil {
			observer.OnError(argumentError("factory returned a nil observable"))
			return EmptyDisposable()
		}
		return source.Subscribe(observer)
	})
}

// argumentError 包装 ErrArgumentOutOfRange
func argumentError(detail string) error {
	return fmt.Errorf("%w: %s", ErrArgumentOutOfRange, detail)
}

// argumentOutOfRange 订阅时立即发射参数错误的序列
func argumentOutOfRange(detail string) Observable {
	err := argumentError(detail)
	return ObservableFunc(func(observer Observer) Disposable {
		observer.OnError(err)
		return EmptyDisposable()
	})
}

// ============================================================================
// 定时器
// ============================================================================

// Timer 在 dueTime 之后发射 int64(0) 并完成；dueTime 不大于0时仍异步发射
func Timer(dueTime time.Duration, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		out.add(scheduler.ScheduleAfter(dueTime, NewAction(func() {
			out.next(int64(0))
			out.completed()
		})))
		return out
	})
}

// TimerAt 在绝对时间发射 int64(0) 并完成
func TimerAt(dueTime time.Time, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		out.add(scheduler.ScheduleAt(dueTime, NewAction(func() {
			out.next(int64(0))
			out.completed()
		})))
		return out
	})
}

// TimerWithPeriod 在 dueTime 之后发射 0，此后每隔 period 发射 1, 2, 3...，永不完成
func TimerWithPeriod(dueTime, period time.Duration, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		out.add(scheduler.ScheduleAfter(dueTime, func(s Scheduler) Disposable {
			out.next(int64(0))
			return SchedulePeriodic(s, period, int64(1), func(state interface{}) interface{} {
				n := state.(int64)
				out.next(n)
				return n + 1
			})
		}))
		return out
	})
}

// Interval 每隔 period 发射递增的计数 0, 1, 2...
func Interval(period time.Duration, scheduler Scheduler) Observable {
	return TimerWithPeriod(period, period, scheduler)
}

// ============================================================================
// 带时间的生成器
// ============================================================================

// GenerateWithTime 按状态机生成序列：condition 为假时完成；
// 每个结果在 timeSelector 给出的相对延迟后发射。
// 任何回调 panic 都会转换为错误通知。
func GenerateWithTime(
	initial interface{},
	condition func(interface{}) bool,
	iterate func(interface{}) interface{},
	result func(interface{}) interface{},
	timeSelector func(interface{}) time.Duration,
	scheduler Scheduler,
) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)

		state := initial
		first := true
		hasResult := false
		var current interface{}
		var wait time.Duration

		out.add(ScheduleRecursiveAfter(scheduler, 0, func(recurse func(time.Duration)) {
			if hasResult {
				out.next(current)
			}

			if err := protect(func() error {
				if first {
					first = false
				} else {
					state = iterate(state)
				}
				hasResult = condition(state)
				if hasResult {
					current = result(state)
					wait = timeSelector(state)
				}
				return nil
			}); err != nil {
				out.error(err)
				return
			}

			if hasResult {
				recurse(wait)
				return
			}
			out.completed()
		}))
		return out
	})
}
