// Periodic scheduling for rxtime
// 周期调度：优先使用调度器的原生能力，否则用显式状态机模拟
package rxtime

import "time"

// SchedulePeriodic 以固定周期执行 action，每次的返回值作为下一次的状态。
//
// 调度器实现了 PeriodicScheduler 时直接使用；否则基于计时器模拟：
// 记录下一个周期边界 nextDue，每次执行后按 nextDue - elapsed 安排下一次。
// 动作耗时超过周期时，积压的周期会连续触发（不跳过），直到重新对齐周期边界。
// 释放返回值会停止后续周期，但不会中断正在执行的动作。
func SchedulePeriodic(scheduler Scheduler, period time.Duration, state interface{}, action func(state interface{}) interface{}) Disposable {
	period = normalize(period)

	if periodic, ok := scheduler.(PeriodicScheduler); ok {
		return periodic.SchedulePeriodic(period, state, action)
	}

	timer := &periodicTimer{
		period:  period,
		state:   state,
		action:  action,
		watch:   StartStopwatch(scheduler),
		nextDue: period,
	}
	return ScheduleRecursiveAfter(scheduler, period, timer.tick)
}

// periodicTimer 周期模拟的状态机；各次 tick 顺序执行，无需加锁
type periodicTimer struct {
	period  time.Duration
	state   interface{}
	action  func(interface{}) interface{}
	watch   Stopwatch
	nextDue time.Duration
}

func (t *periodicTimer) tick(recurse func(time.Duration)) {
	t.nextDue += t.period
	t.state = t.action(t.state)
	recurse(normalize(t.nextDue - t.watch.Elapsed()))
}
