// Monitored scheduler for rxtime
// 带监控的调度器包装器，统计任务数量与调度延迟
package rxtime

import (
	"sync"
	"sync/atomic"
	"time"
)

// SchedulerMetrics 调度器性能指标
type SchedulerMetrics struct {
	TasksScheduled int64
	TasksCompleted int64
	TasksFailed    int64
	// AverageLag 任务实际开始时间相对到期时间的平均滞后
	AverageLag time.Duration
}

// MonitoredScheduler 带监控的调度器包装器；包装的动作收到的调度器是包装器本身，
// 因此递归调度同样被统计
type MonitoredScheduler struct {
	scheduler Scheduler
	config    *Config
	name      string

	scheduled int64
	completed int64
	failed    int64

	mu       sync.Mutex
	totalLag time.Duration
	started  int64
}

// NewMonitoredScheduler 创建带监控的调度器
func NewMonitoredScheduler(scheduler Scheduler, options ...Option) *MonitoredScheduler {
	config := newConfig(options)
	return &MonitoredScheduler{
		scheduler: scheduler,
		config:    config,
		name:      schedulerName("monitored", config),
	}
}

// Now 被包装调度器的当前时间
func (m *MonitoredScheduler) Now() time.Time {
	return m.scheduler.Now()
}

// Schedule 调度任务并记录指标
func (m *MonitoredScheduler) Schedule(action Action) Disposable {
	return m.scheduler.Schedule(m.wrap(m.Now(), action))
}

// ScheduleAfter 延迟调度任务并记录指标
func (m *MonitoredScheduler) ScheduleAfter(dueTime time.Duration, action Action) Disposable {
	return m.scheduler.ScheduleAfter(dueTime, m.wrap(m.Now().Add(normalize(dueTime)), action))
}

// ScheduleAt 在指定时间调度任务并记录指标
func (m *MonitoredScheduler) ScheduleAt(dueTime time.Time, action Action) Disposable {
	return m.scheduler.ScheduleAt(dueTime, m.wrap(dueTime, action))
}

// Metrics 获取调度器指标快照
func (m *MonitoredScheduler) Metrics() SchedulerMetrics {
	m.mu.Lock()
	var avg time.Duration
	if m.started > 0 {
		avg = m.totalLag / time.Duration(m.started)
	}
	m.mu.Unlock()

	return SchedulerMetrics{
		TasksScheduled: atomic.LoadInt64(&m.scheduled),
		TasksCompleted: atomic.LoadInt64(&m.completed),
		TasksFailed:    atomic.LoadInt64(&m.failed),
		AverageLag:     avg,
	}
}

func (m *MonitoredScheduler) wrap(due time.Time, action Action) Action {
	atomic.AddInt64(&m.scheduled, 1)

	return func(Scheduler) Disposable {
		m.recordLag(m.Now().Sub(due))

		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&m.failed, 1)
				m.config.Logger.Warn("scheduled action failed", "scheduler", m.name, "panic", r)
				panic(r)
			}
			atomic.AddInt64(&m.completed, 1)
		}()

		return action(m)
	}
}

func (m *MonitoredScheduler) recordLag(lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	m.mu.Lock()
	m.totalLag += lag
	m.started++
	m.mu.Unlock()
}
