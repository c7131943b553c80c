// Scheduler implementations for rxtime
// 实现调度器系统，支持不同的执行策略
package rxtime

import (
	"context"
	"sync"
	"time"

	"github.com/aristanetworks/goarista/monotime"
	"github.com/google/uuid"
	"github.com/petermattis/goid"

	"github.com/xinjiayu/rxtime/internal/pqueue"
)

// ============================================================================
// 调度工作项
// ============================================================================

// scheduledItem 一个待执行的动作；执行前释放则不再执行，执行后释放则释放其后续资源
type scheduledItem struct {
	scheduler Scheduler
	action    Action
	slot      *SingleAssignmentDisposable
}

func newScheduledItem(scheduler Scheduler, action Action) *scheduledItem {
	return &scheduledItem{
		scheduler: scheduler,
		action:    action,
		slot:      NewSingleAssignmentDisposable(),
	}
}

// invoke 执行动作；动作中的 panic 不被拦截，交由调用方处理
func (it *scheduledItem) invoke() {
	if it.slot.IsDisposed() {
		return
	}
	continuation := it.action(it.scheduler)
	if continuation == nil {
		continuation = EmptyDisposable()
	}
	it.slot.Set(continuation)
}

func (it *scheduledItem) Dispose() {
	it.slot.Dispose()
}

func (it *scheduledItem) IsDisposed() bool {
	return it.slot.IsDisposed()
}

// schedulerName 生成调度器实例名称，未配置时附加唯一ID
func schedulerName(kind string, config *Config) string {
	if config.Name != "" {
		return config.Name
	}
	return kind + "-" + uuid.NewString()
}

// ============================================================================
// 单调计时器
// ============================================================================

// monotimeStopwatch 基于单调时钟的计时器，不受系统时间调整影响
type monotimeStopwatch struct {
	start uint64
}

func newMonotimeStopwatch() *monotimeStopwatch {
	return &monotimeStopwatch{start: monotime.Now()}
}

func (w *monotimeStopwatch) Elapsed() time.Duration {
	return time.Duration(monotime.Now() - w.start)
}

// nowStopwatch 基于调度器 Now() 的计时器，用于不提供计时能力的调度器
type nowStopwatch struct {
	scheduler Scheduler
	start     time.Time
}

func (w *nowStopwatch) Elapsed() time.Duration {
	return w.scheduler.Now().Sub(w.start)
}

// StartStopwatch 启动计时器：优先使用调度器提供的计时能力，否则基于 Now() 计算
func StartStopwatch(scheduler Scheduler) Stopwatch {
	if provider, ok := scheduler.(StopwatchProvider); ok {
		return provider.StartStopwatch()
	}
	return &nowStopwatch{scheduler: scheduler, start: scheduler.Now()}
}

// ============================================================================
// 立即调度器 - Immediate Scheduler
// ============================================================================

// immediateScheduler 立即在当前goroutine中执行任务
type immediateScheduler struct{}

// NewImmediateScheduler 创建立即调度器，延迟任务会阻塞调用方直到到期
func NewImmediateScheduler() Scheduler {
	return immediateScheduler{}
}

// Now 当前时间
func (s immediateScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 立即执行任务
func (s immediateScheduler) Schedule(action Action) Disposable {
	item := newScheduledItem(s, action)
	item.invoke()
	return item
}

// ScheduleAfter 在当前goroutine中等待后执行任务
func (s immediateScheduler) ScheduleAfter(dueTime time.Duration, action Action) Disposable {
	if d := normalize(dueTime); d > 0 {
		time.Sleep(d)
	}
	return s.Schedule(action)
}

// ScheduleAt 在当前goroutine中等待到指定时间后执行任务
func (s immediateScheduler) ScheduleAt(dueTime time.Time, action Action) Disposable {
	return s.ScheduleAfter(time.Until(dueTime), action)
}

// ============================================================================
// 当前线程调度器 - Current Thread Scheduler
// ============================================================================

// currentThreadScheduler 蹦床调度器：每个goroutine最外层的调度调用负责
// 按 (到期时间, 插入顺序) 执行该goroutine上排队的所有任务
type currentThreadScheduler struct {
	mu          sync.Mutex
	trampolines map[int64]*pqueue.Queue[*scheduledItem]
}

// NewCurrentThreadScheduler 创建当前线程调度器
func NewCurrentThreadScheduler() Scheduler {
	return &currentThreadScheduler{
		trampolines: make(map[int64]*pqueue.Queue[*scheduledItem]),
	}
}

// Now 当前时间
func (s *currentThreadScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 在当前goroutine的蹦床中调度任务
func (s *currentThreadScheduler) Schedule(action Action) Disposable {
	return s.ScheduleAt(s.Now(), action)
}

// ScheduleAfter 延迟调度任务
func (s *currentThreadScheduler) ScheduleAfter(dueTime time.Duration, action Action) Disposable {
	return s.ScheduleAt(s.Now().Add(normalize(dueTime)), action)
}

// ScheduleAt 在指定时间调度任务
func (s *currentThreadScheduler) ScheduleAt(dueTime time.Time, action Action) Disposable {
	id := goid.Get()
	item := newScheduledItem(s, action)

	s.mu.Lock()
	if queue, ok := s.trampolines[id]; ok {
		queue.Push(dueTime.UnixNano(), item)
		s.mu.Unlock()
		return item
	}
	queue := pqueue.New[*scheduledItem]()
	queue.Push(dueTime.UnixNano(), item)
	s.trampolines[id] = queue
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.trampolines, id)
		s.mu.Unlock()
	}()

	s.drain(queue)
	return item
}

// drain 处理队列中的任务
func (s *currentThreadScheduler) drain(queue *pqueue.Queue[*scheduledItem]) {
	for {
		s.mu.Lock()
		next, ok := queue.Pop()
		s.mu.Unlock()
		if !ok {
			return
		}

		if next.Value.IsDisposed() {
			continue
		}
		if wait := time.Until(time.Unix(0, next.Due)); wait > 0 {
			time.Sleep(wait)
		}
		next.Value.invoke()
	}
}

// ============================================================================
// 默认调度器 - Default Scheduler
// ============================================================================

// DefaultScheduler 为每个到期任务启动goroutine的并发调度器。
// 同时提供原生周期调度、单调计时器和长时间运行任务能力。
type DefaultScheduler struct {
	config *Config
	name   string
}

// NewDefaultScheduler 创建默认调度器
func NewDefaultScheduler(options ...Option) *DefaultScheduler {
	config := newConfig(options)
	return &DefaultScheduler{
		config: config,
		name:   schedulerName("default", config),
	}
}

// Now 当前时间
func (s *DefaultScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 在新goroutine中执行任务
func (s *DefaultScheduler) Schedule(action Action) Disposable {
	item := newScheduledItem(s, action)
	go s.run(item)
	return item
}

// ScheduleAfter 延迟在新goroutine中执行任务
func (s *DefaultScheduler) ScheduleAfter(dueTime time.Duration, action Action) Disposable {
	d := normalize(dueTime)
	if d == 0 {
		return s.Schedule(action)
	}

	item := newScheduledItem(s, action)
	timer := time.AfterFunc(d, func() {
		s.run(item)
	})

	return NewCompositeDisposable(item, NewDisposable(func() {
		timer.Stop()
	}))
}

// ScheduleAt 在指定时间执行任务
func (s *DefaultScheduler) ScheduleAt(dueTime time.Time, action Action) Disposable {
	return s.ScheduleAfter(time.Until(dueTime), action)
}

// SchedulePeriodic 在独立goroutine上周期执行，动作耗时超过周期时
// 连续补发积压的周期而不是跳过
func (s *DefaultScheduler) SchedulePeriodic(period time.Duration, state interface{}, action func(interface{}) interface{}) Disposable {
	ctx, cancel := context.WithCancel(context.Background())
	period = normalize(period)

	go func() {
		defer s.recoverAction()

		watch := s.StartStopwatch()
		nextDue := period
		timer := time.NewTimer(period)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if ctx.Err() != nil {
				return
			}

			state = action(state)
			nextDue += period
			timer.Reset(normalize(nextDue - watch.Elapsed()))
		}
	}()

	return NewDisposable(cancel)
}

// StartStopwatch 启动单调计时器
func (s *DefaultScheduler) StartStopwatch() Stopwatch {
	return newMonotimeStopwatch()
}

// ScheduleLongRunning 在独立goroutine上运行长时间任务，释放时取消 ctx
func (s *DefaultScheduler) ScheduleLongRunning(action func(ctx context.Context)) Disposable {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer s.recoverAction()
		action(ctx)
	}()

	return NewDisposable(cancel)
}

func (s *DefaultScheduler) run(item *scheduledItem) {
	defer s.recoverAction()
	item.invoke()
}

// recoverAction 记录逃逸出动作的 panic 后继续传播
func (s *DefaultScheduler) recoverAction() {
	if r := recover(); r != nil {
		s.config.Logger.Error("scheduled action panicked", "scheduler", s.name, "panic", r)
		panic(r)
	}
}

// ============================================================================
// 进程级默认实例
// ============================================================================

var (
	defaultOnce      sync.Once
	defaultScheduler *DefaultScheduler
)

// Default 返回进程级默认调度器（惰性创建）。仅供调用方便利使用，
// 操作符内部从不隐式引用它。
func Default() Scheduler {
	defaultOnce.Do(func() {
		defaultScheduler = NewDefaultScheduler(WithName("default"))
	})
	return defaultScheduler
}

// ============================================================================
// 递归调度
// ============================================================================

// ScheduleRecursive 递归调度：action 通过 recurse 回调把自己再次放入调度队列
func ScheduleRecursive(scheduler Scheduler, action func(recurse func())) Disposable {
	return ScheduleRecursiveAfter(scheduler, 0, func(recurse func(time.Duration)) {
		action(func() { recurse(0) })
	})
}

// ScheduleRecursiveAfter 带延迟的递归调度，recurse 的参数为下一次执行的相对延迟。
// 释放返回值会取消尚未执行的下一次调用。
func ScheduleRecursiveAfter(scheduler Scheduler, dueTime time.Duration, action func(recurse func(time.Duration))) Disposable {
	group := NewCompositeDisposable()

	var recurse func(time.Duration)
	recurse = func(d time.Duration) {
		if group.IsDisposed() {
			return
		}
		slot := NewSingleAssignmentDisposable()
		group.Add(slot)
		slot.Set(scheduler.ScheduleAfter(d, func(Scheduler) Disposable {
			group.Remove(slot)
			action(recurse)
			return nil
		}))
	}

	recurse(dueTime)
	return group
}
