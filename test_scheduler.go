// Virtual time scheduler for rxtime
// 虚拟时间调度器：用整数tick表示时间，只有显式推进时钟时才执行任务，
// 用于确定性地复现事件顺序
package rxtime

import (
	"math"
	"sync"
	"time"

	"github.com/xinjiayu/rxtime/internal/pqueue"
)

// TestScheduler 虚拟时间调度器。1 tick 对应 time.Duration 的 1 纳秒，
// Now() 返回 time.Unix(0, clock)。
//
// 到期时间相同的任务按插入顺序执行；在当前时钟或更早时间调度的任务
// 在下一个tick (clock+1) 执行，因此立即调度也总是异步的。
type TestScheduler struct {
	mu      sync.Mutex
	clock   int64
	queue   *pqueue.Queue[*scheduledItem]
	enabled bool
}

// NewTestScheduler 创建时钟为0的测试调度器
func NewTestScheduler() *TestScheduler {
	return &TestScheduler{
		queue: pqueue.New[*scheduledItem](),
	}
}

// Clock 获取当前虚拟时钟
func (s *TestScheduler) Clock() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Now 当前虚拟时间
func (s *TestScheduler) Now() time.Time {
	return time.Unix(0, s.Clock()).UTC()
}

// Schedule 在下一个tick执行任务
func (s *TestScheduler) Schedule(action Action) Disposable {
	return s.ScheduleAbsolute(s.Clock(), action)
}

// ScheduleAfter 在相对时间后执行任务
func (s *TestScheduler) ScheduleAfter(dueTime time.Duration, action Action) Disposable {
	return s.ScheduleRelative(int64(normalize(dueTime)), action)
}

// ScheduleAt 在绝对时间执行任务
func (s *TestScheduler) ScheduleAt(dueTime time.Time, action Action) Disposable {
	return s.ScheduleAbsolute(dueTime.UnixNano(), action)
}

// ScheduleRelative 在 ticks 个tick之后执行任务
func (s *TestScheduler) ScheduleRelative(ticks int64, action Action) Disposable {
	s.mu.Lock()
	due := s.clock + ticks
	s.mu.Unlock()
	return s.ScheduleAbsolute(due, action)
}

// ScheduleAbsolute 在虚拟时间 due 执行任务，due 不晚于当前时钟时顺延到 clock+1
func (s *TestScheduler) ScheduleAbsolute(due int64, action Action) Disposable {
	item := newScheduledItem(s, action)

	s.mu.Lock()
	if due <= s.clock {
		due = s.clock + 1
	}
	s.queue.Push(due, item)
	s.mu.Unlock()

	return item
}

// StartStopwatch 启动虚拟计时器
func (s *TestScheduler) StartStopwatch() Stopwatch {
	return &virtualStopwatch{scheduler: s, start: s.Clock()}
}

// ============================================================================
// 时钟推进
// ============================================================================

// Start 执行队列中的全部任务直到队列为空或调用了 Stop
func (s *TestScheduler) Start() error {
	return s.advance(math.MaxInt64, false)
}

// Stop 停止正在进行的 Start/AdvanceTo，当前任务执行完后生效
func (s *TestScheduler) Stop() {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
}

// AdvanceTo 推进时钟到 t，执行所有到期时间不晚于 t 的任务，
// 包括推进过程中新调度的任务
func (s *TestScheduler) AdvanceTo(t int64) error {
	if t < s.Clock() {
		return ErrTimeInPast
	}
	return s.advance(t, true)
}

// AdvanceBy 将时钟推进 d
func (s *TestScheduler) AdvanceBy(d time.Duration) error {
	if d < 0 {
		return ErrTimeInPast
	}
	return s.AdvanceTo(s.Clock() + int64(d))
}

// Sleep 直接推进时钟而不执行任何任务，用于模拟动作本身耗费的时间
func (s *TestScheduler) Sleep(d time.Duration) error {
	if d < 0 {
		return ErrTimeInPast
	}
	s.mu.Lock()
	s.clock += int64(d)
	s.mu.Unlock()
	return nil
}

// IsRunning 检查是否正在推进时钟
func (s *TestScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// advance 按 (到期时间, 插入顺序) 执行到期任务；任务中的 panic 传播给调用方
func (s *TestScheduler) advance(limit int64, moveClock bool) error {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return ErrSchedulerRunning
	}
	s.enabled = true
	s.mu.Unlock()

	defer s.Stop()

	for {
		item, ok := s.nextDue(limit)
		if !ok {
			break
		}
		item.invoke()
	}

	if moveClock {
		s.mu.Lock()
		if limit > s.clock {
			s.clock = limit
		}
		s.mu.Unlock()
	}
	return nil
}

// nextDue 弹出下一个到期时间不晚于 limit 的任务并把时钟移到其到期时间
func (s *TestScheduler) nextDue(limit int64) (*scheduledItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.enabled {
		next, ok := s.queue.Peek()
		if !ok {
			return nil, false
		}
		if next.Value.IsDisposed() {
			s.queue.Pop()
			continue
		}
		if next.Due > limit {
			return nil, false
		}

		s.queue.Pop()
		if next.Due > s.clock {
			s.clock = next.Due
		}
		return next.Value, true
	}
	return nil, false
}

// virtualStopwatch 虚拟时钟计时器
type virtualStopwatch struct {
	scheduler *TestScheduler
	start     int64
}

func (w *virtualStopwatch) Elapsed() time.Duration {
	return time.Duration(w.scheduler.Clock() - w.start)
}
