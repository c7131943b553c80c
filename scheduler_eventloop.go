// Event loop scheduler for rxtime
// 事件循环调度器：所有任务在同一个专用goroutine上按 (到期时间, 插入顺序) 执行
package rxtime

import (
	"sync"
	"time"

	"github.com/xinjiayu/rxtime/internal/pqueue"
)

// EventLoopScheduler 单goroutine事件循环调度器
type EventLoopScheduler struct {
	config *Config
	name   string

	mu       sync.Mutex
	queue    *pqueue.Queue[*scheduledItem]
	disposed bool

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewEventLoopScheduler 创建事件循环调度器并启动其goroutine
func NewEventLoopScheduler(options ...Option) *EventLoopScheduler {
	config := newConfig(options)
	s := &EventLoopScheduler{
		config: config,
		name:   schedulerName("eventloop", config),
		queue:  pqueue.New[*scheduledItem](),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go s.loop()
	return s
}

// Now 当前时间
func (s *EventLoopScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 尽快在事件循环上执行任务
func (s *EventLoopScheduler) Schedule(action Action) Disposable {
	return s.ScheduleAt(s.Now(), action)
}

// ScheduleAfter 延迟在事件循环上执行任务
func (s *EventLoopScheduler) ScheduleAfter(dueTime time.Duration, action Action) Disposable {
	return s.ScheduleAt(s.Now().Add(normalize(dueTime)), action)
}

// ScheduleAt 在指定时间于事件循环上执行任务；调度器已释放时任务被丢弃
func (s *EventLoopScheduler) ScheduleAt(dueTime time.Time, action Action) Disposable {
	item := newScheduledItem(s, action)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		item.Dispose()
		return item
	}
	handle := s.queue.Push(dueTime.UnixNano(), item)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return &loopItem{scheduledItem: item, owner: s, handle: handle}
}

// loopItem 释放时立即移出队列，避免反复重置的定时器在队列中堆积
type loopItem struct {
	*scheduledItem
	owner  *EventLoopScheduler
	handle *pqueue.Item[*scheduledItem]
}

func (it *loopItem) Dispose() {
	it.owner.mu.Lock()
	it.owner.queue.Remove(it.handle)
	it.owner.mu.Unlock()
	it.scheduledItem.Dispose()
}

// pending 队列中尚未执行的任务数
func (s *EventLoopScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// StartStopwatch 启动单调计时器
func (s *EventLoopScheduler) StartStopwatch() Stopwatch {
	return newMonotimeStopwatch()
}

// Dispose 停止事件循环并丢弃尚未执行的任务
func (s *EventLoopScheduler) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.queue.Clear()
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// IsDisposed 检查是否已释放
func (s *EventLoopScheduler) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// loop 事件循环
func (s *EventLoopScheduler) loop() {
	logger := s.config.Logger.With("scheduler", s.name)
	logger.Debug("event loop started")
	defer logger.Debug("event loop stopped")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.disposed {
			s.mu.Unlock()
			return
		}

		next, ok := s.queue.Peek()
		wait := time.Duration(-1)
		if ok {
			wait = time.Until(time.Unix(0, next.Due))
			if wait <= 0 {
				s.queue.Pop()
				s.mu.Unlock()
				s.run(next.Value)
				continue
			}
		}
		s.mu.Unlock()

		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-s.wake:
			case <-timer.C:
			case <-s.done:
				return
			}
			timer.Stop()
			continue
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

func (s *EventLoopScheduler) run(item *scheduledItem) {
	defer func() {
		if r := recover(); r != nil {
			s.config.Logger.Error("scheduled action panicked", "scheduler", s.name, "panic", r)
			panic(r)
		}
	}()
	item.invoke()
}
