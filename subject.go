// Subject implementation for rxtime
// 发布主题：既是观察者也是可观察序列，用作窗口操作符的子序列
package rxtime

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// Subject - 发布主题
// ============================================================================

// subjectObserver 订阅者包装，按指针身份移除
type subjectObserver struct {
	observer Observer
}

// Subject 发布主题，只向当前订阅者发送新的值。
// 终止后的订阅者会同步收到同一个终止通知。
type Subject struct {
	mu        sync.RWMutex
	observers []*subjectObserver
	terminal  *Notification
	disposed  int32
}

// NewSubject 创建新的发布主题
func NewSubject() *Subject {
	return &Subject{}
}

// Subscribe 订阅观察者
func (s *Subject) Subscribe(observer Observer) Disposable {
	if s.IsDisposed() {
		return EmptyDisposable()
	}

	s.mu.Lock()
	if s.terminal != nil {
		terminal := *s.terminal
		s.mu.Unlock()
		terminal.Accept(observer)
		return EmptyDisposable()
	}

	entry := &subjectObserver{observer: observer}
	s.observers = append(s.observers, entry)
	s.mu.Unlock()

	return NewDisposable(func() {
		s.removeObserver(entry)
	})
}

// OnNext 向当前全部订阅者发送值
func (s *Subject) OnNext(value interface{}) {
	for _, entry := range s.snapshot() {
		entry.observer.OnNext(value)
	}
}

// OnError 发送错误并终止
func (s *Subject) OnError(err error) {
	s.terminate(ErrorNotification(err))
}

// OnCompleted 发送完成信号并终止
func (s *Subject) OnCompleted() {
	s.terminate(CompletedNotification())
}

func (s *Subject) terminate(n Notification) {
	if s.IsDisposed() {
		return
	}

	s.mu.Lock()
	if s.terminal != nil {
		s.mu.Unlock()
		return
	}
	s.terminal = &n
	observers := s.observers
	s.observers = nil
	s.mu.Unlock()

	for _, entry := range observers {
		n.Accept(entry.observer)
	}
}

// snapshot 获取订阅者快照；已终止或已释放时为空
func (s *Subject) snapshot() []*subjectObserver {
	if s.IsDisposed() {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.terminal != nil {
		return nil
	}
	observers := make([]*subjectObserver, len(s.observers))
	copy(observers, s.observers)
	return observers
}

// HasObservers 检查是否有观察者
func (s *Subject) HasObservers() bool {
	return s.ObserverCount() > 0
}

// ObserverCount 获取观察者数量
func (s *Subject) ObserverCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

// IsDisposed 检查是否已释放
func (s *Subject) IsDisposed() bool {
	return atomic.LoadInt32(&s.disposed) == 1
}

// Dispose 释放主题，丢弃全部订阅者且不再发送任何通知
func (s *Subject) Dispose() {
	if atomic.CompareAndSwapInt32(&s.disposed, 0, 1) {
		s.mu.Lock()
		s.observers = nil
		s.mu.Unlock()
	}
}

// removeObserver 移除观察者
func (s *Subject) removeObserver(entry *subjectObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, o := range s.observers {
		if o == entry {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}
