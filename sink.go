// Operator output plumbing for rxtime
package rxtime

import "sync/atomic"

// sink 操作符的输出端：终止通知只投递一次，终止或取消订阅后丢弃后续通知，
// 并释放该订阅持有的全部资源（上游订阅、定时器等）
type sink struct {
	observer Observer
	group    *CompositeDisposable
	done     int32
}

func newSink(observer Observer) *sink {
	return &sink{
		observer: observer,
		group:    NewCompositeDisposable(),
	}
}

// add 登记需要随订阅一起释放的资源
func (s *sink) add(d Disposable) {
	s.group.Add(d)
}

func (s *sink) stopped() bool {
	return atomic.LoadInt32(&s.done) == 1
}

func (s *sink) next(value interface{}) {
	if !s.stopped() {
		s.observer.OnNext(value)
	}
}

func (s *sink) error(err error) {
	if atomic.CompareAndSwapInt32(&s.done, 0, 1) {
		s.observer.OnError(err)
	}
	s.group.Dispose()
}

func (s *sink) completed() {
	if atomic.CompareAndSwapInt32(&s.done, 0, 1) {
		s.observer.OnCompleted()
	}
	s.group.Dispose()
}

// forward 返回把通知直接转发到该输出端的观察者
func (s *sink) forward() Observer {
	return NewObserver(s.next, s.error, s.completed)
}

// detach 停止向下游转发，但保留订阅资源
func (s *sink) detach() {
	atomic.StoreInt32(&s.done, 1)
}

// Dispose 取消订阅
func (s *sink) Dispose() {
	atomic.StoreInt32(&s.done, 1)
	s.group.Dispose()
}

// IsDisposed 检查订阅资源是否已释放
func (s *sink) IsDisposed() bool {
	return s.group.IsDisposed()
}
