// Package rxtime provides a virtual-time scheduler and time-based reactive operators
// 基于Go语言特性的响应式时间引擎，专注于通知的排序、延迟、合并与取消
package rxtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ============================================================================
// 通知类型定义
// ============================================================================

// NotificationKind 通知种类
type NotificationKind int

const (
	// KindNext 数据通知
	KindNext NotificationKind = iota
	// KindError 错误通知（终止）
	KindError
	// KindCompleted 完成通知（终止）
	KindCompleted
)

// String 返回通知种类的名称
func (k NotificationKind) String() string {
	switch k {
	case KindNext:
		return "OnNext"
	case KindError:
		return "OnError"
	case KindCompleted:
		return "OnCompleted"
	default:
		return fmt.Sprintf("NotificationKind(%d)", int(k))
	}
}

// Notification 表示流中的一个通知：Next(value) | Error(err) | Completed
// 构造后不可变
type Notification struct {
	Kind  NotificationKind
	Value interface{}
	Err   error
}

// NextNotification 创建数据通知
func NextNotification(value interface{}) Notification {
	return Notification{Kind: KindNext, Value: value}
}

// ErrorNotification 创建错误通知
func ErrorNotification(err error) Notification {
	return Notification{Kind: KindError, Err: err}
}

// CompletedNotification 创建完成通知
func CompletedNotification() Notification {
	return Notification{Kind: KindCompleted}
}

// IsTerminal 检查是否为终止通知
func (n Notification) IsTerminal() bool {
	return n.Kind == KindError || n.Kind == KindCompleted
}

// Accept 将通知投递给观察者
func (n Notification) Accept(observer Observer) {
	switch n.Kind {
	case KindNext:
		observer.OnNext(n.Value)
	case KindError:
		observer.OnError(n.Err)
	case KindCompleted:
		observer.OnCompleted()
	}
}

func (n Notification) String() string {
	switch n.Kind {
	case KindNext:
		return fmt.Sprintf("OnNext(%v)", n.Value)
	case KindError:
		return fmt.Sprintf("OnError(%v)", n.Err)
	default:
		return n.Kind.String() + "()"
	}
}

// ============================================================================
// 观察者与可观察序列
// ============================================================================

// Observer 观察者接口，接收三态协议的通知：OnNext*，然后至多一个 OnError 或 OnCompleted
type Observer interface {
	OnNext(value interface{})
	OnError(err error)
	OnCompleted()
}

// Observable 可观察序列
type Observable interface {
	// Subscribe 订阅观察者，返回用于取消订阅的 Disposable
	Subscribe(observer Observer) Disposable
}

// ObservableFunc 函数形式的 Observable
type ObservableFunc func(observer Observer) Disposable

// Subscribe 实现 Observable
func (f ObservableFunc) Subscribe(observer Observer) Disposable {
	return f(observer)
}

// anonymousObserver 由回调函数组成的观察者
type anonymousObserver struct {
	onNext      func(interface{})
	onError     func(error)
	onCompleted func()
}

// NewObserver 使用回调函数创建观察者，nil 回调会被忽略
func NewObserver(onNext func(interface{}), onError func(error), onCompleted func()) Observer {
	return &anonymousObserver{onNext: onNext, onError: onError, onCompleted: onCompleted}
}

func (o *anonymousObserver) OnNext(value interface{}) {
	if o.onNext != nil {
		o.onNext(value)
	}
}

func (o *anonymousObserver) OnError(err error) {
	if o.onError != nil {
		o.onError(err)
	}
}

func (o *anonymousObserver) OnCompleted() {
	if o.onCompleted != nil {
		o.onCompleted()
	}
}

// SubscribeFunc 使用回调函数订阅
func SubscribeFunc(source Observable, onNext func(interface{}), onError func(error), onCompleted func()) Disposable {
	return source.Subscribe(NewObserver(onNext, onError, onCompleted))
}

// Create 从订阅函数创建 Observable
//
// 返回的序列保证终止通知只投递一次，终止后自动释放上游资源；
// 订阅函数中发生的 panic 会被转换为 OnError。
func Create(subscribe func(observer Observer) Disposable) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		detach := newAutoDetachObserver(observer)

		var upstream Disposable
		if err := protect(func() error {
			upstream = subscribe(detach)
			return nil
		}); err != nil {
			detach.OnError(err)
		}

		detach.setUpstream(upstream)
		return detach
	})
}

// autoDetachObserver 终止时自动释放上游订阅的观察者
type autoDetachObserver struct {
	observer Observer
	stopped  int32
	upstream *SingleAssignmentDisposable
}

func newAutoDetachObserver(observer Observer) *autoDetachObserver {
	return &autoDetachObserver{
		observer: observer,
		upstream: NewSingleAssignmentDisposable(),
	}
}

func (o *autoDetachObserver) setUpstream(d Disposable) {
	if d == nil {
		d = EmptyDisposable()
	}
	o.upstream.Set(d)
}

func (o *autoDetachObserver) OnNext(value interface{}) {
	if atomic.LoadInt32(&o.stopped) == 0 {
		o.observer.OnNext(value)
	}
}

func (o *autoDetachObserver) OnError(err error) {
	if atomic.CompareAndSwapInt32(&o.stopped, 0, 1) {
		defer o.upstream.Dispose()
		o.observer.OnError(err)
	}
}

func (o *autoDetachObserver) OnCompleted() {
	if atomic.CompareAndSwapInt32(&o.stopped, 0, 1) {
		defer o.upstream.Dispose()
		o.observer.OnCompleted()
	}
}

// Dispose 取消订阅，此后的通知都被丢弃
func (o *autoDetachObserver) Dispose() {
	atomic.StoreInt32(&o.stopped, 1)
	o.upstream.Dispose()
}

// IsDisposed 检查是否已取消订阅
func (o *autoDetachObserver) IsDisposed() bool {
	return o.upstream.IsDisposed()
}

// ============================================================================
// 调度器接口
// ============================================================================

// Action 调度器执行的动作，返回值为可选的后续资源（可为nil），
// 在已执行的工作项被释放时一并释放
type Action func(scheduler Scheduler) Disposable

// NewAction 将无参函数包装为 Action
func NewAction(fn func()) Action {
	return func(Scheduler) Disposable {
		fn()
		return nil
	}
}

// Scheduler 调度器接口，是“何时执行”的唯一权威
type Scheduler interface {
	// Now 调度器的当前时间（虚拟或真实）
	Now() time.Time
	// Schedule 尽快执行动作
	Schedule(action Action) Disposable
	// ScheduleAfter 在相对延迟后执行动作，负数按0处理
	ScheduleAfter(dueTime time.Duration, action Action) Disposable
	// ScheduleAt 在绝对时间执行动作
	ScheduleAt(dueTime time.Time, action Action) Disposable
}

// PeriodicScheduler 原生支持周期调度的调度器
type PeriodicScheduler interface {
	// SchedulePeriodic 以固定周期执行动作，每次执行的返回值作为下一次的状态
	SchedulePeriodic(period time.Duration, state interface{}, action func(state interface{}) interface{}) Disposable
}

// Stopwatch 计时器，测量自启动以来经过的时间
type Stopwatch interface {
	Elapsed() time.Duration
}

// StopwatchProvider 能提供单调计时器的调度器
type StopwatchProvider interface {
	StartStopwatch() Stopwatch
}

// LongRunningScheduler 支持长时间运行任务的调度器，任务运行在独立的goroutine上，
// 需要在安全点检查 ctx 以及时响应取消
type LongRunningScheduler interface {
	ScheduleLongRunning(action func(ctx context.Context)) Disposable
}

// normalize 负的相对时间按0处理
func normalize(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
