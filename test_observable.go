// Virtual time test harness for rxtime
// 测试工具：记录每个通知发生的虚拟时间以及订阅/取消订阅的时间，
// 用于断言精确的时序
package rxtime

import (
	"fmt"
	"math"
	"sync"
)

// ============================================================================
// 记录类型
// ============================================================================

// Infinite 表示从未取消订阅
const Infinite int64 = math.MaxInt64

// StartWith 使用的默认时间点
const (
	DefaultCreated    int64 = 100
	DefaultSubscribed int64 = 200
	DefaultDisposed   int64 = 1000
)

// Recorded 带虚拟时间戳的通知
type Recorded struct {
	Time         int64
	Notification Notification
}

func (r Recorded) String() string {
	return fmt.Sprintf("%v@%d", r.Notification, r.Time)
}

// OnNext 在虚拟时间 t 的数据通知
func OnNext(t int64, value interface{}) Recorded {
	return Recorded{Time: t, Notification: NextNotification(value)}
}

// OnError 在虚拟时间 t 的错误通知
func OnError(t int64, err error) Recorded {
	return Recorded{Time: t, Notification: ErrorNotification(err)}
}

// OnCompleted 在虚拟时间 t 的完成通知
func OnCompleted(t int64) Recorded {
	return Recorded{Time: t, Notification: CompletedNotification()}
}

// SubscriptionLog 一次订阅的起止虚拟时间
type SubscriptionLog struct {
	Subscribe   int64
	Unsubscribe int64
}

func (l SubscriptionLog) String() string {
	if l.Unsubscribe == Infinite {
		return fmt.Sprintf("(%d, Infinite)", l.Subscribe)
	}
	return fmt.Sprintf("(%d, %d)", l.Subscribe, l.Unsubscribe)
}

// Subscribed 构造订阅记录
func Subscribed(subscribe, unsubscribe int64) SubscriptionLog {
	return SubscriptionLog{Subscribe: subscribe, Unsubscribe: unsubscribe}
}

// ============================================================================
// MockObserver 记录型观察者
// ============================================================================

// MockObserver 按虚拟时间记录收到的全部通知
type MockObserver struct {
	scheduler *TestScheduler
	mu        sync.Mutex
	messages  []Recorded
}

// CreateObserver 创建记录型观察者
func (s *TestScheduler) CreateObserver() *MockObserver {
	return &MockObserver{scheduler: s}
}

func (o *MockObserver) record(n Notification) {
	r := Recorded{Time: o.scheduler.Clock(), Notification: n}
	o.mu.Lock()
	o.messages = append(o.messages, r)
	o.mu.Unlock()
}

func (o *MockObserver) OnNext(value interface{}) {
	o.record(NextNotification(value))
}

func (o *MockObserver) OnError(err error) {
	o.record(ErrorNotification(err))
}

func (o *MockObserver) OnCompleted() {
	o.record(CompletedNotification())
}

// Messages 获取已记录的通知
func (o *MockObserver) Messages() []Recorded {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Recorded, len(o.messages))
	copy(out, o.messages)
	return out
}

// ============================================================================
// 热/冷测试序列
// ============================================================================

// subscriptionRecorder 记录订阅起止时间
type subscriptionRecorder struct {
	scheduler     *TestScheduler
	mu            sync.Mutex
	subscriptions []SubscriptionLog
}

func (r *subscriptionRecorder) begin() int {
	clock := r.scheduler.Clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions = append(r.subscriptions, Subscribed(clock, Infinite))
	return len(r.subscriptions) - 1
}

func (r *subscriptionRecorder) end(index int) {
	clock := r.scheduler.Clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[index].Unsubscribe = clock
}

// Subscriptions 获取订阅记录
func (r *subscriptionRecorder) Subscriptions() []SubscriptionLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SubscriptionLog, len(r.subscriptions))
	copy(out, r.subscriptions)
	return out
}

// hotSubscriber 热序列的一个订阅者
type hotSubscriber struct {
	observer Observer
}

// HotObservable 在共享的绝对时间线上发射通知，与订阅者数量无关
type HotObservable struct {
	subscriptionRecorder
	messages  []Recorded
	observers []*hotSubscriber
}

// CreateHotObservable 创建热序列，消息在其绝对时间被发射
func (s *TestScheduler) CreateHotObservable(messages ...Recorded) *HotObservable {
	h := &HotObservable{
		subscriptionRecorder: subscriptionRecorder{scheduler: s},
		messages:             messages,
	}

	for _, message := range messages {
		notification := message.Notification
		s.ScheduleAbsolute(message.Time, NewAction(func() {
			for _, sub := range h.snapshot() {
				notification.Accept(sub.observer)
			}
		}))
	}
	return h
}

func (h *HotObservable) snapshot() []*hotSubscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*hotSubscriber, len(h.observers))
	copy(out, h.observers)
	return out
}

// Subscribe 订阅热序列
func (h *HotObservable) Subscribe(observer Observer) Disposable {
	sub := &hotSubscriber{observer: observer}
	index := h.begin()

	h.mu.Lock()
	h.observers = append(h.observers, sub)
	h.mu.Unlock()

	return NewDisposable(func() {
		h.mu.Lock()
		for i, o := range h.observers {
			if o == sub {
				h.observers = append(h.observers[:i], h.observers[i+1:]...)
				break
			}
		}
		h.mu.Unlock()
		h.end(index)
	})
}

// Messages 热序列的消息
func (h *HotObservable) Messages() []Recorded {
	return h.messages
}

// ColdObservable 每次订阅都从订阅时刻开始重放其相对时间线
type ColdObservable struct {
	subscriptionRecorder
	messages []Recorded
}

// CreateColdObservable 创建冷序列，消息时间相对于订阅时刻
func (s *TestScheduler) CreateColdObservable(messages ...Recorded) *ColdObservable {
	return &ColdObservable{
		subscriptionRecorder: subscriptionRecorder{scheduler: s},
		messages:             messages,
	}
}

// Subscribe 订阅冷序列
func (c *ColdObservable) Subscribe(observer Observer) Disposable {
	index := c.begin()
	group := NewCompositeDisposable()

	for _, message := range c.messages {
		notification := message.Notification
		group.Add(c.scheduler.ScheduleRelative(message.Time, NewAction(func() {
			notification.Accept(observer)
		})))
	}

	return NewDisposable(func() {
		c.end(index)
		group.Dispose()
	})
}

// Messages 冷序列的消息
func (c *ColdObservable) Messages() []Recorded {
	return c.messages
}

// ============================================================================
// 订阅驱动
// ============================================================================

// StartWith 在默认时间点创建(100)、订阅(200)并释放(1000)序列，
// 运行调度器直到队列为空，返回记录型观察者
func (s *TestScheduler) StartWith(create func() Observable) *MockObserver {
	return s.StartWithTimes(create, DefaultCreated, DefaultSubscribed, DefaultDisposed)
}

// StartWithTimes 在指定虚拟时间创建、订阅并释放序列
func (s *TestScheduler) StartWithTimes(create func() Observable, created, subscribed, disposed int64) *MockObserver {
	observer := s.CreateObserver()
	subscription := NewSingleAssignmentDisposable()

	var source Observable
	s.ScheduleAbsolute(created, NewAction(func() {
		source = create()
	}))
	s.ScheduleAbsolute(subscribed, NewAction(func() {
		subscription.Set(source.Subscribe(observer))
	}))
	s.ScheduleAbsolute(disposed, NewAction(func() {
		subscription.Dispose()
	}))

	if err := s.Start(); err != nil {
		panic(err)
	}
	return observer
}
