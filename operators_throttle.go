// Throttle operators for rxtime
// 节流（防抖）操作符：只有在静默期内没有新值到来时才发射最新值
package rxtime

import (
	"sync"
	"time"
)

// ============================================================================
// Throttle - 固定静默期
// ============================================================================

// Throttle 每个值到来后等待 dueTime，其间没有新值到来才发射它；
// 源完成时立即发射尚未发射的最新值再完成，源出错时丢弃该值。
func Throttle(source Observable, dueTime time.Duration, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		t := &throttleState{
			throttleGate: throttleGate{out: newSink(observer)},
			scheduler:    scheduler,
			dueTime:      dueTime,
			timer:        NewSerialDisposable(),
		}
		t.out.add(t.timer)
		t.out.add(source.Subscribe(t))
		return t.out
	})
}

// Debounce 与 Throttle 相同
func Debounce(source Observable, dueTime time.Duration, scheduler Scheduler) Observable {
	return Throttle(source, dueTime, scheduler)
}

// throttleGate 节流状态；id 标识最新的值，过期的定时器不会发射
type throttleGate struct {
	out *sink

	mu       sync.Mutex
	value    interface{}
	hasValue bool
	id       uint64
}

// offer 记录最新值并返回其标识
func (g *throttleGate) offer(value interface{}) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hasValue = true
	g.value = value
	g.id++
	return g.id
}

// fire 如果 id 仍是最新值的标识则发射该值
func (g *throttleGate) fire(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasValue && g.id == id {
		g.out.next(g.value)
		g.hasValue = false
	}
}

func (g *throttleGate) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.out.error(err)
	g.hasValue = false
	g.id++
}

func (g *throttleGate) flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasValue {
		g.out.next(g.value)
	}
	g.out.completed()
	g.hasValue = false
	g.id++
}

type throttleState struct {
	throttleGate
	scheduler Scheduler
	dueTime   time.Duration
	timer     *SerialDisposable
}

func (t *throttleState) OnNext(value interface{}) {
	id := t.offer(value)

	slot := NewSingleAssignmentDisposable()
	t.timer.Set(slot)
	slot.Set(t.scheduler.ScheduleAfter(t.dueTime, NewAction(func() {
		t.fire(id)
	})))
}

func (t *throttleState) OnError(err error) {
	t.timer.Dispose()
	t.fail(err)
}

func (t *throttleState) OnCompleted() {
	t.timer.Dispose()
	t.flush()
}

// ============================================================================
// ThrottleWithSelector - 按选择器节流
// ============================================================================

// ThrottleWithSelector 每个值的静默期由 selector 返回的序列决定：
// 该序列发射第一个值或完成时，若期间没有新值到来则发射该值。
func ThrottleWithSelector(source Observable, selector func(interface{}) (Observable, error)) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		t := &selectorThrottle{
			throttleGate: throttleGate{out: newSink(observer)},
			selector:     selector,
			timer:        NewSerialDisposable(),
		}
		t.out.add(t.timer)
		t.out.add(source.Subscribe(t))
		return t.out
	})
}

type selectorThrottle struct {
	throttleGate
	selector func(interface{}) (Observable, error)
	timer    *SerialDisposable
}

func (t *selectorThrottle) OnNext(value interface{}) {
	window, err := selectObservable(t.selector, value)
	if err != nil {
		t.fail(err)
		return
	}

	id := t.offer(value)

	slot := NewSingleAssignmentDisposable()
	t.timer.Set(slot)
	slot.Set(window.Subscribe(&throttleWindowObserver{parent: t, id: id, slot: slot}))
}

func (t *selectorThrottle) OnError(err error) {
	t.timer.Dispose()
	t.fail(err)
}

func (t *selectorThrottle) OnCompleted() {
	t.timer.Dispose()
	t.flush()
}

// throttleWindowObserver 一个值的静默期序列
type throttleWindowObserver struct {
	parent *selectorThrottle
	id     uint64
	slot   Disposable
}

func (o *throttleWindowObserver) OnNext(interface{}) {
	o.parent.fire(o.id)
	o.slot.Dispose()
}

func (o *throttleWindowObserver) OnError(err error) {
	o.parent.fail(err)
}

func (o *throttleWindowObserver) OnCompleted() {
	o.parent.fire(o.id)
	o.slot.Dispose()
}
