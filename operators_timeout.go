// Timeout operators for rxtime
// 超时操作符：在规定时间内没有通知时切换到备用序列或发射超时错误
package rxtime

import (
	"sync"
	"time"
)

// timeoutSwitch 源序列与超时定时器之间的竞争状态。
// id 在每次源通知时递增，只有编号仍然匹配的定时器才能获胜；
// 一旦切换，源序列的后续通知全部被忽略。
type timeoutSwitch struct {
	out          *sink
	fallback     Observable
	subscription *SerialDisposable
	original     *SingleAssignmentDisposable
	timer        *SerialDisposable

	mu       sync.Mutex
	id       uint64
	switched bool
}

func newTimeoutSwitch(observer Observer, fallback Observable) *timeoutSwitch {
	t := &timeoutSwitch{
		out:          newSink(observer),
		fallback:     fallback,
		subscription: NewSerialDisposable(),
		original:     NewSingleAssignmentDisposable(),
		timer:        NewSerialDisposable(),
	}
	t.subscription.Set(t.original)
	t.out.add(t.subscription)
	t.out.add(t.timer)
	return t
}

// observerWins 源通知是否先于定时器到达；advance 为真时使当前定时器失效
func (t *timeoutSwitch) observerWins(advance bool) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.switched {
		return 0, false
	}
	if advance {
		t.id++
	}
	return t.id, true
}

// timerWins 编号为 id 的定时器是否获胜
func (t *timeoutSwitch) timerWins(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.switched || t.id != id {
		return false
	}
	t.switched = true
	return true
}

// switchOver 放弃源序列，订阅备用序列；没有备用序列时发射超时错误
func (t *timeoutSwitch) switchOver() {
	if t.fallback == nil {
		t.out.error(NewTimeoutError("rxtime: sequence timed out"))
		return
	}
	t.subscription.Set(t.fallback.Subscribe(t.out.forward()))
}

func (t *timeoutSwitch) OnError(err error) {
	if _, ok := t.observerWins(true); ok {
		t.out.error(err)
	}
}

func (t *timeoutSwitch) OnCompleted() {
	if _, ok := t.observerWins(true); ok {
		t.out.completed()
	}
}

// ============================================================================
// Timeout - 相对超时
// ============================================================================

// Timeout 订阅后或相邻两个值之间超过 dueTime 没有通知时发射 *TimeoutError
func Timeout(source Observable, dueTime time.Duration, scheduler Scheduler) Observable {
	return TimeoutWithFallback(source, dueTime, nil, scheduler)
}

// TimeoutWithFallback 超时时取消源订阅并切换到 fallback；fallback 为 nil 时发射 *TimeoutError
func TimeoutWithFallback(source Observable, dueTime time.Duration, fallback Observable, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		t := &relativeTimeout{
			timeoutSwitch: newTimeoutSwitch(observer, fallback),
			scheduler:     scheduler,
			dueTime:       dueTime,
		}
		t.createTimer(0)
		t.original.Set(source.Subscribe(t))
		return t.out
	})
}

type relativeTimeout struct {
	*timeoutSwitch
	scheduler Scheduler
	dueTime   time.Duration
}

func (t *relativeTimeout) createTimer(id uint64) {
	t.timer.Set(t.scheduler.ScheduleAfter(t.dueTime, NewAction(func() {
		if t.timerWins(id) {
			t.switchOver()
		}
	})))
}

func (t *relativeTimeout) OnNext(value interface{}) {
	id, ok := t.observerWins(true)
	if !ok {
		return
	}
	t.out.next(value)
	t.createTimer(id)
}

// ============================================================================
// TimeoutAt - 绝对截止时间
// ============================================================================

// TimeoutAt 到达 deadline 时源序列仍未终止则切换到 fallback（nil 时发射 *TimeoutError）。
// 源序列的值不会推迟截止时间。
func TimeoutAt(source Observable, deadline time.Time, fallback Observable, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		t := &absoluteTimeout{newTimeoutSwitch(observer, fallback)}
		t.timer.Set(scheduler.ScheduleAt(deadline, NewAction(func() {
			if t.timerWins(0) {
				t.switchOver()
			}
		})))
		t.original.Set(source.Subscribe(t))
		return t.out
	})
}

type absoluteTimeout struct {
	*timeoutSwitch
}

func (t *absoluteTimeout) OnNext(value interface{}) {
	if _, ok := t.observerWins(false); ok {
		t.out.next(value)
	}
}

// ============================================================================
// TimeoutWithSelector - 按选择器超时
// ============================================================================

// TimeoutWithSelector 第一个值的超时由 firstTimeout 决定（nil 表示永不超时），
// 之后每个值的超时由 selector 返回的序列决定：超时序列先于下一个源通知
// 发射值或完成即视为超时；超时序列出错则输出该错误。
func TimeoutWithSelector(source Observable, firstTimeout Observable, selector func(interface{}) (Observable, error), fallback Observable) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		t := &selectorTimeout{
			timeoutSwitch: newTimeoutSwitch(observer, fallback),
			selector:      selector,
		}
		if firstTimeout == nil {
			firstTimeout = Never()
		}
		t.setTimer(0, firstTimeout)
		t.original.Set(source.Subscribe(t))
		return t.out
	})
}

type selectorTimeout struct {
	*timeoutSwitch
	selector func(interface{}) (Observable, error)
}

func (t *selectorTimeout) setTimer(id uint64, timeout Observable) {
	slot := NewSingleAssignmentDisposable()
	t.timer.Set(slot)
	slot.Set(timeout.Subscribe(&timeoutObserver{parent: t.timeoutSwitch, id: id, slot: slot}))
}

func (t *selectorTimeout) OnNext(value interface{}) {
	id, ok := t.observerWins(true)
	if !ok {
		return
	}
	t.out.next(value)

	timeout, err := selectObservable(t.selector, value)
	if err != nil {
		t.out.error(err)
		return
	}
	t.setTimer(id, timeout)
}

// timeoutObserver 一个超时序列的观察者
type timeoutObserver struct {
	parent *timeoutSwitch
	id     uint64
	slot   Disposable
}

func (o *timeoutObserver) OnNext(interface{}) {
	if o.parent.timerWins(o.id) {
		o.parent.switchOver()
	}
	o.slot.Dispose()
}

func (o *timeoutObserver) OnError(err error) {
	if o.parent.timerWins(o.id) {
		o.parent.out.error(err)
	}
}

func (o *timeoutObserver) OnCompleted() {
	if o.parent.timerWins(o.id) {
		o.parent.switchOver()
	}
}
