// Delay operators for rxtime
// 延迟操作符：按时间平移序列中的通知
package rxtime

import (
	"sync"
	"time"
)

// ============================================================================
// Delay - 固定延迟
// ============================================================================

// Delay 将每个数据通知延迟 dueTime 后按原顺序发射。
// 同一时刻到期的全部数据在一次回调中连续发射；
// 错误立即发射并丢弃尚未发射的数据；完成通知在 完成时间+dueTime 发射。
func Delay(source Observable, dueTime time.Duration, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		d := &delayState{
			out:       newSink(observer),
			scheduler: scheduler,
			delay:     normalize(dueTime),
			drain:     NewSerialDisposable(),
			upstream:  NewSingleAssignmentDisposable(),
		}
		d.watch = StartStopwatch(scheduler)
		d.out.add(d.drain)
		d.out.add(d.upstream)
		d.upstream.Set(source.Subscribe(d))
		return d.out
	})
}

// DelayUntil 将序列整体平移到绝对时间 dueTime 开始；dueTime 已过去时不延迟
func DelayUntil(source Observable, dueTime time.Time, scheduler Scheduler) Observable {
	return Defer(func() (Observable, error) {
		return Delay(source, dueTime.Sub(scheduler.Now()), scheduler), nil
	})
}

type delayedValue struct {
	value interface{}
	due   time.Duration
}

// delayState 一次订阅的延迟状态。
// active 表示排水循环已被调度或正在执行；running 表示排水循环正在执行，
// 此时到来的错误由排水循环负责发射。
type delayState struct {
	out       *sink
	scheduler Scheduler
	delay     time.Duration
	watch     Stopwatch
	drain     *SerialDisposable
	upstream  *SingleAssignmentDisposable

	mu           sync.Mutex
	queue        []delayedValue
	active       bool
	running      bool
	hasCompleted bool
	completeAt   time.Duration
	hasFailed    bool
	err          error
}

func (d *delayState) OnNext(value interface{}) {
	d.mu.Lock()
	d.queue = append(d.queue, delayedValue{value: value, due: d.watch.Elapsed() + d.delay})
	shouldRun := !d.active
	d.active = true
	d.mu.Unlock()

	if shouldRun {
		d.drain.Set(ScheduleRecursiveAfter(d.scheduler, d.delay, d.drainQueue))
	}
}

func (d *delayState) OnError(err error) {
	d.upstream.Dispose()

	d.mu.Lock()
	d.queue = nil
	d.err = err
	d.hasFailed = true
	shouldRun := !d.running
	d.mu.Unlock()

	if shouldRun {
		d.out.error(err)
	}
}

func (d *delayState) OnCompleted() {
	d.upstream.Dispose()

	d.mu.Lock()
	d.completeAt = d.watch.Elapsed() + d.delay
	d.hasCompleted = true
	shouldRun := !d.active
	d.active = true
	d.mu.Unlock()

	if shouldRun {
		d.drain.Set(ScheduleRecursiveAfter(d.scheduler, d.delay, d.drainQueue))
	}
}

// drainQueue 发射所有已到期的数据，然后按队首到期时间安排下一次排水
func (d *delayState) drainQueue(recurse func(time.Duration)) {
	d.mu.Lock()
	if d.hasFailed {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	for {
		var (
			value          interface{}
			hasValue       bool
			shouldComplete bool
			shouldRecurse  bool
			recurseAfter   time.Duration
			failure        error
		)

		d.mu.Lock()
		elapsed := d.watch.Elapsed()
		switch {
		case d.hasFailed:
			failure = d.err
			d.running = false
		case len(d.queue) > 0:
			head := d.queue[0]
			if head.due <= elapsed {
				value, hasValue = head.value, true
				d.queue = d.queue[1:]
			} else {
				shouldRecurse = true
				recurseAfter = head.due - elapsed
				d.running = false
			}
		case d.hasCompleted:
			if d.completeAt <= elapsed {
				shouldComplete = true
			} else {
				shouldRecurse = true
				recurseAfter = d.completeAt - elapsed
			}
			d.running = false
		default:
			d.running = false
			d.active = false
		}
		d.mu.Unlock()

		if hasValue {
			d.out.next(value)
			continue
		}

		switch {
		case failure != nil:
			d.out.error(failure)
		case shouldComplete:
			d.out.completed()
		case shouldRecurse:
			recurse(recurseAfter)
		}
		return
	}
}

// ============================================================================
// DelayWithSelector - 按选择器延迟
// ============================================================================

// DelayWithSelector 每个数据通知在 selector 返回的序列发射第一个值或完成时发射。
// subscriptionDelay 不为 nil 时，直到它发射第一个值或完成才订阅源序列。
// 延迟序列出错或选择器失败时输出错误；源完成且没有未结束的延迟时输出完成。
func DelayWithSelector(source Observable, subscriptionDelay Observable, selector func(interface{}) (Observable, error)) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		d := &selectorDelay{
			out:      newSink(observer),
			selector: selector,
			delays:   NewCompositeDisposable(),
			waiting:  NewSingleAssignmentDisposable(),
			upstream: NewSingleAssignmentDisposable(),
		}
		d.out.add(d.delays)
		d.out.add(d.waiting)
		d.out.add(d.upstream)

		if subscriptionDelay == nil {
			d.waiting.Set(EmptyDisposable())
			d.subscribeSource(source)
		} else {
			d.waiting.Set(subscriptionDelay.Subscribe(&subscriptionDelayObserver{parent: d, source: source}))
		}
		return d.out
	})
}

type selectorDelay struct {
	out      *sink
	selector func(interface{}) (Observable, error)
	delays   *CompositeDisposable
	waiting  *SingleAssignmentDisposable
	upstream *SingleAssignmentDisposable

	mu         sync.Mutex
	atEnd      bool
	subscribed sync.Once
}

// subscribeSource 结束订阅延迟并订阅源序列，只执行一次
func (d *selectorDelay) subscribeSource(source Observable) {
	d.subscribed.Do(func() {
		d.waiting.Dispose()
		d.upstream.Set(source.Subscribe(d))
	})
}

func (d *selectorDelay) OnNext(value interface{}) {
	delay, err := selectObservable(d.selector, value)
	if err != nil {
		d.mu.Lock()
		d.out.error(err)
		d.mu.Unlock()
		return
	}

	slot := NewSingleAssignmentDisposable()
	d.delays.Add(slot)
	slot.Set(delay.Subscribe(&delayObserver{parent: d, value: value, slot: slot}))
}

func (d *selectorDelay) OnError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out.error(err)
}

func (d *selectorDelay) OnCompleted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.atEnd = true
	d.upstream.Dispose()
	d.checkDone()
}

// checkDone 调用方持有 mu
func (d *selectorDelay) checkDone() {
	if d.atEnd && d.delays.Len() == 0 {
		d.out.completed()
	}
}

// delayObserver 单个数据的延迟序列观察者
type delayObserver struct {
	parent *selectorDelay
	value  interface{}
	slot   Disposable
	once   sync.Once
}

func (o *delayObserver) release() {
	o.once.Do(func() {
		p := o.parent
		p.mu.Lock()
		defer p.mu.Unlock()
		p.out.next(o.value)
		p.delays.Remove(o.slot)
		p.checkDone()
	})
}

func (o *delayObserver) OnNext(interface{}) {
	o.release()
}

func (o *delayObserver) OnError(err error) {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	o.parent.out.error(err)
}

func (o *delayObserver) OnCompleted() {
	o.release()
}

// subscriptionDelayObserver 等待订阅延迟结束后订阅源序列
type subscriptionDelayObserver struct {
	parent *selectorDelay
	source Observable
}

func (o *subscriptionDelayObserver) OnNext(interface{}) {
	o.parent.subscribeSource(o.source)
}

func (o *subscriptionDelayObserver) OnError(err error) {
	o.parent.mu.Lock()
	defer o.parent.mu.Unlock()
	o.parent.out.error(err)
}

func (o *subscriptionDelayObserver) OnCompleted() {
	o.parent.subscribeSource(o.source)
}

// ============================================================================
// DelaySubscription - 延迟订阅
// ============================================================================

// DelaySubscription 在 dueTime 之后才订阅源序列
func DelaySubscription(source Observable, dueTime time.Duration, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		return scheduler.ScheduleAfter(dueTime, func(Scheduler) Disposable {
			return source.Subscribe(observer)
		})
	})
}
