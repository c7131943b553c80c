// Window operators for rxtime
// 窗口操作符：按时间（和数量）把源序列切分为子序列
package rxtime

import (
	"sync"
	"time"
)

// ============================================================================
// 切片引擎：窗口与缓冲区共用的边界计算
// ============================================================================

// chunkOps 切片的生命周期回调，都在切片器的锁内调用
type chunkOps[C any] struct {
	// create 创建新切片（窗口在此时发射给下游）
	create func() C
	// push 向切片追加一个值
	push func(C, interface{})
	// close 正常关闭切片（到期、数量达到或源完成）
	close func(C)
	// fail 源出错时通知切片
	fail func(C, error)
}

// hopSchedule 滑动/跳跃窗口的边界计算：
// 下一个关闭边界为 nextSpan，下一个打开边界为 nextShift，相同时刻先关闭后打开。
// 边界是相对订阅时刻的偏移，span 为0时没有关闭边界
type hopSchedule struct {
	span      time.Duration
	shift     time.Duration
	nextSpan  time.Duration
	nextShift time.Duration
}

func newHopSchedule(span, shift time.Duration) *hopSchedule {
	return &hopSchedule{span: span, shift: shift, nextSpan: span, nextShift: shift}
}

// next 返回下一个边界（相对订阅时刻）以及该边界是否关闭/打开切片
func (h *hopSchedule) next() (boundary time.Duration, isSpan, isShift bool) {
	switch {
	case h.span == 0:
		isShift = true
	case h.nextSpan == h.nextShift:
		isSpan, isShift = true, true
	case h.nextSpan < h.nextShift:
		isSpan = true
	default:
		isShift = true
	}

	boundary = h.nextShift
	if isSpan {
		boundary = h.nextSpan
		h.nextSpan += h.shift
	}
	if isShift {
		h.nextShift += h.shift
	}
	return boundary, isSpan, isShift
}

// hoppingSlicer 按时间打开和关闭切片，重叠的切片彼此独立
type hoppingSlicer[C any] struct {
	out       *sink
	ops       chunkOps[C]
	scheduler Scheduler
	timer     *SerialDisposable
	watch     Stopwatch

	mu     sync.Mutex
	hop    *hopSchedule
	chunks []C
}

func runHoppingSlicer[C any](out *sink, source Observable, span, shift time.Duration, scheduler Scheduler, ops chunkOps[C]) {
	h := &hoppingSlicer[C]{
		out:       out,
		ops:       ops,
		scheduler: scheduler,
		timer:     NewSerialDisposable(),
		hop:       newHopSchedule(span, shift),
		watch:     StartStopwatch(scheduler),
	}
	out.add(h.timer)

	h.mu.Lock()
	h.open()
	h.mu.Unlock()

	h.createTimer()
	out.add(source.Subscribe(h))
}

func (h *hoppingSlicer[C]) createTimer() {
	h.mu.Lock()
	boundary, isSpan, isShift := h.hop.next()
	h.mu.Unlock()

	slot := NewSingleAssignmentDisposable()
	h.timer.Set(slot)
	slot.Set(h.scheduler.ScheduleAfter(boundary-h.watch.Elapsed(), NewAction(func() {
		h.tick(isSpan, isShift)
	})))
}

func (h *hoppingSlicer[C]) tick(isSpan, isShift bool) {
	h.mu.Lock()
	if h.out.IsDisposed() {
		h.mu.Unlock()
		return
	}
	if isSpan && len(h.chunks) > 0 {
		oldest := h.chunks[0]
		h.chunks = h.chunks[1:]
		h.ops.close(oldest)
	}
	if isShift {
		h.open()
	}
	h.mu.Unlock()

	h.createTimer()
}

// open 打开新切片；span 为0的切片打开后立即关闭。调用方持有 mu
func (h *hoppingSlicer[C]) open() {
	c := h.ops.create()
	if h.hop.span == 0 {
		h.ops.close(c)
		return
	}
	h.chunks = append(h.chunks, c)
}

func (h *hoppingSlicer[C]) OnNext(value interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.chunks {
		h.ops.push(c, value)
	}
}

func (h *hoppingSlicer[C]) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.chunks {
		h.ops.fail(c, err)
	}
	h.chunks = nil
	h.out.error(err)
}

func (h *hoppingSlicer[C]) OnCompleted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.chunks {
		h.ops.close(c)
	}
	h.chunks = nil
	h.out.completed()
}

// ferrySlicer 同一时刻只有一个切片：时长到期或数量达到时关闭并打开新切片，
// 因数量关闭时重新开始计时
type ferrySlicer[C any] struct {
	out       *sink
	ops       chunkOps[C]
	scheduler Scheduler
	span      time.Duration
	count     int
	timer     *SerialDisposable

	mu       sync.Mutex
	chunk    C
	n        int
	windowID uint64
}

func runFerrySlicer[C any](out *sink, source Observable, span time.Duration, count int, scheduler Scheduler, ops chunkOps[C]) {
	f := &ferrySlicer[C]{
		out:       out,
		ops:       ops,
		scheduler: scheduler,
		span:      span,
		count:     count,
		timer:     NewSerialDisposable(),
	}
	out.add(f.timer)

	f.mu.Lock()
	f.chunk = ops.create()
	f.mu.Unlock()

	f.createTimer(0)
	out.add(source.Subscribe(f))
}

func (f *ferrySlicer[C]) createTimer(id uint64) {
	slot := NewSingleAssignmentDisposable()
	f.timer.Set(slot)
	slot.Set(f.scheduler.ScheduleAfter(f.span, NewAction(func() {
		f.tick(id)
	})))
}

// rotate 关闭当前切片并打开新切片，返回新切片的编号；调用方持有 mu
func (f *ferrySlicer[C]) rotate() uint64 {
	f.n = 0
	f.windowID++
	f.ops.close(f.chunk)
	f.chunk = f.ops.create()
	return f.windowID
}

func (f *ferrySlicer[C]) tick(id uint64) {
	f.mu.Lock()
	if id != f.windowID || f.out.IsDisposed() {
		f.mu.Unlock()
		return
	}
	newID := f.rotate()
	f.mu.Unlock()

	f.createTimer(newID)
}

func (f *ferrySlicer[C]) OnNext(value interface{}) {
	f.mu.Lock()
	f.ops.push(f.chunk, value)
	f.n++
	rotated := f.n == f.count
	var newID uint64
	if rotated {
		newID = f.rotate()
	}
	f.mu.Unlock()

	if rotated {
		f.createTimer(newID)
	}
}

func (f *ferrySlicer[C]) OnError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops.fail(f.chunk, err)
	f.out.error(err)
}

func (f *ferrySlicer[C]) OnCompleted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops.close(f.chunk)
	f.out.completed()
}

// ============================================================================
// 窗口
// ============================================================================

// windowObservable 窗口子序列；订阅期间通过引用计数保持源订阅存活
type windowObservable struct {
	subject  *Subject
	refCount *RefCountDisposable
}

func (w *windowObservable) Subscribe(observer Observer) Disposable {
	return NewCompositeDisposable(w.refCount.GetDisposable(), w.subject.Subscribe(observer))
}

// windowOps 以 Subject 作为切片，创建时把窗口发射给下游
func windowOps(out *sink, refCount *RefCountDisposable) chunkOps[*Subject] {
	return chunkOps[*Subject]{
		create: func() *Subject {
			s := NewSubject()
			out.next(Observable(&windowObservable{subject: s, refCount: refCount}))
			return s
		},
		push:  func(s *Subject, v interface{}) { s.OnNext(v) },
		close: func(s *Subject) { s.OnCompleted() },
		fail:  func(s *Subject, err error) { s.OnError(err) },
	}
}

// windowed 为窗口操作符建立输出端；取消外层订阅后，已发射的窗口仍可继续接收数据直到其订阅者释放
func windowed(observer Observer, run func(out *sink, ops chunkOps[*Subject])) Disposable {
	out := newSink(observer)
	refCount := NewRefCountDisposable(out)
	run(out, windowOps(out, refCount))
	return NewDisposable(func() {
		out.detach()
		refCount.Dispose()
	})
}

// WindowWithTime 把源序列切分为首尾相接、时长为 span 的窗口，每个窗口是一个 Observable。
// 第一个窗口在订阅时打开；span 必须为正。
func WindowWithTime(source Observable, span time.Duration, scheduler Scheduler) Observable {
	return WindowWithTimeShift(source, span, span, scheduler)
}

// WindowWithTimeShift 每隔 shift 打开一个时长为 span 的窗口；
// shift < span 时窗口重叠，shift > span 时窗口之间存在间隙。
// span 为0时窗口在打开后立即关闭（空窗口）；shift 必须为正。
func WindowWithTimeShift(source Observable, span, shift time.Duration, scheduler Scheduler) Observable {
	span = normalize(span)
	if shift <= 0 {
		return argumentOutOfRange("shift must be positive")
	}
	return ObservableFunc(func(observer Observer) Disposable {
		return windowed(observer, func(out *sink, ops chunkOps[*Subject]) {
			runHoppingSlicer(out, source, span, shift, scheduler, ops)
		})
	})
}

// WindowWithTimeOrCount 窗口在时长 span 到期或包含 count 个值时关闭（以先到者为准），
// 随即打开下一个窗口；因数量关闭时重新计时。
func WindowWithTimeOrCount(source Observable, span time.Duration, count int, scheduler Scheduler) Observable {
	if count <= 0 {
		return argumentOutOfRange("count must be positive")
	}
	span = normalize(span)
	return ObservableFunc(func(observer Observer) Disposable {
		return windowed(observer, func(out *sink, ops chunkOps[*Subject]) {
			runFerrySlicer(out, source, span, count, scheduler, ops)
		})
	})
}
