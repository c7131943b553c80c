// Join patterns for rxtime
// 联合模式：And 组合多个源，Then 给出组合函数形成计划，When 同时激活多个计划。
// 每个源的通知各自排队，计划在它的每个源都有排队通知时消费各队首一次。
package rxtime

import (
	"iter"
	"reflect"
	"sync"
	"sync/atomic"
)

// maxPatternSources 一个模式最多包含的源数量
const maxPatternSources = 16

// ============================================================================
// Pattern / Plan
// ============================================================================

// Pattern 一组需要同时有值才能触发的源序列
type Pattern struct {
	sources []Observable
}

// NewPattern 由给定的源创建模式
func NewPattern(sources ...Observable) *Pattern {
	return &Pattern{sources: append([]Observable(nil), sources...)}
}

// And 由两个源创建模式
func And(left, right Observable) *Pattern {
	return NewPattern(left, right)
}

// And 返回追加了 other 的新模式，原模式不变
func (p *Pattern) And(other Observable) *Pattern {
	sources := make([]Observable, 0, len(p.sources)+1)
	sources = append(sources, p.sources...)
	return &Pattern{sources: append(sources, other)}
}

// Len 模式中源的数量
func (p *Pattern) Len() int {
	return len(p.sources)
}

// Then 用组合函数把模式变为计划；组合函数按源的顺序接收各队首的值
func (p *Pattern) Then(selector func(values []interface{}) (interface{}, error)) *Plan {
	return &Plan{pattern: p, selector: selector}
}

// Plan 模式与组合函数
type Plan struct {
	pattern  *Pattern
	selector func([]interface{}) (interface{}, error)
}

func (p *Plan) validate() error {
	switch n := len(p.pattern.sources); {
	case n > maxPatternSources:
		return ErrTooManyPatternSources
	case n == 0:
		return argumentError("a join pattern needs at least one source")
	}
	for _, source := range p.pattern.sources {
		if source == nil {
			return argumentError("a join pattern source is nil")
		}
	}
	return nil
}

// ============================================================================
// When
// ============================================================================

// When 激活全部计划并合并它们的输出。
// 同一个源（可比较且相同的指针值）在多个计划之间共享一个通知队列；
// 某个计划的任一队首为完成通知时该计划失效，全部计划失效后输出完成，
// 没有计划时立即完成。任一源出错或组合函数失败时输出错误。
func When(plans ...*Plan) Observable {
	return WhenSeq(func(yield func(*Plan, error) bool) {
		for _, plan := range plans {
			if !yield(plan, nil) {
				return
			}
		}
	})
}

// WhenSeq 与 When 相同，计划在订阅时从序列中读取；序列给出的错误或 panic 作为输出错误
func WhenSeq(plans iter.Seq2[*Plan, error]) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		var collected []*Plan
		if err := protect(func() error {
			for plan, err := range plans {
				if err != nil {
					return err
				}
				if err := plan.validate(); err != nil {
					return err
				}
				collected = append(collected, plan)
			}
			return nil
		}); err != nil {
			observer.OnError(err)
			return EmptyDisposable()
		}

		j := &joinState{out: newSink(observer)}
		if len(collected) == 0 {
			j.out.completed()
			return j.out
		}

		for _, plan := range collected {
			j.activate(plan)
		}
		for _, leg := range j.legs {
			j.out.add(leg)
		}
		for _, leg := range j.legs {
			leg.subscription.Set(leg.source.Subscribe(leg))
		}
		return j.out
	})
}

// joinState 一次订阅的全部计划与源队列，所有状态由 gate 保护
type joinState struct {
	out   *sink
	gate  sync.Mutex
	legs  []*joinObserver
	plans []*activePlan
}

// activate 为计划建立队列并登记；调用时尚未订阅任何源
func (j *joinState) activate(plan *Plan) {
	ap := &activePlan{state: j, selector: plan.selector}
	for _, source := range plan.pattern.sources {
		leg := j.legFor(source, ap)
		ap.legs = append(ap.legs, leg)
		leg.plans = append(leg.plans, ap)
	}
	j.plans = append(j.plans, ap)
}

// legFor 查找可与其他计划共享的源队列；同一计划内重复的源各自独立
func (j *joinState) legFor(source Observable, plan *activePlan) *joinObserver {
	for _, leg := range j.legs {
		if sameSource(leg.source, source) && !plan.uses(leg) {
			return leg
		}
	}
	leg := &joinObserver{
		state:        j,
		source:       source,
		subscription: NewSingleAssignmentDisposable(),
	}
	j.legs = append(j.legs, leg)
	return leg
}

// deactivate 移除失效的计划；调用方持有 gate
func (j *joinState) deactivate(plan *activePlan) {
	for _, leg := range plan.legs {
		leg.removePlan(plan)
	}
	for i, p := range j.plans {
		if p == plan {
			j.plans = append(j.plans[:i], j.plans[i+1:]...)
			break
		}
	}
	if len(j.plans) == 0 {
		j.out.completed()
	}
}

// sameSource 只有指针类的同一实例才视为同一个源
func sameSource(a, b Observable) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	return false
}

// ============================================================================
// 源队列与激活的计划
// ============================================================================

// joinObserver 一个源的通知队列
type joinObserver struct {
	state        *joinState
	source       Observable
	subscription *SingleAssignmentDisposable
	disposed     int32

	queue []Notification
	plans []*activePlan
}

func (o *joinObserver) OnNext(value interface{}) {
	o.enqueue(NextNotification(value))
}

func (o *joinObserver) OnError(err error) {
	o.enqueue(ErrorNotification(err))
}

func (o *joinObserver) OnCompleted() {
	o.enqueue(CompletedNotification())
}

// enqueue 错误立即输出；数据和完成通知入队后按计划的声明顺序尝试匹配
func (o *joinObserver) enqueue(n Notification) {
	j := o.state
	j.gate.Lock()
	defer j.gate.Unlock()

	if o.IsDisposed() {
		return
	}
	if n.Kind == KindError {
		j.out.error(n.Err)
		return
	}

	o.queue = append(o.queue, n)
	plans := append([]*activePlan(nil), o.plans...)
	for _, plan := range plans {
		plan.match()
	}
}

// removePlan 调用方持有 gate；不再属于任何计划的源被取消订阅
func (o *joinObserver) removePlan(plan *activePlan) {
	for i, p := range o.plans {
		if p == plan {
			o.plans = append(o.plans[:i], o.plans[i+1:]...)
			break
		}
	}
	if len(o.plans) == 0 {
		o.Dispose()
	}
}

// Dispose 取消对源的订阅；不获取 gate
func (o *joinObserver) Dispose() {
	atomic.StoreInt32(&o.disposed, 1)
	o.subscription.Dispose()
}

func (o *joinObserver) IsDisposed() bool {
	return atomic.LoadInt32(&o.disposed) == 1
}

// activePlan 激活的计划
type activePlan struct {
	state    *joinState
	legs     []*joinObserver
	selector func([]interface{}) (interface{}, error)
}

func (p *activePlan) uses(leg *joinObserver) bool {
	for _, l := range p.legs {
		if l == leg {
			return true
		}
	}
	return false
}

// match 每个源都有排队通知时消费各队首一次；调用方持有 gate
func (p *activePlan) match() {
	for _, leg := range p.legs {
		if len(leg.queue) == 0 {
			return
		}
	}
	for _, leg := range p.legs {
		if leg.queue[0].Kind == KindCompleted {
			p.state.deactivate(p)
			return
		}
	}

	values := make([]interface{}, len(p.legs))
	for i, leg := range p.legs {
		values[i] = leg.queue[0].Value
		leg.queue = leg.queue[1:]
	}

	var result interface{}
	if err := protect(func() (err error) {
		result, err = p.selector(values)
		return err
	}); err != nil {
		p.state.out.error(err)
		return
	}
	p.state.out.next(result)
}
