// Sample operators for rxtime
// 采样操作符：在每个采样时刻发射自上次采样以来的最新值
package rxtime

import (
	"sync"
	"time"
)

// sampleState 采样状态；源完成后在下一个采样时刻发射剩余值并完成
type sampleState struct {
	out      *sink
	upstream *SingleAssignmentDisposable

	mu       sync.Mutex
	value    interface{}
	hasValue bool
	atEnd    bool
}

func (s *sampleState) OnNext(value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasValue = true
	s.value = value
}

func (s *sampleState) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.error(err)
}

// emitLatest 发射未发射过的最新值，调用方持有 mu
func (s *sampleState) emitLatest() {
	if s.hasValue {
		s.hasValue = false
		s.out.next(s.value)
	}
}

// ============================================================================
// Sample - 固定周期采样
// ============================================================================

// Sample 每隔 interval 发射一次最新值（没有新值时不发射）。
// 源完成后在下一个采样时刻发射剩余的值并完成。
func Sample(source Observable, interval time.Duration, scheduler Scheduler) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		s := &intervalSample{sampleState{
			out:      newSink(observer),
			upstream: NewSingleAssignmentDisposable(),
		}}
		s.out.add(s.upstream)
		s.upstream.Set(source.Subscribe(s))
		s.out.add(SchedulePeriodic(scheduler, interval, nil, s.tick))
		return s.out
	})
}

type intervalSample struct {
	sampleState
}

func (s *intervalSample) OnCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atEnd = true
	s.upstream.Dispose()
}

func (s *intervalSample) tick(state interface{}) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLatest()
	if s.atEnd {
		s.out.completed()
	}
	return state
}

// ============================================================================
// SampleWithSampler - 由采样序列驱动
// ============================================================================

// SampleWithSampler 采样序列每发射一个值就发射一次源的最新值。
// 采样序列完成时发射剩余值；两者都完成后输出完成；任一方出错则输出错误。
func SampleWithSampler(source Observable, sampler Observable) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		s := &samplerSample{
			sampleState: sampleState{
				out:      newSink(observer),
				upstream: NewSingleAssignmentDisposable(),
			},
			sampler: NewSingleAssignmentDisposable(),
		}
		s.out.add(s.upstream)
		s.out.add(s.sampler)
		s.upstream.Set(source.Subscribe(s))
		s.sampler.Set(sampler.Subscribe(&samplerObserver{parent: s}))
		return s.out
	})
}

type samplerSample struct {
	sampleState
	sampler      *SingleAssignmentDisposable
	samplerAtEnd bool
}

func (s *samplerSample) OnCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atEnd = true
	if s.samplerAtEnd {
		s.out.completed()
		return
	}
	s.upstream.Dispose()
}

// samplerObserver 采样序列的观察者
type samplerObserver struct {
	parent *samplerSample
}

func (o *samplerObserver) OnNext(interface{}) {
	p := o.parent
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitLatest()
	if p.atEnd {
		p.out.completed()
	}
}

func (o *samplerObserver) OnError(err error) {
	o.parent.OnError(err)
}

func (o *samplerObserver) OnCompleted() {
	p := o.parent
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samplerAtEnd = true
	p.emitLatest()
	if p.atEnd {
		p.out.completed()
		return
	}
	p.sampler.Dispose()
}
