// Disposable implementations for rxtime
// 可组合的取消令牌：释放是幂等的，并且可以在任意goroutine中安全调用
package rxtime

import (
	"sync"
	"sync/atomic"
)

// Disposable 可释放资源的接口
type Disposable interface {
	// Dispose 释放资源，多次调用与调用一次效果相同
	Dispose()
	// IsDisposed 检查是否已释放
	IsDisposed() bool
}

// ============================================================================
// 基础实现
// ============================================================================

// baseDisposable 释放时执行一次动作
type baseDisposable struct {
	disposed int32
	action   func()
}

// NewDisposable 创建释放时执行 action 的 Disposable，action 最多执行一次
func NewDisposable(action func()) Disposable {
	return &baseDisposable{action: action}
}

// EmptyDisposable 返回不持有任何资源的 Disposable
func EmptyDisposable() Disposable {
	return &baseDisposable{}
}

// Dispose 释放资源
func (d *baseDisposable) Dispose() {
	if atomic.CompareAndSwapInt32(&d.disposed, 0, 1) {
		if d.action != nil {
			d.action()
		}
	}
}

// IsDisposed 检查是否已释放
func (d *baseDisposable) IsDisposed() bool {
	return atomic.LoadInt32(&d.disposed) == 1
}

// BooleanDisposable 仅记录是否已释放的取消标志
type BooleanDisposable struct {
	disposed int32
}

// NewBooleanDisposable 创建取消标志
func NewBooleanDisposable() *BooleanDisposable {
	return &BooleanDisposable{}
}

// Dispose 设置取消标志
func (d *BooleanDisposable) Dispose() {
	atomic.StoreInt32(&d.disposed, 1)
}

// IsDisposed 检查取消标志
func (d *BooleanDisposable) IsDisposed() bool {
	return atomic.LoadInt32(&d.disposed) == 1
}

// ============================================================================
// CompositeDisposable 组合式资源管理器
// ============================================================================

// CompositeDisposable 组合式资源管理器，释放时释放所有子资源
type CompositeDisposable struct {
	mu        sync.Mutex
	disposed  bool
	resources []Disposable
}

// NewCompositeDisposable 创建组合式资源管理器
func NewCompositeDisposable(resources ...Disposable) *CompositeDisposable {
	cd := &CompositeDisposable{}
	for _, r := range resources {
		if r != nil {
			cd.resources = append(cd.resources, r)
		}
	}
	return cd
}

// Add 添加可释放资源，若已释放则立即释放该资源
func (cd *CompositeDisposable) Add(disposable Disposable) {
	if disposable == nil {
		return
	}

	cd.mu.Lock()
	if cd.disposed {
		cd.mu.Unlock()
		disposable.Dispose()
		return
	}
	cd.resources = append(cd.resources, disposable)
	cd.mu.Unlock()
}

// Remove 移除并释放资源，资源不在组合中时返回false
func (cd *CompositeDisposable) Remove(disposable Disposable) bool {
	if disposable == nil {
		return false
	}

	cd.mu.Lock()
	if cd.disposed {
		cd.mu.Unlock()
		return false
	}

	found := false
	for i, r := range cd.resources {
		if r == disposable {
			cd.resources = append(cd.resources[:i], cd.resources[i+1:]...)
			found = true
			break
		}
	}
	cd.mu.Unlock()

	if found {
		disposable.Dispose()
	}
	return found
}

// Len 当前持有的资源数量
func (cd *CompositeDisposable) Len() int {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return len(cd.resources)
}

// Dispose 释放所有资源，子资源在锁外释放
func (cd *CompositeDisposable) Dispose() {
	cd.mu.Lock()
	if cd.disposed {
		cd.mu.Unlock()
		return
	}
	cd.disposed = true
	resources := cd.resources
	cd.resources = nil
	cd.mu.Unlock()

	for _, resource := range resources {
		resource.Dispose()
	}
}

// IsDisposed 检查是否已释放
func (cd *CompositeDisposable) IsDisposed() bool {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.disposed
}

// ============================================================================
// SingleAssignmentDisposable 单次赋值槽
// ============================================================================

// SingleAssignmentDisposable 只能赋值一次的槽，允许延迟绑定要释放的资源。
// 在赋值前释放时，之后赋值的资源会被立即释放（恰好一次）。
type SingleAssignmentDisposable struct {
	mu       sync.Mutex
	current  Disposable
	assigned bool
	disposed bool
}

// NewSingleAssignmentDisposable 创建单次赋值槽
func NewSingleAssignmentDisposable() *SingleAssignmentDisposable {
	return &SingleAssignmentDisposable{}
}

// Set 赋值，重复赋值会 panic(ErrAlreadyAssigned)
func (d *SingleAssignmentDisposable) Set(disposable Disposable) {
	d.mu.Lock()
	if d.assigned {
		d.mu.Unlock()
		panic(ErrAlreadyAssigned)
	}
	d.assigned = true
	if d.disposed {
		d.mu.Unlock()
		if disposable != nil {
			disposable.Dispose()
		}
		return
	}
	d.current = disposable
	d.mu.Unlock()
}

// Get 获取当前赋值
func (d *SingleAssignmentDisposable) Get() Disposable {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Dispose 释放已赋值的资源
func (d *SingleAssignmentDisposable) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	current := d.current
	d.current = nil
	d.mu.Unlock()

	if current != nil {
		current.Dispose()
	}
}

// IsDisposed 检查是否已释放
func (d *SingleAssignmentDisposable) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// ============================================================================
// SerialDisposable 可替换的资源槽
// ============================================================================

// SerialDisposable 可替换的资源槽，设置新值时释放旧值
type SerialDisposable struct {
	mu       sync.Mutex
	current  Disposable
	disposed bool
}

// NewSerialDisposable 创建可替换的资源槽
func NewSerialDisposable() *SerialDisposable {
	return &SerialDisposable{}
}

// Set 替换当前资源并释放旧资源；已释放时立即释放新资源
func (d *SerialDisposable) Set(disposable Disposable) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		if disposable != nil {
			disposable.Dispose()
		}
		return
	}
	old := d.current
	d.current = disposable
	d.mu.Unlock()

	if old != nil {
		old.Dispose()
	}
}

// Get 获取当前资源
func (d *SerialDisposable) Get() Disposable {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Dispose 释放当前资源
func (d *SerialDisposable) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	current := d.current
	d.current = nil
	d.mu.Unlock()

	if current != nil {
		current.Dispose()
	}
}

// IsDisposed 检查是否已释放
func (d *SerialDisposable) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// ============================================================================
// RefCountDisposable 引用计数资源
// ============================================================================

// RefCountDisposable 只有在主句柄和所有依赖句柄都释放后才释放底层资源
type RefCountDisposable struct {
	mu         sync.Mutex
	disposable Disposable
	count      int
	primary    bool
}

// NewRefCountDisposable 创建引用计数资源
func NewRefCountDisposable(disposable Disposable) *RefCountDisposable {
	return &RefCountDisposable{disposable: disposable}
}

// GetDisposable 获取一个依赖句柄；底层资源已释放时返回空资源
func (d *RefCountDisposable) GetDisposable() Disposable {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposable == nil {
		return EmptyDisposable()
	}
	d.count++
	return NewDisposable(d.release)
}

func (d *RefCountDisposable) release() {
	d.mu.Lock()
	if d.disposable == nil {
		d.mu.Unlock()
		return
	}
	d.count--
	var target Disposable
	if d.primary && d.count == 0 {
		target = d.disposable
		d.disposable = nil
	}
	d.mu.Unlock()

	if target != nil {
		target.Dispose()
	}
}

// Dispose 释放主句柄
func (d *RefCountDisposable) Dispose() {
	d.mu.Lock()
	if d.disposable == nil || d.primary {
		d.mu.Unlock()
		return
	}
	d.primary = true
	var target Disposable
	if d.count == 0 {
		target = d.disposable
		d.disposable = nil
	}
	d.mu.Unlock()

	if target != nil {
		target.Dispose()
	}
}

// IsDisposed 检查底层资源是否已释放
func (d *RefCountDisposable) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposable == nil
}
