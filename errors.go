// Error types for rxtime
// 错误类型定义：哨兵错误 + 具体错误类型，通过 errors.Is / errors.As 匹配
package rxtime

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout 超时错误的哨兵值，*TimeoutError 与之匹配
	ErrTimeout = errors.New("rxtime: sequence timed out")
	// ErrSequenceEmpty 序列不包含任何元素
	ErrSequenceEmpty = errors.New("rxtime: sequence contains no elements")
	// ErrAlreadyAssigned SingleAssignmentDisposable 被重复赋值
	ErrAlreadyAssigned = errors.New("rxtime: disposable has already been assigned")
	// ErrTimeInPast 虚拟时钟不能向过去推进
	ErrTimeInPast = errors.New("rxtime: cannot move the virtual clock backwards")
	// ErrSchedulerRunning 虚拟时间调度器已在运行，不可重入推进
	ErrSchedulerRunning = errors.New("rxtime: virtual time scheduler is already running")
	// ErrArgumentOutOfRange 时间或数量参数超出允许范围
	ErrArgumentOutOfRange = errors.New("rxtime: argument out of range")
	// ErrTooManyPatternSources 联合模式的源数量超过上限
	ErrTooManyPatternSources = fmt.Errorf("rxtime: a join pattern supports at most %d sources", maxPatternSources)
)

// ============================================================================
// 超时错误
// ============================================================================

// TimeoutError 超时错误
type TimeoutError struct {
	message string
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string) *TimeoutError {
	return &TimeoutError{message: message}
}

func (e *TimeoutError) Error() string {
	return e.message
}

// Is 使 errors.Is(err, ErrTimeout) 成立
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ============================================================================
// panic 转换
// ============================================================================

// PanicError 选择器、组合函数或订阅函数中恢复的 panic
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("rxtime: recovered panic: %v", e.Value)
}

// Unwrap 当 panic 的值本身是 error 时返回它
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// protect 执行 fn，将返回的错误或 panic 统一为 error
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}

// selectObservable 调用选择器；panic、返回的错误和 nil 序列都转换为 error
func selectObservable(selector func(interface{}) (Observable, error), value interface{}) (selected Observable, err error) {
	if err = protect(func() (err error) {
		selected, err = selector(value)
		return err
	}); err != nil {
		return nil, err
	}
	if selected == nil {
		return nil, argumentError("selector returned a nil observable")
	}
	return selected, nil
}
