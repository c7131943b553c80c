// Blocking operators for rxtime
// 阻塞操作符：把序列的结果带回调用方goroutine，用 ctx 取消等待
package rxtime

import (
	"context"
	"sync"
)

// ============================================================================
// 阻塞操作符实现
// ============================================================================

// blockingResult 序列的终止结果
type blockingResult struct {
	value  interface{}
	values []interface{}
	err    error
}

// block 订阅并等待 done 关闭或 ctx 取消；返回前取消订阅
func block(ctx context.Context, source Observable, observe func(finish func(blockingResult)) Observer) (blockingResult, error) {
	done := make(chan blockingResult, 1)
	var once sync.Once
	finish := func(r blockingResult) {
		once.Do(func() {
			done <- r
		})
	}

	subscription := NewSingleAssignmentDisposable()
	subscription.Set(source.Subscribe(observe(func(r blockingResult) {
		finish(r)
		subscription.Dispose()
	})))
	defer subscription.Dispose()

	select {
	case r := <-done:
		return r, r.err
	case <-ctx.Done():
		return blockingResult{}, ctx.Err()
	}
}

// First 阻塞获取第一个值；序列为空时返回 ErrSequenceEmpty
func First(ctx context.Context, source Observable) (interface{}, error) {
	r, err := block(ctx, source, func(finish func(blockingResult)) Observer {
		return NewObserver(
			func(value interface{}) {
				finish(blockingResult{value: value})
			},
			func(err error) {
				finish(blockingResult{err: err})
			},
			func() {
				finish(blockingResult{err: ErrSequenceEmpty})
			},
		)
	})
	if err != nil {
		return nil, err
	}
	return r.value, nil
}

// Last 阻塞获取最后一个值；序列为空时返回 ErrSequenceEmpty
func Last(ctx context.Context, source Observable) (interface{}, error) {
	var last interface{}
	hasValue := false
	r, err := block(ctx, source, func(finish func(blockingResult)) Observer {
		return NewObserver(
			func(value interface{}) {
				last, hasValue = value, true
			},
			func(err error) {
				finish(blockingResult{err: err})
			},
			func() {
				if !hasValue {
					finish(blockingResult{err: ErrSequenceEmpty})
					return
				}
				finish(blockingResult{value: last})
			},
		)
	})
	if err != nil {
		return nil, err
	}
	return r.value, nil
}

// ToSlice 阻塞收集全部值
func ToSlice(ctx context.Context, source Observable) ([]interface{}, error) {
	values := []interface{}{}
	r, err := block(ctx, source, func(finish func(blockingResult)) Observer {
		return NewObserver(
			func(value interface{}) {
				values = append(values, value)
			},
			func(err error) {
				finish(blockingResult{err: err})
			},
			func() {
				finish(blockingResult{values: values})
			},
		)
	})
	if err != nil {
		return nil, err
	}
	return r.values, nil
}

// Wait 阻塞直到序列终止，返回序列的错误
func Wait(ctx context.Context, source Observable) error {
	_, err := block(ctx, source, func(finish func(blockingResult)) Observer {
		return NewObserver(
			nil,
			func(err error) {
				finish(blockingResult{err: err})
			},
			func() {
				finish(blockingResult{})
			},
		)
	})
	return err
}
