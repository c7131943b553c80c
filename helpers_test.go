package rxtime

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("test error")

// mapValues 对每个值应用 fn
func mapValues(source Observable, fn func(interface{}) interface{}) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		return source.Subscribe(NewObserver(
			func(v interface{}) { observer.OnNext(fn(v)) },
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// joinBuffer 把缓冲区格式化为 "1,2,3"
func joinBuffer(v interface{}) interface{} {
	items := v.([]interface{})
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprint(item)
	}
	return strings.Join(parts, ",")
}

// flattenWindows 订阅每个窗口并把其中的值标记为 "窗口序号 值"，外层终止时输出终止
func flattenWindows(windows Observable) Observable {
	return ObservableFunc(func(observer Observer) Disposable {
		var mu sync.Mutex
		index := 0
		group := NewCompositeDisposable()

		group.Add(windows.Subscribe(NewObserver(
			func(v interface{}) {
				mu.Lock()
				i := index
				index++
				mu.Unlock()

				group.Add(v.(Observable).Subscribe(NewObserver(
					func(x interface{}) { observer.OnNext(fmt.Sprintf("%d %v", i, x)) },
					nil,
					nil,
				)))
			},
			observer.OnError,
			observer.OnCompleted,
		)))
		return group
	})
}

// sum 把所有值相加的组合函数
func sum(values []interface{}) (interface{}, error) {
	total := 0
	for _, v := range values {
		total += v.(int)
	}
	return total, nil
}

// syncBuffer 可在多个goroutine中写入的日志缓冲区
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// nilSelector 返回 nil 序列的选择器
func nilSelector(interface{}) (Observable, error) {
	return nil, nil
}

// assertArgumentError 断言 messages 只有一个在 at 时刻发射的参数错误
func assertArgumentError(t *testing.T, messages []Recorded, at int64) {
	t.Helper()
	require.Len(t, messages, 1)
	assert.Equal(t, at, messages[0].Time)
	assert.Equal(t, KindError, messages[0].Notification.Kind)
	assert.ErrorIs(t, messages[0].Notification.Err, ErrArgumentOutOfRange)
}
