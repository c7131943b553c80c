package rxtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirst(t *testing.T) {
	ctx := context.Background()

	t.Run("第一个值", func(t *testing.T) {
		v, err := First(ctx, Interval(time.Millisecond, Default()))
		require.NoError(t, err)
		assert.Equal(t, int64(0), v)
	})

	t.Run("空序列", func(t *testing.T) {
		_, err := First(ctx, Empty(NewCurrentThreadScheduler()))
		assert.ErrorIs(t, err, ErrSequenceEmpty)
	})

	t.Run("错误", func(t *testing.T) {
		_, err := First(ctx, Throw(errTest, Default()))
		assert.ErrorIs(t, err, errTest)
	})

	t.Run("返回后取消订阅", func(t *testing.T) {
		upstream := &countingDisposable{}
		source := Create(func(observer Observer) Disposable {
			observer.OnNext(1)
			return upstream
		})

		v, err := First(ctx, source)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		assert.Equal(t, 1, upstream.times())
	})
}

func TestLast(t *testing.T) {
	ctx := context.Background()

	v, err := Last(ctx, FromSlice([]interface{}{1, 2, 3}, Default()))
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = Last(ctx, Empty(Default()))
	assert.ErrorIs(t, err, ErrSequenceEmpty)
}

func TestToSlice(t *testing.T) {
	ctx := context.Background()

	t.Run("收集全部值", func(t *testing.T) {
		values, err := ToSlice(ctx, BufferWithTimeOrCount(
			FromSlice([]interface{}{1, 2, 3, 4, 5}, NewCurrentThreadScheduler()),
			time.Hour, 2, Default(),
		))
		require.NoError(t, err)
		assert.Equal(t, []interface{}{
			[]interface{}{1, 2},
			[]interface{}{3, 4},
			[]interface{}{5},
		}, values)
	})

	t.Run("空序列得到空切片", func(t *testing.T) {
		values, err := ToSlice(ctx, Empty(Default()))
		require.NoError(t, err)
		assert.Equal(t, []interface{}{}, values)
	})

	t.Run("错误", func(t *testing.T) {
		_, err := ToSlice(ctx, Throw(errTest, Default()))
		assert.ErrorIs(t, err, errTest)
	})
}

func TestWait(t *testing.T) {
	t.Run("等待终止", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, Wait(context.Background(), Timer(5*time.Millisecond, Default())))
		assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	})

	t.Run("超时取消", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err := Wait(ctx, Never())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("已取消的上下文", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := First(ctx, Never())
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("与 Timeout 组合", func(t *testing.T) {
		err := Wait(context.Background(), Timeout(Never(), 5*time.Millisecond, Default()))
		assert.ErrorIs(t, err, ErrTimeout)
	})
}
