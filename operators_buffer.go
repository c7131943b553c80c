// Buffer operators for rxtime
// 缓冲操作符：与窗口操作符边界相同，但每个切片以 []interface{} 的形式一次性发射
package rxtime

import "time"

// bufferChunk 一个正在收集的缓冲区
type bufferChunk struct {
	items []interface{}
}

// bufferOps 缓冲区在关闭时发射；源出错时丢弃所有未发射的缓冲区
func bufferOps(out *sink) chunkOps[*bufferChunk] {
	return chunkOps[*bufferChunk]{
		create: func() *bufferChunk {
			return &bufferChunk{items: []interface{}{}}
		},
		push: func(b *bufferChunk, v interface{}) {
			b.items = append(b.items, v)
		},
		close: func(b *bufferChunk) {
			out.next(b.items)
		},
		fail: func(*bufferChunk, error) {},
	}
}

// BufferWithTime 每隔 span 发射一次期间收集到的值（可能为空）
func BufferWithTime(source Observable, span time.Duration, scheduler Scheduler) Observable {
	return BufferWithTimeShift(source, span, span, scheduler)
}

// BufferWithTimeShift 每隔 shift 打开一个时长为 span 的缓冲区，关闭时发射；
// 源完成时按打开顺序发射所有未关闭的缓冲区。
func BufferWithTimeShift(source Observable, span, shift time.Duration, scheduler Scheduler) Observable {
	span = normalize(span)
	if shift <= 0 {
		return argumentOutOfRange("shift must be positive")
	}
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		runHoppingSlicer(out, source, span, shift, scheduler, bufferOps(out))
		return out
	})
}

// BufferWithTimeOrCount 缓冲区在时长 span 到期或收集满 count 个值时发射（以先到者为准）
func BufferWithTimeOrCount(source Observable, span time.Duration, count int, scheduler Scheduler) Observable {
	if count <= 0 {
		return argumentOutOfRange("count must be positive")
	}
	span = normalize(span)
	return ObservableFunc(func(observer Observer) Disposable {
		out := newSink(observer)
		runFerrySlicer(out, source, span, count, scheduler, bufferOps(out))
		return out
	})
}
