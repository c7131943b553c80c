// Package pqueue 提供按 (到期时间, 插入序号) 排序的最小堆，供调度器使用。
// 相同到期时间的元素按插入顺序 (FIFO) 出队。
package pqueue

import "container/heap"

// Item 队列中的一个元素
type Item[T any] struct {
	Due   int64
	Seq   uint64
	Value T

	index int // 在堆中的位置，-1 表示已出队
}

// Queue 最小堆优先队列，非并发安全，由调用方加锁
type Queue[T any] struct {
	items itemHeap[T]
	seq   uint64
}

// New 创建空队列
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push 以到期时间 due 入队，返回可用于 Remove 的句柄
func (q *Queue[T]) Push(due int64, value T) *Item[T] {
	q.seq++
	it := &Item[T]{Due: due, Seq: q.seq, Value: value}
	heap.Push(&q.items, it)
	return it
}

// Peek 返回最早到期的元素但不出队
func (q *Queue[T]) Peek() (*Item[T], bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Pop 弹出最早到期的元素
func (q *Queue[T]) Pop() (*Item[T], bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return heap.Pop(&q.items).(*Item[T]), true
}

// Remove 移除指定元素，元素不在队列中时返回false
func (q *Queue[T]) Remove(it *Item[T]) bool {
	if it == nil || it.index < 0 || it.index >= len(q.items) || q.items[it.index] != it {
		return false
	}
	heap.Remove(&q.items, it.index)
	return true
}

// Len 队列长度
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Clear 清空队列
func (q *Queue[T]) Clear() {
	for _, it := range q.items {
		it.index = -1
	}
	q.items = nil
}

type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Due != h[j].Due {
		return h[i].Due < h[j].Due
	}
	return h[i].Seq < h[j].Seq
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	it := x.(*Item[T])
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
