package service

import "sync"

// StackAllocator 层级计数器
// The counter only moves forward: Next hands out the current value, Seed raises the floor.
type StackAllocator struct {
	mu      sync.Mutex
	current int64
}

// NewStackAllocator 创建从 1 开始的计数器
func NewStackAllocator() *StackAllocator {
	return &StackAllocator{current: 1}
}

// Next 返回当前值并加一
func (a *StackAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.current
	a.current++
	return v
}

// Peek 返回下一次 Next 将分配的值
func (a *StackAllocator) Peek() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Seed 把计数器提升到 max(current, maxSeen+1)
func (a *StackAllocator) Seed(maxSeen int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if maxSeen+1 > a.current {
		a.current = maxSeen + 1
	}
}
