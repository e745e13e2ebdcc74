package safepool

import "sync"

// Pool is a thin type-safe wrapper around sync.Pool. It exists so callers never have
// to write the `.(T)` type assertion that raw sync.Pool usage requires.
type Pool[T any] struct {
	p sync.Pool
}

// NewPool returns a Pool that creates new items with newFn when empty.
func NewPool[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() interface{} {
				return newFn()
			},
		},
	}
}

// Get returns an item from the pool, creating one if the pool is empty.
func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

// Put returns an item to the pool for reuse.
func (p *Pool[T]) Put(item T) {
	p.p.Put(item)
}
