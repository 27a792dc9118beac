// Package generic holds small type-safe wrappers over untyped runtime
// containers.
package generic

import "sync"

// Pool recycles values of one type across goroutines. Call sites get back
// the type they put in, without assertions. A value handed to Put must not
// be touched afterwards.
type Pool[T any] struct {
	inner    sync.Pool
	generate func() T
}

// NewPool returns a Pool whose Get falls back to generate when empty.
func NewPool[T any](generate func() T) *Pool[T] {
	p := &Pool[T]{generate: generate}
	p.inner.New = func() any { return p.generate() }
	return p
}

// Warm pre-fills the pool so the next n Gets allocate nothing.
func (p *Pool[T]) Warm(n int) *Pool[T] {
	for i := 0; i < n; i++ {
		p.inner.Put(p.generate())
	}
	return p
}

func (p *Pool[T]) Get() T {
	return p.inner.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	p.inner.Put(value)
}
