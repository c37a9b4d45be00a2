package memory

import "sync"

// Pool is a typed recycling store for hot-path objects. Acquire returns a
// ready-to-populate instance (reused if available, freshly constructed
// otherwise); Return makes it available for future acquisition. Safe for
// concurrent use from all processor goroutines.
//
// Every object is reset on return, so a recycled instance never carries
// stale intrusive links back into a FIFO or price chain.
type Pool[T any] struct {
	p     *sync.Pool
	reset func(*T)
}

func NewPool[T any](ctor func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
		reset: reset,
	}
}

func (p *Pool[T]) Acquire() *T {
	return p.p.Get().(*T)
}

// Return recycles v. Callers must have fully detached v from all live
// structures first.
func (p *Pool[T]) Return(v *T) {
	if p.reset != nil {
		p.reset(v)
	}
	p.p.Put(v)
}
