package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group is a small wrapper around errgroup for the structured
// two-or-three-goroutine lifecycles in this project (a read pump plus a
// consumer, a pair of bridge copy loops). The first error cancels the
// group context; Wait returns it.
type Group struct {
	eg  *errgroup.Group
	ctx context.Context
}

// WithContext creates a Group bound to ctx. The returned context is
// canceled when any task fails or ctx is canceled.
func WithContext(ctx context.Context) (*Group, context.Context) {
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{eg: eg, ctx: gctx}, gctx
}

// Go runs fn in a new goroutine. fn receives the group context and should
// return promptly once it is canceled.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		return fn(g.ctx)
	})
}

// Wait blocks until all tasks returned and yields the first error.
func (g *Group) Wait() error {
	return g.eg.Wait()
}

// Run starts every fn in its own goroutine and waits for all of them,
// returning the first error.
func Run(ctx context.Context, fns ...func(ctx context.Context) error) error {
	g, _ := WithContext(ctx)
	for _, fn := range fns {
		g.Go(fn)
	}
	return g.Wait()
}
