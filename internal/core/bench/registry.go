package bench

import (
	"fmt"

	"github.com/telebench/telebench/internal/core/protocol"
)

// Registry holds the ordered benchmark registration for one run. Groups and
// cases execute exactly in registration order.
type Registry struct {
	cfg    protocol.Config
	groups []*Group
	seen   map[string]struct{}
	errs   []*protocol.Error
}

func NewRegistry() *Registry {
	return &Registry{
		cfg:  protocol.DefaultConfig(),
		seen: make(map[string]struct{}),
	}
}

// SetConfig replaces the measurement parameters for the whole run. The values
// are checked in Validate, not here, so registration code stays infallible.
func (r *Registry) SetConfig(cfg protocol.Config) *Registry {
	r.cfg = cfg
	return r
}

func (r *Registry) Config() protocol.Config {
	return r.cfg
}

// Group starts a named benchmark group. Cases added to it run in order.
func (r *Registry) Group(name string) *Group {
	g := &Group{reg: r, name: name}
	r.groups = append(r.groups, g)
	return g
}

// Bench registers a single-function group, for benchmarks that need no
// grouping.
func (r *Registry) Bench(name string, fn Func) *Registry {
	g := r.Group(name)
	g.add(protocol.Identifier{Group: name}, fn, "")
	return r
}

func (r *Registry) Groups() []*Group {
	return r.groups
}

// Validate checks everything that must hold before a run may start:
// registration errors first, then the measurement configuration.
func (r *Registry) Validate() *protocol.Error {
	if len(r.errs) > 0 {
		return r.errs[0]
	}
	return ValidateConfig(r.cfg)
}

// Group collects the benchmark cases of one named group.
type Group struct {
	reg        *Registry
	name       string
	throughput *protocol.Throughput
	cases      []Case
}

// Case binds one benchmark identifier to its body. A non-empty SkipReason
// makes the runner emit a skip instead of measuring.
type Case struct {
	ID         protocol.Identifier
	Fn         Func
	SkipReason string
}

func (g *Group) Name() string {
	return g.name
}

func (g *Group) Cases() []Case {
	return g.cases
}

// Throughput sets the declared throughput for cases registered after this
// call, so reporters can derive rates from per-iteration cost.
func (g *Group) Throughput(kind protocol.ThroughputKind, amount uint64) *Group {
	g.throughput = &protocol.Throughput{Kind: kind, Amount: amount}
	return g
}

// Bench registers one function in this group.
func (g *Group) Bench(function string, fn Func) *Group {
	return g.add(g.id(function, ""), fn, "")
}

// BenchValue registers a parameterized function; value renders the parameter.
func (g *Group) BenchValue(function, value string, fn Func) *Group {
	return g.add(g.id(function, value), fn, "")
}

// Skip registers a function that declines to run, with the given reason.
func (g *Group) Skip(function, reason string) *Group {
	if reason == "" {
		reason = "skipped"
	}
	return g.add(g.id(function, ""), nil, reason)
}

func (g *Group) id(function, value string) protocol.Identifier {
	return protocol.Identifier{
		Group:      g.name,
		Function:   function,
		ValueStr:   value,
		Throughput: g.throughput,
	}
}

func (g *Group) add(id protocol.Identifier, fn Func, skip string) *Group {
	key := id.Key()
	if _, dup := g.reg.seen[key]; dup {
		g.reg.errs = append(g.reg.errs, protocol.NewValidationError(
			protocol.ErrorCodeDuplicateIdentifier,
			fmt.Sprintf("benchmark %q registered twice", id.String()),
			protocol.ErrDuplicateIdentifier))
		return g
	}
	g.reg.seen[key] = struct{}{}
	g.cases = append(g.cases, Case{ID: id, Fn: fn, SkipReason: skip})
	return g
}
