package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telebench/telebench/internal/core/protocol"
)

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Group("sorting").
		Bench("std_sort", func(b *B) { b.Iter(func() {}) }).
		BenchValue("insertion", "n=64", func(b *B) { b.Iter(func() {}) })
	reg.Bench("hashing", func(b *B) { b.Iter(func() {}) })

	groups := reg.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "sorting", groups[0].Name())
	assert.Equal(t, "hashing", groups[1].Name())

	cases := groups[0].Cases()
	require.Len(t, cases, 2)
	assert.Equal(t, "std_sort", cases[0].ID.Function)
	assert.Equal(t, "insertion", cases[1].ID.Function)
	assert.Equal(t, "n=64", cases[1].ID.ValueStr)

	assert.Nil(t, reg.Validate())
}

func TestRegistryThroughputAppliesToLaterCases(t *testing.T) {
	reg := NewRegistry()
	g := reg.Group("codec")
	g.Bench("before", func(b *B) { b.Iter(func() {}) })
	g.Throughput(protocol.ThroughputBytes, 4096)
	g.Bench("after", func(b *B) { b.Iter(func() {}) })

	cases := g.Cases()
	require.Len(t, cases, 2)
	assert.Nil(t, cases[0].ID.Throughput)
	require.NotNil(t, cases[1].ID.Throughput)
	assert.Equal(t, protocol.ThroughputBytes, cases[1].ID.Throughput.Kind)
	assert.Equal(t, uint64(4096), cases[1].ID.Throughput.Amount)
}

func TestRegistryRejectsDuplicateIdentifiers(t *testing.T) {
	reg := NewRegistry()
	g := reg.Group("dup")
	g.Bench("same", func(b *B) { b.Iter(func() {}) })
	g.Bench("same", func(b *B) { b.Iter(func() {}) })

	verr := reg.Validate()
	require.NotNil(t, verr)
	assert.ErrorIs(t, verr, protocol.ErrDuplicateIdentifier)
}

func TestRegistryDistinctValuesAreNotDuplicates(t *testing.T) {
	reg := NewRegistry()
	g := reg.Group("param")
	g.BenchValue("sort", "n=16", func(b *B) { b.Iter(func() {}) })
	g.BenchValue("sort", "n=64", func(b *B) { b.Iter(func() {}) })

	assert.Nil(t, reg.Validate())
}

func TestRegistryValidatesConfig(t *testing.T) {
	reg := NewRegistry()
	reg.Bench("only", func(b *B) { b.Iter(func() {}) })

	cfg := protocol.DefaultConfig()
	cfg.SampleSize = MaxSampleCapacity + 100
	reg.SetConfig(cfg)

	verr := reg.Validate()
	require.NotNil(t, verr)
	assert.ErrorIs(t, verr, protocol.ErrSampleBufferExceeded)
}

func TestRegistrySkipCase(t *testing.T) {
	reg := NewRegistry()
	g := reg.Group("g")
	g.Skip("broken", "needs hardware FPU")

	cases := g.Cases()
	require.Len(t, cases, 1)
	assert.Equal(t, "needs hardware FPU", cases[0].SkipReason)
	assert.Nil(t, cases[0].Fn)
}
