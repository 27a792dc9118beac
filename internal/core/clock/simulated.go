package clock

// SimulatedSource is a deterministic, scripted counter for tests. The test
// owns time: Advance moves the counter, ReadCost simulates the overhead of
// reading the counter itself, and narrow widths reproduce hardware timers
// such as a 24-bit SysTick.
type SimulatedSource struct {
	width    uint
	freq     uint64
	ticks    uint64
	readCost uint64
}

var _ Source = (*SimulatedSource)(nil)

func NewSimulatedSource(width uint, freq uint64) *SimulatedSource {
	return &SimulatedSource{width: width, freq: freq}
}

// WithReadCost makes every Now call advance the counter by cost ticks,
// modelling the read overhead of a real timer register.
func (s *SimulatedSource) WithReadCost(cost uint64) *SimulatedSource {
	s.readCost = cost
	return s
}

func (s *SimulatedSource) Now() Snapshot {
	s.ticks += s.readCost
	return Snapshot(s.ticks)
}

func (s *SimulatedSource) Width() uint {
	return s.width
}

func (s *SimulatedSource) Frequency() uint64 {
	return s.freq
}

// Advance moves the counter forward. Benchmark closures under test call this
// to model a fixed per-invocation cost.
func (s *SimulatedSource) Advance(ticks uint64) {
	s.ticks += ticks
}

// Set forces an absolute counter value, for wraparound cases.
func (s *SimulatedSource) Set(ticks uint64) {
	s.ticks = ticks
}
