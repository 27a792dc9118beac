package clock

import "time"

// HostSource is a 64-bit nanosecond tick source for runs where the "device"
// is an ordinary host process (simulation runs, CI, the examples). It reads
// the monotonic clock relative to a fixed epoch so values start near zero.
type HostSource struct {
	epoch time.Time
}

var _ Source = (*HostSource)(nil)

func NewHostSource() *HostSource {
	return &HostSource{epoch: time.Now()}
}

func (s *HostSource) Now() Snapshot {
	return Snapshot(time.Since(s.epoch))
}

func (s *HostSource) Width() uint {
	return 64
}

// Frequency is 1 GHz: one tick per nanosecond.
func (s *HostSource) Frequency() uint64 {
	return 1e9
}
