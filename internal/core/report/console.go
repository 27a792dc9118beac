package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/telebench/telebench/internal/core/protocol"
	"github.com/telebench/telebench/pkg/sequence"
)

const (
	labelWidth   = 24
	slowestShown = 5
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4EC9B0"))
	styleGroup  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#569CD6"))
	styleResult = lipgloss.NewStyle().Foreground(lipgloss.Color("#4EC9B0"))
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7BA7D"))
)

// Console renders run events as human-readable lines. Output is styled only
// when the writer is a terminal; piped output stays plain.
type Console struct {
	w         io.Writer
	styled    bool
	clock     protocol.ClockInfo
	startedAt time.Time
	completed int
	skipped   int
	slowest   *sequence.PriorityQueue[slowEntry]
}

type slowEntry struct {
	id        string
	meanTicks float64
}

var _ Sink = (*Console)(nil)

func NewConsole(w io.Writer) *Console {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Console{
		w:       w,
		styled:  styled,
		slowest: sequence.NewPriorityQueue[slowEntry](),
	}
}

func (c *Console) paint(st lipgloss.Style, s string) string {
	if !c.styled {
		return s
	}
	return st.Render(s)
}

func (c *Console) printf(format string, args ...any) error {
	_, err := fmt.Fprintf(c.w, format, args...)
	return err
}

func (c *Console) RunStarted(hello protocol.Hello) error {
	c.clock = hello.Clock
	c.startedAt = time.Now()
	if err := c.printf("%s run %s\n", c.paint(styleHeader, "telebench"), hello.Nonce); err != nil {
		return err
	}
	return c.printf("%s %s %s, counter %d-bit @ %s\n",
		c.paint(styleMuted, "runner:"),
		hello.Runner.Name, hello.Runner.Version,
		hello.Clock.WidthBits, formatFrequency(hello.Clock.FrequencyHz))
}

func (c *Console) GroupStarted(name string) error {
	return c.printf("\n%s\n", c.paint(styleGroup, name))
}

func (c *Console) BenchmarkStarted(protocol.Identifier) error {
	return nil
}

func (c *Console) Progress(id protocol.Identifier, phase Phase) error {
	label := benchLabel(id)
	switch phase.Kind {
	case PhaseWarmUp:
		return c.printf("  %-*s %s\n", labelWidth, label, c.paint(styleMuted, "warming up"))
	case PhaseMeasuring:
		detail := fmt.Sprintf("collecting %d samples in estimated %s",
			phase.SampleCount, c.fmtTicks(float64(phase.EstimatedTicks)))
		return c.printf("  %-*s %s\n", labelWidth, label, c.paint(styleMuted, detail))
	}
	return nil
}

func (c *Console) MeasurementComplete(rep Report) error {
	c.completed++
	sum := Summarize(rep.Values, rep.ItersPerSample)
	c.slowest.Enqueue(slowEntry{id: rep.ID.String(), meanTicks: sum.Mean}, int64(sum.Mean*1000))

	timeLine := fmt.Sprintf("time: [%s %s %s] ± %s",
		c.fmtTicks(sum.Min), c.fmtTicks(sum.Mean), c.fmtTicks(sum.Max), c.fmtTicks(sum.StdDev))
	if err := c.printf("  %-*s %s\n", labelWidth, benchLabel(rep.ID), c.paint(styleResult, timeLine)); err != nil {
		return err
	}

	if tp := rep.ID.Throughput; tp != nil && c.clock.FrequencyHz > 0 && sum.Mean > 0 {
		// Slowest rate first, mirroring the time line's ordering.
		rateLine := fmt.Sprintf("thrpt: [%s %s %s]",
			c.fmtRate(*tp, sum.Max), c.fmtRate(*tp, sum.Mean), c.fmtRate(*tp, sum.Min))
		return c.printf("  %-*s %s\n", labelWidth, "", c.paint(styleMuted, rateLine))
	}
	return nil
}

func (c *Console) BenchmarkSkipped(id protocol.Identifier, reason string) error {
	c.skipped++
	return c.printf("  %-*s %s\n", labelWidth, benchLabel(id),
		c.paint(styleWarn, "skipped ("+reason+")"))
}

func (c *Console) GroupFinished(string) error {
	return nil
}

func (c *Console) RunFinished() error {
	elapsed := time.Since(c.startedAt).Round(time.Millisecond)
	err := c.printf("\n%s %d measured, %d skipped in %s\n",
		c.paint(styleHeader, "done:"), c.completed, c.skipped, elapsed)
	if err != nil {
		return err
	}

	if c.slowest.Len() < 2 {
		return nil
	}
	entries := make([]slowEntry, 0, c.slowest.Len())
	for {
		e, ok := c.slowest.Dequeue()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	if err := c.printf("%s\n", c.paint(styleMuted, "slowest per iteration:")); err != nil {
		return err
	}
	for _, e := range sequence.From(entries).Take(slowestShown).Collect() {
		if err := c.printf("  %-*s %s\n", labelWidth, e.id, c.fmtTicks(e.meanTicks)); err != nil {
			return err
		}
	}
	return nil
}

// benchLabel names a benchmark within its group header.
func benchLabel(id protocol.Identifier) string {
	label := id.Function
	if id.ValueStr != "" {
		if label != "" {
			label += "/" + id.ValueStr
		} else {
			label = id.ValueStr
		}
	}
	if label == "" {
		label = id.Group
	}
	return label
}

// fmtTicks renders a tick quantity as wall time when the clock frequency is
// known, raw ticks otherwise.
func (c *Console) fmtTicks(ticks float64) string {
	if c.clock.FrequencyHz == 0 {
		return shortFloat(ticks) + " ticks"
	}
	ns := ticks / float64(c.clock.FrequencyHz) * 1e9
	return formatTime(ns)
}

func (c *Console) fmtRate(tp protocol.Throughput, perIterTicks float64) string {
	sec := perIterTicks / float64(c.clock.FrequencyHz)
	if sec <= 0 {
		return "inf"
	}
	perSec := float64(tp.Amount) / sec
	if tp.Kind == protocol.ThroughputBytes {
		switch {
		case perSec < 1024:
			return shortFloat(perSec) + " B/s"
		case perSec < 1024*1024:
			return shortFloat(perSec/1024) + " KiB/s"
		case perSec < 1024*1024*1024:
			return shortFloat(perSec/(1024*1024)) + " MiB/s"
		default:
			return shortFloat(perSec/(1024*1024*1024)) + " GiB/s"
		}
	}
	switch {
	case perSec < 1e3:
		return shortFloat(perSec) + " elem/s"
	case perSec < 1e6:
		return shortFloat(perSec/1e3) + " Kelem/s"
	case perSec < 1e9:
		return shortFloat(perSec/1e6) + " Melem/s"
	default:
		return shortFloat(perSec/1e9) + " Gelem/s"
	}
}

func formatTime(ns float64) string {
	switch {
	case ns < 1:
		return shortFloat(ns*1e3) + " ps"
	case ns < 1e3:
		return shortFloat(ns) + " ns"
	case ns < 1e6:
		return shortFloat(ns/1e3) + " µs"
	case ns < 1e9:
		return shortFloat(ns/1e6) + " ms"
	default:
		return shortFloat(ns/1e9) + " s"
	}
}

func formatFrequency(hz uint64) string {
	f := float64(hz)
	switch {
	case f >= 1e9:
		return shortFloat(f/1e9) + " GHz"
	case f >= 1e6:
		return shortFloat(f/1e6) + " MHz"
	case f >= 1e3:
		return shortFloat(f/1e3) + " kHz"
	default:
		return shortFloat(f) + " Hz"
	}
}

// shortFloat keeps roughly four significant digits across magnitudes.
func shortFloat(n float64) string {
	switch {
	case n < 10:
		return fmt.Sprintf("%.4f", n)
	case n < 100:
		return fmt.Sprintf("%.3f", n)
	case n < 1000:
		return fmt.Sprintf("%.2f", n)
	case n < 10000:
		return fmt.Sprintf("%.1f", n)
	default:
		return fmt.Sprintf("%.0f", n)
	}
}
