package traffic

import (
	"fmt"
	"strings"
)

// reportWindowTicks is the default sliding window for recent-flow reports.
const reportWindowTicks = 200

// SimReport is a snapshot of the population at one tick.
type SimReport struct {
	Tick          int
	Active        int
	Spawned       int
	Arrived       int
	SpawnFailures int
	States        map[CarState]int
}

// SimReporter collects periodic reports from the simulation and can produce
// summaries over sliding time windows.
type SimReporter struct {
	history     []SimReport
	windowTicks int
}

// NewSimReporter creates a reporter with the given window size.
func NewSimReporter(windowTicks int) *SimReporter {
	if windowTicks <= 0 {
		windowTicks = reportWindowTicks
	}
	return &SimReporter{windowTicks: windowTicks}
}

// Collect records a snapshot of st.
func (r *SimReporter) Collect(st Stats) {
	rpt := SimReport{
		Tick:          st.Tick,
		Active:        st.Active,
		Spawned:       st.Spawned,
		Arrived:       st.Arrived,
		SpawnFailures: st.SpawnFailures,
		States:        make(map[CarState]int, len(st.ByState)),
	}
	for k, v := range st.ByState {
		rpt.States[k] = v
	}
	r.history = append(r.history, rpt)
}

// Latest returns the most recent report, or nil.
func (r *SimReporter) Latest() *SimReport {
	if len(r.history) == 0 {
		return nil
	}
	return &r.history[len(r.history)-1]
}

// History returns every collected report, oldest first.
func (r *SimReporter) History() []SimReport {
	return r.history
}

// WindowReport is an aggregated summary over a time window.
type WindowReport struct {
	FromTick, ToTick int
	SampleCount      int

	// Share of car-samples spent in each state (0-100).
	StatePct map[CarState]float64

	AvgActive       float64
	AvgWaitingCar   float64
	AvgWaitingLight float64
	AvgStuck        float64

	// Arrivals between the first and last sample, scaled per 100 ticks.
	ArrivedInWindow int
	Throughput      float64
}

// WindowSummary aggregates the reports inside the trailing window.
func (r *SimReporter) WindowSummary() *WindowReport {
	latest := r.Latest()
	if latest == nil {
		return nil
	}
	cutoff := latest.Tick - r.windowTicks
	var window []SimReport
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].Tick < cutoff {
			break
		}
		window = append(window, r.history[i])
	}

	n := float64(len(window))
	oldest := window[len(window)-1]
	wr := &WindowReport{
		FromTick:        oldest.Tick,
		ToTick:          latest.Tick,
		SampleCount:     len(window),
		StatePct:        make(map[CarState]float64),
		ArrivedInWindow: latest.Arrived - oldest.Arrived,
	}

	stateTotal := make(map[CarState]float64)
	var total float64
	for _, rpt := range window {
		for s, c := range rpt.States {
			stateTotal[s] += float64(c)
			total += float64(c)
		}
		wr.AvgActive += float64(rpt.Active)
		wr.AvgWaitingCar += float64(rpt.States[StateWaitingCar])
		wr.AvgWaitingLight += float64(rpt.States[StateWaitingTrafficLight])
		wr.AvgStuck += float64(rpt.States[StateStuck])
	}
	if total > 0 {
		for s, c := range stateTotal {
			wr.StatePct[s] = c / total * 100
		}
	}
	wr.AvgActive /= n
	wr.AvgWaitingCar /= n
	wr.AvgWaitingLight /= n
	wr.AvgStuck /= n
	if span := wr.ToTick - wr.FromTick; span > 0 {
		wr.Throughput = float64(wr.ArrivedInWindow) / float64(span) * 100
	}
	return wr
}

// Format returns a human-readable multi-line string of the window summary.
func (wr *WindowReport) Format() string {
	if wr == nil {
		return "No data collected yet.\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Traffic Report (T=%d..%d, %d samples) ===\n",
		wr.FromTick, wr.ToTick, wr.SampleCount)

	sb.WriteString("\n--- State Distribution ---\n")
	for _, s := range AllCarStates {
		if pct, ok := wr.StatePct[s]; ok && pct > 0.5 {
			fmt.Fprintf(&sb, "  %-22s %5.1f%%\n", s, pct)
		}
	}

	sb.WriteString("\n--- Flow ---\n")
	fmt.Fprintf(&sb, "  active=%.1f  waiting_car=%.1f  waiting_light=%.1f  stuck=%.1f\n",
		wr.AvgActive, wr.AvgWaitingCar, wr.AvgWaitingLight, wr.AvgStuck)
	fmt.Fprintf(&sb, "  arrived=%d  throughput=%.2f/100 ticks\n", wr.ArrivedInWindow, wr.Throughput)
	return sb.String()
}

// FormatLatest returns a compact one-snapshot summary.
func (r *SimReporter) FormatLatest() string {
	rpt := r.Latest()
	if rpt == nil {
		return "No snapshot yet.\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- Snapshot T=%d ---\n", rpt.Tick)
	fmt.Fprintf(&sb, "active=%d spawned=%d arrived=%d spawn_failures=%d\n",
		rpt.Active, rpt.Spawned, rpt.Arrived, rpt.SpawnFailures)
	for _, s := range AllCarStates {
		if c := rpt.States[s]; c > 0 {
			fmt.Fprintf(&sb, "%s=%d ", s, c)
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}
