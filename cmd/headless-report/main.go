package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/mirandaurban/retoTC2008B/internal/archive"
	"github.com/mirandaurban/retoTC2008B/internal/citymap"
	"github.com/mirandaurban/retoTC2008B/internal/traffic"
)

type runStats struct {
	runIndex int
	seed     int64
	ticks    int

	spawned       int
	arrived       int
	active        int
	spawnFailures int

	firstSpawnTick   int
	firstArrivalTick int
	firstGiveUpTick  int
	firstStuckTick   int

	stateChanges int
	replans      int
	replanFails  int
	blocked      int
	gaveUp       int
	deadEnds     int
	trips        []float64

	finalStates   map[string]int
	windowSummary *traffic.WindowReport

	// Log lines around the first stuck car or give-up, when tracing.
	incidentTick  int
	incidentTrace []traffic.SimLogEntry
}

type options struct {
	runs     int
	ticks    int
	seedBase int64
	seedStep int64
	mapPath  string
	dictPath string
	cfgPath  string
	maxCars  int
	trace    int
	save     bool
}

func main() {
	parser := argparse.NewParser("headless-report", "Batch traffic runs with per-run and aggregate statistics")

	runs := parser.Int("r", "runs", &argparse.Options{Default: 5, Help: "number of headless simulation runs"})
	ticks := parser.Int("t", "ticks", &argparse.Options{Default: 1000, Help: "ticks per run"})
	seedBase := parser.Int("s", "seed-base", &argparse.Options{Default: 42, Help: "base RNG seed for run 1"})
	seedStep := parser.Int("S", "seed-step", &argparse.Options{Default: 1, Help: "seed increment between runs"})
	mapPath := parser.String("m", "map", &argparse.Options{Default: "maps/city_10x10.txt", Help: "city map file"})
	dictPath := parser.String("d", "dict", &argparse.Options{Default: "", Help: "symbol dictionary (YAML or JSON); built-in when empty"})
	cfgPath := parser.String("c", "config", &argparse.Options{Default: "", Help: "simulation config YAML"})
	maxCars := parser.Int("n", "max-cars", &argparse.Options{Default: 10, Help: "live car cap"})
	trace := parser.Int("T", "trace", &argparse.Options{Default: 0, Help: "print log lines within this many ticks of the first stuck car or give-up"})
	save := parser.Flag("w", "save", &argparse.Options{Help: "archive each run summary"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(2)
	}

	opts := options{
		runs:     *runs,
		ticks:    *ticks,
		seedBase: int64(*seedBase),
		seedStep: int64(*seedStep),
		mapPath:  *mapPath,
		dictPath: *dictPath,
		cfgPath:  *cfgPath,
		maxCars:  *maxCars,
		trace:    *trace,
		save:     *save,
	}
	if err := run(opts); err != nil {
		log.WithError(err).Error("headless report failed")
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.runs <= 0 {
		return fmt.Errorf("--runs must be > 0")
	}
	if opts.ticks <= 0 {
		return fmt.Errorf("--ticks must be > 0")
	}
	if opts.maxCars < 0 {
		return fmt.Errorf("--max-cars must be >= 0")
	}
	if opts.trace < 0 {
		return fmt.Errorf("--trace must be >= 0")
	}
	base := traffic.DefaultConfig()
	if opts.cfgPath != "" {
		cfg, err := traffic.LoadConfig(opts.cfgPath)
		if err != nil {
			return err
		}
		base = cfg
	}
	// Fail before the first run on a bad map.
	if _, err := citymap.Load(opts.mapPath, opts.dictPath); err != nil {
		return err
	}

	var store *archive.Archive
	if opts.save {
		a, err := archive.Open("traffic-headless-report")
		if err != nil {
			return err
		}
		store = a
	}

	fmt.Printf("=== Headless Traffic Report ===\n")
	fmt.Printf("map=%s runs=%d ticks=%d seed_base=%d seed_step=%d max_cars=%d\n\n",
		opts.mapPath, opts.runs, opts.ticks, opts.seedBase, opts.seedStep, opts.maxCars)

	all := make([]runStats, 0, opts.runs)
	for i := 0; i < opts.runs; i++ {
		seed := opts.seedBase + int64(i)*opts.seedStep
		rs, err := runCity(i+1, seed, opts, base)
		if err != nil {
			return fmt.Errorf("run %d: %w", i+1, err)
		}
		all = append(all, rs)
		printRun(rs)
		if store != nil {
			if err := store.Save(summarize(rs, opts.mapPath)); err != nil {
				return err
			}
		}
	}

	printAggregate(all)
	return nil
}

func runCity(runIndex int, seed int64, opts options, base traffic.Config) (runStats, error) {
	world, err := citymap.Load(opts.mapPath, opts.dictPath)
	if err != nil {
		return runStats{}, err
	}
	ts, err := traffic.NewTestSim(
		traffic.WithWorld(world),
		traffic.WithReporting(200),
		traffic.WithConfig(func(c *traffic.Config) {
			*c = base
			c.Seed = seed
			c.MaxCars = opts.maxCars
			c.MaxTicks = 0
			c.StopWhenDrained = false
			c.HeartbeatInterval = 0
			c.VerboseLog = opts.trace > 0
		}),
	)
	if err != nil {
		return runStats{}, err
	}
	ts.RunTicks(opts.ticks)
	return collect(runIndex, seed, ts, opts.trace), nil
}

// collect reads a finished run back out of its SimLog and stats. A positive
// trace keeps the log window around the first incident.
func collect(runIndex int, seed int64, ts *traffic.TestSim, trace int) runStats {
	entries := ts.SimLog.Entries()
	st := ts.Sim.Stats()

	finalStates := map[string]int{}
	for cs, n := range st.ByState {
		if n > 0 {
			finalStates[cs.String()] = n
		}
	}

	rs := runStats{
		runIndex:         runIndex,
		seed:             seed,
		ticks:            st.Tick,
		spawned:          st.Spawned,
		arrived:          st.Arrived,
		active:           st.Active,
		spawnFailures:    st.SpawnFailures,
		firstSpawnTick:   firstTick(entries, "spawn", "car", ""),
		firstArrivalTick: firstTick(entries, "arrive", "destination", ""),
		firstGiveUpTick:  firstTick(entries, "route", "gave_up_waiting", ""),
		firstStuckTick:   firstTick(entries, "state", "change", "→ Stuck"),
		stateChanges:     ts.SimLog.CountCategory("state", "change"),
		replans:          ts.SimLog.CountCategory("route", "planned"),
		replanFails:      ts.SimLog.CountCategory("route", "replan_failed"),
		blocked:          ts.SimLog.CountCategory("route", "blocked"),
		gaveUp:           ts.SimLog.CountCategory("route", "gave_up_waiting"),
		deadEnds:         ts.SimLog.CountCategory("route", "dead_end"),
		trips: lo.Map(ts.SimLog.Filter("arrive", "destination"), func(e traffic.SimLogEntry, _ int) float64 {
			return e.NumVal
		}),
		finalStates:   finalStates,
		windowSummary: ts.Reporter.WindowSummary(),
		incidentTick:  -1,
	}
	if trace > 0 {
		rs.incidentTick = earliest(rs.firstStuckTick, rs.firstGiveUpTick)
		if rs.incidentTick >= 0 {
			rs.incidentTrace = ts.SimLog.Window(rs.incidentTick, trace)
		}
	}
	return rs
}

// earliest returns the smallest non-negative tick, or -1.
func earliest(ticks ...int) int {
	out := -1
	for _, t := range ticks {
		if t >= 0 && (out < 0 || t < out) {
			out = t
		}
	}
	return out
}

func firstTick(entries []traffic.SimLogEntry, category, key, contains string) int {
	for _, e := range entries {
		if e.Category != category || e.Key != key {
			continue
		}
		if contains == "" || strings.Contains(e.Value, contains) {
			return e.Tick
		}
	}
	return -1
}

func (rs runStats) avgTrip() float64 {
	if len(rs.trips) == 0 {
		return 0
	}
	return lo.Sum(rs.trips) / float64(len(rs.trips))
}

func summarize(rs runStats, mapPath string) archive.RunSummary {
	s := archive.RunSummary{
		Key:           fmt.Sprintf("seed-%d-ticks-%d", rs.seed, rs.ticks),
		Map:           mapPath,
		Seed:          rs.seed,
		Ticks:         rs.ticks,
		Spawned:       rs.spawned,
		Arrived:       rs.arrived,
		Active:        rs.active,
		SpawnFailures: rs.spawnFailures,
		GaveUp:        rs.gaveUp,
		AvgTrip:       rs.avgTrip(),
		States:        rs.finalStates,
	}
	if rs.windowSummary != nil {
		s.Throughput = rs.windowSummary.Throughput
	}
	return s
}

func printRun(rs runStats) {
	fmt.Printf("--- Run %d (seed=%d) ---\n", rs.runIndex, rs.seed)
	fmt.Printf("population: spawned=%d arrived=%d active=%d spawn_failures=%d\n",
		rs.spawned, rs.arrived, rs.active, rs.spawnFailures)
	fmt.Printf("phase_markers: first_spawn=%d first_arrival=%d first_give_up=%d first_stuck=%d\n",
		rs.firstSpawnTick, rs.firstArrivalTick, rs.firstGiveUpTick, rs.firstStuckTick)
	fmt.Printf("event_totals: state_change=%d planned=%d replan_failed=%d blocked=%d gave_up_waiting=%d dead_end=%d\n",
		rs.stateChanges, rs.replans, rs.replanFails, rs.blocked, rs.gaveUp, rs.deadEnds)
	fmt.Printf("trip_ticks: avg=%.1f trips=%d\n", rs.avgTrip(), len(rs.trips))
	fmt.Printf("final_states: %s\n", joinCounts(rs.finalStates))
	if len(rs.incidentTrace) > 0 {
		fmt.Printf("incident_trace (T=%d):\n%s", rs.incidentTick, traffic.FormatEntries(rs.incidentTrace))
	}
	if rs.windowSummary != nil {
		fmt.Printf("window_samples=%d window_tick_range=%d..%d\n",
			rs.windowSummary.SampleCount, rs.windowSummary.FromTick, rs.windowSummary.ToTick)
		fmt.Printf("window_avg: active=%.1f waiting_car=%.1f waiting_light=%.1f stuck=%.1f throughput_per_100=%.1f\n",
			rs.windowSummary.AvgActive,
			rs.windowSummary.AvgWaitingCar,
			rs.windowSummary.AvgWaitingLight,
			rs.windowSummary.AvgStuck,
			rs.windowSummary.Throughput,
		)
	}
	fmt.Println()
}

func printAggregate(all []runStats) {
	totalSpawned := 0
	totalArrived := 0
	totalFailures := 0
	totalGaveUp := 0
	totalDeadEnds := 0
	totalState := 0
	var allTrips []float64

	arrivalTicks := make([]int, 0, len(all))
	giveUpTicks := make([]int, 0, len(all))
	stuckTicks := make([]int, 0, len(all))

	for _, rs := range all {
		totalSpawned += rs.spawned
		totalArrived += rs.arrived
		totalFailures += rs.spawnFailures
		totalGaveUp += rs.gaveUp
		totalDeadEnds += rs.deadEnds
		totalState += rs.stateChanges
		allTrips = append(allTrips, rs.trips...)
		if rs.firstArrivalTick >= 0 {
			arrivalTicks = append(arrivalTicks, rs.firstArrivalTick)
		}
		if rs.firstGiveUpTick >= 0 {
			giveUpTicks = append(giveUpTicks, rs.firstGiveUpTick)
		}
		if rs.firstStuckTick >= 0 {
			stuckTicks = append(stuckTicks, rs.firstStuckTick)
		}
	}

	fmt.Println("=== Aggregate ===")
	fmt.Printf("runs=%d\n", len(all))
	fmt.Printf("avg_per_run: spawned=%.1f arrived=%.1f spawn_failures=%.1f gave_up_waiting=%.1f dead_end=%.1f state_change=%.1f\n",
		avg(totalSpawned, len(all)), avg(totalArrived, len(all)), avg(totalFailures, len(all)),
		avg(totalGaveUp, len(all)), avg(totalDeadEnds, len(all)), avg(totalState, len(all)))
	fmt.Printf("arrival_rate=%s\n", ratio(totalArrived, totalSpawned))
	tripAvg := 0.0
	if len(allTrips) > 0 {
		tripAvg = lo.Sum(allTrips) / float64(len(allTrips))
	}
	fmt.Printf("trip_ticks: avg=%.1f trips=%d\n", tripAvg, len(allTrips))
	fmt.Printf("phase_marker_avg_ticks: first_arrival=%s first_give_up=%s first_stuck=%s\n",
		avgTickString(arrivalTicks), avgTickString(giveUpTicks), avgTickString(stuckTicks))
}

func avg(sum int, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func ratio(num, den int) string {
	if den == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(num)/float64(den)*100)
}

func avgTickString(vals []int) string {
	if len(vals) == 0 {
		return "n/a"
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return fmt.Sprintf("%.1f", float64(sum)/float64(len(vals)))
}

func joinCounts(m map[string]int) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := lo.Map(keys, func(k string, _ int) string {
		return fmt.Sprintf("%s=%d", k, m[k])
	})
	return strings.Join(parts, " ")
}
