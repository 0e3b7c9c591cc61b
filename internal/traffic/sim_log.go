package traffic

import (
	"fmt"
	"strings"
)

// SimLogEntry is one recorded event of a run.
type SimLogEntry struct {
	Tick     int
	Car      string  // label e.g. "C3", or "--" for global events
	Category string  // spawn, state, route, move, arrive, light
	Key      string  // specific event name within the category
	Value    string  // human-readable detail
	NumVal   float64 // optional numeric value for threshold checks
}

// String formats the entry as a fixed-width log line.
//
//	[T=042] C3   state     change           Following_route → Waiting_car
func (e SimLogEntry) String() string {
	return fmt.Sprintf("[T=%03d] %-4s %-9s %-16s %s",
		e.Tick, e.Car, e.Category, e.Key, e.Value)
}

// SimLog collects structured events during a run. It is unbounded and
// machine-readable; the headless runner and tests read it back.
type SimLog struct {
	entries []SimLogEntry
	verbose bool
}

// NewSimLog creates a SimLog. If verbose is true, per-move and per-toggle
// entries are also recorded.
func NewSimLog(verbose bool) *SimLog {
	return &SimLog{verbose: verbose}
}

// Add records a new entry.
func (sl *SimLog) Add(tick int, car, category, key, value string, numVal float64) {
	sl.entries = append(sl.entries, SimLogEntry{
		Tick:     tick,
		Car:      car,
		Category: category,
		Key:      key,
		Value:    value,
		NumVal:   numVal,
	})
}

// AddVerbose records an entry only when verbose mode is on.
func (sl *SimLog) AddVerbose(tick int, car, category, key, value string, numVal float64) {
	if !sl.verbose {
		return
	}
	sl.Add(tick, car, category, key, value, numVal)
}

// Entries returns all recorded entries.
func (sl *SimLog) Entries() []SimLogEntry {
	return sl.entries
}

// match reports whether e has the given category and key; empty matches any.
func (e SimLogEntry) match(category, key string) bool {
	return (category == "" || e.Category == category) && (key == "" || e.Key == key)
}

func (sl *SimLog) collect(keep func(SimLogEntry) bool) []SimLogEntry {
	var out []SimLogEntry
	for _, e := range sl.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Filter returns entries matching category and key. Pass "" for either to
// match anything.
func (sl *SimLog) Filter(category, key string) []SimLogEntry {
	return sl.collect(func(e SimLogEntry) bool { return e.match(category, key) })
}

// FilterCar returns entries for one car label.
func (sl *SimLog) FilterCar(label string) []SimLogEntry {
	return sl.collect(func(e SimLogEntry) bool { return e.Car == label })
}

// Window returns the entries recorded within radius ticks of tick, the
// context around an incident such as a car getting stuck.
func (sl *SimLog) Window(tick, radius int) []SimLogEntry {
	return sl.collect(func(e SimLogEntry) bool {
		return e.Tick >= tick-radius && e.Tick <= tick+radius
	})
}

// CountCategory returns how many entries match category and key.
func (sl *SimLog) CountCategory(category, key string) int {
	n := 0
	for _, e := range sl.entries {
		if e.match(category, key) {
			n++
		}
	}
	return n
}

// LastOf returns the most recent entry matching category and key.
func (sl *SimLog) LastOf(category, key string) (SimLogEntry, bool) {
	for i := len(sl.entries) - 1; i >= 0; i-- {
		if sl.entries[i].match(category, key) {
			return sl.entries[i], true
		}
	}
	return SimLogEntry{}, false
}

// HasEntry reports whether any entry matches category, key and contains
// valueSubstr.
func (sl *SimLog) HasEntry(category, key, valueSubstr string) bool {
	for _, e := range sl.entries {
		if e.match(category, key) && strings.Contains(e.Value, valueSubstr) {
			return true
		}
	}
	return false
}

// Format renders the whole log, one line per entry.
func (sl *SimLog) Format() string { return FormatEntries(sl.entries) }

// FormatEntries renders entries one per line.
func FormatEntries(entries []SimLogEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Summary returns a short human-readable summary of the run so far.
func (sl *SimLog) Summary(st Stats, cars []CarView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- Summary at T=%03d ---\n", st.Tick)
	fmt.Fprintf(&sb, "Cars: active=%d spawned=%d arrived=%d spawn_failures=%d\n",
		st.Active, st.Spawned, st.Arrived, st.SpawnFailures)

	sb.WriteString("States: ")
	for _, cs := range AllCarStates {
		if n := st.ByState[cs]; n > 0 {
			fmt.Fprintf(&sb, "%s=%d  ", cs, n)
		}
	}
	sb.WriteByte('\n')

	for _, c := range cars {
		if c.State.Waiting() || c.State == StateStuck {
			fmt.Fprintf(&sb, "%s at %s %s → %s\n", c.Label, c.Pos, c.State, c.Destination)
		}
	}
	fmt.Fprintf(&sb, "Events: replans=%d dead_ends=%d gave_up=%d\n",
		sl.CountCategory("route", "planned"), sl.CountCategory("route", "dead_end"),
		sl.CountCategory("route", "gave_up_waiting"))
	return sb.String()
}
