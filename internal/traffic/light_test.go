package traffic

import "testing"

func TestTrafficLight_PhaseTiming(t *testing.T) {
	const period = 4
	l := &TrafficLight{Period: period, Green: true}
	for tick := 1; tick < 3*period; tick++ {
		l.Step(tick)
		wantGreen := (tick/period)%2 == 0
		if l.Green != wantGreen {
			t.Fatalf("tick %d: expected green=%v, got %v", tick, wantGreen, l.Green)
		}
	}
}

func TestTrafficLight_TogglesOnlyOnMultiples(t *testing.T) {
	l := &TrafficLight{Period: 3, Green: false}
	toggles := 0
	for tick := 1; tick <= 30; tick++ {
		if l.Step(tick) {
			toggles++
			if tick%3 != 0 {
				t.Fatalf("toggled at tick %d", tick)
			}
		}
	}
	if toggles != 10 {
		t.Fatalf("expected 10 toggles, got %d", toggles)
	}
}

func TestLightController_Evaluate(t *testing.T) {
	w := mustWorld(t, 3, 1)
	_ = w.SetRoad(C(0, 0), Right)
	_ = w.SetRoad(C(1, 0), Right)
	red, _ := w.AddLight(C(1, 0), 5, false, nil)
	lc := NewLightController(w)

	if !lc.Evaluate(C(0, 0)) {
		t.Fatal("cell without a light must evaluate true")
	}
	if lc.Evaluate(C(1, 0)) {
		t.Fatal("red light must evaluate false")
	}
	red.Green = true
	if !lc.Evaluate(C(1, 0)) {
		t.Fatal("green light must evaluate true")
	}
}
