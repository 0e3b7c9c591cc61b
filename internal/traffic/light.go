package traffic

// TrafficLight is an independent two-phase oscillator bound to one cell.
type TrafficLight struct {
	ID     int
	Pos    Coord
	Green  bool
	Period int
	// Governing is the approach heading the light was declared for, if any.
	Governing *Direction
}

// Step toggles the phase on every tick that is a multiple of the period.
func (l *TrafficLight) Step(tick int) bool {
	if l.Period <= 0 || tick%l.Period != 0 {
		return false
	}
	l.Green = !l.Green
	return true
}

// Phase returns "green" or "red".
func (l *TrafficLight) Phase() string {
	if l.Green {
		return "green"
	}
	return "red"
}

// LightCosts sets the route surcharge applied to each endpoint of an edge that
// touches a light. A light is short when its period is at most ShortPeriodMax.
type LightCosts struct {
	ShortPeriodMax int `yaml:"short_period_max"`
	Short          int `yaml:"short"`
	Long           int `yaml:"long"`
}

// DefaultLightCosts returns the stock surcharges.
func DefaultLightCosts() LightCosts {
	return LightCosts{ShortPeriodMax: 10, Short: 3, Long: 5}
}

func (lc LightCosts) surcharge(l *TrafficLight) int {
	if l == nil {
		return 0
	}
	if l.Period <= lc.ShortPeriodMax {
		return lc.Short
	}
	return lc.Long
}

// LightController steps every light and answers phase queries for cells.
type LightController struct {
	world *GridWorld
}

// NewLightController binds a controller to the world's lights.
func NewLightController(world *GridWorld) *LightController {
	return &LightController{world: world}
}

// Lights returns the lights in load order.
func (lc *LightController) Lights() []*TrafficLight { return lc.world.Lights() }

// Evaluate is true when pos has no light or its light is green.
func (lc *LightController) Evaluate(pos Coord) bool {
	l := lc.world.LightAt(pos)
	return l == nil || l.Green
}
