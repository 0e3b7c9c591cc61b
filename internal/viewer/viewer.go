// Package viewer draws a running traffic simulation in an ebiten window.
package viewer

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font/basicfont"

	"github.com/mirandaurban/retoTC2008B/internal/traffic"
)

// borderWidth is the pixel gap between the window edge and the grid.
const borderWidth = 24

// hudWidth is the width of the stats panel right of the grid.
const hudWidth = 300

// statusTicks is how many frames a status message stays on screen.
const statusTicks = 120

// speeds are the selectable sim multipliers; 0 is paused.
var speeds = []float64{0, 0.5, 1, 2, 4}

var (
	colBackground  = color.RGBA{R: 14, G: 14, B: 18, A: 255}
	colEmpty       = color.RGBA{R: 34, G: 40, B: 34, A: 255}
	colRoad        = color.RGBA{R: 70, G: 70, B: 78, A: 255}
	colObstacle    = color.RGBA{R: 110, G: 84, B: 60, A: 255}
	colDestination = color.RGBA{R: 60, G: 110, B: 190, A: 255}
	colGreen       = color.RGBA{R: 40, G: 200, B: 80, A: 255}
	colRed         = color.RGBA{R: 220, G: 50, B: 50, A: 255}
	colGrid        = color.RGBA{R: 0, G: 0, B: 0, A: 90}
	colText        = color.RGBA{R: 210, G: 220, B: 210, A: 255}
)

// stateColors paints cars by behaviour.
var stateColors = map[traffic.CarState]color.RGBA{
	traffic.StateFollowingRoute:      {R: 240, G: 240, B: 240, A: 255},
	traffic.StateRecalculatingRoute:  {R: 180, G: 120, B: 255, A: 255},
	traffic.StateExploring:           {R: 255, G: 170, B: 0, A: 255},
	traffic.StateWaitingTrafficLight: {R: 255, G: 90, B: 90, A: 255},
	traffic.StateWaitingCar:          {R: 255, G: 230, B: 60, A: 255},
	traffic.StateInDestination:       {R: 80, G: 160, B: 255, A: 255},
	traffic.StateStuck:               {R: 255, G: 0, B: 255, A: 255},
}

// Viewer implements ebiten.Game over a Simulation.
type Viewer struct {
	sim    *traffic.Simulation
	logger *log.Entry

	cellSize int
	gridW    int // grid pixel width
	gridH    int // grid pixel height
	width    int
	height   int

	face     *text.GoXFace
	showHUD  bool
	prevKeys map[ebiten.Key]bool

	// Simulation speed control.
	simSpeed  float64
	tickAccum float64

	status      string
	statusTimer int
}

// New sizes a viewer for sim with square cells of cellSize pixels.
func New(sim *traffic.Simulation, cellSize int, logger *log.Entry) *Viewer {
	if cellSize < 4 {
		cellSize = 4
	}
	w, h := sim.Size()
	v := &Viewer{
		sim:      sim,
		logger:   logger,
		cellSize: cellSize,
		gridW:    w * cellSize,
		gridH:    h * cellSize,
		face:     text.NewGoXFace(basicfont.Face7x13),
		showHUD:  true,
		prevKeys: map[ebiten.Key]bool{},
		simSpeed: 1,
	}
	v.width = v.gridW + borderWidth*2 + hudWidth
	v.height = max(v.gridH+borderWidth*2, 360)
	return v
}

// WindowSize returns the window size the viewer lays out for.
func (v *Viewer) WindowSize() (int, int) { return v.width, v.height }

// Speed returns the current multiplier.
func (v *Viewer) Speed() float64 { return v.simSpeed }

func (v *Viewer) Update() error {
	v.handleInput()
	if v.statusTimer > 0 {
		v.statusTimer--
	}
	if v.halted() {
		return nil
	}
	v.advance(v.simSpeed)
	return nil
}

// advance feeds speed into the tick accumulator and steps the sim for each
// whole tick collected.
func (v *Viewer) advance(speed float64) int {
	if speed <= 0 {
		return 0
	}
	v.tickAccum += speed
	n := 0
	for v.tickAccum >= 1.0 && !v.halted() {
		v.tickAccum -= 1.0
		v.sim.AdvanceOneTick()
		n++
	}
	return n
}

// halted reports whether the run's own stop rules say it is over.
func (v *Viewer) halted() bool {
	cfg := v.sim.Config()
	if cfg.MaxTicks > 0 && v.sim.Tick() >= cfg.MaxTicks {
		return true
	}
	return cfg.StopWhenDrained && v.sim.Drained()
}

// handleInput processes keypresses (edge-triggered).
func (v *Viewer) handleInput() {
	currentKeys := map[ebiten.Key]bool{}
	pressed := func(k ebiten.Key) bool {
		currentKeys[k] = ebiten.IsKeyPressed(k)
		return currentKeys[k] && !v.prevKeys[k]
	}

	if pressed(ebiten.KeyP) || pressed(ebiten.KeySpace) {
		v.togglePause()
	}
	if pressed(ebiten.KeyComma) {
		v.simSpeed = slower(v.simSpeed)
	}
	if pressed(ebiten.KeyPeriod) {
		v.simSpeed = faster(v.simSpeed)
	}
	// N: single step while paused.
	if pressed(ebiten.KeyN) && v.simSpeed == 0 && !v.halted() {
		v.sim.AdvanceOneTick()
	}
	if pressed(ebiten.KeyH) {
		v.showHUD = !v.showHUD
	}
	if pressed(ebiten.KeyC) {
		v.copyReport()
	}

	v.prevKeys = currentKeys
}

func (v *Viewer) togglePause() {
	if v.simSpeed > 0 {
		v.simSpeed = 0
	} else {
		v.simSpeed = 1
	}
}

// slower returns the next lower step in speeds.
func slower(cur float64) float64 {
	for i := len(speeds) - 1; i >= 0; i-- {
		if speeds[i] < cur {
			return speeds[i]
		}
	}
	return speeds[0]
}

// faster returns the next higher step in speeds.
func faster(cur float64) float64 {
	for _, s := range speeds {
		if s > cur {
			return s
		}
	}
	return speeds[len(speeds)-1]
}

func speedLabel(speed float64) string {
	switch speed {
	case 0:
		return "PAUSED"
	case 0.5:
		return "0.5x"
	default:
		return fmt.Sprintf("%.0fx", speed)
	}
}

func (v *Viewer) copyReport() {
	rep := v.sim.Reporter()
	if rep == nil {
		v.setStatus("no reporter attached")
		return
	}
	if err := clipboard.WriteAll(rep.WindowSummary().Format()); err != nil {
		v.logger.WithError(err).Warn("copy report")
		v.setStatus("clipboard unavailable")
		return
	}
	v.setStatus("report copied")
}

func (v *Viewer) setStatus(msg string) {
	v.status = msg
	v.statusTimer = statusTicks
}

// cellOrigin maps a grid coordinate to the top-left pixel of its cell.
// Grid y grows upwards, screen y grows downwards.
func (v *Viewer) cellOrigin(pos traffic.Coord) (float32, float32) {
	_, h := v.sim.Size()
	x := borderWidth + pos.X*v.cellSize
	y := borderWidth + (h-1-pos.Y)*v.cellSize
	return float32(x), float32(y)
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	screen.Fill(colBackground)
	v.drawGrid(screen)
	v.drawLights(screen)
	v.drawCars(screen)

	ox, oy := float32(borderWidth), float32(borderWidth)
	vector.StrokeRect(screen, ox-1, oy-1, float32(v.gridW)+2, float32(v.gridH)+2, 2.0,
		color.RGBA{R: 90, G: 90, B: 100, A: 255}, false)

	if v.showHUD {
		v.drawHUD(screen)
	}
}

func (v *Viewer) drawGrid(screen *ebiten.Image) {
	world := v.sim.World()
	cs := float32(v.cellSize)
	for y := 0; y < world.Height(); y++ {
		for x := 0; x < world.Width(); x++ {
			pos := traffic.C(x, y)
			sx, sy := v.cellOrigin(pos)
			col := colEmpty
			switch {
			case world.IsObstacle(pos):
				col = colObstacle
			case world.IsDestination(pos):
				col = colDestination
			case world.RoadAt(pos) != nil:
				col = colRoad
			}
			vector.FillRect(screen, sx, sy, cs, cs, col, false)
			vector.StrokeRect(screen, sx, sy, cs, cs, 1.0, colGrid, false)
			if r := world.RoadAt(pos); r != nil && v.cellSize >= 16 {
				v.drawArrows(screen, sx, sy, r)
			}
		}
	}
}

// drawArrows marks each legal exit with a short tick from the cell centre.
func (v *Viewer) drawArrows(screen *ebiten.Image, sx, sy float32, r *traffic.RoadMarking) {
	cs := float32(v.cellSize)
	cx, cy := sx+cs/2, sy+cs/2
	l := cs / 3
	for _, d := range r.Exits() {
		delta := d.Delta()
		ex := cx + float32(delta.X)*l
		ey := cy - float32(delta.Y)*l
		vector.StrokeLine(screen, cx, cy, ex, ey, 1.0, color.RGBA{R: 120, G: 120, B: 130, A: 255}, false)
	}
}

func (v *Viewer) drawLights(screen *ebiten.Image) {
	cs := float32(v.cellSize)
	for _, l := range v.sim.Lights() {
		sx, sy := v.cellOrigin(l.Pos)
		col := colRed
		if l.Green {
			col = colGreen
		}
		vector.StrokeRect(screen, sx+1, sy+1, cs-2, cs-2, 3.0, col, false)
	}
}

func (v *Viewer) drawCars(screen *ebiten.Image) {
	cs := float32(v.cellSize)
	for _, c := range v.sim.Cars() {
		sx, sy := v.cellOrigin(c.Pos)
		col, ok := stateColors[c.State]
		if !ok {
			col = colText
		}
		vector.FillCircle(screen, sx+cs/2, sy+cs/2, cs*0.3, col, true)
	}
}

func (v *Viewer) hudLines() []string {
	st := v.sim.Stats()
	lines := []string{
		fmt.Sprintf("tick %d  speed %s", st.Tick, speedLabel(v.simSpeed)),
		fmt.Sprintf("active %d  spawned %d", st.Active, st.Spawned),
		fmt.Sprintf("arrived %d  spawn fails %d", st.Arrived, st.SpawnFailures),
		"",
	}
	for _, s := range traffic.AllCarStates {
		lines = append(lines, fmt.Sprintf("  %-22s %d", s, st.ByState[s]))
	}
	if v.halted() {
		lines = append(lines, "", "run finished")
	}
	lines = append(lines, "",
		"P/Space pause  ,/. speed",
		"N step  C copy report",
		"H hide panel",
	)
	if v.statusTimer > 0 {
		lines = append(lines, "", v.status)
	}
	return lines
}

func (v *Viewer) drawHUD(screen *ebiten.Image) {
	const lineH = 16
	px := float32(v.gridW + borderWidth*2)
	py := float32(borderWidth)
	lines := v.hudLines()

	vector.FillRect(screen, px, py, hudWidth-borderWidth, float32(len(lines)*lineH+12),
		color.RGBA{R: 8, G: 10, B: 8, A: 220}, false)
	vector.StrokeRect(screen, px, py, hudWidth-borderWidth, float32(len(lines)*lineH+12),
		1.0, color.RGBA{R: 60, G: 90, B: 60, A: 200}, false)

	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(px)+8, float64(py)+6)
	op.ColorScale.ScaleWithColor(colText)
	op.LineSpacing = lineH
	text.Draw(screen, strings.Join(lines, "\n"), v.face, op)
}

func (v *Viewer) Layout(_, _ int) (int, int) {
	return v.width, v.height
}
