// Package simulation exposes the traffic run over HTTP and websockets.
package simulation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/mirandaurban/retoTC2008B/internal/service"
	"github.com/mirandaurban/retoTC2008B/internal/traffic"
)

// Simulator is what the controller needs from the service layer.
type Simulator interface {
	Init(p service.InitParams) (service.RunInfo, error)
	Step() (int, error)
	Cars() ([]service.Position, error)
	TrafficLights() ([]service.Position, error)
	Cells(kind traffic.OccupantKind) ([]service.Position, error)
	Stats() (service.StatsView, error)
	Report() (string, error)
	Snapshot() (service.Snapshot, error)
}

// Subscriber attaches websocket connections to the tick stream.
type Subscriber interface {
	Attach(conn *websocket.Conn, first []byte)
}

// Controller handles the simulation routes.
type Controller struct {
	sim      Simulator
	hub      Subscriber
	upgrader websocket.Upgrader
	logger   *log.Entry

	mu       sync.Mutex
	defaults service.InitParams
}

// NewController creates a controller. defaults are used by GET /init and
// by POST /init fields left out of the body.
func NewController(sim Simulator, hub Subscriber, defaults service.InitParams, logger *log.Entry) *Controller {
	return &Controller{
		sim:      sim,
		hub:      hub,
		logger:   logger,
		defaults: defaults,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Register mounts the routes the web client calls.
func (c *Controller) Register(route *gin.RouterGroup) {
	route.GET("/init", c.initModel)
	route.POST("/init", c.initModel)
	route.GET("/getCars", c.getCars)
	route.GET("/getTrafficLights", c.getTrafficLights)
	route.GET("/getObstacles", c.cells(traffic.OccupantObstacle))
	route.GET("/getRoad", c.cells(traffic.OccupantRoad))
	route.GET("/getDestinations", c.cells(traffic.OccupantDestination))
	route.GET("/update", c.update)
	route.GET("/stats", c.stats)
	route.GET("/report", c.report)
	route.GET("/ws", c.stream)
}

// fail maps service errors onto status codes.
func (c *Controller) fail(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotInitialized):
		status = http.StatusConflict
	case errors.Is(err, traffic.ErrMalformedLayout):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		c.logger.WithError(err).WithField("path", ctx.FullPath()).Error("request failed")
	}
	ctx.JSON(status, gin.H{"message": err.Error()})
}

func (c *Controller) initModel(ctx *gin.Context) {
	c.mu.Lock()
	params := c.defaults
	c.mu.Unlock()
	if ctx.Request.Method == http.MethodPost {
		var request InitRequest
		if err := ctx.ShouldBindJSON(&request); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("Error initializing the model: %v", err)})
			return
		}
		params = service.InitParams{
			NAgents: *request.NAgents,
			Width:   request.Width,
			Height:  request.Height,
			Seed:    request.Seed,
		}
		c.mu.Lock()
		c.defaults = params
		c.mu.Unlock()
	}

	info, err := c.sim.Init(params)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.logger.WithFields(log.Fields{
		"run":     info.RunID,
		"nagents": params.NAgents,
		"seed":    info.Seed,
	}).Info("model initiated")
	ctx.JSON(http.StatusOK, InitResponse{
		Message: fmt.Sprintf("Parameters received, model initiated.\nSize: %dx%d", info.Width, info.Height),
		RunID:   info.RunID.String(),
		Seed:    info.Seed,
	})
}

func (c *Controller) positions(ctx *gin.Context, ps []service.Position, err error) {
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, PositionsResponse{Positions: ps})
}

func (c *Controller) getCars(ctx *gin.Context) {
	ps, err := c.sim.Cars()
	c.positions(ctx, ps, err)
}

func (c *Controller) getTrafficLights(ctx *gin.Context) {
	ps, err := c.sim.TrafficLights()
	c.positions(ctx, ps, err)
}

func (c *Controller) cells(kind traffic.OccupantKind) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ps, err := c.sim.Cells(kind)
		c.positions(ctx, ps, err)
	}
}

func (c *Controller) update(ctx *gin.Context) {
	tick, err := c.sim.Step()
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, UpdateResponse{
		Message:     fmt.Sprintf("Model updated to step %d.", tick),
		CurrentStep: tick,
	})
}

func (c *Controller) stats(ctx *gin.Context) {
	st, err := c.sim.Stats()
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, st)
}

func (c *Controller) report(ctx *gin.Context) {
	text, err := c.sim.Report()
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.String(http.StatusOK, text)
}

// stream upgrades to a websocket that receives the current frame and then
// one frame per tick.
func (c *Controller) stream(ctx *gin.Context) {
	var first []byte
	if snap, err := c.sim.Snapshot(); err == nil {
		first, _ = json.Marshal(snap)
	}
	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.logger.WithError(err).Debug("ws upgrade failed")
		return
	}
	c.hub.Attach(conn, first)
}
