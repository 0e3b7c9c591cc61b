package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Controller registers a group of routes.
type Controller interface {
	Register(*gin.RouterGroup)
}

// Router manages the HTTP server and its controllers.
type Router struct {
	addr        string
	baseURL     string
	corsOrigin  string
	controllers []Controller
}

// Config holds configuration settings for creating a new Router instance.
type Config struct {
	Addr        string // Address to listen on
	BaseURL     string // Base URL for API routes
	CORSOrigin  string // Allowed origin, "*" for any
	Controllers []Controller
}

// NewRouter creates a new Router instance with the given configuration.
func NewRouter(config Config) *Router {
	return &Router{
		addr:        config.Addr,
		baseURL:     config.BaseURL,
		corsOrigin:  config.CORSOrigin,
		controllers: config.Controllers,
	}
}

// Handler builds the gin engine with every controller mounted.
func (r *Router) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), CORS(r.corsOrigin))

	api := router.Group(r.baseURL)
	for _, c := range r.controllers {
		c.Register(api)
	}
	return router
}

// Server returns an http.Server for the router's address.
func (r *Router) Server() *http.Server {
	return &http.Server{Addr: r.addr, Handler: r.Handler()}
}
