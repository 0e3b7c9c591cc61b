package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/mirandaurban/retoTC2008B/internal/api"
	"github.com/mirandaurban/retoTC2008B/internal/api/simulation"
	"github.com/mirandaurban/retoTC2008B/internal/citymap"
	"github.com/mirandaurban/retoTC2008B/internal/config"
	"github.com/mirandaurban/retoTC2008B/internal/service"
	"github.com/mirandaurban/retoTC2008B/internal/traffic"
)

func main() {
	logger := log.StandardLogger()

	envs, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load environment")
	}
	if err := envs.ConfigureLogger(logger); err != nil {
		logger.WithError(err).Fatal("configure logging")
	}
	gin.SetMode(envs.GinMode)

	simCfg, err := envs.Simulation()
	if err != nil {
		logger.WithError(err).Fatal("load simulation config")
	}

	load := func() (*traffic.GridWorld, error) {
		return citymap.Load(envs.MapFile, envs.DictFile)
	}
	// Fail at startup rather than on the first /init.
	if _, err := load(); err != nil {
		logger.WithError(err).Fatal("load city map")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entry := log.NewEntry(logger)
	hub := service.NewHub(entry.WithField("component", "ws"))
	go hub.Run(ctx)

	svc := service.NewSimulationService(load, simCfg, entry.WithField("component", "sim"), hub)
	ctrl := simulation.NewController(svc, hub, service.InitParams{NAgents: simCfg.MaxCars}, entry.WithField("component", "api"))

	router := api.NewRouter(api.Config{
		Addr:        envs.Addr(),
		CORSOrigin:  envs.CORSOrigin,
		Controllers: []api.Controller{ctrl},
	})
	srv := router.Server()

	go func() {
		logger.WithFields(log.Fields{"addr": srv.Addr, "map": envs.MapFile}).Info("traffic server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
	logger.Info("server stopped")
}
