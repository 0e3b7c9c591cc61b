package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/hajimehoshi/ebiten/v2"
	log "github.com/sirupsen/logrus"

	"github.com/mirandaurban/retoTC2008B/internal/citymap"
	"github.com/mirandaurban/retoTC2008B/internal/config"
	"github.com/mirandaurban/retoTC2008B/internal/traffic"
	"github.com/mirandaurban/retoTC2008B/internal/viewer"
)

func main() {
	parser := argparse.NewParser("viewer", "Watch the traffic simulation on a city map")
	mapPath := parser.String("m", "map", &argparse.Options{Help: "City map file (defaults to MAP_FILE)"})
	seed := parser.Int("s", "seed", &argparse.Options{Default: -1, Help: "RNG seed, -1 keeps the configured one"})
	maxCars := parser.Int("n", "max-cars", &argparse.Options{Default: 0, Help: "Live car cap, 0 keeps the configured one"})
	cellSize := parser.Int("z", "cell-size", &argparse.Options{Default: 48, Help: "Cell size in pixels"})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger := log.StandardLogger()
	envs, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load environment")
	}
	if err := envs.ConfigureLogger(logger); err != nil {
		logger.WithError(err).Fatal("configure logging")
	}
	if *mapPath != "" {
		envs.MapFile = *mapPath
	}

	cfg, err := envs.Simulation()
	if err != nil {
		logger.WithError(err).Fatal("load simulation config")
	}
	if *seed >= 0 {
		cfg.Seed = int64(*seed)
	}
	if *maxCars > 0 {
		cfg.MaxCars = *maxCars
	}
	// The window decides when to stop.
	cfg.MaxTicks = 0

	world, err := citymap.Load(envs.MapFile, envs.DictFile)
	if err != nil {
		logger.WithError(err).Fatal("load city map")
	}
	entry := log.NewEntry(logger).WithField("component", "viewer")
	sim, err := traffic.New(world, cfg,
		traffic.WithLogger(entry),
		traffic.WithReporter(traffic.NewSimReporter(500)),
	)
	if err != nil {
		logger.WithError(err).Fatal("create simulation")
	}

	v := viewer.New(sim, *cellSize, entry)
	w, h := v.WindowSize()
	ebiten.SetWindowTitle("Traffic - " + envs.MapFile)
	ebiten.SetWindowSize(w, h)
	if err := ebiten.RunGame(v); err != nil {
		logger.WithError(err).Fatal("viewer")
	}
}
