package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/mirandaurban/retoTC2008B/internal/traffic"
)

// Config holds the process settings of the server and the tools.
type Config struct {
	HostIP     string // Host IP the HTTP server binds to
	RESTPort   int    // Port for the REST API
	GinMode    string // Mode for the Gin framework (release, debug, test)
	LogLevel   string // logrus level name
	MapFile    string // City map loaded on /init
	DictFile   string // Symbol dictionary; empty selects the built-in one
	SimConfig  string // Optional YAML overlay for traffic.Config
	CORSOrigin string // Value of Access-Control-Allow-Origin
}

// Load reads the environment, after applying any .env files found. With no
// files given it looks for ".env" in the working directory.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.WithError(err).Debug(".env file not found or could not be loaded")
	}

	port, err := getEnvAsInt("REST_PORT", 8585)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		HostIP:     getEnvWithDefault("HOST_IP", "0.0.0.0"),
		RESTPort:   port,
		GinMode:    getEnvWithDefault("GIN_MODE", "release"),
		LogLevel:   getEnvWithDefault("LOG_LEVEL", "info"),
		MapFile:    getEnvWithDefault("MAP_FILE", "maps/city_10x10.txt"),
		DictFile:   getEnvWithDefault("DICT_FILE", ""),
		SimConfig:  getEnvWithDefault("SIM_CONFIG", ""),
		CORSOrigin: getEnvWithDefault("CORS_ORIGIN", "*"),
	}
	if cfg.RESTPort <= 0 || cfg.RESTPort > 65535 {
		return Config{}, fmt.Errorf("REST_PORT out of range: %d", cfg.RESTPort)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HostIP, c.RESTPort)
}

// Simulation returns the traffic defaults, overlaid with SimConfig when set.
func (c Config) Simulation() (traffic.Config, error) {
	if c.SimConfig == "" {
		return traffic.DefaultConfig(), nil
	}
	return traffic.LoadConfig(c.SimConfig)
}

// ConfigureLogger applies LogLevel to l.
func (c Config) ConfigureLogger(l *log.Logger) error {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	l.SetLevel(lvl)
	l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

// getEnvAsInt retrieves an integer environment variable, or def when unset.
func getEnvAsInt(key string, def int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return value, nil
}

// getEnvWithDefault retrieves the value of an environment variable or returns a default value if not set.
func getEnvWithDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
