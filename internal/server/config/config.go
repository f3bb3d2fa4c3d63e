package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config holds the server configuration, loaded from the environment with an
// optional .env file on top.
type Config struct {
	Port         string `envconfig:"PORT"           default:"8080"`
	LogLevel     string `envconfig:"LOG_LEVEL"      default:"info"`
	GraphBackend string `envconfig:"GRAPH_BACKEND"  default:"neo4j"`

	Neo4jURI      string `envconfig:"NEO4J_URI"      default:"bolt://localhost:7687"`
	Neo4jUsername string `envconfig:"NEO4J_USERNAME" default:"neo4j"`
	Neo4jPassword string `envconfig:"NEO4J_PASSWORD" default:"password"`
	Neo4jDatabase string `envconfig:"NEO4J_DATABASE" default:"neo4j"`

	SQLitePath string `envconfig:"SQLITE_PATH" default:"shopgraph.db"`
}

// Load reads the .env file when present, then fills the config from the
// environment.
func Load(logger *logrus.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			logger.Debug(".env file not found, using environment variables")
		} else {
			logger.Warnf("Error loading .env file: %v", err)
		}
	} else {
		logger.Info("Loaded configuration from .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatalf("Failed to process configuration from environment: %v", err)
	}
	return &cfg
}
