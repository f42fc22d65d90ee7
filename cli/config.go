// Package cli provides the command-line interface for actionq.
// This file re-exports config types from internal/config for public API.
package cli

import (
	"github.com/zot/actionq/internal/config"
)

// Re-export config types for public API
type (
	Config             = config.Config
	QueueConfig        = config.QueueConfig
	TransportConfig    = config.TransportConfig
	SchemaConfig       = config.SchemaConfig
	ExperimentsConfig  = config.ExperimentsConfig
	ReadOnlyExperiment = config.ReadOnlyExperiment
	ServerConfig       = config.ServerConfig
	LoggingConfig      = config.LoggingConfig
	Duration           = config.Duration
)

// Re-export config functions for public API
var (
	DefaultConfig = config.DefaultConfig
	Load          = config.Load
)
