package logging

import "go.uber.org/zap/zapcore"

// DefaultLevel is the logging level used when none is configured.
const DefaultLevel = zapcore.InfoLevel

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`
	// Encoding is either "console" (the default) or "json".
	Encoding string `yaml:"encoding"`
}
