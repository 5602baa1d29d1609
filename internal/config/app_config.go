package config

import (
	"time"
)

type AppConfig struct {
	Port            int           `yaml:"port" env:"APP_PORT" env-default:"8080" validate:"required,min=1,max=65535"`
	DefaultTimeout  time.Duration `yaml:"default_timeout" env:"APP_DEFAULT_TIMEOUT" env-default:"5s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"APP_SHUTDOWN_TIMEOUT" env-default:"10s" validate:"gt=0"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY" env-default:"false"`
}

type FilesystemConfig struct {
	// MaxInstances bounds the number of per-token filesystems kept in memory.
	MaxInstances int `yaml:"max_instances" env:"FS_MAX_INSTANCES" env-default:"64" validate:"min=1"`
	// Msize caps the payload of a single read or readdir reply.
	Msize int `yaml:"msize" env:"FS_MSIZE" env-default:"8192" validate:"min=64"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics" validate:"startswith=/"`
}
