package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if configPath == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}

	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: config file does not exist: %s", op, configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
	}

	// Enrich with env variables
	tmp, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(expandEnvVars(data)); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(tmp.Name(), &cfg); err != nil {
		return nil, fmt.Errorf("%s: cannot read config: %w", op, err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}

	return &cfg, nil
}

func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
