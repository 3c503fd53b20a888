package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds relay server configuration, loaded from the environment.
type Config struct {
	Addr            string `envconfig:"RELAY_ADDR" default:":8080" validate:"required"`
	LogLevel        string `envconfig:"RELAY_LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	Store           string `envconfig:"RELAY_STORE" default:"memory" validate:"oneof=memory badger redis"`
	BadgerPath      string `envconfig:"RELAY_BADGER_PATH" default:"data/relay"`
	ReadBufferSize  int    `envconfig:"RELAY_READ_BUFFER" default:"1024" validate:"gt=0"`
	WriteBufferSize int    `envconfig:"RELAY_WRITE_BUFFER" default:"1024" validate:"gt=0"`
	SendBuffer      int    `envconfig:"RELAY_SEND_BUFFER" default:"256" validate:"gt=0"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
