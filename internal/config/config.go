// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Address              string        `env:"ADDRESS,default=:8080"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	PersistQueueSize     int           `env:"PERSIST_QUEUE_SIZE,default=1024"`
	PersistWorkers       int           `env:"PERSIST_WORKERS,default=2"`
	PersistTimeout       time.Duration `env:"PERSIST_TIMEOUT,default=5s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	TokenTTL             time.Duration `env:"TOKEN_TTL,default=360h"`
}

// Load reads an optional .env file from the working directory, then the
// environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.ConnectionBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize))
	}
	if c.PersistQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("PERSIST_QUEUE_SIZE must be positive, got %d", c.PersistQueueSize))
	}
	if c.PersistWorkers <= 0 {
		errs = append(errs, fmt.Errorf("PERSIST_WORKERS must be positive, got %d", c.PersistWorkers))
	}
	if c.PersistTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PERSIST_TIMEOUT must be positive, got %s", c.PersistTimeout))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WRITE_TIMEOUT must be positive, got %s", c.WriteTimeout))
	}
	return errors.Join(errs...)
}
