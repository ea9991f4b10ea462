package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envFilesLoaded guards the one-time loading of dotenv files. The precedence
// rules below only hold when the process environment is layered exactly once.
var envFilesLoaded sync.Once

// loadEnvFiles layers dotenv files under the process environment.
//
// Precedence (highest wins):
//  1. variables already set in the process environment
//  2. .env.<APP_ENV> (e.g. .env.production)
//  3. .env
//
// godotenv.Load never overrides variables that are already set, so loading
// the environment-specific file first gives it priority over the default file
// while real environment variables beat both.
func loadEnvFiles() {
	if appEnv := os.Getenv("APP_ENV"); appEnv != "" {
		_ = godotenv.Load(".env." + appEnv)
	}
	// The default .env file might not exist and that's ok.
	_ = godotenv.Load()
}

// Load populates the provided configuration struct from environment
// variables, applying the dotenv layering documented on loadEnvFiles.
//
// Example:
//
//	type StorageConfig struct {
//		Backend string `env:"STORAGE_BACKEND" envDefault:"s3"`
//		Bucket  string `env:"S3_BUCKET,required"`
//	}
//
//	var cfg StorageConfig
//	if err := config.Load(&cfg); err != nil {
//		// handle error
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	envFilesLoaded.Do(loadEnvFiles)

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Intended for configuration
// the application cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
