// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/litterally/internal/classifier"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress        string
	DatabaseURI       string
	PhotoDir          string
	ClassifierPolicy  classifier.Policy
	ClassifierAddress string
	RevealDuration    time.Duration
	HistoryLimit      int
	DeviceSecret      string
	CatalogFile       string
}

// envConfig содержит значения из окружения. Незаданная переменная остаётся nil и не
// перекрывает флаг.
type envConfig struct {
	RunAddress        *string        `env:"RUN_ADDRESS"`
	DatabaseURI       *string        `env:"DATABASE_URI"`
	PhotoDir          *string        `env:"PHOTO_DIR"`
	ClassifierPolicy  *string        `env:"CLASSIFIER_POLICY"`
	ClassifierAddress *string        `env:"CLASSIFIER_ADDRESS"`
	RevealDuration    *time.Duration `env:"REVEAL_DURATION"`
	HistoryLimit      *int           `env:"HISTORY_LIMIT"`
	DeviceSecret      *string        `env:"DEVICE_SECRET"`
	CatalogFile       *string        `env:"CATALOG_FILE"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных
// окружения. Переменные окружения важнее флагов.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var e envConfig
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	var policy string

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.PhotoDir, "p", "./photos", "directory for captured photos")
	flag.StringVar(&policy, "c", string(classifier.PolicyRoundRobin), "classification policy: random or round-robin")
	flag.StringVar(&cfg.ClassifierAddress, "r", "", "remote classifier address")
	flag.DurationVar(&cfg.RevealDuration, "reveal", 5*time.Second, "how long the points overlay stays visible")
	flag.IntVar(&cfg.HistoryLimit, "history", 0, "max scan results kept per device, 0 keeps all")
	flag.StringVar(&cfg.DeviceSecret, "s", "", "secret for signing device tokens")
	flag.StringVar(&cfg.CatalogFile, "catalog", "", "path to a catalog YAML file")

	flag.Parse()

	setString(&cfg.RunAddress, e.RunAddress)
	setString(&cfg.DatabaseURI, e.DatabaseURI)
	setString(&cfg.PhotoDir, e.PhotoDir)
	setString(&policy, e.ClassifierPolicy)
	setString(&cfg.ClassifierAddress, e.ClassifierAddress)
	setString(&cfg.DeviceSecret, e.DeviceSecret)
	setString(&cfg.CatalogFile, e.CatalogFile)
	if e.RevealDuration != nil {
		cfg.RevealDuration = *e.RevealDuration
	}
	if e.HistoryLimit != nil {
		cfg.HistoryLimit = *e.HistoryLimit
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PhotoDir == "" {
		cfg.PhotoDir = "./photos"
	}

	p, err := classifier.ParsePolicy(policy)
	if err != nil {
		return nil, err
	}
	cfg.ClassifierPolicy = p

	if cfg.RevealDuration <= 0 {
		return nil, fmt.Errorf("reveal duration must be positive, got %s", cfg.RevealDuration)
	}
	if cfg.HistoryLimit < 0 {
		return nil, fmt.Errorf("history limit must not be negative, got %d", cfg.HistoryLimit)
	}

	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}
