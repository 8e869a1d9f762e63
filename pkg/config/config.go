// Package config loads the runtime settings. Precedence, lowest to
// highest: the base YAML file, the profile overlay next to it
// (settings.<profile>.yaml), then environment variables. A .env file is
// loaded first so local runs can keep overrides out of the shell.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the full runtime configuration.
type Settings struct {
	Symbols  []string `yaml:"symbols" env:"OFC_SYMBOLS" envSeparator:","`
	Mode     string   `yaml:"mode" env:"OFC_MODE"` // sim or live
	Provider string   `yaml:"provider" env:"OFC_PROVIDER"`
	HTTPAddr string   `yaml:"http_addr" env:"OFC_HTTP_ADDR"`

	Bus struct {
		QueueSize   int           `yaml:"queue_size" env:"OFC_BUS_QUEUE_SIZE"`
		StopTimeout time.Duration `yaml:"stop_timeout" env:"OFC_BUS_STOP_TIMEOUT"`
	} `yaml:"bus"`

	Risk struct {
		Symbols        []string      `yaml:"symbols" env:"OFC_RISK_SYMBOLS" envSeparator:","`
		MaxSize        float64       `yaml:"max_size" env:"OFC_RISK_MAX_SIZE"`
		MaxExposure    float64       `yaml:"max_exposure" env:"OFC_RISK_MAX_EXPOSURE"`
		ThrottleWindow time.Duration `yaml:"throttle_window" env:"OFC_RISK_THROTTLE_WINDOW"`
		ThrottleMax    int           `yaml:"throttle_max" env:"OFC_RISK_THROTTLE_MAX"`
	} `yaml:"risk"`

	Execution struct {
		Clip            float64       `yaml:"clip" env:"OFC_EXEC_CLIP"`
		AvgFillRate     float64       `yaml:"avg_fill_rate" env:"OFC_EXEC_AVG_FILL_RATE"`
		FillProbability float64       `yaml:"fill_probability" env:"OFC_EXEC_FILL_PROBABILITY"`
		FillDelay       time.Duration `yaml:"fill_delay" env:"OFC_EXEC_FILL_DELAY"`
		OrderQuantity   float64       `yaml:"order_quantity" env:"OFC_EXEC_ORDER_QUANTITY"`
	} `yaml:"execution"`

	Strategy struct {
		MinVolume      float64 `yaml:"min_volume" env:"OFC_STRAT_MIN_VOLUME"`
		MaxVolume      float64 `yaml:"max_volume" env:"OFC_STRAT_MAX_VOLUME"`
		MaxRange       float64 `yaml:"max_range" env:"OFC_STRAT_MAX_RANGE"`
		VetoVolatility float64 `yaml:"veto_volatility" env:"OFC_STRAT_VETO_VOLATILITY"`
		VetoSpoof      bool    `yaml:"veto_spoof" env:"OFC_STRAT_VETO_SPOOF"`
	} `yaml:"strategy"`

	Binance struct {
		StreamURL string `yaml:"stream_url" env:"OFC_BINANCE_STREAM_URL"`
	} `yaml:"binance"`

	Log struct {
		Level       string `yaml:"level" env:"OFC_LOG_LEVEL"`
		Development bool   `yaml:"development" env:"OFC_LOG_DEV"`
	} `yaml:"log"`
}

func defaults() Settings {
	var s Settings
	s.Symbols = []string{"BTCUSDT"}
	s.Mode = "sim"
	s.Provider = "sim"
	s.HTTPAddr = ":8080"
	s.Bus.QueueSize = 4096
	s.Bus.StopTimeout = 5 * time.Second
	s.Risk.MaxSize = 10
	s.Risk.MaxExposure = 100
	s.Risk.ThrottleWindow = time.Minute
	s.Risk.ThrottleMax = 60
	s.Execution.Clip = 5
	s.Execution.AvgFillRate = 1
	s.Execution.FillProbability = 1
	s.Execution.OrderQuantity = 1
	s.Strategy.VetoVolatility = 5
	s.Strategy.VetoSpoof = true
	s.Log.Level = "info"
	return s
}

// Load reads the base file, applies the profile overlay when profile is
// non-empty, then applies environment overrides. A missing base file is an
// error; a missing overlay is not.
func Load(basePath, profile string) (Settings, error) {
	_ = godotenv.Load()

	s := defaults()
	if err := readYAML(basePath, &s, true); err != nil {
		return Settings{}, err
	}
	if profile != "" {
		overlay := profilePath(basePath, profile)
		if err := readYAML(overlay, &s, false); err != nil {
			return Settings{}, err
		}
	}
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("env overrides: %w", err)
	}
	return s, nil
}

func readYAML(path string, s *Settings, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// profilePath turns config/settings.yaml + "dev" into
// config/settings.dev.yaml.
func profilePath(basePath, profile string) string {
	dir := filepath.Dir(basePath)
	base := filepath.Base(basePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s.%s%s", name, profile, ext))
}
