package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/arko-chat/pedometer/internal/credentials"
	"github.com/arko-chat/pedometer/internal/dispatcher"
	"github.com/arko-chat/pedometer/internal/motion"
)

const (
	appName    = "pedometer"
	configFile = "config.json"
)

// Duration reads and writes as "1m30s" in both JSON and env.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Simulator struct {
	StepCounting  bool     `json:"step_counting" env:"STEP_COUNTING"`
	Distance      bool     `json:"distance" env:"DISTANCE"`
	FloorCounting bool     `json:"floor_counting" env:"FLOOR_COUNTING"`
	History       bool     `json:"history" env:"HISTORY"`
	Interval      Duration `json:"interval" env:"INTERVAL"`
	Cadence       float64  `json:"cadence" env:"CADENCE"`
	StrideLength  float64  `json:"stride_length" env:"STRIDE_LENGTH"`
}

type Config struct {
	ListenAddr   string    `json:"listen_addr" env:"PEDOMETER_LISTEN_ADDR"`
	LogLevel     string    `json:"log_level" env:"PEDOMETER_LOG_LEVEL"`
	LogFormat    string    `json:"log_format" env:"PEDOMETER_LOG_FORMAT"`
	Policy       string    `json:"policy" env:"PEDOMETER_POLICY"`
	AnsweredSize int       `json:"answered_size" env:"PEDOMETER_ANSWERED_SIZE"`
	Simulator    Simulator `json:"simulator" envPrefix:"PEDOMETER_SIM_"`

	// DevServerURL, when set, proxies pages to a frontend dev server.
	DevServerURL string `json:"dev_server_url,omitempty" env:"PEDOMETER_DEV_URL"`

	Token string `json:"-" env:"PEDOMETER_TOKEN"`
}

func Default() Config {
	return Config{
		ListenAddr:   "127.0.0.1:0",
		LogLevel:     "debug",
		LogFormat:    "text",
		Policy:       string(dispatcher.PolicyReplace),
		AnsweredSize: 1024,
		Simulator: Simulator{
			StepCounting: true,
			Distance:     true,
			History:      true,
			Interval:     Duration(time.Second),
			Cadence:      1.8,
			StrideLength: 0.72,
		},
	}
}

func (c Config) DispatcherOptions() dispatcher.Options {
	return dispatcher.Options{
		Policy:       dispatcher.Policy(c.Policy),
		AnsweredSize: c.AnsweredSize,
	}
}

func (c Config) SimulatorOptions() motion.SimulatorOptions {
	return motion.SimulatorOptions{
		StepCounting:  c.Simulator.StepCounting,
		Distance:      c.Simulator.Distance,
		FloorCounting: c.Simulator.FloorCounting,
		History:       c.Simulator.History,
		Interval:      time.Duration(c.Simulator.Interval),
		Cadence:       c.Simulator.Cadence,
		StrideLength:  c.Simulator.StrideLength,
	}
}

// Load reads the desktop config from the user config directory and takes
// the bridge token from the OS keyring.
func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadDir(filepath.Join(configDir, appName))
	if err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		cfg.Token, err = credentials.BridgeToken()
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadDir reads config.json from dir, writing the defaults there on first
// run, then applies environment overrides. Token is only set when
// PEDOMETER_TOKEN is.
func LoadDir(dir string) (*Config, error) {
	path := filepath.Join(dir, configFile)
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		out, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(path, out, 0600); err != nil {
			return nil, err
		}
		log.Printf("Generated new config at: %s", path)
	default:
		return nil, err
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
