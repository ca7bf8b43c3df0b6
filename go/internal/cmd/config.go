package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/chimera/go/internal/session"
)

const (
	FallbackBeacon = "beacon"
	FallbackNATS   = "nats"
)

type Config struct {
	APIURL        string        `yaml:"api_url"`
	GameID        string        `yaml:"game_id"`
	PlayerID      string        `yaml:"player_id"`
	SessionToken  string        `yaml:"session_token"`
	SessionCookie string        `yaml:"session_cookie"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	LeaveTimeout  time.Duration `yaml:"leave_timeout"`
	LogLevel      string        `yaml:"log_level"`

	Gateway struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"gateway"`

	Leave struct {
		Fallback string `yaml:"fallback"`
	} `yaml:"leave"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.APIURL = "http://localhost:8080"
	cfg.PollInterval = session.DefaultPollInterval
	cfg.LeaveTimeout = session.DefaultLeaveTimeout
	cfg.LogLevel = "info"
	cfg.Gateway.Port = "8090"
	cfg.Gateway.AllowedOrigins = []string{"*"}
	cfg.Leave.Fallback = FallbackBeacon
	natsDefaults := session.DefaultNATSBeaconConfig()
	cfg.NATS.URL = natsDefaults.URL
	cfg.NATS.SubjectPrefix = natsDefaults.SubjectPrefix
	return &cfg
}

// loadConfig builds the configuration from defaults, the optional YAML file
// at path and then the environment, which wins.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.APIURL = getEnv("CHIMERA_API_URL", cfg.APIURL)
	cfg.GameID = getEnv("CHIMERA_GAME_ID", cfg.GameID)
	cfg.PlayerID = getEnv("CHIMERA_PLAYER_ID", cfg.PlayerID)
	cfg.SessionToken = getEnv("CHIMERA_SESSION_TOKEN", cfg.SessionToken)
	cfg.SessionCookie = getEnv("CHIMERA_SESSION_COOKIE", cfg.SessionCookie)
	cfg.PollInterval = getEnvAsDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.LeaveTimeout = getEnvAsDuration("LEAVE_TIMEOUT", cfg.LeaveTimeout)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Gateway.Port = getEnv("GATEWAY_PORT", cfg.Gateway.Port)
	cfg.Leave.Fallback = getEnv("LEAVE_FALLBACK", cfg.Leave.Fallback)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	if origins := getEnv("GATEWAY_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.Gateway.AllowedOrigins = strings.Split(origins, ",")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("CHIMERA_API_URL is required"))
	}
	if c.GameID == "" {
		errs = append(errs, errors.New("CHIMERA_GAME_ID is required"))
	}
	if c.PlayerID == "" {
		errs = append(errs, errors.New("CHIMERA_PLAYER_ID is required"))
	}
	if _, err := strconv.Atoi(c.Gateway.Port); err != nil {
		errs = append(errs, fmt.Errorf("invalid GATEWAY_PORT %q", c.Gateway.Port))
	}
	switch c.Leave.Fallback {
	case FallbackBeacon, FallbackNATS:
	default:
		errs = append(errs, fmt.Errorf("invalid LEAVE_FALLBACK %q: want %s or %s", c.Leave.Fallback, FallbackBeacon, FallbackNATS))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("3s") or plain milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms := getEnvAsInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
