package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Client struct {
		ServerURL            string `yaml:"server_url"`
		PingInterval         string `yaml:"ping_interval"`
		PongTimeout          string `yaml:"pong_timeout"`
		ReconnectBase        string `yaml:"reconnect_base"`
		ReconnectCap         string `yaml:"reconnect_cap"`
		ReconnectMaxAttempts int    `yaml:"reconnect_max_attempts"`
		GracePeriod          string `yaml:"grace_period"`
		ResultHold           string `yaml:"result_hold"`
	} `yaml:"client"`
	Server struct {
		Port              string `yaml:"port"`
		Pack              string `yaml:"pack"`
		QuestionsPerDuel  int    `yaml:"questions_per_duel"`
		QuestionTimeLimit int    `yaml:"question_time_limit"`
		ReadyTimeout      string `yaml:"ready_timeout"`
		RoundDelay        string `yaml:"round_delay"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	PackCache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"pack_cache"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or
// invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
