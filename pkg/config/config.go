package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Redis struct {
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		ProbeTimeout time.Duration `yaml:"probe_timeout" default:"2s"`
	} `yaml:"redis"`
	Pipeline struct {
		Scanners    int `yaml:"scanners" default:"167" validate:"gt=0"`
		TeamLeads   int `yaml:"team_leads" default:"20" validate:"gt=0"`
		SectorHeads int `yaml:"sector_heads" default:"10" validate:"gt=0"`

		Tickers []string `yaml:"tickers"`

		LightInterval time.Duration `yaml:"light_interval" default:"15s"`
		DeepInterval  time.Duration `yaml:"deep_interval" default:"1m"`
		ConsumeBlock  time.Duration `yaml:"consume_block" default:"2s"`
		ConsumeBatch  int64         `yaml:"consume_batch" default:"10"`

		PriceFloor    float64 `yaml:"price_floor" default:"5.0"`
		MoveThreshold float64 `yaml:"move_threshold" default:"2.0"`

		ScoreThreshold   float64 `yaml:"score_threshold" default:"60.0"`
		ReliabilityFloor float64 `yaml:"reliability_floor" default:"0.50"`
		ConsensusFloor   float64 `yaml:"consensus_floor" default:"0.30"`
	} `yaml:"pipeline"`
	Portfolio struct {
		InitialCash float64 `yaml:"initial_cash" default:"100000" validate:"gt=0"`
	} `yaml:"portfolio"`
	Director struct {
		ConfidenceThreshold float64       `yaml:"confidence_threshold" default:"70.0"`
		DecisionLogSize     int           `yaml:"decision_log_size" default:"100" validate:"gt=0"`
		MaxPositionFraction float64   `yaml:"max_position_fraction" default:"0.05"`
		LLM                 LLMConfig `yaml:"llm"`
	} `yaml:"director"`
	Health struct {
		Interval       time.Duration `yaml:"interval" default:"30s"`
		RestartRetries int           `yaml:"restart_retries" default:"3"`
		DrainTimeout   time.Duration `yaml:"drain_timeout" default:"10s"`
	} `yaml:"health"`
	Market struct {
		Provider       string        `yaml:"provider" default:"sim"` // sim or websocket
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
	} `yaml:"market"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"signals.execution"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"kafka"`
}

// LLMConfig configures the decision provider endpoint.
type LLMConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model" default:"gpt-4o-mini"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout" default:"15s"`
	RequestsPerMinute int           `yaml:"requests_per_minute" default:"30"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// Default returns a config with all defaults applied and no file input.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("TICKERS"); v != "" {
		c.Pipeline.Tickers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.Director.LLM.APIKey = v
	}
	if v := os.Getenv("MARKET_API_KEY"); v != "" {
		c.Market.APIKey = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Pipeline.TeamLeads > c.Pipeline.Scanners {
		return fmt.Errorf("pipeline.team_leads (%d) cannot exceed pipeline.scanners (%d)",
			c.Pipeline.TeamLeads, c.Pipeline.Scanners)
	}
	if c.Pipeline.SectorHeads > c.Pipeline.TeamLeads {
		return fmt.Errorf("pipeline.sector_heads (%d) cannot exceed pipeline.team_leads (%d)",
			c.Pipeline.SectorHeads, c.Pipeline.TeamLeads)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka.enabled is true")
	}
	if c.Director.LLM.Enabled && c.Director.LLM.BaseURL == "" {
		return fmt.Errorf("director.llm.base_url is required when director.llm.enabled is true")
	}
	if c.Market.Provider != "sim" && c.Market.Provider != "websocket" {
		return fmt.Errorf("market.provider must be 'sim' or 'websocket', got '%s'", c.Market.Provider)
	}
	return nil
}
