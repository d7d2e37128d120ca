package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from SPROUT_* environment
// variables.
type Config struct {
	Environment string `env:"SPROUT_ENV" envDefault:"development"`

	Log     LogConfig     `envPrefix:"SPROUT_LOG_"`
	Wizard  WizardConfig  `envPrefix:"SPROUT_WIZARD_"`
	Redis   RedisConfig   `envPrefix:"SPROUT_REDIS_"`
	Kafka   KafkaConfig   `envPrefix:"SPROUT_KAFKA_"`
	Audit   AuditConfig   `envPrefix:"SPROUT_AUDIT_"`
	Metrics MetricsConfig `envPrefix:"SPROUT_METRICS_"`
}

type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// WizardConfig bounds the engine's asynchronous work.
type WizardConfig struct {
	SubmissionTimeout time.Duration `env:"SUBMISSION_TIMEOUT" envDefault:"30s"`
	PreviewTimeout    time.Duration `env:"PREVIEW_TIMEOUT"    envDefault:"30s"`
	IngestConcurrency int           `env:"INGEST_CONCURRENCY" envDefault:"4"`
	SessionTTL        time.Duration `env:"SESSION_TTL"        envDefault:"24h"`
}

// RedisConfig enables the Redis session store when URL is set.
type RedisConfig struct {
	URL          string        `env:"URL"`
	KeyPrefix    string        `env:"KEY_PREFIX"     envDefault:"wizard:session:"`
	PoolSize     int           `env:"POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT"  envDefault:"3s"`
}

// KafkaConfig enables the Kafka audit sink when Brokers is set.
type KafkaConfig struct {
	Brokers  []string      `env:"BROKERS" envSeparator:","`
	Topic    string        `env:"TOPIC"   envDefault:"sprout.wizard.audit"`
	ClientID string        `env:"CLIENT_ID" envDefault:"sprout"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

type AuditConfig struct {
	BufferSize       int           `env:"BUFFER_SIZE"       envDefault:"1024"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN"  envDefault:"30s"`
}

type MetricsConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadWith parses from an explicit environment map; used by tests.
func LoadWith(environment map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Wizard.SubmissionTimeout <= 0 {
		errs = append(errs, errors.New("submission timeout must be positive"))
	}
	if c.Wizard.PreviewTimeout <= 0 {
		errs = append(errs, errors.New("preview timeout must be positive"))
	}
	if c.Wizard.IngestConcurrency < 1 {
		errs = append(errs, errors.New("ingest concurrency must be at least 1"))
	}
	if c.Audit.BufferSize < 0 {
		errs = append(errs, errors.New("audit buffer size cannot be negative"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
