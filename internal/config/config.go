package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/kestrelid/age-verification-api/internal/agent"
)

// Config aggregates every setting the verification service reads from the environment.
type Config struct {
	HTTP    HTTPConfig
	Mongo   MongoConfig
	Session SessionConfig
	Cache   CacheConfig
	Token   TokenConfig
	Agent   agent.Config
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
}

// MongoConfig holds the durable store connection settings.
type MongoConfig struct {
	URI      string `env:"MONGODB_URI"      envDefault:"mongodb://localhost:27017"`
	Database string `env:"MONGODB_DATABASE" envDefault:"age_verification"`
}

// SessionConfig governs the verification session lifecycle.
type SessionConfig struct {
	// ControllerURL is this service's public base URL; it prefixes the
	// challenge URL handed to the end user.
	ControllerURL string `env:"CONTROLLER_URL"`

	// ExpireWindow is how long a session may wait for an outcome before a
	// read observes it as expired.
	ExpireWindow time.Duration `env:"PRESENTATION_EXPIRE_TIME" envDefault:"10m"`

	// WSTokenExpiresIn bounds how long the websocket attach token stays valid.
	WSTokenExpiresIn time.Duration `env:"WS_TOKEN_EXPIRES_IN" envDefault:"15m"`

	// VerifyOnReceipt asks the agent to verify a presentation as soon as it
	// is received, for agents not configured to auto-verify.
	VerifyOnReceipt bool `env:"ACAPY_VERIFY_ON_RECEIPT" envDefault:"false"`
}

// CacheConfig bounds the ephemeral revealed-attribute cache.
type CacheConfig struct {
	Size int           `env:"ATTRIBUTE_CACHE_SIZE" envDefault:"100"`
	TTL  time.Duration `env:"ATTRIBUTE_CACHE_TTL"  envDefault:"1h"`
}

// TokenConfig holds the websocket attach token signing settings.
type TokenConfig struct {
	Issuer string `env:"TOKEN_ISSUER"   envDefault:"age-verification-api"`
	Secret string `env:"WS_TOKEN_SECRET"`
}

// Load parses the configuration from environment variables.
func Load(logger *zerolog.Logger) *Config {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse environment variables")
	}

	if err := cfg.validate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to validate configuration")
	}

	return &cfg
}

func (c *Config) validate() error {
	if c.Session.ControllerURL == "" {
		return fmt.Errorf("missing CONTROLLER_URL environment variable")
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("missing WS_TOKEN_SECRET environment variable")
	}

	return c.Agent.Validate()
}
