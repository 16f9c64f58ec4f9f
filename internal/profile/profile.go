package profile

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the intake server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for the server
	Addr string
	// Port is the binding port for the server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where the server stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the server
	Version string

	// LLM configuration
	LLMProvider   string        // INTAKE_LLM_PROVIDER (openai, deepseek, ollama)
	LLMModel      string        // INTAKE_LLM_MODEL
	LLMAPIKey     string        // INTAKE_LLM_API_KEY
	LLMBaseURL    string        // INTAKE_LLM_BASE_URL
	LLMTimeout    time.Duration // INTAKE_LLM_TIMEOUT (default: 60s)
	LLMMaxRetries int           // INTAKE_LLM_MAX_RETRIES (default: 3)

	// Session lifecycle
	SessionIdleTimeout time.Duration // INTAKE_SESSION_IDLE_TIMEOUT (default: 30m)
	ReaperInterval     time.Duration // INTAKE_REAPER_INTERVAL (default: 5m)

	// Enrichment (insights + questionnaire suggestion)
	EnrichmentTimeout time.Duration // INTAKE_ENRICHMENT_TIMEOUT (default: 10s)
	SuggestionRate    float64       // INTAKE_SUGGESTION_RATE calls/min (default: 6)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("INTAKE_MODE", p.Mode)
	p.Addr = getEnvOrDefault("INTAKE_ADDR", p.Addr)
	p.Port = getIntEnv("INTAKE_PORT", p.Port)
	p.Data = getEnvOrDefault("INTAKE_DATA", p.Data)
	p.DSN = getEnvOrDefault("INTAKE_DSN", p.DSN)
	p.Driver = getEnvOrDefault("INTAKE_DRIVER", p.Driver)

	p.LLMProvider = getEnvOrDefault("INTAKE_LLM_PROVIDER", "openai")
	p.LLMModel = getEnvOrDefault("INTAKE_LLM_MODEL", "gpt-4o-mini")
	p.LLMAPIKey = getEnvOrDefault("INTAKE_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("INTAKE_LLM_BASE_URL", "")
	p.LLMTimeout = getDurationEnv("INTAKE_LLM_TIMEOUT", 60*time.Second)
	p.LLMMaxRetries = getIntEnv("INTAKE_LLM_MAX_RETRIES", 3)

	p.SessionIdleTimeout = getDurationEnv("INTAKE_SESSION_IDLE_TIMEOUT", 30*time.Minute)
	p.ReaperInterval = getDurationEnv("INTAKE_REAPER_INTERVAL", 5*time.Minute)
	p.EnrichmentTimeout = getDurationEnv("INTAKE_ENRICHMENT_TIMEOUT", 10*time.Second)
	p.SuggestionRate = getFloatEnv("INTAKE_SUGGESTION_RATE", 6)
}

// Validate validates the profile.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("DSN is required for postgres driver")
	}

	if p.Driver == "sqlite" && p.DSN == "" {
		if p.Data == "" {
			p.Data = "."
		}
		if _, err := os.Stat(p.Data); err != nil {
			return errors.Wrapf(err, "unable to access data directory %s", p.Data)
		}
		p.DSN = fmt.Sprintf("%s/intake_%s.db", p.Data, p.Mode)
	}

	if p.SessionIdleTimeout <= 0 {
		return errors.New("session idle timeout must be positive")
	}
	if p.ReaperInterval <= 0 {
		return errors.New("reaper interval must be positive")
	}

	return nil
}

// GetProfile gets the profile from environment and flags, validated.
func GetProfile(version string) (*Profile, error) {
	profile := &Profile{
		Mode:    "dev",
		Addr:    "",
		Port:    8081,
		Data:    "",
		Driver:  "sqlite",
		Version: version,
	}
	profile.FromEnv()
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}
