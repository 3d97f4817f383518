// Package config loads the pipeline's environment-driven configuration.
// The teacher's own pkg/config is a YAML-file, agent/chain/MCP-server
// registry system with no equivalent in this domain (no agents, no
// chains, no MCP servers) — see DESIGN.md for why it was replaced
// rather than adapted. This package instead follows the shape of the
// teacher's pkg/database/config.go: a getEnvOrDefault helper, typed
// parsing via strconv, and an explicit Validate() per config struct.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	raw := getEnvOrDefault(key, strconv.Itoa(defaultVal))
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid int for %s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	raw := getEnvOrDefault(key, strconv.FormatFloat(defaultVal, 'f', -1, 64))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid float for %s: %w", key, err)
	}
	return v, nil
}

// LLMConfig configures the LLM Client (spec §4.3, §6).
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	ModelID     string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

func (c LLMConfig) Validate() error {
	if c.ModelID == "" {
		return fmt.Errorf("config: LLM_MODEL_ID must not be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("config: LLM_BASE_URL must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: LLM_TIMEOUT_SECONDS must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config: LLM_TEMPERATURE must be within [0,2]")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("config: LLM_MAX_TOKENS must be positive")
	}
	return nil
}

// DirectoryConfig configures the Directory Client (spec §4.4, §6).
type DirectoryConfig struct {
	URL string
	Key string
}

func (c DirectoryConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("config: DIRECTORY_URL must not be empty")
	}
	return nil
}

// RetryConfig configures the shared retry/backoff combinator (spec §5, §6).
type RetryConfig struct {
	MaxRetries     int
	MaxWaitSeconds int
}

func (c RetryConfig) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("config: MAX_RETRIES must be at least 1")
	}
	if c.MaxWaitSeconds < 1 {
		return fmt.Errorf("config: MAX_WAIT_SECONDS must be at least 1")
	}
	return nil
}

// PipelineConfig configures the controller and job tracker (spec §4.10, §4.11, §6).
type PipelineConfig struct {
	WorkingLanguage      string
	AsyncThresholdChars  int
	JobRetentionMinutes  int
	JobTrackerMaxEntries int
	PromptsDir           string
}

func (c PipelineConfig) Validate() error {
	if c.AsyncThresholdChars < 1 {
		return fmt.Errorf("config: ASYNC_PROCESSING_THRESHOLD_CHARS must be positive")
	}
	if c.JobRetentionMinutes < 1 {
		return fmt.Errorf("config: JOB_RETENTION_MINUTES must be positive")
	}
	if c.PromptsDir == "" {
		return fmt.Errorf("config: PROMPTS_DIR must not be empty")
	}
	return nil
}

// AuditConfig configures the Postgres-backed audit store (SPEC_FULL.md
// ambient-stack expansion, grounded on the teacher's database.Config).
type AuditConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c AuditConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("config: DB_MAX_IDLE_CONNS cannot exceed DB_MAX_OPEN_CONNS")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("config: DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("config: DB_MAX_IDLE_CONNS cannot be negative")
	}
	return nil
}

// DSN builds a libpq-style connection string from the audit config.
func (c AuditConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// HTTPConfig configures the HTTP surface (SPEC_FULL.md expansion).
type HTTPConfig struct {
	Port    string
	GinMode string
}

// Config aggregates every sub-config loaded from the environment.
type Config struct {
	LLM       LLMConfig
	Directory DirectoryConfig
	Retry     RetryConfig
	Pipeline  PipelineConfig
	Audit     AuditConfig
	HTTP      HTTPConfig
	LogLevel  string
}

// LoadFromEnv reads and validates every sub-config from environment
// variables (spec §6's configuration key list).
func LoadFromEnv() (*Config, error) {
	llmTimeoutSecs, err := getEnvInt("LLM_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	temperature, err := getEnvFloat("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return nil, err
	}
	maxTokens, err := getEnvInt("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return nil, err
	}
	llm := LLMConfig{
		APIKey:      os.Getenv("LLM_API_KEY"),
		BaseURL:     getEnvOrDefault("LLM_BASE_URL", "https://api.openai.com/v1/chat/completions"),
		ModelID:     getEnvOrDefault("LLM_MODEL_ID", "gpt-4o-mini"),
		Timeout:     time.Duration(llmTimeoutSecs) * time.Second,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if err := llm.Validate(); err != nil {
		return nil, err
	}

	directory := DirectoryConfig{
		URL: os.Getenv("DIRECTORY_URL"),
		Key: os.Getenv("DIRECTORY_KEY"),
	}
	if err := directory.Validate(); err != nil {
		return nil, err
	}

	maxRetries, err := getEnvInt("MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	maxWaitSeconds, err := getEnvInt("MAX_WAIT_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	retry := RetryConfig{MaxRetries: maxRetries, MaxWaitSeconds: maxWaitSeconds}
	if err := retry.Validate(); err != nil {
		return nil, err
	}

	asyncThreshold, err := getEnvInt("ASYNC_PROCESSING_THRESHOLD_CHARS", 10000)
	if err != nil {
		return nil, err
	}
	jobRetention, err := getEnvInt("JOB_RETENTION_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	jobMaxEntries, err := getEnvInt("JOB_TRACKER_MAX_ENTRIES", 10000)
	if err != nil {
		return nil, err
	}
	pipeline := PipelineConfig{
		WorkingLanguage:      getEnvOrDefault("WORKING_LANGUAGE", "en"),
		AsyncThresholdChars:  asyncThreshold,
		JobRetentionMinutes:  jobRetention,
		JobTrackerMaxEntries: jobMaxEntries,
		PromptsDir:           getEnvOrDefault("PROMPTS_DIR", "./prompts"),
	}
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}

	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	maxOpenConns, err := getEnvInt("DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return nil, err
	}
	maxIdleConns, err := getEnvInt("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}
	connMaxLifetime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "30m"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	connMaxIdleTime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_IDLE_TIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid DB_CONN_MAX_IDLE_TIME: %w", err)
	}
	audit := AuditConfig{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            dbPort,
		User:            getEnvOrDefault("DB_USER", "postgres"),
		Password:        os.Getenv("DB_PASSWORD"),
		Name:            getEnvOrDefault("DB_NAME", "newsgraph_audit"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		ConnMaxIdleTime: connMaxIdleTime,
	}
	if err := audit.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		LLM:       llm,
		Directory: directory,
		Retry:     retry,
		Pipeline:  pipeline,
		Audit:     audit,
		HTTP: HTTPConfig{
			Port:    getEnvOrDefault("HTTP_PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "release"),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}, nil
}
