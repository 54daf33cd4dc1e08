package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting of the API server and the diaryctl CLI.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Port        string `mapstructure:"PORT"`

	// storage
	DBPath   string `mapstructure:"DB_PATH"`
	AudioDir string `mapstructure:"AUDIO_DIR"`

	// speech (Clova)
	ClovaAPIURL       string `mapstructure:"CLOVA_API_URL"`
	ClovaAPIKey       string `mapstructure:"CLOVA_API_KEY"`
	SpeechLanguage    string `mapstructure:"SPEECH_LANGUAGE"`
	UseMockTranscribe bool   `mapstructure:"USE_MOCK_TRANSCRIBE"`

	// chat completion
	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel   string `mapstructure:"OPENAI_MODEL"`
	UseMockLLM    bool   `mapstructure:"USE_MOCK_LLM"`

	// AdapterTimeoutSec bounds every single external call of the pipeline.
	AdapterTimeoutSec int `mapstructure:"ADAPTER_TIMEOUT_SEC"`

	// session lock; empty REDIS_ADDR keeps locks in memory
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int    `mapstructure:"REDIS_DB"`
	SessionLockTTLSec int    `mapstructure:"SESSION_LOCK_TTL_SEC"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
}

var defaults = map[string]any{
	"ENVIRONMENT":          "local",
	"PORT":                 "8080",
	"DB_PATH":              "voice-diary.sqlite",
	"AUDIO_DIR":            "",
	"CLOVA_API_URL":        "",
	"CLOVA_API_KEY":        "",
	"SPEECH_LANGUAGE":      "ko-KR",
	"USE_MOCK_TRANSCRIBE":  false,
	"OPENAI_API_KEY":       "",
	"OPENAI_BASE_URL":      "https://api.openai.com/v1",
	"OPENAI_MODEL":         "gpt-3.5-turbo",
	"USE_MOCK_LLM":         false,
	"ADAPTER_TIMEOUT_SEC":  40,
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"SESSION_LOCK_TTL_SEC": 600,
	"JWT_SECRET":           "",
}

// Load reads configuration from the environment. When path is non-empty the
// file is read first (env, yaml or json by extension) and the environment
// still wins over it.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// AdapterTimeout returns the per-call timeout for external adapters.
func (c Config) AdapterTimeout() time.Duration {
	if c.AdapterTimeoutSec <= 0 {
		return 40 * time.Second
	}
	return time.Duration(c.AdapterTimeoutSec) * time.Second
}

// SessionLockTTL returns how long a recording session may hold its lock.
func (c Config) SessionLockTTL() time.Duration {
	if c.SessionLockTTLSec <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.SessionLockTTLSec) * time.Second
}

// Validate reports settings that make the server unusable.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	if !c.UseMockTranscribe && (c.ClovaAPIURL == "" || c.ClovaAPIKey == "") {
		return fmt.Errorf("CLOVA_API_URL and CLOVA_API_KEY must be set (or USE_MOCK_TRANSCRIBE=true)")
	}
	if !c.UseMockLLM && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY not set (or USE_MOCK_LLM=true)")
	}
	return nil
}
