// Package config loads service configuration from an optional YAML file
// overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            string `yaml:"port"`
	LogMode         string `yaml:"log_mode"`
	DefaultLanguage string `yaml:"default_language"`

	// SessionIdle is how long an untouched session survives in memory.
	SessionIdle time.Duration `yaml:"session_idle"`

	OpenAI   OpenAI   `yaml:"openai"`
	Speech   Speech   `yaml:"speech"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Auth     Auth     `yaml:"auth"`
	Telegram Telegram `yaml:"telegram"`
	Context  Context  `yaml:"context"`
	Persist  Persist  `yaml:"persist"`
}

type OpenAI struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	ChatModel string `yaml:"chat_model"`
}

type Speech struct {
	// Provider selects the transcriber: "openai" or "whisper-local".
	Provider          string `yaml:"provider"`
	WhisperURL        string `yaml:"whisper_url"`
	ElevenLabsAPIKey  string `yaml:"elevenlabs_api_key"`
	ElevenLabsVoiceID string `yaml:"elevenlabs_voice_id"`
}

type Database struct {
	URL            string `yaml:"url"`
	MigrationsPath string `yaml:"migrations_path"`
}

type Redis struct {
	Addr      string        `yaml:"addr"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
}

type Auth struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type Telegram struct {
	BotToken     string `yaml:"bot_token"`
	DoctorChatID int64  `yaml:"doctor_chat_id"`
}

// Context bounds the payload handed to response generation.
type Context struct {
	MaxSymptoms     int `yaml:"max_symptoms"`
	MaxAnswers      int `yaml:"max_answers"`
	MaxAdviceChars  int `yaml:"max_advice_chars"`
	MaxPastMessages int `yaml:"max_past_messages"`
}

type Persist struct {
	TitlePrefixChars int           `yaml:"title_prefix_chars"`
	MemorySymptomCap int           `yaml:"memory_symptom_cap"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

var ErrMissingCredential = errors.New("missing model credential")

func Default() *Config {
	return &Config{
		Port:            "8080",
		LogMode:         "dev",
		DefaultLanguage: "en-IN",
		SessionIdle:     2 * time.Hour,
		OpenAI: OpenAI{
			ChatModel: "gpt-4o-mini",
		},
		Speech: Speech{
			Provider:   "openai",
			WhisperURL: "http://stt:8000/transcribe",
		},
		Database: Database{
			MigrationsPath: "file://migrations",
		},
		Auth: Auth{
			AccessTTL:  time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Context: Context{
			MaxSymptoms:     20,
			MaxAnswers:      20,
			MaxAdviceChars:  800,
			MaxPastMessages: 8,
		},
		Persist: Persist{
			TitlePrefixChars: 50,
			MemorySymptomCap: 20,
			CallTimeout:      5 * time.Second,
		},
	}
}

// Load reads the YAML file at CONFIG_PATH (default etc/config.yaml) when it
// exists, then applies environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	c := Default()
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "etc/config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	str(&c.Port, "PORT")
	str(&c.LogMode, "LOG_MODE")
	str(&c.DefaultLanguage, "DEFAULT_LANGUAGE")
	str(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	str(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	str(&c.OpenAI.ChatModel, "OPENAI_MODEL_CHAT")
	str(&c.Speech.Provider, "STT_PROVIDER")
	str(&c.Speech.WhisperURL, "WHISPER_URL")
	str(&c.Speech.ElevenLabsAPIKey, "ELEVENLABS_API_KEY")
	str(&c.Speech.ElevenLabsVoiceID, "ELEVENLABS_VOICE_ID")
	str(&c.Database.URL, "DATABASE_URL")
	str(&c.Database.MigrationsPath, "MIGRATIONS_PATH")
	str(&c.Redis.Addr, "REDIS_ADDR")
	str(&c.Auth.JWTSecret, "JWT_SECRET")
	str(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	if v := strings.TrimSpace(os.Getenv("DOCTOR_CHAT_ID")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.DoctorChatID = id
		}
	}
}

func str(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

// Validate reports configuration errors that must stop the service before any
// session is served.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is required", ErrMissingCredential)
	}
	if c.Database.URL != "" && c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required when DATABASE_URL is set")
	}
	switch c.Speech.Provider {
	case "openai", "whisper-local":
	default:
		return fmt.Errorf("unknown speech provider %q", c.Speech.Provider)
	}
	return nil
}

// BackendConfigured reports whether a persistence backend should be wired.
func (c *Config) BackendConfigured() bool {
	return strings.TrimSpace(c.Database.URL) != ""
}
