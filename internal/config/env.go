package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
	BatchSize     int
	MinLevel      string
	Redact        bool
}

// VisionConfig controls the in-process vision backend.
type VisionConfig struct {
	Enabled     bool
	Endpoint    string
	Model       string
	MaxTokens   int
	ImageSize   int
	Timeout     time.Duration
	LoadTimeout time.Duration
	MaxInflight int
}

// TextConfig controls the process-invoked text backend.
type TextConfig struct {
	Command     []string
	ChatTimeout time.Duration // 0 means bounded only by the request
	Timeout     time.Duration // summarization and image-description bound
}

// DocumentConfig controls text extraction.
type DocumentConfig struct {
	MaxChars int
	Engine   string // "fitz" | "pure"
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port           string
	MaxUploadSize  int64
	MaxImagePixels int // canvas cap checked from the image header
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Vision   VisionConfig
	Text     TextConfig
	Document DocumentConfig
	Server   ServerConfig
}

// FromEnv loads configuration from environment (and an optional .env file) with sensible defaults.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/medgateway.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_medgateway",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
		BatchSize:     parseInt(getEnv("AXIOM_BATCH_SIZE", "200"), 200),
		MinLevel:      getEnv("AXIOM_MIN_LEVEL", "info"),
		Redact:        parseBool(getEnv("AXIOM_REDACT", "true")),
	}

	// USE_FLORENCE is the historical name of the switch.
	enabled := getEnv("VISION_ENABLED", getEnv("USE_FLORENCE", "true"))
	cfg.Vision = VisionConfig{
		Enabled:     parseBool(enabled),
		Endpoint:    getEnv("VISION_ENDPOINT", "http://localhost:11434"),
		Model:       getEnv("VISION_MODEL", "llava"),
		MaxTokens:   parseInt(getEnv("VISION_MAX_TOKENS", "1024"), 1024),
		ImageSize:   parseInt(getEnv("VISION_IMAGE_SIZE", "768"), 768),
		Timeout:     parseDuration(getEnv("VISION_TIMEOUT", "120s"), 120*time.Second),
		LoadTimeout: parseDuration(getEnv("VISION_LOAD_TIMEOUT", "5m"), 5*time.Minute),
		MaxInflight: parseInt(getEnv("VISION_MAX_INFLIGHT", "1"), 1),
	}
	if cfg.Vision.MaxInflight <= 0 {
		cfg.Vision.MaxInflight = 1
	}

	cfg.Text = TextConfig{
		Command:     parseCommand(getEnv("TEXT_MODEL_COMMAND", "ollama run gemma3:1b")),
		ChatTimeout: parseDuration(getEnv("CHAT_TIMEOUT", ""), 0),
		Timeout:     parseDuration(getEnv("TEXT_TIMEOUT", "60s"), 60*time.Second),
	}

	cfg.Document = DocumentConfig{
		MaxChars: parseInt(getEnv("DOCUMENT_MAX_CHARS", "4000"), 4000),
		Engine:   strings.ToLower(getEnv("DOCUMENT_ENGINE", "fitz")),
	}
	if cfg.Document.Engine != "fitz" && cfg.Document.Engine != "pure" {
		cfg.Document.Engine = "fitz"
	}

	cfg.Server = ServerConfig{
		Port:           getEnv("PORT", "5000"),
		MaxUploadSize:  int64(parseInt(getEnv("MAX_UPLOAD_MB", "32"), 32)) << 20,
		MaxImagePixels: parseInt(getEnv("MAX_IMAGE_PIXELS", "40000000"), 40_000_000),
	}
	if cfg.Server.MaxImagePixels <= 0 {
		cfg.Server.MaxImagePixels = 40_000_000
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "t" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// parseCommand splits a command line with shell quoting rules. An empty or
// unparsable value falls back to the default command.
func parseCommand(s string) []string {
	fields, err := shlex.Split(s)
	if err != nil || len(fields) == 0 {
		return []string{"ollama", "run", "gemma3:1b"}
	}
	return fields
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
