package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	// Vendor credentials. Explicit per-request overrides take precedence;
	// these are the process-wide fallbacks.
	RemoveBgAPIKey  string
	ClipdropAPIKey  string
	ReplicateAPIKey string
	FalAPIKey       string
	YandexDiskToken string

	// Model selection for vendors that support more than one backend.
	ReplicateModels       []string
	FalRemovalModel       string
	FalObjectRemovalModel string
	FalDesignModel        string

	// Timeouts for upstream calls: metadata (listing, links, polling) vs
	// payload (image download/upload, model invocation).
	MetadataTimeout time.Duration
	PayloadTimeout  time.Duration

	// Per-unit USD prices for external API usage.
	BackgroundRemovalPrice float64
	DesignEditPrice        float64

	// Batch pipeline defaults.
	DefaultCanvasWidth    int
	DefaultCanvasHeight   int
	FolderFileLimit       int
	DesignBackgroundPaths []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8000"),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		// Write timeout disabled by default: batch runs stream events for minutes.
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		RemoveBgAPIKey:  os.Getenv("REMOVEBG_API_KEY"),
		ClipdropAPIKey:  os.Getenv("CLIPDROP_API_KEY"),
		ReplicateAPIKey: os.Getenv("REPLICATE_API_KEY"),
		FalAPIKey:       os.Getenv("FAL_KEY"),
		YandexDiskToken: os.Getenv("YANDEX_DISK_TOKEN"),

		ReplicateModels: getEnvList("REPLICATE_MODELS", []string{
			"851-labs/background-remover",
			"lucataco/remove-bg",
			"cjwbw/rembg",
		}),
		FalRemovalModel:       getEnv("FAL_REMOVAL_MODEL", "fal-ai/imageutils/rembg"),
		FalObjectRemovalModel: getEnv("FAL_OBJECT_REMOVAL_MODEL", "fal-ai/object-removal"),
		FalDesignModel:        getEnv("FAL_DESIGN_MODEL", "fal-ai/nano-banana/edit"),

		MetadataTimeout: time.Second * time.Duration(getEnvInt("METADATA_TIMEOUT_SECONDS", 30)),
		PayloadTimeout:  time.Second * time.Duration(getEnvInt("PAYLOAD_TIMEOUT_SECONDS", 60)),

		BackgroundRemovalPrice: getEnvFloat("BACKGROUND_REMOVAL_PRICE", 0.018),
		DesignEditPrice:        getEnvFloat("DESIGN_EDIT_PRICE", 0.14),

		DefaultCanvasWidth:  getEnvInt("DEFAULT_CANVAS_WIDTH", 1200),
		DefaultCanvasHeight: getEnvInt("DEFAULT_CANVAS_HEIGHT", 1200),
		FolderFileLimit:     getEnvInt("FOLDER_FILE_LIMIT", 5),
		DesignBackgroundPaths: getEnvList("DESIGN_BACKGROUND_PATHS", []string{
			"assets/design_background.png",
			"templates/design_background.png",
			"design_background.png",
		}),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
