package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.HTTPWriteTimeout != 0 {
		t.Errorf("write timeout = %v, want disabled for long streams", cfg.HTTPWriteTimeout)
	}
	if cfg.FolderFileLimit != 5 {
		t.Errorf("FolderFileLimit = %d", cfg.FolderFileLimit)
	}
	if cfg.DefaultCanvasWidth != 1200 || cfg.DefaultCanvasHeight != 1200 {
		t.Errorf("canvas = %dx%d", cfg.DefaultCanvasWidth, cfg.DefaultCanvasHeight)
	}
	if cfg.BackgroundRemovalPrice != 0.018 || cfg.DesignEditPrice != 0.14 {
		t.Errorf("prices = %v / %v", cfg.BackgroundRemovalPrice, cfg.DesignEditPrice)
	}
	if len(cfg.ReplicateModels) != 3 {
		t.Errorf("ReplicateModels = %v", cfg.ReplicateModels)
	}
	if cfg.MetadataTimeout != 30*time.Second || cfg.PayloadTimeout != 60*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.MetadataTimeout, cfg.PayloadTimeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("FOLDER_FILE_LIMIT", "3")
	t.Setenv("BACKGROUND_REMOVAL_PRICE", "0.02")
	t.Setenv("REPLICATE_MODELS", "a/b , c/d,")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9001" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.FolderFileLimit != 3 {
		t.Errorf("FolderFileLimit = %d", cfg.FolderFileLimit)
	}
	if cfg.BackgroundRemovalPrice != 0.02 {
		t.Errorf("price = %v", cfg.BackgroundRemovalPrice)
	}
	if len(cfg.ReplicateModels) != 2 || cfg.ReplicateModels[0] != "a/b" || cfg.ReplicateModels[1] != "c/d" {
		t.Errorf("ReplicateModels = %v", cfg.ReplicateModels)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}
