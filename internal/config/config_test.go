package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesIngestionDefaults(t *testing.T) {
	t.Setenv("INGEST_MAX_ATTEMPTS", "")
	t.Setenv("INGEST_RETRY_BACKOFF_BASE", "")
	t.Setenv("INGEST_RETRY_BACKOFF_CAP", "")
	t.Setenv("SCAN_REFRESH_INTERVAL_HOURS", "")

	cfg := Load()
	if cfg.IngestMaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.IngestMaxAttempts)
	}
	if cfg.IngestRetryBackoffBase != 30*time.Second {
		t.Fatalf("expected default backoff base 30s, got %v", cfg.IngestRetryBackoffBase)
	}
	if cfg.IngestRetryBackoffCap != time.Hour {
		t.Fatalf("expected default backoff cap 1h, got %v", cfg.IngestRetryBackoffCap)
	}
	if cfg.ScanRefreshIntervalHours != 4 {
		t.Fatalf("expected default refresh interval 4h, got %d", cfg.ScanRefreshIntervalHours)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("INGEST_MAX_ATTEMPTS", "5")
	t.Setenv("INGEST_RETRY_BACKOFF_BASE", "10s")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")

	cfg := Load()
	if cfg.IngestMaxAttempts != 5 {
		t.Fatalf("expected max attempts 5, got %d", cfg.IngestMaxAttempts)
	}
	if cfg.IngestRetryBackoffBase != 10*time.Second {
		t.Fatalf("expected backoff base 10s, got %v", cfg.IngestRetryBackoffBase)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5, got %v", cfg.APIRateLimitRPS)
	}
}

func TestConfigFileOverlayYieldsToEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "nats_subject: documents.ingest.staging\nclamav_url: http://clamav:3310\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("NATS_SUBJECT", "documents.ingest.env")
	t.Setenv("CLAMAV_URL", "")

	cfg := Load()
	if cfg.NATSSubject != "documents.ingest.env" {
		t.Fatalf("env must win over file, got %q", cfg.NATSSubject)
	}
	if cfg.ClamAVURL != "http://clamav:3310" {
		t.Fatalf("file value expected when env unset, got %q", cfg.ClamAVURL)
	}
}
