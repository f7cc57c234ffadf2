package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"YT_CLIENT_ID", "YT_CLIENT_SECRET", "YT_REDIRECT_URI", "YT_SCOPES",
		"DB_DSN", "HTTP_ADDR", "PRESENCE_TTL", "TASK_DEADLINE",
		"TASK_POLL_INTERVAL", "TASK_WORKERS",
	} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.YTScopes != "https://www.googleapis.com/auth/youtube" {
		t.Errorf("YTScopes = %q", cfg.YTScopes)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.PresenceTTL != 200*time.Second {
		t.Errorf("PresenceTTL = %v, want 200s", cfg.PresenceTTL)
	}
	if cfg.TaskDeadline != 9*time.Minute {
		t.Errorf("TaskDeadline = %v, want 9m", cfg.TaskDeadline)
	}
	if cfg.TaskPollInterval != 5*time.Second {
		t.Errorf("TaskPollInterval = %v, want 5s", cfg.TaskPollInterval)
	}
	if cfg.TaskWorkers != 1 {
		t.Errorf("TaskWorkers = %d, want 1", cfg.TaskWorkers)
	}
	if cfg.DBDsn == "" {
		t.Error("DBDsn default missing")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PRESENCE_TTL", "90s")
	t.Setenv("TASK_DEADLINE", "30s")
	t.Setenv("TASK_POLL_INTERVAL", "1s")
	t.Setenv("TASK_WORKERS", "4")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PresenceTTL != 90*time.Second {
		t.Errorf("PresenceTTL = %v", cfg.PresenceTTL)
	}
	if cfg.TaskDeadline != 30*time.Second {
		t.Errorf("TaskDeadline = %v", cfg.TaskDeadline)
	}
	if cfg.TaskPollInterval != time.Second {
		t.Errorf("TaskPollInterval = %v", cfg.TaskPollInterval)
	}
	if cfg.TaskWorkers != 4 {
		t.Errorf("TaskWorkers = %d", cfg.TaskWorkers)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"bad presence ttl", "PRESENCE_TTL", "soon"},
		{"negative deadline", "TASK_DEADLINE", "-1m"},
		{"zero workers", "TASK_WORKERS", "0"},
		{"non-numeric workers", "TASK_WORKERS", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("Load accepted %s=%q", tt.env, tt.val)
			}
		})
	}
}

func TestValidateOAuthReady(t *testing.T) {
	t.Setenv("YT_CLIENT_ID", "id")
	t.Setenv("YT_CLIENT_SECRET", "secret")
	t.Setenv("YT_REDIRECT_URI", "http://localhost:8080/auth/youtube/callback")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ValidateOAuthReady(); err != nil {
		t.Errorf("ValidateOAuthReady with full creds: %v", err)
	}

	cfg.YTClientSecret = ""
	if err := cfg.ValidateOAuthReady(); err == nil {
		t.Error("ValidateOAuthReady passed with missing secret")
	}
}
