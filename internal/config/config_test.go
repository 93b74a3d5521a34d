package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Clockify.Endpoint != "https://api.clockify.me/api/v1" {
		t.Errorf("clockify endpoint = %q", cfg.Clockify.Endpoint)
	}
	if cfg.YouTrack.Suffix != "youtrack/api" {
		t.Errorf("youtrack suffix = %q", cfg.YouTrack.Suffix)
	}
	if cfg.Portal.Endpoint != "/index.php" {
		t.Errorf("portal endpoint = %q", cfg.Portal.Endpoint)
	}
	if cfg.WorkTime.DefaultHours != 8 {
		t.Errorf("default hours = %d", cfg.WorkTime.DefaultHours)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Errorf("timezone = %q", cfg.Timezone)
	}
	if cfg.HolidayRegion != "DE-BW" {
		t.Errorf("holiday region = %q", cfg.HolidayRegion)
	}
	if cfg.Location == nil || cfg.Location.String() != "Europe/Berlin" {
		t.Errorf("location = %v", cfg.Location)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
clockify:
  api_key: file-key
  workspace_id: ws-1
  user_id: user-1
youtrack:
  endpoint: https://tracker.example.com
  api_key: file-token
worktime:
  default_hours: 6
  default_issue: BUF-1
  default_comment: buffer
timezone: UTC
`)

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Clockify.APIKey != "file-key" {
		t.Errorf("clockify api key = %q", cfg.Clockify.APIKey)
	}
	if cfg.Clockify.WorkspaceID != "ws-1" || cfg.Clockify.UserID != "user-1" {
		t.Errorf("clockify ids = %q/%q", cfg.Clockify.WorkspaceID, cfg.Clockify.UserID)
	}
	if cfg.YouTrack.Endpoint != "https://tracker.example.com" {
		t.Errorf("youtrack endpoint = %q", cfg.YouTrack.Endpoint)
	}
	if cfg.WorkTime.DefaultHours != 6 {
		t.Errorf("default hours = %d", cfg.WorkTime.DefaultHours)
	}
	if cfg.WorkTime.DefaultIssue != "BUF-1" || cfg.WorkTime.DefaultComment != "buffer" {
		t.Errorf("buffer config = %q/%q", cfg.WorkTime.DefaultIssue, cfg.WorkTime.DefaultComment)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Errorf("location = %v", cfg.Location)
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
clockify:
  api_key: file-key
worktime:
  default_hours: 6
`)

	t.Setenv("CLOCKIFY_API_KEY", "env-key")
	t.Setenv("WORK_TIME_DEFAULT_HOURS", "7")
	t.Setenv("HOLIDAY_REGION", "DE")

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Clockify.APIKey != "env-key" {
		t.Errorf("clockify api key = %q, expected the environment to win", cfg.Clockify.APIKey)
	}
	if cfg.WorkTime.DefaultHours != 7 {
		t.Errorf("default hours = %d, expected the environment to win", cfg.WorkTime.DefaultHours)
	}
	if cfg.HolidayRegion != "DE" {
		t.Errorf("holiday region = %q", cfg.HolidayRegion)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "clockify: [not a mapping")
	if _, err := load(path); err == nil {
		t.Fatal("expected an error for a malformed config file")
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("TIME_ZONE", "Neverland/Nowhere")
	if _, err := load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for an unknown timezone")
	}
}
