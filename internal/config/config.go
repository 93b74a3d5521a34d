package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFileName = "config.yaml"

	defaultClockifyEndpoint = "https://api.clockify.me/api/v1"
	defaultYouTrackSuffix   = "youtrack/api"
	defaultTimezone         = "Europe/Berlin"
	defaultHolidayRegion    = "DE-BW"
	defaultWorkHours        = 8
)

// Config is the immutable per-invocation configuration. It is constructed
// once in the cmd layer and passed into every component constructor.
type Config struct {
	Clockify ClockifyConfig `yaml:"clockify"`
	YouTrack YouTrackConfig `yaml:"youtrack"`
	WorkTime WorkTimeConfig `yaml:"worktime"`
	Portal   PortalConfig   `yaml:"portal"`

	// Timezone is the IANA name used to interpret timestamps and work dates
	Timezone string `yaml:"timezone"`
	// HolidayRegion selects the public-holiday calendar for remaining-days
	HolidayRegion string `yaml:"holiday_region"`

	Location *time.Location `yaml:"-"`
}

type ClockifyConfig struct {
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"api_key"`
	WorkspaceID string `yaml:"workspace_id"`
	UserID      string `yaml:"user_id"`
}

type YouTrackConfig struct {
	Endpoint string `yaml:"endpoint"`
	Suffix   string `yaml:"suffix"`
	APIKey   string `yaml:"api_key"`
}

// WorkTimeConfig drives the buffer allocation: when a day's logged total
// falls short of DefaultHours and both DefaultIssue and DefaultComment are
// set, the gap is booked on DefaultIssue.
type WorkTimeConfig struct {
	DefaultHours   int    `yaml:"default_hours"`
	DefaultIssue   string `yaml:"default_issue"`
	DefaultComment string `yaml:"default_comment"`
}

type PortalConfig struct {
	URL      string `yaml:"url"`
	Endpoint string `yaml:"endpoint"`
	Company  string `yaml:"company"`
	MandNr   string `yaml:"mand_nr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads the config file from the user config dir (missing file is fine,
// defaults apply), then applies environment variable overrides.
func Load() (*Config, error) {
	return load(filepath.Join(MustConfigDir(), configFileName))
}

func load(path string) (*Config, error) {
	var cfg Config

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	envOverride(&cfg.Clockify.Endpoint, "CLOCKIFY_API_ENDPOINT")
	envOverride(&cfg.Clockify.APIKey, "CLOCKIFY_API_KEY")
	envOverride(&cfg.Clockify.WorkspaceID, "CLOCKIFY_API_WORKSPACE_ID")
	envOverride(&cfg.Clockify.UserID, "CLOCKIFY_API_USER_ID")
	envOverride(&cfg.YouTrack.Endpoint, "YOUTRACK_API_ENDPOINT")
	envOverride(&cfg.YouTrack.Suffix, "YOUTRACK_API_ENDPOINT_SUFFIX")
	envOverride(&cfg.YouTrack.APIKey, "YOUTRACK_API_KEY")
	envOverrideInt(&cfg.WorkTime.DefaultHours, "WORK_TIME_DEFAULT_HOURS")
	envOverride(&cfg.WorkTime.DefaultIssue, "WORK_TIME_DEFAULT_ISSUE")
	envOverride(&cfg.WorkTime.DefaultComment, "WORK_TIME_DEFAULT_COMMENT")
	envOverride(&cfg.Portal.URL, "PORTAL_API_URL")
	envOverride(&cfg.Portal.Endpoint, "PORTAL_API_ENDPOINT")
	envOverride(&cfg.Portal.Company, "PORTAL_COMPANY")
	envOverride(&cfg.Portal.MandNr, "PORTAL_MAND_NR")
	envOverride(&cfg.Portal.Username, "PORTAL_USERNAME")
	envOverride(&cfg.Portal.Password, "PORTAL_PASSWORD")
	envOverride(&cfg.Timezone, "TIME_ZONE")
	envOverride(&cfg.HolidayRegion, "HOLIDAY_REGION")

	if cfg.Clockify.Endpoint == "" {
		cfg.Clockify.Endpoint = defaultClockifyEndpoint
	}
	if cfg.YouTrack.Suffix == "" {
		cfg.YouTrack.Suffix = defaultYouTrackSuffix
	}
	if cfg.Portal.Endpoint == "" {
		cfg.Portal.Endpoint = "/index.php"
	}
	if cfg.WorkTime.DefaultHours == 0 {
		cfg.WorkTime.DefaultHours = defaultWorkHours
	}
	if cfg.Timezone == "" {
		cfg.Timezone = defaultTimezone
	}
	if cfg.HolidayRegion == "" {
		cfg.HolidayRegion = defaultHolidayRegion
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return &cfg, nil
}

func envOverride(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func envOverrideInt(target *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}
