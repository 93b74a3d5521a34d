// Package flagutil holds reusable flag groups for the service endpoints
// the subcommands talk to.
package flagutil

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/pflag"

	"github.com/petr-muller/clocksync/internal/config"
)

// ErrInvalidEndpoint marks a malformed or missing service endpoint. The cmd
// layer maps it to a dedicated exit code.
var ErrInvalidEndpoint = errors.New("invalid service endpoint")

// ClockifyOptions carries the connection parameters for the Clockify API.
// Flags win over config file values, which win over environment defaults.
type ClockifyOptions struct {
	Endpoint    string
	APIKey      string
	WorkspaceID string
	UserID      string
}

// AddPFlags injects the Clockify options into the given pflag.FlagSet
func (o *ClockifyOptions) AddPFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Endpoint, "clockify.endpoint", "", "Clockify API endpoint URL")
	fs.StringVar(&o.APIKey, "clockify.api-key", "", "Clockify API key")
	fs.StringVar(&o.WorkspaceID, "clockify.workspace", "", "Clockify workspace identifier")
	fs.StringVar(&o.UserID, "clockify.user", "", "Clockify user identifier")
}

// Resolve fills every option the operator did not pass from the loaded
// configuration.
func (o *ClockifyOptions) Resolve(cfg *config.Config) {
	if o.Endpoint == "" {
		o.Endpoint = cfg.Clockify.Endpoint
	}
	if o.APIKey == "" {
		o.APIKey = cfg.Clockify.APIKey
	}
	if o.WorkspaceID == "" {
		o.WorkspaceID = cfg.Clockify.WorkspaceID
	}
	if o.UserID == "" {
		o.UserID = cfg.Clockify.UserID
	}
}

func (o *ClockifyOptions) Validate() error {
	if err := validateEndpoint("clockify", o.Endpoint); err != nil {
		return err
	}
	if o.APIKey == "" {
		return errors.New("a Clockify API key is required (flag, config file, or CLOCKIFY_API_KEY)")
	}
	return nil
}

// YouTrackOptions carries the connection parameters for the YouTrack API.
type YouTrackOptions struct {
	Endpoint string
	Suffix   string
	APIKey   string
}

// AddPFlags injects the YouTrack options into the given pflag.FlagSet
func (o *YouTrackOptions) AddPFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Endpoint, "youtrack.endpoint", "", "YouTrack base URL")
	fs.StringVar(&o.Suffix, "youtrack.suffix", "", "path fragment between the base URL and the REST resources")
	fs.StringVar(&o.APIKey, "youtrack.api-key", "", "YouTrack permanent token")
}

// Resolve fills every option the operator did not pass from the loaded
// configuration.
func (o *YouTrackOptions) Resolve(cfg *config.Config) {
	if o.Endpoint == "" {
		o.Endpoint = cfg.YouTrack.Endpoint
	}
	if o.Suffix == "" {
		o.Suffix = cfg.YouTrack.Suffix
	}
	if o.APIKey == "" {
		o.APIKey = cfg.YouTrack.APIKey
	}
}

func (o *YouTrackOptions) Validate() error {
	if err := validateEndpoint("youtrack", o.Endpoint); err != nil {
		return err
	}
	if o.APIKey == "" {
		return errors.New("a YouTrack token is required (flag, config file, or YOUTRACK_API_KEY)")
	}
	return nil
}

func validateEndpoint(service, endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: no %s endpoint configured", ErrInvalidEndpoint, service)
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: cannot parse %s endpoint %q: %v", ErrInvalidEndpoint, service, endpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: %s endpoint %q must be a http(s) URL", ErrInvalidEndpoint, service, endpoint)
	}
	return nil
}
