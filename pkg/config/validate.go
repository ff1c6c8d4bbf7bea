package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/validation"
)

// Validate validates the configuration values
func (c *Config) Validate() error {
	// Validate directories
	for name, dir := range map[string]string{
		"output_dir": c.OutputDir,
		"data_dir":   c.DataDir,
		"log_dir":    c.LogDir,
	} {
		if err := validation.DirPath(dir, name); err != nil {
			return err
		}
	}

	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateHTTP(); err != nil {
		return err
	}
	return c.validatePlatforms()
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if c.Logging.Level != "" {
		if err := validation.OneOf(c.Logging.Level, validation.ValidLogLevels, "logging.level"); err != nil {
			return err
		}
	}
	if c.Logging.Format != "" {
		if err := validation.OneOf(c.Logging.Format, validation.ValidLogFormats, "logging.format"); err != nil {
			return err
		}
	}

	if c.Logging.MaxFileSize < 0 {
		return fmt.Errorf("invalid max_file_size_mb: must be non-negative")
	}
	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("invalid max_backups: must be non-negative")
	}
	if c.Logging.MaxAge < 0 {
		return fmt.Errorf("invalid max_age_days: must be non-negative")
	}
	return nil
}

// validateHTTP validates the retry and timeout policy
func (c *Config) validateHTTP() error {
	if err := validation.DurationRange(c.HTTP.Timeout, time.Second, 10*time.Minute, "http.timeout"); err != nil {
		return err
	}
	if err := validation.IntegerRange(c.HTTP.MaxAttempts, 1, 20, "http.max_attempts"); err != nil {
		return err
	}
	if err := validation.DurationRange(c.HTTP.InitialDelay, 0, time.Hour, "http.initial_delay"); err != nil {
		return err
	}
	if c.HTTP.MaxDelay < c.HTTP.InitialDelay {
		return fmt.Errorf("invalid http.max_delay: must not be below http.initial_delay (%s)", c.HTTP.InitialDelay)
	}
	return nil
}

// validatePlatforms validates platform configurations
func (c *Config) validatePlatforms() error {
	for _, name := range []string{"hackerone", "bugcrowd", "yeswehack", "intigriti"} {
		p, _ := c.Platform(name)
		if p.APIUrl != "" {
			if err := validation.ConfigURL(p.APIUrl); err != nil {
				return fmt.Errorf("invalid %s.api_url: %w", name, err)
			}
		}
		if err := validation.DurationRange(p.RequestDelay, 0, time.Minute, name+".request_delay"); err != nil {
			return err
		}
		if p.RPS < 0 {
			return fmt.Errorf("invalid %s.rps: must be non-negative", name)
		}
	}
	return nil
}

// RequireCredentials checks that every selected platform needing
// credentials has them. It runs before any fetch; a failure is fatal.
func (c *Config) RequireCredentials(platforms []string) error {
	var missing []string
	for _, name := range platforms {
		p, _ := c.Platform(name)
		for key, env := range credentialEnv {
			field, ok := strings.CutPrefix(key, name+".")
			if !ok {
				continue
			}
			if (field == "username" && p.Username == "") || (field == "token" && p.Token == "") {
				missing = append(missing, env)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)
	return bserrors.FatalError(
		fmt.Sprintf("missing credentials: set %s", strings.Join(missing, ", ")), nil).
		WithContext("variables", missing)
}
