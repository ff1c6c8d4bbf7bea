// Package validation checks user supplied values: platform selections,
// configuration URLs, numeric ranges and output paths.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrInvalidPlatform    = errors.New("invalid platform")
	ErrDuplicatePlatform  = errors.New("platform selected twice")
	ErrInvalidURL         = errors.New("invalid URL format")
	ErrInvalidConfigValue = errors.New("invalid configuration value")
	ErrInvalidInteger     = errors.New("invalid integer value")
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrPathTraversal      = errors.New("path traversal detected")
	ErrInvalidPath        = errors.New("invalid file path")
)

// ValidLogLevels are the levels accepted by logging.level
var ValidLogLevels = []string{"debug", "info", "warn", "error", "fatal"}

// ValidLogFormats are the formats accepted by logging.format
var ValidLogFormats = []string{"text", "json"}

// Platform checks that platform is one of known. The comparison ignores
// case and surrounding whitespace.
func Platform(platform string, known []string) error {
	platform = NormalizePlatform(platform)
	for _, valid := range known {
		if platform == valid {
			return nil
		}
	}
	if platform == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidPlatform)
	}
	return fmt.Errorf("%w %q: must be one of: %s", ErrInvalidPlatform, platform, strings.Join(known, ", "))
}

// Platforms validates a selection and returns it normalized. Empty
// entries are ignored; a platform listed twice is an error.
func Platforms(selected []string, known []string) ([]string, error) {
	seen := make(map[string]bool, len(selected))
	var out []string
	for _, p := range selected {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := Platform(p, known); err != nil {
			return nil, err
		}
		p = NormalizePlatform(p)
		if seen[p] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlatform, p)
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// NormalizePlatform lowercases and trims a platform name
func NormalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// ConfigURL validates an API base URL from the configuration. Internal
// hosts are allowed so a local mirror can stand in for a platform.
func ConfigURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("%w: URL cannot be empty", ErrInvalidConfigValue)
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("%w: base URL cannot carry a query or fragment", ErrInvalidURL)
	}
	return nil
}

// PositiveInteger validates that a value is a positive integer
func PositiveInteger(value int, fieldName string) error {
	if value <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidInteger, fieldName)
	}
	return nil
}

// IntegerRange validates that an integer is within a range
func IntegerRange(value int, min int, max int, fieldName string) error {
	if value < min || value > max {
		return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidInteger, fieldName, min, max)
	}
	return nil
}

// DurationRange validates that d lies within [min, max]
func DurationRange(d, min, max time.Duration, fieldName string) error {
	if d < min || d > max {
		return fmt.Errorf("%w: %s must be between %s and %s", ErrInvalidDuration, fieldName, min, max)
	}
	return nil
}

// OneOf validates that value, lowercased, is one of valid
func OneOf(value string, valid []string, fieldName string) error {
	v := strings.ToLower(value)
	for _, candidate := range valid {
		if v == candidate {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q must be one of %s", ErrInvalidConfigValue, fieldName, value, strings.Join(valid, ", "))
}

// DirPath validates a directory setting. Paths climbing out through ".."
// are rejected.
func DirPath(path string, fieldName string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidPath, fieldName)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("%w: %s", ErrPathTraversal, fieldName)
		}
	}
	return nil
}
