package platform

import (
	_ "embed"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
)

//go:embed platforms.yaml
var platformsYAML []byte

type tableFile struct {
	Platforms map[string]tableRow `yaml:"platforms"`
}

type tableRow struct {
	BaseURL       string                  `yaml:"base_url"`
	Auth          models.AuthKind         `yaml:"auth"`
	CredentialEnv []string                `yaml:"credential_env"`
	ListEndpoints []models.ListEndpoint   `yaml:"list_endpoints"`
	ListField     string                  `yaml:"list_field"`
	DetailPath    string                  `yaml:"detail_path"`
	DetailJoinKey string                  `yaml:"detail_join_key"`
	Pagination    models.PaginationConfig `yaml:"pagination"`
	RPS           float64                 `yaml:"rps"`
	Burst         int                     `yaml:"burst"`
	RequestDelay  time.Duration           `yaml:"request_delay"`
}

var table = mustParseTable(platformsYAML)

func parseTable(data []byte) (map[string]tableRow, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, bserrors.InternalError("failed to parse platform table", err)
	}
	for name, row := range f.Platforms {
		if row.BaseURL == "" || row.ListField == "" || row.DetailJoinKey == "" || len(row.ListEndpoints) == 0 {
			return nil, bserrors.ValidationError("platform %q: base_url, list_endpoints, list_field and detail_join_key are required", name)
		}
		if row.Auth == "" {
			row.Auth = models.AuthNone
			f.Platforms[name] = row
		}
	}
	return f.Platforms, nil
}

func mustParseTable(data []byte) map[string]tableRow {
	rows, err := parseTable(data)
	if err != nil {
		panic(err)
	}
	return rows
}

// Names returns every platform in the table, sorted
func Names() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is in the table
func Known(name string) bool {
	_, ok := table[name]
	return ok
}

// RequiresCredentials returns the environment variables a platform needs,
// or nil when it is public.
func RequiresCredentials(name string) []string {
	row, ok := table[name]
	if !ok || row.Auth == models.AuthNone {
		return nil
	}
	return row.CredentialEnv
}
