// Package platform describes the supported bug-bounty platforms: where
// their APIs live, how they page, how a listed program is completed with
// its detail record and how it is projected into a CanonicalProgram.
package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/perplext/bountyscope/internal/pagination"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/ratelimit"
)

// Enricher completes a listed program with the nested data only its
// detail endpoint carries. It must not modify record.
type Enricher interface {
	Enrich(ctx context.Context, fetcher ratelimit.Fetcher, record models.ProgramRecord) (models.ProgramRecord, error)
}

// Normalizer projects enriched records into canonical programs. Both
// methods are pure.
type Normalizer interface {
	// Eligible reports whether the record passes the platform's filter
	Eligible(record models.ProgramRecord) bool
	// Normalize returns the canonical program, or false when the record is
	// ineligible or has no handle
	Normalize(record models.ProgramRecord) (models.CanonicalProgram, bool)
}

// Merger is implemented by normalizers that fold the previous snapshot into
// the fresh one.
type Merger interface {
	Merge(previous, fresh []models.CanonicalProgram) []models.CanonicalProgram
}

// Source bundles everything a pipeline needs to process one platform
type Source struct {
	Config     models.PlatformSource
	Pagination pagination.Strategy
	Enricher   Enricher
	Normalizer Normalizer
}

// Name returns the platform name
func (s Source) Name() string {
	return s.Config.Name
}

// Overrides replaces table values for one platform. Zero values keep the
// table's setting.
type Overrides struct {
	BaseURL      string
	RequestDelay time.Duration
	RPS          float64
}

// Factory builds the enricher and normalizer for a platform
type Factory func(src models.PlatformSource) (Enricher, Normalizer)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register binds a platform name from the table to its behavior
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Construct builds the Source for name from the platform table,
// credentials and overrides. Missing credentials for a platform that
// needs them is a fatal error.
func Construct(name string, creds models.Credentials, overrides Overrides) (Source, error) {
	row, ok := table[name]
	if !ok {
		return Source{}, bserrors.ValidationError("unknown platform %q (known: %s)", name, strings.Join(Names(), ", "))
	}

	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return Source{}, bserrors.InternalError(fmt.Sprintf("platform %q has no registered implementation", name), nil)
	}

	auth, err := resolveAuth(name, row, creds)
	if err != nil {
		return Source{}, err
	}

	src := models.PlatformSource{
		Name:          name,
		BaseURL:       strings.TrimRight(row.BaseURL, "/"),
		Auth:          auth,
		Pagination:    row.Pagination,
		ListEndpoints: row.ListEndpoints,
		ListField:     row.ListField,
		DetailPath:    row.DetailPath,
		DetailJoinKey: row.DetailJoinKey,
		RequestDelay:  row.RequestDelay,
		RPS:           row.RPS,
		Burst:         row.Burst,
	}
	if overrides.BaseURL != "" {
		src.BaseURL = strings.TrimRight(overrides.BaseURL, "/")
	}
	if overrides.RequestDelay > 0 {
		src.RequestDelay = overrides.RequestDelay
	}
	if overrides.RPS > 0 {
		src.RPS = overrides.RPS
	}

	strategy, err := pagination.FromConfig(src.Pagination, src.ListField)
	if err != nil {
		return Source{}, bserrors.Wrap(err, bserrors.ErrorTypeValidation, fmt.Sprintf("platform %q", name))
	}

	enricher, normalizer := factory(src)
	return Source{
		Config:     src,
		Pagination: strategy,
		Enricher:   enricher,
		Normalizer: normalizer,
	}, nil
}

func resolveAuth(name string, row tableRow, creds models.Credentials) (models.Auth, error) {
	auth := models.Auth{Kind: row.Auth, Username: creds.Username, Token: creds.Token}

	missing := false
	switch row.Auth {
	case models.AuthBasic:
		missing = creds.Username == "" || creds.Token == ""
	case models.AuthBearer:
		missing = creds.Token == ""
	case models.AuthNone:
		return models.Auth{Kind: models.AuthNone}, nil
	default:
		return models.Auth{}, bserrors.ValidationError("platform %q: unknown auth kind %q", name, row.Auth)
	}

	if missing {
		return models.Auth{}, bserrors.FatalError(
			fmt.Sprintf("missing credentials for %s: set %s", name, strings.Join(row.CredentialEnv, " and ")), nil).
			WithContext("platform", name)
	}
	return auth, nil
}

// detailURL expands the platform's detail path for one join key value
func detailURL(src models.PlatformSource, key string) string {
	return src.URL(strings.ReplaceAll(src.DetailPath, "{key}", escapePath(key)))
}

// escapePath escapes each segment of key but keeps its slashes
func escapePath(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// joinKey returns the record's join key value or a schema error
func joinKey(src models.PlatformSource, record models.ProgramRecord) (string, error) {
	key, ok := record.String(src.DetailJoinKey)
	if !ok || key == "" {
		return "", bserrors.SchemaError(src.DetailJoinKey, src.Name)
	}
	return key, nil
}

// fetchDetail GETs a detail endpoint. A degraded result becomes a
// transient error so the record is dropped rather than half-filled.
func fetchDetail(ctx context.Context, fetcher ratelimit.Fetcher, endpoint string) (models.RawPage, error) {
	res, err := fetcher.Fetch(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if res.Degraded {
		return nil, bserrors.TransientError("detail request gave up after retries", nil).
			WithContext("endpoint", endpoint)
	}
	return res.Body, nil
}

// NormalizeAll runs Normalize over records, keeping their order
func NormalizeAll(n Normalizer, records []models.ProgramRecord) []models.CanonicalProgram {
	out := make([]models.CanonicalProgram, 0, len(records))
	for _, r := range records {
		if p, ok := n.Normalize(r); ok {
			out = append(out, p)
		}
	}
	return out
}

// stringOr returns the string at path or the fallback
func stringOr(m map[string]any, path, fallback string) string {
	if s, ok := models.StringAt(m, path); ok && s != "" {
		return s
	}
	return fallback
}

// boolOr returns the boolean at path or false
func boolOr(m map[string]any, path string) bool {
	b, _ := models.BoolAt(m, path)
	return b
}

// objects returns the objects of the array at path
func objects(m map[string]any, path string) []map[string]any {
	list, _ := models.ListAt(m, path)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
