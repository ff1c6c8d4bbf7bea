package models

import (
	"net/http"
	"time"
)

// AuthKind selects how a platform client authenticates
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBasic  AuthKind = "basic"
	AuthBearer AuthKind = "bearer"
)

// Credentials holds the secrets configured for one platform
type Credentials struct {
	Username string
	Token    string
}

// Empty reports whether no secret is set
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Token == ""
}

// Auth is the resolved authentication for one platform client
type Auth struct {
	Kind     AuthKind
	Username string
	Token    string
}

// Apply sets the authorization header on req
func (a Auth) Apply(req *http.Request) {
	switch a.Kind {
	case AuthBasic:
		req.SetBasicAuth(a.Username, a.Token)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
}

// PaginationKind names a pagination protocol
type PaginationKind string

const (
	PaginationLinkCursor     PaginationKind = "link_cursor"
	PaginationPageNumber     PaginationKind = "page_number"
	PaginationOffsetSentinel PaginationKind = "offset_sentinel"
)

// PaginationConfig describes how a platform's list endpoint pages
type PaginationConfig struct {
	Kind PaginationKind `yaml:"kind"`

	// link_cursor
	NextPath string `yaml:"next_path"`

	// page_number
	PageParam string `yaml:"page_param"`
	StartPage int    `yaml:"start_page"`
	TotalPath string `yaml:"total_path"`
	Predicate string `yaml:"predicate"`
	SizeParam string `yaml:"size_param"`

	// offset_sentinel
	OffsetParam string `yaml:"offset_param"`
	LimitParam  string `yaml:"limit_param"`

	PageSize int `yaml:"page_size"`
}

// ListEndpoint is one list call of a platform. Tags are copied onto every
// record it yields.
type ListEndpoint struct {
	Path   string            `yaml:"path"`
	Params map[string]string `yaml:"params"`
	Tags   map[string]string `yaml:"tags"`
}

// PlatformSource is the static description of one platform. It is built
// once at startup and only read afterwards.
type PlatformSource struct {
	Name          string
	BaseURL       string
	Auth          Auth
	Pagination    PaginationConfig
	ListEndpoints []ListEndpoint
	ListField     string
	DetailPath    string
	DetailJoinKey string
	RequestDelay  time.Duration
	RPS           float64
	Burst         int
}

// URL joins the base URL and a path
func (s PlatformSource) URL(path string) string {
	return s.BaseURL + path
}
