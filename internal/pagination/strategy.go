package pagination

import (
	"strconv"
	"sync"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
)

// Strategy decides where iteration starts and whether it continues. The
// decision depends only on the cursor and the page just fetched.
type Strategy interface {
	// Start returns the first cursor derived from the caller's endpoint
	Start(c Cursor) Cursor
	// Advance returns the cursor for the page after page, or false to stop
	Advance(c Cursor, page models.RawPage) (Cursor, bool)
}

// LinkCursor follows a next-page URL carried in each page
type LinkCursor struct {
	NextPath string // defaults to links.next
}

// Start begins at the caller's endpoint unchanged
func (s LinkCursor) Start(c Cursor) Cursor {
	return c.Clone()
}

// Advance follows the page's next link. A missing, empty or repeated link ends iteration.
func (s LinkCursor) Advance(c Cursor, page models.RawPage) (Cursor, bool) {
	path := s.NextPath
	if path == "" {
		path = "links.next"
	}
	next, ok := models.StringAt(page, path)
	if !ok || next == "" || next == c.Endpoint {
		return Cursor{}, false
	}
	// The link already carries its own query
	return Cursor{Endpoint: next}, true
}

// Predicate reports whether another page follows the given page number
type Predicate func(page models.RawPage, current int) bool

// PagesRemaining continues while total pages at path exceed the current page
func PagesRemaining(path string) Predicate {
	return func(page models.RawPage, current int) bool {
		total, ok := models.NumberAt(page, path)
		return ok && int(total) > current
	}
}

// PagesRemainingInclusive continues while total pages at path exceed
// current-1, so one page past the advertised total is requested.
func PagesRemainingInclusive(path string) Predicate {
	return func(page models.RawPage, current int) bool {
		total, ok := models.NumberAt(page, path)
		return ok && int(total) > current-1
	}
}

// RecordsRemaining continues while fewer than the total record count at
// path have been covered by current pages of pageSize.
func RecordsRemaining(path string, pageSize int) Predicate {
	return func(page models.RawPage, current int) bool {
		total, ok := models.NumberAt(page, path)
		return ok && pageSize > 0 && current*pageSize < int(total)
	}
}

// PageNumber increments a page query parameter while Continue holds
type PageNumber struct {
	Param     string
	StartPage int
	SizeParam string
	PageSize  int
	Continue  Predicate
}

// Start sets the page parameter to StartPage (1 when unset) and the page size when configured
func (s PageNumber) Start(c Cursor) Cursor {
	start := s.StartPage
	if start == 0 {
		start = 1
	}
	c = c.withParam(s.Param, strconv.Itoa(start))
	if s.SizeParam != "" && s.PageSize > 0 {
		c = c.withParam(s.SizeParam, strconv.Itoa(s.PageSize))
	}
	return c
}

// Advance requests the next page number while Continue holds for the page just fetched
func (s PageNumber) Advance(c Cursor, page models.RawPage) (Cursor, bool) {
	current, err := strconv.Atoi(c.Params.Get(s.Param))
	if err != nil || s.Continue == nil || !s.Continue(page, current) {
		return Cursor{}, false
	}
	return c.withParam(s.Param, strconv.Itoa(current+1)), true
}

// OffsetSentinel advances an offset by the limit until a page's list is empty
type OffsetSentinel struct {
	OffsetParam string
	LimitParam  string
	Limit       int
	ListField   string
}

// Start sets the offset to 0 and the limit to Limit
func (s OffsetSentinel) Start(c Cursor) Cursor {
	c = c.withParam(s.OffsetParam, "0")
	return c.withParam(s.LimitParam, strconv.Itoa(s.Limit))
}

// Advance moves the offset forward by Limit unless the page's list was empty or missing
func (s OffsetSentinel) Advance(c Cursor, page models.RawPage) (Cursor, bool) {
	list, ok := models.ListAt(page, s.ListField)
	if !ok || len(list) == 0 || s.Limit <= 0 {
		return Cursor{}, false
	}
	offset, err := strconv.Atoi(c.Params.Get(s.OffsetParam))
	if err != nil {
		return Cursor{}, false
	}
	return c.withParam(s.OffsetParam, strconv.Itoa(offset+s.Limit)), true
}

// Builder constructs a Strategy from a platform's pagination settings
type Builder func(cfg models.PaginationConfig, listField string) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = map[models.PaginationKind]Builder{
		models.PaginationLinkCursor:     buildLinkCursor,
		models.PaginationPageNumber:     buildPageNumber,
		models.PaginationOffsetSentinel: buildOffsetSentinel,
	}
)

// Register adds or replaces the builder for a pagination kind
func Register(kind models.PaginationKind, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = b
}

// FromConfig builds the Strategy registered for cfg.Kind
func FromConfig(cfg models.PaginationConfig, listField string) (Strategy, error) {
	registryMu.RLock()
	b, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, bserrors.ValidationError("unknown pagination kind %q", cfg.Kind)
	}
	return b(cfg, listField)
}

func buildLinkCursor(cfg models.PaginationConfig, _ string) (Strategy, error) {
	return LinkCursor{NextPath: cfg.NextPath}, nil
}

func buildPageNumber(cfg models.PaginationConfig, _ string) (Strategy, error) {
	if cfg.PageParam == "" || cfg.TotalPath == "" {
		return nil, bserrors.ValidationError("page_number pagination needs page_param and total_path")
	}

	var pred Predicate
	switch cfg.Predicate {
	case "", "pages_remaining":
		pred = PagesRemaining(cfg.TotalPath)
	case "pages_remaining_inclusive":
		pred = PagesRemainingInclusive(cfg.TotalPath)
	case "records_remaining":
		if cfg.PageSize <= 0 {
			return nil, bserrors.ValidationError("records_remaining needs a positive page_size")
		}
		pred = RecordsRemaining(cfg.TotalPath, cfg.PageSize)
	default:
		return nil, bserrors.ValidationError("unknown page predicate %q", cfg.Predicate)
	}

	return PageNumber{
		Param:     cfg.PageParam,
		StartPage: cfg.StartPage,
		SizeParam: cfg.SizeParam,
		PageSize:  cfg.PageSize,
		Continue:  pred,
	}, nil
}

func buildOffsetSentinel(cfg models.PaginationConfig, listField string) (Strategy, error) {
	if cfg.PageSize <= 0 {
		return nil, bserrors.ValidationError("offset_sentinel pagination needs a positive page_size, got %d", cfg.PageSize)
	}
	offset, limit := cfg.OffsetParam, cfg.LimitParam
	if offset == "" {
		offset = "offset"
	}
	if limit == "" {
		limit = "limit"
	}
	return OffsetSentinel{
		OffsetParam: offset,
		LimitParam:  limit,
		Limit:       cfg.PageSize,
		ListField:   listField,
	}, nil
}
