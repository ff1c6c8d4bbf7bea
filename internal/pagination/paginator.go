// Package pagination turns a platform's list endpoint into a finite
// sequence of raw pages.
//
// A Paginator is an explicit, forward-only iterator:
//
//	p := pagination.New(client, strategy, endpoint, nil)
//	for {
//		page, ok := p.Next(ctx)
//		if !ok {
//			break
//		}
//		// use page
//	}
//	if err := p.Err(); err != nil { ... }
//
// Iteration stops when the strategy finds no further page, when the client
// degrades a page after exhausting its retries (Degraded reports true), on
// a non-retryable error (returned by Err), or at the page limit.
package pagination

import (
	"context"
	"net/url"

	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/ratelimit"
)

// DefaultMaxPages bounds a single iteration
const DefaultMaxPages = 1000

// Paginator yields the pages of one list endpoint
type Paginator struct {
	fetcher  ratelimit.Fetcher
	strategy Strategy
	cursor   Cursor
	maxPages int

	started   bool
	done      bool
	pages     int
	degraded  bool
	truncated bool
	err       error
}

// New creates a Paginator starting at endpoint with params. params are
// copied and never mutated.
func New(fetcher ratelimit.Fetcher, strategy Strategy, endpoint string, params url.Values) *Paginator {
	return &Paginator{
		fetcher:  fetcher,
		strategy: strategy,
		cursor:   Cursor{Endpoint: endpoint, Params: params}.Clone(),
		maxPages: DefaultMaxPages,
	}
}

// WithMaxPages overrides the page limit. It has no effect once iteration started.
func (p *Paginator) WithMaxPages(n int) *Paginator {
	if !p.started && n > 0 {
		p.maxPages = n
	}
	return p
}

// Next fetches and returns the next page. It returns false when iteration
// is over; every later call also returns false.
func (p *Paginator) Next(ctx context.Context) (models.RawPage, bool) {
	if p.done {
		return nil, false
	}
	if !p.started {
		p.started = true
		p.cursor = p.strategy.Start(p.cursor)
	}
	if p.pages >= p.maxPages {
		p.truncated = true
		p.done = true
		return nil, false
	}

	req := p.cursor.Clone()
	result, err := p.fetcher.Fetch(ctx, req.Endpoint, req.Params)
	if err != nil {
		p.err = err
		p.done = true
		return nil, false
	}
	if result.Degraded {
		p.degraded = true
		p.done = true
		return nil, false
	}

	p.pages++
	if next, ok := p.strategy.Advance(p.cursor, result.Body); ok {
		p.cursor = next
	} else {
		p.done = true
	}
	return result.Body, true
}

// Err returns the error that ended iteration, if any
func (p *Paginator) Err() error {
	return p.err
}

// Degraded reports whether iteration ended on a page the client gave up on
func (p *Paginator) Degraded() bool {
	return p.degraded
}

// Truncated reports whether iteration hit the page limit
func (p *Paginator) Truncated() bool {
	return p.truncated
}

// Pages returns the number of pages yielded so far
func (p *Paginator) Pages() int {
	return p.pages
}
