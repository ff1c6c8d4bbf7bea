package platform

import (
	"context"

	"github.com/perplext/bountyscope/internal/pagination"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/ratelimit"
)

func init() {
	Register("hackerone", func(src models.PlatformSource) (Enricher, Normalizer) {
		return &HackerOneEnricher{src: src}, HackerOneNormalizer{}
	})
}

// HackerOneEnricher attaches the program's relationships, following the
// structured scope pages until every scope is collected.
type HackerOneEnricher struct {
	src models.PlatformSource
}

// Enrich implements Enricher
func (e *HackerOneEnricher) Enrich(ctx context.Context, fetcher ratelimit.Fetcher, record models.ProgramRecord) (models.ProgramRecord, error) {
	handle, err := joinKey(e.src, record)
	if err != nil {
		return nil, err
	}

	detail, err := fetchDetail(ctx, fetcher, detailURL(e.src, handle))
	if err != nil {
		return nil, err
	}

	relationships, ok := models.ObjectAt(detail, "relationships")
	if !ok {
		return nil, bserrors.SchemaError("relationships", e.src.Name).WithContext("handle", handle)
	}
	relationships = models.ProgramRecord(relationships).Clone()

	if err := e.collectScopes(ctx, fetcher, relationships); err != nil {
		return nil, err
	}

	out := record.Clone()
	out["relationships"] = relationships
	return out, nil
}

// collectScopes appends every further structured scope page to
// relationships.structured_scopes.data.
func (e *HackerOneEnricher) collectScopes(ctx context.Context, fetcher ratelimit.Fetcher, relationships map[string]any) error {
	next, ok := models.StringAt(relationships, "structured_scopes.links.next")
	if !ok || next == "" {
		return nil
	}
	scopes, ok := models.ObjectAt(relationships, "structured_scopes")
	if !ok {
		return nil
	}
	data, _ := models.ListAt(scopes, "data")

	p := pagination.New(fetcher, pagination.LinkCursor{}, next, nil)
	for {
		page, more := p.Next(ctx)
		if !more {
			break
		}
		items, ok := models.ListAt(page, "data")
		if !ok {
			return bserrors.SchemaError("structured_scopes.data", e.src.Name)
		}
		data = append(data, items...)
	}
	if err := p.Err(); err != nil {
		return err
	}
	if p.Degraded() || p.Truncated() {
		return bserrors.TransientError("structured scope pages incomplete", nil)
	}

	scopes["data"] = data
	scopes["links"] = map[string]any{}
	return nil
}

// HackerOneNormalizer projects HackerOne programs
type HackerOneNormalizer struct{}

// Eligible implements Normalizer: a handle is present and submissions are
// not disabled.
func (HackerOneNormalizer) Eligible(record models.ProgramRecord) bool {
	handle, ok := record.String("attributes.handle")
	if !ok || handle == "" {
		return false
	}
	state, _ := record.String("attributes.submission_state")
	return state != "disabled"
}

// Normalize implements Normalizer
func (n HackerOneNormalizer) Normalize(record models.ProgramRecord) (models.CanonicalProgram, bool) {
	if !n.Eligible(record) {
		return models.CanonicalProgram{}, false
	}
	handle, _ := record.String("attributes.handle")
	state, _ := record.String("attributes.submission_state")

	assets := models.NewAssets()
	for _, scope := range objects(record, "relationships.structured_scopes.data") {
		asset := models.NewScopeAsset(
			stringOr(scope, "attributes.asset_identifier", models.Unknown),
			stringOr(scope, "attributes.asset_type", models.Unknown),
		)
		assets.Add(asset, boolOr(scope, "attributes.eligible_for_submission"))
	}

	return models.CanonicalProgram{
		Handle: handle,
		Bounty: boolOr(record, "attributes.offers_bounties"),
		Active: state == "open",
		Assets: assets,
	}, true
}
