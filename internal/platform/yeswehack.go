package platform

import (
	"context"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/ratelimit"
)

func init() {
	Register("yeswehack", func(src models.PlatformSource) (Enricher, Normalizer) {
		return &YesWeHackEnricher{src: src}, YesWeHackNormalizer{}
	})
}

// YesWeHackEnricher attaches the program's scopes
type YesWeHackEnricher struct {
	src models.PlatformSource
}

// Enrich implements Enricher. The detail's out_of_scope list is carried
// along when present.
func (e *YesWeHackEnricher) Enrich(ctx context.Context, fetcher ratelimit.Fetcher, record models.ProgramRecord) (models.ProgramRecord, error) {
	slug, err := joinKey(e.src, record)
	if err != nil {
		return nil, err
	}

	detail, err := fetchDetail(ctx, fetcher, detailURL(e.src, slug))
	if err != nil {
		return nil, err
	}

	if _, ok := models.ListAt(detail, "scopes"); !ok {
		return nil, bserrors.SchemaError("scopes", e.src.Name).WithContext("handle", slug)
	}

	clone := models.ProgramRecord(detail).Clone()
	out := record.Clone()
	out["scopes"] = clone["scopes"]
	if _, ok := models.ListAt(detail, "out_of_scope"); ok {
		out["out_of_scope"] = clone["out_of_scope"]
	}
	return out, nil
}

// YesWeHackNormalizer projects YesWeHack programs
type YesWeHackNormalizer struct{}

// Eligible implements Normalizer: not disabled, no terms acceptance
// required and not explicitly private.
func (YesWeHackNormalizer) Eligible(record models.ProgramRecord) bool {
	if boolOr(record, "disabled") || boolOr(record, "tac_required") {
		return false
	}
	if public, ok := models.BoolAt(record, "public"); ok && !public {
		return false
	}
	return true
}

// Normalize implements Normalizer
func (n YesWeHackNormalizer) Normalize(record models.ProgramRecord) (models.CanonicalProgram, bool) {
	if !n.Eligible(record) {
		return models.CanonicalProgram{}, false
	}
	slug, ok := record.String("slug")
	if !ok || slug == "" {
		return models.CanonicalProgram{}, false
	}

	assets := models.NewAssets()
	for _, scope := range objects(record, "scopes") {
		assets.Add(models.NewScopeAsset(
			stringOr(scope, "scope", models.Unknown),
			stringOr(scope, "scope_type", models.Unknown),
		), true)
	}

	// out_of_scope entries are plain strings or scope objects
	list, _ := models.ListAt(record, "out_of_scope")
	for _, item := range list {
		switch v := item.(type) {
		case string:
			assets.Add(models.NewScopeAsset(v, models.Unknown), false)
		case map[string]any:
			assets.Add(models.NewScopeAsset(
				stringOr(v, "scope", models.Unknown),
				stringOr(v, "scope_type", models.Unknown),
			), false)
		}
	}

	return models.CanonicalProgram{
		Handle: slug,
		Bounty: boolOr(record, "bounty"),
		Active: !boolOr(record, "disabled"),
		Assets: assets,
	}, true
}
