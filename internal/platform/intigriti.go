package platform

import (
	"context"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/ratelimit"
)

func init() {
	Register("intigriti", func(src models.PlatformSource) (Enricher, Normalizer) {
		return &IntigritiEnricher{src: src}, IntigritiNormalizer{}
	})
}

const (
	intigritiStatusOpen = 3
	intigritiOutOfScope = "Out Of Scope"
)

// IntigritiEnricher attaches the program's current domains
type IntigritiEnricher struct {
	src models.PlatformSource
}

// Enrich implements Enricher. Programs the token cannot see answer 403 and
// are dropped by the caller.
func (e *IntigritiEnricher) Enrich(ctx context.Context, fetcher ratelimit.Fetcher, record models.ProgramRecord) (models.ProgramRecord, error) {
	id, err := joinKey(e.src, record)
	if err != nil {
		return nil, err
	}

	detail, err := fetchDetail(ctx, fetcher, detailURL(e.src, id))
	if err != nil {
		return nil, err
	}

	if _, ok := models.ListAt(detail, "domains.content"); !ok {
		return nil, bserrors.SchemaError("domains.content", e.src.Name).WithContext("handle", id)
	}

	clone := models.ProgramRecord(detail).Clone()
	content, _ := models.ListAt(clone, "domains.content")

	out := record.Clone()
	out["domains"] = content
	return out, nil
}

// IntigritiNormalizer projects Intigriti programs
type IntigritiNormalizer struct{}

// Eligible implements Normalizer: confidentiality level 3 or 4, excluding
// Intigriti's own test program.
func (IntigritiNormalizer) Eligible(record models.ProgramRecord) bool {
	level, ok := models.NumberAt(record, "confidentialityLevel.id")
	if !ok || (level != 3 && level != 4) {
		return false
	}
	handle, _ := record.String("handle")
	name, _ := record.String("name")
	return !(handle == "dummy" && name == "Test Program")
}

// Normalize implements Normalizer
func (n IntigritiNormalizer) Normalize(record models.ProgramRecord) (models.CanonicalProgram, bool) {
	if !n.Eligible(record) {
		return models.CanonicalProgram{}, false
	}
	handle, ok := record.String("handle")
	if !ok || handle == "" {
		return models.CanonicalProgram{}, false
	}

	assets := models.NewAssets()
	for _, domain := range objects(record, "domains") {
		asset := models.NewScopeAsset(
			stringOr(domain, "endpoint", models.Unknown),
			stringOr(domain, "type.value", models.Unknown),
		)
		assets.Add(asset, stringOr(domain, "tier.value", "") != intigritiOutOfScope)
	}

	maxBounty, _ := models.NumberAt(record, "maxBounty.value")
	status, _ := models.NumberAt(record, "status.id")

	return models.CanonicalProgram{
		Handle: handle,
		Bounty: maxBounty > 0,
		Active: status == intigritiStatusOpen,
		Assets: assets,
	}, true
}
