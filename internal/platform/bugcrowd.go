package platform

import (
	"context"
	"strings"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/ratelimit"
)

func init() {
	Register("bugcrowd", func(src models.PlatformSource) (Enricher, Normalizer) {
		return &BugcrowdEnricher{src: src}, BugcrowdNormalizer{}
	})
}

// BugcrowdEnricher attaches the program's target groups, each completed
// with its targets.
type BugcrowdEnricher struct {
	src models.PlatformSource
}

// Enrich implements Enricher
func (e *BugcrowdEnricher) Enrich(ctx context.Context, fetcher ratelimit.Fetcher, record models.ProgramRecord) (models.ProgramRecord, error) {
	raw, err := joinKey(e.src, record)
	if err != nil {
		return nil, err
	}
	brief := strings.Trim(raw, "/")
	if brief == "" {
		return nil, bserrors.SchemaError(e.src.DetailJoinKey, e.src.Name)
	}

	if status, _ := record.String("status"); status == "deleted" {
		return nil, deletedError(brief)
	}

	detail, err := fetchDetail(ctx, fetcher, detailURL(e.src, brief))
	if err != nil {
		return nil, err
	}
	if status, _ := models.StringAt(detail, "status"); status == "deleted" {
		return nil, deletedError(brief)
	}

	groups, ok := models.ListAt(detail, "groups")
	if !ok {
		return nil, bserrors.SchemaError("groups", e.src.Name).WithContext("handle", brief)
	}

	enriched := make([]any, 0, len(groups))
	for _, item := range groups {
		group, ok := item.(map[string]any)
		if !ok {
			return nil, bserrors.SchemaError("groups", e.src.Name).WithContext("handle", brief)
		}
		targetsURL, ok := models.StringAt(group, "targets_url")
		if !ok || targetsURL == "" {
			return nil, bserrors.SchemaError("targets_url", e.src.Name).WithContext("handle", brief)
		}

		page, err := fetchDetail(ctx, fetcher, e.src.URL(targetsURL+".json"))
		if err != nil {
			return nil, err
		}
		targets, ok := models.ListAt(page, "targets")
		if !ok {
			targets = []any{}
		}

		g := models.ProgramRecord(group).Clone()
		g["targets"] = targets
		enriched = append(enriched, map[string]any(g))
	}

	out := record.Clone()
	out["target_groups"] = enriched
	return out, nil
}

func deletedError(brief string) error {
	return bserrors.NotFoundError("program", brief).WithContext("status", "deleted")
}

// BugcrowdNormalizer projects Bugcrowd engagements and merges them with the
// previous snapshot.
type BugcrowdNormalizer struct{}

// Eligible implements Normalizer: only open engagements are kept
func (BugcrowdNormalizer) Eligible(record models.ProgramRecord) bool {
	access, _ := record.String("accessStatus")
	return access == "open"
}

// Normalize implements Normalizer
func (n BugcrowdNormalizer) Normalize(record models.ProgramRecord) (models.CanonicalProgram, bool) {
	if !n.Eligible(record) {
		return models.CanonicalProgram{}, false
	}
	brief, _ := record.String("briefUrl")
	handle := strings.Trim(brief, "/")
	if handle == "" {
		return models.CanonicalProgram{}, false
	}

	assets := models.NewAssets()
	for _, group := range objects(record, "target_groups") {
		inScope := boolOr(group, "in_scope")
		for _, target := range objects(group, "targets") {
			identifier := stringOr(target, "name", "")
			if identifier == "" {
				identifier = stringOr(target, "uri", models.Unknown)
			}
			assets.Add(models.NewScopeAsset(identifier, stringOr(target, "category", models.Unknown)), inScope)
		}
	}

	category, _ := record.String("category")
	return models.CanonicalProgram{
		Handle: handle,
		Bounty: category == "rdp",
		Active: true,
		Assets: assets,
	}, true
}

// Merge folds the previous snapshot into the fresh one. Programs are keyed
// by handle and the fresh entry wins. Fresh programs keep their order and
// programs only present in previous follow in their previous order.
func (BugcrowdNormalizer) Merge(previous, fresh []models.CanonicalProgram) []models.CanonicalProgram {
	out := make([]models.CanonicalProgram, 0, len(fresh)+len(previous))
	index := make(map[string]int, len(fresh)+len(previous))

	for _, p := range fresh {
		if i, ok := index[p.Handle]; ok {
			out[i] = p
			continue
		}
		index[p.Handle] = len(out)
		out = append(out, p)
	}
	for _, p := range previous {
		if _, ok := index[p.Handle]; ok {
			continue
		}
		index[p.Handle] = len(out)
		out = append(out, p)
	}
	return out
}
