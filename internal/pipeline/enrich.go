package pipeline

import (
	"context"
	"fmt"

	"github.com/perplext/bountyscope/internal/platform"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/ratelimit"
)

// Drop reasons reported to the sink
const (
	ReasonNotFound   = "not_found"
	ReasonPermission = "permission"
	ReasonSchema     = "schema"
	ReasonDegraded   = "degraded"
	ReasonFatal      = "fatal"
	ReasonError      = "error"
)

// Drop describes a record excluded during enrichment
type Drop struct {
	Handle string
	Reason string
	Err    error
}

// EnrichAll enriches records one at a time and returns the survivors in
// their original order. A record whose enrichment fails is passed to
// onDrop and skipped; only cancellation of ctx stops the loop.
func EnrichAll(ctx context.Context, src platform.Source, fetcher ratelimit.Fetcher, records []models.ProgramRecord, onDrop func(Drop)) ([]models.ProgramRecord, error) {
	out := make([]models.ProgramRecord, 0, len(records))

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("enrichment cancelled: %w", err)
		}

		enriched, err := src.Enricher.Enrich(ctx, fetcher, record)
		if err != nil {
			if ctx.Err() != nil {
				return out, fmt.Errorf("enrichment cancelled: %w", ctx.Err())
			}
			if onDrop != nil {
				handle, _ := record.String(src.Config.DetailJoinKey)
				onDrop(Drop{Handle: handle, Reason: DropReason(err), Err: err})
			}
			continue
		}
		out = append(out, enriched)
	}

	return out, nil
}

// DropReason maps an enrichment error to the reason label it is reported under
func DropReason(err error) string {
	errorType, ok := bserrors.GetType(err)
	if !ok {
		return ReasonError
	}
	// The outermost type wins, but a wrapped transient failure still means
	// the client gave up.
	switch {
	case errorType == bserrors.ErrorTypeNotFound:
		return ReasonNotFound
	case errorType == bserrors.ErrorTypePermission:
		return ReasonPermission
	case errorType == bserrors.ErrorTypeSchema:
		return ReasonSchema
	case errorType == bserrors.ErrorTypeTransient, bserrors.Is(err, bserrors.ErrorTypeTransient):
		return ReasonDegraded
	case errorType == bserrors.ErrorTypeFatal:
		return ReasonFatal
	default:
		return ReasonError
	}
}
