package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perplext/bountyscope/internal/platform"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/ratelimit"
)

// scriptedEnricher fails the handles listed in failures and marks the
// rest as enriched.
type scriptedEnricher struct {
	failures map[string]error
	calls    []string
	onCall   func(handle string)
}

func (e *scriptedEnricher) Enrich(_ context.Context, _ ratelimit.Fetcher, record models.ProgramRecord) (models.ProgramRecord, error) {
	handle, _ := record.String("handle")
	e.calls = append(e.calls, handle)
	if e.onCall != nil {
		e.onCall(handle)
	}
	if err, ok := e.failures[handle]; ok {
		return nil, err
	}
	out := record.Clone()
	out["enriched"] = true
	return out, nil
}

func scriptedSource(e platform.Enricher) platform.Source {
	return platform.Source{
		Config:   models.PlatformSource{Name: "test", DetailJoinKey: "handle"},
		Enricher: e,
	}
}

func records(handles ...string) []models.ProgramRecord {
	out := make([]models.ProgramRecord, 0, len(handles))
	for _, h := range handles {
		out = append(out, models.ProgramRecord{"handle": h})
	}
	return out
}

func TestEnrichAllIsolatesFailures(t *testing.T) {
	enricher := &scriptedEnricher{failures: map[string]error{
		"b": bserrors.NotFoundError("program", "b"),
		"d": bserrors.SchemaError("relationships", "test"),
		"f": bserrors.PermissionError("forbidden"),
	}}

	var drops []Drop
	out, err := EnrichAll(context.Background(), scriptedSource(enricher), nil,
		records("a", "b", "c", "d", "e", "f", "g"), func(d Drop) { drops = append(drops, d) })
	require.NoError(t, err)

	var handles []string
	for _, r := range out {
		h, _ := r.String("handle")
		handles = append(handles, h)
		assert.Equal(t, true, r["enriched"])
	}
	assert.Equal(t, []string{"a", "c", "e", "g"}, handles)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, enricher.calls)

	require.Len(t, drops, 3)
	assert.Equal(t, Drop{Handle: "b", Reason: ReasonNotFound, Err: drops[0].Err}, drops[0])
	assert.Equal(t, ReasonSchema, drops[1].Reason)
	assert.Equal(t, "f", drops[2].Handle)
	assert.Equal(t, ReasonPermission, drops[2].Reason)
}

func TestEnrichAllDoesNotModifyInput(t *testing.T) {
	in := records("a")
	out, err := EnrichAll(context.Background(), scriptedSource(&scriptedEnricher{}), nil, in, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NotContains(t, in[0], "enriched")
}

func TestEnrichAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	enricher := &scriptedEnricher{onCall: func(handle string) {
		if handle == "b" {
			cancel()
		}
	}}

	out, err := EnrichAll(ctx, scriptedSource(enricher), nil, records("a", "b", "c"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, out, 2)
	assert.Equal(t, []string{"a", "b"}, enricher.calls)
}

func TestEnrichAllCancelledDuringFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	enricher := &scriptedEnricher{
		failures: map[string]error{"a": context.Canceled},
		onCall:   func(string) { cancel() },
	}

	var drops int
	_, err := EnrichAll(ctx, scriptedSource(enricher), nil, records("a", "b"), func(Drop) { drops++ })
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, drops, "a cancelled request is not a dropped record")
}

func TestDropReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", bserrors.HTTPStatusError("x", 404), ReasonNotFound},
		{"forbidden", bserrors.HTTPStatusError("x", 403), ReasonPermission},
		{"schema", bserrors.SchemaError("scopes", "yeswehack"), ReasonSchema},
		{"gave up", bserrors.TransientError("detail request gave up after retries", nil), ReasonDegraded},
		{"wrapped transient", bserrors.Wrap(bserrors.TransientError("x", nil), bserrors.ErrorTypeExternal, "y"), ReasonDegraded},
		{"fatal", bserrors.HTTPStatusError("x", 400), ReasonFatal},
		{"plain", errors.New("boom"), ReasonError},
		{"internal", bserrors.InternalError("x", nil), ReasonError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DropReason(tt.err))
		})
	}
}
