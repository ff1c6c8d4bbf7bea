package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func h1Scope(identifier, assetType string, eligible bool) map[string]any {
	return map[string]any{
		"id":   identifier,
		"type": "structured-scope",
		"attributes": map[string]any{
			"asset_identifier":        identifier,
			"asset_type":              assetType,
			"eligible_for_submission": eligible,
		},
	}
}

func h1Record(handle, state string, bounties bool) models.ProgramRecord {
	return models.ProgramRecord{
		"id":   "1",
		"type": "program",
		"attributes": map[string]any{
			"handle":           handle,
			"submission_state": state,
			"offers_bounties":  bounties,
		},
	}
}

func TestHackerOneEnrich(t *testing.T) {
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/hackers/programs/acme", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "hacker", user)
		assert.Equal(t, "h1-token", pass)

		writeJSON(w, map[string]any{
			"id": "1",
			"relationships": map[string]any{
				"structured_scopes": map[string]any{
					"data":  []any{h1Scope("acme.com", "URL", true)},
					"links": map[string]any{"next": serverURL + "/v1/hackers/programs/acme/structured_scopes?page%5Bnumber%5D=2"},
				},
			},
		})
	})
	mux.HandleFunc("/v1/hackers/programs/acme/structured_scopes", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page[number]") {
		case "2":
			writeJSON(w, map[string]any{
				"data":  []any{h1Scope("*.acme.com", "WILDCARD", true)},
				"links": map[string]any{"next": serverURL + "/v1/hackers/programs/acme/structured_scopes?page%5Bnumber%5D=3"},
			})
		default:
			writeJSON(w, map[string]any{
				"data":  []any{h1Scope("blog.acme.com", "URL", false)},
				"links": map[string]any{},
			})
		}
	})

	src, client := newTestSource(t, "hackerone", mux)
	serverURL = src.Config.BaseURL

	record := h1Record("acme", "open", true)
	enriched, err := src.Enricher.Enrich(context.Background(), client, record)
	require.NoError(t, err)

	scopes, ok := models.ListAt(enriched, "relationships.structured_scopes.data")
	require.True(t, ok)
	assert.Len(t, scopes, 3)

	// The input record is untouched
	assert.NotContains(t, record, "relationships")

	program, ok := src.Normalizer.Normalize(enriched)
	require.True(t, ok)
	assert.Equal(t, "acme", program.Handle)
	assert.True(t, program.Bounty)
	assert.True(t, program.Active)
	assert.Equal(t, []models.ScopeAsset{
		{Identifier: "acme.com", Type: "URL"},
		{Identifier: "*.acme.com", Type: "WILDCARD"},
	}, program.Assets.InScope)
	assert.Equal(t, []models.ScopeAsset{{Identifier: "blog.acme.com", Type: "URL"}}, program.Assets.OutOfScope)
	assertPartition(t, program, 3)
}

func TestHackerOneEnrichIsIdempotent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/hackers/programs/acme", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"relationships": map[string]any{
				"structured_scopes": map[string]any{"data": []any{h1Scope("acme.com", "URL", true)}},
			},
		})
	})
	src, client := newTestSource(t, "hackerone", mux)

	record := h1Record("acme", "open", false)
	first, err := src.Enricher.Enrich(context.Background(), client, record)
	require.NoError(t, err)
	second, err := src.Enricher.Enrich(context.Background(), client, record)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Enriching an already enriched record replaces the field instead of duplicating it
	again, err := src.Enricher.Enrich(context.Background(), client, first)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestHackerOneEnrichErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		record   models.ProgramRecord
		wantType bserrors.ErrorType
	}{
		{
			name: "missing relationships",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{"id": "1", "attributes": map[string]any{}})
			},
			record:   h1Record("acme", "open", true),
			wantType: bserrors.ErrorTypeSchema,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			record:   h1Record("acme", "open", true),
			wantType: bserrors.ErrorTypeNotFound,
		},
		{
			name: "server keeps failing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			record:   h1Record("acme", "open", true),
			wantType: bserrors.ErrorTypeTransient,
		},
		{
			name: "record without handle",
			handler: func(w http.ResponseWriter, r *http.Request) {
				t.Error("no request expected")
			},
			record:   models.ProgramRecord{"attributes": map[string]any{}},
			wantType: bserrors.ErrorTypeSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, client := newTestSource(t, "hackerone", tt.handler)

			out, err := src.Enricher.Enrich(context.Background(), client, tt.record)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, bserrors.Is(err, tt.wantType), "got %v", err)
		})
	}
}

func TestHackerOneNormalize(t *testing.T) {
	n := HackerOneNormalizer{}

	tests := []struct {
		name       string
		record     models.ProgramRecord
		wantOK     bool
		wantActive bool
		wantBounty bool
	}{
		{"open with bounties", h1Record("a", "open", true), true, true, true},
		{"paused", h1Record("b", "paused", false), true, false, false},
		{"disabled", h1Record("c", "disabled", true), false, false, false},
		{"empty handle", h1Record("", "open", true), false, false, false},
		{"no attributes", models.ProgramRecord{"id": "9"}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := n.Normalize(tt.record)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOK, n.Eligible(tt.record))
			if ok {
				assert.Equal(t, tt.wantActive, p.Active)
				assert.Equal(t, tt.wantBounty, p.Bounty)
			}
		})
	}
}

func TestHackerOneNormalizeDefaults(t *testing.T) {
	record := h1Record("acme", "open", true)
	delete(record["attributes"].(map[string]any), "offers_bounties")
	record["relationships"] = map[string]any{
		"structured_scopes": map[string]any{
			"data": []any{
				map[string]any{"attributes": map[string]any{"asset_identifier": "api.acme.com"}},
				map[string]any{"attributes": map[string]any{"asset_type": "CIDR", "eligible_for_submission": true}},
			},
		},
	}

	p, ok := HackerOneNormalizer{}.Normalize(record)
	require.True(t, ok)
	assert.False(t, p.Bounty)
	assert.Equal(t, []models.ScopeAsset{{Identifier: "unknown", Type: "CIDR"}}, p.Assets.InScope)
	assert.Equal(t, []models.ScopeAsset{{Identifier: "api.acme.com", Type: "unknown"}}, p.Assets.OutOfScope)
	assertPartition(t, p, 2)
}
