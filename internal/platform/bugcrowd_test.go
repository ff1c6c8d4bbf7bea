package platform

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/models"
)

func bcRecord(brief, access, category string) models.ProgramRecord {
	return models.ProgramRecord{
		"name":         brief,
		"briefUrl":     "/" + brief,
		"accessStatus": access,
		"category":     category,
	}
}

func TestBugcrowdEnrich(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/engagements/acme/target_groups.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"groups": []any{
				map[string]any{"name": "Primary", "in_scope": true, "targets_url": "/engagements/acme/target_groups/1/targets"},
				map[string]any{"name": "Excluded", "in_scope": false, "targets_url": "/engagements/acme/target_groups/2/targets"},
			},
		})
	})
	mux.HandleFunc("/engagements/acme/target_groups/1/targets.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"targets": []any{
			map[string]any{"name": "*.acme.com", "category": "website"},
			map[string]any{"uri": "https://api.acme.com", "category": "api"},
		}})
	})
	mux.HandleFunc("/engagements/acme/target_groups/2/targets.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"targets": []any{
			map[string]any{"name": "status.acme.com"},
		}})
	})

	src, client := newTestSource(t, "bugcrowd", mux)

	record := bcRecord("engagements/acme", "open", "rdp")
	enriched, err := src.Enricher.Enrich(context.Background(), client, record)
	require.NoError(t, err)

	groups, ok := models.ListAt(enriched, "target_groups")
	require.True(t, ok)
	assert.Len(t, groups, 2)
	assert.NotContains(t, record, "target_groups")

	program, ok := src.Normalizer.Normalize(enriched)
	require.True(t, ok)
	assert.Equal(t, "engagements/acme", program.Handle)
	assert.True(t, program.Bounty)
	assert.True(t, program.Active)
	assert.Equal(t, []models.ScopeAsset{
		{Identifier: "*.acme.com", Type: "website"},
		{Identifier: "https://api.acme.com", Type: "api"},
	}, program.Assets.InScope)
	assert.Equal(t, []models.ScopeAsset{{Identifier: "status.acme.com", Type: "unknown"}}, program.Assets.OutOfScope)
	assertPartition(t, program, 3)
}

func TestBugcrowdEnrichMissingTargetsDefaultsToEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/acme/target_groups.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"groups": []any{
			map[string]any{"in_scope": true, "targets_url": "/acme/target_groups/1/targets"},
		}})
	})
	mux.HandleFunc("/acme/target_groups/1/targets.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"meta": map[string]any{}})
	})

	src, client := newTestSource(t, "bugcrowd", mux)
	enriched, err := src.Enricher.Enrich(context.Background(), client, bcRecord("acme", "open", "vdp"))
	require.NoError(t, err)

	targets, ok := models.ListAt(enriched, "target_groups.0.targets")
	require.True(t, ok)
	assert.Empty(t, targets)
}

func TestBugcrowdEnrichExclusions(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		record   models.ProgramRecord
		wantType bserrors.ErrorType
	}{
		{
			name: "deleted detail",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{"status": "deleted", "groups": []any{}})
			},
			record:   bcRecord("acme", "open", "vdp"),
			wantType: bserrors.ErrorTypeNotFound,
		},
		{
			name: "deleted listing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				t.Error("no request expected for a deleted listing")
			},
			record: func() models.ProgramRecord {
				r := bcRecord("acme", "open", "vdp")
				r["status"] = "deleted"
				return r
			}(),
			wantType: bserrors.ErrorTypeNotFound,
		},
		{
			name: "missing groups",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{"error": "unexpected"})
			},
			record:   bcRecord("acme", "open", "vdp"),
			wantType: bserrors.ErrorTypeSchema,
		},
		{
			name: "group without targets url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{"groups": []any{map[string]any{"in_scope": true}}})
			},
			record:   bcRecord("acme", "open", "vdp"),
			wantType: bserrors.ErrorTypeSchema,
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			record:   bcRecord("acme", "open", "vdp"),
			wantType: bserrors.ErrorTypePermission,
		},
		{
			name: "blank brief url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				t.Error("no request expected")
			},
			record:   models.ProgramRecord{"briefUrl": "/", "accessStatus": "open"},
			wantType: bserrors.ErrorTypeSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, client := newTestSource(t, "bugcrowd", tt.handler)
			_, err := src.Enricher.Enrich(context.Background(), client, tt.record)
			require.Error(t, err)
			assert.True(t, bserrors.Is(err, tt.wantType), "got %v", err)
		})
	}
}

func TestBugcrowdEligibility(t *testing.T) {
	n := BugcrowdNormalizer{}

	records := []models.ProgramRecord{
		bcRecord("open-vdp", "open", "vdp"),
		bcRecord("invite", "invite_only", "rdp"),
		bcRecord("open-rdp", "open", "rdp"),
		bcRecord("closed", "closed", "vdp"),
		{"briefUrl": "/no-status"},
	}

	programs := NormalizeAll(n, records)
	require.Len(t, programs, 2)
	assert.Equal(t, "open-vdp", programs[0].Handle)
	assert.False(t, programs[0].Bounty)
	assert.Equal(t, "open-rdp", programs[1].Handle)
	assert.True(t, programs[1].Bounty)
}

func canonical(handle string, bounty bool) models.CanonicalProgram {
	assets := models.NewAssets()
	assets.Add(models.NewScopeAsset(handle+".com", "website"), true)
	return models.CanonicalProgram{Handle: handle, Bounty: bounty, Active: true, Assets: assets}
}

func TestBugcrowdMerge(t *testing.T) {
	n := BugcrowdNormalizer{}

	t.Run("identical sets", func(t *testing.T) {
		set := []models.CanonicalProgram{canonical("a", false), canonical("b", true)}
		assert.Equal(t, set, n.Merge(set, set))
	})

	t.Run("fresh wins on collision", func(t *testing.T) {
		previous := []models.CanonicalProgram{canonical("a", false), canonical("b", false)}
		fresh := []models.CanonicalProgram{canonical("a", false), canonical("b", true)}

		merged := n.Merge(previous, fresh)
		require.Len(t, merged, 2)
		assert.True(t, merged[1].Bounty)
	})

	t.Run("union keeps previous only programs after fresh ones", func(t *testing.T) {
		previous := []models.CanonicalProgram{canonical("old", false), canonical("shared", false)}
		fresh := []models.CanonicalProgram{canonical("new", true), canonical("shared", true)}

		merged := n.Merge(previous, fresh)
		var handles []string
		for _, p := range merged {
			handles = append(handles, p.Handle)
		}
		assert.Equal(t, []string{"new", "shared", "old"}, handles)
		assert.True(t, merged[1].Bounty)
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		previous := []models.CanonicalProgram{canonical("x", false)}
		fresh := []models.CanonicalProgram{canonical("y", true)}

		once := n.Merge(previous, fresh)
		assert.Equal(t, once, n.Merge(once, fresh))
		assert.Equal(t, once, n.Merge(previous, once))
	})

	t.Run("empty previous", func(t *testing.T) {
		fresh := []models.CanonicalProgram{canonical("y", true)}
		assert.Equal(t, fresh, n.Merge(nil, fresh))
	})
}
