package jsonutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"object", `{"data":[{"id":"1"}],"links":{}}`, false},
		{"empty object", `{}`, false},
		{"array", `[1,2,3]`, true},
		{"null", `null`, true},
		{"truncated", `{"data":[`, true},
		{"html error page", `<html>502 Bad Gateway</html>`, true},
		{"empty body", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := DecodeObject(strings.NewReader(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, obj)
		})
	}
}

func TestDecodeObjectNumbersAreFloat(t *testing.T) {
	obj, err := DecodeObject(strings.NewReader(`{"pagination":{"nb_pages":3}}`))
	require.NoError(t, err)

	pagination := obj["pagination"].(map[string]any)
	assert.Equal(t, float64(3), pagination["nb_pages"])
}

func TestMarshalArtifactIsDeterministic(t *testing.T) {
	v := map[string]any{
		"zeta":  1,
		"alpha": map[string]any{"b": true, "a": "x"},
		"mid":   []string{"one"},
	}

	first, err := MarshalArtifact(v)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalArtifact(v)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}

	out := string(first)
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Less(t, strings.Index(out, `"alpha"`), strings.Index(out, `"mid"`))
	assert.Less(t, strings.Index(out, `"mid"`), strings.Index(out, `"zeta"`))
	assert.Contains(t, out, "\n  \"alpha\"")
}

func TestMarshalNilSliceAsEmptyArray(t *testing.T) {
	var programs []string
	data, err := Marshal(programs)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestDecodeObjectToleratesSloppyUpstreams(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		title string
	}{
		{"latin-1 byte", "{\"slug\":\"acme\",\"title\":\"Caf\xe9\"}", "Caf\uFFFD"},
		{"repeated key", `{"slug":"acme","title":"old","title":"new"}`, "new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := DecodeObject(strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, "acme", obj["slug"])
			assert.Equal(t, tt.title, obj["title"])
		})
	}
}

func TestUnmarshalToleratesRepeatedKeys(t *testing.T) {
	var v map[string]any
	require.NoError(t, Unmarshal([]byte(`{"handle":"a","handle":"b"}`), &v))
	assert.Equal(t, "b", v["handle"])
}
