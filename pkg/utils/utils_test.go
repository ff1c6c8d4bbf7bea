package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentTime(t *testing.T) {
	now := CurrentTime()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Second)
}

func TestWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "brief", "hackerone.json")

	require.NoError(t, WriteFile(path, []byte(`[]`)))

	data, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	// Overwrite replaces the content without leaving temp files behind
	require.NoError(t, WriteFile(path, []byte(`[{"handle":"acme"}]`)))
	data, err = ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[{"handle":"acme"}]`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	assert.False(t, FileExists(path))
	require.NoError(t, os.WriteFile(path, []byte("debug: true\n"), 0600))
	assert.True(t, FileExists(path))
	assert.False(t, FileExists(dir), "directories are not files")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0ms"},
		{-time.Second, "0ms"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{59 * time.Second, "59.0s"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 2, "ab"},
		{"héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateString(tt.input, tt.maxLen))
		})
	}
}
