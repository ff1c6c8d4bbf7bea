// Package storage persists fetch output: JSON artifacts on disk for the
// consumers of a run and a SQLite archive of run history.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/perplext/bountyscope/internal/scope"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/jsonutil"
	"github.com/perplext/bountyscope/pkg/models"
	"github.com/perplext/bountyscope/pkg/utils"
)

const briefDir = "brief"

// FileStore writes per-platform artifacts under an output directory:
//
//	<dir>/<platform>.json                raw enriched records
//	<dir>/brief/<platform>.json          canonical programs
//	<dir>/brief/<platform>_domains.txt   in-scope hostnames
//	<dir>/brief/<platform>_wildcards.txt in-scope wildcard roots
//
// Each platform only touches its own files, so pipelines may share one store.
type FileStore struct {
	dir string
}

// NewFileStore creates the output directory layout
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, bserrors.ValidationError("output directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, briefDir), 0755); err != nil {
		return nil, bserrors.InternalError("failed to create output directory", err).
			WithContext("dir", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the output directory
func (s *FileStore) Dir() string {
	return s.dir
}

// RawPath returns the raw artifact path for a platform
func (s *FileStore) RawPath(platform string) string {
	return filepath.Join(s.dir, platform+".json")
}

// BriefPath returns the canonical artifact path for a platform
func (s *FileStore) BriefPath(platform string) string {
	return filepath.Join(s.dir, briefDir, platform+".json")
}

// SaveRaw writes the enriched records before normalization
func (s *FileStore) SaveRaw(platform string, records []models.ProgramRecord) error {
	if err := checkName(platform); err != nil {
		return err
	}
	if records == nil {
		records = []models.ProgramRecord{}
	}
	return s.write(s.RawPath(platform), records)
}

// SaveBrief writes the canonical programs
func (s *FileStore) SaveBrief(platform string, programs []models.CanonicalProgram) error {
	if err := checkName(platform); err != nil {
		return err
	}
	if programs == nil {
		programs = []models.CanonicalProgram{}
	}
	return s.write(s.BriefPath(platform), programs)
}

// LoadBrief reads the previous canonical snapshot. A missing file is an
// empty snapshot; an unreadable one is an error.
func (s *FileStore) LoadBrief(platform string) ([]models.CanonicalProgram, error) {
	if err := checkName(platform); err != nil {
		return nil, err
	}

	path := s.BriefPath(platform)
	data, err := utils.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, bserrors.InternalError("failed to read snapshot", err).WithContext("path", path)
	}

	var programs []models.CanonicalProgram
	if err := jsonutil.Unmarshal(data, &programs); err != nil {
		return nil, bserrors.Wrap(err, bserrors.ErrorTypeSchema, "snapshot is not a program list").
			WithContext("path", path)
	}
	return programs, nil
}

// SaveScopeLists writes the hostname lists, one entry per line
func (s *FileStore) SaveScopeLists(platform string, lists scope.Lists) error {
	if err := checkName(platform); err != nil {
		return err
	}

	base := filepath.Join(s.dir, briefDir, platform)
	if err := utils.WriteFile(base+"_domains.txt", lines(lists.Domains)); err != nil {
		return bserrors.InternalError("failed to write domain list", err).WithContext("platform", platform)
	}
	if err := utils.WriteFile(base+"_wildcards.txt", lines(lists.Wildcards)); err != nil {
		return bserrors.InternalError("failed to write wildcard list", err).WithContext("platform", platform)
	}
	return nil
}

func (s *FileStore) write(path string, v any) error {
	data, err := jsonutil.MarshalArtifact(v)
	if err != nil {
		return bserrors.InternalError("failed to encode artifact", err).WithContext("path", path)
	}
	if err := utils.WriteFile(path, data); err != nil {
		return bserrors.InternalError("failed to write artifact", err).WithContext("path", path)
	}
	return nil
}

func lines(entries []string) []byte {
	if len(entries) == 0 {
		return nil
	}
	return []byte(strings.Join(entries, "\n") + "\n")
}

// checkName rejects platform names that would escape the output directory
func checkName(platform string) error {
	if platform == "" || strings.ContainsAny(platform, `/\`) || strings.Contains(platform, "..") {
		return bserrors.ValidationError("invalid platform name %q", platform)
	}
	return nil
}
