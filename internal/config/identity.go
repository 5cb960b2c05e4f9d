package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// ProjectIdentity names one running devrig project: a human name taken
// from the manifest plus an id derived from the manifest's canonical
// path, so that two checkouts of the same project never collide and
// the same checkout always resolves to the same identity across runs.
type ProjectIdentity struct {
	Name       string
	ID         string
	Slug       string
	ConfigPath string
}

// computeProjectID hashes the given path string with SHA-256 and
// returns the first 8 hex characters. It does not canonicalize the
// path itself; callers canonicalize first when stability across
// relative/symlinked invocations matters.
func computeProjectID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:4])
}

// NewProjectIdentity builds a ProjectIdentity from a loaded
// Configuration. cfg.Path is canonicalized (symlinks resolved) so the
// id is stable regardless of how the manifest path was first expressed.
func NewProjectIdentity(cfg *Configuration) (ProjectIdentity, error) {
	canonical, err := filepath.EvalSymlinks(cfg.Path)
	if err != nil {
		return ProjectIdentity{}, fmt.Errorf("resolving canonical manifest path: %w", err)
	}
	id := computeProjectID(canonical)
	return ProjectIdentity{
		Name:       cfg.Project,
		ID:         id,
		Slug:       fmt.Sprintf("%s-%s", cfg.Project, id),
		ConfigPath: canonical,
	}, nil
}
