// Package archive finds deployment archives that carry a given member and
// replaces single members inside them.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// DefaultPattern matches the deployable archives in a deployment root.
const DefaultPattern = "*.war"

// Locate returns the first archive under root (matching DefaultPattern, in
// lexical order) whose central directory lists member. An empty string with a
// nil error means no archive carries the member.
func Locate(root, member string) (string, error) {
	return LocateMatching(root, DefaultPattern, member)
}

// LocateMatching is Locate with a caller-supplied glob pattern.
func LocateMatching(root, pattern, member string) (string, error) {
	member, err := cleanMember(member)
	if err != nil {
		return "", err
	}

	candidates, err := Candidates(root, pattern)
	if err != nil {
		return "", err
	}

	for _, candidate := range candidates {
		if contains(candidate, member) {
			return candidate, nil
		}
	}
	return "", nil
}

// Candidates lists the entries of root whose base name matches pattern, in
// lexical order. Only the name is matched, so root may hold glob
// metacharacters. A missing root has no candidates.
func Candidates(root, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); ok {
			out = append(out, filepath.Join(root, e.Name()))
		}
	}
	return out, nil
}

// contains reports whether the archive at path lists member. Unreadable or
// vanished candidates count as not containing it.
func contains(path, member string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer func() { _ = r.Close() }()

	return findMember(&r.Reader, member) != nil
}

func findMember(r *zip.Reader, member string) *zip.File {
	for _, f := range r.File {
		if f.Name == member {
			return f
		}
	}
	return nil
}
