package archive

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrPrecondition marks missing directories, files or invalid arguments.
	ErrPrecondition = errors.New("precondition failed")
	// ErrExtraction marks an archive or member that could not be extracted.
	ErrExtraction = errors.New("extraction failed")
)

// cleanMember normalizes a member path and rejects paths that would escape
// the archive root once extracted.
func cleanMember(member string) (string, error) {
	if member == "" {
		return "", fmt.Errorf("%w: empty member path", ErrPrecondition)
	}
	if strings.Contains(member, `\`) {
		return "", fmt.Errorf("%w: member path %q must use forward slashes", ErrPrecondition, member)
	}
	if path.IsAbs(member) {
		return "", fmt.Errorf("%w: member path %q must be relative", ErrPrecondition, member)
	}
	cleaned := path.Clean(member)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: member path %q escapes the archive root", ErrPrecondition, member)
	}
	return cleaned, nil
}
