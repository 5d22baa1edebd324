package dialect

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/agentic-research/wildfly-postgresql/internal/writeback"
)

var (
	// ErrNoDialectValue means the descriptor declares the property but holds
	// no dialect-shaped class to replace.
	ErrNoDialectValue = errors.New("no dialect class found in descriptor")
	// ErrAmbiguousDialect means more than one dialect-shaped class appears.
	ErrAmbiguousDialect = errors.New("more than one dialect class found in descriptor")
	// ErrNotAClass means the replacement is not a plain dialect class name.
	ErrNotAClass = errors.New("not a dialect class name")
)

var (
	propertyPattern = regexp.MustCompile(`<property\s+name="hibernate\.dialect"`)
	classPattern    = regexp.MustCompile(`org\.hibernate\.dialect\.[A-Za-z0-9_]*Dialect`)
)

// Detect reports whether the descriptor at path declares hibernate.dialect.
func Detect(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read descriptor: %w", err)
	}
	return DetectBytes(data), nil
}

// DetectBytes is Detect over an in-memory descriptor.
func DetectBytes(data []byte) bool {
	return propertyPattern.Match(data)
}

// Current returns the dialect class the descriptor names, if exactly one.
func Current(data []byte) (string, error) {
	matches := classPattern.FindAll(data, 2)
	switch len(matches) {
	case 0:
		return "", ErrNoDialectValue
	case 1:
		return string(matches[0]), nil
	default:
		return "", ErrAmbiguousDialect
	}
}

// Rewrite replaces the single dialect class in the descriptor at path with
// value, leaving every other byte as it was. It reports false without writing
// when the descriptor already names value.
func Rewrite(path, value string) (bool, error) {
	if !qualifiedClass.MatchString(value) {
		return false, fmt.Errorf("%q: %w", value, ErrNotAClass)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read descriptor: %w", err)
	}

	loc := classPattern.FindAllIndex(data, -1)
	switch {
	case len(loc) == 0:
		return false, fmt.Errorf("%s: %w", path, ErrNoDialectValue)
	case len(loc) > 1:
		return false, fmt.Errorf("%s: %w (%d matches)", path, ErrAmbiguousDialect, len(loc))
	}
	start, end := loc[0][0], loc[0][1]
	if string(data[start:end]) == value {
		return false, nil
	}

	if err := writeback.Splice(path, start, end, []byte(value)); err != nil {
		return false, err
	}
	return true, nil
}
