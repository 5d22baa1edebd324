package dialect

import (
	"context"

	"github.com/agentic-research/wildfly-postgresql/internal/archive"
)

// Outcome describes what PatchArchive did to the descriptor.
type Outcome int

const (
	// NoProperty means the descriptor declares no dialect; nothing was touched.
	NoProperty Outcome = iota
	// Unchanged means the descriptor already named the target dialect.
	Unchanged
	// Rewritten means the archive now carries the target dialect.
	Rewritten
)

func (o Outcome) String() string {
	switch o {
	case NoProperty:
		return "no-property"
	case Unchanged:
		return "unchanged"
	case Rewritten:
		return "rewritten"
	default:
		return "unknown"
	}
}

// PatchArchive sets the dialect of the descriptor stored as member inside
// war. The value is validated only when the descriptor declares the property.
func PatchArchive(ctx context.Context, war, member, value string, v *Validator) (Outcome, error) {
	outcome := NoProperty
	_, err := archive.Patch(war, member, func(s *archive.Scratch) (bool, error) {
		present, err := Detect(s.Path())
		if err != nil || !present {
			return false, err
		}
		if err := v.Validate(ctx, value); err != nil {
			return false, err
		}
		changed, err := Rewrite(s.Path(), value)
		if err != nil {
			return false, err
		}
		outcome = Unchanged
		if changed {
			outcome = Rewritten
		}
		return changed, nil
	})
	if err != nil {
		return NoProperty, err
	}
	return outcome, nil
}
