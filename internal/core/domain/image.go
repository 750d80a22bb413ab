package domain

import (
	"fmt"

	"github.com/distribution/reference"
)

// NormalizeImageTag returns tag the way the engine reports it in an image's
// repo tags: short form, with ":latest" added when no tag or digest is given.
func NormalizeImageTag(tag string) (string, error) {
	named, err := reference.ParseNormalizedNamed(tag)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", tag, err)
	}
	return reference.FamiliarString(reference.TagNameOnly(named)), nil
}
