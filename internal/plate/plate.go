package plate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var plateRe = regexp.MustCompile(`^[A-Z0-9-]+$`)

// ErrEmpty is returned for a blank plate.
var ErrEmpty = errors.New("plate is required")

// Normalize trims and upper-cases a raw license plate and checks that the
// result has at least 3 characters drawn from letters, digits and hyphens.
func Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrEmpty
	}
	if len(s) < 3 {
		return "", fmt.Errorf("plate %q must have at least 3 characters", raw)
	}
	if !plateRe.MatchString(s) {
		return "", fmt.Errorf("plate %q may only contain letters, digits and hyphens", raw)
	}
	return s, nil
}
