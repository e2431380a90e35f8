package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random identifier without dashes, short enough for URLs.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
