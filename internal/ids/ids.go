package ids

import "github.com/segmentio/ksuid"

// New returns a K-sortable unique identifier. Rows created later sort
// lexicographically after earlier ones, which keeps id-ordered scans cheap.
func New() string {
	return ksuid.New().String()
}
