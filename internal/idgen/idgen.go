// Package idgen generates short string identifiers for records.
package idgen

import gonanoid "github.com/matoous/go-nanoid/v2"

const defaultSize = 16

// New returns a new random identifier.
func New() string {
	return gonanoid.Must(defaultSize)
}
