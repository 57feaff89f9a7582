package domain

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerationIDPrefix marks generation request identifiers.
const GenerationIDPrefix = "gen_"

// NewID returns a new ULID string.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// NewGenerationID returns a prefixed ULID for generation requests.
func NewGenerationID() string {
	return GenerationIDPrefix + NewID()
}
