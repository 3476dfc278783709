package types

import "github.com/google/uuid"

// ID identifies one stored record version. Plans, workflows, and
// activities each get a fresh ID per version; derivation never reuses one.
type ID string

// NewID returns a random v4 ID.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}
