package tvio

import (
	"github.com/google/uuid"
)

// IDGenerator produces the 36-character identifiers of handles and
// requests.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable RFC 4122 UUIDs, so identifiers
// sort by creation time in logs. It is stateless and safe for concurrent
// use.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
