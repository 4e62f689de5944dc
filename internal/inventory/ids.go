package inventory

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator yields candidate batch ids. Uniqueness is enforced by the
// store; the ledger retries on collision.
type IDGenerator func() string

// NewBatchID returns "B-" followed by ten digits drawn from a random UUID.
func NewBatchID() string {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[:8]) % 10_000_000_000
	return fmt.Sprintf("B-%010d", n)
}
