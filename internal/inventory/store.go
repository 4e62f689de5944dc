package inventory

import (
	"context"
	"time"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
)

// BatchState is the mutable part of a batch used for compare-and-set.
type BatchState struct {
	Status     bloodbank.BatchStatus
	Quantity   int
	ReservedBy string
}

func stateOf(b bloodbank.InventoryBatch) BatchState {
	return BatchState{Status: b.Status, Quantity: b.Quantity, ReservedBy: b.ReservedBy}
}

// AvailableFilter selects AVAILABLE batches. Empty fields match everything.
type AvailableFilter struct {
	OrgID        string
	BloodGroup   bloodbank.BloodGroup
	// NotExpiredOn drops batches whose expiry date is before this day.
	NotExpiredOn time.Time
}

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// InsertBatch returns bloodbank.ErrDuplicateID when the id is taken.
	InsertBatch(ctx context.Context, b bloodbank.InventoryBatch) error
	GetBatch(ctx context.Context, id string) (bloodbank.InventoryBatch, error)
	// ListAvailable locks the returned rows when called inside WithTx.
	ListAvailable(ctx context.Context, f AvailableFilter) ([]bloodbank.InventoryBatch, error)
	ListBatchesByOrg(ctx context.Context, orgID string) ([]bloodbank.InventoryBatch, error)
	// SwapBatch applies to only if the batch still matches from on status and
	// quantity; otherwise it returns bloodbank.ErrStaleSnapshot.
	SwapBatch(ctx context.Context, id string, from, to BatchState, at time.Time) error
	DeleteBatch(ctx context.Context, id string) error
}

// OrgNamer resolves organization display names for search results.
type OrgNamer interface {
	OrganizationNames(ctx context.Context, ids []string) (map[string]string, error)
}
