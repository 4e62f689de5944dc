package sweep

import (
	"context"
	"time"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
)

type Store interface {
	// ListExpired returns AVAILABLE batches whose expiry date is before today.
	ListExpired(ctx context.Context, today time.Time) ([]bloodbank.InventoryBatch, error)
	SwapBatch(ctx context.Context, id string, from, to inventory.BatchState, at time.Time) error
}
