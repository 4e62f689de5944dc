package inventory

import (
	"sort"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
)

// SortFEFO orders batches by expiry date, then id, in place.
func SortFEFO(batches []bloodbank.InventoryBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		return a.ID < b.ID
	})
}

// PlanFEFO decides how units are taken from the snapshot, earliest expiry
// first. The snapshot is not modified. When the snapshot holds fewer than
// units, it returns an *InsufficientStockError and no plan.
func PlanFEFO(snapshot []bloodbank.InventoryBatch, units int) ([]bloodbank.Allocation, error) {
	batches := append([]bloodbank.InventoryBatch(nil), snapshot...)
	SortFEFO(batches)

	total := 0
	for _, b := range batches {
		total += b.Quantity
	}
	if total < units {
		e := &bloodbank.InsufficientStockError{Required: units, Available: total}
		if len(batches) > 0 {
			e.OrgID, e.Group = batches[0].OrganizationID, batches[0].BloodGroup
		}
		return nil, e
	}

	need := units
	plan := make([]bloodbank.Allocation, 0, len(batches))
	for _, b := range batches {
		if need == 0 {
			break
		}
		if b.Quantity == 0 {
			continue
		}
		take := b.Quantity
		if take > need {
			take = need
		}
		need -= take
		plan = append(plan, bloodbank.Allocation{
			BatchID:    b.ID,
			Units:      take,
			ExpiryDate: b.ExpiryDate,
			Remaining:  b.Quantity - take,
		})
	}
	return plan, nil
}
