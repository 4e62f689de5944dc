package donation

import (
	"context"
	"time"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertAppointment(ctx context.Context, a bloodbank.DonationAppointment) error
	// GetAppointment locks the row when called inside WithTx.
	GetAppointment(ctx context.Context, id string) (bloodbank.DonationAppointment, error)
	// SwapAppointment moves an appointment from one status to another and
	// records batchID when non-empty. A status mismatch yields
	// bloodbank.ErrStaleSnapshot.
	SwapAppointment(ctx context.Context, id string, from, to bloodbank.AppointmentStatus, batchID string, at time.Time) error
	ListAppointmentsByOrg(ctx context.Context, orgID string) ([]bloodbank.DonationAppointment, error)
	ListAppointmentsByDonor(ctx context.Context, donorID string) ([]bloodbank.DonationAppointment, error)
	GetDonor(ctx context.Context, id string) (bloodbank.Donor, error)
	SetLastDonation(ctx context.Context, donorID string, at time.Time) error
}

// Intake is the ledger operation completion uses to record the unit.
type Intake interface {
	AddBatch(ctx context.Context, in inventory.NewBatch) (bloodbank.InventoryBatch, error)
}
