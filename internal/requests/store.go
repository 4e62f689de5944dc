package requests

import (
	"context"
	"time"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
)

// RequestState is the compare-and-set key of a request: the status and
// claimant the caller last observed.
type RequestState struct {
	Status      bloodbank.RequestStatus
	TargetOrgID string
}

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertRequest(ctx context.Context, r bloodbank.BloodRequest) error
	// GetRequest locks the row when called inside WithTx.
	GetRequest(ctx context.Context, id string) (bloodbank.BloodRequest, error)
	// SwapRequest writes to only if the stored request still matches from,
	// otherwise it returns bloodbank.ErrStaleSnapshot.
	SwapRequest(ctx context.Context, id string, from, to RequestState, at time.Time) error
	// ListRequestsForOrg returns requests targeted at the org in any status
	// except CANCELLED, plus every PENDING broadcast.
	ListRequestsForOrg(ctx context.Context, orgID string) ([]bloodbank.BloodRequest, error)
	ListRequestsByStatus(ctx context.Context, status bloodbank.RequestStatus) ([]bloodbank.BloodRequest, error)
	ListRequestsByRequester(ctx context.Context, ref bloodbank.RequesterRef) ([]bloodbank.BloodRequest, error)
}

// Stock is the slice of the inventory ledger fulfillment needs.
type Stock interface {
	DeductFEFO(ctx context.Context, orgID string, group bloodbank.BloodGroup, units int) ([]bloodbank.Allocation, error)
	HoldersOf(ctx context.Context, group bloodbank.BloodGroup) ([]string, error)
}

// Contacts resolves names and phone numbers for alerts.
type Contacts interface {
	Contact(ctx context.Context, kind bloodbank.PartyKind, id string) (bloodbank.Contact, error)
}

// StatusCache mirrors the latest persisted request for cheap polling.
type StatusCache interface {
	// Put must keep the entry with the highest Revision; writes can
	// arrive out of commit order.
	Put(ctx context.Context, r bloodbank.BloodRequest) error
	Get(ctx context.Context, id string) (bloodbank.BloodRequest, bool, error)
}

// AlertGate lets one urgent text per request and organization through,
// even if the create call is replayed.
type AlertGate interface {
	Allow(ctx context.Context, requestID, orgID string) (bool, error)
}
