package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
	"github.com/ariefcatur/go-bloodbank/internal/requests"
)

var at = time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)

func batch(id string, qty int) bloodbank.InventoryBatch {
	return bloodbank.InventoryBatch{
		ID:             id,
		OrganizationID: "org-1",
		BloodGroup:     bloodbank.APos,
		Quantity:       qty,
		ExpiryDate:     at.AddDate(0, 0, 3),
		Status:         bloodbank.BatchAvailable,
	}
}

func TestWithTx_RollbackRestoresEverything(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertBatch(ctx, batch("B-1", 2)))
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.InsertBatch(ctx, batch("B-2", 1)))
		from := inventory.BatchState{Status: bloodbank.BatchAvailable, Quantity: 2}
		require.NoError(t, s.SwapBatch(ctx, "B-1", from, inventory.BatchState{Status: bloodbank.BatchUtilized}, at))
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := s.GetBatch(ctx, "B-1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Quantity)
	_, err = s.GetBatch(ctx, "B-2")
	assert.ErrorIs(t, err, bloodbank.ErrBatchNotFound)
}

func TestWithTx_NestedRollbackKeepsOuter(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.InsertBatch(ctx, batch("B-outer", 1)))
		inner := s.WithTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.InsertBatch(ctx, batch("B-inner", 1)))
			return errors.New("inner")
		})
		require.Error(t, inner)
		return nil
	})
	require.NoError(t, err)

	_, err = s.GetBatch(ctx, "B-outer")
	assert.NoError(t, err)
	_, err = s.GetBatch(ctx, "B-inner")
	assert.ErrorIs(t, err, bloodbank.ErrBatchNotFound)
}

func TestInsertBatch_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertBatch(ctx, batch("B-1", 1)))
	assert.ErrorIs(t, s.InsertBatch(ctx, batch("B-1", 5)), bloodbank.ErrDuplicateID)
}

func TestSwapRequest_ComparesTarget(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertRequest(ctx, bloodbank.BloodRequest{ID: "r-1", Status: bloodbank.RequestPending}))

	pending := requests.RequestState{Status: bloodbank.RequestPending}
	require.NoError(t, s.SwapRequest(ctx, "r-1", pending, requests.RequestState{Status: bloodbank.RequestApproved, TargetOrgID: "org-1"}, at))
	err := s.SwapRequest(ctx, "r-1", pending, requests.RequestState{Status: bloodbank.RequestApproved, TargetOrgID: "org-2"}, at)
	assert.ErrorIs(t, err, bloodbank.ErrStaleSnapshot)

	r, err := s.GetRequest(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", r.TargetOrgID)
}

func TestListRequestsForOrg(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, r := range []bloodbank.BloodRequest{
		{ID: "broadcast-pending", Status: bloodbank.RequestPending, CreatedAt: at},
		{ID: "broadcast-rejected", Status: bloodbank.RequestRejected, CreatedAt: at},
		{ID: "mine-approved", Status: bloodbank.RequestApproved, TargetOrgID: "org-1", CreatedAt: at.Add(time.Hour)},
		{ID: "mine-cancelled", Status: bloodbank.RequestCancelled, TargetOrgID: "org-1", CreatedAt: at},
		{ID: "theirs", Status: bloodbank.RequestPending, TargetOrgID: "org-2", CreatedAt: at},
	} {
		require.NoError(t, s.InsertRequest(ctx, r))
	}

	got, err := s.ListRequestsForOrg(ctx, "org-1")
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"mine-approved", "broadcast-pending"}, ids)
}

func TestSetLastDonation_UnknownDonor(t *testing.T) {
	assert.ErrorIs(t, New().SetLastDonation(context.Background(), "ghost", at), bloodbank.ErrDonorNotFound)
}
