package inventory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/clock"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
	"github.com/ariefcatur/go-bloodbank/internal/memstore"
)

var (
	now   = time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC)
	today = clock.Day(now)
)

// tb is satisfied by both *testing.T and *rapid.T.
type tb interface {
	Helper()
	require.TestingT
}

func newLedger(t tb, store inventory.Store, opts ...inventory.Option) *inventory.Ledger {
	t.Helper()
	opts = append([]inventory.Option{inventory.WithMaxRetries(3, time.Millisecond)}, opts...)
	return inventory.NewLedger(store, clock.NewFixed(now), nil, opts...)
}

func addBatch(t tb, l *inventory.Ledger, org string, g bloodbank.BloodGroup, qty, expiresIn int) bloodbank.InventoryBatch {
	t.Helper()
	b, err := l.AddBatch(context.Background(), inventory.NewBatch{
		OrgID:          org,
		BloodGroup:     g,
		Quantity:       qty,
		CollectionDate: today.AddDate(0, 0, -1),
		ExpiryDate:     today.AddDate(0, 0, expiresIn),
	})
	require.NoError(t, err)
	return b
}

func availableUnits(t tb, l *inventory.Ledger, org string, g bloodbank.BloodGroup) int {
	t.Helper()
	batches, err := l.QueryAvailable(context.Background(), g, org)
	require.NoError(t, err)
	n := 0
	for _, b := range batches {
		n += b.Quantity
	}
	return n
}

func TestAddBatch_Defaults(t *testing.T) {
	l := newLedger(t, memstore.New())

	b, err := l.AddBatch(context.Background(), inventory.NewBatch{OrgID: "org-1", BloodGroup: bloodbank.APos, Quantity: 3})
	require.NoError(t, err)

	assert.Regexp(t, `^B-\d{10}$`, b.ID)
	assert.Equal(t, bloodbank.BatchAvailable, b.Status)
	assert.Equal(t, today, b.CollectionDate)
	assert.Equal(t, today.AddDate(0, 0, 42), b.ExpiryDate)

	got, err := l.GetBatch(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestAddBatch_RejectsBadInput(t *testing.T) {
	l := newLedger(t, memstore.New())
	cases := map[string]inventory.NewBatch{
		"no org":          {BloodGroup: bloodbank.APos, Quantity: 1},
		"bad group":       {OrgID: "org-1", BloodGroup: "C+", Quantity: 1},
		"zero quantity":   {OrgID: "org-1", BloodGroup: bloodbank.APos},
		"expiry too soon": {OrgID: "org-1", BloodGroup: bloodbank.APos, Quantity: 1, CollectionDate: today, ExpiryDate: today.AddDate(0, 0, -1)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.AddBatch(context.Background(), in)
			assert.ErrorIs(t, err, bloodbank.ErrInvalidInput)
		})
	}
}

func TestAddBatch_RetriesIDCollision(t *testing.T) {
	ids := []string{"B-0000000001", "B-0000000001", "B-0000000002"}
	var calls int32
	gen := func() string {
		i := atomic.AddInt32(&calls, 1) - 1
		return ids[i]
	}
	l := newLedger(t, memstore.New(), inventory.WithIDGenerator(gen))

	first := addBatch(t, l, "org-1", bloodbank.OPos, 1, 10)
	second := addBatch(t, l, "org-1", bloodbank.OPos, 1, 10)

	assert.Equal(t, "B-0000000001", first.ID)
	assert.Equal(t, "B-0000000002", second.ID)
	assert.EqualValues(t, 3, calls)
}

func TestAddBatch_NeverOverwrites(t *testing.T) {
	l := newLedger(t, memstore.New(), inventory.WithIDGenerator(func() string { return "B-0000000001" }))
	addBatch(t, l, "org-1", bloodbank.OPos, 1, 10)

	_, err := l.AddBatch(context.Background(), inventory.NewBatch{OrgID: "org-2", BloodGroup: bloodbank.ONeg, Quantity: 9})
	require.ErrorIs(t, err, bloodbank.ErrDuplicateID)

	got, err := l.GetBatch(context.Background(), "B-0000000001")
	require.NoError(t, err)
	assert.Equal(t, "org-1", got.OrganizationID)
	assert.Equal(t, 1, got.Quantity)
}

func TestDeductFEFO_PartialConsumption(t *testing.T) {
	l := newLedger(t, memstore.New())
	soon := addBatch(t, l, "org-1", bloodbank.OPos, 2, 1)
	later := addBatch(t, l, "org-1", bloodbank.OPos, 3, 5)

	plan, err := l.DeductFEFO(context.Background(), "org-1", bloodbank.OPos, 4)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, soon.ID, plan[0].BatchID)
	assert.Equal(t, 2, plan[0].Units)
	assert.Equal(t, later.ID, plan[1].BatchID)
	assert.Equal(t, 2, plan[1].Units)

	got, err := l.GetBatch(context.Background(), soon.ID)
	require.NoError(t, err)
	assert.Equal(t, bloodbank.BatchUtilized, got.Status)
	assert.Equal(t, 0, got.Quantity)

	got, err = l.GetBatch(context.Background(), later.ID)
	require.NoError(t, err)
	assert.Equal(t, bloodbank.BatchAvailable, got.Status)
	assert.Equal(t, 1, got.Quantity)
}

func TestDeductFEFO_InsufficientLeavesStockUntouched(t *testing.T) {
	l := newLedger(t, memstore.New())
	addBatch(t, l, "org-1", bloodbank.OPos, 2, 1)
	addBatch(t, l, "org-1", bloodbank.OPos, 1, 3)
	addBatch(t, l, "org-2", bloodbank.OPos, 10, 3)

	_, err := l.DeductFEFO(context.Background(), "org-1", bloodbank.OPos, 4)

	var short *bloodbank.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "org-1", short.OrgID)
	assert.Equal(t, 3, short.Available)
	assert.Equal(t, 3, availableUnits(t, l, "org-1", bloodbank.OPos))
}

func TestDeductFEFO_SkipsExpiredAndOtherGroups(t *testing.T) {
	l := newLedger(t, memstore.New())
	expired := addBatch(t, l, "org-1", bloodbank.OPos, 5, -1)
	addBatch(t, l, "org-1", bloodbank.ONeg, 5, 3)
	fresh := addBatch(t, l, "org-1", bloodbank.OPos, 2, 0)

	plan, err := l.DeductFEFO(context.Background(), "org-1", bloodbank.OPos, 2)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, fresh.ID, plan[0].BatchID)

	got, err := l.GetBatch(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
}

func TestDeductFEFO_RejectsNonPositiveUnits(t *testing.T) {
	l := newLedger(t, memstore.New())
	_, err := l.DeductFEFO(context.Background(), "org-1", bloodbank.OPos, 0)
	assert.ErrorIs(t, err, bloodbank.ErrInvalidInput)
}

// flakyStore fails chosen SwapBatch calls.
type flakyStore struct {
	*memstore.Store
	calls int32
	fail  func(call int32) error
}

func (f *flakyStore) SwapBatch(ctx context.Context, id string, from, to inventory.BatchState, at time.Time) error {
	n := atomic.AddInt32(&f.calls, 1)
	if err := f.fail(n); err != nil {
		return err
	}
	return f.Store.SwapBatch(ctx, id, from, to, at)
}

func TestDeductFEFO_RollsBackEarlierBatchesOnFailure(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), fail: func(int32) error { return nil }}
	l := newLedger(t, store)
	addBatch(t, l, "org-1", bloodbank.OPos, 2, 1)
	addBatch(t, l, "org-1", bloodbank.OPos, 3, 5)

	boom := errors.New("disk on fire")
	store.fail = func(call int32) error {
		if call == 2 {
			return boom
		}
		return nil
	}

	_, err := l.DeductFEFO(context.Background(), "org-1", bloodbank.OPos, 4)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 5, availableUnits(t, l, "org-1", bloodbank.OPos))
}

func TestDeductFEFO_RetriesStaleSnapshot(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), fail: func(call int32) error {
		if call == 1 {
			return bloodbank.ErrStaleSnapshot
		}
		return nil
	}}
	l := newLedger(t, store)
	addBatch(t, l, "org-1", bloodbank.OPos, 3, 1)

	_, err := l.DeductFEFO(context.Background(), "org-1", bloodbank.OPos, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, availableUnits(t, l, "org-1", bloodbank.OPos))
}

func TestDeductFEFO_GivesUpAfterRetries(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), fail: func(int32) error { return bloodbank.ErrStaleSnapshot }}
	l := newLedger(t, store)
	addBatch(t, l, "org-1", bloodbank.OPos, 3, 1)

	_, err := l.DeductFEFO(context.Background(), "org-1", bloodbank.OPos, 2)
	require.ErrorIs(t, err, bloodbank.ErrStaleSnapshot)
	assert.EqualValues(t, 4, store.calls)
	assert.Equal(t, 3, availableUnits(t, l, "org-1", bloodbank.OPos))
}

func TestDeductFEFO_ConcurrentCallersNeverOversell(t *testing.T) {
	l := newLedger(t, memstore.New())
	addBatch(t, l, "org-1", bloodbank.OPos, 2, 1)
	addBatch(t, l, "org-1", bloodbank.OPos, 3, 4)

	var wg sync.WaitGroup
	var ok, short int32
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.DeductFEFO(context.Background(), "org-1", bloodbank.OPos, 1)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, bloodbank.ErrInsufficientStock):
				atomic.AddInt32(&short, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, ok)
	assert.EqualValues(t, 7, short)
	assert.Equal(t, 0, availableUnits(t, l, "org-1", bloodbank.OPos))
}

func TestDeductFEFO_ConservesUnits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := newLedger(t, memstore.New())
		n := rapid.IntRange(1, 6).Draw(t, "batches")
		for i := 0; i < n; i++ {
			addBatch(t, l, "org-1", bloodbank.BPos,
				rapid.IntRange(1, 5).Draw(t, "qty"),
				rapid.IntRange(0, 20).Draw(t, "expiresIn"))
		}
		before := availableUnits(t, l, "org-1", bloodbank.BPos)
		units := rapid.IntRange(1, 35).Draw(t, "units")

		plan, err := l.DeductFEFO(context.Background(), "org-1", bloodbank.BPos, units)
		after := availableUnits(t, l, "org-1", bloodbank.BPos)

		if units > before {
			if !errors.Is(err, bloodbank.ErrInsufficientStock) {
				t.Fatalf("want insufficient stock, got %v", err)
			}
			if after != before {
				t.Fatalf("failed deduction changed stock: %d -> %d", before, after)
			}
			return
		}
		if err != nil {
			t.Fatalf("deduct: %v", err)
		}
		if after != before-units {
			t.Fatalf("stock %d -> %d after taking %d", before, after, units)
		}
		for _, a := range plan {
			b, err := l.GetBatch(context.Background(), a.BatchID)
			if err != nil {
				t.Fatal(err)
			}
			if b.Quantity != a.Remaining {
				t.Fatalf("batch %s quantity %d, plan says %d", b.ID, b.Quantity, a.Remaining)
			}
			if (b.Quantity == 0) != (b.Status == bloodbank.BatchUtilized) {
				t.Fatalf("batch %s quantity %d with status %s", b.ID, b.Quantity, b.Status)
			}
		}
	})
}

func TestReserveAndConfirmPickup(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memstore.New())
	b := addBatch(t, l, "org-1", bloodbank.ABNeg, 1, 3)

	_, err := l.ConfirmPickup(ctx, b.ID)
	require.ErrorIs(t, err, bloodbank.ErrBatchNotReserved)

	reserved, err := l.Reserve(ctx, b.ID, "hospital-7")
	require.NoError(t, err)
	assert.Equal(t, bloodbank.BatchReserved, reserved.Status)
	assert.Equal(t, "hospital-7", reserved.ReservedBy)

	_, err = l.Reserve(ctx, b.ID, "hospital-8")
	require.ErrorIs(t, err, bloodbank.ErrBatchNotAvailable)
	assert.ErrorIs(t, err, bloodbank.ErrInvalidState)

	picked, err := l.ConfirmPickup(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, bloodbank.BatchUtilized, picked.Status)

	_, err = l.Reserve(ctx, "B-missing", "x")
	assert.ErrorIs(t, err, bloodbank.ErrBatchNotFound)
}

func TestReserve_RejectsExpiredBatch(t *testing.T) {
	l := newLedger(t, memstore.New())
	b := addBatch(t, l, "org-1", bloodbank.ABNeg, 1, -2)

	_, err := l.Reserve(context.Background(), b.ID, "hospital-7")
	assert.ErrorIs(t, err, bloodbank.ErrBatchNotAvailable)
}

type names map[string]string

func (n names) OrganizationNames(_ context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if v, ok := n[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func TestSearchAvailable_JoinsOrganizationNames(t *testing.T) {
	l := newLedger(t, memstore.New(), inventory.WithOrgNamer(names{"org-1": "City Blood Bank"}))
	addBatch(t, l, "org-2", bloodbank.APos, 1, 1)
	addBatch(t, l, "org-1", bloodbank.APos, 1, 2)
	addBatch(t, l, "org-1", bloodbank.ANeg, 1, 2)

	got, err := l.SearchAvailable(context.Background(), bloodbank.APos)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "org-2", got[0].OrganizationID)
	assert.Empty(t, got[0].OrganizationName)
	assert.Equal(t, "City Blood Bank", got[1].OrganizationName)
}

func TestHoldersOf(t *testing.T) {
	l := newLedger(t, memstore.New())
	addBatch(t, l, "org-b", bloodbank.ONeg, 1, 1)
	addBatch(t, l, "org-a", bloodbank.ONeg, 2, 1)
	addBatch(t, l, "org-a", bloodbank.ONeg, 2, 9)
	addBatch(t, l, "org-c", bloodbank.ONeg, 2, -1)
	addBatch(t, l, "org-d", bloodbank.OPos, 2, 3)

	got, err := l.HoldersOf(context.Background(), bloodbank.ONeg)
	require.NoError(t, err)
	assert.Equal(t, []string{"org-a", "org-b"}, got)
}

func TestListByOrgAndRemoveBatch(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memstore.New())
	for i := 0; i < 3; i++ {
		addBatch(t, l, fmt.Sprintf("org-%d", i%2), bloodbank.BNeg, 1, i)
	}

	mine, err := l.ListByOrg(ctx, "org-0")
	require.NoError(t, err)
	require.Len(t, mine, 2)

	require.NoError(t, l.RemoveBatch(ctx, mine[0].ID))
	assert.ErrorIs(t, l.RemoveBatch(ctx, mine[0].ID), bloodbank.ErrBatchNotFound)

	mine, err = l.ListByOrg(ctx, "org-0")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
