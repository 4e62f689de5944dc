// Package inventory is the ledger of blood batches: intake, search,
// reservation and FEFO deduction.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/clock"
)

const (
	defaultMaxRetries = 3
	maxIDAttempts     = 5
)

type Ledger struct {
	store      Store
	clock      clock.Clock
	log        *zap.Logger
	tracer     trace.Tracer
	newID      IDGenerator
	names      OrgNamer
	maxRetries uint64
	retryWait  time.Duration
}

type Option func(*Ledger)

// WithIDGenerator overrides batch id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) {
		if g != nil {
			l.newID = g
		}
	}
}

// WithOrgNamer joins organization names into search results.
func WithOrgNamer(n OrgNamer) Option {
	return func(l *Ledger) { l.names = n }
}

// WithMaxRetries bounds optimistic retries of a deduction whose snapshot
// went stale before commit.
func WithMaxRetries(n int, wait time.Duration) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.maxRetries = uint64(n)
		}
		if wait > 0 {
			l.retryWait = wait
		}
	}
}

func NewLedger(store Store, clk clock.Clock, log *zap.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		store:      store,
		clock:      clk,
		log:        log.Named("ledger"),
		tracer:     otel.Tracer("github.com/ariefcatur/go-bloodbank/internal/inventory"),
		newID:      NewBatchID,
		maxRetries: defaultMaxRetries,
		retryWait:  10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type NewBatch struct {
	OrgID          string
	BloodGroup     bloodbank.BloodGroup
	Quantity       int
	CollectionDate time.Time // zero = today
	ExpiryDate     time.Time // zero = collection date + 42 days
	SourceDonorID  string
	Label          string
}

func (n NewBatch) validate() error {
	if n.OrgID == "" {
		return fmt.Errorf("%w: organization id is required", bloodbank.ErrInvalidInput)
	}
	if !n.BloodGroup.Valid() {
		return fmt.Errorf("%w: unknown blood group %q", bloodbank.ErrInvalidInput, n.BloodGroup)
	}
	if n.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", bloodbank.ErrInvalidInput)
	}
	if !n.ExpiryDate.IsZero() && !n.CollectionDate.IsZero() && clock.Day(n.ExpiryDate).Before(clock.Day(n.CollectionDate)) {
		return fmt.Errorf("%w: expiry date before collection date", bloodbank.ErrInvalidInput)
	}
	return nil
}

// AddBatch stores a new AVAILABLE batch under a fresh id. It joins the
// caller's transaction when there is one.
func (l *Ledger) AddBatch(ctx context.Context, in NewBatch) (bloodbank.InventoryBatch, error) {
	if err := in.validate(); err != nil {
		return bloodbank.InventoryBatch{}, err
	}

	now := l.clock.Now()
	collected := clock.Day(in.CollectionDate)
	if in.CollectionDate.IsZero() {
		collected = l.clock.Today()
	}
	expiry := clock.Day(in.ExpiryDate)
	if in.ExpiryDate.IsZero() {
		expiry = collected.Add(bloodbank.DefaultShelfLife)
	}

	b := bloodbank.InventoryBatch{
		OrganizationID: in.OrgID,
		BloodGroup:     in.BloodGroup,
		Quantity:       in.Quantity,
		CollectionDate: collected,
		ExpiryDate:     expiry,
		Status:         bloodbank.BatchAvailable,
		SourceDonorID:  in.SourceDonorID,
		Label:          in.Label,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Collisions are retried immediately with a new id.
	op := func() error {
		b.ID = l.newID()
		err := l.store.InsertBatch(ctx, b)
		if errors.Is(err, bloodbank.ErrDuplicateID) {
			l.log.Debug("batch id collision", zap.String("batch_id", b.ID))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxIDAttempts-1), ctx)); err != nil {
		return bloodbank.InventoryBatch{}, fmt.Errorf("add batch: %w", err)
	}

	l.log.Info("batch added",
		zap.String("batch_id", b.ID),
		zap.String("org_id", b.OrganizationID),
		zap.String("blood_group", string(b.BloodGroup)),
		zap.Int("quantity", b.Quantity),
		zap.Time("expiry_date", b.ExpiryDate))
	return b, nil
}

// QueryAvailable lists unexpired AVAILABLE batches of a group, optionally
// for one organization, in FEFO order.
func (l *Ledger) QueryAvailable(ctx context.Context, group bloodbank.BloodGroup, orgID string) ([]bloodbank.InventoryBatch, error) {
	if !group.Valid() {
		return nil, fmt.Errorf("%w: unknown blood group %q", bloodbank.ErrInvalidInput, group)
	}
	batches, err := l.store.ListAvailable(ctx, AvailableFilter{OrgID: orgID, BloodGroup: group, NotExpiredOn: l.clock.Today()})
	if err != nil {
		return nil, fmt.Errorf("query available: %w", err)
	}
	SortFEFO(batches)
	return batches, nil
}

// SearchAvailable is QueryAvailable across all organizations with owner
// names attached. A directory failure only loses the names.
func (l *Ledger) SearchAvailable(ctx context.Context, group bloodbank.BloodGroup) ([]bloodbank.AvailableStock, error) {
	batches, err := l.QueryAvailable(ctx, group, "")
	if err != nil {
		return nil, err
	}
	out := make([]bloodbank.AvailableStock, len(batches))
	ids := make([]string, 0, len(batches))
	seen := map[string]bool{}
	for i, b := range batches {
		out[i] = bloodbank.AvailableStock{InventoryBatch: b}
		if !seen[b.OrganizationID] {
			seen[b.OrganizationID] = true
			ids = append(ids, b.OrganizationID)
		}
	}
	if l.names == nil || len(ids) == 0 {
		return out, nil
	}
	names, err := l.names.OrganizationNames(ctx, ids)
	if err != nil {
		l.log.Warn("organization names unavailable", zap.Error(err))
		return out, nil
	}
	for i := range out {
		out[i].OrganizationName = names[out[i].OrganizationID]
	}
	return out, nil
}

func (l *Ledger) ListByOrg(ctx context.Context, orgID string) ([]bloodbank.InventoryBatch, error) {
	batches, err := l.store.ListBatchesByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

func (l *Ledger) GetBatch(ctx context.Context, id string) (bloodbank.InventoryBatch, error) {
	return l.store.GetBatch(ctx, id)
}

// Reserve moves an unexpired AVAILABLE batch to RESERVED for reservedBy.
func (l *Ledger) Reserve(ctx context.Context, batchID, reservedBy string) (bloodbank.InventoryBatch, error) {
	return l.transition(ctx, batchID, func(b bloodbank.InventoryBatch) (BatchState, error) {
		if b.Status != bloodbank.BatchAvailable || b.ExpiryDate.Before(l.clock.Today()) {
			return BatchState{}, bloodbank.ErrBatchNotAvailable
		}
		return BatchState{Status: bloodbank.BatchReserved, Quantity: b.Quantity, ReservedBy: reservedBy}, nil
	})
}

// ConfirmPickup moves a RESERVED batch to UTILIZED.
func (l *Ledger) ConfirmPickup(ctx context.Context, batchID string) (bloodbank.InventoryBatch, error) {
	return l.transition(ctx, batchID, func(b bloodbank.InventoryBatch) (BatchState, error) {
		if b.Status != bloodbank.BatchReserved {
			return BatchState{}, bloodbank.ErrBatchNotReserved
		}
		return BatchState{Status: bloodbank.BatchUtilized, Quantity: b.Quantity, ReservedBy: b.ReservedBy}, nil
	})
}

// transition reads a batch and swaps it to next(batch) in one transaction.
// A lost race re-reads once, so the caller sees the real reason.
func (l *Ledger) transition(ctx context.Context, batchID string, next func(bloodbank.InventoryBatch) (BatchState, error)) (bloodbank.InventoryBatch, error) {
	var out bloodbank.InventoryBatch
	attempt := func() error {
		return l.store.WithTx(ctx, func(ctx context.Context) error {
			b, err := l.store.GetBatch(ctx, batchID)
			if err != nil {
				return err
			}
			to, err := next(b)
			if err != nil {
				return err
			}
			now := l.clock.Now()
			if err := l.store.SwapBatch(ctx, b.ID, stateOf(b), to, now); err != nil {
				return err
			}
			b.Status, b.Quantity, b.ReservedBy, b.UpdatedAt = to.Status, to.Quantity, to.ReservedBy, now
			out = b
			return nil
		})
	}
	err := attempt()
	if errors.Is(err, bloodbank.ErrStaleSnapshot) {
		err = attempt()
	}
	if err != nil {
		return bloodbank.InventoryBatch{}, err
	}
	return out, nil
}

// DeductFEFO removes units of a blood group from one organization's stock,
// earliest expiry first. Either every planned batch update commits or none
// does. A snapshot that changed underneath is retried, then reported as
// bloodbank.ErrStaleSnapshot.
func (l *Ledger) DeductFEFO(ctx context.Context, orgID string, group bloodbank.BloodGroup, units int) ([]bloodbank.Allocation, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.deduct_fefo")
	defer span.End()
	span.SetAttributes(
		attribute.String("org.id", orgID),
		attribute.String("blood.group", string(group)),
		attribute.Int("units.required", units),
	)

	if orgID == "" {
		return nil, fmt.Errorf("%w: organization id is required", bloodbank.ErrInvalidInput)
	}
	if !group.Valid() {
		return nil, fmt.Errorf("%w: unknown blood group %q", bloodbank.ErrInvalidInput, group)
	}
	if units <= 0 {
		return nil, fmt.Errorf("%w: units must be positive", bloodbank.ErrInvalidInput)
	}

	var plan []bloodbank.Allocation
	attempts := 0
	op := func() error {
		attempts++
		p, err := l.deductOnce(ctx, orgID, group, units)
		if errors.Is(err, bloodbank.ErrStaleSnapshot) {
			l.log.Debug("fefo snapshot stale, retrying", zap.String("org_id", orgID), zap.Int("attempt", attempts))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		plan = p
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryWait
	b.MaxInterval = 20 * l.retryWait
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, l.maxRetries), ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deduction failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("batches.touched", len(plan)), attribute.Int("attempts", attempts))
	l.log.Info("fefo deduction committed",
		zap.String("org_id", orgID),
		zap.String("blood_group", string(group)),
		zap.Int("units", units),
		zap.Int("batches", len(plan)))
	return plan, nil
}

func (l *Ledger) deductOnce(ctx context.Context, orgID string, group bloodbank.BloodGroup, units int) ([]bloodbank.Allocation, error) {
	var plan []bloodbank.Allocation
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		snapshot, err := l.store.ListAvailable(ctx, AvailableFilter{OrgID: orgID, BloodGroup: group, NotExpiredOn: l.clock.Today()})
		if err != nil {
			return fmt.Errorf("fefo snapshot: %w", err)
		}
		p, err := PlanFEFO(snapshot, units)
		if err != nil {
			var short *bloodbank.InsufficientStockError
			if errors.As(err, &short) {
				short.OrgID, short.Group = orgID, group
			}
			return err
		}

		byID := make(map[string]bloodbank.InventoryBatch, len(snapshot))
		for _, b := range snapshot {
			byID[b.ID] = b
		}
		now := l.clock.Now()
		for _, a := range p {
			before := byID[a.BatchID]
			to := BatchState{Status: bloodbank.BatchAvailable, Quantity: a.Remaining}
			if a.Remaining == 0 {
				to.Status = bloodbank.BatchUtilized
			}
			if err := l.store.SwapBatch(ctx, a.BatchID, stateOf(before), to, now); err != nil {
				return err
			}
		}
		plan = p
		return nil
	})
	return plan, err
}

// RemoveBatch physically deletes a batch. Administrative use only.
func (l *Ledger) RemoveBatch(ctx context.Context, batchID string) error {
	if err := l.store.DeleteBatch(ctx, batchID); err != nil {
		return err
	}
	l.log.Info("batch removed", zap.String("batch_id", batchID))
	return nil
}

// HoldersOf lists organizations holding at least one unexpired AVAILABLE
// batch of the group, sorted by id.
func (l *Ledger) HoldersOf(ctx context.Context, group bloodbank.BloodGroup) ([]string, error) {
	batches, err := l.QueryAvailable(ctx, group, "")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, b := range batches {
		if b.Quantity > 0 && !seen[b.OrganizationID] {
			seen[b.OrganizationID] = true
			out = append(out, b.OrganizationID)
		}
	}
	sort.Strings(out)
	return out, nil
}
