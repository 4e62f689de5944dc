// Package sweep discards AVAILABLE batches once their expiry date has passed.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/clock"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
	"github.com/ariefcatur/go-bloodbank/internal/notify"
)

type Sweeper struct {
	store    Store
	notifier notify.Notifier
	clock    clock.Clock
	log      *zap.Logger
	tracer   trace.Tracer
}

func New(store Store, n notify.Notifier, clk clock.Clock, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if n == nil {
		n = notify.Nop()
	}
	return &Sweeper{
		store:    store,
		notifier: n,
		clock:    clk,
		log:      log.Named("sweep"),
		tracer:   otel.Tracer("github.com/ariefcatur/go-bloodbank/internal/sweep"),
	}
}

type Report struct {
	Day       time.Time           `json:"day"`
	Discarded map[string][]string `json:"discarded"` // org id -> batch ids
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
}

func (r Report) Total() int {
	n := 0
	for _, ids := range r.Discarded {
		n += len(ids)
	}
	return n
}

// RunOnce discards every AVAILABLE batch that expired before today. Each
// batch is updated on its own, so one failure does not hold back the rest.
// Running it again the same day finds nothing to do.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	ctx, span := s.tracer.Start(ctx, "sweep.run")
	defer span.End()

	today := s.clock.Today()
	rep := Report{Day: today, Discarded: map[string][]string{}}

	expired, err := s.store.ListExpired(ctx, today)
	if err != nil {
		span.RecordError(err)
		return rep, fmt.Errorf("list expired: %w", err)
	}

	now := s.clock.Now()
	for _, b := range expired {
		from := inventory.BatchState{Status: b.Status, Quantity: b.Quantity, ReservedBy: b.ReservedBy}
		to := inventory.BatchState{Status: bloodbank.BatchDiscarded, Quantity: b.Quantity, ReservedBy: b.ReservedBy}
		err := s.store.SwapBatch(ctx, b.ID, from, to, now)
		switch {
		case err == nil:
			rep.Discarded[b.OrganizationID] = append(rep.Discarded[b.OrganizationID], b.ID)
		case errors.Is(err, bloodbank.ErrStaleSnapshot), errors.Is(err, bloodbank.ErrBatchNotFound):
			rep.Skipped++
		default:
			rep.Failed++
			s.log.Error("discard failed", zap.String("batch_id", b.ID), zap.Error(err))
		}
	}

	orgs := make([]string, 0, len(rep.Discarded))
	for org := range rep.Discarded {
		orgs = append(orgs, org)
	}
	sort.Strings(orgs)
	for _, org := range orgs {
		s.notifier.Notify(ctx, notify.Notification{
			Channel:   bloodbank.ChannelOrganization,
			TargetID:  org,
			EventType: bloodbank.EventBatchesDiscarded,
			Payload:   bloodbank.DiscardedPayload{OrgID: org, BatchIDs: rep.Discarded[org], Day: today.Format(time.DateOnly)},
		})
	}

	span.SetAttributes(attribute.Int("batches.discarded", rep.Total()), attribute.Int("batches.failed", rep.Failed))
	s.log.Info("expiry sweep finished",
		zap.String("day", today.Format(time.DateOnly)),
		zap.Int("discarded", rep.Total()),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed))
	return rep, nil
}
