// Package requests runs blood requests from creation to fulfillment and
// resolves competing claims by organizations.
package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/clock"
	"github.com/ariefcatur/go-bloodbank/internal/notify"
)

type Service struct {
	store    Store
	stock    Stock
	notifier notify.Notifier
	texter   notify.Texter
	contacts Contacts
	cache    StatusCache
	alerts   AlertGate
	clock    clock.Clock
	log      *zap.Logger
	tracer   trace.Tracer
	newID    func() string
}

type Option func(*Service)

func WithTexter(t notify.Texter) Option { return func(s *Service) { s.texter = t } }

func WithContacts(c Contacts) Option { return func(s *Service) { s.contacts = c } }

func WithStatusCache(c StatusCache) Option { return func(s *Service) { s.cache = c } }

func WithAlertGate(g AlertGate) Option { return func(s *Service) { s.alerts = g } }

func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

func NewService(store Store, stock Stock, n notify.Notifier, clk clock.Clock, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if n == nil {
		n = notify.Nop()
	}
	s := &Service{
		store:    store,
		stock:    stock,
		notifier: n,
		texter:   notify.Nop(),
		clock:    clk,
		log:      log.Named("requests"),
		tracer:   otel.Tracer("github.com/ariefcatur/go-bloodbank/internal/requests"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	Requester     bloodbank.RequesterRef `json:"requester"`
	BloodGroup    bloodbank.BloodGroup   `json:"blood_group"`
	Units         int                    `json:"units"`
	Urgency       bloodbank.Urgency      `json:"urgency"`
	TargetOrgID   string                 `json:"target_org_id,omitempty"`
	ContactNumber string                 `json:"contact_number,omitempty"`
	Note          string                 `json:"note,omitempty"`
}

func (in *CreateInput) normalize() error {
	if !in.Requester.Kind.Valid() || in.Requester.ID == "" {
		return fmt.Errorf("%w: requester is required", bloodbank.ErrInvalidInput)
	}
	if !in.BloodGroup.Valid() {
		return fmt.Errorf("%w: unknown blood group %q", bloodbank.ErrInvalidInput, in.BloodGroup)
	}
	if in.Units <= 0 {
		return fmt.Errorf("%w: units must be positive", bloodbank.ErrInvalidInput)
	}
	if in.Urgency == "" {
		in.Urgency = bloodbank.UrgencyNormal
	}
	if !in.Urgency.Valid() {
		return fmt.Errorf("%w: unknown urgency %q", bloodbank.ErrInvalidInput, in.Urgency)
	}
	return nil
}

// Create stores a PENDING request and alerts organizations. Critical
// requests also reach every organization currently holding the group.
func (s *Service) Create(ctx context.Context, in CreateInput) (bloodbank.BloodRequest, error) {
	if err := in.normalize(); err != nil {
		return bloodbank.BloodRequest{}, err
	}
	now := s.clock.Now()
	r := bloodbank.BloodRequest{
		ID:            s.newID(),
		Requester:     in.Requester,
		BloodGroup:    in.BloodGroup,
		Units:         in.Units,
		Urgency:       in.Urgency,
		TargetOrgID:   in.TargetOrgID,
		Status:        bloodbank.RequestPending,
		ContactNumber: in.ContactNumber,
		Note:          in.Note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.InsertRequest(ctx, r); err != nil {
		return bloodbank.BloodRequest{}, fmt.Errorf("create request: %w", err)
	}
	s.remember(ctx, r)

	s.log.Info("request created",
		zap.String("request_id", r.ID),
		zap.String("blood_group", string(r.BloodGroup)),
		zap.Int("units", r.Units),
		zap.String("urgency", string(r.Urgency)),
		zap.String("target_org_id", r.TargetOrgID))

	if r.Urgency == bloodbank.UrgencyCritical {
		s.alertHolders(ctx, r)
	}
	if r.Broadcast() {
		s.notifier.Notify(ctx, notify.Notification{Channel: bloodbank.ChannelBroadcast, EventType: bloodbank.EventNewBloodRequest, CorrelationID: r.ID, Payload: r})
	} else {
		s.notifier.Notify(ctx, notify.Notification{Channel: bloodbank.ChannelOrganization, TargetID: r.TargetOrgID, EventType: bloodbank.EventNewBloodRequest, CorrelationID: r.ID, Payload: r})
	}
	return r, nil
}

func (s *Service) alertHolders(ctx context.Context, r bloodbank.BloodRequest) {
	holders, err := s.stock.HoldersOf(ctx, r.BloodGroup)
	if err != nil {
		s.log.Warn("critical alert skipped, stock lookup failed", zap.String("request_id", r.ID), zap.Error(err))
		return
	}
	msg := s.criticalText(ctx, r)
	for _, orgID := range holders {
		s.notifier.Notify(ctx, notify.Notification{Channel: bloodbank.ChannelOrganization, TargetID: orgID, EventType: bloodbank.EventCriticalRequest, CorrelationID: r.ID, Payload: r})

		if s.contacts == nil {
			continue
		}
		if s.alerts != nil {
			ok, err := s.alerts.Allow(ctx, r.ID, orgID)
			if err != nil {
				s.log.Warn("alert gate unavailable", zap.Error(err))
			} else if !ok {
				continue
			}
		}
		org, err := s.contacts.Contact(ctx, bloodbank.PartyOrganization, orgID)
		if err != nil || org.PhoneNumber == "" {
			continue
		}
		s.texter.SendText(ctx, org.PhoneNumber, msg)
	}
	s.log.Info("critical request alerted", zap.String("request_id", r.ID), zap.Int("organizations", len(holders)))
}

func (s *Service) criticalText(ctx context.Context, r bloodbank.BloodRequest) string {
	where, phone := r.Requester.ID, r.ContactNumber
	if s.contacts != nil {
		if c, err := s.contacts.Contact(ctx, r.Requester.Party(), r.Requester.ID); err == nil {
			if c.Name != "" {
				where = c.Name
			}
			if phone == "" {
				phone = c.PhoneNumber
			}
		}
	}
	return fmt.Sprintf("URGENT BROADCAST: A critical request for %d units of %s blood has been made at %s. Contact: %s",
		r.Units, r.BloodGroup, where, phone)
}

// UpdateStatus approves or rejects a request on behalf of actingOrgID.
// Approving a broadcast claims it for the acting organization. Once a
// request is APPROVED, no other organization can change it.
func (s *Service) UpdateStatus(ctx context.Context, id string, next bloodbank.RequestStatus, actingOrgID string) (bloodbank.BloodRequest, error) {
	ctx, span := s.tracer.Start(ctx, "requests.update_status")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", id), attribute.String("request.next_status", string(next)), attribute.String("org.id", actingOrgID))

	if !next.Valid() {
		return bloodbank.BloodRequest{}, fmt.Errorf("%w: unknown status %q", bloodbank.ErrInvalidInput, next)
	}
	if next != bloodbank.RequestApproved && next != bloodbank.RequestRejected {
		return bloodbank.BloodRequest{}, fmt.Errorf("%w: %s is reached through its own operation", bloodbank.ErrInvalidTransition, next)
	}
	if actingOrgID == "" {
		return bloodbank.BloodRequest{}, fmt.Errorf("%w: acting organization is required", bloodbank.ErrInvalidInput)
	}

	var out bloodbank.BloodRequest
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if claimedByOther(r, actingOrgID) {
			return bloodbank.ErrAlreadyClaimed
		}
		if !r.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", bloodbank.ErrInvalidTransition, r.Status, next)
		}

		target := r.TargetOrgID
		if !r.Broadcast() || next == bloodbank.RequestApproved {
			target = actingOrgID
		}
		now := s.clock.Now()
		from := RequestState{Status: r.Status, TargetOrgID: r.TargetOrgID}
		if err := s.store.SwapRequest(ctx, id, from, RequestState{Status: next, TargetOrgID: target}, now); err != nil {
			return requestMoved(err)
		}
		r.Status, r.TargetOrgID, r.UpdatedAt = next, target, now
		out = r
		return nil
	})
	if errors.Is(err, errRequestMoved) {
		err = s.explainLostRace(ctx, id, actingOrgID)
	}
	if err != nil {
		if errors.Is(err, bloodbank.ErrAlreadyClaimed) {
			s.log.Info("claim rejected", zap.String("request_id", id), zap.String("org_id", actingOrgID))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "update status failed")
		return bloodbank.BloodRequest{}, err
	}

	s.remember(ctx, out)
	s.log.Info("request status updated", zap.String("request_id", out.ID), zap.String("status", string(out.Status)), zap.String("org_id", actingOrgID))

	event := bloodbank.EventRequestStatusUpdated
	if out.Status == bloodbank.RequestApproved {
		event = bloodbank.EventRequestApproved
		s.textApproval(ctx, out)
	}
	s.notifier.Notify(ctx, notify.Notification{Channel: out.Requester.Channel(), TargetID: out.Requester.ID, EventType: event, CorrelationID: out.ID, Payload: out})
	return out, nil
}

// errRequestMoved marks a request swap that lost to a concurrent writer,
// as opposed to a stale snapshot from the stock deduction.
var errRequestMoved = errors.New("request changed concurrently")

func requestMoved(err error) error {
	if errors.Is(err, bloodbank.ErrStaleSnapshot) {
		return errRequestMoved
	}
	return err
}

func claimedByOther(r bloodbank.BloodRequest, actingOrgID string) bool {
	return r.Status == bloodbank.RequestApproved && r.TargetOrgID != "" && r.TargetOrgID != actingOrgID
}

// explainLostRace turns a failed compare-and-set into the error the caller
// would have seen had it arrived second.
func (s *Service) explainLostRace(ctx context.Context, id, actingOrgID string) error {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if claimedByOther(r, actingOrgID) {
		return bloodbank.ErrAlreadyClaimed
	}
	return fmt.Errorf("%w: request is now %s", bloodbank.ErrInvalidTransition, r.Status)
}

func (s *Service) textApproval(ctx context.Context, r bloodbank.BloodRequest) {
	if s.contacts == nil {
		return
	}
	who, err := s.contacts.Contact(ctx, r.Requester.Party(), r.Requester.ID)
	if err != nil || who.PhoneNumber == "" {
		return
	}
	orgName := "an organization"
	if org, err := s.contacts.Contact(ctx, bloodbank.PartyOrganization, r.TargetOrgID); err == nil && org.Name != "" {
		orgName = org.Name
	}
	s.texter.SendText(ctx, who.PhoneNumber, fmt.Sprintf(
		"GREAT NEWS: Your request for %s blood has been APPROVED by %s. Please coordinate for pick-up.", r.BloodGroup, orgName))
}

type Fulfillment struct {
	Request     bloodbank.BloodRequest `json:"request"`
	Allocations []bloodbank.Allocation `json:"allocations"`
}

// Fulfill deducts the request's units from the effective organization's
// stock and marks the request UTILIZED. The effective organization is the
// claimant when there is one, else actingOrgID. If the deduction fails the
// request is left as it was.
func (s *Service) Fulfill(ctx context.Context, id, actingOrgID string) (Fulfillment, error) {
	ctx, span := s.tracer.Start(ctx, "requests.fulfill")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", id), attribute.String("org.id", actingOrgID))

	var out Fulfillment
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != bloodbank.RequestPending && r.Status != bloodbank.RequestApproved {
			return fmt.Errorf("%w: cannot fulfill a %s request", bloodbank.ErrInvalidTransition, r.Status)
		}
		if actingOrgID != "" && claimedByOther(r, actingOrgID) {
			return bloodbank.ErrAlreadyClaimed
		}
		effective := r.TargetOrgID
		if effective == "" {
			effective = actingOrgID
		}
		if effective == "" {
			return fmt.Errorf("%w: acting organization is required for a broadcast request", bloodbank.ErrInvalidInput)
		}

		allocations, err := s.stock.DeductFEFO(ctx, effective, r.BloodGroup, r.Units)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		from := RequestState{Status: r.Status, TargetOrgID: r.TargetOrgID}
		if err := s.store.SwapRequest(ctx, id, from, RequestState{Status: bloodbank.RequestUtilized, TargetOrgID: effective}, now); err != nil {
			return requestMoved(err)
		}
		r.Status, r.TargetOrgID, r.UpdatedAt = bloodbank.RequestUtilized, effective, now
		out = Fulfillment{Request: r, Allocations: allocations}
		return nil
	})
	if errors.Is(err, errRequestMoved) {
		err = s.explainLostRace(ctx, id, actingOrgID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fulfill failed")
		return Fulfillment{}, err
	}

	r := out.Request
	s.remember(ctx, r)
	s.log.Info("request fulfilled", zap.String("request_id", r.ID), zap.String("org_id", r.TargetOrgID), zap.Int("batches", len(out.Allocations)))

	s.notifier.Notify(ctx, notify.Notification{Channel: r.Requester.Channel(), TargetID: r.Requester.ID, EventType: bloodbank.EventRequestFulfilled, CorrelationID: r.ID,
		Payload: bloodbank.FulfilledPayload{Request: r, Allocations: out.Allocations}})
	s.notifier.Notify(ctx, notify.Notification{Channel: bloodbank.ChannelOrganization, TargetID: r.TargetOrgID, EventType: bloodbank.EventInventoryUpdated, CorrelationID: r.ID,
		Payload: bloodbank.DeductionPayload{OrgID: r.TargetOrgID, BloodGroup: r.BloodGroup, Units: r.Units, Allocations: out.Allocations}})
	return out, nil
}

// Cancel withdraws a PENDING request. Only its requester may do so.
func (s *Service) Cancel(ctx context.Context, id string, by bloodbank.RequesterRef) (bloodbank.BloodRequest, error) {
	var out bloodbank.BloodRequest
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if r.Requester != by {
			return bloodbank.ErrNotRequester
		}
		if !r.Status.CanTransition(bloodbank.RequestCancelled) {
			return fmt.Errorf("%w: %s -> %s", bloodbank.ErrInvalidTransition, r.Status, bloodbank.RequestCancelled)
		}
		now := s.clock.Now()
		from := RequestState{Status: r.Status, TargetOrgID: r.TargetOrgID}
		if err := s.store.SwapRequest(ctx, id, from, RequestState{Status: bloodbank.RequestCancelled, TargetOrgID: r.TargetOrgID}, now); err != nil {
			return err
		}
		r.Status, r.UpdatedAt = bloodbank.RequestCancelled, now
		out = r
		return nil
	})
	if errors.Is(err, bloodbank.ErrStaleSnapshot) {
		err = fmt.Errorf("%w: request changed while cancelling", bloodbank.ErrInvalidTransition)
	}
	if err != nil {
		return bloodbank.BloodRequest{}, err
	}

	s.remember(ctx, out)
	n := notify.Notification{Channel: bloodbank.ChannelBroadcast, EventType: bloodbank.EventRequestStatusUpdated, CorrelationID: out.ID, Payload: out}
	if !out.Broadcast() {
		n.Channel, n.TargetID = bloodbank.ChannelOrganization, out.TargetOrgID
	}
	s.notifier.Notify(ctx, n)
	return out, nil
}

// Get serves from the status cache when it can.
func (s *Service) Get(ctx context.Context, id string) (bloodbank.BloodRequest, error) {
	if s.cache != nil {
		r, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn("status cache read failed", zap.String("request_id", id), zap.Error(err))
		} else if ok {
			return r, nil
		}
	}
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return bloodbank.BloodRequest{}, err
	}
	s.remember(ctx, r)
	return r, nil
}

func (s *Service) ForOrg(ctx context.Context, orgID string) ([]bloodbank.BloodRequest, error) {
	return s.store.ListRequestsForOrg(ctx, orgID)
}

func (s *Service) Pending(ctx context.Context) ([]bloodbank.BloodRequest, error) {
	return s.store.ListRequestsByStatus(ctx, bloodbank.RequestPending)
}

func (s *Service) ForRequester(ctx context.Context, ref bloodbank.RequesterRef) ([]bloodbank.BloodRequest, error) {
	return s.store.ListRequestsByRequester(ctx, ref)
}

func (s *Service) remember(ctx context.Context, r bloodbank.BloodRequest) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, r); err != nil {
		s.log.Warn("status cache write failed", zap.String("request_id", r.ID), zap.Error(err))
	}
}
