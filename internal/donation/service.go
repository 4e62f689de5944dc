// Package donation books donor appointments and turns completed donations
// into inventory.
package donation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/clock"
	"github.com/ariefcatur/go-bloodbank/internal/eligibility"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
	"github.com/ariefcatur/go-bloodbank/internal/notify"
)

type Service struct {
	store    Store
	intake   Intake
	notifier notify.Notifier
	clock    clock.Clock
	log      *zap.Logger
	tracer   trace.Tracer
	newID    func() string
}

type Option func(*Service)

func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

func NewService(store Store, intake Intake, n notify.Notifier, clk clock.Clock, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if n == nil {
		n = notify.Nop()
	}
	s := &Service{
		store:    store,
		intake:   intake,
		notifier: n,
		clock:    clk,
		log:      log.Named("donation"),
		tracer:   otel.Tracer("github.com/ariefcatur/go-bloodbank/internal/donation"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type BookInput struct {
	DonorID         string                  `json:"donor_id"`
	OrgID           string                  `json:"organization_id"`
	BloodGroup      bloodbank.BloodGroup    `json:"blood_group,omitempty"` // defaults to the donor's group
	AppointmentDate time.Time               `json:"appointment_date"`      // zero = today
	Questionnaire   bloodbank.Questionnaire `json:"questionnaire"`
}

// Book checks eligibility first and stores a PENDING appointment only for
// an eligible donor. An ineligible donor gets a *bloodbank.IneligibleError.
func (s *Service) Book(ctx context.Context, in BookInput) (bloodbank.DonationAppointment, error) {
	if in.DonorID == "" || in.OrgID == "" {
		return bloodbank.DonationAppointment{}, fmt.Errorf("%w: donor and organization are required", bloodbank.ErrInvalidInput)
	}
	today := s.clock.Today()
	day := clock.Day(in.AppointmentDate)
	if in.AppointmentDate.IsZero() {
		day = today
	}
	if day.Before(today) {
		return bloodbank.DonationAppointment{}, fmt.Errorf("%w: appointment date is in the past", bloodbank.ErrInvalidInput)
	}

	donor, err := s.store.GetDonor(ctx, in.DonorID)
	if err != nil {
		return bloodbank.DonationAppointment{}, err
	}
	group := in.BloodGroup
	if group == "" {
		group = donor.BloodGroup
	}
	if !group.Valid() {
		return bloodbank.DonationAppointment{}, fmt.Errorf("%w: unknown blood group %q", bloodbank.ErrInvalidInput, group)
	}

	verdict := eligibility.Evaluate(in.Questionnaire, eligibility.History{LastDonationAt: donor.LastDonationAt}, today)
	if !verdict.Eligible {
		s.log.Info("booking refused", zap.String("donor_id", donor.ID), zap.String("reason", verdict.Reason))
		return bloodbank.DonationAppointment{}, verdict.AsError()
	}

	now := s.clock.Now()
	a := bloodbank.DonationAppointment{
		ID:              s.newID(),
		DonorID:         donor.ID,
		OrganizationID:  in.OrgID,
		BloodGroup:      group,
		AppointmentDate: day,
		Questionnaire:   in.Questionnaire,
		Status:          bloodbank.AppointmentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.InsertAppointment(ctx, a); err != nil {
		return bloodbank.DonationAppointment{}, fmt.Errorf("book appointment: %w", err)
	}

	s.log.Info("appointment booked", zap.String("appointment_id", a.ID), zap.String("donor_id", a.DonorID), zap.String("org_id", a.OrganizationID))
	s.notifier.Notify(ctx, notify.Notification{Channel: bloodbank.ChannelOrganization, TargetID: a.OrganizationID, EventType: bloodbank.EventAppointmentBooked, CorrelationID: a.ID, Payload: a})
	return a, nil
}

// UpdateStatus approves or rejects a PENDING appointment.
func (s *Service) UpdateStatus(ctx context.Context, id string, next bloodbank.AppointmentStatus) (bloodbank.DonationAppointment, error) {
	if !next.Valid() {
		return bloodbank.DonationAppointment{}, fmt.Errorf("%w: unknown status %q", bloodbank.ErrInvalidInput, next)
	}
	if next != bloodbank.AppointmentApproved && next != bloodbank.AppointmentRejected {
		return bloodbank.DonationAppointment{}, fmt.Errorf("%w: %s is reached through its own operation", bloodbank.ErrInvalidTransition, next)
	}

	var out bloodbank.DonationAppointment
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.store.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if !a.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", bloodbank.ErrInvalidTransition, a.Status, next)
		}
		now := s.clock.Now()
		if err := s.store.SwapAppointment(ctx, id, a.Status, next, "", now); err != nil {
			return err
		}
		a.Status, a.UpdatedAt = next, now
		out = a
		return nil
	})
	if errors.Is(err, bloodbank.ErrStaleSnapshot) {
		err = fmt.Errorf("%w: appointment changed concurrently", bloodbank.ErrInvalidTransition)
	}
	if err != nil {
		return bloodbank.DonationAppointment{}, err
	}

	s.notifier.Notify(ctx, notify.Notification{Channel: bloodbank.ChannelUser, TargetID: out.DonorID, EventType: bloodbank.EventAppointmentUpdated, CorrelationID: out.ID, Payload: out})
	return out, nil
}

// Complete records an APPROVED appointment's donation: one AVAILABLE unit
// for the organization, the donor's new last-donation time and the
// COMPLETED status commit together or not at all.
func (s *Service) Complete(ctx context.Context, id string) (bloodbank.DonationAppointment, error) {
	ctx, span := s.tracer.Start(ctx, "donation.complete")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id))

	var (
		out   bloodbank.DonationAppointment
		batch bloodbank.InventoryBatch
	)
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.store.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		switch a.Status {
		case bloodbank.AppointmentApproved:
		case bloodbank.AppointmentCompleted:
			return bloodbank.ErrAlreadyCompleted
		default:
			return bloodbank.ErrAppointmentNotApproved
		}

		now := s.clock.Now()
		batch, err = s.intake.AddBatch(ctx, inventory.NewBatch{
			OrgID:          a.OrganizationID,
			BloodGroup:     a.BloodGroup,
			Quantity:       1,
			CollectionDate: clock.Day(now),
			SourceDonorID:  a.DonorID,
			Label:          "donation " + a.ID,
		})
		if err != nil {
			return err
		}
		if err := s.store.SetLastDonation(ctx, a.DonorID, now); err != nil {
			return fmt.Errorf("record last donation: %w", err)
		}
		if err := s.store.SwapAppointment(ctx, a.ID, bloodbank.AppointmentApproved, bloodbank.AppointmentCompleted, batch.ID, now); err != nil {
			return err
		}
		a.Status, a.BatchID, a.UpdatedAt = bloodbank.AppointmentCompleted, batch.ID, now
		out = a
		return nil
	})
	if errors.Is(err, bloodbank.ErrStaleSnapshot) {
		err = bloodbank.ErrAlreadyCompleted
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return bloodbank.DonationAppointment{}, err
	}

	s.log.Info("donation completed", zap.String("appointment_id", out.ID), zap.String("donor_id", out.DonorID), zap.String("batch_id", batch.ID))

	payload := bloodbank.DonationCompletedPayload{Appointment: out, BatchID: batch.ID, CollectedAt: out.UpdatedAt}
	s.notifier.Notify(ctx, notify.Notification{Channel: bloodbank.ChannelUser, TargetID: out.DonorID, EventType: bloodbank.EventDonationCompleted, CorrelationID: out.ID, Payload: payload})
	s.notifier.Notify(ctx, notify.Notification{Channel: bloodbank.ChannelUser, TargetID: out.DonorID, EventType: bloodbank.EventCertificateIssued, CorrelationID: out.ID, Payload: payload})
	s.notifier.Notify(ctx, notify.Notification{Channel: bloodbank.ChannelOrganization, TargetID: out.OrganizationID, EventType: bloodbank.EventInventoryUpdated, CorrelationID: out.ID, Payload: batch})
	return out, nil
}

// CheckEligibility evaluates a questionnaire for a donor without booking.
func (s *Service) CheckEligibility(ctx context.Context, donorID string, q bloodbank.Questionnaire) (eligibility.Result, error) {
	donor, err := s.store.GetDonor(ctx, donorID)
	if err != nil {
		return eligibility.Result{}, err
	}
	return eligibility.Evaluate(q, eligibility.History{LastDonationAt: donor.LastDonationAt}, s.clock.Today()), nil
}

// CheckDonationInterval reports only the 56-day interval rule.
func (s *Service) CheckDonationInterval(ctx context.Context, donorID string) (eligibility.Result, error) {
	donor, err := s.store.GetDonor(ctx, donorID)
	if err != nil {
		return eligibility.Result{}, err
	}
	return eligibility.DonationInterval(eligibility.History{LastDonationAt: donor.LastDonationAt}, s.clock.Today()), nil
}

func (s *Service) Get(ctx context.Context, id string) (bloodbank.DonationAppointment, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) ForOrg(ctx context.Context, orgID string) ([]bloodbank.DonationAppointment, error) {
	return s.store.ListAppointmentsByOrg(ctx, orgID)
}

func (s *Service) ForDonor(ctx context.Context, donorID string) ([]bloodbank.DonationAppointment, error) {
	return s.store.ListAppointmentsByDonor(ctx, donorID)
}
