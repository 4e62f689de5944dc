package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
)

const appointmentColumns = `id, donor_id, organization_id, blood_group, appointment_date,
	feeling_well, traveled_recently, taking_medication, recent_surgery, status, batch_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (bloodbank.DonationAppointment, error) {
	var a bloodbank.DonationAppointment
	q := &a.Questionnaire
	err := row.Scan(&a.ID, &a.DonorID, &a.OrganizationID, &a.BloodGroup, &a.AppointmentDate,
		&q.FeelingWell, &q.TraveledRecently, &q.TakingMedication, &q.RecentSurgery, &a.Status, &a.BatchID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) InsertAppointment(ctx context.Context, a bloodbank.DonationAppointment) error {
	q := a.Questionnaire
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO donation_appointments (`+appointmentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.DonorID, a.OrganizationID, a.BloodGroup, a.AppointmentDate,
		q.FeelingWell, q.TraveledRecently, q.TakingMedication, q.RecentSurgery, a.Status, a.BatchID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return bloodbank.ErrDuplicateID
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (bloodbank.DonationAppointment, error) {
	a, err := scanAppointment(s.q(ctx).QueryRow(ctx, `SELECT `+appointmentColumns+` FROM donation_appointments WHERE id = $1`+forUpdate(ctx), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return bloodbank.DonationAppointment{}, bloodbank.ErrAppointmentNotFound
	}
	if err != nil {
		return bloodbank.DonationAppointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (s *Store) SwapAppointment(ctx context.Context, id string, from, to bloodbank.AppointmentStatus, batchID string, at time.Time) error {
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE donation_appointments
SET status = $1, batch_id = CASE WHEN $2 = '' THEN batch_id ELSE $2 END, updated_at = $3
WHERE id = $4 AND status = $5`,
		to, batchID, at, id, from)
	if err != nil {
		return fmt.Errorf("swap appointment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetAppointment(ctx, id); err != nil {
		return err
	}
	return bloodbank.ErrStaleSnapshot
}

func (s *Store) listAppointments(ctx context.Context, column, value string) ([]bloodbank.DonationAppointment, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+appointmentColumns+` FROM donation_appointments WHERE `+column+` = $1 ORDER BY appointment_date, id`, value)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	var out []bloodbank.DonationAppointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListAppointmentsByOrg(ctx context.Context, orgID string) ([]bloodbank.DonationAppointment, error) {
	return s.listAppointments(ctx, "organization_id", orgID)
}

func (s *Store) ListAppointmentsByDonor(ctx context.Context, donorID string) ([]bloodbank.DonationAppointment, error) {
	return s.listAppointments(ctx, "donor_id", donorID)
}
