package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
)

var partyTables = map[bloodbank.PartyKind]string{
	bloodbank.PartyOrganization: "organizations",
	bloodbank.PartyHospital:     "hospitals",
	bloodbank.PartyUser:         "users",
}

// Contacts reads display names and phone numbers for the directory.
func (s *Store) Contacts(ctx context.Context, kind bloodbank.PartyKind, ids []string) (map[string]bloodbank.Contact, error) {
	table, ok := partyTables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown party kind %q", bloodbank.ErrInvalidInput, kind)
	}
	rows, err := s.q(ctx).Query(ctx, `SELECT id, name, phone_number FROM `+table+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("contacts: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bloodbank.Contact, len(ids))
	for rows.Next() {
		var c bloodbank.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.PhoneNumber); err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

// UpsertContact registers or renames an organization, hospital or user.
func (s *Store) UpsertContact(ctx context.Context, kind bloodbank.PartyKind, c bloodbank.Contact) error {
	table, ok := partyTables[kind]
	if !ok {
		return fmt.Errorf("%w: unknown party kind %q", bloodbank.ErrInvalidInput, kind)
	}
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO `+table+` (id, name, phone_number) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone_number = EXCLUDED.phone_number`,
		c.ID, c.Name, c.PhoneNumber)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", kind, err)
	}
	return nil
}

func (s *Store) GetDonor(ctx context.Context, id string) (bloodbank.Donor, error) {
	var d bloodbank.Donor
	err := s.q(ctx).QueryRow(ctx,
		`SELECT id, name, blood_group, phone_number, last_donation_at FROM users WHERE id = $1`+forUpdate(ctx), id).
		Scan(&d.ID, &d.Name, &d.BloodGroup, &d.PhoneNumber, &d.LastDonationAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return bloodbank.Donor{}, bloodbank.ErrDonorNotFound
	}
	if err != nil {
		return bloodbank.Donor{}, fmt.Errorf("get donor: %w", err)
	}
	return d, nil
}

// UpsertDonor registers a donor with their blood group.
func (s *Store) UpsertDonor(ctx context.Context, d bloodbank.Donor) error {
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO users (id, name, phone_number, blood_group, last_donation_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone_number = EXCLUDED.phone_number, blood_group = EXCLUDED.blood_group`,
		d.ID, d.Name, d.PhoneNumber, d.BloodGroup, d.LastDonationAt)
	if err != nil {
		return fmt.Errorf("upsert donor: %w", err)
	}
	return nil
}

func (s *Store) SetLastDonation(ctx context.Context, donorID string, at time.Time) error {
	tag, err := s.q(ctx).Exec(ctx, `UPDATE users SET last_donation_at = $1 WHERE id = $2`, at, donorID)
	if err != nil {
		return fmt.Errorf("set last donation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bloodbank.ErrDonorNotFound
	}
	return nil
}
