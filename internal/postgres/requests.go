package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/requests"
)

const requestColumns = `id, requester_kind, requester_id, blood_group, units, urgency, COALESCE(target_org_id, ''),
	status, contact_number, note, created_at, updated_at`

func scanRequest(row pgx.Row) (bloodbank.BloodRequest, error) {
	var r bloodbank.BloodRequest
	err := row.Scan(&r.ID, &r.Requester.Kind, &r.Requester.ID, &r.BloodGroup, &r.Units, &r.Urgency, &r.TargetOrgID,
		&r.Status, &r.ContactNumber, &r.Note, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func collectRequests(rows pgx.Rows, err error) ([]bloodbank.BloodRequest, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bloodbank.BloodRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertRequest(ctx context.Context, r bloodbank.BloodRequest) error {
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO blood_requests (id, requester_kind, requester_id, blood_group, units, urgency, target_org_id,
	status, contact_number, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12)`,
		r.ID, r.Requester.Kind, r.Requester.ID, r.BloodGroup, r.Units, r.Urgency, r.TargetOrgID,
		r.Status, r.ContactNumber, r.Note, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return bloodbank.ErrDuplicateID
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (bloodbank.BloodRequest, error) {
	r, err := scanRequest(s.q(ctx).QueryRow(ctx, `SELECT `+requestColumns+` FROM blood_requests WHERE id = $1`+forUpdate(ctx), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return bloodbank.BloodRequest{}, bloodbank.ErrRequestNotFound
	}
	if err != nil {
		return bloodbank.BloodRequest{}, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

// SwapRequest only writes when status and claimant are still what the
// caller read, which is what stops two organizations both winning a claim.
func (s *Store) SwapRequest(ctx context.Context, id string, from, to requests.RequestState, at time.Time) error {
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE blood_requests
SET status = $1, target_org_id = NULLIF($2, ''), updated_at = $3
WHERE id = $4 AND status = $5 AND COALESCE(target_org_id, '') = $6`,
		to.Status, to.TargetOrgID, at, id, from.Status, from.TargetOrgID)
	if err != nil {
		return fmt.Errorf("swap request: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetRequest(ctx, id); err != nil {
		return err
	}
	return bloodbank.ErrStaleSnapshot
}

func (s *Store) ListRequestsForOrg(ctx context.Context, orgID string) ([]bloodbank.BloodRequest, error) {
	out, err := collectRequests(s.q(ctx).Query(ctx, `
SELECT `+requestColumns+` FROM blood_requests
WHERE (target_org_id = $1 AND status <> 'CANCELLED')
   OR (target_org_id IS NULL AND status = 'PENDING')
ORDER BY created_at DESC, id`, orgID))
	if err != nil {
		return nil, fmt.Errorf("list org requests: %w", err)
	}
	return out, nil
}

func (s *Store) ListRequestsByStatus(ctx context.Context, status bloodbank.RequestStatus) ([]bloodbank.BloodRequest, error) {
	out, err := collectRequests(s.q(ctx).Query(ctx,
		`SELECT `+requestColumns+` FROM blood_requests WHERE status = $1 ORDER BY created_at DESC, id`, status))
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out, nil
}

func (s *Store) ListRequestsByRequester(ctx context.Context, ref bloodbank.RequesterRef) ([]bloodbank.BloodRequest, error) {
	out, err := collectRequests(s.q(ctx).Query(ctx,
		`SELECT `+requestColumns+` FROM blood_requests WHERE requester_kind = $1 AND requester_id = $2 ORDER BY created_at DESC, id`,
		ref.Kind, ref.ID))
	if err != nil {
		return nil, fmt.Errorf("list requester requests: %w", err)
	}
	return out, nil
}
