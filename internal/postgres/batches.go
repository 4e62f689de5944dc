package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
)

const batchColumns = `id, organization_id, blood_group, quantity, collection_date, expiry_date, status,
	source_donor_id, label, reserved_by, created_at, updated_at`

func scanBatch(row pgx.Row) (bloodbank.InventoryBatch, error) {
	var b bloodbank.InventoryBatch
	err := row.Scan(&b.ID, &b.OrganizationID, &b.BloodGroup, &b.Quantity, &b.CollectionDate, &b.ExpiryDate, &b.Status,
		&b.SourceDonorID, &b.Label, &b.ReservedBy, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func collectBatches(rows pgx.Rows, err error) ([]bloodbank.InventoryBatch, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bloodbank.InventoryBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) InsertBatch(ctx context.Context, b bloodbank.InventoryBatch) error {
	tag, err := s.q(ctx).Exec(ctx, `
INSERT INTO inventory_batches (`+batchColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO NOTHING`,
		b.ID, b.OrganizationID, b.BloodGroup, b.Quantity, b.CollectionDate, b.ExpiryDate, b.Status,
		b.SourceDonorID, b.Label, b.ReservedBy, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return bloodbank.ErrDuplicateID
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bloodbank.ErrDuplicateID
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (bloodbank.InventoryBatch, error) {
	b, err := scanBatch(s.q(ctx).QueryRow(ctx, `SELECT `+batchColumns+` FROM inventory_batches WHERE id = $1`+forUpdate(ctx), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return bloodbank.InventoryBatch{}, bloodbank.ErrBatchNotFound
	}
	if err != nil {
		return bloodbank.InventoryBatch{}, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (s *Store) ListAvailable(ctx context.Context, f inventory.AvailableFilter) ([]bloodbank.InventoryBatch, error) {
	where := []string{`status = 'AVAILABLE'`}
	var args []any
	if f.OrgID != "" {
		args = append(args, f.OrgID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if f.BloodGroup != "" {
		args = append(args, f.BloodGroup)
		where = append(where, fmt.Sprintf("blood_group = $%d", len(args)))
	}
	if !f.NotExpiredOn.IsZero() {
		args = append(args, f.NotExpiredOn)
		where = append(where, fmt.Sprintf("expiry_date >= $%d", len(args)))
	}
	sql := `SELECT ` + batchColumns + ` FROM inventory_batches WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY expiry_date, id` + forUpdate(ctx)
	out, err := collectBatches(s.q(ctx).Query(ctx, sql, args...))
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	return out, nil
}

func (s *Store) ListBatchesByOrg(ctx context.Context, orgID string) ([]bloodbank.InventoryBatch, error) {
	out, err := collectBatches(s.q(ctx).Query(ctx,
		`SELECT `+batchColumns+` FROM inventory_batches WHERE organization_id = $1 ORDER BY expiry_date, id`, orgID))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return out, nil
}

func (s *Store) ListExpired(ctx context.Context, today time.Time) ([]bloodbank.InventoryBatch, error) {
	out, err := collectBatches(s.q(ctx).Query(ctx,
		`SELECT `+batchColumns+` FROM inventory_batches WHERE status = 'AVAILABLE' AND expiry_date < $1 ORDER BY expiry_date, id`, today))
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	return out, nil
}

// SwapBatch is a conditional update on the observed status and quantity.
func (s *Store) SwapBatch(ctx context.Context, id string, from, to inventory.BatchState, at time.Time) error {
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE inventory_batches
SET status = $1, quantity = $2, reserved_by = $3, updated_at = $4
WHERE id = $5 AND status = $6 AND quantity = $7`,
		to.Status, to.Quantity, to.ReservedBy, at, id, from.Status, from.Quantity)
	if err != nil {
		return fmt.Errorf("swap batch: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetBatch(ctx, id); err != nil {
		return err
	}
	return bloodbank.ErrStaleSnapshot
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM inventory_batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bloodbank.ErrBatchNotFound
	}
	return nil
}
