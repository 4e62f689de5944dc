// Package memstore keeps every aggregate in process memory behind one mutex.
// It backs the workflow tests and the STORAGE=memory dev mode. Transactions
// hold the mutex for their whole duration and nested ones roll back to a
// snapshot, so it gives the same atomicity the Postgres store does.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
	"github.com/ariefcatur/go-bloodbank/internal/requests"
)

type Store struct {
	mu           sync.Mutex
	batches      map[string]bloodbank.InventoryBatch
	requests     map[string]bloodbank.BloodRequest
	appointments map[string]bloodbank.DonationAppointment
	donors       map[string]bloodbank.Donor
	contacts     map[bloodbank.PartyKind]map[string]bloodbank.Contact
}

func New() *Store {
	return &Store{
		batches:      map[string]bloodbank.InventoryBatch{},
		requests:     map[string]bloodbank.BloodRequest{},
		appointments: map[string]bloodbank.DonationAppointment{},
		donors:       map[string]bloodbank.Donor{},
		contacts:     map[bloodbank.PartyKind]map[string]bloodbank.Contact{},
	}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock is a no-op inside a transaction, which already holds the mutex.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		snap := s.snapshot()
		if err := fn(ctx); err != nil {
			s.restore(snap)
			return err
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type state struct {
	batches      map[string]bloodbank.InventoryBatch
	requests     map[string]bloodbank.BloodRequest
	appointments map[string]bloodbank.DonationAppointment
	donors       map[string]bloodbank.Donor
}

func (s *Store) snapshot() state {
	return state{
		batches:      clone(s.batches),
		requests:     clone(s.requests),
		appointments: clone(s.appointments),
		donors:       clone(s.donors),
	}
}

func (s *Store) restore(st state) {
	s.batches, s.requests, s.appointments, s.donors = st.batches, st.requests, st.appointments, st.donors
}

func clone[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ---- seeding ----

func (s *Store) PutDonor(d bloodbank.Donor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donors[d.ID] = d
}

func (s *Store) PutContact(kind bloodbank.PartyKind, c bloodbank.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contacts[kind] == nil {
		s.contacts[kind] = map[string]bloodbank.Contact{}
	}
	s.contacts[kind][c.ID] = c
}

// ---- batches ----

func (s *Store) InsertBatch(ctx context.Context, b bloodbank.InventoryBatch) error {
	defer s.lock(ctx)()
	if _, ok := s.batches[b.ID]; ok {
		return bloodbank.ErrDuplicateID
	}
	s.batches[b.ID] = b
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (bloodbank.InventoryBatch, error) {
	defer s.lock(ctx)()
	b, ok := s.batches[id]
	if !ok {
		return bloodbank.InventoryBatch{}, bloodbank.ErrBatchNotFound
	}
	return b, nil
}

func (s *Store) ListAvailable(ctx context.Context, f inventory.AvailableFilter) ([]bloodbank.InventoryBatch, error) {
	defer s.lock(ctx)()
	var out []bloodbank.InventoryBatch
	for _, b := range s.batches {
		if b.Status != bloodbank.BatchAvailable {
			continue
		}
		if f.OrgID != "" && b.OrganizationID != f.OrgID {
			continue
		}
		if f.BloodGroup != "" && b.BloodGroup != f.BloodGroup {
			continue
		}
		if !f.NotExpiredOn.IsZero() && b.ExpiryDate.Before(f.NotExpiredOn) {
			continue
		}
		out = append(out, b)
	}
	inventory.SortFEFO(out)
	return out, nil
}

func (s *Store) ListBatchesByOrg(ctx context.Context, orgID string) ([]bloodbank.InventoryBatch, error) {
	defer s.lock(ctx)()
	var out []bloodbank.InventoryBatch
	for _, b := range s.batches {
		if b.OrganizationID == orgID {
			out = append(out, b)
		}
	}
	inventory.SortFEFO(out)
	return out, nil
}

func (s *Store) ListExpired(ctx context.Context, today time.Time) ([]bloodbank.InventoryBatch, error) {
	defer s.lock(ctx)()
	var out []bloodbank.InventoryBatch
	for _, b := range s.batches {
		if b.Status == bloodbank.BatchAvailable && b.ExpiryDate.Before(today) {
			out = append(out, b)
		}
	}
	inventory.SortFEFO(out)
	return out, nil
}

func (s *Store) SwapBatch(ctx context.Context, id string, from, to inventory.BatchState, at time.Time) error {
	defer s.lock(ctx)()
	b, ok := s.batches[id]
	if !ok {
		return bloodbank.ErrBatchNotFound
	}
	if b.Status != from.Status || b.Quantity != from.Quantity {
		return bloodbank.ErrStaleSnapshot
	}
	b.Status, b.Quantity, b.ReservedBy, b.UpdatedAt = to.Status, to.Quantity, to.ReservedBy, at
	s.batches[id] = b
	return nil
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	defer s.lock(ctx)()
	if _, ok := s.batches[id]; !ok {
		return bloodbank.ErrBatchNotFound
	}
	delete(s.batches, id)
	return nil
}

// ---- requests ----

func (s *Store) InsertRequest(ctx context.Context, r bloodbank.BloodRequest) error {
	defer s.lock(ctx)()
	if _, ok := s.requests[r.ID]; ok {
		return bloodbank.ErrDuplicateID
	}
	s.requests[r.ID] = r
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (bloodbank.BloodRequest, error) {
	defer s.lock(ctx)()
	r, ok := s.requests[id]
	if !ok {
		return bloodbank.BloodRequest{}, bloodbank.ErrRequestNotFound
	}
	return r, nil
}

func (s *Store) SwapRequest(ctx context.Context, id string, from, to requests.RequestState, at time.Time) error {
	defer s.lock(ctx)()
	r, ok := s.requests[id]
	if !ok {
		return bloodbank.ErrRequestNotFound
	}
	if r.Status != from.Status || r.TargetOrgID != from.TargetOrgID {
		return bloodbank.ErrStaleSnapshot
	}
	r.Status, r.TargetOrgID, r.UpdatedAt = to.Status, to.TargetOrgID, at
	s.requests[id] = r
	return nil
}

func (s *Store) ListRequestsForOrg(ctx context.Context, orgID string) ([]bloodbank.BloodRequest, error) {
	return s.filterRequests(ctx, func(r bloodbank.BloodRequest) bool {
		if r.TargetOrgID == orgID {
			return r.Status != bloodbank.RequestCancelled
		}
		return r.Broadcast() && r.Status == bloodbank.RequestPending
	})
}

func (s *Store) ListRequestsByStatus(ctx context.Context, status bloodbank.RequestStatus) ([]bloodbank.BloodRequest, error) {
	return s.filterRequests(ctx, func(r bloodbank.BloodRequest) bool { return r.Status == status })
}

func (s *Store) ListRequestsByRequester(ctx context.Context, ref bloodbank.RequesterRef) ([]bloodbank.BloodRequest, error) {
	return s.filterRequests(ctx, func(r bloodbank.BloodRequest) bool { return r.Requester == ref })
}

func (s *Store) filterRequests(ctx context.Context, keep func(bloodbank.BloodRequest) bool) ([]bloodbank.BloodRequest, error) {
	defer s.lock(ctx)()
	var out []bloodbank.BloodRequest
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ---- appointments and donors ----

func (s *Store) InsertAppointment(ctx context.Context, a bloodbank.DonationAppointment) error {
	defer s.lock(ctx)()
	if _, ok := s.appointments[a.ID]; ok {
		return bloodbank.ErrDuplicateID
	}
	s.appointments[a.ID] = a
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (bloodbank.DonationAppointment, error) {
	defer s.lock(ctx)()
	a, ok := s.appointments[id]
	if !ok {
		return bloodbank.DonationAppointment{}, bloodbank.ErrAppointmentNotFound
	}
	return a, nil
}

func (s *Store) SwapAppointment(ctx context.Context, id string, from, to bloodbank.AppointmentStatus, batchID string, at time.Time) error {
	defer s.lock(ctx)()
	a, ok := s.appointments[id]
	if !ok {
		return bloodbank.ErrAppointmentNotFound
	}
	if a.Status != from {
		return bloodbank.ErrStaleSnapshot
	}
	a.Status, a.UpdatedAt = to, at
	if batchID != "" {
		a.BatchID = batchID
	}
	s.appointments[id] = a
	return nil
}

func (s *Store) ListAppointmentsByOrg(ctx context.Context, orgID string) ([]bloodbank.DonationAppointment, error) {
	return s.filterAppointments(ctx, func(a bloodbank.DonationAppointment) bool { return a.OrganizationID == orgID })
}

func (s *Store) ListAppointmentsByDonor(ctx context.Context, donorID string) ([]bloodbank.DonationAppointment, error) {
	return s.filterAppointments(ctx, func(a bloodbank.DonationAppointment) bool { return a.DonorID == donorID })
}

func (s *Store) filterAppointments(ctx context.Context, keep func(bloodbank.DonationAppointment) bool) ([]bloodbank.DonationAppointment, error) {
	defer s.lock(ctx)()
	var out []bloodbank.DonationAppointment
	for _, a := range s.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].AppointmentDate.Before(out[j].AppointmentDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetDonor(ctx context.Context, id string) (bloodbank.Donor, error) {
	defer s.lock(ctx)()
	d, ok := s.donors[id]
	if !ok {
		return bloodbank.Donor{}, bloodbank.ErrDonorNotFound
	}
	return d, nil
}

func (s *Store) SetLastDonation(ctx context.Context, donorID string, at time.Time) error {
	defer s.lock(ctx)()
	d, ok := s.donors[donorID]
	if !ok {
		return bloodbank.ErrDonorNotFound
	}
	d.LastDonationAt = &at
	s.donors[donorID] = d
	return nil
}

// ---- directory ----

func (s *Store) Contacts(ctx context.Context, kind bloodbank.PartyKind, ids []string) (map[string]bloodbank.Contact, error) {
	defer s.lock(ctx)()
	out := make(map[string]bloodbank.Contact, len(ids))
	for _, id := range ids {
		if c, ok := s.contacts[kind][id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *Store) UpsertContact(_ context.Context, kind bloodbank.PartyKind, c bloodbank.Contact) error {
	s.PutContact(kind, c)
	return nil
}

// UpsertDonor keeps an existing last-donation time.
func (s *Store) UpsertDonor(_ context.Context, d bloodbank.Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.donors[d.ID]; ok && old.LastDonationAt != nil {
		d.LastDonationAt = old.LastDonationAt
	}
	s.donors[d.ID] = d
	return nil
}
