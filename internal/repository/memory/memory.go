// Package memory is an in-process repository.Store used by service tests and
// local runs. Transactions are serialized and rolled back by snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/repository"
	"toolshed-backend/internal/utils"
)

type state struct {
	nextID   int64
	bookings map[int64]domain.Booking
	disputes map[int64]domain.DisputeCase
	evidence map[int64]domain.DisputeEvidence
	ledger   []domain.Transaction
	events   []domain.BookingEvent
	listings map[int64]domain.Listing
}

func (s *state) clone() *state {
	c := &state{
		nextID:   s.nextID,
		bookings: make(map[int64]domain.Booking, len(s.bookings)),
		disputes: make(map[int64]domain.DisputeCase, len(s.disputes)),
		evidence: make(map[int64]domain.DisputeEvidence, len(s.evidence)),
		ledger:   append([]domain.Transaction{}, s.ledger...),
		events:   append([]domain.BookingEvent{}, s.events...),
		listings: make(map[int64]domain.Listing, len(s.listings)),
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.disputes {
		c.disputes[k] = v
	}
	for k, v := range s.evidence {
		c.evidence[k] = v
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	return c
}

// Store keeps every table in maps guarded by mu. txMu serializes WithTx
// calls, which stands in for row locks.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *state
	now  func() time.Time

	repos *repository.Repositories
}

func NewStore() *Store {
	s := &Store{
		data: &state{
			bookings: map[int64]domain.Booking{},
			disputes: map[int64]domain.DisputeCase{},
			evidence: map[int64]domain.DisputeEvidence{},
			listings: map[int64]domain.Listing{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	s.repos = &repository.Repositories{
		Bookings: &bookingRepo{s},
		Disputes: &disputeRepo{s},
		Evidence: &evidenceRepo{s},
		Ledger:   &ledgerRepo{s},
		Events:   &eventRepo{s},
		Listings: &listingRepo{s},
	}
	return s
}

func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// WithTx restores the pre-call state when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(s.repos); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// SetClock replaces the clock used for created_at and updated_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddListing seeds a listing and returns its id.
func (s *Store) AddListing(l domain.Listing) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.nextIDLocked()
	}
	s.data.listings[l.ID] = l
	return l.ID
}

// PutBooking inserts or replaces a booking verbatim, bypassing Create's
// timestamps. Tests use it to build fixtures in any state.
func (s *Store) PutBooking(b domain.Booking) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.nextIDLocked()
	}
	s.data.bookings[b.ID] = b
	return b.ID
}

// PutDispute is PutBooking for disputes.
func (s *Store) PutDispute(d domain.DisputeCase) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.nextIDLocked()
	}
	s.data.disputes[d.ID] = d
	return d.ID
}

// Transactions returns a copy of the whole ledger.
func (s *Store) Transactions() []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Transaction{}, s.data.ledger...)
}

func (s *Store) nextIDLocked() int64 {
	s.data.nextID++
	return s.data.nextID
}

type bookingRepo struct{ s *Store }

func (r *bookingRepo) Create(_ context.Context, b *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b.ID = r.s.nextIDLocked()
	b.CreatedAt = r.s.now()
	b.UpdatedAt = b.CreatedAt
	r.s.data.bookings[b.ID] = *b
	return nil
}

func (r *bookingRepo) GetByID(_ context.Context, id int64) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.data.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (r *bookingRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) Update(_ context.Context, b *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.data.bookings[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Totals = old.Totals
	b.UpdatedAt = r.s.now()
	r.s.data.bookings[b.ID] = *b
	return nil
}

func (r *bookingRepo) ListOverlapping(_ context.Context, listingID int64, start, end time.Time, statuses []domain.BookingStatus, excludeID int64) ([]domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Booking{}
	for _, b := range r.s.data.bookings {
		if b.ListingID != listingID || b.ID == excludeID || !containsStatus(statuses, b.Status) {
			continue
		}
		if utils.RangesOverlap(start, end, b.StartDate, b.EndDate) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *bookingRepo) ListStaleIDs(_ context.Context, requestedBefore, confirmedBefore time.Time) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := []int64{}
	for id, b := range r.s.data.bookings {
		switch {
		case b.Status == domain.BookingStatusRequested && b.CreatedAt.Before(requestedBefore):
			ids = append(ids, id)
		case b.Status == domain.BookingStatusConfirmed && b.IsPrePayment() &&
			b.ConfirmedAt != nil && b.ConfirmedAt.Before(confirmedBefore):
			ids = append(ids, id)
		}
	}
	return sortIDs(ids), nil
}

func (r *bookingRepo) ListDepositReleaseIDs(_ context.Context, now time.Time) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := []int64{}
	for id, b := range r.s.data.bookings {
		if b.Status == domain.BookingStatusCompleted && b.HasDepositHold() && b.DepositReleasedAt == nil &&
			!b.DepositLocked && b.DisputeWindowExpiresAt != nil && !b.DisputeWindowExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return sortIDs(ids), nil
}

type disputeRepo struct{ s *Store }

func (r *disputeRepo) Create(_ context.Context, d *domain.DisputeCase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.ID = r.s.nextIDLocked()
	d.CreatedAt = r.s.now()
	d.UpdatedAt = d.CreatedAt
	r.s.data.disputes[d.ID] = *d
	return nil
}

func (r *disputeRepo) GetByID(_ context.Context, id int64) (*domain.DisputeCase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.data.disputes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (r *disputeRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.DisputeCase, error) {
	return r.GetByID(ctx, id)
}

func (r *disputeRepo) Update(_ context.Context, d *domain.DisputeCase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.disputes[d.ID]; !ok {
		return domain.ErrNotFound
	}
	d.UpdatedAt = r.s.now()
	r.s.data.disputes[d.ID] = *d
	return nil
}

func (r *disputeRepo) ListByBooking(_ context.Context, bookingID int64) ([]domain.DisputeCase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.DisputeCase{}
	for _, d := range r.s.data.disputes {
		if d.BookingID == bookingID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *disputeRepo) CountActiveByBooking(_ context.Context, bookingID, excludeID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, d := range r.s.data.disputes {
		if d.BookingID == bookingID && d.ID != excludeID && d.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (r *disputeRepo) filterIDs(keep func(d domain.DisputeCase) bool) []int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := []int64{}
	for id, d := range r.s.data.disputes {
		if keep(d) {
			ids = append(ids, id)
		}
	}
	return sortIDs(ids)
}

func (r *disputeRepo) ListIntakeOverdueIDs(_ context.Context, now time.Time) ([]int64, error) {
	return r.filterIDs(func(d domain.DisputeCase) bool {
		return d.Status == domain.DisputeStatusIntakeMissingEvidence &&
			d.IntakeEvidenceDueAt != nil && d.IntakeEvidenceDueAt.Before(now)
	}), nil
}

func (r *disputeRepo) ListRebuttalReminderIDs(_ context.Context, now, horizon time.Time) ([]int64, error) {
	return r.filterIDs(func(d domain.DisputeCase) bool {
		return d.Status == domain.DisputeStatusAwaitingRebuttal && d.Rebuttal12hReminderSentAt == nil &&
			d.RebuttalDueAt != nil && d.RebuttalDueAt.After(now) && !d.RebuttalDueAt.After(horizon)
	}), nil
}

func (r *disputeRepo) ListRebuttalOverdueIDs(_ context.Context, now time.Time) ([]int64, error) {
	return r.filterIDs(func(d domain.DisputeCase) bool {
		return d.Status == domain.DisputeStatusAwaitingRebuttal &&
			d.RebuttalDueAt != nil && !d.RebuttalDueAt.After(now)
	}), nil
}

type evidenceRepo struct{ s *Store }

func (r *evidenceRepo) Create(_ context.Context, e *domain.DisputeEvidence) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.data.evidence {
		if other.StorageKey == e.StorageKey {
			return repository.ErrDuplicate
		}
	}
	e.ID = r.s.nextIDLocked()
	e.CreatedAt = r.s.now()
	r.s.data.evidence[e.ID] = *e
	return nil
}

func (r *evidenceRepo) GetByID(_ context.Context, id int64) (*domain.DisputeEvidence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.data.evidence[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (r *evidenceRepo) Confirm(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.data.evidence[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.ConfirmedAt == nil {
		e.ConfirmedAt = &at
		r.s.data.evidence[id] = e
	}
	return nil
}

func (r *evidenceRepo) CountConfirmed(_ context.Context, disputeID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.data.evidence {
		if e.DisputeID == disputeID && e.ConfirmedAt != nil {
			n++
		}
	}
	return n, nil
}

type ledgerRepo struct{ s *Store }

// Create enforces the same natural-key uniqueness as the Postgres index.
func (r *ledgerRepo) Create(_ context.Context, t *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := t.Key()
	for _, existing := range r.s.data.ledger {
		if existing.Key().Matches(key) {
			return repository.ErrDuplicate
		}
	}
	t.ID = r.s.nextIDLocked()
	t.CreatedAt = r.s.now()
	r.s.data.ledger = append(r.s.data.ledger, *t)
	return nil
}

func (r *ledgerRepo) FindByKey(_ context.Context, key domain.TransactionKey) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.data.ledger {
		if t.Key().Matches(key) {
			found := t
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *ledgerRepo) ListByBooking(_ context.Context, bookingID int64) ([]domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Transaction{}
	for _, t := range r.s.data.ledger {
		if t.BookingID != nil && *t.BookingID == bookingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *ledgerRepo) ListOwnerEarnings(_ context.Context, ownerID int64) ([]domain.OwnerEarning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.OwnerEarning{}
	for _, t := range r.s.data.ledger {
		if t.UserID != ownerID || t.Kind != domain.TransactionKindOwnerEarning {
			continue
		}
		e := domain.OwnerEarning{Transaction: t}
		if t.BookingID != nil {
			if b, ok := r.s.data.bookings[*t.BookingID]; ok {
				e.DisputeWindowExpiresAt = b.DisputeWindowExpiresAt
				e.ReturnConfirmedAt = b.ReturnConfirmedAt
			}
		}
		out = append(out, e)
	}
	return out, nil
}

type eventRepo struct{ s *Store }

func (r *eventRepo) RecordEvent(_ context.Context, e *domain.BookingEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.nextIDLocked()
	e.CreatedAt = r.s.now()
	r.s.data.events = append(r.s.data.events, *e)
	return nil
}

func (r *eventRepo) ListByBooking(_ context.Context, bookingID int64) ([]domain.BookingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.BookingEvent{}
	for _, e := range r.s.data.events {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

type listingRepo struct{ s *Store }

func (r *listingRepo) GetByID(_ context.Context, id int64) (*domain.Listing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.data.listings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

// GetByIDForUpdate is GetByID; transactions are already serialized.
func (r *listingRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Listing, error) {
	return r.GetByID(ctx, id)
}

func (r *listingRepo) SetSuspended(_ context.Context, id int64, suspended bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.data.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.IsSuspended = suspended
	r.s.data.listings[id] = l
	return nil
}

func containsStatus(statuses []domain.BookingStatus, s domain.BookingStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func sortIDs(ids []int64) []int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
