// Package memstore is an in-process store for local development and tests.
// A single mutex serializes every mutation, which gives the same
// conditional-update semantics the Postgres store gets from its WHERE
// clauses.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zelenivrt/storefront-backend/internal/models"
)

type Store struct {
	mu sync.Mutex

	subscribers map[uuid.UUID]*models.Subscriber
	byEmail     map[string]uuid.UUID
	byConfirm   map[string]uuid.UUID
	byUnsub     map[string]uuid.UUID

	codes       map[string]*models.DiscountCode
	redemptions map[string]*models.DiscountRedemption
}

func New() *Store {
	return &Store{
		subscribers: make(map[uuid.UUID]*models.Subscriber),
		byEmail:     make(map[string]uuid.UUID),
		byConfirm:   make(map[string]uuid.UUID),
		byUnsub:     make(map[string]uuid.UUID),
		codes:       make(map[string]*models.DiscountCode),
		redemptions: make(map[string]*models.DiscountRedemption),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func cloneSubscriber(sub *models.Subscriber) *models.Subscriber {
	c := *sub
	return &c
}

// ============== SUBSCRIBER OPERATIONS ==============

func (s *Store) CreateSubscriber(ctx context.Context, sub *models.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[sub.Email]; ok {
		return models.ErrDuplicateEmail
	}
	c := cloneSubscriber(sub)
	s.subscribers[c.ID] = c
	s.byEmail[c.Email] = c.ID
	if c.ConfirmationToken != "" {
		s.byConfirm[c.ConfirmationToken] = c.ID
	}
	s.byUnsub[c.UnsubscribeToken] = c.ID
	return nil
}

func (s *Store) lookup(index map[string]uuid.UUID, key string) *models.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := index[key]
	if !ok {
		return nil
	}
	return cloneSubscriber(s.subscribers[id])
}

func (s *Store) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	return s.lookup(s.byEmail, email), nil
}

func (s *Store) GetSubscriberByConfirmationToken(ctx context.Context, token string) (*models.Subscriber, error) {
	return s.lookup(s.byConfirm, token), nil
}

func (s *Store) GetSubscriberByUnsubscribeToken(ctx context.Context, token string) (*models.Subscriber, error) {
	return s.lookup(s.byUnsub, token), nil
}

// ConfirmSubscriber moves a pending subscriber to confirmed. It reports
// false when the record was not pending.
func (s *Store) ConfirmSubscriber(ctx context.Context, id uuid.UUID, discountCode string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[id]
	if !ok || sub.ConfirmationStatus != models.StatusPending {
		return false, nil
	}
	sub.ConfirmationStatus = models.StatusConfirmed
	sub.ConfirmedAt = &at
	if sub.DiscountUsed == nil && discountCode != "" {
		code := discountCode
		sub.DiscountUsed = &code
	}
	sub.UpdatedAt = at
	return true, nil
}

// ClaimWelcomeEmail stamps last_emailed_at with at unless the subscriber
// was already mailed after cutoff.
func (s *Store) ClaimWelcomeEmail(ctx context.Context, id uuid.UUID, at, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[id]
	if !ok || !sub.IsActive || !sub.IsConfirmed() {
		return false, nil
	}
	if sub.LastEmailedAt != nil && sub.LastEmailedAt.After(cutoff) {
		return false, nil
	}
	sub.LastEmailedAt = &at
	sub.UpdatedAt = at
	return true, nil
}

func (s *Store) ReleaseWelcomeEmail(ctx context.Context, id uuid.UUID, claimedAt time.Time, previous *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[id]
	if !ok || sub.LastEmailedAt == nil || !sub.LastEmailedAt.Equal(claimedAt) {
		return nil
	}
	sub.LastEmailedAt = previous
	return nil
}

func (s *Store) DeactivateSubscriber(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[id]
	if !ok || !sub.IsActive {
		return false, nil
	}
	sub.IsActive = false
	sub.UnsubscribedAt = &at
	sub.UpdatedAt = at
	return true, nil
}

func (s *Store) UpdateSubscriberPreferences(ctx context.Context, id uuid.UUID, prefs models.Preferences, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[id]
	if !ok {
		return nil
	}
	sub.Preferences = prefs
	sub.UpdatedAt = at
	return nil
}

// ============== DISCOUNT OPERATIONS ==============

// PutDiscountCode inserts or replaces a code. It stands in for the admin
// surface that owns discount records.
func (s *Store) PutDiscountCode(dc models.DiscountCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dc.ID == uuid.Nil {
		dc.ID = uuid.New()
	}
	dc.Code = models.NormalizeCode(dc.Code)
	s.codes[dc.Code] = &dc
}

func (s *Store) GetActiveDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dc, ok := s.codes[models.NormalizeCode(code)]
	if !ok || !dc.IsActive {
		return nil, nil
	}
	c := *dc
	return &c, nil
}

func (s *Store) GetDiscountRedemption(ctx context.Context, key string) (*models.DiscountRedemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.redemptions[key]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (s *Store) RedeemDiscountCode(ctx context.Context, r *models.DiscountRedemption) (*models.DiscountRedemption, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.IdempotencyKey != "" {
		if prev, seen := s.redemptions[r.IdempotencyKey]; seen {
			if prev.DiscountCodeID != r.DiscountCodeID {
				return nil, false, models.ErrRedemptionKeyConflict
			}
			c := *prev
			return &c, true, nil
		}
	}

	var dc *models.DiscountCode
	for _, c := range s.codes {
		if c.ID == r.DiscountCodeID {
			dc = c
			break
		}
	}
	if dc == nil || !dc.IsActive || dc.UsageExhausted() {
		return nil, false, models.ErrUsageCapReached
	}

	dc.CurrentUses++
	dc.UpdatedAt = r.CreatedAt

	out := *r
	out.Code = dc.Code
	out.UsesAfter = dc.CurrentUses
	if r.IdempotencyKey != "" {
		c := out
		s.redemptions[r.IdempotencyKey] = &c
	}
	return &out, false, nil
}

func (s *Store) ListBannerDiscountCodes(ctx context.Context) ([]models.DiscountCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.DiscountCode
	for _, dc := range s.codes {
		if dc.IsActive && dc.ShowInBanner {
			out = append(out, *dc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
