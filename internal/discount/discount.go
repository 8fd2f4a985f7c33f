// Package discount validates and redeems discount codes.
package discount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zelenivrt/storefront-backend/internal/metrics"
	"github.com/zelenivrt/storefront-backend/internal/models"
)

var (
	ErrInvalidCode   = errors.New("invalid discount code")
	ErrExpiredCode   = errors.New("discount code expired")
	ErrUsageExceeded = errors.New("discount code usage limit reached")
	ErrBelowMinimum  = errors.New("order total below discount minimum")
	// ErrKeyReused means the idempotency key already redeemed another code.
	ErrKeyReused = errors.New("idempotency key already used for another discount code")
)

var hundred = decimal.NewFromInt(100)

// Store is the persistence the validator needs
type Store interface {
	// GetActiveDiscountCode returns nil, nil when no active code matches.
	GetActiveDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error)
	// GetDiscountRedemption returns nil, nil when no redemption is recorded
	// under key.
	GetDiscountRedemption(ctx context.Context, key string) (*models.DiscountRedemption, error)
	// RedeemDiscountCode increments current_uses by one unless the cap is
	// reached (models.ErrUsageCapReached) and returns the stored redemption.
	// When the idempotency key is already on record nothing is incremented,
	// the earlier redemption is returned and replayed is true. A key on
	// record for another code yields models.ErrRedemptionKeyConflict.
	RedeemDiscountCode(ctx context.Context, r *models.DiscountRedemption) (rec *models.DiscountRedemption, replayed bool, err error)
	// ListBannerDiscountCodes returns active codes flagged for the banner.
	ListBannerDiscountCodes(ctx context.Context) ([]models.DiscountCode, error)
}

// Validation is the outcome of a successful Validate
type Validation struct {
	Valid          bool                 `json:"valid"`
	Code           string               `json:"code"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	Discount       *models.DiscountCode `json:"discount"`
}

// Application is the outcome of a successful Apply
type Application struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CurrentUses    int             `json:"current_uses"`
	Replayed       bool            `json:"replayed"`
}

// Banner is a discount currently advertised on the storefront
type Banner struct {
	Code   string              `json:"code"`
	Type   models.DiscountType `json:"discount_type"`
	Value  decimal.Decimal     `json:"value"`
	Text   *string             `json:"banner_text,omitempty"`
	EndsAt *time.Time          `json:"ends_at,omitempty"`
}

type Service struct {
	store  Store
	logger *slog.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, Now: time.Now}
}

// Validate checks code against orderTotal without consuming it.
func (s *Service) Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*Validation, error) {
	v, err := s.validate(ctx, code, orderTotal)
	metrics.DiscountValidationsTotal.WithLabelValues(resultLabel(err)).Inc()
	return v, err
}

func (s *Service) validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*Validation, error) {
	normalized := models.NormalizeCode(code)
	if normalized == "" {
		return nil, ErrInvalidCode
	}

	dc, err := s.store.GetActiveDiscountCode(ctx, normalized)
	if err != nil {
		s.logger.Error("load discount code", "code", normalized, "error", err)
		return nil, fmt.Errorf("load discount code: %w", err)
	}
	if dc == nil || !dc.IsActive {
		return nil, ErrInvalidCode
	}

	if !dc.WithinValidity(s.Now()) {
		return nil, ErrExpiredCode
	}
	if dc.UsageExhausted() {
		return nil, ErrUsageExceeded
	}
	if dc.MinOrderAmount.Valid && orderTotal.LessThan(dc.MinOrderAmount.Decimal) {
		return nil, ErrBelowMinimum
	}

	return &Validation{
		Valid:          true,
		Code:           dc.Code,
		DiscountAmount: Amount(dc, orderTotal),
		Discount:       dc,
	}, nil
}

// Amount computes the reduction dc grants on orderTotal. Percentages are
// rounded to cents.
func Amount(dc *models.DiscountCode, orderTotal decimal.Decimal) decimal.Decimal {
	switch dc.Type {
	case models.DiscountPercentage:
		return orderTotal.Mul(dc.Value).Div(hundred).Round(2)
	default:
		return dc.Value
	}
}

// ApplyRequest describes the order a code is applied to
type ApplyRequest struct {
	OrderTotal     decimal.Decimal
	IdempotencyKey string
}

// Apply validates code and records one use of it. The increment is a
// conditional update in the store so concurrent callers cannot push
// current_uses past max_uses or lose an increment.
func (s *Service) Apply(ctx context.Context, code string, req ApplyRequest) (*Application, error) {
	app, err := s.apply(ctx, code, req)
	metrics.DiscountRedemptionsTotal.WithLabelValues(resultLabel(err)).Inc()
	return app, err
}

func (s *Service) apply(ctx context.Context, code string, req ApplyRequest) (*Application, error) {
	// A retry of a finished redemption is answered from the record, even
	// when that redemption used up the code or the code expired since.
	if req.IdempotencyKey != "" {
		prev, err := s.store.GetDiscountRedemption(ctx, req.IdempotencyKey)
		if err != nil {
			s.logger.Error("look up redemption", "error", err)
			return nil, fmt.Errorf("look up redemption: %w", err)
		}
		if prev != nil {
			return s.replay(code, prev)
		}
	}

	v, err := s.validate(ctx, code, req.OrderTotal)
	if err != nil {
		return nil, err
	}

	redemption := &models.DiscountRedemption{
		ID:             uuid.New(),
		DiscountCodeID: v.Discount.ID,
		Code:           v.Code,
		IdempotencyKey: req.IdempotencyKey,
		OrderTotal:     req.OrderTotal,
		DiscountAmount: v.DiscountAmount,
		CreatedAt:      s.Now().UTC(),
	}
	rec, replayed, err := s.store.RedeemDiscountCode(ctx, redemption)
	switch {
	case errors.Is(err, models.ErrUsageCapReached):
		return nil, ErrUsageExceeded
	case errors.Is(err, models.ErrRedemptionKeyConflict):
		return nil, ErrKeyReused
	case err != nil:
		s.logger.Error("redeem discount code", "code", v.Code, "error", err)
		return nil, fmt.Errorf("redeem discount code: %w", err)
	}
	if replayed {
		// lost a race against a concurrent request with the same key
		return s.replay(code, rec)
	}

	s.logger.Info("discount code applied",
		"code", v.Code,
		"current_uses", rec.UsesAfter,
	)
	return &Application{
		Code:           v.Code,
		DiscountAmount: rec.DiscountAmount,
		CurrentUses:    rec.UsesAfter,
	}, nil
}

func (s *Service) replay(code string, r *models.DiscountRedemption) (*Application, error) {
	if models.NormalizeCode(r.Code) != models.NormalizeCode(code) {
		return nil, ErrKeyReused
	}
	s.logger.Info("discount redemption replayed",
		"code", r.Code,
		"current_uses", r.UsesAfter,
	)
	return &Application{
		Code:           models.NormalizeCode(r.Code),
		DiscountAmount: r.DiscountAmount,
		CurrentUses:    r.UsesAfter,
		Replayed:       true,
	}, nil
}

// BannerDiscounts lists the codes to advertise right now, soonest-ending
// first.
func (s *Service) BannerDiscounts(ctx context.Context) ([]Banner, error) {
	codes, err := s.store.ListBannerDiscountCodes(ctx)
	if err != nil {
		s.logger.Error("list banner discounts", "error", err)
		return nil, fmt.Errorf("list banner discounts: %w", err)
	}

	now := s.Now()
	banners := make([]Banner, 0, len(codes))
	for i := range codes {
		dc := &codes[i]
		if !dc.InBannerWindow(now) {
			continue
		}
		banners = append(banners, Banner{
			Code:   dc.Code,
			Type:   dc.Type,
			Value:  dc.Value,
			Text:   dc.BannerText,
			EndsAt: dc.BannerEndsAt(),
		})
	}

	sort.SliceStable(banners, func(i, j int) bool {
		a, b := banners[i].EndsAt, banners[j].EndsAt
		switch {
		case a == nil && b == nil:
			return banners[i].Code < banners[j].Code
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return banners[i].Code < banners[j].Code
		}
		return a.Before(*b)
	})
	return banners, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCode):
		return "invalid"
	case errors.Is(err, ErrExpiredCode):
		return "expired"
	case errors.Is(err, ErrUsageExceeded):
		return "usage_exceeded"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrKeyReused):
		return "key_reused"
	}
	return "error"
}
