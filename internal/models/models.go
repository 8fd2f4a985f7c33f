package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDuplicateEmail is returned by stores when the unique index on the
// subscriber email rejects an insert.
var ErrDuplicateEmail = errors.New("subscriber email already exists")

// ErrUsageCapReached is returned by stores when a conditional increment
// finds current_uses already at max_uses.
var ErrUsageCapReached = errors.New("discount code usage cap reached")

// ErrRedemptionKeyConflict is returned by stores when an idempotency key is
// already on record for a different discount code.
var ErrRedemptionKeyConflict = errors.New("idempotency key already used for another discount code")

// ConfirmationStatus represents valid subscriber opt-in states
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"
	StatusConfirmed ConfirmationStatus = "confirmed"
)

// Language is one of the storefront's supported language tags
type Language string

const (
	LangSlovenian Language = "sl"
	LangEnglish   Language = "en"
	LangGerman    Language = "de"
	LangCroatian  Language = "hr"
)

// ParseLanguage normalizes a tag such as "EN" or "de-AT". Unknown tags
// fall back to English.
func ParseLanguage(s string) Language {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	switch Language(s) {
	case LangSlovenian, LangEnglish, LangGerman, LangCroatian:
		return Language(s)
	}
	return LangEnglish
}

// Preferences are the newsletter topics a subscriber opted into
type Preferences struct {
	ProductUpdates bool `json:"productUpdates"`
	Promotions     bool `json:"promotions"`
	Recipes        bool `json:"recipes"`
}

// DefaultPreferences is used when the signup form sends none.
func DefaultPreferences() Preferences {
	return Preferences{ProductUpdates: true, Promotions: true, Recipes: true}
}

// Subscriber represents a newsletter recipient
type Subscriber struct {
	ID                 uuid.UUID          `json:"id"`
	Email              string             `json:"email"`
	Name               *string            `json:"name,omitempty"`
	IsActive           bool               `json:"is_active"`
	ConfirmationStatus ConfirmationStatus `json:"confirmation_status"`
	ConfirmationToken  string             `json:"-"`
	UnsubscribeToken   string             `json:"-"`
	Source             string             `json:"source"`
	Language           Language           `json:"language"`
	Preferences        Preferences        `json:"preferences"`
	DiscountUsed       *string            `json:"discount_used,omitempty"`
	LastEmailedAt      *time.Time         `json:"last_emailed_at,omitempty"`
	ConfirmedAt        *time.Time         `json:"confirmed_at,omitempty"`
	UnsubscribedAt     *time.Time         `json:"unsubscribed_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// IsConfirmed reports whether the double opt-in has completed
func (s *Subscriber) IsConfirmed() bool {
	return s.ConfirmationStatus == StatusConfirmed
}

// FirstName returns the first word of the display name, or "".
func (s *Subscriber) FirstName() string {
	if s.Name == nil {
		return ""
	}
	fields := strings.Fields(*s.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// NormalizeEmail lowercases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DiscountType represents how a discount value is interpreted
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// DiscountCode represents a redeemable discount
type DiscountCode struct {
	ID             uuid.UUID           `json:"id"`
	Code           string              `json:"code"`
	Type           DiscountType        `json:"discount_type"`
	Value          decimal.Decimal     `json:"value"`
	ValidFrom      *time.Time          `json:"valid_from,omitempty"`
	ValidUntil     *time.Time          `json:"valid_until,omitempty"`
	MaxUses        *int                `json:"max_uses,omitempty"`
	CurrentUses    int                 `json:"current_uses"`
	MinOrderAmount decimal.NullDecimal `json:"min_order_amount"`
	IsActive       bool                `json:"is_active"`
	CategoryID     *string             `json:"category_id,omitempty"`
	ProductID      *string             `json:"product_id,omitempty"`
	ShowInBanner   bool                `json:"show_in_banner"`
	BannerStart    *time.Time          `json:"banner_start_time,omitempty"`
	BannerEnd      *time.Time          `json:"banner_end_time,omitempty"`
	BannerText     *string             `json:"banner_text,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// NormalizeCode trims and uppercases a discount code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// WithinValidity reports whether now falls inside [ValidFrom, ValidUntil].
// Missing bounds are open.
func (d *DiscountCode) WithinValidity(now time.Time) bool {
	return within(now, d.ValidFrom, d.ValidUntil)
}

// UsageExhausted reports whether the usage cap has been reached
func (d *DiscountCode) UsageExhausted() bool {
	return d.MaxUses != nil && d.CurrentUses >= *d.MaxUses
}

// InBannerWindow reports whether the code may be advertised at now. The
// banner window falls back to the validity window when both banner bounds
// are absent.
func (d *DiscountCode) InBannerWindow(now time.Time) bool {
	if !d.IsActive || !d.ShowInBanner {
		return false
	}
	if d.BannerStart == nil && d.BannerEnd == nil {
		return d.WithinValidity(now)
	}
	return within(now, d.BannerStart, d.BannerEnd)
}

// BannerEndsAt is the instant the banner stops showing, or nil if open-ended.
func (d *DiscountCode) BannerEndsAt() *time.Time {
	if d.BannerStart == nil && d.BannerEnd == nil {
		return d.ValidUntil
	}
	return d.BannerEnd
}

func within(now time.Time, from, until *time.Time) bool {
	if from != nil && now.Before(*from) {
		return false
	}
	if until != nil && now.After(*until) {
		return false
	}
	return true
}

// DiscountRedemption records one successful apply of a code
type DiscountRedemption struct {
	ID             uuid.UUID       `json:"id"`
	DiscountCodeID uuid.UUID       `json:"discount_code_id"`
	Code           string          `json:"code"`
	IdempotencyKey string          `json:"idempotency_key"`
	OrderTotal     decimal.Decimal `json:"order_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	// UsesAfter is current_uses right after this redemption counted.
	UsesAfter int       `json:"uses_after"`
	CreatedAt time.Time `json:"created_at"`
}

// API Request/Response types

type SubscribeRequest struct {
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	Preferences *Preferences `json:"preferences"`
	Source      string       `json:"source"`
	Language    string       `json:"lang"`
}

type TokenRequest struct {
	Token    string `json:"token"`
	Language string `json:"lang"`
}

type PreferencesRequest struct {
	Token       string       `json:"token"`
	Preferences *Preferences `json:"preferences"`
	Language    string       `json:"lang"`
}

type ValidateDiscountRequest struct {
	Code       string          `json:"code"`
	OrderTotal decimal.Decimal `json:"order_total"`
	Language   string          `json:"lang"`
}

type ApplyDiscountRequest struct {
	Code       string          `json:"code"`
	OrderTotal decimal.Decimal `json:"order_total"`
	Language   string          `json:"lang"`
}
