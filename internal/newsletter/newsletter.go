// Package newsletter runs the double opt-in lifecycle: subscribe, confirm
// with a welcome discount, unsubscribe and preference updates.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zelenivrt/storefront-backend/internal/email"
	"github.com/zelenivrt/storefront-backend/internal/mailer"
	"github.com/zelenivrt/storefront-backend/internal/metrics"
	"github.com/zelenivrt/storefront-backend/internal/models"
	"github.com/zelenivrt/storefront-backend/internal/token"
)

var (
	ErrAlreadySubscribed = errors.New("email already subscribed")
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrSubscription      = errors.New("subscription failed")
	ErrPreferenceUpdate  = errors.New("preference update failed")
	ErrInvalidEmail      = errors.New("invalid email address")
)

const (
	DefaultWelcomeCode     = "DOBRODOSLI10"
	DefaultWelcomeCooldown = 5 * time.Minute
	DefaultConfirmationTTL = 7 * 24 * time.Hour
	defaultSource          = "website"
)

// Store persists subscribers. Lookups return nil, nil when nothing matches.
// The boolean-returning mutations are conditional updates and report
// whether this call performed the transition.
type Store interface {
	CreateSubscriber(ctx context.Context, s *models.Subscriber) error
	GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error)
	GetSubscriberByConfirmationToken(ctx context.Context, token string) (*models.Subscriber, error)
	GetSubscriberByUnsubscribeToken(ctx context.Context, token string) (*models.Subscriber, error)
	// ConfirmSubscriber moves a pending record to confirmed and sets
	// discount_used to discountCode if it is still empty.
	ConfirmSubscriber(ctx context.Context, id uuid.UUID, discountCode string, at time.Time) (bool, error)
	// ClaimWelcomeEmail sets last_emailed_at to at for an active confirmed
	// record whose last_emailed_at is empty or not after cutoff.
	ClaimWelcomeEmail(ctx context.Context, id uuid.UUID, at, cutoff time.Time) (bool, error)
	// ReleaseWelcomeEmail puts previous back if last_emailed_at still
	// equals claimedAt.
	ReleaseWelcomeEmail(ctx context.Context, id uuid.UUID, claimedAt time.Time, previous *time.Time) error
	DeactivateSubscriber(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	UpdateSubscriberPreferences(ctx context.Context, id uuid.UUID, prefs models.Preferences, at time.Time) error
}

// Dispatcher hands a message to the mail function
type Dispatcher interface {
	Send(ctx context.Context, msg mailer.Message) (mailer.Result, error)
}

// ProcessedTokens absorbs duplicate confirm calls that arrive close
// together. It is not the source of truth; the store's welcome claim is.
type ProcessedTokens interface {
	// Claim reports true when token was not already marked.
	Claim(ctx context.Context, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, token string) error
}

type Config struct {
	BaseURL             string
	WelcomeDiscountCode string
	WelcomeCooldown     time.Duration
	// ConfirmationTTL bounds how long a pending token stays usable. Zero
	// disables the check.
	ConfirmationTTL time.Duration
	// AllowSimulatedDispatch reports a failed mail dispatch as success.
	// Only for environments without a working mail function.
	AllowSimulatedDispatch bool
	ProcessedTokenTTL      time.Duration
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.WelcomeDiscountCode == "" {
		c.WelcomeDiscountCode = DefaultWelcomeCode
	}
	if c.WelcomeCooldown <= 0 {
		c.WelcomeCooldown = DefaultWelcomeCooldown
	}
	if c.ProcessedTokenTTL <= 0 {
		c.ProcessedTokenTTL = c.WelcomeCooldown
	}
	return c
}

// Outcome describes what an operation did.
type Outcome struct {
	Subscriber *models.Subscriber
	// AlreadyDone is set when the transition had happened before this call.
	AlreadyDone bool
	EmailSent   bool
	// Simulated is set when dispatch failed and AllowSimulatedDispatch
	// turned it into success.
	Simulated bool
	Language  models.Language
}

type Service struct {
	store     Store
	mail      Dispatcher
	processed ProcessedTokens
	logger    *slog.Logger
	cfg       Config

	Now      func() time.Time
	NewToken token.Generator
}

func NewService(store Store, mail Dispatcher, processed ProcessedTokens, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		store:     store,
		mail:      mail,
		processed: processed,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		Now:       time.Now,
		NewToken:  token.Generate,
	}
}

// now is truncated to microseconds so values read back from Postgres compare
// equal to the ones written.
func (s *Service) now() time.Time {
	return s.Now().UTC().Truncate(time.Microsecond)
}

// ConfirmationURL is the link placed in the opt-in mail.
func (s *Service) ConfirmationURL(tok string, lang models.Language) string {
	return s.cfg.BaseURL + "/confirm-subscription?token=" + tok + "&lang=" + string(lang)
}

// UnsubscribeURL is the link placed in the welcome mail.
func (s *Service) UnsubscribeURL(tok string, lang models.Language) string {
	return s.cfg.BaseURL + "/unsubscribe?token=" + tok + "&lang=" + string(lang)
}

func validEmail(addr string) bool {
	if addr == "" || len(addr) > 254 {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	return parsed.Address == addr && strings.Contains(addr[strings.LastIndex(addr, "@"):], ".")
}

// Subscribe creates a pending subscriber and sends the confirmation mail.
func (s *Service) Subscribe(ctx context.Context, req models.SubscribeRequest) (*Outcome, error) {
	out, err := s.subscribe(ctx, req)
	metrics.SubscriptionsTotal.WithLabelValues(resultLabel(err)).Inc()
	return out, err
}

func (s *Service) subscribe(ctx context.Context, req models.SubscribeRequest) (*Outcome, error) {
	addr := models.NormalizeEmail(req.Email)
	if !validEmail(addr) {
		return nil, ErrInvalidEmail
	}
	lang := models.ParseLanguage(req.Language)

	// The unique index still decides races; this only spares token minting.
	existing, err := s.store.GetSubscriberByEmail(ctx, addr)
	if err != nil {
		s.logger.Error("look up subscriber", "email", addr, "error", err)
		return nil, fmt.Errorf("%w: look up subscriber: %w", ErrSubscription, err)
	}
	if existing != nil {
		return nil, ErrAlreadySubscribed
	}

	confirmTok, err := s.NewToken()
	if err != nil {
		return nil, fmt.Errorf("%w: generate token: %w", ErrSubscription, err)
	}
	unsubTok, err := s.NewToken()
	if err != nil {
		return nil, fmt.Errorf("%w: generate token: %w", ErrSubscription, err)
	}

	prefs := models.DefaultPreferences()
	if req.Preferences != nil {
		prefs = *req.Preferences
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = defaultSource
	}
	var name *string
	if n := strings.TrimSpace(req.Name); n != "" {
		name = &n
	}

	now := s.now()
	sub := &models.Subscriber{
		ID:                 uuid.New(),
		Email:              addr,
		Name:               name,
		IsActive:           true,
		ConfirmationStatus: models.StatusPending,
		ConfirmationToken:  confirmTok,
		UnsubscribeToken:   unsubTok,
		Source:             source,
		Language:           lang,
		Preferences:        prefs,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.CreateSubscriber(ctx, sub); err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			return nil, ErrAlreadySubscribed
		}
		s.logger.Error("create subscriber", "email", addr, "error", err)
		return nil, fmt.Errorf("%w: create subscriber: %w", ErrSubscription, err)
	}

	content, err := email.RenderConfirmation(email.ConfirmationData{
		FirstName:       sub.FirstName(),
		ConfirmationURL: s.ConfirmationURL(confirmTok, lang),
		Language:        lang,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: render confirmation: %w", ErrSubscription, err)
	}

	simulated, err := s.dispatch(ctx, "confirmation", mailer.Message{
		To:      addr,
		Subject: content.Subject,
		Envelope: mailer.Envelope{
			HTML:           content.HTML,
			Text:           content.Text,
			IsConfirmation: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: send confirmation: %w", ErrSubscription, err)
	}

	s.logger.Info("subscriber created",
		"subscriber_id", sub.ID,
		"source", source,
		"language", lang,
		"simulated", simulated,
	)
	return &Outcome{Subscriber: sub, EmailSent: true, Simulated: simulated, Language: lang}, nil
}

// Confirm completes the double opt-in for tok and sends the welcome mail at
// most once per cooldown window. An empty lang uses the language stored at
// subscribe time.
func (s *Service) Confirm(ctx context.Context, tok, lang string) (*Outcome, error) {
	out, err := s.confirm(ctx, tok, lang)
	metrics.ConfirmationsTotal.WithLabelValues(resultLabel(err)).Inc()
	return out, err
}

func (s *Service) confirm(ctx context.Context, tok, lang string) (*Outcome, error) {
	if !token.Valid(tok) {
		return nil, ErrInvalidToken
	}
	sub, err := s.store.GetSubscriberByConfirmationToken(ctx, tok)
	if err != nil {
		s.logger.Error("load subscriber by confirmation token", "error", err)
		return nil, fmt.Errorf("%w: load subscriber: %w", ErrSubscription, err)
	}
	if sub == nil {
		return nil, ErrInvalidToken
	}

	language := sub.Language
	if lang != "" || language == "" {
		language = models.ParseLanguage(lang)
	}
	out := &Outcome{Subscriber: sub, Language: language}
	now := s.now()

	code := s.cfg.WelcomeDiscountCode
	if sub.DiscountUsed != nil && *sub.DiscountUsed != "" {
		code = *sub.DiscountUsed
	}

	if sub.IsConfirmed() {
		out.AlreadyDone = true
	} else {
		if s.cfg.ConfirmationTTL > 0 && now.Sub(sub.CreatedAt) > s.cfg.ConfirmationTTL {
			return nil, ErrInvalidToken
		}
		changed, err := s.store.ConfirmSubscriber(ctx, sub.ID, code, now)
		if err != nil {
			s.logger.Error("confirm subscriber", "subscriber_id", sub.ID, "error", err)
			return nil, fmt.Errorf("%w: confirm subscriber: %w", ErrSubscription, err)
		}
		out.AlreadyDone = !changed
		sub.ConfirmationStatus = models.StatusConfirmed
		if changed {
			sub.ConfirmedAt = &now
		}
		if sub.DiscountUsed == nil {
			sub.DiscountUsed = &code
		}
	}

	if !sub.IsActive {
		return out, nil
	}

	fresh, err := s.processed.Claim(ctx, tok, s.cfg.ProcessedTokenTTL)
	if err != nil {
		s.logger.Warn("processed token set unavailable", "error", err)
		fresh = true
	}
	if !fresh {
		return out, nil
	}

	previous := sub.LastEmailedAt
	claimed, err := s.store.ClaimWelcomeEmail(ctx, sub.ID, now, now.Add(-s.cfg.WelcomeCooldown))
	if err != nil {
		s.releaseProcessed(ctx, tok)
		s.logger.Error("claim welcome email", "subscriber_id", sub.ID, "error", err)
		return nil, fmt.Errorf("%w: claim welcome email: %w", ErrSubscription, err)
	}
	if !claimed {
		return out, nil
	}

	simulated, err := s.sendWelcome(ctx, sub, code, language)
	if err != nil {
		if rerr := s.store.ReleaseWelcomeEmail(ctx, sub.ID, now, previous); rerr != nil {
			s.logger.Error("release welcome email claim", "subscriber_id", sub.ID, "error", rerr)
		}
		s.releaseProcessed(ctx, tok)
		return nil, fmt.Errorf("%w: send welcome: %w", ErrSubscription, err)
	}

	sub.LastEmailedAt = &now
	out.EmailSent = true
	out.Simulated = simulated
	s.logger.Info("subscriber confirmed",
		"subscriber_id", sub.ID,
		"discount_code", code,
		"already_confirmed", out.AlreadyDone,
		"simulated", simulated,
	)
	return out, nil
}

func (s *Service) sendWelcome(ctx context.Context, sub *models.Subscriber, code string, lang models.Language) (bool, error) {
	content, err := email.RenderWelcome(email.WelcomeData{
		FirstName:      sub.FirstName(),
		DiscountCode:   code,
		UnsubscribeURL: s.UnsubscribeURL(sub.UnsubscribeToken, lang),
		Language:       lang,
	})
	if err != nil {
		return false, fmt.Errorf("render welcome: %w", err)
	}
	return s.dispatch(ctx, "welcome", mailer.Message{
		To:      sub.Email,
		Subject: content.Subject,
		Envelope: mailer.Envelope{
			HTML:         content.HTML,
			Text:         content.Text,
			IsWelcome:    true,
			DiscountCode: code,
		},
	})
}

func (s *Service) releaseProcessed(ctx context.Context, tok string) {
	if err := s.processed.Release(ctx, tok); err != nil {
		s.logger.Warn("release processed token", "error", err)
	}
}

// dispatch sends msg. With AllowSimulatedDispatch a failure is logged and
// reported as a simulated success.
func (s *Service) dispatch(ctx context.Context, kind string, msg mailer.Message) (bool, error) {
	_, err := s.mail.Send(ctx, msg)
	if err == nil {
		metrics.EmailsDispatchedTotal.WithLabelValues(kind, "ok").Inc()
		return false, nil
	}
	if s.cfg.AllowSimulatedDispatch {
		metrics.EmailsDispatchedTotal.WithLabelValues(kind, "simulated").Inc()
		s.logger.Warn("mail dispatch failed, simulating success", "kind", kind, "error", err)
		return true, nil
	}
	metrics.EmailsDispatchedTotal.WithLabelValues(kind, "error").Inc()
	s.logger.Error("mail dispatch failed", "kind", kind, "error", err)
	return false, err
}

// Unsubscribe deactivates the subscriber owning tok. Repeating it is a no-op.
func (s *Service) Unsubscribe(ctx context.Context, tok string) (*Outcome, error) {
	out, err := s.unsubscribe(ctx, tok)
	metrics.UnsubscribesTotal.WithLabelValues(resultLabel(err)).Inc()
	return out, err
}

func (s *Service) unsubscribe(ctx context.Context, tok string) (*Outcome, error) {
	sub, err := s.byUnsubscribeToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Subscriber: sub, Language: sub.Language}
	if !sub.IsActive {
		out.AlreadyDone = true
		return out, nil
	}

	// Pending records are deactivated too instead of being left as they are,
	// so confirming one afterwards sends no welcome mail.
	now := s.now()
	changed, err := s.store.DeactivateSubscriber(ctx, sub.ID, now)
	if err != nil {
		s.logger.Error("deactivate subscriber", "subscriber_id", sub.ID, "error", err)
		return nil, fmt.Errorf("%w: deactivate subscriber: %w", ErrSubscription, err)
	}
	out.AlreadyDone = !changed
	sub.IsActive = false
	if changed {
		sub.UnsubscribedAt = &now
		s.logger.Info("subscriber unsubscribed", "subscriber_id", sub.ID)
	}
	return out, nil
}

// UpdatePreferences overwrites the topic flags of the subscriber owning tok.
func (s *Service) UpdatePreferences(ctx context.Context, tok string, prefs models.Preferences) (*Outcome, error) {
	sub, err := s.byUnsubscribeToken(ctx, tok)
	if errors.Is(err, ErrSubscription) {
		return nil, fmt.Errorf("%w: %w", ErrPreferenceUpdate, err)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.store.UpdateSubscriberPreferences(ctx, sub.ID, prefs, now); err != nil {
		s.logger.Error("update preferences", "subscriber_id", sub.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPreferenceUpdate, err)
	}
	sub.Preferences = prefs
	sub.UpdatedAt = now
	return &Outcome{Subscriber: sub, Language: sub.Language}, nil
}

// Lookup returns the subscriber owning an unsubscribe token.
func (s *Service) Lookup(ctx context.Context, tok string) (*models.Subscriber, error) {
	return s.byUnsubscribeToken(ctx, tok)
}

func (s *Service) byUnsubscribeToken(ctx context.Context, tok string) (*models.Subscriber, error) {
	if !token.Valid(tok) {
		return nil, ErrInvalidToken
	}
	sub, err := s.store.GetSubscriberByUnsubscribeToken(ctx, tok)
	if err != nil {
		s.logger.Error("load subscriber by unsubscribe token", "error", err)
		return nil, fmt.Errorf("%w: load subscriber: %w", ErrSubscription, err)
	}
	if sub == nil {
		return nil, ErrInvalidToken
	}
	return sub, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadySubscribed):
		return "already_subscribed"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrInvalidEmail):
		return "invalid_email"
	}
	return "error"
}
