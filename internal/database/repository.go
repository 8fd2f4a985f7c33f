package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/zelenivrt/storefront-backend/internal/models"
)

const uniqueViolation = "23505"

const subscriberColumns = `id, email, name, is_active, confirmation_status, confirmation_token,
	unsubscribe_token, source, language, preferences, discount_used, last_emailed_at,
	confirmed_at, unsubscribed_at, created_at, updated_at`

const discountColumns = `id, code, discount_type, value, valid_from, valid_until, max_uses,
	current_uses, min_order_amount, is_active, category_id, product_id, show_in_banner,
	banner_start_time, banner_end_time, banner_text, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scanner) (*models.Subscriber, error) {
	var sub models.Subscriber
	var prefs []byte
	err := row.Scan(&sub.ID, &sub.Email, &sub.Name, &sub.IsActive, &sub.ConfirmationStatus,
		&sub.ConfirmationToken, &sub.UnsubscribeToken, &sub.Source, &sub.Language, &prefs,
		&sub.DiscountUsed, &sub.LastEmailedAt, &sub.ConfirmedAt, &sub.UnsubscribedAt,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prefs, &sub.Preferences); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return &sub, nil
}

func scanDiscountCode(row scanner) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	var maxUses sql.NullInt64
	err := row.Scan(&dc.ID, &dc.Code, &dc.Type, &dc.Value, &dc.ValidFrom, &dc.ValidUntil,
		&maxUses, &dc.CurrentUses, &dc.MinOrderAmount, &dc.IsActive, &dc.CategoryID,
		&dc.ProductID, &dc.ShowInBanner, &dc.BannerStart, &dc.BannerEnd, &dc.BannerText,
		&dc.CreatedAt, &dc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		dc.MaxUses = &n
	}
	return &dc, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ============== SUBSCRIBER OPERATIONS ==============

// CreateSubscriber inserts a new subscriber. A clash on the email index
// returns models.ErrDuplicateEmail.
func (db *DB) CreateSubscriber(ctx context.Context, sub *models.Subscriber) error {
	prefs, err := json.Marshal(sub.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO newsletter_subscribers (id, email, name, is_active, confirmation_status,
			confirmation_token, unsubscribe_token, source, language, preferences, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		sub.ID, sub.Email, sub.Name, sub.IsActive, sub.ConfirmationStatus,
		sub.ConfirmationToken, sub.UnsubscribeToken, sub.Source, sub.Language, prefs, sub.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && strings.Contains(pqErr.Constraint, "email") {
			return models.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	return nil
}

func (db *DB) getSubscriber(ctx context.Context, column, value string) (*models.Subscriber, error) {
	sub, err := scanSubscriber(db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE `+column+` = $1`,
		value,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return sub, nil
}

// GetSubscriberByEmail retrieves a subscriber by normalized email
func (db *DB) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	return db.getSubscriber(ctx, "email", email)
}

// GetSubscriberByConfirmationToken retrieves a subscriber by confirmation token
func (db *DB) GetSubscriberByConfirmationToken(ctx context.Context, token string) (*models.Subscriber, error) {
	return db.getSubscriber(ctx, "confirmation_token", token)
}

// GetSubscriberByUnsubscribeToken retrieves a subscriber by unsubscribe token
func (db *DB) GetSubscriberByUnsubscribeToken(ctx context.Context, token string) (*models.Subscriber, error) {
	return db.getSubscriber(ctx, "unsubscribe_token", token)
}

// ConfirmSubscriber moves a pending subscriber to confirmed
func (db *DB) ConfirmSubscriber(ctx context.Context, id uuid.UUID, discountCode string, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE newsletter_subscribers
		 SET confirmation_status = 'confirmed', confirmed_at = $2, updated_at = $2,
		     discount_used = COALESCE(discount_used, NULLIF($3, ''))
		 WHERE id = $1 AND confirmation_status = 'pending'`,
		id, at, discountCode,
	)
	if err != nil {
		return false, fmt.Errorf("failed to confirm subscriber: %w", err)
	}
	return affected(res)
}

// ClaimWelcomeEmail stamps last_emailed_at unless a mail went out after cutoff
func (db *DB) ClaimWelcomeEmail(ctx context.Context, id uuid.UUID, at, cutoff time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE newsletter_subscribers
		 SET last_emailed_at = $2, updated_at = $2
		 WHERE id = $1 AND is_active = TRUE AND confirmation_status = 'confirmed'
		   AND (last_emailed_at IS NULL OR last_emailed_at <= $3)`,
		id, at, cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim welcome email: %w", err)
	}
	return affected(res)
}

// ReleaseWelcomeEmail reverts a claim whose mail could not be sent
func (db *DB) ReleaseWelcomeEmail(ctx context.Context, id uuid.UUID, claimedAt time.Time, previous *time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE newsletter_subscribers
		 SET last_emailed_at = $3
		 WHERE id = $1 AND last_emailed_at = $2`,
		id, claimedAt, previous,
	)
	if err != nil {
		return fmt.Errorf("failed to release welcome email: %w", err)
	}
	return nil
}

// DeactivateSubscriber marks an active subscriber as unsubscribed
func (db *DB) DeactivateSubscriber(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE newsletter_subscribers
		 SET is_active = FALSE, unsubscribed_at = $2, updated_at = $2
		 WHERE id = $1 AND is_active = TRUE`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate subscriber: %w", err)
	}
	return affected(res)
}

// UpdateSubscriberPreferences overwrites the topic flags
func (db *DB) UpdateSubscriberPreferences(ctx context.Context, id uuid.UUID, prefs models.Preferences, at time.Time) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`UPDATE newsletter_subscribers SET preferences = $2, updated_at = $3 WHERE id = $1`,
		id, raw, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	return nil
}

// ============== DISCOUNT OPERATIONS ==============

// GetActiveDiscountCode retrieves an active code, ignoring case
func (db *DB) GetActiveDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	dc, err := scanDiscountCode(db.QueryRowContext(ctx,
		`SELECT `+discountColumns+` FROM discount_codes
		 WHERE UPPER(code) = UPPER($1) AND is_active = TRUE`,
		code,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discount code: %w", err)
	}
	return dc, nil
}

const redemptionQuery = `SELECT r.id, r.discount_code_id, c.code, r.idempotency_key, r.order_total,
	r.discount_amount, r.uses_after, r.created_at
	FROM discount_redemptions r JOIN discount_codes c ON c.id = r.discount_code_id
	WHERE r.idempotency_key = $1`

func scanRedemption(row scanner) (*models.DiscountRedemption, error) {
	var r models.DiscountRedemption
	err := row.Scan(&r.ID, &r.DiscountCodeID, &r.Code, &r.IdempotencyKey, &r.OrderTotal,
		&r.DiscountAmount, &r.UsesAfter, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetDiscountRedemption retrieves the redemption recorded under an
// idempotency key
func (db *DB) GetDiscountRedemption(ctx context.Context, key string) (*models.DiscountRedemption, error) {
	r, err := scanRedemption(db.QueryRowContext(ctx, redemptionQuery, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get redemption: %w", err)
	}
	return r, nil
}

// RedeemDiscountCode records a redemption and increments current_uses in
// one transaction. The increment only happens while the cap allows it, so
// concurrent redemptions neither lose updates nor overshoot max_uses. A
// repeated idempotency key leaves the counter untouched and returns the
// redemption already on record.
func (db *DB) RedeemDiscountCode(ctx context.Context, r *models.DiscountRedemption) (*models.DiscountRedemption, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var key any
	if r.IdempotencyKey != "" {
		key = r.IdempotencyKey
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO discount_redemptions (id, discount_code_id, idempotency_key, order_total, discount_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		r.ID, r.DiscountCodeID, key, r.OrderTotal, r.DiscountAmount, r.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record redemption: %w", err)
	}
	inserted, err := affected(res)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record redemption: %w", err)
	}
	if !inserted {
		prev, err := scanRedemption(tx.QueryRowContext(ctx, redemptionQuery, r.IdempotencyKey))
		if err != nil {
			return nil, false, fmt.Errorf("failed to read redemption: %w", err)
		}
		if prev.DiscountCodeID != r.DiscountCodeID {
			return nil, false, models.ErrRedemptionKeyConflict
		}
		return prev, true, nil
	}

	var uses int
	err = tx.QueryRowContext(ctx,
		`UPDATE discount_codes
		 SET current_uses = current_uses + 1, updated_at = $2
		 WHERE id = $1 AND is_active = TRUE AND (max_uses IS NULL OR current_uses < max_uses)
		 RETURNING current_uses`,
		r.DiscountCodeID, r.CreatedAt,
	).Scan(&uses)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, models.ErrUsageCapReached
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to increment usage: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE discount_redemptions SET uses_after = $2 WHERE id = $1`,
		r.ID, uses,
	); err != nil {
		return nil, false, fmt.Errorf("failed to record redemption: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit redemption: %w", err)
	}
	out := *r
	out.UsesAfter = uses
	return &out, false, nil
}

// ListBannerDiscountCodes retrieves active codes flagged for the banner
func (db *DB) ListBannerDiscountCodes(ctx context.Context) ([]models.DiscountCode, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+discountColumns+` FROM discount_codes
		 WHERE is_active = TRUE AND show_in_banner = TRUE
		 ORDER BY code`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list banner discounts: %w", err)
	}
	defer rows.Close()

	var codes []models.DiscountCode
	for rows.Next() {
		dc, err := scanDiscountCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discount code: %w", err)
		}
		codes = append(codes, *dc)
	}
	return codes, rows.Err()
}
