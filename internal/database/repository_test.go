package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zelenivrt/storefront-backend/internal/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return &DB{DB: conn}, mock
}

var subscriberCols = []string{
	"id", "email", "name", "is_active", "confirmation_status", "confirmation_token",
	"unsubscribe_token", "source", "language", "preferences", "discount_used", "last_emailed_at",
	"confirmed_at", "unsubscribed_at", "created_at", "updated_at",
}

func TestCreateSubscriberDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO newsletter_subscribers")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "newsletter_subscribers_email_key"})

	err := db.CreateSubscriber(context.Background(), &models.Subscriber{
		ID:    uuid.New(),
		Email: "jane@example.com",
	})
	require.ErrorIs(t, err, models.ErrDuplicateEmail)
}

func TestCreateSubscriberOtherUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO newsletter_subscribers")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "newsletter_subscribers_unsubscribe_token_key"})

	err := db.CreateSubscriber(context.Background(), &models.Subscriber{ID: uuid.New(), Email: "jane@example.com"})
	require.Error(t, err)
	require.False(t, errors.Is(err, models.ErrDuplicateEmail))
}

func TestGetSubscriberByConfirmationToken(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()
	created := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM newsletter_subscribers WHERE confirmation_token = $1")).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(subscriberCols).AddRow(
			id.String(), "jane@example.com", "Jane Novak", true, "pending", "tok",
			"unsub", "footer", "sl", []byte(`{"productUpdates":false,"promotions":true,"recipes":true}`),
			nil, nil, nil, nil, created, created,
		))

	sub, err := db.GetSubscriberByConfirmationToken(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, id, sub.ID)
	require.Equal(t, "Jane", sub.FirstName())
	require.Equal(t, models.StatusPending, sub.ConfirmationStatus)
	require.Equal(t, models.LangSlovenian, sub.Language)
	require.Equal(t, models.Preferences{Promotions: true, Recipes: true}, sub.Preferences)
	require.Nil(t, sub.DiscountUsed)
	require.Nil(t, sub.LastEmailedAt)
}

func TestGetSubscriberNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE unsubscribe_token = $1")).
		WillReturnRows(sqlmock.NewRows(subscriberCols))

	sub, err := db.GetSubscriberByUnsubscribeToken(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, sub)
}

func TestGetSubscriberByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM newsletter_subscribers WHERE email = $1")).
		WithArgs("ana@kmetija.si").
		WillReturnRows(sqlmock.NewRows(subscriberCols).AddRow(
			uuid.NewString(), "ana@kmetija.si", nil, false, "confirmed", "tok",
			"unsub", "website", "hr", []byte(`{"productUpdates":true,"promotions":true,"recipes":true}`),
			"DOBRODOSLI10", created, created, created, created, created,
		))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1")).
		WithArgs("x@example.com").
		WillReturnError(sql.ErrConnDone)

	sub, err := db.GetSubscriberByEmail(context.Background(), "ana@kmetija.si")
	require.NoError(t, err)
	require.False(t, sub.IsActive)
	require.Nil(t, sub.Name)
	require.Equal(t, "DOBRODOSLI10", *sub.DiscountUsed)
	require.True(t, sub.UnsubscribedAt.Equal(created))

	_, err = db.GetSubscriberByEmail(context.Background(), "x@example.com")
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestConfirmSubscriberIsConditional(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()
	at := time.Now().UTC()
	query := regexp.QuoteMeta("WHERE id = $1 AND confirmation_status = 'pending'")

	mock.ExpectExec(query).WithArgs(id.String(), at, "DOBRODOSLI10").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(id.String(), at, "DOBRODOSLI10").WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := db.ConfirmSubscriber(context.Background(), id, "DOBRODOSLI10", at)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = db.ConfirmSubscriber(context.Background(), id, "DOBRODOSLI10", at)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestClaimWelcomeEmail(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()
	at := time.Now().UTC()
	cutoff := at.Add(-5 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("(last_emailed_at IS NULL OR last_emailed_at <= $3)")).
		WithArgs(id.String(), at, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := db.ClaimWelcomeEmail(context.Background(), id, at, cutoff)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestDeactivateSubscriberFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("SET is_active = FALSE")).
		WillReturnError(sql.ErrConnDone)

	_, err := db.DeactivateSubscriber(context.Background(), uuid.New(), time.Now())
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func redemption() *models.DiscountRedemption {
	return &models.DiscountRedemption{
		ID:             uuid.New(),
		DiscountCodeID: uuid.New(),
		IdempotencyKey: "order-1001",
		OrderTotal:     decimal.RequireFromString("40.00"),
		DiscountAmount: decimal.RequireFromString("6.00"),
		CreatedAt:      time.Now().UTC(),
	}
}

var redemptionCols = []string{
	"id", "discount_code_id", "code", "idempotency_key", "order_total",
	"discount_amount", "uses_after", "created_at",
}

func TestRedeemDiscountCode(t *testing.T) {
	db, mock := newMockDB(t)
	r := redemption()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (idempotency_key) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("(max_uses IS NULL OR current_uses < max_uses)")).
		WithArgs(r.DiscountCodeID.String(), r.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"current_uses"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE discount_redemptions SET uses_after = $2 WHERE id = $1")).
		WithArgs(r.ID.String(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, replayed, err := db.RedeemDiscountCode(context.Background(), r)
	require.NoError(t, err)
	require.False(t, replayed)
	require.Equal(t, 3, rec.UsesAfter)
	require.Equal(t, r.ID, rec.ID)
}

func TestRedeemDiscountCodeCapReached(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO discount_redemptions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING current_uses")).
		WillReturnRows(sqlmock.NewRows([]string{"current_uses"}))
	mock.ExpectRollback()

	_, _, err := db.RedeemDiscountCode(context.Background(), redemption())
	require.ErrorIs(t, err, models.ErrUsageCapReached)
}

func TestRedeemDiscountCodeReplay(t *testing.T) {
	db, mock := newMockDB(t)
	r := redemption()
	first := r.CreatedAt.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO discount_redemptions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.idempotency_key = $1")).
		WithArgs(r.IdempotencyKey).
		WillReturnRows(sqlmock.NewRows(redemptionCols).AddRow(
			uuid.NewString(), r.DiscountCodeID.String(), "POLETJE2023", r.IdempotencyKey,
			"40.00", "6.00", int64(7), first,
		))
	mock.ExpectRollback()

	rec, replayed, err := db.RedeemDiscountCode(context.Background(), r)
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, 7, rec.UsesAfter)
	require.Equal(t, "POLETJE2023", rec.Code)
	require.True(t, rec.CreatedAt.Equal(first))
}

func TestRedeemDiscountCodeKeyConflict(t *testing.T) {
	db, mock := newMockDB(t)
	r := redemption()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO discount_redemptions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.idempotency_key = $1")).
		WillReturnRows(sqlmock.NewRows(redemptionCols).AddRow(
			uuid.NewString(), uuid.NewString(), "BREZPOSTNINE", r.IdempotencyKey,
			"25.00", "3.90", int64(1), r.CreatedAt,
		))
	mock.ExpectRollback()

	_, _, err := db.RedeemDiscountCode(context.Background(), r)
	require.ErrorIs(t, err, models.ErrRedemptionKeyConflict)
}

func TestGetDiscountRedemption(t *testing.T) {
	db, mock := newMockDB(t)
	codeID := uuid.New()
	at := time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN discount_codes c ON c.id = r.discount_code_id")).
		WithArgs("order-1001").
		WillReturnRows(sqlmock.NewRows(redemptionCols).AddRow(
			uuid.NewString(), codeID.String(), "POLETJE2023", "order-1001",
			"40.00", "6.00", int64(1), at,
		))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.idempotency_key = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(redemptionCols))

	rec, err := db.GetDiscountRedemption(context.Background(), "order-1001")
	require.NoError(t, err)
	require.Equal(t, codeID, rec.DiscountCodeID)
	require.True(t, rec.DiscountAmount.Equal(decimal.RequireFromString("6.00")))
	require.Equal(t, 1, rec.UsesAfter)

	rec, err = db.GetDiscountRedemption(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestGetActiveDiscountCode(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()
	until := time.Date(2025, 8, 31, 23, 59, 59, 0, time.UTC)
	cols := []string{
		"id", "code", "discount_type", "value", "valid_from", "valid_until", "max_uses",
		"current_uses", "min_order_amount", "is_active", "category_id", "product_id", "show_in_banner",
		"banner_start_time", "banner_end_time", "banner_text", "created_at", "updated_at",
	}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE UPPER(code) = UPPER($1) AND is_active = TRUE")).
		WithArgs("brezpostnine").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			id.String(), "BREZPOSTNINE", "fixed", "3.90", nil, until, int64(100),
			int64(12), "20.00", true, nil, nil, false,
			nil, nil, nil, until, until,
		))

	dc, err := db.GetActiveDiscountCode(context.Background(), "brezpostnine")
	require.NoError(t, err)
	require.Equal(t, models.DiscountFixed, dc.Type)
	require.True(t, dc.Value.Equal(decimal.RequireFromString("3.90")))
	require.Equal(t, 100, *dc.MaxUses)
	require.Equal(t, 12, dc.CurrentUses)
	require.True(t, dc.MinOrderAmount.Valid)
	require.True(t, dc.MinOrderAmount.Decimal.Equal(decimal.NewFromInt(20)))
	require.Nil(t, dc.ValidFrom)
	require.True(t, dc.ValidUntil.Equal(until))
}
