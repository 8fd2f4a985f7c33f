package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zelenivrt/storefront-backend/internal/cache"
	"github.com/zelenivrt/storefront-backend/internal/discount"
	"github.com/zelenivrt/storefront-backend/internal/logging"
	"github.com/zelenivrt/storefront-backend/internal/mailer"
	"github.com/zelenivrt/storefront-backend/internal/memstore"
	"github.com/zelenivrt/storefront-backend/internal/models"
	"github.com/zelenivrt/storefront-backend/internal/newsletter"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail bool
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) (mailer.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return mailer.Result{}, errors.New("mail function returned 503")
	}
	m.sent = append(m.sent, msg)
	return mailer.Result{Success: true}, nil
}

func (m *recordingMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

type testServer struct {
	handler http.Handler
	store   *memstore.Store
	mail    *recordingMailer
}

func setupServer(t *testing.T, redis *cache.Redis) *testServer {
	t.Helper()
	logger := logging.Discard()
	store := memstore.New()
	mail := &recordingMailer{}

	store.PutDiscountCode(models.DiscountCode{
		Code:           "BREZPOSTNINE",
		Type:           models.DiscountFixed,
		Value:          decimal.RequireFromString("3.90"),
		MinOrderAmount: decimal.NewNullDecimal(decimal.RequireFromString("20.00")),
		IsActive:       true,
		ShowInBanner:   true,
	})
	maxUses := 1
	store.PutDiscountCode(models.DiscountCode{
		Code:     "ENKRAT",
		Type:     models.DiscountPercentage,
		Value:    decimal.NewFromInt(10),
		MaxUses:  &maxUses,
		IsActive: true,
	})

	nl := newsletter.NewService(store, mail, cache.NewMemoryTokenSet(), logger, newsletter.Config{
		BaseURL: "https://zelenivrt.si",
	})
	ds := discount.NewService(store, logger)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Newsletter:      nl,
			Discounts:       ds,
			Store:           store,
			Redis:           redis,
			Logger:          logger,
			RateLimit:       100,
			RateLimitWindow: time.Minute,
		}),
		store: store,
		mail:  mail,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	var response map[string]interface{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response), rr.Body.String())
	}
	return rr, response
}

var tokenRe = regexp.MustCompile(`token=([0-9a-f]{64})`)

func extractToken(t *testing.T, text string) string {
	t.Helper()
	m := tokenRe.FindStringSubmatch(text)
	require.Len(t, m, 2, text)
	return m[1]
}

func TestNewsletterLifecycle(t *testing.T) {
	s := setupServer(t, nil)

	rr, resp := s.do(t, http.MethodPost, "/newsletter/subscribe",
		`{"email":"Jane@Example.com","name":"Jane","preferences":{"promotions":true},"source":"footer","lang":"en"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, true, resp["success"])
	require.Equal(t, "Thank you! Check your inbox to confirm your subscription.", resp["message"])

	sent := s.mail.messages()
	require.Len(t, sent, 1)
	confirmToken := extractToken(t, sent[0].Envelope.Text)

	rr, resp = s.do(t, http.MethodPost, "/newsletter/confirm", `{"token":"`+confirmToken+`","lang":"en"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "DOBRODOSLI10", resp["discountCode"])
	require.Equal(t, false, resp["alreadyConfirmed"])

	sent = s.mail.messages()
	require.Len(t, sent, 2)
	require.True(t, sent[1].Envelope.IsWelcome)
	require.Contains(t, sent[1].Envelope.Text, "DOBRODOSLI10")
	unsubToken := extractToken(t, sent[1].Envelope.Text)

	rr, resp = s.do(t, http.MethodPost, "/newsletter/confirm", `{"token":"`+confirmToken+`","lang":"en"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, resp["alreadyConfirmed"])
	require.Len(t, s.mail.messages(), 2)

	rr, resp = s.do(t, http.MethodGet, "/newsletter/preferences?token="+unsubToken, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "jane@example.com", resp["email"])
	require.Equal(t, map[string]interface{}{"productUpdates": false, "promotions": true, "recipes": false}, resp["preferences"])

	rr, _ = s.do(t, http.MethodPut, "/newsletter/preferences",
		`{"token":"`+unsubToken+`","preferences":{"productUpdates":true,"promotions":false,"recipes":true},"lang":"sl"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	stored, _ := s.store.GetSubscriberByEmail(context.Background(), "jane@example.com")
	require.Equal(t, models.Preferences{ProductUpdates: true, Recipes: true}, stored.Preferences)

	rr, resp = s.do(t, http.MethodPut, "/newsletter/preferences", `{"token":"`+unsubToken+`","lang":"en"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Invalid request.", resp["message"])
	stored, _ = s.store.GetSubscriberByEmail(context.Background(), "jane@example.com")
	require.Equal(t, models.Preferences{ProductUpdates: true, Recipes: true}, stored.Preferences)

	rr, resp = s.do(t, http.MethodPost, "/newsletter/unsubscribe", `{"token":"`+unsubToken+`","lang":"de"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Sie wurden vom Newsletter abgemeldet.", resp["message"])

	rr, resp = s.do(t, http.MethodPost, "/newsletter/unsubscribe", `{"token":"`+unsubToken+`","lang":"de"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Sie sind bereits abgemeldet.", resp["message"])
}

func TestSubscribeErrors(t *testing.T) {
	s := setupServer(t, nil)

	rr, _ := s.do(t, http.MethodPost, "/newsletter/subscribe", `{"email":"ana@kmetija.si","lang":"sl"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, resp := s.do(t, http.MethodPost, "/newsletter/subscribe", `{"email":"ANA@kmetija.si","lang":"sl"}`, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, false, resp["success"])
	require.Equal(t, "Ta e-poštni naslov je že prijavljen na e-novice.", resp["message"])

	rr, _ = s.do(t, http.MethodPost, "/newsletter/subscribe", `{"email":"nope"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = s.do(t, http.MethodPost, "/newsletter/subscribe", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	s.mail.fail = true
	rr, resp = s.do(t, http.MethodPost, "/newsletter/subscribe", `{"email":"luka@example.com"}`,
		map[string]string{"Accept-Language": "hr-HR,hr;q=0.9"})
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Equal(t, "Prijavu trenutno nije moguće obraditi. Pokušajte ponovno kasnije.", resp["message"])
}

func TestUnknownTokenReturnsNotFound(t *testing.T) {
	s := setupServer(t, nil)
	unknownTok := string(bytes.Repeat([]byte("e"), 64))
	unknown := `{"token":"` + unknownTok + `"}`
	unknownPrefs := `{"token":"` + unknownTok + `","preferences":{"recipes":true}}`

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/newsletter/confirm", unknown},
		{http.MethodPost, "/newsletter/unsubscribe", unknown},
		{http.MethodPut, "/newsletter/preferences", unknownPrefs},
		{http.MethodGet, "/newsletter/preferences?token=abc", ""},
	} {
		rr, resp := s.do(t, tc.method, tc.path, tc.body, nil)
		require.Equal(t, http.StatusNotFound, rr.Code, tc.path)
		require.Equal(t, "This link is invalid or has expired.", resp["message"])
	}
}

func TestValidateDiscount(t *testing.T) {
	s := setupServer(t, nil)

	rr, resp := s.do(t, http.MethodPost, "/discounts/validate", `{"code":"brezpostnine","order_total":25.00}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, resp["valid"])
	require.Equal(t, "BREZPOSTNINE", resp["code"])
	require.Equal(t, "3.9", resp["discount_amount"])

	rr, resp = s.do(t, http.MethodPost, "/discounts/validate", `{"code":"BREZPOSTNINE","order_total":"19.99","lang":"sl"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "Znesek naročila je prenizek za to kodo.", resp["message"])

	rr, _ = s.do(t, http.MethodPost, "/discounts/validate", `{"code":"NI","order_total":25}`, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = s.do(t, http.MethodPost, "/discounts/validate", `{"code":"BREZPOSTNINE","order_total":-1}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestApplyDiscount(t *testing.T) {
	s := setupServer(t, nil)

	rr, _ := s.do(t, http.MethodPost, "/discounts/apply", `{"code":"ENKRAT","order_total":50}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	headers := map[string]string{"Idempotency-Key": "order-77"}
	rr, resp := s.do(t, http.MethodPost, "/discounts/apply", `{"code":"ENKRAT","order_total":50}`, headers)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, float64(1), resp["current_uses"])
	require.Equal(t, "5", resp["discount_amount"])
	require.Equal(t, false, resp["replayed"])

	rr, resp = s.do(t, http.MethodPost, "/discounts/apply", `{"code":"ENKRAT","order_total":50}`, headers)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, resp["replayed"])

	rr, _ = s.do(t, http.MethodPost, "/discounts/apply", `{"code":"ENKRAT","order_total":50}`,
		map[string]string{"Idempotency-Key": "order-78"})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr, resp = s.do(t, http.MethodPost, "/discounts/apply", `{"code":"BREZPOSTNINE","order_total":50}`, headers)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "This Idempotency-Key was already used for another code.", resp["message"])
}

func TestApplyDiscountReplayedFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := cache.NewRedis(context.Background(), cache.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	s := setupServer(t, rdb)

	headers := map[string]string{"Idempotency-Key": "order-90"}
	first, _ := s.do(t, http.MethodPost, "/discounts/apply", `{"code":"ENKRAT","order_total":50}`, headers)
	require.Equal(t, http.StatusOK, first.Code)

	second, _ := s.do(t, http.MethodPost, "/discounts/apply", `{"code":"ENKRAT","order_total":50}`, headers)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestBannerAndHealth(t *testing.T) {
	s := setupServer(t, nil)

	rr, resp := s.do(t, http.MethodGet, "/discounts/banner", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	banners := resp["banners"].([]interface{})
	require.Len(t, banners, 1)
	require.Equal(t, "BREZPOSTNINE", banners[0].(map[string]interface{})["code"])

	rr, resp = s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "healthy", resp["status"])
	require.Equal(t, "disabled", resp["redis"])
}
