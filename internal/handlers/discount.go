package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zelenivrt/storefront-backend/internal/discount"
	"github.com/zelenivrt/storefront-backend/internal/middleware"
	"github.com/zelenivrt/storefront-backend/internal/models"
)

type DiscountHandler struct {
	svc    *discount.Service
	logger *slog.Logger
}

func NewDiscountHandler(svc *discount.Service, logger *slog.Logger) *DiscountHandler {
	return &DiscountHandler{svc: svc, logger: logger}
}

type ValidateResponse struct {
	Response
	Valid          bool                `json:"valid"`
	Code           string              `json:"code"`
	DiscountType   models.DiscountType `json:"discount_type"`
	Value          decimal.Decimal     `json:"value"`
	DiscountAmount decimal.Decimal     `json:"discount_amount"`
}

type ApplyResponse struct {
	Response
	*discount.Application
}

type BannerResponse struct {
	Success bool              `json:"success"`
	Banners []discount.Banner `json:"banners"`
}

func discountStatus(err error) (int, messageKey) {
	switch {
	case errors.Is(err, discount.ErrInvalidCode):
		return http.StatusNotFound, msgInvalidCode
	case errors.Is(err, discount.ErrExpiredCode):
		return http.StatusUnprocessableEntity, msgExpiredCode
	case errors.Is(err, discount.ErrUsageExceeded):
		return http.StatusUnprocessableEntity, msgUsageExceeded
	case errors.Is(err, discount.ErrBelowMinimum):
		return http.StatusUnprocessableEntity, msgBelowMinimum
	case errors.Is(err, discount.ErrKeyReused):
		return http.StatusConflict, msgIdempotencyKeyReused
	}
	return http.StatusInternalServerError, msgInternalError
}

func (h *DiscountHandler) fail(w http.ResponseWriter, r *http.Request, lang models.Language, err error) {
	status, key := discountStatus(err)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(r.Context(), h.logger).Error("discount request failed",
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, lang, key)
}

// Validate handles POST /discounts/validate
func (h *DiscountHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateDiscountRequest
	if err := decodeJSON(w, r, &req); err != nil || req.OrderTotal.IsNegative() {
		writeError(w, http.StatusBadRequest, requestLanguage(r, ""), msgBadRequest)
		return
	}
	lang := requestLanguage(r, req.Language)

	v, err := h.svc.Validate(r.Context(), req.Code, req.OrderTotal)
	if err != nil {
		h.fail(w, r, lang, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{
		Response:       Response{Success: true, Message: message(lang, msgCodeValid)},
		Valid:          v.Valid,
		Code:           v.Code,
		DiscountType:   v.Discount.Type,
		Value:          v.Discount.Value,
		DiscountAmount: v.DiscountAmount,
	})
}

// Apply handles POST /discounts/apply
func (h *DiscountHandler) Apply(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader))
	if idempotencyKey == "" {
		writeError(w, http.StatusBadRequest, requestLanguage(r, ""), msgIdempotencyKeyRequired)
		return
	}

	var req models.ApplyDiscountRequest
	if err := decodeJSON(w, r, &req); err != nil || req.OrderTotal.IsNegative() {
		writeError(w, http.StatusBadRequest, requestLanguage(r, ""), msgBadRequest)
		return
	}
	lang := requestLanguage(r, req.Language)

	app, err := h.svc.Apply(r.Context(), req.Code, discount.ApplyRequest{
		OrderTotal:     req.OrderTotal,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		h.fail(w, r, lang, err)
		return
	}
	writeJSON(w, http.StatusOK, ApplyResponse{
		Response:    Response{Success: true, Message: message(lang, msgCodeApplied)},
		Application: app,
	})
}

// Banner handles GET /discounts/banner
func (h *DiscountHandler) Banner(w http.ResponseWriter, r *http.Request) {
	banners, err := h.svc.BannerDiscounts(r.Context())
	if err != nil {
		h.fail(w, r, requestLanguage(r, ""), err)
		return
	}
	writeJSON(w, http.StatusOK, BannerResponse{Success: true, Banners: banners})
}
