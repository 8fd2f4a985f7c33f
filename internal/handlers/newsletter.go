package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/zelenivrt/storefront-backend/internal/middleware"
	"github.com/zelenivrt/storefront-backend/internal/models"
	"github.com/zelenivrt/storefront-backend/internal/newsletter"
)

type NewsletterHandler struct {
	svc    *newsletter.Service
	logger *slog.Logger
}

func NewNewsletterHandler(svc *newsletter.Service, logger *slog.Logger) *NewsletterHandler {
	return &NewsletterHandler{svc: svc, logger: logger}
}

type SubscribeResponse struct {
	Response
	Simulated bool `json:"simulated,omitempty"`
}

type ConfirmResponse struct {
	Response
	AlreadyConfirmed bool   `json:"alreadyConfirmed"`
	DiscountCode     string `json:"discountCode,omitempty"`
	Simulated        bool   `json:"simulated,omitempty"`
}

type PreferencesResponse struct {
	Response
	Email       string             `json:"email,omitempty"`
	IsActive    bool               `json:"isActive"`
	Preferences models.Preferences `json:"preferences"`
}

// newsletterStatus maps lifecycle errors to a status code and message.
func newsletterStatus(err error) (int, messageKey) {
	switch {
	case errors.Is(err, newsletter.ErrAlreadySubscribed):
		return http.StatusConflict, msgAlreadySubscribed
	case errors.Is(err, newsletter.ErrInvalidToken):
		return http.StatusNotFound, msgInvalidToken
	case errors.Is(err, newsletter.ErrInvalidEmail):
		return http.StatusBadRequest, msgInvalidEmail
	case errors.Is(err, newsletter.ErrPreferenceUpdate):
		return http.StatusInternalServerError, msgPreferenceError
	case errors.Is(err, newsletter.ErrSubscription):
		return http.StatusBadGateway, msgSubscriptionError
	}
	return http.StatusInternalServerError, msgInternalError
}

func (h *NewsletterHandler) fail(w http.ResponseWriter, r *http.Request, lang models.Language, err error) {
	status, key := newsletterStatus(err)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(r.Context(), h.logger).Error("newsletter request failed",
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, lang, key)
}

// Subscribe handles POST /newsletter/subscribe
func (h *NewsletterHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req models.SubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, requestLanguage(r, ""), msgBadRequest)
		return
	}
	lang := requestLanguage(r, req.Language)
	req.Language = string(lang)

	out, err := h.svc.Subscribe(r.Context(), req)
	if err != nil {
		h.fail(w, r, lang, err)
		return
	}

	key := msgSubscribed
	if out.Simulated {
		key = msgSubscribedSimulated
	}
	writeJSON(w, http.StatusCreated, SubscribeResponse{
		Response:  Response{Success: true, Message: message(lang, key)},
		Simulated: out.Simulated,
	})
}

// Confirm handles POST /newsletter/confirm
func (h *NewsletterHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, requestLanguage(r, ""), msgBadRequest)
		return
	}

	out, err := h.svc.Confirm(r.Context(), req.Token, req.Language)
	if err != nil {
		h.fail(w, r, requestLanguage(r, req.Language), err)
		return
	}

	key := msgConfirmed
	if out.AlreadyDone && !out.EmailSent {
		key = msgAlreadyConfirmed
	}
	resp := ConfirmResponse{
		Response:         Response{Success: true, Message: message(out.Language, key)},
		AlreadyConfirmed: out.AlreadyDone,
		Simulated:        out.Simulated,
	}
	if out.Subscriber.DiscountUsed != nil {
		resp.DiscountCode = *out.Subscriber.DiscountUsed
	}
	writeJSON(w, http.StatusOK, resp)
}

// Unsubscribe handles POST /newsletter/unsubscribe
func (h *NewsletterHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, requestLanguage(r, ""), msgBadRequest)
		return
	}
	lang := requestLanguage(r, req.Language)

	out, err := h.svc.Unsubscribe(r.Context(), req.Token)
	if err != nil {
		h.fail(w, r, lang, err)
		return
	}

	key := msgUnsubscribed
	if out.AlreadyDone {
		key = msgAlreadyUnsubscribed
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message(lang, key)})
}

// GetPreferences handles GET /newsletter/preferences?token=
func (h *NewsletterHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	lang := requestLanguage(r, "")

	sub, err := h.svc.Lookup(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.fail(w, r, lang, err)
		return
	}
	writeJSON(w, http.StatusOK, PreferencesResponse{
		Response:    Response{Success: true},
		Email:       sub.Email,
		IsActive:    sub.IsActive,
		Preferences: sub.Preferences,
	})
}

// UpdatePreferences handles PUT /newsletter/preferences
func (h *NewsletterHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req models.PreferencesRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Preferences == nil {
		writeError(w, http.StatusBadRequest, requestLanguage(r, req.Language), msgBadRequest)
		return
	}
	lang := requestLanguage(r, req.Language)

	out, err := h.svc.UpdatePreferences(r.Context(), req.Token, *req.Preferences)
	if err != nil {
		h.fail(w, r, lang, err)
		return
	}
	writeJSON(w, http.StatusOK, PreferencesResponse{
		Response:    Response{Success: true, Message: message(lang, msgPreferencesUpdated)},
		IsActive:    out.Subscriber.IsActive,
		Preferences: out.Subscriber.Preferences,
	})
}
