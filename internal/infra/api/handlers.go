package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-tarot-miniapp/internal/domain"
	"telegram-tarot-miniapp/internal/domain/model"
	"telegram-tarot-miniapp/internal/infra/logging"
	"telegram-tarot-miniapp/internal/infra/metrics"
	"telegram-tarot-miniapp/internal/usecase"
)

// ===== Auth =====

type telegramAuthRequest struct {
	InitData string `json:"initData" validate:"required"`
}

func (s *Server) handleTelegramAuth(w http.ResponseWriter, r *http.Request) {
	var req telegramAuthRequest
	if errs := DecodeValid(r, &req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}
	tgUser, err := s.auth.VerifyInitData(req.InitData)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid Telegram init data")
		return
	}
	u, err := s.users.GetOrCreate(r.Context(), tgUser.ID, tgUser.Username)
	if err != nil {
		s.fail(w, r, err, "user lookup failed")
		return
	}
	token, err := s.auth.Mint(tgUser)
	if err != nil {
		s.fail(w, r, err, "token mint failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"telegramId": u.TelegramID,
			"username":   u.Username,
		},
	})
}

// ===== Subscription =====

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	claims := sessionFrom(r.Context())
	ent, err := s.entitlements.Status(r.Context(), claims.TelegramID)
	if err != nil {
		s.fail(w, r, err, "entitlement status failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptionInfo": ent})
}

type useSpreadRequest struct {
	SpreadType string `json:"spreadType" validate:"required,oneof=daily yesno three_cards"`
}

func (s *Server) handleUseSpread(w http.ResponseWriter, r *http.Request) {
	claims := sessionFrom(r.Context())
	var req useSpreadRequest
	if errs := DecodeValid(r, &req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}
	spread, err := model.ParseSpreadType(req.SpreadType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown spread type")
		return
	}
	ent, allowed, err := s.entitlements.UseSpread(r.Context(), claims.TelegramID, spread)
	if err != nil {
		s.fail(w, r, err, "use spread failed")
		return
	}
	if !allowed {
		metrics.IncEntitlementDenied(string(spread))
		writeJSON(w, http.StatusForbidden, map[string]any{
			"subscriptionInfo":     ent,
			"subscriptionRequired": true,
			"message":              "free spread already used, subscription required",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptionInfo": ent})
}

type subscribeRequest struct {
	SubscriptionExpiry time.Time `json:"subscriptionExpiry" validate:"required"`
}

// handleSubscribe grants a subscription directly, bypassing payment. The
// route is gated on the admin key, not a user session.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.adminKey == "" ||
		subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte("Bearer "+s.adminKey)) != 1 {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	tgID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req subscribeRequest
	if errs := DecodeValid(r, &req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}
	ent, err := s.entitlements.ActivateDirect(r.Context(), tgID, req.SubscriptionExpiry)
	if err != nil {
		s.fail(w, r, err, "direct activation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptionInfo": ent})
}

// ===== Readings =====

type createReadingRequest struct {
	SpreadType string `json:"spreadType" validate:"required,oneof=daily yesno three_cards"`
	Category   string `json:"category" validate:"omitempty,max=100"`
	Question   string `json:"question" validate:"omitempty,max=500"`
}

func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	claims := sessionFrom(r.Context())
	var req createReadingRequest
	if errs := DecodeValid(r, &req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}
	spread, err := model.ParseSpreadType(req.SpreadType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown spread type")
		return
	}
	rd, ent, allowed, err := s.readings.CreateReading(r.Context(), claims.TelegramID, spread, req.Category, req.Question)
	if err != nil {
		s.fail(w, r, err, "create reading failed")
		return
	}
	if !allowed {
		metrics.IncEntitlementDenied(string(spread))
		writeJSON(w, http.StatusForbidden, map[string]any{
			"subscriptionInfo":     ent,
			"subscriptionRequired": true,
			"message":              "free spread already used, subscription required",
		})
		return
	}
	metrics.IncReadingCreated(string(spread))
	writeJSON(w, http.StatusCreated, map[string]any{
		"reading":          readingDTO(rd),
		"subscriptionInfo": ent,
	})
}

type clarifyRequest struct {
	Question string `json:"question" validate:"required,min=1,max=500"`
}

func (s *Server) handleClarify(w http.ResponseWriter, r *http.Request) {
	claims := sessionFrom(r.Context())
	var req clarifyRequest
	if errs := DecodeValid(r, &req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}
	rd, err := s.readings.Clarify(r.Context(), claims.TelegramID, chi.URLParam(r, "readingID"), req.Question)
	if err != nil {
		s.fail(w, r, err, "clarify failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reading": readingDTO(rd)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims := sessionFrom(r.Context())
	list, err := s.readings.History(r.Context(), claims.TelegramID)
	if err != nil {
		s.fail(w, r, err, "history failed")
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, rd := range list {
		out = append(out, readingDTO(rd))
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": out})
}

// ===== Payments =====

type createPaymentRequest struct {
	UserID    int64  `json:"userId" validate:"required"`
	PlanType  string `json:"planType" validate:"required,oneof=weekly monthly quarterly yearly"`
	ReturnURL string `json:"returnUrl" validate:"omitempty,max=500"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	claims, err := s.auth.ParseFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createPaymentRequest
	if errs := DecodeValid(r, &req); errs != nil {
		writeValidationErrors(w, errs)
		return
	}
	if req.UserID != claims.TelegramID {
		writeError(w, http.StatusForbidden, "token does not match requested user")
		return
	}
	p, confirmURL, err := s.payments.CreatePayment(r.Context(), req.UserID, req.PlanType, req.ReturnURL)
	if err != nil {
		s.fail(w, r, err, "create payment failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paymentId":       p.ProviderID,
		"confirmationUrl": confirmURL,
		"amount":          p.Amount,
		"currency":        p.Currency,
		"status":          string(p.Status),
	})
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.ParseFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	pp, err := s.payments.Status(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		s.fail(w, r, err, "payment status failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     pp.ID,
		"status": pp.Status,
		"paid":   pp.Paid,
	})
}

// handleWebhook acknowledges every parseable delivery with 200 whether or
// not the event was actionable; ignored events are signalled through logs
// and metrics, never the status code. A processing failure answers 500 so
// the provider redelivers; unreadable payloads and failed signature checks
// answer 400 and 403.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}
	if s.webhookSecret != "" && !validSignature(body, r.Header.Get("X-Webhook-Signature"), s.webhookSecret) {
		metrics.IncWebhookEvent("unsigned", "rejected")
		logging.With(r.Context(), s.log).Warn().Str("ip", clientIP(r)).Msg("webhook signature mismatch")
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}
	var payload usecase.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.IncWebhookEvent("unparseable", "rejected")
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}
	applied, err := s.payments.HandleWebhook(r.Context(), &payload)
	switch {
	case err != nil:
		metrics.IncWebhookEvent(payload.Event, "error")
		logging.With(r.Context(), s.log).Error().Err(err).Str("event", payload.Event).Msg("webhook processing failed")
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	case applied:
		metrics.IncWebhookEvent(payload.Event, "applied")
		if plan := payload.Object.Metadata["planType"]; plan != "" {
			metrics.IncSubscriptionActivated(plan)
		}
	default:
		metrics.IncWebhookEvent(payload.Event, "ignored")
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

// validSignature checks an HMAC-SHA256 hex digest of the raw body.
func validSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// ===== Shared plumbing =====

func parseUserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}

func readingDTO(rd *model.Reading) map[string]any {
	return map[string]any{
		"id":             rd.ID,
		"spreadType":     string(rd.Spread),
		"category":       rd.Category,
		"question":       rd.Question,
		"cards":          rd.Cards,
		"interpretation": rd.Interpretation,
		"clarifications": rd.Clarifications,
		"createdAt":      rd.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeValidationErrors(w http.ResponseWriter, errs []FieldError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": errs,
	})
}

// fail maps domain sentinels onto HTTP statuses and logs the rest.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnknownPlan),
		errors.Is(err, domain.ErrUnknownSpread):
		writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrNoActiveSubscription):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrPaymentUnavailable),
		errors.Is(err, domain.ErrReadingUnavailable):
		logging.With(r.Context(), s.log).Error().Err(err).Msg(msg)
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
