package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-tarot-miniapp/internal/infra/logging"
	red "telegram-tarot-miniapp/internal/infra/redis"
	"telegram-tarot-miniapp/internal/usecase"
)

// Rate windows, one per traffic class.
const (
	generalLimit  = 100
	generalWindow = 15 * time.Minute

	authLimit  = 5
	authWindow = 15 * time.Minute

	readingLimit  = 10
	readingWindow = time.Minute

	paymentLimit  = 3
	paymentWindow = time.Minute
)

type Server struct {
	users        *usecase.UserUseCase
	entitlements *usecase.EntitlementUseCase
	readings     *usecase.ReadingUseCase
	payments     *usecase.PaymentUseCase

	auth          *AuthManager
	limiter       *red.RateLimiter
	adminKey      string
	webhookSecret string
	log           *zerolog.Logger

	srv *http.Server
}

func NewServer(
	port int,
	users *usecase.UserUseCase,
	entitlements *usecase.EntitlementUseCase,
	readings *usecase.ReadingUseCase,
	payments *usecase.PaymentUseCase,
	auth *AuthManager,
	limiter *red.RateLimiter,
	adminKey string,
	webhookSecret string,
	logger *zerolog.Logger,
) *Server {
	s := &Server{
		users:         users,
		entitlements:  entitlements,
		readings:      readings,
		payments:      payments,
		auth:          auth,
		limiter:       limiter,
		adminKey:      adminKey,
		webhookSecret: webhookSecret,
		log:           logger,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	base := []Middleware{
		TraceID(),
		Recover(s.log),
		RequestLog(s.log),
		Timeout(30 * time.Second),
		BodyGuard(),
		RateLimit(s.limiter, s.log, "general", generalLimit, generalWindow, false),
		SanitizeBody(s.log),
	}
	r.Use(func(next http.Handler) http.Handler { return Chain(next, base...) })

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(s.window("auth", authLimit, authWindow, true)).
			Post("/auth/telegram", s.handleTelegramAuth)

		r.Route("/subscription/{userID}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(s.requireUser)
				r.Get("/status", s.handleSubscriptionStatus)
				r.Post("/use-spread", s.handleUseSpread)
			})
			// Direct grant path, admin key only.
			r.Post("/subscribe", s.handleSubscribe)
		})

		r.Route("/readings/{userID}", func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/", s.handleHistory)
			r.With(s.window("readings", readingLimit, readingWindow, false)).
				Post("/", s.handleCreateReading)
			r.Post("/{readingID}/clarify", s.handleClarify)
		})

		r.Route("/payment", func(r chi.Router) {
			r.With(s.window("payment", paymentLimit, paymentWindow, false)).
				Post("/create", s.handleCreatePayment)
			r.Get("/status/{paymentID}", s.handlePaymentStatus)
			r.Post("/webhook", s.handleWebhook)
		})
	})

	return r
}

func (s *Server) window(scope string, limit int, window time.Duration, refund bool) func(http.Handler) http.Handler {
	return RateLimit(s.limiter, s.log, scope, limit, window, refund)
}

// Handler exposes the routed handler for in-process use.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type ctxClaimsKey struct{}

// requireUser accepts only a valid session token whose subject matches
// the {userID} path segment.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		pathID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil || pathID != claims.TelegramID {
			writeError(w, http.StatusForbidden, "token does not match requested user")
			return
		}
		ctx := context.WithValue(r.Context(), ctxClaimsKey{}, claims)
		ctx = logging.WithTgID(ctx, claims.TelegramID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *SessionClaims {
	claims, _ := ctx.Value(ctxClaimsKey{}).(*SessionClaims)
	return claims
}
