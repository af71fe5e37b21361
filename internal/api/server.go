package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hpol369/ItsNadchos/internal/config"
	"github.com/hpol369/ItsNadchos/internal/models"
	"github.com/hpol369/ItsNadchos/internal/repository"
	"github.com/hpol369/ItsNadchos/internal/service"
)

const (
	validateLimitPerMinute = 20
	purchasePending        = "pending"
	purchaseCompleted      = "completed"
)

// PurchaseNotifier tells the user in chat that their storefront purchase
// landed. The bot implements it; delivery is best effort.
type PurchaseNotifier interface {
	NotifyCreditsAdded(telegramID int64, credits, balance int)
}

type Server struct {
	cfg       config.Config
	log       *slog.Logger
	tokens    *service.TokenBroker
	ledger    *service.CreditLedger
	packages  *service.PackageService
	purchases *repository.PurchaseRepository
	users     *service.UserService
	limiter   *service.RateLimiter
	gallery   *service.GalleryService
	push      *service.DailyPushService
	notifier  PurchaseNotifier
	ips       *ipLimiter
	router    *chi.Mux
}

func NewServer(
	cfg config.Config,
	log *slog.Logger,
	tokens *service.TokenBroker,
	ledger *service.CreditLedger,
	packages *service.PackageService,
	purchases *repository.PurchaseRepository,
	users *service.UserService,
	limiter *service.RateLimiter,
	gallery *service.GalleryService,
	push *service.DailyPushService,
	notifier PurchaseNotifier,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:       cfg,
		log:       log,
		tokens:    tokens,
		ledger:    ledger,
		packages:  packages,
		purchases: purchases,
		users:     users,
		limiter:   limiter,
		gallery:   gallery,
		push:      push,
		notifier:  notifier,
		ips:       newIPLimiter(validateLimitPerMinute, time.Minute),
		router:    r,
	}

	r.Get("/health", s.handleHealth)
	r.Get("/api/validate-token", s.handleValidateToken)
	r.Post("/api/checkout", s.handleCheckout)

	r.Group(func(hooks chi.Router) {
		hooks.Use(s.bearerAuth(cfg.WebhookSecret))
		hooks.Post("/api/credits/add", s.handleCreditsAdd)
		hooks.Post("/admin/users/{id}/ratelimit/reset", s.handleRateLimitReset)
		hooks.Post("/admin/users/{id}/block", s.handleBlockUser(true))
		hooks.Post("/admin/users/{id}/unblock", s.handleBlockUser(false))
		hooks.Get("/admin/users/{id}/ledger", s.handleLedgerCheck)
		hooks.Post("/admin/photos", s.handlePhotoUpload)
	})

	r.Group(func(cron chi.Router) {
		cron.Use(s.bearerAuth(cfg.CronSecret))
		cron.Get("/api/cron/daily-push", s.handleDailyPush)
	})

	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.APIListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.cfg.APIListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type packageView struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Credits    int    `json:"credits"`
	PriceCents int    `json:"price_cents"`
}

// handleValidateToken lets the storefront resolve a purchase token into the
// buyer's display name and the package catalog, without consuming the token.
func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	if !s.ips.Allow(r.RemoteAddr, time.Now()) {
		s.writeJSON(w, http.StatusTooManyRequests, map[string]any{"valid": false, "reason": "rate_limited"})
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "reason": "missing_token"})
		return
	}

	userID, err := s.tokens.Validate(r.Context(), token, time.Now())
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": tokenFailureReason(err)})
		return
	}

	user, err := s.users.FindByID(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if user == nil {
		s.internalError(w, fmt.Errorf("token owner %d not found", userID))
		return
	}
	packs, err := s.packages.ListActive(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}

	views := make([]packageView, 0, len(packs))
	for _, p := range packs {
		views = append(views, packageView{ID: p.ID, Name: p.Name, Credits: p.Credits, PriceCents: p.PriceCents})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"valid":        true,
		"display_name": user.DisplayName,
		"packages":     views,
	})
}

type checkoutRequest struct {
	Token     string `json:"token"`
	PackageID int64  `json:"package_id"`
}

// handleCheckout opens a pending purchase for the storefront payment flow.
// The token is validated but not consumed; consumption happens when the
// payment webhook confirms the charge.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	userID, err := s.tokens.Validate(r.Context(), req.Token, time.Now())
	if err != nil {
		s.writeJSON(w, http.StatusForbidden, map[string]any{"error": tokenFailureReason(err)})
		return
	}

	pkg, err := s.packages.GetByID(r.Context(), req.PackageID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if pkg == nil || !pkg.IsActive {
		http.Error(w, "package not available", http.StatusBadRequest)
		return
	}

	referenceID := uuid.NewString()
	if err := s.purchases.Create(r.Context(), &models.Purchase{
		UserID:      userID,
		PackageID:   pkg.ID,
		ReferenceID: referenceID,
		AmountCents: pkg.PriceCents,
		Credits:     pkg.Credits,
		Status:      purchasePending,
	}); err != nil {
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"reference_id": referenceID,
		"amount_cents": pkg.PriceCents,
		"credits":      pkg.Credits,
	})
}

type creditsAddRequest struct {
	Token       string `json:"token"`
	ReferenceID string `json:"reference_id"`
}

// handleCreditsAdd is the payment webhook. It consumes the purchase token,
// credits the account and completes the pending purchase. Provider retries
// after a completed purchase answer 200 without crediting twice.
func (s *Server) handleCreditsAdd(w http.ResponseWriter, r *http.Request) {
	var req creditsAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	purchase, err := s.purchases.FindByReference(r.Context(), req.ReferenceID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if purchase == nil {
		http.Error(w, "purchase not found", http.StatusNotFound)
		return
	}
	if purchase.Status == purchaseCompleted {
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "already_processed"})
		return
	}

	userID, err := s.tokens.Redeem(r.Context(), req.Token, time.Now())
	if err != nil {
		s.writeJSON(w, http.StatusForbidden, map[string]any{"error": tokenFailureReason(err)})
		return
	}
	if userID != purchase.UserID {
		http.Error(w, "token does not match purchase", http.StatusForbidden)
		return
	}

	balance, err := s.ledger.AddCredits(r.Context(), purchase.UserID, purchase.Credits, models.TransactionPurchase, purchase.ReferenceID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if err := s.purchases.UpdateStatus(r.Context(), purchase.ID, purchaseCompleted); err != nil {
		s.internalError(w, err)
		return
	}

	if user, err := s.users.FindByID(r.Context(), purchase.UserID); err == nil && user != nil {
		s.notifier.NotifyCreditsAdded(user.TelegramID, purchase.Credits, balance)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "credited",
		"credits": purchase.Credits,
		"balance": balance,
	})
}

func (s *Server) handleDailyPush(w http.ResponseWriter, r *http.Request) {
	result, err := s.push.Sweep(r.Context(), time.Now())
	if err != nil {
		s.internalError(w, err)
		return
	}
	if n, err := s.tokens.CleanupExpired(r.Context(), time.Now()); err != nil {
		s.log.Error("token cleanup", "err", err)
	} else if n > 0 {
		s.log.Info("expired tokens removed", "count", n)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"eligible": result.Eligible,
		"sent":     result.Sent,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
	})
}

// handleRateLimitReset clears accumulated warnings and any temporary block.
// This is the only path that resets warnings.
func (s *Server) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.limiter.Reset(r.Context(), userID); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlockUser(blocked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := parseID(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		reason := ""
		if blocked {
			reason = strings.TrimSpace(r.URL.Query().Get("reason"))
		}
		if err := s.users.SetBlocked(r.Context(), userID, blocked, reason); err != nil {
			s.internalError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

const maxPhotoUploadBytes = 20 << 20

// handlePhotoUpload adds a photo to the gallery catalog. The body carries the
// raw image bytes; metadata comes from query parameters.
func (s *Server) handlePhotoUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPhotoUploadBytes))
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	description := strings.TrimSpace(r.URL.Query().Get("description"))
	isFree := r.URL.Query().Get("free") == "true"
	sortOrder, _ := strconv.Atoi(r.URL.Query().Get("sort_order"))

	photo, err := s.gallery.AddPhoto(r.Context(), data, r.Header.Get("Content-Type"), description, isFree, sortOrder)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":           photo.ID,
		"storage_path": photo.StoragePath,
		"is_free":      photo.IsFree,
	})
}

func (s *Server) handleLedgerCheck(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	consistent, balance, sum, err := s.ledger.Reconcile(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	txs, err := s.ledger.RecentTransactions(r.Context(), userID, 20)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"consistent":      consistent,
		"balance":         balance,
		"transaction_sum": sum,
		"transactions":    txs,
	})
}

func (s *Server) bearerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("api handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenUsed):
		return "used"
	case errors.Is(err, service.ErrTokenExpired):
		return "expired"
	default:
		return "not_found"
	}
}
