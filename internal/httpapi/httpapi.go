package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/service"
	"cantina/backend/internal/store"
)

type Options struct {
	AllowedOrigin string
	Logger        *zap.Logger
}

type API struct {
	service         *service.Service
	auth            *AuthManager
	allowedOrigin   string
	loginLimiter    *attemptLimiter
	registerLimiter *attemptLimiter
	csrf            *csrfGuard
	logger          *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &API{
		service:         svc,
		auth:            auth,
		allowedOrigin:   opts.AllowedOrigin,
		loginLimiter:    newAttemptLimiter(5, time.Minute),
		registerLimiter: newAttemptLimiter(3, time.Minute),
		csrf:            newCSRFGuard(),
		logger:          opts.Logger.Named("http"),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(a.secure)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/auth/csrf-token", a.handleCSRFToken)
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/register", a.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Get("/auth/me", a.handleMe)

			r.Route("/accounts", func(r chi.Router) {
				r.With(a.require(domain.CapViewAccounts)).Get("/", a.handleListAccounts)
				r.Get("/{id}", a.handleGetAccount)
				r.With(a.require(domain.CapManageAccounts)).Patch("/{id}/role", a.handleAccountRole)
				r.Patch("/{id}/theme", a.handleAccountTheme)
				r.Patch("/{id}/notifications", a.handleAccountNotifications)
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Get("/{id}", a.handleGetProduct)
				r.Group(func(r chi.Router) {
					r.Use(a.require(domain.CapManageInventory))
					r.Post("/", a.handleCreateProduct)
					r.Put("/{id}", a.handleUpdateProduct)
					r.Delete("/{id}", a.handleDeleteProduct)
					r.Post("/{id}/image", a.handleProductImage)
				})
			})

			r.Route("/sales", func(r chi.Router) {
				r.Get("/", a.handleListSales)
				r.Get("/{id}", a.handleGetSale)
				r.With(a.require(domain.CapSell)).Post("/", a.handleCreateSale)
				r.With(a.require(domain.CapCancelSale)).Post("/{id}/cancel", a.handleCancelSale)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.With(a.require(domain.CapSubmitTransactions)).Post("/", a.handleSubmitTransaction)
				r.With(a.require(domain.CapSubmitTransactions)).Get("/", a.handleListTransactions)
				r.With(a.require(domain.CapReviewTransactions)).Patch("/{id}/review", a.handleReviewTransaction)
			})

			r.Route("/cash-drawers", func(r chi.Router) {
				r.With(a.require(domain.CapViewReports)).Get("/", a.handleListCashDrawers)
				r.Group(func(r chi.Router) {
					r.Use(a.require(domain.CapOperateDrawer))
					r.Post("/", a.handleOpenCashDrawer)
					r.Get("/current", a.handleCurrentCashDrawer)
					r.Post("/{id}/sales", a.handleLinkSale)
					r.Post("/{id}/close", a.handleCloseCashDrawer)
				})
			})

			r.Post("/push/subscribe", a.handleSubscribe)
			r.With(a.require(domain.CapBroadcast)).Post("/push/send", a.handleSendNotification)
			r.With(a.require(domain.CapBroadcast)).Get("/push/notifications", a.handleListNotifications)

			r.Group(func(r chi.Router) {
				r.Use(a.require(domain.CapViewReports))
				r.Get("/stats/low-stock", a.handleLowStock)
				r.Get("/stats/pending-transactions", a.handlePendingTransactions)
				r.Get("/audit-logs", a.handleAuditLogs)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", errors.New("method not allowed"))
	})
	return r
}

// secure sets the browser hardening headers and CORS policy, caps JSON
// bodies at 1 MiB and enforces the CSRF token on state-changing requests.
func (a *API) secure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Access-Control-Allow-Origin", a.allowedOrigin)
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		h.Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		if needsCSRF(r) && !a.csrf.Valid(r.Header.Get("X-CSRF-Token")) {
			writeError(w, http.StatusForbidden, "csrf", errors.New("missing or invalid CSRF token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// authenticate verifies the bearer token and refreshes the actor from the
// stored account, so a role change applies to tokens issued before it.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(authorization) < 7 || !strings.EqualFold(authorization[:7], "bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("missing bearer token"))
			return
		}

		claimed, err := a.auth.ParseToken(strings.TrimSpace(authorization[7:]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		actor, err := a.service.ResolveActor(r.Context(), claimed)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("account no longer exists"))
			return
		}
		if err != nil {
			a.fail(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) require(capability domain.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !actor.Can(capability) {
				writeError(w, http.StatusForbidden, "forbidden", fmt.Errorf("%s role lacks %s", actor.Role, capability))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// fail maps a service error to its HTTP status and stable code.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusBadRequest, "body_too_large"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrReasonRequired):
		return http.StatusBadRequest, domain.ErrorCode(err)
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, domain.ErrorCode(err)
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrDrawerAlreadyOpen):
		return http.StatusConflict, domain.ErrorCode(err)
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrDebtCeiling), errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, domain.ErrorCode(err)
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	}
	return http.StatusInternalServerError, "internal_error"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a single JSON object into dest and runs its validate tags.
func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err)
	}
	if err := validate.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		problems := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
		limit = parsed
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
