package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aet-hub/aet-hub/internal/apperr"
	appAuth "github.com/aet-hub/aet-hub/internal/application/auth"
	appFleet "github.com/aet-hub/aet-hub/internal/application/fleet"
	appHistory "github.com/aet-hub/aet-hub/internal/application/history"
	appLedger "github.com/aet-hub/aet-hub/internal/application/ledger"
	appLicense "github.com/aet-hub/aet-hub/internal/application/license"
	appTransition "github.com/aet-hub/aet-hub/internal/application/transition"
	appUser "github.com/aet-hub/aet-hub/internal/application/user"
	domainUser "github.com/aet-hub/aet-hub/internal/domain/user"
	"github.com/aet-hub/aet-hub/internal/infrastructure/sse"
)

// Deps are the services exposed over HTTP.
type Deps struct {
	Auth                *appAuth.Service
	Users               *appUser.Service
	Fleet               *appFleet.Service
	Licenses            *appLicense.Service
	Transitions         *appTransition.Service
	History             *appHistory.Service
	Ledger              *appLedger.Service
	Reconciler          *appLedger.Reconciler
	Hub                 *sse.Hub
	Metrics             http.Handler
	UploadDir           string
	SessionCookieName   string
	SessionCookieSecure bool
	Logger              zerolog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	authSvc             *appAuth.Service
	userSvc             *appUser.Service
	fleetSvc            *appFleet.Service
	licenseSvc          *appLicense.Service
	transitionSvc       *appTransition.Service
	historySvc          *appHistory.Service
	ledgerSvc           *appLedger.Service
	reconciler          *appLedger.Reconciler
	sseHub              *sse.Hub
	metrics             http.Handler
	uploadDir           string
	sessionCookieName   string
	sessionCookieSecure bool
	heartbeat           time.Duration
	logger              zerolog.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		authSvc:             d.Auth,
		userSvc:             d.Users,
		fleetSvc:            d.Fleet,
		licenseSvc:          d.Licenses,
		transitionSvc:       d.Transitions,
		historySvc:          d.History,
		ledgerSvc:           d.Ledger,
		reconciler:          d.Reconciler,
		sseHub:              d.Hub,
		metrics:             d.Metrics,
		uploadDir:           d.UploadDir,
		sessionCookieName:   d.SessionCookieName,
		sessionCookieSecure: d.SessionCookieSecure,
		heartbeat:           15 * time.Second,
		logger:              d.Logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	if s.uploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		// Streams outlive the request timeout.
		r.With(s.requireAuth).Get("/events", s.events)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", s.login)
				r.Post("/bootstrap", s.bootstrapAdmin)
				r.Group(func(r chi.Router) {
					r.Use(s.requireAuth)
					r.Post("/logout", s.logout)
					r.Get("/me", s.me)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)

				r.Route("/users", func(r chi.Router) {
					r.Use(s.requireRole(string(domainUser.RoleAdmin)))
					r.Post("/", s.createUser)
					r.Get("/", s.listUsers)
					r.Get("/{userId}", s.getUser)
					r.Patch("/{userId}", s.updateUser)
					r.Put("/{userId}/password", s.setUserPassword)
				})

				r.Route("/transporters", func(r chi.Router) {
					r.Post("/", s.createTransporter)
					r.Get("/", s.listTransporters)
					r.Get("/{id}", s.getTransporter)
				})

				r.Route("/vehicles", func(r chi.Router) {
					r.Post("/", s.createVehicle)
					r.Get("/", s.listVehicles)
					r.Get("/{id}", s.getVehicle)
				})

				r.Route("/licenses", func(r chi.Router) {
					r.Post("/", s.createLicense)
					r.Get("/", s.listLicenses)
					r.Post("/drafts", s.createDraft)
					r.Post("/conflicts", s.checkConflicts)
					r.Get("/{id}", s.getLicense)
					r.Delete("/{id}", s.deleteLicense)
					r.Put("/{id}/draft", s.updateDraft)
					r.Post("/{id}/submit", s.submitDraft)
					r.Post("/{id}/renew", s.renewLicense)
					r.With(s.requireStaff).Post("/{id}/states/{state}/status", s.transitionState)
					r.Get("/{id}/history", s.listHistory)
					r.Get("/{id}/history/{historyId}/verify", s.verifyHistory)
				})

				r.Route("/issued-licenses", func(r chi.Router) {
					r.Get("/", s.listIssuedLicenses)
					r.With(s.requireRole(string(domainUser.RoleAdmin))).Post("/reconcile", s.reconcileLedger)
				})

				r.With(s.requireStaff).Get("/dashboard/stats", s.dashboardStats)
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		evt := s.logger.Info()
		if status >= http.StatusInternalServerError {
			evt = s.logger.Error()
		}
		evt.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("request complete")
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondErr maps an application error to its HTTP status and public body. Errors
// without a code are reported as internal and logged.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "unexpected error")
	}
	meta := apperr.MetadataFor(typed.Code())
	body := map[string]interface{}{
		"error":   string(typed.Code()),
		"message": meta.PublicMessage,
	}
	if typed.Code() != apperr.CodeInternal {
		if msg := typed.Message(); msg != "" {
			body["message"] = msg
		}
	}
	if meta.DetailsAllowed && typed.Details() != nil {
		body["details"] = typed.Details()
	}
	if meta.HTTPStatus >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Str("code", string(typed.Code())).Msg("request failed")
	}
	respondJSON(w, meta.HTTPStatus, body)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// decodeBody decodes a JSON body and runs struct validation.
func decodeBody(r *http.Request, v interface{}) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "invalid request body").WithDetails(map[string]string{"body": err.Error()})
	}
	return validateStruct(v)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fe := range errs {
			details[fe.Field()] = validationMessage(fe)
		}
		return apperr.New(apperr.CodeValidation, "validation failed").WithDetails(details)
	}
	return apperr.Wrap(apperr.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}

func parseIDParam(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.CodeValidation, "invalid %s", key)
	}
	return id, nil
}

func queryInt64(r *http.Request, key string) (*int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Newf(apperr.CodeValidation, "invalid %s", key)
	}
	return &n, nil
}

func queryString(r *http.Request, key string) *string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return &v
	}
	return nil
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
