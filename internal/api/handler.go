// Package api exposes the picvault service over HTTP with chi.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/picvault/picvault/internal/auth"
	"github.com/picvault/picvault/pkg/picvault"
	"github.com/picvault/picvault/pkg/picvault/objectkey"
)

// Handler wires the auth and image endpoints.
type Handler struct {
	service picvault.Service
	auth    *auth.Service
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(service picvault.Service, authService *auth.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, auth: authService, logger: logger}
}

// Routes builds the router: public auth and view endpoints, plus the
// bearer-token protected image API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.handleHealth)

	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)

	// Inline view: authenticated by a short-lived view token in the
	// query string instead of a session credential.
	r.Get("/view/*", h.handleView)

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(h.auth.SessionAuth()))
		r.Use(jwtauth.Authenticator)

		r.Post("/upload", h.handleUpload)
		r.Get("/images", h.handleListImages)
		r.Get("/image-url/*", h.handleImageURL)
		r.Get("/view-token/*", h.handleViewToken)
		r.Delete("/images/*", h.handleDelete)
		// Alias kept for clients of the older route shape.
		r.Delete("/delete/*", h.handleDelete)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// currentUser extracts the authenticated email from the verified session
// token.
func (h *Handler) currentUser(r *http.Request) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", picvault.ErrAuth
	}
	email, ok := claims["user"].(string)
	if !ok || email == "" {
		return "", picvault.ErrAuth
	}
	return email, nil
}

// renderError maps the error taxonomy onto HTTP statuses. Dependency
// failures are logged and returned opaque.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, picvault.ErrValidation):
		renderJSONError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, picvault.ErrAuth):
		renderJSONError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, picvault.ErrForbidden):
		renderJSONError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, picvault.ErrNotFound):
		renderJSONError(w, r, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
		renderJSONError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func renderJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}

// ownerOf resolves the owner segment of a key for view-token access, where
// no session identity is present.
func ownerOf(key string) (string, error) {
	owner, err := objectkey.Owner(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", picvault.ErrValidation, err)
	}
	return owner, nil
}
