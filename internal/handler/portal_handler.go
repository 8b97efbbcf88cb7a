package handler

import (
	"context"
	"net/http"

	"portal-auth/internal/loan"
	"portal-auth/internal/models"
	"portal-auth/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const msgProfileUnavailable = "Your profile could not be loaded right now. Please try again."

// PortalHandler serves the authenticated pages and the public loan calculator.
type PortalHandler struct {
	portal *service.PortalService
	logger *zap.Logger
}

func NewPortalHandler(portal *service.PortalService, logger *zap.Logger) *PortalHandler {
	return &PortalHandler{portal: portal, logger: logger}
}

// RegisterPublicRoutes registers routes that need a session but no token.
func (h *PortalHandler) RegisterPublicRoutes(router chi.Router) {
	router.Post("/loan/calculate", h.CalculateLoan)
}

// RegisterRoutes registers routes that sit behind RequireAuth.
func (h *PortalHandler) RegisterRoutes(router chi.Router) {
	router.Get("/dashboard", h.Dashboard)
	router.Route("/profile", func(r chi.Router) {
		r.Get("/address", profileGet(h, h.portal.Address))
		r.Put("/address", profilePut(h, h.portal.UpdateAddress))
		r.Get("/job", profileGet(h, h.portal.Job))
		r.Put("/job", profilePut(h, h.portal.UpdateJob))
		r.Get("/spouse", profileGet(h, h.portal.Spouse))
		r.Put("/spouse", profilePut(h, h.portal.UpdateSpouse))
		r.Get("/finance", profileGet(h, h.portal.Finance))
		r.Put("/finance", profilePut(h, h.portal.UpdateFinance))
	})
}

func (h *PortalHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d := h.portal.Dashboard(r.Context(), sessionFrom(r.Context()))
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(d, ""))
}

func (h *PortalHandler) CalculateLoan(w http.ResponseWriter, r *http.Request) {
	var req loan.Request
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(h.logger, w, err, "")
		return
	}
	quote, err := h.portal.QuoteLoan(req)
	if err != nil {
		respondWithError(h.logger, w, err, "")
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(quote, ""))
}

func profileGet[T any](h *PortalHandler, get func(ctx context.Context, sess *models.Session) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := get(r.Context(), sessionFrom(r.Context()))
		if err != nil {
			respondWithError(h.logger, w, err, msgProfileUnavailable)
			return
		}
		respondWithJSON(h.logger, w, http.StatusOK, successResponse(v, ""))
	}
}

func profilePut[T any](
	h *PortalHandler,
	save func(ctx context.Context, sess *models.Session, v T) (*T, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body T
		if err := decodeAndValidate(r, &body); err != nil {
			respondWithError(h.logger, w, err, "")
			return
		}
		v, err := save(r.Context(), sessionFrom(r.Context()), body)
		if err != nil {
			respondWithError(h.logger, w, err, msgProfileUnavailable)
			return
		}
		respondWithJSON(h.logger, w, http.StatusOK, successResponse(v, "Profile updated."))
	}
}
