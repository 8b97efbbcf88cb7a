package handler

import (
	"net/http"
	"strconv"
	"time"

	"portal-auth/internal/models"
	"portal-auth/internal/service"
	"portal-auth/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AuthHandler serves the public login flow.
type AuthHandler struct {
	auth       *service.AuthService
	logger     *zap.Logger
	cookieName string
	secure     bool
}

func NewAuthHandler(auth *service.AuthService, cookieName string, secure bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger, cookieName: cookieName, secure: secure}
}

type loginRequest struct {
	NationalID      string `json:"nationalId" validate:"required,tckn"`
	Phone           string `json:"phone" validate:"required,gsm"`
	ConsentAccepted bool   `json:"consentAccepted"`
}

type loginData struct {
	MaskedPhone string `json:"maskedPhone,omitempty"`
	DevCode     string `json:"devCode,omitempty"`
}

type verifyRequest struct {
	Code            string `json:"code" validate:"required,otp"`
	ChallengeAnswer string `json:"challengeAnswer" validate:"max=16"`
}

type verifyData struct {
	Token             string     `json:"token,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	ChallengeRequired bool       `json:"challengeRequired"`
	ChallengeImage    []byte     `json:"challengeImage,omitempty"`
	RemainingAttempts int        `json:"remainingAttempts"`
}

type resendData struct {
	ChallengeRequired bool   `json:"challengeRequired"`
	DevCode           string `json:"devCode,omitempty"`
}

type captchaData struct {
	Image []byte `json:"image"`
}

type statusData struct {
	HasIdentity       bool   `json:"hasIdentity"`
	Authenticated     bool   `json:"authenticated"`
	ConsentGranted    bool   `json:"consentGranted"`
	State             string `json:"state"`
	ChallengeRequired bool   `json:"challengeRequired"`
	RemainingAttempts int    `json:"remainingAttempts"`
	MaskedPhone       string `json:"maskedPhone,omitempty"`
	ResendAvailableIn int    `json:"resendAvailableIn"`
}

// RegisterRoutes registers the auth routes under /auth.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/otp/verify", h.VerifyOtp)
		r.Post("/otp/resend", h.ResendOtp)
		r.Get("/captcha", h.Captcha)
		r.Get("/status", h.Status)
		r.Post("/logout", h.Logout)
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(h.logger, w, err, "")
		return
	}

	res := h.auth.Login(r.Context(), sessionIDFrom(r.Context()), service.LoginInput{
		NationalID:      req.NationalID,
		Phone:           req.Phone,
		ConsentAccepted: req.ConsentAccepted,
	})
	if !res.Success {
		setRetryAfter(w, res.RetryAfter)
		respondWithKind(h.logger, w, res.Kind, res.Message, nil)
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(loginData{
		MaskedPhone: res.MaskedPhone,
		DevCode:     res.EchoCode,
	}, res.Message))
}

func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(h.logger, w, err, "")
		return
	}

	res := h.auth.VerifyOtp(r.Context(), sessionIDFrom(r.Context()), req.Code, req.ChallengeAnswer)
	data := verifyData{
		Token:             res.Token,
		ChallengeRequired: res.ChallengeRequired,
		ChallengeImage:    res.ChallengeImage,
		RemainingAttempts: res.RemainingAttempts,
	}
	if !res.Success {
		respondWithKind(h.logger, w, res.Kind, res.Message, data)
		return
	}
	data.ExpiresAt = &res.ExpiresAt
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(data, res.Message))
}

func (h *AuthHandler) ResendOtp(w http.ResponseWriter, r *http.Request) {
	res := h.auth.ResendOtp(r.Context(), sessionIDFrom(r.Context()))
	if !res.Success {
		setRetryAfter(w, res.RetryAfter)
		respondWithKind(h.logger, w, res.Kind, res.Message, nil)
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(resendData{
		ChallengeRequired: res.ChallengeRequired,
		DevCode:           res.EchoCode,
	}, res.Message))
}

// Captcha returns the PNG directly, or base64 inside the envelope with ?format=json.
func (h *AuthHandler) Captcha(w http.ResponseWriter, r *http.Request) {
	res := h.auth.GetCaptcha(r.Context(), sessionIDFrom(r.Context()))
	if res.Kind != models.KindNone {
		respondWithKind(h.logger, w, res.Kind, res.Message, nil)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		respondWithJSON(h.logger, w, http.StatusOK, successResponse(captchaData{Image: res.ChallengeImage}, res.Message))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.ChallengeImage); err != nil {
		h.logger.Debug("Failed to write captcha", util.ErrorField(err))
	}
}

func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.auth.Status(r.Context(), sessionIDFrom(r.Context()))
	if err != nil {
		respondWithError(h.logger, w, err, "Your session has ended. Please log in again.")
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(statusData{
		HasIdentity:       st.HasIdentity,
		Authenticated:     st.Authenticated,
		ConsentGranted:    st.ConsentGranted,
		State:             string(st.State),
		ChallengeRequired: st.ChallengeRequired,
		RemainingAttempts: st.RemainingAttempts,
		MaskedPhone:       st.MaskedPhone,
		ResendAvailableIn: int(st.ResendAvailableIn.Round(time.Second) / time.Second),
	}, ""))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), sessionIDFrom(r.Context())); err != nil {
		respondWithError(h.logger, w, err, "The service is temporarily unavailable. Please try again.")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Logged out."))
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d <= 0 {
		return
	}
	secs := max(int((d+time.Second-1)/time.Second), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}
