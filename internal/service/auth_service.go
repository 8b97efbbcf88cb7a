package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"portal-auth/internal/consent"
	"portal-auth/internal/escalation"
	"portal-auth/internal/identity"
	"portal-auth/internal/metrics"
	"portal-auth/internal/models"
	"portal-auth/internal/otp"
	"portal-auth/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// lockWait bounds how long a request queues behind another one on the same session.
const lockWait = 20 * time.Second

const (
	msgConsentRequired = "Please accept the personal data notice to continue."
	msgInvalidInput    = "Please check the national ID and phone number."
	msgCodeSent        = "A verification code has been sent to your phone."
	msgCodeInvalid     = "The code could not be verified."
	msgCodeFormat      = "The code must be 6 digits."
	msgCodeExpired     = "The code has expired. Please request a new one."
	msgNoCode          = "There is no active code. Please request a new one."
	msgLocked          = "Too many attempts. Please request a new code."
	msgChallenge       = "Please complete the verification image."
	msgNewCodeSent     = "Too many attempts. A new code has been sent to your phone."
	msgStartLogin      = "Your session has ended. Please log in again."
	msgSessionBusy     = "Another request is in progress. Please try again."
	msgDeliveryFailed  = "We could not send the code right now. Please try again."
	msgServiceDown     = "The service is temporarily unavailable. Please try again."
	msgVerified        = "Login successful."
	msgCaptchaReady    = "A new verification image has been generated."
)

// SessionStore persists sessions. Get returns models.ErrSessionNotFound for
// unknown or idle-expired sessions.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session) error
	Delete(ctx context.Context, id string) error
}

// ResendThrottle enforces the minimum spacing between delivered codes.
type ResendThrottle interface {
	Acquire(ctx context.Context, key string, cooldown time.Duration) (bool, error)
	// Release hands back a cooldown whose code was never delivered.
	Release(ctx context.Context, key string) error
	Remaining(ctx context.Context, key string) (time.Duration, error)
}

type ChallengeGenerator interface {
	Generate() (models.HumanChallenge, error)
}

type TokenIssuer interface {
	Issue(identifier string) (models.AuthToken, error)
}

type ConsentService interface {
	Persist(ctx context.Context, customerID string, accepted bool) (consent.Receipt, error)
}

type EventPublisher interface {
	Publish(evt models.AuthEvent, identifier string)
}

type LoginInput struct {
	NationalID      string
	Phone           string
	ConsentAccepted bool
}

type LoginResult struct {
	Success     bool
	MaskedPhone string
	Message     string
	Kind        models.ErrorKind
	// EchoCode is only set in development with echo enabled.
	EchoCode   string
	RetryAfter time.Duration
}

type VerifyResult struct {
	Success           bool
	Token             string
	ExpiresAt         time.Time
	ChallengeRequired bool
	ChallengeImage    []byte
	RemainingAttempts int
	Message           string
	Kind              models.ErrorKind
}

type ResendResult struct {
	Success           bool
	Message           string
	Kind              models.ErrorKind
	EchoCode          string
	ChallengeRequired bool
	RetryAfter        time.Duration
}

type CaptchaResult struct {
	ChallengeImage []byte
	Message        string
	Kind           models.ErrorKind
}

type StatusResult struct {
	HasIdentity       bool
	Authenticated     bool
	ConsentGranted    bool
	State             models.EscalationState
	ChallengeRequired bool
	RemainingAttempts int
	MaskedPhone       string
	ResendAvailableIn time.Duration
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Sessions  SessionStore
	Throttle  ResendThrottle
	Identity  identity.Validator
	Issuer    otp.Issuer
	Verifier  otp.Verifier
	Policy    *escalation.Policy
	Captcha   ChallengeGenerator
	Tokens    TokenIssuer
	Consent   ConsentService
	Locks     *SessionLocks
	Events    EventPublisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Cooldown  time.Duration
	Country   string
	SessionID func() string
	Now       func() time.Time
}

// AuthService runs the login, verification and escalation flow. Every
// operation on a session runs inside that session's critical section and
// returns a typed result.
type AuthService struct {
	AuthDeps
}

func NewAuthService(deps AuthDeps) *AuthService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SessionID == nil {
		deps.SessionID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = util.Named("auth")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if deps.Country == "" {
		deps.Country = util.DefaultCountryCode
	}
	return &AuthService{AuthDeps: deps}
}

// EnsureSession returns id when it names a live session, or creates a new one.
func (s *AuthService) EnsureSession(ctx context.Context, id string) (string, error) {
	if id != "" {
		if _, err := s.Sessions.Get(ctx, id); err == nil {
			return id, nil
		} else if !errors.Is(err, models.ErrSessionNotFound) {
			return "", fmt.Errorf("%w: %v", models.ErrUpstream, err)
		}
	}

	now := s.Now()
	sess := &models.Session{
		ID:         s.SessionID(),
		Escalation: models.Escalation{State: models.StateNormal},
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}
	return sess.ID, nil
}

// Login validates the identity, records consent and delivers a code.
func (s *AuthService) Login(ctx context.Context, sessionID string, in LoginInput) LoginResult {
	phone, err := util.NormalizePhone(in.Phone)
	if err != nil || !util.IsNationalID(in.NationalID) {
		s.Metrics.IncLogin("invalid")
		return LoginResult{Message: msgInvalidInput, Kind: models.KindValidation}
	}

	sess, unlock, res := s.open(ctx, sessionID)
	if res.Kind != models.KindNone {
		return LoginResult{Message: res.Message, Kind: res.Kind}
	}
	defer unlock()

	if !in.ConsentAccepted && !sess.ConsentGranted {
		s.Metrics.IncLogin("consent_required")
		return LoginResult{Message: msgConsentRequired, Kind: models.KindValidation}
	}

	start := s.Now()
	idRes := s.Identity.Validate(ctx, in.NationalID, phone)
	s.Metrics.ObserveUpstream("identity", start)
	if !idRes.Success {
		s.Metrics.IncLogin(string(idRes.Kind))
		s.publish(ctx, sess, models.EventLoginFailed, idRes.Kind, in.NationalID)
		return LoginResult{Message: idRes.Message, Kind: idRes.Kind}
	}

	if in.ConsentAccepted && !sess.ConsentGranted {
		if _, err := s.Consent.Persist(ctx, idRes.CustomerID, true); err != nil {
			s.Logger.Error("Failed to persist consent", util.SessionID(sess.ID), zap.Error(err))
			s.Metrics.IncLogin(string(models.KindUpstream))
			return LoginResult{Message: msgServiceDown, Kind: models.KindUpstream}
		}
		sess.ConsentGranted = true
	}

	prev := *sess
	// a new identity on this session drops any earlier authentication
	if sess.NationalID != in.NationalID {
		sess.AuthToken = nil
	}
	sess.NationalID = in.NationalID
	sess.Phone = phone
	sess.CustomerID = idRes.CustomerID

	issued, fail := s.deliver(ctx, sess)
	if fail != nil {
		*sess = prev
		s.save(ctx, sess)
		s.Metrics.IncLogin(string(fail.Kind))
		return LoginResult{Message: fail.Message, Kind: fail.Kind, RetryAfter: fail.RetryAfter}
	}

	if err := s.save(ctx, sess); err != nil {
		return LoginResult{Message: msgServiceDown, Kind: models.KindUpstream}
	}

	s.Metrics.IncLogin("success")
	s.publish(ctx, sess, models.EventLoginSucceeded, models.KindNone, sess.NationalID)
	return LoginResult{
		Success:     true,
		MaskedPhone: util.MaskPhone(phone, s.Country),
		Message:     msgCodeSent,
		EchoCode:    issued.Code,
	}
}

// VerifyOtp gates the attempt through the escalation policy, verifies the code
// and issues a token on success.
func (s *AuthService) VerifyOtp(ctx context.Context, sessionID, code, challengeAnswer string) VerifyResult {
	if !util.IsOtpCode(code) {
		return VerifyResult{Message: msgCodeFormat, Kind: models.KindValidation}
	}

	sess, unlock, res := s.open(ctx, sessionID)
	if res.Kind != models.KindNone {
		return VerifyResult{Message: res.Message, Kind: res.Kind}
	}
	defer unlock()

	if !sess.HasIdentity() {
		return VerifyResult{Message: msgNoCode, Kind: models.KindNotFound}
	}

	now := s.Now()
	esc := &sess.Escalation

	gate := s.Policy.Gate(esc, challengeAnswer, now)
	if !gate.Proceed {
		kind := models.KindOf(gate.Err)
		msg := msgChallenge
		if kind == models.KindRateLimit {
			msg = msgLocked
		} else {
			s.publish(ctx, sess, models.EventChallengeFailed, kind, sess.NationalID)
		}
		s.Metrics.IncVerification("gated")
		res := VerifyResult{Message: msg, Kind: kind}
		if gate.NeedChallenge {
			res.ChallengeImage, _ = s.attachChallenge(sess)
		}
		return s.reject(ctx, sess, res)
	}

	start := s.Now()
	err := s.Verifier.Verify(ctx, sess.NationalID, code)
	s.Metrics.ObserveUpstream("otp_verify", start)

	switch models.KindOf(err) {
	case models.KindNone:
		return s.succeed(ctx, sess)

	case models.KindMismatch:
		out, perr := s.Policy.OnFailure(esc)
		if perr != nil {
			s.Logger.Error("Escalation policy rejected failure", util.SessionID(sess.ID), zap.Error(perr))
			return VerifyResult{Message: msgServiceDown, Kind: models.KindInternal}
		}
		s.Metrics.IncVerification("mismatch")
		s.publish(ctx, sess, models.EventOtpFailed, models.KindMismatch, sess.NationalID)

		msg := msgCodeInvalid + " Remaining attempts: " + strconv.Itoa(out.Remaining) + "."
		switch {
		case out.IssueNewCode:
			msg = s.autoResend(ctx, sess)
		case out.Locked:
			s.Metrics.IncEscalation("locked")
			msg = msgLocked
		}
		if out.NeedChallenge {
			s.publish(ctx, sess, models.EventChallengeRequired, models.KindMismatch, sess.NationalID)
		}
		return s.reject(ctx, sess, VerifyResult{Message: msg, Kind: models.KindMismatch})

	case models.KindExpired:
		s.Metrics.IncVerification("expired")
		return s.reject(ctx, sess, VerifyResult{Message: msgCodeExpired, Kind: models.KindExpired})

	case models.KindNotFound:
		s.Metrics.IncVerification("not_found")
		return s.reject(ctx, sess, VerifyResult{Message: msgNoCode, Kind: models.KindNotFound})

	default:
		s.Logger.Warn("OTP verification failed upstream", util.SessionID(sess.ID), zap.Error(err))
		s.Metrics.IncVerification("upstream")
		return s.reject(ctx, sess, VerifyResult{Message: msgServiceDown, Kind: models.KindUpstream})
	}
}

// ResendOtp delivers a fresh code for the session's identity. The counter is
// reset; the challenge latch is kept.
func (s *AuthService) ResendOtp(ctx context.Context, sessionID string) ResendResult {
	sess, unlock, res := s.open(ctx, sessionID)
	if res.Kind != models.KindNone {
		return ResendResult{Message: res.Message, Kind: res.Kind}
	}
	defer unlock()

	if !sess.HasIdentity() {
		return ResendResult{Message: msgStartLogin, Kind: models.KindNotFound}
	}

	issued, fail := s.deliver(ctx, sess)
	if fail != nil {
		s.save(ctx, sess)
		return ResendResult{Message: fail.Message, Kind: fail.Kind, RetryAfter: fail.RetryAfter}
	}

	if err := s.save(ctx, sess); err != nil {
		return ResendResult{Message: msgServiceDown, Kind: models.KindUpstream}
	}
	s.publish(ctx, sess, models.EventOtpResent, models.KindNone, sess.NationalID)
	return ResendResult{
		Success:           true,
		Message:           msgCodeSent,
		EchoCode:          issued.Code,
		ChallengeRequired: s.Policy.ChallengeRequired(sess.Escalation),
	}
}

// GetCaptcha renders a new human challenge and replaces any earlier answer.
func (s *AuthService) GetCaptcha(ctx context.Context, sessionID string) CaptchaResult {
	sess, unlock, res := s.open(ctx, sessionID)
	if res.Kind != models.KindNone {
		return CaptchaResult{Message: res.Message, Kind: res.Kind}
	}
	defer unlock()

	img, ok := s.attachChallenge(sess)
	if !ok {
		return CaptchaResult{Message: msgServiceDown, Kind: models.KindInternal}
	}
	if err := s.save(ctx, sess); err != nil {
		return CaptchaResult{Message: msgServiceDown, Kind: models.KindUpstream}
	}
	return CaptchaResult{ChallengeImage: img, Message: msgCaptchaReady}
}

// Logout destroys the session and any code outstanding for its identity.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	sess, unlock, res := s.open(ctx, sessionID)
	if res.Kind == models.KindNotFound {
		return nil
	}
	if res.Kind != models.KindNone {
		return fmt.Errorf("%w: %s", models.ErrUpstream, res.Message)
	}
	defer unlock()

	if sess.HasIdentity() {
		if err := s.Verifier.Discard(ctx, sess.NationalID); err != nil {
			s.Logger.Warn("Failed to discard challenge on logout", util.SessionID(sess.ID), zap.Error(err))
		}
	}
	if err := s.Sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}
	s.publish(ctx, sess, models.EventLogout, models.KindNone, sess.NationalID)
	return nil
}

// Authenticate resolves a bearer token to its session. The token must belong to
// the session and be unexpired.
func (s *AuthService) Authenticate(ctx context.Context, sessionID, token string) (*models.Session, error) {
	if sessionID == "" || token == "" {
		return nil, models.ErrUnauthorized
	}

	sess, unlock, res := s.open(ctx, sessionID)
	if res.Kind == models.KindNotFound {
		return nil, models.ErrUnauthorized
	}
	if res.Kind != models.KindNone {
		return nil, fmt.Errorf("%w: %s", models.ErrUpstream, res.Message)
	}
	defer unlock()

	if !sess.Authenticated(s.Now()) ||
		subtle.ConstantTimeCompare([]byte(sess.AuthToken.Value), []byte(token)) != 1 {
		return nil, models.ErrUnauthorized
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}
	return sess, nil
}

// Status reports where the session is in the flow. It does not touch the
// session.
func (s *AuthService) Status(ctx context.Context, sessionID string) (StatusResult, error) {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return StatusResult{}, err
		}
		return StatusResult{}, fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}

	st := StatusResult{
		HasIdentity:       sess.HasIdentity(),
		Authenticated:     sess.Authenticated(s.Now()),
		ConsentGranted:    sess.ConsentGranted,
		State:             sess.Escalation.State,
		ChallengeRequired: s.Policy.ChallengeRequired(sess.Escalation),
		RemainingAttempts: s.Policy.Remaining(sess.Escalation),
	}
	if st.State == "" {
		st.State = models.StateNormal
	}
	if st.HasIdentity {
		st.MaskedPhone = util.MaskPhone(sess.Phone, s.Country)
		if wait, err := s.Throttle.Remaining(ctx, sess.NationalID); err == nil {
			st.ResendAvailableIn = wait
		}
	}
	return st, nil
}

type clientIPKey struct{}

// WithClientIP stores the caller's address for the audit trail.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

type openResult struct {
	Kind    models.ErrorKind
	Message string
}

// open enters the session's critical section and loads it. On failure the
// lock is already released.
func (s *AuthService) open(ctx context.Context, sessionID string) (*models.Session, func(), openResult) {
	if sessionID == "" {
		return nil, nil, openResult{Kind: models.KindNotFound, Message: msgStartLogin}
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	unlock, err := s.Locks.Lock(lockCtx, sessionID)
	if err != nil {
		return nil, nil, openResult{Kind: models.KindRateLimit, Message: msgSessionBusy}
	}

	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		unlock()
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, nil, openResult{Kind: models.KindNotFound, Message: msgStartLogin}
		}
		s.Logger.Error("Failed to load session", util.SessionID(sessionID), zap.Error(err))
		return nil, nil, openResult{Kind: models.KindUpstream, Message: msgServiceDown}
	}
	return sess, unlock, openResult{}
}

type deliveryFailure struct {
	Kind       models.ErrorKind
	Message    string
	RetryAfter time.Duration
}

// deliver issues a code for the session's identity under the resend cooldown
// and applies resend semantics to the escalation state.
func (s *AuthService) deliver(ctx context.Context, sess *models.Session) (otp.Issued, *deliveryFailure) {
	ok, err := s.Throttle.Acquire(ctx, sess.NationalID, s.Cooldown)
	if err != nil {
		s.Logger.Error("Resend throttle unavailable", util.SessionID(sess.ID), zap.Error(err))
		return otp.Issued{}, &deliveryFailure{Kind: models.KindUpstream, Message: msgServiceDown}
	}
	if !ok {
		wait, _ := s.Throttle.Remaining(ctx, sess.NationalID)
		secs := max(int(wait.Round(time.Second)/time.Second), 1)
		return otp.Issued{}, &deliveryFailure{
			Kind:       models.KindRateLimit,
			Message:    "Please wait " + strconv.Itoa(secs) + " seconds before requesting a new code.",
			RetryAfter: wait,
		}
	}

	issued, err := s.issue(ctx, sess)
	if err != nil {
		if rerr := s.Throttle.Release(ctx, sess.NationalID); rerr != nil {
			s.Logger.Warn("Failed to release resend cooldown", util.SessionID(sess.ID), zap.Error(rerr))
		}
		return otp.Issued{}, &deliveryFailure{Kind: models.KindUpstream, Message: msgDeliveryFailed}
	}

	if err := s.Policy.OnResend(&sess.Escalation); err != nil {
		s.Logger.Error("Escalation policy rejected resend", util.SessionID(sess.ID), zap.Error(err))
		return otp.Issued{}, &deliveryFailure{Kind: models.KindInternal, Message: msgServiceDown}
	}
	return issued, nil
}

func (s *AuthService) issue(ctx context.Context, sess *models.Session) (otp.Issued, error) {
	start := s.Now()
	issued, err := s.Issuer.Issue(ctx, sess.NationalID, sess.Phone)
	s.Metrics.ObserveUpstream("otp_issue", start)
	if err != nil {
		s.Logger.Warn("OTP delivery failed", util.SessionID(sess.ID), zap.Error(err))
		s.Metrics.IncOtpIssued("failed")
		s.publish(ctx, sess, models.EventOtpDeliveryFailed, models.KindOf(err), sess.NationalID)
		return otp.Issued{}, err
	}
	s.Metrics.IncOtpIssued("delivered")
	s.publish(ctx, sess, models.EventOtpIssued, models.KindNone, sess.NationalID)
	return issued, nil
}

// autoResend replaces the code after the ceiling is hit in auto mode. The
// cooldown does not apply. If delivery fails the session parks in the locked
// state.
func (s *AuthService) autoResend(ctx context.Context, sess *models.Session) string {
	if _, err := s.issue(ctx, sess); err != nil {
		if perr := s.Policy.OnAutoResendFailed(&sess.Escalation); perr != nil {
			s.Logger.Error("Escalation policy rejected lock", util.SessionID(sess.ID), zap.Error(perr))
		}
		s.Metrics.IncEscalation("locked")
		return msgLocked
	}
	s.Metrics.IncEscalation("auto_resend")
	return msgNewCodeSent
}

func (s *AuthService) succeed(ctx context.Context, sess *models.Session) VerifyResult {
	if err := s.Policy.OnSuccess(&sess.Escalation); err != nil {
		s.Logger.Error("Escalation policy rejected success", util.SessionID(sess.ID), zap.Error(err))
		return VerifyResult{Message: msgServiceDown, Kind: models.KindInternal}
	}

	tok, err := s.Tokens.Issue(sess.NationalID)
	if err != nil {
		s.Logger.Error("Token issuance failed, resetting session", util.SessionID(sess.ID), zap.Error(err))
		if derr := s.Sessions.Delete(ctx, sess.ID); derr != nil {
			s.Logger.Warn("Failed to reset session", util.SessionID(sess.ID), zap.Error(derr))
		}
		s.Metrics.IncVerification("token_failed")
		return VerifyResult{Message: msgStartLogin, Kind: models.KindInternal}
	}

	sess.AuthToken = &tok
	if err := s.save(ctx, sess); err != nil {
		return VerifyResult{Message: msgServiceDown, Kind: models.KindUpstream}
	}

	s.Metrics.IncVerification("success")
	s.publish(ctx, sess, models.EventOtpVerified, models.KindNone, sess.NationalID)
	return VerifyResult{
		Success:   true,
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
		Message:   msgVerified,
	}
}

// reject finishes a failed verification: unless the caller already attached
// one, a fresh human challenge is attached whenever the latch is set and no
// answer is outstanding. Then the session is saved.
func (s *AuthService) reject(ctx context.Context, sess *models.Session, res VerifyResult) VerifyResult {
	if s.Policy.ChallengeRequired(sess.Escalation) {
		res.ChallengeRequired = true
		if res.ChallengeImage == nil && sess.Escalation.ChallengeAnswer == "" {
			res.ChallengeImage, _ = s.attachChallenge(sess)
		}
	}
	res.RemainingAttempts = s.Policy.Remaining(sess.Escalation)

	if err := s.save(ctx, sess); err != nil {
		return VerifyResult{Message: msgServiceDown, Kind: models.KindUpstream}
	}
	return res
}

func (s *AuthService) attachChallenge(sess *models.Session) ([]byte, bool) {
	ch, err := s.Captcha.Generate()
	if err != nil {
		s.Logger.Error("Failed to generate challenge", util.SessionID(sess.ID), zap.Error(err))
		return nil, false
	}
	s.Policy.AttachChallenge(&sess.Escalation, ch.Answer, s.Now())
	s.Metrics.IncCaptcha()
	return ch.Image, true
}

func (s *AuthService) save(ctx context.Context, sess *models.Session) error {
	sess.LastSeenAt = s.Now()
	if err := s.Sessions.Save(ctx, sess); err != nil {
		s.Logger.Error("Failed to save session", util.SessionID(sess.ID), zap.Error(err))
		return err
	}
	return nil
}

func (s *AuthService) publish(ctx context.Context, sess *models.Session, typ models.AuthEventType, outcome models.ErrorKind, identifier string) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(models.AuthEvent{
		EventType:  typ,
		SessionID:  sess.ID,
		CustomerID: sess.CustomerID,
		IPAddress:  ClientIP(ctx),
		Outcome:    outcome,
		Attempts:   sess.Escalation.FailedAttempts,
		State:      string(sess.Escalation.State),
	}, identifier)
}
