// Package escalation owns the per-session bot-mitigation state machine. Policy is
// the only code that mutates a models.Escalation.
package escalation

import (
	"fmt"
	"time"

	"portal-auth/internal/captcha"
	"portal-auth/internal/config"
	"portal-auth/internal/models"
)

const defaultChallengeTTL = 5 * time.Minute

// GateDecision is the outcome of checking a verification attempt before the OTP
// is evaluated.
type GateDecision struct {
	Proceed bool
	// NeedChallenge asks the caller to attach and return a fresh human challenge.
	NeedChallenge bool
	Err           error
}

// FailureOutcome tells the caller what to do after a failed OTP.
type FailureOutcome struct {
	NeedChallenge bool
	IssueNewCode  bool
	Locked        bool
	Remaining     int
}

type Policy struct {
	ceiling      int
	autoResend   bool
	challengeTTL time.Duration
}

func NewPolicy(cfg config.AuthConfig) *Policy {
	p := &Policy{
		ceiling:      max(cfg.AttemptCeiling, 1),
		autoResend:   cfg.AutoResendOnLockout,
		challengeTTL: cfg.ChallengeTTL,
	}
	if p.challengeTTL <= 0 {
		p.challengeTTL = defaultChallengeTTL
	}
	return p
}

func (p *Policy) Ceiling() int { return p.ceiling }

func (p *Policy) AutoResend() bool { return p.autoResend }

// allowed lists every legal state change besides self transitions.
var allowed = map[models.EscalationState][]models.EscalationState{
	models.StateNormal:              {models.StateChallengePending, models.StateLockedPendingResend},
	models.StateChallengePending:    {models.StateNormal, models.StateLockedPendingResend},
	models.StateLockedPendingResend: {models.StateChallengePending},
}

func transition(esc *models.Escalation, to models.EscalationState) error {
	from := esc.State
	if from == "" {
		from = models.StateNormal
	}
	if from == to {
		esc.State = to
		return nil
	}
	for _, next := range allowed[from] {
		if next == to {
			esc.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidState, from, to)
}

// Gate runs before OTP evaluation. In ChallengePending a matching answer is
// consumed; a missing, stale or wrong answer rejects the attempt without
// touching the counter.
func (p *Policy) Gate(esc *models.Escalation, answer string, now time.Time) GateDecision {
	switch esc.State {
	case models.StateLockedPendingResend:
		// only a resend unlocks; a challenge cannot help here
		return GateDecision{Err: fmt.Errorf("%w: request a new code", models.ErrRateLimited)}
	case models.StateChallengePending:
		if esc.ChallengeAnswer == "" || now.Sub(esc.ChallengeIssuedAt) > p.challengeTTL {
			esc.ChallengeAnswer = ""
			return GateDecision{NeedChallenge: true, Err: fmt.Errorf("%w: challenge expired", models.ErrMismatch)}
		}
		if answer == "" || !captcha.Matches(esc.ChallengeAnswer, answer) {
			// answers are single use
			esc.ChallengeAnswer = ""
			return GateDecision{NeedChallenge: true, Err: fmt.Errorf("%w: challenge answer", models.ErrMismatch)}
		}
		esc.ChallengeAnswer = ""
		return GateDecision{Proceed: true}
	default:
		return GateDecision{Proceed: true}
	}
}

// OnSuccess clears the latch and the counter.
func (p *Policy) OnSuccess(esc *models.Escalation) error {
	if err := transition(esc, models.StateNormal); err != nil {
		return err
	}
	esc.FailedAttempts = 0
	esc.ChallengeAnswer = ""
	esc.ChallengeIssuedAt = time.Time{}
	return nil
}

// OnFailure records one OTP mismatch.
func (p *Policy) OnFailure(esc *models.Escalation) (FailureOutcome, error) {
	if esc.State == models.StateLockedPendingResend {
		return FailureOutcome{}, fmt.Errorf("%w: failure recorded while locked", models.ErrInvalidState)
	}

	esc.FailedAttempts++
	if esc.FailedAttempts < p.ceiling {
		return FailureOutcome{
			NeedChallenge: esc.State == models.StateChallengePending,
			Remaining:     p.ceiling - esc.FailedAttempts,
		}, nil
	}

	if p.autoResend {
		if err := transition(esc, models.StateChallengePending); err != nil {
			return FailureOutcome{}, err
		}
		esc.FailedAttempts = 0
		return FailureOutcome{NeedChallenge: true, IssueNewCode: true, Remaining: p.ceiling}, nil
	}

	if err := transition(esc, models.StateLockedPendingResend); err != nil {
		return FailureOutcome{}, err
	}
	esc.FailedAttempts = p.ceiling
	return FailureOutcome{NeedChallenge: true, Locked: true}, nil
}

// OnAutoResendFailed parks the session until the user resends explicitly.
func (p *Policy) OnAutoResendFailed(esc *models.Escalation) error {
	if err := transition(esc, models.StateLockedPendingResend); err != nil {
		return err
	}
	esc.FailedAttempts = p.ceiling
	return nil
}

// OnResend resets the counter after a new code was delivered. It never clears
// the challenge latch.
func (p *Policy) OnResend(esc *models.Escalation) error {
	if esc.State == models.StateLockedPendingResend {
		if err := transition(esc, models.StateChallengePending); err != nil {
			return err
		}
	}
	esc.FailedAttempts = 0
	return nil
}

// AttachChallenge records the expected answer of a freshly generated challenge,
// discarding any previous one.
func (p *Policy) AttachChallenge(esc *models.Escalation, answer string, now time.Time) {
	esc.ChallengeAnswer = answer
	esc.ChallengeIssuedAt = now
}

func (p *Policy) Remaining(esc models.Escalation) int {
	return max(p.ceiling-esc.FailedAttempts, 0)
}

func (p *Policy) ChallengeRequired(esc models.Escalation) bool {
	return esc.State == models.StateChallengePending || esc.State == models.StateLockedPendingResend
}
