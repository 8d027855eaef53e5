package match

import (
	"context"
	"errors"
	"time"

	"github.com/park285/solmate-arena/pkg/wire"
)

// Side is a parity in a contest. Side 0 moves first.
type Side int

const (
	Side0 Side = 0
	Side1 Side = 1
)

func (s Side) String() string {
	if s == Side0 {
		return "side0"
	}
	return "side1"
}

func (s Side) Other() Side { return 1 - s }

// Status is the match lifecycle phase. Transitions are monotonic.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Result of a finished match.
type Result string

const (
	ResultSide0Wins Result = "side0_wins"
	ResultSide1Wins Result = "side1_wins"
	ResultDraw      Result = "draw"
)

// EndReason explains how a match terminated.
type EndReason string

const (
	ReasonCheckmate   EndReason = "checkmate"
	ReasonResignation EndReason = "resignation"
	ReasonTimeout     EndReason = "timeout"
	ReasonAgreement   EndReason = "agreement"
	ReasonAbandonment EndReason = "abandonment"
)

const (
	TierStandard = "standard"
	TierPremium  = "premium"
)

// UntimedClock marks an unlimited clock.
const UntimedClock int64 = -1

var (
	ErrMatchNotActive = errors.New("match not active")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrRateLimited    = errors.New("move rate limited")
	ErrNotParticipant = errors.New("not a participant")
	ErrNoDrawOffer    = errors.New("no draw offer outstanding")
)

// Notifier delivers one event to one identity. Delivery is best effort; a
// missing connection drops the event.
type Notifier interface {
	Notify(identity, event string, payload any)
}

// Recorder persists a finished match snapshot. Retryable failures return an
// error; the caller retries without re-mutating the match.
type Recorder interface {
	Record(ctx context.Context, snap *wire.MatchSnapshot) error
}

// RewardService grants win/loss rewards and answers entitlement checks.
type RewardService interface {
	Apply(ctx context.Context, identity string, won bool, tier string) (*wire.Rewards, error)
}

// Deps are the collaborators injected into every match.
type Deps struct {
	Rules   RulesEngine
	Notify  Notifier
	History Recorder
	Rewards RewardService

	// OnFinished runs after the outcome has been broadcast. Used by the
	// owning service to release registry pointers and schedule eviction.
	OnFinished func(matchID string)

	// Now and RateLimit default to time.Now and 500ms.
	Now       func() time.Time
	RateLimit time.Duration
}
