package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/park285/solmate-arena/internal/arena"
	"github.com/park285/solmate-arena/internal/invite"
	"github.com/park285/solmate-arena/internal/match"
	"github.com/park285/solmate-arena/internal/queue"
	"github.com/park285/solmate-arena/internal/rules"
	"github.com/park285/solmate-arena/pkg/wire"
)

// handlerFunc processes one inbound message for one identity. A returned
// error becomes an error event on the sender's connection only.
type handlerFunc func(ctx context.Context, svc *arena.Service, identity string, data json.RawMessage) error

// handlers is the dispatch table: inbound message tag to typed handler.
var handlers = map[string]handlerFunc{
	wire.MsgQueueJoin: func(ctx context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		var req struct {
			TimeControlMinutes int    `json:"timeControlMinutes"`
			Tier               string `json:"tier"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return errMalformed
		}
		return svc.JoinQueue(ctx, identity, req.TimeControlMinutes, req.Tier)
	},
	wire.MsgQueueLeave: func(_ context.Context, svc *arena.Service, identity string, _ json.RawMessage) error {
		svc.LeaveQueue(identity)
		return nil
	},
	wire.MsgMatchMove: func(_ context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		var req struct {
			MatchID   string `json:"matchId"`
			From      string `json:"from"`
			To        string `json:"to"`
			Promotion string `json:"promotion"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return errMalformed
		}
		return svc.Move(identity, wire.MatchMove{
			MatchID:   req.MatchID,
			From:      req.From,
			To:        req.To,
			Promotion: req.Promotion,
		})
	},
	wire.MsgMatchResign: func(_ context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		matchID, err := matchRef(data)
		if err != nil {
			return err
		}
		return svc.Resign(identity, matchID)
	},
	wire.MsgMatchOfferDraw: func(_ context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		matchID, err := matchRef(data)
		if err != nil {
			return err
		}
		return svc.OfferDraw(identity, matchID)
	},
	wire.MsgMatchAcceptDraw: func(_ context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		matchID, err := matchRef(data)
		if err != nil {
			return err
		}
		return svc.AcceptDraw(identity, matchID)
	},
	wire.MsgMatchDeclineDraw: func(_ context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		matchID, err := matchRef(data)
		if err != nil {
			return err
		}
		return svc.DeclineDraw(identity, matchID)
	},
	wire.MsgMatchQuickSignal: func(_ context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		var req struct {
			MatchID  string `json:"matchId"`
			SignalID string `json:"signalId"`
			Category string `json:"category"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return errMalformed
		}
		return svc.QuickSignal(identity, wire.QuickSignal{
			MatchID:  req.MatchID,
			SignalID: req.SignalID,
			Category: req.Category,
		})
	},
	wire.MsgInviteCreate: func(ctx context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		var req struct {
			TimeControlMinutes int `json:"timeControlMinutes"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return errMalformed
		}
		return svc.InviteCreate(ctx, identity, req.TimeControlMinutes)
	},
	wire.MsgInviteJoin: func(ctx context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		code, err := inviteCode(data)
		if err != nil {
			return err
		}
		return svc.InviteJoin(ctx, identity, code)
	},
	wire.MsgInviteCancel: func(ctx context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		code, err := inviteCode(data)
		if err != nil {
			return err
		}
		return svc.InviteCancel(ctx, identity, code)
	},
	wire.MsgInviteCheck: func(ctx context.Context, svc *arena.Service, identity string, data json.RawMessage) error {
		code, err := inviteCode(data)
		if err != nil {
			return err
		}
		svc.InviteCheck(ctx, identity, code)
		return nil
	},
}

var (
	errMalformed      = errors.New("malformed payload")
	errUnknownMessage = errors.New("unknown message type")
)

func matchRef(data json.RawMessage) (string, error) {
	var req struct {
		MatchID string `json:"matchId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return "", errMalformed
	}
	return req.MatchID, nil
}

func inviteCode(data json.RawMessage) (string, error) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return "", errMalformed
	}
	return req.Code, nil
}

// errMessage maps internal sentinels to client-facing text. Anything
// unrecognized stays generic so internals never leak.
func errMessage(err error) string {
	switch {
	case errors.Is(err, errMalformed):
		return "malformed payload"
	case errors.Is(err, errUnknownMessage):
		return "unknown message type"
	case errors.Is(err, arena.ErrAlreadyEngaged):
		return "already queued or in a match"
	case errors.Is(err, arena.ErrEntitlementRequired):
		return "premium entitlement required"
	case errors.Is(err, arena.ErrCreatorUnavailable):
		return "invite creator is not connected"
	case errors.Is(err, arena.ErrUnknownSignal):
		return "unknown quick signal"
	case errors.Is(err, arena.ErrUnknownMatch):
		return "unknown match"
	case errors.Is(err, match.ErrMatchNotActive):
		return "match is not active"
	case errors.Is(err, match.ErrNotYourTurn):
		return "not your turn"
	case errors.Is(err, match.ErrRateLimited):
		return "moving too fast"
	case errors.Is(err, match.ErrNotParticipant):
		return "not a participant of this match"
	case errors.Is(err, match.ErrNoDrawOffer):
		return "no draw offer to accept"
	case errors.Is(err, rules.ErrIllegalMove):
		return "illegal move"
	case errors.Is(err, queue.ErrInvalidTimeControl):
		return "invalid time control"
	case errors.Is(err, queue.ErrInvalidTier):
		return "invalid tier"
	case errors.Is(err, invite.ErrNotFound):
		return "invite not found"
	case errors.Is(err, invite.ErrExpired):
		return "invite expired"
	case errors.Is(err, invite.ErrSelfJoin):
		return "cannot join your own invite"
	case errors.Is(err, invite.ErrNotCreator):
		return "only the creator may cancel"
	case errors.Is(err, invite.ErrNotWaiting):
		return "invite is no longer open"
	default:
		return "internal error"
	}
}
