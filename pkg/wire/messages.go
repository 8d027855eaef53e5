package wire

import "encoding/json"

// Envelope is the frame exchanged in both directions over the socket.
// Data holds the type-specific payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client → server message types.
const (
	MsgQueueJoin        = "queue.join"
	MsgQueueLeave       = "queue.leave"
	MsgMatchMove        = "match.move"
	MsgMatchResign      = "match.resign"
	MsgMatchOfferDraw   = "match.offerDraw"
	MsgMatchAcceptDraw  = "match.acceptDraw"
	MsgMatchDeclineDraw = "match.declineDraw"
	MsgMatchQuickSignal = "match.quickSignal"
	MsgInviteCreate     = "invite.create"
	MsgInviteJoin       = "invite.join"
	MsgInviteCancel     = "invite.cancel"
	MsgInviteCheck      = "invite.check"
)

// QueueJoin asks to enter a matchmaking bucket.
type QueueJoin struct {
	TimeControlMinutes int    `json:"timeControlMinutes"`
	Tier               string `json:"tier"`
}

// MatchMove proposes a move in an active match.
type MatchMove struct {
	MatchID   string `json:"matchId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// MatchRef carries just a match id (resign, draw signalling).
type MatchRef struct {
	MatchID string `json:"matchId"`
}

// QuickSignal requests a preset reaction broadcast.
type QuickSignal struct {
	MatchID  string `json:"matchId"`
	SignalID string `json:"signalId"`
	Category string `json:"category"`
}

// InviteCreate asks for a new private-match code.
type InviteCreate struct {
	TimeControlMinutes int `json:"timeControlMinutes"`
}

// InviteCode references an existing invitation.
type InviteCode struct {
	Code string `json:"code"`
}
