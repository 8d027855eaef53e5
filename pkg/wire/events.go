package wire

// Server → client event types.
const (
	EvtQueueJoined          = "queue.joined"
	EvtQueueLeft            = "queue.left"
	EvtMatchFound           = "match.found"
	EvtMatchMoved           = "match.moved"
	EvtMatchTimeUpdate      = "match.timeUpdate"
	EvtMatchEnded           = "match.ended"
	EvtOpponentDisconnected = "opponent.disconnected"
	EvtOpponentReconnected  = "opponent.reconnected"
	EvtMatchDrawOffered     = "match.drawOffered"
	EvtMatchDrawDeclined    = "match.drawDeclined"
	EvtMatchQuickSignal     = "match.quickSignal"
	EvtQuickSignalCooldown  = "quickSignal.cooldown"
	EvtInviteCreated        = "invite.created"
	EvtInviteCancelled      = "invite.cancelled"
	EvtInviteStatus         = "invite.status"
	EvtError                = "error"
)

// Clocks is remaining time per side in milliseconds. Untimed matches carry -1.
type Clocks struct {
	Side0 int64 `json:"side0"`
	Side1 int64 `json:"side1"`
}

// MoveInfo is one accepted move as broadcast and logged.
type MoveInfo struct {
	SAN  string `json:"san"`
	From string `json:"from"`
	To   string `json:"to"`
	Side string `json:"side"`
	At   int64  `json:"at"`
}

// MatchSnapshot is the full client-visible state of one match.
type MatchSnapshot struct {
	ID                 string            `json:"id"`
	TimeControlMinutes int               `json:"timeControlMinutes"`
	Tier               string            `json:"tier"`
	Position           string            `json:"position"`
	ClocksRemaining    Clocks            `json:"clocksRemaining"`
	ClockRunning       bool              `json:"clockRunning"`
	Turn               string            `json:"turn"`
	Status             string            `json:"status"`
	Result             string            `json:"result,omitempty"`
	EndReason          string            `json:"endReason,omitempty"`
	Sides              map[string]string `json:"sides"`
	Moves              []MoveInfo        `json:"moves"`
	StartedAt          int64             `json:"startedAt,omitempty"`
	FinishedAt         int64             `json:"finishedAt,omitempty"`
}

type QueueJoined struct {
	TimeControlMinutes int    `json:"timeControlMinutes"`
	Tier               string `json:"tier"`
	Position           int    `json:"position"`
}

type MatchFound struct {
	MatchID          string         `json:"matchId"`
	YourSide         string         `json:"yourSide"`
	OpponentIdentity string         `json:"opponentIdentity"`
	Snapshot         *MatchSnapshot `json:"snapshot"`
}

type MatchMoved struct {
	Move            MoveInfo `json:"move"`
	Position        string   `json:"position"`
	ClocksRemaining Clocks   `json:"clocksRemaining"`
	Turn            string   `json:"turn"`
	IsCheck         bool     `json:"isCheck"`
}

type TimeUpdate struct {
	ClocksRemaining Clocks `json:"clocksRemaining"`
	Turn            string `json:"turn"`
	Started         bool   `json:"started"`
}

// Rewards mirrors what the reward collaborator granted for one finished match.
type Rewards struct {
	BronzeChests int  `json:"bronzeChests"`
	SilverChests int  `json:"silverChests"`
	GoldPoints   int  `json:"goldPoints"`
	Streak       int  `json:"streak"`
	StreakReset  bool `json:"streakReset,omitempty"`
}

type MatchEnded struct {
	Result         string         `json:"result"`
	EndReason      string         `json:"endReason"`
	WinnerIdentity string         `json:"winnerIdentity,omitempty"`
	YouWon         bool           `json:"youWon"`
	Rewards        *Rewards       `json:"rewards,omitempty"`
	FinalSnapshot  *MatchSnapshot `json:"finalSnapshot"`
}

type DrawOffered struct {
	FromSide string `json:"fromSide"`
}

type QuickSignalEvent struct {
	FromSide  string `json:"fromSide"`
	SignalID  string `json:"signalId"`
	Category  string `json:"category"`
	Timestamp int64  `json:"timestamp"`
}

type Cooldown struct {
	RemainingMs int64 `json:"remainingMs"`
}

type InviteCreated struct {
	Code               string `json:"code"`
	TimeControlMinutes int    `json:"timeControlMinutes"`
	ExpiresAt          int64  `json:"expiresAt"`
}

type InviteCancelled struct {
	Code string `json:"code"`
}

type InviteStatus struct {
	Code               string `json:"code"`
	Exists             bool   `json:"exists"`
	IsCreator          bool   `json:"isCreator,omitempty"`
	Status             string `json:"status,omitempty"`
	TimeControlMinutes int    `json:"timeControlMinutes,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
