package match

import (
	"context"
	crand "crypto/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/solmate-arena/internal/obslog"
	"github.com/park285/solmate-arena/internal/rules"
	"github.com/park285/solmate-arena/pkg/wire"
)

// RulesEngine validates and applies moves. Pure; the match owns all state.
type RulesEngine interface {
	Apply(pos rules.Position, mv rules.MoveSpec) (rules.Outcome, error)
}

// Match owns one contest end to end. All mutation is serialized through mu;
// the clock loop and the operations below never touch state without it.
type Match struct {
	mu sync.Mutex

	id          string
	timeControl int
	tier        string
	players     [2]string

	pos          rules.Position
	clocks       [2]int64
	clockRunning bool
	startedAt    time.Time
	lastMoveAt   time.Time
	lastAccepted [2]time.Time
	moves        []wire.MoveInfo

	status      Status
	result      Result
	endReason   EndReason
	finishedAt  time.Time
	drawOfferBy *Side

	stopClock chan struct{}
	deps      Deps
}

// New pairs two identities into a pending match. Sides are assigned
// uniformly at random; p0 and p1 carry no ordering significance.
func New(id, p0, p1 string, timeControlMinutes int, tier string, deps Deps) *Match {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RateLimit == 0 {
		deps.RateLimit = 500 * time.Millisecond
	}

	players := [2]string{p0, p1}
	var b [1]byte
	if _, err := crand.Read(b[:]); err == nil && b[0]%2 == 1 {
		players[0], players[1] = players[1], players[0]
	}

	clock := UntimedClock
	if timeControlMinutes > 0 {
		clock = int64(timeControlMinutes) * 60 * 1000
	}

	return &Match{
		id:          id,
		timeControl: timeControlMinutes,
		tier:        tier,
		players:     players,
		pos:         rules.Start(),
		clocks:      [2]int64{clock, clock},
		status:      StatusPending,
		stopClock:   make(chan struct{}),
		deps:        deps,
	}
}

func (m *Match) ID() string   { return m.id }
func (m *Match) Tier() string { return m.tier }

// Players returns both identities, side 0 first.
func (m *Match) Players() [2]string { return m.players }

// SideOf reports the side controlled by identity.
func (m *Match) SideOf(identity string) (Side, bool) {
	switch identity {
	case m.players[Side0]:
		return Side0, true
	case m.players[Side1]:
		return Side1, true
	}
	return 0, false
}

// Opponent returns the other participant's identity.
func (m *Match) Opponent(identity string) (string, bool) {
	side, ok := m.SideOf(identity)
	if !ok {
		return "", false
	}
	return m.players[side.Other()], true
}

func (m *Match) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start activates the match. The clock stays idle until the first move.
func (m *Match) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusPending {
		return
	}
	m.status = StatusActive
	m.startedAt = m.deps.Now()
	if m.timeControl > 0 {
		go m.clockLoop()
	}
	obslog.L().Info("match_start",
		zap.String("match_id", m.id),
		zap.String("tier", m.tier),
		zap.Int("time_control_min", m.timeControl),
	)
}

// SubmitMove applies one proposed move for identity. Protocol violations
// return an error with no state change; flag fall and terminal positions end
// the match and return nil, the outcome reaches both sides as events.
func (m *Match) SubmitMove(identity string, mv rules.MoveSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusActive {
		return ErrMatchNotActive
	}
	side, ok := m.SideOf(identity)
	if !ok {
		return ErrNotParticipant
	}
	if m.turnLocked() != side {
		return ErrNotYourTurn
	}

	now := m.deps.Now()
	if !m.lastAccepted[side].IsZero() && now.Sub(m.lastAccepted[side]) < m.deps.RateLimit {
		return ErrRateLimited
	}

	out, err := m.deps.Rules.Apply(m.pos, mv)
	if err != nil {
		return err
	}

	// Flag fall is checked before the move counts as made.
	elapsed := now.Sub(m.turnStartedLocked()).Milliseconds()
	if m.timeControl > 0 {
		remaining := m.clocks[side] - elapsed
		if remaining <= 0 {
			m.clocks[side] = 0
			m.finishLocked(winnerResult(side.Other()), ReasonTimeout, now)
			return nil
		}
		m.clocks[side] = remaining
	}

	m.pos = out.Position
	m.moves = append(m.moves, wire.MoveInfo{
		SAN:  out.SAN,
		From: mv.From,
		To:   mv.To,
		Side: side.String(),
		At:   now.UnixMilli(),
	})
	m.lastMoveAt = now
	m.lastAccepted[side] = now
	m.clockRunning = true
	m.drawOfferBy = nil

	moved := wire.MatchMoved{
		Move:            m.moves[len(m.moves)-1],
		Position:        m.pos.FEN(),
		ClocksRemaining: m.clocksLocked(now),
		Turn:            m.turnLocked().String(),
		IsCheck:         out.IsCheck,
	}
	m.notifyBothLocked(wire.EvtMatchMoved, moved)

	obslog.L().Info("match_move",
		zap.String("match_id", m.id),
		zap.String("side", side.String()),
		zap.String("san", out.SAN),
		zap.Int("ply", len(m.moves)),
	)

	switch {
	case out.IsCheckmate:
		m.finishLocked(winnerResult(side), ReasonCheckmate, now)
	case out.IsDraw:
		// Stalemate and the other engine-reported draws share the
		// board-terminal reason.
		m.finishLocked(ResultDraw, ReasonCheckmate, now)
	}
	return nil
}

// Resign ends the match in the opponent's favor.
func (m *Match) Resign(identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive {
		return ErrMatchNotActive
	}
	side, ok := m.SideOf(identity)
	if !ok {
		return ErrNotParticipant
	}
	m.finishLocked(winnerResult(side.Other()), ReasonResignation, m.deps.Now())
	return nil
}

// OfferDraw signals a draw proposal to the opponent.
func (m *Match) OfferDraw(identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive {
		return ErrMatchNotActive
	}
	side, ok := m.SideOf(identity)
	if !ok {
		return ErrNotParticipant
	}
	m.drawOfferBy = &side
	m.deps.Notify.Notify(m.players[side.Other()], wire.EvtMatchDrawOffered, wire.DrawOffered{FromSide: side.String()})
	return nil
}

// AcceptDraw ends the match by agreement. Accepting without an outstanding
// offer from the opponent is rejected.
func (m *Match) AcceptDraw(identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive {
		return ErrMatchNotActive
	}
	side, ok := m.SideOf(identity)
	if !ok {
		return ErrNotParticipant
	}
	if m.drawOfferBy == nil || *m.drawOfferBy == side {
		return ErrNoDrawOffer
	}
	m.finishLocked(ResultDraw, ReasonAgreement, m.deps.Now())
	return nil
}

// DeclineDraw clears an outstanding offer and notifies the offerer. Declining
// with no offer outstanding is a no-op.
func (m *Match) DeclineDraw(identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive {
		return ErrMatchNotActive
	}
	side, ok := m.SideOf(identity)
	if !ok {
		return ErrNotParticipant
	}
	if m.drawOfferBy == nil || *m.drawOfferBy == side {
		return nil
	}
	offerer := m.players[*m.drawOfferBy]
	m.drawOfferBy = nil
	m.deps.Notify.Notify(offerer, wire.EvtMatchDrawDeclined, struct{}{})
	return nil
}

// Abandon force-ends the match against identity after its grace period
// expired. No-op if the match already ended by other means.
func (m *Match) Abandon(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive {
		return
	}
	side, ok := m.SideOf(identity)
	if !ok {
		return
	}
	m.finishLocked(winnerResult(side.Other()), ReasonAbandonment, m.deps.Now())
}

// Snapshot returns the full client-visible state.
func (m *Match) Snapshot() *wire.MatchSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(m.deps.Now())
}

// Tick recomputes the ticking side's remaining time and either broadcasts a
// time update or commits a timeout. Safe to call after the match ended.
func (m *Match) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive {
		return
	}
	now := m.deps.Now()
	clocks := m.clocksLocked(now)
	if m.clockRunning && m.timeControl > 0 {
		turn := m.turnLocked()
		live := clocks.Side0
		if turn == Side1 {
			live = clocks.Side1
		}
		if live <= 0 {
			m.clocks[turn] = 0
			m.finishLocked(winnerResult(turn.Other()), ReasonTimeout, now)
			return
		}
	}
	m.notifyBothLocked(wire.EvtMatchTimeUpdate, wire.TimeUpdate{
		ClocksRemaining: clocks,
		Turn:            m.turnLocked().String(),
		Started:         m.clockRunning,
	})
}

func (m *Match) clockLoop() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-m.stopClock:
			return
		case <-t.C:
			m.Tick()
		}
	}
}

// turnLocked derives the side to move from the ply count. Side 0 moves first.
func (m *Match) turnLocked() Side { return Side(len(m.moves) % 2) }

// turnStartedLocked is the instant the current turn began ticking.
func (m *Match) turnStartedLocked() time.Time {
	if m.lastMoveAt.IsZero() {
		return m.startedAt
	}
	return m.lastMoveAt
}

// clocksLocked reports remaining time with the on-move side's elapsed time
// deducted on the fly. Authoritative fields stay untouched.
func (m *Match) clocksLocked(now time.Time) wire.Clocks {
	c := wire.Clocks{Side0: m.clocks[Side0], Side1: m.clocks[Side1]}
	if m.timeControl <= 0 || !m.clockRunning || m.status != StatusActive {
		return c
	}
	elapsed := now.Sub(m.turnStartedLocked()).Milliseconds()
	turn := m.turnLocked()
	live := m.clocks[turn] - elapsed
	if live < 0 {
		live = 0
	}
	if turn == Side0 {
		c.Side0 = live
	} else {
		c.Side1 = live
	}
	return c
}

func (m *Match) snapshotLocked(now time.Time) *wire.MatchSnapshot {
	snap := &wire.MatchSnapshot{
		ID:                 m.id,
		TimeControlMinutes: m.timeControl,
		Tier:               m.tier,
		Position:           m.pos.FEN(),
		ClocksRemaining:    m.clocksLocked(now),
		ClockRunning:       m.clockRunning,
		Turn:               m.turnLocked().String(),
		Status:             string(m.status),
		Result:             string(m.result),
		EndReason:          string(m.endReason),
		Sides: map[string]string{
			Side0.String(): m.players[Side0],
			Side1.String(): m.players[Side1],
		},
		Moves: append([]wire.MoveInfo(nil), m.moves...),
	}
	if !m.startedAt.IsZero() {
		snap.StartedAt = m.startedAt.UnixMilli()
	}
	if !m.finishedAt.IsZero() {
		snap.FinishedAt = m.finishedAt.UnixMilli()
	}
	return snap
}

// finishLocked commits the terminal transition exactly once: record the
// outcome, stop the clock loop, grant rewards, tell both players, then hand
// the snapshot to history and the owning service.
func (m *Match) finishLocked(result Result, reason EndReason, now time.Time) {
	if m.status == StatusFinished {
		return
	}
	m.status = StatusFinished
	m.result = result
	m.endReason = reason
	m.finishedAt = now
	m.clockRunning = false
	close(m.stopClock)

	winner := ""
	switch result {
	case ResultSide0Wins:
		winner = m.players[Side0]
	case ResultSide1Wins:
		winner = m.players[Side1]
	}

	rewards := m.grantRewardsLocked(winner)
	snap := m.snapshotLocked(now)

	for _, identity := range m.players {
		m.deps.Notify.Notify(identity, wire.EvtMatchEnded, wire.MatchEnded{
			Result:         string(result),
			EndReason:      string(reason),
			WinnerIdentity: winner,
			YouWon:         winner != "" && identity == winner,
			Rewards:        rewards[identity],
			FinalSnapshot:  snap,
		})
	}

	obslog.L().Info("match_end",
		zap.String("match_id", m.id),
		zap.String("result", string(result)),
		zap.String("end_reason", string(reason)),
		zap.Int("plies", len(m.moves)),
	)

	if m.deps.History != nil {
		go recordWithRetry(m.deps.History, snap)
	}
	if m.deps.OnFinished != nil {
		m.deps.OnFinished(m.id)
	}
}

// grantRewardsLocked applies win/loss updates. Premium matches with a
// decisive result only; failures are logged and never reverse the outcome.
func (m *Match) grantRewardsLocked(winner string) map[string]*wire.Rewards {
	granted := map[string]*wire.Rewards{}
	if m.deps.Rewards == nil || m.tier != TierPremium || winner == "" {
		return granted
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, identity := range m.players {
		r, err := m.deps.Rewards.Apply(ctx, identity, identity == winner, m.tier)
		if err != nil {
			obslog.L().Error("reward_apply_failed",
				zap.String("match_id", m.id),
				zap.String("identity", identity),
				zap.Error(err),
			)
			continue
		}
		granted[identity] = r
	}
	return granted
}

func (m *Match) notifyBothLocked(event string, payload any) {
	for _, identity := range m.players {
		m.deps.Notify.Notify(identity, event, payload)
	}
}

func recordWithRetry(rec Recorder, snap *wire.MatchSnapshot) {
	backoff := time.Second
	for attempt := 1; attempt <= 4; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rec.Record(ctx, snap)
		cancel()
		if err == nil {
			return
		}
		obslog.L().Warn("history_record_retry",
			zap.String("match_id", snap.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == 4 {
			obslog.L().Error("history_record_failed", zap.String("match_id", snap.ID), zap.Error(err))
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

func winnerResult(s Side) Result {
	if s == Side0 {
		return ResultSide0Wins
	}
	return ResultSide1Wins
}
