package arena

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/solmate-arena/internal/invite"
	"github.com/park285/solmate-arena/internal/match"
	"github.com/park285/solmate-arena/internal/obslog"
	"github.com/park285/solmate-arena/internal/queue"
	"github.com/park285/solmate-arena/internal/quickchat"
	"github.com/park285/solmate-arena/internal/registry"
	"github.com/park285/solmate-arena/internal/rules"
	"github.com/park285/solmate-arena/pkg/wire"
)

var (
	ErrAlreadyEngaged      = errors.New("already queued or in a match")
	ErrEntitlementRequired = errors.New("premium entitlement required")
	ErrCreatorUnavailable  = errors.New("invite creator not connected")
	ErrUnknownSignal       = errors.New("unknown quick signal")
	ErrUnknownMatch        = errors.New("unknown match")
)

// Entitlements answers the premium check gating the premium queue tier.
type Entitlements interface {
	IsPremium(ctx context.Context, identity string) (bool, error)
}

// RewardsProvider is the full reward collaborator surface.
type RewardsProvider interface {
	Entitlements
	match.RewardService
}

// Options are the timing knobs for one service instance.
type Options struct {
	GracePeriod       time.Duration
	MoveRateLimit     time.Duration
	QuickChatCooldown time.Duration
	MatchRetention    time.Duration
}

// Service owns all live orchestration state: the queues, the connection
// registry, the active-match table and the collaborator handles. Everything
// is instance state so several services can coexist in one process.
type Service struct {
	mu        sync.Mutex
	matches   map[string]*match.Match
	retention map[string]*time.Timer

	queues  *queue.Buckets
	reg     *registry.Registry
	invites *invite.Manager
	relay   *quickchat.Relay
	catalog *quickchat.Catalog
	engine  *rules.Engine

	history match.Recorder
	rewards RewardsProvider

	opts      Options
	startedAt time.Time
}

func NewService(invites *invite.Manager, history match.Recorder, rewards RewardsProvider, opts Options) (*Service, error) {
	catalog, err := quickchat.LoadCatalog()
	if err != nil {
		return nil, err
	}
	if opts.GracePeriod == 0 {
		opts.GracePeriod = 20 * time.Second
	}
	if opts.QuickChatCooldown == 0 {
		opts.QuickChatCooldown = 3 * time.Second
	}
	if opts.MatchRetention == 0 {
		opts.MatchRetention = 60 * time.Second
	}
	return &Service{
		matches:   make(map[string]*match.Match),
		retention: make(map[string]*time.Timer),
		queues:    queue.NewBuckets(),
		reg:       registry.New(opts.GracePeriod),
		invites:   invites,
		relay:     quickchat.NewRelay(opts.QuickChatCooldown),
		catalog:   catalog,
		engine:    rules.NewEngine(),
		history:   history,
		rewards:   rewards,
		opts:      opts,
		startedAt: time.Now(),
	}, nil
}

// Connect binds a fresh connection. A player returning to a live match gets
// the current snapshot and the opponent hears about the reconnection.
func (s *Service) Connect(identity string, conn registry.Conn) {
	matchID, reattached := s.reg.Bind(identity, conn)
	obslog.L().Info("conn_bound",
		zap.String("identity", identity),
		zap.Bool("reattached", reattached),
	)
	if matchID == "" {
		return
	}
	m := s.matchByID(matchID)
	if m == nil || m.Status() == match.StatusFinished {
		return
	}
	side, ok := m.SideOf(identity)
	if !ok {
		return
	}
	opponent, _ := m.Opponent(identity)
	s.reg.Notify(identity, wire.EvtMatchFound, wire.MatchFound{
		MatchID:          m.ID(),
		YourSide:         side.String(),
		OpponentIdentity: opponent,
		Snapshot:         m.Snapshot(),
	})
	if reattached {
		s.reg.Notify(opponent, wire.EvtOpponentReconnected, struct{}{})
	}
}

// Disconnect handles a dropped connection. Queue entries are released at
// once; an active match keeps the seat open for the grace period.
func (s *Service) Disconnect(identity string, conn registry.Conn) {
	if !s.reg.Drop(identity, conn) {
		return
	}
	s.queues.Remove(identity)

	matchID, ok := s.reg.MatchOf(identity)
	if !ok {
		return
	}
	m := s.matchByID(matchID)
	if m == nil || m.Status() != match.StatusActive {
		return
	}
	if opponent, ok := m.Opponent(identity); ok {
		s.reg.Notify(opponent, wire.EvtOpponentDisconnected, struct{}{})
	}
	s.reg.StartGrace(identity, s.onGraceExpired)
}

// JoinQueue enters identity into a matchmaking bucket, pairing immediately
// when an opponent is already waiting.
func (s *Service) JoinQueue(ctx context.Context, identity string, minutes int, tier string) error {
	if _, engaged := s.reg.MatchOf(identity); engaged {
		return ErrAlreadyEngaged
	}
	if tier == match.TierPremium {
		if s.rewards == nil {
			return ErrEntitlementRequired
		}
		premium, err := s.rewards.IsPremium(ctx, identity)
		if err != nil {
			return err
		}
		if !premium {
			return ErrEntitlementRequired
		}
	}

	opponent, position, err := s.queues.Enqueue(identity, minutes, tier)
	if errors.Is(err, queue.ErrAlreadyQueued) {
		return ErrAlreadyEngaged
	}
	if err != nil {
		return err
	}

	obslog.L().Info("queue_join",
		zap.String("identity", identity),
		zap.Int("time_control_min", minutes),
		zap.String("tier", tier),
		zap.Bool("paired", opponent != nil),
	)

	if opponent != nil {
		s.createMatch(opponent.Identity, identity, minutes, tier)
		return nil
	}
	s.reg.Notify(identity, wire.EvtQueueJoined, wire.QueueJoined{
		TimeControlMinutes: minutes,
		Tier:               tier,
		Position:           position,
	})
	return nil
}

// LeaveQueue removes a pending entry. Idempotent.
func (s *Service) LeaveQueue(identity string) {
	if s.queues.Remove(identity) {
		obslog.L().Info("queue_leave", zap.String("identity", identity))
	}
	s.reg.Notify(identity, wire.EvtQueueLeft, struct{}{})
}

// Move submits one move to the identity's match.
func (s *Service) Move(identity string, req wire.MatchMove) error {
	m, err := s.participantMatch(identity, req.MatchID)
	if err != nil {
		return err
	}
	return m.SubmitMove(identity, rules.MoveSpec{
		From:      req.From,
		To:        req.To,
		Promotion: req.Promotion,
	})
}

func (s *Service) Resign(identity, matchID string) error {
	m, err := s.participantMatch(identity, matchID)
	if err != nil {
		return err
	}
	return m.Resign(identity)
}

func (s *Service) OfferDraw(identity, matchID string) error {
	m, err := s.participantMatch(identity, matchID)
	if err != nil {
		return err
	}
	return m.OfferDraw(identity)
}

func (s *Service) AcceptDraw(identity, matchID string) error {
	m, err := s.participantMatch(identity, matchID)
	if err != nil {
		return err
	}
	return m.AcceptDraw(identity)
}

func (s *Service) DeclineDraw(identity, matchID string) error {
	m, err := s.participantMatch(identity, matchID)
	if err != nil {
		return err
	}
	return m.DeclineDraw(identity)
}

// QuickSignal relays a preset reaction to both participants. A throttled
// attempt answers the sender with the remaining cooldown instead.
func (s *Service) QuickSignal(identity string, req wire.QuickSignal) error {
	m, err := s.participantMatch(identity, req.MatchID)
	if err != nil {
		return err
	}
	if m.Status() != match.StatusActive {
		return match.ErrMatchNotActive
	}
	if !s.catalog.Valid(req.Category, req.SignalID) {
		return ErrUnknownSignal
	}

	remaining, ok := s.relay.Allow(identity)
	if !ok {
		s.reg.Notify(identity, wire.EvtQuickSignalCooldown, wire.Cooldown{
			RemainingMs: remaining.Milliseconds(),
		})
		return nil
	}

	side, _ := m.SideOf(identity)
	event := wire.QuickSignalEvent{
		FromSide:  side.String(),
		SignalID:  req.SignalID,
		Category:  req.Category,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, p := range m.Players() {
		s.reg.Notify(p, wire.EvtMatchQuickSignal, event)
	}
	return nil
}

// InviteCreate allocates (or reuses) a private-match code for identity.
func (s *Service) InviteCreate(ctx context.Context, identity string, minutes int) error {
	if !queue.ValidTimeControl(minutes) {
		return queue.ErrInvalidTimeControl
	}
	inv, err := s.invites.Create(ctx, identity, minutes)
	if err != nil {
		return err
	}
	s.reg.Notify(identity, wire.EvtInviteCreated, wire.InviteCreated{
		Code:               inv.Code,
		TimeControlMinutes: inv.TimeControlMinutes,
		ExpiresAt:          inv.ExpiresAt.UnixMilli(),
	})
	return nil
}

// InviteJoin claims a code and starts the private match. The creator must be
// connected right now; discovery of the code may have happened elsewhere.
func (s *Service) InviteJoin(ctx context.Context, identity, code string) error {
	if _, engaged := s.reg.MatchOf(identity); engaged {
		return ErrAlreadyEngaged
	}
	inv, err := s.invites.Get(ctx, code)
	if err != nil {
		return err
	}
	if inv.CreatorIdentity == identity {
		return invite.ErrSelfJoin
	}
	if _, live := s.reg.ConnOf(inv.CreatorIdentity); !live {
		return ErrCreatorUnavailable
	}
	if _, engaged := s.reg.MatchOf(inv.CreatorIdentity); engaged {
		return ErrCreatorUnavailable
	}

	claimed, err := s.invites.Join(ctx, code, identity)
	if err != nil {
		return err
	}
	s.createMatch(claimed.CreatorIdentity, identity, claimed.TimeControlMinutes, match.TierStandard)
	if err := s.invites.MarkStarted(ctx, claimed.Code); err != nil {
		obslog.L().Warn("invite_mark_started_failed", zap.String("code", claimed.Code), zap.Error(err))
	}
	return nil
}

func (s *Service) InviteCancel(ctx context.Context, identity, code string) error {
	if err := s.invites.Cancel(ctx, identity, code); err != nil {
		return err
	}
	s.reg.Notify(identity, wire.EvtInviteCancelled, wire.InviteCancelled{Code: code})
	return nil
}

// InviteCheck answers a status query without mutating the record.
func (s *Service) InviteCheck(ctx context.Context, identity, code string) {
	inv, err := s.invites.Get(ctx, code)
	if err != nil {
		s.reg.Notify(identity, wire.EvtInviteStatus, wire.InviteStatus{Code: code, Exists: false})
		return
	}
	s.reg.Notify(identity, wire.EvtInviteStatus, wire.InviteStatus{
		Code:               inv.Code,
		Exists:             true,
		IsCreator:          inv.CreatorIdentity == identity,
		Status:             string(inv.Status),
		TimeControlMinutes: inv.TimeControlMinutes,
	})
}

// Status is the operational snapshot served over HTTP.
type Status struct {
	Online        int            `json:"online"`
	QueueWaiting  map[string]int `json:"queueWaiting"`
	ActiveMatches int            `json:"activeMatches"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
}

func (s *Service) Status() Status {
	s.mu.Lock()
	live := make([]*match.Match, 0, len(s.matches))
	for _, m := range s.matches {
		live = append(live, m)
	}
	s.mu.Unlock()

	active := 0
	for _, m := range live {
		if m.Status() == match.StatusActive {
			active++
		}
	}
	return Status{
		Online:        s.reg.Online(),
		QueueWaiting:  s.queues.Waiting(),
		ActiveMatches: active,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
}

// Close stops retention timers. Live matches are abandoned to process exit.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.retention {
		t.Stop()
		delete(s.retention, id)
	}
}

func (s *Service) createMatch(p0, p1 string, minutes int, tier string) *match.Match {
	var rw match.RewardService
	if s.rewards != nil {
		rw = s.rewards
	}
	m := match.New(uuid.NewString(), p0, p1, minutes, tier, match.Deps{
		Rules:      s.engine,
		Notify:     s.reg,
		History:    s.history,
		Rewards:    rw,
		OnFinished: s.matchFinished,
		RateLimit:  s.opts.MoveRateLimit,
	})

	s.mu.Lock()
	s.matches[m.ID()] = m
	s.mu.Unlock()

	for _, identity := range []string{p0, p1} {
		s.queues.Remove(identity)
		s.reg.SetMatch(identity, m.ID())
	}
	m.Start()

	for _, identity := range m.Players() {
		side, _ := m.SideOf(identity)
		opponent, _ := m.Opponent(identity)
		s.reg.Notify(identity, wire.EvtMatchFound, wire.MatchFound{
			MatchID:          m.ID(),
			YourSide:         side.String(),
			OpponentIdentity: opponent,
			Snapshot:         m.Snapshot(),
		})
	}

	obslog.L().Info("match_created",
		zap.String("match_id", m.ID()),
		zap.String("tier", tier),
		zap.Int("time_control_min", minutes),
	)
	return m
}

// matchFinished releases registry pointers and schedules eviction once the
// retention window passes. Runs on every terminal transition.
func (s *Service) matchFinished(matchID string) {
	m := s.matchByID(matchID)
	if m == nil {
		return
	}
	for _, identity := range m.Players() {
		s.reg.ClearMatch(identity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, pending := s.retention[matchID]; pending {
		return
	}
	s.retention[matchID] = time.AfterFunc(s.opts.MatchRetention, func() {
		s.mu.Lock()
		delete(s.matches, matchID)
		delete(s.retention, matchID)
		s.mu.Unlock()
		obslog.L().Debug("match_evicted", zap.String("match_id", matchID))
	})
}

// onGraceExpired forfeits the match the vanished identity occupies. The
// abandon path is idempotent, so a race with a normal ending is harmless.
func (s *Service) onGraceExpired(identity string) {
	matchID, ok := s.reg.MatchOf(identity)
	if !ok {
		return
	}
	if m := s.matchByID(matchID); m != nil {
		m.Abandon(identity)
	}
}

func (s *Service) matchByID(id string) *match.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[id]
}

func (s *Service) participantMatch(identity, matchID string) (*match.Match, error) {
	m := s.matchByID(matchID)
	if m == nil {
		return nil, ErrUnknownMatch
	}
	if _, ok := m.SideOf(identity); !ok {
		return nil, match.ErrNotParticipant
	}
	return m, nil
}
