package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/solmate-arena/internal/rules"
	"github.com/park285/solmate-arena/pkg/wire"
)

type sentEvent struct {
	identity string
	event    string
	payload  any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeNotifier) Notify(identity, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{identity, event, payload})
}

func (f *fakeNotifier) last(identity, event string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].identity == identity && f.events[i].event == event {
			return f.events[i].payload, true
		}
	}
	return nil, false
}

func (f *fakeNotifier) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	ch chan *wire.MatchSnapshot
}

func (f *fakeRecorder) Record(_ context.Context, snap *wire.MatchSnapshot) error {
	f.ch <- snap
	return nil
}

type fakeRewards struct {
	mu    sync.Mutex
	calls map[string]bool // identity -> won
}

func (f *fakeRewards) Apply(_ context.Context, identity string, won bool, _ string) (*wire.Rewards, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]bool{}
	}
	f.calls[identity] = won
	return &wire.Rewards{BronzeChests: 1}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestMatch(t *testing.T, minutes int, tier string) (*Match, *fakeNotifier, *fakeClock) {
	t.Helper()
	n := &fakeNotifier{}
	c := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := New("m1", "alice", "bob", minutes, tier, Deps{
		Rules:  rules.NewEngine(),
		Notify: n,
		Now:    c.Now,
	})
	return m, n, c
}

// side0/side1 identities after random assignment.
func sides(m *Match) (string, string) {
	p := m.Players()
	return p[0], p[1]
}

func TestCreationClocks(t *testing.T) {
	m, _, _ := newTestMatch(t, 5, TierStandard)
	snap := m.Snapshot()
	if snap.ClocksRemaining.Side0 != 300000 || snap.ClocksRemaining.Side1 != 300000 {
		t.Fatalf("clocks = %+v, want 300000/300000", snap.ClocksRemaining)
	}
	if snap.ClockRunning {
		t.Fatalf("clock must not run before the first move")
	}
	if snap.Status != string(StatusPending) {
		t.Fatalf("status = %s, want pending", snap.Status)
	}
}

func TestUntimedClocks(t *testing.T) {
	m, _, _ := newTestMatch(t, 0, TierStandard)
	snap := m.Snapshot()
	if snap.ClocksRemaining.Side0 != UntimedClock || snap.ClocksRemaining.Side1 != UntimedClock {
		t.Fatalf("untimed clocks = %+v", snap.ClocksRemaining)
	}
}

func TestFirstMoveDeductsFromStart(t *testing.T) {
	m, _, c := newTestMatch(t, 5, TierStandard)
	m.Start()
	p0, _ := sides(m)

	c.advance(40 * time.Second)
	if err := m.SubmitMove(p0, rules.MoveSpec{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("move: %v", err)
	}

	snap := m.Snapshot()
	if snap.ClocksRemaining.Side0 != 260000 {
		t.Fatalf("side0 clock = %d, want 260000", snap.ClocksRemaining.Side0)
	}
	if snap.ClocksRemaining.Side1 != 300000 {
		t.Fatalf("side1 clock = %d, want 300000", snap.ClocksRemaining.Side1)
	}
	if !snap.ClockRunning {
		t.Fatalf("clock must run after the first move")
	}
}

func TestFlagFallBeforeMoveCommit(t *testing.T) {
	m, n, c := newTestMatch(t, 5, TierStandard)
	m.Start()
	p0, _ := sides(m)

	m.mu.Lock()
	m.clocks[Side0] = 1500
	m.mu.Unlock()

	c.advance(2 * time.Second)
	if err := m.SubmitMove(p0, rules.MoveSpec{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("move: %v", err)
	}

	snap := m.Snapshot()
	if snap.Status != string(StatusFinished) {
		t.Fatalf("status = %s, want finished", snap.Status)
	}
	if snap.Result != string(ResultSide1Wins) || snap.EndReason != string(ReasonTimeout) {
		t.Fatalf("result/reason = %s/%s", snap.Result, snap.EndReason)
	}
	if len(snap.Moves) != 0 {
		t.Fatalf("flagged move must not reach the log, got %d moves", len(snap.Moves))
	}
	if _, ok := n.last(p0, wire.EvtMatchEnded); !ok {
		t.Fatalf("no match.ended sent")
	}
}

func TestTurnAlternationAndMoveLog(t *testing.T) {
	m, _, c := newTestMatch(t, 0, TierStandard)
	m.Start()
	p0, p1 := sides(m)

	moves := []struct {
		who      string
		from, to string
	}{
		{p0, "e2", "e4"},
		{p1, "e7", "e5"},
		{p0, "g1", "f3"},
		{p1, "b8", "c6"},
	}
	for _, mv := range moves {
		c.advance(time.Second)
		if err := m.SubmitMove(mv.who, rules.MoveSpec{From: mv.from, To: mv.to}); err != nil {
			t.Fatalf("move %s-%s: %v", mv.from, mv.to, err)
		}
	}
	if got := len(m.Snapshot().Moves); got != 4 {
		t.Fatalf("move log = %d, want 4", got)
	}

	if err := m.SubmitMove(p1, rules.MoveSpec{From: "d7", To: "d6"}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("out of turn err = %v, want ErrNotYourTurn", err)
	}
}

func TestMoveRateLimit(t *testing.T) {
	m, _, c := newTestMatch(t, 0, TierStandard)
	m.Start()
	p0, p1 := sides(m)

	if err := m.SubmitMove(p0, rules.MoveSpec{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("move: %v", err)
	}
	c.advance(100 * time.Millisecond)
	if err := m.SubmitMove(p1, rules.MoveSpec{From: "e7", To: "e5"}); err != nil {
		t.Fatalf("move: %v", err)
	}
	c.advance(100 * time.Millisecond)
	if err := m.SubmitMove(p0, rules.MoveSpec{From: "g1", To: "f3"}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	c.advance(400 * time.Millisecond)
	if err := m.SubmitMove(p0, rules.MoveSpec{From: "g1", To: "f3"}); err != nil {
		t.Fatalf("move after cooldown: %v", err)
	}
}

func TestIllegalMoveLeavesStateUntouched(t *testing.T) {
	m, _, _ := newTestMatch(t, 5, TierStandard)
	m.Start()
	p0, _ := sides(m)

	before := m.Snapshot()
	if err := m.SubmitMove(p0, rules.MoveSpec{From: "e2", To: "e5"}); !errors.Is(err, rules.ErrIllegalMove) {
		t.Fatalf("err = %v, want ErrIllegalMove", err)
	}
	after := m.Snapshot()
	if after.Position != before.Position || len(after.Moves) != 0 || after.ClockRunning {
		t.Fatalf("illegal move mutated state")
	}
}

func TestFinishedRejectsEverything(t *testing.T) {
	m, _, _ := newTestMatch(t, 0, TierStandard)
	m.Start()
	p0, p1 := sides(m)
	if err := m.Resign(p1); err != nil {
		t.Fatalf("resign: %v", err)
	}

	if err := m.SubmitMove(p0, rules.MoveSpec{From: "e2", To: "e4"}); !errors.Is(err, ErrMatchNotActive) {
		t.Fatalf("move err = %v", err)
	}
	if err := m.Resign(p0); !errors.Is(err, ErrMatchNotActive) {
		t.Fatalf("resign err = %v", err)
	}
	if err := m.OfferDraw(p0); !errors.Is(err, ErrMatchNotActive) {
		t.Fatalf("offer err = %v", err)
	}
	snap := m.Snapshot()
	if snap.Result != string(ResultSide0Wins) || snap.EndReason != string(ReasonResignation) {
		t.Fatalf("result/reason = %s/%s", snap.Result, snap.EndReason)
	}
}

func TestDrawProtocol(t *testing.T) {
	m, n, _ := newTestMatch(t, 0, TierStandard)
	m.Start()
	p0, p1 := sides(m)

	if err := m.AcceptDraw(p0); !errors.Is(err, ErrNoDrawOffer) {
		t.Fatalf("accept without offer err = %v", err)
	}

	if err := m.OfferDraw(p0); err != nil {
		t.Fatalf("offer: %v", err)
	}
	payload, ok := n.last(p1, wire.EvtMatchDrawOffered)
	if !ok {
		t.Fatalf("opponent never saw the offer")
	}
	if payload.(wire.DrawOffered).FromSide != "side0" {
		t.Fatalf("offer fromSide = %+v", payload)
	}

	if err := m.AcceptDraw(p0); !errors.Is(err, ErrNoDrawOffer) {
		t.Fatalf("offerer accepting own offer err = %v", err)
	}

	if err := m.DeclineDraw(p1); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if _, ok := n.last(p0, wire.EvtMatchDrawDeclined); !ok {
		t.Fatalf("offerer never saw the decline")
	}

	if err := m.OfferDraw(p1); err != nil {
		t.Fatalf("re-offer: %v", err)
	}
	if err := m.AcceptDraw(p0); err != nil {
		t.Fatalf("accept: %v", err)
	}
	snap := m.Snapshot()
	if snap.Result != string(ResultDraw) || snap.EndReason != string(ReasonAgreement) {
		t.Fatalf("result/reason = %s/%s", snap.Result, snap.EndReason)
	}
}

func TestCheckmateEndsMatch(t *testing.T) {
	m, n, c := newTestMatch(t, 0, TierStandard)
	m.Start()
	p0, p1 := sides(m)

	seq := []struct {
		who      string
		from, to string
	}{
		{p0, "f2", "f3"},
		{p1, "e7", "e5"},
		{p0, "g2", "g4"},
		{p1, "d8", "h4"},
	}
	for _, mv := range seq {
		c.advance(time.Second)
		if err := m.SubmitMove(mv.who, rules.MoveSpec{From: mv.from, To: mv.to}); err != nil {
			t.Fatalf("move %s-%s: %v", mv.from, mv.to, err)
		}
	}

	snap := m.Snapshot()
	if snap.Result != string(ResultSide1Wins) || snap.EndReason != string(ReasonCheckmate) {
		t.Fatalf("result/reason = %s/%s", snap.Result, snap.EndReason)
	}
	payload, ok := n.last(p0, wire.EvtMatchEnded)
	if !ok {
		t.Fatalf("loser never notified")
	}
	ended := payload.(wire.MatchEnded)
	if ended.YouWon || ended.WinnerIdentity != p1 {
		t.Fatalf("ended payload for loser = %+v", ended)
	}
	// The mate itself is still broadcast before the end notice.
	if n.count(wire.EvtMatchMoved) != 8 {
		t.Fatalf("match.moved count = %d, want 8", n.count(wire.EvtMatchMoved))
	}
}

func TestTickCommitsTimeout(t *testing.T) {
	m, _, c := newTestMatch(t, 5, TierStandard)
	m.Start()
	p0, _ := sides(m)

	if err := m.SubmitMove(p0, rules.MoveSpec{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("move: %v", err)
	}
	c.advance(301 * time.Second)
	m.Tick()

	snap := m.Snapshot()
	if snap.Status != string(StatusFinished) || snap.EndReason != string(ReasonTimeout) {
		t.Fatalf("status/reason = %s/%s", snap.Status, snap.EndReason)
	}
	if snap.Result != string(ResultSide0Wins) {
		t.Fatalf("result = %s, want side0_wins", snap.Result)
	}
	if snap.ClocksRemaining.Side1 != 0 {
		t.Fatalf("flagged clock = %d, want 0", snap.ClocksRemaining.Side1)
	}
}

func TestLateTimersAreIdempotent(t *testing.T) {
	m, n, _ := newTestMatch(t, 5, TierStandard)
	m.Start()
	p0, p1 := sides(m)
	if err := m.Resign(p0); err != nil {
		t.Fatalf("resign: %v", err)
	}

	m.Tick()
	m.Abandon(p1)

	snap := m.Snapshot()
	if snap.Result != string(ResultSide1Wins) || snap.EndReason != string(ReasonResignation) {
		t.Fatalf("late timers altered the outcome: %s/%s", snap.Result, snap.EndReason)
	}
	if n.count(wire.EvtMatchEnded) != 2 {
		t.Fatalf("match.ended sent %d times, want 2", n.count(wire.EvtMatchEnded))
	}
}

func TestAbandonForfeits(t *testing.T) {
	m, _, _ := newTestMatch(t, 0, TierStandard)
	m.Start()
	_, p1 := sides(m)

	m.Abandon(p1)
	snap := m.Snapshot()
	if snap.Result != string(ResultSide0Wins) || snap.EndReason != string(ReasonAbandonment) {
		t.Fatalf("result/reason = %s/%s", snap.Result, snap.EndReason)
	}
}

func TestHistoryAndRewardsHandoff(t *testing.T) {
	n := &fakeNotifier{}
	rec := &fakeRecorder{ch: make(chan *wire.MatchSnapshot, 1)}
	rw := &fakeRewards{}
	c := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	finished := make(chan string, 1)

	m := New("m2", "alice", "bob", 3, TierPremium, Deps{
		Rules:      rules.NewEngine(),
		Notify:     n,
		History:    rec,
		Rewards:    rw,
		OnFinished: func(id string) { finished <- id },
		Now:        c.Now,
	})
	m.Start()
	p0, p1 := sides(m)

	if err := m.Resign(p1); err != nil {
		t.Fatalf("resign: %v", err)
	}

	select {
	case snap := <-rec.ch:
		if snap.ID != "m2" || snap.Status != string(StatusFinished) {
			t.Fatalf("recorded snapshot = %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("history record never called")
	}
	select {
	case id := <-finished:
		if id != "m2" {
			t.Fatalf("finished callback id = %s", id)
		}
	default:
		t.Fatalf("finished callback never called")
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if won, ok := rw.calls[p0]; !ok || !won {
		t.Fatalf("winner reward call = %v %v", won, ok)
	}
	if won, ok := rw.calls[p1]; !ok || won {
		t.Fatalf("loser reward call = %v %v", won, ok)
	}

	payload, _ := n.last(p0, wire.EvtMatchEnded)
	if payload.(wire.MatchEnded).Rewards == nil {
		t.Fatalf("winner match.ended carries no rewards")
	}
}

func TestStandardTierSkipsRewards(t *testing.T) {
	n := &fakeNotifier{}
	rw := &fakeRewards{}
	m := New("m3", "alice", "bob", 3, TierStandard, Deps{
		Rules:   rules.NewEngine(),
		Notify:  n,
		Rewards: rw,
	})
	m.Start()
	_, p1 := sides(m)
	if err := m.Resign(p1); err != nil {
		t.Fatalf("resign: %v", err)
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if len(rw.calls) != 0 {
		t.Fatalf("standard tier granted rewards: %v", rw.calls)
	}
}
