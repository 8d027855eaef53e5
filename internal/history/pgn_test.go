package history

import (
	"strings"
	"testing"
	"time"

	"github.com/park285/solmate-arena/pkg/wire"
)

func TestMapResultToPGN(t *testing.T) {
	cases := map[string]string{
		"side0_wins": "1-0",
		"side1_wins": "0-1",
		"draw":       "1/2-1/2",
		"":           "*",
		"bogus":      "*",
	}
	for in, want := range cases {
		if got := mapResultToPGN(in); got != want {
			t.Fatalf("mapResultToPGN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildPGN(t *testing.T) {
	finished := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	snap := &wire.MatchSnapshot{
		ID:                 "m1",
		TimeControlMinutes: 5,
		Result:             "side0_wins",
		EndReason:          "checkmate",
		Sides:              map[string]string{"side0": "alice", "side1": "bob \"the rook\""},
		Moves: []wire.MoveInfo{
			{SAN: "e4"}, {SAN: "e5"},
			{SAN: "Qh5"}, {SAN: "Nc6"},
			{SAN: "Bc4"}, {SAN: "Nf6"},
			{SAN: "Qxf7#"},
		},
		FinishedAt: finished.UnixMilli(),
	}

	pgn := buildPGN(snap, mapResultToPGN(snap.Result))

	for _, want := range []string{
		"[Event \"Solmate Arena\"]",
		"[Date \"2026.03.14\"]",
		"[White \"alice\"]",
		"[Black \"bob 'the rook'\"]",
		"[TimeControl \"300\"]",
		"[Termination \"checkmate\"]",
		"[Result \"1-0\"]",
		"1. e4 e5",
		"2. Qh5 Nc6",
		"4. Qxf7#",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(pgn), "1-0") {
		t.Fatalf("pgn must end with the result:\n%s", pgn)
	}
}

func TestBuildPGNUntimed(t *testing.T) {
	snap := &wire.MatchSnapshot{
		Sides:  map[string]string{"side0": "a", "side1": "b"},
		Result: "draw",
	}
	pgn := buildPGN(snap, mapResultToPGN(snap.Result))
	if strings.Contains(pgn, "TimeControl") {
		t.Fatalf("untimed match must not carry a TimeControl header:\n%s", pgn)
	}
}
