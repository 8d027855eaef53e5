package rules

import (
	"errors"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var ErrIllegalMove = errors.New("illegal move")

// Position is an immutable board state. The FEN is presentation data; the
// move list is authoritative and games are always replayed from the start
// position, so the same history can never double-apply.
type Position struct {
	fen   string
	moves []string
}

// Start returns the standard initial position.
func Start() Position {
	return Position{fen: nchess.NewGame().FEN()}
}

// FEN returns the position in Forsyth-Edwards notation.
func (p Position) FEN() string { return p.fen }

// MovesUCI returns the move history in UCI form.
func (p Position) MovesUCI() []string {
	out := make([]string, len(p.moves))
	copy(out, p.moves)
	return out
}

// MoveCount returns the number of moves played.
func (p Position) MoveCount() int { return len(p.moves) }

// MoveSpec is one proposed move. From/To are square names; Promotion is the
// optional piece letter (q, r, b, n).
type MoveSpec struct {
	From      string
	To        string
	Promotion string
}

// Outcome is the result of applying one move.
type Outcome struct {
	SAN         string
	UCI         string
	IsCheck     bool
	IsCheckmate bool
	IsDraw      bool
	Position    Position
}

// Engine validates and applies moves with full chess rules.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Apply validates mv against pos and returns the outcome. The input position
// is never mutated; the outcome carries the successor. ErrIllegalMove covers
// malformed input as well as rule violations.
func (e *Engine) Apply(pos Position, mv MoveSpec) (Outcome, error) {
	uci := strings.ToLower(strings.TrimSpace(mv.From) + strings.TrimSpace(mv.To) + strings.TrimSpace(mv.Promotion))
	if len(uci) < 4 {
		return Outcome{}, ErrIllegalMove
	}

	game := reconstruct(pos.moves)
	if game == nil {
		return Outcome{}, errors.New("corrupt move history")
	}

	before := game.Position()
	decoded, err := nchess.UCINotation{}.Decode(before, uci)
	if err != nil {
		return Outcome{}, ErrIllegalMove
	}
	if err := game.Move(decoded, nil); err != nil {
		return Outcome{}, ErrIllegalMove
	}

	san := nchess.AlgebraicNotation{}.Encode(before, decoded)
	next := Position{
		fen:   game.FEN(),
		moves: append(append([]string(nil), pos.moves...), uci),
	}

	out := Outcome{
		SAN:         san,
		UCI:         uci,
		IsCheck:     strings.HasSuffix(san, "+") || strings.HasSuffix(san, "#"),
		IsCheckmate: strings.HasSuffix(san, "#"),
		Position:    next,
	}
	if game.Outcome() == nchess.Draw {
		out.IsDraw = true
	}
	return out, nil
}

func reconstruct(moves []string) *nchess.Game {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil
		}
	}
	return game
}
