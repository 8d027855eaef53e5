package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/solmate-arena/pkg/wire"
)

// Repository persists finished match snapshots.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record upserts one finished match. Keyed by match id, so retries after a
// partial failure are safe.
func (r *Repository) Record(ctx context.Context, snap *wire.MatchSnapshot) error {
	if r == nil || r.db == nil || snap == nil {
		return nil
	}

	pgnResult := mapResultToPGN(snap.Result)
	pgn := buildPGN(snap, pgnResult)
	movesRaw, _ := json.Marshal(snap.Moves)

	duration := snap.FinishedAt - snap.StartedAt
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO arena_matches (
	    match_id, side0_identity, side1_identity,
	    time_control_min, tier,
	    result, end_reason, moves, pgn,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	  ) ON CONFLICT (match_id) DO UPDATE SET
	    side0_identity=EXCLUDED.side0_identity,
	    side1_identity=EXCLUDED.side1_identity,
	    time_control_min=EXCLUDED.time_control_min,
	    tier=EXCLUDED.tier,
	    result=EXCLUDED.result,
	    end_reason=EXCLUDED.end_reason,
	    moves=EXCLUDED.moves,
	    pgn=EXCLUDED.pgn,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		snap.ID,
		snap.Sides["side0"], snap.Sides["side1"],
		snap.TimeControlMinutes, snap.Tier,
		snap.Result, snap.EndReason, string(movesRaw), pgn,
		time.UnixMilli(snap.StartedAt), time.UnixMilli(snap.FinishedAt), duration,
	)
	return err
}

func mapResultToPGN(result string) string {
	switch strings.TrimSpace(result) {
	case "side0_wins":
		return "1-0"
	case "side1_wins":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(snap *wire.MatchSnapshot, pgnResult string) string {
	if snap == nil {
		return ""
	}
	var b strings.Builder
	date := time.UnixMilli(snap.FinishedAt)
	if snap.FinishedAt == 0 {
		date = time.Now()
	}
	b.WriteString("[Event \"Solmate Arena\"]\n")
	b.WriteString("[Site \"arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(snap.Sides["side0"])))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(snap.Sides["side1"])))
	if snap.TimeControlMinutes > 0 {
		b.WriteString(fmt.Sprintf("[TimeControl \"%d\"]\n", snap.TimeControlMinutes*60))
	}
	if strings.TrimSpace(snap.EndReason) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(snap.EndReason)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(snap.Moves); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(snap.Moves[i].SAN)))
		if i+1 < len(snap.Moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(snap.Moves[i+1].SAN))
		}
		b.WriteString(" ")
	}
	if pgnResult != "" {
		b.WriteString(pgnResult)
	}
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
