package rewards

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/solmate-arena/pkg/wire"
)

// streakChestEvery grants a silver chest and a gold point each time a win
// streak reaches a multiple of this length.
const streakChestEvery = 5

// Service keeps per-identity win/loss counters and grants premium chests.
// It also answers the premium entitlement check used at queue entry.
type Service struct {
	db *sql.DB
}

func NewService(databaseURL string) (*Service, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Service{db: db}, nil
}

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// IsPremium reports whether identity holds the premium entitlement. Unknown
// identities are standard.
func (s *Service) IsPremium(ctx context.Context, identity string) (bool, error) {
	var premium bool
	err := s.db.QueryRowContext(ctx,
		`SELECT premium FROM arena_accounts WHERE identity = $1`, identity,
	).Scan(&premium)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return premium, nil
}

// Apply records one decisive premium result for identity and returns what was
// granted. A win earns a bronze chest and extends the streak; every fifth
// consecutive win adds a silver chest and a gold point. A loss resets the
// streak.
func (s *Service) Apply(ctx context.Context, identity string, won bool, tier string) (*wire.Rewards, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO arena_accounts (identity) VALUES ($1) ON CONFLICT (identity) DO NOTHING`,
		identity,
	); err != nil {
		return nil, err
	}

	var streak int
	if err := tx.QueryRowContext(ctx,
		`SELECT streak FROM arena_accounts WHERE identity = $1 FOR UPDATE`, identity,
	).Scan(&streak); err != nil {
		return nil, err
	}

	granted := &wire.Rewards{}
	if won {
		streak++
		granted.Streak = streak
		if tier == "premium" {
			granted.BronzeChests = 1
			if streak%streakChestEvery == 0 {
				granted.SilverChests = 1
				granted.GoldPoints = 1
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE arena_accounts SET
			    wins = wins + 1,
			    streak = $2,
			    bronze_chests = bronze_chests + $3,
			    silver_chests = silver_chests + $4,
			    gold_points = gold_points + $5,
			    updated_at = now()
			  WHERE identity = $1`,
			identity, streak, granted.BronzeChests, granted.SilverChests, granted.GoldPoints,
		)
	} else {
		granted.StreakReset = streak > 0
		granted.Streak = 0
		_, err = tx.ExecContext(ctx,
			`UPDATE arena_accounts SET
			    losses = losses + 1,
			    streak = 0,
			    updated_at = now()
			  WHERE identity = $1`,
			identity,
		)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return granted, nil
}
