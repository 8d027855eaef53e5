package invite

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/solmate-arena/internal/obslog"
)

// Status of an invitation record.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusMatched   Status = "matched"
	StatusStarted   Status = "started"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var (
	ErrNotFound   = errors.New("invite not found")
	ErrExpired    = errors.New("invite expired")
	ErrSelfJoin   = errors.New("cannot join own invite")
	ErrNotCreator = errors.New("only the creator may cancel")
	ErrNotWaiting = errors.New("invite no longer waiting")
)

// codeAlphabet omits visually ambiguous characters (0/O, 1/I/l).
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	maxCodeTries = 10
)

// Invitation is the durable record behind one shareable code.
type Invitation struct {
	Code               string    `json:"code"`
	CreatorIdentity    string    `json:"creatorIdentity"`
	JoinerIdentity     string    `json:"joinerIdentity,omitempty"`
	TimeControlMinutes int       `json:"timeControlMinutes"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

func (inv *Invitation) expired(now time.Time) bool {
	return now.After(inv.ExpiresAt)
}

// Manager owns invitation records in redis. Records outlive their usable
// window by one extra TTL so joiners get an explicit expiry answer instead
// of a vanished key.
type Manager struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewManager(rdb *redis.Client, ttl time.Duration) *Manager {
	return &Manager{rdb: rdb, ttl: ttl, now: time.Now}
}

func codeKey(code string) string        { return "arena:invite:" + code }
func creatorKey(identity string) string { return "arena:invite:creator:" + identity }

// Create allocates a fresh code for creator, or returns the creator's
// existing invitation while it is still waiting and unexpired.
func (m *Manager) Create(ctx context.Context, creator string, minutes int) (*Invitation, error) {
	if existing, err := m.activeByCreator(ctx, creator); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	now := m.now()
	inv := &Invitation{
		CreatorIdentity:    creator,
		TimeControlMinutes: minutes,
		Status:             StatusWaiting,
		CreatedAt:          now,
		ExpiresAt:          now.Add(m.ttl),
	}

	for attempt := 0; attempt < maxCodeTries; attempt++ {
		code, err := randomCode()
		if err != nil {
			return nil, err
		}
		inv.Code = code
		raw, err := json.Marshal(inv)
		if err != nil {
			return nil, err
		}
		ok, err := m.rdb.SetNX(ctx, codeKey(code), raw, 2*m.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("invite setnx: %w", err)
		}
		if !ok {
			continue
		}
		if err := m.rdb.Set(ctx, creatorKey(creator), code, 2*m.ttl).Err(); err != nil {
			return nil, fmt.Errorf("invite creator index: %w", err)
		}
		obslog.L().Info("invite_created",
			zap.String("code", code),
			zap.String("creator", creator),
			zap.Int("time_control_min", minutes),
		)
		return inv, nil
	}
	return nil, errors.New("invite code space exhausted")
}

// Get loads the invitation behind code. A record past its usable window
// returns ErrExpired.
func (m *Manager) Get(ctx context.Context, code string) (*Invitation, error) {
	inv, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusWaiting && inv.expired(m.now()) {
		return nil, ErrExpired
	}
	return inv, nil
}

// Join claims the invitation for joiner, moving it to matched. The claim is
// guarded with WATCH so two simultaneous joiners cannot both win.
func (m *Manager) Join(ctx context.Context, code, joiner string) (*Invitation, error) {
	var claimed *Invitation
	key := codeKey(normalizeCode(code))
	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var inv Invitation
		if err := json.Unmarshal(raw, &inv); err != nil {
			return err
		}
		if inv.CreatorIdentity == joiner {
			return ErrSelfJoin
		}
		if inv.Status != StatusWaiting {
			return ErrNotWaiting
		}
		if inv.expired(m.now()) {
			return ErrExpired
		}

		inv.Status = StatusMatched
		inv.JoinerIdentity = joiner
		newRaw, err := json.Marshal(&inv)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newRaw, redis.KeepTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		claimed = &inv
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("invite_joined", zap.String("code", claimed.Code), zap.String("joiner", joiner))
	return claimed, nil
}

// MarkStarted records that the match was constructed from this invitation.
func (m *Manager) MarkStarted(ctx context.Context, code string) error {
	inv, err := m.load(ctx, code)
	if err != nil {
		return err
	}
	inv.Status = StatusStarted
	return m.save(ctx, inv)
}

// Cancel voids a waiting invitation. Creator only.
func (m *Manager) Cancel(ctx context.Context, creator, code string) error {
	inv, err := m.load(ctx, code)
	if err != nil {
		return err
	}
	if inv.CreatorIdentity != creator {
		return ErrNotCreator
	}
	if inv.Status != StatusWaiting {
		return ErrNotWaiting
	}
	inv.Status = StatusCancelled
	if err := m.save(ctx, inv); err != nil {
		return err
	}
	if err := m.rdb.Del(ctx, creatorKey(creator)).Err(); err != nil {
		return err
	}
	obslog.L().Info("invite_cancelled", zap.String("code", inv.Code), zap.String("creator", creator))
	return nil
}

func (m *Manager) activeByCreator(ctx context.Context, creator string) (*Invitation, error) {
	code, err := m.rdb.Get(ctx, creatorKey(creator)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv, err := m.load(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusWaiting || inv.expired(m.now()) {
		return nil, nil
	}
	return inv, nil
}

func (m *Manager) load(ctx context.Context, code string) (*Invitation, error) {
	raw, err := m.rdb.Get(ctx, codeKey(normalizeCode(code))).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var inv Invitation
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (m *Manager) save(ctx context.Context, inv *Invitation) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, codeKey(inv.Code), raw, redis.KeepTTL).Err()
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := crand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}
