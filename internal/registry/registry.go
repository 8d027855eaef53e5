package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/solmate-arena/internal/obslog"
)

// Conn is a live outbound channel to one identity.
type Conn interface {
	Send(event string, payload any)
}

// Registry maps stable identities to their current connection and to the
// match they occupy. Connections churn; the identity entry survives across
// reconnects for as long as a grace timer or match pointer holds it.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]Conn
	matches map[string]string
	timers  map[string]*time.Timer
	grace   time.Duration
}

func New(grace time.Duration) *Registry {
	return &Registry{
		conns:   make(map[string]Conn),
		matches: make(map[string]string),
		timers:  make(map[string]*time.Timer),
		grace:   grace,
	}
}

// Bind installs conn as the identity's live connection, cancelling any
// pending grace timer. Returns the match the identity occupies, if any.
func (r *Registry) Bind(identity string, conn Conn) (matchID string, reattached bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[identity]; ok {
		t.Stop()
		delete(r.timers, identity)
	}
	_, hadConn := r.conns[identity]
	r.conns[identity] = conn
	matchID = r.matches[identity]
	return matchID, matchID != "" && !hadConn
}

// Drop removes the identity's connection mapping, but only if conn is still
// the current one. A reconnect that already replaced it wins the race.
func (r *Registry) Drop(identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[identity]; !ok || current != conn {
		return false
	}
	delete(r.conns, identity)
	return true
}

// ConnOf returns the identity's live connection.
func (r *Registry) ConnOf(identity string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[identity]
	return c, ok
}

// SetMatch points the identity at a match.
func (r *Registry) SetMatch(identity, matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[identity] = matchID
}

// ClearMatch releases the identity's match pointer and any grace timer.
func (r *Registry) ClearMatch(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, identity)
	if t, ok := r.timers[identity]; ok {
		t.Stop()
		delete(r.timers, identity)
	}
}

// MatchOf returns the match the identity currently occupies.
func (r *Registry) MatchOf(identity string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.matches[identity]
	return id, ok
}

// StartGrace arms the reconnection window for identity. onExpire runs once
// when the window elapses without a Bind; a timer already pending is left
// alone. The callback re-checks match state itself, so a late fire after the
// match ended is harmless.
func (r *Registry) StartGrace(identity string, onExpire func(identity string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, pending := r.timers[identity]; pending {
		return
	}
	r.timers[identity] = time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		delete(r.timers, identity)
		r.mu.Unlock()
		obslog.L().Info("grace_expired", zap.String("identity", identity))
		onExpire(identity)
	})
	obslog.L().Info("grace_started",
		zap.String("identity", identity),
		zap.Duration("grace", r.grace),
	)
}

// CancelGrace disarms a pending grace timer.
func (r *Registry) CancelGrace(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[identity]; ok {
		t.Stop()
		delete(r.timers, identity)
	}
}

// Notify sends one event to identity. Best effort; without a live
// connection the event is dropped.
func (r *Registry) Notify(identity, event string, payload any) {
	r.mu.Lock()
	conn, ok := r.conns[identity]
	r.mu.Unlock()
	if !ok {
		return
	}
	conn.Send(event, payload)
}

// Online returns the number of live connections.
func (r *Registry) Online() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
