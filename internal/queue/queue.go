package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrAlreadyQueued      = errors.New("already queued")
	ErrInvalidTimeControl = errors.New("invalid time control")
	ErrInvalidTier        = errors.New("invalid tier")
)

// validTimeControls are the offered time controls in minutes. 0 is untimed.
var validTimeControls = map[int]bool{0: true, 3: true, 5: true, 10: true}

// ValidTimeControl reports whether minutes is an offered time control.
func ValidTimeControl(minutes int) bool { return validTimeControls[minutes] }

// Entry is one waiting player.
type Entry struct {
	Identity           string
	TimeControlMinutes int
	Tier               string
	JoinedAt           time.Time
}

type bucketKey struct {
	minutes int
	tier    string
}

// Buckets holds the FIFO waiting lists, one per time-control and tier pair.
// An identity sits in at most one bucket.
type Buckets struct {
	mu         sync.Mutex
	buckets    map[bucketKey][]*Entry
	byIdentity map[string]bucketKey
}

func NewBuckets() *Buckets {
	return &Buckets{
		buckets:    make(map[bucketKey][]*Entry),
		byIdentity: make(map[string]bucketKey),
	}
}

// Enqueue adds identity to its bucket. If an opponent is already waiting the
// oldest one is popped and returned with paired=true; otherwise the entry is
// appended and position is its 1-based place in line.
func (b *Buckets) Enqueue(identity string, minutes int, tier string) (opponent *Entry, position int, err error) {
	if !validTimeControls[minutes] {
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidTimeControl, minutes)
	}
	if tier != "standard" && tier != "premium" {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidTier, tier)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byIdentity[identity]; exists {
		return nil, 0, ErrAlreadyQueued
	}

	key := bucketKey{minutes, tier}
	waiting := b.buckets[key]
	if len(waiting) > 0 {
		oldest := waiting[0]
		b.buckets[key] = waiting[1:]
		delete(b.byIdentity, oldest.Identity)
		return oldest, 0, nil
	}

	b.buckets[key] = append(waiting, &Entry{
		Identity:           identity,
		TimeControlMinutes: minutes,
		Tier:               tier,
		JoinedAt:           time.Now(),
	})
	b.byIdentity[identity] = key
	return nil, len(b.buckets[key]), nil
}

// Remove drops identity from its bucket. No-op if absent.
func (b *Buckets) Remove(identity string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key, ok := b.byIdentity[identity]
	if !ok {
		return false
	}
	delete(b.byIdentity, identity)
	waiting := b.buckets[key]
	for i, e := range waiting {
		if e.Identity == identity {
			b.buckets[key] = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(b.buckets[key]) == 0 {
		delete(b.buckets, key)
	}
	return true
}

// Contains reports whether identity is waiting in any bucket.
func (b *Buckets) Contains(identity string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.byIdentity[identity]
	return ok
}

// Waiting returns the number of waiters per bucket, keyed
// "<minutes>m/<tier>".
func (b *Buckets) Waiting() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.buckets))
	for key, waiting := range b.buckets {
		out[fmt.Sprintf("%dm/%s", key.minutes, key.tier)] = len(waiting)
	}
	return out
}
