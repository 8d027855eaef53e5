package registry

import (
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeConn) Send(event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeConn) got(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestBindReportsReattach(t *testing.T) {
	r := New(time.Minute)
	c1 := &fakeConn{}

	if matchID, reattached := r.Bind("alice", c1); matchID != "" || reattached {
		t.Fatalf("fresh bind = %q %v", matchID, reattached)
	}

	r.SetMatch("alice", "m1")
	r.Drop("alice", c1)

	c2 := &fakeConn{}
	matchID, reattached := r.Bind("alice", c2)
	if matchID != "m1" || !reattached {
		t.Fatalf("rebind = %q %v, want m1 true", matchID, reattached)
	}
}

func TestDropIgnoresStaleConn(t *testing.T) {
	r := New(time.Minute)
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	r.Bind("alice", c1)
	r.Bind("alice", c2)

	if r.Drop("alice", c1) {
		t.Fatalf("stale drop must not win")
	}
	if _, ok := r.ConnOf("alice"); !ok {
		t.Fatalf("current connection lost to a stale drop")
	}
	if !r.Drop("alice", c2) {
		t.Fatalf("current drop should succeed")
	}
}

func TestGraceFires(t *testing.T) {
	r := New(20 * time.Millisecond)
	fired := make(chan string, 1)
	r.StartGrace("alice", func(id string) { fired <- id })

	select {
	case id := <-fired:
		if id != "alice" {
			t.Fatalf("fired for %s", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("grace timer never fired")
	}
}

func TestGraceCancelledByBind(t *testing.T) {
	r := New(30 * time.Millisecond)
	fired := make(chan string, 1)
	r.StartGrace("alice", func(id string) { fired <- id })
	r.Bind("alice", &fakeConn{})

	select {
	case <-fired:
		t.Fatalf("grace fired despite reconnect")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGraceNotRearmedWhilePending(t *testing.T) {
	r := New(30 * time.Millisecond)
	fired := make(chan string, 2)
	r.StartGrace("alice", func(id string) { fired <- id })
	r.StartGrace("alice", func(id string) { fired <- id })

	time.Sleep(120 * time.Millisecond)
	if len(fired) != 1 {
		t.Fatalf("grace fired %d times, want 1", len(fired))
	}
}

func TestClearMatchDisarmsTimer(t *testing.T) {
	r := New(30 * time.Millisecond)
	r.SetMatch("alice", "m1")
	fired := make(chan string, 1)
	r.StartGrace("alice", func(id string) { fired <- id })
	r.ClearMatch("alice")

	select {
	case <-fired:
		t.Fatalf("grace fired after match cleared")
	case <-time.After(100 * time.Millisecond):
	}
	if _, ok := r.MatchOf("alice"); ok {
		t.Fatalf("match pointer survived clear")
	}
}

func TestNotifyDeliversToLiveConn(t *testing.T) {
	r := New(time.Minute)
	c := &fakeConn{}
	r.Bind("alice", c)

	r.Notify("alice", "match.found", nil)
	if !c.got("match.found") {
		t.Fatalf("event not delivered")
	}
	r.Notify("ghost", "match.found", nil) // must not panic
}
