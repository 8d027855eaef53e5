package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/solmate-arena/internal/obslog"
	"github.com/park285/solmate-arena/pkg/wire"
)

const (
	outboundBuffer = 64
	writeTimeout   = 5 * time.Second
)

// Conn wraps one websocket with a serialized writer. All outbound events go
// through the buffered channel so concurrent notifiers never interleave
// frames; a full buffer drops the event rather than blocking match logic.
type Conn struct {
	identity string
	ws       *websocket.Conn
	out      chan wire.Envelope
	done     chan struct{}
	once     sync.Once
}

func newConn(identity string, ws *websocket.Conn) *Conn {
	return &Conn{
		identity: identity,
		ws:       ws,
		out:      make(chan wire.Envelope, outboundBuffer),
		done:     make(chan struct{}),
	}
}

// Send queues one event for delivery. Best effort.
func (c *Conn) Send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		obslog.L().Error("ws_marshal_failed", zap.String("event", event), zap.Error(err))
		return
	}
	env := wire.Envelope{Type: event, Data: data}
	select {
	case c.out <- env:
	case <-c.done:
	default:
		obslog.L().Warn("ws_outbound_dropped",
			zap.String("identity", c.identity),
			zap.String("event", event),
		)
	}
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case env := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, env)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed",
					zap.String("identity", c.identity),
					zap.Error(err),
				)
				c.close()
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}
