// Package network holds the client side of the server session: the
// connection state other components gate on and the outbound message queue
// that carries pushed preferences.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

const (
	defaultQueueSize = 16
	dialTimeout      = 10 * time.Second
	initialBackoff   = 500 * time.Millisecond
	maxBackoff       = 30 * time.Second
	backoffReset     = 30 * time.Second // reset backoff if a session lasted this long
)

var (
	ErrNotRunning = errors.New("network: session is not running")
	ErrQueueFull  = errors.New("network: outbound queue is full")
)

// Gate reports whether a remote session is active.
type Gate interface {
	IsRunning() bool
}

// Pusher sends preference changes to the server.
type Pusher interface {
	PushPlayerColor(ctx context.Context, c models.Color) error
}

// Message types on the wire.
const (
	MsgHello       = "hello"
	MsgPlayerColor = "player_color"
)

// Message is one newline-delimited JSON frame sent to the server.
type Message struct {
	Type       string        `json:"type"`
	PlayerName string        `json:"player_name,omitempty"`
	Color      *models.Color `json:"color,omitempty"`
}

// Session owns the connection state and the outbound queue. It implements
// Gate and Pusher. All methods are safe to call concurrently.
type Session struct {
	playerName string
	state      atomic.Int32
	out        chan Message
}

// NewSession creates a disconnected session. queueSize <= 0 uses the
// default.
func NewSession(playerName string, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Session{
		playerName: playerName,
		out:        make(chan Message, queueSize),
	}
}

// State returns the current connection state.
func (s *Session) State() models.ConnectionState {
	return models.ConnectionState(s.state.Load())
}

// SetState records a state transition made by the networking subsystem.
func (s *Session) SetState(st models.ConnectionState) {
	prev := models.ConnectionState(s.state.Swap(int32(st)))
	if prev != st {
		slog.Info("network: state changed", "from", prev.String(), "to", st.String())
	}
}

// IsRunning reports whether pushes are allowed.
func (s *Session) IsRunning() bool {
	return s.State() == models.Running
}

// PushPlayerColor queues the colour for the server and returns without
// waiting for it to be written.
func (s *Session) PushPlayerColor(ctx context.Context, c models.Color) error {
	if !s.IsRunning() {
		return ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.enqueue(Message{Type: MsgPlayerColor, PlayerName: s.playerName, Color: &c})
}

func (s *Session) enqueue(m Message) error {
	select {
	case s.out <- m:
		return nil
	default:
		slog.Warn("network: dropping message, queue full", "type", m.Type)
		return ErrQueueFull
	}
}

// Pending returns the number of queued messages.
func (s *Session) Pending() int { return len(s.out) }

// Run writes queued messages to w as newline-delimited JSON until ctx is
// done or a write fails.
func (s *Session) Run(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-s.out:
			if err := enc.Encode(m); err != nil {
				return fmt.Errorf("writing %s: %w", m.Type, err)
			}
			slog.Debug("network: sent", "type", m.Type)
		}
	}
}

// Dial connects to addr, performs the hello exchange and runs the writer
// until the connection drops or ctx is done. The state is Running only
// while the writer is active.
func (s *Session) Dial(ctx context.Context, addr string) error {
	s.SetState(models.Connecting)
	defer s.SetState(models.Disconnected)

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()
	s.SetState(models.Connected)

	s.SetState(models.Handshaking)
	hello := Message{Type: MsgHello, PlayerName: s.playerName}
	if err := json.NewEncoder(conn).Encode(hello); err != nil {
		return fmt.Errorf("handshake with %s: %w", addr, err)
	}
	s.SetState(models.Syncing)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The server never sends anything this client acts on; reading only
	// detects the remote end closing.
	readErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, conn)
		readErr <- err
		cancel()
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.drain()
	s.SetState(models.Running)
	err = s.Run(ctx, conn)
	s.SetState(models.Disconnected)
	s.drain()

	select {
	case rerr := <-readErr:
		if rerr != nil && !errors.Is(rerr, net.ErrClosed) {
			return fmt.Errorf("reading from %s: %w", addr, rerr)
		}
	default:
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Connect keeps a session to addr alive, redialling with exponential
// backoff until ctx is done.
func (s *Session) Connect(ctx context.Context, addr string) {
	backoff := initialBackoff
	for {
		start := time.Now()
		err := s.Dial(ctx, addr)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) >= backoffReset {
			backoff = initialBackoff
		}
		slog.Warn("network: session ended, reconnecting", "addr", addr, "err", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// drain discards messages queued for a connection that no longer exists.
func (s *Session) drain() {
	for {
		select {
		case <-s.out:
		default:
			return
		}
	}
}

var (
	_ Gate   = (*Session)(nil)
	_ Pusher = (*Session)(nil)
)
