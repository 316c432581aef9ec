package fanout

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	SendQueueSize = 128
	writeWait     = 10 * time.Second
	PongWait      = 60 * time.Second
	pingPeriod    = (PongWait * 9) / 10

	// CloseSessionReplaced is sent to a connection superseded by a newer one
	// from the same device.
	CloseSessionReplaced = 4000
)

// Conn is the part of *websocket.Conn a session writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one live connection of one device. Writes go through SendQueue
// and are drained by a single writer goroutine.
type Session struct {
	ID       string
	UserID   string
	DeviceID string

	conn      Conn
	SendQueue chan []byte
	done      chan struct{}
	closed    atomic.Int32
	// resuming is set while a client catch-up is in flight; live events are
	// held back until it finishes.
	resuming atomic.Bool

	resumeMu     sync.Mutex
	resumeBuffer []bufferedEvent

	log *zap.Logger
}

type bufferedEvent struct {
	sequence   int64
	occurredAt time.Time
	payload    []byte
}

func NewSession(id, userID, deviceID string, conn Conn, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		ID:        id,
		UserID:    userID,
		DeviceID:  deviceID,
		conn:      conn,
		SendQueue: make(chan []byte, SendQueueSize),
		done:      make(chan struct{}),
		log: log.With(
			zap.String("connection_id", id),
			zap.String("user_id", userID),
			zap.String("device_id", deviceID),
		),
	}
}

func (s *Session) Start() {
	go s.writeLoop()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Closed() bool {
	return s.closed.Load() == 1
}

// BeginResume holds live events back until FlushBufferSorted is called.
func (s *Session) BeginResume() {
	s.resumeMu.Lock()
	s.resuming.Store(true)
	s.resumeMu.Unlock()
}

func (s *Session) IsResuming() bool {
	return s.resuming.Load()
}

// Buffer keeps ev for later if a resume is in progress and reports whether it did.
func (s *Session) Buffer(ev domain.Event, payload []byte) bool {
	s.resumeMu.Lock()
	defer s.resumeMu.Unlock()

	if !s.resuming.Load() {
		return false
	}

	s.resumeBuffer = append(s.resumeBuffer, bufferedEvent{
		sequence:   ev.Sequence,
		occurredAt: ev.OccurredAt,
		payload:    payload,
	})
	return true
}

// FlushBufferSorted ends a resume and sends the held events ordered by
// sequence, falling back to occurrence time.
func (s *Session) FlushBufferSorted() {
	s.resumeMu.Lock()
	defer s.resumeMu.Unlock()

	if !s.resuming.Load() {
		return
	}

	sort.SliceStable(s.resumeBuffer, func(i, j int) bool {
		a, b := s.resumeBuffer[i], s.resumeBuffer[j]
		if a.sequence != 0 && b.sequence != 0 && a.sequence != b.sequence {
			return a.sequence < b.sequence
		}
		return a.occurredAt.Before(b.occurredAt)
	})

	// Flip while holding the lock so Buffer cannot append after the drain.
	s.resuming.Store(false)

	for _, b := range s.resumeBuffer {
		if !s.TrySend(b.payload) {
			s.log.Warn("session: failed to send buffered event")
		}
	}
	s.resumeBuffer = nil
}

// TrySend enqueues msg without blocking. A full queue closes the session.
func (s *Session) TrySend(msg []byte) bool {
	if s.Closed() {
		observability.FanoutDroppedTotal.WithLabelValues("closed").Inc()
		return false
	}
	select {
	case s.SendQueue <- msg:
		return true
	default:
		s.log.Warn("session: backpressure overflow, dropping connection")
		observability.FanoutDroppedTotal.WithLabelValues("backpressure").Inc()
		s.CloseWithReason(websocket.CloseTryAgainLater, "backpressure overflow")
		return false
	}
}

// Send enqueues msg, waiting for queue space. It is meant for catch-up
// traffic produced by the session's own reader, never for fan-out.
func (s *Session) Send(ctx context.Context, msg []byte) bool {
	if s.Closed() {
		return false
	}
	select {
	case s.SendQueue <- msg:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Session) Close() {
	s.CloseWithReason(websocket.CloseNormalClosure, "server closing")
}

func (s *Session) CloseWithReason(code int, reason string) {
	if !s.closed.CompareAndSwap(0, 1) {
		return
	}

	s.log.Info("session: closing", zap.Int("code", code), zap.String("reason", reason))
	close(s.done)

	if s.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = s.conn.Close()
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case msg := <-s.SendQueue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug("session: write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug("session: ping error", zap.Error(err))
				return
			}
		case <-s.done:
			return
		}
	}
}
