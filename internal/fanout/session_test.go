package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	closeMsg []byte
	closed   bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.TextMessage {
		c.written = append(c.written, data)
	}
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.CloseMessage {
		c.closeMsg = data
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func (c *fakeConn) closeCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.closeMsg) < 2 {
		return 0
	}
	return int(c.closeMsg[0])<<8 | int(c.closeMsg[1])
}

func TestSession_WriteLoopDrainsQueue(t *testing.T) {
	conn := &fakeConn{}
	s := NewSession("s1", "u1", "d1", conn, nil)
	s.Start()
	defer s.Close()

	require.True(t, s.TrySend([]byte("a")))
	require.True(t, s.TrySend([]byte("b")))

	assert.Eventually(t, func() bool { return len(conn.messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a", string(conn.messages()[0]))
}

func TestSession_BackpressureClosesConnection(t *testing.T) {
	conn := &fakeConn{}
	s := NewSession("s1", "u1", "d1", conn, nil)

	for i := 0; i < SendQueueSize; i++ {
		require.True(t, s.TrySend([]byte("x")))
	}
	assert.False(t, s.TrySend([]byte("overflow")))

	select {
	case <-s.Done():
	default:
		t.Fatal("session should be closed after overflow")
	}
	assert.Equal(t, websocket.CloseTryAgainLater, conn.closeCode())
	assert.False(t, s.TrySend([]byte("late")), "sends after close are dropped")
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	s := NewSession("s1", "u1", "d1", conn, nil)

	s.CloseWithReason(CloseSessionReplaced, "session_replaced")
	s.Close()

	assert.True(t, s.Closed())
	assert.Equal(t, CloseSessionReplaced, conn.closeCode())
}

func TestSession_ResumeBuffering(t *testing.T) {
	s := NewSession("s1", "u1", "d1", nil, nil)
	base := time.Now()

	ev := func(seq int64, at time.Duration) domain.Event {
		return domain.Event{Type: domain.EventMessageCreated, Sequence: seq, OccurredAt: base.Add(at)}
	}

	assert.False(t, s.Buffer(ev(1, 0), []byte("live")), "nothing is held outside a resume")

	s.BeginResume()
	require.True(t, s.IsResuming())
	s.Buffer(ev(3, 3*time.Second), []byte("3"))
	s.Buffer(ev(1, 1*time.Second), []byte("1"))
	s.Buffer(ev(2, 2*time.Second), []byte("2"))
	s.FlushBufferSorted()

	assert.False(t, s.IsResuming())
	require.Len(t, s.SendQueue, 3)
	for _, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, string(<-s.SendQueue))
	}
}

func TestSession_ResumeBufferingMixed(t *testing.T) {
	s := NewSession("s1", "u1", "d1", nil, nil)
	t1 := time.Now().Add(100 * time.Millisecond)
	t2 := time.Now().Add(200 * time.Millisecond)

	s.BeginResume()
	s.Buffer(domain.Event{Type: domain.EventMessageCreated, Sequence: 2, OccurredAt: t2}, []byte("message"))
	s.Buffer(domain.Event{Type: domain.EventTyping, OccurredAt: t1}, []byte("typing"))
	s.FlushBufferSorted()

	assert.Equal(t, "typing", string(<-s.SendQueue))
	assert.Equal(t, "message", string(<-s.SendQueue))
}

func decodeEvent(t *testing.T, payload []byte) domain.Event {
	t.Helper()
	var ev domain.Event
	require.NoError(t, json.Unmarshal(payload, &ev))
	return ev
}

func TestSession_SendWaitsForRoom(t *testing.T) {
	s := NewSession("c1", "u1", "d1", &fakeConn{}, nil)
	for i := 0; i < SendQueueSize; i++ {
		require.True(t, s.TrySend([]byte("x")))
	}

	sent := make(chan bool, 1)
	go func() { sent <- s.Send(context.Background(), []byte("late")) }()

	select {
	case <-sent:
		t.Fatal("Send returned while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	<-s.SendQueue
	assert.True(t, <-sent)
	assert.False(t, s.Closed())
}

func TestSession_SendGivesUpOnClose(t *testing.T) {
	s := NewSession("c1", "u1", "d1", &fakeConn{}, nil)
	for i := 0; i < SendQueueSize; i++ {
		require.True(t, s.TrySend([]byte("x")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, s.Send(ctx, []byte("late")))

	s.Close()
	assert.False(t, s.Send(context.Background(), []byte("after close")))
}
