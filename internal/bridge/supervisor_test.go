package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

type scriptedConnector struct {
	mu      sync.Mutex
	results []error
	calls   int
	called  chan int
}

func (c *scriptedConnector) Connect(context.Context, string, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.called <- c.calls
	if len(c.results) == 0 {
		return nil
	}
	err := c.results[0]
	c.results = c.results[1:]
	return err
}

func newSupervisor(conn *scriptedConnector) *Supervisor {
	return NewSupervisor(conn, "localhost:4444", "pw", SupervisorOptions{
		MinBackoff: time.Millisecond,
		MaxBackoff: 4 * time.Millisecond,
		Log:        zerolog.Nop(),
	})
}

func waitCall(t *testing.T, ch chan int) int {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no connect attempt")
		return 0
	}
}

func TestSupervisor_RetriesNetworkErrors(t *testing.T) {
	conn := &scriptedConnector{
		results: []error{errors.New("refused"), errors.New("refused"), nil},
		called:  make(chan int, 8),
	}
	s := newSupervisor(conn)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Equal(t, 1, waitCall(t, conn.called))
	assert.Equal(t, 2, waitCall(t, conn.called))
	assert.Equal(t, 3, waitCall(t, conn.called))

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisor_ReconnectsAfterDrop(t *testing.T) {
	conn := &scriptedConnector{called: make(chan int, 8)}
	s := newSupervisor(conn)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitCall(t, conn.called)
	s.Disconnected(client.DisconnectInfo{Reason: client.ReasonRemoteClosed})
	assert.Equal(t, 2, waitCall(t, conn.called))
}

func TestSupervisor_StopsOnAuthFailure(t *testing.T) {
	conn := &scriptedConnector{results: []error{client.ErrAuthFailed}, called: make(chan int, 8)}
	err := newSupervisor(conn).Run(context.Background())
	assert.ErrorIs(t, err, client.ErrAuthFailed)
	assert.Equal(t, 1, conn.calls)
}

func TestSupervisor_IgnoresRequestedDisconnect(t *testing.T) {
	conn := &scriptedConnector{called: make(chan int, 8)}
	s := newSupervisor(conn)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitCall(t, conn.called)
	s.Disconnected(client.DisconnectInfo{Reason: client.ReasonRequested})
	select {
	case n := <-conn.called:
		t.Fatalf("unexpected reconnect %d", n)
	case <-time.After(30 * time.Millisecond):
	}
}
