package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go-pos-sync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	writeErr error
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) events(t *testing.T) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, 0, len(c.frames))
	for _, f := range c.frames {
		var evt Event
		require.NoError(t, json.Unmarshal(f, &evt))
		out = append(out, evt)
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, nil)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub, _ := startHub(t)
	a, b := &fakeConn{}, &fakeConn{}
	hub.Register <- Client{Conn: a}
	hub.Register <- Client{Conn: b}
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Publish(context.Background(), NewChange(TableSales, ActionInsert, "s-1", map[string]int{"order_number": 7}))

	for _, conn := range []*fakeConn{a, b} {
		conn := conn
		require.Eventually(t, func() bool { return len(conn.events(t)) == 1 }, time.Second, 5*time.Millisecond)
		evt := conn.events(t)[0]
		assert.Equal(t, TypeChange, evt.Type)
		assert.Equal(t, TableSales, evt.Table)
		assert.Equal(t, ActionInsert, evt.Action)
		assert.Equal(t, "s-1", evt.RecordID)
		assert.JSONEq(t, `{"order_number":7}`, string(evt.Record))
	}
}

func TestHubDropsClientOnWriteError(t *testing.T) {
	hub, _ := startHub(t)
	good := &fakeConn{}
	bad := &fakeConn{writeErr: errors.New("broken pipe")}
	hub.Register <- Client{Conn: good}
	hub.Register <- Client{Conn: bad}

	hub.Publish(context.Background(), NewChange(TableProducts, ActionUpdate, "p-1", nil))

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, bad.isClosed())
	assert.Len(t, good.events(t), 1)
}

func TestHubUnregisterAndShutdownCloseClients(t *testing.T) {
	hub, cancel := startHub(t)
	a, b := &fakeConn{}, &fakeConn{}
	hub.Register <- Client{Conn: a}
	hub.Register <- Client{Conn: b}

	hub.Unregister <- a
	require.Eventually(t, a.isClosed, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	cancel()
	require.Eventually(t, b.isClosed, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubClosesSessionsRevokedByGlobalLogout(t *testing.T) {
	hub, _ := startHub(t)
	issued := time.UnixMilli(1_700_000_000_000)
	stale, fresh := &fakeConn{}, &fakeConn{}
	require.True(t, hub.Add(stale, issued))
	require.True(t, hub.Add(fresh, issued.Add(time.Second)))

	// Same-millisecond sessions survive.
	marker := model.LogoutMarker{At: issued}
	hub.Publish(context.Background(), NewChange(TableAppConfig, ActionUpdate, model.ConfigLastGlobalLogoutAt, marker))
	require.Eventually(t, func() bool { return len(stale.events(t)) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, stale.isClosed())

	marker = model.LogoutMarker{At: issued.Add(time.Millisecond)}
	hub.Publish(context.Background(), NewChange(TableAppConfig, ActionUpdate, model.ConfigLastGlobalLogoutAt, marker))

	require.Eventually(t, stale.isClosed, time.Second, 5*time.Millisecond)
	assert.Len(t, stale.events(t), 2, "the logout frame is delivered before the close")
	assert.Equal(t, 1, hub.ClientCount())
	assert.False(t, fresh.isClosed())

	hub.Publish(context.Background(), NewChange(TableSales, ActionInsert, "s-1", nil))
	require.Eventually(t, func() bool { return len(fresh.events(t)) == 3 }, time.Second, 5*time.Millisecond)
	assert.Len(t, stale.events(t), 2)
}

func TestHubIgnoresOtherConfigFrames(t *testing.T) {
	hub, _ := startHub(t)
	conn := &fakeConn{}
	require.True(t, hub.Add(conn, time.Time{}))

	hub.Publish(context.Background(), NewChange(TableAppConfig, ActionUpdate, model.ConfigAdminPassword, nil))
	require.Eventually(t, func() bool { return len(conn.events(t)) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, conn.isClosed())
	assert.Equal(t, 1, hub.ClientCount())
}

func TestStockAlertEvent(t *testing.T) {
	evt := NewStockAlert("p-9", map[string]any{"level": "out_of_stock", "stock": 0})
	assert.Equal(t, TypeStockAlert, evt.Type)
	assert.Equal(t, TableProducts, evt.Table)
	assert.Equal(t, "p-9", evt.RecordID)
	assert.JSONEq(t, `{"level":"out_of_stock","stock":0}`, string(evt.Record))
}
