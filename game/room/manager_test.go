package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/session"
	"github.com/wricardo/mcp-training/shapesync/protocol"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu     sync.Mutex
	events []protocol.Event
	closed bool
}

func (f *fakeSender) Send(ev protocol.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) Events() []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Event(nil), f.events...)
}

func (f *fakeSender) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSender) ofType(typ protocol.EventType) []protocol.Event {
	var out []protocol.Event
	for _, ev := range f.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type staticTypes map[string]*engine.RoomConfig

func (s staticTypes) Resolve(name string) (*engine.RoomConfig, error) {
	if name == "" {
		name = engine.DefaultRoomName
	}
	cfg, ok := s[name]
	if !ok {
		return nil, errors.New("not configured")
	}
	return cfg, nil
}

func createTestManager(t *testing.T) (*Manager, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	types := staticTypes{
		engine.DefaultRoomName: engine.DefaultRoomConfig(),
		"studio":               {Name: "studio", MaxPlayers: 2},
	}
	m := NewManager(types, WithMetrics(metrics), WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, m.Shutdown(ctx))
	})
	return m, metrics
}

func join(t *testing.T, m *Manager, roomName string) (*Room, string, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	r, sess, err := m.Join(context.Background(), roomName, sender)
	require.NoError(t, err)
	return r, sess.ID, sender
}

// barrier returns once every command queued before it has been processed.
func barrier(t *testing.T, m *Manager, roomName string) *Detail {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := m.Snapshot(ctx, roomName)
	require.NoError(t, err)
	return d
}

func TestManager_Join(t *testing.T) {
	m, metrics := createTestManager(t)

	_, a, senderA := join(t, m, "")
	eventsA := senderA.Events()
	require.Len(t, eventsA, 2)
	assert.Equal(t, protocol.EventSnapshot, eventsA[0].Type)
	require.NotNil(t, eventsA[0].Players)
	assert.Contains(t, *eventsA[0].Players, a)
	assert.Equal(t, protocol.JoinedEvent(2, a), eventsA[1])

	_, b, senderB := join(t, m, engine.DefaultRoomName)
	eventsB := senderB.Events()
	require.Len(t, eventsB, 2)
	assert.Equal(t, protocol.EventSnapshot, eventsB[0].Type)
	assert.Len(t, *eventsB[0].Players, 2)
	assert.Equal(t, protocol.JoinedEvent(4, b), eventsB[1])

	assert.Equal(t, protocol.JoinedEvent(4, b), senderA.Events()[2])
	assert.Equal(t, 2, m.Registry().Count())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RoomsActive))
}

func TestManager_ConcurrentJoins(t *testing.T) {
	m, _ := createTestManager(t)

	var wg sync.WaitGroup
	rooms := make([]*Room, 2)
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, sess, err := m.Join(context.Background(), engine.DefaultRoomName, &fakeSender{})
			rooms[i], errs[i] = r, err
			if sess != nil {
				ids[i] = sess.ID
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Same(t, rooms[0], rooms[1])
	assert.NotEqual(t, ids[0], ids[1])

	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].Players)
}

func TestManager_Capacity(t *testing.T) {
	m, metrics := createTestManager(t)

	join(t, m, "studio")
	join(t, m, "studio")

	third := &fakeSender{}
	_, _, err := m.Join(context.Background(), "studio", third)
	assert.ErrorIs(t, err, engine.ErrCapacityExceeded)
	assert.Empty(t, third.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JoinsRejected.WithLabelValues("capacity")))
	assert.Len(t, barrier(t, m, "studio").Players, 2)
}

func TestManager_UnknownRoomType(t *testing.T) {
	m, metrics := createTestManager(t)

	_, _, err := m.Join(context.Background(), "lobby", &fakeSender{})
	assert.ErrorIs(t, err, ErrUnknownRoomType)
	assert.Empty(t, m.List())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JoinsRejected.WithLabelValues("unknown_room")))
}

func TestManager_ActionBroadcast(t *testing.T) {
	m, metrics := createTestManager(t)
	r, a, senderA := join(t, m, "")
	_, _, senderB := join(t, m, "")

	require.NoError(t, m.Submit(context.Background(), r, a, engine.Move{X: 1, Y: 2, Z: -3}))
	detail := barrier(t, m, engine.DefaultRoomName)

	want := protocol.Event{
		Type:     protocol.EventPlayerUpdated,
		Seq:      5,
		ID:       a,
		Category: engine.CategoryPosition,
		Value:    engine.Position{X: 1, Y: 2, Z: -3},
	}
	for _, s := range []*fakeSender{senderA, senderB} {
		updates := s.ofType(protocol.EventPlayerUpdated)
		require.Len(t, updates, 1)
		assert.Equal(t, want, updates[0])
	}

	p := detail.Players[a]
	assert.Equal(t, [3]float64{1, 2, -3}, [3]float64{p.X, p.Y, p.Z})
	assert.Equal(t, uint64(5), detail.Seq)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Actions.WithLabelValues(engine.ActionMove, "applied")))
}

func TestManager_ValidationErrorOnlyToSender(t *testing.T) {
	m, metrics := createTestManager(t)
	r, a, senderA := join(t, m, "")
	_, _, senderB := join(t, m, "")
	before := barrier(t, m, engine.DefaultRoomName)

	require.NoError(t, m.Submit(context.Background(), r, a, engine.Move{X: 101, Y: 0, Z: 0}))
	after := barrier(t, m, engine.DefaultRoomName)

	errs := senderA.ofType(protocol.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.CodeValidation, errs[0].Code)
	assert.Contains(t, errs[0].Message, "invalid move data")
	assert.Zero(t, errs[0].Seq)

	assert.Empty(t, senderB.ofType(protocol.EventError))
	assert.Empty(t, senderB.ofType(protocol.EventPlayerUpdated))
	assert.Empty(t, cmp.Diff(before.Players, after.Players))
	assert.Equal(t, before.Seq, after.Seq)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Actions.WithLabelValues(engine.ActionMove, "rejected")))
}

func TestManager_ClearSceneIsSilent(t *testing.T) {
	m, metrics := createTestManager(t)
	r, a, senderA := join(t, m, "")

	require.NoError(t, m.Submit(context.Background(), r, a, engine.ClearScene{}))
	barrier(t, m, engine.DefaultRoomName)

	assert.Len(t, senderA.Events(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Actions.WithLabelValues(engine.ActionClearScene, "noop")))
}

func TestManager_ActionFromStrangerDropped(t *testing.T) {
	m, metrics := createTestManager(t)
	r, _, senderA := join(t, m, "")

	require.NoError(t, m.Submit(context.Background(), r, "not-a-member", engine.Extrude{Height: 2}))
	barrier(t, m, engine.DefaultRoomName)

	assert.Len(t, senderA.Events(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Actions.WithLabelValues(engine.ActionExtrude, "dropped")))
}

func TestManager_Leave(t *testing.T) {
	for _, consented := range []bool{true, false} {
		name := "consented"
		if !consented {
			name = "transport failure"
		}
		t.Run(name, func(t *testing.T) {
			m, _ := createTestManager(t)
			r, a, senderA := join(t, m, "")
			_, b, senderB := join(t, m, "")
			_, c, senderC := join(t, m, "")

			m.Leave(r, a, consented)
			detail := barrier(t, m, engine.DefaultRoomName)

			for _, s := range []*fakeSender{senderB, senderC} {
				left := s.ofType(protocol.EventPlayerLeft)
				require.Len(t, left, 1)
				assert.Equal(t, a, left[0].ID)
			}
			assert.Empty(t, senderA.ofType(protocol.EventPlayerLeft))
			assert.NotContains(t, detail.Players, a)
			assert.Contains(t, detail.Players, b)
			assert.Contains(t, detail.Players, c)
			assert.Equal(t, 2, m.Registry().Count())

			// A later joiner never sees the departed session
			_, _, senderD := join(t, m, "")
			assert.NotContains(t, *senderD.Events()[0].Players, a)

			// Leaving twice is harmless
			m.Leave(r, a, true)
			assert.Len(t, barrier(t, m, engine.DefaultRoomName).Players, 3)
		})
	}
}

func TestManager_PerRoomOrdering(t *testing.T) {
	m, _ := createTestManager(t)
	r, a, senderA := join(t, m, "")
	_, b, senderB := join(t, m, "")

	var wg sync.WaitGroup
	for _, id := range []string{a, b} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := m.Submit(context.Background(), r, id, engine.Extrude{Height: float64(i%9 + 1)}); err != nil {
					t.Errorf("submit: %v", err)
					return
				}
			}
		}(id)
	}
	wg.Wait()
	barrier(t, m, engine.DefaultRoomName)

	updatesA := senderA.ofType(protocol.EventPlayerUpdated)
	updatesB := senderB.ofType(protocol.EventPlayerUpdated)
	require.Len(t, updatesA, 40)
	assert.Empty(t, cmp.Diff(updatesA, updatesB))

	for i := 1; i < len(updatesA); i++ {
		assert.Equal(t, updatesA[i-1].Seq+1, updatesA[i].Seq)
	}
}

func TestManager_Disposal(t *testing.T) {
	m, metrics := createTestManager(t)
	r, a, _ := join(t, m, "")

	m.Leave(r, a, true)
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room was not disposed")
	}

	assert.Equal(t, Disposed, r.Lifecycle())
	_, ok := m.Get(engine.DefaultRoomName)
	assert.False(t, ok)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RoomsActive))
	assert.ErrorIs(t, m.Submit(context.Background(), r, a, engine.ClearScene{}), ErrRoomUnavailable)

	_, err := m.Snapshot(context.Background(), engine.DefaultRoomName)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	next, _, _ := join(t, m, "")
	assert.NotEqual(t, r.ID, next.ID)
	assert.Equal(t, Active, next.Lifecycle())
}

func waitDisposed(t *testing.T, r *Room) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room was not disposed")
	}
}

func TestManager_JoinQueuedDuringDisposal(t *testing.T) {
	m, metrics := createTestManager(t)
	r, a, _ := join(t, m, "studio")

	// Park the worker on an unread snapshot reply, then queue the last leave
	hold := make(chan Detail)
	require.NoError(t, r.enqueue(context.Background(), snapshotCmd{reply: hold}))
	m.Leave(r, a, true)

	// With the manager locked the worker stops inside dispose, before it
	// detaches the room
	m.mu.Lock()
	<-hold
	if !assert.Eventually(t, func() bool { return r.Lifecycle() == Disposing }, 2*time.Second, time.Millisecond) {
		m.mu.Unlock()
		t.FailNow()
	}

	reply := make(chan error, 1)
	err := r.enqueue(context.Background(), joinCmd{session: session.New("studio"), sender: &fakeSender{}, reply: reply})
	m.mu.Unlock()
	require.NoError(t, err)

	select {
	case err := <-reply:
		assert.ErrorIs(t, err, ErrRoomUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("queued join was not answered")
	}
	waitDisposed(t, r)
	assert.Equal(t, Disposed, r.Lifecycle())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JoinsRejected.WithLabelValues("unavailable")))

	next, _, _ := join(t, m, "studio")
	assert.NotEqual(t, r.ID, next.ID)
}

func TestManager_JoinRejectsDisposingRoom(t *testing.T) {
	m, metrics := createTestManager(t)
	r, a, _ := join(t, m, "studio")
	m.Leave(r, a, true)
	waitDisposed(t, r)

	// A lookup that found the room just before it detached
	m.mu.Lock()
	m.rooms["studio"] = r
	m.mu.Unlock()
	t.Cleanup(func() {
		m.mu.Lock()
		delete(m.rooms, "studio")
		m.mu.Unlock()
	})

	sender := &fakeSender{}
	_, _, err := m.Join(context.Background(), "studio", sender)
	assert.ErrorIs(t, err, ErrRoomUnavailable)
	assert.Empty(t, sender.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JoinsRejected.WithLabelValues("unavailable")))
	assert.Zero(t, m.Registry().Count())
}

func TestManager_JoinWithCancelledContext(t *testing.T) {
	m, _ := createTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := m.Join(ctx, "studio", &fakeSender{})
	assert.ErrorIs(t, err, context.Canceled)

	_, ok := m.Get("studio")
	assert.False(t, ok, "no room is left waiting for a join that never arrives")
	assert.Empty(t, m.List())
}

func TestManager_Shutdown(t *testing.T) {
	m, metrics := createTestManager(t)
	_, _, senderA := join(t, m, "")
	_, _, senderB := join(t, m, "studio")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.True(t, senderA.Closed())
	assert.True(t, senderB.Closed())
	assert.Empty(t, m.List())
	assert.Zero(t, m.Registry().Count())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SessionsActive))

	_, _, err := m.Join(context.Background(), "", &fakeSender{})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestLifecycle_String(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "disposing", Disposing.String())
	assert.Equal(t, "disposed", Disposed.String())
	assert.Equal(t, "unknown", Lifecycle(9).String())
}
