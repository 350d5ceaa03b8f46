// ABOUTME: Tests for the connection registry
// ABOUTME: Covers join/leave membership, exclusion, failure isolation and the liveness sweep

package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BroadcastReachesMembersOnly(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	a, b, other := NewRecordingConn(), NewRecordingConn(), NewRecordingConn()
	r.Join("conv-1", a)
	r.Join("conv-1", b)
	r.Join("conv-2", other)

	r.Broadcast("conv-1", NewTypingEvent("u1", true), nil)

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Empty(t, other.Events())
}

func TestRegistry_ExcludeSkipsSender(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	sender, peer := NewRecordingConn(), NewRecordingConn()
	r.Join("conv-1", sender)
	r.Join("conv-1", peer)

	r.Broadcast("conv-1", NewTypingEvent("u1", true), sender)

	assert.Empty(t, sender.Events())
	assert.Len(t, peer.Events(), 1)
}

func TestRegistry_JoinIsIdempotentAndMoves(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	c := NewRecordingConn()

	r.Join("conv-1", c)
	r.Join("conv-1", c)
	assert.Equal(t, 1, r.ConversationCount("conv-1"))

	r.Join("conv-2", c)
	assert.Equal(t, 0, r.ConversationCount("conv-1"))
	assert.Equal(t, 1, r.ConversationCount("conv-2"))
	assert.Equal(t, 1, r.Count())

	r.Broadcast("conv-1", NewTypingEvent("u", true), nil)
	assert.Empty(t, c.Events(), "moved connection must not receive old conversation events")
}

func TestRegistry_LeaveRemoves(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	c := NewRecordingConn()

	r.Join("conv-1", c)
	r.Leave(c)
	r.Leave(c) // no-op

	r.Broadcast("conv-1", NewTypingEvent("u", true), nil)
	assert.Empty(t, c.Events())
	assert.Zero(t, r.Count())
	assert.Zero(t, r.ConversationCount("conv-1"))
}

func TestRegistry_FailedSendIsIsolated(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	bad, good1, good2 := NewRecordingConn(), NewRecordingConn(), NewRecordingConn()
	bad.FailSend.Store(true)
	r.Join("conv-1", good1)
	r.Join("conv-1", bad)
	r.Join("conv-1", good2)

	r.Broadcast("conv-1", NewTypingEvent("u", true), nil)

	assert.Len(t, good1.Events(), 1)
	assert.Len(t, good2.Events(), 1)
	assert.True(t, bad.Closed())
	assert.Equal(t, 2, r.ConversationCount("conv-1"))

	r.Broadcast("conv-1", NewTypingEvent("u", false), nil)
	assert.Len(t, good1.Events(), 2)
}

func TestRegistry_SweepClosesUnresponsive(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	responsive, silent := NewRecordingConn(), NewRecordingConn()
	r.Join("conv-1", responsive)
	r.Join("conv-1", silent)

	// First sweep pings everyone.
	r.Sweep()
	assert.Equal(t, 1, responsive.Pings())
	assert.Equal(t, 1, silent.Pings())

	// Only one answers before the next sweep.
	r.MarkAlive(responsive)
	r.Sweep()

	assert.False(t, responsive.Closed())
	assert.True(t, silent.Closed())
	assert.Equal(t, 1, r.ConversationCount("conv-1"))
	assert.Equal(t, 2, responsive.Pings())
}

func TestRegistry_SweepClosesOnPingError(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	c := NewRecordingConn()
	c.FailPing.Store(true)
	r.Track(c)

	r.Sweep()

	assert.True(t, c.Closed())
	assert.Zero(t, r.Count())
}

func TestRegistry_TrackedButUnjoined(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	c := NewRecordingConn()
	r.Track(c)

	assert.Equal(t, 1, r.Count())
	r.Broadcast("conv-1", NewTypingEvent("u", true), nil)
	assert.Empty(t, c.Events())
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	a, b := NewRecordingConn(), NewRecordingConn()
	r.Join("conv-1", a)
	r.Track(b)

	r.Close()

	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Zero(t, r.Count())
}

func TestRegistry_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	stable := NewRecordingConn()
	r.Join("conv-1", stable)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := NewRecordingConn()
			r.Join("conv-1", c)
			r.Leave(c)
		}()
		go func() {
			defer wg.Done()
			r.Broadcast("conv-1", NewTypingEvent(fmt.Sprintf("u%d", i), true), nil)
		}()
	}
	wg.Wait()

	require.Len(t, stable.Events(), 20)
	assert.Equal(t, 1, r.ConversationCount("conv-1"))
}
