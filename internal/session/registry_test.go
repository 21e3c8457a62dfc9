package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/codex-k8s/tool-relay/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestOpenIssuesUniqueIDs(t *testing.T) {
	reg := NewRegistry()
	const workers, perWorker = 8, 200

	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range perWorker {
				s := reg.Open()
				ids <- s.ID
				if j%2 == 0 {
					reg.Close(s.ID)
				}
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestOpenRetriesOnCollision(t *testing.T) {
	ids := []string{"a", "a", "b"}
	var n int
	reg := NewRegistry(WithIDGenerator(func() string {
		id := ids[n]
		n++
		return id
	}))

	first := reg.Open()
	second := reg.Open()
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestCloseIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	s := reg.Open()
	require.True(t, reg.IsOpen(s.ID))

	reg.Close(s.ID)
	assert.NotPanics(t, func() { reg.Close(s.ID) })
	assert.NotPanics(t, func() { reg.Close("never-issued") })
	assert.False(t, reg.IsOpen(s.ID))

	_, ok := <-s.Deliveries
	assert.False(t, ok, "delivery queue must be closed")
}

func TestAdmitTreatsUnknownAndClosedAlike(t *testing.T) {
	reg := NewRegistry()
	s := reg.Open()
	require.NoError(t, reg.Admit(s.ID))

	reg.Close(s.ID)
	assert.ErrorIs(t, reg.Admit(s.ID), ErrSessionNotFound)
	assert.ErrorIs(t, reg.Admit("never-issued"), ErrSessionNotFound)
}

func TestAdmitRateLimit(t *testing.T) {
	reg := NewRegistry(WithRateLimit(2))
	s := reg.Open()

	require.NoError(t, reg.Admit(s.ID))
	require.NoError(t, reg.Admit(s.ID))
	assert.ErrorIs(t, reg.Admit(s.ID), ErrRateLimited)

	other := reg.Open()
	assert.NoError(t, reg.Admit(other.ID), "limits are per session")
}

func TestDeliver(t *testing.T) {
	reg := NewRegistry(WithQueueSize(1))
	s := reg.Open()

	require.NoError(t, reg.Deliver(s.ID, protocol.Delivery{RequestID: "r1", Result: "ok"}))
	assert.ErrorIs(t, reg.Deliver(s.ID, protocol.Delivery{RequestID: "r2"}), ErrQueueFull)

	got := <-s.Deliveries
	assert.Equal(t, "r1", got.RequestID)

	reg.Close(s.ID)
	assert.ErrorIs(t, reg.Deliver(s.ID, protocol.Delivery{RequestID: "r3"}), ErrSessionNotFound)
}

func TestDeliverRacesClose(t *testing.T) {
	reg := NewRegistry(WithQueueSize(1024))
	for i := range 50 {
		s := reg.Open()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 20 {
				_ = reg.Deliver(s.ID, protocol.Delivery{RequestID: fmt.Sprintf("%d-%d", i, j)})
			}
		}()
		go func() {
			defer wg.Done()
			reg.Close(s.ID)
		}()
		wg.Wait()
		for range s.Deliveries {
		}
	}
	assert.Zero(t, reg.Len())
}

func TestCallbackPathAndIDs(t *testing.T) {
	reg := NewRegistry(WithIDGenerator(func() string { return "abc-123" }))
	s := reg.Open()

	assert.Equal(t, "/messages/?session_id=abc-123", s.CallbackPath("/messages/"))
	assert.True(t, strings.HasPrefix(s.CallbackPath("/m"), "/m?"))
	assert.Equal(t, []string{"abc-123"}, reg.IDs())
	assert.Equal(t, 1, reg.Len())
}
