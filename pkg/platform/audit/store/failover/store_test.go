package failover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "sprout/pkg/domain"
	audit "sprout/pkg/platform/audit"
	"sprout/pkg/platform/audit/store/memory"
	"sprout/pkg/platform/circuit"
)

type flakyStore struct {
	err    error
	calls  int
	events []audit.Event
}

func (f *flakyStore) Append(_ context.Context, e audit.Event) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func TestFailoverStore(t *testing.T) {
	ctx := context.Background()
	sessionID := id.NewSessionID()
	event := audit.Event{SessionID: sessionID, Action: string(audit.EventStepAdvanced)}

	primary := &flakyStore{}
	fallback := memory.NewInMemoryStore()
	s := New(primary, fallback, WithBreaker(circuit.New("kafka", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))))

	t.Run("healthy primary receives events", func(t *testing.T) {
		require.NoError(t, s.Append(ctx, event))
		assert.Len(t, primary.events, 1)
		assert.Empty(t, fallback.Actions(sessionID))
	})

	t.Run("failed events land in the fallback", func(t *testing.T) {
		primary.err = errors.New("broker unreachable")
		require.NoError(t, s.Append(ctx, event))
		assert.False(t, s.Degraded())
		require.NoError(t, s.Append(ctx, event))
		assert.True(t, s.Degraded())
		assert.Len(t, fallback.Actions(sessionID), 2)
	})

	t.Run("reset breaker sends events to the primary again", func(t *testing.T) {
		s.breaker.Reset()
		primary.err = nil
		require.NoError(t, s.Append(ctx, event))
		assert.False(t, s.Degraded())
		assert.Len(t, primary.events, 2)
	})
}

func TestFailoverStoreDivertsWhileOpen(t *testing.T) {
	ctx := context.Background()
	sessionID := id.NewSessionID()
	event := audit.Event{SessionID: sessionID, Action: string(audit.EventSessionStarted)}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	primary := &flakyStore{err: errors.New("broker unreachable")}
	fallback := memory.NewInMemoryStore()
	s := New(primary, fallback, WithBreaker(circuit.New("kafka_audit",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(clock),
	)))

	for range 10 {
		require.NoError(t, s.Append(ctx, event))
	}
	assert.True(t, s.Degraded())
	assert.Equal(t, 2, primary.calls, "open breaker keeps events off the primary")
	assert.Len(t, fallback.Actions(sessionID), 10)

	t.Run("a failed probe after the cooldown stays degraded", func(t *testing.T) {
		now = now.Add(time.Minute)
		require.NoError(t, s.Append(ctx, event))
		require.NoError(t, s.Append(ctx, event))
		assert.Equal(t, 3, primary.calls)
		assert.True(t, s.Degraded())
	})

	t.Run("a successful probe closes the breaker", func(t *testing.T) {
		now = now.Add(time.Minute)
		primary.err = nil
		require.NoError(t, s.Append(ctx, event))
		assert.False(t, s.Degraded())
		require.NoError(t, s.Append(ctx, event))
		assert.Equal(t, 5, primary.calls)
		assert.Len(t, primary.events, 2)
	})
}
