package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// step is one call against the breaker: 'f' records a failure, 's' a success.
type step struct {
	call     byte
	fallback bool
	change   StateChange
	open     bool
}

func play(t *testing.T, b *Breaker, steps []step) {
	t.Helper()
	for i, st := range steps {
		var ok bool
		var change StateChange
		switch st.call {
		case 'f':
			ok, change = b.RecordFailure()
			assert.Equal(t, st.fallback, ok, "step %d fallback", i)
		case 's':
			ok, change = b.RecordSuccess()
			assert.Equal(t, !st.fallback, ok, "step %d primary", i)
		default:
			t.Fatalf("unknown call %q", st.call)
		}
		assert.Equal(t, st.change, change, "step %d change", i)
		assert.Equal(t, st.open, b.IsOpen(), "step %d open", i)
	}
}

func TestBreakerTransitions(t *testing.T) {
	opened := StateChange{Opened: true}
	closed := StateChange{Closed: true}

	tests := []struct {
		name  string
		opts  []Option
		steps []step
	}{
		{
			name: "redis errors trip the breaker at the threshold",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{call: 'f'},
				{call: 'f'},
				{call: 'f', fallback: true, change: opened, open: true},
				{call: 'f', fallback: true, open: true},
			},
		},
		{
			name: "a healthy reply clears the failure streak",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{call: 'f'},
				{call: 'f'},
				{call: 's'},
				{call: 'f'},
				{call: 'f'},
				{call: 'f', fallback: true, change: opened, open: true},
			},
		},
		{
			name: "trial calls must succeed in a row to close",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{call: 'f', fallback: true, change: opened, open: true},
				{call: 's', fallback: true, open: true},
				{call: 'f', fallback: true, open: true},
				{call: 's', fallback: true, open: true},
				{call: 's', change: closed},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			play(t, New("redis-cache", tt.opts...), tt.steps)
		})
	}
}

func TestBreakerDefaults(t *testing.T) {
	b := New("redis-cache")
	require.Equal(t, "redis-cache", b.Name())
	require.Equal(t, StateClosed, b.State())
	require.True(t, b.Allow())

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen(), "four failures stay below the default threshold")
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreakerTrialWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("redis-cache",
		WithFailureThreshold(1),
		WithCooldown(time.Second),
		WithClock(func() time.Time { return now }),
	)

	b.RecordFailure()
	assert.False(t, b.Allow(), "freshly opened breaker rejects")

	now = now.Add(time.Second)
	assert.True(t, b.Allow(), "one trial call after the cooldown")
	assert.False(t, b.Allow(), "second call in the same window is rejected")

	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
}
