package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// every fires a fixed delay after the given time, below cron's one-second
// granularity so tests stay fast.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func TestParse(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 7, 30, 0, time.UTC)

	tests := []struct {
		spec string
		want time.Time
	}{
		{"15m", from.Add(15 * time.Minute)},
		{"@every 1h", from.Add(time.Hour)},
		{"@hourly", time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)},
		{"*/5 * * * *", time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC)},
		{"  0 3 * * *  ", time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.spec, func(t *testing.T) {
			sched, err := Parse(tc.spec)
			require.NoError(t, err)
			got := sched.Next(from)
			assert.True(t, tc.want.Equal(got), "next: got %s, want %s", got, tc.want)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, spec := range []string{"", "soon", "500ms", "0s", "* * *", "61 * * * *"} {
		_, err := Parse(spec)
		assert.Error(t, err, spec)
	}
}

func TestRun_RunsRepeatedlyUntilCancelled(t *testing.T) {
	s, err := New("@every 1h")
	require.NoError(t, err)
	s.sched = every(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, false, func(context.Context) {
			if calls.Add(1) == 3 {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestRun_RunOnStart(t *testing.T) {
	s, err := New("@every 1h")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, true, func(context.Context) {
			calls.Add(1)
			cancel()
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestSetSpec_ReschedulesPendingWait(t *testing.T) {
	s, err := New("@every 1h")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ran := make(chan struct{}, 1)
	go s.Run(ctx, false, func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})

	// Swap in a fast schedule directly, then signal the loop the way
	// SetSpec does; cron cannot express sub-second intervals.
	s.mu.Lock()
	s.sched = every(10 * time.Millisecond)
	s.mu.Unlock()
	s.reset <- struct{}{}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run after reschedule")
	}
}

func TestSetSpec(t *testing.T) {
	s, err := New("@every 1h")
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetSpec("30m"))
	assert.True(t, from.Add(30*time.Minute).Equal(s.Next(from)))

	assert.Error(t, s.SetSpec("bogus"))
	assert.True(t, from.Add(30*time.Minute).Equal(s.Next(from)))
}
