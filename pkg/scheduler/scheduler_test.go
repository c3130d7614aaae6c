package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func TestRegister(t *testing.T) {
	s := NewScheduler()

	tests := []struct {
		name    string
		action  string
		spec    string
		fn      Action
		wantErr error
	}{
		{name: "every descriptor", action: "tick", spec: "@every 30s", fn: noop},
		{name: "standard cron", action: "nightly", spec: "0 3 * * *", fn: noop},
		{name: "duplicate", action: "tick", spec: "@every 1m", fn: noop, wantErr: types.ErrAlreadyPresent},
		{name: "bad spec", action: "broken", spec: "every so often", fn: noop, wantErr: types.ErrValidation},
		{name: "missing name", spec: "@every 1m", fn: noop, wantErr: types.ErrValidation},
		{name: "missing func", action: "nil", spec: "@every 1m", wantErr: types.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Register(tt.action, tt.spec, tt.fn)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	actions := s.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, "nightly", actions[0].Name)
	assert.Equal(t, "tick", actions[1].Name)
}

func TestRunOnce(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var calls atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, s.Register("ok", "@every 1h", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, s.Register("failing", "@every 1h", func(ctx context.Context) error {
		return boom
	}))

	require.NoError(t, s.RunOnce("ok"))
	require.NoError(t, s.RunOnce("ok"))
	assert.Equal(t, int32(2), calls.Load())

	err := s.RunOnce("failing")
	assert.True(t, errors.Is(err, boom))

	err = s.RunOnce("missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	actions := s.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, "boom", actions[0].LastError)
	assert.Equal(t, int64(1), actions[0].Runs)
	assert.Equal(t, int64(2), actions[1].Runs)
	assert.Empty(t, actions[1].LastError)
	assert.False(t, actions[1].LastRun.IsZero())
}

func TestRunsNeverOverlap(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register("slow", "@every 1h", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunOnce("slow") }()
	<-started

	err := s.RunOnce("slow")
	assert.True(t, errors.Is(err, types.ErrStateCheck))
	assert.True(t, s.Actions()[0].Running)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Actions()[0].Running)
}

func TestScheduledRuns(t *testing.T) {
	s := NewScheduler()

	var calls atomic.Int32
	require.NoError(t, s.Register("fast", "@every 1s", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestStopCancelsRunningActions(t *testing.T) {
	s := NewScheduler()

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Register("blocking", "@every 1s", func(ctx context.Context) error {
		select {
		case <-started:
		default:
			close(started)
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	s.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("action never started")
	}
	s.Stop()
	assert.True(t, cancelled.Load())
}
