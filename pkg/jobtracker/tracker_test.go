package jobtracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_LifecycleTransitions(t *testing.T) {
	tr := New(10, time.Hour, nil)
	job := tr.Create("job-1")
	assert.Equal(t, StatePending, job.State)

	tr.MarkProcessing("job-1")
	snap, err := tr.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, snap.State)

	tr.Complete("job-1", map[string]string{"outcome": "success"})
	snap, err = tr.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	assert.NotNil(t, snap.Result)
}

func TestTracker_FailRecordsMessage(t *testing.T) {
	tr := New(10, time.Hour, nil)
	tr.Create("job-1")
	tr.Fail("job-1", "phase 2 exhausted retries")

	snap, err := tr.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "phase 2 exhausted retries", snap.Error)
}

func TestTracker_GetUnknownIDReturnsNotFound(t *testing.T) {
	tr := New(10, time.Hour, nil)
	_, err := tr.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_EvictsOldestWhenFull(t *testing.T) {
	tr := New(2, time.Hour, nil)
	tr.Create("job-1")
	tr.Create("job-2")
	tr.Create("job-3")

	_, err := tr.Get("job-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tr.Get("job-2")
	assert.NoError(t, err)
	_, err = tr.Get("job-3")
	assert.NoError(t, err)
}

func TestTracker_SweepEvictsStaleTerminalJobs(t *testing.T) {
	tr := New(10, time.Millisecond, nil)
	tr.Create("job-1")
	tr.Complete("job-1", nil)
	tr.Create("job-2") // stays pending, never swept

	time.Sleep(5 * time.Millisecond)
	tr.sweep()

	_, err := tr.Get("job-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tr.Get("job-2")
	assert.NoError(t, err)
}

func TestTracker_RunStopsOnContextCancel(t *testing.T) {
	tr := New(10, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
