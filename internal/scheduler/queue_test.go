package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestQueueKeepPolicy(t *testing.T) {
	q := NewQueue(nil)
	var first, second atomic.Int32
	id1, err := q.EnqueuePeriodic("job", 5*time.Millisecond, Keep, func(context.Context) { first.Add(1) })
	require.NoError(t, err)
	id2, err := q.EnqueuePeriodic("job", 5*time.Millisecond, Keep, func(context.Context) { second.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "keep returns the existing job")

	require.NoError(t, q.Start(context.Background()))
	require.Eventually(t, func() bool { return first.Load() >= 2 }, time.Second, time.Millisecond)
	q.Stop()
	assert.Zero(t, second.Load())
}

func TestQueueReplacePolicy(t *testing.T) {
	q := NewQueue(nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	var old, replacement atomic.Int32
	id1, err := q.EnqueuePeriodic("job", time.Hour, Keep, func(context.Context) { old.Add(1) })
	require.NoError(t, err)
	id2, err := q.EnqueuePeriodic("job", 5*time.Millisecond, Replace, func(context.Context) { replacement.Add(1) })
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	require.Eventually(t, func() bool { return replacement.Load() >= 1 }, time.Second, time.Millisecond)
	assert.Zero(t, old.Load())
	info, ok := q.Job("job")
	require.True(t, ok)
	assert.Equal(t, id2, info.ID)
	assert.True(t, info.Periodic)
}

func TestQueueOnceRunsAndForgets(t *testing.T) {
	q := NewQueue(nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	done := make(chan struct{})
	_, err := q.EnqueueOnce("once", time.Millisecond, Replace, func(context.Context) { close(done) })
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("one-shot job did not run")
	}
	require.Eventually(t, func() bool { return len(q.Tags()) == 0 }, time.Second, time.Millisecond)
}

func TestQueueCancelPrefixRespectsIDBoundary(t *testing.T) {
	q := NewQueue(nil)
	noop := func(context.Context) {}
	for _, tag := range []string{
		"periodic_plan_check_1",
		"periodic_plan_check_1_startup",
		"periodic_plan_check_10",
		"periodic_plan_check_12",
		"conversation_notification_1",
	} {
		_, err := q.EnqueueOnce(tag, time.Hour, Keep, noop)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, q.CancelPrefix("periodic_plan_check_1"))
	assert.Equal(t, []string{
		"conversation_notification_1",
		"periodic_plan_check_10",
		"periodic_plan_check_12",
	}, q.Tags())
	assert.True(t, q.Cancel("conversation_notification_1"))
	assert.False(t, q.Cancel("conversation_notification_1"))
	q.Stop()
}

func TestQueueStopCancelsRunningJob(t *testing.T) {
	q := NewQueue(nil)
	require.NoError(t, q.Start(context.Background()))

	running := make(chan struct{})
	_, err := q.EnqueueOnce("slow", 0, Keep, func(ctx context.Context) {
		close(running)
		<-ctx.Done()
	})
	require.NoError(t, err)
	<-running
	q.Stop()

	_, err = q.EnqueueOnce("late", 0, Keep, func(context.Context) {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestQueueRecoversPanics(t *testing.T) {
	q := NewQueue(nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	var after atomic.Bool
	_, err := q.EnqueueOnce("boom", 0, Keep, func(context.Context) { panic("boom") })
	require.NoError(t, err)
	_, err = q.EnqueueOnce("after", 2*time.Millisecond, Keep, func(context.Context) { after.Store(true) })
	require.NoError(t, err)
	require.Eventually(t, after.Load, time.Second, time.Millisecond)
}
