package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whale-professor/Solvan/internal/domain"
	"github.com/whale-professor/Solvan/internal/infra"
)

func testRequest(owner string) domain.GenerationRequest {
	return domain.GenerationRequest{
		SearchType:     domain.SearchPrefix,
		Pattern:        "SoL",
		CaseSensitive:  false,
		OwnerID:        owner,
		ConversationID: "conv-" + owner,
	}
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	return NewDispatcher(NewMemory(), 10*time.Millisecond, infra.NewLogger("test"))
}

func TestSubmitIncreasesWaitingDepth(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	before, err := d.Depth(ctx)
	require.NoError(t, err)

	jobID, err := d.Submit(ctx, testRequest("u1"))
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	after, err := d.Depth(ctx)
	require.NoError(t, err)
	require.Equal(t, before.Waiting+1, after.Waiting)
	require.Equal(t, before.Active, after.Active)
}

func TestSubmitRejectsInvalidPattern(t *testing.T) {
	d := newTestDispatcher(t)

	req := testRequest("u1")
	req.Pattern = "0000"
	_, err := d.Submit(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidPattern)

	depth, err := d.Depth(context.Background())
	require.NoError(t, err)
	require.Zero(t, depth.Waiting)
}

func TestClaimDeliversFIFO(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	first, err := d.Submit(ctx, testRequest("u1"))
	require.NoError(t, err)
	second, err := d.Submit(ctx, testRequest("u2"))
	require.NoError(t, err)

	job, err := d.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, first, job.ID)
	require.Equal(t, domain.JobStatusActive, job.Status)

	job, err = d.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, second, job.ID)
}

func TestClaimBlocksUntilSubmit(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	claimed := make(chan *domain.Job, 1)
	go func() {
		job, err := d.Claim(ctx)
		if err == nil {
			claimed <- job
		}
	}()

	select {
	case <-claimed:
		t.Fatal("claim returned before any job existed")
	case <-time.After(30 * time.Millisecond):
	}

	jobID, err := d.Submit(ctx, testRequest("u1"))
	require.NoError(t, err)

	select {
	case job := <-claimed:
		require.Equal(t, jobID, job.ID)
	case <-time.After(time.Second):
		t.Fatal("claim did not wake after submit")
	}
}

func TestClaimStopsOnContextCancel(t *testing.T) {
	d := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Claim(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCancelWaitingJob(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Submit(ctx, testRequest("u1"))
	require.NoError(t, err)

	ch, unsub := d.Subscribe(jobID)
	defer unsub()

	removed, err := d.Cancel(ctx, jobID)
	require.NoError(t, err)
	require.True(t, removed)

	depth, err := d.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth.Waiting)

	select {
	case n := <-ch:
		require.Equal(t, domain.JobStatusCancelled, n.Status)
	case <-time.After(time.Second):
		t.Fatal("no cancellation notification")
	}
}

func TestCancelClaimedJobReturnsFalse(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Submit(ctx, testRequest("u1"))
	require.NoError(t, err)

	_, err = d.Claim(ctx)
	require.NoError(t, err)

	removed, err := d.Cancel(ctx, jobID)
	require.NoError(t, err)
	require.False(t, removed, "active job must resolve as already started, not cancelled")
}

func TestFinishNotifiesSubscriber(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Submit(ctx, testRequest("u1"))
	require.NoError(t, err)
	_, err = d.Claim(ctx)
	require.NoError(t, err)

	ch, unsub := d.Subscribe(jobID)
	defer unsub()

	settled, err := d.Finish(ctx, jobID, domain.JobStatusCompleted, "")
	require.NoError(t, err)
	require.True(t, settled)

	select {
	case n := <-ch:
		require.Equal(t, domain.JobStatusCompleted, n.Status)
		require.Equal(t, jobID, n.JobID)
	case <-time.After(time.Second):
		t.Fatal("no completion notification")
	}
}

func TestFinishSettlesExactlyOnce(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Submit(ctx, testRequest("u1"))
	require.NoError(t, err)
	_, err = d.Claim(ctx)
	require.NoError(t, err)

	settled, err := d.Finish(ctx, jobID, domain.JobStatusFailed, "timed out")
	require.NoError(t, err)
	require.True(t, settled)

	// A racing second settle (timer vs process exit) must lose.
	settled, err = d.Finish(ctx, jobID, domain.JobStatusCompleted, "")
	require.NoError(t, err)
	require.False(t, settled)
}

func TestSubscribeAfterSettleDeliversImmediately(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Submit(ctx, testRequest("u1"))
	require.NoError(t, err)
	_, err = d.Claim(ctx)
	require.NoError(t, err)

	_, err = d.Finish(ctx, jobID, domain.JobStatusCompleted, "")
	require.NoError(t, err)

	ch, unsub := d.Subscribe(jobID)
	defer unsub()

	select {
	case n := <-ch:
		require.Equal(t, domain.JobStatusCompleted, n.Status)
	case <-time.After(time.Second):
		t.Fatal("late subscriber did not receive the stored notification")
	}
}

func TestFlushPendingCancelsEverything(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	waiting, err := d.Submit(ctx, testRequest("u1"))
	require.NoError(t, err)
	active, err := d.Submit(ctx, testRequest("u2"))
	require.NoError(t, err)
	_, err = d.Claim(ctx)
	require.NoError(t, err)

	chWaiting, unsub1 := d.Subscribe(waiting)
	defer unsub1()
	chActive, unsub2 := d.Subscribe(active)
	defer unsub2()

	count, err := d.FlushPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	depth, err := d.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth.Waiting)
	require.Zero(t, depth.Active)

	for _, ch := range []<-chan Notification{chWaiting, chActive} {
		select {
		case n := <-ch:
			require.Equal(t, domain.JobStatusCancelled, n.Status)
		case <-time.After(time.Second):
			t.Fatal("flush did not notify subscriber")
		}
	}
}
