package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whale-professor/Solvan/internal/domain"
	"github.com/whale-professor/Solvan/internal/infra"
	"github.com/whale-professor/Solvan/internal/queue"
	"github.com/whale-professor/Solvan/internal/store"
	"github.com/whale-professor/Solvan/internal/track"
)

type outboundMessage struct {
	conversationID string
	messageID      string
	text           string
	choices        []Choice
	edited         bool
}

type fakeSender struct {
	mu      sync.Mutex
	next    int
	deleted []string
	out     chan outboundMessage
}

func newFakeSender() *fakeSender {
	return &fakeSender{out: make(chan outboundMessage, 64)}
}

func (f *fakeSender) Delete(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, messageID)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeSender) Send(_ context.Context, conversationID, text string) (string, error) {
	f.mu.Lock()
	f.next++
	id := fmt.Sprintf("m%d", f.next)
	f.mu.Unlock()
	f.out <- outboundMessage{conversationID: conversationID, messageID: id, text: text}
	return id, nil
}

func (f *fakeSender) SendChoices(_ context.Context, conversationID, text string, choices []Choice) (string, error) {
	f.mu.Lock()
	f.next++
	id := fmt.Sprintf("m%d", f.next)
	f.mu.Unlock()
	f.out <- outboundMessage{conversationID: conversationID, messageID: id, text: text, choices: choices}
	return id, nil
}

func (f *fakeSender) Edit(_ context.Context, conversationID, messageID, text string) error {
	f.out <- outboundMessage{conversationID: conversationID, messageID: messageID, text: text, edited: true}
	return nil
}

// waitFor pops outbound messages until one contains want.
func (f *fakeSender) waitFor(t *testing.T, want string) outboundMessage {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-f.out:
			if strings.Contains(msg.text, want) {
				return msg
			}
			t.Logf("skipping outbound message %q", msg.text)
		case <-deadline:
			t.Fatalf("no outbound message containing %q", want)
		}
	}
}

func (f *fakeSender) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.out:
		t.Fatalf("unexpected outbound message %q", msg.text)
	case <-time.After(50 * time.Millisecond):
	}
}

type fixture struct {
	machine *Machine
	disp    *queue.Dispatcher
	results domain.ResultRepository
	reg     *track.Registry
	sender  *fakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := infra.NewLogger("test")

	disp := queue.NewDispatcher(queue.NewMemory(), 10*time.Millisecond, log)
	results := store.NewMemory()
	waiter := queue.NewWaiter(disp, results)
	reg := track.NewRegistry()
	coord := track.NewCoordinator(reg, disp, log)
	sender := newFakeSender()

	m := NewMachine(disp, waiter, reg, coord, sender, Config{
		AdminOwnerID:       "admin",
		AwaitTimeout:       2 * time.Second,
		SessionIdleTimeout: time.Minute,
	}, log)
	t.Cleanup(m.Drain)

	return &fixture{machine: m, disp: disp, results: results, reg: reg, sender: sender}
}

func (f *fixture) event(kind EventKind, payload string) Event {
	return Event{OwnerID: "u1", ConversationID: "c1", Kind: kind, Payload: payload}
}

func (f *fixture) handle(t *testing.T, kind EventKind, payload string) {
	t.Helper()
	require.NoError(t, f.machine.HandleEvent(context.Background(), f.event(kind, payload)))
}

// runToQueued walks the collection flow up to submission and returns the
// queued message.
func (f *fixture) runToQueued(t *testing.T) outboundMessage {
	t.Helper()
	f.handle(t, KindCommand, "/generate")
	prompt := f.sender.waitFor(t, "start or the end")
	require.Equal(t, []Choice{
		{Label: "Start (prefix)", Data: "prefix"},
		{Label: "End (suffix)", Data: "suffix"},
	}, prompt.choices)
	f.handle(t, KindButton, "prefix")
	f.sender.waitFor(t, "Send the pattern")
	f.handle(t, KindText, "SoL")
	f.sender.waitFor(t, "Match case")
	f.handle(t, KindButton, "yes")
	return f.sender.waitFor(t, "queued at position")
}

// settle plays the worker's part: claims the owner's job, stores a result and
// settles it as completed.
func (f *fixture) settle(t *testing.T, result domain.JobResult) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	job, err := f.disp.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, f.results.Put(ctx, job.ID, result, time.Minute))
	settled, err := f.disp.Finish(ctx, job.ID, domain.JobStatusCompleted, "")
	require.NoError(t, err)
	require.True(t, settled)
	return job.ID
}

func TestGenerateFlowDeliversResult(t *testing.T) {
	f := newFixture(t)

	queued := f.runToQueued(t)
	require.True(t, f.reg.InFlight("u1"))

	f.settle(t, domain.JobResult{
		Address:        "SoLExampleAddr111",
		SecretKey:      "5KkSecret",
		Attempts:       42,
		ElapsedSeconds: 1.5,
	})

	final := f.sender.waitFor(t, "SoLExampleAddr111")
	require.True(t, final.edited, "result should edit the queued message")
	require.Equal(t, queued.messageID, final.messageID)
	require.Contains(t, final.text, "5KkSecret")
	require.Len(t, f.sender.deletedIDs(), 2, "both choice prompts removed once pressed")

	f.machine.Drain()
	require.False(t, f.reg.InFlight("u1"), "owner freed after delivery")
}

func TestGenerateFailureReportsDiagnostic(t *testing.T) {
	f := newFixture(t)
	f.runToQueued(t)

	ctx := context.Background()
	job, err := f.disp.Claim(ctx)
	require.NoError(t, err)
	_, err = f.disp.Finish(ctx, job.ID, domain.JobStatusFailed, "generator exited with code 1")
	require.NoError(t, err)

	msg := f.sender.waitFor(t, "search failed")
	require.Contains(t, msg.text, "generator exited with code 1")

	f.machine.Drain()
	require.False(t, f.reg.InFlight("u1"))
}

func TestInvalidPatternRepromptsAndRecovers(t *testing.T) {
	f := newFixture(t)

	f.handle(t, KindCommand, "/generate")
	f.sender.waitFor(t, "start or the end")
	f.handle(t, KindButton, "suffix")
	f.sender.waitFor(t, "Send the pattern")

	f.handle(t, KindText, "0bad!")
	f.sender.waitFor(t, "will not work")

	f.handle(t, KindText, "abc")
	f.sender.waitFor(t, "Match case")
}

func TestSecondGenerateWhileInFlightRejected(t *testing.T) {
	f := newFixture(t)
	f.runToQueued(t)

	f.handle(t, KindCommand, "/generate")
	f.sender.waitFor(t, "already have a search")

	f.handle(t, KindCommand, "/cancel")
	f.sender.waitFor(t, "cancelled before it started")
	f.machine.Drain()
}

func TestCancelWaitingJobFreesOwner(t *testing.T) {
	f := newFixture(t)
	f.runToQueued(t)

	f.handle(t, KindCommand, "/cancel")
	f.sender.waitFor(t, "cancelled before it started")
	f.machine.Drain()
	require.False(t, f.reg.InFlight("u1"))

	// The owner can start over immediately.
	f.handle(t, KindCommand, "/generate")
	f.sender.waitFor(t, "start or the end")
}

func TestCancelClaimedJobStopsTracking(t *testing.T) {
	f := newFixture(t)
	f.runToQueued(t)

	ctx := context.Background()
	_, err := f.disp.Claim(ctx)
	require.NoError(t, err)

	f.handle(t, KindCommand, "/cancel")
	f.sender.waitFor(t, "already started")
	require.False(t, f.reg.InFlight("u1"))
}

func TestCancelWithoutJob(t *testing.T) {
	f := newFixture(t)
	f.handle(t, KindCommand, "/cancel")
	f.sender.waitFor(t, "no search to cancel")
}

func TestQueueCommandReportsDepth(t *testing.T) {
	f := newFixture(t)
	f.runToQueued(t)

	f.handle(t, KindCommand, "/queue")
	f.sender.waitFor(t, "1 waiting, 0 running")

	f.handle(t, KindCommand, "/cancel")
	f.sender.waitFor(t, "cancelled before it started")
	f.machine.Drain()
}

func TestFlushRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.runToQueued(t)

	f.handle(t, KindCommand, "/flush")
	f.sender.expectSilence(t)
	require.True(t, f.reg.InFlight("u1"))

	require.NoError(t, f.machine.HandleEvent(context.Background(), Event{
		OwnerID: "admin", ConversationID: "c-admin", Kind: KindCommand, Payload: "/flush",
	}))
	msg := f.sender.waitFor(t, "Cleared 1 pending")
	require.Equal(t, "c-admin", msg.conversationID)

	f.machine.Drain()
	require.False(t, f.reg.InFlight("u1"))
}

func TestAwaitTimeoutKeepsOwnerBound(t *testing.T) {
	f := newFixture(t)
	f.machine.cfg.AwaitTimeout = 50 * time.Millisecond

	f.runToQueued(t)
	f.sender.waitFor(t, "taking longer than expected")
	require.True(t, f.reg.InFlight("u1"), "timeout alone must not free the owner")

	f.handle(t, KindCommand, "/cancel")
	f.sender.waitFor(t, "cancelled before it started")
	f.machine.Drain()
	require.False(t, f.reg.InFlight("u1"))
}

func TestUnexpectedEventsIgnored(t *testing.T) {
	f := newFixture(t)

	f.handle(t, KindText, "hello there")
	f.handle(t, KindButton, "prefix")
	f.handle(t, KindCommand, "/unknown")
	f.sender.expectSilence(t)
}

func TestIndonesianLocaleSelected(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.machine.HandleEvent(context.Background(), Event{
		OwnerID: "u2", ConversationID: "c2", Kind: KindCommand, Payload: "/start", Language: "id",
	}))
	f.sender.waitFor(t, "alamat Solana")
}

func TestSweepIdleSessionsDropsStaleDrafts(t *testing.T) {
	f := newFixture(t)
	f.handle(t, KindCommand, "/generate")
	f.sender.waitFor(t, "start or the end")

	require.Equal(t, 0, f.machine.SweepIdleSessions(), "fresh session survives")

	f.machine.mu.Lock()
	f.machine.sessions["u1"].touchedAt = time.Now().Add(-2 * time.Minute)
	f.machine.mu.Unlock()

	require.Equal(t, 1, f.machine.SweepIdleSessions())
}
