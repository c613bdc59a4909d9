package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/whale-professor/Solvan/internal/conversation"
	"github.com/whale-professor/Solvan/internal/domain"
	"github.com/whale-professor/Solvan/internal/infra"
)

type stubEvents struct {
	events chan conversation.Event
}

func (s *stubEvents) HandleEvent(_ context.Context, ev conversation.Event) error {
	s.events <- ev
	return nil
}

type stubAcker struct {
	mu  sync.Mutex
	ids []string
}

func (s *stubAcker) AnswerCallback(_ context.Context, id string) error {
	s.mu.Lock()
	s.ids = append(s.ids, id)
	s.mu.Unlock()
	return nil
}

type stubDepth struct {
	depth domain.Depth
	err   error
}

func (s *stubDepth) Depth(context.Context) (domain.Depth, error) {
	return s.depth, s.err
}

type stubFlusher struct {
	count int
	err   error
}

func (s *stubFlusher) FlushAll(context.Context) (int, error) {
	return s.count, s.err
}

func newTestApp() (*App, *stubEvents, *stubAcker) {
	events := &stubEvents{events: make(chan conversation.Event, 8)}
	acker := &stubAcker{}
	app := &App{
		Events:        events,
		Acker:         acker,
		Queue:         &stubDepth{depth: domain.Depth{Waiting: 3, Active: 1}},
		Flush:         &stubFlusher{count: 5},
		WebhookToken:  "hook-token",
		WebhookSecret: "hook-secret",
		AdminToken:    "admin-token",
		Log:           infra.NewLogger("test"),
	}
	return app, events, acker
}

func newTestRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/queue/depth", app.QueueDepth)
	r.Post("/v1/admin/flush", app.AdminFlush)
	r.Post("/webhook/{token}", app.Webhook)
	return r
}

func postWebhook(router http.Handler, token, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+token, strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const messageUpdate = `{
	"message": {
		"message_id": 1,
		"from": {"id": 42, "language_code": "en"},
		"chat": {"id": 99},
		"text": "/generate"
	}
}`

func TestWebhookDispatchesEvent(t *testing.T) {
	app, events, _ := newTestApp()
	router := newTestRouter(app)

	rec := postWebhook(router, "hook-token", "hook-secret", messageUpdate)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "accepted") {
		t.Fatalf("body = %q", rec.Body.String())
	}

	select {
	case ev := <-events.events:
		if ev.Kind != conversation.KindCommand || ev.OwnerID != "42" || ev.ConversationID != "99" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not dispatched")
	}
	app.Drain()
}

func TestWebhookRejectsWrongToken(t *testing.T) {
	app, events, _ := newTestApp()
	router := newTestRouter(app)

	rec := postWebhook(router, "other-token", "hook-secret", messageUpdate)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(events.events) != 0 {
		t.Fatalf("no event expected")
	}
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	app, _, _ := newTestApp()
	router := newTestRouter(app)

	rec := postWebhook(router, "hook-token", "wrong", messageUpdate)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	app, _, _ := newTestApp()
	router := newTestRouter(app)

	rec := postWebhook(router, "hook-token", "hook-secret", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookAcksCallback(t *testing.T) {
	app, events, acker := newTestApp()
	router := newTestRouter(app)

	rec := postWebhook(router, "hook-token", "hook-secret", `{
		"callback_query": {
			"id": "cb-1",
			"from": {"id": 42},
			"message": {"message_id": 2, "chat": {"id": 99}},
			"data": "prefix"
		}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	select {
	case ev := <-events.events:
		if ev.Kind != conversation.KindButton || ev.Payload != "prefix" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not dispatched")
	}
	app.Drain()

	acker.mu.Lock()
	defer acker.mu.Unlock()
	if len(acker.ids) != 1 || acker.ids[0] != "cb-1" {
		t.Fatalf("acked = %v", acker.ids)
	}
}

func TestWebhookIgnoresUnsupportedUpdate(t *testing.T) {
	app, events, _ := newTestApp()
	router := newTestRouter(app)

	rec := postWebhook(router, "hook-token", "hook-secret", `{"update_id": 5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ignored") {
		t.Fatalf("body = %q", rec.Body.String())
	}
	app.Drain()
	if len(events.events) != 0 {
		t.Fatalf("no event expected")
	}
}
