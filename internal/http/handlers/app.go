// Package handlers exposes the service's HTTP surface: the bot webhook plus a
// small operational API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/whale-professor/Solvan/internal/conversation"
	"github.com/whale-professor/Solvan/internal/domain"
)

// EventHandler consumes translated conversation events. Implemented by
// conversation.Machine.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev conversation.Event) error
}

// CallbackAcker acknowledges button presses. Implemented by gateway.Client;
// nil disables acknowledgement.
type CallbackAcker interface {
	AnswerCallback(ctx context.Context, callbackID string) error
}

// DepthReader reports queue occupancy. Implemented by queue.Dispatcher.
type DepthReader interface {
	Depth(ctx context.Context) (domain.Depth, error)
}

// Flusher clears all pending work. Implemented by conversation.Machine.
type Flusher interface {
	FlushAll(ctx context.Context) (int, error)
}

type App struct {
	Events EventHandler
	Acker  CallbackAcker
	Queue  DepthReader
	Flush  Flusher

	// WebhookToken must match the {token} path segment; WebhookSecret, when
	// set, must match the platform's secret header.
	WebhookToken  string
	WebhookSecret string
	// AdminToken guards the flush endpoint. Empty disables it.
	AdminToken string

	Log zerolog.Logger

	wg sync.WaitGroup
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}

// Drain waits for in-flight webhook event goroutines. Used in tests and on
// shutdown.
func (a *App) Drain() {
	a.wg.Wait()
}
