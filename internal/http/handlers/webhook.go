package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/whale-professor/Solvan/internal/gateway"
)

// eventTimeout bounds one event's synchronous handling (replies included);
// result delivery runs on its own clock inside the conversation layer.
const eventTimeout = 30 * time.Second

// Webhook receives bot platform updates. The update is acknowledged with 200
// immediately and handled on a detached goroutine: the platform retries slow
// webhooks, and generation outcomes arrive minutes later anyway.
func (a *App) Webhook(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(chi.URLParam(r, "token")), []byte(a.WebhookToken)) != 1 {
		a.error(w, http.StatusNotFound, "not found")
		return
	}
	if a.WebhookSecret != "" &&
		subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Telegram-Bot-Api-Secret-Token")), []byte(a.WebhookSecret)) != 1 {
		a.error(w, http.StatusUnauthorized, "bad secret")
		return
	}

	update, err := gateway.DecodeUpdate(r.Body)
	if err != nil {
		a.error(w, http.StatusBadRequest, "malformed update")
		return
	}

	if id := update.CallbackID(); id != "" && a.Acker != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			defer cancel()
			if err := a.Acker.AnswerCallback(ctx, id); err != nil {
				a.Log.Warn().Err(err).Str("callback_id", id).Msg("callback ack failed")
			}
		}()
	}

	ev, ok := update.Event()
	if !ok {
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := a.Events.HandleEvent(ctx, ev); err != nil {
			a.Log.Error().Err(err).Str("owner_id", ev.OwnerID).Msg("event handling failed")
		}
	}()

	a.json(w, http.StatusOK, map[string]string{"status": "accepted"})
}
