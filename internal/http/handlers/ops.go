package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// QueueDepth reports queue occupancy.
func (a *App) QueueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := a.Queue.Depth(r.Context())
	if err != nil {
		a.Log.Error().Err(err).Msg("depth query failed")
		a.error(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	a.json(w, http.StatusOK, depth)
}

// AdminFlush clears all pending jobs and trackers. Requires the admin bearer
// token.
func (a *App) AdminFlush(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		a.error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	count, err := a.Flush.FlushAll(r.Context())
	if err != nil {
		a.Log.Error().Err(err).Msg("flush failed")
		a.error(w, http.StatusInternalServerError, "flush failed")
		return
	}
	a.Log.Info().Int("count", count).Msg("queue flushed via admin api")
	a.json(w, http.StatusOK, map[string]int{"flushed": count})
}

func (a *App) authorized(r *http.Request) bool {
	if a.AdminToken == "" {
		return false
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.AdminToken)) == 1
}
