package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/api"
	"github.com/pawsaarthi/rescue-api/notify"
)

// Notification serves the websocket push channel
type Notification struct {
	Hub  *notify.Hub
	Auth *api.MiddlewareDB
}

// WebSocketHandler upgrades an authenticated connection. Browsers cannot set
// headers on websocket requests, so the bearer token comes as ?token=.
func (n Notification) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	user, err := n.Auth.AuthenticateToken(r, token)
	if err != nil {
		zap.S().Debugw("websocket authentication failed", "error", err)
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	n.Hub.Serve(w, r, user.ID)
}
