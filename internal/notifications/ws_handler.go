package notifications

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/darkden-lab/relay/internal/auth"
	"github.com/darkden-lab/relay/internal/httputil"
	"github.com/darkden-lab/relay/internal/pubsub"
	"github.com/darkden-lab/relay/internal/ws"
)

// WSHandler streams a user's notification events over WebSocket. Every
// notification-added, notification-read-state-updated and
// notification-deleted event for the user is forwarded as its envelope. A
// restart-subscription event closes the socket so the client reconnects and
// refetches.
type WSHandler struct {
	bus      *pubsub.Bus
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(bus *pubsub.Bus, hub *ws.Hub, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		bus: bus,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     ws.NewOriginChecker(allowedOrigins),
		},
	}
}

// RegisterRoutes wires the notifications WebSocket endpoint.
func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/notifications", h.ServeWS).Methods(http.MethodGet)
}

// ServeWS upgrades to WebSocket for real-time notification push.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.ViewerFromContext(r.Context())
	userID, err := viewer.RequireUser()
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// The stream outlives the request context, which ends when ServeWS
	// returns.
	ctx, cancel := context.WithCancel(context.Background())
	key := pubsub.UserKey{UserID: userID}
	it, err := h.bus.AsyncIterator(ctx,
		pubsub.On(pubsub.NotificationAdded, key),
		pubsub.On(pubsub.NotificationReadStateUpdated, key),
		pubsub.On(pubsub.NotificationDeleted, key),
		pubsub.On(pubsub.RestartSubscription, key),
	)
	if err != nil {
		cancel()
		log.Error().Err(err).Str("component", "notifications").Str("user_id", userID).Msg("subscribe notification stream")
		httputil.WriteError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		_ = it.Close()
		return
	}

	client := ws.NewClient(conn, userID)
	h.hub.Register(client)
	client.Run()
	log.Debug().Str("component", "notifications").Str("user_id", userID).Msg("ws connected")

	go h.forward(ctx, cancel, client, it)
}

func (h *WSHandler) forward(ctx context.Context, cancel context.CancelFunc, client *ws.Client, it *pubsub.Iterator) {
	defer cancel()
	defer it.Close()

	go func() {
		select {
		case <-client.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		env, err := it.Next(ctx)
		if err != nil {
			client.Close(websocket.CloseNormalClosure, "")
			return
		}
		if env.Name == pubsub.NameRestartSubscription {
			client.Close(websocket.CloseServiceRestart, "restart subscription")
			return
		}

		data, err := json.Marshal(env)
		if err != nil {
			log.Warn().Err(err).Str("component", "notifications").Msg("encode event")
			continue
		}
		if !client.Send(data) {
			return
		}
	}
}
