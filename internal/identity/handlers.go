package identity

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/darkden-lab/relay/internal/auth"
	"github.com/darkden-lab/relay/internal/httputil"
)

type Handlers struct {
	publisher *Publisher
}

func NewHandlers(publisher *Publisher) *Handlers {
	return &Handlers{publisher: publisher}
}

func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/identity/updated", h.IdentityUpdated).Methods(http.MethodPost)
}

// IdentityUpdated handles POST /api/identity/updated, sent after the viewer
// changes their display name or avatar. A viewer scoped to one org only
// notifies that org.
func (h *Handlers) IdentityUpdated(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.ViewerFromContext(r.Context())
	userID, err := viewer.RequireUser()
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	err = h.publisher.PublishUserIdentityUpdate(r.Context(), Update{
		UserID:                userID,
		OrgID:                 viewer.OrgID,
		PlatformApplicationID: viewer.PlatformApplicationID,
	})
	if err != nil {
		log.Error().Err(err).Str("component", "identity").Str("user_id", userID).Msg("publish identity update")
		httputil.WriteError(w, http.StatusInternalServerError, "failed to publish identity update")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
