package notifications

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/darkden-lab/relay/internal/auth"
	"github.com/darkden-lab/relay/internal/httputil"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Handlers provides HTTP handlers for the notifications API.
type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes wires the notification endpoints onto the provided router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/notifications", h.ListNotifications).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/unread-count", h.UnreadCount).Methods(http.MethodGet)
}

type listResponse struct {
	Nodes    []*Notification `json:"nodes"`
	PageInfo PageInfo        `json:"pageInfo"`
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.ViewerFromContext(r.Context())

	q := r.URL.Query()
	params, err := parseFetchParams(q)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.service.Page(r.Context(), viewer, params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Nodes: page.Nodes, PageInfo: page.PageInfo})
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.ViewerFromContext(r.Context())

	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := h.service.UnreadCount(r.Context(), viewer, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var callerErr *CallerError
	switch {
	case errors.Is(err, auth.ErrNoUser):
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &callerErr):
		httputil.WriteErrorCode(w, http.StatusNotFound, callerErr.Code, callerErr.Message)
	default:
		log.Error().Err(err).Str("component", "notifications").Msg("request failed")
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseFetchParams(q url.Values) (FetchParams, error) {
	var p FetchParams

	p.Limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return p, fmt.Errorf("invalid limit %q", v)
		}
		p.Limit = min(limit, maxPageSize)
	}

	if v := q.Get("before"); v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return p, fmt.Errorf("invalid before %q", v)
		}
		// createdTimestamp is a UTC timestamp without zone.
		ts = ts.UTC()
		p.LtCreatedTimestamp = &ts
	}

	filter, err := parseFilter(q)
	if err != nil {
		return p, err
	}
	p.Filter = filter
	return p, nil
}

func parseFilter(q url.Values) (Filter, error) {
	f := Filter{
		GroupID:        q.Get("group_id"),
		OrganizationID: q.Get("organization_id"),
	}

	if v := q.Get("metadata"); v != "" {
		if err := json.Unmarshal([]byte(v), &f.Metadata); err != nil {
			return f, fmt.Errorf("invalid metadata: %w", err)
		}
	}

	if v := q.Get("location"); v != "" {
		loc := &LocationFilter{}
		if err := json.Unmarshal([]byte(v), &loc.Value); err != nil {
			return f, fmt.Errorf("invalid location: %w", err)
		}
		if pm := q.Get("partial_match"); pm != "" {
			partial, err := strconv.ParseBool(pm)
			if err != nil {
				return f, fmt.Errorf("invalid partial_match %q", pm)
			}
			loc.PartialMatch = partial
		}
		f.Location = loc
	}

	if v := q.Get("read_status"); v != "" {
		f.ReadStatus = ReadStatus(v)
		if !f.ReadStatus.Valid() {
			return f, fmt.Errorf("invalid read_status %q", v)
		}
	}

	if v := q.Get("subscribed"); v != "" {
		subscribed, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid subscribed %q", v)
		}
		f.Subscribed = &subscribed
	}

	return f, nil
}
