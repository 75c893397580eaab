package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/air13x/air13x/internal/api/middleware"
	"github.com/air13x/air13x/internal/api/models"
	"github.com/air13x/air13x/internal/api/response"
	"github.com/air13x/air13x/internal/dashboard"
)

// maxFetchBody bounds the trigger body.
const maxFetchBody = 16 << 10

// SessionStore holds dashboard sessions.
type SessionStore interface {
	Create() *dashboard.Session
	Get(id string) (*dashboard.Session, error)
	Delete(id string) error
}

// FetchStarter triggers a session and runs its fetch in the background.
type FetchStarter interface {
	Start(s *dashboard.Session, req dashboard.Request) (uint64, error)
}

// SessionHandler serves dashboard sessions.
type SessionHandler struct {
	store   SessionStore
	fetcher FetchStarter
	logger  zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(store SessionStore, fetcher FetchStarter, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{store: store, fetcher: fetcher, logger: logger}
}

// CreateSession handles POST /v1/sessions.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.store.Create()

	h.logger.Debug().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("session_id", session.ID()).
		Msg("session created")

	response.Created(w, r, sessionPath(session.ID()), session.Snapshot())
}

// GetSession handles GET /v1/sessions/{sessionId}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, session.Snapshot())
}

// GetDashboard handles GET /v1/sessions/{sessionId}/dashboard.
func (h *SessionHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, dashboard.BuildView(session.Snapshot()))
}

// Fetch handles POST /v1/sessions/{sessionId}/fetch. The fetch runs in the
// background; clients poll the session or its dashboard. A fetch still
// running for the session is superseded.
func (h *SessionHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var body models.FetchRequest
	// An empty body is validated like an empty object so every missing field
	// is reported.
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFetchBody)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "request body must be a JSON object", nil)
		return
	}

	version, err := h.fetcher.Start(session, body.ToDashboard())
	if err != nil {
		var verr *dashboard.ValidationError
		switch {
		case errors.As(err, &verr):
			response.BadRequest(w, r, verr.Error(), models.FieldErrors(verr))
		default:
			h.logger.Error().Err(err).
				Str("request_id", middleware.GetRequestID(r.Context())).
				Str("session_id", session.ID()).
				Msg("failed to start fetch")
			response.InternalError(w, r, "failed to start fetch")
		}
		return
	}

	response.Accepted(w, r, sessionPath(session.ID())+"/dashboard", models.FetchAccepted{
		SessionID: session.ID(),
		Version:   version,
		State:     dashboard.Fetching,
	})
}

// DeleteSession handles DELETE /v1/sessions/{sessionId}.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(chi.URLParam(r, "sessionId")); err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool) {
	session, err := h.store.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return nil, false
	}
	return session, true
}

func (h *SessionHandler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, dashboard.ErrSessionNotFound) {
		response.NotFound(w, r, "session not found")
		return
	}
	response.InternalError(w, r, "failed to load session")
}

func sessionPath(id string) string {
	return "/v1/sessions/" + id
}
