// internal/api/handlers.go
package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/temportalflux/wishlist/internal/autosync"
	"github.com/temportalflux/wishlist/internal/errors"
	"github.com/temportalflux/wishlist/internal/list"
	"github.com/temportalflux/wishlist/internal/middleware"
	liststore "github.com/temportalflux/wishlist/internal/list/storage"
	"github.com/temportalflux/wishlist/internal/status"
	"github.com/temportalflux/wishlist/internal/storage"
	"github.com/temportalflux/wishlist/internal/user"
	userstore "github.com/temportalflux/wishlist/internal/user/storage"
)

// StatusSource is the read side of the status reporter.
type StatusSource interface {
	Stages() []status.Stage
	IsActive() bool
}

// Trigger submits sync requests.
type Trigger interface {
	TrySend(req autosync.Request) bool
}

// Flusher pushes a list's queued edits now.
type Flusher interface {
	Flush(ctx context.Context, id list.ID) error
}

type UserStatus struct {
	Login         string `json:"login"`
	LocalVersion  string `json:"local_version"`
	RemoteVersion string `json:"remote_version"`
	Stale         bool   `json:"stale"`
}

type StatusResponse struct {
	Active bool           `json:"active"`
	Stages []status.Stage `json:"stages"`
	Users  []UserStatus   `json:"users"`
}

type SyncResponse struct {
	RequestID string `json:"request_id"`
	// Queued is false when a sync was already pending and absorbed this one.
	Queued bool `json:"queued"`
}

type ListSummary struct {
	ID           list.ID `json:"id"`
	LocalVersion string  `json:"local_version"`
	Pending      int     `json:"pending"`
}

type errorResponse struct {
	Type    errors.ErrorType `json:"type,omitempty"`
	Message string           `json:"message"`
}

// SyncHandler serves the sync status and trigger endpoints.
type SyncHandler struct {
	status  StatusSource
	trigger Trigger
	users   *userstore.Store
}

func NewSyncHandler(source StatusSource, trigger Trigger, db *storage.DB) *SyncHandler {
	return &SyncHandler{status: source, trigger: trigger, users: userstore.NewStore(db)}
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.All()
	if err != nil {
		writeError(w, errors.LocalStore("read users", err))
		return
	}

	resp := StatusResponse{
		Active: h.status.IsActive(),
		Stages: h.status.Stages(),
		Users:  make([]UserStatus, 0, len(users)),
	}
	if resp.Stages == nil {
		resp.Stages = []status.Stage{}
	}
	for _, u := range users {
		resp.Users = append(resp.Users, userStatus(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

func userStatus(u *user.User) UserStatus {
	return UserStatus{
		Login:         u.Login,
		LocalVersion:  u.LocalVersion,
		RemoteVersion: u.RemoteVersion,
		Stale:         u.Stale(),
	}
}

func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	req := autosync.NewRequest("api")
	queued := h.trigger.TrySend(req)
	w.Header().Set(middleware.SyncRequestHeader, req.ID)
	writeJSON(w, http.StatusAccepted, SyncResponse{RequestID: req.ID, Queued: queued})
}

// ListHandler serves the stored lists.
type ListHandler struct {
	lists *liststore.Store
	queue Flusher
}

func NewListHandler(db *storage.DB, queue Flusher) *ListHandler {
	return &ListHandler{lists: liststore.NewStore(db), queue: queue}
}

func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	lists, err := h.lists.All()
	if err != nil {
		writeError(w, errors.LocalStore("read lists", err))
		return
	}

	owner := r.URL.Query().Get("owner")
	summaries := make([]ListSummary, 0, len(lists))
	for _, l := range lists {
		if owner != "" && l.ID.Owner != owner {
			continue
		}
		summaries = append(summaries, ListSummary{
			ID:           l.ID,
			LocalVersion: l.LocalVersion,
			Pending:      len(l.PendingChanges),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	l, err := h.lists.Load(id)
	if stderrors.Is(err, storage.ErrNotFound) {
		writeError(w, errors.NotFound("list "+id.String()+" not found"))
		return
	}
	if err != nil {
		writeError(w, errors.LocalStore("read list", err))
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *ListHandler) Flush(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.queue.Flush(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	l, err := h.lists.Load(id)
	if stderrors.Is(err, storage.ErrNotFound) {
		writeError(w, errors.NotFound("list "+id.String()+" not found"))
		return
	}
	if err != nil {
		writeError(w, errors.LocalStore("read list", err))
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func pathID(r *http.Request) (list.ID, error) {
	id := list.ID{Owner: r.PathValue("owner"), Slug: r.PathValue("slug")}
	if err := list.ValidateID(id); err != nil {
		return list.ID{}, err
	}
	return id, nil
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Routes registers every endpoint on mux.
func Routes(mux *http.ServeMux, syncs *SyncHandler, lists *ListHandler) {
	mux.HandleFunc("GET /health", Health)
	mux.HandleFunc("GET /api/status", syncs.Status)
	mux.HandleFunc("POST /api/sync", syncs.Trigger)
	mux.HandleFunc("GET /api/lists", lists.List)
	mux.HandleFunc("GET /api/lists/{owner}/{slug}", lists.Get)
	mux.HandleFunc("POST /api/lists/{owner}/{slug}/flush", lists.Flush)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var code int
	switch errors.TypeOf(err) {
	case errors.ErrorTypeNotFound:
		code = http.StatusNotFound
	case errors.ErrorTypeValidation:
		code = http.StatusBadRequest
	case errors.ErrorTypeRemoteHost, errors.ErrorTypeInvalidResponse:
		code = http.StatusBadGateway
	default:
		code = http.StatusInternalServerError
	}
	if t := errors.TypeOf(err); t != "" {
		w.Header().Set(middleware.ErrorTypeHeader, string(t))
	}
	writeJSON(w, code, errorResponse{Type: errors.TypeOf(err), Message: err.Error()})
}
