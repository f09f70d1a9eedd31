package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temportalflux/wishlist/internal/autosync"
	"github.com/temportalflux/wishlist/internal/errors"
	"github.com/temportalflux/wishlist/internal/list"
	liststore "github.com/temportalflux/wishlist/internal/list/storage"
	"github.com/temportalflux/wishlist/internal/middleware"
	"github.com/temportalflux/wishlist/internal/remote"
	"github.com/temportalflux/wishlist/internal/status"
	"github.com/temportalflux/wishlist/internal/storage"
	"github.com/temportalflux/wishlist/internal/user"
	userstore "github.com/temportalflux/wishlist/internal/user/storage"
	"go.uber.org/zap"
)

// fakeFlusher clears the queue of a list without talking to a remote.
type fakeFlusher struct {
	db      *storage.DB
	err     error
	flushed []list.ID
}

func (f *fakeFlusher) Flush(ctx context.Context, id list.ID) error {
	f.flushed = append(f.flushed, id)
	if f.err != nil {
		return f.err
	}
	lists := liststore.NewStore(f.db)
	return f.db.Update(func(tx *storage.Txn) error {
		l, err := lists.Get(tx, id)
		if err != nil {
			return nil
		}
		l.PendingChanges = nil
		return lists.Put(tx, l)
	})
}

type server struct {
	handler  http.Handler
	db       *storage.DB
	reporter *status.Reporter
	channel  *autosync.Channel
	flusher  *fakeFlusher
}

func newServer(t *testing.T) *server {
	db, err := storage.Open(storage.Options{InMemory: true, SchemaVersion: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	lists := liststore.NewStore(db)
	users := userstore.NewStore(db)
	err = db.Update(func(tx *storage.Txn) error {
		if err := users.Put(tx, &user.User{Login: "octo", LocalVersion: "c1", RemoteVersion: "c2"}); err != nil {
			return err
		}
		gifts := &list.List{ID: list.ID{Owner: "octo", Slug: "gifts"}, Content: "list \"Gifts\"\n", LocalVersion: "c1"}
		gifts.Enqueue("Add kite", "list \"Gifts\"\nitem \"kite\"\n")
		if err := lists.Put(tx, gifts); err != nil {
			return err
		}
		return lists.Put(tx, &list.List{ID: list.ID{Owner: "other", Slug: "tools"}, Content: "list \"Tools\"\n", LocalVersion: "c9"})
	})
	require.NoError(t, err)

	s := &server{
		db:       db,
		reporter: status.NewReporter(zap.NewNop()),
		channel:  autosync.NewChannel(zap.NewNop()),
		flusher:  &fakeFlusher{db: db},
	}
	mux := http.NewServeMux()
	Routes(mux, NewSyncHandler(s.reporter, s.channel, db), NewListHandler(db, s.flusher))
	s.handler = mux
	return s
}

func (s *server) do(t *testing.T, method, path string, out any) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	var body map[string]string
	rec := s.do(t, http.MethodGet, "/health", &body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestStatus(t *testing.T) {
	s := newServer(t)

	var idle StatusResponse
	rec := s.do(t, http.MethodGet, "/api/status", &idle)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, idle.Active)
	assert.Empty(t, idle.Stages)
	require.Len(t, idle.Users, 1)
	assert.True(t, idle.Users[0].Stale)

	s.reporter.PushStage("Updating lists")
	s.reporter.PushProgressStage("Downloading files", 4)
	s.reporter.IncrementProgress()

	var busy StatusResponse
	s.do(t, http.MethodGet, "/api/status", &busy)
	assert.True(t, busy.Active)
	require.Len(t, busy.Stages, 2)
	assert.Equal(t, "Downloading files", busy.Stages[1].Title)
	assert.Equal(t, &status.Progress{Current: 1, Max: 4}, busy.Stages[1].Progress)
}

func TestTriggerSync(t *testing.T) {
	s := newServer(t)

	var first, second SyncResponse
	rec := s.do(t, http.MethodPost, "/api/sync", &first)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, first.Queued)
	assert.NotEmpty(t, first.RequestID)
	assert.Equal(t, first.RequestID, rec.Header().Get(middleware.SyncRequestHeader))

	rec = s.do(t, http.MethodPost, "/api/sync", &second)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, second.Queued)

	rec = s.do(t, http.MethodGet, "/api/sync", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListEndpoints(t *testing.T) {
	s := newServer(t)

	var all []ListSummary
	s.do(t, http.MethodGet, "/api/lists", &all)
	require.Len(t, all, 2)
	assert.Equal(t, "octo/gifts", all[0].ID.String())
	assert.Equal(t, 1, all[0].Pending)

	var owned []ListSummary
	s.do(t, http.MethodGet, "/api/lists?owner=other", &owned)
	require.Len(t, owned, 1)
	assert.Equal(t, "tools", owned[0].ID.Slug)

	var gifts list.List
	rec := s.do(t, http.MethodGet, "/api/lists/octo/gifts", &gifts)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(gifts.Content, "kite"))
	require.Len(t, gifts.PendingChanges, 1)

	var missing errorResponse
	rec = s.do(t, http.MethodGet, "/api/lists/octo/nope", &missing)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.ErrorTypeNotFound, missing.Type)
	assert.Equal(t, string(errors.ErrorTypeNotFound), rec.Header().Get(middleware.ErrorTypeHeader))

	var invalid errorResponse
	rec = s.do(t, http.MethodGet, "/api/lists/octo/.hidden", &invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.ErrorTypeValidation, invalid.Type)
}

func TestFlushEndpoint(t *testing.T) {
	s := newServer(t)

	var flushed list.List
	rec := s.do(t, http.MethodPost, "/api/lists/octo/gifts/flush", &flushed)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, flushed.PendingChanges)
	assert.Equal(t, []list.ID{{Owner: "octo", Slug: "gifts"}}, s.flusher.flushed)

	s.flusher.err = errors.RemoteHost("push octo/gifts", remote.NewError("CreateOrUpdateFile", remote.KindNetwork, nil))
	var failed errorResponse
	rec = s.do(t, http.MethodPost, "/api/lists/octo/gifts/flush", &failed)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, errors.ErrorTypeRemoteHost, failed.Type)
}
