package controllers

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"attendees/internal/services"
	"attendees/internal/testutil"
	"attendees/internal/transfer"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubShard overrides the operations a test exercises. Anything else panics
// through the nil embedded interface.
type stubShard struct {
	services.AttendeeServiceInterface
	joinCaller models.Principal
	joinReq    [2]models.Principal
	joinErr    error
	leaveErr   error
	attendees  []models.JoinedAttendeeResponse
	chunk      transfer.Chunk
	chunkReq   models.ChunkRequest
	status     models.ShardStatus
	installErr error
}

func (s *stubShard) JoinEvent(_ context.Context, caller, event, group models.Principal) (models.Entry, error) {
	s.joinCaller = caller
	s.joinReq = [2]models.Principal{event, group}
	if s.joinErr != nil {
		return models.Entry{}, s.joinErr
	}
	return models.Entry{ID: "entry-1", Attendee: models.NewAttendee(caller)}, nil
}

func (s *stubShard) LeaveEvent(_, _ models.Principal) error { return s.leaveErr }

func (s *stubShard) GetEventAttendees(_ models.Principal) []models.JoinedAttendeeResponse {
	return s.attendees
}

func (s *stubShard) JoinedChunk(_, event models.Principal, chunk, maxBytes int) (transfer.Chunk, error) {
	s.chunkReq = models.ChunkRequest{EventIdentifier: event, Chunk: chunk, MaxBytesPerChunk: maxBytes}
	return s.chunk, nil
}

func (s *stubShard) Status() models.ShardStatus { return s.status }

func (s *stubShard) Install(_ models.Principal, _ models.InstallRequest) error { return s.installErr }

func post(path, body string, who models.Principal) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(providers.CallerHeader, string(who))
	return req
}

func TestShardController_JoinEvent(t *testing.T) {
	svc := &stubShard{}
	sc := NewShardController(&testutil.MockLogger{}, svc)

	rr := httptest.NewRecorder()
	sc.JoinEvent(rr, post("/events/join", `{"event_identifier":"evt-1","group_identifier":"grp-1"}`, "alice"))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, models.Principal("alice"), svc.joinCaller)
	assert.Equal(t, [2]models.Principal{"evt-1", "grp-1"}, svc.joinReq)

	var entry models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	assert.Equal(t, models.Principal("entry-1"), entry.ID)
}

func TestShardController_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", models.NewApiError(models.KindNotFound, models.TagAttendeeNotFound, "x", "t"), http.StatusNotFound},
		{"bad request", models.NewApiError(models.KindBadRequest, models.TagAlreadyJoined, "x", "t"), http.StatusBadRequest},
		{"unauthorized", models.NewApiError(models.KindUnauthorized, models.TagUnauthorized, "x", "t"), http.StatusUnauthorized},
		{"capacity", models.NewApiError(models.KindCanisterAtCapacity, models.TagAtCapacity, "x", "t"), http.StatusConflict},
		{"remote", models.NewApiError(models.KindRemoteCallFailed, models.TagRemoteCallFailed, "x", "t"), http.StatusBadGateway},
		{"untyped", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewShardController(&testutil.MockLogger{}, &stubShard{joinErr: tt.err})
			rr := httptest.NewRecorder()
			sc.JoinEvent(rr, post("/events/join", `{"event_identifier":"evt-1"}`, "alice"))

			assert.Equal(t, tt.status, rr.Code)
			var apiErr models.ApiError
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
			assert.NotEmpty(t, apiErr.Kind)
		})
	}
}

func TestShardController_RedirectTravelsWithCapacityError(t *testing.T) {
	capErr := models.NewApiError(models.KindCanisterAtCapacity, models.TagAtCapacity, "full", "join")
	capErr.Redirect = "http://shard-1:8080"
	sc := NewShardController(&testutil.MockLogger{}, &stubShard{joinErr: capErr})

	rr := httptest.NewRecorder()
	sc.JoinEvent(rr, post("/events/join", `{"event_identifier":"evt-1"}`, "alice"))

	var apiErr models.ApiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
	assert.Equal(t, models.Principal("http://shard-1:8080"), apiErr.Redirect)
}

func TestShardController_BadBody(t *testing.T) {
	sc := NewShardController(&testutil.MockLogger{}, &stubShard{})
	rr := httptest.NewRecorder()
	sc.JoinEvent(rr, post("/events/join", `{not json`, "alice"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestShardController_LeaveReturnsNoContent(t *testing.T) {
	sc := NewShardController(&testutil.MockLogger{}, &stubShard{})
	rr := httptest.NewRecorder()
	sc.LeaveEvent(rr, post("/events/leave", `{"event_identifier":"evt-1"}`, "alice"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestShardController_GetEventAttendees(t *testing.T) {
	svc := &stubShard{attendees: []models.JoinedAttendeeResponse{{EventIdentifier: "evt-1", Principal: "alice"}}}
	sc := NewShardController(&testutil.MockLogger{}, svc)

	rr := httptest.NewRecorder()
	sc.GetEventAttendees(rr, httptest.NewRequest(http.MethodGet, "/events/attendees?event=evt-1", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got []models.JoinedAttendeeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, svc.attendees, got)
}

func TestShardController_JoinedChunk(t *testing.T) {
	svc := &stubShard{chunk: transfer.Chunk{Bytes: []byte("abc"), Index: 0, Last: 1}}
	sc := NewShardController(&testutil.MockLogger{}, svc)

	rr := httptest.NewRecorder()
	sc.JoinedChunk(rr, post("/chunks/joined", `{"event_identifier":"evt-1","chunk":0,"max_bytes_per_chunk":64}`, "coordinator"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.ChunkRequest{EventIdentifier: "evt-1", MaxBytesPerChunk: 64}, svc.chunkReq)
	var got transfer.Chunk
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, svc.chunk, got)
}

func TestShardController_InstallAnswersStatus(t *testing.T) {
	svc := &stubShard{status: models.ShardStatus{Installed: true, Name: "attendees"}}
	sc := NewShardController(&testutil.MockLogger{}, svc)

	rr := httptest.NewRecorder()
	sc.Install(rr, post("/internal/install", `{"image":"AAE=","args":{"parent":"coordinator"}}`, "coordinator"))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got models.ShardStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.True(t, got.Installed)
}

func TestShardController_InstallRejected(t *testing.T) {
	svc := &stubShard{installErr: models.NewApiError(models.KindBadRequest, models.TagAlreadyInstalled, "x", "install")}
	sc := NewShardController(&testutil.MockLogger{}, svc)

	rr := httptest.NewRecorder()
	sc.Install(rr, post("/internal/install", `{"args":{"parent":"coordinator"}}`, "coordinator"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
