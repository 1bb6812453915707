package remote

import (
	"attendees/internal/models"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventID(unit string, n uint64) models.Principal {
	return models.Identifier{Unit: models.Principal(unit), Counter: n, Kind: models.KindEvent}.Encode()
}

func TestEventClient_GetPrivacyAndOwner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, eventPrivacyPath, r.URL.Path)
		assert.Equal(t, "g1", r.URL.Query().Get("group"))
		writeJSON(w, http.StatusOK, models.EventPrivacy{Owner: "owner", Privacy: models.PrivacyPublic})
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	ec := NewEventClient(c)

	got, err := ec.GetPrivacyAndOwner(context.Background(), eventID(srv.URL, 1), "g1")
	require.NoError(t, err)
	assert.Equal(t, models.PrivacyPublic, got.Privacy)
	assert.Equal(t, models.Principal("owner"), got.Owner)
}

func TestEventClient_DedupesConcurrentLookups(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		writeJSON(w, http.StatusOK, models.EventPrivacy{Privacy: models.PrivacyPrivate})
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	ec := NewEventClient(c)
	event := eventID(srv.URL, 2)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ec.GetPrivacyAndOwner(context.Background(), event, "g1")
			assert.NoError(t, err)
			assert.Equal(t, models.PrivacyPrivate, got.Privacy)
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEventClient_RejectsNonEventIdentifier(t *testing.T) {
	c, _ := newTestClient(t)
	ec := NewEventClient(c)

	group := models.Identifier{Unit: "http://groups", Counter: 1, Kind: models.KindGroup}.Encode()
	_, err := ec.GetPrivacyAndOwner(context.Background(), group, "g1")
	assert.True(t, models.HasTag(err, models.TagInvalidIdentifier))

	err = ec.UpdateAttendeeCount(context.Background(), "garbage!", 1)
	assert.True(t, models.HasTag(err, models.TagInvalidIdentifier))
}

func TestEventClient_UpdateAttendeeCount(t *testing.T) {
	var got models.AttendeeCountUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, eventCountPath, r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	event := eventID(srv.URL, 3)
	require.NoError(t, NewEventClient(c).UpdateAttendeeCount(context.Background(), event, 4))

	assert.Equal(t, event, got.EventIdentifier)
	assert.Equal(t, models.Principal(selfURL), got.Shard)
	assert.Equal(t, 4, got.Count)
}
