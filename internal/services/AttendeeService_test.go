package services

import (
	"attendees/internal/models"
	"attendees/internal/structures"
	"attendees/internal/testutil"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestJoinEvent_PublicThenAlreadyJoined(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	event, group := eventID(1), groupID(1)

	entry, err := shard.JoinEvent(ctx, "alice", event, group)
	require.NoError(t, err)
	assert.True(t, entry.Attendee.HasJoined(event))
	assert.Equal(t, group, entry.Attendee.Joined[event].GroupIdentifier)
	assert.NotEmpty(t, entry.ID)

	_, err = shard.JoinEvent(ctx, "alice", event, group)
	assert.True(t, models.HasTag(err, models.TagAlreadyJoined))
	assert.Equal(t, 1, c.events.lookups, "second join is rejected before the remote lookup")
	assert.Equal(t, 1, shard.Size())
}

func TestJoinEvent_PrivateCreatesUserRequest(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	event := eventID(2)
	c.events.privacy[event] = models.PrivacyPrivate

	entry, err := shard.JoinEvent(ctx, "bob", event, groupID(1))
	require.NoError(t, err)
	inv, ok := entry.Attendee.InviteFor(event)
	require.True(t, ok)
	assert.Equal(t, models.InviteTypeUserRequest, inv.InviteType)
	assert.False(t, entry.Attendee.HasJoined(event))

	_, err = shard.JoinEvent(ctx, "bob", event, groupID(1))
	assert.True(t, models.HasTag(err, models.TagPendingInvite))
}

type recordingNotifier struct {
	events []models.Principal
}

func (r *recordingNotifier) Notify(event models.Principal) { r.events = append(r.events, event) }
func (r *recordingNotifier) Start(context.Context)         {}
func (r *recordingNotifier) Stop()                         {}

func TestJoinEvent_NotifiesOnlyOnJoin(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	notified := &recordingNotifier{}
	shard.notifier = notified
	c.events.privacy[eventID(2)] = models.PrivacyPrivate

	_, err := shard.JoinEvent(ctx, "bob", eventID(2), groupID(1))
	require.NoError(t, err)
	assert.Empty(t, notified.events, "a join request does not change the count")

	_, err = shard.JoinEvent(ctx, "bob", eventID(1), groupID(1))
	require.NoError(t, err)
	assert.Equal(t, []models.Principal{eventID(1)}, notified.events)
}

func TestJoinEvent_UnsupportedPrivacy(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	event := eventID(3)
	c.events.privacy[event] = models.PrivacyGated

	_, err := shard.JoinEvent(ctx, "bob", event, groupID(1))
	assert.True(t, models.HasTag(err, models.TagUnsupported))
	assert.Equal(t, 0, shard.Size())
}

func TestJoinEvent_LookupFailure(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	c.events.err = models.NewApiError(models.KindRemoteCallFailed, models.TagRemoteCallFailed, "down", "events")

	_, err := shard.JoinEvent(ctx, "bob", eventID(1), groupID(1))
	assert.Equal(t, models.KindRemoteCallFailed, models.KindOf(err))
	assert.Equal(t, 0, shard.Size())
}

func TestWrites_RejectAnonymous(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()

	_, err := shard.JoinEvent(ctx, models.Anonymous, eventID(1), groupID(1))
	assert.Equal(t, models.KindUnauthorized, models.KindOf(err))
	assert.Error(t, shard.LeaveEvent("", eventID(1)))
	_, err = shard.InviteToEvent(ctx, models.Anonymous, eventID(1), "bob", "m", groupID(1))
	assert.Equal(t, models.KindUnauthorized, models.KindOf(err))
}

func TestInvite_OwnerRequestFlow(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	event, group := eventID(4), groupID(2)

	entry, err := shard.InviteToEvent(ctx, adminPrincipal, event, "carol", "member-1", group)
	require.NoError(t, err)
	inv, ok := entry.Attendee.InviteFor(event)
	require.True(t, ok)
	assert.Equal(t, models.InviteTypeOwnerRequest, inv.InviteType)

	_, err = shard.AcceptUserRequestEventInvite(ctx, adminPrincipal, "carol", event, "member-1", group)
	assert.True(t, models.HasTag(err, models.TagInvalidType), "owner invites are accepted by the invitee")

	entry, err = shard.AcceptOwnerRequestEventInvite(ctx, "carol", event)
	require.NoError(t, err)
	assert.True(t, entry.Attendee.HasJoined(event))
	_, stillInvited := entry.Attendee.InviteFor(event)
	assert.False(t, stillInvited)
	assert.Equal(t, group, entry.Attendee.Joined[event].GroupIdentifier)
}

func TestInvite_UserRequestFlow(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	event, group := eventID(5), groupID(2)
	c.events.privacy[event] = models.PrivacyPrivate

	_, err := shard.JoinEvent(ctx, "dave", event, group)
	require.NoError(t, err)

	_, err = shard.AcceptOwnerRequestEventInvite(ctx, "dave", event)
	assert.True(t, models.HasTag(err, models.TagInvalidType))

	entry, err := shard.AcceptUserRequestEventInvite(ctx, adminPrincipal, "dave", event, "member-1", group)
	require.NoError(t, err)
	assert.True(t, entry.Attendee.HasJoined(event))
	assert.Empty(t, entry.Attendee.Invites)
}

func TestInvite_AlreadyJoined(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	event := eventID(6)

	_, err := shard.JoinEvent(ctx, "erin", event, groupID(1))
	require.NoError(t, err)

	_, err = shard.InviteToEvent(ctx, adminPrincipal, event, "erin", "member-1", groupID(1))
	assert.True(t, models.HasTag(err, models.TagAlreadyJoined))
}

func TestInvite_PermissionDenied(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	c.permissions.deny = true

	_, err := shard.InviteToEvent(ctx, "mallory", eventID(1), "erin", "member-1", groupID(1))
	assert.True(t, models.HasTag(err, models.TagNoPermission))
	assert.Equal(t, 0, shard.Size())

	_, err = shard.GetEventInvites(ctx, "mallory", eventID(1), groupID(1), "member-1")
	assert.True(t, models.HasTag(err, models.TagNoPermission))
}

func TestAccept_Errors(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()

	_, err := shard.AcceptOwnerRequestEventInvite(ctx, "nobody", eventID(1))
	assert.True(t, models.HasTag(err, models.TagAttendeeNotFound))

	_, err = shard.JoinEvent(ctx, "frank", eventID(1), groupID(1))
	require.NoError(t, err)
	_, err = shard.AcceptOwnerRequestEventInvite(ctx, "frank", eventID(2))
	assert.True(t, models.HasTag(err, models.TagNoInviteFound))
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestLeaveAndRemove(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	event := eventID(7)

	assert.True(t, models.HasTag(shard.LeaveEvent("gina", event), models.TagAttendeeNotFound))
	assert.True(t, models.HasTag(shard.RemoveInvite("gina", event), models.TagAttendeeNotFound))

	_, err := shard.JoinEvent(ctx, "gina", event, groupID(1))
	require.NoError(t, err)
	require.NoError(t, shard.LeaveEvent("gina", event))
	assert.Empty(t, shard.GetEventAttendees(event))
	require.NoError(t, shard.LeaveEvent("gina", event), "missing key is a no-op")

	_, err = shard.InviteToEvent(ctx, adminPrincipal, event, "gina", "m", groupID(1))
	require.NoError(t, err)
	require.NoError(t, shard.RemoveAttendeeInviteFromEvent(ctx, adminPrincipal, "gina", event, groupID(1), "m"))
	self, err := shard.GetSelf("gina")
	require.NoError(t, err)
	assert.Empty(t, self.Attendee.Invites)

	_, err = shard.JoinEvent(ctx, "gina", event, groupID(1))
	require.NoError(t, err)
	require.NoError(t, shard.RemoveAttendeeFromEvent(ctx, adminPrincipal, "gina", event, groupID(1), "m"))
	assert.Equal(t, 0, shard.GetEventAttendeesCount([]models.Principal{event})[0].Count)
}

func TestQueries(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	e1, e2 := eventID(1), eventID(2)
	c.events.privacy[e2] = models.PrivacyPrivate

	for _, p := range []models.Principal{"a", "b", "c"} {
		_, err := shard.JoinEvent(ctx, p, e1, groupID(1))
		require.NoError(t, err)
	}
	_, err := shard.JoinEvent(ctx, "a", e2, groupID(1))
	require.NoError(t, err)

	counts := shard.GetEventAttendeesCount([]models.Principal{e1, e2})
	assert.Equal(t, []models.EventCount{{EventIdentifier: e1, Count: 3}, {EventIdentifier: e2, Count: 0}}, counts)
	assert.Equal(t, 1, shard.GetEventInvitesCount([]models.Principal{e2})[0].Count)

	attendees := shard.GetEventAttendees(e1)
	require.Len(t, attendees, 3)
	assert.Equal(t, models.Principal("a"), attendees[0].Principal)
	assert.Equal(t, groupID(1), attendees[0].GroupIdentifier)

	invites, err := shard.GetEventInvites(ctx, adminPrincipal, e2, groupID(1), "m")
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, models.InviteTypeUserRequest, invites[0].InviteType)

	attending, err := shard.GetAttendingFromPrincipal("a")
	require.NoError(t, err)
	assert.Len(t, attending, 1)

	_, err = shard.GetAttendingFromPrincipal("zed")
	assert.True(t, models.HasTag(err, models.TagAttendeeNotFound))
	_, err = shard.GetSelf("zed")
	assert.True(t, models.HasTag(err, models.TagAttendeeNotFound))
}

func TestAddOwnerAsAttendee(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	event, group := eventID(9), groupID(3)

	err := shard.AddOwnerAsAttendee(ctx, "http://elsewhere", "owner", event, group)
	assert.Equal(t, models.KindUnauthorized, models.KindOf(err))

	err = shard.AddOwnerAsAttendee(ctx, eventsURL, "owner", group, group)
	assert.True(t, models.HasTag(err, models.TagInvalidIdentifier))

	require.NoError(t, shard.AddOwnerAsAttendee(ctx, eventsURL, "owner", event, group))
	err = shard.AddOwnerAsAttendee(ctx, eventsURL, "owner", event, group)
	assert.True(t, models.HasTag(err, models.TagAlreadyJoined))
	assert.Equal(t, 1, shard.GetEventAttendeesCount([]models.Principal{event})[0].Count)
}

func TestChunks_OnlyParentGetsData(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	event := eventID(1)
	_, err := shard.JoinEvent(ctx, "alice", event, groupID(1))
	require.NoError(t, err)

	chunk, err := shard.JoinedChunk("http://stranger", event, 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, chunk.Bytes)
	assert.Equal(t, 0, chunk.Last)

	chunk, err = shard.JoinedChunk(coordinatorURL, event, 0, 1000)
	require.NoError(t, err)
	got, err := models.Decode[[]models.JoinedAttendeeResponse](chunk.Bytes)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.Principal("alice"), got[0].Principal)
}

func TestAddEntryByParent_Dedupes(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	a := models.NewAttendee("hank")
	a.Joined[eventID(1)] = models.Join{GroupIdentifier: groupID(1)}

	_, err := shard.AddEntryByParent("http://stranger", models.AddEntryRequest{Attendee: a, IdempotencyKey: "k1"})
	assert.Equal(t, models.KindUnauthorized, models.KindOf(err))

	id1, err := shard.AddEntryByParent(coordinatorURL, models.AddEntryRequest{Attendee: a, IdempotencyKey: "k1"})
	require.NoError(t, err)
	id2, err := shard.AddEntryByParent(coordinatorURL, models.AddEntryRequest{Attendee: a, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, shard.Size())
}

func TestAddEntryByParent_MergesIntoExistingPrincipal(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	_, err := shard.JoinEvent(ctx, "hank", eventID(1), groupID(1))
	require.NoError(t, err)
	notified := &recordingNotifier{}
	shard.notifier = notified

	forwarded := models.NewAttendee("hank")
	forwarded.Joined[eventID(1)] = models.Join{GroupIdentifier: groupID(1)}
	forwarded.Joined[eventID(2)] = models.Join{GroupIdentifier: groupID(2)}
	id, err := shard.AddEntryByParent(coordinatorURL, models.AddEntryRequest{Attendee: forwarded, IdempotencyKey: "late-key"})
	require.NoError(t, err)

	self, err := shard.GetSelf("hank")
	require.NoError(t, err)
	assert.Equal(t, self.ID, id)
	assert.Equal(t, 1, shard.Size())
	assert.True(t, self.Attendee.HasJoined(eventID(2)))
	assert.Equal(t, 1, shard.store.JoinedCount(eventID(1)))
	assert.Equal(t, []models.Principal{eventID(2)}, notified.events, "only newly joined events are pushed")
}

func TestInstallAndUpgrade(t *testing.T) {
	conf := &structures.Config{Node: structures.NodeConfig{Advertise: "http://shard-9:8080"}, Shard: structures.ShardConfig{Capacity: 10}}
	svc := NewAttendeeService(conf, newFakeEvents(), &fakePermissions{}, nil, &testutil.MockLogger{}, &testutil.MockMetrics{})

	assert.False(t, svc.Status().Installed)
	err := svc.Upgrade(coordinatorURL, models.UpgradeRequest{Version: models.Version(2)})
	assert.True(t, models.HasTag(err, models.TagNotInstalled))

	args := models.InitArgs{Parent: coordinatorURL, Name: "attendees", Identifier: 3}
	err = svc.Install("http://impostor", models.InstallRequest{Image: []byte("x"), Version: models.Version(1), Args: args})
	assert.Equal(t, models.KindUnauthorized, models.KindOf(err))

	require.NoError(t, svc.Install(coordinatorURL, models.InstallRequest{Image: []byte("x"), Version: models.Version(1), Args: args}))
	err = svc.Install(coordinatorURL, models.InstallRequest{Args: args})
	assert.True(t, models.HasTag(err, models.TagAlreadyInstalled))

	err = svc.Upgrade("http://impostor", models.UpgradeRequest{Version: models.Version(2)})
	assert.Equal(t, models.KindUnauthorized, models.KindOf(err))
	require.NoError(t, svc.Upgrade(coordinatorURL, models.UpgradeRequest{Image: []byte("y"), Version: models.Version(2)}))

	st := svc.Status()
	assert.True(t, st.Installed)
	assert.True(t, st.IsAvailable)
	assert.Equal(t, models.Version(2), st.WasmVersion)
	assert.Equal(t, coordinatorURL, st.Parent)
	assert.Equal(t, 10, st.Capacity)
	assert.Len(t, st.ImageHash, 64)
}

func TestPreinstalledFromConfig(t *testing.T) {
	conf := &structures.Config{
		Node:  structures.NodeConfig{Advertise: "http://shard-9:8080", Name: "attendees"},
		Shard: structures.ShardConfig{Parent: string(coordinatorURL)},
	}
	svc := NewAttendeeService(conf, newFakeEvents(), &fakePermissions{}, nil, &testutil.MockLogger{}, &testutil.MockMetrics{})
	assert.True(t, svc.Status().Installed)
	assert.Equal(t, coordinatorURL, svc.Status().Parent)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	_, err := shard.JoinEvent(ctx, "alice", eventID(1), groupID(1))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, shard.WriteSnapshot(&buf))

	conf := &structures.Config{Node: structures.NodeConfig{Advertise: string(shardURL(0))}}
	restored := NewAttendeeService(conf, newFakeEvents(), &fakePermissions{}, nil, &testutil.MockLogger{}, &testutil.MockMetrics{})
	require.NoError(t, restored.ReadSnapshot(&buf))

	self, err := restored.GetSelf("alice")
	require.NoError(t, err)
	assert.True(t, self.Attendee.HasJoined(eventID(1)))
	assert.Equal(t, shard.Status(), restored.Status())
	assert.Equal(t, attendeeSnapshotName, restored.SnapshotName())
}

func TestCountNotificationsReachEventService(t *testing.T) {
	c := newCluster(t, 1, 0)
	shard := c.boot()
	require.NoError(t, shard.Start(ctx))
	t.Cleanup(shard.Stop)
	event := eventID(1)

	for _, p := range []models.Principal{"a", "b"} {
		_, err := shard.JoinEvent(ctx, p, event, groupID(1))
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		n, ok := c.events.Count(event)
		return ok && n == 2
	}, time.Second, 10*time.Millisecond)
}
