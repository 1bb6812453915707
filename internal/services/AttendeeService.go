package services

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"attendees/internal/remote"
	"attendees/internal/structures"
	"attendees/internal/transfer"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

const attendeeSnapshotName = "attendees"

type AttendeeServiceInterface interface {
	JoinEvent(ctx context.Context, caller, event, group models.Principal) (models.Entry, error)
	InviteToEvent(ctx context.Context, caller, event, attendee, member, group models.Principal) (models.Entry, error)
	AcceptUserRequestEventInvite(ctx context.Context, caller, attendee, event, member, group models.Principal) (models.Entry, error)
	AcceptOwnerRequestEventInvite(ctx context.Context, caller, event models.Principal) (models.Entry, error)
	LeaveEvent(caller, event models.Principal) error
	RemoveInvite(caller, event models.Principal) error
	RemoveAttendeeFromEvent(ctx context.Context, caller, attendee, event, group, member models.Principal) error
	RemoveAttendeeInviteFromEvent(ctx context.Context, caller, attendee, event, group, member models.Principal) error
	AddOwnerAsAttendee(ctx context.Context, caller, user, event, group models.Principal) error

	GetSelf(caller models.Principal) (models.Entry, error)
	GetAttendingFromPrincipal(principal models.Principal) ([]models.JoinedAttendeeResponse, error)
	GetEventAttendees(event models.Principal) []models.JoinedAttendeeResponse
	GetEventInvites(ctx context.Context, caller, event, group, member models.Principal) ([]models.InviteAttendeeResponse, error)
	GetEventAttendeesCount(events []models.Principal) []models.EventCount
	GetEventInvitesCount(events []models.Principal) []models.EventCount

	JoinedChunk(caller, event models.Principal, chunk, maxBytes int) (transfer.Chunk, error)
	InvitesChunk(caller, event models.Principal, chunk, maxBytes int) (transfer.Chunk, error)
	AddEntryByParent(caller models.Principal, req models.AddEntryRequest) (models.Principal, error)

	Install(caller models.Principal, req models.InstallRequest) error
	Upgrade(caller models.Principal, req models.UpgradeRequest) error
	Status() models.ShardStatus

	Size() int
	Start(ctx context.Context) error
	Stop()
	SnapshotName() string
	WriteSnapshot(w io.Writer) error
	ReadSnapshot(r io.Reader) error
}

// AttendeeService is the shard side: attendee records of this unit plus the
// overflow handshake with the coordinator.
type AttendeeService struct {
	store       *models.AttendeeStore
	events      remote.EventClientInterface
	permissions remote.PermissionCheckerInterface
	coordinator remote.CoordinatorClientInterface
	notifier    CountNotifierInterface
	logger      providers.Logger
	kind        string
	retryMax    uint

	// forwarded remembers idempotency keys of entries placed by the
	// coordinator so a retried forward returns the first id.
	forwardedMu sync.Mutex
	forwarded   *dedupLog[models.Principal]

	now func() uint64
}

func NewAttendeeService(
	conf *structures.Config,
	events remote.EventClientInterface,
	permissions remote.PermissionCheckerInterface,
	coordinator remote.CoordinatorClientInterface,
	logger providers.Logger,
	metrics providers.MetricsProviderInterface,
) AttendeeServiceInterface {
	store := models.NewAttendeeStore(models.Principal(conf.Node.Advertise), conf.Shard.Capacity)
	if conf.Shard.Parent != "" {
		args := models.InitArgs{Parent: models.Principal(conf.Shard.Parent), Name: conf.Node.Name, Capacity: conf.Shard.Capacity}
		if err := store.Install(args, models.NoVersion(), ""); err != nil {
			logger.Errorf(providers.TypeApp, "Pre-install against %s failed: %s", conf.Shard.Parent, err)
		}
	}

	kind := conf.Shard.IdentifierKind
	if kind == "" {
		kind = models.KindAttendee
	}
	retryMax := conf.Remote.RetryMax
	if retryMax == 0 {
		retryMax = defaultRetryMax
	}

	return &AttendeeService{
		store:       store,
		events:      events,
		permissions: permissions,
		coordinator: coordinator,
		notifier:    NewCountNotifier(conf, events, store, logger, metrics),
		logger:      logger,
		kind:        kind,
		retryMax:    retryMax,
		forwarded:   newDedupLog[models.Principal](dedupSizeBytes, dedupTTLSeconds),
		now:         func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

func (s *AttendeeService) JoinEvent(ctx context.Context, caller, event, group models.Principal) (models.Entry, error) {
	if err := authenticated(caller, "join_event"); err != nil {
		return models.Entry{}, err
	}
	if existing, ok := s.store.FindByPrincipal(caller); ok {
		if err := joinGuard(existing.Attendee, event); err != nil {
			return models.Entry{}, err
		}
	}

	privacy, err := s.events.GetPrivacyAndOwner(ctx, event, group)
	if err != nil {
		return models.Entry{}, err
	}
	if privacy.Privacy != models.PrivacyPublic && privacy.Privacy != models.PrivacyPrivate {
		return models.Entry{}, models.NewApiError(models.KindBadRequest, models.TagUnsupported,
			"This type isnt supported through this call", "join_event", string(privacy.Privacy))
	}

	now := s.now()
	// The record may have changed while the lookup was in flight.
	entry, err := s.save(ctx, caller, func(current *models.Attendee) (models.Attendee, error) {
		a := orNew(current, caller)
		if err := joinGuard(a, event); err != nil {
			return a, err
		}
		if privacy.Privacy == models.PrivacyPublic {
			a.Joined[event] = models.Join{GroupIdentifier: group, CreatedAt: now, UpdatedAt: now}
		} else {
			a.Invites[event] = models.Invite{GroupIdentifier: group, InviteType: models.InviteTypeUserRequest, CreatedAt: now, UpdatedAt: now}
		}
		return a, nil
	})
	if err != nil {
		return models.Entry{}, err
	}
	if privacy.Privacy == models.PrivacyPublic {
		s.notifier.Notify(event)
	}
	return entry, nil
}

func joinGuard(a models.Attendee, event models.Principal) error {
	if a.HasJoined(event) {
		return models.NewApiError(models.KindBadRequest, models.TagAlreadyJoined, "You are already part of this event", "join_event", string(event))
	}
	if _, ok := a.InviteFor(event); ok {
		return models.NewApiError(models.KindBadRequest, models.TagPendingInvite, "There is already a pending invite for this event", "join_event", string(event))
	}
	return nil
}

func (s *AttendeeService) InviteToEvent(ctx context.Context, caller, event, attendee, member, group models.Principal) (models.Entry, error) {
	if err := authenticated(caller, "invite_to_event"); err != nil {
		return models.Entry{}, err
	}
	if _, err := s.permissions.Check(ctx, caller, group, member, models.ActionWrite); err != nil {
		return models.Entry{}, err
	}

	now := s.now()
	return s.save(ctx, attendee, func(current *models.Attendee) (models.Attendee, error) {
		a := orNew(current, attendee)
		if a.HasJoined(event) {
			return a, models.NewApiError(models.KindBadRequest, models.TagAlreadyJoined, "Attendee has already joined this event", "invite_to_event", string(attendee))
		}
		a.Invites[event] = models.Invite{GroupIdentifier: group, InviteType: models.InviteTypeOwnerRequest, CreatedAt: now, UpdatedAt: now}
		return a, nil
	})
}

func (s *AttendeeService) AcceptUserRequestEventInvite(ctx context.Context, caller, attendee, event, member, group models.Principal) (models.Entry, error) {
	if err := authenticated(caller, "accept_user_request_event_invite"); err != nil {
		return models.Entry{}, err
	}
	if _, err := s.permissions.Check(ctx, caller, group, member, models.ActionWrite); err != nil {
		return models.Entry{}, err
	}
	return s.acceptInvite(attendee, event, models.InviteTypeUserRequest, "accept_user_request_event_invite")
}

func (s *AttendeeService) AcceptOwnerRequestEventInvite(_ context.Context, caller, event models.Principal) (models.Entry, error) {
	if err := authenticated(caller, "accept_owner_request_event_invite"); err != nil {
		return models.Entry{}, err
	}
	return s.acceptInvite(caller, event, models.InviteTypeOwnerRequest, "accept_owner_request_event_invite")
}

// acceptInvite turns an invite of the given flow into a join.
func (s *AttendeeService) acceptInvite(attendee, event models.Principal, want models.InviteType, location string) (models.Entry, error) {
	now := s.now()
	entry, _, err := s.store.Upsert(attendee, s.kind, func(current *models.Attendee) (models.Attendee, error) {
		if current == nil {
			return models.Attendee{}, attendeeNotFound(location, attendee)
		}
		a := *current
		inv, ok := a.InviteFor(event)
		if !ok {
			return a, models.NewApiError(models.KindNotFound, models.TagNoInviteFound, "No invite found for this event", location, string(event))
		}
		if inv.InviteType != want {
			return a, models.NewApiError(models.KindBadRequest, models.TagInvalidType,
				fmt.Sprintf("Invite is a %s, not a %s", inv.InviteType, want), location, string(event))
		}
		delete(a.Invites, event)
		a.Joined[event] = models.Join{GroupIdentifier: inv.GroupIdentifier, CreatedAt: now, UpdatedAt: now}
		return a, nil
	})
	if err != nil {
		return models.Entry{}, err
	}
	s.notifier.Notify(event)
	return entry, nil
}

func (s *AttendeeService) LeaveEvent(caller, event models.Principal) error {
	if err := authenticated(caller, "leave_event"); err != nil {
		return err
	}
	return s.removeJoin(caller, event)
}

func (s *AttendeeService) RemoveInvite(caller, event models.Principal) error {
	if err := authenticated(caller, "remove_invite"); err != nil {
		return err
	}
	return s.removeInvite(caller, event)
}

func (s *AttendeeService) RemoveAttendeeFromEvent(ctx context.Context, caller, attendee, event, group, member models.Principal) error {
	if err := authenticated(caller, "remove_attendee_from_event"); err != nil {
		return err
	}
	if _, err := s.permissions.Check(ctx, caller, group, member, models.ActionDelete); err != nil {
		return err
	}
	return s.removeJoin(attendee, event)
}

func (s *AttendeeService) RemoveAttendeeInviteFromEvent(ctx context.Context, caller, attendee, event, group, member models.Principal) error {
	if err := authenticated(caller, "remove_attendee_invite_from_event"); err != nil {
		return err
	}
	if _, err := s.permissions.Check(ctx, caller, group, member, models.ActionDelete); err != nil {
		return err
	}
	return s.removeInvite(attendee, event)
}

func (s *AttendeeService) removeJoin(attendee, event models.Principal) error {
	_, _, err := s.store.Upsert(attendee, s.kind, func(current *models.Attendee) (models.Attendee, error) {
		if current == nil {
			return models.Attendee{}, attendeeNotFound("remove_join_from_attendee", attendee)
		}
		a := *current
		delete(a.Joined, event)
		return a, nil
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(event)
	return nil
}

func (s *AttendeeService) removeInvite(attendee, event models.Principal) error {
	_, _, err := s.store.Upsert(attendee, s.kind, func(current *models.Attendee) (models.Attendee, error) {
		if current == nil {
			return models.Attendee{}, attendeeNotFound("remove_invite_from_attendee", attendee)
		}
		a := *current
		delete(a.Invites, event)
		return a, nil
	})
	return err
}

// AddOwnerAsAttendee is called by the event service when an event is created.
func (s *AttendeeService) AddOwnerAsAttendee(ctx context.Context, caller, user, event, group models.Principal) error {
	eventID, err := models.DecodeIdentifier(event)
	if err != nil || eventID.Kind != models.KindEvent {
		return models.NewApiError(models.KindBadRequest, models.TagInvalidIdentifier, "Not an event identifier", "add_owner_as_attendee", string(event))
	}
	groupID, err := models.DecodeIdentifier(group)
	if err != nil || groupID.Kind != models.KindGroup {
		return models.NewApiError(models.KindBadRequest, models.TagInvalidIdentifier, "Not a group identifier", "add_owner_as_attendee", string(group))
	}
	if caller != eventID.Unit {
		return models.NewApiError(models.KindUnauthorized, models.TagUnauthorized, "Only the event service may add owners", "add_owner_as_attendee", string(caller))
	}

	now := s.now()
	_, err = s.save(ctx, user, func(current *models.Attendee) (models.Attendee, error) {
		a := orNew(current, user)
		if a.HasJoined(event) {
			return a, models.NewApiError(models.KindBadRequest, models.TagAlreadyJoined, "Owner already joined this event", "add_owner_as_attendee", string(user))
		}
		a.Joined[event] = models.Join{GroupIdentifier: group, CreatedAt: now, UpdatedAt: now}
		return a, nil
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(event)
	return nil
}

func (s *AttendeeService) GetSelf(caller models.Principal) (models.Entry, error) {
	if err := authenticated(caller, "get_self"); err != nil {
		return models.Entry{}, err
	}
	entry, ok := s.store.FindByPrincipal(caller)
	if !ok {
		return models.Entry{}, attendeeNotFound("get_self", caller)
	}
	return entry, nil
}

func (s *AttendeeService) GetAttendingFromPrincipal(principal models.Principal) ([]models.JoinedAttendeeResponse, error) {
	entry, ok := s.store.FindByPrincipal(principal)
	if !ok {
		return nil, attendeeNotFound("get_attending_from_principal", principal)
	}
	out := make([]models.JoinedAttendeeResponse, 0, len(entry.Attendee.Joined))
	for event := range entry.Attendee.Joined {
		out = append(out, entry.JoinedResponse(event))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventIdentifier < out[j].EventIdentifier })
	return out, nil
}

func (s *AttendeeService) GetEventAttendees(event models.Principal) []models.JoinedAttendeeResponse {
	entries := s.store.JoinedTo(event)
	out := make([]models.JoinedAttendeeResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.JoinedResponse(event))
	}
	return out
}

func (s *AttendeeService) GetEventInvites(ctx context.Context, caller, event, group, member models.Principal) ([]models.InviteAttendeeResponse, error) {
	if _, err := s.permissions.Check(ctx, caller, group, member, models.ActionRead); err != nil {
		return nil, err
	}
	return s.eventInvites(event), nil
}

func (s *AttendeeService) eventInvites(event models.Principal) []models.InviteAttendeeResponse {
	entries := s.store.InvitedTo(event)
	out := make([]models.InviteAttendeeResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.InviteResponse(event))
	}
	return out
}

func (s *AttendeeService) GetEventAttendeesCount(events []models.Principal) []models.EventCount {
	out := make([]models.EventCount, 0, len(events))
	for _, e := range events {
		out = append(out, models.EventCount{EventIdentifier: e, Count: s.store.JoinedCount(e)})
	}
	return out
}

func (s *AttendeeService) GetEventInvitesCount(events []models.Principal) []models.EventCount {
	out := make([]models.EventCount, 0, len(events))
	for _, e := range events {
		out = append(out, models.EventCount{EventIdentifier: e, Count: s.store.InvitedCount(e)})
	}
	return out
}

// JoinedChunk serves one chunk of the joined projection for event. Callers
// other than the parent get an empty chunk.
func (s *AttendeeService) JoinedChunk(caller, event models.Principal, chunk, maxBytes int) (transfer.Chunk, error) {
	if caller != s.store.Meta().Parent {
		return transfer.Chunk{}, nil
	}
	payload, err := models.Encode(s.GetEventAttendees(event))
	if err != nil {
		return transfer.Chunk{}, err
	}
	return transfer.Slice(payload, chunk, maxBytes)
}

func (s *AttendeeService) InvitesChunk(caller, event models.Principal, chunk, maxBytes int) (transfer.Chunk, error) {
	if caller != s.store.Meta().Parent {
		return transfer.Chunk{}, nil
	}
	payload, err := models.Encode(s.eventInvites(event))
	if err != nil {
		return transfer.Chunk{}, err
	}
	return transfer.Slice(payload, chunk, maxBytes)
}

// AddEntryByParent stores a record forwarded by the coordinator after a
// sibling filled up. The capacity check is skipped and a principal that is
// already present gets the forwarded record merged into its own.
func (s *AttendeeService) AddEntryByParent(caller models.Principal, req models.AddEntryRequest) (models.Principal, error) {
	meta := s.store.Meta()
	if !meta.Installed {
		return "", models.NewApiError(models.KindBadRequest, models.TagNotInstalled, "Shard is not installed", "add_entry_by_parent")
	}
	if caller != meta.Parent {
		return "", models.NewApiError(models.KindUnauthorized, models.TagUnauthorized, "Only the parent may forward entries", "add_entry_by_parent", string(caller))
	}

	s.forwardedMu.Lock()
	defer s.forwardedMu.Unlock()
	if id, ok := s.forwarded.get(req.IdempotencyKey); ok {
		return id, nil
	}
	a := orNew(&req.Attendee, req.Attendee.Principal)
	var before models.Attendee
	if existing, ok := s.store.FindByPrincipal(a.Principal); ok {
		before = existing.Attendee
	}
	entry, created := s.store.Merge(a, s.kind)
	s.forwarded.put(req.IdempotencyKey, entry.ID)
	for event := range a.Joined {
		if !before.HasJoined(event) {
			s.notifier.Notify(event)
		}
	}
	if created {
		s.logger.Infof(providers.TypeApp, "Stored forwarded entry %s for %s", entry.ID, a.Principal)
	} else {
		s.logger.Infof(providers.TypeApp, "Merged forwarded entry for %s into %s", a.Principal, entry.ID)
	}
	return entry.ID, nil
}

// save writes the record for principal through fn. A new record that does
// not fit goes through the overflow path.
func (s *AttendeeService) save(ctx context.Context, principal models.Principal, fn func(*models.Attendee) (models.Attendee, error)) (models.Entry, error) {
	entry, _, err := s.store.Upsert(principal, s.kind, fn)
	if err == nil {
		return entry, nil
	}
	if models.KindOf(err) != models.KindCanisterAtCapacity {
		return models.Entry{}, err
	}
	return s.overflow(ctx, entry.Attendee, err)
}

func (s *AttendeeService) overflow(ctx context.Context, a models.Attendee, capacityErr error) (models.Entry, error) {
	meta := s.store.Meta()
	if !meta.Installed || meta.Parent == "" {
		return models.Entry{}, capacityErr
	}
	if !meta.IsAvailable {
		return models.Entry{}, s.redirect(ctx, meta.Parent, capacityErr)
	}

	req := models.SpawnRequest{LastEntryID: meta.Seq, Attendee: a, IdempotencyKey: uuid.NewString()}
	s.logger.Infof(providers.TypeApp, "Shard full at entry %d, asking %s for a sibling", meta.Seq, meta.Parent)
	res, err := backoff.Retry(ctx, func() (models.SpawnResult, error) {
		res, err := s.coordinator.SpawnAndSeal(ctx, meta.Parent, req)
		if err != nil && models.KindOf(err) != models.KindRemoteCallFailed {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.retryMax))
	if err != nil {
		// The coordinator seals the caller before forwarding, so a failed
		// forward still means this shard no longer takes new records.
		if models.HasTag(err, models.TagFailedToStoreData) {
			s.store.Seal()
		}
		s.logger.Errorf(providers.TypeApp, "Spawn request for %s failed: %s", a.Principal, err)
		if models.KindOf(err) == models.KindRemoteCallFailed {
			return models.Entry{}, s.reconcile(ctx, meta, capacityErr, err)
		}
		return models.Entry{}, err
	}

	s.store.Seal()
	s.logger.Infof(providers.TypeApp, "Entry for %s placed on %s as %s", a.Principal, res.Shard, res.EntryID)
	return models.Entry{ID: res.EntryID, Attendee: a}, nil
}

// reconcile runs after a spawn whose reply was lost. The request may still
// have gone through, in which case the coordinator already opened a sibling
// and sealed this shard.
func (s *AttendeeService) reconcile(ctx context.Context, meta models.StoreMeta, capacityErr, spawnErr error) error {
	rec, err := s.coordinator.GetAvailableShard(ctx, meta.Parent)
	if err != nil || rec.Principal == meta.Self {
		return spawnErr
	}
	s.store.Seal()
	s.logger.Warnf(providers.TypeApp, "Spawn reply lost, %s is taking new records; sealed locally", rec.Principal)
	return withRedirect(capacityErr, rec.Principal)
}

// redirect names the shard currently taking new records.
func (s *AttendeeService) redirect(ctx context.Context, parent models.Principal, capacityErr error) error {
	rec, err := s.coordinator.GetAvailableShard(ctx, parent)
	if err != nil {
		s.logger.Warnf(providers.TypeRemote, "Available shard lookup on %s failed: %s", parent, err)
		return capacityErr
	}
	return withRedirect(capacityErr, rec.Principal)
}

func withRedirect(capacityErr error, shard models.Principal) error {
	apiErr, ok := models.AsApiError(capacityErr)
	if !ok {
		return capacityErr
	}
	out := *apiErr
	out.Redirect = shard
	return &out
}

// Install accepts code and init arguments from the coordinator named in args.
func (s *AttendeeService) Install(caller models.Principal, req models.InstallRequest) error {
	if caller != req.Args.Parent {
		return models.NewApiError(models.KindUnauthorized, models.TagUnauthorized, "Only the future parent may install", "install", string(caller))
	}
	if err := s.store.Install(req.Args, req.Version, imageHash(req.Image)); err != nil {
		return err
	}
	s.logger.Infof(providers.TypeApp, "Installed %s as shard %d of %s (parent %s)", req.Version, req.Args.Identifier, req.Args.Name, req.Args.Parent)
	return nil
}

func (s *AttendeeService) Upgrade(caller models.Principal, req models.UpgradeRequest) error {
	meta := s.store.Meta()
	if !meta.Installed {
		return models.NewApiError(models.KindBadRequest, models.TagNotInstalled, "Shard is not installed", "upgrade")
	}
	if caller != meta.Parent {
		return models.NewApiError(models.KindUnauthorized, models.TagUnauthorized, "Only the parent may upgrade", "upgrade", string(caller))
	}
	s.store.Upgrade(req.Version, imageHash(req.Image))
	s.logger.Infof(providers.TypeApp, "Upgraded from %s to %s", meta.Version, req.Version)
	return nil
}

func (s *AttendeeService) Status() models.ShardStatus {
	meta := s.store.Meta()
	return models.ShardStatus{
		Principal:   meta.Self,
		Name:        meta.Name,
		Parent:      meta.Parent,
		Installed:   meta.Installed,
		IsAvailable: meta.IsAvailable,
		Entries:     s.store.Len(),
		Capacity:    meta.Capacity,
		Seq:         meta.Seq,
		WasmVersion: meta.Version,
		ImageHash:   meta.ImageHash,
	}
}

func (s *AttendeeService) Size() int { return s.store.Len() }

func (s *AttendeeService) Start(ctx context.Context) error {
	s.notifier.Start(ctx)
	return nil
}

func (s *AttendeeService) Stop() { s.notifier.Stop() }

func (s *AttendeeService) SnapshotName() string { return attendeeSnapshotName }

func (s *AttendeeService) WriteSnapshot(w io.Writer) error { return s.store.WriteBinaryTo(w) }

func (s *AttendeeService) ReadSnapshot(r io.Reader) error { return s.store.ReadBinaryFrom(r) }

func authenticated(caller models.Principal, location string) error {
	if caller.IsAnonymous() {
		return models.NewApiError(models.KindUnauthorized, models.TagUnauthorized, "Anonymous callers are not allowed", location)
	}
	return nil
}

func attendeeNotFound(location string, p models.Principal) error {
	return models.NewApiError(models.KindNotFound, models.TagAttendeeNotFound, "Attendee not found", location, string(p))
}

func orNew(current *models.Attendee, p models.Principal) models.Attendee {
	if current == nil {
		return models.NewAttendee(p)
	}
	a := current.Clone()
	if a.Principal == "" {
		a.Principal = p
	}
	return a
}

func imageHash(image []byte) string {
	if len(image) == 0 {
		return ""
	}
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}
