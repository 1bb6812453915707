package services

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"attendees/internal/remote"
	"attendees/internal/structures"
	"attendees/internal/transfer"
	"bytes"
	"context"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	registrySnapshotName = "registry"
	childImageLabel      = "child_attendee_shard"
)

type ScalableServiceInterface interface {
	GetAvailableShard(excluding models.Principal) (models.ShardRecord, error)
	GetShards() []models.ShardRecord
	GetLatestWasmVersion() models.WasmVersion
	InitializeFirstShard(ctx context.Context) error
	SpawnAndSeal(ctx context.Context, caller models.Principal, req models.SpawnRequest) (models.SpawnResult, error)
	UpgradeShard(ctx context.Context, caller, shard models.Principal) (models.ShardRecord, error)
	UpgradeAll(ctx context.Context, caller models.Principal) ([]models.ShardRecord, error)
	SetChildImage(caller models.Principal, image []byte, version models.WasmVersion) error

	GetMembers(ctx context.Context, event models.Principal, limit, page int) models.PagedResponse[models.JoinedAttendeeResponse]
	GetInvites(ctx context.Context, event models.Principal, limit, page int) models.PagedResponse[models.InviteAttendeeResponse]

	Size() int
	Start(ctx context.Context) error
	Stop()
	SnapshotName() string
	WriteSnapshot(w io.Writer) error
	ReadSnapshot(r io.Reader) error
}

// ScalableService is the coordinator side: the shard registry, the child
// image and the fan-out reads across shards.
type ScalableService struct {
	conf        *structures.Config
	registry    *models.ShardRegistry
	shards      remote.ShardClientInterface
	provisioner remote.ProvisionerInterface
	cache       providers.CacheProviderInterface
	logger      providers.Logger
	metrics     providers.MetricsProviderInterface
	maxBytes    int
	retryMax    uint

	// spawnMu serializes spawns so one overflow yields one new shard.
	spawnMu sync.Mutex
	spawned *dedupLog[models.SpawnResult]

	now func() uint64
}

func NewScalableService(
	conf *structures.Config,
	shards remote.ShardClientInterface,
	provisioner remote.ProvisionerInterface,
	cache providers.CacheProviderInterface,
	logger providers.Logger,
	metrics providers.MetricsProviderInterface,
) ScalableServiceInterface {
	now := func() uint64 { return uint64(time.Now().UnixNano()) }
	maxBytes := conf.Coordinator.MaxBytesPerChunk
	if maxBytes <= 0 {
		maxBytes = transfer.DefaultMaxBytesPerChunk
	}
	retryMax := conf.Remote.RetryMax
	if retryMax == 0 {
		retryMax = defaultRetryMax
	}
	return &ScalableService{
		conf:        conf,
		registry:    models.NewShardRegistry(conf.Node.Name, models.Principal(conf.Node.Advertise), now()),
		shards:      shards,
		provisioner: provisioner,
		cache:       cache,
		logger:      logger,
		metrics:     metrics,
		maxBytes:    maxBytes,
		retryMax:    retryMax,
		spawned:     newDedupLog[models.SpawnResult](dedupSizeBytes, dedupTTLSeconds),
		now:         now,
	}
}

func (s *ScalableService) GetAvailableShard(excluding models.Principal) (models.ShardRecord, error) {
	rec, ok := s.registry.Available(excluding)
	if !ok {
		return models.ShardRecord{}, models.NewApiError(models.KindNotFound, models.TagNoneAvailable, "No available canister found", "get_available_canister", string(excluding))
	}
	return rec, nil
}

func (s *ScalableService) GetShards() []models.ShardRecord {
	return s.registry.All()
}

func (s *ScalableService) GetLatestWasmVersion() models.WasmVersion {
	v := s.registry.ChildImage().Version
	if v.Kind == "" {
		return models.NoVersion()
	}
	return v
}

// InitializeFirstShard creates the first shard once a child image is known.
func (s *ScalableService) InitializeFirstShard(ctx context.Context) error {
	s.spawnMu.Lock()
	defer s.spawnMu.Unlock()

	image := s.registry.ChildImage()
	if len(image.Bytes) == 0 || s.registry.Len() != 0 {
		return nil
	}
	shard, err := s.createAndInstall(ctx, image)
	if err != nil {
		return err
	}
	s.registerAvailable(shard, image.Version)
	s.logger.Infof(providers.TypeApp, "First shard %s installed with %s", shard, image.Version)
	return nil
}

// SpawnAndSeal handles a full shard: it creates and installs a sibling,
// forwards the overflow entry there, then seals the caller and opens the
// sibling for new entries. A caller that is already sealed has its entry
// forwarded to the current available shard.
func (s *ScalableService) SpawnAndSeal(ctx context.Context, caller models.Principal, req models.SpawnRequest) (models.SpawnResult, error) {
	s.spawnMu.Lock()
	defer s.spawnMu.Unlock()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	if res, ok := s.spawned.get(req.IdempotencyKey); ok {
		return res, nil
	}

	const location = "close_child_canister_and_spawn_sibling"
	image := s.registry.ChildImage()
	if len(image.Bytes) == 0 {
		return models.SpawnResult{}, models.NewApiError(models.KindBadRequest, models.TagNoWasmSpecified, "There is no foundation WASM uploaded", location)
	}
	callerRec, ok := s.registry.Get(caller)
	if !ok {
		return models.SpawnResult{}, models.NewApiError(models.KindBadRequest, models.TagUnknownCanister, "The caller principal isnt known to this canister", location, string(caller))
	}

	target, fresh := models.Principal(""), false
	if !callerRec.IsAvailable {
		if rec, ok := s.registry.Available(caller); ok {
			target = rec.Principal
		}
	}
	if target == "" {
		shard, err := s.createAndInstall(ctx, image)
		if err != nil {
			return models.SpawnResult{}, err
		}
		target, fresh = shard, true
		s.registry.Put(models.ShardRecord{
			Principal:    shard,
			WasmVersion:  image.Version,
			CanisterType: models.CanisterTypeScalableChild,
			EntryRange:   models.EntryRange{Start: 0},
		}, s.now())
	}

	id, forwardErr := s.forward(ctx, target, req)

	if callerRec.IsAvailable {
		s.seal(caller, req.LastEntryID)
	}
	if fresh {
		s.registerAvailable(target, image.Version)
	}

	if forwardErr != nil {
		s.logger.Errorf(providers.TypeApp, "Forwarding overflow entry of %s to %s failed: %s", caller, target, forwardErr)
		return models.SpawnResult{}, models.WrapApiError(models.KindBadRequest, models.TagFailedToStoreData, location, forwardErr, string(caller), string(target))
	}

	res := models.SpawnResult{Shard: target, EntryID: id}
	s.spawned.put(req.IdempotencyKey, res)
	s.logger.Infof(providers.TypeApp, "Shard %s sealed at entry %d, overflow stored on %s", caller, req.LastEntryID, target)
	return res, nil
}

func (s *ScalableService) createAndInstall(ctx context.Context, image models.CodeImage) (models.Principal, error) {
	shard, err := s.provisioner.Create(ctx)
	if err != nil {
		return "", err
	}
	args := models.InitArgs{
		Parent:     s.registry.Self(),
		Name:       s.registry.Name(),
		Identifier: s.registry.Len(),
		Capacity:   s.conf.Coordinator.ShardCapacity,
	}
	if err := s.provisioner.Install(ctx, shard, image, args); err != nil {
		return "", err
	}
	return shard, nil
}

// forward retries with the same idempotency key; the shard deduplicates.
func (s *ScalableService) forward(ctx context.Context, shard models.Principal, req models.SpawnRequest) (models.Principal, error) {
	return backoff.Retry(ctx, func() (models.Principal, error) {
		id, err := s.shards.AddEntryByParent(ctx, shard, req.Attendee, req.IdempotencyKey)
		if err != nil && models.KindOf(err) != models.KindRemoteCallFailed {
			return "", backoff.Permanent(err)
		}
		return id, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.retryMax))
}

// seal re-reads the caller record because it may have been upgraded while
// the remote calls were in flight.
func (s *ScalableService) seal(shard models.Principal, lastEntryID uint64) {
	rec, ok := s.registry.Get(shard)
	if !ok {
		return
	}
	rec.IsAvailable = false
	rec.EntryRange = models.ClosedRange(rec.EntryRange.Start, lastEntryID)
	s.registry.Put(rec, s.now())
	s.cache.Clear()
}

func (s *ScalableService) registerAvailable(shard models.Principal, version models.WasmVersion) {
	rec, ok := s.registry.Get(shard)
	if !ok {
		rec = models.ShardRecord{Principal: shard, EntryRange: models.EntryRange{Start: 0}}
	}
	rec.WasmVersion = version
	rec.CanisterType = models.CanisterTypeScalableChild
	rec.IsAvailable = true
	s.registry.Put(rec, s.now())
	s.cache.Clear()
}

func (s *ScalableService) UpgradeShard(ctx context.Context, caller, shard models.Principal) (models.ShardRecord, error) {
	if err := s.authorizeAdmin(caller, "upgrade_scalable_canister"); err != nil {
		return models.ShardRecord{}, err
	}
	return s.upgradeShard(ctx, shard)
}

func (s *ScalableService) upgradeShard(ctx context.Context, shard models.Principal) (models.ShardRecord, error) {
	const location = "upgrade_scalable_canister"
	rec, ok := s.registry.Get(shard)
	if !ok {
		return models.ShardRecord{}, models.NewApiError(models.KindNotFound, models.TagNoChildren, "There are no child canisters found", location, string(shard))
	}
	image := s.registry.ChildImage()
	if len(image.Bytes) == 0 {
		return models.ShardRecord{}, models.NewApiError(models.KindBadRequest, models.TagNoWasmSpecified, "There is no foundation WASM uploaded", location)
	}
	if image.Version.Equal(rec.WasmVersion) {
		return models.ShardRecord{}, models.NewApiError(models.KindBadRequest, models.TagUpToDate, "The latest WASM version is already installed", location, string(shard))
	}
	if err := s.provisioner.Upgrade(ctx, shard, image); err != nil {
		return models.ShardRecord{}, err
	}

	rec, ok = s.registry.Get(shard)
	if !ok {
		return models.ShardRecord{}, models.NewApiError(models.KindNotFound, models.TagNoChildren, "Shard disappeared during upgrade", location, string(shard))
	}
	rec.WasmVersion = image.Version
	s.registry.Put(rec, s.now())
	return rec, nil
}

func (s *ScalableService) UpgradeAll(ctx context.Context, caller models.Principal) ([]models.ShardRecord, error) {
	if err := s.authorizeAdmin(caller, "upgrade_children"); err != nil {
		return nil, err
	}
	return s.upgradeAll(ctx), nil
}

// upgradeAll logs each shard outcome and returns the upgraded records.
func (s *ScalableService) upgradeAll(ctx context.Context) []models.ShardRecord {
	latest := s.GetLatestWasmVersion()
	var out []models.ShardRecord
	for _, rec := range s.registry.All() {
		if rec.WasmVersion.Equal(latest) {
			continue
		}
		upgraded, err := s.upgradeShard(ctx, rec.Principal)
		if err != nil {
			s.logger.Errorf(providers.TypeApp, "Shard %s not upgraded: %s", rec.Principal, err)
			continue
		}
		s.logger.Infof(providers.TypeApp, "Shard %s upgraded to %s", rec.Principal, upgraded.WasmVersion)
		out = append(out, upgraded)
	}
	return out
}

func (s *ScalableService) SetChildImage(caller models.Principal, image []byte, version models.WasmVersion) error {
	if err := s.authorizeAdmin(caller, "set_child_wasm"); err != nil {
		return err
	}
	if len(image) == 0 {
		return models.NewApiError(models.KindBadRequest, models.TagNoWasmSpecified, "Empty image", "set_child_wasm")
	}
	s.setChildImage(image, version)
	return nil
}

func (s *ScalableService) setChildImage(image []byte, version models.WasmVersion) {
	s.registry.SetChildImage(models.CodeImage{
		Label:   childImageLabel,
		Bytes:   append([]byte(nil), image...),
		Version: version,
	}, s.now())
	s.logger.Infof(providers.TypeApp, "Child image set to %s (%d bytes)", version, len(image))
}

// loadChildImage reads coordinator.childImagePath. An unchanged image is
// left alone so its timestamps survive restarts.
func (s *ScalableService) loadChildImage() error {
	path := s.conf.Coordinator.ChildImagePath
	if path == "" {
		return nil
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(image) == 0 {
		s.logger.Warnf(providers.TypeApp, "Child image %s is empty, skipping", path)
		return nil
	}
	current := s.registry.ChildImage()
	if bytes.Equal(current.Bytes, image) {
		s.logger.Debugf(providers.TypeApp, "Child image unchanged, skipping update")
		return nil
	}
	s.setChildImage(image, models.Version(s.conf.Coordinator.ChildVersion))
	return nil
}

func (s *ScalableService) authorizeAdmin(caller models.Principal, location string) error {
	if !caller.IsAnonymous() && slices.Contains(s.conf.Coordinator.Admins, string(caller)) {
		return nil
	}
	return models.NewApiError(models.KindUnauthorized, models.TagUnauthorized, "Admin only", location, string(caller))
}

func (s *ScalableService) GetMembers(ctx context.Context, event models.Principal, limit, page int) models.PagedResponse[models.JoinedAttendeeResponse] {
	return models.Paginate(collect[models.JoinedAttendeeResponse](ctx, s, remote.JoinedChunkPath, event), limit, page)
}

func (s *ScalableService) GetInvites(ctx context.Context, event models.Principal, limit, page int) models.PagedResponse[models.InviteAttendeeResponse] {
	return models.Paginate(collect[models.InviteAttendeeResponse](ctx, s, remote.InvitesChunkPath, event), limit, page)
}

// collect concatenates the projection of every shard in registry order. A
// shard that fails counts as zero entries. Complete results are cached so
// consecutive pages see the same record set.
func collect[T any](ctx context.Context, s *ScalableService, path string, event models.Principal) []T {
	key := path + "|" + string(event)
	if cached, ok := s.cache.Get(key); ok {
		if out, err := models.Decode[[]T](cached); err == nil {
			return out
		}
	}

	start := time.Now()
	defer func() { s.metrics.ObserveFanOutDuration(path, time.Since(start)) }()

	out := make([]T, 0)
	complete := true
	for _, rec := range s.registry.All() {
		payload, err := s.shards.FetchAll(ctx, rec.Principal, path, event, s.maxBytes)
		if err != nil {
			complete = false
			s.metrics.IncRemoteCallFailures("fanout" + path)
			s.logger.Warnf(providers.TypeRemote, "Fan-out %s on %s failed, counting zero entries: %s", path, rec.Principal, err)
			continue
		}
		if len(payload) == 0 {
			continue
		}
		part, err := models.Decode[[]T](payload)
		if err != nil {
			complete = false
			s.logger.Warnf(providers.TypeRemote, "Fan-out %s on %s returned bad payload: %s", path, rec.Principal, err)
			continue
		}
		out = append(out, part...)
	}

	if complete {
		if data, err := models.Encode(out); err == nil {
			s.cache.Set(key, data)
		}
	}
	return out
}

func (s *ScalableService) Size() int { return s.registry.Len() }

func (s *ScalableService) Start(ctx context.Context) error {
	if err := s.loadChildImage(); err != nil {
		return err
	}
	if err := s.InitializeFirstShard(ctx); err != nil {
		s.logger.Errorf(providers.TypeApp, "First shard not initialized: %s", err)
	}
	if s.conf.Coordinator.UpgradeOnStart {
		s.upgradeAll(ctx)
	}
	return nil
}

func (s *ScalableService) Stop() {}

func (s *ScalableService) SnapshotName() string { return registrySnapshotName }

func (s *ScalableService) WriteSnapshot(w io.Writer) error {
	return json.NewEncoder(w).Encode(s.registry.Snapshot())
}

func (s *ScalableService) ReadSnapshot(r io.Reader) error {
	var data models.ScalableData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return err
	}
	s.registry.Restore(data)
	s.cache.Clear()
	return nil
}
