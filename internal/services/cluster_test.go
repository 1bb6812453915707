package services

import (
	"attendees/internal/models"
	"attendees/internal/remote"
	"attendees/internal/structures"
	"attendees/internal/testutil"
	"attendees/internal/transfer"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	coordinatorURL models.Principal = "http://coordinator:8080"
	eventsURL      models.Principal = "http://events:8080"
	adminPrincipal models.Principal = "admin"
)

func eventID(n uint64) models.Principal {
	return models.Identifier{Unit: eventsURL, Counter: n, Kind: models.KindEvent}.Encode()
}

func groupID(n uint64) models.Principal {
	return models.Identifier{Unit: "http://groups:8080", Counter: n, Kind: models.KindGroup}.Encode()
}

func shardURL(i int) models.Principal {
	return models.Principal(fmt.Sprintf("http://shard-%d:8080", i))
}

// fakeEvents answers privacy lookups from a map and records count pushes.
type fakeEvents struct {
	mu      sync.Mutex
	privacy map[models.Principal]models.Privacy
	counts  map[models.Principal]int
	lookups int
	err     error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{privacy: make(map[models.Principal]models.Privacy), counts: make(map[models.Principal]int)}
}

func (f *fakeEvents) GetPrivacyAndOwner(_ context.Context, event, _ models.Principal) (models.EventPrivacy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return models.EventPrivacy{}, f.err
	}
	p, ok := f.privacy[event]
	if !ok {
		p = models.PrivacyPublic
	}
	return models.EventPrivacy{Owner: "owner", Privacy: p}, nil
}

func (f *fakeEvents) UpdateAttendeeCount(_ context.Context, event models.Principal, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[event] = count
	return nil
}

func (f *fakeEvents) Count(event models.Principal) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counts[event]
	return c, ok
}

// fakePermissions allows everything unless deny is set.
type fakePermissions struct {
	deny bool
}

func (f *fakePermissions) Check(_ context.Context, caller, _, _ models.Principal, action models.PermissionAction) (models.Principal, error) {
	if f.deny {
		return "", models.NewApiError(models.KindUnauthorized, models.TagNoPermission, "No permission", "permission.Check", string(caller), string(action))
	}
	return caller, nil
}

// cluster wires one coordinator and a pool of shard hosts in process. Calls
// between them go straight to the services with the right caller principal.
type cluster struct {
	t           *testing.T
	coordinator *ScalableService
	shards      map[models.Principal]*AttendeeService
	events      *fakeEvents
	permissions *fakePermissions
	logger      *testutil.MockLogger
	metrics     *testutil.MockMetrics
	cache       *testutil.MockCache
	down        map[models.Principal]bool
	mu          sync.Mutex
}

func newCluster(t *testing.T, hosts, capacity int) *cluster {
	t.Helper()
	c := &cluster{
		t:           t,
		shards:      make(map[models.Principal]*AttendeeService),
		events:      newFakeEvents(),
		permissions: &fakePermissions{},
		logger:      &testutil.MockLogger{},
		metrics:     &testutil.MockMetrics{},
		cache:       &testutil.MockCache{},
		down:        make(map[models.Principal]bool),
	}

	hostNames := make([]string, 0, hosts)
	for i := 0; i < hosts; i++ {
		url := shardURL(i)
		hostNames = append(hostNames, string(url))
		conf := &structures.Config{
			Node:   structures.NodeConfig{Advertise: string(url), Name: "attendees"},
			Remote: structures.RemoteConfig{RetryMax: 1},
		}
		svc := NewAttendeeService(conf, c.events, c.permissions, &clusterCoordinatorClient{c: c, self: url}, c.logger, c.metrics).(*AttendeeService)
		c.shards[url] = svc
	}

	conf := &structures.Config{
		Node: structures.NodeConfig{Advertise: string(coordinatorURL), Name: "attendees"},
		Coordinator: structures.CoordinatorConfig{
			ShardHosts:       hostNames,
			ShardCapacity:    capacity,
			Admins:           []string{string(adminPrincipal)},
			MaxBytesPerChunk: 64,
		},
		Remote: structures.RemoteConfig{RetryMax: 1},
	}
	shardClient := &clusterShardClient{c: c}
	provisioner := remote.NewHostPoolProvisioner(conf, shardClient, c.logger)
	c.coordinator = NewScalableService(conf, shardClient, provisioner, c.cache, c.logger, c.metrics).(*ScalableService)
	return c
}

// boot uploads a child image and installs the first shard.
func (c *cluster) boot() *AttendeeService {
	c.t.Helper()
	c.coordinator.setChildImage([]byte("child-v1"), models.Version(1))
	require.NoError(c.t, c.coordinator.InitializeFirstShard(context.Background()))
	return c.shards[shardURL(0)]
}

func (c *cluster) shard(p models.Principal) (*AttendeeService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	svc, ok := c.shards[p]
	if !ok || c.down[p] {
		return nil, models.NewApiError(models.KindRemoteCallFailed, models.TagRemoteCallFailed, "connection refused", "cluster", string(p))
	}
	return svc, nil
}

func (c *cluster) setDown(p models.Principal, down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down[p] = down
}

type clusterShardClient struct {
	c *cluster
}

func (s *clusterShardClient) GetChunk(_ context.Context, shard models.Principal, path string, event models.Principal, chunk, maxBytes int) (transfer.Chunk, error) {
	svc, err := s.c.shard(shard)
	if err != nil {
		return transfer.Chunk{}, err
	}
	if path == remote.InvitesChunkPath {
		return svc.InvitesChunk(coordinatorURL, event, chunk, maxBytes)
	}
	return svc.JoinedChunk(coordinatorURL, event, chunk, maxBytes)
}

func (s *clusterShardClient) FetchAll(ctx context.Context, shard models.Principal, path string, event models.Principal, maxBytes int) ([]byte, error) {
	return transfer.Fetch(ctx, func(ctx context.Context, index int) (transfer.Chunk, error) {
		return s.GetChunk(ctx, shard, path, event, index, maxBytes)
	})
}

func (s *clusterShardClient) AddEntryByParent(_ context.Context, shard models.Principal, attendee models.Attendee, key string) (models.Principal, error) {
	svc, err := s.c.shard(shard)
	if err != nil {
		return "", err
	}
	return svc.AddEntryByParent(coordinatorURL, models.AddEntryRequest{Attendee: attendee, IdempotencyKey: key})
}

func (s *clusterShardClient) Status(_ context.Context, shard models.Principal) (models.ShardStatus, error) {
	svc, err := s.c.shard(shard)
	if err != nil {
		return models.ShardStatus{}, err
	}
	return svc.Status(), nil
}

func (s *clusterShardClient) Install(_ context.Context, shard models.Principal, req models.InstallRequest) error {
	svc, err := s.c.shard(shard)
	if err != nil {
		return err
	}
	return svc.Install(coordinatorURL, req)
}

func (s *clusterShardClient) Upgrade(_ context.Context, shard models.Principal, req models.UpgradeRequest) error {
	svc, err := s.c.shard(shard)
	if err != nil {
		return err
	}
	return svc.Upgrade(coordinatorURL, req)
}

type clusterCoordinatorClient struct {
	c    *cluster
	self models.Principal
}

func (cc *clusterCoordinatorClient) SpawnAndSeal(ctx context.Context, _ models.Principal, req models.SpawnRequest) (models.SpawnResult, error) {
	return cc.c.coordinator.SpawnAndSeal(ctx, cc.self, req)
}

func (cc *clusterCoordinatorClient) GetAvailableShard(_ context.Context, _ models.Principal) (models.ShardRecord, error) {
	return cc.c.coordinator.GetAvailableShard(cc.self)
}
