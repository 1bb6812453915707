package remote

import (
	"attendees/internal/models"
	"attendees/internal/transfer"
	"context"
)

const (
	JoinedChunkPath  = "/chunks/joined"
	InvitesChunkPath = "/chunks/invites"
	addByParentPath  = "/entries/by-parent"
	statusPath       = "/internal/status"
	installPath      = "/internal/install"
	upgradePath      = "/internal/upgrade"
)

// ShardClientInterface is what the coordinator calls on a shard.
type ShardClientInterface interface {
	GetChunk(ctx context.Context, shard models.Principal, path string, event models.Principal, chunk, maxBytes int) (transfer.Chunk, error)
	FetchAll(ctx context.Context, shard models.Principal, path string, event models.Principal, maxBytes int) ([]byte, error)
	AddEntryByParent(ctx context.Context, shard models.Principal, attendee models.Attendee, key string) (models.Principal, error)
	Status(ctx context.Context, shard models.Principal) (models.ShardStatus, error)
	Install(ctx context.Context, shard models.Principal, req models.InstallRequest) error
	Upgrade(ctx context.Context, shard models.Principal, req models.UpgradeRequest) error
}

type ShardClient struct {
	client ClientInterface
}

func NewShardClient(client ClientInterface) ShardClientInterface {
	return &ShardClient{client: client}
}

func (s *ShardClient) GetChunk(ctx context.Context, shard models.Principal, path string, event models.Principal, chunk, maxBytes int) (transfer.Chunk, error) {
	var out transfer.Chunk
	req := models.ChunkRequest{EventIdentifier: event, Chunk: chunk, MaxBytesPerChunk: maxBytes}
	if err := s.client.PostJSON(ctx, shard, path, req, &out); err != nil {
		return transfer.Chunk{}, err
	}
	return out, nil
}

// FetchAll pulls every chunk of one shard's filtered payload in order.
func (s *ShardClient) FetchAll(ctx context.Context, shard models.Principal, path string, event models.Principal, maxBytes int) ([]byte, error) {
	return transfer.Fetch(ctx, func(ctx context.Context, index int) (transfer.Chunk, error) {
		return s.GetChunk(ctx, shard, path, event, index, maxBytes)
	})
}

func (s *ShardClient) AddEntryByParent(ctx context.Context, shard models.Principal, attendee models.Attendee, key string) (models.Principal, error) {
	var out models.AddEntryResponse
	req := models.AddEntryRequest{Attendee: attendee, IdempotencyKey: key}
	if err := s.client.PostJSON(ctx, shard, addByParentPath, req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (s *ShardClient) Status(ctx context.Context, shard models.Principal) (models.ShardStatus, error) {
	var out models.ShardStatus
	if err := s.client.GetJSON(ctx, shard, statusPath, nil, &out); err != nil {
		return models.ShardStatus{}, err
	}
	return out, nil
}

func (s *ShardClient) Install(ctx context.Context, shard models.Principal, req models.InstallRequest) error {
	return s.client.PostJSON(ctx, shard, installPath, req, nil)
}

func (s *ShardClient) Upgrade(ctx context.Context, shard models.Principal, req models.UpgradeRequest) error {
	return s.client.PostJSON(ctx, shard, upgradePath, req, nil)
}
