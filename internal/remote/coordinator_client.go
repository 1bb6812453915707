package remote

import (
	"attendees/internal/models"
	"context"
)

const (
	spawnPath          = "/shards/spawn"
	availableShardPath = "/shards/available"
)

// CoordinatorClientInterface is what a shard calls on its parent.
type CoordinatorClientInterface interface {
	SpawnAndSeal(ctx context.Context, parent models.Principal, req models.SpawnRequest) (models.SpawnResult, error)
	GetAvailableShard(ctx context.Context, parent models.Principal) (models.ShardRecord, error)
}

type CoordinatorClient struct {
	client ClientInterface
}

func NewCoordinatorClient(client ClientInterface) CoordinatorClientInterface {
	return &CoordinatorClient{client: client}
}

func (c *CoordinatorClient) SpawnAndSeal(ctx context.Context, parent models.Principal, req models.SpawnRequest) (models.SpawnResult, error) {
	var out models.SpawnResult
	if err := c.client.PostJSON(ctx, parent, spawnPath, req, &out); err != nil {
		return models.SpawnResult{}, err
	}
	return out, nil
}

func (c *CoordinatorClient) GetAvailableShard(ctx context.Context, parent models.Principal) (models.ShardRecord, error) {
	var out models.ShardRecord
	if err := c.client.GetJSON(ctx, parent, availableShardPath, nil, &out); err != nil {
		return models.ShardRecord{}, err
	}
	return out, nil
}
