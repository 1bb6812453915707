package di

import (
	"attendees/internal/persistence"
	"attendees/internal/persistence/interfaces"
	"attendees/internal/providers"
	"attendees/internal/services"
	"attendees/internal/structures"
)

// shardState publishes the shard service as the unit's snapshot owner and
// record count.
func shardState(svc services.AttendeeServiceInterface, sizes *providers.DeferredSize) interfaces.SnapshotterInterface {
	sizes.Bind(svc)
	return svc
}

func coordinatorState(svc services.ScalableServiceInterface, sizes *providers.DeferredSize) interfaces.SnapshotterInterface {
	sizes.Bind(svc)
	return svc
}

func snapshotManager(conf *structures.Config, owner interfaces.SnapshotterInterface, logger providers.Logger, metrics providers.MetricsProviderInterface) (*persistence.SnapshotManager, func(), error) {
	compressor, err := persistence.NewZstdCompressor()
	if err != nil {
		return nil, nil, err
	}
	backend, err := persistence.NewBackend(conf)
	if err != nil {
		compressor.Close()
		return nil, nil, err
	}
	manager := persistence.NewSnapshotManager(owner, compressor, backend, logger, metrics)
	return manager, manager.Close, nil
}
