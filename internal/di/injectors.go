//go:build wireinject
// +build wireinject

package di

import (
	"attendees/internal"
	"attendees/internal/controllers"
	"attendees/internal/persistence"
	"attendees/internal/providers"
	"attendees/internal/remote"
	"attendees/internal/services"
	"attendees/internal/structures"

	wire "github.com/google/wire"
)

var commonSet = wire.NewSet(
	providers.NewConfigProvider,
	providers.NewLogProvider,
	providers.NewDeferredSize,
	wire.Bind(new(providers.SizeReporter), new(*providers.DeferredSize)),
	providers.NewMetricsProvider,
	remote.NewClient,
	snapshotManager,
	persistence.NewScheduler,
	controllers.NewHealthController,
	internal.NewApp,
)

func InitShardApp(cfg *structures.CliFlags) (*internal.App, func(), error) {

	wire.Build(
		commonSet,
		remote.NewEventClient,
		remote.NewPermissionChecker,
		remote.NewCoordinatorClient,
		services.NewAttendeeService,
		shardState,
		wire.Bind(new(internal.Lifecycle), new(services.AttendeeServiceInterface)),
		controllers.NewShardController,
		internal.InitShardRoutes,
	)

	return nil, nil, nil
}

func InitCoordinatorApp(cfg *structures.CliFlags) (*internal.App, func(), error) {

	wire.Build(
		commonSet,
		providers.NewInstrumentedCacheProvider,
		remote.NewShardClient,
		remote.NewHostPoolProvisioner,
		services.NewScalableService,
		coordinatorState,
		wire.Bind(new(internal.Lifecycle), new(services.ScalableServiceInterface)),
		controllers.NewCoordinatorController,
		internal.InitCoordinatorRoutes,
	)

	return nil, nil, nil
}
