package internal

import (
	"attendees/internal/controllers"
	"attendees/internal/persistence/interfaces"
	"attendees/internal/providers"
	"attendees/internal/structures"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lifecycle is the role service an App starts after restoring its snapshot.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop()
}

type App struct {
	WebServer *http.Server
}

// Handler builds the unit's HTTP surface: instrumented API routes plus the
// health and metrics endpoints.
func Handler(healthController *controllers.HealthController, conf *structures.Config, logger providers.Logger, router providers.RouterProviderInterface, metrics providers.MetricsProviderInterface) http.Handler {
	instrumentedAPI := providers.MetricsMiddleware(metrics, logger, router.Mux())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthController.Health)
	if conf.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.Handle("/", instrumentedAPI)
	return mux
}

func NewApp(healthController *controllers.HealthController, service Lifecycle, scheduler interfaces.SchedulerInterface, conf *structures.Config, logger providers.Logger, router providers.RouterProviderInterface, metrics providers.MetricsProviderInterface) (*App, error) {
	logger.Infof(providers.TypeApp, "Starting %s as %s", conf.AppName, conf.Node.Role)
	err := scheduler.Restore()
	if err != nil {
		logger.Errorf(providers.TypeApp, "Restore error: %s", err)
	}

	app := &App{
		WebServer: &http.Server{
			Addr:         conf.WebServer.Host + ":" + strconv.Itoa(conf.WebServer.Port),
			Handler:      Handler(healthController, conf, logger, router, metrics),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof(providers.TypeApp, "Listening HTTP clients on %s:%d", conf.WebServer.Host, conf.WebServer.Port)
		if err := app.WebServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	ctx, cancelService := context.WithCancel(context.Background())
	defer cancelService()
	if err = service.Start(ctx); err != nil {
		return nil, fmt.Errorf("start %s: %w", conf.Node.Role, err)
	}

	scheduler.Init()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Infof(providers.TypeApp, "Shutdown signal received")
	case err := <-serverErr:
		scheduler.Stop()
		service.Stop()
		return nil, fmt.Errorf("server error: %w", err)
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = app.WebServer.Shutdown(shutdownCtx); err != nil {
		return nil, err
	}
	service.Stop()
	err = scheduler.Persist()
	if err != nil {
		return nil, err
	}
	logger.Infof(providers.TypeApp, "gracefully stopped")
	return app, nil
}
