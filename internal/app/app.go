package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
	"trafficmonitor/internal/config"
	"trafficmonitor/internal/logger"
	"trafficmonitor/internal/metrics"
	"trafficmonitor/internal/repository/sqlite"
	"trafficmonitor/internal/routes"
	"trafficmonitor/internal/service/ai"
	"trafficmonitor/internal/service/capture"
	"trafficmonitor/internal/service/stream"
	"trafficmonitor/internal/service/websocket"
)

// shutdownTimeout bounds how long open streams get to store their final incident.
const shutdownTimeout = 15 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	detectors  *ai.Pool
	hubService *websocket.HubService
	metrics    *metrics.Metrics
	manager    *stream.Manager
	server     *http.Server
}

func NewApp() (*App, error) {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	detectors, err := ai.NewPool(cfg, log)
	if err != nil {
		db.Close()
		log.Close()
		return nil, fmt.Errorf("failed to load detector: %w", err)
	}

	incidents := sqlite.NewIncidentRepository(db)
	notifications := sqlite.NewNotificationRepository(db)
	cameras := sqlite.NewCameraRepository(db)
	hub := websocket.NewHubService(log)
	m := metrics.New()

	openSource := func(feedURL string) (stream.FrameSource, error) {
		return capture.Open(feedURL, cfg.JPEGQuality)
	}

	mng, err := stream.NewManager(detectors, incidents, notifications, cameras, hub, m, openSource, cfg, log)
	if err != nil {
		detectors.Close()
		db.Close()
		log.Close()
		return nil, err
	}

	return &App{
		config:     cfg,
		logger:     log,
		db:         db,
		detectors:  detectors,
		hubService: hub,
		metrics:    m,
		manager:    mng,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           routes.SetupRoutes(mng, hub, incidents, notifications, cameras, m, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP until ctx is cancelled, then lets open streams close
// their incident episodes before releasing resources.
func (a *App) Run(ctx context.Context) error {
	go a.hubService.Run()

	a.logger.Info("🚀 Traffic Incident Monitor")
	a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
	a.logger.Info("🗄️  Database: %s", a.config.DatabasePath)
	a.logger.Info("🤖 AI Model: %s", a.config.ModelPath)

	// Request contexts derive from ctx, so cancelling it ends every stream
	// session and stores its open incident.
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
	}
	if err := a.manager.Wait(shutdownCtx); err != nil {
		a.logger.Warning("Streams still open at shutdown: %v", err)
	}

	a.hubService.Stop()
	a.detectors.Close()
	a.db.Close()
	a.logger.Close()
	return serveErr
}
