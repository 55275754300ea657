package stream

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
	"trafficmonitor/internal/config"
	"trafficmonitor/internal/incident"
	"trafficmonitor/internal/logger"
	"trafficmonitor/internal/metrics"
	"trafficmonitor/internal/model"
	"trafficmonitor/internal/repository"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SourceOpener opens the feed of a camera.
type SourceOpener func(feedURL string) (FrameSource, error)

// Manager owns the collaborators shared by every stream session.
type Manager struct {
	detector      Detector
	incidents     repository.IncidentRepository
	notifications repository.NotificationRepository
	cameras       repository.CameraRepository
	notifier      Notifier
	metrics       *metrics.Metrics
	openSource    SourceOpener
	logger        *logger.Logger

	aggregatorConfig incident.Config
	interval         int
	retryLimit       int
	backoff          time.Duration
	cameraCache      *cache.Cache

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager validates the aggregator settings in config and returns a
// Manager ready to start sessions.
func NewManager(
	detector Detector,
	incidents repository.IncidentRepository,
	notifications repository.NotificationRepository,
	cameras repository.CameraRepository,
	notifier Notifier,
	metrics *metrics.Metrics,
	openSource SourceOpener,
	config *config.Config,
	logger *logger.Logger,
) (*Manager, error) {
	aggregatorConfig, err := config.AggregatorConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid aggregator configuration: %w", err)
	}

	interval := config.ProcessingInterval
	if interval < 1 {
		interval = 1
	}
	retryLimit := config.PersistRetryLimit
	if retryLimit < 1 {
		retryLimit = 1
	}
	backoff := time.Duration(max(config.PersistBackoffMS, 0)) * time.Millisecond
	ttl := time.Duration(config.CameraCacheTTL) * time.Second
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	m := &Manager{
		detector:         detector,
		incidents:        incidents,
		notifications:    notifications,
		cameras:          cameras,
		notifier:         notifier,
		metrics:          metrics,
		openSource:       openSource,
		logger:           logger,
		aggregatorConfig: aggregatorConfig,
		interval:         interval,
		retryLimit:       retryLimit,
		backoff:          backoff,
		cameraCache:      cache.New(ttl, 10*time.Minute),
		sessions:         make(map[string]*Session),
	}

	logger.Info("🎬 Stream manager ready - detecting every %d frame(s), incidents close after %d quiet frame(s)", interval, aggregatorConfig.QuietFrameThreshold)
	return m, nil
}

// Camera returns the camera with id, or nil if there is none. Found cameras
// are cached; misses are not.
func (m *Manager) Camera(id int64) (*model.Camera, error) {
	key := strconv.FormatInt(id, 10)
	if cached, ok := m.cameraCache.Get(key); ok {
		cam := cached.(model.Camera)
		return &cam, nil
	}

	cam, err := m.cameras.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up camera %d: %w", id, err)
	}
	if cam == nil {
		return nil, nil
	}

	m.cameraCache.SetDefault(key, *cam)
	return cam, nil
}

// ForgetCamera drops the cached lookup for id, e.g. after the camera is deleted.
func (m *Manager) ForgetCamera(id int64) {
	m.cameraCache.Delete(strconv.FormatInt(id, 10))
}

// NewSession opens the camera feed and binds it to a fresh aggregator.
func (m *Manager) NewSession(camera model.Camera) (*Session, error) {
	aggregator, err := incident.New(m.aggregatorConfig)
	if err != nil {
		return nil, err
	}

	source, err := m.openSource(camera.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed for camera %s: %w", camera.Name, err)
	}

	return &Session{
		ID:            uuid.NewString(),
		Camera:        camera,
		source:        source,
		detector:      m.detector,
		aggregator:    aggregator,
		incidents:     m.incidents,
		notifications: m.notifications,
		notifier:      m.notifier,
		metrics:       m.metrics,
		logger:        m.logger,
		interval:      m.interval,
		retryLimit:    m.retryLimit,
		backoff:       m.backoff,
	}, nil
}

// Stream runs a new session for camera until ctx is cancelled or the feed
// ends. Each frame is passed to sink.
func (m *Manager) Stream(ctx context.Context, camera model.Camera, sink func(frame []byte) error) error {
	session, err := m.NewSession(camera)
	if err != nil {
		return err
	}

	m.track(session)
	defer m.untrack(session)

	m.logger.Info("📹 Stream %s started for camera %s", session.ID, camera.Name)
	return session.Run(ctx, sink)
}

// ActiveSessions returns the number of running sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Wait blocks until every running session has stored its final incident
// or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("🛑 All stream sessions stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) track(session *Session) {
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.wg.Add(1)
	m.metrics.TotalStreams.Add(1)
	m.metrics.ActiveStreams.Add(1)
}

func (m *Manager) untrack(session *Session) {
	m.mu.Lock()
	delete(m.sessions, session.ID)
	m.mu.Unlock()

	m.metrics.ActiveStreams.Add(-1)
	m.wg.Done()
}
