package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"trafficmonitor/internal/config"
	"trafficmonitor/internal/dto"
	"trafficmonitor/internal/incident"
	"trafficmonitor/internal/logger"
	"trafficmonitor/internal/metrics"
	"trafficmonitor/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ecp = model.Camera{
	ID:       1,
	Name:     "ECP-01",
	Location: "1.3099,103.9053",
	RoadName: "East Coast Parkway",
	FeedURL:  "rtsp://cameras.local/ecp-01",
}

type harness struct {
	manager       *Manager
	detector      *fakeDetector
	incidents     *fakeIncidentRepository
	notifications *fakeNotificationRepository
	cameras       *fakeCameraRepository
	notifier      *fakeNotifier
	metrics       *metrics.Metrics
}

func testConfig() *config.Config {
	return &config.Config{
		ProcessingInterval:  1,
		PersistRetryLimit:   3,
		CameraCacheTTL:      60,
		QuietFrameThreshold: 5,
		SeverityRanking:     incident.DefaultRanking,
		SeverityMap: map[string]string{
			"Multiple collision": "high",
			"Vehicle fire":       "high",
			"Vehicular accident": "high",
			"Tailgating":         "medium",
			"Self-accident":      "low",
		},
	}
}

// newHarness builds a Manager whose feeds are opened by open. The config
// can be adjusted before the manager is created.
func newHarness(t *testing.T, open SourceOpener, adjust func(*config.Config)) *harness {
	t.Helper()

	cfg := testConfig()
	if adjust != nil {
		adjust(cfg)
	}

	h := &harness{
		detector:      &fakeDetector{},
		incidents:     &fakeIncidentRepository{},
		notifications: &fakeNotificationRepository{},
		cameras:       &fakeCameraRepository{cameras: map[int64]model.Camera{ecp.ID: ecp}},
		notifier:      &fakeNotifier{},
		metrics:       metrics.New(),
	}

	manager, err := NewManager(h.detector, h.incidents, h.notifications, h.cameras, h.notifier, h.metrics, open, cfg, logger.NewWriterLogger(io.Discard))
	require.NoError(t, err)
	h.manager = manager
	return h
}

func openFake(source *fakeSource) SourceOpener {
	return func(string) (FrameSource, error) { return source, nil }
}

func runSession(t *testing.T, h *harness, sink func([]byte) error) error {
	t.Helper()

	session, err := h.manager.NewSession(ecp)
	require.NoError(t, err)
	return session.Run(context.Background(), sink)
}

func TestSession_IncidentEmittedAfterQuietPeriod(t *testing.T) {
	source := newFakeSource("Tailgating", "Tailgating", "", "", "", "", "")
	h := newHarness(t, openFake(source), nil)

	var storedPerFrame []int
	var outputs []string
	err := runSession(t, h, func(frame []byte) error {
		storedPerFrame = append(storedPerFrame, len(h.incidents.all()))
		outputs = append(outputs, string(frame))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 1}, storedPerFrame)
	assert.Equal(t, "annotated:Tailgating", outputs[0])
	assert.Equal(t, "annotated:Tailgating", outputs[1])
	assert.Equal(t, "", outputs[2])

	stored := h.incidents.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "Tailgating", stored[0].IncidentType)
	assert.Equal(t, "medium", stored[0].Severity)
	assert.Equal(t, ecp.ID, stored[0].CameraID)
	assert.NotEmpty(t, stored[0].SessionID)
	assert.True(t, source.isClosed())

	messages := h.notifier.all()
	require.Len(t, messages, 1)
	var n dto.Notification
	require.NoError(t, json.Unmarshal(messages[0], &n))
	assert.Equal(t, "Tailgating on East Coast Parkway (Severity: Medium)", n.Message)
	assert.Equal(t, "/api/incidents/1", n.URL)
	assert.Equal(t, dto.NotificationCategoryIncident, n.Category)
	assert.Equal(t, int64(1), n.IncidentID)
	assert.Equal(t, int64(1), n.ID)
	assert.False(t, n.Read)

	recorded := h.notifications.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, n.Message, recorded[0].Message)
	assert.Equal(t, stored[0].ID, recorded[0].IncidentID)
	assert.Equal(t, ecp.ID, recorded[0].CameraID)
	assert.False(t, recorded[0].Read)

	assert.Equal(t, uint64(7), h.metrics.FramesRead.Load())
	assert.Equal(t, uint64(7), h.metrics.FramesDetected.Load())
}

func TestSession_FlushAtEndOfFeed(t *testing.T) {
	source := newFakeSource("Vehicle fire")
	h := newHarness(t, openFake(source), nil)

	require.NoError(t, runSession(t, h, nil))

	stored := h.incidents.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "Vehicle fire", stored[0].IncidentType)
	assert.Equal(t, "high", stored[0].Severity)
}

func TestSession_MostSevereLabelWins(t *testing.T) {
	source := newFakeSource("Tailgating", "Self-accident|Vehicular accident", "", "Tailgating")
	h := newHarness(t, openFake(source), nil)

	require.NoError(t, runSession(t, h, nil))

	stored := h.incidents.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "Vehicular accident", stored[0].IncidentType)
	assert.Equal(t, "high", stored[0].Severity)
}

func TestSession_IdleFeedStoresNothing(t *testing.T) {
	source := newFakeSource("", "", "")
	h := newHarness(t, openFake(source), nil)

	require.NoError(t, runSession(t, h, nil))
	assert.Empty(t, h.incidents.all())
	assert.Empty(t, h.notifier.all())
}

func TestSession_CancellationFlushesActiveEpisode(t *testing.T) {
	source := newFakeSource("Vehicular accident")
	source.loop = true
	h := newHarness(t, openFake(source), nil)

	session, err := h.manager.NewSession(ecp)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := 0
	err = session.Run(ctx, func([]byte) error {
		frames++
		if frames == 3 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, frames)
	stored := h.incidents.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "Vehicular accident", stored[0].IncidentType)
	assert.Equal(t, 1, session.Stored())
	assert.True(t, source.isClosed())
}

func TestSession_SinkErrorStillFlushes(t *testing.T) {
	source := newFakeSource("Tailgating", "Tailgating")
	h := newHarness(t, openFake(source), nil)

	err := runSession(t, h, func([]byte) error { return errors.New("broken pipe") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")

	assert.Len(t, h.incidents.all(), 1)
}

func TestSession_DetectorPanicStillFlushes(t *testing.T) {
	source := newFakeSource("Tailgating", "panic", "Vehicle fire")
	h := newHarness(t, openFake(source), nil)

	err := runSession(t, h, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	stored := h.incidents.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "Tailgating", stored[0].IncidentType)
	assert.True(t, source.isClosed())
}

func TestSession_SourceErrorStillFlushes(t *testing.T) {
	source := newFakeSource("Self-accident")
	source.err = errors.New("connection reset")
	h := newHarness(t, openFake(source), nil)

	err := runSession(t, h, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	stored := h.incidents.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "low", stored[0].Severity)
}

func TestSession_DetectorErrorsAreNotObserved(t *testing.T) {
	source := newFakeSource("Tailgating", "error", "error", "error", "error", "error")
	h := newHarness(t, openFake(source), nil)

	var storedPerFrame []int
	err := runSession(t, h, func([]byte) error {
		storedPerFrame = append(storedPerFrame, len(h.incidents.all()))
		return nil
	})
	require.NoError(t, err)

	// The episode stays open through failed frames and closes on flush.
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0}, storedPerFrame)
	assert.Len(t, h.incidents.all(), 1)
	assert.Equal(t, uint64(5), h.metrics.DetectErrors.Load())
}

func TestSession_ProcessingInterval(t *testing.T) {
	source := newFakeSource("Tailgating", "Tailgating", "Tailgating", "Tailgating")
	h := newHarness(t, openFake(source), func(c *config.Config) { c.ProcessingInterval = 2 })

	var outputs []string
	err := runSession(t, h, func(frame []byte) error {
		outputs = append(outputs, string(frame))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, h.detector.callCount())
	assert.Equal(t, []string{"Tailgating", "annotated:Tailgating", "Tailgating", "annotated:Tailgating"}, outputs)
	assert.Equal(t, uint64(4), h.metrics.FramesRead.Load())
	assert.Equal(t, uint64(2), h.metrics.FramesDetected.Load())
}

func TestSession_PersistFailureRetriedBeforeNextFrame(t *testing.T) {
	source := newFakeSource("Vehicle fire", "", "", "", "", "", "")
	h := newHarness(t, openFake(source), nil)
	h.incidents.failures = 1

	var storedPerFrame []int
	err := runSession(t, h, func([]byte) error {
		storedPerFrame = append(storedPerFrame, len(h.incidents.all()))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 1}, storedPerFrame)
	assert.Len(t, h.incidents.all(), 1)
	assert.Len(t, h.notifier.all(), 1)
	assert.Equal(t, 7, h.detector.callCount(), "frames must not be replayed")
	assert.Equal(t, uint64(1), h.metrics.PersistFailures.Load())
	assert.Equal(t, uint64(1), h.metrics.PersistRetries.Load())
}

func TestSession_PersistFailureRetriedAtTeardown(t *testing.T) {
	source := newFakeSource("Tailgating")
	h := newHarness(t, openFake(source), nil)
	h.incidents.failures = 2

	require.NoError(t, runSession(t, h, nil))

	assert.Len(t, h.incidents.all(), 1)
	assert.Equal(t, 3, h.incidents.attempts)
	assert.Equal(t, uint64(2), h.metrics.PersistFailures.Load())
	assert.Equal(t, uint64(2), h.metrics.PersistRetries.Load())
	assert.Zero(t, h.metrics.IncidentsLost.Load())
}

func TestSession_NotificationStoreFailureStillBroadcasts(t *testing.T) {
	source := newFakeSource("Vehicle fire")
	h := newHarness(t, openFake(source), nil)
	h.notifications.failing = true

	require.NoError(t, runSession(t, h, nil))

	assert.Len(t, h.incidents.all(), 1)
	assert.Empty(t, h.notifications.all())

	messages := h.notifier.all()
	require.Len(t, messages, 1)
	var n dto.Notification
	require.NoError(t, json.Unmarshal(messages[0], &n))
	assert.Zero(t, n.ID)
	assert.Equal(t, int64(1), n.IncidentID)
}

func TestSession_StorePanicAtTeardownIsRetried(t *testing.T) {
	source := newFakeSource("Tailgating")
	h := newHarness(t, openFake(source), nil)
	h.incidents.panics = 2

	require.NoError(t, runSession(t, h, nil))

	assert.Len(t, h.incidents.all(), 1)
	assert.Equal(t, 3, h.incidents.attemptCount())
	assert.Equal(t, uint64(2), h.metrics.PersistFailures.Load())
	assert.Zero(t, h.metrics.IncidentsLost.Load())
	assert.True(t, source.isClosed())
}

func TestSession_StorePanicDropsAfterRetryLimit(t *testing.T) {
	source := newFakeSource("Self-accident")
	h := newHarness(t, openFake(source), func(c *config.Config) { c.PersistRetryLimit = 2 })
	h.incidents.panics = 10

	require.NoError(t, runSession(t, h, nil))

	assert.Empty(t, h.incidents.all())
	assert.Equal(t, 2, h.incidents.attemptCount())
	assert.Equal(t, uint64(1), h.metrics.IncidentsLost.Load())
}

func TestSession_TeardownRetriesBackOff(t *testing.T) {
	source := newFakeSource("Tailgating")
	h := newHarness(t, openFake(source), func(c *config.Config) { c.PersistBackoffMS = 20 })
	h.incidents.failures = 2

	start := time.Now()
	require.NoError(t, runSession(t, h, nil))

	// One wait after the first retry at teardown fails.
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Len(t, h.incidents.all(), 1)
	assert.Equal(t, 3, h.incidents.attemptCount())
}

func TestSession_IncidentDroppedAfterRetryLimit(t *testing.T) {
	source := newFakeSource("Self-accident")
	h := newHarness(t, openFake(source), func(c *config.Config) { c.PersistRetryLimit = 2 })
	h.incidents.failures = 10

	require.NoError(t, runSession(t, h, nil))

	assert.Empty(t, h.incidents.all())
	assert.Empty(t, h.notifier.all())
	assert.Equal(t, 2, h.incidents.attempts)
	assert.Equal(t, uint64(1), h.metrics.IncidentsLost.Load())
}

func TestSession_ConcurrentStreamsAreIndependent(t *testing.T) {
	h := newHarness(t, func(string) (FrameSource, error) {
		return newFakeSource("Vehicle fire", "", "Tailgating", ""), nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.manager.Stream(context.Background(), ecp, nil))
		}()
	}
	wg.Wait()

	stored := h.incidents.all()
	require.Len(t, stored, 4)

	sessions := make(map[string]bool)
	for _, inc := range stored {
		assert.Equal(t, "Vehicle fire", inc.IncidentType)
		sessions[inc.SessionID] = true
	}
	assert.Len(t, sessions, 4, "every stream gets its own session id")
	assert.True(t, strings.Contains(string(h.notifier.all()[0]), "Vehicle Fire on East Coast Parkway"))
}
