package stream

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"
	"trafficmonitor/internal/dto"
	"trafficmonitor/internal/model"
)

// fakeSource replays frames, then returns io.EOF. With loop set it repeats
// the frames forever.
type fakeSource struct {
	frames [][]byte
	loop   bool
	err    error

	mu     sync.Mutex
	next   int
	closed bool
}

func newFakeSource(frames ...string) *fakeSource {
	s := &fakeSource{}
	for _, f := range frames {
		s.frames = append(s.frames, []byte(f))
	}
	return s
}

func (s *fakeSource) Next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.frames) {
		if s.err != nil {
			return nil, s.err
		}
		if !s.loop || len(s.frames) == 0 {
			return nil, io.EOF
		}
		s.next = 0
	}
	frame := s.frames[s.next]
	s.next++
	return frame, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDetector reads the frame body as '|'-separated labels. The frames
// "panic" and "error" make it misbehave.
type fakeDetector struct {
	mu    sync.Mutex
	calls int
}

func (d *fakeDetector) DetectObjects(frame []byte) ([]dto.DetectionResult, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	body := string(frame)
	switch body {
	case "":
		return nil, nil
	case "panic":
		panic("detector crashed")
	case "error":
		return nil, errors.New("inference failed")
	}

	var results []dto.DetectionResult
	for _, label := range strings.Split(body, "|") {
		results = append(results, dto.DetectionResult{Label: label, Confidence: 0.9, Width: 10, Height: 10})
	}
	return results, nil
}

func (d *fakeDetector) DrawRectangle(detections []dto.DetectionResult, frame []byte) ([]byte, error) {
	return append([]byte("annotated:"), frame...), nil
}

func (d *fakeDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeIncidentRepository stores incidents in memory. The first panics
// inserts panic and the next failures inserts return an error.
type fakeIncidentRepository struct {
	mu       sync.Mutex
	stored   []model.Incident
	panics   int
	failures int
	attempts int
}

func (r *fakeIncidentRepository) Insert(inc *model.Incident) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts++
	if r.panics > 0 {
		r.panics--
		panic("disk I/O error")
	}
	if r.failures > 0 {
		r.failures--
		return 0, errors.New("database is locked")
	}
	inc.ID = int64(len(r.stored) + 1)
	r.stored = append(r.stored, *inc)
	return inc.ID, nil
}

func (r *fakeIncidentRepository) GetByID(id int64) (*model.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inc := range r.stored {
		if inc.ID == id {
			found := inc
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeIncidentRepository) GetAll(filter *model.IncidentFilter) ([]model.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Incident(nil), r.stored...), nil
}

func (r *fakeIncidentRepository) GetTotalCount(filter *model.IncidentFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stored), nil
}

func (r *fakeIncidentRepository) GetStats(since time.Time) (*model.IncidentStats, error) {
	return &model.IncidentStats{Since: since}, nil
}

func (r *fakeIncidentRepository) DeleteByCamera(cameraID int64) (int64, error) {
	return 0, nil
}

func (r *fakeIncidentRepository) attemptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *fakeIncidentRepository) all() []model.Incident {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Incident(nil), r.stored...)
}

type fakeCameraRepository struct {
	mu      sync.Mutex
	cameras map[int64]model.Camera
	lookups int
}

func (r *fakeCameraRepository) Insert(cam *model.Camera) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cam.ID = int64(len(r.cameras) + 1)
	r.cameras[cam.ID] = *cam
	return cam.ID, nil
}

func (r *fakeCameraRepository) GetByID(id int64) (*model.Camera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	cam, ok := r.cameras[id]
	if !ok {
		return nil, nil
	}
	return &cam, nil
}

func (r *fakeCameraRepository) GetByName(name string) (*model.Camera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cam := range r.cameras {
		if cam.Name == name {
			return &cam, nil
		}
	}
	return nil, nil
}

func (r *fakeCameraRepository) GetAll(filter *model.CameraFilter) ([]model.Camera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.Camera
	for _, cam := range r.cameras {
		all = append(all, cam)
	}
	return all, nil
}

func (r *fakeCameraRepository) GetTotalCount(filter *model.CameraFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cameras), nil
}

func (r *fakeCameraRepository) Delete(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cameras[id]
	delete(r.cameras, id)
	return ok, nil
}

// fakeNotificationRepository stores notifications in memory. Inserts fail
// while failing is set.
type fakeNotificationRepository struct {
	mu      sync.Mutex
	stored  []model.Notification
	failing bool
}

func (r *fakeNotificationRepository) Insert(n *model.Notification) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return 0, errors.New("database is locked")
	}
	n.ID = int64(len(r.stored) + 1)
	r.stored = append(r.stored, *n)
	return n.ID, nil
}

func (r *fakeNotificationRepository) GetAll(filter *model.NotificationFilter) ([]model.Notification, error) {
	return r.all(), nil
}

func (r *fakeNotificationRepository) GetTotalCount(filter *model.NotificationFilter) (int, error) {
	return len(r.all()), nil
}

func (r *fakeNotificationRepository) SetRead(id int64, read bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.stored {
		if r.stored[i].ID == id {
			r.stored[i].Read = read
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeNotificationRepository) all() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.stored...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages [][]byte
}

func (n *fakeNotifier) Broadcast(message []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *fakeNotifier) all() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.messages...)
}
