package ai

import (
	"errors"
	"fmt"
	"trafficmonitor/internal/config"
	"trafficmonitor/internal/dto"
	"trafficmonitor/internal/logger"
)

// Pool shares a fixed set of detectors between concurrent streams. Each call
// borrows one detector for its duration.
type Pool struct {
	detectors chan *DetectorService
	all       []*DetectorService
}

// NewPool loads config.DetectorWorkers networks (at least one).
func NewPool(config *config.Config, logger *logger.Logger) (*Pool, error) {
	labels, err := LoadLabels(config.LabelsPath)
	if err != nil {
		return nil, err
	}

	workers := config.DetectorWorkers
	if workers < 1 {
		workers = 1
	}

	pool := &Pool{detectors: make(chan *DetectorService, workers)}
	for i := 0; i < workers; i++ {
		ds, err := NewDetectorService(config, labels, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to load detector %d: %w", i, err)
		}
		pool.all = append(pool.all, ds)
		pool.detectors <- ds
	}

	logger.Info("🤖 Detector pool ready with %d network(s)", workers)
	return pool, nil
}

// DetectObjects runs detection on a borrowed detector, waiting for one to be free.
func (p *Pool) DetectObjects(frame []byte) ([]dto.DetectionResult, error) {
	ds := <-p.detectors
	defer func() { p.detectors <- ds }()
	return ds.DetectObjects(frame)
}

// DrawRectangle annotates frame. It does not need a network.
func (p *Pool) DrawRectangle(detections []dto.DetectionResult, frame []byte) ([]byte, error) {
	return drawDetections(detections, frame)
}

// Close releases every network.
func (p *Pool) Close() error {
	var errs []error
	for _, ds := range p.all {
		errs = append(errs, ds.Close())
	}
	p.all = nil
	return errors.Join(errs...)
}
