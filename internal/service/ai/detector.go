package ai

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"trafficmonitor/internal/config"
	"trafficmonitor/internal/dto"
	"trafficmonitor/internal/logger"

	"gocv.io/x/gocv"
)

// DefaultDetectionThreshold is the minimum confidence when none is configured.
const DefaultDetectionThreshold = 0.5

// DetectorService runs the traffic event network on single frames.
// A gocv Net is not safe for concurrent use; share detectors through a Pool.
type DetectorService struct {
	net        gocv.Net
	labels     []string
	threshold  float32
	modelPath  string
	configPath string
	logger     *logger.Logger
}

// NewDetectorService loads the network described by config.
func NewDetectorService(config *config.Config, labels []string, logger *logger.Logger) (*DetectorService, error) {
	threshold := config.DetectionThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultDetectionThreshold
	}

	service := &DetectorService{
		labels:     labels,
		threshold:  float32(threshold),
		modelPath:  config.ModelPath,
		configPath: config.ConfigPath,
		logger:     logger,
	}

	if err := service.initializeNet(); err != nil {
		return nil, err
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	configPath := s.configPath
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", configPath)
		}
	}

	net := gocv.ReadNet(s.modelPath, configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", s.modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network initialized from %s (%d labels)", s.modelPath, len(s.labels))
	return nil
}

// DetectObjects returns every detection above the confidence threshold
// whose class maps to a known label.
func (s *DetectorService) DetectObjects(imageBytes []byte) ([]dto.DetectionResult, error) {
	if s.net.Empty() {
		return nil, fmt.Errorf("detection network not initialized")
	}

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	// SSD rows: [batch, class, confidence, left, top, right, bottom]
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	cols, height := float32(mat.Cols()), float32(mat.Rows())
	var results []dto.DetectionResult
	for i := 0; i < rows.Rows(); i++ {
		confidence := rows.GetFloatAt(i, 2)
		if confidence < s.threshold {
			continue
		}

		label := classLabel(s.labels, int(rows.GetFloatAt(i, 1)))
		if label == "" {
			continue
		}

		x := int(rows.GetFloatAt(i, 3) * cols)
		y := int(rows.GetFloatAt(i, 4) * height)
		results = append(results, dto.DetectionResult{
			Label:      label,
			Confidence: float64(confidence),
			X:          x,
			Y:          y,
			Width:      int(rows.GetFloatAt(i, 5)*cols) - x,
			Height:     int(rows.GetFloatAt(i, 6)*height) - y,
		})
	}

	return results, nil
}

// DrawRectangle draws labelled boxes for detections and re-encodes the frame as JPEG.
func (s *DetectorService) DrawRectangle(detections []dto.DetectionResult, img []byte) ([]byte, error) {
	return drawDetections(detections, img)
}

// Close releases the network.
func (s *DetectorService) Close() error {
	return s.net.Close()
}

func drawDetections(detections []dto.DetectionResult, img []byte) ([]byte, error) {
	if len(detections) == 0 {
		return img, nil
	}

	red := color.RGBA{R: 255, G: 0, B: 0, A: 0}

	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	for _, detection := range detections {
		rect := image.Rect(detection.X, detection.Y, detection.X+detection.Width, detection.Y+detection.Height)
		if err := gocv.Rectangle(&mat, rect, red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s (%.2f)", detection.Label, detection.Confidence)
		if err := gocv.PutText(&mat, label, image.Pt(detection.X, detection.Y-5), gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	finalImage := make([]byte, buf.Len())
	copy(finalImage, buf.GetBytes())
	return finalImage, nil
}
