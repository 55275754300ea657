package dto

// DetectionResult is one object found by the frame detector.
type DetectionResult struct {
	Label      string
	Confidence float64
	X          int
	Y          int
	Width      int
	Height     int
}

// Labels returns the distinct labels of detections in first-seen order.
func Labels(detections []DetectionResult) []string {
	if len(detections) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(detections))
	labels := make([]string, 0, len(detections))
	for _, d := range detections {
		if _, ok := seen[d.Label]; ok {
			continue
		}
		seen[d.Label] = struct{}{}
		labels = append(labels, d.Label)
	}
	return labels
}
