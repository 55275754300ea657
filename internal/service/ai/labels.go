package ai

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"trafficmonitor/internal/incident"
)

// LoadLabels reads one class label per line. Line N holds class N+1, since
// class 0 is the SSD background class. Blank lines keep their slot and
// lines starting with '#' are comments.
func LoadLabels(path string) ([]string, error) {
	if path == "" {
		return append([]string(nil), incident.DefaultRanking...), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

// classLabel maps an SSD class id to its label. Unknown ids and blank slots
// return "" so they never reach the aggregator.
func classLabel(labels []string, classID int) string {
	if classID < 1 || classID > len(labels) {
		return ""
	}
	return labels[classID-1]
}
