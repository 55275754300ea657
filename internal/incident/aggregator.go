// Package incident turns per-frame detection labels into one incident per
// detection episode.
//
// A frame with at least one label opens an episode (or extends the open one).
// The episode closes once QuietFrameThreshold consecutive label-free frames
// have been observed, or when Flush is called at the end of the stream. The
// incident label is the most severe label seen during the episode according
// to SeverityRanking.
package incident

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidThreshold = errors.New("quiet frame threshold must be at least 1")
	ErrInvalidRanking   = errors.New("invalid severity ranking")
	ErrInvalidSeverity  = errors.New("invalid severity")
)

// Config is fixed when the aggregator is created.
type Config struct {
	// QuietFrameThreshold is the number of consecutive label-free frames
	// that closes an open episode.
	QuietFrameThreshold int
	// SeverityRanking lists labels from most to least severe.
	SeverityRanking []string
	// SeverityMap assigns a severity to a label. Missing labels get DefaultSeverity.
	SeverityMap map[string]Severity
}

// DefaultConfig returns the traffic vocabulary configuration with a
// threshold of five quiet frames.
func DefaultConfig() Config {
	return Config{
		QuietFrameThreshold: 5,
		SeverityRanking:     DefaultRanking,
		SeverityMap:         DefaultSeverityMap,
	}
}

// Incident is the result of one closed episode. The caller attaches the
// camera and timestamp when persisting it.
type Incident struct {
	Label    string
	Severity Severity
	// Labels is every distinct label of the episode, most severe first.
	Labels []string
	// Frames counts the frames with detections that made up the episode.
	Frames int
}

// Aggregator holds the episode state of a single stream. It is not safe
// for concurrent use; frames must be observed in order from one goroutine.
type Aggregator struct {
	threshold  int
	rank       map[string]int
	severities map[string]Severity

	active bool
	labels map[string]struct{}
	quiet  int
	frames int
}

// New validates cfg and returns an idle Aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.QuietFrameThreshold < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidThreshold, cfg.QuietFrameThreshold)
	}

	rank := make(map[string]int, len(cfg.SeverityRanking))
	for i, label := range cfg.SeverityRanking {
		if label == "" {
			return nil, fmt.Errorf("%w: empty label at position %d", ErrInvalidRanking, i)
		}
		if _, dup := rank[label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrInvalidRanking, label)
		}
		rank[label] = i
	}

	severities := make(map[string]Severity, len(cfg.SeverityMap))
	for label, sev := range cfg.SeverityMap {
		severities[label] = sev
	}

	return &Aggregator{
		threshold:  cfg.QuietFrameThreshold,
		rank:       rank,
		severities: severities,
		labels:     make(map[string]struct{}),
	}, nil
}

// Observe records the labels detected on one frame. It returns an incident
// and true only on the frame that completes the quiet period of an open
// episode. A nil slice and empty strings count as no detection.
func (a *Aggregator) Observe(frameLabels []string) (Incident, bool) {
	detected := false
	for _, label := range frameLabels {
		if label == "" {
			continue
		}
		if !detected && !a.active {
			a.open()
		}
		detected = true
		a.labels[label] = struct{}{}
	}

	if detected {
		a.quiet = 0
		a.frames++
		return Incident{}, false
	}

	if !a.active {
		return Incident{}, false
	}

	a.quiet++
	if a.quiet < a.threshold {
		return Incident{}, false
	}
	return a.close(), true
}

// Flush closes the open episode, if any, regardless of the quiet counter.
// It must be called once the stream ends so a trailing episode is not lost.
func (a *Aggregator) Flush() (Incident, bool) {
	if !a.active {
		return Incident{}, false
	}
	return a.close(), true
}

// Active reports whether an episode is open.
func (a *Aggregator) Active() bool {
	return a.active
}

// SeverityOf returns the configured severity of label.
func (a *Aggregator) SeverityOf(label string) Severity {
	if sev, ok := a.severities[label]; ok {
		return sev
	}
	return DefaultSeverity
}

func (a *Aggregator) open() {
	a.active = true
	a.quiet = 0
	a.frames = 0
	clear(a.labels)
}

func (a *Aggregator) close() Incident {
	labels := make([]string, 0, len(a.labels))
	for label := range a.labels {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		return a.less(labels[i], labels[j])
	})

	inc := Incident{
		Label:    labels[0],
		Severity: a.SeverityOf(labels[0]),
		Labels:   labels,
		Frames:   a.frames,
	}

	a.active = false
	a.quiet = 0
	a.frames = 0
	clear(a.labels)
	return inc
}

// less orders labels by ranking. Unranked labels come after all ranked ones
// and are ordered by name among themselves.
func (a *Aggregator) less(x, y string) bool {
	rx, okx := a.rank[x]
	ry, oky := a.rank[y]
	switch {
	case okx && oky:
		return rx < ry
	case okx != oky:
		return okx
	default:
		return x < y
	}
}
