package incident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(t *testing.T, threshold int) *Aggregator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.QuietFrameThreshold = threshold
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

// feed observes every frame and returns the 1-based frame numbers that
// emitted an incident together with the incidents.
func feed(a *Aggregator, frames [][]string) ([]int, []Incident) {
	var at []int
	var out []Incident
	for i, f := range frames {
		if inc, ok := a.Observe(f); ok {
			at = append(at, i+1)
			out = append(out, inc)
		}
	}
	return at, out
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"zero threshold", Config{QuietFrameThreshold: 0}, ErrInvalidThreshold},
		{"negative threshold", Config{QuietFrameThreshold: -3}, ErrInvalidThreshold},
		{"duplicate ranking", Config{QuietFrameThreshold: 1, SeverityRanking: []string{"a", "b", "a"}}, ErrInvalidRanking},
		{"empty ranking label", Config{QuietFrameThreshold: 1, SeverityRanking: []string{"a", ""}}, ErrInvalidRanking},
		{"empty ranking is allowed", Config{QuietFrameThreshold: 1}, nil},
		{"defaults", DefaultConfig(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, a)
				return
			}
			require.NoError(t, err)
			assert.False(t, a.Active())
		})
	}
}

func TestObserve_TailgatingScenario(t *testing.T) {
	a := newTestAggregator(t, 5)
	frames := [][]string{
		{}, {"Tailgating"}, {"Tailgating"}, {}, {}, {}, {}, {},
	}

	// Frames 4 to 8 are the five quiet frames, so the episode closes on frame 8.
	at, incidents := feed(a, frames)
	require.Equal(t, []int{8}, at)
	assert.Equal(t, "Tailgating", incidents[0].Label)
	assert.Equal(t, SeverityMedium, incidents[0].Severity)
	assert.Equal(t, 2, incidents[0].Frames)
	assert.False(t, a.Active())

	_, ok := a.Observe([]string{})
	assert.False(t, ok, "quiet frame after close must not emit")
	_, ok = a.Flush()
	assert.False(t, ok, "flush after close must not emit")
}

func TestFlush_SingleFrameEpisode(t *testing.T) {
	a := newTestAggregator(t, 5)

	_, ok := a.Observe([]string{"Vehicle fire"})
	assert.False(t, ok)
	assert.True(t, a.Active())

	inc, ok := a.Flush()
	require.True(t, ok)
	assert.Equal(t, "Vehicle fire", inc.Label)
	assert.Equal(t, SeverityHigh, inc.Severity)
	assert.False(t, a.Active())
}

func TestFlush_IdleIsNoOp(t *testing.T) {
	a := newTestAggregator(t, 3)

	for i := 0; i < 3; i++ {
		_, ok := a.Flush()
		assert.False(t, ok)
	}
	assert.False(t, a.Active())

	// Still behaves normally afterwards.
	a.Observe([]string{"Tailgating"})
	_, ok := a.Observe(nil)
	assert.False(t, ok)
	assert.True(t, a.Active())
}

func TestObserve_MostSevereLabelWins(t *testing.T) {
	a := newTestAggregator(t, 1)

	a.Observe([]string{"Tailgating"})
	a.Observe([]string{"Vehicle fire"})
	inc, ok := a.Observe(nil)

	require.True(t, ok)
	assert.Equal(t, "Vehicle fire", inc.Label)
	assert.Equal(t, SeverityHigh, inc.Severity)
	assert.Equal(t, []string{"Vehicle fire", "Tailgating"}, inc.Labels)
}

func TestObserve_ExactThresholdEmitsOnce(t *testing.T) {
	for _, threshold := range []int{1, 2, 5, 10} {
		for _, run := range []int{1, 4, 20} {
			a := newTestAggregator(t, threshold)
			var frames [][]string
			for i := 0; i < run; i++ {
				frames = append(frames, []string{"Reckless driving"})
			}
			for i := 0; i < threshold; i++ {
				frames = append(frames, []string{})
			}

			at, incidents := feed(a, frames)
			require.Len(t, incidents, 1, "threshold=%d run=%d", threshold, run)
			assert.Equal(t, []int{run + threshold}, at)
			assert.Equal(t, run, incidents[0].Frames)
			assert.False(t, a.Active())
		}
	}
}

func TestObserve_ShortGapsDoNotSplitEpisode(t *testing.T) {
	a := newTestAggregator(t, 5)
	frames := [][]string{
		{"Tailgating"},
		{}, {}, {}, {},
		{"Reckless driving"},
		{}, {}, {}, {},
		{"Tailgating"},
	}

	at, _ := feed(a, frames)
	assert.Empty(t, at)
	assert.True(t, a.Active())

	inc, ok := a.Flush()
	require.True(t, ok)
	assert.Equal(t, "Reckless driving", inc.Label)
	assert.ElementsMatch(t, []string{"Tailgating", "Reckless driving"}, inc.Labels)
	assert.Equal(t, 3, inc.Frames)
}

func TestObserve_SeparateEpisodes(t *testing.T) {
	a := newTestAggregator(t, 2)
	frames := [][]string{
		{"Vehicular accident"}, {}, {},
		{}, {},
		{"Self-accident"}, {}, {},
	}

	at, incidents := feed(a, frames)
	require.Equal(t, []int{3, 8}, at)
	assert.Equal(t, "Vehicular accident", incidents[0].Label)
	assert.Equal(t, "Self-accident", incidents[1].Label)
	assert.Equal(t, SeverityLow, incidents[1].Severity)
	assert.Equal(t, []string{"Self-accident"}, incidents[1].Labels, "labels must not leak across episodes")
}

func TestObserve_EmptyInputPolicy(t *testing.T) {
	a := newTestAggregator(t, 2)

	_, ok := a.Observe(nil)
	assert.False(t, ok)
	_, ok = a.Observe([]string{"", ""})
	assert.False(t, ok)
	assert.False(t, a.Active(), "empty strings must not open an episode")

	a.Observe([]string{"", "Tailgating", "Tailgating"})
	a.Observe([]string{""})
	inc, ok := a.Observe(nil)
	require.True(t, ok)
	assert.Equal(t, []string{"Tailgating"}, inc.Labels)
}

func TestObserve_UnrankedLabelsSortLast(t *testing.T) {
	a := newTestAggregator(t, 1)

	a.Observe([]string{"Stalled vehicle", "Debris", "Self-accident"})
	inc, ok := a.Observe(nil)
	require.True(t, ok)
	assert.Equal(t, "Self-accident", inc.Label)
	assert.Equal(t, []string{"Self-accident", "Debris", "Stalled vehicle"}, inc.Labels)

	a.Observe([]string{"Stalled vehicle", "Debris"})
	inc, ok = a.Observe(nil)
	require.True(t, ok)
	assert.Equal(t, "Debris", inc.Label)
	assert.Equal(t, DefaultSeverity, inc.Severity)
}

func TestObserve_AtLeastOneIncidentPerDetectingStream(t *testing.T) {
	streams := [][][]string{
		{{"Tailgating"}},
		{{}, {}, {"Vehicle fire"}, {}},
		{{"Tailgating"}, {}, {}, {}, {}, {}, {"Tailgating"}},
		{{}, {"Multiple collision", "Tailgating"}, {}, {}, {}, {}, {}, {}, {}},
	}

	for i, frames := range streams {
		a := newTestAggregator(t, 5)
		_, incidents := feed(a, frames)
		if inc, ok := a.Flush(); ok {
			incidents = append(incidents, inc)
		}
		assert.NotEmpty(t, incidents, "stream %d", i)
		assert.False(t, a.Active())
	}
}

func TestNew_ConfigIsCopied(t *testing.T) {
	ranking := []string{"a", "b"}
	severities := map[string]Severity{"a": SeverityLow}
	a, err := New(Config{QuietFrameThreshold: 1, SeverityRanking: ranking, SeverityMap: severities})
	require.NoError(t, err)

	ranking[0], ranking[1] = "b", "a"
	severities["a"] = SeverityHigh

	a.Observe([]string{"a", "b"})
	inc, ok := a.Observe(nil)
	require.True(t, ok)
	assert.Equal(t, "a", inc.Label)
	assert.Equal(t, SeverityLow, inc.Severity)
}
