// Command replay runs a recorded sequence of per-frame detector labels
// through the incident aggregator and prints every incident it emits.
// Input is JSON lines, one array of labels per frame:
//
//	["Tailgating"]
//	["Tailgating", "Vehicle fire"]
//	[]
//
// With -db and -camera the incidents are also stored like live ones.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
	"trafficmonitor/internal/config"
	"trafficmonitor/internal/incident"
	"trafficmonitor/internal/model"
	"trafficmonitor/internal/repository"
	"trafficmonitor/internal/repository/sqlite"

	"github.com/google/uuid"
)

// replayedIncident is one output line.
type replayedIncident struct {
	Frame    int      `json:"frame"`
	Label    string   `json:"label"`
	Severity string   `json:"severity"`
	Labels   []string `json:"labels"`
	Frames   int      `json:"frames"`
	Flushed  bool     `json:"flushed"`
	ID       int64    `json:"incident_id,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("replay: %v", err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	cfg := config.Load()

	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	input := fs.String("input", "-", "JSON lines file with one label array per frame (- for stdin)")
	dbPath := fs.String("db", "", "Database to store incidents in (empty for a dry run)")
	cameraName := fs.String("camera", "", "Camera the incidents belong to; created if missing")
	roadName := fs.String("road", "", "Road name for a newly created camera")
	threshold := fs.Int("quiet", cfg.QuietFrameThreshold, "Empty frames that close an incident")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.QuietFrameThreshold = *threshold

	aggCfg, err := cfg.AggregatorConfig()
	if err != nil {
		return err
	}
	agg, err := incident.New(aggCfg)
	if err != nil {
		return err
	}

	var r io.Reader = stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	frames, err := readFrames(r)
	if err != nil {
		return err
	}

	var store *incidentStore
	if *dbPath != "" {
		if *cameraName == "" {
			return errors.New("-camera is required with -db")
		}
		db, err := sqlite.New(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		store, err = newIncidentStore(sqlite.NewIncidentRepository(db), sqlite.NewCameraRepository(db), *cameraName, *roadName)
		if err != nil {
			return err
		}
	}

	return replay(agg, frames, store, json.NewEncoder(stdout))
}

func replay(agg *incident.Aggregator, frames [][]string, store *incidentStore, enc *json.Encoder) error {
	emit := func(frame int, inc incident.Incident, flushed bool) error {
		out := replayedIncident{
			Frame:    frame,
			Label:    inc.Label,
			Severity: inc.Severity.String(),
			Labels:   inc.Labels,
			Frames:   inc.Frames,
			Flushed:  flushed,
		}
		if store != nil {
			id, err := store.save(inc)
			if err != nil {
				return err
			}
			out.ID = id
		}
		return enc.Encode(out)
	}

	for i, labels := range frames {
		if inc, ok := agg.Observe(labels); ok {
			if err := emit(i+1, inc, false); err != nil {
				return err
			}
		}
	}
	if inc, ok := agg.Flush(); ok {
		return emit(len(frames), inc, true)
	}
	return nil
}

// readFrames parses one JSON label array per line. Blank lines are skipped
// and null is an empty frame.
func readFrames(r io.Reader) ([][]string, error) {
	var frames [][]string

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var labels []string
		if err := json.Unmarshal([]byte(text), &labels); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, labels)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return frames, nil
}

type incidentStore struct {
	incidents repository.IncidentRepository
	camera    *model.Camera
	sessionID string
}

func newIncidentStore(incidents repository.IncidentRepository, cameras repository.CameraRepository, name, road string) (*incidentStore, error) {
	camera, err := cameras.GetByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up camera %s: %w", name, err)
	}
	if camera == nil {
		camera = &model.Camera{Name: name, RoadName: road, FeedURL: "replay://" + name}
		if _, err := cameras.Insert(camera); err != nil {
			return nil, fmt.Errorf("failed to create camera %s: %w", name, err)
		}
	}

	return &incidentStore{
		incidents: incidents,
		camera:    camera,
		sessionID: uuid.NewString(),
	}, nil
}

func (s *incidentStore) save(inc incident.Incident) (int64, error) {
	rec := &model.Incident{
		CameraID:     s.camera.ID,
		IncidentType: inc.Label,
		Severity:     inc.Severity.String(),
		Timestamp:    time.Now().UTC(),
		SessionID:    s.sessionID,
	}
	id, err := s.incidents.Insert(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to store incident: %w", err)
	}
	return id, nil
}
