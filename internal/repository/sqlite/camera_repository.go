package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"trafficmonitor/internal/model"
	"trafficmonitor/internal/repository"

	"github.com/mattn/go-sqlite3"
)

// CameraRepository implements repository.CameraRepository for SQLite.
type CameraRepository struct {
	db *DB
}

// NewCameraRepository creates a new SQLite camera repository.
func NewCameraRepository(db *DB) *CameraRepository {
	return &CameraRepository{db: db}
}

// Insert adds a new camera record to the database. A taken name yields
// repository.ErrDuplicate.
func (r *CameraRepository) Insert(cam *model.Camera) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO cameras (camera_name, location, road_name, feed_url)
		VALUES (?, ?, ?, ?)
	`, cam.Name, cam.Location, cam.RoadName, cam.FeedURL)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("camera %q: %w", cam.Name, repository.ErrDuplicate)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert camera: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	cam.ID = id
	return id, nil
}

// GetByID retrieves a camera by its ID. It returns nil when none exists.
func (r *CameraRepository) GetByID(id int64) (*model.Camera, error) {
	return r.getOne(`
		SELECT camera_id, camera_name, location, road_name, feed_url
		FROM cameras WHERE camera_id = ?
	`, id)
}

// GetByName retrieves the camera with the given name. It returns nil when none exists.
func (r *CameraRepository) GetByName(name string) (*model.Camera, error) {
	return r.getOne(`
		SELECT camera_id, camera_name, location, road_name, feed_url
		FROM cameras WHERE camera_name = ?
	`, name)
}

func (r *CameraRepository) getOne(query string, arg interface{}) (*model.Camera, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var cam model.Camera
	err := r.db.Conn().QueryRow(query, arg).Scan(&cam.ID, &cam.Name, &cam.Location, &cam.RoadName, &cam.FeedURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return &cam, nil
}

// GetAll returns cameras matching filter ordered by name. A nil filter
// returns every camera.
func (r *CameraRepository) GetAll(filter *model.CameraFilter) ([]model.Camera, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildCameraWhere(filter)
	query := `
		SELECT camera_id, camera_name, location, road_name, feed_url
		FROM cameras
		WHERE 1=1` + where + `
		ORDER BY camera_name, camera_id`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	var cameras []model.Camera
	for rows.Next() {
		var cam model.Camera
		if err := rows.Scan(&cam.ID, &cam.Name, &cam.Location, &cam.RoadName, &cam.FeedURL); err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cameras = append(cameras, cam)
	}
	return cameras, rows.Err()
}

// GetTotalCount returns the number of cameras matching filter, ignoring limit and offset.
func (r *CameraRepository) GetTotalCount(filter *model.CameraFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildCameraWhere(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM cameras WHERE 1=1`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cameras: %w", err)
	}
	return count, nil
}

// Delete removes a camera. Its incidents and their notifications go with it.
func (r *CameraRepository) Delete(id int64) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM cameras WHERE camera_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete camera: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func buildCameraWhere(filter *model.CameraFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	if search == "" {
		return "", nil
	}

	// LIKE wildcards in the search term match literally.
	pattern := "%" + likeEscaper.Replace(search) + "%"
	return ` AND (LOWER(camera_name) LIKE ? ESCAPE '\' OR LOWER(road_name) LIKE ? ESCAPE '\')`, []interface{}{pattern, pattern}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
