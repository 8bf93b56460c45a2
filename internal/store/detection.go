package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ayusman/posewatch/internal/geometry"
)

// Keypoint is a stored keypoint in frame pixels.
type Keypoint struct {
	DetectionID string  `db:"detection_id" json:"-"`
	Name        string  `db:"name" json:"name"`
	X           float64 `db:"x" json:"x"`
	Y           float64 `db:"y" json:"y"`
	Score       float64 `db:"score" json:"score"`
}

// Detection is one recorded detection. Crop fields are zero for
// non-person detections.
type Detection struct {
	ID        string     `db:"id" json:"id"`
	SessionID string     `db:"session_id" json:"session_id"`
	Seq       uint64     `db:"seq" json:"seq"`
	Class     string     `db:"class" json:"class"`
	Score     float64    `db:"score" json:"score"`
	BoxX      float64    `db:"box_x" json:"-"`
	BoxY      float64    `db:"box_y" json:"-"`
	BoxWidth  float64    `db:"box_width" json:"-"`
	BoxHeight float64    `db:"box_height" json:"-"`
	CropX     int        `db:"crop_x" json:"-"`
	CropY     int        `db:"crop_y" json:"-"`
	CropSide  int        `db:"crop_side" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Keypoints []Keypoint `db:"-" json:"keypoints"`
}

// Box returns the detection box.
func (d *Detection) Box() geometry.Box {
	return geometry.Box{X: d.BoxX, Y: d.BoxY, Width: d.BoxWidth, Height: d.BoxHeight}
}

// SetBox stores a detection box.
func (d *Detection) SetBox(b geometry.Box) {
	d.BoxX, d.BoxY, d.BoxWidth, d.BoxHeight = b.X, b.Y, b.Width, b.Height
}

// Crop returns the pose crop region.
func (d *Detection) Crop() geometry.Region {
	return geometry.Region{X: d.CropX, Y: d.CropY, Side: d.CropSide}
}

// SetCrop stores the pose crop region.
func (d *Detection) SetCrop(r geometry.Region) {
	d.CropX, d.CropY, d.CropSide = r.X, r.Y, r.Side
}

// DetectionRepository provides access to recorded detections.
type DetectionRepository struct {
	db *sqlx.DB
}

// Detections returns the detection repository for this store.
func (s *Store) Detections() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

// Record stores the detections of one frame in a single transaction. IDs and
// timestamps are assigned here.
func (r *DetectionRepository) Record(ctx context.Context, sessionID string, seq uint64, dets []*Detection) error {
	if len(dets) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, d := range dets {
		d.ID = uuid.NewString()
		d.SessionID = sessionID
		d.Seq = seq
		d.CreatedAt = now

		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO detections (id, session_id, seq, class, score,
				box_x, box_y, box_width, box_height, crop_x, crop_y, crop_side, created_at)
			 VALUES (:id, :session_id, :seq, :class, :score,
				:box_x, :box_y, :box_width, :box_height, :crop_x, :crop_y, :crop_side, :created_at)`,
			d,
		); err != nil {
			return fmt.Errorf("insert detection: %w", err)
		}

		for i := range d.Keypoints {
			d.Keypoints[i].DetectionID = d.ID
			if _, err := tx.NamedExecContext(ctx,
				`INSERT INTO keypoints (detection_id, name, x, y, score)
				 VALUES (:detection_id, :name, :x, :y, :score)`,
				d.Keypoints[i],
			); err != nil {
				return fmt.Errorf("insert keypoint: %w", err)
			}
		}
	}

	return tx.Commit()
}

// ListBySession returns a session's detections in frame order with their
// keypoints. A non-positive limit returns all of them.
func (r *DetectionRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Detection, error) {
	if limit <= 0 {
		limit = -1
	}

	dets := []*Detection{}
	err := r.db.SelectContext(ctx, &dets,
		`SELECT id, session_id, seq, class, score, box_x, box_y, box_width, box_height,
			crop_x, crop_y, crop_side, created_at
		 FROM detections WHERE session_id = ? ORDER BY seq, rowid LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return dets, nil
	}

	ids := make([]string, len(dets))
	byID := make(map[string]*Detection, len(dets))
	for i, d := range dets {
		ids[i] = d.ID
		d.Keypoints = []Keypoint{}
		byID[d.ID] = d
	}

	query, args, err := sqlx.In(
		`SELECT detection_id, name, x, y, score FROM keypoints
		 WHERE detection_id IN (?) ORDER BY id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("build keypoint query: %w", err)
	}

	var kps []Keypoint
	if err := r.db.SelectContext(ctx, &kps, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, k := range kps {
		if d, ok := byID[k.DetectionID]; ok {
			d.Keypoints = append(d.Keypoints, k)
		}
	}

	return dets, nil
}

// CountBySession returns the number of detections recorded for a session.
func (r *DetectionRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM detections WHERE session_id = ?`, sessionID)
	return n, err
}
