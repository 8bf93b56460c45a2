package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ayusman/posewatch/internal/geometry"
)

// Session is one period of camera capture.
type Session struct {
	ID        string     `db:"id" json:"id"`
	CameraID  int        `db:"camera_id" json:"camera_id"`
	Width     int        `db:"width" json:"width"`
	Height    int        `db:"height" json:"height"`
	Frames    int        `db:"frames" json:"frames"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// Bounds returns the frame size recorded for the session.
func (s *Session) Bounds() geometry.Bounds {
	return geometry.Bounds{Width: s.Width, Height: s.Height}
}

// SessionRepository provides access to capture sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start inserts a new open session.
func (r *SessionRepository) Start(ctx context.Context, cameraID int, bounds geometry.Bounds) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		CameraID:  cameraID,
		Width:     bounds.Width,
		Height:    bounds.Height,
		StartedAt: time.Now().UTC(),
	}

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO sessions (id, camera_id, width, height, frames, started_at)
		 VALUES (:id, :camera_id, :width, :height, :frames, :started_at)`,
		sess,
	)
	if err != nil {
		return nil, err
	}

	return sess, nil
}

// End closes a session and stores its processed frame count.
func (r *SessionRepository) End(ctx context.Context, id string, frames int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, frames = ? WHERE id = ?`,
		time.Now().UTC(), frames, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	err := r.db.GetContext(ctx, sess,
		`SELECT id, camera_id, width, height, frames, started_at, ended_at
		 FROM sessions WHERE id = ?`,
		id,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return sess, nil
}

// List returns the most recent sessions first. A non-positive limit
// returns all of them.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}

	sessions := []*Session{}
	err := r.db.SelectContext(ctx, &sessions,
		`SELECT id, camera_id, width, height, frames, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// Delete removes a session and, through cascading keys, its detections.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
