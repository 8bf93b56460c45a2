package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per camera enable/disable cycle
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			camera_id INTEGER NOT NULL DEFAULT 0,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			frames INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Detections table - filtered detections per processed frame
		`CREATE TABLE IF NOT EXISTS detections (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			class TEXT NOT NULL,
			score REAL NOT NULL,
			box_x REAL NOT NULL,
			box_y REAL NOT NULL,
			box_width REAL NOT NULL,
			box_height REAL NOT NULL,
			crop_x INTEGER NOT NULL DEFAULT 0,
			crop_y INTEGER NOT NULL DEFAULT 0,
			crop_side INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		// Keypoints table - confident keypoints for person detections, frame pixels
		`CREATE TABLE IF NOT EXISTS keypoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			detection_id TEXT NOT NULL REFERENCES detections(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			score REAL NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_detections_session_id ON detections(session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_keypoints_detection_id ON keypoints(detection_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
