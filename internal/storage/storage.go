package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"photocull/internal/models"
)

// DefaultFile is the result store created in the output directory
const DefaultFile = "photocull.db"

// Storage handles persistence of photo records, groups and run history
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage creates a new Storage
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Current schema version
const schemaVersion = 2

// migrations defines all schema migrations
// Each migration should be idempotent (safe to run multiple times)
var migrations = []struct {
	version     int
	description string
	up          string
	column      string // Skip when this photos column already exists
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add emotion columns",
		up: `
			ALTER TABLE photos ADD COLUMN emotion TEXT DEFAULT '';
			ALTER TABLE photos ADD COLUMN emotion_score REAL;
		`,
		column: "emotion",
	},
}

// init creates the database schema
func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS photos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		capture_ts REAL NOT NULL DEFAULT 0,
		sharpness REAL,
		is_blurry INTEGER DEFAULT 0,
		exposure TEXT,
		technical_score REAL NOT NULL,
		is_unusable INTEGER DEFAULT 0,
		reasons TEXT NOT NULL DEFAULT '[]',
		group_id INTEGER DEFAULT -1,
		group_size INTEGER DEFAULT 1,
		rank_in_group INTEGER DEFAULT 1,
		is_group_best INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_photos_group_id ON photos(group_id);
	CREATE INDEX IF NOT EXISTS idx_photos_path ON photos(path);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		folder TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_photos INTEGER NOT NULL,
		unusable INTEGER NOT NULL,
		total_groups INTEGER NOT NULL,
		changed INTEGER NOT NULL
	);
	`

	_, err = s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if m.up == "" || (m.column != "" && s.columnExists("photos", m.column)) {
			s.setSchemaVersion(m.version)
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file location
func (s *Storage) Path() string {
	return s.dbPath
}

// SaveRecords saves or updates multiple records
func (s *Storage) SaveRecords(records []*models.PhotoRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO photos (path, capture_ts, sharpness, is_blurry, exposure, technical_score,
			is_unusable, reasons, group_id, group_size, rank_in_group, is_group_best, emotion, emotion_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var sharpness sql.NullFloat64
		blurry := false
		if rec.Sharpness != nil {
			sharpness = sql.NullFloat64{Float64: rec.Sharpness.Score, Valid: true}
			blurry = rec.Sharpness.IsBlurry
		}

		var exposure sql.NullString
		if rec.Exposure != nil {
			data, err := json.Marshal(rec.Exposure)
			if err != nil {
				return fmt.Errorf("failed to encode exposure for %s: %w", rec.Path, err)
			}
			exposure = sql.NullString{String: string(data), Valid: true}
		}

		reasons, err := json.Marshal(nonNil(rec.Reasons))
		if err != nil {
			return fmt.Errorf("failed to encode reasons for %s: %w", rec.Path, err)
		}

		var emotionScore sql.NullFloat64
		if rec.EmotionScore != nil {
			emotionScore = sql.NullFloat64{Float64: *rec.EmotionScore, Valid: true}
		}

		_, err = stmt.Exec(
			rec.Path,
			rec.CaptureTS,
			sharpness,
			boolInt(blurry),
			exposure,
			rec.TechnicalScore,
			boolInt(rec.IsUnusable),
			string(reasons),
			rec.GroupID,
			rec.GroupSize,
			rec.RankInGroup,
			boolInt(rec.IsGroupBest),
			rec.Emotion,
			emotionScore,
		)
		if err != nil {
			return fmt.Errorf("failed to insert photo %s: %w", rec.Path, err)
		}
	}

	return tx.Commit()
}

const recordColumns = `path, capture_ts, sharpness, is_blurry, exposure, technical_score, is_unusable,
	reasons, group_id, group_size, rank_in_group, is_group_best, emotion, emotion_score`

// LoadRecords returns the stored records under folder, sorted by path.
// An empty folder returns every record.
func (s *Storage) LoadRecords(folder string) ([]*models.PhotoRecord, error) {
	rows, err := s.db.Query(`SELECT ` + recordColumns + ` FROM photos ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if folder == "" {
		return records, nil
	}

	prefix := strings.TrimSuffix(filepath.Clean(folder), string(filepath.Separator)) + string(filepath.Separator)
	var filtered []*models.PhotoRecord
	for _, rec := range records {
		if strings.HasPrefix(rec.Path, prefix) {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

func scanRecords(rows *sql.Rows) ([]*models.PhotoRecord, error) {
	var records []*models.PhotoRecord
	for rows.Next() {
		rec := &models.PhotoRecord{}
		var sharpness, emotionScore sql.NullFloat64
		var exposure, emotion sql.NullString
		var reasons string
		var blurry, unusable, best int
		err := rows.Scan(
			&rec.Path,
			&rec.CaptureTS,
			&sharpness,
			&blurry,
			&exposure,
			&rec.TechnicalScore,
			&unusable,
			&reasons,
			&rec.GroupID,
			&rec.GroupSize,
			&rec.RankInGroup,
			&best,
			&emotion,
			&emotionScore,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if sharpness.Valid {
			rec.Sharpness = &models.SharpnessResult{Score: sharpness.Float64, IsBlurry: blurry == 1}
		}
		if exposure.Valid {
			rec.Exposure = &models.ExposureResult{}
			if err := json.Unmarshal([]byte(exposure.String), rec.Exposure); err != nil {
				return nil, fmt.Errorf("failed to decode exposure for %s: %w", rec.Path, err)
			}
		}
		if err := json.Unmarshal([]byte(reasons), &rec.Reasons); err != nil {
			return nil, fmt.Errorf("failed to decode reasons for %s: %w", rec.Path, err)
		}
		if len(rec.Reasons) == 0 {
			rec.Reasons = nil
		}
		rec.IsUnusable = unusable == 1
		rec.IsGroupBest = best == 1
		rec.Emotion = emotion.String
		if emotionScore.Valid {
			v := emotionScore.Float64
			rec.EmotionScore = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateGroups stores the capture time and group fields of records,
// leaving their scores untouched
func (s *Storage) UpdateGroups(records []*models.PhotoRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE photos SET capture_ts = ?, group_id = ?, group_size = ?, rank_in_group = ?, is_group_best = ?
		WHERE path = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.Exec(rec.CaptureTS, rec.GroupID, rec.GroupSize, rec.RankInGroup, boolInt(rec.IsGroupBest), rec.Path)
		if err != nil {
			return fmt.Errorf("failed to update group for %s: %w", rec.Path, err)
		}
	}

	return tx.Commit()
}

// GetRecordsByGroupID returns the members of a group, best first
func (s *Storage) GetRecordsByGroupID(groupID int) ([]*models.PhotoRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+recordColumns+`
		FROM photos
		WHERE group_id = ?
		ORDER BY technical_score DESC, path ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteRecord removes a photo from the database
func (s *Storage) DeleteRecord(path string) error {
	_, err := s.db.Exec("DELETE FROM photos WHERE path = ?", path)
	return err
}

// GetGroupCount returns the number of similarity groups
func (s *Storage) GetGroupCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(DISTINCT group_id) FROM photos WHERE group_id >= 0").Scan(&count)
	return count, err
}

// GetGroups returns the groups of records under folder (all records when
// folder is empty), sorted by size desc, then id. Group ids are assigned per
// grouping run, so callers mixing folders should scope by folder.
func (s *Storage) GetGroups(folder string) ([]models.GroupInfo, error) {
	records, err := s.LoadRecords(folder)
	if err != nil {
		return nil, err
	}

	byID := make(map[int][]*models.PhotoRecord)
	for _, rec := range records {
		if rec.GroupID >= 0 {
			byID[rec.GroupID] = append(byID[rec.GroupID], rec)
		}
	}

	groups := make([]models.GroupInfo, 0, len(byID))
	for id, members := range byID {
		sort.Slice(members, func(i, j int) bool {
			if members[i].RankInGroup != members[j].RankInGroup {
				return members[i].RankInGroup < members[j].RankInGroup
			}
			return members[i].Path < members[j].Path
		})

		info := models.GroupInfo{ID: id, Size: len(members)}
		for _, rec := range members {
			if rec.IsGroupBest {
				info.Best = append(info.Best, rec.Path)
			}
			info.Items = append(info.Items, models.GroupItem{
				Path:           rec.Path,
				TechnicalScore: rec.TechnicalScore,
				RankInGroup:    rec.RankInGroup,
				IsGroupBest:    rec.IsGroupBest,
			})
		}
		groups = append(groups, info)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Size != groups[j].Size {
			return groups[i].Size > groups[j].Size
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

// Run is one entry of the run history
type Run struct {
	ID          string
	Kind        string
	Folder      string
	StartedAt   time.Time
	TotalPhotos int
	Unusable    int
	TotalGroups int
	Changed     int // Sidecars written, for write-xmp runs
}

// RecordRun records a run in history and returns its id
func (s *Storage) RecordRun(run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, kind, folder, started_at, total_photos, unusable, total_groups, changed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Kind, run.Folder, run.StartedAt.UTC().Format(time.RFC3339), run.TotalPhotos, run.Unusable, run.TotalGroups, run.Changed)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return run.ID, nil
}

// Runs returns the most recent runs, newest first
func (s *Storage) Runs(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, folder, started_at, total_photos, unusable, total_groups, changed
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Folder, &started, &r.TotalPhotos, &r.Unusable, &r.TotalGroups, &r.Changed); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
