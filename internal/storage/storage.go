package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mediadupfinder/internal/models"
)

// Storage persists the last published result of every asset class so that
// list and clean work across processes
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage opens (and creates if needed) the database at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps sqlite writes serialized
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Current schema version
const schemaVersion = 2

// migrations run in order on top of the base schema.
// Each migration must be idempotent.
var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // base schema
	},
	{
		version:     2,
		description: "Add month buckets for screenshot and screen recording classes",
		up: `
			CREATE TABLE IF NOT EXISTS bucket_members (
				class TEXT NOT NULL,
				year INTEGER NOT NULL,
				month INTEGER NOT NULL,
				asset_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				PRIMARY KEY (class, asset_id)
			);
			CREATE INDEX IF NOT EXISTS idx_bucket_members_month ON bucket_members(class, year, month);
		`,
	},
}

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
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		kind INTEGER NOT NULL,
		subtype INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		creation_date DATETIME NOT NULL,
		duration REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS dup_groups (
		id TEXT PRIMARY KEY,
		class TEXT NOT NULL,
		position INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_dup_groups_class ON dup_groups(class);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL REFERENCES dup_groups(id) ON DELETE CASCADE,
		asset_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		selected INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (group_id, asset_id)
	);

	CREATE INDEX IF NOT EXISTS idx_group_members_asset ON group_members(asset_id);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		class TEXT NOT NULL,
		scanned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_assets INTEGER NOT NULL,
		total_groups INTEGER NOT NULL,
		total_duplicates INTEGER NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Storage) migrate() error {
	current := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if m.up != "" {
			if _, err := s.db.Exec(m.up); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
			}
		}
		s.setSchemaVersion(m.version)
	}
	return nil
}

func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// tableExists checks if a table exists
func (s *Storage) tableExists(table string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?
	`, table).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveResult replaces the stored result of class with groups and buckets
func (s *Storage) SaveResult(class models.AssetClass, groups []models.DuplicateGroup, buckets []models.MonthBucket) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM group_members WHERE group_id IN (SELECT id FROM dup_groups WHERE class = ?)`, class); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM dup_groups WHERE class = ?`, class); err != nil {
		return fmt.Errorf("failed to clear groups: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM bucket_members WHERE class = ?`, class); err != nil {
		return fmt.Errorf("failed to clear buckets: %w", err)
	}

	assetStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO assets (id, kind, subtype, path, file_size, creation_date, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer assetStmt.Close()

	groupStmt, err := tx.Prepare(`INSERT INTO dup_groups (id, class, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer groupStmt.Close()

	memberStmt, err := tx.Prepare(`
		INSERT INTO group_members (group_id, asset_id, position, selected)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer memberStmt.Close()

	bucketStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bucket_members (class, year, month, asset_id, position)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer bucketStmt.Close()

	saveAsset := func(a models.AssetRef) error {
		_, err := assetStmt.Exec(a.ID, int(a.Kind), int(a.Subtype), a.Path, a.FileSize, a.CreationDate.UTC(), a.DurationSeconds)
		if err != nil {
			return fmt.Errorf("failed to save asset %s: %w", a.ID, err)
		}
		return nil
	}

	for gi, g := range groups {
		if _, err := groupStmt.Exec(g.ID, class, gi); err != nil {
			return fmt.Errorf("failed to save group %s: %w", g.ID, err)
		}
		for mi, m := range g.Members {
			if err := saveAsset(m.Asset); err != nil {
				return err
			}
			if _, err := memberStmt.Exec(g.ID, m.Asset.ID, mi, boolToInt(m.Selected)); err != nil {
				return fmt.Errorf("failed to save member %s: %w", m.Asset.ID, err)
			}
		}
	}

	for _, b := range buckets {
		for pos, a := range b.Members {
			if err := saveAsset(a); err != nil {
				return err
			}
			if _, err := bucketStmt.Exec(class, b.Year, int(b.Month), a.ID, pos); err != nil {
				return fmt.Errorf("failed to save bucket member %s: %w", a.ID, err)
			}
		}
	}

	return tx.Commit()
}

// LoadResult returns the stored result of class
func (s *Storage) LoadResult(class models.AssetClass) ([]models.DuplicateGroup, []models.MonthBucket, error) {
	groups, err := s.loadGroups(class)
	if err != nil {
		return nil, nil, err
	}
	buckets, err := s.loadBuckets(class)
	if err != nil {
		return nil, nil, err
	}
	return groups, buckets, nil
}

const assetColumns = `a.id, a.kind, a.subtype, a.path, a.file_size, a.creation_date, a.duration`

func (s *Storage) loadGroups(class models.AssetClass) ([]models.DuplicateGroup, error) {
	rows, err := s.db.Query(`
		SELECT g.id, m.selected, `+assetColumns+`
		FROM dup_groups g
		JOIN group_members m ON m.group_id = g.id
		JOIN assets a ON a.id = m.asset_id
		WHERE g.class = ?
		ORDER BY g.position, m.position
	`, class)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []models.DuplicateGroup
	for rows.Next() {
		var (
			groupID       string
			selected      int
			a             models.AssetRef
			kind, subtype int
		)
		err := rows.Scan(&groupID, &selected, &a.ID, &kind, &subtype, &a.Path, &a.FileSize, &a.CreationDate, &a.DurationSeconds)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		a.Kind = models.Kind(kind)
		a.Subtype = models.Subtype(subtype)

		if n := len(groups); n == 0 || groups[n-1].ID != groupID {
			groups = append(groups, models.DuplicateGroup{ID: groupID})
		}
		g := &groups[len(groups)-1]
		g.Members = append(g.Members, models.Member{Asset: a, Selected: selected == 1})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// a group must keep at least two members
	out := groups[:0]
	for _, g := range groups {
		if len(g.Members) >= 2 {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Storage) loadBuckets(class models.AssetClass) ([]models.MonthBucket, error) {
	rows, err := s.db.Query(`
		SELECT b.year, b.month, `+assetColumns+`
		FROM bucket_members b
		JOIN assets a ON a.id = b.asset_id
		WHERE b.class = ?
		ORDER BY b.year DESC, b.month DESC, b.position
	`, class)
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer rows.Close()

	var buckets []models.MonthBucket
	for rows.Next() {
		var (
			year, month   int
			a             models.AssetRef
			kind, subtype int
		)
		err := rows.Scan(&year, &month, &a.ID, &kind, &subtype, &a.Path, &a.FileSize, &a.CreationDate, &a.DurationSeconds)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		a.Kind = models.Kind(kind)
		a.Subtype = models.Subtype(subtype)

		n := len(buckets)
		if n == 0 || buckets[n-1].Year != year || buckets[n-1].Month != time.Month(month) {
			buckets = append(buckets, models.MonthBucket{
				Title: fmt.Sprintf("%s %d", time.Month(month), year),
				Year:  year,
				Month: time.Month(month),
			})
		}
		b := &buckets[len(buckets)-1]
		b.Members = append(b.Members, a)
	}
	return buckets, rows.Err()
}

// RecordScan records a finished scan in history
func (s *Storage) RecordScan(class models.AssetClass, totalAssets, totalGroups, totalDuplicates int, cancelled bool) error {
	_, err := s.db.Exec(`
		INSERT INTO scan_history (class, total_assets, total_groups, total_duplicates, cancelled)
		VALUES (?, ?, ?, ?, ?)
	`, class, totalAssets, totalGroups, totalDuplicates, boolToInt(cancelled))
	return err
}

// ScanRecord is one row of scan history
type ScanRecord struct {
	Class           models.AssetClass
	ScannedAt       time.Time
	TotalAssets     int
	TotalGroups     int
	TotalDuplicates int
	Cancelled       bool
}

// ScanHistory returns the most recent scans of class, newest first
func (s *Storage) ScanHistory(class models.AssetClass, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT class, scanned_at, total_assets, total_groups, total_duplicates, cancelled
		FROM scan_history
		WHERE class = ?
		ORDER BY id DESC
		LIMIT ?
	`, class, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		var r ScanRecord
		var cancelled int
		if err := rows.Scan(&r.Class, &r.ScannedAt, &r.TotalAssets, &r.TotalGroups, &r.TotalDuplicates, &cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Cancelled = cancelled == 1
		records = append(records, r)
	}
	return records, rows.Err()
}

// GroupCount returns the number of stored duplicate groups of class
func (s *Storage) GroupCount(class models.AssetClass) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM dup_groups WHERE class = ?`, class).Scan(&count)
	return count, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
