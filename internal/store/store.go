package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"

	"github.com/limaJavier/timetabler/pkg/constraint"
	"github.com/limaJavier/timetabler/pkg/model"
)

var (
	ErrNotFound      = errors.New("timetable not found")
	ErrVersionExists = errors.New("timetable version already stored")
)

type Config struct {
	// SQLite database file; persistence is disabled when empty
	Path string `koanf:"path"`
}

func (config Config) Enabled() bool { return config.Path != "" }

// Version describes one stored version of a timetable.
type Version struct {
	Version int       `db:"version" json:"version"`
	State   string    `db:"state" json:"state"`
	Score   float64   `db:"score" json:"score"`
	SavedAt time.Time `db:"-" json:"saved_at"`
	Saved   int64     `db:"saved_at" json:"-"`
}

// Store persists timetables. Every Save adds a new version; stored versions are never
// overwritten.
type Store interface {
	Save(ctx context.Context, timetable *model.Timetable) error
	// Load returns the latest version of the timetable rebuilt against data.
	Load(ctx context.Context, id string, data *model.Dataset) (*model.Timetable, error)
	LoadVersion(ctx context.Context, id string, version int, data *model.Dataset) (*model.Timetable, error)
	Versions(ctx context.Context, id string) ([]Version, error)
	// Conflicts returns the hard-violation count recorded for each assignment of a version.
	Conflicts(ctx context.Context, id string, version int) (map[model.SessionID]int, error)
	Close() error
}

type timetableRow struct {
	Id      string  `db:"id"`
	Version int     `db:"version"`
	State   string  `db:"state"`
	Score   float64 `db:"score"`
	SavedAt int64   `db:"saved_at"`
}

type assignmentRow struct {
	TimetableId string `db:"timetable_id"`
	Version     int    `db:"version"`
	Id          string `db:"assignment_id"`
	Session     string `db:"session"`
	Slot        int    `db:"slot"`
	Room        string `db:"room"`
	Teacher     string `db:"teacher"`
	Substitute  bool   `db:"substitute"`
	Conflicts   int    `db:"conflicts"`
}

const schema = `
CREATE TABLE IF NOT EXISTS timetables (
	id TEXT NOT NULL,
	version INTEGER NOT NULL,
	state TEXT NOT NULL,
	score REAL NOT NULL,
	saved_at INTEGER NOT NULL,
	PRIMARY KEY (id, version)
);
CREATE TABLE IF NOT EXISTS assignments (
	timetable_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	assignment_id TEXT NOT NULL,
	session TEXT NOT NULL,
	slot INTEGER NOT NULL,
	room TEXT NOT NULL,
	teacher TEXT NOT NULL,
	substitute INTEGER NOT NULL,
	conflicts INTEGER NOT NULL,
	PRIMARY KEY (timetable_id, version, session),
	FOREIGN KEY (timetable_id, version) REFERENCES timetables (id, version)
);`

type sqliteStore struct {
	db      *sqlx.DB
	catalog constraint.Catalog
	now     func() time.Time
}

// NewSQLiteStore opens or creates the database at path. The catalog counts the hard
// violations recorded next to each stored assignment.
func NewSQLiteStore(path string, catalog constraint.Catalog) (Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection serializes writers, which SQLite requires anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &sqliteStore{db: db, catalog: catalog, now: time.Now}, nil
}

func (store *sqliteStore) Save(ctx context.Context, timetable *model.Timetable) (err error) {
	conflicts := map[model.SessionID]int{}
	for _, violation := range store.catalog.Evaluate(timetable).Hard {
		for _, session := range violation.Sessions {
			conflicts[session]++
		}
	}

	tx, err := store.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err = tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM timetables WHERE id = ? AND version = ?`, timetable.Id, timetable.Version); err != nil {
		return fmt.Errorf("check version: %w", err)
	} else if exists > 0 {
		return fmt.Errorf("%w: %s version %d", ErrVersionExists, timetable.Id, timetable.Version)
	}

	header := timetableRow{
		Id:      timetable.Id,
		Version: timetable.Version,
		State:   timetable.State.String(),
		Score:   timetable.Score,
		SavedAt: store.now().UnixMilli(),
	}
	if _, err = tx.NamedExecContext(ctx, `INSERT INTO timetables (id, version, state, score, saved_at)
VALUES (:id, :version, :state, :score, :saved_at)`, header); err != nil {
		return fmt.Errorf("insert timetable: %w", err)
	}

	rows := lo.Map(timetable.Assignments(), func(assignment model.Assignment, _ int) assignmentRow {
		return assignmentRow{
			TimetableId: timetable.Id,
			Version:     timetable.Version,
			Id:          assignment.Id,
			Session:     string(assignment.Session),
			Slot:        assignment.Slot,
			Room:        assignment.Room,
			Teacher:     assignment.Teacher,
			Substitute:  assignment.Substitute,
			Conflicts:   conflicts[assignment.Session],
		}
	})
	if len(rows) > 0 {
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO assignments (timetable_id, version, assignment_id, session, slot, room, teacher, substitute, conflicts)
VALUES (:timetable_id, :version, :assignment_id, :session, :slot, :room, :teacher, :substitute, :conflicts)`, rows); err != nil {
			return fmt.Errorf("insert assignments: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (store *sqliteStore) Load(ctx context.Context, id string, data *model.Dataset) (*model.Timetable, error) {
	var version sql.NullInt64
	if err := store.db.GetContext(ctx, &version, `SELECT MAX(version) FROM timetables WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("latest version of %s: %w", id, err)
	} else if !version.Valid {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return store.LoadVersion(ctx, id, int(version.Int64), data)
}

func (store *sqliteStore) LoadVersion(ctx context.Context, id string, version int, data *model.Dataset) (*model.Timetable, error) {
	var header timetableRow
	err := store.db.GetContext(ctx, &header, `SELECT id, version, state, score, saved_at FROM timetables WHERE id = ? AND version = ?`, id, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s version %d", ErrNotFound, id, version)
	} else if err != nil {
		return nil, fmt.Errorf("load %s version %d: %w", id, version, err)
	}

	rows, err := store.assignments(ctx, id, version)
	if err != nil {
		return nil, err
	}
	document := model.Document{
		Id:      header.Id,
		Version: header.Version,
		State:   header.State,
		Score:   header.Score,
		Assignments: lo.Map(rows, func(row assignmentRow, _ int) model.Assignment {
			return model.Assignment{
				Id:         row.Id,
				Session:    model.SessionID(row.Session),
				Slot:       row.Slot,
				Room:       row.Room,
				Teacher:    row.Teacher,
				Substitute: row.Substitute,
			}
		}),
	}
	timetable, err := model.FromDocument(document, data)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s version %d: %w", id, version, err)
	}
	return timetable, nil
}

func (store *sqliteStore) Versions(ctx context.Context, id string) ([]Version, error) {
	var versions []Version
	if err := store.db.SelectContext(ctx, &versions, `SELECT version, state, score, saved_at FROM timetables WHERE id = ? ORDER BY version`, id); err != nil {
		return nil, fmt.Errorf("versions of %s: %w", id, err)
	}
	for i := range versions {
		versions[i].SavedAt = time.UnixMilli(versions[i].Saved).UTC()
	}
	return versions, nil
}

func (store *sqliteStore) Conflicts(ctx context.Context, id string, version int) (map[model.SessionID]int, error) {
	rows, err := store.assignments(ctx, id, version)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(rows, func(row assignmentRow) (model.SessionID, int) {
		return model.SessionID(row.Session), row.Conflicts
	}), nil
}

func (store *sqliteStore) assignments(ctx context.Context, id string, version int) ([]assignmentRow, error) {
	var rows []assignmentRow
	if err := store.db.SelectContext(ctx, &rows, `SELECT timetable_id, version, assignment_id, session, slot, room, teacher, substitute, conflicts
FROM assignments WHERE timetable_id = ? AND version = ? ORDER BY slot, session`, id, version); err != nil {
		return nil, fmt.Errorf("assignments of %s version %d: %w", id, version, err)
	}
	return rows, nil
}

func (store *sqliteStore) Close() error {
	return store.db.Close()
}
