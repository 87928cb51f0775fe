package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/vmcloud/glance/internal/glance"
	"github.com/vmcloud/glance/internal/model"
	"github.com/vmcloud/glance/internal/registry/migrations"
)

// SQLiteRegistry implements glance.Registry backed by SQLite. All
// mutating operations run inside a transaction so a failed request
// leaves the prior record state untouched, and concurrent writers are
// serialized by the database. Destroy is a soft delete: rows are never
// removed, which keeps every assigned id reserved forever.
type SQLiteRegistry struct {
	db    *sql.DB
	path  string
	clock glance.Clock
}

var _ glance.Registry = (*SQLiteRegistry)(nil)

// NewSQLiteRegistry opens (or creates) the registry database at path
// and brings its schema up to date. path can be ":memory:" for an
// in-process throwaway database. A nil clock uses the real time.
func NewSQLiteRegistry(path string, clock glance.Clock) (*SQLiteRegistry, error) {
	if clock == nil {
		clock = glance.RealClock{}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating registry schema: %w", err)
	}

	return &SQLiteRegistry{db: db, path: path, clock: clock}, nil
}

// OpenConnection opens and configures a SQLite database connection
// with appropriate PRAGMAs. Exported for tools and tests that need a
// properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for
	// backward compatibility) and wait for locks instead of failing
	// immediately under concurrent writers.
	// A single connection serializes writers and keeps ":memory:"
	// databases on one backing store.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	return db, nil
}

func (r *SQLiteRegistry) Create(ctx context.Context, values *model.ImageValues) (*model.Image, error) {
	status := model.StatusActive
	if values.Status != nil {
		status = *values.Status
	}
	if !model.ValidStatus(status) {
		return nil, &glance.InvalidStatusError{Status: status}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	if values.ID != nil {
		id = *values.ID
		var exists bool
		if err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM images WHERE id = ?)", id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking for existing image: %w", err)
		}
		if exists {
			return nil, &glance.DuplicateIDError{ID: id}
		}
	} else {
		// MAX over all rows, deleted included: ids increase
		// monotonically and are never reused.
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(id), 0) + 1 FROM images").Scan(&id); err != nil {
			return nil, fmt.Errorf("assigning image id: %w", err)
		}
	}

	now := r.clock.Now().UTC()
	img := &model.Image{
		ID:        id,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if values.Name != nil {
		img.Name = *values.Name
	}
	if values.Type != nil {
		img.Type = *values.Type
	}
	if values.IsPublic != nil {
		img.IsPublic = *values.IsPublic
	}
	if values.Size != nil {
		img.Size = *values.Size
	}
	if values.Location != nil {
		img.Location = *values.Location
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO images (id, name, status, type, is_public, size, location, created_at, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		img.ID, img.Name, string(img.Status), img.Type, img.IsPublic, img.Size, img.Location,
		img.CreatedAt, img.UpdatedAt)
	if err != nil {
		// Two writers racing on the same explicit id: the EXISTS check
		// above cannot see the other transaction, so the primary key
		// settles the winner.
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return nil, &glance.DuplicateIDError{ID: img.ID}
		}
		return nil, fmt.Errorf("inserting image: %w", err)
	}

	img.Properties = normalizeProperties(values.Properties, now)
	if err := insertProperties(ctx, tx, img.ID, img.Properties); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return img, nil
}

func (r *SQLiteRegistry) Update(ctx context.Context, id int64, values *model.ImageValues) (*model.Image, error) {
	if values.Status != nil && !model.ValidStatus(*values.Status) {
		return nil, &glance.InvalidStatusError{Status: *values.Status}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	img, err := getImage(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now().UTC()
	if values.Name != nil {
		img.Name = *values.Name
	}
	if values.Status != nil {
		img.Status = *values.Status
	}
	if values.Type != nil {
		img.Type = *values.Type
	}
	if values.IsPublic != nil {
		img.IsPublic = *values.IsPublic
	}
	if values.Size != nil {
		img.Size = *values.Size
	}
	if values.Location != nil {
		img.Location = *values.Location
	}
	img.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		UPDATE images
		SET name = ?, status = ?, type = ?, is_public = ?, size = ?, location = ?, updated_at = ?
		WHERE id = ?`,
		img.Name, string(img.Status), img.Type, img.IsPublic, img.Size, img.Location, img.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("updating image: %w", err)
	}

	if values.Properties != nil {
		// Wholesale replacement: retire the old collection and insert
		// freshly stamped entries. Retired rows keep the history but
		// never surface in reads.
		if err := retireProperties(ctx, tx, id, now); err != nil {
			return nil, err
		}
		img.Properties = normalizeProperties(values.Properties, now)
		if err := insertProperties(ctx, tx, id, img.Properties); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return img, nil
}

func (r *SQLiteRegistry) Destroy(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getImage(ctx, tx, id); err != nil {
		return err
	}

	now := r.clock.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE images SET deleted = 1, deleted_at = ?, updated_at = ? WHERE id = ?",
		now, now, id); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	if err := retireProperties(ctx, tx, id, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, id int64) (*model.Image, error) {
	return getImage(ctx, r.db, id)
}

func (r *SQLiteRegistry) ListPublic(ctx context.Context, isPublic bool) ([]*model.Image, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, status, type, is_public, size, location, created_at, updated_at, deleted_at, deleted
		FROM images
		WHERE is_public = ? AND deleted = 0
		ORDER BY id`, isPublic)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var out []*model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	for _, img := range out {
		props, err := loadProperties(ctx, r.db, img.ID)
		if err != nil {
			return nil, err
		}
		img.Properties = props
	}
	return out, nil
}

// Close closes the database connection.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// querier is the subset of *sql.DB and *sql.Tx the read helpers need.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// getImage loads the live record for id, NotFoundError when the id is
// absent or soft-deleted.
func getImage(ctx context.Context, q querier, id int64) (*model.Image, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, status, type, is_public, size, location, created_at, updated_at, deleted_at, deleted
		FROM images
		WHERE id = ? AND deleted = 0`, id)

	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &glance.NotFoundError{ID: id}
		}
		return nil, err
	}

	props, err := loadProperties(ctx, q, id)
	if err != nil {
		return nil, err
	}
	img.Properties = props
	return img, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (*model.Image, error) {
	var img model.Image
	var status string
	var deletedAt sql.NullTime
	err := s.Scan(&img.ID, &img.Name, &status, &img.Type, &img.IsPublic, &img.Size, &img.Location,
		&img.CreatedAt, &img.UpdatedAt, &deletedAt, &img.Deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning image row: %w", err)
	}
	img.Status = model.Status(status)
	if deletedAt.Valid {
		t := deletedAt.Time
		img.DeletedAt = &t
	}
	return &img, nil
}

func loadProperties(ctx context.Context, q querier, imageID int64) ([]model.Property, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT key, value, created_at, updated_at, deleted_at, deleted
		FROM image_properties
		WHERE image_id = ? AND deleted = 0
		ORDER BY id`, imageID)
	if err != nil {
		return nil, fmt.Errorf("loading image properties: %w", err)
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		var p model.Property
		var deletedAt sql.NullTime
		if err := rows.Scan(&p.Key, &p.Value, &p.CreatedAt, &p.UpdatedAt, &deletedAt, &p.Deleted); err != nil {
			return nil, fmt.Errorf("scanning property row: %w", err)
		}
		if deletedAt.Valid {
			t := deletedAt.Time
			p.DeletedAt = &t
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading image properties: %w", err)
	}
	return props, nil
}

func insertProperties(ctx context.Context, q querier, imageID int64, props []model.Property) error {
	for _, p := range props {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO image_properties (image_id, key, value, created_at, updated_at, deleted)
			VALUES (?, ?, ?, ?, ?, 0)`,
			imageID, p.Key, p.Value, p.CreatedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("inserting image property %q: %w", p.Key, err)
		}
	}
	return nil
}

func retireProperties(ctx context.Context, q querier, imageID int64, now time.Time) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE image_properties
		SET deleted = 1, deleted_at = ?, updated_at = ?
		WHERE image_id = ? AND deleted = 0`,
		now, now, imageID); err != nil {
		return fmt.Errorf("retiring image properties: %w", err)
	}
	return nil
}
