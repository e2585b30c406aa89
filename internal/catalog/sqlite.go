// Package catalog records data sets, operations, and check results in SQLite.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"

	"redun-go/internal/catalog/migrations"
	"redun-go/internal/redun"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteCatalog implements redun.Catalog using SQLite.
type SQLiteCatalog struct {
	db    *sql.DB
	clock redun.Clock
	path  string
}

// NewSQLiteCatalog opens the catalog at path, which can be a file path or
// ":memory:". A nil clock uses the real time. The schema is not applied; see
// Migrate.
func NewSQLiteCatalog(path string, clock redun.Clock) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = redun.RealClock{}
	}
	return &SQLiteCatalog{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens a SQLite connection with foreign keys enforced. The
// pool is limited to one connection so that PRAGMAs and in-memory databases
// apply to every statement.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Data sets

const dataSetColumns = `id, name, mode, primary_path, secondary_path, redundancy_path, size, blocks, created_at, updated_at`

func (c *SQLiteCatalog) CreateDataSet(ds *redun.DataSet) error {
	_, err := c.db.Exec(`INSERT INTO datasets (`+dataSetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.ID, ds.Name, ds.Mode, ds.PrimaryPath, ds.SecondaryPath, ds.RedundancyPath,
		ds.Size, ds.Blocks, ds.CreatedAt.UTC(), ds.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating data set %s: %w", ds.Name, err)
	}
	return nil
}

func (c *SQLiteCatalog) UpdateDataSet(ds *redun.DataSet) error {
	res, err := c.db.Exec(`UPDATE datasets SET redundancy_path = ?, blocks = ?, updated_at = ? WHERE id = ?`,
		ds.RedundancyPath, ds.Blocks, ds.UpdatedAt.UTC(), ds.ID)
	if err != nil {
		return fmt.Errorf("updating data set %s: %w", ds.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating data set %s: no row with id %s", ds.Name, ds.ID)
	}
	return nil
}

func (c *SQLiteCatalog) FindDataSet(name string) (*redun.DataSet, error) {
	row := c.db.QueryRow(`SELECT `+dataSetColumns+` FROM datasets WHERE name = ?`, name)
	ds, err := scanDataSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding data set %s: %w", name, err)
	}
	return ds, nil
}

func (c *SQLiteCatalog) ListDataSets() ([]*redun.DataSet, error) {
	rows, err := c.db.Query(`SELECT ` + dataSetColumns + ` FROM datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing data sets: %w", err)
	}
	defer rows.Close()

	var result []*redun.DataSet
	for rows.Next() {
		ds, err := scanDataSet(rows)
		if err != nil {
			return nil, fmt.Errorf("listing data sets: %w", err)
		}
		result = append(result, ds)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataSet(s scanner) (*redun.DataSet, error) {
	var ds redun.DataSet
	err := s.Scan(&ds.ID, &ds.Name, &ds.Mode, &ds.PrimaryPath, &ds.SecondaryPath, &ds.RedundancyPath,
		&ds.Size, &ds.Blocks, &ds.CreatedAt, &ds.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// Operations

func (c *SQLiteCatalog) CreateOperation(operation, parameters string) (*redun.Operation, error) {
	op := &redun.Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  c.clock.Now().UTC(),
	}
	res, err := c.db.Exec(`INSERT INTO operations (operation, parameters, status, started_at) VALUES (?, ?, ?, ?)`,
		op.Operation, op.Parameters, op.Status, op.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

func (c *SQLiteCatalog) FinishOperation(id int64, status string) error {
	_, err := c.db.Exec(`UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`,
		status, c.clock.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) ListOperations(limit int) ([]*redun.Operation, error) {
	rows, err := c.db.Query(`SELECT id, operation, parameters, status, started_at, finished_at
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*redun.Operation
	for rows.Next() {
		var op redun.Operation
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &op.FinishedAt); err != nil {
			return nil, fmt.Errorf("listing operations: %w", err)
		}
		result = append(result, &op)
	}
	return result, rows.Err()
}

func (c *SQLiteCatalog) MaxOperationID() (int64, error) {
	var id int64
	if err := c.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max operation ID: %w", err)
	}
	return id, nil
}

// Checks

func (c *SQLiteCatalog) RecordCheck(r *redun.CheckResult) error {
	res, err := c.db.Exec(`INSERT INTO checks (dataset_id, checked_at, healthy, recoverable, damaged) VALUES (?, ?, ?, ?, ?)`,
		r.DataSetID, r.CheckedAt.UTC(), r.Healthy, r.Recoverable, r.Damaged)
	if err != nil {
		return fmt.Errorf("recording check: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("recording check: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) ListChecks(dataSetID string, limit int) ([]*redun.CheckResult, error) {
	rows, err := c.db.Query(`SELECT id, dataset_id, checked_at, healthy, recoverable, damaged
		FROM checks WHERE dataset_id = ? ORDER BY checked_at DESC, id DESC LIMIT ?`, dataSetID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing checks: %w", err)
	}
	defer rows.Close()

	var result []*redun.CheckResult
	for rows.Next() {
		var r redun.CheckResult
		if err := rows.Scan(&r.ID, &r.DataSetID, &r.CheckedAt, &r.Healthy, &r.Recoverable, &r.Damaged); err != nil {
			return nil, fmt.Errorf("listing checks: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// Path returns the catalog file path (or ":memory:").
func (c *SQLiteCatalog) Path() string {
	return c.path
}

// Migrate brings the schema up to date.
func (c *SQLiteCatalog) Migrate() error {
	return migrations.MigrateUp(c.db)
}

// CheckMigrations verifies the schema is up to date.
func (c *SQLiteCatalog) CheckMigrations() error {
	return migrations.CheckStatus(c.db)
}

// BackupTo writes a complete copy of the catalog to destPath using VACUUM INTO.
func (c *SQLiteCatalog) BackupTo(destPath string) error {
	if _, err := c.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up catalog: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

var _ redun.Catalog = (*SQLiteCatalog)(nil)
