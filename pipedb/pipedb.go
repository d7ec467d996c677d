// Package pipedb reads the genotyping pipeline database: pipeline runs, their
// samples and the genders assigned to those samples by each gender method.
package pipedb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Schema creates the pipeline database tables and their reference rows.
//
//go:embed schema.sql
var Schema string

const (
	// DefaultGenderMethod is used when a query names no gender method.
	DefaultGenderMethod = "Supplied"
	// UnknownGender is reported for samples without a gender under the method.
	UnknownGender = "Not Available"
	// UnknownGenderCode is the code of UnknownGender.
	UnknownGenderCode = 3
)

// ErrRunNotFound is returned when a named pipeline run does not exist.
var ErrRunNotFound = errors.New("pipeline run not found")

// Sample is an included sample of a pipeline run, as written to sample JSON.
type Sample struct {
	Name           string `json:"sample"`
	SangerSampleID string `json:"sanger_sample_id,omitempty"`
	Beadchip       string `json:"beadchip,omitempty"`
	RowCol         string `json:"rowcol,omitempty"`
	GTC            string `json:"result"`
	Gender         string `json:"gender"`
	GenderCode     int    `json:"gender_code"`
}

// DB is a handle on a pipeline database.
type DB struct {
	db *sql.DB
}

// Open opens the SQLite pipeline database at path read-only. The file must exist.
func Open(path string) (*DB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, errors.Wrap(err, "pipeline database")
	}
	db, err := sql.Open("sqlite3", "file:"+abs+"?mode=ro")
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", abs)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "open %s", abs)
	}
	return &DB{db: db}, nil
}

// New wraps an existing connection, e.g. an in-memory database in tests.
func New(db *sql.DB) *DB {
	return &DB{db: db}
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// CreateSchema creates the tables and reference rows in a writable database.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return errors.Wrap(err, "create pipeline schema")
}

// RunExists reports whether a pipeline run with this name exists.
func (d *DB) RunExists(ctx context.Context, run string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM piperun WHERE name = ?`, run).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "look up run %s", run)
	}
	return n > 0, nil
}

const samplesQuery = `
SELECT s.name,
       COALESCE(s.sanger_sample_id, ''),
       COALESCE(s.beadchip, ''),
       COALESCE(s.rowcol, ''),
       COALESCE(s.gtc, ''),
       g.description,
       g.code
FROM sample s
JOIN dataset d ON d.id_dataset = s.id_dataset
JOIN piperun r ON r.id_piperun = d.id_piperun
LEFT JOIN (
    SELECT sg.id_sample, sg.id_gender
    FROM sample_gender sg
    JOIN method m ON m.id_method = sg.id_method
    WHERE m.name = ?
) sgm ON sgm.id_sample = s.id_sample
LEFT JOIN gender g ON g.id_gender = sgm.id_gender
WHERE r.name = ? AND s.include = 1
ORDER BY s.id_sample`

// Samples returns the included samples of run in database order, with genders
// from genderMethod (DefaultGenderMethod when empty). It returns ErrRunNotFound
// for an unknown run.
func (d *DB) Samples(ctx context.Context, run, genderMethod string) ([]Sample, error) {
	ok, err := d.RunExists(ctx, run)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrRunNotFound, "%s", run)
	}
	if genderMethod == "" {
		genderMethod = DefaultGenderMethod
	}
	rows, err := d.db.QueryContext(ctx, samplesQuery, genderMethod, run)
	if err != nil {
		return nil, errors.Wrapf(err, "query samples of %s", run)
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		var s Sample
		var gender sql.NullString
		var code sql.NullInt64
		if err := rows.Scan(&s.Name, &s.SangerSampleID, &s.Beadchip, &s.RowCol, &s.GTC, &gender, &code); err != nil {
			return nil, errors.Wrap(err, "scan sample")
		}
		s.Gender, s.GenderCode = UnknownGender, UnknownGenderCode
		if gender.Valid && code.Valid {
			s.Gender, s.GenderCode = gender.String, int(code.Int64)
		}
		samples = append(samples, s)
	}
	return samples, errors.Wrap(rows.Err(), "read samples")
}

// WriteSampleJSON writes the samples of run to path as a JSON array and returns
// how many were written. The file is written to a temporary name and renamed,
// so path never holds a partial document.
func (d *DB) WriteSampleJSON(ctx context.Context, run, genderMethod, path string) (int, error) {
	samples, err := d.Samples(ctx, run, genderMethod)
	if err != nil {
		return 0, err
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return 0, errors.Wrap(err, "encode samples")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return 0, errors.Wrap(err, "write sample json")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, errors.Wrap(err, "write sample json")
	}
	return len(samples), nil
}
