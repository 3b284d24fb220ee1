// Package sqlite implements store.Students on a single SQLite file, for local
// runs without a document database and for tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"student-records-backend/entity"
	"student-records-backend/store"
)

const columns = `id, fullName, email, email_index, phone, dob, gender, address, course, password, created_at, updated_at`

type SQLite struct {
	Db *sql.DB
}

var _ store.Students = (*SQLite)(nil)

// New opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func New(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS students (
			id          TEXT     PRIMARY KEY,
			fullName    TEXT     NOT NULL,
			email       TEXT     NOT NULL,
			email_index TEXT     NOT NULL UNIQUE,
			phone       TEXT     NOT NULL,
			dob         TEXT     NOT NULL,
			gender      TEXT     NOT NULL,
			address     TEXT     NOT NULL,
			course      TEXT     NOT NULL,
			password    TEXT     NOT NULL,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db}, nil
}

func (s *SQLite) Create(ctx context.Context, st *entity.Student) error {
	_, err := s.Db.ExecContext(ctx,
		`INSERT INTO students (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID.Hex(), st.FullName, st.Email, st.EmailIndex, st.Phone, st.Dob, st.Gender,
		st.Address, st.Course, st.Password, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		if isUnique(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("sqlite.Create: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id primitive.ObjectID) (*entity.Student, error) {
	return s.queryOne(ctx, `SELECT `+columns+` FROM students WHERE id = ?`, id.Hex())
}

func (s *SQLite) FindByEmailIndex(ctx context.Context, index string) (*entity.Student, error) {
	return s.queryOne(ctx, `SELECT `+columns+` FROM students WHERE email_index = ?`, index)
}

func (s *SQLite) queryOne(ctx context.Context, query string, args ...interface{}) (*entity.Student, error) {
	st, err := scan(s.Db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite.queryOne: %w", err)
	}
	return st, nil
}

func (s *SQLite) List(ctx context.Context) ([]*entity.Student, error) {
	rows, err := s.Db.QueryContext(ctx, `SELECT `+columns+` FROM students ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite.List: %w", err)
	}
	defer rows.Close()

	students := make([]*entity.Student, 0)
	for rows.Next() {
		st, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite.List: scan: %w", err)
		}
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.List: %w", err)
	}
	return students, nil
}

func (s *SQLite) Update(ctx context.Context, id primitive.ObjectID, fields store.Fields) (*entity.Student, error) {
	if len(fields) == 0 {
		return s.Get(ctx, id)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !store.Updatable[k] {
			return nil, fmt.Errorf("sqlite.Update: field %q is not updatable", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)+1)
	for i, k := range keys {
		sets[i] = k + " = ?"
		args = append(args, fields[k])
	}
	args = append(args, id.Hex())

	res, err := s.Db.ExecContext(ctx, `UPDATE students SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUnique(err) {
			return nil, store.ErrDuplicate
		}
		return nil, fmt.Errorf("sqlite.Update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, store.ErrNotFound
	}

	return s.Get(ctx, id)
}

func (s *SQLite) SetPassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	res, err := s.Db.ExecContext(ctx, `UPDATE students SET password = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), id.Hex())
	if err != nil {
		return fmt.Errorf("sqlite.SetPassword: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLite) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.Db.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, id.Hex())
	if err != nil {
		return fmt.Errorf("sqlite.Delete: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

func (s *SQLite) Close(context.Context) error {
	return s.Db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (*entity.Student, error) {
	var id string
	st := &entity.Student{}
	err := row.Scan(&id, &st.FullName, &st.Email, &st.EmailIndex, &st.Phone, &st.Dob, &st.Gender,
		&st.Address, &st.Course, &st.Password, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}

	st.ID, err = primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("bad id %q: %w", id, err)
	}
	return st, nil
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
