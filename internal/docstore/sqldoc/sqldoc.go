// Package sqldoc stores documents as JSON rows in a single SQL table. It backs
// the document store with SQLite by default and Postgres through pgx.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vbonduro/fgsamples/internal/docstore"
)

// timeKey tags encoded time values inside the JSON payload.
const timeKey = "$time"

var _ docstore.Store = (*Store)(nil)

type Store struct {
	db        *sqlx.DB
	fieldExpr func(field string) string
	clock     *docstore.Clock
}

type Option func(*Store)

// WithClock replaces the clock used for ServerTimestamp fields.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = docstore.NewClock(now) }
}

// New wraps db. driverName is the database/sql driver it was opened with
// ("sqlite" or "pgx").
func New(db *sql.DB, driverName string, opts ...Option) *Store {
	s := &Store{
		db:    sqlx.NewDb(db, driverName),
		clock: docstore.NewClock(nil),
	}
	switch driverName {
	case "pgx", "postgres":
		s.fieldExpr = func(field string) string { return fmt.Sprintf("(data::jsonb)->>'%s'", field) }
	default:
		s.fieldExpr = func(field string) string { return fmt.Sprintf("json_extract(data, '$.%s')", field) }
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type row struct {
	Path string `db:"path"`
	ID   string `db:"id"`
	Data string `db:"data"`
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return nil, err
	}
	var r row
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT path, id, data FROM documents WHERE path = ?`), path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return r.document()
}

func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields, opts ...docstore.SetOption) error {
	parent, id, err := docstore.Split(path)
	if err != nil {
		return err
	}
	resolved, err := docstore.Resolve(fields, s.clock.Next())
	if err != nil {
		return err
	}

	if !docstore.ApplySetOptions(opts).Merge {
		return s.upsert(ctx, s.db, path, parent, id, resolved)
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.load(ctx, tx, path)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		return s.upsert(ctx, tx, path, parent, id, merge(current, resolved))
	})
}

func (s *Store) Update(ctx context.Context, path string, fields docstore.Fields) error {
	if _, _, err := docstore.Split(path); err != nil {
		return err
	}
	resolved, err := docstore.Resolve(fields, s.clock.Next())
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.load(ctx, tx, path)
		if err != nil {
			return err
		}
		data, err := encode(merge(current, resolved))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE documents SET data = ?, updated_at = ? WHERE path = ?`),
			data, time.Now().UTC(), path)
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context, collection string) ([]*docstore.Document, error) {
	return s.Query(ctx, collection)
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	if err := docstore.CheckCollection(collection); err != nil {
		return nil, err
	}

	var (
		where = []string{"parent = ?"}
		args  = []any{collection}
	)
	for _, f := range filters {
		if err := docstore.CheckField(f.Field); err != nil {
			return nil, err
		}
		expr := s.fieldExpr(f.Field)
		switch f.Op {
		case docstore.OpEqual:
			where = append(where, expr+" = ?")
			args = append(args, f.Value)
		case docstore.OpRange:
			where = append(where, expr+" >= ?", expr+" <= ?")
			args = append(args, f.Value, f.Upper)
		default:
			return nil, fmt.Errorf("unsupported filter op %d", f.Op)
		}
	}

	query := s.db.Rebind(`SELECT path, id, data FROM documents WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`)
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	docs := make([]*docstore.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			slog.Error("failed to roll back transaction", "error", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, tx *sqlx.Tx, path string) (docstore.Fields, error) {
	var r row
	err := tx.GetContext(ctx, &r, tx.Rebind(`SELECT path, id, data FROM documents WHERE path = ?`), path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return decode(r.Data)
}

func (s *Store) upsert(ctx context.Context, ex sqlx.ExtContext, path, parent, id string, fields docstore.Fields) error {
	data, err := encode(fields)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, ex.Rebind(`
		INSERT INTO documents (path, parent, id, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`), path, parent, id, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

func (r row) document() (*docstore.Document, error) {
	fields, err := decode(r.Data)
	if err != nil {
		return nil, err
	}
	return &docstore.Document{Path: r.Path, ID: r.ID, Fields: fields}, nil
}

func merge(current, changes docstore.Fields) docstore.Fields {
	out := make(docstore.Fields, len(current)+len(changes))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range changes {
		out[k] = v
	}
	return out
}

func encode(fields docstore.Fields) (string, error) {
	raw := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case time.Time:
			raw[k] = map[string]string{timeKey: val.UTC().Format(time.RFC3339Nano)}
		default:
			raw[k] = val
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(b), nil
}

func decode(data string) (docstore.Fields, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	fields := make(docstore.Fields, len(raw))
	for k, v := range raw {
		if m, ok := v.(map[string]any); ok {
			if ts, ok := m[timeKey].(string); ok {
				t, err := time.Parse(time.RFC3339Nano, ts)
				if err != nil {
					return nil, fmt.Errorf("failed to decode time field %q: %w", k, err)
				}
				fields[k] = t
				continue
			}
		}
		fields[k] = v
	}
	return fields, nil
}
