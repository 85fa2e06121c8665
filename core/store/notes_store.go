package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"querypanel/core/session"
)

type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// NotesStore runs against whatever session the request resolved, so the
// statements show up on that session's engine.
type NotesStore interface {
	List(ctx context.Context, s *session.Session, limit int) ([]Note, error)
	Get(ctx context.Context, s *session.Session, id int64) (*Note, error)
	Create(ctx context.Context, s *session.Session, title, body string) (*Note, error)
	Count(ctx context.Context, s *session.Session) (int64, error)
}

type notesStore struct{}

func NewNotesStore() NotesStore {
	return notesStore{}
}

const noteColumns = "id, title, body, archived, created_at"

func (notesStore) List(ctx context.Context, s *session.Session, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// Get returns nil without error when the note does not exist.
func (notesStore) Get(ctx context.Context, s *session.Session, id int64) (*Note, error) {
	row, err := s.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

func (notesStore) Create(ctx context.Context, s *session.Session, title, body string) (*Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("note title is required")
	}
	row, err := s.QueryRowContext(ctx, `INSERT INTO notes(title, body) VALUES($1, $2) RETURNING `+noteColumns, title, body)
	if err != nil {
		return nil, err
	}
	return scanNote(row)
}

func (notesStore) Count(ctx context.Context, s *session.Session) (int64, error) {
	row, err := s.QueryRowContext(ctx, `SELECT COUNT(1) FROM notes`)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (*Note, error) {
	var n Note
	var created timeValue
	if err := r.Scan(&n.ID, &n.Title, &n.Body, &n.Archived, &created); err != nil {
		return nil, err
	}
	n.CreatedAt = created.Time
	return &n, nil
}

// timeValue accepts both native timestamps and the text form SQLite returns
// for CURRENT_TIMESTAMP defaults.
type timeValue struct {
	Time time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *timeValue) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			t.Time = ts.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", raw)
}
