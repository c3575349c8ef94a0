package roster

import (
	"context"
	"database/sql"
	"errors"
)

// Store persists the local roster cache.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the student for (eventID, uid), or nil when none exists.
func (s *Store) Get(ctx context.Context, eventID int64, uid string) (*Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, uid, name, branch, year, status, timestamp
		FROM students WHERE event_id = ? AND uid = ? LIMIT 1
	`, eventID, uid)
	var st Student
	if err := row.Scan(&st.EventID, &st.UID, &st.Name, &st.Branch, &st.Year, &st.Status, &st.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// Upsert writes one student row, replacing any existing row for the key.
func (s *Store) Upsert(ctx context.Context, st Student) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (event_id, uid, name, branch, year, status, timestamp)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT (event_id, uid) DO UPDATE SET
			name = excluded.name,
			branch = excluded.branch,
			year = excluded.year,
			status = excluded.status,
			timestamp = excluded.timestamp
	`, st.EventID, st.UID, st.Name, st.Branch, st.Year, st.Status, st.Timestamp)
	return err
}

// UpdateStatus sets status and timestamp for an existing row.
func (s *Store) UpdateStatus(ctx context.Context, eventID int64, uid, status, timestamp string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE students SET status = ?, timestamp = ? WHERE event_id = ? AND uid = ?
	`, status, timestamp, eventID, uid)
	return err
}

// InsertAll bulk-loads students inside a single transaction (roster import).
func (s *Store) InsertAll(ctx context.Context, students []Student) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO students (event_id, uid, name, branch, year, status, timestamp)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT (event_id, uid) DO UPDATE SET
			name = excluded.name,
			branch = excluded.branch,
			year = excluded.year,
			status = excluded.status,
			timestamp = excluded.timestamp
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, st := range students {
		if st.Status == "" {
			st.Status = StatusAbsent
		}
		if _, err := stmt.ExecContext(ctx, st.EventID, st.UID, st.Name, st.Branch, st.Year, st.Status, st.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MergeSnapshot folds a server roster snapshot into the local cache. Rows
// whose local state is Queued are left untouched: the pending confirmation
// owns them until the drainer resolves it.
func (s *Store) MergeSnapshot(ctx context.Context, eventID int64, students []Student) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, st := range students {
		st.EventID = eventID
		if st.Status == "" {
			st.Status = StatusAbsent
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO students (event_id, uid, name, branch, year, status, timestamp)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT (event_id, uid) DO UPDATE SET
				name = excluded.name,
				branch = excluded.branch,
				year = excluded.year,
				status = excluded.status,
				timestamp = excluded.timestamp
			WHERE students.status != ?
		`, st.EventID, st.UID, st.Name, st.Branch, st.Year, st.Status, st.Timestamp, StatusQueued); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// All returns every student for the event.
func (s *Store) All(ctx context.Context, eventID int64) ([]Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, uid, name, branch, year, status, timestamp
		FROM students WHERE event_id = ? ORDER BY name, uid
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStudents(rows)
}

// Search matches name or uid by substring.
func (s *Store) Search(ctx context.Context, eventID int64, query string) ([]Student, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, uid, name, branch, year, status, timestamp
		FROM students
		WHERE event_id = ? AND (name LIKE ? OR uid LIKE ?)
		ORDER BY name, uid
	`, eventID, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStudents(rows)
}

// EventStats computes total/present/remaining from the local cache.
func (s *Store) EventStats(ctx context.Context, eventID int64) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM students WHERE event_id = ?
	`, StatusPresent, eventID)
	if err := row.Scan(&st.Total, &st.Present); err != nil {
		return Stats{}, err
	}
	st.Remaining = st.Total - st.Present
	return st, nil
}

// Reset removes every student for the event.
func (s *Store) Reset(ctx context.Context, eventID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE event_id = ?`, eventID)
	return err
}

func scanStudents(rows *sql.Rows) ([]Student, error) {
	var res []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.EventID, &st.UID, &st.Name, &st.Branch, &st.Year, &st.Status, &st.Timestamp); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}
