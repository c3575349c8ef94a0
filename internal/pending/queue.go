package pending

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Action kinds understood by the sync drainer.
const (
	KindMarkPresent = "MARK_PRESENT"
	KindAddStudent  = "ADD_STUDENT"
)

// Action is one retry-worthy operation that could not be confirmed remotely.
type Action struct {
	ID        int64
	Kind      string
	UID       string
	EventID   int64
	Payload   string
	CreatedAt int64
}

// MarkPayload is the JSON payload for a MARK_PRESENT action.
type MarkPayload struct {
	DeviceTimestamp string `json:"device_timestamp"`
}

// AddPayload is the JSON payload for an ADD_STUDENT action.
type AddPayload struct {
	Name   string `json:"name"`
	Branch string `json:"branch"`
	Year   string `json:"year"`
}

// Queue is the durable pending-action log.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

// NewQueue creates a queue over an open database.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

// EnqueueIfAbsent inserts the action unless one already exists for the same
// (kind, eventID, uid). The lookup and insert run in one transaction so
// concurrent enqueue attempts cannot produce duplicates. Returns true when a
// new row was inserted; a suppressed duplicate keeps the existing payload.
func (q *Queue) EnqueueIfAbsent(ctx context.Context, kind string, eventID int64, uid, payload string) (bool, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM offline_queue WHERE action = ? AND event_id = ? AND uid = ? LIMIT 1
	`, kind, eventID, uid).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO offline_queue (action, uid, event_id, payload, created_at)
		VALUES (?,?,?,?,?)
	`, kind, uid, eventID, payload, q.now().UnixMilli()); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Pending returns every queued action in FIFO order.
func (q *Queue) Pending(ctx context.Context) ([]Action, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, action, uid, event_id, payload, created_at
		FROM offline_queue ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.Kind, &a.UID, &a.EventID, &a.Payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// Remove deletes one action by id.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, id)
	return err
}

// Clear drops every action for the event.
func (q *Queue) Clear(ctx context.Context, eventID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE event_id = ?`, eventID)
	return err
}
