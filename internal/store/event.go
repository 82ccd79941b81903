package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/event"
)

// DefaultEventLimit caps List when no limit is given.
const DefaultEventLimit = 100

// EventRepository persists pipeline events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record inserts e. Recording the same event twice is a no-op.
func (r *EventRepository) Record(e event.Event) error {
	detail := []byte("{}")
	if len(e.Detail) > 0 {
		var err error
		detail, err = json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.ID, err)
		}
	}

	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO events (id, kind, stage, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Stage, string(detail), e.Time.UTC(),
	)
	return err
}

// List returns the most recent events, newest first. An empty kind matches
// every kind; a limit below 1 means DefaultEventLimit.
func (r *EventRepository) List(kind event.Kind, limit int) ([]event.Event, error) {
	if limit < 1 {
		limit = DefaultEventLimit
	}

	query := `SELECT id, kind, stage, detail, created_at FROM events`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			e      event.Event
			kind   string
			detail string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Stage, &detail, &e.Time); err != nil {
			return nil, err
		}
		e.Kind = event.Kind(kind)
		if detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &e.Detail); err != nil {
				return nil, fmt.Errorf("decode event %s: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// Prune deletes events older than before and returns how many were removed.
func (r *EventRepository) Prune(before time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM events WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Consume records every event from ch until ch closes or ctx is done.
// Failures are logged and skipped.
func (r *EventRepository) Consume(ctx context.Context, ch <-chan event.Event, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := r.Record(e); err != nil {
				log.WithError(err).WithField("kind", e.Kind).Warn("Failed to record event")
			}
		}
	}
}
