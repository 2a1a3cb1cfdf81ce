package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"solarshare/internal/eventing"
	"solarshare/internal/eventlog"
)

// Store is a postgres-backed segmented event log. Appends are issued by a
// single writer; concurrent readers only ever see committed records.
type Store struct {
	db          *sql.DB
	segmentSize int64
}

// NewStore constructs a store over an open database handle.
func NewStore(db *sql.DB, segmentSize int64) (*Store, error) {
	if db == nil {
		return nil, errors.New("eventlog postgres: nil db")
	}
	if segmentSize <= 0 {
		return nil, eventlog.ErrInvalidSegmentSize
	}
	return &Store{db: db, segmentSize: segmentSize}, nil
}

// EnsureSchema creates the event log tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS event_log (
	seq BIGINT PRIMARY KEY,
	segment BIGINT NOT NULL,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS event_log_segment_idx ON event_log (segment, seq);
CREATE TABLE IF NOT EXISTS event_log_segments (
	segment BIGINT PRIMARY KEY,
	opened_at TIMESTAMPTZ NOT NULL
)`)
	return err
}

// Append inserts the next record and opens its segment on first use.
func (s *Store) Append(ctx context.Context, env eventing.Envelope) (eventlog.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eventlog.Record{}, err
	}
	defer tx.Rollback()

	var record eventlog.Record
	err = tx.QueryRowContext(ctx, `
WITH next AS (
	SELECT COALESCE(MAX(seq), 0) + 1 AS seq FROM event_log
)
INSERT INTO event_log (seq, segment, event_id, event_type, payload)
SELECT next.seq, (next.seq - 1) / $1, $2, $3, $4 FROM next
RETURNING seq, segment`,
		s.segmentSize, env.EventID, env.EventType, []byte(env.Payload),
	).Scan(&record.Seq, &record.Segment)
	if err != nil {
		return eventlog.Record{}, err
	}
	record.EventID = env.EventID
	record.Type = env.EventType
	record.Payload = env.Payload

	if _, err := tx.ExecContext(ctx, `
INSERT INTO event_log_segments (segment, opened_at)
VALUES ($1, now())
ON CONFLICT (segment) DO NOTHING`, record.Segment); err != nil {
		return eventlog.Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return eventlog.Record{}, err
	}
	return record, nil
}

// Head returns the newest record.
func (s *Store) Head(ctx context.Context) (eventlog.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT seq, segment, event_id, event_type, payload
FROM event_log
ORDER BY seq DESC
LIMIT 1`)

	var record eventlog.Record
	var payload []byte
	if err := row.Scan(&record.Seq, &record.Segment, &record.EventID, &record.Type, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eventlog.Record{}, false, nil
		}
		return eventlog.Record{}, false, err
	}
	record.Payload = payload
	return record, true, nil
}

// Segment returns one segment's records in ascending seq order.
func (s *Store) Segment(ctx context.Context, segment int64) ([]eventlog.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, segment, event_id, event_type, payload
FROM event_log
WHERE segment = $1
ORDER BY seq ASC`, segment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventlog.Record
	for rows.Next() {
		var record eventlog.Record
		var payload []byte
		if err := rows.Scan(&record.Seq, &record.Segment, &record.EventID, &record.Type, &payload); err != nil {
			return nil, err
		}
		record.Payload = payload
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, eventlog.ErrUnknownSegment
	}
	return result, nil
}

// SegmentTime returns the time the segment was opened.
func (s *Store) SegmentTime(ctx context.Context, segment int64) (time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT opened_at
FROM event_log_segments
WHERE segment = $1`, segment)

	var openedAt time.Time
	if err := row.Scan(&openedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, eventlog.ErrUnknownSegment
		}
		return time.Time{}, err
	}
	return openedAt.UTC(), nil
}
