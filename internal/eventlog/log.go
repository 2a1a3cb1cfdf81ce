package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"solarshare/internal/eventing"
)

// DefaultSegmentSize is the number of records per log segment.
const DefaultSegmentSize int64 = 64

var (
	// ErrInvalidSegmentSize is returned for a non-positive segment size.
	ErrInvalidSegmentSize = errors.New("eventlog: segment size must be positive")
	// ErrUnknownSegment is returned when a segment id has no records.
	ErrUnknownSegment = errors.New("eventlog: unknown segment")
)

// Record is one appended event. Records carry no wall-clock time of their
// own; time is resolved at segment granularity through SegmentTime.
type Record struct {
	Seq     int64
	Segment int64
	EventID string
	Type    string
	Payload json.RawMessage
}

// Store is an append-only segmented event log. Seq is 1-based and strictly
// increasing; Segment is (Seq-1)/segmentSize. Append is called by a single
// writer (the serialized ledger service); reads may run concurrently.
type Store interface {
	Append(ctx context.Context, env eventing.Envelope) (Record, error)
	// Head returns the newest record, or false when the log is empty.
	Head(ctx context.Context) (Record, bool, error)
	// Segment returns the records of one segment in ascending seq order.
	Segment(ctx context.Context, segment int64) ([]Record, error)
	// SegmentTime returns the wall-clock time the segment was opened.
	SegmentTime(ctx context.Context, segment int64) (time.Time, error)
}

// SegmentOf returns the segment id holding seq.
func SegmentOf(seq, segmentSize int64) int64 {
	return (seq - 1) / segmentSize
}
