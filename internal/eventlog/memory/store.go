package memory

import (
	"context"
	"sync"
	"time"

	"solarshare/internal/eventing"
	"solarshare/internal/eventlog"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Store is an in-memory segmented event log.
type Store struct {
	segmentSize int64
	clock       Clock

	mu       sync.RWMutex
	segments [][]eventlog.Record
	opened   []time.Time
	seq      int64
}

// NewStore constructs a store with the given segment size. A nil clock uses
// the system clock.
func NewStore(segmentSize int64, clock Clock) (*Store, error) {
	if segmentSize <= 0 {
		return nil, eventlog.ErrInvalidSegmentSize
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Store{segmentSize: segmentSize, clock: clock}, nil
}

// Append adds a record to the log, opening a new segment when needed.
func (s *Store) Append(ctx context.Context, env eventing.Envelope) (eventlog.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	segment := eventlog.SegmentOf(s.seq, s.segmentSize)
	if segment == int64(len(s.segments)) {
		s.segments = append(s.segments, nil)
		s.opened = append(s.opened, s.clock.Now())
	}

	record := eventlog.Record{
		Seq:     s.seq,
		Segment: segment,
		EventID: env.EventID,
		Type:    env.EventType,
		Payload: env.Payload,
	}
	s.segments[segment] = append(s.segments[segment], record)
	return record, nil
}

// Head returns the newest record.
func (s *Store) Head(ctx context.Context) (eventlog.Record, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.seq == 0 {
		return eventlog.Record{}, false, nil
	}
	segment := s.segments[len(s.segments)-1]
	return segment[len(segment)-1], true, nil
}

// Segment returns copies of one segment's records in ascending seq order.
func (s *Store) Segment(ctx context.Context, segment int64) ([]eventlog.Record, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	if segment < 0 || segment >= int64(len(s.segments)) {
		return nil, eventlog.ErrUnknownSegment
	}
	return append([]eventlog.Record(nil), s.segments[segment]...), nil
}

// SegmentTime returns the time the segment was opened.
func (s *Store) SegmentTime(ctx context.Context, segment int64) (time.Time, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	if segment < 0 || segment >= int64(len(s.opened)) {
		return time.Time{}, eventlog.ErrUnknownSegment
	}
	return s.opened[segment], nil
}
