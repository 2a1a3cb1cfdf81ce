package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Event is an indexed event with its segment-resolved wall-clock time.
type Event struct {
	Seq     int64           `json:"seq"`
	Type    string          `json:"type"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Indexer answers "most recent N events" queries by scanning the log
// backward one segment window at a time, so recent history never costs a
// full-log replay. Segment open times are memoized: every event in a segment
// shares one time resolution.
type Indexer struct {
	store Store

	mu    sync.Mutex
	times map[int64]time.Time
}

// NewIndexer constructs an indexer over a store.
func NewIndexer(store Store) (*Indexer, error) {
	if store == nil {
		return nil, errors.New("eventlog: nil store")
	}
	return &Indexer{store: store, times: make(map[int64]time.Time)}, nil
}

// MostRecent returns up to count events, oldest to newest. An empty
// eventType matches all types. The head is captured once at call time;
// records appended during the scan fall outside the query window.
func (ix *Indexer) MostRecent(ctx context.Context, count int, eventType string) ([]Event, error) {
	if ix == nil || ix.store == nil {
		return nil, errors.New("eventlog: nil indexer")
	}
	if count <= 0 {
		return nil, nil
	}

	head, ok, err := ix.store.Head(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	// Collected newest-first, reversed before returning.
	var collected []Event
	for segment := head.Segment; segment >= 0 && len(collected) < count; segment-- {
		records, err := ix.store.Segment(ctx, segment)
		if err != nil {
			return nil, err
		}
		at, err := ix.segmentTime(ctx, segment)
		if err != nil {
			return nil, err
		}
		for i := len(records) - 1; i >= 0 && len(collected) < count; i-- {
			record := records[i]
			if record.Seq > head.Seq {
				// Appended after the scan started.
				continue
			}
			if eventType != "" && record.Type != eventType {
				continue
			}
			collected = append(collected, Event{
				Seq:     record.Seq,
				Type:    record.Type,
				At:      at,
				Payload: record.Payload,
			})
		}
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

func (ix *Indexer) segmentTime(ctx context.Context, segment int64) (time.Time, error) {
	ix.mu.Lock()
	at, ok := ix.times[segment]
	ix.mu.Unlock()
	if ok {
		return at, nil
	}

	at, err := ix.store.SegmentTime(ctx, segment)
	if err != nil {
		return time.Time{}, err
	}
	ix.mu.Lock()
	ix.times[segment] = at
	ix.mu.Unlock()
	return at, nil
}
