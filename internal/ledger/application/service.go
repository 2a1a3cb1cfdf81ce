package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"solarshare/internal/eventing"
	"solarshare/internal/eventlog"
	ledger "solarshare/internal/ledger/domain"
	"solarshare/internal/observability/metrics"
)

// Service serializes every ledger transition behind one mutex, appends the
// resulting events to the log and publishes them on the bus. The aggregate
// itself is never touched outside this lock.
type Service struct {
	store  eventlog.Store
	bus    eventing.Bus
	logger *log.Logger

	mu     sync.Mutex
	ledger *ledger.Ledger
}

// NewService constructs a service around a fresh ledger.
func NewService(capacity int, clock ledger.Clock, store eventlog.Store, bus eventing.Bus, logger *log.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger: nil store")
	}
	if bus == nil {
		return nil, errors.New("ledger: nil bus")
	}
	if logger == nil {
		logger = log.Default()
	}
	agg, err := ledger.New(capacity, clock)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, bus: bus, logger: logger, ledger: agg}, nil
}

// Register adds a participant to the registry.
func (s *Service) Register(ctx context.Context, identity, name, role string) error {
	normalized, ok := ledger.NormalizeRole(role)
	if !ok {
		metrics.IncRegistration(metrics.ResultError)
		return ledger.ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.ledger.Register(identity, name, normalized)
	if err != nil {
		metrics.IncRegistration(metrics.ResultError)
		return err
	}
	if err := s.commit(ctx, events); err != nil {
		metrics.IncRegistration(metrics.ResultError)
		return err
	}
	metrics.IncRegistration(metrics.ResultSuccess)
	if s.ledger.Phase() == ledger.PhaseActive && len(events) > 0 {
		s.logger.Printf("ledger: registry full, community active with %d participants", s.ledger.Capacity())
	}
	return nil
}

// Report records a participant's period amount. When the report is the last
// one of the round the close happens inside this call and its events are
// appended and published before Report returns.
func (s *Service) Report(ctx context.Context, identity string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := "unknown"
	if p, ok := s.ledger.Participant(identity); ok {
		role = string(p.Role)
	}

	started := time.Now()
	events, err := s.ledger.Report(identity, amount)
	if err != nil {
		metrics.IncReport(role, metrics.ResultError)
		return err
	}
	if err := s.commit(ctx, events); err != nil {
		metrics.IncReport(role, metrics.ResultError)
		return err
	}
	metrics.IncReport(role, metrics.ResultSuccess)

	for _, event := range events {
		if completed, ok := event.(ledger.RoundCompleted); ok {
			metrics.ObserveRoundClose(time.Since(started), completed.Residual)
			s.logger.Printf("ledger: round %d closed, produced=%d consumed=%d residual=%d",
				completed.Round, completed.Produced, completed.Consumed, completed.Residual)
		}
	}
	return nil
}

// commit appends each event to the log and publishes it. The caller holds
// the service mutex, which keeps the log's append order equal to the
// aggregate's transition order.
func (s *Service) commit(ctx context.Context, events []any) error {
	for _, event := range events {
		env, err := eventing.BuildEnvelope(event)
		if err != nil {
			return err
		}
		if _, err := s.store.Append(ctx, env); err != nil {
			return err
		}
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Printf("ledger: event handler failed for %s: %v", env.EventType, err)
		}
	}
	return nil
}

// Phase returns the current lifecycle phase.
func (s *Service) Phase() ledger.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Phase()
}

// Status is a point-in-time view of the ledger lifecycle.
type Status struct {
	Phase           ledger.Phase `json:"phase"`
	Capacity        int          `json:"capacity"`
	Registered      int          `json:"registered"`
	Round           uint64       `json:"round"`
	ReportsReceived int          `json:"reports_received"`
	ActivatedAt     time.Time    `json:"activated_at"`
}

// StatusSnapshot returns the lifecycle view under the service lock.
func (s *Service) StatusSnapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Phase:           s.ledger.Phase(),
		Capacity:        s.ledger.Capacity(),
		Registered:      s.ledger.Size(),
		Round:           s.ledger.Round(),
		ReportsReceived: s.ledger.ReportsReceived(),
		ActivatedAt:     s.ledger.ActivatedAt(),
	}
}

// Registry returns participant snapshots in registration order.
func (s *Service) Registry() []ledger.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Registry()
}

// Participant returns one participant snapshot.
func (s *Service) Participant(identity string) (ledger.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Participant(identity)
}
