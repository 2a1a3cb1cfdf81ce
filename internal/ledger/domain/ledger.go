package ledger

import (
	"fmt"
	"math/bits"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Ledger is the round-based accounting state machine. It is not safe for
// concurrent use; the application service serializes every transition.
type Ledger struct {
	capacity int
	clock    Clock

	phase        Phase
	order        []string
	participants map[string]*Participant
	activatedAt  time.Time

	round           uint64
	reportsReceived int
	periodConsumed  int64
}

// New creates an empty ledger in the registering phase. Capacity counts the
// producer plus all consumers.
func New(capacity int, clock Clock) (*Ledger, error) {
	if capacity < 2 {
		return nil, ErrInvalidCapacity
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{
		capacity:     capacity,
		clock:        clock,
		phase:        PhaseRegistering,
		participants: make(map[string]*Participant, capacity),
	}, nil
}

// Register appends a participant while the ledger is still registering. The
// producer must register first and only once. When the registry reaches
// capacity the ledger flips to the active phase and emits ActivationCompleted.
func (l *Ledger) Register(identity, name string, role Role) ([]any, error) {
	if identity == "" {
		return nil, ErrEmptyIdentity
	}
	if _, ok := NormalizeRole(string(role)); !ok {
		return nil, ErrInvalidRole
	}
	if l.phase != PhaseRegistering {
		return nil, ErrCapacityExceeded
	}
	if _, exists := l.participants[identity]; exists {
		return nil, ErrDuplicateIdentity
	}
	if len(l.order) == 0 && role != RoleProducer {
		return nil, ErrProducerRequired
	}
	if len(l.order) > 0 && role == RoleProducer {
		return nil, ErrProducerExists
	}

	l.participants[identity] = &Participant{Identity: identity, Name: name, Role: role}
	l.order = append(l.order, identity)

	if len(l.order) < l.capacity {
		return nil, nil
	}

	l.phase = PhaseActive
	l.activatedAt = l.clock.Now()
	return []any{ActivationCompleted{Participants: l.capacity, At: l.activatedAt}}, nil
}

// Report records a participant's period amount. The Nth report of a round
// closes the round synchronously within the same transition.
func (l *Ledger) Report(identity string, amount int64) ([]any, error) {
	if l.phase != PhaseActive {
		return nil, ErrNotActive
	}
	if amount < 0 {
		return nil, ErrNegativeAmount
	}
	p, ok := l.participants[identity]
	if !ok {
		return nil, ErrUnknownParticipant
	}
	if p.Reported {
		return nil, ErrAlreadyReported
	}

	p.PeriodAmount = amount
	p.CumulativeTotal += amount
	p.Reported = true
	l.reportsReceived++

	var events []any
	if p.Role == RoleConsumer {
		l.periodConsumed += amount
		events = append(events, ConsumerReported{Identity: p.Identity, Name: p.Name, Amount: amount})
	} else {
		events = append(events, ProducerReported{Identity: p.Identity, Name: p.Name, Amount: amount})
	}

	if l.reportsReceived == l.capacity {
		events = append(events, l.closeRound()...)
	}
	return events, nil
}

// closeRound runs the proportional allocation and resets per-round state.
// share = floor(P*c/total), capped at the consumer's own demand. The floor
// residual is discarded, not redistributed.
func (l *Ledger) closeRound() []any {
	if l.reportsReceived != l.capacity {
		panic(fmt.Sprintf("ledger: round close with %d of %d reports", l.reportsReceived, l.capacity))
	}

	producer := l.participants[l.order[0]]
	produced := producer.PeriodAmount
	consumed := l.periodConsumed

	var events []any
	var allocated int64
	for _, identity := range l.order[1:] {
		consumer := l.participants[identity]
		demand := consumer.PeriodAmount

		var used int64
		if produced > 0 && consumed > 0 {
			used = mulDiv(produced, demand, consumed)
			if used > demand {
				used = demand
			}
		}
		consumer.CumulativeSharedUsage += used
		producer.CumulativeSharedUsage += used
		allocated += used
		events = append(events, AllocationComputed{
			Identity: consumer.Identity,
			Name:     consumer.Name,
			Used:     used,
			OfTotal:  demand,
		})
	}

	for _, identity := range l.order {
		p := l.participants[identity]
		p.PeriodAmount = 0
		p.Reported = false
	}
	l.periodConsumed = 0
	l.reportsReceived = 0
	l.round++

	return append(events, RoundCompleted{
		Round:    l.round,
		Produced: produced,
		Consumed: consumed,
		Residual: produced - allocated,
	})
}

// mulDiv computes floor(a*b/c) without intermediate overflow. All operands
// are non-negative and b <= c, so the quotient fits in an int64.
func mulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	quo, _ := bits.Div64(hi, lo, uint64(c))
	return int64(quo)
}

// Phase returns the current lifecycle phase.
func (l *Ledger) Phase() Phase { return l.phase }

// ActivatedAt returns the activation timestamp, zero while registering.
func (l *Ledger) ActivatedAt() time.Time { return l.activatedAt }

// Capacity returns the fixed registry capacity.
func (l *Ledger) Capacity() int { return l.capacity }

// Size returns the number of registered participants.
func (l *Ledger) Size() int { return len(l.order) }

// Round returns the number of completed rounds.
func (l *Ledger) Round() uint64 { return l.round }

// ReportsReceived returns the number of reports received this round.
func (l *Ledger) ReportsReceived() int { return l.reportsReceived }

// PeriodConsumedTotal returns the running consumer total for the open round.
func (l *Ledger) PeriodConsumedTotal() int64 { return l.periodConsumed }

// Participant returns a snapshot copy of a participant.
func (l *Ledger) Participant(identity string) (Participant, bool) {
	p, ok := l.participants[identity]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Registry returns snapshot copies of all participants in registration order.
func (l *Ledger) Registry() []Participant {
	result := make([]Participant, 0, len(l.order))
	for _, identity := range l.order {
		result = append(result, *l.participants[identity])
	}
	return result
}
