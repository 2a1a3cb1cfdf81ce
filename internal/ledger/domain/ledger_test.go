package ledger

import (
	"errors"
	"testing"
	"time"
)

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time { return f.now }

func newActiveLedger(t *testing.T, consumers ...string) *Ledger {
	t.Helper()
	l, err := New(1+len(consumers), fixedClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if _, err := l.Register("plant", "Solar Plant", RoleProducer); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	for _, identity := range consumers {
		if _, err := l.Register(identity, "Apartment "+identity, RoleConsumer); err != nil {
			t.Fatalf("register %s: %v", identity, err)
		}
	}
	return l
}

func TestRegistrationFillsRegistryAndActivates(t *testing.T) {
	activation := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l, err := New(3, fixedClock{now: activation})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	if _, err := l.Register("plant", "Solar Plant", RoleProducer); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	if got := l.Phase(); got != PhaseRegistering {
		t.Fatalf("expected registering phase, got %s", got)
	}
	if _, err := l.Register("a1", "Apartment 1", RoleConsumer); err != nil {
		t.Fatalf("register consumer: %v", err)
	}

	events, err := l.Register("a2", "Apartment 2", RoleConsumer)
	if err != nil {
		t.Fatalf("register final consumer: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 activation event, got %d", len(events))
	}
	act, ok := events[0].(ActivationCompleted)
	if !ok {
		t.Fatalf("expected ActivationCompleted, got %T", events[0])
	}
	if act.Participants != 3 {
		t.Fatalf("expected 3 participants, got %d", act.Participants)
	}
	if !act.At.Equal(activation) {
		t.Fatalf("expected activation at %s, got %s", activation, act.At)
	}
	if l.Phase() != PhaseActive {
		t.Fatalf("expected active phase, got %s", l.Phase())
	}
	if !l.ActivatedAt().Equal(activation) {
		t.Fatalf("expected activated at %s, got %s", activation, l.ActivatedAt())
	}
	if l.Size() != 3 {
		t.Fatalf("expected registry size 3, got %d", l.Size())
	}

	if _, err := l.Register("a3", "Apartment 3", RoleConsumer); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestRegisterRejectsInvalidSequences(t *testing.T) {
	l, err := New(3, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	if _, err := l.Register("", "Nameless", RoleConsumer); !errors.Is(err, ErrEmptyIdentity) {
		t.Fatalf("expected ErrEmptyIdentity, got %v", err)
	}
	if _, err := l.Register("a1", "Apartment 1", Role("broker")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := l.Register("a1", "Apartment 1", RoleConsumer); !errors.Is(err, ErrProducerRequired) {
		t.Fatalf("expected ErrProducerRequired, got %v", err)
	}
	if _, err := l.Register("plant", "Solar Plant", RoleProducer); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	if _, err := l.Register("plant", "Solar Plant", RoleProducer); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}
	if _, err := l.Register("plant2", "Second Plant", RoleProducer); !errors.Is(err, ErrProducerExists) {
		t.Fatalf("expected ErrProducerExists, got %v", err)
	}
}

func TestReportBeforeActivationRejected(t *testing.T) {
	l, err := New(2, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if _, err := l.Register("plant", "Solar Plant", RoleProducer); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	if _, err := l.Report("plant", 100); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestReportValidation(t *testing.T) {
	l := newActiveLedger(t, "a1")

	if _, err := l.Report("stranger", 10); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
	if _, err := l.Report("a1", -1); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}

	if _, err := l.Report("a1", 10); err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := l.Report("a1", 10); !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("expected ErrAlreadyReported, got %v", err)
	}
	// Still rejected on a second attempt before the round advances.
	if _, err := l.Report("a1", 10); !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("expected ErrAlreadyReported again, got %v", err)
	}
}

func TestProportionalAllocation(t *testing.T) {
	l := newActiveLedger(t, "a1", "a2")

	events, err := l.Report("plant", 20)
	if err != nil {
		t.Fatalf("producer report: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected only the producer event, got %d", len(events))
	}
	if _, ok := events[0].(ProducerReported); !ok {
		t.Fatalf("expected ProducerReported, got %T", events[0])
	}

	if _, err := l.Report("a1", 10); err != nil {
		t.Fatalf("consumer a1 report: %v", err)
	}
	if got := l.PeriodConsumedTotal(); got != 10 {
		t.Fatalf("expected period consumed 10, got %d", got)
	}

	events, err = l.Report("a2", 30)
	if err != nil {
		t.Fatalf("consumer a2 report: %v", err)
	}
	// ConsumerReported, two AllocationComputed, RoundCompleted.
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	alloc1, ok := events[1].(AllocationComputed)
	if !ok {
		t.Fatalf("expected AllocationComputed, got %T", events[1])
	}
	alloc2, ok := events[2].(AllocationComputed)
	if !ok {
		t.Fatalf("expected AllocationComputed, got %T", events[2])
	}
	done, ok := events[3].(RoundCompleted)
	if !ok {
		t.Fatalf("expected RoundCompleted, got %T", events[3])
	}

	// P=20, c=(10,30), total=40: shares are floor(20*10/40)=5, floor(20*30/40)=15.
	if alloc1.Identity != "a1" || alloc1.Used != 5 || alloc1.OfTotal != 10 {
		t.Fatalf("unexpected allocation for a1: %+v", alloc1)
	}
	if alloc2.Identity != "a2" || alloc2.Used != 15 || alloc2.OfTotal != 30 {
		t.Fatalf("unexpected allocation for a2: %+v", alloc2)
	}
	if done.Round != 1 || done.Produced != 20 || done.Consumed != 40 || done.Residual != 0 {
		t.Fatalf("unexpected round summary: %+v", done)
	}

	producer, _ := l.Participant("plant")
	if producer.CumulativeSharedUsage != 20 {
		t.Fatalf("expected producer shared usage 20, got %d", producer.CumulativeSharedUsage)
	}
	if producer.CumulativeTotal != 20 {
		t.Fatalf("expected producer cumulative total 20, got %d", producer.CumulativeTotal)
	}
	a1, _ := l.Participant("a1")
	if a1.CumulativeSharedUsage != 5 || a1.CumulativeTotal != 10 {
		t.Fatalf("unexpected a1 totals: %+v", a1)
	}

	// Per-round state fully reset.
	if l.ReportsReceived() != 0 {
		t.Fatalf("expected 0 reports received after close, got %d", l.ReportsReceived())
	}
	if l.PeriodConsumedTotal() != 0 {
		t.Fatalf("expected 0 period consumed after close, got %d", l.PeriodConsumedTotal())
	}
	for _, p := range l.Registry() {
		if p.Reported || p.PeriodAmount != 0 {
			t.Fatalf("expected reset participant, got %+v", p)
		}
	}
}

func TestZeroProductionAllocatesNothing(t *testing.T) {
	l := newActiveLedger(t, "a1", "a2")

	if _, err := l.Report("plant", 0); err != nil {
		t.Fatalf("producer report: %v", err)
	}
	if _, err := l.Report("a1", 50); err != nil {
		t.Fatalf("a1 report: %v", err)
	}
	events, err := l.Report("a2", 70)
	if err != nil {
		t.Fatalf("a2 report: %v", err)
	}
	for _, event := range events {
		if alloc, ok := event.(AllocationComputed); ok && alloc.Used != 0 {
			t.Fatalf("expected zero allocation, got %+v", alloc)
		}
	}
	if _, ok := events[len(events)-1].(RoundCompleted); !ok {
		t.Fatalf("expected RoundCompleted, got %T", events[len(events)-1])
	}
}

func TestZeroConsumptionRoundStillCompletes(t *testing.T) {
	l := newActiveLedger(t, "a1")

	if _, err := l.Report("a1", 0); err != nil {
		t.Fatalf("consumer report: %v", err)
	}
	events, err := l.Report("plant", 1)
	if err != nil {
		t.Fatalf("producer report: %v", err)
	}
	var sawDone bool
	for _, event := range events {
		switch e := event.(type) {
		case AllocationComputed:
			if e.Used != 0 {
				t.Fatalf("expected zero allocation, got %+v", e)
			}
		case RoundCompleted:
			sawDone = true
			if e.Residual != 1 {
				t.Fatalf("expected residual 1, got %d", e.Residual)
			}
		}
	}
	if !sawDone {
		t.Fatal("expected RoundCompleted event")
	}
}

func TestShareCappedAtOwnDemand(t *testing.T) {
	// A single consumer with demand below supply gets at most its demand.
	l := newActiveLedger(t, "a1")

	if _, err := l.Report("plant", 100); err != nil {
		t.Fatalf("producer report: %v", err)
	}
	events, err := l.Report("a1", 40)
	if err != nil {
		t.Fatalf("consumer report: %v", err)
	}
	var alloc AllocationComputed
	for _, event := range events {
		if a, ok := event.(AllocationComputed); ok {
			alloc = a
		}
	}
	if alloc.Used != 40 {
		t.Fatalf("expected allocation capped at 40, got %d", alloc.Used)
	}
}

func TestAllocationInvariantAcrossRounds(t *testing.T) {
	l := newActiveLedger(t, "a1", "a2", "a3")

	cases := []struct {
		produced  int64
		consumers []int64
	}{
		{produced: 17, consumers: []int64{3, 5, 11}},
		{produced: 1_000_000, consumers: []int64{1, 999_999, 7}},
		{produced: 0, consumers: []int64{10, 10, 10}},
		{produced: 5, consumers: []int64{0, 0, 0}},
	}

	for round, tc := range cases {
		if _, err := l.Report("plant", tc.produced); err != nil {
			t.Fatalf("round %d producer report: %v", round, err)
		}
		var events []any
		for i, amount := range tc.consumers {
			identity := []string{"a1", "a2", "a3"}[i]
			evs, err := l.Report(identity, amount)
			if err != nil {
				t.Fatalf("round %d %s report: %v", round, identity, err)
			}
			events = append(events, evs...)
		}

		var total int64
		for _, event := range events {
			if alloc, ok := event.(AllocationComputed); ok {
				if alloc.Used > alloc.OfTotal {
					t.Fatalf("round %d allocation above demand: %+v", round, alloc)
				}
				total += alloc.Used
			}
		}
		if total > tc.produced {
			t.Fatalf("round %d allocated %d above produced %d", round, total, tc.produced)
		}
		if got := l.Round(); got != uint64(round+1) {
			t.Fatalf("expected round counter %d, got %d", round+1, got)
		}
	}
}

func TestCumulativeTotalsNeverDecrease(t *testing.T) {
	l := newActiveLedger(t, "a1")

	var lastTotal, lastShared int64
	for i := 0; i < 5; i++ {
		if _, err := l.Report("plant", int64(10*i)); err != nil {
			t.Fatalf("producer report: %v", err)
		}
		if _, err := l.Report("a1", int64(7*i)); err != nil {
			t.Fatalf("consumer report: %v", err)
		}
		p, _ := l.Participant("a1")
		if p.CumulativeTotal < lastTotal || p.CumulativeSharedUsage < lastShared {
			t.Fatalf("cumulative totals decreased: %+v", p)
		}
		lastTotal = p.CumulativeTotal
		lastShared = p.CumulativeSharedUsage
	}
}

func TestNewValidatesCapacity(t *testing.T) {
	if _, err := New(1, nil); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}
