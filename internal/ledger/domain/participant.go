package ledger

// UnitScale is the number of amount sub-units per kWh.
// All reported amounts are fixed-point integers in micro-kWh.
const UnitScale int64 = 1_000_000

// Role distinguishes the single producer from the consumers.
type Role string

const (
	// RoleProducer marks the participant whose output is shared.
	RoleProducer Role = "producer"
	// RoleConsumer marks a participant competing for a share of the output.
	RoleConsumer Role = "consumer"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleProducer, RoleConsumer:
		return Role(value), true
	default:
		return "", false
	}
}

// Phase is the ledger lifecycle phase.
type Phase string

const (
	// PhaseRegistering accepts registrations and rejects reports.
	PhaseRegistering Phase = "registering"
	// PhaseActive accepts reports and rejects registrations.
	PhaseActive Phase = "active"
)

// Participant is the per-identity accounting record. Created on registration,
// mutated only by its own report and by round close, never deleted.
type Participant struct {
	Identity string
	Name     string
	Role     Role

	// PeriodAmount is the amount reported this round, reset on round close.
	PeriodAmount int64
	// CumulativeTotal is the all-time sum of reported amounts.
	CumulativeTotal int64
	// CumulativeSharedUsage is the all-time solar energy actually attributed.
	CumulativeSharedUsage int64
	// Reported marks whether the participant has reported this round.
	Reported bool
}
