package ledger

import "time"

// ActivationCompleted is emitted when the registry fills and the ledger
// becomes active. At marks the data-valid-from timestamp for consumers.
type ActivationCompleted struct {
	Participants int       `json:"participants"`
	At           time.Time `json:"at"`
}

// ProducerReported is emitted when the producer reports its period output.
type ProducerReported struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
}

// ConsumerReported is emitted when a consumer reports its period usage.
type ConsumerReported struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
}

// AllocationComputed is emitted per consumer during round close. Used is the
// producer output attributed to the consumer, OfTotal the consumer's own
// reported usage for the round.
type AllocationComputed struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Used     int64  `json:"used"`
	OfTotal  int64  `json:"of_total"`
}

// RoundCompleted is emitted after allocations are credited and the per-round
// state has been reset. Residual is the producer output left unattributed by
// floor division; it is discarded, not rolled over.
type RoundCompleted struct {
	Round    uint64 `json:"round"`
	Produced int64  `json:"produced"`
	Consumed int64  `json:"consumed"`
	Residual int64  `json:"residual"`
}
