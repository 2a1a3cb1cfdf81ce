package ledger

import "errors"

var (
	// ErrCapacityExceeded is returned when registering after the registry is full.
	ErrCapacityExceeded = errors.New("ledger: registry capacity exceeded")
	// ErrDuplicateIdentity is returned when an identity registers twice.
	ErrDuplicateIdentity = errors.New("ledger: duplicate identity")
	// ErrProducerRequired is returned when the first registrant is not the producer.
	ErrProducerRequired = errors.New("ledger: first registrant must be the producer")
	// ErrProducerExists is returned when a second producer tries to register.
	ErrProducerExists = errors.New("ledger: producer already registered")
	// ErrNotActive is returned when reporting before the ledger is active.
	ErrNotActive = errors.New("ledger: not active")
	// ErrUnknownParticipant is returned when reporting with an unregistered identity.
	ErrUnknownParticipant = errors.New("ledger: unknown participant")
	// ErrAlreadyReported is returned when a participant reports twice in one round.
	ErrAlreadyReported = errors.New("ledger: already reported this round")
	// ErrNegativeAmount is returned when a reported amount is negative.
	ErrNegativeAmount = errors.New("ledger: negative amount")
	// ErrEmptyIdentity is returned when an identity is empty.
	ErrEmptyIdentity = errors.New("ledger: empty identity")
	// ErrInvalidRole is returned when a role is neither producer nor consumer.
	ErrInvalidRole = errors.New("ledger: invalid role")
	// ErrInvalidCapacity is returned when a ledger is created with capacity < 2.
	ErrInvalidCapacity = errors.New("ledger: capacity must cover one producer and at least one consumer")
)
