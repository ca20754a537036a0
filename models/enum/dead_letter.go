package enum

type DeadLetterKind string

const (
	DeadLetterKindDebitFailed            DeadLetterKind = "debit_failed"
	DeadLetterKindUnresolved             DeadLetterKind = "unresolved"
	DeadLetterKindAmountUnavailable      DeadLetterKind = "amount_unavailable"
	DeadLetterKindCorrelationWriteFailed DeadLetterKind = "correlation_write_failed"
	DeadLetterKindMalformedPayload       DeadLetterKind = "malformed_payload"
	DeadLetterKindDeferred               DeadLetterKind = "deferred"
)

type DeadLetterStatus string

const (
	DeadLetterStatusOpen     DeadLetterStatus = "OPEN"
	DeadLetterStatusResolved DeadLetterStatus = "RESOLVED"
)
