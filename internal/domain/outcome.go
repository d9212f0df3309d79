package domain

// OutcomeStatus is the engine's taxonomy of delivery results. Transports
// map their native bounce/error codes onto these.
type OutcomeStatus string

const (
	OutcomeSent            OutcomeStatus = "sent"
	OutcomeBouncedSoft     OutcomeStatus = "bounced_soft"
	OutcomeBouncedHard     OutcomeStatus = "bounced_hard"
	OutcomeFailedTransient OutcomeStatus = "failed_transient"
	OutcomeRejected        OutcomeStatus = "rejected"
)

// DeliveryOutcome is the ephemeral result of a single send attempt. It is
// consumed immediately by outcome handling and survives only as part of a
// StepRecord.
type DeliveryOutcome struct {
	Status OutcomeStatus
	Detail string
}

// IsPermanent reports whether the outcome permanently disqualifies the
// recipient. Permanent outcomes trigger suppression and are never retried.
func (o DeliveryOutcome) IsPermanent() bool {
	switch o.Status {
	case OutcomeBouncedHard, OutcomeRejected:
		return true
	}
	return false
}

// IsRetryable reports whether the attempt may be retried on a later tick.
func (o DeliveryOutcome) IsRetryable() bool {
	switch o.Status {
	case OutcomeBouncedSoft, OutcomeFailedTransient:
		return true
	}
	return false
}

// SuppressionReasonFor maps a permanent outcome to its suppression reason.
func (o DeliveryOutcome) SuppressionReasonFor() SuppressionReason {
	switch o.Status {
	case OutcomeBouncedHard:
		return SuppressionReasonHardBounce
	case OutcomeRejected:
		return SuppressionReasonInvalidAddress
	}
	return SuppressionReasonManual
}
