package enum

type RedemptionStatus string

const (
	RedemptionStatusSkipped           RedemptionStatus = "SKIPPED"
	RedemptionStatusAmountUnavailable RedemptionStatus = "AMOUNT_UNAVAILABLE"
	RedemptionStatusUnresolved        RedemptionStatus = "UNRESOLVED"
	RedemptionStatusDuplicate         RedemptionStatus = "DUPLICATE"
	RedemptionStatusDeferred          RedemptionStatus = "DEFERRED"
	RedemptionStatusPending           RedemptionStatus = "PENDING"
	RedemptionStatusRedeemed          RedemptionStatus = "REDEEMED"
	RedemptionStatusDebitFailed       RedemptionStatus = "DEBIT_FAILED"
)

// Terminal reports whether no further processing happens for the order.
func (s RedemptionStatus) Terminal() bool {
	return s != RedemptionStatusPending
}
