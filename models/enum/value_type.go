package enum

type ValueType string

const (
	ValueTypePercentage  ValueType = "percentage"
	ValueTypeFixedAmount ValueType = "fixed_amount"
)
