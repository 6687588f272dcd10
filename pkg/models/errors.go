package models

import "fmt"

// PreconditionError reports a history too short to initialize the model.
// Holt-Winters needs two full seasonal cycles before the first update.
type PreconditionError struct {
	Have         int
	Need         int
	SeasonLength int
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("insufficient history: need at least %d points (2 seasons of %d), got %d",
		e.Need, e.SeasonLength, e.Have)
}

// InvalidParameterError reports a model parameter outside its allowed range.
type InvalidParameterError struct {
	Param  string
	Value  float64
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%g: %s", e.Param, e.Value, e.Reason)
}
