package media

import "fmt"

// IntConstraint supports browser-like exact/ideal/min/max constraint patterns.
// Use ExactInt, IdealInt and RangeInt for convenience.
type IntConstraint struct {
	Exact *int
	Ideal *int
	Min   *int
	Max   *int
}

// Value returns the effective value, preferring exact > ideal > min.
// Returns (0, false) if no value is set.
func (c IntConstraint) Value() (int, bool) {
	switch {
	case c.Exact != nil:
		return *c.Exact, true
	case c.Ideal != nil:
		return *c.Ideal, true
	case c.Min != nil:
		return *c.Min, true
	}
	return 0, false
}

// resolve returns the value to request, or def when unconstrained. The
// result must satisfy the bounds.
func (c IntConstraint) resolve(name string, def int) (int, error) {
	v, ok := c.Value()
	if !ok {
		v = def
		if c.Max != nil && v > *c.Max {
			v = *c.Max
		}
	}
	if v <= 0 {
		return 0, &OverconstrainedError{Constraint: name, Message: fmt.Sprintf("must be positive, got %d", v)}
	}
	return v, c.validate(name, v)
}

func (c IntConstraint) validate(name string, value int) error {
	if c.Exact != nil && value != *c.Exact {
		return &OverconstrainedError{Constraint: name, Message: fmt.Sprintf("requires exact %d, got %d", *c.Exact, value)}
	}
	if c.Min != nil && value < *c.Min {
		return &OverconstrainedError{Constraint: name, Message: fmt.Sprintf("minimum is %d, got %d", *c.Min, value)}
	}
	if c.Max != nil && value > *c.Max {
		return &OverconstrainedError{Constraint: name, Message: fmt.Sprintf("maximum is %d, got %d", *c.Max, value)}
	}
	return nil
}

// FloatConstraint is IntConstraint for floating-point values.
type FloatConstraint struct {
	Exact *float64
	Ideal *float64
	Min   *float64
	Max   *float64
}

// Value returns the effective value, preferring exact > ideal > min.
func (c FloatConstraint) Value() (float64, bool) {
	switch {
	case c.Exact != nil:
		return *c.Exact, true
	case c.Ideal != nil:
		return *c.Ideal, true
	case c.Min != nil:
		return *c.Min, true
	}
	return 0, false
}

func (c FloatConstraint) resolve(name string, def float64) (float64, error) {
	v, ok := c.Value()
	if !ok {
		v = def
		if c.Max != nil && v > *c.Max {
			v = *c.Max
		}
	}
	if v <= 0 {
		return 0, &OverconstrainedError{Constraint: name, Message: fmt.Sprintf("must be positive, got %v", v)}
	}
	if c.Exact != nil && v != *c.Exact {
		return 0, &OverconstrainedError{Constraint: name, Message: fmt.Sprintf("requires exact %v, got %v", *c.Exact, v)}
	}
	if c.Min != nil && v < *c.Min {
		return 0, &OverconstrainedError{Constraint: name, Message: fmt.Sprintf("minimum is %v, got %v", *c.Min, v)}
	}
	if c.Max != nil && v > *c.Max {
		return 0, &OverconstrainedError{Constraint: name, Message: fmt.Sprintf("maximum is %v, got %v", *c.Max, v)}
	}
	return v, nil
}

// FacingMode indicates which camera direction to prefer.
type FacingMode string

const (
	FacingModeUser        FacingMode = "user"
	FacingModeEnvironment FacingMode = "environment"
	FacingModeLeft        FacingMode = "left"
	FacingModeRight       FacingMode = "right"
)

// IsValid returns true if this is a valid facing mode value. The empty
// value selects the default camera.
func (m FacingMode) IsValid() bool {
	switch m {
	case FacingModeUser, FacingModeEnvironment, FacingModeLeft, FacingModeRight, "":
		return true
	default:
		return false
	}
}

// OverconstrainedError is returned when constraints cannot be satisfied.
type OverconstrainedError struct {
	Constraint string
	Message    string
}

func (e *OverconstrainedError) Error() string {
	return fmt.Sprintf("overconstrained: %s - %s", e.Constraint, e.Message)
}

// ExactInt creates an IntConstraint that requires an exact value.
func ExactInt(v int) IntConstraint {
	return IntConstraint{Exact: &v}
}

// IdealInt creates an IntConstraint with a preferred value.
func IdealInt(v int) IntConstraint {
	return IntConstraint{Ideal: &v}
}

// RangeInt creates an IntConstraint with min and max bounds.
func RangeInt(minVal, maxVal int) IntConstraint {
	return IntConstraint{Min: &minVal, Max: &maxVal}
}

// ExactFloat creates a FloatConstraint that requires an exact value.
func ExactFloat(v float64) FloatConstraint {
	return FloatConstraint{Exact: &v}
}

// IdealFloat creates a FloatConstraint with a preferred value.
func IdealFloat(v float64) FloatConstraint {
	return FloatConstraint{Ideal: &v}
}

// RangeFloat creates a FloatConstraint with min and max bounds.
func RangeFloat(minVal, maxVal float64) FloatConstraint {
	return FloatConstraint{Min: &minVal, Max: &maxVal}
}
