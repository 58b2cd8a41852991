package propagation

// Direction is the rotation sense of a three-phase load.
type Direction int

const (
	Indeterminate    Direction = 0
	Clockwise        Direction = 1
	CounterClockwise Direction = -1
)

// String returns a short label for the direction.
func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "clockwise"
	case CounterClockwise:
		return "counterclockwise"
	default:
		return "indeterminate"
	}
}

// InferRotation derives the rotation sense from the masks seen at the three
// terminals of a load. Every terminal must carry exactly one identity and the
// three identities must differ; otherwise the result is Indeterminate. The
// sense is the parity of the permutation taking the natural identity order to
// the terminal order: even is Clockwise, odd is CounterClockwise.
func InferRotation(u, v, w PhaseMask) Direction {
	a, okA := u.Single()
	b, okB := v.Single()
	c, okC := w.Single()
	if !okA || !okB || !okC {
		return Indeterminate
	}
	if a == b || b == c || a == c {
		return Indeterminate
	}

	inversions := 0
	if a > b {
		inversions++
	}
	if a > c {
		inversions++
	}
	if b > c {
		inversions++
	}
	if inversions%2 == 0 {
		return Clockwise
	}
	return CounterClockwise
}
