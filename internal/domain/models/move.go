package models

// MoveDirection is the direction of a structural price move.
type MoveDirection string

const (
	MoveUp   MoveDirection = "up"
	MoveDown MoveDirection = "down"
)

// StructuralMove describes one qualifying directional impulse inside a candle
// window. Indices are positions in the window it was detected on. Immutable:
// a move is recomputed fresh on every evaluation, never mutated.
type StructuralMove struct {
	StartIndex  int
	EndIndex    int
	StartPrice  float64
	EndPrice    float64
	PercentMove float64
	Direction   MoveDirection
}
