package features

import "math"

// #region index

// Index names a position in the feature vector.
type Index int

const (
	PointerDensity Index = iota
	ClickDensity
	TypingRate
	Hesitation
	ErrorRate
	DeviceClass
	TimeOfDay
	SessionDuration
	CompletionEstimate
	ScrollDensity

	// Arity is the fixed vector length.
	Arity
)

var indexNames = [Arity]string{
	"pointer_density",
	"click_density",
	"typing_rate",
	"hesitation",
	"error_rate",
	"device_class",
	"time_of_day",
	"session_duration",
	"completion_estimate",
	"scroll_density",
}

// String returns the snake_case feature name.
func (i Index) String() string {
	if i < 0 || i >= Arity {
		return "unknown"
	}
	return indexNames[i]
}

// #endregion

// #region vector

// Vector is the normalized behavioral summary of one session window.
// Every component is in [0, 1]. Value type: copies never alias.
type Vector [Arity]float64

// Neutral is the mid-range value used for defaults and NaN repair.
const Neutral = 0.5

// Default returns the vector used when there are no events.
func Default() Vector {
	var v Vector
	for i := range v {
		v[i] = Neutral
	}
	return v
}

// Get returns the component at i.
func (v Vector) Get(i Index) float64 {
	return v[i]
}

// Clamped returns a copy with every component forced into [0, 1].
// NaN components become Neutral.
func (v Vector) Clamped() Vector {
	for i := range v {
		v[i] = Clamp(v[i])
	}
	return v
}

// Map returns the vector keyed by feature name, for logs and JSON output.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, Arity)
	for i := Index(0); i < Arity; i++ {
		m[i.String()] = v[i]
	}
	return m
}

// IsMobile reports whether the device encoding is the mobile class.
func (v Vector) IsMobile() bool {
	return v[DeviceClass] >= 0.75
}

// #endregion

// #region clamp

// Clamp restricts x to [0, 1], mapping NaN to Neutral.
func Clamp(x float64) float64 {
	if math.IsNaN(x) {
		return Neutral
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// #endregion
