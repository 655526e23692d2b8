package bridge

// NativeMotion is implemented by the native side (Swift/Kotlin) on top of
// CMPedometer / the step counter sensor. gomobile exposes this as an
// interface that native code can satisfy.
//
// Rules for gomobile compatibility:
//   - methods may only use primitive types, strings, []byte, or other
//     gomobile-bound types as parameters and return values
//   - no variadic parameters
//   - errors are returned as a second return value
type NativeMotion interface {
	IsStepCountingAvailable() (bool, error)
	IsDistanceAvailable() (bool, error)
	IsFloorCountingAvailable() (bool, error)

	// StartUpdates begins live updates counted from fromMillis (ms since
	// the epoch, 0 for now) and reports them to l until StopUpdates.
	StartUpdates(fromMillis int64, l UpdateListener) error
	StopUpdates() error

	// QueryData returns one aggregated record as JSON, using the same
	// keys UpdateListener.OnUpdate receives.
	QueryData(startMillis int64, endMillis int64) (string, error)
}

// UpdateListener is implemented in Go and handed to native code.
//
// OnUpdate receives a JSON object with startDate, endDate (ms),
// numberOfSteps and, when measured, distance, floorsAscended,
// floorsDescended, currentPace and currentCadence.
//
// OnError ends the subscription. code is one of the Code* constants.
type UpdateListener interface {
	OnUpdate(payload string)
	OnError(code int, message string)
}

// Error codes shared with native code. Native errors returned from
// NativeMotion methods may also be prefixed "unavailable:" or "denied:".
const (
	CodePlatform    = 0
	CodeUnavailable = 1
	CodeDenied      = 2
)
