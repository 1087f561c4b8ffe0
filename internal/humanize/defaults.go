package humanize

// ============================================================================
// Defaulting policy
// ============================================================================
//
// Every permissive fallback of the gate and the engine lives here. The
// runtime path never errors; the config-save path (ValidateConfig, Validate)
// rejects the same inputs explicitly.
//
//   Input                                 Runtime result
//   ------------------------------------  ------------------------------------
//   window == nil                         open
//   start_time or end_time missing        open
//   start_time or end_time not HH:mm      open
//   days empty or absent                  every weekday allowed
//   delay bounds outside [5,300] or       delay drawn from the fallback range
//     min > max                             [FallbackDelayMinSeconds, FallbackDelayMaxSeconds]
//   unknown distribution                  uniform
//   stdDev == 0                           mean returned as-is
//   shuffle of nil                        nil
//   remaining contacts <= 0               ETA 0
//   statistics of no samples              all fields 0
//   avg processing time not supplied      DefaultProcessingSeconds
//
// ============================================================================

const (
	// MinDelaySeconds and MaxDelaySeconds bound a valid delay configuration.
	MinDelaySeconds = 5
	MaxDelaySeconds = 300

	// FallbackDelayMinSeconds and FallbackDelayMaxSeconds are used when a
	// delay is requested with out-of-range bounds.
	FallbackDelayMinSeconds = 10
	FallbackDelayMaxSeconds = 30

	// DefaultProcessingSeconds is the per-contact send overhead assumed by ETA estimates.
	DefaultProcessingSeconds = 2.0
)

// validBounds reports whether min/max satisfy 5 <= min <= max <= 300
func validBounds(minSeconds, maxSeconds int) bool {
	return minSeconds >= MinDelaySeconds &&
		maxSeconds <= MaxDelaySeconds &&
		minSeconds <= maxSeconds
}
