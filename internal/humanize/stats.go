package humanize

import (
	"math"
	"sort"

	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
)

// EstimateRemainingTime returns the seconds needed to process remaining
// contacts: (avgDelaySeconds + avgProcessingSeconds) * remaining, never negative.
func EstimateRemainingTime(remaining int, avgDelaySeconds, avgProcessingSeconds float64) float64 {
	if remaining <= 0 {
		return 0
	}
	return (avgDelaySeconds + avgProcessingSeconds) * float64(remaining)
}

// EstimateRemainingTimeDefault is EstimateRemainingTime with DefaultProcessingSeconds
func EstimateRemainingTimeDefault(remaining int, avgDelaySeconds float64) float64 {
	return EstimateRemainingTime(remaining, avgDelaySeconds, DefaultProcessingSeconds)
}

// GetDelayStatistics summarizes delays (milliseconds). StdDev is the
// population standard deviation. The input is not modified.
func GetDelayStatistics(delaysMs []int64) types.DelayStatistics {
	n := len(delaysMs)
	if n == 0 {
		return types.DelayStatistics{}
	}

	sorted := make([]int64, n)
	copy(sorted, delaysMs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum float64
	for _, d := range sorted {
		sum += float64(d)
	}
	mean := sum / float64(n)

	var sq float64
	for _, d := range sorted {
		diff := float64(d) - mean
		sq += diff * diff
	}

	var median float64
	if n%2 == 0 {
		median = (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
	} else {
		median = float64(sorted[n/2])
	}

	return types.DelayStatistics{
		Count:  n,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   mean,
		Median: median,
		StdDev: math.Sqrt(sq / float64(n)),
	}
}

// SampleDurations flattens samples into their millisecond values
func SampleDurations(samples []types.DelaySample) []int64 {
	out := make([]int64, len(samples))
	for i, s := range samples {
		out[i] = s.DurationMs
	}
	return out
}
