// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package check

import "math"

// mean returns the arithmetic mean of the intervals in nanoseconds.
func mean(intervals []int64) float64 {
	if len(intervals) == 0 {
		return 0
	}
	var sum int64
	for _, v := range intervals {
		sum += v
	}
	return float64(sum) / float64(len(intervals))
}

// stdDev returns the population standard deviation around the given mean.
func stdDev(intervals []int64, mean float64) float64 {
	if len(intervals) == 0 {
		return 0
	}
	var varianceSum float64
	for _, v := range intervals {
		d := float64(v) - mean
		varianceSum += d * d
	}
	return math.Sqrt(varianceSum / float64(len(intervals)))
}

// coefficientOfVariation returns stddev/mean, or +Inf for a zero mean with
// nonzero spread. A CoV near zero means suspiciously constant intervals.
func coefficientOfVariation(intervals []int64) float64 {
	m := mean(intervals)
	sd := stdDev(intervals, m)
	if m <= 0 {
		if sd == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return sd / m
}
