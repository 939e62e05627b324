// Package resample holds the frame arithmetic used when a stream's sample
// rate differs from the hardware rate.
package resample

import (
	"fmt"
	"math"
)

// MinimumInputFrames returns how many input frames at inputRate are needed
// to produce outputFrames at outputRate: ceil(outputFrames * inputRate /
// outputRate). Equal rates return outputFrames unchanged. A zero rate is a
// programming error and panics.
func MinimumInputFrames(inputRate, outputRate float64, outputFrames int64) int64 {
	if inputRate == 0 || outputRate == 0 {
		panic(fmt.Sprintf("resample: zero sample rate (input=%v output=%v)", inputRate, outputRate))
	}
	if inputRate == outputRate {
		return outputFrames
	}
	return int64(math.Ceil(float64(outputFrames) * inputRate / outputRate))
}

// Ratio returns inputRate/outputRate. It panics on a zero rate.
func Ratio(inputRate, outputRate float64) float64 {
	if inputRate == 0 || outputRate == 0 {
		panic(fmt.Sprintf("resample: zero sample rate (input=%v output=%v)", inputRate, outputRate))
	}
	return inputRate / outputRate
}
