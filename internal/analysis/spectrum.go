package analysis

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// ErrFlatSeries is returned when a series has no spectral content to rank.
var ErrFlatSeries = errors.New("analysis: series has no oscillation")

// PowerSpectrum returns the magnitude of the first len(data)/2 Fourier
// coefficients of the mean-removed series.
func PowerSpectrum(data []float64) []float64 {
	if len(data) == 0 {
		return nil
	}
	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	centered := make([]float64, len(data))
	for i, v := range data {
		centered[i] = v - mean
	}

	coeffs := fft.FFTReal(centered)
	ps := make([]float64, len(coeffs)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(coeffs[i])
	}
	return ps
}

// DominantPeriod returns the period, in the units of step, of the largest
// non-constant spectral component of a uniformly sampled series.
func DominantPeriod(series []float64, step float64) (float64, error) {
	if len(series) < 4 {
		return 0, errors.New("analysis: series too short for a spectrum")
	}
	ps := PowerSpectrum(series)
	best := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[best] {
			best = k
		}
	}
	if ps[best] < 1e-12 {
		return 0, ErrFlatSeries
	}
	return float64(len(series)) * step / float64(best), nil
}
