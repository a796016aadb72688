package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FEProfile selects the frequency estimator controller gains.
type FEProfile uint8

const (
	// FEProfileResponsive reacts quickly at the cost of more coefficient
	// movement; suited to low target latencies.
	FEProfileResponsive FEProfile = iota
	// FEProfileBalanced is the default trade-off.
	FEProfileBalanced
	// FEProfileSmooth moves the coefficient slowly; suited to high
	// target latencies where stability matters more than settle time.
	FEProfileSmooth
)

// String returns a human-readable profile name.
func (p FEProfile) String() string {
	switch p {
	case FEProfileResponsive:
		return "responsive"
	case FEProfileBalanced:
		return "balanced"
	case FEProfileSmooth:
		return "smooth"
	default:
		return "unknown"
	}
}

// feGains are the PI controller gains of one profile, applied to a
// latency error expressed in samples.
type feGains struct {
	p float64 // proportional
	i float64 // integral, per update
	a float64 // input smoothing factor (exponential moving average)
}

func gainsFor(profile FEProfile) feGains {
	switch profile {
	case FEProfileResponsive:
		return feGains{p: 2e-4, i: 1e-5, a: 0.30}
	case FEProfileSmooth:
		return feGains{p: 3e-5, i: 1e-6, a: 0.05}
	default:
		return feGains{p: 1e-4, i: 5e-6, a: 0.15}
	}
}

// integralBound caps the integral term's contribution to the
// coefficient, preventing windup during long stalls.
const integralBound = 0.01

// FreqEstimator derives a resampler scaling coefficient from observed
// queue latency.
//
// It is a PI controller over the smoothed latency error: coefficients
// above 1.0 drain excess latency, below 1.0 build it back up. Given the
// same profile and input sequence the estimator is fully deterministic.
type FreqEstimator struct {
	gains  feGains
	target float64

	smoothed    float64
	hasSmoothed bool
	integral    float64
	coeff       float64
	updates     uint64
}

// NewFreqEstimator creates an estimator steering the latency toward
// target (in sender-rate samples).
func NewFreqEstimator(profile FEProfile, target uint32) (*FreqEstimator, error) {
	if target == 0 {
		return nil, fmt.Errorf("target latency cannot be zero")
	}

	logrus.WithFields(logrus.Fields{
		"profile": profile.String(),
		"target":  target,
	}).Debug("frequency estimator created")

	return &FreqEstimator{
		gains:  gainsFor(profile),
		target: float64(target),
		coeff:  1.0,
	}, nil
}

// Update feeds one observed latency sample, in sender-rate samples.
// Calls must be roughly uniformly spaced in stream time; the latency
// monitor enforces the cadence.
func (f *FreqEstimator) Update(latency uint32) {
	if !f.hasSmoothed {
		f.smoothed = float64(latency)
		f.hasSmoothed = true
	} else {
		f.smoothed += f.gains.a * (float64(latency) - f.smoothed)
	}

	err := f.smoothed - f.target

	f.integral += f.gains.i * err
	if f.integral > integralBound {
		f.integral = integralBound
	} else if f.integral < -integralBound {
		f.integral = -integralBound
	}

	f.coeff = 1.0 + f.gains.p*err + f.integral
	f.updates++
}

// FreqCoeff returns the current scaling coefficient. 1.0 before the
// first update.
func (f *FreqEstimator) FreqCoeff() float64 {
	return f.coeff
}

// Updates returns the number of latency samples consumed.
func (f *FreqEstimator) Updates() uint64 {
	return f.updates
}
