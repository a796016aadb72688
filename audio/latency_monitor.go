package audio

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiorx/packet"
	"github.com/opd-ai/audiorx/rtptime"
)

// LatencyMonitorConfig configures latency supervision for one session.
// All durations are converted to sender-rate samples at construction.
type LatencyMonitorConfig struct {
	// TargetLatency is the control loop setpoint.
	TargetLatency time.Duration
	// MinLatency and MaxLatency are the hard bounds; a measured niq
	// latency outside them tears the session down. Both zero disables
	// the check.
	MinLatency time.Duration
	MaxLatency time.Duration
	// FEEnable runs the rate-adaptation loop.
	FEEnable bool
	// FEProfile selects the controller gains.
	FEProfile FEProfile
	// FEUpdateInterval is the estimator input cadence in stream time.
	FEUpdateInterval time.Duration
	// MaxScalingDelta is the clamp half-width around 1.0 for the
	// coefficient handed to the resampler.
	MaxScalingDelta float64
	// TimeProvider supplies the wall clock; nil selects the system
	// clock.
	TimeProvider TimeProvider
}

// LatencyStats is a snapshot of the monitor's measurements.
type LatencyStats struct {
	// NiqLatency is the network-in-queue latency: distance from the
	// latest queued packet to the depacketizer output position.
	NiqLatency time.Duration
	HasNiq     bool
	// E2eLatency is the sender-capture-to-consumption latency.
	E2eLatency time.Duration
	HasE2e     bool
	// FreqCoeff is the clamped coefficient last handed to the
	// resampler; zero when rate adaptation is off.
	FreqCoeff float64
}

// LatencyMonitor supervises one session's latency.
//
// It wraps the session's top frame reader to observe end-to-end
// latency, and once per output frame inspects the distance between the
// source queue tail and the depacketizer head. When rate adaptation is
// enabled it periodically feeds that distance to the frequency
// estimator and pushes the clamped coefficient into the resampler.
type LatencyMonitor struct {
	reader    FrameReader
	queue     *packet.SortedQueue
	depack    *Depacketizer
	resampler *Resampler
	fe        *FreqEstimator

	spec rtptime.SampleSpec
	cfg  LatencyMonitorConfig
	tp   TimeProvider

	target int32
	min    int32
	max    int32

	updateInterval uint64
	updatePos      uint64
	hasUpdatePos   bool

	niq    int32
	hasNiq bool
	e2e    int32
	hasE2e bool
	coeff  float64

	reporter *rateLimiter
}

// NewLatencyMonitor wires a monitor over a session's reader chain.
// resampler may be nil only when cfg.FEEnable is false.
func NewLatencyMonitor(
	reader FrameReader,
	queue *packet.SortedQueue,
	depack *Depacketizer,
	resampler *Resampler,
	spec rtptime.SampleSpec,
	cfg LatencyMonitorConfig,
) (*LatencyMonitor, error) {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}

	m := &LatencyMonitor{
		reader:         reader,
		queue:          queue,
		depack:         depack,
		resampler:      resampler,
		spec:           spec,
		cfg:            cfg,
		tp:             tp,
		target:         int32(spec.NsToSamples(cfg.TargetLatency)),
		min:            int32(spec.NsToSamples(cfg.MinLatency)),
		max:            int32(spec.NsToSamples(cfg.MaxLatency)),
		updateInterval: uint64(spec.NsToSamples(cfg.FEUpdateInterval)),
		reporter:       newRateLimiter(reportInterval, tp),
	}

	if cfg.FEEnable {
		if resampler == nil {
			return nil, ErrScalingOutOfRange
		}
		if m.updateInterval == 0 {
			return nil, fmt.Errorf("fe update interval cannot be zero")
		}
		fe, err := NewFreqEstimator(cfg.FEProfile, uint32(m.target))
		if err != nil {
			return nil, err
		}
		m.fe = fe
		if err := resampler.SetScaling(1.0); err != nil {
			return nil, err
		}
		m.coeff = 1.0
	}

	logrus.WithFields(logrus.Fields{
		"target_latency": cfg.TargetLatency,
		"min_latency":    cfg.MinLatency,
		"max_latency":    cfg.MaxLatency,
		"fe_enable":      cfg.FEEnable,
		"fe_profile":     cfg.FEProfile.String(),
		"fe_interval":    cfg.FEUpdateInterval,
	}).Debug("latency monitor created")

	return m, nil
}

// ReadFrame reads the next frame through the monitored chain and
// derives end-to-end latency from its capture timestamp.
func (m *LatencyMonitor) ReadFrame(dst *Frame) error {
	if err := m.reader.ReadFrame(dst); err != nil {
		return err
	}
	if !dst.Capture.IsZero() {
		m.e2e = int32(m.spec.NsToSamples(m.tp.Now().Sub(dst.Capture)))
		m.hasE2e = true
	}
	return nil
}

// Update runs the per-frame latency checks with the receiver stream
// position just consumed (in receiver-rate per-channel samples).
//
// Returns ErrLatencyOutOfBounds when the niq latency violates the
// configured bounds or the resampler rejects the derived coefficient;
// the session treats that as fatal.
func (m *LatencyMonitor) Update(streamPos uint64) error {
	m.updateNiq()

	if !m.hasNiq {
		return nil
	}

	if err := m.checkBounds(); err != nil {
		return err
	}
	if m.fe != nil {
		if err := m.updateScaling(streamPos); err != nil {
			return err
		}
	}
	m.report()
	return nil
}

// Stats returns the current measurements.
func (m *LatencyMonitor) Stats() LatencyStats {
	return LatencyStats{
		NiqLatency: m.spec.MediaTSToNs(m.niq),
		HasNiq:     m.hasNiq,
		E2eLatency: m.spec.MediaTSToNs(m.e2e),
		HasE2e:     m.hasE2e,
		FreqCoeff:  m.coeff,
	}
}

func (m *LatencyMonitor) updateNiq() {
	if !m.depack.Started() {
		return
	}
	tail, ok := m.queue.LatestEnd()
	if !ok {
		return
	}
	m.niq = rtptime.Diff(tail, m.depack.NextTimestamp())
	m.hasNiq = true
}

func (m *LatencyMonitor) checkBounds() error {
	if m.cfg.MinLatency == 0 && m.cfg.MaxLatency == 0 {
		return nil
	}
	if m.niq < m.min || m.niq > m.max {
		logrus.WithFields(logrus.Fields{
			"niq_latency": m.spec.MediaTSToNs(m.niq),
			"min_latency": m.cfg.MinLatency,
			"max_latency": m.cfg.MaxLatency,
		}).Debug("latency out of bounds")
		return ErrLatencyOutOfBounds
	}
	return nil
}

// updateScaling feeds the estimator once per update interval of stream
// position and pushes the clamped coefficient into the resampler.
func (m *LatencyMonitor) updateScaling(streamPos uint64) error {
	latency := m.niq
	if latency < 0 {
		latency = 0
	}

	if !m.hasUpdatePos {
		m.hasUpdatePos = true
		m.updatePos = streamPos
	}
	for streamPos >= m.updatePos {
		m.fe.Update(uint32(latency))
		m.updatePos += m.updateInterval
	}

	coeff := m.fe.FreqCoeff()
	if coeff > 1.0+m.cfg.MaxScalingDelta {
		coeff = 1.0 + m.cfg.MaxScalingDelta
	}
	if coeff < 1.0-m.cfg.MaxScalingDelta {
		coeff = 1.0 - m.cfg.MaxScalingDelta
	}
	m.coeff = coeff

	if err := m.resampler.SetScaling(coeff); err != nil {
		logrus.WithFields(logrus.Fields{
			"fe_coeff":   m.fe.FreqCoeff(),
			"trim_coeff": coeff,
		}).Debug("resampler rejected scaling coefficient")
		return ErrLatencyOutOfBounds
	}
	return nil
}

func (m *LatencyMonitor) report() {
	if !m.reporter.allow() {
		return
	}
	fields := logrus.Fields{
		"niq_latency":    m.spec.MediaTSToNs(m.niq),
		"target_latency": m.cfg.TargetLatency,
	}
	if m.hasE2e {
		fields["e2e_latency"] = m.spec.MediaTSToNs(m.e2e)
	}
	if m.fe != nil {
		fields["fe_coeff"] = m.fe.FreqCoeff()
		fields["trim_coeff"] = m.coeff
	}
	logrus.WithFields(fields).Debug("latency report")
}
