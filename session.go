package audiorx

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiorx/audio"
	"github.com/opd-ai/audiorx/fec"
	"github.com/opd-ai/audiorx/packet"
	"github.com/opd-ai/audiorx/rtp"
)

// Session owns the receive pipeline of one sender: the per-kind packet
// queues, FEC state, depacketizer, resampler, and latency monitor.
//
// The network context routes packets into the queues; everything else
// is driven by the audio context. A session that fails its latency
// bounds or desynchronizes marks itself torn down and is destroyed by
// the router on the next frame; the sender's next packet recreates it.
type Session struct {
	key  string
	addr net.Addr

	sourceQueue *packet.SortedQueue
	repairQueue *packet.SortedQueue
	blockReader *fec.BlockReader
	depack      *audio.Depacketizer
	resampler   *audio.Resampler
	monitor     *audio.LatencyMonitor

	lastPacket atomic.Int64 // unix nanoseconds
	torndown   atomic.Bool
	created    time.Time

	// Published counter snapshots, so the receiver can export deltas.
	lastDropped   uint64
	lastRecovered uint64
	lastExpired   uint64
}

// newSession builds the pipeline for one sender.
func newSession(cfg Config, key string, addr net.Addr, pool *packet.Pool, tp audio.TimeProvider) (*Session, error) {
	s := &Session{
		key:         key,
		addr:        addr,
		sourceQueue: packet.NewSortedQueue(cfg.QueueCapacity),
		created:     tp.Now(),
	}
	s.lastPacket.Store(s.created.UnixNano())

	senderSpec := cfg.senderSpec()

	var reader packet.Reader = s.sourceQueue
	if cfg.FECScheme != fec.SchemeDisable {
		s.repairQueue = packet.NewSortedQueue(cfg.QueueCapacity)
		decoder := fec.NewParityDecoder(fec.ParityConfig{
			BlockSize:   cfg.FECBlockSize,
			RepairCount: cfg.FECRepairCount,
		}, pool)
		s.blockReader = fec.NewBlockReader(s.sourceQueue, s.repairQueue, decoder)
		reader = s.blockReader
	}

	payloadDecoder, err := newPayloadDecoder(cfg)
	if err != nil {
		s.close()
		return nil, err
	}

	s.depack = audio.NewDepacketizer(reader, payloadDecoder, audio.DepacketizerConfig{
		Spec:   senderSpec,
		MaxGap: int32(senderSpec.NsToSamples(cfg.MaxLatency)),
	})

	s.resampler, err = audio.NewResampler(s.depack, audio.ResamplerConfig{
		InputSpec:  senderSpec,
		OutputSpec: cfg.outputSpec(),
		Profile:    cfg.ResamplerProfile,
	})
	if err != nil {
		s.close()
		return nil, err
	}

	s.monitor, err = audio.NewLatencyMonitor(
		s.resampler, s.sourceQueue, s.depack, s.resampler,
		senderSpec,
		audio.LatencyMonitorConfig{
			TargetLatency:    cfg.TargetLatency,
			MinLatency:       cfg.MinLatency,
			MaxLatency:       cfg.MaxLatency,
			FEEnable:         cfg.FEEnable,
			FEProfile:        cfg.FEProfile,
			FEUpdateInterval: cfg.FEUpdateInterval,
			MaxScalingDelta:  cfg.MaxScalingDelta,
			TimeProvider:     tp,
		},
	)
	if err != nil {
		s.close()
		return nil, err
	}

	return s, nil
}

func newPayloadDecoder(cfg Config) (rtp.PayloadDecoder, error) {
	switch cfg.Codec {
	case CodecL16:
		return rtp.NewL16Decoder(cfg.Channels)
	case CodecOpus:
		return rtp.NewOpusDecoder(cfg.Channels)
	default:
		return nil, fmt.Errorf("unknown payload codec: %d", cfg.Codec)
	}
}

// route places an accepted packet into the queue for its kind. Takes
// over the packet reference. Called from the network context.
func (s *Session) route(pkt *packet.Packet, recvTime time.Time) error {
	s.lastPacket.Store(recvTime.UnixNano())

	switch pkt.Kind {
	case packet.KindSource:
		return s.sourceQueue.Insert(pkt)
	case packet.KindRepair:
		if s.repairQueue == nil {
			pkt.Release()
			return nil
		}
		return s.repairQueue.Insert(pkt)
	default:
		// Control packets carry no media and are discarded; no
		// control-plane signalling is processed.
		pkt.Release()
		return nil
	}
}

// ReadFrame pulls one output-rate frame through the session pipeline,
// satisfying audio.FrameReader for the mixer. Audio context only.
func (s *Session) ReadFrame(dst *audio.Frame) error {
	return s.monitor.ReadFrame(dst)
}

// update runs the latency supervision with the stream position just
// consumed. A failure marks the session for teardown. Audio context
// only.
func (s *Session) update(streamPos uint64) error {
	if err := s.monitor.Update(streamPos); err != nil {
		s.markTeardown("latency")
		return err
	}
	return nil
}

// markTeardown flags the session for destruction on the next router
// scan.
func (s *Session) markTeardown(reason string) {
	if s.torndown.CompareAndSwap(false, true) {
		logrus.WithFields(logrus.Fields{
			"session": s.key,
			"reason":  reason,
		}).Debug("session marked for teardown")
	}
}

// tornDown reports whether the session requested destruction.
func (s *Session) tornDown() bool {
	return s.torndown.Load()
}

// idleSince returns the arrival time of the most recent packet.
func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastPacket.Load())
}

// Stats returns the session's latency measurements.
func (s *Session) Stats() audio.LatencyStats {
	return s.monitor.Stats()
}

// close releases the session's resources. Audio context only; the
// queues reject further network inserts afterwards.
func (s *Session) close() {
	s.sourceQueue.Close()
	if s.repairQueue != nil {
		s.repairQueue.Close()
	}
	if s.blockReader != nil {
		s.blockReader.Close()
	}
	if s.depack != nil {
		s.depack.Close()
	}
}
