// Package audiorx implements a realtime audio streaming receiver.
//
// The receiver accepts RTP media packets (plus an optional FEC repair
// stream) from one or more senders over UDP, reconstructs per-sender
// audio streams while tolerating loss, reorder and clock skew, mixes
// them into one continuous PCM stream, and hands that stream to the
// caller in fixed-size frames.
//
// Example:
//
//	ctx, err := audiorx.NewContext(audiorx.ContextConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := audiorx.DefaultConfig()
//	cfg.SampleRate = 48000
//	cfg.Channels = 1
//
//	recv, err := audiorx.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := recv.Bind(audiorx.SlotDefault, audiorx.InterfaceAudioSource, "0.0.0.0:10001"); err != nil {
//	    log.Fatal(err)
//	}
//
//	frame := audio.NewFrame(480)
//	for {
//	    if err := recv.Read(frame); err != nil {
//	        break
//	    }
//	    playback.Write(frame.Samples)
//	}
//
//	recv.Close()
//	ctx.Close()
package audiorx

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiorx/audio"
	"github.com/opd-ai/audiorx/packet"
	"github.com/opd-ai/audiorx/rtp"
	"github.com/opd-ai/audiorx/transport"
)

type endpointKey struct {
	slot  Slot
	iface Interface
}

type endpointOptions struct {
	multicastGroup net.IP
	multicastIface string
	reuseAddr      bool
	remote         net.Addr
}

// Receiver is one receive pipeline instance.
//
// The network goroutines owned by its endpoints feed packets through
// the session router; a single caller goroutine drives Read. Read
// never fails for transient network or per-session conditions: lost
// packets become silence, broken sessions are torn down and rebuilt on
// the sender's next packet.
type Receiver struct {
	cfg Config
	ctx *Context

	router *Router
	mixer  *audio.Mixer
	clock  *outputClock
	parser *rtp.Parser

	mu        sync.Mutex
	endpoints map[endpointKey]*transport.UDPEndpoint
	options   map[endpointKey]*endpointOptions
	closed    bool

	streamPos uint64
	tp        TimeProvider
}

// Open creates a receiver on the given context.
//
// The configuration is validated once; on failure the receiver is not
// created and ErrInvalidConfig is returned.
func Open(ctx *Context, cfg Config) (*Receiver, error) {
	return open(ctx, cfg, RealTimeProvider{})
}

// open is the TimeProvider-injectable constructor used by tests.
func open(ctx *Context, cfg Config, tp TimeProvider) (*Receiver, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidArgument)
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := ctx.acquire(); err != nil {
		return nil, err
	}

	decoder, err := newPayloadDecoder(cfg)
	if err != nil {
		ctx.release()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	parserCfg := rtp.ParserConfig{
		SourcePayloadType:    cfg.PayloadType,
		RepairPayloadType:    cfg.RepairPayloadType,
		CaptureTSExtensionID: cfg.CaptureTSExtensionID,
		SampleDuration:       decoder.SampleCount,
		FECBlockSize:         cfg.FECBlockSize,
	}
	parser, err := rtp.NewParser(parserCfg, ctx.pool)
	if err != nil {
		ctx.release()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	r := &Receiver{
		cfg:       cfg,
		ctx:       ctx,
		router:    newRouter(cfg, ctx.pool, ctx.metrics, tp),
		mixer:     audio.NewMixer(0),
		clock:     newOutputClock(cfg.ClockSource, tp),
		parser:    parser,
		endpoints: make(map[endpointKey]*transport.UDPEndpoint),
		options:   make(map[endpointKey]*endpointOptions),
		tp:        tp,
	}

	logrus.WithFields(logrus.Fields{
		"output":         cfg.outputSpec().String(),
		"sender":         cfg.senderSpec().String(),
		"target_latency": cfg.TargetLatency,
		"clock":          cfg.ClockSource,
		"fec":            cfg.FECScheme.String(),
	}).Info("receiver opened")

	return r, nil
}

// SetMulticastGroup configures the multicast group joined when the
// interface is bound. Must be called before Bind for that interface.
func (r *Receiver) SetMulticastGroup(slot Slot, iface Interface, ip net.IP) error {
	if ip == nil || !ip.IsMulticast() {
		return fmt.Errorf("%w: not a multicast address: %v", ErrInvalidArgument, ip)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	key := endpointKey{slot, iface}
	if _, bound := r.endpoints[key]; bound {
		return fmt.Errorf("%w: interface %s already bound", ErrInvalidArgument, iface)
	}
	r.option(key).multicastGroup = ip
	return nil
}

// SetReuseaddr toggles SO_REUSEADDR for the interface's socket. Must
// be called before Bind for that interface.
func (r *Receiver) SetReuseaddr(slot Slot, iface Interface, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	key := endpointKey{slot, iface}
	if _, bound := r.endpoints[key]; bound {
		return fmt.Errorf("%w: interface %s already bound", ErrInvalidArgument, iface)
	}
	r.option(key).reuseAddr = enabled
	return nil
}

// option returns the pending options for key, creating them. r.mu held.
func (r *Receiver) option(key endpointKey) *endpointOptions {
	opt, ok := r.options[key]
	if !ok {
		opt = &endpointOptions{}
		r.options[key] = opt
	}
	return opt
}

// Bind opens the interface's UDP endpoint on addr and starts accepting
// packets from it.
func (r *Receiver) Bind(slot Slot, iface Interface, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	key := endpointKey{slot, iface}
	if _, bound := r.endpoints[key]; bound {
		return fmt.Errorf("%w: interface %s already bound", ErrInvalidArgument, iface)
	}

	opt := r.option(key)
	ep, err := transport.Bind(transport.UDPConfig{
		Addr:               addr,
		MulticastGroup:     opt.multicastGroup,
		MulticastInterface: opt.multicastIface,
		ReuseAddr:          opt.reuseAddr,
		MaxPacketSize:      r.ctx.maxPacketSize,
	}, r.dispatch)
	if err != nil {
		if errors.Is(err, transport.ErrAddressInUse) {
			return fmt.Errorf("%w: %s", ErrAddressInUse, addr)
		}
		return err
	}

	r.endpoints[key] = ep
	logrus.WithFields(logrus.Fields{
		"slot":      slot,
		"interface": iface.String(),
		"addr":      ep.LocalAddr().String(),
	}).Info("endpoint bound")
	return nil
}

// Connect associates an interface with a remote endpoint instead of
// binding a local one. The remote address is resolved and recorded;
// media still arrives through bound interfaces, and any signalling
// toward the remote side is the control loop's concern.
func (r *Receiver) Connect(slot Slot, iface Interface, addr string) error {
	remote, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.option(endpointKey{slot, iface}).remote = remote

	logrus.WithFields(logrus.Fields{
		"slot":      slot,
		"interface": iface.String(),
		"remote":    remote.String(),
	}).Info("endpoint connected")
	return nil
}

// LocalAddr returns the bound address of an interface, or nil.
func (r *Receiver) LocalAddr(slot Slot, iface Interface) net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[endpointKey{slot, iface}]
	if !ok {
		return nil
	}
	return ep.LocalAddr()
}

// dispatch is the network-context entry point: parse one datagram and
// route it. Parse failures drop the datagram; routing failures are
// session-level and already recorded.
func (r *Receiver) dispatch(data []byte, addr net.Addr, recvTime time.Time) {
	pkt, err := r.parser.Parse(data, addr)
	if err != nil {
		if errors.Is(err, packet.ErrPoolExhausted) {
			r.ctx.metrics.PacketsDropped.WithLabelValues("pool_exhausted").Inc()
		} else {
			r.ctx.metrics.PacketsDropped.WithLabelValues("parse").Inc()
		}
		logrus.WithFields(logrus.Fields{
			"source": addr.String(),
			"error":  err.Error(),
		}).Debug("dropping undecodable datagram")
		return
	}
	_ = r.router.Dispatch(pkt, recvTime)
}

// Read fills frame with the next block of mixed output PCM.
//
// Exactly len(frame.Samples) samples are produced on every call, even
// with zero live sessions. With the internal clock the call sleeps
// until the frame's deadline; with the external clock it returns
// immediately.
func (r *Receiver) Read(frame *audio.Frame) error {
	if frame == nil || len(frame.Samples) == 0 || len(frame.Samples)%r.cfg.Channels != 0 ||
		len(frame.Samples) > r.cfg.MaxFrameSize {
		return fmt.Errorf("%w: bad frame size", ErrInvalidArgument)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.mu.Unlock()

	perChan := len(frame.Samples) / r.cfg.Channels
	r.clock.gate(r.cfg.outputSpec().SamplesToNs(int64(perChan)))

	r.router.Prune(r.tp.Now())

	sessions := r.router.Snapshot()
	readers := make([]audio.FrameReader, len(sessions))
	for i, sess := range sessions {
		readers[i] = sess
	}

	for _, i := range r.mixer.Mix(frame, readers) {
		sessions[i].markTeardown("read")
	}

	r.streamPos += uint64(perChan)
	for _, sess := range sessions {
		if sess.tornDown() {
			continue
		}
		if err := sess.update(r.streamPos); err != nil {
			continue
		}
		r.publishStats(sess)
	}
	return nil
}

// publishStats mirrors a session's measurements into the metrics set.
func (r *Receiver) publishStats(sess *Session) {
	stats := sess.Stats()
	if stats.HasNiq {
		r.ctx.metrics.NiqLatency.Set(stats.NiqLatency.Seconds())
	}
	if stats.HasE2e {
		r.ctx.metrics.E2eLatency.Set(stats.E2eLatency.Seconds())
	}
	if stats.FreqCoeff != 0 {
		r.ctx.metrics.FreqCoeff.Set(stats.FreqCoeff)
	}

	if dropped := sess.sourceQueue.Dropped(); dropped > sess.lastDropped {
		r.ctx.metrics.QueueOverflows.Add(float64(dropped - sess.lastDropped))
		sess.lastDropped = dropped
	}
	if sess.blockReader != nil {
		ws := sess.blockReader.WindowStatus()
		if ws.Recovered > sess.lastRecovered {
			r.ctx.metrics.FecRecovered.Add(float64(ws.Recovered - sess.lastRecovered))
			sess.lastRecovered = ws.Recovered
		}
		if ws.Expired > sess.lastExpired {
			r.ctx.metrics.FecExpired.Add(float64(ws.Expired - sess.lastExpired))
			sess.lastExpired = ws.Expired
		}
	}
}

// Sessions returns the current number of live sessions.
func (r *Receiver) Sessions() int {
	return r.router.sessionCount()
}

// Close stops packet intake, destroys all sessions and releases the
// endpoints. Further calls on the receiver fail with ErrClosed.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	endpoints := r.endpoints
	r.endpoints = make(map[endpointKey]*transport.UDPEndpoint)
	r.mu.Unlock()

	for key, ep := range endpoints {
		if err := ep.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"slot":      key.slot,
				"interface": key.iface.String(),
				"error":     err.Error(),
			}).Warn("endpoint close failed")
		}
	}

	r.router.Close()
	r.ctx.release()

	logrus.Info("receiver closed")
	return nil
}
