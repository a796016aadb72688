package audiorx

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiorx/metrics"
	"github.com/opd-ai/audiorx/packet"
)

// Router demultiplexes accepted packets into per-sender sessions and
// owns their lifecycle.
//
// Dispatch runs on the network context and may create sessions;
// destruction happens only from the audio context (prune), so a
// producer never races a free. The map mutex is held briefly for
// lookup, insert and snapshot; mixing iterates over a snapshot taken
// under the mutex and released before any session work.
type Router struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg  Config
	pool *packet.Pool
	met  *metrics.Set
	tp   TimeProvider

	closed atomic.Bool
}

func newRouter(cfg Config, pool *packet.Pool, met *metrics.Set, tp TimeProvider) *Router {
	return &Router{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		pool:     pool,
		met:      met,
		tp:       tp,
	}
}

// Dispatch routes one accepted packet to its session, creating the
// session on first contact. Takes over the packet reference. Network
// context entry point.
func (r *Router) Dispatch(pkt *packet.Packet, recvTime time.Time) error {
	if r.closed.Load() {
		pkt.Release()
		return ErrClosed
	}

	r.mu.Lock()
	sess, ok := r.sessions[pkt.SourceKey]
	if !ok {
		if len(r.sessions) >= r.cfg.MaxSessions {
			r.mu.Unlock()
			pkt.Release()
			r.met.PacketsDropped.WithLabelValues("session_limit").Inc()
			logrus.WithFields(logrus.Fields{
				"source":       pkt.SourceKey,
				"max_sessions": r.cfg.MaxSessions,
			}).Warn("session limit reached, dropping packet")
			return errSessionLimit
		}

		var err error
		sess, err = newSession(r.cfg, pkt.SourceKey, pkt.Source, r.pool, r.tp)
		if err != nil {
			r.mu.Unlock()
			pkt.Release()
			r.met.PacketsDropped.WithLabelValues("session_create").Inc()
			logrus.WithFields(logrus.Fields{
				"source": pkt.SourceKey,
				"error":  err.Error(),
			}).Error("failed to create session")
			return err
		}
		r.sessions[pkt.SourceKey] = sess
		r.mu.Unlock()

		r.met.SessionsCreated.Inc()
		r.met.ActiveSessions.Set(float64(r.sessionCount()))
		logrus.WithFields(logrus.Fields{
			"session": pkt.SourceKey,
		}).Info("SessionCreated")
	} else {
		r.mu.Unlock()
	}

	r.met.PacketsReceived.WithLabelValues(pkt.Kind.String()).Inc()
	return sess.route(pkt, recvTime)
}

// Snapshot returns the live sessions. The slice is fresh; the sessions
// are shared.
func (r *Router) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

func (r *Router) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Prune destroys idle and torn-down sessions. Audio context only.
func (r *Router) Prune(now time.Time) {
	var victims []*Session
	var reasons []string

	r.mu.Lock()
	for key, sess := range r.sessions {
		switch {
		case sess.tornDown():
			victims = append(victims, sess)
			reasons = append(reasons, "teardown")
			delete(r.sessions, key)
		case now.Sub(sess.idleSince()) > r.cfg.IdleTimeout:
			victims = append(victims, sess)
			reasons = append(reasons, "idle")
			delete(r.sessions, key)
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	for i, sess := range victims {
		sess.close()
		r.met.SessionsRemoved.WithLabelValues(reasons[i]).Inc()
		logrus.WithFields(logrus.Fields{
			"session": sess.key,
			"reason":  reasons[i],
		}).Info("SessionDestroyed")
	}
	if len(victims) > 0 {
		r.met.ActiveSessions.Set(float64(remaining))
	}
}

// Close stops packet intake and destroys all sessions. Audio context
// only.
func (r *Router) Close() {
	r.closed.Store(true)

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
		r.met.SessionsRemoved.WithLabelValues("closed").Inc()
	}
	r.met.ActiveSessions.Set(0)
}
