package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAddressInUse indicates the local address is already bound.
var ErrAddressInUse = errors.New("address already in use")

// Dispatch receives one datagram on the network goroutine.
type Dispatch func(data []byte, addr net.Addr, recvTime time.Time)

// UDPConfig configures a UDP endpoint.
type UDPConfig struct {
	// Addr is the local host:port to bind.
	Addr string
	// MulticastGroup, when set, joins the group on MulticastInterface.
	MulticastGroup net.IP
	// MulticastInterface names the interface for the multicast join;
	// empty selects the system default.
	MulticastInterface string
	// ReuseAddr sets SO_REUSEADDR before binding.
	ReuseAddr bool
	// MaxPacketSize bounds the receive buffer; zero selects 2048.
	MaxPacketSize int
}

// UDPEndpoint is one bound socket with its receive loop.
type UDPEndpoint struct {
	conn     net.PacketConn
	dispatch Dispatch
	cancel   context.CancelFunc
	done     sync.WaitGroup
	maxSize  int
}

// Bind opens the socket and starts the receive loop.
func Bind(cfg UDPConfig, dispatch Dispatch) (*UDPEndpoint, error) {
	if dispatch == nil {
		return nil, fmt.Errorf("dispatch cannot be nil")
	}
	maxSize := cfg.MaxPacketSize
	if maxSize <= 0 {
		maxSize = 2048
	}

	conn, err := listen(cfg)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %s", ErrAddressInUse, cfg.Addr)
		}
		return nil, fmt.Errorf("failed to bind %s: %w", cfg.Addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &UDPEndpoint{
		conn:     conn,
		dispatch: dispatch,
		cancel:   cancel,
		maxSize:  maxSize,
	}

	logrus.WithFields(logrus.Fields{
		"addr":      conn.LocalAddr().String(),
		"multicast": cfg.MulticastGroup != nil,
		"reuseaddr": cfg.ReuseAddr,
	}).Info("UDP endpoint bound")

	ep.done.Add(1)
	go ep.receiveLoop(ctx)
	return ep, nil
}

func listen(cfg UDPConfig) (net.PacketConn, error) {
	if cfg.MulticastGroup != nil {
		var iface *net.Interface
		if cfg.MulticastInterface != "" {
			found, err := net.InterfaceByName(cfg.MulticastInterface)
			if err != nil {
				return nil, fmt.Errorf("unknown multicast interface %q: %w", cfg.MulticastInterface, err)
			}
			iface = found
		}
		local, err := net.ResolveUDPAddr("udp", cfg.Addr)
		if err != nil {
			return nil, err
		}
		group := &net.UDPAddr{IP: cfg.MulticastGroup, Port: local.Port}
		return net.ListenMulticastUDP("udp", iface, group)
	}

	lc := net.ListenConfig{}
	if cfg.ReuseAddr {
		lc.Control = func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		}
	}
	return lc.ListenPacket(context.Background(), "udp", cfg.Addr)
}

// LocalAddr returns the bound address.
func (ep *UDPEndpoint) LocalAddr() net.Addr {
	return ep.conn.LocalAddr()
}

// Close stops the receive loop and closes the socket.
func (ep *UDPEndpoint) Close() error {
	ep.cancel()
	err := ep.conn.Close()
	ep.done.Wait()
	return err
}

// receiveLoop reads datagrams until the endpoint closes. Each datagram
// is copied before dispatch so the read buffer can be reused.
func (ep *UDPEndpoint) receiveLoop(ctx context.Context) {
	defer ep.done.Done()

	buf := make([]byte, ep.maxSize)
	for {
		n, addr, err := ep.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			logrus.WithFields(logrus.Fields{
				"addr":  ep.conn.LocalAddr().String(),
				"error": err.Error(),
			}).Debug("UDP receive loop terminated")
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		ep.dispatch(data, addr, time.Now())
	}
}
