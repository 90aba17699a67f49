// Package transport provides the network collaborators at the edge of the
// pipelines: a datagram sender for encoded packets and a receiver that
// feeds payloads to the ingest path. One delivery unit is one datagram; a
// zero-length datagram is the wire representation of a missed interval.
// Retry and reconnect policy deliberately lives outside the streaming core.
package transport

import (
	"context"
	"log/slog"
	"net"

	"github.com/tphakala/audiobridge-go/internal/codec"
	"github.com/tphakala/audiobridge-go/internal/errors"
	"github.com/tphakala/audiobridge-go/internal/logging"
)

// maxDatagram bounds a single receive. Larger than any packet the codecs
// produce, smaller than the UDP maximum.
const maxDatagram = 8192

// UDPSender forwards compressed packets to a fixed peer. It implements
// pipeline.PacketSender.
type UDPSender struct {
	conn *net.UDPConn
	log  *slog.Logger
}

// NewUDPSender resolves addr and opens the socket.
func NewUDPSender(addr string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.New(err).
			Component("transport").
			Category(errors.CategoryNetwork).
			Context("addr", addr).
			Build()
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, errors.New(err).
			Component("transport").
			Category(errors.CategoryNetwork).
			Context("addr", addr).
			Build()
	}
	return &UDPSender{
		conn: conn,
		log:  logging.ForService("transport").With("peer", addr),
	}, nil
}

// SendPacket writes one packet as one datagram. A missed packet becomes a
// zero-length datagram so the peer's cadence advances too.
func (s *UDPSender) SendPacket(pkt codec.CompressedPacket) error {
	payload := pkt.Bytes
	if pkt.IsMissed() {
		payload = nil
	}
	if _, err := s.conn.Write(payload); err != nil {
		return errors.New(err).
			Component("transport").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}

// Close releases the socket.
func (s *UDPSender) Close() error {
	return s.conn.Close()
}

// UDPReceiver listens for payload datagrams and hands each to a handler on
// the delivery goroutine.
type UDPReceiver struct {
	conn *net.UDPConn
	log  *slog.Logger
}

// NewUDPReceiver binds the listen address.
func NewUDPReceiver(listenAddr string) (*UDPReceiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, errors.New(err).
			Component("transport").
			Category(errors.CategoryNetwork).
			Context("listen", listenAddr).
			Build()
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.New(err).
			Component("transport").
			Category(errors.CategoryNetwork).
			Context("listen", listenAddr).
			Build()
	}
	return &UDPReceiver{
		conn: conn,
		log:  logging.ForService("transport").With("listen", listenAddr),
	}, nil
}

// LocalAddr returns the bound address, useful when listening on port 0.
func (r *UDPReceiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Serve reads datagrams until ctx is canceled or the handler returns an
// error. The handler runs on the delivery goroutine, never on the hardware
// thread; a handler error is terminal (the ingest pipeline already stopped
// itself) and is returned to the caller.
func (r *UDPReceiver) Serve(ctx context.Context, handle func(payload []byte) error) error {
	go func() {
		<-ctx.Done()
		// Unblocks the read loop.
		if err := r.conn.Close(); err != nil {
			r.log.Debug("receiver close", "error", err)
		}
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.New(err).
				Component("transport").
				Category(errors.CategoryNetwork).
				Build()
		}

		// The payload is handed off by copy: the handler owns its buffer
		// and the read buffer is reused immediately.
		payload := make([]byte, n)
		copy(payload, buf[:n])
		if err := handle(payload); err != nil {
			return err
		}
	}
}
