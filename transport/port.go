// Package transport defines the adapter contract the bus engine uses
// to reach the physical device (serial UART, network-attached
// gateway, or a replay source) plus the raw-dump and grab diagnostics
// described in spec §6.4. The engine owns exactly one Port; callers
// pick the concrete implementation (serial, TCP) at startup.
package transport

import (
	"context"
	"io"

	"github.com/rob-gra/ebusd-go/ebuserr"
)

// Port is the external device adapter contract: byte-at-a-time I/O
// with per-call deadlines, matching the bus engine's suspension
// points (spec §5, "the bus thread blocks only in
// transport.read_byte(timeout) and transport.write_byte").
type Port interface {
	ReadByte(ctx context.Context) (byte, error)
	WriteByte(ctx context.Context, b byte) error
	Close() error
}

// StreamPort adapts any io.ReadWriteCloser (a serial line, a TCP
// socket to a network gateway) into a Port. It does not itself
// enforce per-call deadlines beyond what ctx's deadline triggers on
// the underlying Read/Write; callers needing a hard byte timeout
// should wrap rw with one that honors context cancellation.
type StreamPort struct {
	rw  io.ReadWriteCloser
	buf [1]byte
}

func NewStreamPort(rw io.ReadWriteCloser) *StreamPort {
	return &StreamPort{rw: rw}
}

func (p *StreamPort) ReadByte(ctx context.Context) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, ebuserr.Wrap(ebuserr.DeviceTimeout, "read byte", err)
	}
	n, err := p.rw.Read(p.buf[:])
	if err != nil {
		return 0, ebuserr.Wrap(ebuserr.DeviceIO, "read byte", err)
	}
	if n != 1 {
		return 0, ebuserr.New(ebuserr.DeviceIO, "short read")
	}
	return p.buf[0], nil
}

func (p *StreamPort) WriteByte(ctx context.Context, b byte) error {
	if err := ctx.Err(); err != nil {
		return ebuserr.Wrap(ebuserr.DeviceTimeout, "write byte", err)
	}
	p.buf[0] = b
	if _, err := p.rw.Write(p.buf[:]); err != nil {
		return ebuserr.Wrap(ebuserr.DeviceIO, "write byte", err)
	}
	return nil
}

func (p *StreamPort) Close() error { return p.rw.Close() }
