// Package bus implements the protocol engine described in spec §4.6:
// a single-threaded, cooperative state machine driven byte-at-a-time
// by a transport.Port, handling arbitration, sending with echo
// verification, and passive reception of telegrams it did not win.
package bus

import (
	"context"
	"sync"

	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/logging"
	"github.com/rob-gra/ebusd-go/symbol"
	"github.com/rob-gra/ebusd-go/telegram"
	"github.com/rob-gra/ebusd-go/transport"
)

// PassiveListener receives every telegram the engine observes,
// whether it won arbitration or merely overheard it, so the
// MessageMap can update last-seen state (spec §4.4, §5 "shared
// resource policy").
type PassiveListener interface {
	OnPassive(tg telegram.Telegram, slaveData []byte)
}

// Handler is the bus engine. It owns the Port exclusively; callers
// interact only through Submit and the queue.
type Handler struct {
	port   transport.Port
	cfg    Config
	own    symbol.Address
	logger *logging.Logger

	mu       sync.Mutex
	queue    []*BusRequest
	queueCap int

	listener PassiveListener
}

// NewHandler builds a Handler bound to port, validating cfg (filling
// in defaults) and capping the pending-request queue at queueCap.
func NewHandler(port transport.Port, cfg Config, own symbol.Address, logger *logging.Logger, queueCap int) (*Handler, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	if queueCap <= 0 {
		queueCap = 16
	}
	return &Handler{port: port, cfg: cfg, own: own, logger: logger, queueCap: queueCap}, nil
}

// SetListener installs the passive-update sink. Must be called before
// Run starts, since the engine never synchronizes around it.
func (h *Handler) SetListener(l PassiveListener) { h.listener = l }

// Submit enqueues req for the engine's next opportunity. Ordering
// within a priority class is FIFO; callers enforce priority by
// choosing which queue (write/read/poll) to submit to upstream, per
// spec §5 — Handler itself keeps one FIFO and relies on the
// dispatcher to order writes ahead of reads ahead of polls before
// they reach Submit.
func (h *Handler) Submit(req *BusRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) >= h.queueCap {
		return ebuserr.New(ebuserr.InvalidArg, "bus request queue full")
	}
	h.queue = append(h.queue, req)
	return nil
}

func (h *Handler) popQueued() *BusRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.queue) > 0 {
		req := h.queue[0]
		h.queue = h.queue[1:]
		if !req.isCanceled() {
			return req
		}
		req.markActive() // observes the cancellation and completes Failed(Canceled)
	}
	return nil
}

// Run drives the engine until ctx is done. It is the bus thread of
// spec §5: it blocks only in port.ReadByte/WriteByte.
func (h *Handler) Run(ctx context.Context) error {
	var current *BusRequest
	arbitCount := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := h.port.ReadByte(ctx)
		if err != nil {
			h.logger.Warn(logging.Bus, "read byte: %v", err)
			continue
		}

		if b != symbol.SYN {
			if err := h.receivePassive(ctx, b); err != nil {
				h.logger.Debug(logging.Bus, "passive receive: %v", err)
			}
			continue
		}

		if current == nil {
			current = h.popQueued()
			if current == nil {
				continue
			}
			if !current.markActive() {
				current = nil
				continue
			}
			arbitCount = 0
		}

		won, foreignFirstByte, hasForeign, err := h.arbitrate(ctx, current.Telegram.Source)
		if err != nil {
			current.complete(nil, err)
			current = nil
			continue
		}
		if !won {
			arbitCount++
			if arbitCount > h.cfg.ArbitrationRetries {
				current.complete(nil, ebuserr.New(ebuserr.BusArbitrationLost, "arbitration retries exhausted"))
				current = nil
				continue
			}
			if hasForeign {
				if err := h.receivePassive(ctx, foreignFirstByte); err != nil {
					h.logger.Debug(logging.Bus, "passive receive after lost arbitration: %v", err)
				}
			}
			continue
		}

		h.sendAndComplete(ctx, current)
		current = nil
	}
}

// arbitrate emits QQ and reads back one byte, per spec §4.6
// "Arbitration". won=true means the echo matched exactly. A false
// result with hasForeign=true means a genuinely different master's
// byte was observed and must be fed to the passive receiver as its
// first byte; hasForeign=false means a same-low-nibble collision,
// which is simply retried on the next SYN with no further bytes to
// consume.
func (h *Handler) arbitrate(ctx context.Context, qq symbol.Address) (won bool, foreignFirstByte byte, hasForeign bool, err error) {
	if err := h.port.WriteByte(ctx, qq); err != nil {
		return false, 0, false, ebuserr.Wrap(ebuserr.DeviceIO, "arbitration write", err)
	}
	echo, err := h.port.ReadByte(ctx)
	if err != nil {
		return false, 0, false, ebuserr.Wrap(ebuserr.DeviceTimeout, "arbitration echo", err)
	}
	if echo == qq {
		return true, 0, false, nil
	}
	if echo&0x0F == qq&0x0F {
		return false, 0, false, nil
	}
	return false, echo, true, nil
}

// writeAndVerify writes one byte and requires it to echo back
// unchanged (the bus is a wired-OR half-duplex medium).
func (h *Handler) writeAndVerify(ctx context.Context, b byte) error {
	if err := h.port.WriteByte(ctx, b); err != nil {
		return ebuserr.Wrap(ebuserr.DeviceIO, "send byte", err)
	}
	echo, err := h.port.ReadByte(ctx)
	if err != nil {
		return ebuserr.Wrap(ebuserr.DeviceTimeout, "send echo", err)
	}
	if echo != b {
		return ebuserr.New(ebuserr.BusTransmit, "echo mismatch")
	}
	return nil
}

// sendAndComplete transmits the remainder of req's telegram (QQ was
// already sent and verified by arbitrate) and completes req according
// to its Kind.
func (h *Handler) sendAndComplete(ctx context.Context, req *BusRequest) {
	wire := telegram.Compose(req.Telegram)
	buf := wire.Bytes()
	for i := 1; i < len(buf); i++ {
		if err := h.writeAndVerify(ctx, buf[i]); err != nil {
			req.complete(nil, err)
			return
		}
	}

	switch req.Telegram.Kind {
	case telegram.Broadcast:
		req.complete(nil, nil)
	case telegram.MasterMaster:
		ack, err := h.port.ReadByte(ctx)
		if err != nil {
			req.complete(nil, ebuserr.Wrap(ebuserr.DeviceTimeout, "master-master ack", err))
			return
		}
		if ack != symbol.ACK {
			req.complete(nil, ebuserr.New(ebuserr.SlaveNakReceived, "master-master nak"))
			return
		}
		req.complete(nil, nil)
	case telegram.MasterSlave:
		h.receiveSlaveReply(ctx, req, h.cfg.SendRetries)
	}
}

func (h *Handler) receiveSlaveReply(ctx context.Context, req *BusRequest, retriesLeft int) {
	ack, err := h.port.ReadByte(ctx)
	if err != nil {
		req.complete(nil, ebuserr.Wrap(ebuserr.DeviceTimeout, "slave reply ack", err))
		return
	}
	switch ack {
	case symbol.NAK:
		if retriesLeft <= 0 {
			req.complete(nil, ebuserr.New(ebuserr.SlaveNakReceived, "slave nak after retries"))
			return
		}
		wire := telegram.Compose(req.Telegram)
		buf := wire.Bytes()
		for i := 1; i < len(buf); i++ {
			if err := h.writeAndVerify(ctx, buf[i]); err != nil {
				req.complete(nil, err)
				return
			}
		}
		h.receiveSlaveReply(ctx, req, retriesLeft-1)
		return
	case symbol.SYN:
		req.complete(nil, ebuserr.New(ebuserr.DeviceTimeout, "slave aborted reply with syn"))
		return
	case symbol.ACK:
		// fall through to read the slave payload below
	default:
		req.complete(nil, ebuserr.Newf(ebuserr.DeviceIO, "unexpected slave reply byte %#x", ack))
		return
	}

	n, err := h.port.ReadByte(ctx)
	if err != nil {
		req.complete(nil, ebuserr.Wrap(ebuserr.DeviceTimeout, "slave reply length", err))
		return
	}
	data := make([]byte, 0, int(n)+1)
	data = append(data, n)
	for i := 0; i < int(n); i++ {
		b, err := h.port.ReadByte(ctx)
		if err != nil {
			req.complete(nil, ebuserr.Wrap(ebuserr.DeviceTimeout, "slave reply data", err))
			return
		}
		data = append(data, b)
	}
	crc, err := h.port.ReadByte(ctx)
	if err != nil {
		req.complete(nil, ebuserr.Wrap(ebuserr.DeviceTimeout, "slave reply crc", err))
		return
	}
	data = append(data, crc)
	payload, _, perr := telegram.ParseSlaveReply(data)
	if perr != nil {
		req.complete(nil, perr)
		return
	}

	if err := h.writeAndVerify(ctx, symbol.ACK); err != nil {
		req.complete(nil, err)
		return
	}
	if err := h.port.WriteByte(ctx, symbol.SYN); err != nil {
		req.complete(nil, ebuserr.Wrap(ebuserr.DeviceIO, "trailing syn", err))
		return
	}

	if h.listener != nil {
		tg := req.Telegram
		tg.SlaveData = payload
		h.listener.OnPassive(tg, payload)
	}
	req.complete(payload, nil)
}

// receivePassive parses one telegram starting with firstByte (already
// consumed from the wire), verifies its CRC, and routes it to the
// listener regardless of whether this engine was its intended
// recipient.
func (h *Handler) receivePassive(ctx context.Context, firstByte byte) error {
	header := []byte{firstByte}
	for len(header) < 5 {
		b, err := h.port.ReadByte(ctx)
		if err != nil {
			return ebuserr.Wrap(ebuserr.DeviceTimeout, "passive header", err)
		}
		header = append(header, b)
	}
	payloadLen := int(header[4])
	full := header
	for len(full) < 5+payloadLen+1 {
		b, err := h.port.ReadByte(ctx)
		if err != nil {
			return ebuserr.Wrap(ebuserr.DeviceTimeout, "passive payload", err)
		}
		full = append(full, b)
	}
	tg, _, err := telegram.ParseMaster(full)
	if err != nil {
		return err
	}

	var slaveData []byte
	if tg.Kind == telegram.MasterSlave {
		ack, err := h.port.ReadByte(ctx)
		if err != nil {
			return ebuserr.Wrap(ebuserr.DeviceTimeout, "passive ack", err)
		}
		if ack == symbol.ACK {
			n, err := h.port.ReadByte(ctx)
			if err != nil {
				return ebuserr.Wrap(ebuserr.DeviceTimeout, "passive slave length", err)
			}
			data := []byte{n}
			for i := 0; i < int(n); i++ {
				b, err := h.port.ReadByte(ctx)
				if err != nil {
					return ebuserr.Wrap(ebuserr.DeviceTimeout, "passive slave data", err)
				}
				data = append(data, b)
			}
			crc, err := h.port.ReadByte(ctx)
			if err != nil {
				return ebuserr.Wrap(ebuserr.DeviceTimeout, "passive slave crc", err)
			}
			data = append(data, crc)
			payload, _, perr := telegram.ParseSlaveReply(data)
			if perr == nil {
				slaveData = payload
			}
		}
	}

	if h.listener != nil {
		tg.SlaveData = slaveData
		h.listener.OnPassive(tg, slaveData)
	}
	return nil
}
