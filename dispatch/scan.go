package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/rob-gra/ebusd-go/bus"
	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/logging"
	"github.com/rob-gra/ebusd-go/symbol"
	"github.com/rob-gra/ebusd-go/telegram"
)

// identificationPB/SB address the fixed "identification" command
// every eBUS slave answers, used for Scan (spec §4.6 "Scan").
const (
	identificationPB = 0x07
	identificationSB = 0x04
)

// Participant is one observed or scanned bus address, per spec §3
// "Participant table".
type Participant struct {
	Address      symbol.Address
	SeenAsMaster bool
	SeenAsSlave  bool

	Manufacturer byte
	ProductID    string
	SWVersion    string
	HWVersion    string
	ScannedAt    time.Time
}

// Scan sends the identification request to addr and records the
// reply into the participant table.
func (d *Dispatcher) Scan(ctx context.Context, addr symbol.Address) (*Participant, error) {
	tg := telegram.Telegram{
		Source:      d.own,
		Destination: addr,
		PB:          identificationPB,
		SB:          identificationSB,
		Kind:        telegram.MasterSlave,
	}
	req := bus.NewBusRequest(tg)
	if err := d.busHandler.Submit(req); err != nil {
		return nil, err
	}
	payload, err := req.Wait(ctx)
	if err != nil {
		return nil, err
	}
	p, err := parseIdentification(addr, payload)
	if err != nil {
		return nil, err
	}
	p.SeenAsSlave = true
	d.storeParticipant(p)
	return p, nil
}

// ScanAll scans every one of the 25 valid master addresses except
// own, collecting whichever ones reply without aborting on the ones
// that don't.
func (d *Dispatcher) ScanAll(ctx context.Context) []*Participant {
	var found []*Participant
	for _, addr := range symbol.MasterAddresses() {
		if addr == d.own {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}
		p, err := d.Scan(ctx, addr)
		if err != nil {
			d.logger.Debug(logging.Bus, "scan %#x: %v", addr, err)
			continue
		}
		found = append(found, p)
	}
	return found
}

// Participants returns a snapshot of the participant table.
func (d *Dispatcher) Participants() []*Participant {
	d.participantsMu.RLock()
	defer d.participantsMu.RUnlock()
	out := make([]*Participant, 0, len(d.participants))
	for _, p := range d.participants {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

func (d *Dispatcher) storeParticipant(p *Participant) {
	d.participantsMu.Lock()
	defer d.participantsMu.Unlock()
	if existing, ok := d.participants[p.Address]; ok {
		p.SeenAsMaster = p.SeenAsMaster || existing.SeenAsMaster
		p.SeenAsSlave = p.SeenAsSlave || existing.SeenAsSlave
	}
	d.participants[p.Address] = p
}

// recordIdentificationFromPassive marks a sender as seen on the bus
// even without a direct Scan, and as a master or slave depending on
// which side of the telegram it appeared on.
func (d *Dispatcher) recordIdentificationFromPassive(tg telegram.Telegram, slaveData []byte) {
	d.participantsMu.Lock()
	p, ok := d.participants[tg.Source]
	if !ok {
		p = &Participant{Address: tg.Source}
	}
	p.SeenAsMaster = true
	d.participantsMu.Unlock()

	if len(slaveData) >= 10 {
		if parsed, err := parseIdentification(tg.Destination, slaveData); err == nil {
			parsed.SeenAsSlave = true
			d.storeParticipant(parsed)
		}
	}
	d.storeParticipant(p)
}

// parseIdentification decodes the 10-byte identification reply:
// manufacturer id, 5-byte product id, 2-byte BCD software version,
// 2-byte BCD hardware version.
func parseIdentification(addr symbol.Address, data []byte) (*Participant, error) {
	if len(data) < 10 {
		return nil, ebuserr.Newf(ebuserr.InvalidPos, "identification reply needs 10 bytes, got %d", len(data))
	}
	sw, err := bcdVersion(data[6], data[7])
	if err != nil {
		return nil, err
	}
	hw, err := bcdVersion(data[8], data[9])
	if err != nil {
		return nil, err
	}
	return &Participant{
		Address:      addr,
		Manufacturer: data[0],
		ProductID:    strings.TrimRight(string(data[1:6]), "\x00 "),
		SWVersion:    sw,
		HWVersion:    hw,
		ScannedAt:    time.Now(),
	}, nil
}

func bcdVersion(major, minor byte) (string, error) {
	maj, err := bcdDigits(major)
	if err != nil {
		return "", err
	}
	min, err := bcdDigits(minor)
	if err != nil {
		return "", err
	}
	return maj + "." + min, nil
}

func bcdDigits(b byte) (string, error) {
	hi, lo := b>>4, b&0x0F
	if hi > 9 || lo > 9 {
		return "", ebuserr.Newf(ebuserr.OutOfRange, "invalid BCD byte %#x", b)
	}
	return string([]byte{'0' + hi, '0' + lo}), nil
}
