// Package telegram composes and parses eBUS wire frames over
// symbol.String: QQ ZZ PB SB NN [data] CRC for broadcast, plus
// ACK/NAK for MM, plus the slave reply and trailing ACK/SYN for MS.
// See spec §3 "Telegram kinds" and §6.1 "Wire format".
package telegram

import (
	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/symbol"
)

// Kind distinguishes the three telegram shapes by destination and
// expected acknowledgement/reply pattern.
type Kind uint8

const (
	Broadcast Kind = iota
	MasterMaster
	MasterSlave
)

// KindOf classifies a telegram by its destination address.
func KindOf(destination symbol.Symbol) Kind {
	switch {
	case destination == symbol.BROADCAST:
		return Broadcast
	case symbol.IsMaster(destination):
		return MasterMaster
	default:
		return MasterSlave
	}
}

// Telegram is one parsed or to-be-sent eBUS frame.
type Telegram struct {
	Source      symbol.Address
	Destination symbol.Address
	PB, SB      byte
	MasterData  []byte // payload after PBSB, NN not included
	SlaveData   []byte // MS only
	Kind        Kind
}

// Compose builds this telegram's master part, QQ ZZ PB SB NN [data]
// CRC, as logical (unescaped) bytes; the CRC is computed over the
// escaped form.
func Compose(t Telegram) *symbol.String {
	s := symbol.New()
	s.AppendEscaping(t.Source)
	s.AppendEscaping(t.Destination)
	s.AppendEscaping(t.PB)
	s.AppendEscaping(t.SB)
	s.AppendEscaping(byte(len(t.MasterData)))
	for _, b := range t.MasterData {
		s.AppendEscaping(b)
	}
	s.AppendEscaping(s.CRC())
	return s
}

// ComposeSlaveReply builds an MS slave reply, NN' [data] CRC', as
// logical (unescaped) bytes; the CRC is computed over the escaped form.
func ComposeSlaveReply(data []byte) *symbol.String {
	s := symbol.New()
	s.AppendEscaping(byte(len(data)))
	for _, b := range data {
		s.AppendEscaping(b)
	}
	s.AppendEscaping(s.CRC())
	return s
}

// ParseHeader parses the fixed QQ ZZ PB SB NN prefix from already
// unescaped logical bytes, returning the declared payload length and
// the byte offset where the payload begins.
func ParseHeader(data []byte) (t Telegram, payloadLen int, payloadStart int, err error) {
	if len(data) < 5 {
		return Telegram{}, 0, 0, ebuserr.New(ebuserr.InvalidPos, "telegram header needs at least 5 bytes")
	}
	t.Source = data[0]
	t.Destination = data[1]
	t.PB = data[2]
	t.SB = data[3]
	payloadLen = int(data[4])
	payloadStart = 5
	t.Kind = KindOf(t.Destination)
	return t, payloadLen, payloadStart, nil
}

// VerifyCRC checks the trailing CRC byte at data[end] against the
// CRC-8 computed over data[0:end] (the escaped expansion thereof).
func VerifyCRC(data []byte, end int) error {
	if end >= len(data) {
		return ebuserr.New(ebuserr.InvalidPos, "telegram CRC byte beyond payload")
	}
	want := data[end]
	got := symbol.CRCOverRange(data, 0, end)
	if want != got {
		return ebuserr.Newf(ebuserr.BadCrc, "telegram CRC mismatch: got %#x, want %#x", got, want)
	}
	return nil
}

// ParseMaster parses a full master part (header, payload, CRC) from
// unescaped logical bytes, returning the Telegram and the total byte
// count consumed.
func ParseMaster(data []byte) (t Telegram, consumed int, err error) {
	t, payloadLen, start, err := ParseHeader(data)
	if err != nil {
		return Telegram{}, 0, err
	}
	crcIdx := start + payloadLen
	if crcIdx >= len(data) {
		return Telegram{}, 0, ebuserr.New(ebuserr.InvalidPos, "telegram shorter than declared payload")
	}
	if err := VerifyCRC(data, crcIdx); err != nil {
		return Telegram{}, 0, err
	}
	t.MasterData = append([]byte(nil), data[start:crcIdx]...)
	return t, crcIdx + 1, nil
}

// ParseSlaveReply parses an MS slave reply (NN' [data] CRC') from
// unescaped logical bytes.
func ParseSlaveReply(data []byte) (payload []byte, consumed int, err error) {
	if len(data) < 1 {
		return nil, 0, ebuserr.New(ebuserr.InvalidPos, "slave reply needs at least 1 byte")
	}
	n := int(data[0])
	crcIdx := 1 + n
	if crcIdx >= len(data) {
		return nil, 0, ebuserr.New(ebuserr.InvalidPos, "slave reply shorter than declared payload")
	}
	if err := VerifyCRC(data, crcIdx); err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), data[1:crcIdx]...), crcIdx + 1, nil
}
