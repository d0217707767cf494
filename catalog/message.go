// Package catalog implements Message and MessageMap (spec §4.4): the
// wire identity, decode/encode, last-seen bookkeeping and polling
// scheduler layered on top of field.DataField and telegram.Telegram.
package catalog

import (
	"sync"
	"time"

	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/field"
	"github.com/rob-gra/ebusd-go/symbol"
	"github.com/rob-gra/ebusd-go/telegram"
)

// Direction is one of the message-file "type" tokens (spec §6.2),
// collapsed to the three roles the engine actually distinguishes.
type Direction uint8

const (
	Read Direction = iota
	Write
	Passive
)

// wildcard is the zero Address value, used as "any" for Source and
// Destination matching.
const wildcard symbol.Address = 0

// Message is one catalog entry: wire identity plus the two payload
// DataFields and the mutable last-seen/poll state spec §3 assigns it.
type Message struct {
	Circuit string
	Name    string
	Level   string

	Source      symbol.Address // wildcard (0) matches any
	Destination symbol.Address // wildcard (0) matches any
	PB, SB      byte
	ID          []byte

	Direction Direction
	Priority  int // 0 = not pollable

	MasterField *field.DataField // request tail after ID
	SlaveField  *field.DataField // MS reply, nil for non-MS messages

	Attrs field.Attributes

	// declOrder breaks poll-selection ties and is assigned by
	// MessageMap.Add in insertion order.
	declOrder int

	mu         sync.Mutex
	lastMaster []byte
	lastSlave  []byte
	lastUpdate time.Time
	lastChange time.Time
	lastPoll   time.Time
	pollCount  int
}

// Matches reports whether tg's identity (source/destination wildcard,
// PBSB, identifier prefix) matches this Message. Source and destination
// are compared as declared for every Direction, passive included; a
// telegram with the two addresses swapped does not match.
func (m *Message) Matches(tg telegram.Telegram) bool {
	if m.Source != wildcard && m.Source != tg.Source {
		return false
	}
	if m.Destination != wildcard && m.Destination != tg.Destination {
		return false
	}
	if m.PB != tg.PB || m.SB != tg.SB {
		return false
	}
	if len(tg.MasterData) < len(m.ID) {
		return false
	}
	for i, idByte := range m.ID {
		if tg.MasterData[i] != idByte {
			return false
		}
	}
	return true
}

// payloadOf splits tg's master/slave bytes into the portion this
// Message's fields actually describe, i.e. past the identifier
// prefix.
func (m *Message) payloadOf(tg telegram.Telegram, slaveData []byte) field.Payload {
	master := tg.MasterData
	if len(master) >= len(m.ID) {
		master = master[len(m.ID):]
	}
	return field.Payload{Master: master, Slave: slaveData}
}

// Decode renders this Message's fields from a received telegram.
func (m *Message) Decode(tg telegram.Telegram, slaveData []byte, format field.OutputFormat) (string, error) {
	payload := m.payloadOf(tg, slaveData)
	if m.SlaveField != nil && len(slaveData) > 0 {
		masterText := ""
		var err error
		if m.MasterField != nil {
			masterText, err = m.MasterField.Read(payload, format)
			if err != nil {
				return "", err
			}
		}
		slaveText, err := m.SlaveField.Read(payload, format)
		if err != nil {
			return "", err
		}
		if masterText == "" {
			return slaveText, nil
		}
		return masterText + ";" + slaveText, nil
	}
	if m.MasterField == nil {
		return "", ebuserr.Newf(ebuserr.NotFound, "message %s/%s has no readable field", m.Circuit, m.Name)
	}
	return m.MasterField.Read(payload, format)
}

// Prepare builds the master telegram for a read or write request,
// encoding values into the master tail after source/destination/PBSB/
// identifier bytes, per spec §4.4.
func (m *Message) Prepare(source symbol.Address, values string) (telegram.Telegram, error) {
	if source == wildcard {
		return telegram.Telegram{}, ebuserr.New(ebuserr.InvalidArg, "request needs an explicit source address")
	}
	dest := m.Destination
	if dest == wildcard {
		return telegram.Telegram{}, ebuserr.New(ebuserr.InvalidArg, "message has no fixed destination to send to")
	}

	masterLen := len(m.ID)
	if m.MasterField != nil {
		masterLen += m.MasterField.Length(field.MasterData)
	}
	masterBody := make([]byte, masterLen)
	copy(masterBody, m.ID)

	if m.MasterField != nil && values != "" {
		payload := field.Payload{Master: masterBody[len(m.ID):]}
		if err := m.MasterField.Write(payload, values); err != nil {
			return telegram.Telegram{}, err
		}
	}

	tg := telegram.Telegram{
		Source:      source,
		Destination: dest,
		PB:          m.PB,
		SB:          m.SB,
		MasterData:  masterBody,
		Kind:        telegram.KindOf(dest),
	}
	return tg, nil
}

// UpdatePassive records a received telegram's bytes, advancing
// lastUpdate always and lastChange only when the bytes actually
// differ from what was last stored (spec §4.4).
func (m *Message) UpdatePassive(tg telegram.Telegram, slaveData []byte, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := !bytesEqual(m.lastMaster, tg.MasterData) || !bytesEqual(m.lastSlave, slaveData)
	m.lastMaster = append([]byte(nil), tg.MasterData...)
	m.lastSlave = append([]byte(nil), slaveData...)
	m.lastUpdate = now
	if changed {
		m.lastChange = now
	}
}

// LastUpdate and LastChange report the most recent observation times
// under the per-Message critical section spec §5 requires.
func (m *Message) LastUpdate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdate
}

func (m *Message) LastChange() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastChange
}

// Last returns the most recently stored master/slave bytes.
func (m *Message) Last() (master, slave []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.lastMaster...), append([]byte(nil), m.lastSlave...)
}

// LastText renders the most recently stored bytes through this
// Message's fields, for condition evaluation and for `read` requests
// served from cache (spec §4.4 "lastMaster/lastSlave").
func (m *Message) LastText(format field.OutputFormat) (string, error) {
	master, slave := m.Last()
	if master == nil && slave == nil {
		return "", ebuserr.Newf(ebuserr.NotFound, "message %s/%s has no cached value", m.Circuit, m.Name)
	}
	return m.Decode(telegram.Telegram{MasterData: master}, slave, format)
}

// RecordPoll marks this Message as just having been polled, resetting
// its staleness score.
func (m *Message) RecordPoll(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPoll = now
	m.pollCount++
}

// stalenessScore implements spec §4.4's `(now - lastPoll) * priority`
// poll-selection weight.
func (m *Message) stalenessScore(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	age := now.Sub(m.lastPoll).Seconds()
	if m.lastPoll.IsZero() {
		age = 1e9 // never polled: maximal staleness
	}
	return age * float64(m.Priority)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
