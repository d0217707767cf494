package catalog

import (
	"testing"
	"time"

	"github.com/rob-gra/ebusd-go/datatype"
	"github.com/rob-gra/ebusd-go/field"
	"github.com/rob-gra/ebusd-go/telegram"
)

func ucharField(t *testing.T, name string, part field.Part, offset int) *field.DataField {
	t.Helper()
	dt, err := datatype.Base().Get("UCH")
	if err != nil {
		t.Fatalf("UCH: %v", err)
	}
	return field.NewSingle(name, part, offset, dt, field.Attributes{})
}

func TestMessageMatchesWildcardSource(t *testing.T) {
	m := &Message{Circuit: "heating", Name: "status", PB: 0xb5, SB: 0x09, Destination: 0x08}
	tg := telegram.Telegram{Source: 0x03, Destination: 0x08, PB: 0xb5, SB: 0x09, MasterData: []byte{0x01}}
	if !m.Matches(tg) {
		t.Fatal("expected wildcard-source message to match any source")
	}
}

func TestMessageMatchesIdentifierPrefix(t *testing.T) {
	m := &Message{PB: 0xb5, SB: 0x09, ID: []byte{0x02, 0x6c}}
	good := telegram.Telegram{PB: 0xb5, SB: 0x09, MasterData: []byte{0x02, 0x6c, 0xff}}
	bad := telegram.Telegram{PB: 0xb5, SB: 0x09, MasterData: []byte{0x02, 0x6d, 0xff}}
	if !m.Matches(good) {
		t.Fatal("expected identifier prefix to match")
	}
	if m.Matches(bad) {
		t.Fatal("expected mismatched identifier prefix to reject")
	}
}

func TestMessageDecodeMasterOnly(t *testing.T) {
	m := &Message{ID: []byte{0x02}, MasterField: ucharField(t, "temp", field.MasterData, 0)}
	tg := telegram.Telegram{MasterData: []byte{0x02, 0x14}}
	text, err := m.Decode(tg, nil, field.FormatShort)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "20" {
		t.Fatalf("got %q", text)
	}
}

func TestMessagePrepareEncodesMasterTail(t *testing.T) {
	m := &Message{
		Destination: 0x08,
		PB:          0xb5,
		SB:          0x09,
		ID:          []byte{0x02},
		MasterField: ucharField(t, "temp", field.MasterData, 0),
	}
	tg, err := m.Prepare(0x03, "20")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(tg.MasterData) != 2 || tg.MasterData[0] != 0x02 || tg.MasterData[1] != 0x14 {
		t.Fatalf("got %v", tg.MasterData)
	}
	if tg.Kind != telegram.MasterSlave {
		t.Fatalf("expected MasterSlave, got %v", tg.Kind)
	}
}

func TestMessageUpdatePassiveTracksChange(t *testing.T) {
	m := &Message{MasterField: ucharField(t, "temp", field.MasterData, 0)}
	t0 := time.Now()
	m.UpdatePassive(telegram.Telegram{MasterData: []byte{0x14}}, nil, t0)
	if m.LastChange() != t0 || m.LastUpdate() != t0 {
		t.Fatal("expected first observation to set both timestamps")
	}

	t1 := t0.Add(time.Second)
	m.UpdatePassive(telegram.Telegram{MasterData: []byte{0x14}}, nil, t1)
	if m.LastChange() != t0 {
		t.Fatalf("expected unchanged bytes to leave LastChange at %v, got %v", t0, m.LastChange())
	}
	if m.LastUpdate() != t1 {
		t.Fatalf("expected LastUpdate to advance to %v, got %v", t1, m.LastUpdate())
	}

	t2 := t1.Add(time.Second)
	m.UpdatePassive(telegram.Telegram{MasterData: []byte{0x15}}, nil, t2)
	if m.LastChange() != t2 {
		t.Fatalf("expected changed bytes to advance LastChange to %v, got %v", t2, m.LastChange())
	}
}
