package telegram

import (
	"testing"

	"github.com/rob-gra/ebusd-go/symbol"
)

func TestKindOf(t *testing.T) {
	if KindOf(symbol.BROADCAST) != Broadcast {
		t.Fatal("expected broadcast")
	}
	if KindOf(0x03) != MasterMaster {
		t.Fatal("expected master-master for master address")
	}
	if KindOf(0x15) != MasterSlave {
		t.Fatal("expected master-slave for slave address")
	}
}

func TestComposeParseRoundTrip(t *testing.T) {
	tg := Telegram{Source: 0xff, Destination: 0x08, PB: 0xb5, SB: 0x09, MasterData: []byte{0x0d, 0x29, 0x00}}
	wire := Compose(tg)

	parsed, consumed, err := ParseMaster(wire.Bytes())
	if err != nil {
		t.Fatalf("ParseMaster: %v", err)
	}
	if consumed != wire.Len() {
		t.Fatalf("expected to consume all %d bytes, got %d", wire.Len(), consumed)
	}
	if parsed.Source != tg.Source || parsed.Destination != tg.Destination {
		t.Fatalf("got %+v", parsed)
	}
	if string(parsed.MasterData) != string(tg.MasterData) {
		t.Fatalf("got %x want %x", parsed.MasterData, tg.MasterData)
	}
}

func TestParseMasterBadCRC(t *testing.T) {
	tg := Telegram{Source: 0xff, Destination: 0x08, PB: 0xb5, SB: 0x09, MasterData: []byte{0x0d}}
	wire := Compose(tg)
	corrupted := append([]byte(nil), wire.Bytes()...)
	corrupted[len(corrupted)-1] ^= 0xFF

	if _, _, err := ParseMaster(corrupted); err == nil {
		t.Fatal("expected CRC mismatch error")
	}
}

func TestComposeParseSlaveReply(t *testing.T) {
	wire := ComposeSlaveReply([]byte{0x03, 0x17, 0x0b, 0x0e})
	payload, consumed, err := ParseSlaveReply(wire.Bytes())
	if err != nil {
		t.Fatalf("ParseSlaveReply: %v", err)
	}
	if consumed != wire.Len() {
		t.Fatalf("expected %d consumed, got %d", wire.Len(), consumed)
	}
	if string(payload) != "\x03\x17\x0b\x0e" {
		t.Fatalf("got %x", payload)
	}
}
