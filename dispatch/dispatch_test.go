package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/rob-gra/ebusd-go/bus"
	"github.com/rob-gra/ebusd-go/catalog"
	"github.com/rob-gra/ebusd-go/datatype"
	"github.com/rob-gra/ebusd-go/field"
	"github.com/rob-gra/ebusd-go/logging"
	"github.com/rob-gra/ebusd-go/symbol"
	"github.com/rob-gra/ebusd-go/telegram"
)

type fakePort struct {
	reads  []byte
	idx    int
	writes []byte
}

func (p *fakePort) WriteByte(_ context.Context, b byte) error {
	p.writes = append(p.writes, b)
	return nil
}

func (p *fakePort) ReadByte(_ context.Context) (byte, error) {
	if p.idx >= len(p.reads) {
		<-make(chan struct{}) // block forever once the script is exhausted
	}
	b := p.reads[p.idx]
	p.idx++
	return b, nil
}

func (p *fakePort) Close() error { return nil }

func ucharField(t *testing.T, name string, part field.Part, offset int) *field.DataField {
	t.Helper()
	dt, err := datatype.Base().Get("UCH")
	if err != nil {
		t.Fatalf("UCH: %v", err)
	}
	return field.NewSingle(name, part, offset, dt, field.Attributes{})
}

func TestDispatcherReadServesFromCache(t *testing.T) {
	messages := catalog.NewMessageMap()
	msg := &catalog.Message{Circuit: "heating", Name: "flow_temp", Direction: catalog.Read, Destination: 0x08, MasterField: ucharField(t, "temp", field.MasterData, 0)}
	messages.Add(msg, false)
	now := time.Now()
	msg.UpdatePassive(telegram.Telegram{MasterData: []byte{0x14}}, nil, now)

	h, err := bus.NewHandler(&fakePort{}, bus.DefaultConfig(), 0x03, logging.New(), 4)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	d := NewDispatcher(h, messages, 0x03, logging.New())

	text, err := d.Read(context.Background(), "heating", "flow_temp", time.Hour)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if text != "20" {
		t.Fatalf("got %q", text)
	}
}

func TestDispatcherSubscribeReceivesPassiveUpdate(t *testing.T) {
	messages := catalog.NewMessageMap()
	msg := &catalog.Message{Circuit: "heating", Name: "flow_temp", Direction: catalog.Passive, PB: 0xb5, SB: 0x09, MasterField: ucharField(t, "temp", field.MasterData, 0)}
	messages.Add(msg, false)

	h, err := bus.NewHandler(&fakePort{}, bus.DefaultConfig(), 0x03, logging.New(), 4)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	d := NewDispatcher(h, messages, 0x03, logging.New())

	sink := make(chan Update, 1)
	d.Subscribe(func(m *catalog.Message) bool { return m.Name == "flow_temp" }, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.runNotifier(ctx)

	tg := telegram.Telegram{PB: 0xb5, SB: 0x09, MasterData: []byte{0x14}}
	d.OnPassive(tg, nil)

	select {
	case u := <-sink:
		if u.Text != "20" {
			t.Fatalf("got %q", u.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestDispatcherFindMessages(t *testing.T) {
	messages := catalog.NewMessageMap()
	messages.Add(&catalog.Message{Circuit: "heating", Name: "flow_temp", Direction: catalog.Read}, false)
	messages.Add(&catalog.Message{Circuit: "heating", Name: "return_temp", Direction: catalog.Read}, false)

	h, _ := bus.NewHandler(&fakePort{}, bus.DefaultConfig(), 0x03, logging.New(), 4)
	d := NewDispatcher(h, messages, 0x03, logging.New())

	got := d.FindMessages("heating", "*temp", int(catalog.Read))
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
}

func TestParseIdentification(t *testing.T) {
	data := []byte{0x01, 'E', 'B', 'U', 'S', ' ', 0x01, 0x23, 0x04, 0x56}
	p, err := parseIdentification(symbol.Address(0x08), data)
	if err != nil {
		t.Fatalf("parseIdentification: %v", err)
	}
	if p.ProductID != "EBUS " && p.ProductID != "EBUS" {
		t.Fatalf("got product id %q", p.ProductID)
	}
	if p.SWVersion != "01.23" {
		t.Fatalf("got sw version %q", p.SWVersion)
	}
	if p.HWVersion != "04.56" {
		t.Fatalf("got hw version %q", p.HWVersion)
	}
}
