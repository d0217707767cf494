package catalog

import (
	"testing"
	"time"

	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/field"
	"github.com/rob-gra/ebusd-go/telegram"
)

func TestConditionEvaluateExactMatch(t *testing.T) {
	msg := &Message{MasterField: ucharField(t, "mode", field.MasterData, 0)}
	now := time.Now()
	msg.UpdatePassive(telegram.Telegram{MasterData: []byte{0x01}}, nil, now)

	c := &Condition{Name: "heating_mode", Message: msg, Expect: "1"}
	ok, err := c.Evaluate(now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("expected condition to hold")
	}
}

func TestConditionEvaluateRange(t *testing.T) {
	msg := &Message{MasterField: ucharField(t, "temp", field.MasterData, 0)}
	now := time.Now()
	msg.UpdatePassive(telegram.Telegram{MasterData: []byte{0x14}}, nil, now)

	c := &Condition{Name: "warm", Message: msg, Expect: "10-30"}
	ok, err := c.Evaluate(now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatal("expected 20 to fall within 10-30")
	}

	c2 := &Condition{Name: "cold", Message: msg, Expect: "-10-0"}
	ok2, err := c2.Evaluate(now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok2 {
		t.Fatal("expected 20 to fall outside -10-0")
	}
}

func TestConditionEvaluateStaleTriggersRefresh(t *testing.T) {
	msg := &Message{MasterField: ucharField(t, "temp", field.MasterData, 0)}
	t0 := time.Now()
	msg.UpdatePassive(telegram.Telegram{MasterData: []byte{0x14}}, nil, t0)

	c := &Condition{Name: "warm", Message: msg, Expect: "10-30", MaxAge: time.Minute}
	_, err := c.Evaluate(t0.Add(2 * time.Minute))
	if !ebuserr.Is(err, ebuserr.DeviceTimeout) {
		t.Fatalf("expected DeviceTimeout for stale value, got %v", err)
	}
}

func TestConditionSetRejectsDuplicateName(t *testing.T) {
	cs := NewConditionSet()
	msg := &Message{MasterField: ucharField(t, "temp", field.MasterData, 0)}
	if err := cs.Add(&Condition{Name: "warm", Message: msg}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := cs.Add(&Condition{Name: "warm", Message: msg}); err == nil {
		t.Fatal("expected duplicate condition rejection")
	}
}
