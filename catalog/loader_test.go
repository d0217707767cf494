package catalog

import (
	"testing"

	"github.com/rob-gra/ebusd-go/field"
)

func row(name, typ string) field.Row {
	return field.Row{Name: name, Part: field.MasterData, Type: typ}
}

func TestLoaderBuildsSimpleMessage(t *testing.T) {
	l := NewLoader(nil)
	l.LoadMessage(MessageRow{
		LineNo:  1,
		Type:    "r",
		Circuit: "heating",
		Name:    "flow_temp",
		PBSB:    "b509",
		Fields:  []field.Row{row("temp", "UCH")},
	})
	if len(l.Errors()) != 0 {
		t.Fatalf("unexpected errors: %v", l.Errors())
	}
	msg, ok := l.Messages.Find("heating", "flow_temp", Read)
	if !ok {
		t.Fatal("expected message to be registered")
	}
	if msg.PB != 0xb5 || msg.SB != 0x09 {
		t.Fatalf("got PB=%#x SB=%#x", msg.PB, msg.SB)
	}
}

func TestLoaderTemplateThenMessageReference(t *testing.T) {
	l := NewLoader(nil)
	l.LoadTemplate(TemplateRow{
		LineNo: 1,
		Name:   "temp1",
		Fields: []field.Row{row("value", "UCH")},
	})
	if len(l.Errors()) != 0 {
		t.Fatalf("template errors: %v", l.Errors())
	}

	l.LoadMessage(MessageRow{
		LineNo:  2,
		Type:    "r",
		Circuit: "heating",
		Name:    "outside_temp",
		PBSB:    "b509",
		Fields:  []field.Row{row("", "temp1")},
	})
	if len(l.Errors()) != 0 {
		t.Fatalf("message errors: %v", l.Errors())
	}
	if _, ok := l.Messages.Find("heating", "outside_temp", Read); !ok {
		t.Fatal("expected message built from template")
	}
}

func TestLoaderDefaultsRowFillsBlankColumns(t *testing.T) {
	l := NewLoader(nil)
	l.LoadMessage(MessageRow{
		LineNo:    1,
		Type:      "*r",
		IsDefault: true,
		Circuit:   "heating",
		PBSB:      "b509",
		Fields:    []field.Row{row("value", "UCH")},
	})
	l.LoadMessage(MessageRow{
		LineNo: 2,
		Type:   "*r",
		Name:   "flow_temp",
	})
	if len(l.Errors()) != 0 {
		t.Fatalf("unexpected errors: %v", l.Errors())
	}
	msg, ok := l.Messages.Find("heating", "flow_temp", Read)
	if !ok {
		t.Fatal("expected message built from defaults row")
	}
	if msg.PB != 0xb5 || msg.SB != 0x09 {
		t.Fatalf("expected inherited PBSB, got PB=%#x SB=%#x", msg.PB, msg.SB)
	}
}

func TestLoaderCollectsPerLineErrorsWithoutAborting(t *testing.T) {
	l := NewLoader(nil)
	l.LoadMessage(MessageRow{LineNo: 1, Type: "r", Circuit: "c", Name: "bad", PBSB: "zz"})
	l.LoadMessage(MessageRow{
		LineNo:  2,
		Type:    "r",
		Circuit: "c",
		Name:    "good",
		PBSB:    "b509",
		Fields:  []field.Row{row("value", "UCH")},
	})
	if len(l.Errors()) != 1 || l.Errors()[0].Line != 1 {
		t.Fatalf("expected exactly one error on line 1, got %v", l.Errors())
	}
	if _, ok := l.Messages.Find("c", "good", Read); !ok {
		t.Fatal("expected later good row to still load")
	}
}

func TestLoaderRejectsDuplicateFieldNames(t *testing.T) {
	l := NewLoader(nil)
	l.LoadMessage(MessageRow{
		LineNo:  1,
		Type:    "r",
		Circuit: "c",
		Name:    "dup",
		PBSB:    "b509",
		Fields:  []field.Row{row("value", "UCH"), row("value", "UCH")},
	})
	if len(l.Errors()) != 1 {
		t.Fatalf("expected duplicate field name error, got %v", l.Errors())
	}
}

func TestParsePriority(t *testing.T) {
	n, err := ParsePriority("")
	if err != nil || n != 0 {
		t.Fatalf("empty priority: got %d, %v", n, err)
	}
	n, err = ParsePriority("2")
	if err != nil || n != 2 {
		t.Fatalf("got %d, %v", n, err)
	}
	if _, err := ParsePriority("x"); err == nil {
		t.Fatal("expected error for non-numeric priority")
	}
}

func TestSelectLangPrefersSuffixed(t *testing.T) {
	values := map[string]string{"comment": "flow", "comment@de": "Vorlauf"}
	if got := SelectLang(values, "comment", "de"); got != "Vorlauf" {
		t.Fatalf("got %q", got)
	}
	if got := SelectLang(values, "comment", "fr"); got != "flow" {
		t.Fatalf("got %q", got)
	}
}
