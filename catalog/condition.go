package catalog

import (
	"strconv"
	"strings"
	"time"

	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/field"
)

// Condition gates one or more Messages on another Message's last-seen
// value matching an expected value or numeric range, per spec §4.5
// "[cond]message,... gating messages on a named condition".
type Condition struct {
	Name    string
	Message *Message // the message whose cached value decides the gate
	Expect  string   // text (case-insensitive), or "min-max" numeric range
	MaxAge  time.Duration
}

// Evaluate reports whether the condition currently holds. If the
// backing Message's cached value is older than MaxAge, Evaluate
// returns ebuserr.DeviceTimeout so the caller can trigger an immediate
// refresh poll before retrying (spec §4.5 "staleness-triggered
// immediate refresh").
func (c *Condition) Evaluate(now time.Time) (bool, error) {
	if c.MaxAge > 0 && !c.Message.LastUpdate().IsZero() && now.Sub(c.Message.LastUpdate()) > c.MaxAge {
		return false, ebuserr.New(ebuserr.DeviceTimeout, "condition "+c.Name+" value is stale")
	}
	text, err := c.Message.LastText(field.FormatShort)
	if err != nil {
		return false, err
	}
	return matchExpect(text, c.Expect), nil
}

// matchExpect compares text against Expect, which is either a string,
// compared case-insensitively after trimming surrounding space, or a
// "min-max" numeric range.
func matchExpect(text, expect string) bool {
	if lo, hi, ok := parseRange(expect); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return false
		}
		return v >= lo && v <= hi
	}
	return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(expect))
}

func parseRange(expect string) (lo, hi float64, ok bool) {
	search := expect
	skip := 0
	if strings.HasPrefix(search, "-") {
		skip = 1
		search = search[1:]
	}
	i := strings.IndexByte(search, '-')
	if i < 0 {
		return 0, 0, false
	}
	i += skip
	loV, err1 := strconv.ParseFloat(expect[:i], 64)
	hiV, err2 := strconv.ParseFloat(expect[i+1:], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return loV, hiV, true
}

// ConditionSet collects named Conditions, letting a Message declare
// `[cond]` gating by name.
type ConditionSet struct {
	byName map[string]*Condition
}

func NewConditionSet() *ConditionSet {
	return &ConditionSet{byName: make(map[string]*Condition)}
}

func (cs *ConditionSet) Add(c *Condition) error {
	if _, exists := cs.byName[c.Name]; exists {
		return ebuserr.Newf(ebuserr.DuplicateName, "condition %s already defined", c.Name)
	}
	cs.byName[c.Name] = c
	return nil
}

func (cs *ConditionSet) Get(name string) (*Condition, bool) {
	c, ok := cs.byName[name]
	return c, ok
}
