package catalog

import (
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/telegram"
)

// MessageMap indexes every loaded Message by circuit/name/direction
// for lookup-by-name (spec §4.5). Routing an observed telegram has no
// wire-side index: Route checks every loaded Message in turn.
type MessageMap struct {
	mu       sync.RWMutex
	byKey    map[string]*Message
	all      []*Message
	pollable []*Message
}

func key(circuit, name string, dir Direction) string {
	return fmt.Sprintf("%s/%s/%d", circuit, name, dir)
}

// NewMessageMap builds an empty catalog.
func NewMessageMap() *MessageMap {
	return &MessageMap{byKey: make(map[string]*Message)}
}

// Add inserts msg, rejecting a duplicate circuit/name/direction unless
// rename is true, in which case Name is suffixed to disambiguate (spec
// §4.5 "duplicate field names unless rename-on-conflict requested").
func (mm *MessageMap) Add(msg *Message, rename bool) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	k := key(msg.Circuit, msg.Name, msg.Direction)
	if _, exists := mm.byKey[k]; exists {
		if !rename {
			return ebuserr.Newf(ebuserr.DuplicateName, "message %s/%s already defined", msg.Circuit, msg.Name)
		}
		suffix := 2
		for {
			candidate := fmt.Sprintf("%s#%d", msg.Name, suffix)
			k2 := key(msg.Circuit, candidate, msg.Direction)
			if _, exists := mm.byKey[k2]; !exists {
				msg.Name = candidate
				k = k2
				break
			}
			suffix++
		}
	}

	msg.declOrder = len(mm.all)
	mm.byKey[k] = msg
	mm.all = append(mm.all, msg)
	if msg.Priority > 0 {
		mm.pollable = append(mm.pollable, msg)
	}
	return nil
}

// Find looks up a Message by exact circuit/name/direction.
func (mm *MessageMap) Find(circuit, name string, dir Direction) (*Message, bool) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	m, ok := mm.byKey[key(circuit, name, dir)]
	return m, ok
}

// FindMessages returns every Message whose circuit and name match the
// given shell-style globs (spec §4.7 `find`), optionally restricted to
// dir; pass -1 to match any direction.
func (mm *MessageMap) FindMessages(circuitGlob, nameGlob string, dir int) []*Message {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	var out []*Message
	for _, m := range mm.all {
		if dir >= 0 && int(m.Direction) != dir {
			continue
		}
		if ok, _ := path.Match(circuitGlob, m.Circuit); !ok {
			continue
		}
		if ok, _ := path.Match(nameGlob, m.Name); !ok {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Route matches tg against every candidate Message (passive entries
// plus the read/write entries sharing its identity) and records its
// bytes into each match's last-seen state, per spec §4.4.
func (mm *MessageMap) Route(tg telegram.Telegram, slaveData []byte, now time.Time) []*Message {
	mm.mu.RLock()
	candidates := mm.all
	mm.mu.RUnlock()

	var matched []*Message
	for _, m := range candidates {
		if !m.Matches(tg) {
			continue
		}
		m.UpdatePassive(tg, slaveData, now)
		matched = append(matched, m)
	}
	return matched
}

// NextPoll selects the pollable Message with the highest staleness
// score `(now - lastPoll) * priority`, breaking ties by declaration
// order (spec §4.4 "Polling"). Returns nil if nothing is pollable.
func (mm *MessageMap) NextPoll(now time.Time) *Message {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	if len(mm.pollable) == 0 {
		return nil
	}
	best := mm.pollable[0]
	bestScore := best.stalenessScore(now)
	for _, m := range mm.pollable[1:] {
		score := m.stalenessScore(now)
		if score > bestScore || (score == bestScore && m.declOrder < best.declOrder) {
			best = m
			bestScore = score
		}
	}
	return best
}

// All returns every loaded Message, ordered by declaration.
func (mm *MessageMap) All() []*Message {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	out := make([]*Message, len(mm.all))
	copy(out, mm.all)
	sort.Slice(out, func(i, j int) bool { return out[i].declOrder < out[j].declOrder })
	return out
}
