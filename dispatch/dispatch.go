// Package dispatch implements the front-end facing request scheduler
// (spec §4.7): read/write/scan requests plus the update notification
// fan-out, both layered on top of bus.Handler and catalog.MessageMap.
// The bus engine itself never calls front-end code directly; Dispatcher
// is the only thing that does, from a notification task separate from
// the bus thread.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rob-gra/ebusd-go/bus"
	"github.com/rob-gra/ebusd-go/catalog"
	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/field"
	"github.com/rob-gra/ebusd-go/logging"
	"github.com/rob-gra/ebusd-go/symbol"
	"github.com/rob-gra/ebusd-go/telegram"
)

// Update is one fan-out notification: a Message whose cached value
// just changed, or was freshly read/written.
type Update struct {
	Message *catalog.Message
	Text    string
	Time    time.Time
}

// Subscriber receives Updates matching Predicate. Sink is buffered by
// the caller; Dispatcher never blocks delivering to a full Sink, it
// drops the update instead (spec §4.7 "the bus engine never calls
// front-end code directly" implies notification must not be able to
// stall the engine).
type Subscriber struct {
	id        uint64
	Predicate func(*catalog.Message) bool
	Sink      chan<- Update
}

type workKind uint8

const (
	workRead workKind = iota
	workWrite
)

type work struct {
	kind   workKind
	msg    *catalog.Message
	values string
	result chan<- workResult
}

type workResult struct {
	text string
	err  error
}

// Dispatcher schedules read/write/poll traffic onto a bus.Handler,
// honoring spec §5's priority order (writes preempt reads preempt
// polls, polls only when the queue is empty), and fans out passively
// observed and freshly read/written updates to subscribers.
type Dispatcher struct {
	busHandler *bus.Handler
	messages   *catalog.MessageMap
	own        symbol.Address
	logger     *logging.Logger
	format     field.OutputFormat

	mu      sync.Mutex
	writeQ  []*work
	readQ   []*work
	wake    chan struct{}
	nextSub uint64
	subs    map[uint64]*Subscriber

	notifyCh chan Update

	participants   map[symbol.Address]*Participant
	participantsMu sync.RWMutex
}

// NewDispatcher builds a Dispatcher bound to h and messages. own is
// this engine's own master address, used as the Source of every
// request this Dispatcher issues.
func NewDispatcher(h *bus.Handler, messages *catalog.MessageMap, own symbol.Address, logger *logging.Logger) *Dispatcher {
	d := &Dispatcher{
		busHandler:   h,
		messages:     messages,
		own:          own,
		logger:       logger,
		format:       field.FormatShort,
		wake:         make(chan struct{}, 1),
		subs:         make(map[uint64]*Subscriber),
		notifyCh:     make(chan Update, 64),
		participants: make(map[symbol.Address]*Participant),
	}
	h.SetListener(d)
	return d
}

func (d *Dispatcher) poke() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Read returns circuit/name's value, as text, serving it from the
// cached last-seen bytes when younger than maxAge (zero means always
// fetch fresh), otherwise issuing a bus read and waiting for it.
func (d *Dispatcher) Read(ctx context.Context, circuit, name string, maxAge time.Duration) (string, error) {
	msg, ok := d.messages.Find(circuit, name, catalog.Read)
	if !ok {
		msg, ok = d.messages.Find(circuit, name, catalog.Passive)
	}
	if !ok {
		return "", ebuserr.Newf(ebuserr.NotFound, "no readable message %s/%s", circuit, name)
	}

	if maxAge > 0 && !msg.LastUpdate().IsZero() && time.Since(msg.LastUpdate()) <= maxAge {
		return msg.LastText(d.format)
	}

	result := make(chan workResult, 1)
	d.mu.Lock()
	d.readQ = append(d.readQ, &work{kind: workRead, msg: msg, result: result})
	d.mu.Unlock()
	d.poke()

	select {
	case r := <-result:
		return r.text, r.err
	case <-ctx.Done():
		return "", ebuserr.Wrap(ebuserr.Canceled, "read canceled", ctx.Err())
	}
}

// Write sends values to circuit/name and waits for the bus round trip
// to complete.
func (d *Dispatcher) Write(ctx context.Context, circuit, name, values string) error {
	msg, ok := d.messages.Find(circuit, name, catalog.Write)
	if !ok {
		return ebuserr.Newf(ebuserr.NotFound, "no writable message %s/%s", circuit, name)
	}

	result := make(chan workResult, 1)
	d.mu.Lock()
	d.writeQ = append(d.writeQ, &work{kind: workWrite, msg: msg, values: values, result: result})
	d.mu.Unlock()
	d.poke()

	select {
	case r := <-result:
		return r.err
	case <-ctx.Done():
		return ebuserr.Wrap(ebuserr.Canceled, "write canceled", ctx.Err())
	}
}

// FindMessages delegates to the MessageMap (spec §4.7 `find`).
func (d *Dispatcher) FindMessages(circuitGlob, nameGlob string, dir int) []*catalog.Message {
	return d.messages.FindMessages(circuitGlob, nameGlob, dir)
}

// Subscribe registers sink to receive every Update whose Message
// matches predicate. The returned func removes the subscription.
func (d *Dispatcher) Subscribe(predicate func(*catalog.Message) bool, sink chan<- Update) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = &Subscriber{id: id, Predicate: predicate, Sink: sink}
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// popWork selects the next request to execute: any pending write,
// else any pending read. Returns nil if both queues are empty, in
// which case the caller falls back to polling.
func (d *Dispatcher) popWork() *work {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.writeQ) > 0 {
		w := d.writeQ[0]
		d.writeQ = d.writeQ[1:]
		return w
	}
	if len(d.readQ) > 0 {
		w := d.readQ[0]
		d.readQ = d.readQ[1:]
		return w
	}
	return nil
}

func (d *Dispatcher) hasWork() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writeQ) > 0 || len(d.readQ) > 0
}

// Run drives the scheduler until ctx is done: writes, then reads,
// then (only when both queues are empty) the most overdue poll.
func (d *Dispatcher) Run(ctx context.Context) error {
	go d.runNotifier(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w := d.popWork(); w != nil {
			d.execute(ctx, w)
			continue
		}
		if m := d.messages.NextPoll(time.Now()); m != nil {
			d.pollOnce(ctx, m)
			continue
		}
		select {
		case <-d.wake:
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, w *work) {
	tg, err := w.msg.Prepare(d.own, w.values)
	if err != nil {
		w.result <- workResult{err: err}
		return
	}
	req := bus.NewBusRequest(tg)
	if err := d.busHandler.Submit(req); err != nil {
		w.result <- workResult{err: err}
		return
	}
	payload, err := req.Wait(ctx)
	if err != nil {
		w.result <- workResult{err: err}
		return
	}

	now := time.Now()
	w.msg.UpdatePassive(tg, payload, now)
	text, derr := w.msg.Decode(tg, payload, d.format)
	if derr == nil {
		d.notifyCh <- Update{Message: w.msg, Text: text, Time: now}
	}
	w.result <- workResult{text: text, err: derr}
}

// pollOnce issues a fire-and-forget poll for m, with no waiter; its
// result only reaches subscribers via OnPassive/notification.
func (d *Dispatcher) pollOnce(ctx context.Context, m *catalog.Message) {
	m.RecordPoll(time.Now())
	tg, err := m.Prepare(d.own, "")
	if err != nil {
		d.logger.Debug(logging.Bus, "poll %s/%s: %v", m.Circuit, m.Name, err)
		return
	}
	req := bus.NewBusRequest(tg)
	if err := d.busHandler.Submit(req); err != nil {
		d.logger.Warn(logging.Bus, "poll %s/%s: submit: %v", m.Circuit, m.Name, err)
		return
	}
	payload, err := req.Wait(ctx)
	if err != nil {
		d.logger.Debug(logging.Bus, "poll %s/%s: %v", m.Circuit, m.Name, err)
		return
	}
	now := time.Now()
	m.UpdatePassive(tg, payload, now)
	if text, err := m.Decode(tg, payload, d.format); err == nil {
		d.notifyCh <- Update{Message: m, Text: text, Time: now}
	}
}

// OnPassive implements bus.PassiveListener: every telegram the engine
// observes, won or merely overheard, is routed through the
// MessageMap and queued for notification.
func (d *Dispatcher) OnPassive(tg telegram.Telegram, slaveData []byte) {
	now := time.Now()
	matched := d.messages.Route(tg, slaveData, now)
	for _, m := range matched {
		text, err := m.Decode(tg, slaveData, d.format)
		if err != nil {
			continue
		}
		select {
		case d.notifyCh <- Update{Message: m, Text: text, Time: now}:
		default:
			d.logger.Warn(logging.Bus, "notification channel full, dropping update for %s/%s", m.Circuit, m.Name)
		}
	}
	if tg.PB == identificationPB && tg.SB == identificationSB {
		d.recordIdentificationFromPassive(tg, slaveData)
	}
}

// runNotifier is the notification task spec §4.7 requires to be
// separate from the bus thread: it drains notifyCh and fans each
// Update out to every matching subscriber without ever touching the
// bus engine's state.
func (d *Dispatcher) runNotifier(ctx context.Context) {
	for {
		select {
		case u := <-d.notifyCh:
			d.mu.Lock()
			subs := make([]*Subscriber, 0, len(d.subs))
			for _, s := range d.subs {
				subs = append(subs, s)
			}
			d.mu.Unlock()
			for _, s := range subs {
				if s.Predicate != nil && !s.Predicate(u.Message) {
					continue
				}
				select {
				case s.Sink <- u:
				default:
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
