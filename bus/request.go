package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/telegram"
)

// State is a BusRequest's lifecycle position. The only transitions
// are Queued->Active and Active->(Succeeded|Failed); Queued can also
// go directly to Failed(Canceled). See spec §4.7.
type State uint8

const (
	Queued State = iota
	Active
	Succeeded
	Failed
)

// BusRequest is a transient unit of work: a telegram to send plus a
// single-shot completion signal. The submitter owns the receiving
// half (Wait); the engine owns the sending half (complete), per spec
// §9's "oneshot/promise" reshaping of the original condvar design.
type BusRequest struct {
	Telegram telegram.Telegram

	mu        sync.Mutex
	state     State
	err       error
	slaveData []byte
	done      chan struct{}
	canceled  int32
}

// NewBusRequest wraps tg for submission to a Handler.
func NewBusRequest(tg telegram.Telegram) *BusRequest {
	return &BusRequest{Telegram: tg, done: make(chan struct{})}
}

// State reports the request's current lifecycle position.
func (r *BusRequest) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Cancel marks the request canceled, only effective while it is still
// Queued; the engine checks this flag when it dequeues the request.
// Returns false if the request was already Active or complete.
func (r *BusRequest) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Queued {
		return false
	}
	atomic.StoreInt32(&r.canceled, 1)
	return true
}

func (r *BusRequest) isCanceled() bool { return atomic.LoadInt32(&r.canceled) == 1 }

// markActive transitions Queued->Active, or completes as
// Failed(Canceled) if Cancel raced ahead of dequeue.
func (r *BusRequest) markActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isCanceled() {
		r.state = Failed
		r.err = ebuserr.New(ebuserr.Canceled, "canceled before activation")
		close(r.done)
		return false
	}
	r.state = Active
	return true
}

// complete transitions Active->(Succeeded|Failed) and releases Wait.
func (r *BusRequest) complete(slaveData []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Active {
		return
	}
	r.slaveData = slaveData
	r.err = err
	if err != nil {
		r.state = Failed
	} else {
		r.state = Succeeded
	}
	close(r.done)
}

// Wait blocks until the request completes or ctx is done, returning
// the slave reply payload (MS only, nil otherwise) on success.
func (r *BusRequest) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.slaveData, r.err
	case <-ctx.Done():
		return nil, ebuserr.Wrap(ebuserr.Canceled, "wait canceled", ctx.Err())
	}
}
