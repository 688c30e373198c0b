package session

import (
	"sync"

	"go.uber.org/zap"

	"phonics-master/internal/match"
)

// Endpoint carries what every backend handle shares: the single receive
// handler, ordered delivery on one goroutine, and connection status.
// Messages delivered before a handler is registered are held until one is.
type Endpoint struct {
	id   string
	role Role
	log  *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	handler   func(match.Message)
	queue     []match.Message
	connected bool
	lastErr   string
	closed    bool
	done      chan struct{}
}

// NewEndpoint starts the dispatch goroutine. Close stops it.
func NewEndpoint(id string, role Role, connected bool, log *zap.Logger) *Endpoint {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Endpoint{
		id:        id,
		role:      role,
		log:       log.With(zap.String("session", id), zap.String("role", string(role))),
		connected: connected,
		done:      make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.dispatch()
	return e
}

func (e *Endpoint) ID() string       { return e.id }
func (e *Endpoint) Role() Role       { return e.role }
func (e *Endpoint) Log() *zap.Logger { return e.log }

// OnReceive replaces the active handler and flushes held messages to it.
func (e *Endpoint) OnReceive(fn func(match.Message)) {
	e.mu.Lock()
	e.handler = fn
	e.mu.Unlock()
	e.cond.Signal()
}

// Deliver queues an inbound message for the handler.
func (e *Endpoint) Deliver(msg match.Message) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, msg)
	e.mu.Unlock()
	e.cond.Signal()
}

// Status reports the connection flag and last error.
func (e *Endpoint) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{Connected: e.connected, Err: e.lastErr}
}

// Connected is shorthand for Status().Connected.
func (e *Endpoint) Connected() bool {
	return e.Status().Connected
}

// SetConnected updates the flag. Reconnecting clears the last error.
func (e *Endpoint) SetConnected(connected bool) {
	e.mu.Lock()
	changed := e.connected != connected
	e.connected = connected
	if connected {
		e.lastErr = ""
	}
	e.mu.Unlock()
	if changed {
		e.log.Info("peer connection changed", zap.Bool("connected", connected))
	}
}

// Fail marks the endpoint disconnected with a human-readable reason.
func (e *Endpoint) Fail(reason string) {
	e.mu.Lock()
	e.connected = false
	e.lastErr = reason
	e.mu.Unlock()
	e.log.Warn("peer connection lost", zap.String("reason", reason))
}

// Closed reports whether Close has been called.
func (e *Endpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Done is closed when the endpoint is.
func (e *Endpoint) Done() <-chan struct{} { return e.done }

// Close drops queued messages and stops dispatch. It is safe to call twice.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.connected = false
	e.queue = nil
	close(e.done)
	e.mu.Unlock()
	e.cond.Broadcast()
}

func (e *Endpoint) dispatch() {
	for {
		e.mu.Lock()
		for !e.closed && (e.handler == nil || len(e.queue) == 0) {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		msg := e.queue[0]
		e.queue = e.queue[1:]
		fn := e.handler
		e.mu.Unlock()

		fn(msg)
	}
}
