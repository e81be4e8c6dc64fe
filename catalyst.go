package tonic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// livenessInterval bounds the idle dequeue wait. It exists only so the loop
// periodically rechecks its stop flag; it has no scheduling effect.
const livenessInterval = 5 * time.Second

// workItem is one queued operation: the handler was already resolved at
// enqueue time, so dispatch only has to find the target and run it.
type workItem struct {
	target   ID
	op       string
	category Category
	handler  Handler
	payload  any
}

// Catalyst is a single-threaded execution engine. Any goroutine may enqueue
// work; exactly one goroutine ever dequeues and runs handlers, which is
// what gives every essence on this catalyst its sequential view. A catalyst
// stops on its own when its last registered tonic deregisters, unless held
// open.
type Catalyst struct {
	name   string
	ledger *Ledger
	log    *slog.Logger
	tracer trace.Tracer

	mu       sync.Mutex
	queue    []workItem
	started  bool
	stopping bool
	tonics   int
	holdOpen bool

	wake chan struct{}
	done chan struct{}
}

// CatalystOption configures a Catalyst.
type CatalystOption func(*Catalyst)

// WithHoldOpen keeps the catalyst running at zero registered tonics. The
// bootstrap uses it for engines that receive their first tonic late; the
// test harness uses it to step a catalyst that is never started.
func WithHoldOpen() CatalystOption {
	return func(c *Catalyst) { c.holdOpen = true }
}

// WithTracer records a span per dispatched item.
func WithTracer(tr trace.Tracer) CatalystOption {
	return func(c *Catalyst) { c.tracer = tr }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) CatalystOption {
	return func(c *Catalyst) { c.log = l }
}

func NewCatalyst(ledger *Ledger, name string, opts ...CatalystOption) *Catalyst {
	c := &Catalyst{
		name:   name,
		ledger: ledger,
		log:    slog.Default(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "catalyst", "catalyst", name)
	return c
}

func (c *Catalyst) Name() string { return c.name }

// Start runs the drain loop. Inline blocks the calling goroutine until the
// catalyst stops; Spawn starts a dedicated goroutine and returns. A
// catalyst starts at most once.
func (c *Catalyst) Start(policy StartPolicy) error {
	if policy != Inline && policy != Spawn {
		return fmt.Errorf("catalyst %q: unknown start policy %d", c.name, policy)
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("catalyst %q already started", c.name)
	}
	c.started = true
	c.mu.Unlock()

	c.log.Debug("catalyst starting", "policy", policy.String())
	if policy == Spawn {
		go c.loop()
		return nil
	}
	c.loop()
	return nil
}

// Stop requests loop exit. Idempotent, callable from anywhere, including
// from inside a handler.
func (c *Catalyst) Stop() {
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()
	c.signal()
}

// Done is closed once the loop has exited.
func (c *Catalyst) Done() <-chan struct{} { return c.done }

// Pending reports the queue length.
func (c *Catalyst) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Tonics reports the registered tonic count.
func (c *Catalyst) Tonics() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tonics
}

// RegisterTonic counts a newly constructed tonic against this catalyst.
func (c *Catalyst) RegisterTonic(id ID) {
	c.mu.Lock()
	c.tonics++
	n := c.tonics
	c.mu.Unlock()
	c.log.Debug("tonic registered", "essence", id, "tonics", n)
}

// DeregisterTonic removes one tonic from the count. Reaching zero requests
// the catalyst's own stop unless it is held open.
func (c *Catalyst) DeregisterTonic(id ID) {
	c.mu.Lock()
	if c.tonics > 0 {
		c.tonics--
	}
	stop := c.tonics == 0 && !c.holdOpen
	if stop {
		c.stopping = true
	}
	c.mu.Unlock()
	if stop {
		c.log.Debug("last tonic deregistered, stopping", "essence", id)
		c.signal()
	}
}

func (c *Catalyst) enqueue(item workItem) {
	c.mu.Lock()
	c.queue = append(c.queue, item)
	c.mu.Unlock()
	c.signal()
}

func (c *Catalyst) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Catalyst) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

func (c *Catalyst) loop() {
	defer close(c.done)
	for {
		if c.stopRequested() {
			c.discardQueue()
			c.log.Debug("catalyst stopped")
			return
		}
		if c.RunOne() {
			continue
		}
		select {
		case <-c.wake:
		case <-time.After(livenessInterval):
		}
	}
}

func (c *Catalyst) discardQueue() {
	c.mu.Lock()
	n := len(c.queue)
	c.queue = nil
	c.mu.Unlock()
	if n > 0 {
		c.log.Debug("discarding queued operations at stop", "count", n)
	}
}

// RunOne pops and dispatches exactly one item. It reports false on an empty
// queue. The inline loop and the step-controlled test harness share it.
func (c *Catalyst) RunOne() bool {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}
	item := c.queue[0]
	c.queue[0] = workItem{}
	c.queue = c.queue[1:]
	c.mu.Unlock()

	c.dispatch(item)
	return true
}

// dispatch runs one item against its target. A target missing from the
// ledger drops the item with a diagnostic; a finishing tonic drops every
// non-system item silently; a handler failure is logged and the loop moves
// on. A clean return settles the tonic's pending transition.
func (c *Catalyst) dispatch(item workItem) {
	target, err := c.ledger.Lookup(item.target)
	if err != nil {
		c.log.Debug("dropping operation for departed essence",
			"essence", item.target, "op", item.op, "category", item.category.String())
		return
	}
	tn := asTonic(target)
	if tn != nil {
		tn.clearPending()
		if tn.finishing.Load() && item.category != System {
			return
		}
	}
	if item.handler == nil {
		return
	}

	var span trace.Span
	if c.tracer != nil {
		_, span = c.tracer.Start(context.Background(), item.op, trace.WithAttributes(
			attribute.Int64("essence.id", int64(item.target)),
			attribute.String("essence.name", target.Core().Name()),
			attribute.String("op.category", item.category.String()),
		))
	}

	err = safeCall(item.handler, target, item.payload)
	if err != nil {
		c.log.Error("operation failed",
			"essence", item.target, "op", item.op, "error", err)
	} else if tn != nil {
		tn.settle()
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
