package storekit

import (
	"context"
	"sync/atomic"
)

// Callback receives one encoded envelope per call.
type Callback func(payload []byte)

// RegistryConfig configures a CallbackRegistry.
type RegistryConfig struct {
	// ReplayUndelivered keeps envelopes delivered while no callback is registered and
	// replays them, in order, right after the next Register.
	ReplayUndelivered bool

	// BacklogSize bounds the replay backlog; the oldest envelope is dropped beyond it.
	// Default: 32
	BacklogSize int

	Logger  Logger
	Metrics Metrics
}

// CallbackRegistry holds at most one foreign completion handler.
//
// The slot is copy-on-write and Register never waits on the dispatcher queue, so a callback
// may re-register from inside an invocation even while the queue is full. Invocations only
// happen on the dispatcher, which serializes them across every concurrent Deliver.
type CallbackRegistry struct {
	slot       atomic.Pointer[Callback]
	dispatcher *Dispatcher
	config     RegistryConfig
	logger     Logger
	metrics    Metrics

	// backlog is only touched on the dispatcher goroutine.
	backlog []Envelope
}

// NewCallbackRegistry creates a registry delivering on dispatcher.
func NewCallbackRegistry(dispatcher *Dispatcher, config RegistryConfig) *CallbackRegistry {
	if config.BacklogSize <= 0 {
		config.BacklogSize = 32
	}
	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &CallbackRegistry{
		dispatcher: dispatcher,
		config:     config,
		logger:     logger,
		metrics:    metrics,
	}
}

// Register replaces the current callback. A nil callback unregisters.
// In-flight deliveries use whatever is registered when they reach the dispatcher.
func (r *CallbackRegistry) Register(cb Callback) {
	if cb == nil {
		r.slot.Store(nil)
		return
	}
	r.slot.Store(&cb)

	if !r.config.ReplayUndelivered {
		return
	}
	if r.dispatcher.TryGo(r.replay) {
		return
	}
	// Queue full. The next invoke drains the backlog first, so this only matters when no
	// further delivery arrives.
	go func() {
		if err := r.dispatcher.Go(r.replay); err != nil {
			r.logger.Debug("backlog replay not scheduled", errField(err))
		}
	}()
}

// Registered reports whether a callback is currently registered.
func (r *CallbackRegistry) Registered() bool {
	return r.slot.Load() != nil
}

// Deliver encodes env and invokes the registered callback exactly once on the dispatcher,
// returning after the invocation. It reports whether the callback ran. Without a callback
// the envelope is dropped (or backlogged) silently. Encode failures are logged and the
// delivery is skipped.
func (r *CallbackRegistry) Deliver(ctx context.Context, env Envelope) bool {
	payload, err := Encode(env)
	if err != nil {
		r.logger.Error("envelope encode failed, delivery skipped",
			eventField(env.Event), errField(err))
		r.metrics.RecordDelivery(env.Event, DeliveryEncodeError)
		return false
	}

	delivered := false
	err = r.dispatcher.Do(ctx, func() {
		delivered = r.invoke(env, payload)
	})
	if err != nil {
		r.logger.Error("delivery not dispatched",
			eventField(env.Event), errField(err))
		return false
	}
	return delivered
}

// invoke runs on the dispatcher goroutine.
func (r *CallbackRegistry) invoke(env Envelope, payload []byte) bool {
	cb := r.slot.Load()
	if cb == nil {
		if r.config.ReplayUndelivered {
			r.pushBacklog(env)
			r.metrics.RecordDelivery(env.Event, DeliveryBacklogged)
			return false
		}
		r.logger.Debug("no callback registered, envelope dropped",
			eventField(env.Event))
		r.metrics.RecordDelivery(env.Event, DeliveryDropped)
		return false
	}
	if len(r.backlog) > 0 {
		r.replay()
		if cb = r.slot.Load(); cb == nil {
			return r.invoke(env, payload)
		}
	}
	(*cb)(payload)
	r.metrics.RecordDelivery(env.Event, DeliveryDelivered)
	return true
}

func (r *CallbackRegistry) pushBacklog(env Envelope) {
	if len(r.backlog) >= r.config.BacklogSize {
		r.logger.Warn("delivery backlog full, dropping oldest envelope",
			eventField(r.backlog[0].Event))
		r.metrics.RecordDelivery(r.backlog[0].Event, DeliveryDropped)
		r.backlog = r.backlog[1:]
	}
	r.backlog = append(r.backlog, env)
}

// replay runs on the dispatcher goroutine.
func (r *CallbackRegistry) replay() {
	for len(r.backlog) > 0 {
		cb := r.slot.Load()
		if cb == nil {
			return
		}
		env := r.backlog[0]
		r.backlog = r.backlog[1:]

		payload, err := Encode(env)
		if err != nil {
			r.metrics.RecordDelivery(env.Event, DeliveryEncodeError)
			continue
		}
		(*cb)(payload)
		r.metrics.RecordDelivery(env.Event, DeliveryReplayed)
	}
}
