// Package binding derives the registry handle from the wallet session.
//
// A Binding follows a stream of ConnectionState snapshots. Whenever the signer
// changes it tears down the previous handle and its event subscriptions and
// builds exactly one new handle, installing listeners for the registry's
// domain events. Registry events are republished to subscribers together with
// the current BindingState, with numeric and address fields converted to
// display strings.
package binding

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/ruteri/supplychain-registry-client/descriptor"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/ruteri/supplychain-registry-client/metrics"
	"github.com/ruteri/supplychain-registry-client/pubsub"
)

const (
	msgLoadFailed = "Failed to load contract data"
	msgInitFailed = "Failed to initialize contract"
)

// StateSource is the part of the session the binding observes.
type StateSource interface {
	State() interfaces.ConnectionState
	Subscribe(fn func(interfaces.ConnectionState)) (unsubscribe func())
}

// Binding owns the registry handle.
type Binding struct {
	factory interfaces.HandleFactory
	log     *slog.Logger
	metrics *metrics.Metrics

	// rebuildMu serializes observation so each signer change builds once
	rebuildMu sync.Mutex

	mu         sync.Mutex
	desc       *interfaces.Descriptor
	signer     interfaces.Signer
	handle     interfaces.RegistryHandle
	subs       []event.Subscription
	generation uint64
	state      interfaces.BindingState

	pub pubsub.Publisher[interfaces.BindingUpdate]
}

// Option configures a Binding.
type Option func(*Binding)

// WithMetrics records handle rebuilds and domain events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Binding) { b.metrics = m }
}

// New creates a binding building handles with factory.
func New(factory interfaces.HandleFactory, log *slog.Logger, opts ...Option) *Binding {
	if log == nil {
		log = slog.Default()
	}
	b := &Binding{
		factory: factory,
		log:     log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load fetches and parses the registry descriptor. On failure the state's
// ErrorMessage is set and published. If a signer was already observed the
// handle is built right away.
func (b *Binding) Load(ctx context.Context, source interfaces.DescriptorSource) error {
	data, err := source.Fetch(ctx)
	if err == nil {
		var desc *interfaces.Descriptor
		desc, err = descriptor.Parse(data)
		if err == nil {
			b.SetDescriptor(desc)
			return nil
		}
	}

	b.log.Error("Failed to load registry descriptor",
		slog.String("source", source.LocationURI()),
		"err", err)

	b.mu.Lock()
	b.state.ErrorMessage = msgLoadFailed
	b.pub.Enqueue(interfaces.BindingUpdate{State: b.state})
	b.mu.Unlock()
	b.pub.Flush()

	return fmt.Errorf("%w: %v", interfaces.ErrDescriptorLoadFailed, err)
}

// SetDescriptor installs an already parsed descriptor.
func (b *Binding) SetDescriptor(desc *interfaces.Descriptor) {
	b.rebuildMu.Lock()
	defer b.rebuildMu.Unlock()

	b.mu.Lock()
	b.desc = desc
	b.state.Address = desc.Address
	b.state.Schema = desc.Schema
	if b.state.ErrorMessage == msgLoadFailed {
		b.state.ErrorMessage = ""
	}
	signer := b.signer
	b.mu.Unlock()

	b.log.Info("Registry descriptor loaded", slog.String("address", desc.Address))

	if signer != nil {
		b.rebuildLocked(signer)
		return
	}
	b.publishState()
}

// Attach observes src: the current state right away, then every publication.
// The returned function stops observing.
func (b *Binding) Attach(src StateSource) (detach func()) {
	unsubscribe := src.Subscribe(b.Observe)
	b.Observe(src.State())
	return unsubscribe
}

// Observe applies a connection state. The handle is rebuilt only when the
// signer identity changes and torn down when the signer disappears.
func (b *Binding) Observe(state interfaces.ConnectionState) {
	b.rebuildMu.Lock()
	defer b.rebuildMu.Unlock()

	var signer interfaces.Signer
	if state.IsConnected() {
		signer = state.Signer
	}

	b.mu.Lock()
	current := b.signer
	b.mu.Unlock()

	if signer == current {
		return
	}

	if signer == nil {
		b.teardown()
		b.mu.Lock()
		b.signer = nil
		b.mu.Unlock()
		b.log.Info("Registry handle released")
		b.publishState()
		return
	}

	b.rebuildLocked(signer)
}

// rebuildLocked replaces the handle for signer. rebuildMu must be held.
func (b *Binding) rebuildLocked(signer interfaces.Signer) {
	b.teardown()

	b.mu.Lock()
	b.signer = signer
	desc := b.desc
	b.mu.Unlock()

	if desc == nil {
		// built once the descriptor is available
		b.publishState()
		return
	}

	handle, err := b.factory.NewHandle(desc, signer)
	if err != nil {
		b.log.Error("Failed to create registry handle",
			slog.String("address", desc.Address),
			"err", err)

		b.mu.Lock()
		b.state.Ready = false
		b.state.Handle = nil
		b.state.ErrorMessage = msgInitFailed
		b.pub.Enqueue(interfaces.BindingUpdate{State: b.state})
		b.mu.Unlock()
		b.pub.Flush()
		return
	}

	b.mu.Lock()
	b.generation++
	gen := b.generation
	b.handle = handle
	b.mu.Unlock()

	var subs []event.Subscription
	for _, eventType := range interfaces.DomainEventTypes {
		eventType := eventType
		sub, err := handle.WatchEvent(string(eventType), func(ev interfaces.RegistryEvent) {
			b.onEvent(gen, eventType, ev)
		})
		if err != nil {
			b.log.Warn("Failed to subscribe to registry event",
				slog.String("event", string(eventType)),
				"err", err)
			continue
		}
		subs = append(subs, sub)
	}

	b.mu.Lock()
	b.subs = subs
	b.state.Ready = true
	b.state.Handle = handle
	b.state.ErrorMessage = ""
	b.pub.Enqueue(interfaces.BindingUpdate{State: b.state})
	b.mu.Unlock()

	b.metrics.BindingRebuilt()
	b.log.Info("Registry handle ready",
		slog.String("address", handle.Address().Hex()),
		slog.String("account", signer.Address().Hex()),
		slog.Int("listeners", len(subs)))

	b.pub.Flush()
}

// teardown removes the listeners and releases the current handle. Listeners
// are unsubscribed outside b.mu because unsubscribing waits for in-flight
// callbacks, which take b.mu.
func (b *Binding) teardown() {
	b.mu.Lock()
	handle := b.handle
	subs := b.subs
	b.handle = nil
	b.subs = nil
	b.generation++
	b.state.Ready = false
	b.state.Handle = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if handle != nil {
		handle.Close()
	}
}

func (b *Binding) publishState() {
	b.mu.Lock()
	b.pub.Enqueue(interfaces.BindingUpdate{State: b.state})
	b.mu.Unlock()
	b.pub.Flush()
}

func (b *Binding) onEvent(gen uint64, eventType interfaces.DomainEventType, ev interfaces.RegistryEvent) {
	domainEvent := &interfaces.DomainEvent{
		Type: eventType,
		Data: coerceArgs(ev.Args),
	}

	b.mu.Lock()
	if gen != b.generation {
		// delivered by a handle that was already replaced
		b.mu.Unlock()
		return
	}
	b.pub.Enqueue(interfaces.BindingUpdate{State: b.state, Event: domainEvent})
	b.mu.Unlock()

	b.metrics.DomainEvent(string(eventType))
	b.log.Debug("Registry event",
		slog.String("event", string(eventType)),
		slog.String("tx", ev.TxHash.Hex()),
		slog.Uint64("block", ev.BlockNumber))

	b.pub.Flush()
}

// State returns the current snapshot.
func (b *Binding) State() interfaces.BindingState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Handle returns the current handle, nil when unavailable.
func (b *Binding) Handle() interfaces.RegistryHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle
}

// Subscribe registers fn to receive every publication.
func (b *Binding) Subscribe(fn func(interfaces.BindingUpdate)) (unsubscribe func()) {
	return b.pub.Subscribe(fn)
}

// Close tears the handle down.
func (b *Binding) Close() {
	b.rebuildMu.Lock()
	defer b.rebuildMu.Unlock()

	b.teardown()
	b.mu.Lock()
	b.signer = nil
	b.mu.Unlock()
}

// coerceArgs converts decoded event fields to display-safe strings: big
// integers to decimal, addresses to checksummed hex, fixed byte arrays to hex.
func coerceArgs(args map[string]interface{}) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = coerce(v)
	}
	return out
}

func coerce(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case *big.Int:
		if val == nil {
			return "0"
		}
		return val.String()
	case common.Address:
		return val.Hex()
	case common.Hash:
		return val.Hex()
	case [32]byte:
		return "0x" + hex.EncodeToString(val[:])
	case []byte:
		return "0x" + hex.EncodeToString(val)
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
