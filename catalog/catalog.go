// Package catalog keeps the list of components the caller has seen: the ones
// registered while the client runs and the ones looked up by id. Registry
// events keep the entries current.
package catalog

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ruteri/supplychain-registry-client/gateway"
	"github.com/ruteri/supplychain-registry-client/interfaces"
	"github.com/ruteri/supplychain-registry-client/pubsub"
)

// RouteComponentDetails is the view showing a single component.
const RouteComponentDetails = "component-details"

// Service is the subset of the gateway the catalog uses.
type Service interface {
	RegisterComponent(ctx context.Context, name, description, initialMetadata string) (*gateway.RegisterResult, error)
	GetComponentDetails(ctx context.Context, componentID string) (*interfaces.Component, error)
}

// UpdateSource publishes binding updates.
type UpdateSource interface {
	Subscribe(fn func(interfaces.BindingUpdate)) (unsubscribe func())
}

// Catalog is safe for concurrent use.
type Catalog struct {
	service Service
	nav     interfaces.Navigator
	log     *slog.Logger

	mu         sync.Mutex
	components []interfaces.Component
	// fetches counts loads started per id; only the latest load is applied
	fetches map[string]uint64

	pub pubsub.Publisher[[]interfaces.Component]
}

// New creates an empty catalog. nav may be nil.
func New(service Service, nav interfaces.Navigator, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	if nav == nil {
		nav = interfaces.NavigatorFunc(func(string, map[string]string) {})
	}
	return &Catalog{
		service: service,
		nav:     nav,
		log:     log,
		fetches: make(map[string]uint64),
	}
}

// Attach follows registry events from src until ctx is done or detach is called.
// Component loads run outside the publication round.
func (c *Catalog) Attach(ctx context.Context, src UpdateSource) (detach func()) {
	var (
		wg       sync.WaitGroup
		lifeMu   sync.Mutex
		detached bool
	)
	ctx, cancel := context.WithCancel(ctx)

	// spawn starts a load unless detach already began waiting.
	spawn := func(id string, add bool) {
		lifeMu.Lock()
		defer lifeMu.Unlock()
		if detached {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.load(ctx, id, add)
		}()
	}

	unsubscribe := src.Subscribe(func(update interfaces.BindingUpdate) {
		if update.Event == nil || ctx.Err() != nil {
			return
		}
		id := update.Event.Data["componentId"]
		if id == "" {
			return
		}

		switch update.Event.Type {
		case interfaces.EventComponentRegistered:
			spawn(id, true)
		case interfaces.EventOwnershipTransferred, interfaces.EventStatusUpdated:
			spawn(id, false)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			lifeMu.Lock()
			detached = true
			lifeMu.Unlock()
			cancel()
			wg.Wait()
		})
	}
}

// load fetches id and stores it. Unknown ids are only added when add is set.
func (c *Catalog) load(ctx context.Context, id string, add bool) {
	if _, err := c.fetch(ctx, id, add); err != nil {
		c.log.Warn("Failed to load component", slog.String("componentId", id), "err", err)
	}
}

// fetch reads id through the service and stores the result unless a later
// fetch for the same id started in the meantime.
func (c *Catalog) fetch(ctx context.Context, id string, add bool) (*interfaces.Component, error) {
	c.mu.Lock()
	if !add && c.indexLocked(id) < 0 {
		c.mu.Unlock()
		return nil, nil
	}
	c.fetches[id]++
	seq := c.fetches[id]
	c.mu.Unlock()

	component, err := c.service.GetComponentDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.fetches[id] == seq {
		c.storeLocked(*component, add)
	}
	c.mu.Unlock()
	c.pub.Flush()

	return component, nil
}

// storeLocked replaces or appends component and enqueues a snapshot.
func (c *Catalog) storeLocked(component interfaces.Component, add bool) {
	if i := c.indexLocked(component.ID); i >= 0 {
		c.components[i] = component
	} else if add {
		c.components = append(c.components, component)
	} else {
		return
	}
	c.pub.Enqueue(c.snapshotLocked())
}

func (c *Catalog) indexLocked(id string) int {
	for i := range c.components {
		if c.components[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Catalog) snapshotLocked() []interfaces.Component {
	out := make([]interfaces.Component, len(c.components))
	copy(out, c.components)
	return out
}

// Components returns the catalog in the order entries were added.
func (c *Catalog) Components() []interfaces.Component {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for catalog snapshots.
func (c *Catalog) Subscribe(fn func([]interfaces.Component)) (unsubscribe func()) {
	return c.pub.Subscribe(fn)
}

// Search loads componentID, adds it if absent and opens its details view.
func (c *Catalog) Search(ctx context.Context, componentID string) (*interfaces.Component, error) {
	componentID = strings.TrimSpace(componentID)

	component, err := c.fetch(ctx, componentID, true)
	if err != nil {
		return nil, err
	}

	c.nav.Navigate(RouteComponentDetails, map[string]string{"componentId": component.ID})
	return component, nil
}

// RegisterAndOpen registers a component and opens its details view.
// The entry itself arrives with the ComponentRegistered event.
func (c *Catalog) RegisterAndOpen(ctx context.Context, name, description, initialMetadata string) (*gateway.RegisterResult, error) {
	result, err := c.service.RegisterComponent(ctx, name, description, initialMetadata)
	if err != nil {
		return nil, err
	}
	if result.ComponentID != "" {
		c.nav.Navigate(RouteComponentDetails, map[string]string{"componentId": result.ComponentID})
	}
	return result, nil
}

// IsOwner reports whether the connected account owns component.
func IsOwner(state interfaces.ConnectionState, component interfaces.Component) bool {
	if !state.IsConnected() || state.Account == nil {
		return false
	}
	return strings.EqualFold(state.Account.Hex(), component.CurrentOwner)
}
