package client

import (
	"context"
	"sync"

	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/session"
	"github.com/nomiku/nomiku-go/internal/tender"
)

// Deps are the collaborators of a Client.
type Deps struct {
	Transport session.Transport
	Directory session.Directory
	Config    session.Config
	Logger    session.Logger   // optional
	Metrics   *session.Metrics // optional
}

// Client is the public entry point for talking to Nomiku cookers. It wraps
// a session.Machine and forwards its events to registered handlers.
//
// Handlers run synchronously on the goroutine that produced the event.
// State events from inbound messages are delivered on the transport's
// delivery goroutine, so handlers must not block on Listen there.
type Client struct {
	machine *session.Machine
	logger  session.Logger

	mu        sync.RWMutex
	onConnect []func()
	onClose   []func()
	onError   []func(error)
	onState   []func(device.Snapshot)
	onEvent   []func(session.Event)
}

// New creates a disconnected client.
func New(deps Deps) *Client {
	m := session.New(deps.Config, deps.Transport, deps.Directory)
	c := &Client{machine: m, logger: deps.Logger}
	if deps.Logger != nil {
		m.SetLogger(deps.Logger)
	}
	m.SetMetrics(deps.Metrics)
	m.SetEmitter(c)
	return c
}

// Connect authenticates if needed, loads devices and connects. Lifecycle
// changes are reported through OnConnect, OnClose and OnError.
func (c *Client) Connect(ctx context.Context, opts session.Options) error {
	return c.machine.Connect(ctx, opts)
}

// Auth exchanges email and password for credentials.
func (c *Client) Auth(ctx context.Context, email, password string) (tender.Credentials, error) {
	return c.machine.Auth(ctx, email, password)
}

// LoadDevices refreshes the device list.
func (c *Client) LoadDevices(ctx context.Context) ([]device.Info, error) {
	return c.machine.LoadDevices(ctx)
}

// GetDefaultDevice returns the account's default device.
func (c *Client) GetDefaultDevice(ctx context.Context) (device.ID, error) {
	return c.machine.GetDefaultDevice(ctx)
}

// Listen starts receiving state for a device. An empty id selects the
// default device.
func (c *Client) Listen(id device.ID) error {
	return c.machine.Listen(id)
}

// Set returns a command for a device. An empty id selects the default
// device.
func (c *Client) Set(id device.ID) (*session.Command, error) {
	return c.machine.Set(id)
}

// Snapshot returns the current state of a device.
func (c *Client) Snapshot(id device.ID) (device.Snapshot, error) {
	return c.machine.Snapshot(id)
}

// Devices returns the known devices.
func (c *Client) Devices() []device.Info {
	return c.machine.Devices()
}

// IsConnected reports whether the transport is connected.
func (c *Client) IsConnected() bool {
	return c.machine.IsConnected()
}

// Phase returns the connection phase.
func (c *Client) Phase() session.Phase {
	return c.machine.Phase()
}

// Close disconnects and stops all timers.
func (c *Client) Close() error {
	return c.machine.Close()
}

// OnConnect registers a handler for successful connections.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// OnClose registers a handler for lost connections.
func (c *Client) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// OnError registers a handler for asynchronous errors.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = append(c.onError, fn)
	c.mu.Unlock()
}

// OnState registers a handler for device snapshots.
func (c *Client) OnState(fn func(device.Snapshot)) {
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

// OnEvent registers a handler for every event, including its origin.
func (c *Client) OnEvent(fn func(session.Event)) {
	c.mu.Lock()
	c.onEvent = append(c.onEvent, fn)
	c.mu.Unlock()
}

// Emit implements session.Emitter.
func (c *Client) Emit(e session.Event) {
	c.mu.RLock()
	onEvent := c.onEvent
	onConnect := c.onConnect
	onClose := c.onClose
	onError := c.onError
	onState := c.onState
	c.mu.RUnlock()

	for _, fn := range onEvent {
		c.safeCall(e.Kind, func() { fn(e) })
	}

	switch e.Kind {
	case session.EventConnect:
		for _, fn := range onConnect {
			c.safeCall(e.Kind, fn)
		}
	case session.EventClose:
		for _, fn := range onClose {
			c.safeCall(e.Kind, fn)
		}
	case session.EventError:
		for _, fn := range onError {
			c.safeCall(e.Kind, func() { fn(e.Err) })
		}
	case session.EventState:
		for _, fn := range onState {
			c.safeCall(e.Kind, func() { fn(e.Snapshot) })
		}
	}
}

// safeCall runs a handler, recovering panics so one handler cannot stop
// delivery to the others.
func (c *Client) safeCall(kind session.EventKind, fn func()) {
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Error("event handler panic recovered", "event", kind.String(), "panic", r)
		}
	}()
	fn()
}
