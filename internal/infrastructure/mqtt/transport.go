package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nomiku/nomiku-go/internal/infrastructure/config"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Transport is a single-connection MQTT client exposing the callback style
// contract the session drives: an asynchronous Connect reporting success or
// failure, Subscribe by topic, and handlers for inbound messages and lost
// connections.
//
// Every Connect builds a fresh paho client. Callbacks from a superseded
// connection are dropped.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Transport struct {
	cfg      config.MQTTConfig
	clientID string

	mu     sync.RWMutex
	client pahomqtt.Client
	gen    uint64

	handlerMu sync.RWMutex
	onMessage func(topic, payload string)
	onLost    func(err error)
	logger    Logger
}

// New creates a transport for the configured broker. It does not connect.
func New(cfg config.MQTTConfig) *Transport {
	return &Transport{
		cfg:      cfg,
		clientID: newClientID(cfg.Broker.ClientIDPrefix),
	}
}

// ClientID returns the MQTT client identifier used for every connection.
func (t *Transport) ClientID() string {
	return t.clientID
}

// SetMessageHandler sets the callback for every inbound message.
// Messages are delivered one at a time in arrival order.
func (t *Transport) SetMessageHandler(fn func(topic, payload string)) {
	t.handlerMu.Lock()
	t.onMessage = fn
	t.handlerMu.Unlock()
}

// SetConnectionLostHandler sets the callback for an unexpected disconnect.
// It is not called after Close.
func (t *Transport) SetConnectionLostHandler(fn func(err error)) {
	t.handlerMu.Lock()
	t.onLost = fn
	t.handlerMu.Unlock()
}

// SetLogger sets a logger for handler panics.
func (t *Transport) SetLogger(logger Logger) {
	t.handlerMu.Lock()
	t.logger = logger
	t.handlerMu.Unlock()
}

// Connect opens a new connection with the given credentials, replacing any
// previous one. It returns immediately; exactly one of onSuccess or
// onFailure is called from another goroutine when the attempt completes.
func (t *Transport) Connect(userName, password string, onSuccess func(), onFailure func(error)) {
	opts := buildClientOptions(t.cfg, t.clientID, userName, password)
	opts.SetDefaultPublishHandler(t.handleMessage)

	t.mu.Lock()
	previous := t.client
	t.gen++
	gen := t.gen
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.handleLost(gen, err)
	})
	client := pahomqtt.NewClient(opts)
	t.client = client
	t.mu.Unlock()

	if previous != nil {
		previous.Disconnect(0)
	}

	timeout := connectTimeout(t.cfg)
	token := client.Connect()
	go func() {
		if !token.WaitTimeout(timeout) {
			client.Disconnect(0)
			onFailure(fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout))
			return
		}
		if err := token.Error(); err != nil {
			onFailure(fmt.Errorf("%w: %w", ErrConnectionFailed, err))
			return
		}
		onSuccess()
	}()
}

// Subscribe subscribes the current connection to topic (wildcards allowed)
// and waits for the broker's acknowledgement.
func (t *Transport) Subscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	client := t.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Subscribe(topic, byte(t.cfg.QoS), nil)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if code, found := st.Result()[topic]; found && code == subscribeFailure {
			return fmt.Errorf("%w: %s: refused by broker", ErrSubscribeFailed, topic)
		}
	}
	return nil
}

// IsConnected reports whether the current connection is open.
func (t *Transport) IsConnected() bool {
	client := t.current()
	return client != nil && client.IsConnectionOpen()
}

// HealthCheck reports ErrNotConnected when no connection is open.
func (t *Transport) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !t.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close disconnects without invoking the connection-lost handler.
func (t *Transport) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.gen++
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(disconnectQuiesce)
	}
	return nil
}

func (t *Transport) current() pahomqtt.Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client
}

func (t *Transport) handleLost(gen uint64, err error) {
	t.mu.RLock()
	stale := gen != t.gen
	t.mu.RUnlock()
	if stale {
		return
	}

	t.handlerMu.RLock()
	fn := t.onLost
	t.handlerMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// handleMessage forwards a paho message with panic recovery.
func (t *Transport) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	t.handlerMu.RLock()
	fn := t.onMessage
	logger := t.logger
	t.handlerMu.RUnlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("MQTT handler panic recovered",
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	fn(msg.Topic(), string(msg.Payload()))
}
