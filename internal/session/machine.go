package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/tender"
)

// Machine is the connection state machine of one client session.
//
// It owns the transport, the account credentials, the device registry and
// every timer of the session. Inbound messages are routed to the owning
// device.Record and the resulting snapshots are emitted as events.
//
// Connection lifecycle:
//
//	Disconnected → Authenticating → ResolvingDefaultDevice → LoadingDevices
//	  → TransportConnecting → Connected
//
// Steps whose result is already known are skipped, so Connect may be called
// again after a partial failure. A transport failure or a lost connection
// returns to Disconnected and schedules a reconnect with exponential
// backoff. There is no terminal state short of Close.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Registry and record mutation happens under a single mutex.
//   - Events are emitted after the mutex is released.
//   - Directory and transport calls never run under the mutex.
type Machine struct {
	cfg       Config
	topics    Topics
	transport Transport
	directory Directory

	emitter Emitter
	logger  Logger
	metrics *Metrics
	now     func() time.Time

	mu        sync.Mutex
	closed    bool
	phase     Phase
	connected bool

	email    string
	password string
	creds    tender.Credentials
	verbose  bool

	defaultDevice device.ID
	devices       map[device.ID]*device.Record
	listening     map[device.HardwareID]*device.Record

	provisionalTimers map[device.ID]*expiryTimer
	timerGen          uint64

	backoff        *Backoff
	reconnectTimer *time.Timer
	reconnectGen   uint64
	connectGen     uint64
}

// expiryTimer is the pending provisional expiry of one device. gen
// identifies the arming so a timer that fired while being replaced is
// ignored.
type expiryTimer struct {
	gen   uint64
	timer *time.Timer
}

// New creates a disconnected Machine and installs its handlers on the
// transport.
func New(cfg Config, transport Transport, directory Directory) *Machine {
	cfg = cfg.withDefaults()
	m := &Machine{
		cfg:               cfg,
		topics:            Topics{Namespace: cfg.Namespace},
		transport:         transport,
		directory:         directory,
		emitter:           noopEmitter{},
		logger:            noopLogger{},
		now:               time.Now,
		devices:           make(map[device.ID]*device.Record),
		listening:         make(map[device.HardwareID]*device.Record),
		provisionalTimers: make(map[device.ID]*expiryTimer),
		backoff:           NewBackoff(cfg.MinPeriod, cfg.MaxPeriod),
	}
	transport.SetMessageHandler(m.handleMessage)
	transport.SetConnectionLostHandler(m.handleConnectionLost)
	return m
}

// SetEmitter sets the event receiver. Call before Connect.
func (m *Machine) SetEmitter(e Emitter) {
	if e == nil {
		e = noopEmitter{}
	}
	m.emitter = e
}

// SetLogger sets the logger. Call before Connect.
func (m *Machine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetMetrics sets the metrics collector. Call before Connect.
func (m *Machine) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// ===== Connect flow =====

// Connect merges opts into the session and runs the connect flow. The
// transport connection completes asynchronously; success is reported by a
// connect event.
//
// Remote and validation errors are returned and not retried. Failures to
// reach the directory are returned as well but also schedule a reconnect.
func (m *Machine) Connect(ctx context.Context, opts Options) error {
	if err := m.merge(opts); err != nil {
		return err
	}
	return m.connect(ctx)
}

func (m *Machine) merge(opts Options) error {
	for _, info := range opts.Devices {
		if err := info.Validate(); err != nil {
			return fmt.Errorf("connect options: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if opts.Email != "" {
		m.email = opts.Email
	}
	if opts.Password != "" {
		m.password = opts.Password
	}
	if opts.UserID != "" {
		m.creds.UserID = opts.UserID
	}
	if opts.APIToken != "" {
		m.creds.APIToken = opts.APIToken
	}
	if opts.DefaultDevice != "" {
		m.defaultDevice = opts.DefaultDevice
	}
	m.verbose = opts.VerboseState
	for _, info := range opts.Devices {
		m.addDeviceLocked(info)
	}
	return nil
}

func (m *Machine) connect(ctx context.Context) error {
	creds, err := m.ensureCredentials(ctx)
	if err != nil {
		return m.connectFailed(err)
	}

	if err := m.ensureDefaultDevice(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		m.logger.Warn("default device not resolved", "error", err)
	}

	if err := m.ensureDevices(ctx); err != nil {
		return m.connectFailed(err)
	}

	return m.openTransport(creds)
}

func (m *Machine) ensureCredentials(ctx context.Context) (tender.Credentials, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return tender.Credentials{}, ErrClosed
	}
	creds := m.creds
	email, password := m.email, m.password
	if creds.Valid() {
		m.mu.Unlock()
		return creds, nil
	}
	m.phase = PhaseAuthenticating
	m.mu.Unlock()

	return m.Auth(ctx, email, password)
}

func (m *Machine) ensureDefaultDevice(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.defaultDevice != "" {
		m.mu.Unlock()
		return nil
	}
	m.phase = PhaseResolvingDefaultDevice
	m.mu.Unlock()

	_, err := m.GetDefaultDevice(ctx)
	return err
}

func (m *Machine) ensureDevices(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if len(m.devices) > 0 {
		m.mu.Unlock()
		return nil
	}
	m.phase = PhaseLoadingDevices
	m.mu.Unlock()

	_, err := m.LoadDevices(ctx)
	return err
}

// connectFailed ends a connect flow that failed before the transport was
// reached. Only transient directory failures are retried.
func (m *Machine) connectFailed(err error) error {
	if tender.IsRetryable(err) {
		m.failed(0, err)
		return err
	}

	m.mu.Lock()
	if m.phase != PhaseConnected {
		m.phase = PhaseDisconnected
	}
	m.mu.Unlock()
	return err
}

func (m *Machine) openTransport(creds tender.Credentials) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.phase = PhaseTransportConnecting
	m.connectGen++
	gen := m.connectGen
	m.mu.Unlock()

	m.metrics.connectAttempt()
	m.logger.Debug("connecting transport", "user", creds.BrokerUserName())
	m.transport.Connect(creds.BrokerUserName(), creds.APIToken,
		func() { m.handleConnected(gen) },
		func(err error) { m.failed(gen, err) },
	)
	return nil
}

// handleConnected runs when the transport reports success: it resets the
// backoff, adds the default device to the listening set and subscribes
// every listening device.
func (m *Machine) handleConnected(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.connectGen {
		m.mu.Unlock()
		return
	}
	m.connected = true
	m.phase = PhaseConnected
	m.cancelReconnectLocked()
	m.backoff.Reset()
	period := m.backoff.Current()
	if m.defaultDevice != "" {
		if rec, ok := m.devices[m.defaultDevice]; ok {
			m.listening[rec.HardwareID()] = rec
		}
	}
	topics := m.subscriptionsLocked()
	m.mu.Unlock()

	m.metrics.setConnected(true, period)
	m.logger.Info("connected", "subscriptions", len(topics))
	m.emit(Event{Kind: EventConnect})

	for _, topic := range topics {
		_ = m.subscribe(topic)
	}
}

// failed handles a failed connection attempt: the period doubles and a
// reconnect is armed. gen is the transport attempt, or 0 for a failure
// before the transport was reached.
func (m *Machine) failed(gen uint64, err error) {
	m.mu.Lock()
	if m.closed || (gen != 0 && gen != m.connectGen) {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.phase = PhaseDisconnected
	period := m.backoff.Fail()
	m.armReconnectLocked(period)
	m.mu.Unlock()

	m.metrics.connectFailed(period)
	m.logger.Warn("connection failed", "error", err, "retry_in", period.String())
	m.emit(Event{Kind: EventError, Err: err})
}

// handleConnectionLost runs when an established connection drops. The
// reconnect uses the current period without doubling it.
func (m *Machine) handleConnectionLost(err error) {
	m.mu.Lock()
	if m.closed || !m.connected {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.phase = PhaseDisconnected
	period := m.backoff.Current()
	m.armReconnectLocked(period)
	m.mu.Unlock()

	m.metrics.setConnected(false, period)
	m.logger.Warn("connection lost", "error", err, "retry_in", period.String())
	m.emit(Event{Kind: EventClose})
}

func (m *Machine) armReconnectLocked(period time.Duration) {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectGen++
	gen := m.reconnectGen
	m.reconnectTimer = time.AfterFunc(period, func() { m.reconnect(gen) })
}

// cancelReconnectLocked disarms a pending reconnect. Bumping the generation
// also drops a timer that already fired and is waiting on the lock.
func (m *Machine) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectGen++
}

func (m *Machine) reconnect(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.reconnectGen {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.mu.Unlock()

	m.logger.Info("reconnecting")
	err := m.connect(context.Background())
	if err != nil && !tender.IsRetryable(err) && !errors.Is(err, ErrClosed) {
		m.logger.Error("reconnect abandoned", "error", err)
		m.emit(Event{Kind: EventError, Err: err})
	}
}

// ===== Directory operations =====

// Auth exchanges email and password for credentials and stores them.
func (m *Machine) Auth(ctx context.Context, email, password string) (tender.Credentials, error) {
	if email == "" || password == "" {
		return tender.Credentials{}, ErrMissingCredentials
	}

	creds, err := m.directory.Authenticate(ctx, email, password)
	if err != nil {
		return tender.Credentials{}, fmt.Errorf("authenticate: %w", err)
	}

	m.mu.Lock()
	m.email, m.password = email, password
	m.creds = creds
	m.mu.Unlock()

	m.logger.Debug("authenticated", "user_id", creds.UserID)
	return creds, nil
}

// GetDefaultDevice returns the default device, asking the directory when
// none is known yet.
func (m *Machine) GetDefaultDevice(ctx context.Context) (device.ID, error) {
	m.mu.Lock()
	if m.defaultDevice != "" {
		id := m.defaultDevice
		m.mu.Unlock()
		return id, nil
	}
	creds := m.creds
	m.mu.Unlock()

	if !creds.Valid() {
		return "", ErrMissingCredentials
	}
	id, err := m.directory.DefaultDeviceID(ctx, creds)
	if err != nil {
		return "", fmt.Errorf("default device: %w", err)
	}

	m.mu.Lock()
	if m.defaultDevice == "" {
		m.defaultDevice = id
	}
	id = m.defaultDevice
	m.mu.Unlock()
	return id, nil
}

// LoadDevices fetches the device list and adds a record for every new
// device. Known devices keep their state; only their name is refreshed.
func (m *Machine) LoadDevices(ctx context.Context) ([]device.Info, error) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	if !creds.Valid() {
		return nil, ErrMissingCredentials
	}
	infos, err := m.directory.ListDevices(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}

	m.mu.Lock()
	for _, info := range infos {
		m.addDeviceLocked(info)
	}
	m.mu.Unlock()

	m.logger.Debug("devices loaded", "count", len(infos))
	return infos, nil
}

func (m *Machine) addDeviceLocked(info device.Info) {
	if rec, ok := m.devices[info.ID]; ok {
		if info.Name != "" {
			rec.SetName(info.Name)
		}
		return
	}
	m.devices[info.ID] = device.NewRecord(info)
}

// ===== Listening and messages =====

// Listen adds a device to the listening set, subscribing at once when
// connected. An empty id selects the default device. A subscription
// failure is reported as an error event; the device stays registered and
// is subscribed again on the next connect.
func (m *Machine) Listen(id device.ID) error {
	m.mu.Lock()
	rec, err := m.resolveLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	hwid := rec.HardwareID()
	_, already := m.listening[hwid]
	if !already {
		m.listening[hwid] = rec
	}
	connected := m.connected
	m.mu.Unlock()

	if already || !connected {
		return nil
	}
	_ = m.subscribe(m.topics.DeviceSubscription(hwid))
	return nil
}

func (m *Machine) subscribe(topic string) error {
	if err := m.transport.Subscribe(topic); err != nil {
		err = fmt.Errorf("subscribe %s: %w", topic, err)
		m.metrics.subscribeFailed()
		m.logger.Error("subscribe failed", "topic", topic, "error", err)
		m.emit(Event{Kind: EventError, Err: err})
		return err
	}
	m.logger.Debug("subscribed", "topic", topic)
	return nil
}

func (m *Machine) subscriptionsLocked() []string {
	hwids := make([]string, 0, len(m.listening))
	for hwid := range m.listening {
		hwids = append(hwids, string(hwid))
	}
	sort.Strings(hwids)

	topics := make([]string, len(hwids))
	for i, hwid := range hwids {
		topics[i] = m.topics.DeviceSubscription(device.HardwareID(hwid))
	}
	return topics
}

// handleMessage routes one inbound message to its listening device.
func (m *Machine) handleMessage(topic, payload string) {
	hwid, leaf, ok := m.topics.ParseDeviceTopic(topic)
	if !ok || !device.IsStateTopic(leaf) {
		return
	}

	m.mu.Lock()
	rec, listening := m.listening[hwid]
	if m.closed || !listening {
		m.mu.Unlock()
		return
	}
	snap, err := rec.UpdateState(leaf, payload)
	verbose := m.verbose
	m.mu.Unlock()

	m.metrics.message(leaf)
	if err != nil {
		m.logger.Warn("invalid device message", "topic", topic, "error", err)
		return
	}
	if shouldEmit(verbose, snap) {
		m.emit(Event{Kind: EventState, Snapshot: snap, Origin: OriginMessage})
	}
}

// shouldEmit hides partial and repeated state unless verbose is set.
func shouldEmit(verbose bool, snap device.Snapshot) bool {
	return verbose || (snap.Valid && snap.New)
}

// ===== Local changes =====

// Set returns a Command for a device. An empty id selects the default
// device.
func (m *Machine) Set(id device.ID) (*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	rec, err := m.resolveLocked(id)
	if err != nil {
		return nil, err
	}
	return &Command{m: m, id: rec.ID()}, nil
}

// apply runs one local change: the delta is applied optimistically, the
// provisional expiry is re-armed and the update is dispatched.
func (m *Machine) apply(ctx context.Context, id device.ID, build func(device.State) device.Delta) (device.Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return device.Snapshot{}, ErrClosed
	}
	rec, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return device.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	creds := m.creds
	if !creds.Valid() {
		m.mu.Unlock()
		return device.Snapshot{}, ErrMissingCredentials
	}
	update, snap := rec.ApplyLocalChange(build(rec.State()))
	if len(update) > 0 {
		m.armExpiryLocked(id)
	}
	verbose := m.verbose
	m.mu.Unlock()

	if shouldEmit(verbose, snap) {
		m.emit(Event{Kind: EventState, Snapshot: snap, Origin: OriginCommand})
	}
	if len(update) == 0 {
		return snap, nil
	}

	err := m.directory.SetDeviceState(ctx, creds, id, update)
	m.metrics.command(err)
	if err != nil {
		m.logger.Error("set device state failed", "device_id", id, "error", err)
		return snap, fmt.Errorf("set %s: %w", id, err)
	}
	m.logger.Debug("set device state", "device_id", id, "update", update)
	return snap, nil
}

// armExpiryLocked replaces the device's provisional expiry timer.
func (m *Machine) armExpiryLocked(id device.ID) {
	if t, ok := m.provisionalTimers[id]; ok {
		t.timer.Stop()
	}
	m.timerGen++
	gen := m.timerGen
	m.provisionalTimers[id] = &expiryTimer{
		gen:   gen,
		timer: time.AfterFunc(m.cfg.ProvisionalTimeout, func() { m.expire(id, gen) }),
	}
}

// expire reverts unconfirmed changes once the provisional timeout passes.
func (m *Machine) expire(id device.ID, gen uint64) {
	m.mu.Lock()
	t, ok := m.provisionalTimers[id]
	if m.closed || !ok || t.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.provisionalTimers, id)
	rec, ok := m.devices[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	snap := rec.EndProvisional()
	m.mu.Unlock()

	m.metrics.provisionalExpired()
	m.logger.Debug("provisional state expired", "device_id", id, "new", snap.New)
	m.emit(Event{Kind: EventState, Snapshot: snap, Origin: OriginExpiry})
}

// ===== Accessors =====

// Devices returns the known devices sorted by ID.
func (m *Machine) Devices() []device.Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]device.Info, 0, len(m.devices))
	for _, rec := range m.devices {
		infos = append(infos, rec.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Snapshot returns the current view of a device without changing it. An
// empty id selects the default device.
func (m *Machine) Snapshot(id device.ID) (device.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.resolveLocked(id)
	if err != nil {
		return device.Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// Listening reports whether the device is in the listening set.
func (m *Machine) Listening(id device.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.devices[id]
	if !ok {
		return false
	}
	_, ok = m.listening[rec.HardwareID()]
	return ok
}

// DefaultDevice returns the default device ID, or "" when none is known.
func (m *Machine) DefaultDevice() device.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultDevice
}

// IsConnected reports whether the transport is connected.
func (m *Machine) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Phase returns the current connection phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// ReconnectPeriod returns the delay the next reconnect would use.
func (m *Machine) ReconnectPeriod() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff.Current()
}

// Close stops all timers and closes the transport. A close event is
// emitted when the session was connected.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	wasConnected := m.connected
	m.connected = false
	m.phase = PhaseDisconnected
	m.cancelReconnectLocked()
	for id, t := range m.provisionalTimers {
		t.timer.Stop()
		delete(m.provisionalTimers, id)
	}
	m.mu.Unlock()

	err := m.transport.Close()
	m.metrics.setConnected(false, 0)
	if wasConnected {
		m.emit(Event{Kind: EventClose})
	}
	return err
}

func (m *Machine) resolveLocked(id device.ID) (*device.Record, error) {
	if id == "" {
		id = m.defaultDevice
	}
	if id == "" {
		return nil, ErrNoDefaultDevice
	}
	rec, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return rec, nil
}

func (m *Machine) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = m.now()
	}
	if e.Kind == EventState {
		m.metrics.stateEvent(e.Origin)
	}
	m.emitter.Emit(e)
}
