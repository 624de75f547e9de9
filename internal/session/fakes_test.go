package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/tender"
)

const waitTimeout = 2 * time.Second

// ===== Fake transport =====

type connectAttempt struct {
	userName  string
	password  string
	onSuccess func()
	onFailure func(error)
}

type fakeTransport struct {
	mu           sync.Mutex
	onMessage    func(topic, payload string)
	onLost       func(error)
	connected    bool
	closed       bool
	subscribed   []string
	subscribeErr map[string]error
	attempts     chan connectAttempt
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subscribeErr: map[string]error{},
		attempts:     make(chan connectAttempt, 32),
	}
}

func (f *fakeTransport) Connect(userName, password string, onSuccess func(), onFailure func(error)) {
	f.attempts <- connectAttempt{
		userName: userName,
		password: password,
		onSuccess: func() {
			f.mu.Lock()
			f.connected = true
			f.mu.Unlock()
			onSuccess()
		},
		onFailure: onFailure,
	}
}

func (f *fakeTransport) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subscribeErr[topic]; err != nil {
		return err
	}
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeTransport) SetMessageHandler(fn func(topic, payload string)) { f.onMessage = fn }
func (f *fakeTransport) SetConnectionLostHandler(fn func(err error))     { f.onLost = fn }

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeTransport) deliver(topic, payload string) {
	f.onMessage(topic, payload)
}

func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.onLost(err)
}

func (f *fakeTransport) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

func (f *fakeTransport) nextAttempt(t *testing.T) connectAttempt {
	t.Helper()
	select {
	case a := <-f.attempts:
		return a
	case <-time.After(waitTimeout):
		t.Fatal("no transport connect attempt")
		return connectAttempt{}
	}
}

func (f *fakeTransport) noAttempt(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-f.attempts:
		t.Fatal("unexpected transport connect attempt")
	case <-time.After(within):
	}
}

// ===== Fake directory =====

type setCall struct {
	creds  tender.Credentials
	id     device.ID
	update device.Update
}

type fakeDirectory struct {
	mu sync.Mutex

	creds      tender.Credentials
	authErr    error
	devices    []device.Info
	listErr    error
	defaultID  device.ID
	defaultErr error
	setErr     error

	authCalls    int
	listCalls    int
	defaultCalls int
	sets         []setCall
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		creds: tender.Credentials{UserID: "42", APIToken: "token"},
		devices: []device.Info{
			{ID: "1", HardwareID: "asdf", Name: "longname", DeviceType: 0},
		},
		defaultErr: tender.ErrNoDefaultDevice,
	}
}

func (d *fakeDirectory) Authenticate(_ context.Context, email, password string) (tender.Credentials, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authCalls++
	if d.authErr != nil {
		return tender.Credentials{}, d.authErr
	}
	return d.creds, nil
}

func (d *fakeDirectory) ListDevices(_ context.Context, _ tender.Credentials) ([]device.Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	return append([]device.Info(nil), d.devices...), nil
}

func (d *fakeDirectory) DefaultDeviceID(_ context.Context, _ tender.Credentials) (device.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaultCalls++
	if d.defaultErr != nil {
		return "", d.defaultErr
	}
	return d.defaultID, nil
}

func (d *fakeDirectory) SetDeviceState(_ context.Context, creds tender.Credentials, id device.ID, update device.Update) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sets = append(d.sets, setCall{creds: creds, id: id, update: update})
	return d.setErr
}

func (d *fakeDirectory) calls() (auth, list, def int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authCalls, d.listCalls, d.defaultCalls
}

func (d *fakeDirectory) setCalls() []setCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]setCall(nil), d.sets...)
}

// ===== Event recorder =====

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan Event, 256)}
}

func (r *eventRecorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.ch <- e:
	default:
	}
}

// next waits for the next event of kind, discarding others.
func (r *eventRecorder) next(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case e := <-r.ch:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return Event{}
		}
	}
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// ===== Helpers =====

func testConfig() Config {
	return Config{
		Namespace:          "nom2",
		MinPeriod:          10 * time.Millisecond,
		MaxPeriod:          80 * time.Millisecond,
		ProvisionalTimeout: 50 * time.Millisecond,
	}
}

func newTestMachine(t *testing.T, cfg Config) (*Machine, *fakeTransport, *fakeDirectory, *eventRecorder) {
	t.Helper()
	ft := newFakeTransport()
	fd := newFakeDirectory()
	rec := newEventRecorder()

	m := New(cfg, ft, fd)
	m.SetEmitter(rec)
	t.Cleanup(func() { _ = m.Close() })
	return m, ft, fd, rec
}

// connectTestMachine runs the password flow and completes the transport
// connection.
func connectTestMachine(t *testing.T, m *Machine, ft *fakeTransport, opts Options) {
	t.Helper()
	if opts.Email == "" && opts.UserID == "" {
		opts.Email, opts.Password = "cook@example.com", "secret"
	}
	if err := m.Connect(context.Background(), opts); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ft.nextAttempt(t).onSuccess()
}

// fullState publishes a complete, valid state for hwid.
func fullState(ft *fakeTransport, hwid string) {
	ft.deliver("nom2/"+hwid+"/get/temp", "54.2")
	ft.deliver("nom2/"+hwid+"/get/setpoint", "57.0")
	ft.deliver("nom2/"+hwid+"/get/showF", "0")
	ft.deliver("nom2/"+hwid+"/get/state", "1")
	ft.deliver("nom2/"+hwid+"/get/timer", "300")
}
