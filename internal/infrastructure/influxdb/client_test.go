package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/infrastructure/config"
	"github.com/nomiku/nomiku-go/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol written to
// /api/v2/write.
type fakeInflux struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func newFakeServer(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "nomiku",
		Bucket:        "cookers",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// ===== Connection =====

func TestConnect(t *testing.T) {
	_, cfg := newFakeServer(t)

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, cfg := newFakeServer(t)
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1", Org: "o", Bucket: "b"}

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	_, cfg := newFakeServer(t)
	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

// ===== Writes =====

func TestWriteDeviceState(t *testing.T) {
	fake, cfg := newFakeServer(t)
	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	snap := device.Snapshot{
		ID: "1",
		State: device.State{
			device.AttrTemp:         device.FloatValue(54.5),
			device.AttrSetpoint:     device.FloatValue(57),
			device.AttrState:        device.IntValue(1),
			device.AttrTimerRunning: device.BoolValue(false),
			device.AttrRecipeTitle:  device.StringValue("steak"),
		},
		Provisional: map[device.Attribute]bool{device.AttrSetpoint: true},
		Valid:       false,
	}
	client.WriteDeviceState(snap, time.Unix(1_700_000_000, 0))
	client.Flush()

	lines := fake.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	line := lines[0]
	for _, want := range []string{
		"sous_vide_state,device_id=1 ",
		"temp=54.5",
		"setpoint=57",
		"state=1i",
		"timerRunning=false",
		"provisional=true",
		"valid=false",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "recipeTitle") {
		t.Errorf("line %q contains string field", line)
	}
}

func TestWriteDeviceState_EmptyState(t *testing.T) {
	fake, cfg := newFakeServer(t)
	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteDeviceState(device.Snapshot{ID: "1", State: device.State{}}, time.Now())
	client.Flush()

	if lines := fake.written(); len(lines) != 0 {
		t.Errorf("written lines = %v, want none", lines)
	}
}

func TestWriteAfterCloseIsNoop(t *testing.T) {
	fake, cfg := newFakeServer(t)
	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_ = client.Close()

	client.WriteDeviceState(device.Snapshot{ID: "1", State: device.State{device.AttrTemp: device.FloatValue(1)}}, time.Now())

	if lines := fake.written(); len(lines) != 0 {
		t.Errorf("written lines = %v, want none", lines)
	}
}

func TestStateFields(t *testing.T) {
	fields := influxdb.StateFields(device.State{
		device.AttrSetpoint:    device.FloatValue(57.5),
		device.AttrTimerEnd:    device.IntValue(1_700_000_600),
		device.AttrShowF:       device.BoolValue(true),
		device.AttrRecipeTitle: device.StringValue("egg"),
	})

	if len(fields) != 3 {
		t.Fatalf("StateFields() = %v, want 3 fields", fields)
	}
	if fields["setpoint"] != 57.5 || fields["timerEnd"] != int64(1_700_000_600) || fields["showF"] != true {
		t.Errorf("StateFields() = %v", fields)
	}
}
