package session

import (
	"context"

	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/tender"
)

// Transport is the messaging connection the Machine drives.
// *mqtt.Transport satisfies it.
type Transport interface {
	// Connect starts an attempt and returns at once. Exactly one of the
	// callbacks runs when it completes.
	Connect(userName, password string, onSuccess func(), onFailure func(error))
	Subscribe(topic string) error
	SetMessageHandler(fn func(topic, payload string))
	SetConnectionLostHandler(fn func(err error))
	IsConnected() bool
	Close() error
}

// Directory is the account and device service. *tender.Client satisfies it.
type Directory interface {
	Authenticate(ctx context.Context, email, password string) (tender.Credentials, error)
	ListDevices(ctx context.Context, creds tender.Credentials) ([]device.Info, error)
	DefaultDeviceID(ctx context.Context, creds tender.Credentials) (device.ID, error)
	SetDeviceState(ctx context.Context, creds tender.Credentials, id device.ID, update device.Update) error
}

// Logger defines the logging interface used by the Machine.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
