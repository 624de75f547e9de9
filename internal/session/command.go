package session

import (
	"context"

	"github.com/nomiku/nomiku-go/internal/device"
)

// Command applies local changes to one device. Every operation updates
// the record optimistically, re-arms the device's provisional expiry and
// forwards the update to the directory. The returned snapshot reflects the
// optimistic state even when dispatch fails.
type Command struct {
	m  *Machine
	id device.ID
}

// DeviceID returns the target device.
func (c *Command) DeviceID() device.ID { return c.id }

// TurnOn starts heating.
func (c *Command) TurnOn(ctx context.Context) (device.Snapshot, error) {
	return c.delta(ctx, device.TurnOn())
}

// TurnOff stops heating.
func (c *Command) TurnOff(ctx context.Context) (device.Snapshot, error) {
	return c.delta(ctx, device.TurnOff())
}

// ApplyRecipe loads a recipe and powers on.
func (c *Command) ApplyRecipe(ctx context.Context, rc device.Recipe) (device.Snapshot, error) {
	return c.delta(ctx, device.ApplyRecipe(rc))
}

// SetSetpoint sets the target temperature.
func (c *Command) SetSetpoint(ctx context.Context, temp float64) (device.Snapshot, error) {
	return c.delta(ctx, device.SetSetpoint(temp))
}

// SetState applies a raw delta. Attributes that cannot be set are ignored.
func (c *Command) SetState(ctx context.Context, d device.Delta) (device.Snapshot, error) {
	return c.delta(ctx, d)
}

// StartTimer starts the countdown from the remaining seconds.
func (c *Command) StartTimer(ctx context.Context) (device.Snapshot, error) {
	return c.m.apply(ctx, c.id, func(cur device.State) device.Delta {
		return device.StartTimer(cur, c.m.now())
	})
}

// StopTimer pauses the countdown.
func (c *Command) StopTimer(ctx context.Context) (device.Snapshot, error) {
	return c.m.apply(ctx, c.id, func(cur device.State) device.Delta {
		return device.StopTimer(cur, c.m.now())
	})
}

// SetTimer sets a stopped countdown.
func (c *Command) SetTimer(ctx context.Context, secs int64) (device.Snapshot, error) {
	return c.delta(ctx, device.SetTimer(secs))
}

// SetUnits selects the display unit, "F" or "C".
func (c *Command) SetUnits(ctx context.Context, unit string) (device.Snapshot, error) {
	return c.delta(ctx, device.SetUnits(unit))
}

func (c *Command) delta(ctx context.Context, d device.Delta) (device.Snapshot, error) {
	return c.m.apply(ctx, c.id, func(device.State) device.Delta { return d })
}
