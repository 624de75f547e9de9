package device

import "fmt"

// ID is the directory-assigned device identifier. The directory returns
// numeric IDs; they are carried as opaque strings so lookups never depend on
// the numeric/string form the caller happened to use.
type ID string

// HardwareID is the device's hardware identifier. It is the segment the
// broker topic namespace is keyed on.
type HardwareID string

// Info is the directory metadata of one cooker.
type Info struct {
	ID         ID         `json:"id"`
	HardwareID HardwareID `json:"hardware_device_id"`
	Name       string     `json:"name"`
	DeviceType int        `json:"device_type"`
}

// Validate reports whether the metadata can back a Record.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if i.HardwareID == "" {
		return fmt.Errorf("%w: hardware id is required for device %s", ErrInvalidDevice, i.ID)
	}
	return nil
}
