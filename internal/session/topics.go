package session

import (
	"strings"

	"github.com/nomiku/nomiku-go/internal/device"
)

const (
	topicGet      = "get"
	topicWildcard = "+"
)

// Topics builds and parses device topics of the form
// "<namespace>/<hwid>/get/<attribute>".
type Topics struct {
	Namespace string
}

// DeviceSubscription returns the wildcard subscription for one device.
func (t Topics) DeviceSubscription(hwid device.HardwareID) string {
	return t.Namespace + "/" + string(hwid) + "/" + topicGet + "/" + topicWildcard
}

// DeviceAttribute returns the concrete topic for one attribute leaf.
func (t Topics) DeviceAttribute(hwid device.HardwareID, leaf string) string {
	return t.Namespace + "/" + string(hwid) + "/" + topicGet + "/" + leaf
}

// ParseDeviceTopic extracts the hardware ID and attribute leaf. It reports
// false for topics outside the namespace or not on the get channel.
func (t Topics) ParseDeviceTopic(topic string) (device.HardwareID, string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return "", "", false
	}
	if parts[0] != t.Namespace || parts[2] != topicGet {
		return "", "", false
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", false
	}
	return device.HardwareID(parts[1]), parts[3], true
}
