package session

import (
	"testing"

	"github.com/nomiku/nomiku-go/internal/device"
)

func TestTopics_DeviceSubscription(t *testing.T) {
	topics := Topics{Namespace: "nom2"}

	if got := topics.DeviceSubscription("asdf"); got != "nom2/asdf/get/+" {
		t.Errorf("DeviceSubscription() = %q, want %q", got, "nom2/asdf/get/+")
	}
	if got := topics.DeviceAttribute("asdf", "setpoint"); got != "nom2/asdf/get/setpoint" {
		t.Errorf("DeviceAttribute() = %q", got)
	}
}

func TestTopics_ParseDeviceTopic(t *testing.T) {
	topics := Topics{Namespace: "nom2"}

	tests := []struct {
		name     string
		topic    string
		wantHWID device.HardwareID
		wantLeaf string
		wantOK   bool
	}{
		{"attribute", "nom2/asdf/get/setpoint", "asdf", "setpoint", true},
		{"composite timer", "nom2/asdf/get/timer", "asdf", "timer", true},
		{"other namespace", "nom1/asdf/get/setpoint", "", "", false},
		{"set channel", "nom2/asdf/set/setpoint", "", "", false},
		{"too short", "nom2/asdf/get", "", "", false},
		{"too long", "nom2/asdf/get/setpoint/extra", "", "", false},
		{"empty hwid", "nom2//get/temp", "", "", false},
		{"empty leaf", "nom2/asdf/get/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hwid, leaf, ok := topics.ParseDeviceTopic(tt.topic)
			if ok != tt.wantOK || hwid != tt.wantHWID || leaf != tt.wantLeaf {
				t.Errorf("ParseDeviceTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, hwid, leaf, ok, tt.wantHWID, tt.wantLeaf, tt.wantOK)
			}
		})
	}
}

func TestPhase_String(t *testing.T) {
	if PhaseConnected.String() != "connected" {
		t.Errorf("PhaseConnected.String() = %q", PhaseConnected.String())
	}
	if Phase(99).String() != "unknown" {
		t.Errorf("Phase(99).String() = %q", Phase(99).String())
	}
}
