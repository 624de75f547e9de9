package tender

import (
	"bytes"
	"encoding/json"
)

// Credentials identify an account to the directory and the broker.
type Credentials struct {
	UserID   string `json:"user_id"`
	APIToken string `json:"api_token"`
}

// Valid reports whether both halves are present.
func (c Credentials) Valid() bool {
	return c.UserID != "" && c.APIToken != ""
}

// BrokerUserName is the MQTT user name for the account.
func (c Credentials) BrokerUserName() string {
	return "user/" + c.UserID
}

// flexID decodes identifiers the service sends as either numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	UserID   flexID `json:"user_id"`
	APIToken string `json:"api_token"`
}

type deviceEntry struct {
	ID               flexID `json:"id"`
	HardwareDeviceID string `json:"hardware_device_id"`
	Name             string `json:"name"`
	DeviceType       int    `json:"device_type"`
}

type devicesResponse struct {
	Devices []deviceEntry `json:"devices"`
}

type userResponse struct {
	User struct {
		DefaultDevice flexID `json:"default_device"`
	} `json:"user"`
}

type setStateRequest struct {
	State any `json:"state"`
}

// errorEnvelope captures the service's error convention: any truthy
// "error" key means the request failed, whatever the status code.
type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

func (e errorEnvelope) message() (string, bool) {
	raw := bytes.TrimSpace(e.Error)
	switch string(raw) {
	case "", "null", "false", `""`, "0":
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}
