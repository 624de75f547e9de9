package tender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nomiku/nomiku-go/internal/device"
	"github.com/nomiku/nomiku-go/internal/infrastructure/config"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
	tokenHeader     = "X-Api-Token"
)

// Client talks to the Tender auth/directory REST service.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	deviceType int
	httpClient *http.Client
}

// New creates a directory client. Only devices whose device_type matches
// cfg.DeviceType are returned by ListDevices.
func New(cfg config.TenderConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		deviceType: cfg.DeviceType,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Authenticate exchanges an email and password for account credentials.
func (c *Client) Authenticate(ctx context.Context, email, password string) (Credentials, error) {
	if email == "" || password == "" {
		return Credentials{}, fmt.Errorf("%w: email and password are required", ErrMissingCredentials)
	}

	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/users/auth", "", authRequest{Email: email, Password: password}, &resp); err != nil {
		return Credentials{}, fmt.Errorf("authenticating: %w", err)
	}

	creds := Credentials{UserID: string(resp.UserID), APIToken: resp.APIToken}
	if !creds.Valid() {
		return Credentials{}, fmt.Errorf("authenticating: %w: missing user_id or api_token", ErrInvalidResponse)
	}
	return creds, nil
}

// ListDevices returns the account's cookers. Entries of other product
// types and entries without a hardware ID are skipped.
func (c *Client) ListDevices(ctx context.Context, creds Credentials) ([]device.Info, error) {
	if !creds.Valid() {
		return nil, ErrMissingCredentials
	}

	var resp devicesResponse
	if err := c.do(ctx, http.MethodGet, "/devices", creds.APIToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	devices := make([]device.Info, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		if d.DeviceType != c.deviceType {
			continue
		}
		info := device.Info{
			ID:         device.ID(d.ID),
			HardwareID: device.HardwareID(d.HardwareDeviceID),
			Name:       d.Name,
			DeviceType: d.DeviceType,
		}
		if info.Validate() != nil {
			continue
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// DefaultDeviceID returns the account's default cooker, or
// ErrNoDefaultDevice when none is set.
func (c *Client) DefaultDeviceID(ctx context.Context, creds Credentials) (device.ID, error) {
	if !creds.Valid() {
		return "", ErrMissingCredentials
	}

	var resp userResponse
	path := "/users/" + url.PathEscape(creds.UserID)
	if err := c.do(ctx, http.MethodGet, path, creds.APIToken, nil, &resp); err != nil {
		return "", fmt.Errorf("fetching user: %w", err)
	}
	if resp.User.DefaultDevice == "" {
		return "", ErrNoDefaultDevice
	}
	return device.ID(resp.User.DefaultDevice), nil
}

// SetDeviceState forwards a state change to the device through the service.
func (c *Client) SetDeviceState(ctx context.Context, creds Credentials, id device.ID, update device.Update) error {
	if !creds.Valid() {
		return ErrMissingCredentials
	}

	path := "/devices/" + url.PathEscape(string(id)) + "/set"
	if err := c.do(ctx, http.MethodPost, path, creds.APIToken, setStateRequest{State: update}, nil); err != nil {
		return fmt.Errorf("setting state of device %s: %w", id, err)
	}
	return nil
}

// do sends one JSON request and decodes the reply into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: reading body: %w", ErrRequestFailed, err)
	}

	var envelope errorEnvelope
	if json.Unmarshal(data, &envelope) == nil {
		if msg, ok := envelope.message(); ok {
			return fmt.Errorf("%w: %s", ErrRemote, msg)
		}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: HTTP %d", ErrRemote, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}
