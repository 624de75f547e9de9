// Package api exposes a running session over a local HTTP API.
//
// REST endpoints under /api/v1 list devices, read snapshots and issue
// commands. Session events (connect, close, error, state) are relayed to
// WebSocket clients at /api/v1/ws; clients start subscribed to every
// channel and can narrow that with subscribe/unsubscribe messages.
// Prometheus metrics are served at /metrics.
//
// The server keeps no device state of its own. Every request goes through
// the Controller, normally a *client.Client.
package api
