// Package mqtt provides the broker transport for the Nomiku client.
//
// It wraps github.com/eclipse/paho.mqtt.golang behind a small callback
// contract:
//
//	t := mqtt.New(cfg.MQTT)
//	t.SetMessageHandler(func(topic, payload string) { ... })
//	t.SetConnectionLostHandler(func(err error) { ... })
//	t.Connect("user/42", apiToken, onConnected, onFailed)
//	err := t.Subscribe("nom2/asdf/get/+")
//
// # Architecture
//
// The transport never reconnects by itself. A failed or lost connection is
// reported to the caller, which owns the backoff policy and calls Connect
// again. Each Connect creates a fresh paho client so stale callbacks from a
// previous connection cannot leak into the new one.
//
// # Transports
//
// The production broker is reached over secure websockets
// (wss://mq.nomiku.com:443/mqtt). Plain tcp, ssl and ws are supported for
// local brokers.
package mqtt
