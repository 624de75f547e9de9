// Package client is the event-driven entry point for Nomiku cookers.
//
//	c := client.New(client.Deps{Transport: mqtt.New(cfg.MQTT), Directory: tender.New(cfg.Tender)})
//	c.OnState(func(s device.Snapshot) { fmt.Println(s.State) })
//	err := c.Connect(ctx, session.Options{Email: email, Password: password})
//	err = c.Listen("")
//
// Events:
//   - connect: the transport connected and subscriptions were issued
//   - close: the connection dropped; a reconnect is scheduled
//   - error: a connect, subscribe or reconnect failure
//   - state: a device snapshot changed
package client
