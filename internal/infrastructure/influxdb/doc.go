// Package influxdb records cooker telemetry in InfluxDB v2.
//
// Every emitted device snapshot becomes a sous_vide_state point tagged with
// the device ID, with one field per numeric or boolean attribute (temp,
// setpoint, state, showF, timerRunning, timerSecs, timerEnd, recipeID)
// plus the provisional and valid flags.
//
// Writes go through the client library's non-blocking batched write API.
// Errors are reported asynchronously through SetOnError.
//
//	c, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) { ... }
//	c.WriteDeviceState(snap, time.Now())
package influxdb
