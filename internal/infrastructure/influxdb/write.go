package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nomiku/nomiku-go/internal/device"
)

// MeasurementState is the measurement cooker snapshots are written to.
const MeasurementState = "sous_vide_state"

// WriteDeviceState records one snapshot of a cooker as a sous_vide_state
// point tagged with the device ID.
func (c *Client) WriteDeviceState(snap device.Snapshot, at time.Time) {
	if !c.IsConnected() {
		return
	}
	fields := StateFields(snap.State)
	if len(fields) == 0 {
		return
	}
	fields["provisional"] = snap.IsProvisional()
	fields["valid"] = snap.Valid

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementState,
		map[string]string{"device_id": string(snap.ID)},
		fields,
		at,
	))
}

// StateFields converts state into InfluxDB fields keyed by attribute name.
// The recipe title is a string and is left out to keep the measurement
// numeric.
func StateFields(s device.State) map[string]any {
	fields := make(map[string]any, len(s))
	for a, v := range s {
		switch v.Kind() {
		case device.KindFloat:
			fields[a.String()] = v.Float()
		case device.KindInt:
			fields[a.String()] = v.Int()
		case device.KindBool:
			fields[a.String()] = v.Bool()
		}
	}
	return fields
}
