package device

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Record is the locally reconciled view of one cooker.
//
// It holds two views of each attribute: the value shown to callers (state)
// and, for attributes changed locally but not yet echoed back by the device,
// the latest device-observed value (confirmed). Inbound messages never
// overwrite a provisional attribute; they only update the confirmed value
// and clear the provisional flag once the device agrees.
//
// Thread Safety:
//   - Record is not safe for concurrent use. The session owns every record
//     and serialises access under its own lock.
type Record struct {
	id   ID
	hwid HardwareID
	name string

	state       State
	confirmed   State
	provisional map[Attribute]bool
	lastState   State
}

// NewRecord creates an empty record for the device.
func NewRecord(info Info) *Record {
	return &Record{
		id:          info.ID,
		hwid:        info.HardwareID,
		name:        info.Name,
		state:       State{},
		confirmed:   State{},
		provisional: map[Attribute]bool{},
		lastState:   State{},
	}
}

// ID returns the directory identifier.
func (r *Record) ID() ID { return r.id }

// HardwareID returns the hardware identifier.
func (r *Record) HardwareID() HardwareID { return r.hwid }

// Name returns the display name.
func (r *Record) Name() string { return r.name }

// SetName replaces the display name after a directory refresh.
func (r *Record) SetName(name string) { r.name = name }

// Info returns the directory metadata.
func (r *Record) Info() Info {
	return Info{ID: r.id, HardwareID: r.hwid, Name: r.name}
}

// Value returns the current value of an attribute.
func (r *Record) Value(a Attribute) (Value, bool) {
	v, ok := r.state[a]
	return v, ok
}

// State returns a copy of the current state.
func (r *Record) State() State { return r.state.Clone() }

// Valid reports whether enough state has been observed to drive a UI:
// temperature, setpoint, units, power state and the timer (running with an
// end time, or stopped with a remaining duration).
func (r *Record) Valid() bool {
	for _, a := range []Attribute{AttrTemp, AttrSetpoint, AttrShowF, AttrState, AttrTimerRunning} {
		if _, ok := r.state[a]; !ok {
			return false
		}
	}
	if r.state[AttrTimerRunning].Bool() {
		_, ok := r.state[AttrTimerEnd]
		return ok
	}
	_, ok := r.state[AttrTimerSecs]
	return ok
}

// Snapshot returns the current view. New reports whether the most recent
// mutation changed state.
func (r *Record) Snapshot() Snapshot {
	provisional := make(map[Attribute]bool, len(r.provisional))
	for a, p := range r.provisional {
		provisional[a] = p
	}
	return Snapshot{
		ID:          r.id,
		New:         !r.state.Equal(r.lastState),
		Provisional: provisional,
		State:       r.state.Clone(),
		Valid:       r.Valid(),
	}
}

// UpdateState applies one inbound message. topic is the leaf of the wire
// topic: an attribute name, or one of the composites TopicTimer and
// TopicJSON. Unknown leaves are ignored. A payload that cannot be parsed
// returns ErrInvalidPayload and leaves the state untouched.
func (r *Record) UpdateState(topic, payload string) (Snapshot, error) {
	r.lastState = r.state.Clone()

	switch topic {
	case TopicTimer:
		n, err := parseIntPayload(payload)
		if err != nil {
			return r.Snapshot(), fmt.Errorf("%w: %s=%q", ErrInvalidPayload, topic, payload)
		}
		r.applyTimer(n)

	case TopicJSON:
		if err := r.applyJSON(payload); err != nil {
			return r.Snapshot(), err
		}

	default:
		a, ok := ParseAttribute(topic)
		if !ok {
			return r.Snapshot(), nil
		}
		v, err := a.Parse(payload)
		if err != nil {
			return r.Snapshot(), err
		}
		r.observe(a, v)
	}

	return r.Snapshot(), nil
}

// applyTimer expands a composite timer value into its attributes.
func (r *Record) applyTimer(n int64) {
	if n > TimerEpochThreshold {
		r.observe(AttrTimerRunning, BoolValue(true))
		r.observe(AttrTimerEnd, IntValue(n))
		return
	}
	r.observe(AttrTimerRunning, BoolValue(false))
	r.observe(AttrTimerSecs, IntValue(n))
}

// applyJSON applies every recognised key of a JSON object payload. The
// payload is validated in full before anything is applied.
func (r *Record) applyJSON(payload string) error {
	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, TopicJSON, err)
	}

	type change struct {
		attr  Attribute
		value Value
	}
	var (
		changes []change
		timer   *int64
	)
	for name, raw := range fields {
		if name == TopicTimer {
			v, err := AttrTimerSecs.Coerce(raw)
			if err != nil {
				return fmt.Errorf("%w: %s.%s: %v", ErrInvalidPayload, TopicJSON, name, err)
			}
			n := v.Int()
			timer = &n
			continue
		}
		a, ok := ParseAttribute(name)
		if !ok {
			continue
		}
		v, err := a.Coerce(raw)
		if err != nil {
			return fmt.Errorf("%w: %s.%s: %v", ErrInvalidPayload, TopicJSON, name, err)
		}
		changes = append(changes, change{a, v})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].attr < changes[j].attr })
	for _, c := range changes {
		r.observe(c.attr, c.value)
	}
	if timer != nil {
		r.applyTimer(*timer)
	}
	return nil
}

// observe records a device-reported value.
func (r *Record) observe(a Attribute, v Value) {
	if r.provisional[a] {
		r.confirmed[a] = v
		if cur, ok := r.state[a]; ok && cur == v {
			r.provisional[a] = false
		}
		return
	}
	r.state[a] = v
}

// EndProvisional reverts every unconfirmed attribute to its last confirmed
// value. An attribute that was never confirmed by the device is removed.
func (r *Record) EndProvisional() Snapshot {
	r.lastState = r.state.Clone()

	for a, p := range r.provisional {
		if !p {
			continue
		}
		if v, ok := r.confirmed[a]; ok {
			r.state[a] = v
		} else {
			delete(r.state, a)
		}
		r.provisional[a] = false
	}

	return r.Snapshot()
}

// ApplyLocalChange applies caller-initiated changes optimistically. Every
// settable attribute in d is written to state and marked provisional;
// others are ignored. The returned Update is the payload for the directory.
// Timer attributes are folded into one "timer" field using the wire
// encoding: the end time while running, the remaining seconds otherwise.
func (r *Record) ApplyLocalChange(d Delta) (Update, Snapshot) {
	r.lastState = r.state.Clone()

	update := Update{}
	timerTouched := false
	for _, a := range Attributes() {
		v, ok := d[a]
		if !ok || !a.Settable() {
			continue
		}
		if v.Kind() != a.Kind() {
			coerced, err := a.Coerce(v)
			if err != nil {
				continue
			}
			v = coerced
		}

		if !r.provisional[a] {
			// Remember what the device last said so expiry can revert to it.
			if cur, ok := r.state[a]; ok {
				r.confirmed[a] = cur
			} else {
				delete(r.confirmed, a)
			}
		}
		r.state[a] = v
		r.provisional[a] = true

		if a.IsTimer() {
			timerTouched = true
			continue
		}
		update[a.String()] = v.Any()
	}

	if timerTouched {
		field := AttrTimerSecs
		if r.state[AttrTimerRunning].Bool() {
			field = AttrTimerEnd
		}
		if v, ok := r.state[field]; ok {
			update[TopicTimer] = v.Int()
		}
	}

	return update, r.Snapshot()
}
