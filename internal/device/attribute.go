package device

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Attribute names one field of a cooker's state.
type Attribute uint8

// Known attributes. The zero value is invalid.
const (
	AttrTemp Attribute = iota + 1
	AttrSetpoint
	AttrShowF
	AttrState
	AttrRecipeID
	AttrRecipeTitle
	AttrTimerRunning
	AttrTimerSecs
	AttrTimerEnd
)

// Composite wire topics. A composite payload expands into several attributes.
const (
	// TopicTimer carries either a countdown in seconds or, once running, the
	// epoch second the countdown ends.
	TopicTimer = "timer"

	// TopicJSON carries a JSON object of attribute name to value.
	TopicJSON = "json"
)

// TimerEpochThreshold separates the two meanings of a timer payload. Values
// above it are epoch seconds (timer running); values at or below it are a
// remaining duration in seconds (timer stopped).
const TimerEpochThreshold int64 = 3_000_000

var attributeNames = [...]string{
	AttrTemp:         "temp",
	AttrSetpoint:     "setpoint",
	AttrShowF:        "showF",
	AttrState:        "state",
	AttrRecipeID:     "recipeID",
	AttrRecipeTitle:  "recipeTitle",
	AttrTimerRunning: "timerRunning",
	AttrTimerSecs:    "timerSecs",
	AttrTimerEnd:     "timerEnd",
}

var attributesByName = func() map[string]Attribute {
	m := make(map[string]Attribute, len(attributeNames))
	for a, name := range attributeNames {
		if name != "" {
			m[name] = Attribute(a)
		}
	}
	return m
}()

// wireTopics are the topic leaves the firmware publishes under
// "<namespace>/<hwid>/get/".
var wireTopics = []string{
	AttrState.String(),
	TopicTimer,
	AttrSetpoint.String(),
	AttrTemp.String(),
	AttrRecipeID.String(),
	AttrShowF.String(),
	AttrRecipeTitle.String(),
}

// Attributes returns every known attribute in declaration order.
func Attributes() []Attribute {
	out := make([]Attribute, 0, len(attributeNames)-1)
	for a := AttrTemp; a <= AttrTimerEnd; a++ {
		out = append(out, a)
	}
	return out
}

// WireTopics returns the topic leaves a cooker publishes state on.
func WireTopics() []string {
	return append([]string(nil), wireTopics...)
}

// IsStateTopic reports whether UpdateState understands the topic leaf.
func IsStateTopic(leaf string) bool {
	if leaf == TopicTimer || leaf == TopicJSON {
		return true
	}
	_, ok := attributesByName[leaf]
	return ok
}

// ParseAttribute looks an attribute up by its wire name.
func ParseAttribute(name string) (Attribute, bool) {
	a, ok := attributesByName[name]
	return a, ok
}

// String returns the wire name.
func (a Attribute) String() string {
	if a.valid() {
		return attributeNames[a]
	}
	return fmt.Sprintf("Attribute(%d)", uint8(a))
}

func (a Attribute) valid() bool {
	return a >= AttrTemp && a <= AttrTimerEnd
}

// MarshalText encodes the wire name so State and provisional flag maps
// serialise with readable keys.
func (a Attribute) MarshalText() ([]byte, error) {
	if !a.valid() {
		return nil, fmt.Errorf("device: unknown attribute %d", uint8(a))
	}
	return []byte(attributeNames[a]), nil
}

// UnmarshalText decodes a wire name.
func (a *Attribute) UnmarshalText(b []byte) error {
	v, ok := attributesByName[string(b)]
	if !ok {
		return fmt.Errorf("device: unknown attribute %q", b)
	}
	*a = v
	return nil
}

// Kind returns the value variant the attribute holds.
func (a Attribute) Kind() Kind {
	switch a {
	case AttrTemp, AttrSetpoint:
		return KindFloat
	case AttrState, AttrRecipeID, AttrTimerSecs, AttrTimerEnd:
		return KindInt
	case AttrShowF, AttrTimerRunning:
		return KindBool
	case AttrRecipeTitle:
		return KindString
	default:
		return KindInvalid
	}
}

// Settable reports whether callers may change the attribute locally.
// Temperature is measured by the device and is never settable.
func (a Attribute) Settable() bool {
	switch a {
	case AttrTimerRunning, AttrTimerSecs, AttrTimerEnd,
		AttrSetpoint, AttrRecipeID, AttrRecipeTitle, AttrShowF, AttrState:
		return true
	default:
		return false
	}
}

// IsTimer reports whether the attribute is one of the decomposed timer fields.
func (a Attribute) IsTimer() bool {
	return a == AttrTimerRunning || a == AttrTimerSecs || a == AttrTimerEnd
}

// Parse decodes a wire payload for the attribute.
func (a Attribute) Parse(payload string) (Value, error) {
	switch a.Kind() {
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
		if err != nil || !finite(f) {
			return Value{}, fmt.Errorf("%w: %s=%q", ErrInvalidPayload, a, payload)
		}
		return FloatValue(f), nil
	case KindInt:
		n, err := parseIntPayload(payload)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s=%q", ErrInvalidPayload, a, payload)
		}
		return IntValue(n), nil
	case KindBool:
		return BoolValue(payload == "1"), nil
	case KindString:
		return StringValue(payload), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown attribute %s", ErrInvalidPayload, a)
	}
}

// parseIntPayload accepts integers and truncates decimal payloads, which the
// firmware occasionally sends for integer fields.
func parseIntPayload(payload string) (int64, error) {
	s := strings.TrimSpace(payload)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return 0, fmt.Errorf("not an integer: %q", payload)
	}
	return int64(f), nil
}

// finite rejects NaN and the infinities, which encoding/json cannot emit.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Coerce converts a loosely typed value (decoded JSON, CLI flags) into the
// attribute's variant.
func (a Attribute) Coerce(raw any) (Value, error) {
	switch v := raw.(type) {
	case Value:
		if v.kind == a.Kind() {
			return v, nil
		}
		raw = v.Any()
	case json.Number:
		raw = v.String()
	}

	switch a.Kind() {
	case KindFloat:
		switch v := raw.(type) {
		case float64:
			if !finite(v) {
				return Value{}, fmt.Errorf("%w: %s=%v", ErrInvalidValue, a, v)
			}
			return FloatValue(v), nil
		case float32:
			if !finite(float64(v)) {
				return Value{}, fmt.Errorf("%w: %s=%v", ErrInvalidValue, a, v)
			}
			return FloatValue(float64(v)), nil
		case int:
			return FloatValue(float64(v)), nil
		case int64:
			return FloatValue(float64(v)), nil
		case string:
			return a.Parse(v)
		}
	case KindInt:
		switch v := raw.(type) {
		case float64:
			if !finite(v) {
				return Value{}, fmt.Errorf("%w: %s=%v", ErrInvalidValue, a, v)
			}
			return IntValue(int64(v)), nil
		case int:
			return IntValue(int64(v)), nil
		case int64:
			return IntValue(v), nil
		case string:
			return a.Parse(v)
		}
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return BoolValue(v), nil
		case float64:
			return BoolValue(v != 0), nil
		case int:
			return BoolValue(v != 0), nil
		case int64:
			return BoolValue(v != 0), nil
		case string:
			return BoolValue(v == "1" || strings.EqualFold(v, "true")), nil
		}
	case KindString:
		switch v := raw.(type) {
		case string:
			return StringValue(v), nil
		case nil:
		default:
			return StringValue(fmt.Sprint(v)), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %s cannot hold %T", ErrInvalidValue, a, raw)
}
