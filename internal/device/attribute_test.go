package device

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseAttribute_RoundTrip(t *testing.T) {
	for _, a := range Attributes() {
		got, ok := ParseAttribute(a.String())
		if !ok || got != a {
			t.Errorf("ParseAttribute(%q) = %v, %v; want %v, true", a.String(), got, ok, a)
		}
		if a.Kind() == KindInvalid {
			t.Errorf("%s.Kind() = invalid", a)
		}
	}
	if _, ok := ParseAttribute("timer"); ok {
		t.Error("ParseAttribute(\"timer\") ok = true, want false for composite topic")
	}
}

func TestSettable(t *testing.T) {
	for _, a := range Attributes() {
		want := a != AttrTemp
		if got := a.Settable(); got != want {
			t.Errorf("%s.Settable() = %v, want %v", a, got, want)
		}
	}
}

func TestIsStateTopic(t *testing.T) {
	tests := map[string]bool{
		"setpoint":    true,
		"timer":       true,
		"json":        true,
		"timerEnd":    true,
		"recipeTitle": true,
		"firmware":    false,
		"":            false,
	}
	for leaf, want := range tests {
		if got := IsStateTopic(leaf); got != want {
			t.Errorf("IsStateTopic(%q) = %v, want %v", leaf, got, want)
		}
	}
	for _, leaf := range WireTopics() {
		if !IsStateTopic(leaf) {
			t.Errorf("wire topic %q not recognised", leaf)
		}
	}
}

func TestAttribute_TextEncoding(t *testing.T) {
	data, err := json.Marshal(map[Attribute]bool{AttrTimerRunning: true})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(data) != `{"timerRunning":true}` {
		t.Errorf("json = %s, want {\"timerRunning\":true}", data)
	}

	var a Attribute
	if err := a.UnmarshalText([]byte("nope")); err == nil {
		t.Error("UnmarshalText(nope) expected error, got nil")
	}
	if _, err := Attribute(0).MarshalText(); err == nil {
		t.Error("MarshalText() on zero attribute expected error, got nil")
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		attr    Attribute
		raw     any
		want    Value
		wantErr bool
	}{
		{"float from int", AttrSetpoint, 55, FloatValue(55), false},
		{"float from string", AttrSetpoint, "55.5", FloatValue(55.5), false},
		{"float from json number", AttrSetpoint, json.Number("54.25"), FloatValue(54.25), false},
		{"int from float truncates", AttrTimerSecs, 90.9, IntValue(90), false},
		{"int from value", AttrState, IntValue(1), IntValue(1), false},
		{"int from float value", AttrState, FloatValue(1), IntValue(1), false},
		{"bool from true string", AttrShowF, "true", BoolValue(true), false},
		{"bool from number", AttrTimerRunning, 1.0, BoolValue(true), false},
		{"string from number", AttrRecipeTitle, 12, StringValue("12"), false},
		{"float from bool", AttrSetpoint, true, Value{}, true},
		{"int from garbage", AttrState, "on", Value{}, true},
		{"string from nil", AttrRecipeTitle, nil, Value{}, true},
		{"float rejects +Inf", AttrTemp, math.Inf(1), Value{}, true},
		{"float rejects NaN", AttrSetpoint, math.NaN(), Value{}, true},
		{"float32 rejects -Inf", AttrSetpoint, float32(math.Inf(-1)), Value{}, true},
		{"float rejects Inf string", AttrSetpoint, "Infinity", Value{}, true},
		{"int rejects +Inf", AttrTimerSecs, math.Inf(1), Value{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.attr.Coerce(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Coerce(%v) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) && !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("Coerce(%v) error = %v, want ErrInvalidValue or ErrInvalidPayload", tt.raw, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Coerce(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValue_Accessors(t *testing.T) {
	if got := IntValue(3).Float(); got != 3 {
		t.Errorf("IntValue(3).Float() = %v, want 3", got)
	}
	if got := FloatValue(3.9).Int(); got != 3 {
		t.Errorf("FloatValue(3.9).Int() = %v, want 3", got)
	}
	if got := (Value{}).Any(); got != nil {
		t.Errorf("zero Value.Any() = %v, want nil", got)
	}
	if FloatValue(1) == IntValue(1) {
		t.Error("FloatValue(1) == IntValue(1), want distinct kinds to differ")
	}
}

func TestDeltaFromMap(t *testing.T) {
	d, err := DeltaFromMap(map[string]any{
		"setpoint": 55.0,
		"state":    1.0,
		"temp":     99.0,
		"unknown":  "x",
	})
	if err != nil {
		t.Fatalf("DeltaFromMap() error = %v", err)
	}
	if len(d) != 2 {
		t.Errorf("len(delta) = %d, want 2 (temp and unknown dropped)", len(d))
	}
	if d[AttrState] != IntValue(1) {
		t.Errorf("delta[state] = %v, want 1", d[AttrState])
	}

	if _, err := DeltaFromMap(map[string]any{"setpoint": "hot"}); err == nil {
		t.Error("DeltaFromMap() expected error for bad setpoint, got nil")
	}
}
